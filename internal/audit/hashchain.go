package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// ComputeHash computes the SHA-256 hash for an audit event, chaining to
// prevHash. Metadata is canonicalized through encoding/json so equal
// maps always hash the same way regardless of insertion order.
func ComputeHash(e domain.AuditEvent, prevHash string) string {
	meta, _ := json.Marshal(e.Metadata)
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s",
		e.ID,
		string(e.Type),
		e.Timestamp.UTC().Format("2006-01-02T15:04:05.000000000Z"),
		string(e.ReservationID),
		string(e.ActorID),
		string(e.SegmentID),
		string(e.WindowID),
		meta,
		prevHash,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// ComputeSeed computes the genesis prev_hash for a fresh chain.
func ComputeSeed(chainID string) string {
	hash := sha256.Sum256([]byte(chainID))
	return hex.EncodeToString(hash[:])
}

// ChainedEvent pairs an AuditEvent with the hash-chain fields sealed
// onto it when it was appended.
type ChainedEvent struct {
	Event    domain.AuditEvent
	PrevHash string
	Hash     string
}

// VerifyChain walks a slice of ChainedEvents in append order and checks
// both each entry's hash and its linkage to the previous entry. Returns
// (true, -1) if the whole chain is intact, or (false, i) for the index
// of the first broken link.
func VerifyChain(events []ChainedEvent) (bool, int) {
	for i, ce := range events {
		if ComputeHash(ce.Event, ce.PrevHash) != ce.Hash {
			return false, i
		}
		if i > 0 && ce.PrevHash != events[i-1].Hash {
			return false, i
		}
	}
	return true, -1
}
