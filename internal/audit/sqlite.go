package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// SQLiteStore implements Sink using SQLite, grounded on the same
// WAL-journalled append-only hash-chain pattern used for trace
// persistence. A single in-process mutex serializes appends so the
// prev_hash read and the new row's insert stay consistent even though
// SQLite itself would otherwise serialize writers anyway.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	seed string
}

// NewSQLiteStore opens (and does not yet initialize) a SQLite-backed
// audit sink at path. chainID seeds the genesis prev_hash.
func NewSQLiteStore(path, chainID string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	return &SQLiteStore{db: db, seed: ComputeSeed(chainID)}, nil
}

// Initialize creates the audit_events table if it doesn't already exist.
func (s *SQLiteStore) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS audit_events (
			id              TEXT PRIMARY KEY,
			seq             INTEGER NOT NULL,
			event_type      TEXT NOT NULL,
			timestamp       DATETIME NOT NULL,
			reservation_id  TEXT,
			actor_id        TEXT,
			segment_id      TEXT,
			window_id       TEXT,
			metadata        TEXT,
			prev_hash       TEXT NOT NULL,
			hash            TEXT NOT NULL
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_audit_events_seq ON audit_events(seq);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return nil
}

// Close shuts down the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append implements Sink.
func (s *SQLiteStore) Append(ctx context.Context, event domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prevHash string
	var maxSeq int64
	row := s.db.QueryRowContext(ctx, `SELECT seq, hash FROM audit_events ORDER BY seq DESC LIMIT 1`)
	err := row.Scan(&maxSeq, &prevHash)
	if err == sql.ErrNoRows {
		prevHash = s.seed
		maxSeq = 0
	} else if err != nil {
		return fmt.Errorf("failed to read chain tail: %w", err)
	} else {
		maxSeq++
	}

	hash := ComputeHash(event, prevHash)
	meta, err := json.Marshal(event.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal event metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, seq, event_type, timestamp, reservation_id, actor_id, segment_id, window_id, metadata, prev_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, event.ID, maxSeq, string(event.Type), event.Timestamp,
		string(event.ReservationID), string(event.ActorID), string(event.SegmentID), string(event.WindowID),
		string(meta), prevHash, hash)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}

	return nil
}

// VerifyChain reads the full chain back in append order and verifies
// its hash integrity.
func (s *SQLiteStore) VerifyChain(ctx context.Context) (bool, int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, timestamp, reservation_id, actor_id, segment_id, window_id, metadata, prev_hash, hash
		FROM audit_events ORDER BY seq ASC
	`)
	if err != nil {
		return false, -1, fmt.Errorf("failed to read chain: %w", err)
	}
	defer rows.Close()

	var chain []ChainedEvent
	for rows.Next() {
		var e domain.AuditEvent
		var eventType, metaRaw, prevHash, hash string
		if err := rows.Scan(&e.ID, &eventType, &e.Timestamp, &e.ReservationID, &e.ActorID, &e.SegmentID, &e.WindowID, &metaRaw, &prevHash, &hash); err != nil {
			return false, -1, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.Type = domain.AuditEventType(eventType)
		if metaRaw != "" {
			_ = json.Unmarshal([]byte(metaRaw), &e.Metadata)
		}
		chain = append(chain, ChainedEvent{Event: e, PrevHash: prevHash, Hash: hash})
	}
	if err := rows.Err(); err != nil {
		return false, -1, err
	}

	ok, brokenAt := VerifyChain(chain)
	return ok, brokenAt, nil
}
