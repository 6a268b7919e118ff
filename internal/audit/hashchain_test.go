package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

type failingSink struct{}

func (failingSink) Append(ctx context.Context, event domain.AuditEvent) error {
	return errors.New("sink unavailable")
}

func TestMemorySink_ChainVerifies(t *testing.T) {
	sink := NewMemorySink()
	logger := NewLogger(sink, "closed", nil)

	logger.Append(context.Background(), domain.AuditEvent{
		Type:      domain.EventJobRequested,
		Timestamp: time.Now(),
		ActorID:   "actor-1",
	})
	logger.Append(context.Background(), domain.AuditEvent{
		Type:          domain.EventQuotaReserved,
		Timestamp:     time.Now(),
		ActorID:       "actor-1",
		ReservationID: "rsv-1",
	})

	ok, brokenAt := sink.VerifyChain()
	if !ok {
		t.Fatalf("chain broken at index %d", brokenAt)
	}
}

func TestMemorySink_DetectsTampering(t *testing.T) {
	sink := NewMemorySink()
	logger := NewLogger(sink, "closed", nil)

	logger.Append(context.Background(), domain.AuditEvent{Type: domain.EventJobRequested, Timestamp: time.Now()})
	logger.Append(context.Background(), domain.AuditEvent{Type: domain.EventPolicyEvaluated, Timestamp: time.Now()})

	events := sink.Events()
	events[0].Event.ActorID = "tampered"

	ok, brokenAt := VerifyChain(events)
	if ok {
		t.Fatal("expected tampering to be detected")
	}
	if brokenAt != 0 {
		t.Errorf("brokenAt = %d, want 0", brokenAt)
	}
}

func TestLogger_FailClosedReturnsInternalError(t *testing.T) {
	logger := NewLogger(failingSink{}, "closed", nil)

	err := logger.Append(context.Background(), domain.AuditEvent{Type: domain.EventJobRequested})
	if err == nil {
		t.Fatal("expected an error in fail-closed mode")
	}
	if apierr.KindOf(err) != apierr.Internal {
		t.Errorf("error kind = %v, want Internal", apierr.KindOf(err))
	}
}

func TestLogger_FailOpenSwallowsError(t *testing.T) {
	logger := NewLogger(failingSink{}, "open", nil)

	err := logger.Append(context.Background(), domain.AuditEvent{Type: domain.EventJobRequested})
	if err != nil {
		t.Errorf("expected nil error in fail-open mode, got %v", err)
	}
}
