package audit

import (
	"context"
	"sync"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// MemorySink is the bundled in-process Sink: an append-only,
// hash-chained slice guarded by a single mutex. Useful for tests and
// single-process deployments.
type MemorySink struct {
	mu     sync.Mutex
	events []ChainedEvent
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements Sink.
func (m *MemorySink) Append(ctx context.Context, event domain.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prevHash := ComputeSeed("orchestrator")
	if len(m.events) > 0 {
		prevHash = m.events[len(m.events)-1].Hash
	}
	hash := ComputeHash(event, prevHash)
	m.events = append(m.events, ChainedEvent{Event: event, PrevHash: prevHash, Hash: hash})
	return nil
}

// Events returns a copy of the appended chain, in append order.
func (m *MemorySink) Events() []ChainedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChainedEvent, len(m.events))
	copy(out, m.events)
	return out
}

// VerifyChain verifies the integrity of everything appended so far.
func (m *MemorySink) VerifyChain() (bool, int) {
	return VerifyChain(m.Events())
}
