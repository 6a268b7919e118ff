package stability

import (
	"context"
	"sync"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// StaticTelemetry is the bundled reference Telemetry: an in-memory
// table of segment loads, set via SetLoad. Useful for tests and the
// cmd/orchestrator plan command.
type StaticTelemetry struct {
	mu    sync.RWMutex
	loads map[domain.SegmentID]domain.SegmentLoad
}

// NewStaticTelemetry creates an empty StaticTelemetry. Segments with no
// configured load report a zero SegmentLoad (0% thermal margin, 0%
// renewable share), which fails closed under Guard.Check.
func NewStaticTelemetry() *StaticTelemetry {
	return &StaticTelemetry{loads: make(map[domain.SegmentID]domain.SegmentLoad)}
}

// SetLoad sets the load reported for segment.
func (s *StaticTelemetry) SetLoad(segment domain.SegmentID, load domain.SegmentLoad) {
	s.mu.Lock()
	defer s.mu.Unlock()
	load.SegmentID = segment
	s.loads[segment] = load
}

// GetSegmentLoad implements Telemetry.
func (s *StaticTelemetry) GetSegmentLoad(ctx context.Context, segment domain.SegmentID) (domain.SegmentLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loads[segment], nil
}
