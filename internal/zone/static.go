package zone

import (
	"context"
	"log/slog"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// RoleBinding maps a single role to the segment and trust level an actor
// carrying that role should receive. Bindings are matched in the order
// given; the first binding whose role the actor holds wins.
type RoleBinding struct {
	Role       string
	SegmentID  domain.SegmentID
	TrustLevel uint8
}

// StaticResolver is the bundled reference Resolver: a small ordered
// table of role bindings with a fallback segment for actors matching
// none of them. It stands in for a topology or inventory service
// (segment discovery is out of scope for this core, per spec.md §1).
type StaticResolver struct {
	bindings       []RoleBinding
	defaultSegment domain.SegmentID
	defaultTrust   uint8
	logger         *slog.Logger
}

// NewStaticResolver creates a StaticResolver. defaultSegment is returned
// for any actor whose roles match none of bindings.
func NewStaticResolver(bindings []RoleBinding, defaultSegment domain.SegmentID, defaultTrust uint8, logger *slog.Logger) *StaticResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &StaticResolver{
		bindings:       bindings,
		defaultSegment: defaultSegment,
		defaultTrust:   defaultTrust,
		logger:         logger.With("component", "zone.StaticResolver"),
	}
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, actor domain.ActorProfile) (domain.ZoneResolution, error) {
	for _, b := range r.bindings {
		if actor.HasRole(b.Role) {
			return domain.ZoneResolution{SegmentID: b.SegmentID, TrustLevel: b.TrustLevel}, nil
		}
	}
	r.logger.Debug("no role binding matched, using default segment", "actor_id", actor.ActorID)
	return domain.ZoneResolution{SegmentID: r.defaultSegment, TrustLevel: r.defaultTrust}, nil
}
