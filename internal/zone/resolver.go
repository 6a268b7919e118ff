// Package zone maps a resolved actor onto the compute segment its jobs
// should be scheduled against. The core depends only on the Resolver
// interface; segment topology and trust scoring are deployment-specific.
package zone

import (
	"context"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Resolver resolves an actor profile to the segment that should handle
// its jobs. Resolve must not mutate the ActorProfile it is given.
type Resolver interface {
	Resolve(ctx context.Context, actor domain.ActorProfile) (domain.ZoneResolution, error)
}
