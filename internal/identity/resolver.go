// Package identity resolves a session token to an ActorProfile. The
// core depends only on the Resolver interface; token issuance and
// revocation are an external authentication system's responsibility
// (see StaticResolver's doc comment for the narrow exception the
// default implementation carves out for tests and single-process
// deployments).
package identity

import (
	"context"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Resolver resolves a session token to an ActorProfile. Resolve must be
// deterministic for the lifetime of a token and must not mutate any
// shared state as a side effect of resolution.
type Resolver interface {
	Resolve(ctx context.Context, sessionToken string) (domain.ActorProfile, error)
}
