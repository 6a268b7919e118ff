package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Entry is one row of the static token table: a session token bound to
// an actor profile and an expiry.
type Entry struct {
	Token     string
	Profile   domain.ActorProfile
	ExpiresAt time.Time
}

// StaticResolver is the bundled reference Resolver: an in-memory token
// table seeded from config. It stands in for a production auth system
// (session-token issuance is out of scope for this core, per spec.md
// §1) — it only ever resolves tokens it was handed at construction or
// via Put; it never mints or revokes them on its own.
type StaticResolver struct {
	mu     sync.RWMutex
	tokens map[string]Entry
	logger *slog.Logger
}

// NewStaticResolver creates a StaticResolver seeded with the given
// entries (typically loaded from config.IdentityConfig).
func NewStaticResolver(entries []Entry, logger *slog.Logger) *StaticResolver {
	if logger == nil {
		logger = slog.Default()
	}
	r := &StaticResolver{
		tokens: make(map[string]Entry, len(entries)),
		logger: logger.With("component", "identity.StaticResolver"),
	}
	for _, e := range entries {
		r.tokens[e.Token] = e
	}
	return r
}

// Put adds or replaces a token entry. Safe for concurrent use.
func (r *StaticResolver) Put(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[e.Token] = e
}

// Resolve implements Resolver.
func (r *StaticResolver) Resolve(ctx context.Context, sessionToken string) (domain.ActorProfile, error) {
	r.mu.RLock()
	entry, ok := r.tokens[sessionToken]
	r.mu.RUnlock()

	if !ok {
		r.logger.Warn("unknown session token presented")
		return domain.ActorProfile{}, apierr.New(apierr.Unauthenticated, "unknown or revoked session token")
	}
	if !entry.ExpiresAt.IsZero() && time.Now().After(entry.ExpiresAt) {
		r.logger.Warn("expired session token presented", "actor_id", entry.Profile.ActorID)
		return domain.ActorProfile{}, apierr.New(apierr.Unauthenticated, "session token expired")
	}
	return entry.Profile, nil
}
