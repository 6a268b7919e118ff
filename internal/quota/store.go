// Package quota checks and reserves the multi-resource budget
// (FLOPs/energy/carbon/tier) an actor may spend against a usage
// window, atomically and with linearisable per-(actor, window)
// semantics.
package quota

import (
	"context"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Store persists allowances, usage snapshots, and reservations. A
// correct Store implementation must serialize ReserveQuota calls for
// the same (actor, window) key such that two concurrent reservations
// that would jointly over-commit any resource cannot both succeed.
type Store interface {
	// GetAllowance returns the budget configured for (actor, window).
	GetAllowance(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.ComputeEnergyAllowance, error)

	// GetUsage returns the resources already consumed in (actor, window).
	GetUsage(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.UsageSnapshot, error)

	// ReserveQuota atomically adds the given deltas to the usage
	// snapshot and mints a fresh ReservationID, provided the caller has
	// already verified the deltas fit within the allowance. Usage may
	// change between the caller's check and this call, so ReserveQuota
	// re-reads usage and re-verifies it against allowance under its own
	// critical section, returning an error if another reservation raced
	// it past the allowance.
	ReserveQuota(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID, allowance domain.ComputeEnergyAllowance, deltaFlops, deltaEnergyKWh, deltaCarbonKg float64) (domain.ReservationID, error)
}
