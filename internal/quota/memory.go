package quota

import (
	"context"
	"fmt"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

type windowKey struct {
	actor  domain.ActorID
	window domain.UsageWindowID
}

// MemoryStore is the bundled in-process Store: a single mutex guarding
// a map of (actor, window) to allowance and usage, grounded on the
// lock-the-whole-table pattern used for active session state. Actor
// allowances must be seeded via SetAllowance before use; an
// unconfigured (actor, window) has a zero allowance (every reservation
// against it fails).
type MemoryStore struct {
	mu         sync.Mutex
	allowances map[windowKey]domain.ComputeEnergyAllowance
	usage      map[windowKey]domain.UsageSnapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		allowances: make(map[windowKey]domain.ComputeEnergyAllowance),
		usage:      make(map[windowKey]domain.UsageSnapshot),
	}
}

// SetAllowance configures the allowance for (actor, window). Used by
// test setup; the cmd/orchestrator commands do not call it.
func (m *MemoryStore) SetAllowance(actor domain.ActorID, window domain.UsageWindowID, allowance domain.ComputeEnergyAllowance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allowances[windowKey{actor, window}] = allowance
}

// GetAllowance implements Store.
func (m *MemoryStore) GetAllowance(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.ComputeEnergyAllowance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowances[windowKey{actor, window}], nil
}

// GetUsage implements Store.
func (m *MemoryStore) GetUsage(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID) (domain.UsageSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.usage[windowKey{actor, window}]
	snap.WindowID = window
	return snap, nil
}

// ReserveQuota implements Store. The whole read-check-write sequence
// runs under the store's single mutex, which is what gives (actor,
// window) reservations their linearisable semantics.
func (m *MemoryStore) ReserveQuota(ctx context.Context, actor domain.ActorID, window domain.UsageWindowID, allowance domain.ComputeEnergyAllowance, deltaFlops, deltaEnergyKWh, deltaCarbonKg float64) (domain.ReservationID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := windowKey{actor, window}
	current := m.usage[key]

	if current.FlopsUsed+deltaFlops > allowance.MaxFlops {
		return "", fmt.Errorf("concurrent reservation exceeded flops allowance")
	}
	if current.EnergyKWhUsed+deltaEnergyKWh > allowance.MaxEnergyKWh {
		return "", fmt.Errorf("concurrent reservation exceeded energy allowance")
	}
	if current.CarbonKgEmitted+deltaCarbonKg > allowance.MaxCarbonKg {
		return "", fmt.Errorf("concurrent reservation exceeded carbon allowance")
	}

	current.WindowID = window
	current.FlopsUsed += deltaFlops
	current.EnergyKWhUsed += deltaEnergyKWh
	current.CarbonKgEmitted += deltaCarbonKg
	m.usage[key] = current

	return domain.ReservationID(ulid.Make().String()), nil
}
