package quota

import (
	"context"
	"testing"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/apierr"
	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

func testAllowance() domain.ComputeEnergyAllowance {
	return domain.ComputeEnergyAllowance{
		MaxFlops:     1000,
		MaxEnergyKWh: 10,
		MaxCarbonKg:  5,
		MaxTier:      domain.Tier2,
		ValidUntil:   time.Now().Add(24 * time.Hour),
	}
}

func TestService_CheckAndReserve_Success(t *testing.T) {
	store := NewMemoryStore()
	store.SetAllowance("actor-1", "2026-07-31", testAllowance())
	svc := NewService(store, nil)

	job := domain.EcologicalJobSpec{
		ActorID:       "actor-1",
		RequestedTier: domain.Tier2,
		ExpectedFlops: 100,
		MaxDuration:   time.Hour,
	}

	rid, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 1, 0.5)
	if err != nil {
		t.Fatalf("CheckAndReserve: %v", err)
	}
	if rid == "" {
		t.Error("expected a non-empty reservation id")
	}

	usage, err := store.GetUsage(context.Background(), "actor-1", "2026-07-31")
	if err != nil {
		t.Fatalf("GetUsage: %v", err)
	}
	if usage.FlopsUsed != 100 || usage.EnergyKWhUsed != 1 || usage.CarbonKgEmitted != 0.5 {
		t.Errorf("usage after reserve = %+v, want flops=100 energy=1 carbon=0.5", usage)
	}
}

func TestService_CheckAndReserve_TierExceeded(t *testing.T) {
	store := NewMemoryStore()
	store.SetAllowance("actor-1", "2026-07-31", testAllowance())
	svc := NewService(store, nil)

	job := domain.EcologicalJobSpec{ActorID: "actor-1", RequestedTier: domain.Tier3, ExpectedFlops: 1}

	_, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 0, 0)
	if apierr.KindOf(err) != apierr.TierExceeded {
		t.Fatalf("error kind = %v, want %v", apierr.KindOf(err), apierr.TierExceeded)
	}
}

func TestService_CheckAndReserve_FlopsExceeded(t *testing.T) {
	store := NewMemoryStore()
	store.SetAllowance("actor-1", "2026-07-31", testAllowance())
	svc := NewService(store, nil)

	job := domain.EcologicalJobSpec{ActorID: "actor-1", RequestedTier: domain.Tier1, ExpectedFlops: 1001}

	_, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 0, 0)
	if apierr.KindOf(err) != apierr.FlopsExceeded {
		t.Fatalf("error kind = %v, want %v", apierr.KindOf(err), apierr.FlopsExceeded)
	}
}

func TestService_CheckAndReserve_StrictBoundaryAllowed(t *testing.T) {
	store := NewMemoryStore()
	store.SetAllowance("actor-1", "2026-07-31", testAllowance())
	svc := NewService(store, nil)

	// Exactly at the boundary must succeed (strict <=, not <).
	job := domain.EcologicalJobSpec{ActorID: "actor-1", RequestedTier: domain.Tier1, ExpectedFlops: 1000}

	_, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 10, 5)
	if err != nil {
		t.Fatalf("CheckAndReserve at exact boundary: %v", err)
	}
}

func TestService_CheckAndReserve_SecondReservationOverCommits(t *testing.T) {
	store := NewMemoryStore()
	store.SetAllowance("actor-1", "2026-07-31", testAllowance())
	svc := NewService(store, nil)

	job := domain.EcologicalJobSpec{ActorID: "actor-1", RequestedTier: domain.Tier1, ExpectedFlops: 600}

	if _, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 0, 0); err != nil {
		t.Fatalf("first reservation: %v", err)
	}

	// A second job that individually fits is rejected because the two
	// together would over-commit the flops allowance.
	_, err := svc.CheckAndReserve(context.Background(), "actor-1", "2026-07-31", job, 0, 0)
	if apierr.KindOf(err) != apierr.FlopsExceeded {
		t.Fatalf("error kind = %v, want %v", apierr.KindOf(err), apierr.FlopsExceeded)
	}
}
