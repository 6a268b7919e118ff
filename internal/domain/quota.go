package domain

import "time"

// ComputeEnergyAllowance is the per-window resource ceiling across
// FLOPs, energy, and carbon, plus a tier ceiling. All budgets are
// non-negative.
type ComputeEnergyAllowance struct {
	MaxFlops      float64
	MaxEnergyKWh  float64
	MaxCarbonKg   float64
	MaxTier       CapabilityTier
	ValidUntil    time.Time
}

// UsageSnapshot is the actor's consumption so far within a window. Each
// field is non-negative and monotonically non-decreasing within the
// window's lifetime.
type UsageSnapshot struct {
	WindowID         UsageWindowID
	FlopsUsed        float64
	EnergyKWhUsed    float64
	CarbonKgEmitted  float64
}

// Add returns a new snapshot with actuals folded in, i.e. usage_after =
// usage_before + actuals on each axis.
func (u UsageSnapshot) Add(actuals UsageSnapshot) UsageSnapshot {
	return UsageSnapshot{
		WindowID:        u.WindowID,
		FlopsUsed:       u.FlopsUsed + actuals.FlopsUsed,
		EnergyKWhUsed:   u.EnergyKWhUsed + actuals.EnergyKWhUsed,
		CarbonKgEmitted: u.CarbonKgEmitted + actuals.CarbonKgEmitted,
	}
}

// SegmentLoad is a sampled telemetry reading for a fabric segment. It is
// not owned by the core — a Telemetry collaborator produces it fresh on
// every StabilityGuard.Check call (or serves it from a cache).
type SegmentLoad struct {
	SegmentID         SegmentID
	CurrentFlops      float64
	EnergyRateKW      float64
	ThermalMarginPct  float64 // [0,100]
	RenewableSharePct float64 // [0,100]
}
