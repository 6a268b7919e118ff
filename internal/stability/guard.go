// Package stability turns live grid telemetry into an admission
// decision: proceed, throttle, downgrade the requested tier, or deny
// outright. The thresholds it enforces are floors the fabric must
// meet, not ceilings a job must stay under.
package stability

import (
	"context"
	"time"

	"github.com/agentwarden-ecology/orchestrator/internal/domain"
)

// Telemetry reports the current load on a segment. Implementations may
// sample live grid state; the guard never owns or mutates what it
// returns.
type Telemetry interface {
	GetSegmentLoad(ctx context.Context, segment domain.SegmentID) (domain.SegmentLoad, error)
}

const recommendedThrottleDelay = 15 * time.Minute

// Guard evaluates segment telemetry against configured thermal and
// renewable floors to decide whether a job may proceed as requested.
type Guard struct {
	telemetry       Telemetry
	maxThermalPct   float64
	minRenewablePct float64
}

// NewGuard creates a Guard. maxThermalPct and minRenewablePct are the
// floors load.thermal_margin_pct and load.renewable_share_pct must each
// meet or exceed.
func NewGuard(telemetry Telemetry, maxThermalPct, minRenewablePct float64) *Guard {
	return &Guard{
		telemetry:       telemetry,
		maxThermalPct:   maxThermalPct,
		minRenewablePct: minRenewablePct,
	}
}

// Check evaluates the segment's current load against proposedFlops,
// proposedEnergyKWh, and requestedTier and returns the resulting
// decision. The rules are evaluated in order; the first match wins.
func (g *Guard) Check(ctx context.Context, segment domain.SegmentID, proposedFlops, proposedEnergyKWh float64, requestedTier domain.CapabilityTier) (domain.StabilityDecision, error) {
	load, err := g.telemetry.GetSegmentLoad(ctx, segment)
	if err != nil {
		return domain.StabilityDecision{}, err
	}

	if load.ThermalMarginPct < g.maxThermalPct {
		return domain.StabilityThrottleDecision("thermal margin too low", recommendedThrottleDelay), nil
	}

	if load.RenewableSharePct < g.minRenewablePct {
		if downgraded, ok := requestedTier.Downgraded(); ok {
			return domain.StabilityDowngradeDecision("insufficient renewable share, downgraded tier", downgraded), nil
		}
		return domain.StabilityDenyDecision("insufficient renewable share for even lowest tier"), nil
	}

	return domain.StabilityOkDecision(), nil
}
