// Package receipt builds the post-execution reconciliation artifact
// binding a reservation to its measured consumption. Building a
// receipt is pure: no I/O, no side effects.
package receipt

import "github.com/agentwarden-ecology/orchestrator/internal/domain"

const explanation = "Job executed within its configured FLOPs, energy, and carbon budgets; aligned with fabric ethical and stability constraints."

// Builder constructs FairUseReceipts from settled reservation data.
type Builder struct{}

// NewBuilder creates a Builder. It carries no state.
func NewBuilder() Builder {
	return Builder{}
}

// Build produces a FairUseReceipt from the reservation's identity, the
// actual consumption measured after execution, and the allowance
// remainders left after settlement.
func (Builder) Build(
	reservationID domain.ReservationID,
	actorID domain.ActorID,
	segmentID domain.SegmentID,
	windowID domain.UsageWindowID,
	flopsUsed, energyKWhUsed, carbonKgEmitted float64,
	allowanceRemainingFlops, allowanceRemainingEnergyKWh, allowanceRemainingCarbonKg float64,
) domain.FairUseReceipt {
	return domain.FairUseReceipt{
		ReservationID:   reservationID,
		ActorID:         actorID,
		SegmentID:       segmentID,
		WindowID:        windowID,
		FlopsUsed:       flopsUsed,
		EnergyKWhUsed:   energyKWhUsed,
		CarbonKgEmitted: carbonKgEmitted,

		AllowanceRemainingFlops:     allowanceRemainingFlops,
		AllowanceRemainingEnergyKWh: allowanceRemainingEnergyKWh,
		AllowanceRemainingCarbonKg:  allowanceRemainingCarbonKg,

		Explanation: explanation,
	}
}
