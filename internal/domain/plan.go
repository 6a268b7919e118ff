package domain

// JobExecutionPlan is produced only after a successful reservation. It is
// returned to the caller and logged; it is never mutated afterward.
// ReservationID is the correlation key for all subsequent events tied to
// this job.
type JobExecutionPlan struct {
	ReservationID     ReservationID
	ApprovedSegment   SegmentID
	ApprovedTier      CapabilityTier
	StabilityDecision StabilityDecision
}

// FairUseReceipt binds a reservation to measured consumption and the
// remaining allowance after settlement. Built by ReceiptBuilder, which
// has no I/O of its own.
type FairUseReceipt struct {
	ReservationID ReservationID
	ActorID       ActorID
	SegmentID     SegmentID
	WindowID      UsageWindowID

	FlopsUsed       float64
	EnergyKWhUsed   float64
	CarbonKgEmitted float64

	AllowanceRemainingFlops      float64
	AllowanceRemainingEnergyKWh  float64
	AllowanceRemainingCarbonKg   float64

	Explanation string
}
