package domain

import "time"

// AuditEventType enumerates the milestones the orchestrator and its
// collaborators may record. JobStarted and JobCompleted are carried as
// named constants for callers that drive execution outside the core —
// the core itself only ever emits JobRequested, PolicyEvaluated,
// QuotaReserved, and StabilityChecked.
type AuditEventType string

const (
	EventJobRequested    AuditEventType = "job_requested"
	EventPolicyEvaluated AuditEventType = "policy_evaluated"
	EventQuotaReserved   AuditEventType = "quota_reserved"
	EventStabilityChecked AuditEventType = "stability_checked"
	EventJobStarted      AuditEventType = "job_started"
	EventJobCompleted    AuditEventType = "job_completed"
)

// AuditEvent is a single append-only audit record. The logger MUST NOT
// mutate an event after Append is called on it.
type AuditEvent struct {
	ID            string // minted by the logger, ULID
	Type          AuditEventType
	Timestamp     time.Time
	ReservationID ReservationID // empty until a reservation exists
	ActorID       ActorID
	SegmentID     SegmentID
	WindowID      UsageWindowID
	Metadata      map[string]any
}
