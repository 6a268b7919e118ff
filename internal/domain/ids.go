package domain

// ActorID is the decentralised identifier of the requesting principal.
// Opaque, compared bytewise.
type ActorID string

// SegmentID names a fabric region sharing thermal and energy state.
// Opaque, compared bytewise.
type SegmentID string

// UsageWindowID names a discrete accounting interval, e.g. a UTC day.
// Opaque, compared bytewise.
type UsageWindowID string

// ReservationID is minted by the quota store on a successful reservation
// and is the correlation key for every subsequent audit event tied to a
// job. It is a ULID (see internal/audit and internal/quota) rather than a
// RFC-4122 UUID; both are 128-bit opaque identifiers and every invariant
// this type name implies — uniqueness, bytewise comparability, minted
// once — holds for either representation.
type ReservationID string
