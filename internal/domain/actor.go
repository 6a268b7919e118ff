package domain

// ActorProfile is the authenticated principal plus the attributes policy
// and zone resolution need. Immutable for the duration of a request.
type ActorProfile struct {
	ActorID                 ActorID
	Roles                   []string
	ClearanceLevel          uint8 // 0..255
	EcologicalPriorityScore float64
}

// HasRole reports whether the actor carries the given role.
func (a ActorProfile) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// ZoneResolution is the fabric segment an actor belongs to, plus the
// trust level the zone resolver assigned them.
type ZoneResolution struct {
	SegmentID  SegmentID
	TrustLevel uint8 // 0..255
}
