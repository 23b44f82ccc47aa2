package models

// Phase is a stage of the vision-care program a student moves through.
type Phase string

const (
	PhaseScreening    Phase = "SCREENING"
	PhaseConsultation Phase = "CONSULTATION"
	PhaseProduction   Phase = "PRODUCTION"
	PhaseDelivered    Phase = "DELIVERED"
)

// Phases lists every phase in program order.
var Phases = []Phase{PhaseScreening, PhaseConsultation, PhaseProduction, PhaseDelivered}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseScreening, PhaseConsultation, PhaseProduction, PhaseDelivered:
		return true
	}
	return false
}

// HoldsFrame reports whether a student in this phase must own an allocated frame.
func (p Phase) HoldsFrame() bool {
	switch p {
	case PhaseProduction, PhaseDelivered:
		return true
	case PhaseScreening, PhaseConsultation:
		return false
	}
	return false
}

// OutcomeStatus records the screening/consultation verdict attached to a history entry.
type OutcomeStatus string

const (
	OutcomePending     OutcomeStatus = "PENDING"
	OutcomeApproved    OutcomeStatus = "APPROVED"
	OutcomeRejected    OutcomeStatus = "REJECTED"
	OutcomeNotEligible OutcomeStatus = "NOT_ELIGIBLE"
)

// Valid reports whether o is a known outcome.
func (o OutcomeStatus) Valid() bool {
	switch o {
	case OutcomePending, OutcomeApproved, OutcomeRejected, OutcomeNotEligible:
		return true
	}
	return false
}
