package models

import "time"

// PhaseHistoryEntry is an immutable audit record of one committed phase transition.
type PhaseHistoryEntry struct {
	ID            string        `db:"id" json:"id"`
	Seq           int64         `db:"seq" json:"-"`
	StudentID     string        `db:"student_id" json:"student_id"`
	FromPhase     *Phase        `db:"from_phase" json:"from_phase,omitempty"`
	Phase         Phase         `db:"phase" json:"phase"`
	ActorID       string        `db:"actor_id" json:"actor_id"`
	Note          *string       `db:"note" json:"note,omitempty"`
	OutcomeStatus OutcomeStatus `db:"outcome_status" json:"outcome_status"`
	RecordedAt    time.Time     `db:"recorded_at" json:"recorded_at"`
}
