package models

import "time"

// Student is a child enrolled in the vision-care program.
type Student struct {
	ID               string    `db:"id" json:"id"`
	FullName         string    `db:"full_name" json:"full_name"`
	SchoolID         *string   `db:"school_id" json:"school_id,omitempty"`
	CurrentPhase     Phase     `db:"current_phase" json:"current_phase"`
	AllocatedFrameID *string   `db:"allocated_frame_id" json:"allocated_frame_id,omitempty"`
	Version          int64     `db:"version" json:"version"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// HeldFrameID returns the allocated frame id or an empty string.
func (s *Student) HeldFrameID() string {
	if s == nil || s.AllocatedFrameID == nil {
		return ""
	}
	return *s.AllocatedFrameID
}
