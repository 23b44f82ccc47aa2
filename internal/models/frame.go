package models

import "time"

// FrameStatus tracks where a physical frame is in its lifecycle.
type FrameStatus string

const (
	FrameStatusAvailable FrameStatus = "AVAILABLE"
	FrameStatusAllocated FrameStatus = "ALLOCATED"
	FrameStatusLost      FrameStatus = "LOST"
	FrameStatusDamaged   FrameStatus = "DAMAGED"
)

// Valid reports whether s is a known frame status.
func (s FrameStatus) Valid() bool {
	switch s {
	case FrameStatusAvailable, FrameStatusAllocated, FrameStatusLost, FrameStatusDamaged:
		return true
	}
	return false
}

// Retired reports whether the frame has permanently left the allocation pool.
func (s FrameStatus) Retired() bool {
	switch s {
	case FrameStatusLost, FrameStatusDamaged:
		return true
	case FrameStatusAvailable, FrameStatusAllocated:
		return false
	}
	return false
}

// FrameType is the frame model family.
type FrameType string

const (
	FrameTypeMale   FrameType = "MALE"
	FrameTypeFemale FrameType = "FEMALE"
	FrameTypeUnisex FrameType = "UNISEX"
)

// Valid reports whether t is a known frame type.
func (t FrameType) Valid() bool {
	switch t {
	case FrameTypeMale, FrameTypeFemale, FrameTypeUnisex:
		return true
	}
	return false
}

// Frame is a physical pair of eyeglass frames held in inventory.
type Frame struct {
	ID                 string      `db:"id" json:"id"`
	SerialNumber       string      `db:"serial_number" json:"serial_number"`
	Type               FrameType   `db:"type" json:"type"`
	SizeID             *string     `db:"size_id" json:"size_id,omitempty"`
	Status             FrameStatus `db:"status" json:"status"`
	AllocatedStudentID *string     `db:"allocated_student_id" json:"allocated_student_id,omitempty"`
	CreatedAt          time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time   `db:"updated_at" json:"updated_at"`
}

// AllocatedTo reports whether the frame is currently claimed by the given student.
func (f *Frame) AllocatedTo(studentID string) bool {
	return f != nil &&
		f.Status == FrameStatusAllocated &&
		f.AllocatedStudentID != nil &&
		*f.AllocatedStudentID == studentID
}

// FrameSize is a catalog entry frames may reference.
type FrameSize struct {
	ID        string    `db:"id" json:"id"`
	Label     string    `db:"label" json:"label"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FrameFilter constrains frame listings for selection screens.
type FrameFilter struct {
	Status      FrameStatus
	Type        FrameType
	SizeID      string
	GeneralSize bool
	Page        int
	PageSize    int
}
