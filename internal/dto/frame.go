package dto

import "github.com/noah-isme/vision-care-api/internal/models"

// CreateFrameRequest registers a new frame in inventory.
type CreateFrameRequest struct {
	SerialNumber string           `json:"serialNumber" validate:"required,max=64"`
	Type         models.FrameType `json:"type" validate:"required,oneof=MALE FEMALE UNISEX"`
	SizeID       *string          `json:"sizeId,omitempty"`
}

// AllocateFrameRequest assigns a frame to a student outside of a phase transition.
type AllocateFrameRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// ReleaseFrameRequest returns a frame held by the given student.
type ReleaseFrameRequest struct {
	StudentID string `json:"studentId" validate:"required"`
}

// ChangeFrameStatusRequest is an administrative status correction.
type ChangeFrameStatusRequest struct {
	Status models.FrameStatus `json:"status" validate:"required,oneof=AVAILABLE LOST DAMAGED"`
}

// ChangeFrameSizeRequest reassigns the catalog size; null means general size.
type ChangeFrameSizeRequest struct {
	SizeID *string `json:"sizeId"`
}

// FrameAssignmentResult is returned by administrative allocate and release.
type FrameAssignmentResult struct {
	Frame   *models.Frame   `json:"frame"`
	Student *models.Student `json:"student"`
}

// FrameStatusChangeResult reports the frame and, when a holder was detached, its id.
type FrameStatusChangeResult struct {
	Frame             *models.Frame `json:"frame"`
	DetachedStudentID *string       `json:"detachedStudentId,omitempty"`
}
