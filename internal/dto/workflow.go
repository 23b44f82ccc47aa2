package dto

import "github.com/noah-isme/vision-care-api/internal/models"

// ApplyTransitionRequest is the payload for moving one student to another phase.
type ApplyTransitionRequest struct {
	TargetPhase   models.Phase         `json:"targetPhase" validate:"required"`
	FrameID       *string              `json:"frameId,omitempty"`
	Note          *string              `json:"note,omitempty" validate:"omitempty,max=1000"`
	OutcomeStatus models.OutcomeStatus `json:"outcomeStatus,omitempty"`
	ExpectedPhase *models.Phase        `json:"expectedPhase,omitempty"`
}

// TransitionCommand is the service-level input of a single phase transition.
type TransitionCommand struct {
	StudentID     string
	TargetPhase   models.Phase
	ActorID       string
	FrameID       *string
	Note          *string
	OutcomeStatus models.OutcomeStatus
	ExpectedPhase *models.Phase
}

// TransitionResult reports the committed state after a transition.
type TransitionResult struct {
	Student *models.Student           `json:"student"`
	Entry   *models.PhaseHistoryEntry `json:"entry,omitempty"`
	Frame   *models.Frame             `json:"frame,omitempty"`
	NoOp    bool                      `json:"noOp"`
}

// BatchTransitionRequest moves a group of students to the same phase.
// FrameSelectionPlan maps student id to the chosen frame id.
type BatchTransitionRequest struct {
	StudentIDs         []string             `json:"studentIds" validate:"required,min=1,dive,required"`
	TargetPhase        models.Phase         `json:"targetPhase" validate:"required"`
	FrameSelectionPlan map[string]string    `json:"frameSelectionPlan,omitempty"`
	Note               *string              `json:"note,omitempty" validate:"omitempty,max=1000"`
	OutcomeStatus      models.OutcomeStatus `json:"outcomeStatus,omitempty"`
}

// BatchTransitionCommand is the service-level batch input.
type BatchTransitionCommand struct {
	StudentIDs         []string
	TargetPhase        models.Phase
	ActorID            string
	FrameSelectionPlan map[string]string
	Note               *string
	OutcomeStatus      models.OutcomeStatus
}

// BatchItemResult is the outcome of one student inside a batch.
type BatchItemResult struct {
	StudentID string                    `json:"studentId"`
	Success   bool                      `json:"success"`
	ErrorCode string                    `json:"errorCode,omitempty"`
	Message   string                    `json:"message,omitempty"`
	Student   *models.Student           `json:"student,omitempty"`
	Entry     *models.PhaseHistoryEntry `json:"entry,omitempty"`
}

// BatchSummary aggregates per-student outcomes.
type BatchSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// BatchTransitionResult lists per-student results in input order.
type BatchTransitionResult struct {
	Results []BatchItemResult `json:"results"`
	Summary BatchSummary      `json:"summary"`
}
