package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
	"github.com/noah-isme/vision-care-api/pkg/response"
)

type transitionService interface {
	GetStudent(ctx context.Context, id string) (*models.Student, error)
	ApplyTransition(ctx context.Context, cmd dto.TransitionCommand) (*dto.TransitionResult, error)
}

type batchService interface {
	ApplyBatch(ctx context.Context, cmd dto.BatchTransitionCommand) (*dto.BatchTransitionResult, error)
}

type historyService interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.PhaseHistoryEntry, error)
}

// StudentHandler exposes the phase workflow of a student.
type StudentHandler struct {
	transitions transitionService
	batch       batchService
	history     historyService
	validator   *validator.Validate
}

// NewStudentHandler constructs the handler.
func NewStudentHandler(transitions transitionService, batch batchService, history historyService, validate *validator.Validate) *StudentHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &StudentHandler{transitions: transitions, batch: batch, history: history, validator: validate}
}

// Get godoc
// @Summary Get a student's workflow state
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	if h.transitions == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "transition service not configured"))
		return
	}
	student, err := h.transitions.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Transition godoc
// @Summary Move a student to another phase
// @Tags Students
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param payload body dto.ApplyTransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /students/{id}/transitions [post]
func (h *StudentHandler) Transition(c *gin.Context) {
	if h.transitions == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "transition service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ApplyTransitionRequest
	if err := bindJSON(c, h.validator, &req, "invalid transition payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.transitions.ApplyTransition(c.Request.Context(), dto.TransitionCommand{
		StudentID:     c.Param("id"),
		TargetPhase:   upperPhase(req.TargetPhase),
		ActorID:       claims.UserID,
		FrameID:       req.FrameID,
		Note:          req.Note,
		OutcomeStatus: upperOutcome(req.OutcomeStatus),
		ExpectedPhase: expectedPhase(req.ExpectedPhase),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary List a student's phase history, newest first
// @Tags Students
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/history [get]
func (h *StudentHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "history service not configured"))
		return
	}
	entries, err := h.history.ListByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// BatchTransition godoc
// @Summary Move several students to the same phase
// @Description Each student is processed independently; the response lists one result per student in request order.
// @Tags Students
// @Accept json
// @Produce json
// @Param payload body dto.BatchTransitionRequest true "Batch payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students/batch-transitions [post]
func (h *StudentHandler) BatchTransition(c *gin.Context) {
	if h.batch == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "batch service not configured"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.BatchTransitionRequest
	if err := bindJSON(c, h.validator, &req, "invalid batch payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.batch.ApplyBatch(c.Request.Context(), dto.BatchTransitionCommand{
		StudentIDs:         req.StudentIDs,
		TargetPhase:        upperPhase(req.TargetPhase),
		ActorID:            claims.UserID,
		FrameSelectionPlan: req.FrameSelectionPlan,
		Note:               req.Note,
		OutcomeStatus:      upperOutcome(req.OutcomeStatus),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Results, nil, map[string]interface{}{"summary": result.Summary})
}

// Phase and outcome names are accepted in any case.
func upperPhase(p models.Phase) models.Phase {
	return models.Phase(strings.ToUpper(strings.TrimSpace(string(p))))
}

func expectedPhase(p *models.Phase) *models.Phase {
	if p == nil {
		return nil
	}
	upper := upperPhase(*p)
	return &upper
}

func upperOutcome(o models.OutcomeStatus) models.OutcomeStatus {
	return models.OutcomeStatus(strings.ToUpper(strings.TrimSpace(string(o))))
}
