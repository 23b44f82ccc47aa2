package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
	"github.com/noah-isme/vision-care-api/pkg/response"
)

type frameService interface {
	CreateFrame(ctx context.Context, req dto.CreateFrameRequest) (*models.Frame, error)
	GetFrame(ctx context.Context, id string) (*models.Frame, error)
	ListFrames(ctx context.Context, filter models.FrameFilter) ([]models.Frame, *models.Pagination, error)
	Allocate(ctx context.Context, frameID, studentID string) (*dto.FrameAssignmentResult, error)
	Release(ctx context.Context, frameID, studentID string) (*dto.FrameAssignmentResult, error)
	ChangeStatus(ctx context.Context, frameID string, status models.FrameStatus) (*dto.FrameStatusChangeResult, error)
	ChangeSize(ctx context.Context, frameID string, sizeID *string) (*models.Frame, error)
}

// FrameHandler exposes frame inventory endpoints.
type FrameHandler struct {
	service   frameService
	validator *validator.Validate
}

// NewFrameHandler constructs the handler.
func NewFrameHandler(service frameService, validate *validator.Validate) *FrameHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &FrameHandler{service: service, validator: validate}
}

// List godoc
// @Summary List frames
// @Tags Frames
// @Produce json
// @Param status query string false "AVAILABLE, ALLOCATED, LOST or DAMAGED"
// @Param type query string false "MALE, FEMALE or UNISEX"
// @Param sizeId query string false "Size id, or none for general size"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /frames [get]
func (h *FrameHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	filter := models.FrameFilter{
		Status: models.FrameStatus(strings.ToUpper(c.Query("status"))),
		Type:   models.FrameType(strings.ToUpper(c.Query("type"))),
	}
	if size := strings.TrimSpace(c.Query("sizeId")); strings.EqualFold(size, "none") {
		filter.GeneralSize = true
	} else {
		filter.SizeID = size
	}
	if v := c.Query("page"); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "page must be a number"))
			return
		}
		filter.Page = page
	}
	if v := c.Query("pageSize"); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "pageSize must be a number"))
			return
		}
		filter.PageSize = size
	}

	frames, pagination, err := h.service.ListFrames(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, frames, pagination)
}

// Get godoc
// @Summary Get a frame
// @Tags Frames
// @Produce json
// @Param id path string true "Frame ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /frames/{id} [get]
func (h *FrameHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	frame, err := h.service.GetFrame(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, frame, nil)
}

// Create godoc
// @Summary Register a frame in inventory
// @Tags Frames
// @Accept json
// @Produce json
// @Param payload body dto.CreateFrameRequest true "Frame payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /frames [post]
func (h *FrameHandler) Create(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	var req dto.CreateFrameRequest
	if err := bindJSON(c, h.validator, &req, "invalid frame payload"); err != nil {
		response.Error(c, err)
		return
	}
	frame, err := h.service.CreateFrame(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, frame)
}

// Allocate godoc
// @Summary Allocate a frame to a student
// @Tags Frames
// @Accept json
// @Produce json
// @Param id path string true "Frame ID"
// @Param payload body dto.AllocateFrameRequest true "Student"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /frames/{id}/allocate [post]
func (h *FrameHandler) Allocate(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	var req dto.AllocateFrameRequest
	if err := bindJSON(c, h.validator, &req, "invalid allocation payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Allocate(c.Request.Context(), c.Param("id"), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Release godoc
// @Summary Release a frame held by a student
// @Tags Frames
// @Accept json
// @Produce json
// @Param id path string true "Frame ID"
// @Param payload body dto.ReleaseFrameRequest true "Student"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /frames/{id}/release [post]
func (h *FrameHandler) Release(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	var req dto.ReleaseFrameRequest
	if err := bindJSON(c, h.validator, &req, "invalid release payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Release(c.Request.Context(), c.Param("id"), req.StudentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ChangeStatus godoc
// @Summary Correct a frame's status
// @Description Marking an allocated frame LOST or DAMAGED detaches it from its student.
// @Tags Frames
// @Accept json
// @Produce json
// @Param id path string true "Frame ID"
// @Param payload body dto.ChangeFrameStatusRequest true "Status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /frames/{id}/status [patch]
func (h *FrameHandler) ChangeStatus(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	var req dto.ChangeFrameStatusRequest
	if err := bindJSON(c, h.validator, &req, "invalid status payload"); err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ChangeSize godoc
// @Summary Change a frame's size
// @Tags Frames
// @Accept json
// @Produce json
// @Param id path string true "Frame ID"
// @Param payload body dto.ChangeFrameSizeRequest true "Size (null for general)"
// @Success 200 {object} response.Envelope
// @Router /frames/{id}/size [patch]
func (h *FrameHandler) ChangeSize(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "frame service not configured"))
		return
	}
	var req dto.ChangeFrameSizeRequest
	if err := bindJSON(c, h.validator, &req, "invalid size payload"); err != nil {
		response.Error(c, err)
		return
	}
	frame, err := h.service.ChangeSize(c.Request.Context(), c.Param("id"), req.SizeID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, frame, nil)
}
