package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
	"github.com/noah-isme/vision-care-api/internal/repository"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

const framesCacheNamespace = "frames"

// FrameAllocator owns every write to frame inventory. Claims and releases are
// conditional updates so two callers can never both win the same frame.
type FrameAllocator struct {
	tx        txRunner
	frames    frameStore
	students  studentStore
	sizes     sizeCatalog
	cache     *CacheService
	cacheTTL  time.Duration
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// FrameAllocatorOption configures the allocator.
type FrameAllocatorOption func(*FrameAllocator)

// WithFrameCache enables cached frame listings.
func WithFrameCache(cache *CacheService, ttl time.Duration) FrameAllocatorOption {
	return func(a *FrameAllocator) {
		a.cache = cache
		a.cacheTTL = ttl
	}
}

// WithFrameMetrics records inventory operations.
func WithFrameMetrics(metrics *MetricsService) FrameAllocatorOption {
	return func(a *FrameAllocator) {
		a.metrics = metrics
	}
}

// WithFrameClock overrides the time source.
func WithFrameClock(now func() time.Time) FrameAllocatorOption {
	return func(a *FrameAllocator) {
		if now != nil {
			a.now = now
		}
	}
}

// NewFrameAllocator constructs the allocator.
func NewFrameAllocator(tx txRunner, frames frameStore, students studentStore, sizes sizeCatalog, validate *validator.Validate, logger *zap.Logger, opts ...FrameAllocatorOption) *FrameAllocator {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &FrameAllocator{
		tx:        tx,
		frames:    frames,
		students:  students,
		sizes:     sizes,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// CreateFrame registers a frame in the AVAILABLE state.
func (a *FrameAllocator) CreateFrame(ctx context.Context, req dto.CreateFrameRequest) (*models.Frame, error) {
	req.SerialNumber = strings.TrimSpace(req.SerialNumber)
	if err := a.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid frame payload")
	}
	sizeID, err := a.normalizeSize(ctx, req.SizeID)
	if err != nil {
		return nil, err
	}

	frame := &models.Frame{
		SerialNumber: req.SerialNumber,
		Type:         req.Type,
		SizeID:       sizeID,
		CreatedAt:    a.now(),
	}
	if err := a.frames.Create(ctx, frame); err != nil {
		a.metrics.RecordFrameOperation("create", "error")
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, "serial number already registered")
		}
		return nil, storeError(err, nil, "failed to create frame")
	}
	a.metrics.RecordFrameOperation("create", resultOK)
	a.invalidate(ctx)
	return frame, nil
}

// GetFrame returns a frame by id.
func (a *FrameAllocator) GetFrame(ctx context.Context, id string) (*models.Frame, error) {
	frame, err := a.frames.FindByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, storeError(err, appErrors.ErrFrameNotFound, "failed to load frame")
	}
	return frame, nil
}

type cachedFrameList struct {
	Frames []models.Frame `json:"frames"`
	Total  int            `json:"total"`
}

// ListFrames returns frames for selection screens ordered by serial number.
func (a *FrameAllocator) ListFrames(ctx context.Context, filter models.FrameFilter) ([]models.Frame, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown frame status")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown frame type")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}

	key := frameListKey(filter)
	var cached cachedFrameList
	if a.cache.Get(ctx, key, &cached) {
		return cached.Frames, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: cached.Total}, nil
	}

	frames, total, err := a.frames.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, nil, "failed to list frames")
	}
	if frames == nil {
		frames = []models.Frame{}
	}
	a.cache.Set(ctx, key, cachedFrameList{Frames: frames, Total: total}, a.cacheTTL)
	return frames, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func frameListKey(filter models.FrameFilter) string {
	size := filter.SizeID
	if filter.GeneralSize {
		size = "none"
	}
	return Key(framesCacheNamespace, "list", filter.Status, filter.Type, size, filter.Page, filter.PageSize)
}

// Allocate assigns an AVAILABLE frame to a student that is in the allocation zone and holds nothing.
func (a *FrameAllocator) Allocate(ctx context.Context, frameID, studentID string) (*dto.FrameAssignmentResult, error) {
	frameID, studentID = strings.TrimSpace(frameID), strings.TrimSpace(studentID)
	if frameID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "frame id and student id are required")
	}

	var result dto.FrameAssignmentResult
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := a.students.LockByID(ctx, studentID)
		if err != nil {
			return storeError(err, appErrors.ErrStudentNotFound, "failed to load student")
		}
		if !student.CurrentPhase.HoldsFrame() {
			return appErrors.Clone(appErrors.ErrInvalidPhase, fmt.Sprintf("student in %s cannot hold a frame", student.CurrentPhase))
		}
		if held := student.HeldFrameID(); held != "" {
			return appErrors.Clone(appErrors.ErrAllocatedFrameMismatch, fmt.Sprintf("student already holds frame %s", held))
		}

		at := a.now()
		frame, err := a.claim(ctx, frameID, studentID, at)
		if err != nil {
			return err
		}
		if err := a.students.SetAllocatedFrame(ctx, studentID, frameID, at); err != nil {
			return storeError(err, appErrors.ErrConcurrentModification, "failed to update student allocation")
		}
		student.AllocatedFrameID = &frame.ID
		student.Version++
		student.UpdatedAt = at
		result = dto.FrameAssignmentResult{Frame: frame, Student: student}
		return nil
	})
	a.metrics.RecordFrameOperation("allocate", resultLabel(err))
	if err != nil {
		return nil, a.finish("allocate", frameID, studentID, err)
	}
	a.invalidate(ctx)
	return &result, nil
}

// Release returns the frame held by studentID to inventory and clears the student's pointer.
func (a *FrameAllocator) Release(ctx context.Context, frameID, studentID string) (*dto.FrameAssignmentResult, error) {
	frameID, studentID = strings.TrimSpace(frameID), strings.TrimSpace(studentID)
	if frameID == "" || studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "frame id and student id are required")
	}

	var result dto.FrameAssignmentResult
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := a.students.LockByID(ctx, studentID)
		if err != nil {
			return storeError(err, appErrors.ErrStudentNotFound, "failed to load student")
		}
		if student.HeldFrameID() != frameID {
			return appErrors.Clone(appErrors.ErrFrameNotAllocatedToStudent, fmt.Sprintf("frame %s is not allocated to student %s", frameID, studentID))
		}

		at := a.now()
		frame, err := a.release(ctx, frameID, studentID, at)
		if err != nil {
			return err
		}
		if err := a.students.ClearAllocatedFrame(ctx, studentID, frameID, at); err != nil {
			return storeError(err, appErrors.ErrConcurrentModification, "failed to clear student allocation")
		}
		student.AllocatedFrameID = nil
		student.Version++
		student.UpdatedAt = at
		result = dto.FrameAssignmentResult{Frame: frame, Student: student}
		return nil
	})
	a.metrics.RecordFrameOperation("release", resultLabel(err))
	if err != nil {
		return nil, a.finish("release", frameID, studentID, err)
	}
	a.invalidate(ctx)
	return &result, nil
}

// ChangeStatus applies an administrative status correction. A frame leaving ALLOCATED is
// detached from its holder in the same transaction.
func (a *FrameAllocator) ChangeStatus(ctx context.Context, frameID string, status models.FrameStatus) (*dto.FrameStatusChangeResult, error) {
	frameID = strings.TrimSpace(frameID)
	if frameID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "frame id is required")
	}
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown frame status")
	}
	if status == models.FrameStatusAllocated {
		return nil, appErrors.Clone(appErrors.ErrValidation, "frames are allocated through the allocate operation")
	}

	var result dto.FrameStatusChangeResult
	err := a.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := a.frames.FindByID(ctx, frameID)
		if err != nil {
			return storeError(err, appErrors.ErrFrameNotFound, "failed to load frame")
		}
		if current.Status == status {
			result.Frame = current
			return nil
		}
		if current.Status.Retired() && status == models.FrameStatusAvailable {
			return appErrors.Clone(appErrors.ErrFrameRetired, fmt.Sprintf("frame %s is %s and cannot return to inventory", frameID, current.Status))
		}

		var holder *models.Student
		if current.Status == models.FrameStatusAllocated && current.AllocatedStudentID != nil {
			// student row first, same order as phase transitions
			holder, err = a.students.LockByID(ctx, *current.AllocatedStudentID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return storeError(err, nil, "failed to lock frame holder")
			}
		}

		at := a.now()
		err = a.frames.UpdateStatus(ctx, repository.UpdateStatusParams{
			ID:                frameID,
			From:              current.Status,
			To:                status,
			ExpectedStudentID: current.AllocatedStudentID,
			At:                at,
		})
		if err != nil {
			return storeError(err, appErrors.ErrConcurrentModification, "failed to update frame status")
		}

		if holder != nil && holder.HeldFrameID() == frameID {
			if err := a.students.ClearAllocatedFrame(ctx, holder.ID, frameID, at); err != nil {
				return storeError(err, appErrors.ErrConcurrentModification, "failed to detach frame from student")
			}
			a.logger.Warn("frame detached from student",
				zap.String("frame_id", frameID),
				zap.String("student_id", holder.ID),
				zap.String("student_phase", string(holder.CurrentPhase)),
				zap.String("status", string(status)))
			detached := holder.ID
			result.DetachedStudentID = &detached
		}

		current.Status = status
		current.AllocatedStudentID = nil
		current.UpdatedAt = at
		result.Frame = current
		return nil
	})
	a.metrics.RecordFrameOperation("status", resultLabel(err))
	if err != nil {
		return nil, a.finish("status", frameID, "", err)
	}
	a.invalidate(ctx)
	return &result, nil
}

// ChangeSize reassigns the catalog size. nil means general size.
func (a *FrameAllocator) ChangeSize(ctx context.Context, frameID string, sizeID *string) (*models.Frame, error) {
	frameID = strings.TrimSpace(frameID)
	if frameID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "frame id is required")
	}
	normalized, err := a.normalizeSize(ctx, sizeID)
	if err != nil {
		return nil, err
	}

	if err := a.frames.UpdateSize(ctx, frameID, normalized, a.now()); err != nil {
		a.metrics.RecordFrameOperation("size", "error")
		return nil, storeError(err, appErrors.ErrFrameNotFound, "failed to update frame size")
	}
	a.metrics.RecordFrameOperation("size", resultOK)
	a.invalidate(ctx)
	return a.GetFrame(ctx, frameID)
}

func (a *FrameAllocator) normalizeSize(ctx context.Context, sizeID *string) (*string, error) {
	if sizeID == nil {
		return nil, nil
	}
	id := strings.TrimSpace(*sizeID)
	if id == "" {
		return nil, nil
	}
	exists, err := a.sizes.Exists(ctx, id)
	if err != nil {
		return nil, storeError(err, nil, "failed to check frame size")
	}
	if !exists {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown frame size %s", id))
	}
	return &id, nil
}

// claim must run inside a transaction that already holds the student lock.
func (a *FrameAllocator) claim(ctx context.Context, frameID, studentID string, at time.Time) (*models.Frame, error) {
	err := a.frames.Claim(ctx, frameID, studentID, at)
	if err == nil {
		frame, err := a.frames.FindByID(ctx, frameID)
		if err != nil {
			return nil, storeError(err, appErrors.ErrFrameNotFound, "failed to reload claimed frame")
		}
		return frame, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, storeError(err, nil, "failed to claim frame")
	}

	frame, lookupErr := a.frames.FindByID(ctx, frameID)
	if lookupErr != nil {
		return nil, storeError(lookupErr, appErrors.ErrFrameNotFound, "failed to load frame")
	}
	return nil, appErrors.Clone(appErrors.ErrFrameUnavailable, fmt.Sprintf("frame %s is %s", frame.ID, frame.Status))
}

// release must run inside a transaction that already holds the student lock. A LOST or
// DAMAGED frame is left untouched so the caller can still clear the student pointer.
func (a *FrameAllocator) release(ctx context.Context, frameID, studentID string, at time.Time) (*models.Frame, error) {
	frame, err := a.frames.LockByID(ctx, frameID)
	if err != nil {
		return nil, storeError(err, appErrors.ErrFrameNotFound, "failed to lock frame")
	}
	if frame.Status.Retired() {
		return frame, nil
	}
	if !frame.AllocatedTo(studentID) {
		return nil, appErrors.Clone(appErrors.ErrFrameNotAllocatedToStudent, fmt.Sprintf("frame %s is not allocated to student %s", frameID, studentID))
	}
	if err := a.frames.Release(ctx, frameID, studentID, at); err != nil {
		return nil, storeError(err, appErrors.ErrFrameNotAllocatedToStudent, "failed to release frame")
	}
	frame.Status = models.FrameStatusAvailable
	frame.AllocatedStudentID = nil
	frame.UpdatedAt = at
	return frame, nil
}

// verifyHeld checks that the frame a student points at is still allocated to them.
func (a *FrameAllocator) verifyHeld(ctx context.Context, frameID, studentID string) (*models.Frame, error) {
	frame, err := a.frames.LockByID(ctx, frameID)
	if err != nil {
		return nil, storeError(err, appErrors.ErrFrameNotFound, "failed to lock frame")
	}
	if !frame.AllocatedTo(studentID) {
		return nil, appErrors.Clone(appErrors.ErrAllocatedFrameMismatch, fmt.Sprintf("student %s points at frame %s which is %s", studentID, frameID, frame.Status))
	}
	return frame, nil
}

func (a *FrameAllocator) invalidate(ctx context.Context) {
	a.cache.InvalidateNamespace(ctx, framesCacheNamespace)
}

func (a *FrameAllocator) finish(operation, frameID, studentID string, err error) error {
	err = storeError(err, nil, "frame "+operation+" failed")
	logWorkflowError(a.logger, "frame "+operation+" failed", err,
		zap.String("frame_id", frameID),
		zap.String("student_id", studentID))
	return err
}
