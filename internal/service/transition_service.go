package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/dto"
	"github.com/noah-isme/vision-care-api/internal/models"
	"github.com/noah-isme/vision-care-api/internal/repository"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

// TransitionService moves students between phases and keeps their frame allocation in
// step. Each call is one transaction: student lock, frame claim or release, student
// update and history append commit together or not at all.
type TransitionService struct {
	tx        txRunner
	students  studentStore
	allocator *FrameAllocator
	history   *PhaseHistoryService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// TransitionServiceOption configures the service.
type TransitionServiceOption func(*TransitionService)

// WithTransitionMetrics records transition outcomes.
func WithTransitionMetrics(metrics *MetricsService) TransitionServiceOption {
	return func(s *TransitionService) {
		s.metrics = metrics
	}
}

// WithTransitionClock overrides the time source.
func WithTransitionClock(now func() time.Time) TransitionServiceOption {
	return func(s *TransitionService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTransitionService constructs the coordinator.
func NewTransitionService(tx txRunner, students studentStore, allocator *FrameAllocator, history *PhaseHistoryService, logger *zap.Logger, opts ...TransitionServiceOption) *TransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransitionService{
		tx:        tx,
		students:  students,
		allocator: allocator,
		history:   history,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetStudent returns the student's current phase and allocation pointer.
func (s *TransitionService) GetStudent(ctx context.Context, id string) (*models.Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		return nil, storeError(err, appErrors.ErrStudentNotFound, "failed to load student")
	}
	return student, nil
}

// ApplyTransition moves one student to cmd.TargetPhase. Moving to the current phase is a
// successful no-op that writes nothing.
func (s *TransitionService) ApplyTransition(ctx context.Context, cmd dto.TransitionCommand) (*dto.TransitionResult, error) {
	cmd.StudentID = strings.TrimSpace(cmd.StudentID)
	cmd.ActorID = strings.TrimSpace(cmd.ActorID)
	if err := validateTransition(cmd); err != nil {
		s.metrics.RecordTransition("", cmd.TargetPhase, resultLabel(err))
		return nil, err
	}

	var (
		result       dto.TransitionResult
		from         models.Phase
		frameTouched bool
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		student, err := s.students.LockByID(ctx, cmd.StudentID)
		if err != nil {
			return storeError(err, appErrors.ErrStudentNotFound, "failed to load student")
		}
		from = student.CurrentPhase

		if cmd.ExpectedPhase != nil && *cmd.ExpectedPhase != student.CurrentPhase {
			return appErrors.Clone(appErrors.ErrConcurrentModification,
				fmt.Sprintf("student is in %s, expected %s", student.CurrentPhase, *cmd.ExpectedPhase))
		}
		if cmd.TargetPhase == student.CurrentPhase {
			result = dto.TransitionResult{Student: student, NoOp: true}
			return nil
		}

		at := s.now()
		plan, err := s.applyAllocation(ctx, student, cmd, at)
		if err != nil {
			return err
		}
		frameTouched = plan.touched

		err = s.students.UpdateWorkflow(ctx, repository.UpdateWorkflowParams{
			ID:               student.ID,
			Phase:            cmd.TargetPhase,
			AllocatedFrameID: plan.pointer,
			ExpectedVersion:  student.Version,
			UpdatedAt:        at,
		})
		if err != nil {
			return storeError(err, appErrors.ErrConcurrentModification, "failed to update student")
		}
		student.CurrentPhase = cmd.TargetPhase
		student.AllocatedFrameID = plan.pointer
		student.Version++
		student.UpdatedAt = at

		entry := &models.PhaseHistoryEntry{
			StudentID:     student.ID,
			FromPhase:     &from,
			Phase:         cmd.TargetPhase,
			ActorID:       cmd.ActorID,
			Note:          cmd.Note,
			OutcomeStatus: cmd.OutcomeStatus,
			RecordedAt:    at,
		}
		if err := s.history.Record(ctx, entry); err != nil {
			return err
		}

		result = dto.TransitionResult{Student: student, Entry: entry, Frame: plan.frame}
		return nil
	})
	if err != nil {
		err = storeError(err, nil, "transition failed")
		s.metrics.RecordTransition(from, cmd.TargetPhase, resultLabel(err))
		logWorkflowError(s.logger, "phase transition failed", err,
			zap.String("student_id", cmd.StudentID),
			zap.String("target_phase", string(cmd.TargetPhase)),
			zap.String("actor_id", cmd.ActorID))
		return nil, err
	}

	if result.NoOp {
		s.metrics.RecordTransition(from, cmd.TargetPhase, "noop")
		return &result, nil
	}
	s.metrics.RecordTransition(from, cmd.TargetPhase, resultOK)
	if frameTouched {
		s.allocator.invalidate(ctx)
	}
	s.logger.Info("phase transition committed",
		zap.String("student_id", cmd.StudentID),
		zap.String("from", string(from)),
		zap.String("to", string(cmd.TargetPhase)),
		zap.String("frame_id", result.Student.HeldFrameID()),
		zap.String("actor_id", cmd.ActorID))
	return &result, nil
}

func validateTransition(cmd dto.TransitionCommand) error {
	if !cmd.TargetPhase.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidPhase, fmt.Sprintf("unknown phase %q", cmd.TargetPhase))
	}
	if cmd.ExpectedPhase != nil && !cmd.ExpectedPhase.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidPhase, fmt.Sprintf("unknown expected phase %q", *cmd.ExpectedPhase))
	}
	if cmd.StudentID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if cmd.ActorID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "actor id is required")
	}
	if cmd.OutcomeStatus != "" && !cmd.OutcomeStatus.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown outcome status %q", cmd.OutcomeStatus))
	}
	return nil
}

type allocationPlan struct {
	pointer *string
	frame   *models.Frame
	touched bool
}

// applyAllocation performs the frame side effect of moving student to cmd.TargetPhase and
// returns the allocation pointer the student must end up with.
func (s *TransitionService) applyAllocation(ctx context.Context, student *models.Student, cmd dto.TransitionCommand, at time.Time) (allocationPlan, error) {
	held := student.HeldFrameID()
	choice := ""
	if cmd.FrameID != nil {
		choice = strings.TrimSpace(*cmd.FrameID)
	}

	switch cmd.TargetPhase {
	case models.PhaseProduction:
		if choice == "" {
			return allocationPlan{}, appErrors.Clone(appErrors.ErrFrameRequired, "a frame must be selected to enter production")
		}
		if held != "" {
			if choice != held {
				return allocationPlan{}, appErrors.Clone(appErrors.ErrAllocatedFrameMismatch,
					fmt.Sprintf("student already holds frame %s", held))
			}
			frame, err := s.allocator.verifyHeld(ctx, held, student.ID)
			if err != nil {
				return allocationPlan{}, err
			}
			return allocationPlan{pointer: student.AllocatedFrameID, frame: frame}, nil
		}
		return s.claim(ctx, choice, student.ID, at)

	case models.PhaseDelivered:
		if held != "" {
			if choice != "" && choice != held {
				return allocationPlan{}, appErrors.Clone(appErrors.ErrFrameNotAllocatedToStudent,
					fmt.Sprintf("frame %s is not allocated to student %s", choice, student.ID))
			}
			frame, err := s.allocator.verifyHeld(ctx, held, student.ID)
			if err != nil {
				return allocationPlan{}, err
			}
			return allocationPlan{pointer: student.AllocatedFrameID, frame: frame}, nil
		}
		if choice == "" {
			return allocationPlan{}, appErrors.Clone(appErrors.ErrFrameRequired, "a frame must be selected to deliver")
		}
		return s.claim(ctx, choice, student.ID, at)

	case models.PhaseScreening, models.PhaseConsultation:
		if held == "" {
			return allocationPlan{}, nil
		}
		if choice != "" && choice != held {
			return allocationPlan{}, appErrors.Clone(appErrors.ErrFrameNotAllocatedToStudent,
				fmt.Sprintf("frame %s is not allocated to student %s", choice, student.ID))
		}
		frame, err := s.allocator.release(ctx, held, student.ID, at)
		if err != nil {
			return allocationPlan{}, err
		}
		s.allocator.metrics.RecordFrameOperation("release", resultOK)
		return allocationPlan{frame: frame, touched: true}, nil
	}

	return allocationPlan{}, appErrors.Clone(appErrors.ErrInvalidPhase, fmt.Sprintf("unknown phase %q", cmd.TargetPhase))
}

func (s *TransitionService) claim(ctx context.Context, frameID, studentID string, at time.Time) (allocationPlan, error) {
	frame, err := s.allocator.claim(ctx, frameID, studentID, at)
	s.allocator.metrics.RecordFrameOperation("claim", resultLabel(err))
	if err != nil {
		return allocationPlan{}, err
	}
	id := frame.ID
	return allocationPlan{pointer: &id, frame: frame, touched: true}, nil
}
