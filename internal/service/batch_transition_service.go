package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/vision-care-api/internal/dto"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

const defaultBatchMaxSize = 200

type transitionApplier interface {
	ApplyTransition(ctx context.Context, cmd dto.TransitionCommand) (*dto.TransitionResult, error)
}

// BatchTransitionService applies the same target phase to many students. Every student is
// its own transaction; one failure never rolls back another student's success.
type BatchTransitionService struct {
	transitions transitionApplier
	metrics     *MetricsService
	logger      *zap.Logger
	maxSize     int
	concurrency int
}

// NewBatchTransitionService constructs the batch coordinator. concurrency <= 1 processes
// students sequentially in input order.
func NewBatchTransitionService(transitions transitionApplier, metrics *MetricsService, logger *zap.Logger, maxSize, concurrency int) *BatchTransitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = defaultBatchMaxSize
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchTransitionService{
		transitions: transitions,
		metrics:     metrics,
		logger:      logger,
		maxSize:     maxSize,
		concurrency: concurrency,
	}
}

// ApplyBatch validates the request as a whole, then transitions each student and reports
// per-student results in input order.
func (s *BatchTransitionService) ApplyBatch(ctx context.Context, cmd dto.BatchTransitionCommand) (*dto.BatchTransitionResult, error) {
	ids, err := s.validate(cmd)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveBatchSize(len(ids))

	results := make([]dto.BatchItemResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, studentID := range ids {
		g.Go(func() error {
			results[i] = s.applyOne(ctx, cmd, studentID)
			return nil
		})
	}
	_ = g.Wait()

	summary := dto.BatchSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	s.logger.Info("batch transition finished",
		zap.String("target_phase", string(cmd.TargetPhase)),
		zap.String("actor_id", cmd.ActorID),
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed))

	return &dto.BatchTransitionResult{Results: results, Summary: summary}, nil
}

func (s *BatchTransitionService) validate(cmd dto.BatchTransitionCommand) ([]string, error) {
	if len(cmd.StudentIDs) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one student is required")
	}
	if len(cmd.StudentIDs) > s.maxSize {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("batch exceeds the maximum of %d students", s.maxSize))
	}
	if !cmd.TargetPhase.Valid() {
		return nil, appErrors.Clone(appErrors.ErrInvalidPhase, fmt.Sprintf("unknown phase %q", cmd.TargetPhase))
	}
	if strings.TrimSpace(cmd.ActorID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "actor id is required")
	}
	if cmd.OutcomeStatus != "" && !cmd.OutcomeStatus.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown outcome status %q", cmd.OutcomeStatus))
	}

	ids := make([]string, len(cmd.StudentIDs))
	seen := make(map[string]struct{}, len(cmd.StudentIDs))
	for i, raw := range cmd.StudentIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student id at position %d is empty", i))
		}
		if _, dup := seen[id]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("student %s appears more than once", id))
		}
		seen[id] = struct{}{}
		ids[i] = id
	}
	return ids, nil
}

func (s *BatchTransitionService) applyOne(ctx context.Context, cmd dto.BatchTransitionCommand, studentID string) dto.BatchItemResult {
	single := dto.TransitionCommand{
		StudentID:     studentID,
		TargetPhase:   cmd.TargetPhase,
		ActorID:       cmd.ActorID,
		Note:          cmd.Note,
		OutcomeStatus: cmd.OutcomeStatus,
	}
	if frameID, ok := cmd.FrameSelectionPlan[studentID]; ok && strings.TrimSpace(frameID) != "" {
		single.FrameID = &frameID
	}

	res, err := s.transitions.ApplyTransition(ctx, single)
	if err != nil {
		appErr := appErrors.FromError(err)
		return dto.BatchItemResult{
			StudentID: studentID,
			ErrorCode: appErr.Code,
			Message:   appErr.Message,
		}
	}
	return dto.BatchItemResult{
		StudentID: studentID,
		Success:   true,
		Student:   res.Student,
		Entry:     res.Entry,
	}
}
