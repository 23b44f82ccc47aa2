package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/models"
	"github.com/noah-isme/vision-care-api/internal/repository"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

// txRunner executes fn as one unit of work; repositories called with the ctx passed to fn
// take part in it.
type txRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type studentStore interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	LockByID(ctx context.Context, id string) (*models.Student, error)
	UpdateWorkflow(ctx context.Context, params repository.UpdateWorkflowParams) error
	ClearAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error
	SetAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error
}

type frameStore interface {
	Create(ctx context.Context, frame *models.Frame) error
	FindByID(ctx context.Context, id string) (*models.Frame, error)
	LockByID(ctx context.Context, id string) (*models.Frame, error)
	List(ctx context.Context, filter models.FrameFilter) ([]models.Frame, int, error)
	Claim(ctx context.Context, frameID, studentID string, at time.Time) error
	Release(ctx context.Context, frameID, studentID string, at time.Time) error
	UpdateStatus(ctx context.Context, params repository.UpdateStatusParams) error
	UpdateSize(ctx context.Context, id string, sizeID *string, at time.Time) error
}

type sizeCatalog interface {
	Exists(ctx context.Context, id string) (bool, error)
}

type historyStore interface {
	Insert(ctx context.Context, entry *models.PhaseHistoryEntry) error
	ListByStudent(ctx context.Context, studentID string, limit int) ([]models.PhaseHistoryEntry, error)
}

// storeError maps persistence failures onto workflow errors. sql.ErrNoRows becomes notFound.
func storeError(err error, notFound *appErrors.Error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if notFound != nil && errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	if repository.IsConcurrencyFailure(err) {
		return appErrors.Wrap(err, appErrors.ErrConcurrentModification.Code, appErrors.ErrConcurrentModification.Status, "concurrent update detected, retry the request")
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "request cancelled before commit")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// resultLabel turns an operation outcome into a bounded metric label.
func resultLabel(err error) string {
	if err == nil {
		return resultOK
	}
	return appErrors.FromError(err).Code
}

// logWorkflowError logs consistency and internal failures at error level and conflicts at info.
func logWorkflowError(logger *zap.Logger, msg string, err error, fields ...zap.Field) {
	appErr := appErrors.FromError(err)
	fields = append(fields, zap.String("code", appErr.Code), zap.Error(err))
	switch appErrors.CategoryOf(err) {
	case appErrors.CategoryConsistency, appErrors.CategoryInternal:
		logger.Error(msg, fields...)
	case appErrors.CategoryConflict:
		logger.Info(msg, fields...)
	default:
		logger.Debug(msg, fields...)
	}
}
