package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/vision-care-api/internal/models"
	appErrors "github.com/noah-isme/vision-care-api/pkg/errors"
)

// PhaseHistoryService appends and lists phase history. Entries are never updated or deleted.
type PhaseHistoryService struct {
	history  historyStore
	students studentStore
	limit    int
	logger   *zap.Logger
}

// NewPhaseHistoryService constructs the service. limit caps listings; zero uses the repository default.
func NewPhaseHistoryService(history historyStore, students studentStore, limit int, logger *zap.Logger) *PhaseHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhaseHistoryService{history: history, students: students, limit: limit, logger: logger}
}

// Record appends an entry. Callers pass the ctx of the transaction that changed the phase.
func (s *PhaseHistoryService) Record(ctx context.Context, entry *models.PhaseHistoryEntry) error {
	if entry == nil || entry.StudentID == "" || entry.ActorID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "history entry requires student and actor")
	}
	if !entry.Phase.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidPhase, "history entry has unknown phase")
	}
	if entry.OutcomeStatus == "" {
		entry.OutcomeStatus = models.OutcomePending
	}
	if err := s.history.Insert(ctx, entry); err != nil {
		return storeError(err, nil, "failed to record phase history")
	}
	return nil
}

// ListByStudent returns a student's history, newest first.
func (s *PhaseHistoryService) ListByStudent(ctx context.Context, studentID string) ([]models.PhaseHistoryEntry, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student id is required")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		return nil, storeError(err, appErrors.ErrStudentNotFound, "failed to load student")
	}
	entries, err := s.history.ListByStudent(ctx, studentID, s.limit)
	if err != nil {
		return nil, storeError(err, nil, "failed to list phase history")
	}
	if entries == nil {
		entries = []models.PhaseHistoryEntry{}
	}
	return entries, nil
}
