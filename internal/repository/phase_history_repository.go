package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vision-care-api/internal/models"
)

// PhaseHistoryRepository is the append-only store of phase transitions.
type PhaseHistoryRepository struct {
	db *sqlx.DB
}

// NewPhaseHistoryRepository constructs the repository.
func NewPhaseHistoryRepository(db *sqlx.DB) *PhaseHistoryRepository {
	return &PhaseHistoryRepository{db: db}
}

// Insert appends an entry and fills its generated sequence number.
func (r *PhaseHistoryRepository) Insert(ctx context.Context, entry *models.PhaseHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	if entry.OutcomeStatus == "" {
		entry.OutcomeStatus = models.OutcomePending
	}
	const query = `INSERT INTO phase_history (id, student_id, from_phase, phase, actor_id, note, outcome_status, recorded_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING seq`
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &entry.Seq, query,
		entry.ID, entry.StudentID, entry.FromPhase, entry.Phase, entry.ActorID, entry.Note, entry.OutcomeStatus, entry.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert phase history: %w", err)
	}
	return nil
}

// ListByStudent returns the newest entries first.
func (r *PhaseHistoryRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]models.PhaseHistoryEntry, error) {
	if limit <= 0 {
		limit = 500
	}
	const query = `SELECT id, seq, student_id, from_phase, phase, actor_id, note, outcome_status, recorded_at
FROM phase_history
WHERE student_id = $1
ORDER BY recorded_at DESC, seq DESC
LIMIT $2`
	var entries []models.PhaseHistoryEntry
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &entries, query, studentID, limit); err != nil {
		return nil, fmt.Errorf("list phase history: %w", err)
	}
	return entries, nil
}
