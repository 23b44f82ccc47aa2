package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vision-care-api/internal/models"
)

const studentColumns = `id, full_name, school_id, current_phase, allocated_frame_id, version, created_at, updated_at`

// StudentRepository reads and updates the workflow columns of student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by identifier.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`
	var student models.Student
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// LockByID loads a student and holds a row lock until the surrounding transaction ends.
func (r *StudentRepository) LockByID(ctx context.Context, id string) (*models.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 FOR UPDATE`
	var student models.Student
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// UpdateWorkflowParams groups the columns written by a phase transition.
type UpdateWorkflowParams struct {
	ID               string
	Phase            models.Phase
	AllocatedFrameID *string
	ExpectedVersion  int64
	UpdatedAt        time.Time
}

// UpdateWorkflow writes phase and allocation pointer, guarded by the row version.
func (r *StudentRepository) UpdateWorkflow(ctx context.Context, params UpdateWorkflowParams) error {
	const query = `UPDATE students
SET current_phase = $2, allocated_frame_id = $3, version = version + 1, updated_at = $4
WHERE id = $1 AND version = $5`
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		params.ID, params.Phase, params.AllocatedFrameID, params.UpdatedAt, params.ExpectedVersion)
	if err != nil {
		return fmt.Errorf("update student workflow: %w", err)
	}
	return affectedOne(result, "student workflow update")
}

// ClearAllocatedFrame detaches frameID from the student if it is still the one referenced.
func (r *StudentRepository) ClearAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error {
	const query = `UPDATE students
SET allocated_frame_id = NULL, version = version + 1, updated_at = $3
WHERE id = $1 AND allocated_frame_id = $2`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, studentID, frameID, at)
	if err != nil {
		return fmt.Errorf("clear student frame: %w", err)
	}
	return affectedOne(result, "student frame clear")
}

// SetAllocatedFrame points the student at frameID when it currently holds none.
func (r *StudentRepository) SetAllocatedFrame(ctx context.Context, studentID, frameID string, at time.Time) error {
	const query = `UPDATE students
SET allocated_frame_id = $2, version = version + 1, updated_at = $3
WHERE id = $1 AND allocated_frame_id IS NULL`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, studentID, frameID, at)
	if err != nil {
		return fmt.Errorf("set student frame: %w", err)
	}
	return affectedOne(result, "student frame set")
}
