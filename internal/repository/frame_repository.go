package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vision-care-api/internal/models"
)

const frameColumns = `id, serial_number, type, size_id, status, allocated_student_id, created_at, updated_at`

// FrameRepository persists frame inventory. Status changes go through conditional
// updates only; there is no unconditional status setter.
type FrameRepository struct {
	db *sqlx.DB
}

// NewFrameRepository constructs the repository.
func NewFrameRepository(db *sqlx.DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// Create inserts a new frame in the AVAILABLE state.
func (r *FrameRepository) Create(ctx context.Context, frame *models.Frame) error {
	if frame.ID == "" {
		frame.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if frame.CreatedAt.IsZero() {
		frame.CreatedAt = now
	}
	frame.UpdatedAt = frame.CreatedAt
	frame.Status = models.FrameStatusAvailable
	frame.AllocatedStudentID = nil
	const query = `INSERT INTO frames (id, serial_number, type, size_id, status, allocated_student_id, created_at, updated_at)
VALUES (:id, :serial_number, :type, :size_id, :status, :allocated_student_id, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, executor(ctx, r.db), query, frame); err != nil {
		return fmt.Errorf("create frame: %w", err)
	}
	return nil
}

// FindByID returns a frame by identifier.
func (r *FrameRepository) FindByID(ctx context.Context, id string) (*models.Frame, error) {
	query := `SELECT ` + frameColumns + ` FROM frames WHERE id = $1`
	var frame models.Frame
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &frame, query, id); err != nil {
		return nil, err
	}
	return &frame, nil
}

// LockByID loads a frame holding a row lock for the rest of the transaction.
func (r *FrameRepository) LockByID(ctx context.Context, id string) (*models.Frame, error) {
	query := `SELECT ` + frameColumns + ` FROM frames WHERE id = $1 FOR UPDATE`
	var frame models.Frame
	if err := sqlx.GetContext(ctx, executor(ctx, r.db), &frame, query, id); err != nil {
		return nil, err
	}
	return &frame, nil
}

// List returns frames matching the filter ordered by serial number, plus the total count.
func (r *FrameRepository) List(ctx context.Context, filter models.FrameFilter) ([]models.Frame, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.GeneralSize {
		conditions = append(conditions, "size_id IS NULL")
	} else if filter.SizeID != "" {
		args = append(args, filter.SizeID)
		conditions = append(conditions, fmt.Sprintf("size_id = $%d", len(args)))
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM frames%s ORDER BY serial_number ASC LIMIT %d OFFSET %d`, frameColumns, clause, size, offset)

	q := executor(ctx, r.db)
	var frames []models.Frame
	if err := sqlx.SelectContext(ctx, q, &frames, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list frames: %w", err)
	}

	var total int
	if err := sqlx.GetContext(ctx, q, &total, "SELECT COUNT(*) FROM frames"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count frames: %w", err)
	}
	return frames, total, nil
}

// Claim moves an AVAILABLE frame to ALLOCATED for studentID. It returns sql.ErrNoRows
// when the frame is missing or was not AVAILABLE at write time.
func (r *FrameRepository) Claim(ctx context.Context, frameID, studentID string, at time.Time) error {
	const query = `UPDATE frames
SET status = $3, allocated_student_id = $2, updated_at = $4
WHERE id = $1 AND status = $5`
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		frameID, studentID, models.FrameStatusAllocated, at, models.FrameStatusAvailable)
	if err != nil {
		return fmt.Errorf("claim frame: %w", err)
	}
	return affectedOne(result, "frame claim")
}

// Release returns a frame ALLOCATED to studentID back to AVAILABLE. It returns
// sql.ErrNoRows when the frame is not held by that student.
func (r *FrameRepository) Release(ctx context.Context, frameID, studentID string, at time.Time) error {
	const query = `UPDATE frames
SET status = $3, allocated_student_id = NULL, updated_at = $4
WHERE id = $1 AND status = $5 AND allocated_student_id = $2`
	result, err := executor(ctx, r.db).ExecContext(ctx, query,
		frameID, studentID, models.FrameStatusAvailable, at, models.FrameStatusAllocated)
	if err != nil {
		return fmt.Errorf("release frame: %w", err)
	}
	return affectedOne(result, "frame release")
}

// UpdateStatusParams describes an administrative compare-and-set status change.
type UpdateStatusParams struct {
	ID                string
	From              models.FrameStatus
	To                models.FrameStatus
	ExpectedStudentID *string // holder observed alongside From; nil means unallocated
	At                time.Time
}

// UpdateStatus moves the frame from params.From to params.To and clears any student
// back-reference. It returns sql.ErrNoRows when the frame is no longer in params.From
// or is held by someone other than params.ExpectedStudentID.
func (r *FrameRepository) UpdateStatus(ctx context.Context, params UpdateStatusParams) error {
	if params.To == models.FrameStatusAllocated {
		return fmt.Errorf("update frame status: use Claim to allocate")
	}
	const query = `UPDATE frames
SET status = $3, allocated_student_id = NULL, updated_at = $4
WHERE id = $1 AND status = $2 AND allocated_student_id IS NOT DISTINCT FROM $5`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, params.ID, params.From, params.To, params.At, params.ExpectedStudentID)
	if err != nil {
		return fmt.Errorf("update frame status: %w", err)
	}
	return affectedOne(result, "frame status update")
}

// UpdateSize assigns a catalog size (nil = general size).
func (r *FrameRepository) UpdateSize(ctx context.Context, id string, sizeID *string, at time.Time) error {
	const query = `UPDATE frames SET size_id = $2, updated_at = $3 WHERE id = $1`
	result, err := executor(ctx, r.db).ExecContext(ctx, query, id, sizeID, at)
	if err != nil {
		return fmt.Errorf("update frame size: %w", err)
	}
	return affectedOne(result, "frame size update")
}
