package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/vision-care-api/internal/models"
)

// FrameSizeRepository reads the size catalog.
type FrameSizeRepository struct {
	db *sqlx.DB
}

// NewFrameSizeRepository constructs the repository.
func NewFrameSizeRepository(db *sqlx.DB) *FrameSizeRepository {
	return &FrameSizeRepository{db: db}
}

// Exists reports whether the catalog holds the given size.
func (r *FrameSizeRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := sqlx.GetContext(ctx, executor(ctx, r.db), &exists, `SELECT 1 FROM frame_sizes WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check frame size: %w", err)
	}
	return true, nil
}

// List returns the catalog ordered by label.
func (r *FrameSizeRepository) List(ctx context.Context) ([]models.FrameSize, error) {
	var sizes []models.FrameSize
	if err := sqlx.SelectContext(ctx, executor(ctx, r.db), &sizes, `SELECT id, label, created_at FROM frame_sizes ORDER BY label ASC`); err != nil {
		return nil, fmt.Errorf("list frame sizes: %w", err)
	}
	return sizes, nil
}
