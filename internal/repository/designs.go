package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
)

const createDesign = `
INSERT INTO designs (
    id, subject_key, prompt, image_key, image_url,
    thumbnail_key, thumbnail_url, model, cost_cents
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING created_at
`

// CreateDesign inserts a generated design.
func (q *Queries) CreateDesign(ctx context.Context, d *domain.Design) error {
	err := q.db.QueryRowContext(ctx, createDesign,
		d.ID, d.SubjectKey, d.Prompt, d.ImageKey, d.ImageURL,
		d.ThumbnailKey, d.ThumbnailURL, d.Model, d.CostCents,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert design: %w", err)
	}
	return nil
}

const selectDesign = `
SELECT id, subject_key, prompt, image_key, image_url,
       thumbnail_key, thumbnail_url, model, cost_cents, created_at
FROM designs
`

// GetDesign fetches a design by ID. Returns sql.ErrNoRows when absent.
func (q *Queries) GetDesign(ctx context.Context, id uuid.UUID) (*domain.Design, error) {
	return scanDesign(q.db.QueryRowContext(ctx, selectDesign+`WHERE id = $1`, id))
}

// ListDesignsBySubject returns a subject's designs, newest first.
func (q *Queries) ListDesignsBySubject(ctx context.Context, subjectKey string, limit int32) ([]domain.Design, error) {
	rows, err := q.db.QueryContext(ctx,
		selectDesign+`WHERE subject_key = $1 ORDER BY created_at DESC LIMIT $2`,
		subjectKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list designs: %w", err)
	}
	defer rows.Close()

	var designs []domain.Design
	for rows.Next() {
		d, err := scanDesign(rows)
		if err != nil {
			return nil, err
		}
		designs = append(designs, *d)
	}
	return designs, rows.Err()
}

func scanDesign(row rowScanner) (*domain.Design, error) {
	var d domain.Design
	err := row.Scan(
		&d.ID, &d.SubjectKey, &d.Prompt, &d.ImageKey, &d.ImageURL,
		&d.ThumbnailKey, &d.ThumbnailURL, &d.Model, &d.CostCents, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
