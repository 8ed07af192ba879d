package repository

import (
	"context"
	"fmt"

	"github.com/tshopco/tshop/internal/domain"
)

const createPartner = `
INSERT INTO partners (name, key_prefix, key_hash, webhook_url, webhook_secret, active)
VALUES ($1, $2, $3, $4, $5, true)
RETURNING id, created_at
`

// CreatePartner inserts a new API partner.
func (q *Queries) CreatePartner(ctx context.Context, p *domain.Partner) error {
	err := q.db.QueryRowContext(ctx, createPartner,
		p.Name, p.KeyPrefix, p.KeyHash, p.WebhookURL, p.WebhookSecret,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert partner: %w", err)
	}
	p.Active = true
	return nil
}

const selectPartner = `
SELECT id, name, key_prefix, key_hash, webhook_url, webhook_secret, active, created_at
FROM partners
`

// GetPartnerByKeyPrefix locates a partner by the identifying prefix of its
// API key. Returns sql.ErrNoRows when absent.
func (q *Queries) GetPartnerByKeyPrefix(ctx context.Context, prefix string) (*domain.Partner, error) {
	row := q.db.QueryRowContext(ctx, selectPartner+`WHERE key_prefix = $1`, prefix)
	return scanPartner(row)
}

// ListActivePartners returns partners with webhook delivery enabled.
func (q *Queries) ListActivePartners(ctx context.Context) ([]domain.Partner, error) {
	rows, err := q.db.QueryContext(ctx, selectPartner+`WHERE active AND webhook_url <> '' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	var partners []domain.Partner
	for rows.Next() {
		p, err := scanPartner(rows)
		if err != nil {
			return nil, err
		}
		partners = append(partners, *p)
	}
	return partners, rows.Err()
}

func scanPartner(row rowScanner) (*domain.Partner, error) {
	var p domain.Partner
	err := row.Scan(&p.ID, &p.Name, &p.KeyPrefix, &p.KeyHash,
		&p.WebhookURL, &p.WebhookSecret, &p.Active, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
