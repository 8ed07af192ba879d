package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/tshopco/tshop/internal/domain"
)

const createFulfillmentRecord = `
INSERT INTO fulfillment_records (
    order_id, provider, provider_order_id, status, provider_status
) VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at
`

// CreateFulfillmentRecord inserts the record written when an order is first
// dispatched to a provider. One record per (order, provider).
func (q *Queries) CreateFulfillmentRecord(ctx context.Context, rec *domain.FulfillmentRecord) error {
	err := q.db.QueryRowContext(ctx, createFulfillmentRecord,
		rec.OrderID, rec.Provider, rec.ProviderOrderID, rec.Status, rec.ProviderStatus,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert fulfillment record: %w", err)
	}
	return nil
}

const selectFulfillmentRecord = `
SELECT id, order_id, provider, provider_order_id, status, provider_status,
       tracking_number, tracking_url, carrier, estimated_delivery,
       created_at, updated_at
FROM fulfillment_records
`

// GetFulfillmentRecordByProviderOrder locates the record a webhook refers to.
func (q *Queries) GetFulfillmentRecordByProviderOrder(ctx context.Context, provider, providerOrderID string) (*domain.FulfillmentRecord, error) {
	row := q.db.QueryRowContext(ctx,
		selectFulfillmentRecord+`WHERE provider = $1 AND provider_order_id = $2`,
		provider, providerOrderID)
	return scanFulfillmentRecord(row)
}

// GetFulfillmentRecordByOrder fetches the record for an order regardless of
// provider. Dispatch uses it as its idempotency check; an order is only ever
// sent to one provider.
func (q *Queries) GetFulfillmentRecordByOrder(ctx context.Context, orderID uuid.UUID) (*domain.FulfillmentRecord, error) {
	row := q.db.QueryRowContext(ctx,
		selectFulfillmentRecord+`WHERE order_id = $1 ORDER BY created_at LIMIT 1`,
		orderID)
	return scanFulfillmentRecord(row)
}

// GetFulfillmentRecordForOrder fetches the record for an (order, provider) pair.
func (q *Queries) GetFulfillmentRecordForOrder(ctx context.Context, orderID uuid.UUID, provider string) (*domain.FulfillmentRecord, error) {
	row := q.db.QueryRowContext(ctx,
		selectFulfillmentRecord+`WHERE order_id = $1 AND provider = $2`,
		orderID, provider)
	return scanFulfillmentRecord(row)
}

// ListFulfillmentRecordsByStatuses returns records in any of the given
// statuses, oldest first. Used by the sync sweep over non-terminal records.
func (q *Queries) ListFulfillmentRecordsByStatuses(ctx context.Context, statuses []string, limit int32) ([]domain.FulfillmentRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		selectFulfillmentRecord+`WHERE status = ANY($1) ORDER BY updated_at ASC LIMIT $2`,
		pq.Array(statuses), limit)
	if err != nil {
		return nil, fmt.Errorf("list fulfillment records: %w", err)
	}
	defer rows.Close()

	var records []domain.FulfillmentRecord
	for rows.Next() {
		rec, err := scanFulfillmentRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

const updateFulfillmentRecordStatus = `
UPDATE fulfillment_records
SET status = $2,
    provider_status = $3,
    tracking_number = $4,
    tracking_url = $5,
    carrier = $6,
    estimated_delivery = $7,
    updated_at = now()
WHERE id = $1 AND status = $8
`

// UpdateFulfillmentRecordStatus applies a transition with a compare-and-set
// on the expected current status, serializing concurrent webhook deliveries
// for the same record. Returns false when the stored status no longer
// matches (the caller re-reads and re-evaluates).
func (q *Queries) UpdateFulfillmentRecordStatus(ctx context.Context, rec *domain.FulfillmentRecord, expected domain.FulfillmentStatus) (bool, error) {
	res, err := q.db.ExecContext(ctx, updateFulfillmentRecordStatus,
		rec.ID, rec.Status, rec.ProviderStatus,
		rec.TrackingNumber, rec.TrackingURL, rec.Carrier,
		touchTime(rec.EstimatedDelivery), expected,
	)
	if err != nil {
		return false, fmt.Errorf("update fulfillment record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanFulfillmentRecord(row rowScanner) (*domain.FulfillmentRecord, error) {
	var (
		rec    domain.FulfillmentRecord
		status string
		eta    sql.NullTime
	)
	err := row.Scan(
		&rec.ID, &rec.OrderID, &rec.Provider, &rec.ProviderOrderID,
		&status, &rec.ProviderStatus, &rec.TrackingNumber, &rec.TrackingURL,
		&rec.Carrier, &eta, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = domain.FulfillmentStatus(status)
	if eta.Valid {
		t := eta.Time
		rec.EstimatedDelivery = &t
	}
	return &rec, nil
}
