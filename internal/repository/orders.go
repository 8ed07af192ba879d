package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
)

const createOrder = `
INSERT INTO orders (
    user_id, status, currency, subtotal_cents, shipping_cents, tax_cents,
    total_cents, strategy, shipping_to, items
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at, updated_at
`

// CreateOrder inserts a new order in pending status.
func (q *Queries) CreateOrder(ctx context.Context, params domain.CreateOrderParams) (*domain.Order, error) {
	shippingJSON, err := json.Marshal(params.ShippingTo)
	if err != nil {
		return nil, fmt.Errorf("marshal shipping address: %w", err)
	}
	itemsJSON, err := json.Marshal(params.Items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}

	total := params.SubtotalCents + params.ShippingCents + params.TaxCents
	order := &domain.Order{
		UserID:        params.UserID,
		Status:        domain.OrderStatusPending,
		Currency:      params.Currency,
		SubtotalCents: params.SubtotalCents,
		ShippingCents: params.ShippingCents,
		TaxCents:      params.TaxCents,
		TotalCents:    total,
		Strategy:      params.Strategy,
		ShippingTo:    params.ShippingTo,
		Items:         params.Items,
	}

	err = q.db.QueryRowContext(ctx, createOrder,
		params.UserID, domain.OrderStatusPending, params.Currency,
		params.SubtotalCents, params.ShippingCents, params.TaxCents,
		total, params.Strategy, shippingJSON, itemsJSON,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return order, nil
}

const getOrder = `
SELECT id, user_id, status, currency, subtotal_cents, shipping_cents,
       tax_cents, total_cents, strategy, stripe_session, shipping_to, items,
       tracking_number, tracking_url, created_at, updated_at
FROM orders
WHERE id = $1
`

// GetOrder fetches an order by ID. Returns sql.ErrNoRows when absent.
func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return q.scanOrder(q.db.QueryRowContext(ctx, getOrder, id))
}

const getOrderByStripeSession = `
SELECT id, user_id, status, currency, subtotal_cents, shipping_cents,
       tax_cents, total_cents, strategy, stripe_session, shipping_to, items,
       tracking_number, tracking_url, created_at, updated_at
FROM orders
WHERE stripe_session = $1
`

// GetOrderByStripeSession fetches the order tied to a Stripe Checkout session.
func (q *Queries) GetOrderByStripeSession(ctx context.Context, sessionID string) (*domain.Order, error) {
	return q.scanOrder(q.db.QueryRowContext(ctx, getOrderByStripeSession, sessionID))
}

const updateOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1 AND status = $3
`

// UpdateOrderStatus moves an order to a new status with a compare-and-set
// on the expected current status. Returns false when the row was not in the
// expected status (a concurrent update won).
func (q *Queries) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, expected domain.OrderStatus) (bool, error) {
	res, err := q.db.ExecContext(ctx, updateOrderStatus, id, status, expected)
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const updateOrderStripeSession = `
UPDATE orders
SET stripe_session = $2, updated_at = now()
WHERE id = $1
`

// UpdateOrderStripeSession records the Checkout session created for an order.
func (q *Queries) UpdateOrderStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	_, err := q.db.ExecContext(ctx, updateOrderStripeSession, id, sessionID)
	if err != nil {
		return fmt.Errorf("update order stripe session: %w", err)
	}
	return nil
}

const updateOrderTracking = `
UPDATE orders
SET tracking_number = $2, tracking_url = $3, updated_at = now()
WHERE id = $1
`

// UpdateOrderTracking stores tracking fields on the order for display.
func (q *Queries) UpdateOrderTracking(ctx context.Context, params domain.UpdateOrderShippingParams) error {
	_, err := q.db.ExecContext(ctx, updateOrderTracking, params.ID, params.TrackingNumber, params.TrackingURL)
	if err != nil {
		return fmt.Errorf("update order tracking: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (q *Queries) scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		o            domain.Order
		status       string
		strategy     string
		shippingJSON []byte
		itemsJSON    []byte
	)
	err := row.Scan(
		&o.ID, &o.UserID, &status, &o.Currency, &o.SubtotalCents,
		&o.ShippingCents, &o.TaxCents, &o.TotalCents, &strategy,
		&o.StripeSession, &shippingJSON, &itemsJSON,
		&o.TrackingNumber, &o.TrackingURL, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.Strategy = domain.Strategy(strategy)
	if err := json.Unmarshal(shippingJSON, &o.ShippingTo); err != nil {
		return nil, fmt.Errorf("unmarshal shipping address: %w", err)
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal items: %w", err)
	}
	return &o, nil
}

// touchTime is a helper for nullable timestamps.
func touchTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
