package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sqlc-dev/pqtype"
)

const insertWebhookEvent = `
INSERT INTO webhook_events (provider, event_id, event_type, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, event_id) DO NOTHING
`

// InsertWebhookEvent persists a provider event ID for deduplication.
// Returns false when the event was already recorded (duplicate delivery).
func (q *Queries) InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	raw := pqtype.NullRawMessage{}
	if len(payload) > 0 && json.Valid(payload) {
		raw = pqtype.NullRawMessage{RawMessage: payload, Valid: true}
	}

	res, err := q.db.ExecContext(ctx, insertWebhookEvent, provider, eventID, eventType, raw)
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

const countWebhookEvents = `
SELECT count(*) FROM webhook_events WHERE provider = $1
`

// CountWebhookEvents returns how many events a provider has delivered.
// Used in sync status metadata.
func (q *Queries) CountWebhookEvents(ctx context.Context, provider string) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, countWebhookEvents, provider).Scan(&n); err != nil {
		return 0, fmt.Errorf("count webhook events: %w", err)
	}
	return n, nil
}
