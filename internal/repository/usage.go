package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tshopco/tshop/internal/domain"
)

const getUsageCounter = `
SELECT subject_key, daily_count, monthly_count, last_reset_date, tier
FROM usage_counters
WHERE subject_key = $1
`

// GetUsageCounter fetches a subject's counter row. A missing row comes back
// as a fresh zeroed counter, not an error.
func (q *Queries) GetUsageCounter(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time) (*domain.UsageCounter, error) {
	var (
		c          domain.UsageCounter
		tierColumn string
	)
	err := q.db.QueryRowContext(ctx, getUsageCounter, subjectKey).Scan(
		&c.SubjectKey, &c.DailyCount, &c.MonthlyCount, &c.LastResetDate, &tierColumn,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &domain.UsageCounter{
			SubjectKey:    subjectKey,
			LastResetDate: now,
			Tier:          tier,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get usage counter: %w", err)
	}
	c.Tier = domain.Tier(tierColumn)
	return &c, nil
}

// Atomic compare-and-increment. The CASE expressions fold the lazy
// day/month rollover into the same statement, and the DO UPDATE ... WHERE
// guard refuses the increment when either rolled-over count has reached its
// ceiling. Two concurrent generations cannot both pass a single remaining
// slot.
const incrementUsage = `
INSERT INTO usage_counters AS uc
    (subject_key, daily_count, monthly_count, last_reset_date, tier, updated_at)
VALUES ($1, 1, 1, $2, $3, now())
ON CONFLICT (subject_key) DO UPDATE SET
    daily_count = CASE
        WHEN (uc.last_reset_date AT TIME ZONE 'UTC')::date = ($2 AT TIME ZONE 'UTC')::date
        THEN uc.daily_count + 1 ELSE 1 END,
    monthly_count = CASE
        WHEN date_trunc('month', uc.last_reset_date AT TIME ZONE 'UTC') = date_trunc('month', $2 AT TIME ZONE 'UTC')
        THEN uc.monthly_count + 1 ELSE 1 END,
    last_reset_date = $2,
    tier = $3,
    updated_at = now()
WHERE (CASE
        WHEN (uc.last_reset_date AT TIME ZONE 'UTC')::date = ($2 AT TIME ZONE 'UTC')::date
        THEN uc.daily_count ELSE 0 END) < $4
  AND (CASE
        WHEN date_trunc('month', uc.last_reset_date AT TIME ZONE 'UTC') = date_trunc('month', $2 AT TIME ZONE 'UTC')
        THEN uc.monthly_count ELSE 0 END) < $5
RETURNING daily_count, monthly_count
`

// IncrementUsage records one generation for the subject if quota remains.
// Returns the post-increment counts and true on success, or false when the
// subject is at either ceiling.
func (q *Queries) IncrementUsage(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time, dailyLimit, monthlyLimit int) (daily, monthly int, acquired bool, err error) {
	err = q.db.QueryRowContext(ctx, incrementUsage,
		subjectKey, now.UTC(), tier, dailyLimit, monthlyLimit,
	).Scan(&daily, &monthly)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("increment usage: %w", err)
	}
	return daily, monthly, true, nil
}

// The WHERE guard restricts refunds to the day the slot was consumed in;
// after rollover the decrement would otherwise credit the new window.
const decrementUsage = `
UPDATE usage_counters SET
    daily_count = GREATEST(daily_count - 1, 0),
    monthly_count = GREATEST(monthly_count - 1, 0),
    updated_at = now()
WHERE subject_key = $1
  AND (last_reset_date AT TIME ZONE 'UTC')::date = ($2 AT TIME ZONE 'UTC')::date
`

// DecrementUsage returns one consumed generation to the subject. A missing
// row or a rolled-over window is a no-op, never an error.
func (q *Queries) DecrementUsage(ctx context.Context, subjectKey string, now time.Time) error {
	if _, err := q.db.ExecContext(ctx, decrementUsage, subjectKey, now.UTC()); err != nil {
		return fmt.Errorf("decrement usage: %w", err)
	}
	return nil
}
