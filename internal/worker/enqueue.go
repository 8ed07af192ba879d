package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/repository"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeDispatchOrder   = "dispatch_order"
	JobTypeSyncFulfillment = "sync_fulfillment"
	JobTypeNotifyPartner   = "notify_partner"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// DispatchOrderPayload is the payload for order dispatch jobs.
type DispatchOrderPayload struct {
	OrderID uuid.UUID `json:"order_id"`
}

// SyncFulfillmentPayload is the payload for the fulfillment sync sweep.
type SyncFulfillmentPayload struct {
	Limit int32 `json:"limit"`
}

// NotifyPartnerPayload is the payload for partner notification jobs.
type NotifyPartnerPayload struct {
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status"`
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob is a generic helper for enqueuing jobs with custom options.
func EnqueueJob(
	ctx context.Context,
	queries *repository.Queries,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	// Marshal the payload to JSON
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	// Default parameters
	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	// Apply options
	for _, opt := range opts {
		opt(&params)
	}

	// Enqueue the job
	job, err := queries.EnqueueJob(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueDispatchOrder enqueues a job to dispatch a paid order to a
// fulfillment provider. Called when a checkout completes. High priority:
// the customer has already paid.
func EnqueueDispatchOrder(
	ctx context.Context,
	queries *repository.Queries,
	orderID uuid.UUID,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := DispatchOrderPayload{
		OrderID: orderID,
	}

	defaults := []EnqueueOption{WithPriority(PriorityHigh), WithMaxAttempts(5)}
	return EnqueueJob(ctx, queries, JobTypeDispatchOrder, payload, append(defaults, opts...)...)
}

// EnqueueSyncFulfillment enqueues a sweep over non-terminal fulfillment
// records, polling providers for progress that webhooks missed.
func EnqueueSyncFulfillment(
	ctx context.Context,
	queries *repository.Queries,
	limit int32,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := SyncFulfillmentPayload{
		Limit: limit,
	}

	return EnqueueJob(ctx, queries, JobTypeSyncFulfillment, payload, opts...)
}

// EnqueueNotifyPartner enqueues delivery of an order status change to the
// registered partner webhooks.
func EnqueueNotifyPartner(
	ctx context.Context,
	queries *repository.Queries,
	orderID uuid.UUID,
	status string,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := NotifyPartnerPayload{
		OrderID: orderID,
		Status:  status,
	}

	return EnqueueJob(ctx, queries, JobTypeNotifyPartner, payload, opts...)
}
