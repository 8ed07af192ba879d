// Package service contains the business logic layer.
//
// This file implements the AI usage limiter: per-tier daily and monthly
// ceilings on design generations, enforced with an atomic database
// compare-and-increment so concurrent requests cannot oversubscribe the
// last remaining slot. Guests are tracked by a signed client-held token.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
	"github.com/tshopco/tshop/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService defines quota checks and consumption for design generation.
type UsageService interface {
	// GetUsage returns the subject's current quota status without
	// consuming anything.
	GetUsage(ctx context.Context, subject domain.Subject) (*domain.UsageStatus, error)

	// Consume atomically records one generation if the subject has quota
	// remaining. Returns a QuotaExceededError when either the daily or
	// monthly ceiling is reached.
	Consume(ctx context.Context, subject domain.Subject) (*domain.UsageStatus, error)

	// EnsureGuest resolves a guest subject from a client-held token. An
	// empty or invalid token mints a fresh guest identity; the returned
	// token must be handed back to the client either way.
	EnsureGuest(token string) (domain.Subject, string, error)

	// Refund returns one previously consumed slot, for generations that
	// never reached the backend's billable path. Counters never go below
	// zero, and a refund after the day rolls over is dropped rather than
	// credited against the new window.
	Refund(ctx context.Context, subject domain.Subject) error
}

// usageStore is the slice of the repository the limiter needs.
type usageStore interface {
	GetUsageCounter(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time) (*domain.UsageCounter, error)
	IncrementUsage(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time, dailyLimit, monthlyLimit int) (daily, monthly int, acquired bool, err error)
	DecrementUsage(ctx context.Context, subjectKey string, now time.Time) error
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	store  usageStore
	secret []byte
	now    func() time.Time
	logger *slog.Logger
}

// NewUsageService creates a new UsageService. secret signs guest tokens.
func NewUsageService(queries *repository.Queries, secret string, logger *slog.Logger) UsageService {
	return &usageService{
		store:  queries,
		secret: []byte(secret),
		now:    time.Now,
		logger: logger,
	}
}

// GetUsage returns the subject's current quota status.
func (s *usageService) GetUsage(ctx context.Context, subject domain.Subject) (*domain.UsageStatus, error) {
	const op = "UsageService.GetUsage"

	now := s.now()
	counter, err := s.store.GetUsageCounter(ctx, subject.Key(), subject.Tier, now)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load usage counter")
	}

	// The stored row may predate today; counts reset lazily at read time.
	counter.Rollover(now)
	status := counter.Status(now)
	return &status, nil
}

// Consume records one generation if quota remains.
func (s *usageService) Consume(ctx context.Context, subject domain.Subject) (*domain.UsageStatus, error) {
	const op = "UsageService.Consume"

	now := s.now()
	quota := domain.GetTierQuota(subject.Tier)

	daily, monthly, acquired, err := s.store.IncrementUsage(
		ctx, subject.Key(), subject.Tier, now, quota.DailyLimit, quota.MonthlyLimit)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to record usage")
	}

	if !acquired {
		// Re-read for accurate remaining counts in the error response.
		counter, err := s.store.GetUsageCounter(ctx, subject.Key(), subject.Tier, now)
		if err != nil {
			return nil, domain.Internal(err, op, "Failed to load usage counter")
		}
		counter.Rollover(now)
		status := counter.Status(now)

		s.logger.Info("generation quota exceeded",
			"subject", subject.Key(),
			"tier", subject.Tier,
			"remaining_daily", status.RemainingDaily,
			"remaining_monthly", status.RemainingMonthly,
		)
		return nil, domain.QuotaExceeded(op, subject.Tier, status.RemainingDaily, status.RemainingMonthly, status.ResetsAt)
	}

	counter := domain.UsageCounter{
		SubjectKey:    subject.Key(),
		DailyCount:    daily,
		MonthlyCount:  monthly,
		LastResetDate: now,
		Tier:          subject.Tier,
	}
	status := counter.Status(now)
	return &status, nil
}

// Refund returns one consumed slot to the subject.
func (s *usageService) Refund(ctx context.Context, subject domain.Subject) error {
	const op = "UsageService.Refund"

	if err := s.store.DecrementUsage(ctx, subject.Key(), s.now()); err != nil {
		return domain.Internal(err, op, "Failed to refund usage")
	}
	s.logger.Info("usage refunded", "op", op, "subject", subject.Key(), "tier", subject.Tier)
	return nil
}

// =============================================================================
// Guest Tokens
// =============================================================================

// guestClaims is the JWT payload for anonymous quota tracking. The guest ID
// lives in a private claim; no personal data is carried.
type guestClaims struct {
	GuestID string `json:"gq"`
	jwt.RegisteredClaims
}

// EnsureGuest resolves or mints a guest identity from the client token.
func (s *usageService) EnsureGuest(token string) (domain.Subject, string, error) {
	const op = "UsageService.EnsureGuest"

	if token != "" {
		if id, ok := s.parseGuestToken(token); ok {
			return domain.Subject{GuestID: id, Tier: domain.TierFree}, token, nil
		}
		// Invalid or expired tokens fall through to a fresh identity.
		// Rejecting would lock guests out after rotation of the secret.
	}

	id := uuid.NewString()
	signed, err := s.signGuestToken(id)
	if err != nil {
		return domain.Subject{}, "", domain.Internal(err, op, "Failed to issue guest token")
	}
	return domain.Subject{GuestID: id, Tier: domain.TierFree}, signed, nil
}

func (s *usageService) signGuestToken(guestID string) (string, error) {
	now := s.now()
	claims := guestClaims{
		GuestID: guestID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.AddDate(1, 0, 0)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *usageService) parseGuestToken(token string) (string, bool) {
	var claims guestClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid || claims.GuestID == "" {
		return "", false
	}
	return claims.GuestID, true
}
