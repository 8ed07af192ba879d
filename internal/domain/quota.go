// Package domain contains core business types and interfaces.
//
// This file defines usage quota types for limiting AI design generation by
// subscription tier. Counters reset lazily on day/month rollover at read
// time; nothing schedules resets.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier identifies a subscription tier with distinct generation ceilings.
type Tier string

const (
	TierFree       Tier = "free"
	TierRegistered Tier = "registered"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// IsValid returns true if the tier is a recognized value.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierRegistered, TierPremium, TierEnterprise:
		return true
	}
	return false
}

// TierQuota defines the daily and monthly generation ceilings for a tier.
type TierQuota struct {
	DailyLimit   int
	MonthlyLimit int
}

// TierQuotas maps tiers to their ceilings. Static configuration; guests use
// the free tier.
var TierQuotas = map[Tier]TierQuota{
	TierFree:       {DailyLimit: 2, MonthlyLimit: 10},
	TierRegistered: {DailyLimit: 10, MonthlyLimit: 100},
	TierPremium:    {DailyLimit: 50, MonthlyLimit: 1000},
	TierEnterprise: {DailyLimit: 500, MonthlyLimit: 10000},
}

// GetTierQuota returns the quota for a tier, defaulting to free for
// unknown tiers.
func GetTierQuota(tier Tier) TierQuota {
	if quota, ok := TierQuotas[tier]; ok {
		return quota
	}
	return TierQuotas[TierFree]
}

// =============================================================================
// Usage Counter
// =============================================================================

// Subject identifies who is consuming quota: a registered user or a guest
// session.
type Subject struct {
	UserID  uuid.UUID // Nil for guests
	GuestID string    // Guest session identifier; empty for users
	Tier    Tier
}

// IsGuest returns true for guest subjects.
func (s Subject) IsGuest() bool {
	return s.UserID == uuid.Nil
}

// Key returns the storage key for this subject's counter row.
func (s Subject) Key() string {
	if s.IsGuest() {
		return "guest:" + s.GuestID
	}
	return "user:" + s.UserID.String()
}

// UsageCounter holds a subject's generation counts. Counters are valid
// relative to LastResetDate; Rollover must be applied before comparison.
type UsageCounter struct {
	SubjectKey    string
	DailyCount    int
	MonthlyCount  int
	LastResetDate time.Time
	Tier          Tier
}

// Rollover zeroes the daily count when the stored date's day differs from
// now, and the monthly count as well when the month differs. Returns true
// when anything was reset. All comparisons are in UTC.
func (c *UsageCounter) Rollover(now time.Time) bool {
	now = now.UTC()
	last := c.LastResetDate.UTC()

	sameDay := last.Year() == now.Year() && last.YearDay() == now.YearDay()
	if sameDay {
		return false
	}

	c.DailyCount = 0
	if last.Year() != now.Year() || last.Month() != now.Month() {
		c.MonthlyCount = 0
	}
	c.LastResetDate = now
	return true
}

// UsageStatus is the result of a quota check.
type UsageStatus struct {
	Allowed          bool      `json:"allowed"`
	RemainingDaily   int       `json:"remaining_daily"`
	RemainingMonthly int       `json:"remaining_monthly"`
	Tier             Tier      `json:"tier"`
	ResetsAt         time.Time `json:"resets_at"`
}

// Status evaluates the counter against its tier's ceilings. Remaining
// values are clamped at zero.
func (c *UsageCounter) Status(now time.Time) UsageStatus {
	quota := GetTierQuota(c.Tier)

	remDaily := quota.DailyLimit - c.DailyCount
	if remDaily < 0 {
		remDaily = 0
	}
	remMonthly := quota.MonthlyLimit - c.MonthlyCount
	if remMonthly < 0 {
		remMonthly = 0
	}

	return UsageStatus{
		Allowed:          remDaily > 0 && remMonthly > 0,
		RemainingDaily:   remDaily,
		RemainingMonthly: remMonthly,
		Tier:             c.Tier,
		ResetsAt:         NextDailyReset(now),
	}
}

// NextDailyReset returns the next midnight UTC after now, which is when the
// daily counter lazily resets.
func NextDailyReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}
