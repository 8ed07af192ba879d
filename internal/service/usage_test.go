package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tshopco/tshop/internal/domain"
)

// fakeUsageStore serves canned counter rows and records refunds.
type fakeUsageStore struct {
	counter    *domain.UsageCounter
	acquired   bool
	incDaily   int
	incMonthly int
	decrements int
}

func (f *fakeUsageStore) GetUsageCounter(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time) (*domain.UsageCounter, error) {
	c := *f.counter
	return &c, nil
}

func (f *fakeUsageStore) IncrementUsage(ctx context.Context, subjectKey string, tier domain.Tier, now time.Time, dailyLimit, monthlyLimit int) (int, int, bool, error) {
	return f.incDaily, f.incMonthly, f.acquired, nil
}

func (f *fakeUsageStore) DecrementUsage(ctx context.Context, subjectKey string, now time.Time) error {
	f.decrements++
	return nil
}

func usageServiceAt(store usageStore, now time.Time) *usageService {
	return &usageService{
		store:  store,
		secret: []byte("test-secret"),
		now:    func() time.Time { return now },
		logger: testLogger(),
	}
}

func TestGetUsage_StaleDailyWindowResets(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeUsageStore{counter: &domain.UsageCounter{
		SubjectKey:    "guest:g1",
		DailyCount:    2,
		MonthlyCount:  2,
		LastResetDate: now.Add(-48 * time.Hour),
		Tier:          domain.TierFree,
	}}
	svc := usageServiceAt(store, now)

	status, err := svc.GetUsage(context.Background(), domain.Subject{GuestID: "g1", Tier: domain.TierFree})
	require.NoError(t, err)

	// The stored row is from two days ago: the daily count no longer
	// applies, the monthly count still does.
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.RemainingDaily)
	assert.Equal(t, 8, status.RemainingMonthly)
}

func TestGetUsage_StaleMonthResetsBothCounters(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeUsageStore{counter: &domain.UsageCounter{
		SubjectKey:    "guest:g1",
		DailyCount:    2,
		MonthlyCount:  10,
		LastResetDate: time.Date(2026, 4, 30, 23, 0, 0, 0, time.UTC),
		Tier:          domain.TierFree,
	}}
	svc := usageServiceAt(store, now)

	status, err := svc.GetUsage(context.Background(), domain.Subject{GuestID: "g1", Tier: domain.TierFree})
	require.NoError(t, err)
	assert.True(t, status.Allowed)
	assert.Equal(t, 2, status.RemainingDaily)
	assert.Equal(t, 10, status.RemainingMonthly)
}

func TestConsume_ExceededReportsRolledOverCounts(t *testing.T) {
	// The monthly ceiling is hit but the stored day is yesterday: the
	// error body must show the daily slots the rollover freed up.
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeUsageStore{
		acquired: false,
		counter: &domain.UsageCounter{
			SubjectKey:    "guest:g1",
			DailyCount:    2,
			MonthlyCount:  10,
			LastResetDate: time.Date(2026, 6, 14, 12, 0, 0, 0, time.UTC),
			Tier:          domain.TierFree,
		},
	}
	svc := usageServiceAt(store, now)

	_, err := svc.Consume(context.Background(), domain.Subject{GuestID: "g1", Tier: domain.TierFree})
	var qe *domain.QuotaExceededError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, 2, qe.RemainingDaily)
	assert.Equal(t, 0, qe.RemainingMonthly)
}

func TestRefund_DecrementsCounter(t *testing.T) {
	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
	store := &fakeUsageStore{counter: &domain.UsageCounter{}}
	svc := usageServiceAt(store, now)

	err := svc.Refund(context.Background(), domain.Subject{GuestID: "g1", Tier: domain.TierFree})
	require.NoError(t, err)
	assert.Equal(t, 1, store.decrements)
}

func TestEnsureGuest_MintsIdentity(t *testing.T) {
	svc := NewUsageService(nil, "test-secret", testLogger())

	subject, token, err := svc.EnsureGuest("")
	require.NoError(t, err)
	assert.NotEmpty(t, subject.GuestID)
	assert.NotEmpty(t, token)
	assert.Equal(t, domain.TierFree, subject.Tier)
}

func TestEnsureGuest_TokenRoundTrip(t *testing.T) {
	svc := NewUsageService(nil, "test-secret", testLogger())

	first, token, err := svc.EnsureGuest("")
	require.NoError(t, err)

	// Presenting the issued token resolves the same identity and returns
	// the token unchanged.
	second, echoed, err := svc.EnsureGuest(token)
	require.NoError(t, err)
	assert.Equal(t, first.GuestID, second.GuestID)
	assert.Equal(t, token, echoed)
}

func TestEnsureGuest_InvalidTokenMintsFresh(t *testing.T) {
	svc := NewUsageService(nil, "test-secret", testLogger())

	subject, token, err := svc.EnsureGuest("not-a-jwt")
	require.NoError(t, err)
	assert.NotEmpty(t, subject.GuestID)
	assert.NotEqual(t, "not-a-jwt", token)
}

func TestEnsureGuest_WrongSecretMintsFresh(t *testing.T) {
	issuer := NewUsageService(nil, "secret-one", testLogger())
	verifier := NewUsageService(nil, "secret-two", testLogger())

	original, token, err := issuer.EnsureGuest("")
	require.NoError(t, err)

	subject, fresh, err := verifier.EnsureGuest(token)
	require.NoError(t, err)
	assert.NotEqual(t, original.GuestID, subject.GuestID)
	assert.NotEqual(t, token, fresh)
}

func TestEnsureGuest_ExpiredTokenMintsFresh(t *testing.T) {
	// Tokens expire after a year. Issue one backdated two years so its
	// expiry is already in the past.
	issuer := &usageService{
		secret: []byte("test-secret"),
		now:    func() time.Time { return time.Now().AddDate(-2, 0, 0) },
		logger: testLogger(),
	}
	original, token, err := issuer.EnsureGuest("")
	require.NoError(t, err)

	verifier := NewUsageService(nil, "test-secret", testLogger())
	subject, fresh, err := verifier.EnsureGuest(token)
	require.NoError(t, err)
	assert.NotEqual(t, original.GuestID, subject.GuestID)
	assert.NotEqual(t, token, fresh)
}
