package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tshopco/tshop/internal/domain"
)

func shippedRecord() *domain.FulfillmentRecord {
	return &domain.FulfillmentRecord{
		Provider:        "printful",
		ProviderOrderID: "pf-100",
		Status:          domain.FulfillmentStatusShipped,
		TrackingNumber:  "TRACK-1",
		TrackingURL:     "https://track.example/TRACK-1",
		Carrier:         "USPS",
	}
}

func TestHasNewShipmentData(t *testing.T) {
	eta := time.Date(2026, 9, 8, 0, 0, 0, 0, time.UTC)
	sameETA := eta

	testCases := []struct {
		name  string
		rec   *domain.FulfillmentRecord
		event domain.ProviderEvent
		want  bool
	}{
		{
			name:  "empty event carries nothing",
			rec:   shippedRecord(),
			event: domain.ProviderEvent{},
			want:  false,
		},
		{
			name:  "identical tracking is not new",
			rec:   shippedRecord(),
			event: domain.ProviderEvent{TrackingNumber: "TRACK-1", TrackingURL: "https://track.example/TRACK-1", Carrier: "USPS"},
			want:  false,
		},
		{
			name:  "changed tracking number is new",
			rec:   shippedRecord(),
			event: domain.ProviderEvent{TrackingNumber: "TRACK-2"},
			want:  true,
		},
		{
			name:  "changed carrier is new",
			rec:   shippedRecord(),
			event: domain.ProviderEvent{Carrier: "DHL"},
			want:  true,
		},
		{
			name:  "first delivery estimate is new",
			rec:   shippedRecord(),
			event: domain.ProviderEvent{EstimatedDelivery: &eta},
			want:  true,
		},
		{
			name: "same delivery estimate is not new",
			rec: func() *domain.FulfillmentRecord {
				r := shippedRecord()
				r.EstimatedDelivery = &sameETA
				return r
			}(),
			event: domain.ProviderEvent{EstimatedDelivery: &eta},
			want:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hasNewShipmentData(tc.rec, tc.event); got != tc.want {
				t.Errorf("hasNewShipmentData() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestMergeShipmentData_EmptyFieldsDoNotErase(t *testing.T) {
	rec := shippedRecord()

	// A bare status-change event must not wipe tracking data an earlier
	// shipment event provided.
	mergeShipmentData(rec, domain.ProviderEvent{ProviderStatus: "fulfilled"})

	if rec.TrackingNumber != "TRACK-1" {
		t.Errorf("tracking number erased: %q", rec.TrackingNumber)
	}
	if rec.TrackingURL != "https://track.example/TRACK-1" {
		t.Errorf("tracking url erased: %q", rec.TrackingURL)
	}
	if rec.Carrier != "USPS" {
		t.Errorf("carrier erased: %q", rec.Carrier)
	}
}

func TestMergeShipmentData_NewFieldsOverwrite(t *testing.T) {
	rec := shippedRecord()
	eta := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)

	mergeShipmentData(rec, domain.ProviderEvent{
		TrackingNumber:    "TRACK-2",
		Carrier:           "DHL",
		EstimatedDelivery: &eta,
	})

	if rec.TrackingNumber != "TRACK-2" {
		t.Errorf("expected TRACK-2, got %q", rec.TrackingNumber)
	}
	if rec.Carrier != "DHL" {
		t.Errorf("expected DHL, got %q", rec.Carrier)
	}
	// URL was absent from the event and must survive.
	if rec.TrackingURL != "https://track.example/TRACK-1" {
		t.Errorf("tracking url erased: %q", rec.TrackingURL)
	}
	if rec.EstimatedDelivery == nil || !rec.EstimatedDelivery.Equal(eta) {
		t.Errorf("expected estimate %v, got %v", eta, rec.EstimatedDelivery)
	}
}

// =============================================================================
// Reconciliation Tests
// =============================================================================

// fakeFulfillmentStore serves one record and its order, and records every
// write the reconciler attempts.
type fakeFulfillmentStore struct {
	rec   *domain.FulfillmentRecord
	order *domain.Order

	insertFirst bool
	insertCalls int
	recLoads    int

	// updateOK is consumed one entry per UpdateFulfillmentRecordStatus
	// call, so tests can simulate lost compare-and-set races.
	updateOK     []bool
	recUpdates   []domain.FulfillmentStatus
	orderUpdates []domain.OrderStatus
	trackingSets int
}

func (f *fakeFulfillmentStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o := *f.order
	return &o, nil
}

func (f *fakeFulfillmentStore) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status, expected domain.OrderStatus) (bool, error) {
	f.orderUpdates = append(f.orderUpdates, status)
	return true, nil
}

func (f *fakeFulfillmentStore) UpdateOrderTracking(ctx context.Context, params domain.UpdateOrderShippingParams) error {
	f.trackingSets++
	return nil
}

func (f *fakeFulfillmentStore) CreateFulfillmentRecord(ctx context.Context, rec *domain.FulfillmentRecord) error {
	return errors.New("unexpected CreateFulfillmentRecord call")
}

func (f *fakeFulfillmentStore) GetFulfillmentRecordByOrder(ctx context.Context, orderID uuid.UUID) (*domain.FulfillmentRecord, error) {
	return nil, errors.New("unexpected GetFulfillmentRecordByOrder call")
}

func (f *fakeFulfillmentStore) GetFulfillmentRecordByProviderOrder(ctx context.Context, provider, providerOrderID string) (*domain.FulfillmentRecord, error) {
	f.recLoads++
	c := *f.rec
	return &c, nil
}

func (f *fakeFulfillmentStore) UpdateFulfillmentRecordStatus(ctx context.Context, rec *domain.FulfillmentRecord, expected domain.FulfillmentStatus) (bool, error) {
	f.recUpdates = append(f.recUpdates, rec.Status)
	ok := true
	if len(f.updateOK) > 0 {
		ok = f.updateOK[0]
		f.updateOK = f.updateOK[1:]
	}
	if ok {
		*f.rec = *rec
	}
	return ok, nil
}

func (f *fakeFulfillmentStore) ListFulfillmentRecordsByStatuses(ctx context.Context, statuses []string, limit int32) ([]domain.FulfillmentRecord, error) {
	return nil, errors.New("unexpected ListFulfillmentRecordsByStatuses call")
}

func (f *fakeFulfillmentStore) InsertWebhookEvent(ctx context.Context, provider, eventID, eventType string, payload []byte) (bool, error) {
	f.insertCalls++
	return f.insertFirst, nil
}

func newReconcileFixture(status domain.FulfillmentStatus) (*fakeFulfillmentStore, *fulfillmentService) {
	orderID := uuid.New()
	store := &fakeFulfillmentStore{
		insertFirst: true,
		rec: &domain.FulfillmentRecord{
			ID:              uuid.New(),
			OrderID:         orderID,
			Provider:        "mock",
			ProviderOrderID: "mock-100",
			Status:          status,
		},
		order: &domain.Order{ID: orderID, Status: domain.OrderStatusProcessing},
	}
	svc := &fulfillmentService{queries: store, logger: testLogger()}
	return store, svc
}

func TestApplyProviderEvent_DuplicateEventIsAbsorbed(t *testing.T) {
	store, svc := newReconcileFixture(domain.FulfillmentStatusInProduction)
	store.insertFirst = false // event id already recorded

	err := svc.ApplyProviderEvent(context.Background(), domain.ProviderEvent{
		Provider:        "mock",
		EventID:         "evt-1",
		ProviderOrderID: "mock-100",
		ProviderStatus:  "shipped",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.recLoads != 0 {
		t.Errorf("duplicate event loaded the record %d times", store.recLoads)
	}
	if len(store.recUpdates) != 0 {
		t.Errorf("duplicate event wrote %d updates", len(store.recUpdates))
	}
}

func TestApplyProviderEvent_StaleEventLeavesRecord(t *testing.T) {
	store, svc := newReconcileFixture(domain.FulfillmentStatusShipped)

	// The provider re-delivers an old production update after shipment.
	err := svc.ApplyProviderEvent(context.Background(), domain.ProviderEvent{
		Provider:        "mock",
		EventID:         "evt-2",
		ProviderOrderID: "mock-100",
		ProviderStatus:  "in_production",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.recUpdates) != 0 {
		t.Errorf("stale event wrote %d updates", len(store.recUpdates))
	}
	if store.rec.Status != domain.FulfillmentStatusShipped {
		t.Errorf("record regressed to %s", store.rec.Status)
	}
}

func TestApplyProviderEvent_UnknownStatusIsAcknowledged(t *testing.T) {
	store, svc := newReconcileFixture(domain.FulfillmentStatusInProduction)

	err := svc.ApplyProviderEvent(context.Background(), domain.ProviderEvent{
		Provider:        "mock",
		EventID:         "evt-3",
		ProviderOrderID: "mock-100",
		ProviderStatus:  "quantum-flux",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.recLoads != 0 {
		t.Errorf("unknown status loaded the record %d times", store.recLoads)
	}
}

func TestApplyProviderEvent_AdvancesRecordAndOrder(t *testing.T) {
	store, svc := newReconcileFixture(domain.FulfillmentStatusInProduction)

	err := svc.ApplyProviderEvent(context.Background(), domain.ProviderEvent{
		Provider:        "mock",
		EventID:         "evt-4",
		ProviderOrderID: "mock-100",
		ProviderStatus:  "shipped",
		TrackingNumber:  "TRACK-9",
		Carrier:         "UPS",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.recUpdates) != 1 || store.recUpdates[0] != domain.FulfillmentStatusShipped {
		t.Fatalf("unexpected record updates: %v", store.recUpdates)
	}
	if len(store.orderUpdates) != 1 || store.orderUpdates[0] != domain.OrderStatusShipped {
		t.Errorf("unexpected order updates: %v", store.orderUpdates)
	}
	if store.trackingSets != 1 {
		t.Errorf("expected tracking carried to the order, got %d writes", store.trackingSets)
	}
}

func TestApplyProviderEvent_RetriesLostCompareAndSet(t *testing.T) {
	store, svc := newReconcileFixture(domain.FulfillmentStatusInProduction)
	// First write loses the race, the retry succeeds against a re-read.
	store.updateOK = []bool{false, true}

	err := svc.ApplyProviderEvent(context.Background(), domain.ProviderEvent{
		Provider:        "mock",
		EventID:         "evt-5",
		ProviderOrderID: "mock-100",
		ProviderStatus:  "shipped",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.recLoads != 2 {
		t.Errorf("expected a reload after the lost race, got %d loads", store.recLoads)
	}
	if len(store.recUpdates) != 2 {
		t.Errorf("expected two update attempts, got %d", len(store.recUpdates))
	}
	if store.rec.Status != domain.FulfillmentStatusShipped {
		t.Errorf("record ended at %s", store.rec.Status)
	}
}
