package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

func newTestProduct(t *testing.T) *Product {
	t.Helper()
	product, err := NewProduct(NewProductParams{
		CorrelationID: "corr-1",
		UserID:        "u",
		Title:         "Tee",
		Slug:          "tee",
		Description:   "A tee",
		ProductType:   FulfillmentPhysical,
	})
	if err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return product
}

func TestNewProduct_CreationEvent(t *testing.T) {
	product := newTestProduct(t)

	if product.Version() != 0 {
		t.Errorf("Expected version 0 on creation, got %d", product.Version())
	}
	if product.State().Status != StatusDraft {
		t.Errorf("Expected draft status, got %s", product.State().Status)
	}

	events := product.UncommittedEvents()
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].EventName() != "product.created" {
		t.Errorf("Expected product.created, got %s", events[0].EventName())
	}
	if events[0].Version() != 0 {
		t.Errorf("Expected creation event version 0, got %d", events[0].Version())
	}
	if string(events[0].Payload().PriorState) != "{}" {
		t.Errorf("Expected empty prior state, got %s", events[0].Payload().PriorState)
	}
}

func TestProduct_PublishLifecycle(t *testing.T) {
	product := newTestProduct(t)

	if err := product.Publish("u"); err != nil {
		t.Fatalf("Failed to publish draft product: %v", err)
	}
	if product.Version() != 1 {
		t.Errorf("Expected version 1 after publish, got %d", product.Version())
	}
	if product.State().Status != StatusActive {
		t.Errorf("Expected active status, got %s", product.State().Status)
	}
	if product.State().PublishedAt == nil {
		t.Error("Expected publishedAt to be set")
	}

	// Publishing an active product fails
	if err := product.Publish("u"); err == nil {
		t.Error("Expected error publishing an active product")
	}

	if err := product.Unpublish("u"); err != nil {
		t.Fatalf("Failed to unpublish: %v", err)
	}
	if product.State().PublishedAt != nil {
		t.Error("Expected publishedAt to be cleared on unpublish")
	}

	if err := product.Archive("u"); err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}

	// Archived is terminal
	if err := product.Publish("u"); err == nil {
		t.Error("Expected error publishing an archived product")
	}
	if err := product.Unpublish("u"); err == nil {
		t.Error("Expected error unpublishing an archived product")
	}
	if err := product.Archive("u"); err == nil {
		t.Error("Expected error archiving an archived product")
	}

	var invariant domain.InvariantViolationError
	if err := product.Archive("u"); !errors.As(err, &invariant) {
		t.Errorf("Expected InvariantViolationError, got %T", err)
	}
}

func TestProduct_EventsCarryPriorAndNewState(t *testing.T) {
	product := newTestProduct(t)
	if err := product.Publish("u"); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	events := product.UncommittedEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	published := events[1]
	if published.Version() != 1 {
		t.Errorf("Expected event version 1, got %d", published.Version())
	}

	var prior, next ProductState
	if err := unmarshalJSON(published.Payload().PriorState, &prior); err != nil {
		t.Fatalf("Failed to decode prior state: %v", err)
	}
	if err := unmarshalJSON(published.Payload().NewState, &next); err != nil {
		t.Fatalf("Failed to decode new state: %v", err)
	}
	if prior.Status != StatusDraft {
		t.Errorf("Expected prior status draft, got %s", prior.Status)
	}
	if next.Status != StatusActive {
		t.Errorf("Expected new status active, got %s", next.Status)
	}
}

func TestProduct_SnapshotRoundTrip(t *testing.T) {
	product := newTestProduct(t)
	if err := product.UpdateOptions("u", map[string][]string{"size": {"s", "m"}}); err != nil {
		t.Fatalf("Failed to update options: %v", err)
	}

	snapshot, err := product.ToSnapshot()
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	if snapshot.Version != 1 {
		t.Errorf("Expected snapshot version 1, got %d", snapshot.Version)
	}

	loaded, err := LoadProduct(snapshot)
	if err != nil {
		t.Fatalf("Failed to load product from snapshot: %v", err)
	}
	if loaded.Version() != product.Version() {
		t.Errorf("Expected version %d, got %d", product.Version(), loaded.Version())
	}

	reloaded, err := loaded.ToSnapshot()
	if err != nil {
		t.Fatalf("Failed to re-snapshot: %v", err)
	}
	if string(reloaded.Payload) != string(snapshot.Payload) {
		t.Error("Expected snapshot round-trip to be the identity")
	}
	if len(loaded.UncommittedEvents()) != 0 {
		t.Error("Expected no uncommitted events after load")
	}
}

func TestProduct_ValidateVariantOptions(t *testing.T) {
	product := newTestProduct(t)
	if err := product.UpdateOptions("u", map[string][]string{"size": {"s", "m"}, "color": {"red"}}); err != nil {
		t.Fatalf("Failed to update options: %v", err)
	}

	if err := product.ValidateVariantOptions(map[string]string{"size": "s", "color": "red"}); err != nil {
		t.Errorf("Expected valid options to pass, got %v", err)
	}

	var validation domain.ValidationError
	err := product.ValidateVariantOptions(map[string]string{"size": "s", "color": "red", "fit": "slim"})
	if !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for undeclared option, got %v", err)
	}
	err = product.ValidateVariantOptions(map[string]string{"size": "xl", "color": "red"})
	if !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for non-whitelisted value, got %v", err)
	}
	err = product.ValidateVariantOptions(map[string]string{"size": "s"})
	if !errors.As(err, &validation) {
		t.Errorf("Expected ValidationError for missing required option, got %v", err)
	}
}

func TestProduct_DropScheduling(t *testing.T) {
	product := newTestProduct(t)
	at := time.Now().Add(24 * time.Hour)

	if err := product.ScheduleVisibleDrop("u", at); err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}
	if product.State().Status != StatusVisiblePendingDrop {
		t.Errorf("Expected visible_pending_drop, got %s", product.State().Status)
	}

	// Publishing while pending a drop fails
	if err := product.Publish("u"); err == nil {
		t.Error("Expected error publishing a pending-drop product")
	}

	if err := product.CompleteDrop("u"); err != nil {
		t.Fatalf("Failed to complete drop: %v", err)
	}
	if product.State().Status != StatusActive {
		t.Errorf("Expected active after drop completion, got %s", product.State().Status)
	}
	if product.State().ScheduledDropAt != nil {
		t.Error("Expected scheduledDropAt to be cleared")
	}
}

func TestProduct_CancelDrop(t *testing.T) {
	product := newTestProduct(t)
	if err := product.ScheduleHiddenDrop("u", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}
	if err := product.CancelDrop("u"); err != nil {
		t.Fatalf("Failed to cancel drop: %v", err)
	}
	if product.State().Status != StatusDraft {
		t.Errorf("Expected draft after cancel, got %s", product.State().Status)
	}
	if err := product.CancelDrop("u"); err == nil {
		t.Error("Expected error cancelling with no pending drop")
	}
}
