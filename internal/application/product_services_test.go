package application

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/akeemphilbert/mercato/internal/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

func TestUpdateProductCollections_MultiAggregate(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	productID := r.createProduct(t, "tee")
	x := r.createCollection(t, "x")
	y := r.createCollection(t, "y")
	z := r.createCollection(t, "z")

	err := r.services.UpdateProductCollections(ctx, UpdateProductCollections{
		ID: productID, UserID: "u", ExpectedVersion: 0, CollectionIDs: []string{x},
	})
	if err != nil {
		t.Fatalf("Failed to set collections to {x}: %v", err)
	}

	err = r.services.UpdateProductCollections(ctx, UpdateProductCollections{
		ID: productID, UserID: "u", ExpectedVersion: 1, CollectionIDs: []string{y, z},
	})
	if err != nil {
		t.Fatalf("Failed to set collections to {y,z}: %v", err)
	}

	// Product snapshot carries the new membership
	state := r.loadProductState(t, productID)
	if len(state.Collections) != 2 || state.Collections[0] != y || state.Collections[1] != z {
		t.Errorf("Unexpected collections: %v", state.Collections)
	}

	// X's positions lost the product; Y and Z gained it
	xPositions := r.loadPositionsState(t, r.loadCollectionState(t, x).PositionsID)
	if len(xPositions.Items) != 0 {
		t.Errorf("Expected x positions to be empty, got %v", xPositions.Items)
	}
	for _, collectionID := range []string{y, z} {
		positions := r.loadPositionsState(t, r.loadCollectionState(t, collectionID).PositionsID)
		if len(positions.Items) != 1 || positions.Items[0] != productID {
			t.Errorf("Expected %s positions to hold the product, got %v", collectionID, positions.Items)
		}
	}

	// Every touched aggregate wrote matching event and outbox rows
	for _, aggregateID := range []string{
		productID,
		r.loadCollectionState(t, x).PositionsID,
		r.loadCollectionState(t, y).PositionsID,
		r.loadCollectionState(t, z).PositionsID,
	} {
		events := len(r.events(t, aggregateID))
		outbox := len(r.outboxRows(t, aggregateID))
		if events != outbox {
			t.Errorf("Aggregate %s: %d events but %d outbox rows", aggregateID, events, outbox)
		}
	}
}

func TestEventReplayMatchesSnapshot(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "tee")

	err := r.services.UpdateProductOptions(ctx, UpdateProductOptions{
		ID: productID, UserID: "u", ExpectedVersion: 0,
		Options: map[string][]string{"size": {"s", "m"}},
	})
	if err != nil {
		t.Fatalf("Failed to update options: %v", err)
	}
	err = r.services.PublishProduct(ctx, PublishProduct{ID: productID, UserID: "u", ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	// Events form the contiguous version block [0..2] with unique versions,
	// and the last event's new state equals the latest snapshot state.
	events := r.events(t, productID)
	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(events))
	}
	seen := map[int]bool{}
	for i, event := range events {
		if event.Version != i {
			t.Errorf("Event %d: expected version %d, got %d", i, i, event.Version)
		}
		if seen[event.Version] {
			t.Errorf("Duplicate version %d", event.Version)
		}
		seen[event.Version] = true
	}

	var payload struct {
		NewState json.RawMessage `json:"newState"`
	}
	if err := json.Unmarshal([]byte(events[len(events)-1].Payload), &payload); err != nil {
		t.Fatalf("Failed to decode event payload: %v", err)
	}
	var replayed domain.ProductState
	if err := json.Unmarshal(payload.NewState, &replayed); err != nil {
		t.Fatalf("Failed to decode new state: %v", err)
	}

	snapshot := r.loadProductState(t, productID)
	if replayed.Status != snapshot.Status || replayed.Slug != snapshot.Slug || replayed.Title != snapshot.Title {
		t.Errorf("Replayed state diverges from snapshot: %+v vs %+v", replayed, snapshot)
	}
}

func TestCreateVariant_ReservesSKUAndPosition(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "tee")

	err := r.services.CreateVariant(ctx, CreateVariant{
		UserID: "u", ProductID: productID, SKU: "TEE-S", Price: 1900, Inventory: 10,
	})
	if err != nil {
		t.Fatalf("Failed to create variant: %v", err)
	}

	var variantRow infrastructure.EventRecord
	err = r.db.First(&variantRow, "event_name = ?", "variant.created").Error
	if err != nil {
		t.Fatalf("Expected a variant.created event: %v", err)
	}
	variantID := variantRow.AggregateID

	// The SKU aggregate is active for the variant
	skuRecord := r.snapshot(t, "TEE-S")
	if skuRecord.Version != 0 {
		t.Errorf("Expected fresh sku aggregate at version 0, got %d", skuRecord.Version)
	}

	// The product's positions aggregate holds the variant
	positions := r.loadPositionsState(t, r.loadProductState(t, productID).PositionsID)
	if len(positions.Items) != 1 || positions.Items[0] != variantID {
		t.Errorf("Expected variant to be positioned, got %v", positions.Items)
	}

	// A second variant cannot claim the same SKU, and the failure leaves no
	// partial writes behind.
	eventsBefore := countRows(t, r, &infrastructure.EventRecord{})
	err = r.services.CreateVariant(ctx, CreateVariant{
		UserID: "u", ProductID: productID, SKU: "TEE-S", Price: 2100,
	})
	if err == nil {
		t.Fatal("Expected uniqueness conflict on the SKU")
	}
	if got := countRows(t, r, &infrastructure.EventRecord{}); got != eventsBefore {
		t.Errorf("Expected no events from the failed command, got %d new", got-eventsBefore)
	}
}

func countRows(t *testing.T, r *testRuntime, model interface{}) int64 {
	t.Helper()
	var count int64
	if err := r.db.Model(model).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count rows: %v", err)
	}
	return count
}

func TestUpdateVariantSale_SkipVersionCheck(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "tee")

	err := r.services.CreateVariant(ctx, CreateVariant{
		UserID: "u", ProductID: productID, SKU: "TEE-S", Price: 1900,
	})
	if err != nil {
		t.Fatalf("Failed to create variant: %v", err)
	}
	var created infrastructure.EventRecord
	if err := r.db.First(&created, "event_name = ?", "variant.created").Error; err != nil {
		t.Fatalf("Missing variant.created: %v", err)
	}
	variantID := created.AggregateID

	// Interim edit bumps the version past what a scheduled command expects
	err = r.services.UpdateVariantPrice(ctx, UpdateVariantPrice{
		ID: variantID, UserID: "u", ExpectedVersion: 0, Price: 2100,
	})
	if err != nil {
		t.Fatalf("Failed to update price: %v", err)
	}

	price := int64(1500)
	err = r.services.UpdateVariantSale(ctx, UpdateVariantSale{
		ID: variantID, UserID: "scheduler", ExpectedVersion: 0, SkipVersionCheck: true,
		SalePrice: &price,
	})
	if err != nil {
		t.Fatalf("Expected skip-version-check sale update to pass, got %v", err)
	}

	// Without the flag the stale version is rejected
	err = r.services.UpdateVariantSale(ctx, UpdateVariantSale{
		ID: variantID, UserID: "u", ExpectedVersion: 0, SalePrice: &price,
	})
	if err == nil {
		t.Error("Expected concurrency conflict without SkipVersionCheck")
	}
}
