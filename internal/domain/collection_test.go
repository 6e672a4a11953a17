package domain

import (
	"encoding/json"
	"testing"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

func newTestCollection(t *testing.T) *Collection {
	t.Helper()
	collection, err := NewCollection(NewCollectionParams{
		CorrelationID: "corr-1",
		UserID:        "u",
		Title:         "Summer",
		Slug:          "summer",
	})
	if err != nil {
		t.Fatalf("Failed to create collection: %v", err)
	}
	return collection
}

func TestCollection_ArchiveFromDraft(t *testing.T) {
	collection := newTestCollection(t)

	if err := collection.Archive("u"); err != nil {
		t.Fatalf("Failed to archive draft collection: %v", err)
	}
	if collection.Version() != 1 {
		t.Errorf("Expected version 1, got %d", collection.Version())
	}
	if collection.State().Status != StatusArchived {
		t.Errorf("Expected archived, got %s", collection.State().Status)
	}

	events := collection.UncommittedEvents()
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[1].EventName() != "collection.archived" {
		t.Errorf("Expected collection.archived, got %s", events[1].EventName())
	}
	if events[1].Version() != 1 {
		t.Errorf("Expected event version 1, got %d", events[1].Version())
	}
}

func TestCollection_SnapshotRoundTrip(t *testing.T) {
	collection := newTestCollection(t)
	err := collection.UpdateMetadata("u", "Summer 24", "The drop", "summer-24", []CollectionImage{{ID: "img-1", URL: "https://cdn/x.jpg"}})
	if err != nil {
		t.Fatalf("Failed to update metadata: %v", err)
	}

	snapshot, err := collection.ToSnapshot()
	if err != nil {
		t.Fatalf("Failed to snapshot: %v", err)
	}
	loaded, err := LoadCollection(snapshot)
	if err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	reloaded, err := loaded.ToSnapshot()
	if err != nil {
		t.Fatalf("Failed to re-snapshot: %v", err)
	}
	if string(reloaded.Payload) != string(snapshot.Payload) {
		t.Error("Expected snapshot round-trip to be the identity")
	}
}

func TestLoadCollection_UpcastsLegacyImageURLs(t *testing.T) {
	// A snapshot written before the image collection existed: a bare
	// imageUrls list in the state blob.
	legacy := map[string]interface{}{
		"id":            "col-1",
		"correlationId": "corr-1",
		"title":         "Old",
		"slug":          "old",
		"status":        "draft",
		"positionsId":   "pos-1",
		"imageUrls":     []string{"https://cdn/a.jpg", "https://cdn/b.jpg"},
	}
	state, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("Failed to marshal legacy state: %v", err)
	}
	payload, err := json.Marshal(domain.SnapshotEnvelope{
		SchemaVersion: domain.SnapshotSchemaVersion,
		Kind:          CollectionKind,
		State:         state,
	})
	if err != nil {
		t.Fatalf("Failed to marshal envelope: %v", err)
	}

	collection, err := LoadCollection(domain.Snapshot{
		AggregateID:   "col-1",
		CorrelationID: "corr-1",
		Version:       3,
		Payload:       payload,
	})
	if err != nil {
		t.Fatalf("Failed to load legacy snapshot: %v", err)
	}

	images := collection.State().Images
	if len(images) != 2 {
		t.Fatalf("Expected 2 upcast images, got %d", len(images))
	}
	if images[0].ID != "legacy-1" || images[0].URL != "https://cdn/a.jpg" {
		t.Errorf("Unexpected first image: %+v", images[0])
	}
	if images[1].ID != "legacy-2" {
		t.Errorf("Unexpected second image id: %s", images[1].ID)
	}
	if collection.Version() != 3 {
		t.Errorf("Expected version 3, got %d", collection.Version())
	}
}

func TestLoadCollection_RejectsWrongKind(t *testing.T) {
	payload, err := domain.MarshalSnapshot(ProductKind, ProductState{ID: "p1"})
	if err != nil {
		t.Fatalf("Failed to marshal: %v", err)
	}
	if _, err := LoadCollection(domain.Snapshot{AggregateID: "p1", Payload: payload}); err == nil {
		t.Error("Expected error loading a product snapshot as a collection")
	}
}
