package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEntityEvent_NameAndPayload(t *testing.T) {
	next := json.RawMessage(`{"id":"c1","status":"archived"}`)
	event := NewEntityEvent("collection", "archived", "c1", "corr-1", "u", 1, nil, next)

	if event.EventName() != "collection.archived" {
		t.Errorf("Expected collection.archived, got %s", event.EventName())
	}
	if event.AggregateID() != "c1" || event.CorrelationID() != "corr-1" || event.User() != "u" {
		t.Error("Unexpected event envelope fields")
	}
	if event.Version() != 1 {
		t.Errorf("Expected version 1, got %d", event.Version())
	}
	if string(event.Payload().PriorState) != "{}" {
		t.Errorf("Expected nil prior state to default to empty, got %s", event.Payload().PriorState)
	}
	if string(event.Payload().NewState) != string(next) {
		t.Error("Expected new state to be carried unchanged")
	}
	if event.OccurredAt().IsZero() {
		t.Error("Expected occurredAt to be stamped")
	}
}

func TestSnapshotEnvelope_RoundTrip(t *testing.T) {
	type widgetState struct {
		ID    string `json:"id"`
		Count int    `json:"count"`
	}

	payload, err := MarshalSnapshot("widget", widgetState{ID: "w1", Count: 3})
	if err != nil {
		t.Fatalf("Failed to marshal snapshot: %v", err)
	}

	var envelope SnapshotEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if envelope.SchemaVersion != SnapshotSchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SnapshotSchemaVersion, envelope.SchemaVersion)
	}
	if envelope.Kind != "widget" {
		t.Errorf("Expected kind widget, got %s", envelope.Kind)
	}

	state, err := UnmarshalSnapshot("widget", payload)
	if err != nil {
		t.Fatalf("Failed to unmarshal snapshot: %v", err)
	}
	var decoded widgetState
	if err := json.Unmarshal(state, &decoded); err != nil {
		t.Fatalf("Failed to decode state: %v", err)
	}
	if decoded.ID != "w1" || decoded.Count != 3 {
		t.Errorf("Unexpected state: %+v", decoded)
	}

	if _, err := UnmarshalSnapshot("gadget", payload); err == nil {
		t.Error("Expected kind mismatch to fail")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	conflict := NewConcurrencyError("agg-1", 5, 0)
	if conflict.Error() != `concurrency conflict for aggregate "agg-1": expected version 5, found 0` {
		t.Errorf("Unexpected message: %s", conflict.Error())
	}

	var asConflict ConcurrencyError
	if !errors.As(error(conflict), &asConflict) {
		t.Error("Expected errors.As to match ConcurrencyError")
	}

	uniqueness := NewUniquenessError("Slug", "b")
	if uniqueness.Error() != `Slug "b" is already in use` {
		t.Errorf("Unexpected message: %s", uniqueness.Error())
	}

	cause := errors.New("socket closed")
	transient := NewTransientHandlerError(cause)
	if transient.Permanent {
		t.Error("Expected transient classification")
	}
	if !errors.Is(transient, cause) {
		t.Error("Expected Unwrap to expose the cause")
	}
	permanent := NewPermanentHandlerError(cause)
	if !permanent.Permanent {
		t.Error("Expected permanent classification")
	}

	batcher := NewBatcherError(cause)
	if !errors.Is(batcher, cause) {
		t.Error("Expected BatcherError to unwrap its cause")
	}
}
