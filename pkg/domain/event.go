// Package domain provides the core domain layer types for the event-sourced
// catalog runtime: domain events, aggregates, snapshots, the repository
// contracts the unit of work hands out, and the closed error taxonomy.
//
// The domain layer is kept pure with no external dependencies beyond the
// standard library, following clean architecture principles.
package domain

import (
	"encoding/json"
	"time"
)

// EmptyState is the prior state carried by creation events. Aggregates did
// not exist before their creation event, so the prior snapshot is an empty
// JSON object rather than null.
var EmptyState = json.RawMessage(`{}`)

// EventPayload carries the full post-mutation snapshot of the aggregate state
// together with the snapshot immediately before the mutation. Shipping both
// states (rather than a delta) lets projections stay stateless and lets the
// outbox deliver a complete, self-describing message to external consumers.
type EventPayload struct {
	PriorState json.RawMessage `json:"priorState"`
	NewState   json.RawMessage `json:"newState"`
}

// Event represents a domain event: an immutable fact about a state transition
// inside one aggregate. Events are appended to the event log, applied to
// read-model projections, and shipped through the outbox.
//
// Event names are lowercase dotted strings of the form
// "<entity>.<past-tense-verb>" (e.g. "product.published",
// "collection.metadata_updated") and are stable across versions.
type Event interface {
	// EventName returns the stable dotted identifier for this event type.
	EventName() string

	// AggregateID returns the id of the aggregate that produced this event.
	AggregateID() string

	// CorrelationID returns the identifier shared by all events produced in
	// response to one externally triggered command chain.
	CorrelationID() string

	// Version returns the aggregate version after the mutation that produced
	// this event. Creation events carry version 0.
	Version() int

	// User returns the id of the user on whose behalf the command ran.
	User() string

	// OccurredAt returns the business time of the mutation.
	OccurredAt() time.Time

	// Payload returns the prior and new aggregate state.
	Payload() EventPayload
}

// EntityEvent is the concrete Event implementation used by every aggregate in
// the catalog. The EventName is the concatenation of EntityType and Type in
// the format "entitytype.eventtype" (e.g. "slug.reserved").
type EntityEvent struct {
	EntityType    string       `json:"entityType"`
	Type          string       `json:"type"`
	AggregateId   string       `json:"aggregateId"`
	CorrelationId string       `json:"correlationId"`
	SequenceNo    int          `json:"version"`
	UserId        string       `json:"userId"`
	OccurredTime  time.Time    `json:"occurredAt"`
	Data          EventPayload `json:"payload"`
}

// NewEntityEvent creates a new EntityEvent. The version parameter is the
// aggregate version after the mutation; prior and next are the serialized
// aggregate states around it.
func NewEntityEvent(entityType, eventType, aggregateID, correlationID, userID string, version int, prior, next json.RawMessage) *EntityEvent {
	if len(prior) == 0 {
		prior = EmptyState
	}
	return &EntityEvent{
		EntityType:    entityType,
		Type:          eventType,
		AggregateId:   aggregateID,
		CorrelationId: correlationID,
		SequenceNo:    version,
		UserId:        userID,
		OccurredTime:  time.Now(),
		Data:          EventPayload{PriorState: prior, NewState: next},
	}
}

// EventName returns the full event name as "entitytype.eventtype".
func (e *EntityEvent) EventName() string {
	return e.EntityType + "." + e.Type
}

// AggregateID returns the id of the aggregate that produced this event.
func (e *EntityEvent) AggregateID() string {
	return e.AggregateId
}

// CorrelationID returns the correlation id of the producing command chain.
func (e *EntityEvent) CorrelationID() string {
	return e.CorrelationId
}

// Version returns the aggregate version after the mutation.
func (e *EntityEvent) Version() int {
	return e.SequenceNo
}

// User returns the user id associated with this event.
func (e *EntityEvent) User() string {
	return e.UserId
}

// OccurredAt returns when the mutation happened.
func (e *EntityEvent) OccurredAt() time.Time {
	return e.OccurredTime
}

// Payload returns the prior and new aggregate state.
func (e *EntityEvent) Payload() EventPayload {
	return e.Data
}
