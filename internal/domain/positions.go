package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

// PositionsKind is the snapshot envelope kind tag for positions aggregates.
const PositionsKind = "positions"

// Owner kinds for a positions aggregate: a collection orders its products, a
// product orders its variants.
const (
	PositionsOwnerCollection = "collection"
	PositionsOwnerProduct    = "product"
)

// PositionsState is the serialized state of a positions aggregate: an
// ordered sequence of member ids owned by one collection or product.
type PositionsState struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	OwnerID       string    `json:"ownerId"`
	OwnerType     string    `json:"ownerType"`
	Items         []string  `json:"items"`
	Status        Status    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Positions is the ordering aggregate. The owning aggregate references it by
// id; it cannot outlive its owner.
type Positions struct {
	root
	state PositionsState
}

// NewPositions creates an empty positions aggregate for an owner. The id is
// assigned by the owner at its own creation so the reference is stable.
func NewPositions(id, correlationID, userID, ownerID, ownerType string) (*Positions, error) {
	if id == "" {
		return nil, domain.NewValidationError("id", "positions id is required")
	}
	if ownerID == "" {
		return nil, domain.NewValidationError("ownerId", "owner id is required")
	}

	now := time.Now()
	p := &Positions{
		state: PositionsState{
			ID:            id,
			CorrelationID: correlationID,
			OwnerID:       ownerID,
			OwnerType:     ownerType,
			Items:         []string{},
			Status:        StatusActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return p, p.record("created", userID, domain.EmptyState)
}

// LoadPositions reconstructs a positions aggregate from its latest snapshot.
func LoadPositions(snapshot domain.Snapshot) (*Positions, error) {
	state, err := domain.UnmarshalSnapshot(PositionsKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	p := &Positions{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &p.state); err != nil {
		return nil, err
	}
	if p.state.Items == nil {
		p.state.Items = []string{}
	}
	return p, nil
}

// ID implements domain.Aggregate.
func (p *Positions) ID() string { return p.state.ID }

// Kind implements domain.Aggregate.
func (p *Positions) Kind() string { return PositionsKind }

// CorrelationID implements domain.Aggregate.
func (p *Positions) CorrelationID() string { return p.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (p *Positions) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(PositionsKind, p.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   p.state.ID,
		CorrelationID: p.state.CorrelationID,
		Version:       p.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (p *Positions) State() PositionsState {
	return p.state
}

// Contains reports whether an id is currently in the sequence.
func (p *Positions) Contains(id string) bool {
	return contains(p.state.Items, id)
}

// Add appends an id to the end of the sequence.
func (p *Positions) Add(userID, id string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot modify archived positions")
	}
	if contains(p.state.Items, id) {
		return domain.NewInvariantViolationError(p.state.ID, "Item is already positioned")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Items = append(p.state.Items, id)
	return p.mutate("item_added", userID, prior)
}

// Remove deletes an id from the sequence, preserving the order of the rest.
func (p *Positions) Remove(userID, id string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot modify archived positions")
	}
	if !contains(p.state.Items, id) {
		return domain.NewInvariantViolationError(p.state.ID, "Item is not positioned")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	items := make([]string, 0, len(p.state.Items)-1)
	for _, item := range p.state.Items {
		if item != id {
			items = append(items, item)
		}
	}
	p.state.Items = items
	return p.mutate("item_removed", userID, prior)
}

// Reorder replaces the sequence with a permutation of itself. The id
// multiset must be unchanged.
func (p *Positions) Reorder(userID string, ids []string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot modify archived positions")
	}
	if !sameMultiset(p.state.Items, ids) {
		return domain.NewInvariantViolationError(p.state.ID, "Reordered ids must match the existing ids")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Items = append([]string{}, ids...)
	return p.mutate("reordered", userID, prior)
}

// Archive retires the positions aggregate together with its owner.
func (p *Positions) Archive(userID string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Positions are already archived")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Status = StatusArchived
	return p.mutate("archived", userID, prior)
}

func (p *Positions) mutate(eventType, userID string, prior json.RawMessage) error {
	p.state.UpdatedAt = time.Now()
	p.version++
	return p.record(eventType, userID, prior)
}

func (p *Positions) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.root.record(domain.NewEntityEvent(PositionsKind, eventType, p.state.ID, p.state.CorrelationID, userID, p.version, prior, next))
	return nil
}
