package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

// SKUKind is the snapshot envelope kind tag for SKUs.
const SKUKind = "sku"

// SKUStatus is the SKU state machine: available → active(variant) → released.
type SKUStatus string

const (
	SKUAvailable SKUStatus = "available"
	SKUActive    SKUStatus = "active"
	SKUReleased  SKUStatus = "released"
)

// SKUState is the serialized state of a SKU aggregate. The aggregate id is
// the SKU string itself.
type SKUState struct {
	SKU           string    `json:"sku"`
	CorrelationID string    `json:"correlationId"`
	Status        SKUStatus `json:"status"`
	VariantID     string    `json:"variantId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// SKU is the SKU ownership aggregate: at most one variant holds a SKU string
// at a time.
type SKU struct {
	root
	state SKUState
}

// NewSKU creates a SKU active for the given variant. The creation event is
// sku.activated at version 0 with an empty prior state.
func NewSKU(sku, correlationID, userID, variantID string) (*SKU, error) {
	if sku == "" {
		return nil, domain.NewValidationError("sku", "sku is required")
	}
	if variantID == "" {
		return nil, domain.NewValidationError("variantId", "variant id is required")
	}

	now := time.Now()
	s := &SKU{
		state: SKUState{
			SKU:           sku,
			CorrelationID: correlationID,
			Status:        SKUActive,
			VariantID:     variantID,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return s, s.record("activated", userID, domain.EmptyState)
}

// LoadSKU reconstructs a SKU from its latest snapshot.
func LoadSKU(snapshot domain.Snapshot) (*SKU, error) {
	state, err := domain.UnmarshalSnapshot(SKUKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	s := &SKU{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &s.state); err != nil {
		return nil, err
	}
	return s, nil
}

// ID implements domain.Aggregate. The id is the SKU string.
func (s *SKU) ID() string { return s.state.SKU }

// Kind implements domain.Aggregate.
func (s *SKU) Kind() string { return SKUKind }

// CorrelationID implements domain.Aggregate.
func (s *SKU) CorrelationID() string { return s.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (s *SKU) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(SKUKind, s.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   s.state.SKU,
		CorrelationID: s.state.CorrelationID,
		Version:       s.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (s *SKU) State() SKUState {
	return s.state
}

// Activate takes ownership of the SKU for a variant. It fails with a
// uniqueness conflict while another variant holds it.
func (s *SKU) Activate(userID, variantID string) error {
	if s.state.Status == SKUActive {
		if s.state.VariantID == variantID {
			return nil // already held by this variant
		}
		return domain.NewUniquenessError("SKU", s.state.SKU)
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SKUActive
	s.state.VariantID = variantID
	return s.mutate("activated", userID, prior)
}

// Release ends the variant's ownership of the SKU.
func (s *SKU) Release(userID string) error {
	if s.state.Status != SKUActive {
		return domain.NewInvariantViolationError(s.state.SKU, "Cannot release a SKU that is not active")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SKUReleased
	return s.mutate("released", userID, prior)
}

func (s *SKU) mutate(eventType, userID string, prior json.RawMessage) error {
	s.state.UpdatedAt = time.Now()
	s.version++
	return s.record(eventType, userID, prior)
}

func (s *SKU) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.root.record(domain.NewEntityEvent(SKUKind, eventType, s.state.SKU, s.state.CorrelationID, userID, s.version, prior, next))
	return nil
}
