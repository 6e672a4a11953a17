package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/segmentio/ksuid"
)

// VariantKind is the snapshot envelope kind tag for variants.
const VariantKind = "variant"

// VariantState is the serialized state of a variant aggregate. Prices are in
// minor currency units.
type VariantState struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlationId"`
	ProductID     string            `json:"productId"`
	SKU           string            `json:"sku"`
	Price         int64             `json:"price"`
	SalePrice     *int64            `json:"salePrice,omitempty"`
	SaleStartsAt  *time.Time        `json:"saleStartsAt,omitempty"`
	SaleEndsAt    *time.Time        `json:"saleEndsAt,omitempty"`
	Inventory     int               `json:"inventory"`
	Fulfillment   string            `json:"fulfillment"`
	Options       map[string]string `json:"options"`
	Status        Status            `json:"status"`
	PublishedAt   *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Variant is the purchasable unit of a product. It references its product by
// id; SKU uniqueness is owned by the sku aggregate, not the variant.
type Variant struct {
	root
	state VariantState
}

// NewVariantParams are the creation parameters for a variant.
type NewVariantParams struct {
	CorrelationID string
	UserID        string
	ProductID     string
	SKU           string
	Price         int64
	Inventory     int
	Fulfillment   string
	Options       map[string]string
}

// NewVariant creates a variant in draft with version 0 and a single
// variant.created event.
func NewVariant(params NewVariantParams) (*Variant, error) {
	if params.ProductID == "" {
		return nil, domain.NewValidationError("productId", "product id is required")
	}
	if params.Price < 0 {
		return nil, domain.NewValidationError("price", "price must not be negative")
	}
	fulfillment := params.Fulfillment
	if fulfillment == "" {
		fulfillment = FulfillmentPhysical
	}
	options := params.Options
	if options == nil {
		options = map[string]string{}
	}

	now := time.Now()
	v := &Variant{
		state: VariantState{
			ID:            ksuid.New().String(),
			CorrelationID: params.CorrelationID,
			ProductID:     params.ProductID,
			SKU:           params.SKU,
			Price:         params.Price,
			Inventory:     params.Inventory,
			Fulfillment:   fulfillment,
			Options:       options,
			Status:        StatusDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return v, v.record("created", params.UserID, domain.EmptyState)
}

// LoadVariant reconstructs a variant from its latest snapshot.
func LoadVariant(snapshot domain.Snapshot) (*Variant, error) {
	state, err := domain.UnmarshalSnapshot(VariantKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	v := &Variant{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &v.state); err != nil {
		return nil, err
	}
	if v.state.Options == nil {
		v.state.Options = map[string]string{}
	}
	return v, nil
}

// ID implements domain.Aggregate.
func (v *Variant) ID() string { return v.state.ID }

// Kind implements domain.Aggregate.
func (v *Variant) Kind() string { return VariantKind }

// CorrelationID implements domain.Aggregate.
func (v *Variant) CorrelationID() string { return v.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (v *Variant) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(VariantKind, v.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   v.state.ID,
		CorrelationID: v.state.CorrelationID,
		Version:       v.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (v *Variant) State() VariantState {
	return v.state
}

// UpdateSKU changes the variant's SKU. SKU ownership transfer (release of
// the old sku aggregate, activation of the new) is the calling service's
// concern.
func (v *Variant) UpdateSKU(userID, sku string) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot update an archived variant")
	}
	if sku == "" {
		return domain.NewValidationError("sku", "sku is required")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.state.SKU = sku
	return v.mutate("sku_updated", userID, prior)
}

// UpdatePrice changes the base price.
func (v *Variant) UpdatePrice(userID string, price int64) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot update an archived variant")
	}
	if price < 0 {
		return domain.NewValidationError("price", "price must not be negative")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.state.Price = price
	return v.mutate("price_updated", userID, prior)
}

// UpdateSale sets or clears the sale window. A nil salePrice clears the sale.
func (v *Variant) UpdateSale(userID string, salePrice *int64, startsAt, endsAt *time.Time) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot update an archived variant")
	}
	if salePrice != nil {
		if *salePrice < 0 {
			return domain.NewValidationError("salePrice", "sale price must not be negative")
		}
		if startsAt != nil && endsAt != nil && !endsAt.After(*startsAt) {
			return domain.NewInvariantViolationError(v.state.ID, "End date must be after start date")
		}
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	if salePrice == nil {
		v.state.SalePrice = nil
		v.state.SaleStartsAt = nil
		v.state.SaleEndsAt = nil
	} else {
		v.state.SalePrice = salePrice
		v.state.SaleStartsAt = startsAt
		v.state.SaleEndsAt = endsAt
	}
	return v.mutate("sale_updated", userID, prior)
}

// UpdateInventory sets the on-hand quantity.
func (v *Variant) UpdateInventory(userID string, inventory int) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot update an archived variant")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.state.Inventory = inventory
	return v.mutate("inventory_updated", userID, prior)
}

// UpdateOptions replaces the variant's option assignment. Validation against
// the product's declared option set is the calling service's concern (the
// product aggregate is loaded in the same unit of work).
func (v *Variant) UpdateOptions(userID string, options map[string]string) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot update an archived variant")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	if options == nil {
		options = map[string]string{}
	}
	v.state.Options = options
	return v.mutate("options_updated", userID, prior)
}

// Publish moves a draft variant to active. The publish guard: a variant with
// no SKU, a negative price, or (for physical fulfillment) negative inventory
// cannot go live.
func (v *Variant) Publish(userID string) error {
	switch v.state.Status {
	case StatusDraft:
	case StatusActive:
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish an active variant")
	case StatusArchived:
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish an archived variant")
	default:
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish a variant with a pending drop")
	}
	if v.state.SKU == "" {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish a variant without a SKU")
	}
	if v.state.Price < 0 {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish a variant with a negative price")
	}
	if v.state.Fulfillment == FulfillmentPhysical && v.state.Inventory < 0 {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot publish a physical variant with negative inventory")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	now := time.Now()
	v.state.Status = StatusActive
	v.state.PublishedAt = &now
	return v.mutate("published", userID, prior)
}

// Unpublish moves an active variant back to draft.
func (v *Variant) Unpublish(userID string) error {
	if v.state.Status != StatusActive {
		return domain.NewInvariantViolationError(v.state.ID, "Cannot unpublish a variant that is not active")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.state.Status = StatusDraft
	v.state.PublishedAt = nil
	return v.mutate("unpublished", userID, prior)
}

// Archive retires the variant. Archived is terminal.
func (v *Variant) Archive(userID string) error {
	if v.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(v.state.ID, "Variant is already archived")
	}
	prior, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.state.Status = StatusArchived
	v.state.PublishedAt = nil
	return v.mutate("archived", userID, prior)
}

func (v *Variant) mutate(eventType, userID string, prior json.RawMessage) error {
	v.state.UpdatedAt = time.Now()
	v.version++
	return v.record(eventType, userID, prior)
}

func (v *Variant) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(v.state)
	if err != nil {
		return err
	}
	v.root.record(domain.NewEntityEvent(VariantKind, eventType, v.state.ID, v.state.CorrelationID, userID, v.version, prior, next))
	return nil
}
