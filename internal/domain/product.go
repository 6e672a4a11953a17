package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/segmentio/ksuid"
)

// ProductKind is the snapshot envelope kind tag for products.
const ProductKind = "product"

// Fulfillment kinds a product (and its variants) can declare.
const (
	FulfillmentPhysical            = "physical"
	FulfillmentDigitalDownloadable = "digital_downloadable"
)

// ProductState is the serialized state of a product aggregate.
type ProductState struct {
	ID              string              `json:"id"`
	CorrelationID   string              `json:"correlationId"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	Slug            string              `json:"slug"`
	ProductType     string              `json:"productType"`
	Status          Status              `json:"status"`
	Collections     []string            `json:"collections"`
	Options         map[string][]string `json:"options"`
	PositionsID     string              `json:"positionsId"`
	PublishedAt     *time.Time          `json:"publishedAt,omitempty"`
	ScheduledDropAt *time.Time          `json:"scheduledDropAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Product is the product aggregate. It owns the product's metadata, declared
// option set, collection membership, and publish lifecycle; its variants are
// separate aggregates referencing it by id.
type Product struct {
	root
	state ProductState
}

// NewProductParams are the creation parameters for a product.
type NewProductParams struct {
	CorrelationID string
	UserID        string
	Title         string
	Slug          string
	Description   string
	ProductType   string
}

// NewProduct creates a product in draft with version 0 and a single
// product.created event whose prior state is empty. The id is a fresh
// time-ordered ksuid; the positions aggregate for the product's variant
// ordering shares the product's lifetime and is referenced by id.
func NewProduct(params NewProductParams) (*Product, error) {
	if params.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}
	if params.Slug == "" {
		return nil, domain.NewValidationError("slug", "slug is required")
	}
	productType := params.ProductType
	if productType == "" {
		productType = FulfillmentPhysical
	}

	now := time.Now()
	p := &Product{
		state: ProductState{
			ID:            ksuid.New().String(),
			CorrelationID: params.CorrelationID,
			Title:         params.Title,
			Description:   params.Description,
			Slug:          params.Slug,
			ProductType:   productType,
			Status:        StatusDraft,
			Collections:   []string{},
			Options:       map[string][]string{},
			PositionsID:   ksuid.New().String(),
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return p, p.record("created", params.UserID, domain.EmptyState)
}

// LoadProduct reconstructs a product from its latest snapshot.
func LoadProduct(snapshot domain.Snapshot) (*Product, error) {
	state, err := domain.UnmarshalSnapshot(ProductKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	p := &Product{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &p.state); err != nil {
		return nil, err
	}
	if p.state.Collections == nil {
		p.state.Collections = []string{}
	}
	if p.state.Options == nil {
		p.state.Options = map[string][]string{}
	}
	return p, nil
}

// ID implements domain.Aggregate.
func (p *Product) ID() string { return p.state.ID }

// Kind implements domain.Aggregate.
func (p *Product) Kind() string { return ProductKind }

// CorrelationID implements domain.Aggregate.
func (p *Product) CorrelationID() string { return p.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (p *Product) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(ProductKind, p.state)
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
func (p *Product) State() ProductState {
	return p.state
}

// UpdateMetadata changes title, description and slug. Slug choreography
// (release vs redirect of the old slug) is the calling service's concern.
func (p *Product) UpdateMetadata(userID, title, description, slug string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot update an archived product")
	}
	if title == "" {
		return domain.NewValidationError("title", "title is required")
	}
	if slug == "" {
		return domain.NewValidationError("slug", "slug is required")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Title = title
	p.state.Description = description
	p.state.Slug = slug
	return p.mutate("metadata_updated", userID, prior)
}

// UpdateOptions replaces the product's declared option set. Variant options
// are validated against this set.
func (p *Product) UpdateOptions(userID string, options map[string][]string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot update an archived product")
	}
	for name, values := range options {
		if len(values) == 0 {
			return domain.NewValidationError("options", "option "+name+" must declare at least one value")
		}
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	if options == nil {
		options = map[string][]string{}
	}
	p.state.Options = options
	return p.mutate("options_updated", userID, prior)
}

// ValidateVariantOptions checks a variant's option assignment against the
// product's declared option set.
func (p *Product) ValidateVariantOptions(options map[string]string) error {
	for name, value := range options {
		declared, ok := p.state.Options[name]
		if !ok {
			return domain.NewValidationError("options", "option "+name+" is not declared on the product")
		}
		if !contains(declared, value) {
			return domain.NewValidationError("options", "value "+value+" is not allowed for option "+name)
		}
	}
	for name := range p.state.Options {
		if _, ok := options[name]; !ok {
			return domain.NewValidationError("options", "missing required option "+name)
		}
	}
	return nil
}

// Publish moves a draft product to active and stamps publishedAt.
func (p *Product) Publish(userID string) error {
	switch p.state.Status {
	case StatusDraft:
	case StatusActive:
		return domain.NewInvariantViolationError(p.state.ID, "Cannot publish an active product")
	case StatusArchived:
		return domain.NewInvariantViolationError(p.state.ID, "Cannot publish an archived product")
	default:
		return domain.NewInvariantViolationError(p.state.ID, "Cannot publish a product with a pending drop")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	now := time.Now()
	p.state.Status = StatusActive
	p.state.PublishedAt = &now
	return p.mutate("published", userID, prior)
}

// Unpublish moves an active product back to draft and clears publishedAt.
func (p *Product) Unpublish(userID string) error {
	if p.state.Status != StatusActive {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot unpublish a product that is not active")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Status = StatusDraft
	p.state.PublishedAt = nil
	return p.mutate("unpublished", userID, prior)
}

// Archive retires the product. Archived is terminal.
func (p *Product) Archive(userID string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Product is already archived")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Status = StatusArchived
	p.state.PublishedAt = nil
	return p.mutate("archived", userID, prior)
}

// SetCollections replaces the product's collection membership. Position
// bookkeeping inside each collection is the calling service's concern.
func (p *Product) SetCollections(userID string, collectionIDs []string) error {
	if p.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(p.state.ID, "Cannot update an archived product")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	if collectionIDs == nil {
		collectionIDs = []string{}
	}
	p.state.Collections = collectionIDs
	return p.mutate("collections_updated", userID, prior)
}

// ScheduleVisibleDrop parks a draft product in visible_pending_drop so the
// read side can show the upcoming release.
func (p *Product) ScheduleVisibleDrop(userID string, at time.Time) error {
	return p.scheduleDrop(userID, at, StatusVisiblePendingDrop, "visible_drop_scheduled")
}

// ScheduleHiddenDrop parks a draft product in hidden_pending_drop.
func (p *Product) ScheduleHiddenDrop(userID string, at time.Time) error {
	return p.scheduleDrop(userID, at, StatusHiddenPendingDrop, "hidden_drop_scheduled")
}

func (p *Product) scheduleDrop(userID string, at time.Time, status Status, eventType string) error {
	if p.state.Status != StatusDraft {
		return domain.NewInvariantViolationError(p.state.ID, "Only a draft product can be scheduled for a drop")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Status = status
	p.state.ScheduledDropAt = &at
	return p.mutate(eventType, userID, prior)
}

// CancelDrop returns a pending-drop product to draft, clearing the
// scheduled time. Paired with cancelling the drop's schedule.
func (p *Product) CancelDrop(userID string) error {
	if p.state.Status != StatusVisiblePendingDrop && p.state.Status != StatusHiddenPendingDrop {
		return domain.NewInvariantViolationError(p.state.ID, "Product has no pending drop to cancel")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.state.Status = StatusDraft
	p.state.ScheduledDropAt = nil
	return p.mutate("drop_cancelled", userID, prior)
}

// CompleteDrop releases a pending-drop product: it becomes active and the
// scheduled time is cleared.
func (p *Product) CompleteDrop(userID string) error {
	if p.state.Status != StatusVisiblePendingDrop && p.state.Status != StatusHiddenPendingDrop {
		return domain.NewInvariantViolationError(p.state.ID, "Product has no pending drop to complete")
	}
	prior, err := marshalState(p.state)
	if err != nil {
		return err
	}
	now := time.Now()
	p.state.Status = StatusActive
	p.state.PublishedAt = &now
	p.state.ScheduledDropAt = nil
	return p.mutate("drop_completed", userID, prior)
}

// mutate finalizes a mutation: stamps updatedAt, bumps the version, and
// appends the event.
func (p *Product) mutate(eventType, userID string, prior json.RawMessage) error {
	p.state.UpdatedAt = time.Now()
	p.version++
	return p.record(eventType, userID, prior)
}

func (p *Product) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(p.state)
	if err != nil {
		return err
	}
	p.root.record(domain.NewEntityEvent(ProductKind, eventType, p.state.ID, p.state.CorrelationID, userID, p.version, prior, next))
	return nil
}
