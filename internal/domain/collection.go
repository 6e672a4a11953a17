package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/segmentio/ksuid"
)

// CollectionKind is the snapshot envelope kind tag for collections.
const CollectionKind = "collection"

// CollectionImage is one image in a collection's image set.
type CollectionImage struct {
	ID  string `json:"id"`
	URL string `json:"url"`
	Alt string `json:"alt,omitempty"`
}

// CollectionState is the serialized state of a collection aggregate.
type CollectionState struct {
	ID            string            `json:"id"`
	CorrelationID string            `json:"correlationId"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Slug          string            `json:"slug"`
	Status        Status            `json:"status"`
	Images        []CollectionImage `json:"images"`
	PositionsID   string            `json:"positionsId"`
	PublishedAt   *time.Time        `json:"publishedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// collectionStatePayload tolerates the legacy snapshot shape that stored a
// bare imageUrls list instead of the image collection.
type collectionStatePayload struct {
	CollectionState
	LegacyImageURLs []string `json:"imageUrls,omitempty"`
}

// Collection is the collection aggregate. It owns title, description, slug
// and images; the ordering of its products lives in a positions aggregate it
// references by id and which cannot outlive it.
type Collection struct {
	root
	state CollectionState
}

// NewCollectionParams are the creation parameters for a collection.
type NewCollectionParams struct {
	CorrelationID string
	UserID        string
	Title         string
	Slug          string
	Description   string
	Images        []CollectionImage
}

// NewCollection creates a collection in draft with version 0 and a single
// collection.created event.
func NewCollection(params NewCollectionParams) (*Collection, error) {
	if params.Title == "" {
		return nil, domain.NewValidationError("title", "title is required")
	}
	if params.Slug == "" {
		return nil, domain.NewValidationError("slug", "slug is required")
	}
	images := params.Images
	if images == nil {
		images = []CollectionImage{}
	}

	now := time.Now()
	c := &Collection{
		state: CollectionState{
			ID:            ksuid.New().String(),
			CorrelationID: params.CorrelationID,
			Title:         params.Title,
			Description:   params.Description,
			Slug:          params.Slug,
			Status:        StatusDraft,
			Images:        images,
			PositionsID:   ksuid.New().String(),
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return c, c.record("created", params.UserID, domain.EmptyState)
}

// LoadCollection reconstructs a collection from its latest snapshot. Legacy
// payloads that carry a singular imageUrls list are upcast into the current
// image-collection form with synthetic legacy ids.
func LoadCollection(snapshot domain.Snapshot) (*Collection, error) {
	state, err := domain.UnmarshalSnapshot(CollectionKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	var payload collectionStatePayload
	if err := json.Unmarshal(state, &payload); err != nil {
		return nil, err
	}
	if len(payload.Images) == 0 && len(payload.LegacyImageURLs) > 0 {
		payload.Images = make([]CollectionImage, 0, len(payload.LegacyImageURLs))
		for i, url := range payload.LegacyImageURLs {
			payload.Images = append(payload.Images, CollectionImage{
				ID:  fmt.Sprintf("legacy-%d", i+1),
				URL: url,
			})
		}
	}
	if payload.Images == nil {
		payload.Images = []CollectionImage{}
	}
	return &Collection{
		root:  root{version: snapshot.Version},
		state: payload.CollectionState,
	}, nil
}

// ID implements domain.Aggregate.
func (c *Collection) ID() string { return c.state.ID }

// Kind implements domain.Aggregate.
func (c *Collection) Kind() string { return CollectionKind }

// CorrelationID implements domain.Aggregate.
func (c *Collection) CorrelationID() string { return c.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (c *Collection) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(CollectionKind, c.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   c.state.ID,
		CorrelationID: c.state.CorrelationID,
		Version:       c.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (c *Collection) State() CollectionState {
	return c.state
}

// UpdateMetadata changes title, description, slug and images. Slug
// choreography for the old slug is the calling service's concern.
func (c *Collection) UpdateMetadata(userID, title, description, slug string, images []CollectionImage) error {
	if c.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(c.state.ID, "Cannot update an archived collection")
	}
	if title == "" {
		return domain.NewValidationError("title", "title is required")
	}
	if slug == "" {
		return domain.NewValidationError("slug", "slug is required")
	}
	prior, err := marshalState(c.state)
	if err != nil {
		return err
	}
	c.state.Title = title
	c.state.Description = description
	c.state.Slug = slug
	if images != nil {
		c.state.Images = images
	}
	return c.mutate("metadata_updated", userID, prior)
}

// Publish moves a draft collection to active.
func (c *Collection) Publish(userID string) error {
	switch c.state.Status {
	case StatusDraft:
	case StatusActive:
		return domain.NewInvariantViolationError(c.state.ID, "Cannot publish an active collection")
	case StatusArchived:
		return domain.NewInvariantViolationError(c.state.ID, "Cannot publish an archived collection")
	default:
		return domain.NewInvariantViolationError(c.state.ID, "Cannot publish a collection with a pending drop")
	}
	prior, err := marshalState(c.state)
	if err != nil {
		return err
	}
	now := time.Now()
	c.state.Status = StatusActive
	c.state.PublishedAt = &now
	return c.mutate("published", userID, prior)
}

// Unpublish moves an active collection back to draft.
func (c *Collection) Unpublish(userID string) error {
	if c.state.Status != StatusActive {
		return domain.NewInvariantViolationError(c.state.ID, "Cannot unpublish a collection that is not active")
	}
	prior, err := marshalState(c.state)
	if err != nil {
		return err
	}
	c.state.Status = StatusDraft
	c.state.PublishedAt = nil
	return c.mutate("unpublished", userID, prior)
}

// Archive retires the collection. Archived is terminal; the owned positions
// aggregate is archived by the same command.
func (c *Collection) Archive(userID string) error {
	if c.state.Status == StatusArchived {
		return domain.NewInvariantViolationError(c.state.ID, "Collection is already archived")
	}
	prior, err := marshalState(c.state)
	if err != nil {
		return err
	}
	c.state.Status = StatusArchived
	c.state.PublishedAt = nil
	return c.mutate("archived", userID, prior)
}

func (c *Collection) mutate(eventType, userID string, prior json.RawMessage) error {
	c.state.UpdatedAt = time.Now()
	c.version++
	return c.record(eventType, userID, prior)
}

func (c *Collection) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(c.state)
	if err != nil {
		return err
	}
	c.root.record(domain.NewEntityEvent(CollectionKind, eventType, c.state.ID, c.state.CorrelationID, userID, c.version, prior, next))
	return nil
}
