package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

// SlugKind is the snapshot envelope kind tag for slugs.
const SlugKind = "slug"

// SlugStatus is the slug state machine:
// available → reserved(entity) → released | redirect(target).
type SlugStatus string

const (
	SlugAvailable SlugStatus = "available"
	SlugReserved  SlugStatus = "reserved"
	SlugReleased  SlugStatus = "released"
	SlugRedirect  SlugStatus = "redirect"
)

// Entity kinds a slug or SKU can belong to.
const (
	EntityTypeProduct    = "product"
	EntityTypeCollection = "collection"
)

// SlugState is the serialized state of a slug aggregate. The aggregate id is
// the slug string itself, which makes "is this slug taken?" a single point
// lookup.
type SlugState struct {
	Slug          string     `json:"slug"`
	CorrelationID string     `json:"correlationId"`
	Status        SlugStatus `json:"status"`
	EntityID      string     `json:"entityId,omitempty"`
	EntityType    string     `json:"entityType,omitempty"`
	TargetSlug    string     `json:"targetSlug,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Slug is the slug ownership aggregate. A slug may be reserved by at most one
// entity at a time; a reservation ends by being released (draft entities) or
// turned into a redirect (active entities).
type Slug struct {
	root
	state SlugState
}

// NewSlug creates a slug reserved by the given entity. The creation event is
// slug.reserved at version 0 with an empty prior state.
func NewSlug(slug, correlationID, userID, entityID, entityType string) (*Slug, error) {
	if slug == "" {
		return nil, domain.NewValidationError("slug", "slug is required")
	}
	if entityID == "" {
		return nil, domain.NewValidationError("entityId", "entity id is required")
	}

	now := time.Now()
	s := &Slug{
		state: SlugState{
			Slug:          slug,
			CorrelationID: correlationID,
			Status:        SlugReserved,
			EntityID:      entityID,
			EntityType:    entityType,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
	}
	return s, s.record("reserved", userID, domain.EmptyState)
}

// LoadSlug reconstructs a slug from its latest snapshot.
func LoadSlug(snapshot domain.Snapshot) (*Slug, error) {
	state, err := domain.UnmarshalSnapshot(SlugKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	s := &Slug{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &s.state); err != nil {
		return nil, err
	}
	return s, nil
}

// ID implements domain.Aggregate. The id is the slug string.
func (s *Slug) ID() string { return s.state.Slug }

// Kind implements domain.Aggregate.
func (s *Slug) Kind() string { return SlugKind }

// CorrelationID implements domain.Aggregate.
func (s *Slug) CorrelationID() string { return s.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (s *Slug) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(SlugKind, s.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   s.state.Slug,
		CorrelationID: s.state.CorrelationID,
		Version:       s.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (s *Slug) State() SlugState {
	return s.state
}

// ReservedBy reports whether the slug is currently reserved by the given
// entity.
func (s *Slug) ReservedBy(entityID string) bool {
	return s.state.Status == SlugReserved && s.state.EntityID == entityID
}

// Reserve takes ownership of the slug for an entity. It fails with a
// uniqueness conflict while another reservation is live; released and
// redirect slugs can be re-reserved (re-reserving a redirect retires it).
func (s *Slug) Reserve(userID, entityID, entityType string) error {
	if s.state.Status == SlugReserved {
		if s.state.EntityID == entityID {
			return nil // already held by this entity
		}
		return domain.NewUniquenessError("Slug", s.state.Slug)
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SlugReserved
	s.state.EntityID = entityID
	s.state.EntityType = entityType
	s.state.TargetSlug = ""
	return s.mutate("reserved", userID, prior)
}

// Release ends a reservation without leaving a redirect. Draft entities take
// this path when their slug changes.
func (s *Slug) Release(userID string) error {
	if s.state.Status != SlugReserved {
		return domain.NewInvariantViolationError(s.state.Slug, "Cannot release a slug that is not reserved")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SlugReleased
	return s.mutate("released", userID, prior)
}

// RedirectTo ends a reservation by pointing the slug at its successor.
// Active entities take this path so inbound links keep working.
func (s *Slug) RedirectTo(userID, targetSlug string) error {
	if s.state.Status != SlugReserved {
		return domain.NewInvariantViolationError(s.state.Slug, "Cannot redirect a slug that is not reserved")
	}
	if targetSlug == "" || targetSlug == s.state.Slug {
		return domain.NewValidationError("targetSlug", "redirect target must be a different slug")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SlugRedirect
	s.state.TargetSlug = targetSlug
	return s.mutate("redirected", userID, prior)
}

func (s *Slug) mutate(eventType, userID string, prior json.RawMessage) error {
	s.state.UpdatedAt = time.Now()
	s.version++
	return s.record(eventType, userID, prior)
}

func (s *Slug) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.root.record(domain.NewEntityEvent(SlugKind, eventType, s.state.Slug, s.state.CorrelationID, userID, s.version, prior, next))
	return nil
}
