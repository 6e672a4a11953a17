// Package domain contains the commerce catalog aggregates: product, variant,
// collection, slug, SKU, positions, and schedule. Each aggregate is an
// invariant-enforcing state machine loaded from its latest snapshot; every
// mutator captures the prior state, mutates, bumps the version, and appends
// an event carrying both states.
package domain

import (
	"encoding/json"
	"fmt"

	"github.com/akeemphilbert/mercato/pkg/domain"
)

// Status is the lifecycle state shared by product-like entities. Archived is
// terminal; the pending-drop states gate time-scheduled releases.
type Status string

const (
	StatusDraft              Status = "draft"
	StatusActive             Status = "active"
	StatusArchived           Status = "archived"
	StatusVisiblePendingDrop Status = "visible_pending_drop"
	StatusHiddenPendingDrop  Status = "hidden_pending_drop"
)

// root carries the bookkeeping every aggregate shares: the monotonically
// increasing version and the append-only list of uncommitted events. The
// aggregate never clears the list itself; the command service drains it.
type root struct {
	version int
	events  []domain.Event
}

// Version returns the current aggregate version.
func (r *root) Version() int {
	return r.version
}

// UncommittedEvents returns the events produced since the aggregate was
// loaded or created.
func (r *root) UncommittedEvents() []domain.Event {
	events := make([]domain.Event, len(r.events))
	copy(events, r.events)
	return events
}

// record appends an event for a completed mutation. The caller has already
// bumped the version; the event carries it.
func (r *root) record(event domain.Event) {
	r.events = append(r.events, event)
}

// marshalState serializes an aggregate state for use as an event's prior or
// new state.
func marshalState(state any) (json.RawMessage, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize aggregate state: %w", err)
	}
	return raw, nil
}

// sameMultiset reports whether two id slices contain exactly the same ids
// with the same multiplicities, regardless of order.
func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		counts[id]--
		if counts[id] < 0 {
			return false
		}
	}
	return true
}

// contains reports whether ids contains id.
func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
