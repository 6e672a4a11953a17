package application

import (
	"context"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"golang.org/x/sync/errgroup"
)

// EventHandlerFunc applies one event to one read model.
type EventHandlerFunc func(ctx context.Context, event domain.Event) error

// Projection is a deterministic read-model writer. It declares the events it
// consumes through its handler map, which keeps registration data-driven:
// adding a projection never touches the dispatcher.
type Projection interface {
	// Name identifies the projection in logs.
	Name() string

	// Handlers maps event names to the handler that applies them.
	Handlers() map[string]EventHandlerFunc
}

// ProjectionDispatcher fans events out to projections. It is constructed per
// unit of work — projections buffer their writes into the same logical
// transaction that produced the events — and discarded after commit.
//
// For each event, the matching handlers of all projections run in parallel:
// distinct projections write to distinct read models, so no ordering holds
// between them. Events are applied strictly in producer order, which keeps
// every projection sequentially consistent with the command log per
// aggregate.
type ProjectionDispatcher struct {
	projections []Projection
	logger      domain.Logger
}

// NewProjectionDispatcher creates a dispatcher over the given projections.
func NewProjectionDispatcher(projections []Projection, logger domain.Logger) *ProjectionDispatcher {
	return &ProjectionDispatcher{projections: projections, logger: logger}
}

// Dispatch applies the events, in order, to every projection that handles
// them. A handler error aborts the dispatch and fails the enclosing command:
// projections are part of the atomic commit.
func (d *ProjectionDispatcher) Dispatch(ctx context.Context, events []domain.Event) error {
	for _, event := range events {
		g, gctx := errgroup.WithContext(ctx)
		for _, projection := range d.projections {
			handler, ok := projection.Handlers()[event.EventName()]
			if !ok {
				continue
			}
			name := projection.Name()
			g.Go(func() error {
				if err := handler(gctx, event); err != nil {
					d.logger.Error("projection handler failed",
						"projection", name, "event", event.EventName(), "aggregate_id", event.AggregateID(), "error", err)
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
