package application

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/akeemphilbert/mercato/internal/domain"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// newProjections builds the projection set bound to one unit of work.
func newProjections(uow *infrastructure.UnitOfWork, views *appinfra.ViewRepositories) []Projection {
	return []Projection{
		&productListProjection{uow: uow, views: views},
		&productVariantsProjection{uow: uow, views: views},
		&variantDetailsProjection{uow: uow, views: views},
		&collectionListProjection{uow: uow, views: views},
		&scheduleProjection{uow: uow, views: views},
		&slugRedirectProjection{uow: uow, views: views},
	}
}

// newState deserializes an event's post-mutation state into the given shape.
func newState[T any](event pkgdomain.Event) (T, error) {
	var state T
	if err := json.Unmarshal(event.Payload().NewState, &state); err != nil {
		return state, fmt.Errorf("failed to deserialize new state of %s: %w", event.EventName(), err)
	}
	return state, nil
}

// priorState deserializes an event's pre-mutation state into the given shape.
func priorState[T any](event pkgdomain.Event) (T, error) {
	var state T
	if err := json.Unmarshal(event.Payload().PriorState, &state); err != nil {
		return state, fmt.Errorf("failed to deserialize prior state of %s: %w", event.EventName(), err)
	}
	return state, nil
}

// productListProjection materializes the product list view from every
// product event: the new state is the whole row.
type productListProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *productListProjection) Name() string { return "product_list" }

func (p *productListProjection) Handlers() map[string]EventHandlerFunc {
	apply := p.apply
	return map[string]EventHandlerFunc{
		"product.created":                apply,
		"product.metadata_updated":       apply,
		"product.options_updated":        apply,
		"product.published":              apply,
		"product.unpublished":            apply,
		"product.archived":               apply,
		"product.collections_updated":    apply,
		"product.visible_drop_scheduled": apply,
		"product.hidden_drop_scheduled":  apply,
		"product.drop_cancelled":         apply,
		"product.drop_completed":         apply,
	}
}

func (p *productListProjection) apply(_ context.Context, event pkgdomain.Event) error {
	state, err := newState[domain.ProductState](event)
	if err != nil {
		return err
	}
	p.views.ProductList.Save(p.uow, appinfra.ProductListRecord{
		ProductID:   state.ID,
		Title:       state.Title,
		Slug:        state.Slug,
		Status:      string(state.Status),
		ProductType: state.ProductType,
		Collections: len(state.Collections),
		PublishedAt: state.PublishedAt,
		DropAt:      state.ScheduledDropAt,
	})
	return nil
}

// productVariantsProjection maintains the per-product variant listing.
type productVariantsProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *productVariantsProjection) Name() string { return "product_variants" }

func (p *productVariantsProjection) Handlers() map[string]EventHandlerFunc {
	apply := p.apply
	return map[string]EventHandlerFunc{
		"variant.created":           apply,
		"variant.sku_updated":       apply,
		"variant.price_updated":     apply,
		"variant.sale_updated":      apply,
		"variant.inventory_updated": apply,
		"variant.options_updated":   apply,
		"variant.published":         apply,
		"variant.unpublished":       apply,
		"variant.archived":          apply,
	}
}

func (p *productVariantsProjection) apply(_ context.Context, event pkgdomain.Event) error {
	state, err := newState[domain.VariantState](event)
	if err != nil {
		return err
	}
	p.views.ProductVariants.Save(p.uow, appinfra.ProductVariantRecord{
		VariantID: state.ID,
		ProductID: state.ProductID,
		SKU:       state.SKU,
		Price:     state.Price,
		SalePrice: state.SalePrice,
		Status:    string(state.Status),
	})
	return nil
}

// variantDetailsProjection maintains the full variant details view.
type variantDetailsProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *variantDetailsProjection) Name() string { return "variant_details" }

func (p *variantDetailsProjection) Handlers() map[string]EventHandlerFunc {
	apply := p.apply
	return map[string]EventHandlerFunc{
		"variant.created":           apply,
		"variant.sku_updated":       apply,
		"variant.price_updated":     apply,
		"variant.sale_updated":      apply,
		"variant.inventory_updated": apply,
		"variant.options_updated":   apply,
		"variant.published":         apply,
		"variant.unpublished":       apply,
		"variant.archived":          apply,
	}
}

func (p *variantDetailsProjection) apply(_ context.Context, event pkgdomain.Event) error {
	state, err := newState[domain.VariantState](event)
	if err != nil {
		return err
	}
	options, err := json.Marshal(state.Options)
	if err != nil {
		return fmt.Errorf("failed to serialize options for variant %s: %w", state.ID, err)
	}
	p.views.VariantDetails.Save(p.uow, appinfra.VariantDetailsRecord{
		VariantID:    state.ID,
		ProductID:    state.ProductID,
		SKU:          state.SKU,
		Price:        state.Price,
		SalePrice:    state.SalePrice,
		SaleStartsAt: state.SaleStartsAt,
		SaleEndsAt:   state.SaleEndsAt,
		Inventory:    state.Inventory,
		Fulfillment:  state.Fulfillment,
		Options:      string(options),
		Status:       string(state.Status),
		PublishedAt:  state.PublishedAt,
	})
	return nil
}

// collectionListProjection materializes the collections list view.
type collectionListProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *collectionListProjection) Name() string { return "collection_list" }

func (p *collectionListProjection) Handlers() map[string]EventHandlerFunc {
	apply := p.apply
	return map[string]EventHandlerFunc{
		"collection.created":          apply,
		"collection.metadata_updated": apply,
		"collection.published":        apply,
		"collection.unpublished":      apply,
		"collection.archived":         apply,
	}
}

func (p *collectionListProjection) apply(_ context.Context, event pkgdomain.Event) error {
	state, err := newState[domain.CollectionState](event)
	if err != nil {
		return err
	}
	p.views.CollectionList.Save(p.uow, appinfra.CollectionListRecord{
		CollectionID: state.ID,
		Title:        state.Title,
		Slug:         state.Slug,
		Status:       string(state.Status),
		ImageCount:   len(state.Images),
		PublishedAt:  state.PublishedAt,
	})
	return nil
}

// scheduleProjection materializes the schedule view the scheduler driver
// scans for due work.
type scheduleProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *scheduleProjection) Name() string { return "schedule" }

func (p *scheduleProjection) Handlers() map[string]EventHandlerFunc {
	apply := p.apply
	return map[string]EventHandlerFunc{
		"schedule.created":           apply,
		"schedule.execution_started": apply,
		"schedule.executed":          apply,
		"schedule.retried":           apply,
		"schedule.failed":            apply,
		"schedule.cancelled":         apply,
		"schedule.rescheduled":       apply,
	}
}

func (p *scheduleProjection) apply(_ context.Context, event pkgdomain.Event) error {
	state, err := newState[domain.ScheduleState](event)
	if err != nil {
		return err
	}
	p.views.Schedules.Save(p.uow, appinfra.ScheduleViewRecord{
		ScheduleID:          state.ID,
		TargetAggregateID:   state.TargetAggregateID,
		TargetAggregateType: state.TargetAggregateType,
		CommandType:         state.CommandType,
		Status:              string(state.Status),
		ScheduledFor:        state.ScheduledFor,
		RetryCount:          state.RetryCount,
		NextRetryAt:         state.NextRetryAt,
		ErrorMessage:        state.ErrorMessage,
		CreatedBy:           state.CreatedBy,
	})
	return nil
}

// slugRedirectProjection preserves inbound links when an active entity's
// slug changes: existing redirects pointing at the old slug are rewritten to
// the new one (chain compression), then the old slug itself gets a redirect
// row. Draft entities skip this path because their slug is released rather
// than redirected.
type slugRedirectProjection struct {
	uow   *infrastructure.UnitOfWork
	views *appinfra.ViewRepositories
}

func (p *slugRedirectProjection) Name() string { return "slug_redirect" }

func (p *slugRedirectProjection) Handlers() map[string]EventHandlerFunc {
	return map[string]EventHandlerFunc{
		"collection.metadata_updated": p.applyCollection,
		"product.metadata_updated":    p.applyProduct,
	}
}

func (p *slugRedirectProjection) applyCollection(_ context.Context, event pkgdomain.Event) error {
	prior, err := priorState[domain.CollectionState](event)
	if err != nil {
		return err
	}
	next, err := newState[domain.CollectionState](event)
	if err != nil {
		return err
	}
	p.redirect(prior.Slug, next.Slug, string(next.Status), next.ID, domain.EntityTypeCollection)
	return nil
}

func (p *slugRedirectProjection) applyProduct(_ context.Context, event pkgdomain.Event) error {
	prior, err := priorState[domain.ProductState](event)
	if err != nil {
		return err
	}
	next, err := newState[domain.ProductState](event)
	if err != nil {
		return err
	}
	p.redirect(prior.Slug, next.Slug, string(next.Status), next.ID, domain.EntityTypeProduct)
	return nil
}

func (p *slugRedirectProjection) redirect(priorSlug, newSlug, status, entityID, entityType string) {
	if priorSlug == newSlug || status != string(domain.StatusActive) {
		return
	}
	p.views.SlugRedirects.RewriteTargets(p.uow, priorSlug, newSlug)
	p.views.SlugRedirects.Upsert(p.uow, appinfra.SlugRedirectRecord{
		Slug:       priorSlug,
		TargetSlug: newSlug,
		EntityID:   entityID,
		EntityType: entityType,
	})
}
