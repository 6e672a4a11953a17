package application

import (
	"context"

	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
)

// ProductVariantsViewQuery fetches a product's variants from the read model.
type ProductVariantsViewQuery struct {
	ProductID string `json:"productId" validate:"required"`
	Status    string `json:"status"`
	Limit     int    `json:"limit"`
	Offset    int    `json:"offset"`
}

// ProductListQuery fetches the product list view.
type ProductListQuery struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// CollectionListQuery fetches the collections list view.
type CollectionListQuery struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// SlugResolutionQuery resolves a slug, following at most one redirect hop
// (the projection compresses chains on write).
type SlugResolutionQuery struct {
	Slug string `json:"slug" validate:"required"`
}

// SlugResolution is the answer to a SlugResolutionQuery.
type SlugResolution struct {
	Slug       string `json:"slug"`
	Redirected bool   `json:"redirected"`
	EntityID   string `json:"entityId,omitempty"`
	EntityType string `json:"entityType,omitempty"`
}

// Queries is the read-only access point over the projection tables.
type Queries struct {
	views *appinfra.ViewRepositories
}

// NewQueries creates the query service.
func NewQueries(views *appinfra.ViewRepositories) *Queries {
	return &Queries{views: views}
}

// ProductVariantsView returns the variants of a product.
func (q *Queries) ProductVariantsView(ctx context.Context, query ProductVariantsViewQuery) ([]appinfra.ProductVariantRecord, error) {
	return q.views.ProductVariants.ByProduct(ctx, query.ProductID, query.Status, query.Limit, query.Offset)
}

// ProductList returns the product list view.
func (q *Queries) ProductList(ctx context.Context, query ProductListQuery) ([]appinfra.ProductListRecord, error) {
	return q.views.ProductList.List(ctx, query.Status, query.Limit, query.Offset)
}

// CollectionList returns the collections list view.
func (q *Queries) CollectionList(ctx context.Context, query CollectionListQuery) ([]appinfra.CollectionListRecord, error) {
	return q.views.CollectionList.List(ctx, query.Status, query.Limit, query.Offset)
}

// ResolveSlug resolves a slug through the redirect table.
func (q *Queries) ResolveSlug(ctx context.Context, query SlugResolutionQuery) (SlugResolution, error) {
	redirect, ok, err := q.views.SlugRedirects.Resolve(ctx, query.Slug)
	if err != nil {
		return SlugResolution{}, err
	}
	if !ok {
		return SlugResolution{Slug: query.Slug}, nil
	}
	return SlugResolution{
		Slug:       redirect.TargetSlug,
		Redirected: true,
		EntityID:   redirect.EntityID,
		EntityType: redirect.EntityType,
	}, nil
}
