// Package application contains the write side of the catalog: commands, the
// command bus, one service per command, the projection dispatcher with its
// read-model projections, and the scheduler driver.
package application

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/internal/domain"
)

// Command is a tagged record accepted at the system boundary. Commands are
// dispatched on their type string by the command bus.
type Command interface {
	CommandType() string
}

// Command type tags.
const (
	CmdCreateProduct            = "createProduct"
	CmdUpdateProductMetadata    = "updateProductMetadata"
	CmdUpdateProductOptions     = "updateProductOptions"
	CmdPublishProduct           = "publishProduct"
	CmdUnpublishProduct         = "unpublishProduct"
	CmdArchiveProduct           = "archiveProduct"
	CmdUpdateProductCollections = "updateProductCollections"
	CmdScheduleProductDrop      = "scheduleProductDrop"
	CmdCompleteProductDrop      = "completeProductDrop"
	CmdReorderProductVariants   = "reorderProductVariants"

	CmdCreateVariant          = "createVariant"
	CmdUpdateVariantSKU       = "updateVariantSku"
	CmdUpdateVariantPrice     = "updateVariantPrice"
	CmdUpdateVariantSale      = "updateVariantSale"
	CmdUpdateVariantInventory = "updateVariantInventory"
	CmdUpdateVariantOptions   = "updateVariantOptions"
	CmdPublishVariant         = "publishVariant"
	CmdUnpublishVariant       = "unpublishVariant"
	CmdArchiveVariant         = "archiveVariant"

	CmdCreateCollection          = "createCollection"
	CmdUpdateCollectionMetadata  = "updateCollectionMetadata"
	CmdPublishCollection         = "publishCollection"
	CmdUnpublishCollection       = "unpublishCollection"
	CmdArchiveCollection         = "archiveCollection"
	CmdReorderCollectionProducts = "reorderCollectionProducts"

	CmdCancelSchedule     = "cancelSchedule"
	CmdRescheduleSchedule = "rescheduleSchedule"
)

// CreateProduct creates a product in draft.
type CreateProduct struct {
	CorrelationID string `json:"correlationId"`
	UserID        string `json:"userId" validate:"required"`
	Title         string `json:"title" validate:"required"`
	Slug          string `json:"slug" validate:"required"`
	Description   string `json:"description"`
	ProductType   string `json:"productType"`
}

// CommandType implements Command.
func (CreateProduct) CommandType() string { return CmdCreateProduct }

// UpdateProductMetadata changes a product's title, description and slug.
type UpdateProductMetadata struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	Slug            string `json:"slug" validate:"required"`
}

// CommandType implements Command.
func (UpdateProductMetadata) CommandType() string { return CmdUpdateProductMetadata }

// UpdateProductOptions replaces a product's declared option set.
type UpdateProductOptions struct {
	ID              string              `json:"id" validate:"required"`
	UserID          string              `json:"userId" validate:"required"`
	ExpectedVersion int                 `json:"expectedVersion"`
	Options         map[string][]string `json:"options"`
}

// CommandType implements Command.
func (UpdateProductOptions) CommandType() string { return CmdUpdateProductOptions }

// PublishProduct moves a draft product to active.
type PublishProduct struct {
	ID               string `json:"id" validate:"required"`
	UserID           string `json:"userId" validate:"required"`
	ExpectedVersion  int    `json:"expectedVersion"`
	SkipVersionCheck bool   `json:"skipVersionCheck"`
}

// CommandType implements Command.
func (PublishProduct) CommandType() string { return CmdPublishProduct }

// UnpublishProduct moves an active product back to draft.
type UnpublishProduct struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (UnpublishProduct) CommandType() string { return CmdUnpublishProduct }

// ArchiveProduct retires a product.
type ArchiveProduct struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (ArchiveProduct) CommandType() string { return CmdArchiveProduct }

// UpdateProductCollections replaces a product's collection membership and
// adjusts the positions aggregates of every affected collection in the same
// transaction.
type UpdateProductCollections struct {
	ID              string   `json:"id" validate:"required"`
	UserID          string   `json:"userId" validate:"required"`
	ExpectedVersion int      `json:"expectedVersion"`
	CollectionIDs   []string `json:"collectionIds"`
}

// CommandType implements Command.
func (UpdateProductCollections) CommandType() string { return CmdUpdateProductCollections }

// ScheduleProductDrop parks a draft product in a pending-drop state and
// persists a schedule that will complete the drop at the given time. Visible
// drops are shown on the read side before release; hidden drops are not.
type ScheduleProductDrop struct {
	ID              string    `json:"id" validate:"required"`
	UserID          string    `json:"userId" validate:"required"`
	ExpectedVersion int       `json:"expectedVersion"`
	ScheduledFor    time.Time `json:"scheduledFor" validate:"required"`
	Visible         bool      `json:"visible"`
}

// CommandType implements Command.
func (ScheduleProductDrop) CommandType() string { return CmdScheduleProductDrop }

// CompleteProductDrop releases a pending-drop product. It is the command a
// drop schedule embeds; it deliberately skips the version check so interim
// edits cannot strand the release.
type CompleteProductDrop struct {
	ID               string `json:"id" validate:"required"`
	UserID           string `json:"userId" validate:"required"`
	ExpectedVersion  int    `json:"expectedVersion"`
	SkipVersionCheck bool   `json:"skipVersionCheck"`
}

// CommandType implements Command.
func (CompleteProductDrop) CommandType() string { return CmdCompleteProductDrop }

// ReorderProductVariants permutes the ordering of a product's variants. The
// expected version applies to the positions aggregate.
type ReorderProductVariants struct {
	ProductID       string   `json:"productId" validate:"required"`
	UserID          string   `json:"userId" validate:"required"`
	ExpectedVersion int      `json:"expectedVersion"`
	VariantIDs      []string `json:"variantIds" validate:"required"`
}

// CommandType implements Command.
func (ReorderProductVariants) CommandType() string { return CmdReorderProductVariants }

// CreateVariant creates a variant in draft and activates its SKU.
type CreateVariant struct {
	CorrelationID string            `json:"correlationId"`
	UserID        string            `json:"userId" validate:"required"`
	ProductID     string            `json:"productId" validate:"required"`
	SKU           string            `json:"sku"`
	Price         int64             `json:"price"`
	Inventory     int               `json:"inventory"`
	Fulfillment   string            `json:"fulfillment"`
	Options       map[string]string `json:"options"`
}

// CommandType implements Command.
func (CreateVariant) CommandType() string { return CmdCreateVariant }

// UpdateVariantSKU moves a variant to a new SKU, releasing the old one.
type UpdateVariantSKU struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
	SKU             string `json:"sku" validate:"required"`
}

// CommandType implements Command.
func (UpdateVariantSKU) CommandType() string { return CmdUpdateVariantSKU }

// UpdateVariantPrice changes a variant's base price.
type UpdateVariantPrice struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
	Price           int64  `json:"price"`
}

// CommandType implements Command.
func (UpdateVariantPrice) CommandType() string { return CmdUpdateVariantPrice }

// UpdateVariantSale sets or clears a variant's sale window. Scheduled sale
// commands run with SkipVersionCheck so interim edits don't strand them.
type UpdateVariantSale struct {
	ID               string     `json:"id" validate:"required"`
	UserID           string     `json:"userId" validate:"required"`
	ExpectedVersion  int        `json:"expectedVersion"`
	SkipVersionCheck bool       `json:"skipVersionCheck"`
	SalePrice        *int64     `json:"salePrice"`
	SaleStartsAt     *time.Time `json:"saleStartsAt"`
	SaleEndsAt       *time.Time `json:"saleEndsAt"`
}

// CommandType implements Command.
func (UpdateVariantSale) CommandType() string { return CmdUpdateVariantSale }

// UpdateVariantInventory sets a variant's on-hand quantity.
type UpdateVariantInventory struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
	Inventory       int    `json:"inventory"`
}

// CommandType implements Command.
func (UpdateVariantInventory) CommandType() string { return CmdUpdateVariantInventory }

// UpdateVariantOptions replaces a variant's option assignment, validated
// against the product's declared option set.
type UpdateVariantOptions struct {
	ID              string            `json:"id" validate:"required"`
	UserID          string            `json:"userId" validate:"required"`
	ExpectedVersion int               `json:"expectedVersion"`
	Options         map[string]string `json:"options"`
}

// CommandType implements Command.
func (UpdateVariantOptions) CommandType() string { return CmdUpdateVariantOptions }

// PublishVariant moves a draft variant to active.
type PublishVariant struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (PublishVariant) CommandType() string { return CmdPublishVariant }

// UnpublishVariant moves an active variant back to draft.
type UnpublishVariant struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (UnpublishVariant) CommandType() string { return CmdUnpublishVariant }

// ArchiveVariant retires a variant and releases its SKU.
type ArchiveVariant struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (ArchiveVariant) CommandType() string { return CmdArchiveVariant }

// CreateCollection creates a collection in draft, reserves its slug, and
// creates its positions aggregate.
type CreateCollection struct {
	CorrelationID string                   `json:"correlationId"`
	UserID        string                   `json:"userId" validate:"required"`
	Title         string                   `json:"title" validate:"required"`
	Slug          string                   `json:"slug" validate:"required"`
	Description   string                   `json:"description"`
	Images        []domain.CollectionImage `json:"images"`
}

// CommandType implements Command.
func (CreateCollection) CommandType() string { return CmdCreateCollection }

// UpdateCollectionMetadata changes a collection's title, description, slug
// and images. A slug change releases the old slug (draft) or turns it into a
// redirect (active).
type UpdateCollectionMetadata struct {
	ID              string                   `json:"id" validate:"required"`
	UserID          string                   `json:"userId" validate:"required"`
	ExpectedVersion int                      `json:"expectedVersion"`
	Title           string                   `json:"title" validate:"required"`
	Description     string                   `json:"description"`
	Slug            string                   `json:"slug" validate:"required"`
	Images          []domain.CollectionImage `json:"images"`
}

// CommandType implements Command.
func (UpdateCollectionMetadata) CommandType() string { return CmdUpdateCollectionMetadata }

// PublishCollection moves a draft collection to active.
type PublishCollection struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (PublishCollection) CommandType() string { return CmdPublishCollection }

// UnpublishCollection moves an active collection back to draft.
type UnpublishCollection struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (UnpublishCollection) CommandType() string { return CmdUnpublishCollection }

// ArchiveCollection retires a collection together with its positions
// aggregate.
type ArchiveCollection struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (ArchiveCollection) CommandType() string { return CmdArchiveCollection }

// ReorderCollectionProducts permutes the ordering of a collection's products.
// The expected version applies to the positions aggregate.
type ReorderCollectionProducts struct {
	CollectionID    string   `json:"collectionId" validate:"required"`
	UserID          string   `json:"userId" validate:"required"`
	ExpectedVersion int      `json:"expectedVersion"`
	ProductIDs      []string `json:"productIds" validate:"required"`
}

// CommandType implements Command.
func (ReorderCollectionProducts) CommandType() string { return CmdReorderCollectionProducts }

// CancelSchedule withdraws a pending schedule and returns its target to
// draft when the target is parked in a pending-drop state.
type CancelSchedule struct {
	ID              string `json:"id" validate:"required"`
	UserID          string `json:"userId" validate:"required"`
	ExpectedVersion int    `json:"expectedVersion"`
}

// CommandType implements Command.
func (CancelSchedule) CommandType() string { return CmdCancelSchedule }

// RescheduleSchedule moves a pending schedule's due time and, optionally,
// replaces its embedded command data.
type RescheduleSchedule struct {
	ID              string          `json:"id" validate:"required"`
	UserID          string          `json:"userId" validate:"required"`
	ExpectedVersion int             `json:"expectedVersion"`
	ScheduledFor    time.Time       `json:"scheduledFor" validate:"required"`
	CommandData     json.RawMessage `json:"commandData"`
}

// CommandType implements Command.
func (RescheduleSchedule) CommandType() string { return CmdRescheduleSchedule }
