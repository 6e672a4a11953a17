// Package infrastructure contains the read-model records and repositories
// the projections materialize into. Writes are buffered through the unit of
// work so view rows commit atomically with the events they derive from;
// reads go straight to the latest committed state.
package infrastructure

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProductListRecord is one row of the product list view.
type ProductListRecord struct {
	ProductID   string `gorm:"primaryKey"`
	Title       string
	Slug        string `gorm:"index"`
	Status      string `gorm:"index"`
	ProductType string
	Collections int
	PublishedAt *time.Time
	DropAt      *time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (ProductListRecord) TableName() string {
	return "product_list_view"
}

// ProductVariantRecord is one row of the product-variant view: the variants
// belonging to a product, with just enough data for a listing.
type ProductVariantRecord struct {
	VariantID string `gorm:"primaryKey"`
	ProductID string `gorm:"index"`
	SKU       string `gorm:"index"`
	Price     int64
	SalePrice *int64
	Status    string `gorm:"index"`
	UpdatedAt time.Time
}

// TableName returns the table name for GORM
func (ProductVariantRecord) TableName() string {
	return "product_variants_view"
}

// VariantDetailsRecord is one row of the variant details view.
type VariantDetailsRecord struct {
	VariantID    string `gorm:"primaryKey"`
	ProductID    string `gorm:"index"`
	SKU          string
	Price        int64
	SalePrice    *int64
	SaleStartsAt *time.Time
	SaleEndsAt   *time.Time
	Inventory    int
	Fulfillment  string
	Options      string `gorm:"type:text"` // JSON map
	Status       string `gorm:"index"`
	PublishedAt  *time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (VariantDetailsRecord) TableName() string {
	return "variant_details_view"
}

// CollectionListRecord is one row of the collections list view.
type CollectionListRecord struct {
	CollectionID string `gorm:"primaryKey"`
	Title        string
	Slug         string `gorm:"index"`
	Status       string `gorm:"index"`
	ImageCount   int
	PublishedAt  *time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for GORM
func (CollectionListRecord) TableName() string {
	return "collection_list_view"
}

// ScheduleViewRecord is one row of the schedule view. The scheduler driver
// scans it for due work.
type ScheduleViewRecord struct {
	ScheduleID          string `gorm:"primaryKey"`
	TargetAggregateID   string `gorm:"index"`
	TargetAggregateType string
	CommandType         string
	Status              string    `gorm:"index"`
	ScheduledFor        time.Time `gorm:"index"`
	RetryCount          int
	NextRetryAt         *time.Time
	ErrorMessage        string `gorm:"type:text"`
	CreatedBy           string
	UpdatedAt           time.Time
}

// TableName returns the table name for GORM
func (ScheduleViewRecord) TableName() string {
	return "schedule_view"
}

// SlugRedirectRecord maps a retired slug to its successor so inbound links
// keep resolving. Chains are compressed on write: every redirect points at
// the live slug directly.
type SlugRedirectRecord struct {
	Slug       string `gorm:"primaryKey"`
	TargetSlug string `gorm:"index"`
	EntityID   string `gorm:"index"`
	EntityType string
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM
func (SlugRedirectRecord) TableName() string {
	return "slug_redirects"
}

// MigrateViews creates the read-model tables.
func MigrateViews(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&ProductListRecord{},
		&ProductVariantRecord{},
		&VariantDetailsRecord{},
		&CollectionListRecord{},
		&ScheduleViewRecord{},
		&SlugRedirectRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate read-model tables: %w", err)
	}
	return nil
}
