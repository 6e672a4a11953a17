package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akeemphilbert/mercato/pkg/infrastructure"
	"gorm.io/gorm"
)

// ViewRepositories bundles the read-model repositories. Projections receive
// it bound to their unit of work; query handlers use it with a bare database
// handle for reads.
type ViewRepositories struct {
	ProductList     *ProductListRepository
	ProductVariants *ProductVariantsRepository
	VariantDetails  *VariantDetailsRepository
	CollectionList  *CollectionListRepository
	Schedules       *ScheduleViewRepository
	SlugRedirects   *SlugRedirectRepository
}

// NewViewRepositories creates the repository bundle.
func NewViewRepositories(db *gorm.DB) *ViewRepositories {
	return &ViewRepositories{
		ProductList:     &ProductListRepository{db: db},
		ProductVariants: &ProductVariantsRepository{db: db},
		VariantDetails:  &VariantDetailsRepository{db: db},
		CollectionList:  &CollectionListRepository{db: db},
		Schedules:       &ScheduleViewRepository{db: db},
		SlugRedirects:   &SlugRedirectRepository{db: db},
	}
}

// ProductListRepository maintains the product list view.
type ProductListRepository struct {
	db *gorm.DB
}

// Save buffers an upsert of a product list row into the unit of work.
func (r *ProductListRepository) Save(uow *infrastructure.UnitOfWork, record ProductListRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save product list row %s: %w", record.ProductID, err)
		}
		return nil
	})
}

// Get returns one product list row.
func (r *ProductListRepository) Get(ctx context.Context, productID string) (ProductListRecord, error) {
	var record ProductListRecord
	err := r.db.WithContext(ctx).First(&record, "product_id = ?", productID).Error
	return record, err
}

// List returns product list rows filtered by status.
func (r *ProductListRepository) List(ctx context.Context, status string, limit, offset int) ([]ProductListRecord, error) {
	var records []ProductListRecord
	query := r.db.WithContext(ctx).Order("product_id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	return records, query.Find(&records).Error
}

// ProductVariantsRepository maintains the product-variant view.
type ProductVariantsRepository struct {
	db *gorm.DB
}

// Save buffers an upsert of a product variant row into the unit of work.
func (r *ProductVariantsRepository) Save(uow *infrastructure.UnitOfWork, record ProductVariantRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save product variant row %s: %w", record.VariantID, err)
		}
		return nil
	})
}

// ByProduct returns the variant rows for a product, optionally filtered by
// status.
func (r *ProductVariantsRepository) ByProduct(ctx context.Context, productID, status string, limit, offset int) ([]ProductVariantRecord, error) {
	var records []ProductVariantRecord
	query := r.db.WithContext(ctx).Where("product_id = ?", productID).Order("variant_id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	return records, query.Find(&records).Error
}

// VariantDetailsRepository maintains the variant details view.
type VariantDetailsRepository struct {
	db *gorm.DB
}

// Save buffers an upsert of a variant details row into the unit of work.
func (r *VariantDetailsRepository) Save(uow *infrastructure.UnitOfWork, record VariantDetailsRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save variant details row %s: %w", record.VariantID, err)
		}
		return nil
	})
}

// Get returns one variant details row.
func (r *VariantDetailsRepository) Get(ctx context.Context, variantID string) (VariantDetailsRecord, error) {
	var record VariantDetailsRecord
	err := r.db.WithContext(ctx).First(&record, "variant_id = ?", variantID).Error
	return record, err
}

// CollectionListRepository maintains the collections list view.
type CollectionListRepository struct {
	db *gorm.DB
}

// Save buffers an upsert of a collection list row into the unit of work.
func (r *CollectionListRepository) Save(uow *infrastructure.UnitOfWork, record CollectionListRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save collection list row %s: %w", record.CollectionID, err)
		}
		return nil
	})
}

// Get returns one collection list row.
func (r *CollectionListRepository) Get(ctx context.Context, collectionID string) (CollectionListRecord, error) {
	var record CollectionListRecord
	err := r.db.WithContext(ctx).First(&record, "collection_id = ?", collectionID).Error
	return record, err
}

// List returns collection rows filtered by status.
func (r *CollectionListRepository) List(ctx context.Context, status string, limit, offset int) ([]CollectionListRecord, error) {
	var records []CollectionListRecord
	query := r.db.WithContext(ctx).Order("collection_id ASC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	return records, query.Find(&records).Error
}

// ScheduleViewRepository maintains the schedule view.
type ScheduleViewRepository struct {
	db *gorm.DB
}

// Save buffers an upsert of a schedule row into the unit of work.
func (r *ScheduleViewRepository) Save(uow *infrastructure.UnitOfWork, record ScheduleViewRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save schedule row %s: %w", record.ScheduleID, err)
		}
		return nil
	})
}

// Get returns one schedule row.
func (r *ScheduleViewRepository) Get(ctx context.Context, scheduleID string) (ScheduleViewRecord, error) {
	var record ScheduleViewRecord
	err := r.db.WithContext(ctx).First(&record, "schedule_id = ?", scheduleID).Error
	return record, err
}

// Due returns pending schedules whose time has come, oldest first. Rows
// parked for a retry are excluded until their next_retry_at passes.
func (r *ScheduleViewRepository) Due(ctx context.Context, now time.Time, limit int) ([]ScheduleViewRecord, error) {
	var records []ScheduleViewRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_for <= ?", "pending", now).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("scheduled_for ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

// SlugRedirectRepository maintains the slug redirect table for products and
// collections.
type SlugRedirectRepository struct {
	db *gorm.DB
}

// Upsert buffers an insert-or-update of a redirect row.
func (r *SlugRedirectRepository) Upsert(uow *infrastructure.UnitOfWork, record SlugRedirectRecord) {
	record.UpdatedAt = time.Now()
	uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save slug redirect %s: %w", record.Slug, err)
		}
		return nil
	})
}

// RewriteTargets buffers the chain-compression update: every redirect that
// pointed at oldTarget is repointed at newTarget, so a lookup never has to
// follow more than one hop.
func (r *SlugRedirectRepository) RewriteTargets(uow *infrastructure.UnitOfWork, oldTarget, newTarget string) {
	uow.Enqueue(func(tx *gorm.DB) error {
		err := tx.Model(&SlugRedirectRecord{}).
			Where("target_slug = ?", oldTarget).
			Updates(map[string]interface{}{"target_slug": newTarget, "updated_at": time.Now()}).Error
		if err != nil {
			return fmt.Errorf("failed to rewrite redirects %s -> %s: %w", oldTarget, newTarget, err)
		}
		return nil
	})
}

// Resolve returns the redirect row for a slug, or ok=false when none exists.
func (r *SlugRedirectRepository) Resolve(ctx context.Context, slug string) (SlugRedirectRecord, bool, error) {
	var record SlugRedirectRecord
	err := r.db.WithContext(ctx).First(&record, "slug = ?", slug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record, false, nil
	}
	if err != nil {
		return record, false, err
	}
	return record, true, nil
}
