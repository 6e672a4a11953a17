package application

import (
	"context"

	"github.com/akeemphilbert/mercato/internal/domain"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// CreateVariant creates a variant in draft, validates its options against
// the product's declared option set, activates its SKU, and appends it to
// the product's variant ordering.
func (s *Services) CreateVariant(ctx context.Context, cmd CreateVariant) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, _, err := loadProduct(ctx, uow, cmd.ProductID)
		if err != nil {
			return err
		}
		if len(cmd.Options) > 0 {
			if err := product.ValidateVariantOptions(cmd.Options); err != nil {
				return err
			}
		}

		variant, err := domain.NewVariant(domain.NewVariantParams{
			CorrelationID: cmd.CorrelationID,
			UserID:        cmd.UserID,
			ProductID:     cmd.ProductID,
			SKU:           cmd.SKU,
			Price:         cmd.Price,
			Inventory:     cmd.Inventory,
			Fulfillment:   cmd.Fulfillment,
			Options:       cmd.Options,
		})
		if err != nil {
			return err
		}
		touched := []pkgdomain.Aggregate{variant}

		if cmd.SKU != "" {
			sku, err := activateSKU(ctx, uow, cmd.UserID, variant.ID(), cmd.SKU)
			if err != nil {
				return err
			}
			touched = append(touched, sku)
		}

		positions, _, err := loadPositions(ctx, uow, product.State().PositionsID)
		if err != nil {
			return err
		}
		if err := positions.Add(cmd.UserID, variant.ID()); err != nil {
			return err
		}
		touched = append(touched, positions)

		return persist(ctx, uow, touched...)
	})
}

// UpdateVariantSKU moves a variant to a new SKU: the new SKU aggregate is
// activated, the old one released, all in one transaction.
func (s *Services) UpdateVariantSKU(ctx context.Context, cmd UpdateVariantSKU) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		oldSKU := variant.State().SKU
		if oldSKU == cmd.SKU {
			return nil
		}
		touched := []pkgdomain.Aggregate{variant}

		newSKU, err := activateSKU(ctx, uow, cmd.UserID, variant.ID(), cmd.SKU)
		if err != nil {
			return err
		}
		touched = append(touched, newSKU)

		released, err := releaseSKU(ctx, uow, cmd.UserID, variant.ID(), oldSKU)
		if err != nil {
			return err
		}
		if released != nil {
			touched = append(touched, released)
		}

		if err := variant.UpdateSKU(cmd.UserID, cmd.SKU); err != nil {
			return err
		}
		return persist(ctx, uow, touched...)
	})
}

// UpdateVariantPrice changes the base price.
func (s *Services) UpdateVariantPrice(ctx context.Context, cmd UpdateVariantPrice) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := variant.UpdatePrice(cmd.UserID, cmd.Price); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// UpdateVariantSale sets or clears the sale window. Scheduled sale commands
// carry SkipVersionCheck so they run regardless of interim edits.
func (s *Services) UpdateVariantSale(ctx context.Context, cmd UpdateVariantSale) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, cmd.SkipVersionCheck); err != nil {
			return err
		}
		if err := variant.UpdateSale(cmd.UserID, cmd.SalePrice, cmd.SaleStartsAt, cmd.SaleEndsAt); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// UpdateVariantInventory sets the on-hand quantity.
func (s *Services) UpdateVariantInventory(ctx context.Context, cmd UpdateVariantInventory) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := variant.UpdateInventory(cmd.UserID, cmd.Inventory); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// UpdateVariantOptions replaces the option assignment after validating it
// against the product's declared option set.
func (s *Services) UpdateVariantOptions(ctx context.Context, cmd UpdateVariantOptions) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		product, _, err := loadProduct(ctx, uow, variant.State().ProductID)
		if err != nil {
			return err
		}
		if err := product.ValidateVariantOptions(cmd.Options); err != nil {
			return err
		}

		if err := variant.UpdateOptions(cmd.UserID, cmd.Options); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// PublishVariant moves a draft variant to active, subject to the publish
// guard.
func (s *Services) PublishVariant(ctx context.Context, cmd PublishVariant) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := variant.Publish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// UnpublishVariant moves an active variant back to draft.
func (s *Services) UnpublishVariant(ctx context.Context, cmd UnpublishVariant) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := variant.Unpublish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, variant)
	})
}

// ArchiveVariant retires a variant, releases its SKU, and removes it from
// the product's variant ordering.
func (s *Services) ArchiveVariant(ctx context.Context, cmd ArchiveVariant) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		variant, snapshot, err := loadVariant(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := variant.Archive(cmd.UserID); err != nil {
			return err
		}
		touched := []pkgdomain.Aggregate{variant}

		released, err := releaseSKU(ctx, uow, cmd.UserID, variant.ID(), variant.State().SKU)
		if err != nil {
			return err
		}
		if released != nil {
			touched = append(touched, released)
		}

		product, _, err := loadProduct(ctx, uow, variant.State().ProductID)
		if err == nil {
			positions, _, err := loadPositions(ctx, uow, product.State().PositionsID)
			if err == nil && positions.Contains(variant.ID()) {
				if err := positions.Remove(cmd.UserID, variant.ID()); err != nil {
					return err
				}
				touched = append(touched, positions)
			} else if err != nil && !isNotFound(err) {
				return err
			}
		} else if !isNotFound(err) {
			return err
		}

		return persist(ctx, uow, touched...)
	})
}
