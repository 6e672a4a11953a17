package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/akeemphilbert/mercato/internal/domain"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// CreateProduct creates a product in draft, reserves its slug, and creates
// the positions aggregate that orders its variants.
func (s *Services) CreateProduct(ctx context.Context, cmd CreateProduct) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, err := domain.NewProduct(domain.NewProductParams{
			CorrelationID: cmd.CorrelationID,
			UserID:        cmd.UserID,
			Title:         cmd.Title,
			Slug:          cmd.Slug,
			Description:   cmd.Description,
			ProductType:   cmd.ProductType,
		})
		if err != nil {
			return err
		}

		slug, err := reserveSlug(ctx, uow, cmd.UserID, product.ID(), domain.EntityTypeProduct, cmd.Slug)
		if err != nil {
			return err
		}

		positions, err := domain.NewPositions(product.State().PositionsID, cmd.CorrelationID, cmd.UserID, product.ID(), domain.PositionsOwnerProduct)
		if err != nil {
			return err
		}

		return persist(ctx, uow, product, slug, positions)
	})
}

// UpdateProductMetadata changes title, description and slug. A slug change
// reserves the new slug and retires the old one: redirect when the product
// is live, release when it is a draft.
func (s *Services) UpdateProductMetadata(ctx context.Context, cmd UpdateProductMetadata) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		state := product.State()
		touched := []pkgdomain.Aggregate{product}

		if cmd.Slug != state.Slug {
			newSlug, err := reserveSlug(ctx, uow, cmd.UserID, product.ID(), domain.EntityTypeProduct, cmd.Slug)
			if err != nil {
				return err
			}
			touched = append(touched, newSlug)

			oldSlug, err := retireSlug(ctx, uow, cmd.UserID, product.ID(), state.Slug, cmd.Slug, state.Status == domain.StatusActive)
			if err != nil {
				return err
			}
			if oldSlug != nil {
				touched = append(touched, oldSlug)
			}
		}

		if err := product.UpdateMetadata(cmd.UserID, cmd.Title, cmd.Description, cmd.Slug); err != nil {
			return err
		}
		return persist(ctx, uow, touched...)
	})
}

// UpdateProductOptions replaces the product's declared option set.
func (s *Services) UpdateProductOptions(ctx context.Context, cmd UpdateProductOptions) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := product.UpdateOptions(cmd.UserID, cmd.Options); err != nil {
			return err
		}
		return persist(ctx, uow, product)
	})
}

// PublishProduct moves a draft product to active.
func (s *Services) PublishProduct(ctx context.Context, cmd PublishProduct) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, cmd.SkipVersionCheck); err != nil {
			return err
		}
		if err := product.Publish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, product)
	})
}

// UnpublishProduct moves an active product back to draft.
func (s *Services) UnpublishProduct(ctx context.Context, cmd UnpublishProduct) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := product.Unpublish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, product)
	})
}

// ArchiveProduct retires a product together with its variant-ordering
// positions aggregate.
func (s *Services) ArchiveProduct(ctx context.Context, cmd ArchiveProduct) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := product.Archive(cmd.UserID); err != nil {
			return err
		}

		touched := []pkgdomain.Aggregate{product}
		positions, _, err := loadPositions(ctx, uow, product.State().PositionsID)
		if err == nil {
			if err := positions.Archive(cmd.UserID); err != nil {
				return err
			}
			touched = append(touched, positions)
		} else if !isNotFound(err) {
			return err
		}

		return persist(ctx, uow, touched...)
	})
}

// UpdateProductCollections replaces a product's collection membership. For
// each added collection the product is appended to that collection's
// positions aggregate; for each removed collection it is removed if present.
// Everything commits in one transaction: partial success is never
// observable.
func (s *Services) UpdateProductCollections(ctx context.Context, cmd UpdateProductCollections) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		prior := product.State().Collections
		added, removed := diffIDs(prior, cmd.CollectionIDs)

		if err := product.SetCollections(cmd.UserID, cmd.CollectionIDs); err != nil {
			return err
		}
		touched := []pkgdomain.Aggregate{product}

		for _, collectionID := range added {
			positions, err := s.collectionPositions(ctx, uow, collectionID)
			if err != nil {
				return err
			}
			if !positions.Contains(product.ID()) {
				if err := positions.Add(cmd.UserID, product.ID()); err != nil {
					return err
				}
				touched = append(touched, positions)
			}
		}
		for _, collectionID := range removed {
			positions, err := s.collectionPositions(ctx, uow, collectionID)
			if err != nil {
				return err
			}
			if positions.Contains(product.ID()) {
				if err := positions.Remove(cmd.UserID, product.ID()); err != nil {
					return err
				}
				touched = append(touched, positions)
			}
		}

		return persist(ctx, uow, touched...)
	})
}

// collectionPositions resolves a collection id to its positions aggregate.
func (s *Services) collectionPositions(ctx context.Context, uow *infrastructure.UnitOfWork, collectionID string) (*domain.Positions, error) {
	collection, _, err := loadCollection(ctx, uow, collectionID)
	if err != nil {
		return nil, err
	}
	positions, _, err := loadPositions(ctx, uow, collection.State().PositionsID)
	return positions, err
}

// ScheduleProductDrop parks a draft product in a pending-drop state and
// persists a schedule whose embedded command completes the drop when due.
func (s *Services) ScheduleProductDrop(ctx context.Context, cmd ScheduleProductDrop) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		if cmd.Visible {
			err = product.ScheduleVisibleDrop(cmd.UserID, cmd.ScheduledFor)
		} else {
			err = product.ScheduleHiddenDrop(cmd.UserID, cmd.ScheduledFor)
		}
		if err != nil {
			return err
		}

		embedded := CompleteProductDrop{
			ID:               cmd.ID,
			UserID:           cmd.UserID,
			SkipVersionCheck: true,
		}
		commandData, err := json.Marshal(embedded)
		if err != nil {
			return fmt.Errorf("failed to serialize embedded drop command: %w", err)
		}

		schedule, err := domain.NewSchedule(domain.NewScheduleParams{
			CorrelationID:       product.CorrelationID(),
			UserID:              cmd.UserID,
			TargetAggregateID:   cmd.ID,
			TargetAggregateType: domain.ProductKind,
			CommandType:         CmdCompleteProductDrop,
			CommandData:         commandData,
			ScheduledFor:        cmd.ScheduledFor,
		})
		if err != nil {
			return err
		}

		return persist(ctx, uow, product, schedule)
	})
}

// CompleteProductDrop releases a pending-drop product. Scheduled executions
// run with SkipVersionCheck so interim edits cannot strand the release.
func (s *Services) CompleteProductDrop(ctx context.Context, cmd CompleteProductDrop) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, snapshot, err := loadProduct(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, cmd.SkipVersionCheck); err != nil {
			return err
		}
		if err := product.CompleteDrop(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, product)
	})
}

// ReorderProductVariants permutes the product's variant ordering.
func (s *Services) ReorderProductVariants(ctx context.Context, cmd ReorderProductVariants) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		product, _, err := loadProduct(ctx, uow, cmd.ProductID)
		if err != nil {
			return err
		}
		positions, snapshot, err := loadPositions(ctx, uow, product.State().PositionsID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := positions.Reorder(cmd.UserID, cmd.VariantIDs); err != nil {
			return err
		}
		return persist(ctx, uow, positions)
	})
}

// diffIDs computes which ids were added to and removed from prior.
func diffIDs(prior, next []string) (added, removed []string) {
	priorSet := make(map[string]bool, len(prior))
	for _, id := range prior {
		priorSet[id] = true
	}
	nextSet := make(map[string]bool, len(next))
	for _, id := range next {
		nextSet[id] = true
		if !priorSet[id] {
			added = append(added, id)
		}
	}
	for _, id := range prior {
		if !nextSet[id] {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// isNotFound reports whether err is a missing-snapshot error.
func isNotFound(err error) bool {
	var notFound pkgdomain.NotFoundError
	return errors.As(err, &notFound)
}
