package application

import (
	"context"

	"github.com/akeemphilbert/mercato/internal/domain"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// CreateCollection creates a collection in draft, reserves its slug, and
// creates the positions aggregate that orders its products.
func (s *Services) CreateCollection(ctx context.Context, cmd CreateCollection) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, err := domain.NewCollection(domain.NewCollectionParams{
			CorrelationID: cmd.CorrelationID,
			UserID:        cmd.UserID,
			Title:         cmd.Title,
			Slug:          cmd.Slug,
			Description:   cmd.Description,
			Images:        cmd.Images,
		})
		if err != nil {
			return err
		}

		slug, err := reserveSlug(ctx, uow, cmd.UserID, collection.ID(), domain.EntityTypeCollection, cmd.Slug)
		if err != nil {
			return err
		}

		positions, err := domain.NewPositions(collection.State().PositionsID, cmd.CorrelationID, cmd.UserID, collection.ID(), domain.PositionsOwnerCollection)
		if err != nil {
			return err
		}

		return persist(ctx, uow, collection, slug, positions)
	})
}

// UpdateCollectionMetadata changes title, description, slug and images. A
// slug change reserves the new slug and retires the old one: redirect when
// the collection is live, release when it is a draft. The uniqueness check
// on the new slug runs before any mutation, so a taken slug changes nothing.
func (s *Services) UpdateCollectionMetadata(ctx context.Context, cmd UpdateCollectionMetadata) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, snapshot, err := loadCollection(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}

		state := collection.State()
		touched := []pkgdomain.Aggregate{collection}

		if cmd.Slug != state.Slug {
			newSlug, err := reserveSlug(ctx, uow, cmd.UserID, collection.ID(), domain.EntityTypeCollection, cmd.Slug)
			if err != nil {
				return err
			}
			touched = append(touched, newSlug)

			oldSlug, err := retireSlug(ctx, uow, cmd.UserID, collection.ID(), state.Slug, cmd.Slug, state.Status == domain.StatusActive)
			if err != nil {
				return err
			}
			if oldSlug != nil {
				touched = append(touched, oldSlug)
			}
		}

		if err := collection.UpdateMetadata(cmd.UserID, cmd.Title, cmd.Description, cmd.Slug, cmd.Images); err != nil {
			return err
		}
		return persist(ctx, uow, touched...)
	})
}

// PublishCollection moves a draft collection to active.
func (s *Services) PublishCollection(ctx context.Context, cmd PublishCollection) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, snapshot, err := loadCollection(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := collection.Publish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, collection)
	})
}

// UnpublishCollection moves an active collection back to draft.
func (s *Services) UnpublishCollection(ctx context.Context, cmd UnpublishCollection) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, snapshot, err := loadCollection(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := collection.Unpublish(cmd.UserID); err != nil {
			return err
		}
		return persist(ctx, uow, collection)
	})
}

// ArchiveCollection retires a collection together with its positions
// aggregate, which cannot outlive it.
func (s *Services) ArchiveCollection(ctx context.Context, cmd ArchiveCollection) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, snapshot, err := loadCollection(ctx, uow, cmd.ID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := collection.Archive(cmd.UserID); err != nil {
			return err
		}

		touched := []pkgdomain.Aggregate{collection}
		positions, _, err := loadPositions(ctx, uow, collection.State().PositionsID)
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

// ReorderCollectionProducts permutes the collection's product ordering.
func (s *Services) ReorderCollectionProducts(ctx context.Context, cmd ReorderCollectionProducts) error {
	return s.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		collection, _, err := loadCollection(ctx, uow, cmd.CollectionID)
		if err != nil {
			return err
		}
		positions, snapshot, err := loadPositions(ctx, uow, collection.State().PositionsID)
		if err != nil {
			return err
		}
		if err := requireVersion(snapshot, cmd.ExpectedVersion, false); err != nil {
			return err
		}
		if err := positions.Reorder(cmd.UserID, cmd.ProductIDs); err != nil {
			return err
		}
		return persist(ctx, uow, positions)
	})
}
