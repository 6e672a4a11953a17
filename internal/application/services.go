package application

import (
	"context"
	"errors"

	"github.com/akeemphilbert/mercato/internal/domain"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// Services hosts every command service. Each service is one Execute-shaped
// method following the same discipline: open a unit of work, load the
// snapshots, check versions, invoke mutators, drain events into the event
// and outbox repositories, save snapshots, and let the projection dispatcher
// apply the events to the read models — all inside one logical transaction.
type Services struct {
	tx     *infrastructure.TransactionManager
	views  *appinfra.ViewRepositories
	logger pkgdomain.Logger
}

// NewServices creates the service host.
func NewServices(tx *infrastructure.TransactionManager, views *appinfra.ViewRepositories, logger pkgdomain.Logger) *Services {
	return &Services{tx: tx, views: views, logger: logger}
}

// RegisterAll wires every command service and decoder into the bus.
func (s *Services) RegisterAll(bus *CommandBus) {
	bus.Register(CmdCreateProduct, asHandler(s.CreateProduct))
	bus.Register(CmdUpdateProductMetadata, asHandler(s.UpdateProductMetadata))
	bus.Register(CmdUpdateProductOptions, asHandler(s.UpdateProductOptions))
	bus.Register(CmdPublishProduct, asHandler(s.PublishProduct))
	bus.Register(CmdUnpublishProduct, asHandler(s.UnpublishProduct))
	bus.Register(CmdArchiveProduct, asHandler(s.ArchiveProduct))
	bus.Register(CmdUpdateProductCollections, asHandler(s.UpdateProductCollections))
	bus.Register(CmdScheduleProductDrop, asHandler(s.ScheduleProductDrop))
	bus.Register(CmdCompleteProductDrop, asHandler(s.CompleteProductDrop))
	bus.Register(CmdReorderProductVariants, asHandler(s.ReorderProductVariants))

	bus.Register(CmdCreateVariant, asHandler(s.CreateVariant))
	bus.Register(CmdUpdateVariantSKU, asHandler(s.UpdateVariantSKU))
	bus.Register(CmdUpdateVariantPrice, asHandler(s.UpdateVariantPrice))
	bus.Register(CmdUpdateVariantSale, asHandler(s.UpdateVariantSale))
	bus.Register(CmdUpdateVariantInventory, asHandler(s.UpdateVariantInventory))
	bus.Register(CmdUpdateVariantOptions, asHandler(s.UpdateVariantOptions))
	bus.Register(CmdPublishVariant, asHandler(s.PublishVariant))
	bus.Register(CmdUnpublishVariant, asHandler(s.UnpublishVariant))
	bus.Register(CmdArchiveVariant, asHandler(s.ArchiveVariant))

	bus.Register(CmdCreateCollection, asHandler(s.CreateCollection))
	bus.Register(CmdUpdateCollectionMetadata, asHandler(s.UpdateCollectionMetadata))
	bus.Register(CmdPublishCollection, asHandler(s.PublishCollection))
	bus.Register(CmdUnpublishCollection, asHandler(s.UnpublishCollection))
	bus.Register(CmdArchiveCollection, asHandler(s.ArchiveCollection))
	bus.Register(CmdReorderCollectionProducts, asHandler(s.ReorderCollectionProducts))

	bus.Register(CmdCancelSchedule, asHandler(s.CancelSchedule))
	bus.Register(CmdRescheduleSchedule, asHandler(s.RescheduleSchedule))

	bus.RegisterDecoder(CmdCompleteProductDrop, decodeInto[CompleteProductDrop])
	bus.RegisterDecoder(CmdPublishProduct, decodeInto[PublishProduct])
	bus.RegisterDecoder(CmdUpdateVariantSale, decodeInto[UpdateVariantSale])
}

// asHandler adapts a typed service method to the bus handler signature.
func asHandler[T Command](execute func(ctx context.Context, cmd T) error) CommandHandlerFunc {
	return func(ctx context.Context, cmd Command) error {
		typed, ok := cmd.(T)
		if !ok {
			var want T
			return pkgdomain.NewValidationError("type",
				"expected command "+want.CommandType()+", got "+cmd.CommandType())
		}
		return execute(ctx, typed)
	}
}

// execute opens a unit of work, runs fn, dispatches the produced events to
// the projections inside the same logical transaction, and commits through
// the batcher.
func (s *Services) execute(ctx context.Context, fn func(uow *infrastructure.UnitOfWork) error) error {
	return s.tx.WithTransaction(ctx, func(uow *infrastructure.UnitOfWork) error {
		if err := fn(uow); err != nil {
			return err
		}
		dispatcher := NewProjectionDispatcher(newProjections(uow, s.views), s.logger)
		return dispatcher.Dispatch(ctx, uow.AppendedEvents())
	})
}

// persist drains the uncommitted events of every touched aggregate into the
// event repository, saves the new snapshots, and adds the same events to the
// outbox — the uniform tail of every command service.
func persist(ctx context.Context, uow *infrastructure.UnitOfWork, aggregates ...pkgdomain.Aggregate) error {
	var events []pkgdomain.Event
	for _, aggregate := range aggregates {
		events = append(events, aggregate.UncommittedEvents()...)
	}
	if err := uow.Events().Append(ctx, events); err != nil {
		return err
	}
	for _, aggregate := range aggregates {
		snapshot, err := aggregate.ToSnapshot()
		if err != nil {
			return err
		}
		if err := uow.Snapshots().Save(ctx, snapshot); err != nil {
			return err
		}
	}
	return uow.Outbox().Add(ctx, events)
}

// requireVersion enforces optimistic concurrency: the snapshot must be at
// exactly the version the command expects, unless the command explicitly
// skips the check.
func requireVersion(snapshot pkgdomain.Snapshot, expected int, skip bool) error {
	if skip {
		return nil
	}
	if snapshot.Version != expected {
		return pkgdomain.NewConcurrencyError(snapshot.AggregateID, expected, snapshot.Version)
	}
	return nil
}

// reserveSlug takes ownership of a slug for an entity, creating the slug
// aggregate on first use. A live reservation by another entity surfaces as a
// uniqueness conflict.
func reserveSlug(ctx context.Context, uow *infrastructure.UnitOfWork, userID, entityID, entityType, slug string) (*domain.Slug, error) {
	snapshot, err := uow.Snapshots().Get(ctx, slug)
	if err != nil {
		var notFound pkgdomain.NotFoundError
		if errors.As(err, &notFound) {
			return domain.NewSlug(slug, "", userID, entityID, entityType)
		}
		return nil, err
	}
	aggregate, err := domain.LoadSlug(snapshot)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Reserve(userID, entityID, entityType); err != nil {
		return nil, err
	}
	return aggregate, nil
}

// retireSlug ends an entity's reservation of its old slug: a redirect when
// the entity is live so inbound links keep resolving, a plain release when
// it is still a draft. It returns nil when the slug aggregate is missing or
// held by someone else, which can happen for data imported before slug
// tracking existed.
func retireSlug(ctx context.Context, uow *infrastructure.UnitOfWork, userID, entityID, oldSlug, newSlug string, live bool) (*domain.Slug, error) {
	snapshot, err := uow.Snapshots().Get(ctx, oldSlug)
	if err != nil {
		var notFound pkgdomain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	aggregate, err := domain.LoadSlug(snapshot)
	if err != nil {
		return nil, err
	}
	if !aggregate.ReservedBy(entityID) {
		return nil, nil
	}
	if live {
		err = aggregate.RedirectTo(userID, newSlug)
	} else {
		err = aggregate.Release(userID)
	}
	if err != nil {
		return nil, err
	}
	return aggregate, nil
}

// activateSKU takes ownership of a SKU string for a variant, creating the
// SKU aggregate on first use.
func activateSKU(ctx context.Context, uow *infrastructure.UnitOfWork, userID, variantID, sku string) (*domain.SKU, error) {
	snapshot, err := uow.Snapshots().Get(ctx, sku)
	if err != nil {
		var notFound pkgdomain.NotFoundError
		if errors.As(err, &notFound) {
			return domain.NewSKU(sku, "", userID, variantID)
		}
		return nil, err
	}
	aggregate, err := domain.LoadSKU(snapshot)
	if err != nil {
		return nil, err
	}
	if err := aggregate.Activate(userID, variantID); err != nil {
		return nil, err
	}
	return aggregate, nil
}

// releaseSKU ends a variant's ownership of a SKU string. Missing or
// otherwise-owned SKU aggregates are skipped.
func releaseSKU(ctx context.Context, uow *infrastructure.UnitOfWork, userID, variantID, sku string) (*domain.SKU, error) {
	if sku == "" {
		return nil, nil
	}
	snapshot, err := uow.Snapshots().Get(ctx, sku)
	if err != nil {
		var notFound pkgdomain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	aggregate, err := domain.LoadSKU(snapshot)
	if err != nil {
		return nil, err
	}
	state := aggregate.State()
	if state.Status != domain.SKUActive || state.VariantID != variantID {
		return nil, nil
	}
	if err := aggregate.Release(userID); err != nil {
		return nil, err
	}
	return aggregate, nil
}

// loadProduct fetches and reconstructs a product inside the unit of work.
func loadProduct(ctx context.Context, uow *infrastructure.UnitOfWork, id string) (*domain.Product, pkgdomain.Snapshot, error) {
	snapshot, err := uow.Snapshots().Get(ctx, id)
	if err != nil {
		return nil, snapshot, err
	}
	aggregate, err := domain.LoadProduct(snapshot)
	return aggregate, snapshot, err
}

// loadVariant fetches and reconstructs a variant inside the unit of work.
func loadVariant(ctx context.Context, uow *infrastructure.UnitOfWork, id string) (*domain.Variant, pkgdomain.Snapshot, error) {
	snapshot, err := uow.Snapshots().Get(ctx, id)
	if err != nil {
		return nil, snapshot, err
	}
	aggregate, err := domain.LoadVariant(snapshot)
	return aggregate, snapshot, err
}

// loadCollection fetches and reconstructs a collection inside the unit of
// work.
func loadCollection(ctx context.Context, uow *infrastructure.UnitOfWork, id string) (*domain.Collection, pkgdomain.Snapshot, error) {
	snapshot, err := uow.Snapshots().Get(ctx, id)
	if err != nil {
		return nil, snapshot, err
	}
	aggregate, err := domain.LoadCollection(snapshot)
	return aggregate, snapshot, err
}

// loadPositions fetches and reconstructs a positions aggregate inside the
// unit of work.
func loadPositions(ctx context.Context, uow *infrastructure.UnitOfWork, id string) (*domain.Positions, pkgdomain.Snapshot, error) {
	snapshot, err := uow.Snapshots().Get(ctx, id)
	if err != nil {
		return nil, snapshot, err
	}
	aggregate, err := domain.LoadPositions(snapshot)
	return aggregate, snapshot, err
}

// loadSchedule fetches and reconstructs a schedule inside the unit of work.
func loadSchedule(ctx context.Context, uow *infrastructure.UnitOfWork, id string) (*domain.Schedule, pkgdomain.Snapshot, error) {
	snapshot, err := uow.Snapshots().Get(ctx, id)
	if err != nil {
		return nil, snapshot, err
	}
	aggregate, err := domain.LoadSchedule(snapshot)
	return aggregate, snapshot, err
}
