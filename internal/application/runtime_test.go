package application

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/akeemphilbert/mercato/internal/domain"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
	"gorm.io/gorm"
)

// testRuntime wires a full write-side stack over an in-memory database.
type testRuntime struct {
	db       *gorm.DB
	services *Services
	bus      *CommandBus
	views    *appinfra.ViewRepositories
}

func newTestRuntime(t *testing.T) *testRuntime {
	t.Helper()

	db, err := infrastructure.NewDatabase(infrastructure.DefaultSQLiteConfig())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := infrastructure.Migrate(db); err != nil {
		t.Fatalf("Failed to migrate core tables: %v", err)
	}
	if err := appinfra.MigrateViews(db); err != nil {
		t.Fatalf("Failed to migrate views: %v", err)
	}

	logger := infrastructure.NopLogger()
	batcher := infrastructure.NewBatcher(db, logger, infrastructure.BatcherConfig{
		BatchSize:     1,
		FlushInterval: time.Millisecond,
	})
	t.Cleanup(batcher.Stop)

	tx := infrastructure.NewTransactionManager(db, batcher, infrastructure.NewSnapshotCache(time.Minute), logger)
	views := appinfra.NewViewRepositories(db)
	services := NewServices(tx, views, logger)
	bus := NewCommandBus()
	services.RegisterAll(bus)

	return &testRuntime{db: db, services: services, bus: bus, views: views}
}

// snapshot returns the raw snapshot row for an aggregate.
func (r *testRuntime) snapshot(t *testing.T, aggregateID string) infrastructure.SnapshotRecord {
	t.Helper()
	var record infrastructure.SnapshotRecord
	if err := r.db.First(&record, "aggregate_id = ?", aggregateID).Error; err != nil {
		t.Fatalf("Failed to load snapshot for %s: %v", aggregateID, err)
	}
	return record
}

// events returns the event log rows for an aggregate in version order.
func (r *testRuntime) events(t *testing.T, aggregateID string) []infrastructure.EventRecord {
	t.Helper()
	var records []infrastructure.EventRecord
	err := r.db.Order("version ASC").Find(&records, "aggregate_id = ?", aggregateID).Error
	if err != nil {
		t.Fatalf("Failed to load events for %s: %v", aggregateID, err)
	}
	return records
}

// outboxRows returns the outbox rows for an aggregate.
func (r *testRuntime) outboxRows(t *testing.T, aggregateID string) []infrastructure.OutboxRecord {
	t.Helper()
	var records []infrastructure.OutboxRecord
	if err := r.db.Find(&records, "aggregate_id = ?", aggregateID).Error; err != nil {
		t.Fatalf("Failed to load outbox rows for %s: %v", aggregateID, err)
	}
	return records
}

// createCollection runs the create service and returns the new collection's
// id, resolved through the list view by slug.
func (r *testRuntime) createCollection(t *testing.T, slug string) string {
	t.Helper()
	err := r.services.CreateCollection(context.Background(), CreateCollection{
		CorrelationID: "corr-" + slug,
		UserID:        "u",
		Title:         "Collection " + slug,
		Slug:          slug,
	})
	if err != nil {
		t.Fatalf("Failed to create collection %s: %v", slug, err)
	}
	var record appinfra.CollectionListRecord
	if err := r.db.First(&record, "slug = ?", slug).Error; err != nil {
		t.Fatalf("Failed to find collection by slug %s: %v", slug, err)
	}
	return record.CollectionID
}

// createProduct runs the create service and returns the new product's id.
func (r *testRuntime) createProduct(t *testing.T, slug string) string {
	t.Helper()
	err := r.services.CreateProduct(context.Background(), CreateProduct{
		CorrelationID: "corr-" + slug,
		UserID:        "u",
		Title:         "Product " + slug,
		Slug:          slug,
	})
	if err != nil {
		t.Fatalf("Failed to create product %s: %v", slug, err)
	}
	var record appinfra.ProductListRecord
	if err := r.db.First(&record, "slug = ?", slug).Error; err != nil {
		t.Fatalf("Failed to find product by slug %s: %v", slug, err)
	}
	return record.ProductID
}

// loadCollectionState decodes the collection aggregate behind an id.
func (r *testRuntime) loadCollectionState(t *testing.T, id string) domain.CollectionState {
	t.Helper()
	record := r.snapshot(t, id)
	collection, err := domain.LoadCollection(pkgdomain.Snapshot{
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		Version:       record.Version,
		Payload:       json.RawMessage(record.Payload),
	})
	if err != nil {
		t.Fatalf("Failed to load collection %s: %v", id, err)
	}
	return collection.State()
}

// loadProductState decodes the product aggregate behind an id.
func (r *testRuntime) loadProductState(t *testing.T, id string) domain.ProductState {
	t.Helper()
	record := r.snapshot(t, id)
	product, err := domain.LoadProduct(pkgdomain.Snapshot{
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		Version:       record.Version,
		Payload:       json.RawMessage(record.Payload),
	})
	if err != nil {
		t.Fatalf("Failed to load product %s: %v", id, err)
	}
	return product.State()
}

// loadSlugState decodes the slug aggregate behind a slug string.
func (r *testRuntime) loadSlugState(t *testing.T, slug string) domain.SlugState {
	t.Helper()
	record := r.snapshot(t, slug)
	aggregate, err := domain.LoadSlug(pkgdomain.Snapshot{
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		Version:       record.Version,
		Payload:       json.RawMessage(record.Payload),
	})
	if err != nil {
		t.Fatalf("Failed to load slug %s: %v", slug, err)
	}
	return aggregate.State()
}

// loadPositionsState decodes the positions aggregate behind an id.
func (r *testRuntime) loadPositionsState(t *testing.T, id string) domain.PositionsState {
	t.Helper()
	record := r.snapshot(t, id)
	aggregate, err := domain.LoadPositions(pkgdomain.Snapshot{
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		Version:       record.Version,
		Payload:       json.RawMessage(record.Payload),
	})
	if err != nil {
		t.Fatalf("Failed to load positions %s: %v", id, err)
	}
	return aggregate.State()
}
