package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// UnitOfWork is the scope inside which repository operations commit
// atomically. Repositories buffer their writes as operations against a future
// gorm transaction; nothing touches storage until the enclosing
// TransactionManager submits the whole unit to the batcher.
//
// Reads (snapshot lookups, projection queries) go straight to the latest
// committed state: the batcher is the only writer, and per-aggregate
// optimistic versioning serializes conflicting commands.
type UnitOfWork struct {
	db    *gorm.DB
	cache *SnapshotCache

	mu       sync.Mutex // projection handlers buffer writes concurrently
	ops      []func(tx *gorm.DB) error
	appended []domain.Event
	saved    []domain.Snapshot
}

func newUnitOfWork(db *gorm.DB, cache *SnapshotCache) *UnitOfWork {
	return &UnitOfWork{db: db, cache: cache}
}

// DB exposes the database handle for read-only queries inside the unit of
// work (view lookups, due-work scans). Writes must go through Enqueue.
func (u *UnitOfWork) DB() *gorm.DB {
	return u.db
}

// Enqueue buffers an arbitrary write operation into the unit of work. View
// repositories use this so projection writes land in the same physical
// transaction as the event, snapshot and outbox rows they derive from.
func (u *UnitOfWork) Enqueue(op func(tx *gorm.DB) error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.ops = append(u.ops, op)
}

// AppendedEvents returns the events appended through Events() so far, in
// append order. The projection dispatcher consumes this.
func (u *UnitOfWork) AppendedEvents() []domain.Event {
	return u.appended
}

// Snapshots returns the snapshot repository bound to this unit of work.
func (u *UnitOfWork) Snapshots() domain.SnapshotRepository {
	return &uowSnapshots{u}
}

// Events returns the event repository bound to this unit of work.
func (u *UnitOfWork) Events() domain.EventRepository {
	return &uowEvents{u}
}

// Outbox returns the outbox repository bound to this unit of work.
func (u *UnitOfWork) Outbox() domain.OutboxRepository {
	return &uowOutbox{u}
}

// apply runs every buffered operation, in order, inside one gorm transaction.
func (u *UnitOfWork) apply(tx *gorm.DB) error {
	for _, op := range u.ops {
		if err := op(tx); err != nil {
			return err
		}
	}
	return nil
}

// afterCommit refreshes the snapshot cache once the unit's writes are
// durable.
func (u *UnitOfWork) afterCommit() {
	for _, s := range u.saved {
		u.cache.Set(s)
	}
}

// uowSnapshots implements domain.SnapshotRepository against a unit of work.
type uowSnapshots struct {
	uow *UnitOfWork
}

// Get reads the latest committed snapshot for an aggregate.
func (r *uowSnapshots) Get(ctx context.Context, aggregateID string) (domain.Snapshot, error) {
	if s, ok := r.uow.cache.Get(aggregateID); ok {
		return s, nil
	}

	var record SnapshotRecord
	err := r.uow.db.WithContext(ctx).First(&record, "aggregate_id = ?", aggregateID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Snapshot{}, domain.NewNotFoundError(aggregateID)
	}
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to load snapshot for aggregate %s: %w", aggregateID, err)
	}

	return domain.Snapshot{
		AggregateID:   record.AggregateID,
		CorrelationID: record.CorrelationID,
		Version:       record.Version,
		Payload:       json.RawMessage(record.Payload),
	}, nil
}

// Save buffers a snapshot overwrite. The cache entry is invalidated
// immediately so readers fall through to storage until the commit lands.
func (r *uowSnapshots) Save(_ context.Context, snapshot domain.Snapshot) error {
	record := SnapshotRecord{
		AggregateID:   snapshot.AggregateID,
		CorrelationID: snapshot.CorrelationID,
		Version:       snapshot.Version,
		Payload:       string(snapshot.Payload),
		UpdatedAt:     time.Now(),
	}
	r.uow.cache.Invalidate(snapshot.AggregateID)
	r.uow.saved = append(r.uow.saved, snapshot)
	r.uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Save(&record).Error; err != nil {
			return fmt.Errorf("failed to save snapshot for aggregate %s: %w", record.AggregateID, err)
		}
		return nil
	})
	return nil
}

// uowEvents implements domain.EventRepository against a unit of work.
type uowEvents struct {
	uow *UnitOfWork
}

// Append buffers event log rows for the given events.
func (r *uowEvents) Append(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]EventRecord, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event.Payload())
		if err != nil {
			return fmt.Errorf("failed to serialize payload for event %s: %w", event.EventName(), err)
		}
		records = append(records, EventRecord{
			ID:            ksuid.New().String(),
			AggregateID:   event.AggregateID(),
			Version:       event.Version(),
			EventName:     event.EventName(),
			CorrelationID: event.CorrelationID(),
			UserID:        event.User(),
			OccurredAt:    event.OccurredAt(),
			Payload:       string(payload),
			CreatedAt:     time.Now(),
		})
	}

	r.uow.appended = append(r.uow.appended, events...)
	r.uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to append events: %w", err)
		}
		return nil
	})
	return nil
}

// uowOutbox implements domain.OutboxRepository against a unit of work.
type uowOutbox struct {
	uow *UnitOfWork
}

// Add buffers outbox rows with freshly generated ids for the given events.
func (r *uowOutbox) Add(_ context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	records := make([]OutboxRecord, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event.Payload())
		if err != nil {
			return fmt.Errorf("failed to serialize payload for outbox event %s: %w", event.EventName(), err)
		}
		records = append(records, OutboxRecord{
			ID:          ksuid.New().String(),
			AggregateID: event.AggregateID(),
			EventName:   event.EventName(),
			Payload:     string(payload),
			Status:      OutboxStatusPending,
			CreatedAt:   time.Now(),
		})
	}

	r.uow.Enqueue(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to add outbox rows: %w", err)
		}
		return nil
	})
	return nil
}

// TransactionManager opens units of work and commits them through the write
// batcher.
type TransactionManager struct {
	db      *gorm.DB
	batcher *Batcher
	cache   *SnapshotCache
	logger  domain.Logger
}

// NewTransactionManager creates a transaction manager.
func NewTransactionManager(db *gorm.DB, batcher *Batcher, cache *SnapshotCache, logger domain.Logger) *TransactionManager {
	return &TransactionManager{db: db, batcher: batcher, cache: cache, logger: logger}
}

// WithTransaction runs fn inside a fresh unit of work. On success the
// accumulated writes are submitted to the batcher as one logical transaction
// and the call blocks until that transaction's flush completes. On any error
// from fn, nothing is submitted and the caller observes the error unchanged.
func (m *TransactionManager) WithTransaction(ctx context.Context, fn func(uow *UnitOfWork) error) error {
	uow := newUnitOfWork(m.db, m.cache)

	if err := fn(uow); err != nil {
		return err
	}
	if len(uow.ops) == 0 {
		return nil
	}

	if err := m.batcher.Submit(ctx, uow.apply); err != nil {
		return err
	}
	uow.afterCommit()
	return nil
}
