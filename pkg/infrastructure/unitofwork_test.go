package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"gorm.io/gorm"
)

func newTestTransactionManager(t *testing.T, db *gorm.DB) *TransactionManager {
	t.Helper()
	b := newTestBatcher(t, db, 1, time.Millisecond)
	return NewTransactionManager(db, b, NewSnapshotCache(time.Minute), NopLogger())
}

func testEvent(aggregateID string, version int) domain.Event {
	return domain.NewEntityEvent("widget", "tested", aggregateID, "corr", "u", version,
		domain.EmptyState, json.RawMessage(`{"id":"`+aggregateID+`"}`))
}

func TestTransactionManager_CommitsBufferedWrites(t *testing.T) {
	db := newTestDB(t)
	tm := newTestTransactionManager(t, db)
	ctx := context.Background()

	events := []domain.Event{testEvent("agg-1", 0), testEvent("agg-1", 1)}
	err := tm.WithTransaction(ctx, func(uow *UnitOfWork) error {
		if err := uow.Events().Append(ctx, events); err != nil {
			return err
		}
		if err := uow.Snapshots().Save(ctx, domain.Snapshot{
			AggregateID: "agg-1", CorrelationID: "corr", Version: 1, Payload: json.RawMessage(`{"v":1}`),
		}); err != nil {
			return err
		}
		return uow.Outbox().Add(ctx, events)
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	var eventCount, outboxCount int64
	db.Model(&EventRecord{}).Count(&eventCount)
	db.Model(&OutboxRecord{}).Count(&outboxCount)
	if eventCount != 2 {
		t.Errorf("Expected 2 event rows, got %d", eventCount)
	}
	if eventCount != outboxCount {
		t.Errorf("Expected events and outbox counts to match, got %d vs %d", eventCount, outboxCount)
	}

	var snapshot SnapshotRecord
	if err := db.First(&snapshot, "aggregate_id = ?", "agg-1").Error; err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if snapshot.Version != 1 {
		t.Errorf("Expected snapshot version 1, got %d", snapshot.Version)
	}
}

func TestTransactionManager_ErrorDiscardsBufferedWrites(t *testing.T) {
	db := newTestDB(t)
	tm := newTestTransactionManager(t, db)
	ctx := context.Background()

	boom := errors.New("business rule violated")
	err := tm.WithTransaction(ctx, func(uow *UnitOfWork) error {
		if err := uow.Events().Append(ctx, []domain.Event{testEvent("agg-1", 0)}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected the fn error to surface, got %v", err)
	}

	var eventCount int64
	db.Model(&EventRecord{}).Count(&eventCount)
	if eventCount != 0 {
		t.Errorf("Expected no event rows after failure, got %d", eventCount)
	}
}

func TestTransactionManager_SnapshotOverwrittenInPlace(t *testing.T) {
	db := newTestDB(t)
	tm := newTestTransactionManager(t, db)
	ctx := context.Background()

	for version := 1; version <= 3; version++ {
		payload, _ := json.Marshal(map[string]int{"v": version})
		err := tm.WithTransaction(ctx, func(uow *UnitOfWork) error {
			return uow.Snapshots().Save(ctx, domain.Snapshot{
				AggregateID: "agg-1", Version: version, Payload: payload,
			})
		})
		if err != nil {
			t.Fatalf("Save version %d failed: %v", version, err)
		}
	}

	var count int64
	db.Model(&SnapshotRecord{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected one snapshot row, got %d", count)
	}

	uow := newUnitOfWork(db, nil)
	snapshot, err := uow.Snapshots().Get(ctx, "agg-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if snapshot.Version != 3 {
		t.Errorf("Expected latest version 3, got %d", snapshot.Version)
	}
}

func TestUnitOfWork_GetMissingSnapshotIsNotFound(t *testing.T) {
	db := newTestDB(t)
	uow := newUnitOfWork(db, nil)

	_, err := uow.Snapshots().Get(context.Background(), "missing")
	var notFound domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected NotFoundError, got %v", err)
	}
	if notFound.AggregateID != "missing" {
		t.Errorf("Expected aggregate id in error, got %q", notFound.AggregateID)
	}
}

func TestSnapshotCache_ServesAfterCommitInvalidatesOnSave(t *testing.T) {
	db := newTestDB(t)
	cache := NewSnapshotCache(time.Minute)
	b := newTestBatcher(t, db, 1, time.Millisecond)
	tm := NewTransactionManager(db, b, cache, NopLogger())
	ctx := context.Background()

	err := tm.WithTransaction(ctx, func(uow *UnitOfWork) error {
		return uow.Snapshots().Save(ctx, domain.Snapshot{
			AggregateID: "agg-1", Version: 1, Payload: json.RawMessage(`{"v":1}`),
		})
	})
	if err != nil {
		t.Fatalf("WithTransaction failed: %v", err)
	}

	if _, ok := cache.Get("agg-1"); !ok {
		t.Error("Expected snapshot to be cached after commit")
	}

	// A buffered save invalidates immediately, before its commit lands.
	uow := newUnitOfWork(db, cache)
	if err := uow.Snapshots().Save(ctx, domain.Snapshot{AggregateID: "agg-1", Version: 2}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, ok := cache.Get("agg-1"); ok {
		t.Error("Expected cache entry to be invalidated by a buffered save")
	}
}
