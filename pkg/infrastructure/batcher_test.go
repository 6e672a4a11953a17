package infrastructure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := NewDatabase(DefaultSQLiteConfig())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func newTestBatcher(t *testing.T, db *gorm.DB, size int, interval time.Duration) *Batcher {
	t.Helper()
	b := NewBatcher(db, NopLogger(), BatcherConfig{BatchSize: size, FlushInterval: interval})
	t.Cleanup(b.Stop)
	return b
}

func countOutboxRows(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&OutboxRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count outbox rows: %v", err)
	}
	return count
}

func insertOutboxOp(id string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		return tx.Create(&OutboxRecord{
			ID:        id,
			EventName: "test.created",
			Status:    OutboxStatusPending,
			CreatedAt: time.Now(),
		}).Error
	}
}

func TestBatcher_FlushesOnSizeThreshold(t *testing.T) {
	db := newTestDB(t)
	b := newTestBatcher(t, db, 2, time.Hour) // interval never fires

	ctx := context.Background()
	var wg sync.WaitGroup
	for _, id := range []string{"a", "b"} {
		wg.Add(1)
		id := id
		go func() {
			defer wg.Done()
			if err := b.Submit(ctx, insertOutboxOp(id)); err != nil {
				t.Errorf("Submit %s failed: %v", id, err)
			}
		}()
	}
	wg.Wait()

	if got := countOutboxRows(t, db); got != 2 {
		t.Errorf("Expected 2 rows after size flush, got %d", got)
	}
}

func TestBatcher_FlushesOnInterval(t *testing.T) {
	db := newTestDB(t)
	b := newTestBatcher(t, db, 100, 10*time.Millisecond)

	if err := b.Submit(context.Background(), insertOutboxOp("solo")); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := countOutboxRows(t, db); got != 1 {
		t.Errorf("Expected 1 row after interval flush, got %d", got)
	}
}

func TestBatcher_IsolatesFailingTransaction(t *testing.T) {
	db := newTestDB(t)
	b := newTestBatcher(t, db, 3, time.Hour)

	boom := errors.New("constraint violated")
	results := make([]error, 3)
	var wg sync.WaitGroup
	ops := []func(tx *gorm.DB) error{
		insertOutboxOp("ok-1"),
		func(tx *gorm.DB) error { return boom },
		insertOutboxOp("ok-2"),
	}
	for i, op := range ops {
		wg.Add(1)
		i, op := i, op
		go func() {
			defer wg.Done()
			results[i] = b.Submit(context.Background(), op)
		}()
	}
	wg.Wait()

	if results[0] != nil {
		t.Errorf("Expected first op to commit on replay, got %v", results[0])
	}
	if results[1] == nil {
		t.Error("Expected failing op to surface its error")
	}
	if results[2] != nil {
		t.Errorf("Expected third op to commit on replay, got %v", results[2])
	}
	if got := countOutboxRows(t, db); got != 2 {
		t.Errorf("Expected the two healthy ops to be committed, got %d rows", got)
	}
}

func TestBatcher_StopDrainsPending(t *testing.T) {
	db := newTestDB(t)
	b := NewBatcher(db, NopLogger(), BatcherConfig{BatchSize: 100, FlushInterval: time.Hour})

	done := make(chan error, 1)
	go func() {
		done <- b.Submit(context.Background(), insertOutboxOp("pending"))
	}()

	// Give the submit a moment to be accepted, then stop.
	time.Sleep(20 * time.Millisecond)
	b.Stop()

	if err := <-done; err != nil {
		t.Fatalf("Expected pending op to flush on Stop, got %v", err)
	}
	if got := countOutboxRows(t, db); got != 1 {
		t.Errorf("Expected 1 row after Stop, got %d", got)
	}

	if err := b.Submit(context.Background(), insertOutboxOp("late")); !errors.Is(err, ErrBatcherStopped) {
		t.Errorf("Expected ErrBatcherStopped after Stop, got %v", err)
	}
}
