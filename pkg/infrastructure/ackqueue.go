package infrastructure

import (
	"fmt"
	"sync"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ackKind int

const (
	ackCompleted ackKind = iota
	ackFailed
	ackDLQ
)

// ack is one pending acknowledgement write produced by a handler invocation.
// It carries everything the flush needs so no extra reads happen on the hot
// path.
type ack struct {
	kind             ackKind
	processingID     string
	outboxID         string
	handlerID        string
	eventName        string
	payload          string
	retryCount       int
	nextRetryAt      time.Time
	errorMessage     string
	expectedHandlers int
}

// AckQueue batches the poller's acknowledgement writes: completion marks,
// retry bookkeeping, DLQ moves, and the deletion of fully delivered outbox
// rows. The queue flushes on a size threshold or interval, mirroring the
// write batcher.
type AckQueue struct {
	db       *gorm.DB
	logger   domain.Logger
	size     int
	interval time.Duration

	mu      sync.Mutex
	pending []ack
	timer   *time.Timer

	stopOnce sync.Once
	stopped  bool
}

// NewAckQueue creates an acknowledgement queue.
func NewAckQueue(db *gorm.DB, logger domain.Logger, size int, interval time.Duration) *AckQueue {
	return &AckQueue{db: db, logger: logger, size: size, interval: interval}
}

// enqueue adds an acknowledgement and flushes if the size threshold is hit.
func (q *AckQueue) enqueue(a ack) {
	q.mu.Lock()
	q.pending = append(q.pending, a)
	if len(q.pending) >= q.size {
		batch := q.pending
		q.pending = nil
		q.stopTimerLocked()
		q.mu.Unlock()
		q.flush(batch)
		return
	}
	if q.timer == nil && !q.stopped {
		q.timer = time.AfterFunc(q.interval, q.Flush)
	}
	q.mu.Unlock()
}

func (q *AckQueue) stopTimerLocked() {
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

// Flush writes out every queued acknowledgement.
func (q *AckQueue) Flush() {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.stopTimerLocked()
	q.mu.Unlock()

	if len(batch) > 0 {
		q.flush(batch)
	}
}

// Stop flushes outstanding acknowledgements and stops the timer. No
// background writes happen after Stop returns.
func (q *AckQueue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		q.mu.Unlock()
		q.Flush()
	})
}

// flush applies one batch of acknowledgements in a single transaction, then
// settles every touched outbox row: delete when all handlers completed, mark
// dead when every handler either completed or dead-lettered.
func (q *AckQueue) flush(batch []ack) {
	touched := make(map[string]int, len(batch)) // outboxID -> expected handler count

	err := q.db.Transaction(func(tx *gorm.DB) error {
		for _, a := range batch {
			touched[a.outboxID] = a.expectedHandlers
			switch a.kind {
			case ackCompleted:
				err := tx.Model(&OutboxProcessingRecord{}).
					Where("id = ?", a.processingID).
					Updates(map[string]interface{}{
						"status":     ProcessingStatusCompleted,
						"last_error": "",
						"updated_at": time.Now(),
					}).Error
				if err != nil {
					return fmt.Errorf("failed to mark processing row %s completed: %w", a.processingID, err)
				}
			case ackFailed:
				err := tx.Model(&OutboxProcessingRecord{}).
					Where("id = ?", a.processingID).
					Updates(map[string]interface{}{
						"status":        ProcessingStatusFailed,
						"retry_count":   a.retryCount,
						"next_retry_at": a.nextRetryAt,
						"last_error":    a.errorMessage,
						"updated_at":    time.Now(),
					}).Error
				if err != nil {
					return fmt.Errorf("failed to record retry for processing row %s: %w", a.processingID, err)
				}
			case ackDLQ:
				dlq := OutboxDLQRecord{
					ID:              uuid.NewString(),
					OutboxID:        a.outboxID,
					HandlerID:       a.handlerID,
					EventName:       a.eventName,
					Payload:         a.payload,
					FinalRetryCount: a.retryCount,
					ErrorMessage:    a.errorMessage,
					FailedAt:        time.Now(),
				}
				if err := tx.Create(&dlq).Error; err != nil {
					return fmt.Errorf("failed to create DLQ row for outbox %s handler %s: %w", a.outboxID, a.handlerID, err)
				}
				err := tx.Delete(&OutboxProcessingRecord{}, "id = ?", a.processingID).Error
				if err != nil {
					return fmt.Errorf("failed to remove dead-lettered processing row %s: %w", a.processingID, err)
				}
			}
		}

		for outboxID, expected := range touched {
			if err := settleOutboxRow(tx, outboxID, expected); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		q.logger.Error("ack flush failed", "batch_size", len(batch), "error", err)
	}
}

// settleOutboxRow deletes an outbox row once every registered handler has a
// completed processing row, or parks it as dead when the remaining handlers
// are all in the DLQ.
func settleOutboxRow(tx *gorm.DB, outboxID string, expectedHandlers int) error {
	var completed int64
	err := tx.Model(&OutboxProcessingRecord{}).
		Where("outbox_id = ? AND status = ?", outboxID, ProcessingStatusCompleted).
		Count(&completed).Error
	if err != nil {
		return fmt.Errorf("failed to count completed handlers for outbox %s: %w", outboxID, err)
	}

	var dead int64
	err = tx.Model(&OutboxDLQRecord{}).Where("outbox_id = ?", outboxID).Count(&dead).Error
	if err != nil {
		return fmt.Errorf("failed to count DLQ rows for outbox %s: %w", outboxID, err)
	}

	switch {
	case completed == int64(expectedHandlers):
		if err := tx.Delete(&OutboxProcessingRecord{}, "outbox_id = ?", outboxID).Error; err != nil {
			return fmt.Errorf("failed to delete processing rows for outbox %s: %w", outboxID, err)
		}
		if err := tx.Delete(&OutboxRecord{}, "id = ?", outboxID).Error; err != nil {
			return fmt.Errorf("failed to delete delivered outbox row %s: %w", outboxID, err)
		}
	case completed+dead == int64(expectedHandlers) && dead > 0:
		err := tx.Model(&OutboxRecord{}).Where("id = ?", outboxID).
			Update("status", "dead").Error
		if err != nil {
			return fmt.Errorf("failed to park dead outbox row %s: %w", outboxID, err)
		}
	}
	return nil
}
