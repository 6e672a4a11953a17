package infrastructure

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"gorm.io/gorm"
)

// ErrBatcherStopped is returned by Submit after Stop has been called.
var ErrBatcherStopped = errors.New("batcher is stopped")

// pendingTx is one logical transaction waiting for a flush. The op applies
// the transaction's buffered writes inside a gorm transaction; done receives
// the commit result exactly once.
type pendingTx struct {
	op   func(tx *gorm.DB) error
	done chan error
}

// Batcher coalesces many small logical transactions into few physical
// commits. Pending logical transactions are flushed in one gorm transaction
// when the queue reaches BatchSize, when FlushInterval has elapsed since the
// first pending entry, or when Stop drains the queue.
//
// All logical transactions in one flush succeed together or the batch is
// replayed: on batch-level failure every logical transaction is re-run in its
// own physical transaction so a single illegal one cannot corrupt or roll
// back the others. Each submitter observes the outcome of its own logical
// transaction only.
type Batcher struct {
	db       *gorm.DB
	logger   domain.Logger
	size     int
	interval time.Duration

	submitCh chan pendingTx
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewBatcher creates a batcher and starts its flush loop.
func NewBatcher(db *gorm.DB, logger domain.Logger, config BatcherConfig) *Batcher {
	b := &Batcher{
		db:       db,
		logger:   logger,
		size:     config.BatchSize,
		interval: config.FlushInterval,
		submitCh: make(chan pendingTx),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Submit enqueues a logical transaction and blocks until the flush that
// carries it completes. The returned error is the outcome of this logical
// transaction only: nil on commit, the op's own error unchanged if it is a
// domain-taxonomy error, or a BatcherError wrapping any other failure of the
// op's individual replay.
func (b *Batcher) Submit(ctx context.Context, op func(tx *gorm.DB) error) error {
	p := pendingTx{op: op, done: make(chan error, 1)}

	select {
	case b.submitCh <- p:
	case <-b.stopCh:
		return ErrBatcherStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	// The flush loop owns p from here: a result always arrives, even on
	// Stop. Cancellation after acceptance abandons the wait but not the
	// write; the caller's context controls only admission.
	return <-p.done
}

// Stop drains pending logical transactions, flushes them, and returns once
// no background writes remain.
func (b *Batcher) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
	})
	<-b.doneCh
}

// run is the single flush loop. Only this goroutine writes to storage.
func (b *Batcher) run() {
	defer close(b.doneCh)

	var (
		pending []pendingTx
		timer   *time.Timer
		timerCh <-chan time.Time
	)

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			timerCh = nil
		}
	}

	flush := func() {
		if len(pending) == 0 {
			return
		}
		b.flush(pending)
		pending = nil
		stopTimer()
	}

	for {
		select {
		case p := <-b.submitCh:
			pending = append(pending, p)
			if len(pending) == 1 {
				timer = time.NewTimer(b.interval)
				timerCh = timer.C
			}
			if len(pending) >= b.size {
				flush()
			}
		case <-timerCh:
			timer = nil
			timerCh = nil
			flush()
		case <-b.stopCh:
			// Drain anything racing with Stop, then do the final flush.
			for {
				select {
				case p := <-b.submitCh:
					pending = append(pending, p)
					continue
				default:
				}
				break
			}
			flush()
			return
		}
	}
}

// flush commits a batch of logical transactions in one physical transaction,
// replaying them individually when the shared commit fails.
func (b *Batcher) flush(batch []pendingTx) {
	err := b.db.Transaction(func(tx *gorm.DB) error {
		for _, p := range batch {
			if err := p.op(tx); err != nil {
				return err
			}
		}
		return nil
	})

	if err == nil {
		for _, p := range batch {
			p.done <- nil
		}
		return
	}

	b.logger.Warn("batch commit failed, replaying logical transactions individually",
		"batch_size", len(batch), "error", err)

	// One poisoned logical transaction must not fail its batchmates: re-run
	// each in its own physical transaction and report per-op outcomes.
	for _, p := range batch {
		op := p.op
		opErr := b.db.Transaction(func(tx *gorm.DB) error {
			return op(tx)
		})
		if opErr != nil && !isDomainError(opErr) {
			opErr = domain.NewBatcherError(opErr)
		}
		p.done <- opErr
	}
}

// isDomainError reports whether err already belongs to the closed taxonomy,
// in which case it is the logical transaction's own failure rather than a
// storage-level one.
func isDomainError(err error) bool {
	var (
		notFound    domain.NotFoundError
		concurrency domain.ConcurrencyError
		invariant   domain.InvariantViolationError
		uniqueness  domain.UniquenessError
		validation  domain.ValidationError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &concurrency) ||
		errors.As(err, &invariant) ||
		errors.As(err, &uniqueness) ||
		errors.As(err, &validation)
}
