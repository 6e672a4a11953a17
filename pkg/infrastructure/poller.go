package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/sony/gobreaker"
	"gorm.io/gorm"
)

// OutboxMessage is what a registered handler receives: the raw
// {priorState, newState} payload plus enough envelope data to act on it.
type OutboxMessage struct {
	OutboxID    string
	AggregateID string
	EventName   string
	Payload     json.RawMessage
}

// EventPayload deserializes the message payload.
func (m OutboxMessage) EventPayload() (domain.EventPayload, error) {
	var p domain.EventPayload
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return domain.EventPayload{}, fmt.Errorf("failed to deserialize payload for outbox %s: %w", m.OutboxID, err)
	}
	return p, nil
}

// OutboxHandler consumes delivered events. Handlers must be idempotent or
// rely on the processing row's idempotency key: at-least-once is the delivery
// floor, and exactly-once per handler holds only because processing rows
// deduplicate retries. Return a domain.HandlerError with Permanent set to
// route a failure directly to the DLQ; any other error is retried with
// backoff.
type OutboxHandler interface {
	ID() string
	Handle(ctx context.Context, message OutboxMessage) error
}

// OutboxPoller delivers outbox rows to registered handlers out of band.
// It is a single writer: one instance per database. Per (outbox row, handler)
// delivery state lives in processing rows keyed by an idempotency key;
// acknowledgements are batched through an AckQueue; handlers that exhaust
// their retries are moved to the DLQ.
type OutboxPoller struct {
	db       *gorm.DB
	logger   domain.Logger
	config   OutboxConfig
	handlers map[string][]OutboxHandler
	breakers map[string]*gobreaker.CircuitBreaker
	pool     *ants.Pool
	acks     *AckQueue
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewOutboxPoller creates a poller. Register handlers before calling Start.
func NewOutboxPoller(db *gorm.DB, logger domain.Logger, config OutboxConfig) (*OutboxPoller, error) {
	pool, err := ants.NewPool(config.WorkerPoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create handler worker pool: %w", err)
	}
	return &OutboxPoller{
		db:       db,
		logger:   logger,
		config:   config,
		handlers: make(map[string][]OutboxHandler),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		pool:     pool,
		acks:     NewAckQueue(db, logger, config.AckBatchSize, config.AckFlushInterval),
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Register subscribes a handler to an event name. Multiple handlers per event
// are supported; each gets its own processing row and circuit breaker.
func (p *OutboxPoller) Register(eventName string, handler OutboxHandler) {
	p.handlers[eventName] = append(p.handlers[eventName], handler)
	if _, ok := p.breakers[handler.ID()]; !ok {
		p.breakers[handler.ID()] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: handler.ID(),
		})
	}
}

// Start launches the polling loop.
func (p *OutboxPoller) Start() {
	p.startOnce.Do(func() {
		go p.run()
	})
}

// Stop halts polling, waits for in-flight handler invocations, and flushes
// queued acknowledgements before returning.
func (p *OutboxPoller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	<-p.doneCh
	p.pool.Release()
	p.acks.Stop()
}

func (p *OutboxPoller) run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.PollOnce(context.Background()); err != nil {
				p.logger.Error("outbox poll failed", "error", err)
			}
		case <-p.stopCh:
			return
		}
	}
}

// PollOnce claims one batch of pending outbox rows and drives every due
// (outbox row, handler) pair through its handler. It returns the number of
// handler invocations performed. The loop advances only after the whole
// batch's invocations complete.
func (p *OutboxPoller) PollOnce(ctx context.Context) (int, error) {
	var rows []OutboxRecord
	err := p.db.WithContext(ctx).
		Where("status = ?", OutboxStatusPending).
		Order("id ASC").
		Limit(p.config.BatchSize).
		Find(&rows).Error
	if err != nil {
		return 0, fmt.Errorf("failed to claim outbox batch: %w", err)
	}

	now := p.now()
	var wg sync.WaitGroup
	invocations := 0

	for _, row := range rows {
		handlers := p.handlers[row.EventName]
		if len(handlers) == 0 {
			continue
		}

		for _, handler := range handlers {
			proc, due, err := p.processingRow(ctx, row, handler, now)
			if err != nil {
				return invocations, err
			}
			if !due {
				continue
			}

			invocations++
			wg.Add(1)
			row, handler, proc := row, handler, proc
			submitErr := p.pool.Submit(func() {
				defer wg.Done()
				p.invoke(ctx, row, handler, proc)
			})
			if submitErr != nil {
				wg.Done()
				invocations--
				p.logger.Error("failed to submit handler invocation",
					"handler", handler.ID(), "outbox_id", row.ID, "error", submitErr)
			}
		}
	}

	wg.Wait()
	return invocations, nil
}

// processingRow looks up or creates the per-(outbox, handler) bookkeeping row
// and reports whether the pair is due for an invocation now.
func (p *OutboxPoller) processingRow(ctx context.Context, row OutboxRecord, handler OutboxHandler, now time.Time) (OutboxProcessingRecord, bool, error) {
	key := row.ID + ":" + handler.ID()

	var proc OutboxProcessingRecord
	err := p.db.WithContext(ctx).
		Where(OutboxProcessingRecord{IdempotencyKey: key}).
		Attrs(OutboxProcessingRecord{
			ID:        uuid.NewString(),
			OutboxID:  row.ID,
			HandlerID: handler.ID(),
			Status:    ProcessingStatusPending,
			UpdatedAt: now,
		}).
		FirstOrCreate(&proc).Error
	if err != nil {
		return proc, false, fmt.Errorf("failed to load processing row %s: %w", key, err)
	}

	if proc.Status == ProcessingStatusCompleted {
		return proc, false, nil
	}
	if proc.NextRetryAt.After(now) {
		return proc, false, nil
	}
	return proc, true, nil
}

// invoke runs one handler against one outbox row and enqueues the resulting
// acknowledgement.
func (p *OutboxPoller) invoke(ctx context.Context, row OutboxRecord, handler OutboxHandler, proc OutboxProcessingRecord) {
	message := OutboxMessage{
		OutboxID:    row.ID,
		AggregateID: row.AggregateID,
		EventName:   row.EventName,
		Payload:     json.RawMessage(row.Payload),
	}

	breaker := p.breakers[handler.ID()]
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, handler.Handle(ctx, message)
	})

	expected := len(p.handlers[row.EventName])

	if err == nil {
		p.acks.enqueue(ack{
			kind:             ackCompleted,
			processingID:     proc.ID,
			outboxID:         row.ID,
			handlerID:        handler.ID(),
			expectedHandlers: expected,
		})
		return
	}

	var handlerErr domain.HandlerError
	permanent := errors.As(err, &handlerErr) && handlerErr.Permanent

	retryCount := proc.RetryCount + 1
	if permanent || retryCount >= p.config.MaxRetries {
		p.logger.Warn("outbox delivery dead-lettered",
			"outbox_id", row.ID, "handler", handler.ID(), "retries", retryCount, "error", err)
		p.acks.enqueue(ack{
			kind:             ackDLQ,
			processingID:     proc.ID,
			outboxID:         row.ID,
			handlerID:        handler.ID(),
			eventName:        row.EventName,
			payload:          row.Payload,
			retryCount:       retryCount,
			errorMessage:     err.Error(),
			expectedHandlers: expected,
		})
		return
	}

	delay := time.Duration(math.Pow(p.config.BackoffBase, float64(retryCount))) * time.Second
	p.acks.enqueue(ack{
		kind:             ackFailed,
		processingID:     proc.ID,
		outboxID:         row.ID,
		handlerID:        handler.ID(),
		retryCount:       retryCount,
		nextRetryAt:      p.now().Add(delay),
		errorMessage:     err.Error(),
		expectedHandlers: expected,
	})
}

// FlushAcks drains the acknowledgement queue synchronously. Tests use this to
// observe poll outcomes without waiting for the interval flush.
func (p *OutboxPoller) FlushAcks() {
	p.acks.Flush()
}
