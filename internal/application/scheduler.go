package application

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/akeemphilbert/mercato/internal/domain"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	pkgdomain "github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

// SchedulerDriver drains due schedules: it scans the schedule view for
// pending rows whose time has come, claims each by marking the aggregate
// executing, dispatches the embedded command through the normal service
// path, and books the outcome with retry bookkeeping shaped like the
// outbox's.
type SchedulerDriver struct {
	services *Services
	views    *appinfra.ViewRepositories
	bus      *CommandBus
	logger   pkgdomain.Logger
	config   infrastructure.SchedulerConfig
	now      func() time.Time

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSchedulerDriver creates a scheduler driver.
func NewSchedulerDriver(services *Services, views *appinfra.ViewRepositories, bus *CommandBus, logger pkgdomain.Logger, config infrastructure.SchedulerConfig) *SchedulerDriver {
	return &SchedulerDriver{
		services: services,
		views:    views,
		bus:      bus,
		logger:   logger,
		config:   config,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the due-work scan loop.
func (d *SchedulerDriver) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Stop halts the loop and waits for the in-flight tick to finish.
func (d *SchedulerDriver) Stop() {
	d.stopOnce.Do(func() {
		close(d.stopCh)
	})
	<-d.doneCh
}

func (d *SchedulerDriver) run() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.Tick(context.Background()); err != nil {
				d.logger.Error("scheduler tick failed", "error", err)
			}
		case <-d.stopCh:
			return
		}
	}
}

// Tick runs one due-work scan and returns the number of schedules driven.
func (d *SchedulerDriver) Tick(ctx context.Context) (int, error) {
	due, err := d.views.Schedules.Due(ctx, d.now(), 50)
	if err != nil {
		return 0, err
	}

	for _, row := range due {
		if err := d.executeOne(ctx, row.ScheduleID); err != nil {
			d.logger.Error("schedule execution failed", "schedule_id", row.ScheduleID, "error", err)
		}
	}
	return len(due), nil
}

// executeOne drives one schedule through claim → dispatch → settle.
func (d *SchedulerDriver) executeOne(ctx context.Context, scheduleID string) error {
	// Claim: pending → executing. A schedule that is no longer pending was
	// raced by a cancel or another tick and is skipped.
	var state domain.ScheduleState
	err := d.services.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		schedule, _, err := loadSchedule(ctx, uow, scheduleID)
		if err != nil {
			return err
		}
		if err := schedule.MarkExecuting(schedule.State().CreatedBy); err != nil {
			return err
		}
		state = schedule.State()
		return persist(ctx, uow, schedule)
	})
	if err != nil {
		var invariant pkgdomain.InvariantViolationError
		if errors.As(err, &invariant) {
			return nil
		}
		return err
	}

	cmd, decodeErr := d.bus.Decode(state.CommandType, state.CommandData)
	var dispatchErr error
	if decodeErr != nil {
		dispatchErr = decodeErr
	} else {
		dispatchErr = d.bus.Dispatch(ctx, cmd)
	}

	// Settle: executing → executed | pending(retry) | failed.
	return d.services.execute(ctx, func(uow *infrastructure.UnitOfWork) error {
		schedule, _, err := loadSchedule(ctx, uow, scheduleID)
		if err != nil {
			return err
		}
		userID := schedule.State().CreatedBy

		switch {
		case dispatchErr == nil:
			err = schedule.MarkExecuted(userID)
		case decodeErr != nil || isPermanentScheduleFailure(dispatchErr) || schedule.State().RetryCount+1 >= d.config.MaxRetries:
			err = schedule.Fail(userID, dispatchErr.Error())
		default:
			retryCount := schedule.State().RetryCount + 1
			delay := time.Duration(math.Pow(d.config.BackoffBase, float64(retryCount))) * time.Second
			err = schedule.RecordFailure(userID, dispatchErr.Error(), d.now().Add(delay))
		}
		if err != nil {
			return err
		}
		return persist(ctx, uow, schedule)
	})
}

// isPermanentScheduleFailure classifies a dispatch error. Domain rule
// violations will not pass on a retry; infrastructure failures might.
func isPermanentScheduleFailure(err error) bool {
	var (
		invariant  pkgdomain.InvariantViolationError
		validation pkgdomain.ValidationError
		notFound   pkgdomain.NotFoundError
		uniqueness pkgdomain.UniquenessError
	)
	return errors.As(err, &invariant) ||
		errors.As(err, &validation) ||
		errors.As(err, &notFound) ||
		errors.As(err, &uniqueness)
}
