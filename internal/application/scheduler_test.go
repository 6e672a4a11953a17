package application

import (
	"context"
	"testing"
	"time"

	"github.com/akeemphilbert/mercato/internal/domain"
	appinfra "github.com/akeemphilbert/mercato/internal/infrastructure"
	"github.com/akeemphilbert/mercato/pkg/infrastructure"
)

func newTestScheduler(r *testRuntime) *SchedulerDriver {
	return NewSchedulerDriver(r.services, r.views, r.bus, infrastructure.NopLogger(), infrastructure.SchedulerConfig{
		PollInterval: time.Hour, // driven manually via Tick
		MaxRetries:   3,
		BackoffBase:  2,
	})
}

func TestScheduledDropExecutes(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "drop-tee")

	dropAt := time.Now().Add(24 * time.Hour)
	err := r.services.ScheduleProductDrop(ctx, ScheduleProductDrop{
		ID: productID, UserID: "u", ExpectedVersion: 0,
		ScheduledFor: dropAt, Visible: true,
	})
	if err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}

	// Target is parked for the drop and the schedule is visible pending
	if got := r.loadProductState(t, productID).Status; got != domain.StatusVisiblePendingDrop {
		t.Fatalf("Expected visible_pending_drop, got %s", got)
	}
	var scheduleRow appinfra.ScheduleViewRecord
	if err := r.db.First(&scheduleRow, "target_aggregate_id = ?", productID).Error; err != nil {
		t.Fatalf("Expected schedule view row: %v", err)
	}
	if scheduleRow.Status != string(domain.SchedulePending) {
		t.Errorf("Expected pending schedule, got %s", scheduleRow.Status)
	}
	if scheduleRow.CommandType != CmdCompleteProductDrop {
		t.Errorf("Expected embedded %s command, got %s", CmdCompleteProductDrop, scheduleRow.CommandType)
	}

	driver := newTestScheduler(r)

	// Before the due time nothing runs
	driver.now = func() time.Time { return dropAt.Add(-time.Minute) }
	if _, err := driver.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if got := r.loadProductState(t, productID).Status; got != domain.StatusVisiblePendingDrop {
		t.Errorf("Expected drop untouched before due time, got %s", got)
	}

	// At the due time the embedded command runs and both sides settle
	driver.now = func() time.Time { return dropAt.Add(time.Minute) }
	if _, err := driver.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	if got := r.loadProductState(t, productID).Status; got != domain.StatusActive {
		t.Errorf("Expected product active after drop, got %s", got)
	}
	if err := r.db.First(&scheduleRow, "schedule_id = ?", scheduleRow.ScheduleID).Error; err != nil {
		t.Fatalf("Failed to reload schedule row: %v", err)
	}
	if scheduleRow.Status != string(domain.ScheduleExecuted) {
		t.Errorf("Expected schedule executed, got %s", scheduleRow.Status)
	}
}

func TestCancelSchedule_RevertsPendingDrop(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "drop-tee")

	err := r.services.ScheduleProductDrop(ctx, ScheduleProductDrop{
		ID: productID, UserID: "u", ExpectedVersion: 0,
		ScheduledFor: time.Now().Add(time.Hour), Visible: false,
	})
	if err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}

	var scheduleRow appinfra.ScheduleViewRecord
	if err := r.db.First(&scheduleRow, "target_aggregate_id = ?", productID).Error; err != nil {
		t.Fatalf("Expected schedule view row: %v", err)
	}

	err = r.services.CancelSchedule(ctx, CancelSchedule{
		ID: scheduleRow.ScheduleID, UserID: "u", ExpectedVersion: 0,
	})
	if err != nil {
		t.Fatalf("Failed to cancel: %v", err)
	}

	if got := r.loadProductState(t, productID).Status; got != domain.StatusDraft {
		t.Errorf("Expected product back in draft, got %s", got)
	}
	if err := r.db.First(&scheduleRow, "schedule_id = ?", scheduleRow.ScheduleID).Error; err != nil {
		t.Fatalf("Failed to reload schedule row: %v", err)
	}
	if scheduleRow.Status != string(domain.ScheduleCancelled) {
		t.Errorf("Expected cancelled, got %s", scheduleRow.Status)
	}

	// A cancelled schedule is never picked up
	driver := newTestScheduler(r)
	driver.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := driver.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if got := r.loadProductState(t, productID).Status; got != domain.StatusDraft {
		t.Errorf("Expected product still draft, got %s", got)
	}
}

func TestScheduler_PermanentFailureFailsSchedule(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "drop-tee")

	dropAt := time.Now().Add(time.Hour)
	err := r.services.ScheduleProductDrop(ctx, ScheduleProductDrop{
		ID: productID, UserID: "u", ExpectedVersion: 0, ScheduledFor: dropAt, Visible: true,
	})
	if err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}

	// Sabotage the drop: archive the product so CompleteProductDrop hits an
	// invariant violation, which is permanent.
	err = r.services.ArchiveProduct(ctx, ArchiveProduct{ID: productID, UserID: "u", ExpectedVersion: 1})
	if err != nil {
		t.Fatalf("Failed to archive: %v", err)
	}

	driver := newTestScheduler(r)
	driver.now = func() time.Time { return dropAt.Add(time.Minute) }
	if _, err := driver.Tick(ctx); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	var scheduleRow appinfra.ScheduleViewRecord
	if err := r.db.First(&scheduleRow, "target_aggregate_id = ?", productID).Error; err != nil {
		t.Fatalf("Failed to load schedule row: %v", err)
	}
	if scheduleRow.Status != string(domain.ScheduleFailed) {
		t.Errorf("Expected failed schedule, got %s", scheduleRow.Status)
	}
	if scheduleRow.ErrorMessage == "" {
		t.Error("Expected the failure message to be recorded")
	}
}

func TestRescheduleSchedule(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()
	productID := r.createProduct(t, "drop-tee")

	err := r.services.ScheduleProductDrop(ctx, ScheduleProductDrop{
		ID: productID, UserID: "u", ExpectedVersion: 0,
		ScheduledFor: time.Now().Add(time.Hour), Visible: true,
	})
	if err != nil {
		t.Fatalf("Failed to schedule drop: %v", err)
	}
	var scheduleRow appinfra.ScheduleViewRecord
	if err := r.db.First(&scheduleRow, "target_aggregate_id = ?", productID).Error; err != nil {
		t.Fatalf("Expected schedule view row: %v", err)
	}

	newTime := time.Now().Add(72 * time.Hour)
	err = r.services.RescheduleSchedule(ctx, RescheduleSchedule{
		ID: scheduleRow.ScheduleID, UserID: "u", ExpectedVersion: 0, ScheduledFor: newTime,
	})
	if err != nil {
		t.Fatalf("Failed to reschedule: %v", err)
	}

	if err := r.db.First(&scheduleRow, "schedule_id = ?", scheduleRow.ScheduleID).Error; err != nil {
		t.Fatalf("Failed to reload schedule row: %v", err)
	}
	if !scheduleRow.ScheduledFor.Equal(newTime) {
		t.Errorf("Expected scheduledFor %v, got %v", newTime, scheduleRow.ScheduledFor)
	}
}
