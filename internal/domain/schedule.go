package domain

import (
	"encoding/json"
	"time"

	"github.com/akeemphilbert/mercato/pkg/domain"
	"github.com/segmentio/ksuid"
)

// ScheduleKind is the snapshot envelope kind tag for schedules.
const ScheduleKind = "schedule"

// ScheduleStatus is the schedule lifecycle.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleExecuting ScheduleStatus = "executing"
	ScheduleExecuted  ScheduleStatus = "executed"
	ScheduleFailed    ScheduleStatus = "failed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduleState is the serialized state of a schedule aggregate: a future
// command frozen with everything needed to dispatch it later.
type ScheduleState struct {
	ID                  string          `json:"id"`
	CorrelationID       string          `json:"correlationId"`
	TargetAggregateID   string          `json:"targetAggregateId"`
	TargetAggregateType string          `json:"targetAggregateType"`
	CommandType         string          `json:"commandType"`
	CommandData         json.RawMessage `json:"commandData"`
	ScheduledFor        time.Time       `json:"scheduledFor"`
	Status              ScheduleStatus  `json:"status"`
	RetryCount          int             `json:"retryCount"`
	NextRetryAt         *time.Time      `json:"nextRetryAt,omitempty"`
	ErrorMessage        string          `json:"errorMessage,omitempty"`
	CreatedBy           string          `json:"createdBy"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// Schedule is the schedule aggregate. The embedded command is opaque to the
// aggregate; the scheduler driver decodes and dispatches it when due.
type Schedule struct {
	root
	state ScheduleState
}

// NewScheduleParams are the creation parameters for a schedule.
type NewScheduleParams struct {
	CorrelationID       string
	UserID              string
	TargetAggregateID   string
	TargetAggregateType string
	CommandType         string
	CommandData         json.RawMessage
	ScheduledFor        time.Time
}

// NewSchedule creates a pending schedule with version 0 and a single
// schedule.created event.
func NewSchedule(params NewScheduleParams) (*Schedule, error) {
	if params.TargetAggregateID == "" {
		return nil, domain.NewValidationError("targetAggregateId", "target aggregate id is required")
	}
	if params.CommandType == "" {
		return nil, domain.NewValidationError("commandType", "command type is required")
	}
	if params.ScheduledFor.IsZero() {
		return nil, domain.NewValidationError("scheduledFor", "scheduled time is required")
	}

	now := time.Now()
	s := &Schedule{
		state: ScheduleState{
			ID:                  ksuid.New().String(),
			CorrelationID:       params.CorrelationID,
			TargetAggregateID:   params.TargetAggregateID,
			TargetAggregateType: params.TargetAggregateType,
			CommandType:         params.CommandType,
			CommandData:         params.CommandData,
			ScheduledFor:        params.ScheduledFor,
			Status:              SchedulePending,
			CreatedBy:           params.UserID,
			CreatedAt:           now,
			UpdatedAt:           now,
		},
	}
	return s, s.record("created", params.UserID, domain.EmptyState)
}

// LoadSchedule reconstructs a schedule from its latest snapshot.
func LoadSchedule(snapshot domain.Snapshot) (*Schedule, error) {
	state, err := domain.UnmarshalSnapshot(ScheduleKind, snapshot.Payload)
	if err != nil {
		return nil, err
	}
	s := &Schedule{root: root{version: snapshot.Version}}
	if err := json.Unmarshal(state, &s.state); err != nil {
		return nil, err
	}
	return s, nil
}

// ID implements domain.Aggregate.
func (s *Schedule) ID() string { return s.state.ID }

// Kind implements domain.Aggregate.
func (s *Schedule) Kind() string { return ScheduleKind }

// CorrelationID implements domain.Aggregate.
func (s *Schedule) CorrelationID() string { return s.state.CorrelationID }

// ToSnapshot implements domain.Aggregate.
func (s *Schedule) ToSnapshot() (domain.Snapshot, error) {
	payload, err := domain.MarshalSnapshot(ScheduleKind, s.state)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		AggregateID:   s.state.ID,
		CorrelationID: s.state.CorrelationID,
		Version:       s.version,
		Payload:       payload,
	}, nil
}

// State returns a copy of the current state.
func (s *Schedule) State() ScheduleState {
	return s.state
}

// MarkExecuting claims a due pending schedule for execution.
func (s *Schedule) MarkExecuting(userID string) error {
	if s.state.Status != SchedulePending {
		return domain.NewInvariantViolationError(s.state.ID, "Only a pending schedule can start executing")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = ScheduleExecuting
	return s.mutate("execution_started", userID, prior)
}

// MarkExecuted finishes a successful execution.
func (s *Schedule) MarkExecuted(userID string) error {
	if s.state.Status != ScheduleExecuting {
		return domain.NewInvariantViolationError(s.state.ID, "Only an executing schedule can be marked executed")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = ScheduleExecuted
	s.state.ErrorMessage = ""
	s.state.NextRetryAt = nil
	return s.mutate("executed", userID, prior)
}

// RecordFailure books a transient execution failure: the schedule returns to
// pending with retry bookkeeping so the driver picks it up after nextRetryAt.
func (s *Schedule) RecordFailure(userID, errorMessage string, nextRetryAt time.Time) error {
	if s.state.Status != ScheduleExecuting {
		return domain.NewInvariantViolationError(s.state.ID, "Only an executing schedule can record a failure")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = SchedulePending
	s.state.RetryCount++
	s.state.NextRetryAt = &nextRetryAt
	s.state.ErrorMessage = errorMessage
	return s.mutate("retried", userID, prior)
}

// Fail moves the schedule to the terminal failed state, either after
// exhausting retries or immediately on a permanent failure.
func (s *Schedule) Fail(userID, errorMessage string) error {
	if s.state.Status != ScheduleExecuting {
		return domain.NewInvariantViolationError(s.state.ID, "Only an executing schedule can fail")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = ScheduleFailed
	s.state.ErrorMessage = errorMessage
	s.state.NextRetryAt = nil
	return s.mutate("failed", userID, prior)
}

// Cancel withdraws a pending schedule.
func (s *Schedule) Cancel(userID string) error {
	if s.state.Status != SchedulePending {
		return domain.NewInvariantViolationError(s.state.ID, "Only a pending schedule can be cancelled")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.Status = ScheduleCancelled
	return s.mutate("cancelled", userID, prior)
}

// Reschedule changes the due time and, optionally, the embedded command data
// of a pending schedule.
func (s *Schedule) Reschedule(userID string, scheduledFor time.Time, commandData json.RawMessage) error {
	if s.state.Status != SchedulePending {
		return domain.NewInvariantViolationError(s.state.ID, "Only a pending schedule can be rescheduled")
	}
	if scheduledFor.IsZero() {
		return domain.NewValidationError("scheduledFor", "scheduled time is required")
	}
	prior, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.state.ScheduledFor = scheduledFor
	if commandData != nil {
		s.state.CommandData = commandData
	}
	return s.mutate("rescheduled", userID, prior)
}

func (s *Schedule) mutate(eventType, userID string, prior json.RawMessage) error {
	s.state.UpdatedAt = time.Now()
	s.version++
	return s.record(eventType, userID, prior)
}

func (s *Schedule) record(eventType, userID string, prior json.RawMessage) error {
	next, err := marshalState(s.state)
	if err != nil {
		return err
	}
	s.root.record(domain.NewEntityEvent(ScheduleKind, eventType, s.state.ID, s.state.CorrelationID, userID, s.version, prior, next))
	return nil
}
