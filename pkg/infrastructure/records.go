package infrastructure

import "time"

// SnapshotRecord is the database schema for aggregate snapshots. One row per
// aggregate; rows are overwritten in place so the latest version wins.
type SnapshotRecord struct {
	AggregateID   string `gorm:"primaryKey"`
	CorrelationID string `gorm:"index"`
	Version       int
	Payload       string `gorm:"type:text"` // versioned snapshot envelope, JSON
	UpdatedAt     time.Time
}

// TableName returns the table name for GORM
func (SnapshotRecord) TableName() string {
	return "snapshots"
}

// EventRecord is the database schema for the append-only event log. The
// natural key is (aggregate_id, version).
type EventRecord struct {
	ID            string `gorm:"primaryKey"`
	AggregateID   string `gorm:"index:idx_events_aggregate_version,unique"`
	Version       int    `gorm:"index:idx_events_aggregate_version,unique"`
	EventName     string `gorm:"index"`
	CorrelationID string `gorm:"index"`
	UserID        string
	OccurredAt    time.Time `gorm:"index"`
	Payload       string    `gorm:"type:text"` // {priorState, newState}, JSON
	CreatedAt     time.Time
}

// TableName returns the table name for GORM
func (EventRecord) TableName() string {
	return "events"
}

// Outbox row statuses.
const (
	OutboxStatusPending = "pending"
)

// OutboxRecord is the database schema for the transactional outbox. Rows are
// written in the same physical transaction as the snapshot and event rows and
// deleted once every registered handler has completed.
type OutboxRecord struct {
	ID          string `gorm:"primaryKey"` // ksuid, so claim order follows insert order
	AggregateID string `gorm:"index"`
	EventName   string `gorm:"index"`
	Payload     string `gorm:"type:text"`
	Status      string `gorm:"index;default:pending"`
	CreatedAt   time.Time
}

// TableName returns the table name for GORM
func (OutboxRecord) TableName() string {
	return "outbox"
}

// Processing row statuses.
const (
	ProcessingStatusPending   = "pending"
	ProcessingStatusCompleted = "completed"
	ProcessingStatusFailed    = "failed"
)

// OutboxProcessingRecord tracks delivery of one outbox row to one handler.
// The idempotency key "<outboxID>:<handlerID>" deduplicates retries, which is
// what upgrades at-least-once delivery to exactly-once per handler.
type OutboxProcessingRecord struct {
	ID             string `gorm:"primaryKey"`
	OutboxID       string `gorm:"index"`
	HandlerID      string `gorm:"index"`
	Status         string `gorm:"index;default:pending"`
	RetryCount     int
	NextRetryAt    time.Time
	IdempotencyKey string `gorm:"uniqueIndex"`
	LastError      string `gorm:"type:text"`
	UpdatedAt      time.Time
}

// TableName returns the table name for GORM
func (OutboxProcessingRecord) TableName() string {
	return "outbox_processing"
}

// OutboxDLQRecord holds deliveries that exhausted their retries or failed
// permanently, together with the final error.
type OutboxDLQRecord struct {
	ID              string `gorm:"primaryKey"`
	OutboxID        string `gorm:"index"`
	HandlerID       string `gorm:"index"`
	EventName       string
	Payload         string `gorm:"type:text"`
	FinalRetryCount int
	ErrorMessage    string `gorm:"type:text"`
	FailedAt        time.Time
}

// TableName returns the table name for GORM
func (OutboxDLQRecord) TableName() string {
	return "outbox_dlq"
}
