package models

// Watch job statuses. booked, failed and cancelled are terminal.
const (
	StatusPending    = "pending"
	StatusMonitoring = "monitoring"
	StatusBooked     = "booked"
	StatusFailed     = "failed"
	StatusPaused     = "paused"
	StatusCancelled  = "cancelled"
)

// Monitoring strategies.
const (
	StrategyContinuous  = "continuous"
	StrategyReleaseTime = "release_time"
)

// Reservation platforms. Only Resy is wired into the scheduler; jobs for
// other platforms are accepted and left pending.
const (
	PlatformResy      = "resy"
	PlatformOpenTable = "opentable"
)

// Booking history outcomes.
const (
	HistorySuccess   = "success"
	HistoryFailed    = "failed"
	HistoryConflict  = "conflict"
	HistoryAttempted = "attempted"
)

// Sync queue task lifecycle.
const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"

	SyncTaskHistoryRecord = "history_record"
)

const (
	// DefaultTickInterval seconds between scheduler scans
	DefaultTickIntervalSec = 10

	// DefaultMaxConcurrent ceiling on in-flight job processors
	DefaultMaxConcurrent = 10

	// DefaultPollIntervalSec base cadence for continuous jobs
	DefaultPollIntervalSec = 30

	// MaxBackoffSec cap on any computed backoff delay
	MaxBackoffSec = 300

	// WorkerQueueSize in-memory buffer of the history sync worker
	WorkerQueueSize = 128
)
