package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"reswatch/internal/models"

	"github.com/google/uuid"
)

const watchJobColumns = `id, restaurant_id, target_date, time_slots, party_size, status, priority,
           monitoring_strategy, poll_interval_sec, booked_at, confirmation_code, created_at, updated_at`

// CreateWatchJob inserts a new job, assigning an id when absent.
func (db *DB) CreateWatchJob(ctx context.Context, job *models.WatchJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now

	query := `INSERT INTO watch_jobs (id, restaurant_id, target_date, time_slots, party_size, status, priority,
              monitoring_strategy, poll_interval_sec, booked_at, confirmation_code, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := db.ExecContext(ctx, query,
		job.ID,
		job.RestaurantID,
		job.TargetDate,
		joinSlots(job.TimeSlots),
		job.PartySize,
		job.Status,
		job.Priority,
		job.MonitoringStrategy,
		job.PollIntervalSec,
		job.BookedAt,
		job.ConfirmationCode,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create watch job: %w", err)
	}
	return nil
}

// GetActiveWatchJobs returns jobs the scheduler should consider: pending
// and monitoring, oldest first.
func (db *DB) GetActiveWatchJobs(ctx context.Context) ([]models.WatchJob, error) {
	query := `SELECT ` + watchJobColumns + `
              FROM watch_jobs
              WHERE status IN (?, ?)
              ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, query, models.StatusPending, models.StatusMonitoring)
	if err != nil {
		return nil, fmt.Errorf("get active watch jobs: %w", err)
	}
	defer rows.Close()

	return scanWatchJobs(rows)
}

func (db *DB) ListWatchJobs(ctx context.Context) ([]models.WatchJob, error) {
	query := `SELECT ` + watchJobColumns + ` FROM watch_jobs ORDER BY created_at DESC`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list watch jobs: %w", err)
	}
	defer rows.Close()

	return scanWatchJobs(rows)
}

func (db *DB) GetWatchJob(ctx context.Context, id string) (*models.WatchJob, error) {
	query := `SELECT ` + watchJobColumns + ` FROM watch_jobs WHERE id = ?`

	job, err := scanWatchJob(db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get watch job: %w", err)
	}
	return job, nil
}

func (db *DB) UpdateWatchJobStatus(ctx context.Context, id, status string) error {
	query := `UPDATE watch_jobs SET status = ?, updated_at = ? WHERE id = ?`

	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update watch job status: %w", err)
	}
	return nil
}

// MarkWatchJobBooked records the terminal success in one write.
func (db *DB) MarkWatchJobBooked(ctx context.Context, id string, bookedAt time.Time, confirmationCode string) error {
	query := `UPDATE watch_jobs SET status = ?, booked_at = ?, confirmation_code = ?, updated_at = ? WHERE id = ?`

	_, err := db.ExecContext(ctx, query, models.StatusBooked, bookedAt, confirmationCode, time.Now(), id)
	if err != nil {
		return fmt.Errorf("mark watch job booked: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWatchJob(row rowScanner) (*models.WatchJob, error) {
	var job models.WatchJob
	var slots string
	var bookedAt sql.NullTime
	var confirmation sql.NullString

	err := row.Scan(
		&job.ID,
		&job.RestaurantID,
		&job.TargetDate,
		&slots,
		&job.PartySize,
		&job.Status,
		&job.Priority,
		&job.MonitoringStrategy,
		&job.PollIntervalSec,
		&bookedAt,
		&confirmation,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.TimeSlots = splitSlots(slots)
	if bookedAt.Valid {
		job.BookedAt = &bookedAt.Time
	}
	job.ConfirmationCode = confirmation.String
	return &job, nil
}

func scanWatchJobs(rows *sql.Rows) ([]models.WatchJob, error) {
	var jobs []models.WatchJob
	for rows.Next() {
		job, err := scanWatchJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watch job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Time slots are stored comma-joined; display times never contain commas.
func joinSlots(slots []string) string {
	cleaned := make([]string, 0, len(slots))
	for _, s := range slots {
		if s = strings.TrimSpace(s); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitSlots(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
