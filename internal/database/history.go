package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reswatch/internal/models"
)

const historyColumns = `id, watch_job_id, restaurant, date, time, party_size, platform, status,
           confirmation_code, attempt_log, error_details, created_at`

// CreateBookingRecord appends an audit entry. Records are never updated.
func (db *DB) CreateBookingRecord(ctx context.Context, rec *models.BookingHistoryRecord) error {
	now := time.Now()
	query := `INSERT INTO booking_history (watch_job_id, restaurant, date, time, party_size, platform, status,
              confirmation_code, attempt_log, error_details, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.ExecContext(ctx, query,
		rec.WatchJobID,
		rec.Restaurant,
		rec.Date,
		rec.Time,
		rec.PartySize,
		rec.Platform,
		rec.Status,
		rec.ConfirmationCode,
		rec.AttemptLog,
		rec.ErrorDetails,
		now,
	)
	if err != nil {
		return fmt.Errorf("create booking record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create booking record id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

func (db *DB) GetHistoryByDateRange(ctx context.Context, start, end time.Time) ([]models.BookingHistoryRecord, error) {
	query := `SELECT ` + historyColumns + `
              FROM booking_history
              WHERE date BETWEEN ? AND ?
              ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, query, start.Format("2006-01-02"), end.Format("2006-01-02"))
	if err != nil {
		return nil, fmt.Errorf("get history by date range: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

func (db *DB) GetJobHistory(ctx context.Context, jobID string) ([]models.BookingHistoryRecord, error) {
	query := `SELECT ` + historyColumns + `
              FROM booking_history
              WHERE watch_job_id = ?
              ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job history: %w", err)
	}
	defer rows.Close()

	return scanHistory(rows)
}

func (db *DB) GetBookingRecord(ctx context.Context, id int64) (*models.BookingHistoryRecord, error) {
	query := `SELECT ` + historyColumns + ` FROM booking_history WHERE id = ?`

	rows, err := db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get booking record: %w", err)
	}
	defer rows.Close()

	recs, err := scanHistory(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return &recs[0], nil
}

func scanHistory(rows *sql.Rows) ([]models.BookingHistoryRecord, error) {
	var records []models.BookingHistoryRecord
	for rows.Next() {
		var rec models.BookingHistoryRecord
		var jobID, confirmation, attemptLog, errDetails, slotTime sql.NullString
		err := rows.Scan(
			&rec.ID,
			&jobID,
			&rec.Restaurant,
			&rec.Date,
			&slotTime,
			&rec.PartySize,
			&rec.Platform,
			&rec.Status,
			&confirmation,
			&attemptLog,
			&errDetails,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan booking record: %w", err)
		}
		if jobID.Valid {
			rec.WatchJobID = &jobID.String
		}
		rec.Time = slotTime.String
		rec.ConfirmationCode = confirmation.String
		rec.AttemptLog = attemptLog.String
		rec.ErrorDetails = errDetails.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
