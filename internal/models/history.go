package models

import "time"

// BookingHistoryRecord is an immutable audit entry appended on every
// terminal outcome of a processing attempt. WatchJobID is nil for manual
// bookings made outside the scheduler.
type BookingHistoryRecord struct {
	ID               int64     `json:"id"`
	WatchJobID       *string   `json:"watch_job_id,omitempty"`
	Restaurant       string    `json:"restaurant"`
	Date             string    `json:"date"` // YYYY-MM-DD
	Time             string    `json:"time"` // display time
	PartySize        int       `json:"party_size"`
	Platform         string    `json:"platform"`
	Status           string    `json:"status"`
	ConfirmationCode string    `json:"confirmation_code,omitempty"`
	AttemptLog       string    `json:"attempt_log,omitempty"`
	ErrorDetails     string    `json:"error_details,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
