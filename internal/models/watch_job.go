package models

import (
	"errors"
	"time"
)

// WatchJob is a standing request to monitor a restaurant and book the first
// matching slot that appears.
type WatchJob struct {
	ID                 string     `json:"id"`
	RestaurantID       int64      `json:"restaurant_id"`
	TargetDate         time.Time  `json:"target_date"`
	TimeSlots          []string   `json:"time_slots"` // display times, e.g. "7:00 PM"
	PartySize          int        `json:"party_size"`
	Status             string     `json:"status"`
	Priority           int        `json:"priority"` // advisory, not used for ordering
	MonitoringStrategy string     `json:"monitoring_strategy"`
	PollIntervalSec    int        `json:"poll_interval_sec"`
	BookedAt           *time.Time `json:"booked_at,omitempty"`
	ConfirmationCode   string     `json:"confirmation_code,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

var (
	ErrNoTimeSlots     = errors.New("watch job needs at least one time slot")
	ErrBadPartySize    = errors.New("party size must be positive")
	ErrPastTargetDate  = errors.New("target date is in the past")
	ErrBadStrategy     = errors.New("unknown monitoring strategy")
	ErrMissingRestaurant = errors.New("restaurant id is required")
)

func (j *WatchJob) Validate() error {
	if j.RestaurantID == 0 {
		return ErrMissingRestaurant
	}
	if len(j.TimeSlots) == 0 {
		return ErrNoTimeSlots
	}
	if j.PartySize < 1 {
		return ErrBadPartySize
	}
	switch j.MonitoringStrategy {
	case StrategyContinuous, StrategyReleaseTime:
	default:
		return ErrBadStrategy
	}
	if !j.IsTerminal() && j.TargetDate.Before(today()) {
		return ErrPastTargetDate
	}
	return nil
}

// IsTerminal reports whether the job can never be scheduled again.
func (j *WatchJob) IsTerminal() bool {
	switch j.Status {
	case StatusBooked, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// PollInterval returns the configured base cadence with the default applied.
func (j *WatchJob) PollInterval() time.Duration {
	sec := j.PollIntervalSec
	if sec <= 0 {
		sec = DefaultPollIntervalSec
	}
	return time.Duration(sec) * time.Second
}

func today() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
