package domain

import (
	"context"
	"time"

	"reswatch/internal/models"
	"reswatch/internal/resy"
)

type Repository interface {
	GetActiveWatchJobs(ctx context.Context) ([]models.WatchJob, error)
	GetWatchJob(ctx context.Context, id string) (*models.WatchJob, error)
	ListWatchJobs(ctx context.Context) ([]models.WatchJob, error)
	CreateWatchJob(ctx context.Context, job *models.WatchJob) error
	UpdateWatchJobStatus(ctx context.Context, id, status string) error
	MarkWatchJobBooked(ctx context.Context, id string, bookedAt time.Time, confirmationCode string) error

	GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error)
	CreateRestaurant(ctx context.Context, r *models.Restaurant) error
	UpdateRestaurantVenueID(ctx context.Context, id int64, venueID string) error

	CreateBookingRecord(ctx context.Context, rec *models.BookingHistoryRecord) error
	GetHistoryByDateRange(ctx context.Context, start, end time.Time) ([]models.BookingHistoryRecord, error)
	GetJobHistory(ctx context.Context, jobID string) ([]models.BookingHistoryRecord, error)
}

// CredentialStore returns the stored session for a platform, or nil when
// the user has never signed in. The scheduler never mutates sessions.
type CredentialStore interface {
	GetCredential(ctx context.Context, platform string) (*models.Session, error)
}

// AvailabilityClient is the platform-facing surface the job processor
// depends on.
type AvailabilityClient interface {
	ResolveVenueID(ctx context.Context, creds resy.Credentials, restaurantURL string) (string, error)
	FindAvailability(ctx context.Context, creds resy.Credentials, venueID string, date time.Time, partySize int) ([]resy.Slot, error)
	GetBookingToken(ctx context.Context, creds resy.Credentials, slotToken string, date time.Time, partySize int) (string, error)
	GetPaymentMethod(ctx context.Context, creds resy.Credentials) (int64, error)
	Book(ctx context.Context, creds resy.Credentials, bookToken string, paymentMethodID int64) (string, error)
}

// Notifier delivers user-facing alerts. Delivery is best effort; callers
// log failures and move on.
type Notifier interface {
	NotifyBookingSuccess(name, date, timeSlot, confirmationCode string) error
	NotifyBookingFailed(name, reason string) error
	NotifyCaptchaRequired(name string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// SyncWorker accepts history records for asynchronous export.
type SyncWorker interface {
	EnqueueRecord(ctx context.Context, rec *models.BookingHistoryRecord) error
}
