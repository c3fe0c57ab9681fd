package database

import (
	"context"
	"testing"
	"time"

	"reswatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRestaurant(t *testing.T, db *DB) *models.Restaurant {
	t.Helper()
	r := &models.Restaurant{
		Name:     "Carbone",
		Platform: models.PlatformResy,
		URL:      "https://resy.com/cities/ny/carbone",
	}
	require.NoError(t, db.CreateRestaurant(context.Background(), r))
	return r
}

func testWatchJob(restaurantID int64) *models.WatchJob {
	return &models.WatchJob{
		RestaurantID:       restaurantID,
		TargetDate:         time.Now().AddDate(0, 0, 14),
		TimeSlots:          []string{"7:00 PM", "7:30 PM"},
		PartySize:          2,
		Status:             models.StatusPending,
		MonitoringStrategy: models.StrategyContinuous,
		PollIntervalSec:    30,
	}
}

func TestWatchJobCRUD(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	r := testRestaurant(t, db)

	job := testWatchJob(r.ID)
	err := db.CreateWatchJob(ctx, job)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID, "id should be assigned on insert")

	found, err := db.GetWatchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.RestaurantID, found.RestaurantID)
	assert.Equal(t, []string{"7:00 PM", "7:30 PM"}, found.TimeSlots)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Nil(t, found.BookedAt)

	err = db.UpdateWatchJobStatus(ctx, job.ID, models.StatusMonitoring)
	require.NoError(t, err)

	found, err = db.GetWatchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusMonitoring, found.Status)
}

func TestGetWatchJob_NotFound(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.GetWatchJob(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetActiveWatchJobs(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	r := testRestaurant(t, db)

	statuses := []string{
		models.StatusPending,
		models.StatusMonitoring,
		models.StatusBooked,
		models.StatusFailed,
		models.StatusPaused,
		models.StatusCancelled,
	}
	for _, status := range statuses {
		job := testWatchJob(r.ID)
		job.Status = status
		require.NoError(t, db.CreateWatchJob(ctx, job))
	}

	active, err := db.GetActiveWatchJobs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	for _, job := range active {
		assert.Contains(t, []string{models.StatusPending, models.StatusMonitoring}, job.Status)
	}

	all, err := db.ListWatchJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(statuses))
}

func TestMarkWatchJobBooked(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	r := testRestaurant(t, db)

	job := testWatchJob(r.ID)
	require.NoError(t, db.CreateWatchJob(ctx, job))

	bookedAt := time.Now()
	err := db.MarkWatchJobBooked(ctx, job.ID, bookedAt, "ABC123")
	require.NoError(t, err)

	found, err := db.GetWatchJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusBooked, found.Status)
	assert.Equal(t, "ABC123", found.ConfirmationCode)
	require.NotNil(t, found.BookedAt)
	assert.WithinDuration(t, bookedAt, *found.BookedAt, time.Second)
}

func TestSlotRoundTrip(t *testing.T) {
	assert.Equal(t, "7:00 PM,7:30 PM", joinSlots([]string{"7:00 PM", " 7:30 PM ", ""}))
	assert.Equal(t, []string{"7:00 PM", "7:30 PM"}, splitSlots("7:00 PM, 7:30 PM"))
	assert.Nil(t, splitSlots(""))
}
