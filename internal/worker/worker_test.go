package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"reswatch/internal/database"
	"reswatch/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	appendCalls int
	err         error
	last        *models.BookingHistoryRecord
}

func (f *fakeSink) AppendHistoryRecord(rec *models.BookingHistoryRecord) error {
	f.appendCalls++
	f.last = rec
	return f.err
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedRecord(t *testing.T, db *database.DB) *models.BookingHistoryRecord {
	t.Helper()
	jobID := "job-1"
	rec := &models.BookingHistoryRecord{
		WatchJobID: &jobID,
		Restaurant: "Carbone",
		Date:       "2026-09-15",
		Time:       "7:00 PM",
		PartySize:  2,
		Platform:   models.PlatformResy,
		Status:     models.HistorySuccess,
	}
	require.NoError(t, db.CreateBookingRecord(context.Background(), rec))
	return rec
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{}
	logger := zerolog.Nop()
	w := NewHistoryWorker(db, sink, nil, RetryPolicy{}, &logger)

	ctx := context.Background()
	rec := seedRecord(t, db)
	require.NoError(t, w.EnqueueRecord(ctx, rec))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	assert.Equal(t, 1, sink.appendCalls)
	assert.Equal(t, "Carbone", sink.last.Restaurant)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "completed task should leave the queue")
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{err: errors.New("sheets unavailable")}
	logger := zerolog.Nop()
	w := NewHistoryWorker(db, sink, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, &logger)

	ctx := context.Background()
	rec := seedRecord(t, db)
	require.NoError(t, w.EnqueueRecord(ctx, rec))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	// First failure schedules a retry in the future.
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "retry time is in the future")

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestProcessTaskExhaustsRetries(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{err: errors.New("sheets unavailable")}
	logger := zerolog.Nop()
	w := NewHistoryWorker(db, sink, nil, RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond}, &logger)

	ctx := context.Background()
	rec := seedRecord(t, db)
	require.NoError(t, w.EnqueueRecord(ctx, rec))

	task, ok := w.tryLocalQueue()
	require.True(t, ok)

	// First attempt: retry scheduled. Second attempt: dead letter.
	w.processTask(ctx, &task)
	task.RetryCount = 1
	w.processTask(ctx, &task)

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "sheets unavailable", failed[0].LastError)
}

func TestEnqueueRecord_RequiresPersistedRecord(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.Nop()
	w := NewHistoryWorker(db, &fakeSink{}, nil, RetryPolicy{}, &logger)

	assert.Error(t, w.EnqueueRecord(context.Background(), nil))
	assert.Error(t, w.EnqueueRecord(context.Background(), &models.BookingHistoryRecord{}))
}

func TestEnqueueRecord_PushesToRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	db := newTestDB(t)
	logger := zerolog.Nop()
	w := NewHistoryWorker(db, &fakeSink{}, client, RetryPolicy{}, &logger)

	ctx := context.Background()
	rec := seedRecord(t, db)
	require.NoError(t, w.EnqueueRecord(ctx, rec))

	// Task went to redis, not the memory queue.
	_, ok := w.tryLocalQueue()
	assert.False(t, ok)

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, rec.ID, task.RecordID)
	assert.Equal(t, models.SyncTaskHistoryRecord, task.TaskType)
}

func TestRetryPolicy_NextDelay(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: 10 * time.Second, BackoffFactor: 2}

	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 10*time.Second, p.NextDelay(10), "clamped to max delay")
	assert.Equal(t, time.Second, p.NextDelay(0), "attempt floor")
}
