package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"reswatch/internal/models"
	"reswatch/internal/resy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetActiveWatchJobs(ctx context.Context) ([]models.WatchJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WatchJob), args.Error(1)
}
func (m *mockRepo) GetWatchJob(ctx context.Context, id string) (*models.WatchJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WatchJob), args.Error(1)
}
func (m *mockRepo) ListWatchJobs(ctx context.Context) ([]models.WatchJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.WatchJob), args.Error(1)
}
func (m *mockRepo) CreateWatchJob(ctx context.Context, job *models.WatchJob) error {
	return m.Called(ctx, job).Error(0)
}
func (m *mockRepo) UpdateWatchJobStatus(ctx context.Context, id, status string) error {
	return m.Called(ctx, id, status).Error(0)
}
func (m *mockRepo) MarkWatchJobBooked(ctx context.Context, id string, bookedAt time.Time, code string) error {
	return m.Called(ctx, id, bookedAt, code).Error(0)
}
func (m *mockRepo) GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Restaurant), args.Error(1)
}
func (m *mockRepo) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	return m.Called(ctx, r).Error(0)
}
func (m *mockRepo) UpdateRestaurantVenueID(ctx context.Context, id int64, venueID string) error {
	return m.Called(ctx, id, venueID).Error(0)
}
func (m *mockRepo) CreateBookingRecord(ctx context.Context, rec *models.BookingHistoryRecord) error {
	return m.Called(ctx, rec).Error(0)
}
func (m *mockRepo) GetHistoryByDateRange(ctx context.Context, s, e time.Time) ([]models.BookingHistoryRecord, error) {
	args := m.Called(ctx, s, e)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingHistoryRecord), args.Error(1)
}
func (m *mockRepo) GetJobHistory(ctx context.Context, jobID string) ([]models.BookingHistoryRecord, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.BookingHistoryRecord), args.Error(1)
}

type mockCreds struct {
	mock.Mock
}

func (m *mockCreds) GetCredential(ctx context.Context, platform string) (*models.Session, error) {
	args := m.Called(ctx, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Session), args.Error(1)
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) ResolveVenueID(ctx context.Context, creds resy.Credentials, url string) (string, error) {
	args := m.Called(ctx, creds, url)
	return args.String(0), args.Error(1)
}
func (m *mockClient) FindAvailability(ctx context.Context, creds resy.Credentials, venueID string, date time.Time, partySize int) ([]resy.Slot, error) {
	args := m.Called(ctx, creds, venueID, date, partySize)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]resy.Slot), args.Error(1)
}
func (m *mockClient) GetBookingToken(ctx context.Context, creds resy.Credentials, slotToken string, date time.Time, partySize int) (string, error) {
	args := m.Called(ctx, creds, slotToken, date, partySize)
	return args.String(0), args.Error(1)
}
func (m *mockClient) GetPaymentMethod(ctx context.Context, creds resy.Credentials) (int64, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(int64), args.Error(1)
}
func (m *mockClient) Book(ctx context.Context, creds resy.Credentials, bookToken string, paymentMethodID int64) (string, error) {
	args := m.Called(ctx, creds, bookToken, paymentMethodID)
	return args.String(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyBookingSuccess(name, date, timeSlot, code string) error {
	return m.Called(name, date, timeSlot, code).Error(0)
}
func (m *mockNotifier) NotifyBookingFailed(name, reason string) error {
	return m.Called(name, reason).Error(0)
}
func (m *mockNotifier) NotifyCaptchaRequired(name string) error {
	return m.Called(name).Error(0)
}

type procFixture struct {
	repo     *mockRepo
	creds    *mockCreds
	client   *mockClient
	notifier *mockNotifier
	state    *runtimeState
	proc     *Processor
}

func newProcFixture() *procFixture {
	f := &procFixture{
		repo:     &mockRepo{},
		creds:    &mockCreds{},
		client:   &mockClient{},
		notifier: &mockNotifier{},
		state:    newRuntimeState(),
	}
	logger := zerolog.Nop()
	f.proc = NewProcessor(f.repo, f.creds, f.client, f.notifier, nil, nil, f.state, &logger)
	return f
}

func monitoringJob() *models.WatchJob {
	return &models.WatchJob{
		ID:                 "job-1",
		RestaurantID:       1,
		TargetDate:         time.Now().AddDate(0, 0, 7),
		TimeSlots:          []string{"7:00 PM"},
		PartySize:          2,
		Status:             models.StatusMonitoring,
		MonitoringStrategy: models.StrategyContinuous,
		PollIntervalSec:    30,
	}
}

func resyRestaurant() *models.Restaurant {
	return &models.Restaurant{
		ID:       1,
		Name:     "Carbone",
		Platform: models.PlatformResy,
		URL:      "https://resy.com/cities/ny/carbone",
		VenueID:  "999",
	}
}

func resySession() *models.Session {
	return &models.Session{Platform: models.PlatformResy, APIKey: "key", AuthToken: "token"}
}

func TestProcess_BookedJobIsNoOp(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	job.Status = models.StatusBooked

	f.proc.Process(context.Background(), job)

	f.client.AssertNotCalled(t, "Book", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "GetRestaurantByID", mock.Anything, mock.Anything)
}

func TestProcess_UnsupportedPlatformStaysPending(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	job.Status = models.StatusPending
	restaurant := resyRestaurant()
	restaurant.Platform = models.PlatformOpenTable

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(restaurant, nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusPending, job.Status)
	f.repo.AssertNotCalled(t, "UpdateWatchJobStatus", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "CreateBookingRecord", mock.Anything, mock.Anything)
}

func TestProcess_PendingActivatesToMonitoring(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	job.Status = models.StatusPending

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusMonitoring).Return(nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return([]resy.Slot{}, nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	f.repo.AssertExpectations(t)
}

func TestProcess_ExpiredTargetDateFails(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	job.TargetDate = time.Now().AddDate(0, 0, -1)
	f.state.SetLastPoll(job.ID, time.Now())
	f.state.BumpRetries(job.ID)

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusFailed).Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.Status == models.HistoryFailed && rec.ErrorDetails == reasonExpired
	})).Return(nil)
	f.notifier.On("NotifyBookingFailed", "Carbone", reasonExpired).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusFailed, job.Status)
	_, tracked := f.state.LastPoll(job.ID)
	assert.False(t, tracked, "runtime state should be cleared")
	f.repo.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestProcess_NoCredentialsFails(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(nil, nil)
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusFailed).Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.ErrorDetails == reasonNoCredentials
	})).Return(nil)
	f.notifier.On("NotifyBookingFailed", "Carbone", reasonNoCredentials).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusFailed, job.Status)
	f.repo.AssertExpectations(t)
}

func TestProcess_EmptyAuthTokenFails(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	session := resySession()
	session.AuthToken = ""

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(session, nil)
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusFailed).Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.ErrorDetails == reasonAuthExpired
	})).Return(nil)
	f.notifier.On("NotifyBookingFailed", "Carbone", reasonAuthExpired).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusFailed, job.Status)
}

func TestProcess_VenueResolutionFailureBacksOff(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	restaurant := resyRestaurant()
	restaurant.VenueID = ""

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(restaurant, nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("ResolveVenueID", mock.Anything, mock.Anything, restaurant.URL).
		Return("", &resy.VenueResolutionError{URL: restaurant.URL, Cause: errors.New("lookup failed")})

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	_, tracked := f.state.LastPoll(job.ID)
	assert.True(t, tracked, "backoff should set a rewound last poll")
	f.client.AssertNotCalled(t, "FindAvailability", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_VenueResolvedOnceAndCached(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	restaurant := resyRestaurant()
	restaurant.VenueID = ""

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(restaurant, nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("ResolveVenueID", mock.Anything, mock.Anything, restaurant.URL).Return("1234", nil)
	f.repo.On("UpdateRestaurantVenueID", mock.Anything, int64(1), "1234").Return(nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "1234", mock.Anything, 2).
		Return([]resy.Slot{}, nil)

	f.proc.Process(context.Background(), job)

	f.repo.AssertExpectations(t)
	f.client.AssertExpectations(t)
}

func TestProcess_RateLimitBacksOffAggressively(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return(nil, resy.ErrRateLimited)

	// Two consecutive 429s: the second delay uses the x3 multiplier.
	f.proc.Process(context.Background(), job)
	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	last, ok := f.state.LastPoll(job.ID)
	require.True(t, ok)
	// count=2, mult=3: delay 90s, rewound by the 30s base.
	assert.WithinDuration(t, time.Now().Add(60*time.Second), last, 2*time.Second)
}

func TestProcess_CaptchaPausesJob(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return(nil, &resy.CaptchaError{StatusCode: 403, Message: "please complete the captcha challenge"})
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusPaused).Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.Status == models.HistoryFailed && rec.ErrorDetails == reasonCaptcha
	})).Return(nil)
	f.notifier.On("NotifyCaptchaRequired", "Carbone").Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusPaused, job.Status)
	f.notifier.AssertExpectations(t)
}

func TestProcess_AuthExpiredFailsJob(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return(nil, resy.ErrAuthExpired)
	f.repo.On("UpdateWatchJobStatus", mock.Anything, "job-1", models.StatusFailed).Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.ErrorDetails == reasonAuthExpired
	})).Return(nil)
	f.notifier.On("NotifyBookingFailed", "Carbone", reasonAuthExpired).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusFailed, job.Status)
}

func TestProcess_MatchBooksFirstDesiredSlot(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	job.TimeSlots = []string{"7:00 PM", "6:00 PM"}

	slots := []resy.Slot{
		{Time: "6:00 PM", Token: "tok-6", Type: "Dining Room"},
		{Time: "7:00 PM", Token: "tok-7", Type: "Dining Room"},
	}

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).Return(slots, nil)
	// Earliest-listed desired time wins: 7:00 PM, not 6:00 PM.
	f.client.On("GetBookingToken", mock.Anything, mock.Anything, "tok-7", mock.Anything, 2).Return("book-tok", nil)
	f.client.On("GetPaymentMethod", mock.Anything, mock.Anything).Return(int64(55), nil)
	f.client.On("Book", mock.Anything, mock.Anything, "book-tok", int64(55)).Return("CONF-1", nil)
	f.repo.On("MarkWatchJobBooked", mock.Anything, "job-1", mock.Anything, "CONF-1").Return(nil)
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.Status == models.HistorySuccess && rec.Time == "7:00 PM" && rec.ConfirmationCode == "CONF-1"
	})).Return(nil)
	f.notifier.On("NotifyBookingSuccess", "Carbone", mock.Anything, "7:00 PM", "CONF-1").Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusBooked, job.Status)
	f.client.AssertNotCalled(t, "GetBookingToken", mock.Anything, mock.Anything, "tok-6", mock.Anything, mock.Anything)
	f.repo.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestProcess_NoMatchKeepsMonitoring(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return([]resy.Slot{{Time: "9:45 PM", Token: "tok-945"}}, nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	f.client.AssertNotCalled(t, "GetBookingToken", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcess_ConflictRetriesImmediately(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	f.state.SetLastPoll(job.ID, time.Now())

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return([]resy.Slot{{Time: "7:00 PM", Token: "tok-7"}}, nil)
	f.client.On("GetBookingToken", mock.Anything, mock.Anything, "tok-7", mock.Anything, 2).Return("book-tok", nil)
	f.client.On("GetPaymentMethod", mock.Anything, mock.Anything).Return(int64(55), nil)
	f.client.On("Book", mock.Anything, mock.Anything, "book-tok", int64(55)).
		Return("", &resy.APIError{StatusCode: 412, Body: "slot already booked"})
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.Status == models.HistoryConflict
	})).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	_, tracked := f.state.LastPoll(job.ID)
	assert.False(t, tracked, "conflict must clear last poll for an immediate retry")
	f.repo.AssertExpectations(t)
}

func TestProcess_GenericBookingFailureKeepsInterval(t *testing.T) {
	f := newProcFixture()
	job := monitoringJob()
	pollTime := time.Now().Add(-10 * time.Second)
	f.state.SetLastPoll(job.ID, pollTime)

	f.repo.On("GetRestaurantByID", mock.Anything, int64(1)).Return(resyRestaurant(), nil)
	f.creds.On("GetCredential", mock.Anything, models.PlatformResy).Return(resySession(), nil)
	f.client.On("FindAvailability", mock.Anything, mock.Anything, "999", mock.Anything, 2).
		Return([]resy.Slot{{Time: "7:00 PM", Token: "tok-7"}}, nil)
	f.client.On("GetBookingToken", mock.Anything, mock.Anything, "tok-7", mock.Anything, 2).Return("book-tok", nil)
	f.client.On("GetPaymentMethod", mock.Anything, mock.Anything).Return(int64(55), nil)
	f.client.On("Book", mock.Anything, mock.Anything, "book-tok", int64(55)).
		Return("", &resy.APIError{StatusCode: 500, Body: "internal error"})
	f.repo.On("CreateBookingRecord", mock.Anything, mock.MatchedBy(func(rec *models.BookingHistoryRecord) bool {
		return rec.Status == models.HistoryFailed
	})).Return(nil)

	f.proc.Process(context.Background(), job)

	assert.Equal(t, models.StatusMonitoring, job.Status)
	last, tracked := f.state.LastPoll(job.ID)
	assert.True(t, tracked, "generic failure keeps the normal interval")
	assert.Equal(t, pollTime, last)
}

func TestMatchSlot_Normalization(t *testing.T) {
	slots := []resy.Slot{{Time: "  7:00   pm ", Token: "tok"}}

	slot, ok := matchSlot([]string{"7:00 PM"}, slots)
	assert.True(t, ok)
	assert.Equal(t, "tok", slot.Token)

	_, ok = matchSlot([]string{"8:00 PM"}, slots)
	assert.False(t, ok)
}
