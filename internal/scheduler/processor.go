package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"reswatch/internal/database"
	"reswatch/internal/domain"
	"reswatch/internal/events"
	"reswatch/internal/metrics"
	"reswatch/internal/models"
	"reswatch/internal/resy"

	"github.com/rs/zerolog"
)

// Plain-language failure reasons surfaced to the user through history
// records and notifications.
const (
	reasonExpired       = "target date has expired"
	reasonNoCredentials = "no credentials"
	reasonAuthExpired   = "session expired, sign in again"
	reasonCaptcha       = "CAPTCHA required, resolve manually"
)

// Processor runs one watch job through its checks: platform support,
// activation, expiry, credentials, venue resolution, availability, slot
// match, booking. Every failure is absorbed here; errors never reach the
// scheduler loop.
type Processor struct {
	repo   domain.Repository
	creds  domain.CredentialStore
	client domain.AvailabilityClient
	notify domain.Notifier
	events domain.EventPublisher
	sync   domain.SyncWorker
	state  *runtimeState
	logger *zerolog.Logger
}

func NewProcessor(
	repo domain.Repository,
	creds domain.CredentialStore,
	client domain.AvailabilityClient,
	notify domain.Notifier,
	publisher domain.EventPublisher,
	syncWorker domain.SyncWorker,
	state *runtimeState,
	logger *zerolog.Logger,
) *Processor {
	return &Processor{
		repo:   repo,
		creds:  creds,
		client: client,
		notify: notify,
		events: publisher,
		sync:   syncWorker,
		state:  state,
		logger: logger,
	}
}

// Process never returns an error: one job's failure must not affect the
// cadence of sibling jobs.
func (p *Processor) Process(ctx context.Context, job *models.WatchJob) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Str("job_id", job.ID).Interface("panic", r).Msg("job processing panicked")
		}
	}()

	// Terminal jobs are excluded by the loader, but a stale job handed in
	// by a racing scan must not book twice.
	if job.IsTerminal() {
		return
	}

	log := p.logger.With().Str("job_id", job.ID).Logger()

	restaurant, err := p.repo.GetRestaurantByID(ctx, job.RestaurantID)
	if err != nil {
		log.Error().Err(err).Int64("restaurant_id", job.RestaurantID).Msg("load restaurant")
		applyBackoff(p.state, job, false, time.Now())
		return
	}

	// Jobs for platforms the scheduler cannot book stay pending until the
	// platform is supported. Expected holding pattern, not an error.
	if restaurant.Platform != models.PlatformResy {
		log.Debug().Str("platform", restaurant.Platform).Msg("platform not supported, job held")
		return
	}

	if job.Status == models.StatusPending {
		if err := p.repo.UpdateWatchJobStatus(ctx, job.ID, models.StatusMonitoring); err != nil {
			log.Error().Err(err).Msg("activate job")
			return
		}
		job.Status = models.StatusMonitoring
		p.publish(events.EventJobUpdated, job.ID, models.StatusMonitoring)
	}

	if job.TargetDate.Before(startOfToday()) {
		p.failJob(ctx, job, restaurant, reasonExpired)
		return
	}

	creds, ok := p.credentials(ctx, job, restaurant)
	if !ok {
		return
	}

	venueID, ok := p.resolveVenue(ctx, job, restaurant, creds)
	if !ok {
		return
	}

	slots, err := p.client.FindAvailability(ctx, creds, venueID, job.TargetDate, job.PartySize)
	if err != nil {
		p.classifyPollError(ctx, job, restaurant, err)
		return
	}
	p.state.ResetRetries(job.ID)
	metrics.IncPoll("ok")

	slot, matched := matchSlot(job.TimeSlots, slots)
	if !matched {
		log.Debug().Int("open_slots", len(slots)).Msg("no matching slot")
		return
	}

	p.attemptBooking(ctx, job, restaurant, creds, slot)
}

// credentials loads the stored session and projects it to request
// credentials. Both a missing session and an unusable one are fatal to
// the job.
func (p *Processor) credentials(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant) (resy.Credentials, bool) {
	session, err := p.creds.GetCredential(ctx, restaurant.Platform)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			p.failJob(ctx, job, restaurant, reasonNoCredentials)
		} else {
			p.logger.Error().Err(err).Str("job_id", job.ID).Msg("load credential")
			applyBackoff(p.state, job, false, time.Now())
		}
		return resy.Credentials{}, false
	}
	if session == nil {
		p.failJob(ctx, job, restaurant, reasonNoCredentials)
		return resy.Credentials{}, false
	}
	if session.AuthToken == "" || session.APIKey == "" {
		p.failJob(ctx, job, restaurant, reasonAuthExpired)
		return resy.Credentials{}, false
	}
	return resy.Credentials{APIKey: session.APIKey, AuthToken: session.AuthToken}, true
}

// resolveVenue returns the cached venue id, resolving and persisting it
// on first use. Resolution failures are remote hiccups, retried with
// backoff.
func (p *Processor) resolveVenue(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant, creds resy.Credentials) (string, bool) {
	if restaurant.VenueID != "" {
		return restaurant.VenueID, true
	}

	venueID, err := p.client.ResolveVenueID(ctx, creds, restaurant.URL)
	if err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Str("url", restaurant.URL).Msg("venue resolution failed")
		applyBackoff(p.state, job, false, time.Now())
		return "", false
	}

	if err := p.repo.UpdateRestaurantVenueID(ctx, restaurant.ID, venueID); err != nil {
		p.logger.Error().Err(err).Int64("restaurant_id", restaurant.ID).Msg("cache venue id")
	}
	restaurant.VenueID = venueID
	return venueID, true
}

// classifyPollError maps an availability failure onto the job's fate:
// CAPTCHA pauses, stale auth fails, rate limits back off hard, anything
// else backs off normally.
func (p *Processor) classifyPollError(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant, err error) {
	var captcha *resy.CaptchaError
	switch {
	case errors.As(err, &captcha):
		metrics.IncPoll("captcha")
		p.pauseJob(ctx, job, restaurant)
	case errors.Is(err, resy.ErrAuthExpired):
		metrics.IncPoll("auth_expired")
		p.failJob(ctx, job, restaurant, reasonAuthExpired)
	case errors.Is(err, resy.ErrRateLimited):
		metrics.IncPoll("rate_limited")
		delay := applyBackoff(p.state, job, true, time.Now())
		p.logger.Warn().Str("job_id", job.ID).Dur("delay", delay).Msg("rate limited, backing off")
	default:
		metrics.IncPoll("error")
		delay := applyBackoff(p.state, job, false, time.Now())
		p.logger.Warn().Err(err).Str("job_id", job.ID).Dur("delay", delay).Msg("availability fetch failed, backing off")
	}
}

// attemptBooking fetches the booking token and payment method
// concurrently, then submits. A conflict means another party won the
// slot; the job retries on the very next tick because freed slots
// reappear briefly.
func (p *Processor) attemptBooking(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant, creds resy.Credentials, slot resy.Slot) {
	log := p.logger.With().Str("job_id", job.ID).Str("slot", slot.Time).Logger()
	log.Info().Msg("matching slot found, attempting booking")

	var (
		wg        sync.WaitGroup
		token     string
		tokenErr  error
		paymentID int64
		payErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		token, tokenErr = p.client.GetBookingToken(ctx, creds, slot.Token, job.TargetDate, job.PartySize)
	}()
	go func() {
		defer wg.Done()
		paymentID, payErr = p.client.GetPaymentMethod(ctx, creds)
	}()
	wg.Wait()

	if tokenErr != nil || token == "" {
		metrics.IncBooking("failed")
		log.Warn().Err(tokenErr).Msg("booking token unavailable")
		p.recordHistory(ctx, job, restaurant, models.HistoryFailed, slot.Time, "", fmt.Sprintf("booking token unavailable: %v", tokenErr))
		return
	}
	if payErr != nil {
		// Some bookings need no payment method; try without one.
		log.Warn().Err(payErr).Msg("payment method lookup failed, booking without one")
		paymentID = 0
	}

	confirmation, err := p.client.Book(ctx, creds, token, paymentID)
	if err != nil {
		if resy.IsBookingConflict(err) {
			metrics.IncBooking("conflict")
			log.Info().Msg("slot taken by another party, retrying next tick")
			p.recordHistory(ctx, job, restaurant, models.HistoryConflict, slot.Time, "", err.Error())
			p.state.ClearLastPoll(job.ID)
			return
		}
		metrics.IncBooking("failed")
		log.Warn().Err(err).Msg("booking failed")
		p.recordHistory(ctx, job, restaurant, models.HistoryFailed, slot.Time, "", err.Error())
		return
	}

	metrics.IncBooking("success")
	bookedAt := time.Now()
	if err := p.repo.MarkWatchJobBooked(ctx, job.ID, bookedAt, confirmation); err != nil {
		log.Error().Err(err).Msg("persist booked status")
	}
	job.Status = models.StatusBooked
	p.recordHistory(ctx, job, restaurant, models.HistorySuccess, slot.Time, confirmation, "")
	p.state.Clear(job.ID)

	if err := p.notify.NotifyBookingSuccess(restaurant.Name, job.TargetDate.Format("2006-01-02"), slot.Time, confirmation); err != nil {
		log.Warn().Err(err).Msg("success notification failed")
	}
	p.publish(events.EventBookingSuccess, job.ID, models.StatusBooked)
	log.Info().Str("confirmation", confirmation).Msg("booking confirmed")
}

func (p *Processor) failJob(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant, reason string) {
	if err := p.repo.UpdateWatchJobStatus(ctx, job.ID, models.StatusFailed); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("persist failed status")
	}
	job.Status = models.StatusFailed
	p.recordHistory(ctx, job, restaurant, models.HistoryFailed, "", "", reason)
	p.state.Clear(job.ID)

	if err := p.notify.NotifyBookingFailed(restaurant.Name, reason); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failure notification failed")
	}
	p.publish(events.EventBookingFailed, job.ID, models.StatusFailed)
}

// pauseJob stops automated polling until a human resumes the job.
func (p *Processor) pauseJob(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant) {
	if err := p.repo.UpdateWatchJobStatus(ctx, job.ID, models.StatusPaused); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("persist paused status")
	}
	job.Status = models.StatusPaused
	p.recordHistory(ctx, job, restaurant, models.HistoryFailed, "", "", reasonCaptcha)
	p.state.Clear(job.ID)

	if err := p.notify.NotifyCaptchaRequired(restaurant.Name); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("captcha notification failed")
	}
	p.publish(events.EventActionRequired, job.ID, models.StatusPaused)
}

func (p *Processor) recordHistory(ctx context.Context, job *models.WatchJob, restaurant *models.Restaurant, status, timeSlot, confirmation, details string) {
	rec := &models.BookingHistoryRecord{
		WatchJobID:       &job.ID,
		Restaurant:       restaurant.Name,
		Date:             job.TargetDate.Format("2006-01-02"),
		Time:             timeSlot,
		PartySize:        job.PartySize,
		Platform:         restaurant.Platform,
		Status:           status,
		ConfirmationCode: confirmation,
		ErrorDetails:     details,
	}
	if err := p.repo.CreateBookingRecord(ctx, rec); err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Msg("append history record")
		return
	}
	if p.sync != nil {
		if err := p.sync.EnqueueRecord(ctx, rec); err != nil {
			p.logger.Warn().Err(err).Int64("record_id", rec.ID).Msg("enqueue history sync")
		}
	}
}

// publish is the fire-and-forget push to the presentation layer.
func (p *Processor) publish(eventType, jobID, status string) {
	if p.events == nil {
		return
	}
	payload := events.JobEventPayload{JobID: jobID, Status: status}
	if err := p.events.PublishJSON(eventType, payload); err != nil {
		p.logger.Debug().Err(err).Str("job_id", jobID).Msg("event publish failed")
	}
}

// matchSlot finds the first open slot matching the job's desired times.
// Earliest-listed desired time wins when several match.
func matchSlot(desired []string, slots []resy.Slot) (resy.Slot, bool) {
	for _, want := range desired {
		for _, slot := range slots {
			if normalizeTime(slot.Time) == normalizeTime(want) {
				return slot, true
			}
		}
	}
	return resy.Slot{}, false
}

func normalizeTime(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
