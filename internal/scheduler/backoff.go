package scheduler

import (
	"math"
	"time"

	"reswatch/internal/models"
)

const (
	backoffMultiplier          = 2
	rateLimitBackoffMultiplier = 3
	maxBackoff                 = models.MaxBackoffSec * time.Second
)

// applyBackoff bumps the job's failure count and rewinds its last-poll
// time so the scheduler's own interval check waits out the computed
// delay. With base interval b and count n the delay is
// min(b * mult^(n-1), 300s); setting lastPoll = now + delay - b means the
// uniform "now - lastPoll >= b" check fires exactly at now + delay.
func applyBackoff(state *runtimeState, job *models.WatchJob, rateLimited bool, now time.Time) time.Duration {
	count := state.BumpRetries(job.ID)

	mult := float64(backoffMultiplier)
	if rateLimited {
		mult = rateLimitBackoffMultiplier
	}

	base := job.PollInterval()
	delay := time.Duration(float64(base) * math.Pow(mult, float64(count-1)))
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}

	state.SetLastPoll(job.ID, now.Add(delay-base))
	return delay
}
