package scheduler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"reswatch/internal/models"
)

const (
	slowInterval       = 120 * time.Second
	aggressiveInterval = 4 * time.Second
	postRushInterval   = 30 * time.Second

	preReleaseWindow  = 60 * time.Second
	postReleaseWindow = 10 * time.Minute
)

// Most Resy venues release at midnight Eastern. This is a fixed offset,
// not a real timezone; DST transitions shift the computed instant by an
// hour twice a year.
var releaseZone = time.FixedZone("ET", -5*60*60)

var releaseRulePattern = regexp.MustCompile(`(?i)(\d+)\s*(day|week)s?\s+ahead`)

// parseReleaseRule turns "N days ahead" / "N weeks ahead" into the number
// of days before the target date that bookings open.
func parseReleaseRule(rule string) (int, bool) {
	m := releaseRulePattern.FindStringSubmatch(rule)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if strings.EqualFold(m[2], "week") {
		n *= 7
	}
	return n, true
}

// releaseInstant computes when the platform opens bookings for the job's
// target date under the restaurant's release rule.
func releaseInstant(targetDate time.Time, daysAhead int) time.Time {
	release := targetDate.AddDate(0, 0, -daysAhead)
	return time.Date(release.Year(), release.Month(), release.Day(), 0, 0, 0, 0, releaseZone)
}

// effectiveInterval is the cadence the job should poll at right now.
// Aggressive polling is costly and rate-limit-risky, so it is
// concentrated in the window around the release instant where slots
// actually appear.
func effectiveInterval(job *models.WatchJob, releaseRule string, now time.Time) time.Duration {
	if job.MonitoringStrategy != models.StrategyReleaseTime {
		return job.PollInterval()
	}

	daysAhead, ok := parseReleaseRule(releaseRule)
	if !ok {
		return job.PollInterval()
	}

	release := releaseInstant(job.TargetDate, daysAhead)
	switch {
	case now.Before(release.Add(-preReleaseWindow)):
		// Long before release: slots only show up via cancellations.
		return slowInterval
	case now.Before(release.Add(postReleaseWindow)) || now.Equal(release.Add(postReleaseWindow)):
		// The contention window.
		return aggressiveInterval
	default:
		return postRushInterval
	}
}
