package resy

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Stale-session and throttle signals carry no useful payload, so they are
// plain sentinels. The rest keep their status code and body for logging.
var (
	ErrAuthExpired = errors.New("resy: session expired")
	ErrRateLimited = errors.New("resy: rate limited")
)

// APIError is any other non-2xx response from the platform.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("resy: api error (status=%d): %s", e.StatusCode, truncate(e.Body, 200))
}

// CaptchaError means the platform is demanding human verification.
// Automated polling has to stop until someone resolves it.
type CaptchaError struct {
	StatusCode int
	Message    string
}

func (e *CaptchaError) Error() string {
	return fmt.Sprintf("resy: captcha challenge (status=%d): %s", e.StatusCode, e.Message)
}

// VenueResolutionError means neither the venue lookup nor the page scrape
// produced a venue id.
type VenueResolutionError struct {
	URL   string
	Cause error
}

func (e *VenueResolutionError) Error() string {
	return fmt.Sprintf("resy: cannot resolve venue id for %s: %v", e.URL, e.Cause)
}

func (e *VenueResolutionError) Unwrap() error { return e.Cause }

var captchaPattern = regexp.MustCompile(`(?i)captcha|challenge|verification|verify you`)

// The platform reports a lost slot race in prose, not in a status code.
// This stays a best-effort heuristic.
var conflictPattern = regexp.MustCompile(`(?i)already (booked|taken|reserved)|no longer available|not available|slot.*(gone|taken)|sold out`)

// IsBookingConflict reports whether err looks like another party claimed
// the slot first.
func IsBookingConflict(err error) bool {
	if err == nil {
		return false
	}
	return conflictPattern.MatchString(err.Error())
}

// classifyStatus converts a non-2xx response into the typed error the
// scheduler's classifier dispatches on.
func classifyStatus(status int, body string) error {
	if (status == 403 || status == 429) && captchaPattern.MatchString(body) {
		return &CaptchaError{StatusCode: status, Message: truncate(body, 200)}
	}
	switch status {
	case 401, 403:
		return ErrAuthExpired
	case 429:
		return ErrRateLimited
	}
	return &APIError{StatusCode: status, Body: body}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
