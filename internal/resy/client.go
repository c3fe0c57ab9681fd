package resy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"reswatch/internal/config"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Client is a stateless wrapper over the Resy API. Credentials are passed
// per call; they belong to the session captured by the external login flow.
type Client struct {
	hc      *http.Client
	baseURL string
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// Credentials are the api key and auth token extracted from a session.
type Credentials struct {
	APIKey    string
	AuthToken string
}

// Slot is one bookable time offered for a date and party size.
type Slot struct {
	Time  string // display time, e.g. "7:00 PM"
	Token string // config token exchanged for a booking token
	Type  string // seating type, e.g. "Dining Room"
}

func New(cfg config.ResyConfig, logger *zerolog.Logger) *Client {
	return &Client{
		hc:      &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		logger:  logger,
	}
}

var venueURLPattern = regexp.MustCompile(`/cities/([^/]+)/(?:venues/)?([^/?#]+)`)
var venuePagePattern = regexp.MustCompile(`"venue_?[iI]d"\s*:\s*"?(\d+)`)

// ResolveVenueID turns a restaurant's public URL into the platform's venue
// id. It tries the venue lookup endpoint first and falls back to scraping
// the id out of the public page.
func (c *Client) ResolveVenueID(ctx context.Context, creds Credentials, restaurantURL string) (string, error) {
	m := venueURLPattern.FindStringSubmatch(restaurantURL)
	if m == nil {
		return "", &VenueResolutionError{URL: restaurantURL, Cause: errors.New("url has no city/slug")}
	}
	city, slug := m[1], m[2]

	id, lookupErr := c.lookupVenue(ctx, creds, city, slug)
	if lookupErr == nil && id != "" {
		return id, nil
	}

	id, scrapeErr := c.scrapeVenuePage(ctx, restaurantURL)
	if scrapeErr == nil && id != "" {
		return id, nil
	}

	if lookupErr == nil {
		lookupErr = errors.New("lookup returned no id")
	}
	return "", &VenueResolutionError{URL: restaurantURL, Cause: fmt.Errorf("lookup: %v; scrape: %v", lookupErr, scrapeErr)}
}

func (c *Client) lookupVenue(ctx context.Context, creds Credentials, city, slug string) (string, error) {
	params := map[string]string{"url_slug": slug, "location": city}
	status, body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/3/venue", "", params, nil)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", fmt.Errorf("venue lookup failed (status=%d)", status)
	}

	var res struct {
		ID struct {
			Resy int64 `json:"resy"`
		} `json:"id"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", err
	}
	if res.ID.Resy == 0 {
		return "", errors.New("venue lookup response has no id")
	}
	return strconv.FormatInt(res.ID.Resy, 10), nil
}

func (c *Client) scrapeVenuePage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("user-agent", userAgent)

	res, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	m := venuePagePattern.FindSubmatch(body)
	if m == nil {
		return "", errors.New("no venue id embedded in page")
	}
	return string(m[1]), nil
}

// FindAvailability lists open slots for a date and party size, flattened
// across the venue response and converted to display times.
func (c *Client) FindAvailability(ctx context.Context, creds Credentials, venueID string, date time.Time, partySize int) ([]Slot, error) {
	params := map[string]string{
		"party_size": strconv.Itoa(partySize),
		"venue_id":   venueID,
		"day":        date.Format("2006-01-02"),
		// Deprecated but still required by the endpoint.
		"lat":  "0",
		"long": "0",
	}
	status, body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/4/find", "", params, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, classifyStatus(status, string(body))
	}

	var res struct {
		Results struct {
			Venues []struct {
				Slots []struct {
					Date struct {
						Start string `json:"start"`
					} `json:"date"`
					Config struct {
						Type  string `json:"type"`
						Token string `json:"token"`
					} `json:"config"`
				} `json:"slots"`
			} `json:"venues"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	var slots []Slot
	for _, venue := range res.Results.Venues {
		for _, s := range venue.Slots {
			slots = append(slots, Slot{
				Time:  displayTime(s.Date.Start),
				Token: s.Config.Token,
				Type:  s.Config.Type,
			})
		}
	}
	return slots, nil
}

// GetBookingToken exchanges a slot's config token for a short-lived booking
// token. An empty token with nil error means the slot offered none.
func (c *Client) GetBookingToken(ctx context.Context, creds Credentials, slotToken string, date time.Time, partySize int) (string, error) {
	payload, err := json.Marshal(struct {
		ConfigID  string `json:"config_id"`
		Day       string `json:"day"`
		PartySize int64  `json:"party_size"`
	}{slotToken, date.Format("2006-01-02"), int64(partySize)})
	if err != nil {
		return "", err
	}

	status, body, err := c.do(ctx, creds, http.MethodPost, c.baseURL+"/3/details", "application/json", nil, payload)
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", classifyStatus(status, string(body))
	}

	var res struct {
		BookToken struct {
			Value string `json:"value"`
		} `json:"book_token"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode booking details: %w", err)
	}
	return res.BookToken.Value, nil
}

// GetPaymentMethod fetches the account's default payment method id.
// Returns 0 with nil error when the account has none; some bookings do not
// need one.
func (c *Client) GetPaymentMethod(ctx context.Context, creds Credentials) (int64, error) {
	status, body, err := c.do(ctx, creds, http.MethodGet, c.baseURL+"/2/user", "", nil, nil)
	if err != nil {
		return 0, err
	}
	if status < 200 || status >= 300 {
		return 0, classifyStatus(status, string(body))
	}

	var res struct {
		PaymentMethods []struct {
			ID int64 `json:"id"`
		} `json:"payment_methods"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return 0, fmt.Errorf("decode user: %w", err)
	}
	if len(res.PaymentMethods) == 0 {
		return 0, nil
	}
	return res.PaymentMethods[0].ID, nil
}

// Book submits the reservation and returns the confirmation code.
func (c *Client) Book(ctx context.Context, creds Credentials, bookToken string, paymentMethodID int64) (string, error) {
	form := "book_token=" + url.QueryEscape(bookToken)
	if paymentMethodID != 0 {
		pm, _ := json.Marshal(struct {
			ID int64 `json:"id"`
		}{paymentMethodID})
		form += "&struct_payment_method=" + url.QueryEscape(string(pm))
	}

	status, body, err := c.do(ctx, creds, http.MethodPost, c.baseURL+"/3/book", "application/x-www-form-urlencoded", nil, []byte(form))
	if err != nil {
		return "", err
	}
	if status < 200 || status >= 300 {
		return "", &APIError{StatusCode: status, Body: string(body)}
	}

	var res struct {
		ResyToken     string `json:"resy_token"`
		ReservationID int64  `json:"reservation_id"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("decode booking response: %w", err)
	}
	if res.ResyToken != "" {
		return res.ResyToken, nil
	}
	return strconv.FormatInt(res.ReservationID, 10), nil
}

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"

func (c *Client) do(ctx context.Context, creds Credentials, method, rawURL, contentType string, query map[string]string, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("user-agent", userAgent)
	req.Header.Set("origin", "https://resy.com")
	req.Header.Set("referrer", "https://resy.com")
	req.Header.Set("x-origin", "https://resy.com")
	req.Header.Set("cache-control", "no-cache")
	if contentType != "" {
		req.Header.Set("content-type", contentType)
	}
	req.Header.Set("authorization", fmt.Sprintf(`ResyAPI api_key="%s"`, creds.APIKey))
	req.Header.Set("x-resy-auth-token", creds.AuthToken)
	req.Header.Set("x-resy-universal-auth", creds.AuthToken)

	if query != nil {
		q := req.URL.Query()
		for k, v := range query {
			q.Add(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, b, nil
}

// displayTime converts a slot start like "2025-11-20 19:00:00" into the
// display form jobs are matched against.
func displayTime(start string) string {
	t, err := time.Parse("2006-01-02 15:04:05", start)
	if err != nil {
		// Fall back to the raw time portion.
		if parts := strings.SplitN(start, " ", 2); len(parts) == 2 {
			return parts[1]
		}
		return start
	}
	return t.Format("3:04 PM")
}
