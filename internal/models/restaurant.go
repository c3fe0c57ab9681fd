package models

import "time"

// Restaurant is a catalog entry. VenueID is the platform's internal
// identifier, resolved lazily by the scheduler and cached back.
type Restaurant struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Platform    string    `json:"platform"`
	URL         string    `json:"url"`
	VenueID     string    `json:"venue_id,omitempty"`
	ReleaseRule string    `json:"release_rule,omitempty"` // e.g. "14 days ahead"
	Timezone    string    `json:"timezone,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
