package models

import "time"

// Session holds the credentials captured for a platform by the external
// login flow. The scheduler only reads it.
type Session struct {
	Platform  string    `json:"platform"`
	APIKey    string    `json:"api_key"`
	AuthToken string    `json:"auth_token"`
	Email     string    `json:"email,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
