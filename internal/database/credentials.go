package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reswatch/internal/models"
)

// GetCredential returns the stored session for a platform, or ErrNotFound
// when the user has never signed in on it.
func (db *DB) GetCredential(ctx context.Context, platform string) (*models.Session, error) {
	query := `SELECT platform, api_key, auth_token, email, updated_at FROM sessions WHERE platform = ?`

	var s models.Session
	var email sql.NullString
	err := db.QueryRowContext(ctx, query, platform).Scan(&s.Platform, &s.APIKey, &s.AuthToken, &email, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credential: %w", err)
	}
	s.Email = email.String
	return &s, nil
}

// SaveCredential upserts the session for a platform. One row per platform.
func (db *DB) SaveCredential(ctx context.Context, s *models.Session) error {
	now := time.Now()
	query := `INSERT INTO sessions (platform, api_key, auth_token, email, updated_at)
              VALUES (?, ?, ?, ?, ?)
              ON CONFLICT(platform) DO UPDATE SET
                  api_key = excluded.api_key,
                  auth_token = excluded.auth_token,
                  email = excluded.email,
                  updated_at = excluded.updated_at`

	if _, err := db.ExecContext(ctx, query, s.Platform, s.APIKey, s.AuthToken, s.Email, now); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	s.UpdatedAt = now
	return nil
}

func (db *DB) DeleteCredential(ctx context.Context, platform string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE platform = ?`, platform); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
