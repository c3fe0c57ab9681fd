package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reswatch/internal/models"
)

func (db *DB) CreateRestaurant(ctx context.Context, r *models.Restaurant) error {
	now := time.Now()
	query := `INSERT INTO restaurants (name, platform, url, venue_id, release_rule, timezone, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := db.ExecContext(ctx, query, r.Name, r.Platform, r.URL, r.VenueID, r.ReleaseRule, r.Timezone, now, now)
	if err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("create restaurant id: %w", err)
	}
	r.ID = id
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

func (db *DB) GetRestaurantByID(ctx context.Context, id int64) (*models.Restaurant, error) {
	query := `SELECT id, name, platform, url, venue_id, release_rule, timezone, created_at, updated_at
              FROM restaurants WHERE id = ?`

	var r models.Restaurant
	var venueID, releaseRule, timezone sql.NullString
	err := db.QueryRowContext(ctx, query, id).Scan(
		&r.ID,
		&r.Name,
		&r.Platform,
		&r.URL,
		&venueID,
		&releaseRule,
		&timezone,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get restaurant: %w", err)
	}

	r.VenueID = venueID.String
	r.ReleaseRule = releaseRule.String
	r.Timezone = timezone.String
	return &r, nil
}

// UpdateRestaurantVenueID caches a resolved venue id back onto the record.
func (db *DB) UpdateRestaurantVenueID(ctx context.Context, id int64, venueID string) error {
	query := `UPDATE restaurants SET venue_id = ?, updated_at = ? WHERE id = ?`

	_, err := db.ExecContext(ctx, query, venueID, time.Now(), id)
	if err != nil {
		return fmt.Errorf("update restaurant venue id: %w", err)
	}
	return nil
}
