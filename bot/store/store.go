// Package store persists user profiles, activity history and search
// history in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"schedbot/core/logger"
	"log/slog"
)

// User is a persisted profile row.
type User struct {
	UserID             int64          `db:"user_id"`
	Username           sql.NullString `db:"username"`
	FirstName          sql.NullString `db:"first_name"`
	LastName           sql.NullString `db:"last_name"`
	DefaultQuery       sql.NullString `db:"default_query"`
	DefaultMode        sql.NullString `db:"default_mode"`
	DailyNotifications bool           `db:"daily_notifications"`
	NotificationTime   string         `db:"notification_time"`
	CreatedAt          time.Time      `db:"created_at"`
	LastActive         time.Time      `db:"last_active"`
}

// Store wraps the database handle.
type Store struct {
	db *sqlx.DB
}

// New constructs a Store over an open connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// GetUser loads a profile, returning (nil, nil) when it does not exist.
func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT user_id, username, first_name, last_name, default_query,
		       default_mode, daily_notifications, notification_time,
		       created_at, last_active
		FROM users WHERE user_id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get user %d: %w", userID, err)
	}
	return &u, nil
}

// UpsertUser creates or refreshes a profile and bumps last_active.
func (s *Store) UpsertUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, last_active)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			last_active = now()`,
		u.UserID, u.Username, u.FirstName, u.LastName)
	if err != nil {
		return fmt.Errorf("store: upsert user %d: %w", u.UserID, err)
	}
	return nil
}

// SaveDefault persists the default query selection.
func (s *Store) SaveDefault(ctx context.Context, userID int64, query, mode string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET default_query = $2, default_mode = $3, last_active = now()
		WHERE user_id = $1`, userID, query, mode)
	if err != nil {
		return fmt.Errorf("store: save default for %d: %w", userID, err)
	}
	return nil
}

// ClearDefault drops the default query selection.
func (s *Store) ClearDefault(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET default_query = NULL, default_mode = NULL, last_active = now()
		WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("store: clear default for %d: %w", userID, err)
	}
	return nil
}

// SaveNotificationPrefs persists daily notification settings.
func (s *Store) SaveNotificationPrefs(ctx context.Context, userID int64, enabled bool, at string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET daily_notifications = $2, notification_time = $3, last_active = now()
		WHERE user_id = $1`, userID, enabled, at)
	if err != nil {
		return fmt.Errorf("store: save notification prefs for %d: %w", userID, err)
	}
	return nil
}

// ResetSettings clears the default selection and notification settings.
func (s *Store) ResetSettings(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET default_query = NULL, default_mode = NULL,
			daily_notifications = FALSE, notification_time = '21:00',
			last_active = now()
		WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("store: reset settings for %d: %w", userID, err)
	}
	return nil
}

// NotificationTarget is a user due for a daily notification.
type NotificationTarget struct {
	UserID       int64  `db:"user_id"`
	DefaultQuery string `db:"default_query"`
	DefaultMode  string `db:"default_mode"`
}

// NotificationTargets lists users with daily notifications enabled for
// the given HH:MM slot who have a default selection.
func (s *Store) NotificationTargets(ctx context.Context, at string) ([]NotificationTarget, error) {
	var out []NotificationTarget
	err := s.db.SelectContext(ctx, &out, `
		SELECT user_id, default_query, default_mode
		FROM users
		WHERE daily_notifications AND notification_time = $1
		  AND default_query IS NOT NULL AND default_mode IS NOT NULL`, at)
	if err != nil {
		return nil, fmt.Errorf("store: notification targets at %s: %w", at, err)
	}
	return out, nil
}

// SubscribedTargets lists every user with daily notifications enabled
// and a default selection, regardless of time slot. The schedule change
// watcher checks all of them on each pass.
func (s *Store) SubscribedTargets(ctx context.Context) ([]NotificationTarget, error) {
	var out []NotificationTarget
	err := s.db.SelectContext(ctx, &out, `
		SELECT user_id, default_query, default_mode
		FROM users
		WHERE daily_notifications
		  AND default_query IS NOT NULL AND default_mode IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: subscribed targets: %w", err)
	}
	return out, nil
}

// LogActivity appends an activity row. Failures are logged and
// swallowed, history must never break a user-facing flow.
func (s *Store) LogActivity(ctx context.Context, userID int64, action, details string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, action, details) VALUES ($1, $2, $3)`,
		userID, action, details)
	if err != nil {
		logger.Warn(ctx, "service.users", "activity.log_failed",
			slog.Int64("user_id", userID),
			slog.String("cause", action),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}

// LogSearch appends a search history row, best effort like LogActivity.
func (s *Store) LogSearch(ctx context.Context, userID int64, query, kind string, found int) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_history (user_id, query, entity_type, results) VALUES ($1, $2, $3, $4)`,
		userID, query, kind, found)
	if err != nil {
		logger.Warn(ctx, "service.users", "search.log_failed",
			slog.Int64("user_id", userID),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
	}
}
