// Package store persists users and their notification preferences.
// Two backends are provided: Postgres via pgxpool and SQLite via
// database/sql, selected by the DATABASE_URL scheme.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// DefaultThresholdMinutes is used when a user has no parsable threshold.
const DefaultThresholdMinutes = 5

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateFavorite = errors.New("line already in favorites")
	ErrFavoriteNotFound  = errors.New("line not in favorites")
)

// User is one registered phone number and its preferences.
// HomeLat and HomeLng are either both set or both nil.
type User struct {
	ID                   int64
	PhoneNumber          string
	Email                string
	Carrier              string
	FavoriteLines        []string
	NotificationSettings string // raw JSON text
	HomeLat              *float64
	HomeLng              *float64
	CreatedAt            time.Time
}

// HasHome reports whether the user set a home location.
func (u *User) HasHome() bool {
	return u.HomeLat != nil && u.HomeLng != nil
}

// ThresholdMinutes returns the user's notification threshold, falling
// back to the default when the stored settings are missing or unparsable.
func (u *User) ThresholdMinutes() int {
	return parseThreshold(u.NotificationSettings)
}

func parseThreshold(settings string) int {
	if settings == "" {
		return DefaultThresholdMinutes
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(settings), &raw); err != nil {
		return DefaultThresholdMinutes
	}
	v, ok := raw["threshold_minutes"]
	if !ok {
		return DefaultThresholdMinutes
	}

	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		// Tolerate numeric strings, the shape older clients stored.
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return DefaultThresholdMinutes
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return DefaultThresholdMinutes
		}
		n = parsed
	}
	if n <= 0 {
		return DefaultThresholdMinutes
	}
	return n
}

// Store is the persistence boundary the API handlers and the sweep share.
type Store interface {
	// ListUsers returns every user. The sweep iterates this each tick.
	ListUsers(ctx context.Context) ([]User, error)
	// UserByPhone returns ErrUserNotFound when no user has that number.
	UserByPhone(ctx context.Context, phone string) (*User, error)
	// EnsureUser creates the user on first verification; existing users
	// are returned unchanged.
	EnsureUser(ctx context.Context, phone string) (*User, error)
	SetHome(ctx context.Context, phone string, lat, lng float64) error
	SetCarrier(ctx context.Context, phone, carrier string) error
	// AddFavorite returns the updated favorites list, or
	// ErrDuplicateFavorite when the line is already present.
	AddFavorite(ctx context.Context, phone, line string) ([]string, error)
	// RemoveFavorite returns the updated favorites list, or
	// ErrFavoriteNotFound when the line is absent.
	RemoveFavorite(ctx context.Context, phone, line string) ([]string, error)
	SetNotificationSettings(ctx context.Context, phone, settingsJSON string) error
	// HealthCheck verifies backend connectivity.
	HealthCheck(ctx context.Context) error
	Close()
}

// encodeFavorites and decodeFavorites keep the favorite_lines column as a
// JSON array, matching how request handlers historically stored it.
func encodeFavorites(lines []string) string {
	if lines == nil {
		lines = []string{}
	}
	b, _ := json.Marshal(lines)
	return string(b)
}

func decodeFavorites(raw string) []string {
	if raw == "" {
		return nil
	}
	var lines []string
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil
	}
	return lines
}

func contains(lines []string, line string) bool {
	for _, l := range lines {
		if l == line {
			return true
		}
	}
	return false
}

func remove(lines []string, line string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != line {
			out = append(out, l)
		}
	}
	return out
}
