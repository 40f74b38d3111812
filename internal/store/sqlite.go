package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is the database/sql-backed Store. It is the default backend for
// single-process deployments.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	phone_number TEXT UNIQUE NOT NULL,
	email TEXT,
	carrier TEXT,
	notification_settings TEXT,
	favorite_lines TEXT NOT NULL DEFAULT '[]',
	home_lat REAL,
	home_lng REAL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

const sqliteUserColumns = `id, phone_number, COALESCE(email, ''), COALESCE(carrier, ''),
	COALESCE(notification_settings, ''), favorite_lines, home_lat, home_lng, created_at`

// NewSQLite opens (creating if needed) the database file and ensures the
// schema.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent handler and sweep writes.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// HealthCheck verifies the database file is still reachable.
func (s *SQLite) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() { s.db.Close() }

func (s *SQLite) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sqliteUserColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *SQLite) UserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sqliteUserColumns+" FROM users WHERE phone_number = ?", phone)
	u, err := scanSQLiteUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by phone: %w", err)
	}
	return &u, nil
}

func (s *SQLite) EnsureUser(ctx context.Context, phone string) (*User, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO users (phone_number, favorite_lines) VALUES (?, '[]')", phone)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.UserByPhone(ctx, phone)
}

func (s *SQLite) SetHome(ctx context.Context, phone string, lat, lng float64) error {
	return s.update(ctx,
		"UPDATE users SET home_lat = ?, home_lng = ? WHERE phone_number = ?", lat, lng, phone)
}

func (s *SQLite) SetCarrier(ctx context.Context, phone, carrier string) error {
	return s.update(ctx,
		"UPDATE users SET carrier = ? WHERE phone_number = ?", carrier, phone)
}

func (s *SQLite) SetNotificationSettings(ctx context.Context, phone, settingsJSON string) error {
	return s.update(ctx,
		"UPDATE users SET notification_settings = ? WHERE phone_number = ?", settingsJSON, phone)
}

func (s *SQLite) AddFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, err := s.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if contains(u.FavoriteLines, line) {
		return u.FavoriteLines, ErrDuplicateFavorite
	}
	updated := append(u.FavoriteLines, line)
	if err := s.setFavorites(ctx, phone, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLite) RemoveFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, err := s.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !contains(u.FavoriteLines, line) {
		return u.FavoriteLines, ErrFavoriteNotFound
	}
	updated := remove(u.FavoriteLines, line)
	if err := s.setFavorites(ctx, phone, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SQLite) setFavorites(ctx context.Context, phone string, lines []string) error {
	return s.update(ctx,
		"UPDATE users SET favorite_lines = ? WHERE phone_number = ?", encodeFavorites(lines), phone)
}

func (s *SQLite) update(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteUser(row rowScanner) (User, error) {
	var u User
	var favorites string
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.Email, &u.Carrier,
		&u.NotificationSettings, &favorites, &u.HomeLat, &u.HomeLng, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	u.FavoriteLines = decodeFavorites(favorites)
	return u, nil
}
