package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the pgxpool-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// PoolConfig controls pgxpool sizing.
type PoolConfig struct {
	MinConns int
	MaxConns int
	MaxLife  time.Duration
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	phone_number TEXT UNIQUE NOT NULL,
	email TEXT,
	carrier TEXT,
	notification_settings TEXT,
	favorite_lines TEXT NOT NULL DEFAULT '[]',
	home_lat DOUBLE PRECISION,
	home_lng DOUBLE PRECISION,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewPostgres connects, verifies connectivity, and ensures the schema.
// Prepared statements are registered on every new connection.
func NewPostgres(ctx context.Context, databaseURL string, cfg PoolConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MaxConnLifetime = cfg.MaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		"health_check": "SELECT 1",

		"list_users": `SELECT id, phone_number, COALESCE(email, ''), COALESCE(carrier, ''),
			COALESCE(notification_settings, ''), favorite_lines, home_lat, home_lng, created_at
			FROM users ORDER BY id`,
		"user_by_phone": `SELECT id, phone_number, COALESCE(email, ''), COALESCE(carrier, ''),
			COALESCE(notification_settings, ''), favorite_lines, home_lat, home_lng, created_at
			FROM users WHERE phone_number = $1`,

		"insert_user": `INSERT INTO users (phone_number, favorite_lines) VALUES ($1, '[]')
			ON CONFLICT (phone_number) DO NOTHING`,

		"set_home":      "UPDATE users SET home_lat = $2, home_lng = $3 WHERE phone_number = $1",
		"set_carrier":   "UPDATE users SET carrier = $2 WHERE phone_number = $1",
		"set_favorites": "UPDATE users SET favorite_lines = $2 WHERE phone_number = $1",
		"set_settings":  "UPDATE users SET notification_settings = $2 WHERE phone_number = $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (s *Postgres) HealthCheck(ctx context.Context) error {
	var n int
	return s.pool.QueryRow(ctx, "health_check").Scan(&n)
}

func (s *Postgres) Close() { s.pool.Close() }

func (s *Postgres) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx, "list_users")
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Postgres) UserByPhone(ctx context.Context, phone string) (*User, error) {
	row := s.pool.QueryRow(ctx, "user_by_phone", phone)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user by phone: %w", err)
	}
	return &u, nil
}

func (s *Postgres) EnsureUser(ctx context.Context, phone string) (*User, error) {
	if _, err := s.pool.Exec(ctx, "insert_user", phone); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.UserByPhone(ctx, phone)
}

func (s *Postgres) SetHome(ctx context.Context, phone string, lat, lng float64) error {
	return s.update(ctx, "set_home", phone, lat, lng)
}

func (s *Postgres) SetCarrier(ctx context.Context, phone, carrier string) error {
	return s.update(ctx, "set_carrier", phone, carrier)
}

func (s *Postgres) SetNotificationSettings(ctx context.Context, phone, settingsJSON string) error {
	return s.update(ctx, "set_settings", phone, settingsJSON)
}

func (s *Postgres) AddFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, err := s.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if contains(u.FavoriteLines, line) {
		return u.FavoriteLines, ErrDuplicateFavorite
	}
	updated := append(u.FavoriteLines, line)
	if err := s.update(ctx, "set_favorites", phone, encodeFavorites(updated)); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) RemoveFavorite(ctx context.Context, phone, line string) ([]string, error) {
	u, err := s.UserByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if !contains(u.FavoriteLines, line) {
		return u.FavoriteLines, ErrFavoriteNotFound
	}
	updated := remove(u.FavoriteLines, line)
	if err := s.update(ctx, "set_favorites", phone, encodeFavorites(updated)); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) update(ctx context.Context, stmt, phone string, args ...any) error {
	tag, err := s.pool.Exec(ctx, stmt, append([]any{phone}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", stmt, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
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
