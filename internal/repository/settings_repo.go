package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const (
	selectSettingSQL = `SELECT value FROM settings WHERE key = ?`

	upsertSettingSQL = `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
)

// SettingsSQLite implements settings.Store on the settings table.
type SettingsSQLite struct {
	db *sql.DB
}

func NewSettingsSQLite(db *sql.DB) *SettingsSQLite {
	return &SettingsSQLite{db: db}
}

func (r *SettingsSQLite) get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, selectSettingSQL, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read setting %q: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsSQLite) put(ctx context.Context, key, value string) error {
	if _, err := r.db.ExecContext(ctx, upsertSettingSQL, key, value); err != nil {
		return fmt.Errorf("write setting %q: %w", key, err)
	}
	return nil
}

// GetInt returns the integer stored under key. A value that does not parse
// is reported as an error.
func (r *SettingsSQLite) GetInt(ctx context.Context, key string) (int, bool, error) {
	s, found, err := r.get(ctx, key)
	if err != nil || !found {
		return 0, found, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, fmt.Errorf("setting %q: %w", key, err)
	}
	return v, true, nil
}

func (r *SettingsSQLite) GetString(ctx context.Context, key string) (string, bool, error) {
	return r.get(ctx, key)
}

func (r *SettingsSQLite) PutInt(ctx context.Context, key string, value int) error {
	return r.put(ctx, key, strconv.Itoa(value))
}

func (r *SettingsSQLite) PutString(ctx context.Context, key string, value string) error {
	return r.put(ctx, key, value)
}
