// Package repository persists settings and pulse history in SQLite.
package repository

import (
	"context"
	"database/sql"
	"time"
)

// PulseRecord is one row of pulse history.
type PulseRecord struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Type       string    `json:"type"`
	Source     string    `json:"source"`
	DurationMS int64     `json:"duration_ms"`
}

// PulseRepo stores pulse history.
type PulseRepo interface {
	Append(ctx context.Context, r PulseRecord) error
	List(ctx context.Context, limit int) ([]PulseRecord, error)
}

// Repository groups the SQLite-backed stores.
type Repository struct {
	Settings *SettingsSQLite
	Pulses   *PulseSQLite
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Settings: NewSettingsSQLite(db),
		Pulses:   NewPulseSQLite(db),
	}
}
