package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Pulse history limits for List.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

const (
	insertPulseSQL = `
		INSERT INTO pulses (id, occurred_at, type, source, duration_ms)
		VALUES (?, ?, ?, ?, ?)
	`

	selectPulsesSQL = `
		SELECT id, occurred_at, type, source, duration_ms
		FROM pulses ORDER BY occurred_at DESC LIMIT ?
	`
)

// Fixed-width UTC so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000Z"

type PulseSQLite struct {
	db *sql.DB
}

func NewPulseSQLite(db *sql.DB) *PulseSQLite { return &PulseSQLite{db: db} }

// Append inserts a record. Missing ID or timestamp are filled in.
func (r *PulseSQLite) Append(ctx context.Context, rec PulseRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, insertPulseSQL,
		rec.ID,
		rec.OccurredAt.UTC().Format(timeLayout),
		rec.Type,
		rec.Source,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("insert pulse: %w", err)
	}
	return nil
}

// List returns the newest records first. limit is clamped to
// [1, MaxListLimit]; zero or negative means DefaultListLimit.
func (r *PulseSQLite) List(ctx context.Context, limit int) ([]PulseRecord, error) {
	limit = ClampLimit(limit)

	rows, err := r.db.QueryContext(ctx, selectPulsesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("query pulses: %w", err)
	}
	defer rows.Close()

	out := make([]PulseRecord, 0, limit)
	for rows.Next() {
		var rec PulseRecord
		var ts string
		if err := rows.Scan(&rec.ID, &ts, &rec.Type, &rec.Source, &rec.DurationMS); err != nil {
			return nil, err
		}
		if t, err := time.Parse(timeLayout, ts); err == nil {
			rec.OccurredAt = t
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ClampLimit applies the List limit rules.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	}
	return limit
}
