package events

import (
	"context"

	"github.com/sweeney/coin-pulser/internal/repository"
)

// HistorySink appends every record to the pulse history.
type HistorySink struct {
	Repo repository.PulseRepo
}

func (HistorySink) Name() string { return "history" }

func (h HistorySink) Handle(ctx context.Context, r Record) error {
	return h.Repo.Append(ctx, ToPulseRecord(r))
}

// ToPulseRecord converts r to its stored form.
func ToPulseRecord(r Record) repository.PulseRecord {
	return repository.PulseRecord{
		ID:         r.ID,
		OccurredAt: r.Timestamp,
		Type:       string(r.Type),
		Source:     string(r.Source),
		DurationMS: r.Duration.Milliseconds(),
	}
}
