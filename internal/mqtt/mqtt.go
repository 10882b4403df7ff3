// Package mqtt publishes pulse and lifecycle events to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/coin-pulser/internal/events"
)

// Topic is the MQTT topic for pulse events.
const Topic = "arcade/coin-pulser/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "arcade/coin-pulser/system"

// timestampLayout keeps millisecond precision; pulses are 50 ms apart.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a pulse event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(r events.Record) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (startup, shutdown, reconnect).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "RECONNECTED"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Pulse PulsePayload `json:"pulse"`
}

// PulsePayload contains the pulse event details.
type PulsePayload struct {
	ID         string `json:"id"`
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	Source     string `json:"source"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// FormatPayload creates the JSON payload for a pulse event.
func FormatPayload(r events.Record) ([]byte, error) {
	return json.Marshal(Payload{
		Pulse: PulsePayload{
			ID:         r.ID,
			Timestamp:  r.Timestamp.UTC().Format(timestampLayout),
			Event:      string(r.Type),
			Source:     string(r.Source),
			DurationMs: r.Duration.Milliseconds(),
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NewSink adapts p to an events.Sink.
func NewSink(p Publisher) events.Sink {
	return events.SinkFunc{
		Label: "mqtt",
		Fn: func(_ context.Context, r events.Record) error {
			return p.Publish(r)
		},
	}
}
