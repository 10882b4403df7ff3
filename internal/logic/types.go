// Package logic contains the pure state machines of the coin pulser.
// This package has NO external dependencies (no GPIO, serial, network, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Timing defaults.
const (
	PulseDuration = 50 * time.Millisecond
	DebounceDelay = 50 * time.Millisecond
)

// Source names the origin of a pulse request.
type Source string

const (
	SourceSerial Source = "serial command"
	SourceButton Source = "button press"
	SourceHTTP   Source = "HTTP request"
)

// Sources lists every trigger source in scheduler visiting order.
var Sources = []Source{SourceHTTP, SourceSerial, SourceButton}

// EventType is the outcome of a pulse request or the end of a pulse.
// PULSE_FAILED means the relay output could not be switched on.
type EventType string

const (
	EventPulseStart   EventType = "PULSE_START"
	EventPulseEnd     EventType = "PULSE_END"
	EventPulseDropped EventType = "PULSE_DROPPED"
	EventPulseFailed  EventType = "PULSE_FAILED"
)

// Event describes one relay outcome.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Source    Source
	// Duration is set on PULSE_END: how long the relay was on.
	Duration time.Duration
}

// PulseCounts tracks pulse outcomes since startup.
type PulseCounts struct {
	Accepted map[Source]int
	Dropped  map[Source]int
	Finished int
	Failed   int
}

// NewPulseCounts returns zeroed counters.
func NewPulseCounts() PulseCounts {
	return PulseCounts{
		Accepted: make(map[Source]int),
		Dropped:  make(map[Source]int),
	}
}

// Record updates the counters for e.
func (c *PulseCounts) Record(e Event) {
	switch e.Type {
	case EventPulseStart:
		c.Accepted[e.Source]++
	case EventPulseDropped:
		c.Dropped[e.Source]++
	case EventPulseEnd:
		c.Finished++
	case EventPulseFailed:
		c.Failed++
	}
}

// Clone returns a deep copy safe to hand to another goroutine.
func (c PulseCounts) Clone() PulseCounts {
	out := NewPulseCounts()
	for k, v := range c.Accepted {
		out.Accepted[k] = v
	}
	for k, v := range c.Dropped {
		out.Dropped[k] = v
	}
	out.Finished = c.Finished
	out.Failed = c.Failed
	return out
}

// TotalAccepted returns the number of pulses started from any source.
func (c PulseCounts) TotalAccepted() int {
	n := 0
	for _, v := range c.Accepted {
		n += v
	}
	return n
}

// TotalDropped returns the number of requests dropped from any source.
func (c PulseCounts) TotalDropped() int {
	n := 0
	for _, v := range c.Dropped {
		n += v
	}
	return n
}
