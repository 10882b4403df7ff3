// Package status provides a thread-safe status tracker for the coin pulser.
// The control loop writes it; HTTP handlers and MQTT lifecycle events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/coin-pulser/internal/logic"
)

// NetworkInfo is the association state. A local copy so that status does
// not import internal/wifi.
type NetworkInfo struct {
	Mode string
	SSID string
}

// Config contains daemon configuration for display.
type Config struct {
	PulseMs    int64
	DebounceMs int64
	PollMs     int64
	Broker     string
	HTTPAddr   string
	SerialPort string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; Counts is deep-copied on every read.
type Snapshot struct {
	RelayActive   bool
	ButtonPressed bool
	Counts        logic.PulseCounts
	LastPulse     time.Time
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Counts:    logic.NewPulseCounts(),
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the relay and button state and the pulse counters.
// Called from the control loop when any of them changes.
func (t *Tracker) Update(relayActive, buttonPressed bool, counts logic.PulseCounts) {
	c := counts.Clone()
	t.mu.Lock()
	t.snap.RelayActive = relayActive
	t.snap.ButtonPressed = buttonPressed
	t.snap.Counts = c
	t.mu.Unlock()
}

// SetLastPulse records when the most recent pulse started.
func (t *Tracker) SetLastPulse(at time.Time) {
	t.mu.Lock()
	t.snap.LastPulse = at
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Counts = t.snap.Counts.Clone()
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
