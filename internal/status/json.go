package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/coin-pulser/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Relay         string       `json:"relay"`
	Button        string       `json:"button"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	LastPulse     string       `json:"last_pulse,omitempty"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"pulse_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of pulse counts, keyed by
// short source names.
type CountsJSON struct {
	Accepted map[string]int `json:"accepted"`
	Dropped  map[string]int `json:"dropped"`
	Finished int            `json:"finished"`
	Failed   int            `json:"failed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Mode string `json:"mode"`
	SSID string `json:"ssid,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PulseMs    int64  `json:"pulse_ms"`
	DebounceMs int64  `json:"debounce_ms"`
	PollMs     int64  `json:"poll_ms"`
	Broker     string `json:"broker"`
	HTTPAddr   string `json:"http_addr"`
	SerialPort string `json:"serial_port,omitempty"`
}

// SourceKey returns the short JSON key for a trigger source.
func SourceKey(s logic.Source) string {
	switch s {
	case logic.SourceSerial:
		return "serial"
	case logic.SourceButton:
		return "button"
	case logic.SourceHTTP:
		return "http"
	}
	return string(s)
}

func countsJSON(c logic.PulseCounts) CountsJSON {
	out := CountsJSON{
		Accepted: make(map[string]int, len(logic.Sources)),
		Dropped:  make(map[string]int, len(logic.Sources)),
		Finished: c.Finished,
		Failed:   c.Failed,
	}
	for _, s := range logic.Sources {
		out.Accepted[SourceKey(s)] = c.Accepted[s]
		out.Dropped[SourceKey(s)] = c.Dropped[s]
	}
	return out
}

func onOff(b bool, on, off string) string {
	if b {
		return on
	}
	return off
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Relay:         onOff(snap.RelayActive, "ON", "OFF"),
		Button:        onOff(snap.ButtonPressed, "PRESSED", "RELEASED"),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts:        countsJSON(snap.Counts),
		Config: ConfigJSON{
			PulseMs:    snap.Config.PulseMs,
			DebounceMs: snap.Config.DebounceMs,
			PollMs:     snap.Config.PollMs,
			Broker:     snap.Config.Broker,
			HTTPAddr:   snap.Config.HTTPAddr,
			SerialPort: snap.Config.SerialPort,
		},
	}
	if !snap.LastPulse.IsZero() {
		inner.LastPulse = snap.LastPulse.UTC().Format(time.RFC3339Nano)
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{Mode: snap.Network.Mode, SSID: snap.Network.SSID}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
