package logic

import "time"

// Debouncer turns a noisy raw button level into press events.
//
// The raw level must hold steady for longer than the delay before it becomes
// the stable level. Only the transition of the stable level to the pressed
// level emits an event; releases are silent.
type Debouncer struct {
	delay   time.Duration
	pressed bool

	lastRaw    bool
	stable     bool
	lastChange time.Time
}

// NewDebouncer creates a Debouncer. pressedLevel is the raw level of a held
// button (false for an active-low input), idleLevel the level it starts in.
func NewDebouncer(delay time.Duration, pressedLevel, idleLevel bool, start time.Time) *Debouncer {
	return &Debouncer{
		delay:      delay,
		pressed:    pressedLevel,
		lastRaw:    idleLevel,
		stable:     idleLevel,
		lastChange: start,
	}
}

// Sample feeds one raw reading taken at now and reports whether it
// completed a press.
func (d *Debouncer) Sample(raw bool, now time.Time) bool {
	if raw != d.lastRaw {
		d.lastChange = now
		d.lastRaw = raw
	}

	if now.Sub(d.lastChange) <= d.delay || raw == d.stable {
		return false
	}

	d.stable = raw
	return d.stable == d.pressed
}

// Pressed reports whether the stable level is the pressed level.
func (d *Debouncer) Pressed() bool {
	return d.stable == d.pressed
}

// Stable returns the committed raw level.
func (d *Debouncer) Stable() bool {
	return d.stable
}
