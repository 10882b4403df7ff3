// Package relay owns the relay output and turns pulse requests into timed pulses.
package relay

import (
	"time"

	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
)

// Actuator drives at most one pulse at a time on the relay output.
//
// Trigger only ever switches the relay on; Tick is the only place it is
// switched off. Actuator is not safe for concurrent use: it belongs to the
// scheduler goroutine.
type Actuator struct {
	out      gpio.Output
	duration time.Duration
	on, off  gpio.Level
	log      *logger.Logger

	active      bool
	activatedAt time.Time
	source      logic.Source
}

// New creates an Actuator and drives the output to its off level.
// activeHigh selects which level energises the relay.
func New(out gpio.Output, duration time.Duration, activeHigh bool, log *logger.Logger) *Actuator {
	a := &Actuator{
		out:      out,
		duration: duration,
		on:       gpio.Level(activeHigh),
		off:      gpio.Level(!activeHigh),
		log:      log,
	}
	if err := out.Set(a.off); err != nil {
		log.Errorw("relay_init_failed", "err", err)
	}
	return a
}

// Trigger starts a pulse for source at now. A request that arrives while a
// pulse is running is dropped, not queued. If the relay cannot be switched
// on the result is PULSE_FAILED and no pulse is running.
func (a *Actuator) Trigger(source logic.Source, now time.Time) logic.Event {
	if a.active {
		a.log.Infow("pulse_dropped", "source", source, "active_source", a.source)
		return logic.Event{Timestamp: now, Type: logic.EventPulseDropped, Source: source}
	}

	if err := a.out.Set(a.on); err != nil {
		a.log.Errorw("relay_on_failed", "source", source, "err", err)
		return logic.Event{Timestamp: now, Type: logic.EventPulseFailed, Source: source}
	}

	a.active = true
	a.activatedAt = now
	a.source = source
	a.log.Infow("pulse_started", "source", source)
	return logic.Event{Timestamp: now, Type: logic.EventPulseStart, Source: source}
}

// Tick ends the running pulse once its duration has elapsed. It returns the
// PULSE_END event and true when the relay was switched off.
func (a *Actuator) Tick(now time.Time) (logic.Event, bool) {
	if !a.active {
		return logic.Event{}, false
	}
	elapsed := now.Sub(a.activatedAt)
	if elapsed < a.duration {
		return logic.Event{}, false
	}

	// A failed write leaves the pulse active so the next tick retries.
	if err := a.out.Set(a.off); err != nil {
		a.log.Errorw("relay_off_failed", "err", err)
		return logic.Event{}, false
	}

	a.active = false
	a.log.Infow("pulse_finished", "source", a.source, "elapsed", elapsed)
	return logic.Event{Timestamp: now, Type: logic.EventPulseEnd, Source: a.source, Duration: elapsed}, true
}

// Active reports whether a pulse is running.
func (a *Actuator) Active() bool {
	return a.active
}
