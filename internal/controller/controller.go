// Package controller runs the cooperative control loop of the coin pulser.
//
// One goroutine owns the actuator, the debouncer and the serial parser.
// Each Step visits, in fixed order, one queued HTTP trigger and the network
// keep-alive, one serial byte, one button sample and the actuator timer.
// No step blocks; work that cannot finish now is left for the next Step.
package controller

import (
	"context"
	"time"

	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/metrics"
	"github.com/sweeney/coin-pulser/internal/relay"
	"github.com/sweeney/coin-pulser/internal/status"
	"github.com/sweeney/coin-pulser/internal/wifi"
)

// DefaultQueueSize bounds pending HTTP triggers.
const DefaultQueueSize = 8

// Serial diagnostics written back on the console.
const (
	msgTriggered = "Coin pulse triggered by: "
	msgBusy      = "Pulse already active, ignoring trigger."
	msgFinished  = "Pulse finished."
	msgUnknown   = "Unknown command: "
)

// Console is the serial link as seen by the loop.
type Console interface {
	// Poll returns one received byte without blocking.
	Poll() (byte, bool)
	// Println writes a diagnostic line. Failures are ignored.
	Println(s string)
}

// Network is the keep-alive hook. Poll must return immediately.
type Network interface {
	Poll(ctx context.Context, now time.Time)
	State() wifi.State
}

// Emitter receives actuator outcomes. Emit must not block.
type Emitter interface {
	Emit(e logic.Event) bool
}

// Config holds loop tuning.
type Config struct {
	Debounce  time.Duration
	QueueSize int
}

// Deps are the collaborators of the loop. Only Button and Actuator are
// required.
type Deps struct {
	Button   gpio.Input
	Actuator *relay.Actuator
	Console  Console
	Network  Network
	Events   Emitter
	Tracker  *status.Tracker
	Metrics  *metrics.Metrics
	Log      *logger.Logger
}

// Controller is the scheduler.
type Controller struct {
	d        Deps
	log      *logger.Logger
	requests chan logic.Source

	debouncer *logic.Debouncer
	parser    *logic.CommandParser
	counts    logic.PulseCounts

	buttonErr bool
	dirty     bool
	network   wifi.State
}

// New creates a Controller. start is the time of the first button sample
// baseline; the button is assumed idle (pulled up) at start.
func New(d Deps, cfg Config, start time.Time) *Controller {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = logic.DebounceDelay
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return &Controller{
		d:         d,
		log:       d.Log,
		requests:  make(chan logic.Source, cfg.QueueSize),
		debouncer: logic.NewDebouncer(cfg.Debounce, bool(gpio.Low), bool(gpio.High), start),
		parser:    logic.NewCommandParser(),
		counts:    logic.NewPulseCounts(),
		dirty:     true,
	}
}

// Submit queues a trigger from another goroutine. It returns false when
// the queue is full and the request was discarded.
func (c *Controller) Submit(source logic.Source) bool {
	select {
	case c.requests <- source:
		return true
	default:
		return false
	}
}

// Counts returns a copy of the pulse counters. Loop goroutine only.
func (c *Controller) Counts() logic.PulseCounts {
	return c.counts.Clone()
}

// Run calls Step for every tick until ctx is cancelled.
func (c *Controller) Run(ctx context.Context, now func() time.Time, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			c.Step(ctx, now())
		}
	}
}

// Step runs one loop iteration at now.
func (c *Controller) Step(ctx context.Context, now time.Time) {
	c.serviceNetwork(ctx, now)
	c.serviceSerial(now)
	c.serviceButton(now)

	if e, ok := c.d.Actuator.Tick(now); ok {
		c.record(e)
		c.println(msgFinished)
	}

	if c.dirty {
		c.publishState()
	}
}

func (c *Controller) serviceNetwork(ctx context.Context, now time.Time) {
	select {
	case src := <-c.requests:
		c.trigger(src, now)
	default:
	}

	if c.d.Network == nil {
		return
	}
	c.d.Network.Poll(ctx, now)
	if st := c.d.Network.State(); st != c.network {
		c.network = st
		if c.d.Tracker != nil {
			c.d.Tracker.SetNetwork(&status.NetworkInfo{Mode: string(st.Mode), SSID: st.SSID})
		}
	}
}

func (c *Controller) serviceSerial(now time.Time) {
	if c.d.Console == nil {
		return
	}
	b, ok := c.d.Console.Poll()
	if !ok {
		return
	}
	res, done := c.parser.Feed(b)
	if !done || res.Command == logic.CommandNone {
		return
	}
	if c.d.Metrics != nil {
		c.d.Metrics.SerialLinesTotal.WithLabelValues(commandLabel(res.Command)).Inc()
	}

	switch res.Command {
	case logic.CommandTrigger:
		c.trigger(logic.SourceSerial, now)
	case logic.CommandUnknown:
		c.log.Infow("serial_unknown_command", "line", res.Line)
		c.println(msgUnknown + res.Line)
	}
}

func commandLabel(cmd logic.Command) string {
	switch cmd {
	case logic.CommandTrigger:
		return "trigger"
	default:
		return "unknown"
	}
}

func (c *Controller) serviceButton(now time.Time) {
	level, err := c.d.Button.Read()
	if err != nil {
		// Logged once per failure streak.
		if !c.buttonErr {
			c.log.Errorw("button_read_failed", "err", err)
			c.buttonErr = true
		}
		return
	}
	if c.buttonErr {
		c.log.Infow("button_read_recovered")
		c.buttonErr = false
	}

	wasPressed := c.debouncer.Pressed()
	pressed := c.debouncer.Sample(bool(level), now)
	if c.debouncer.Pressed() != wasPressed {
		c.dirty = true
	}
	if !pressed {
		return
	}

	c.log.Debugw("button_pressed")
	if c.d.Metrics != nil {
		c.d.Metrics.ButtonPressesTotal.Inc()
	}
	c.trigger(logic.SourceButton, now)
}

func (c *Controller) trigger(source logic.Source, now time.Time) {
	e := c.d.Actuator.Trigger(source, now)
	c.record(e)

	switch e.Type {
	case logic.EventPulseStart:
		c.println(msgTriggered + string(source))
		if c.d.Tracker != nil {
			c.d.Tracker.SetLastPulse(now)
		}
	case logic.EventPulseDropped:
		c.println(msgBusy)
	case logic.EventPulseFailed:
		// The actuator logs the fault; the console gets no busy echo.
	}
}

func (c *Controller) record(e logic.Event) {
	c.counts.Record(e)
	c.dirty = true

	if c.d.Metrics != nil {
		c.d.Metrics.ObservePulse(e)
	}
	if c.d.Events != nil && !c.d.Events.Emit(e) {
		c.log.Debugw("event_queue_full", "type", e.Type, "source", e.Source)
	}
}

func (c *Controller) publishState() {
	c.dirty = false
	active := c.d.Actuator.Active()
	if c.d.Metrics != nil {
		c.d.Metrics.SetRelay(active)
	}
	if c.d.Tracker != nil {
		c.d.Tracker.Update(active, c.debouncer.Pressed(), c.counts)
	}
}

func (c *Controller) println(s string) {
	if c.d.Console != nil {
		c.d.Console.Println(s)
	}
}
