package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/logic"
	"github.com/sweeney/coin-pulser/internal/metrics"
	"github.com/sweeney/coin-pulser/internal/relay"
	"github.com/sweeney/coin-pulser/internal/status"
	"github.com/sweeney/coin-pulser/internal/wifi"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func ms(n int) time.Time { return t0.Add(time.Duration(n) * time.Millisecond) }

// fakeConsole feeds scripted bytes and records printed lines.
type fakeConsole struct {
	in    []byte
	lines []string
}

func (f *fakeConsole) Poll() (byte, bool) {
	if len(f.in) == 0 {
		return 0, false
	}
	b := f.in[0]
	f.in = f.in[1:]
	return b, true
}

func (f *fakeConsole) Println(s string) { f.lines = append(f.lines, s) }

type fakeEmitter struct {
	events []logic.Event
	full   bool
}

func (f *fakeEmitter) Emit(e logic.Event) bool {
	if f.full {
		return false
	}
	f.events = append(f.events, e)
	return true
}

func (f *fakeEmitter) types() []logic.EventType {
	out := make([]logic.EventType, len(f.events))
	for i, e := range f.events {
		out[i] = e.Type
	}
	return out
}

type fakeNetwork struct {
	polls []time.Time
	state wifi.State
}

func (f *fakeNetwork) Poll(_ context.Context, now time.Time) { f.polls = append(f.polls, now) }
func (f *fakeNetwork) State() wifi.State                     { return f.state }

type rig struct {
	c       *Controller
	button  *gpio.FakeInput
	relay   *gpio.FakeOutput
	console *fakeConsole
	events  *fakeEmitter
	net     *fakeNetwork
	tracker *status.Tracker
	metrics *metrics.Metrics
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		button:  gpio.NewFakeInput(gpio.High),
		relay:   gpio.NewFakeOutput(),
		console: &fakeConsole{},
		events:  &fakeEmitter{},
		net:     &fakeNetwork{state: wifi.State{Mode: wifi.ModeOffline}},
		tracker: status.NewTracker(t0, status.Config{}),
		metrics: metrics.New(),
	}
	act := relay.New(r.relay, logic.PulseDuration, true, logger.Nop())
	r.c = New(Deps{
		Button:   r.button,
		Actuator: act,
		Console:  r.console,
		Network:  r.net,
		Events:   r.events,
		Tracker:  r.tracker,
		Metrics:  r.metrics,
		Log:      logger.Nop(),
	}, Config{Debounce: logic.DebounceDelay, QueueSize: 2}, t0)
	return r
}

func equalTypes(a, b []logic.EventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHTTPTriggerPulsesRelay(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	if !r.c.Submit(logic.SourceHTTP) {
		t.Fatal("Submit: queue unexpectedly full")
	}
	r.c.Step(ctx, ms(0))
	if r.relay.Level() != gpio.High {
		t.Fatal("relay should be on after HTTP trigger")
	}
	if !r.tracker.Snapshot().RelayActive {
		t.Error("tracker should report relay active")
	}

	r.c.Step(ctx, ms(49))
	if r.relay.Level() != gpio.High {
		t.Fatal("relay switched off before 50ms")
	}
	r.c.Step(ctx, ms(50))
	if r.relay.Level() != gpio.Low {
		t.Fatal("relay should be off at 50ms")
	}

	want := []logic.EventType{logic.EventPulseStart, logic.EventPulseEnd}
	if got := r.events.types(); !equalTypes(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	wantLines := []string{"Coin pulse triggered by: HTTP request", "Pulse finished."}
	if len(r.console.lines) != 2 || r.console.lines[0] != wantLines[0] || r.console.lines[1] != wantLines[1] {
		t.Errorf("console: got %q, want %q", r.console.lines, wantLines)
	}
	snap := r.tracker.Snapshot()
	if snap.RelayActive || snap.Counts.Finished != 1 || !snap.LastPulse.Equal(ms(0)) {
		t.Errorf("snapshot: got %+v", snap)
	}
}

func TestRelayFaultIsNotReportedAsBusy(t *testing.T) {
	r := newRig(t)
	r.relay.SetError = errors.New("bus fault")

	r.c.Submit(logic.SourceHTTP)
	r.c.Step(context.Background(), ms(0))

	if len(r.console.lines) != 0 {
		t.Errorf("console: got %q, want nothing", r.console.lines)
	}
	want := []logic.EventType{logic.EventPulseFailed}
	if got := r.events.types(); !equalTypes(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	counts := r.c.Counts()
	if counts.Failed != 1 || counts.TotalDropped() != 0 || counts.TotalAccepted() != 0 {
		t.Errorf("counts: got %+v", counts)
	}
	if v := testutil.ToFloat64(r.metrics.PulsesTotal.WithLabelValues("http", metrics.ResultDropped)); v != 0 {
		t.Errorf("dropped metric: got %v, want 0", v)
	}
	if v := testutil.ToFloat64(r.metrics.PulsesTotal.WithLabelValues("http", metrics.ResultFailed)); v != 1 {
		t.Errorf("failed metric: got %v, want 1", v)
	}

	// The fault clears and the next request pulses normally.
	r.relay.SetError = nil
	r.c.Submit(logic.SourceHTTP)
	r.c.Step(context.Background(), ms(1))
	if r.relay.Level() != gpio.High {
		t.Error("relay should pulse once the output recovers")
	}
}

func TestSubmitQueueFull(t *testing.T) {
	r := newRig(t)
	if !r.c.Submit(logic.SourceHTTP) || !r.c.Submit(logic.SourceHTTP) {
		t.Fatal("first two submits should fit")
	}
	if r.c.Submit(logic.SourceHTTP) {
		t.Error("third submit should be rejected")
	}
}

func TestOneHTTPRequestPerStep(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.c.Submit(logic.SourceHTTP)
	r.c.Submit(logic.SourceHTTP)

	r.c.Step(ctx, ms(0))
	if got := len(r.events.events); got != 1 {
		t.Fatalf("after first step: %d events, want 1", got)
	}
	r.c.Step(ctx, ms(1))
	want := []logic.EventType{logic.EventPulseStart, logic.EventPulseDropped}
	if got := r.events.types(); !equalTypes(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	if r.console.lines[1] != "Pulse already active, ignoring trigger." {
		t.Errorf("console: got %q", r.console.lines)
	}
}

func TestSerialTrigger(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.console.in = []byte(" trigger\r\nTRIGGER\r\n")

	// One byte per step: the lowercase line completes first and is unknown.
	for i := 0; i < len(" trigger\r\n"); i++ {
		r.c.Step(ctx, ms(i))
	}
	if len(r.events.events) != 0 {
		t.Fatalf("lowercase line should not trigger, got %v", r.events.types())
	}
	if got := r.console.lines; len(got) != 1 || got[0] != "Unknown command: trigger" {
		t.Fatalf("console: got %q", got)
	}

	for i := 0; i < len("TRIGGER\r\n"); i++ {
		r.c.Step(ctx, ms(20+i))
	}
	if len(r.events.events) != 1 || r.events.events[0].Source != logic.SourceSerial {
		t.Fatalf("events: got %+v", r.events.events)
	}
	if got := r.console.lines[1]; got != "Coin pulse triggered by: serial command" {
		t.Errorf("console: got %q", got)
	}

	if v := testutil.ToFloat64(r.metrics.SerialLinesTotal.WithLabelValues("unknown")); v != 1 {
		t.Errorf("unknown lines: got %v, want 1", v)
	}
	if v := testutil.ToFloat64(r.metrics.SerialLinesTotal.WithLabelValues("trigger")); v != 1 {
		t.Errorf("trigger lines: got %v, want 1", v)
	}
}

func TestSerialEmptyLineIgnored(t *testing.T) {
	r := newRig(t)
	r.console.in = []byte("\r\n\n")
	for i := 0; i < 3; i++ {
		r.c.Step(context.Background(), ms(i))
	}
	if len(r.console.lines) != 0 || len(r.events.events) != 0 {
		t.Errorf("empty lines produced output: %q %v", r.console.lines, r.events.types())
	}
}

func TestButtonPressDebounced(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	// Bounce: low for 10ms then high again.
	r.button.Samples = []gpio.Level{gpio.Low}
	r.button.Reset()
	r.c.Step(ctx, ms(0))
	r.c.Step(ctx, ms(10))
	r.button.Samples = []gpio.Level{gpio.High}
	r.button.Reset()
	r.c.Step(ctx, ms(20))
	r.c.Step(ctx, ms(100))
	if len(r.events.events) != 0 {
		t.Fatalf("bounce triggered a pulse: %v", r.events.types())
	}

	// A held press commits after more than 50ms.
	r.button.Samples = []gpio.Level{gpio.Low}
	r.button.Reset()
	r.c.Step(ctx, ms(200))
	r.c.Step(ctx, ms(250))
	if len(r.events.events) != 0 {
		t.Fatal("press committed at exactly the debounce delay")
	}
	r.c.Step(ctx, ms(251))
	if len(r.events.events) != 1 || r.events.events[0].Source != logic.SourceButton {
		t.Fatalf("events: got %+v", r.events.events)
	}
	if !r.tracker.Snapshot().ButtonPressed {
		t.Error("tracker should report button pressed")
	}

	// Holding does not repeat.
	for i := 252; i < 400; i += 10 {
		r.c.Step(ctx, ms(i))
	}
	want := []logic.EventType{logic.EventPulseStart, logic.EventPulseEnd}
	if got := r.events.types(); !equalTypes(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	if v := testutil.ToFloat64(r.metrics.ButtonPressesTotal); v != 1 {
		t.Errorf("button presses: got %v, want 1", v)
	}
}

func TestButtonReadErrorSkipsSample(t *testing.T) {
	r := newRig(t)
	r.button.ReadError = errors.New("line busy")
	r.c.Step(context.Background(), ms(0))
	r.c.Step(context.Background(), ms(100))
	if len(r.events.events) != 0 {
		t.Errorf("events on read error: %v", r.events.types())
	}
}

func TestSimultaneousTriggersResolvedByVisitOrder(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	// Button goes down, serial line and HTTP request all land on the step
	// where the press commits.
	r.button.Samples = []gpio.Level{gpio.Low}
	r.button.Reset()
	r.c.Step(ctx, ms(0))

	r.console.in = []byte("TRIGGER")
	for i := 1; i <= 7; i++ {
		r.c.Step(ctx, ms(i))
	}
	r.console.in = []byte("\n")
	r.c.Submit(logic.SourceHTTP)
	r.c.Step(ctx, ms(60))

	if len(r.events.events) != 3 {
		t.Fatalf("events: got %+v", r.events.events)
	}
	wantSources := []logic.Source{logic.SourceHTTP, logic.SourceSerial, logic.SourceButton}
	wantTypes := []logic.EventType{logic.EventPulseStart, logic.EventPulseDropped, logic.EventPulseDropped}
	for i, e := range r.events.events {
		if e.Source != wantSources[i] || e.Type != wantTypes[i] {
			t.Errorf("event %d: got %s/%s, want %s/%s", i, e.Type, e.Source, wantTypes[i], wantSources[i])
		}
	}

	counts := r.c.Counts()
	if counts.Accepted[logic.SourceHTTP] != 1 || counts.TotalDropped() != 2 {
		t.Errorf("counts: got %+v", counts)
	}
	if v := testutil.ToFloat64(r.metrics.PulsesTotal.WithLabelValues("button", metrics.ResultDropped)); v != 1 {
		t.Errorf("button dropped metric: got %v, want 1", v)
	}
}

func TestRetriggerAfterPulseEnds(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.c.Submit(logic.SourceHTTP)
	r.c.Step(ctx, ms(0))
	r.c.Step(ctx, ms(50))
	r.c.Submit(logic.SourceHTTP)
	r.c.Step(ctx, ms(51))

	want := []logic.EventType{logic.EventPulseStart, logic.EventPulseEnd, logic.EventPulseStart}
	if got := r.events.types(); !equalTypes(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
}

func TestEventQueueFullDoesNotBlockActuation(t *testing.T) {
	r := newRig(t)
	r.events.full = true
	r.c.Submit(logic.SourceHTTP)
	r.c.Step(context.Background(), ms(0))
	if r.relay.Level() != gpio.High {
		t.Error("relay should fire even when events are discarded")
	}
}

func TestNetworkPolledEveryStep(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.c.Step(ctx, ms(0))
	r.net.state = wifi.State{Mode: wifi.ModeAccessPoint, SSID: "claw-service"}
	r.c.Step(ctx, ms(1))

	if len(r.net.polls) != 2 {
		t.Errorf("polls: got %d, want 2", len(r.net.polls))
	}
	n := r.tracker.Snapshot().Network
	if n == nil || n.Mode != "ap" || n.SSID != "claw-service" {
		t.Errorf("network: got %+v", n)
	}
}

func TestOptionalDepsMayBeNil(t *testing.T) {
	out := gpio.NewFakeOutput()
	c := New(Deps{
		Button:   gpio.NewFakeInput(gpio.High),
		Actuator: relay.New(out, logic.PulseDuration, true, logger.Nop()),
	}, Config{}, t0)

	c.Submit(logic.SourceHTTP)
	c.Step(context.Background(), ms(0))
	c.Step(context.Background(), ms(50))
	if got := c.Counts(); got.Accepted[logic.SourceHTTP] != 1 || got.Finished != 1 {
		t.Errorf("counts: got %+v", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	tick := make(chan time.Time)
	done := make(chan error, 1)

	clock := t0
	go func() { done <- r.c.Run(ctx, func() time.Time { return clock }, tick) }()

	r.c.Submit(logic.SourceHTTP)
	tick <- t0
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if r.relay.Level() != gpio.High {
		t.Error("tick should have fired the queued trigger")
	}
}
