// Package wifi keeps the device on the network.
//
// At startup Associate joins the configured network, retrying with backoff
// for a bounded time, and falls back to hosting an access point. After
// that the control loop calls Poll every iteration; when the keep-alive
// interval is due, Poll starts a background check and returns at once.
package wifi

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/settings"
)

// Mode is the current network role.
type Mode string

const (
	ModeOffline     Mode = "offline"
	ModeStation     Mode = "station"
	ModeAccessPoint Mode = "ap"
)

// Defaults.
const (
	DefaultConnectTimeout    = 30 * time.Second
	DefaultReconnectInterval = 5 * time.Second
)

// State is a snapshot of the supervisor.
type State struct {
	Mode Mode   `json:"mode"`
	SSID string `json:"ssid,omitempty"`
}

// Associator performs the actual network operations.
type Associator interface {
	Connect(ctx context.Context, ssid, passphrase string) error
	Connected(ctx context.Context) (bool, error)
	StartAccessPoint(ctx context.Context, ssid, passphrase string) error
}

// CredentialSource supplies the credentials for the next attempt.
type CredentialSource interface {
	Network() settings.NetworkCredentials
}

// Config holds supervisor tuning.
type Config struct {
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration
	AccessPoint       settings.NetworkCredentials
}

// Supervisor owns network association.
type Supervisor struct {
	assoc Associator
	creds CredentialSource
	cfg   Config
	log   *logger.Logger

	// newBackOff builds the startup retry policy.
	newBackOff func() backoff.BackOff

	mu    sync.Mutex
	state State
	tried settings.NetworkCredentials

	busy    atomic.Bool
	lastRun time.Time
	wg      sync.WaitGroup
}

// NewSupervisor creates a Supervisor. Zero durations take the defaults.
func NewSupervisor(assoc Associator, creds CredentialSource, cfg Config, log *logger.Logger) *Supervisor {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	s := &Supervisor{
		assoc: assoc,
		creds: creds,
		cfg:   cfg,
		log:   log,
		state: State{Mode: ModeOffline},
	}
	s.newBackOff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxInterval = 5 * time.Second
		bo.MaxElapsedTime = s.cfg.ConnectTimeout
		return bo
	}
	return s
}

// State returns the current mode and network name.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Infow("network_mode_changed", "mode", st.Mode, "ssid", st.SSID, "previous", prev.Mode)
	}
}

// Associate joins the stored network, retrying until ConnectTimeout has
// elapsed in total, then falls back to access point mode. It blocks and is
// meant for startup only. If ctx is cancelled it returns without starting
// the access point.
func (s *Supervisor) Associate(ctx context.Context) State {
	creds := s.creds.Network()
	s.markTried(creds)

	if creds.SSID != "" {
		actx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
		defer cancel()
		attempt := 0
		op := func() error {
			attempt++
			err := s.assoc.Connect(actx, creds.SSID, creds.Passphrase)
			if err != nil {
				s.log.Infow("network_connect_retry", "ssid", creds.SSID, "attempt", attempt, "err", err)
			}
			return err
		}
		if err := backoff.Retry(op, backoff.WithContext(s.newBackOff(), actx)); err == nil {
			s.setState(State{Mode: ModeStation, SSID: creds.SSID})
			return s.State()
		}
		s.log.Warnw("network_connect_failed", "ssid", creds.SSID, "attempts", attempt)
	}

	if err := ctx.Err(); err != nil {
		s.log.Infow("network_associate_cancelled", "err", err)
		return s.State()
	}
	s.startAccessPoint(ctx)
	return s.State()
}

func (s *Supervisor) startAccessPoint(ctx context.Context) {
	ap := s.cfg.AccessPoint
	actx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := s.assoc.StartAccessPoint(actx, ap.SSID, ap.Passphrase); err != nil {
		s.log.Errorw("access_point_failed", "ssid", ap.SSID, "err", err)
		s.setState(State{Mode: ModeOffline})
		return
	}
	s.setState(State{Mode: ModeAccessPoint, SSID: ap.SSID})
}

func (s *Supervisor) markTried(c settings.NetworkCredentials) {
	s.mu.Lock()
	s.tried = c
	s.mu.Unlock()
}

func (s *Supervisor) credsChanged(c settings.NetworkCredentials) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return c != s.tried
}

// Poll runs the keep-alive when it is due. It never blocks: the check runs
// in a goroutine and a check still in flight suppresses the next one.
func (s *Supervisor) Poll(ctx context.Context, now time.Time) {
	if !s.lastRun.IsZero() && now.Sub(s.lastRun) < s.cfg.ReconnectInterval {
		return
	}
	if !s.busy.CompareAndSwap(false, true) {
		return
	}
	s.lastRun = now
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.check(ctx)
	}()
}

// Wait blocks until any in-flight check has finished.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func (s *Supervisor) check(ctx context.Context) {
	creds := s.creds.Network()
	cur := s.State()

	switch cur.Mode {
	case ModeAccessPoint:
		// Leaving the access point drops admin clients, so only retry
		// once someone has saved different credentials.
		if !s.credsChanged(creds) {
			return
		}
	case ModeStation:
		ok, err := s.assoc.Connected(ctx)
		if err != nil {
			s.log.Warnw("network_probe_failed", "err", err)
		}
		if ok {
			return
		}
	}

	if creds.SSID == "" {
		return
	}
	s.markTried(creds)

	actx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancel()
	if err := s.assoc.Connect(actx, creds.SSID, creds.Passphrase); err != nil {
		s.log.Warnw("network_reconnect_failed", "ssid", creds.SSID, "err", err)
		if cur.Mode == ModeAccessPoint {
			s.startAccessPoint(ctx)
		} else {
			s.setState(State{Mode: ModeOffline})
		}
		return
	}
	s.setState(State{Mode: ModeStation, SSID: creds.SSID})
}
