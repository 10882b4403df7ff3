package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/coin-pulser/internal/assets"
	"github.com/sweeney/coin-pulser/internal/controller"
	"github.com/sweeney/coin-pulser/internal/events"
	"github.com/sweeney/coin-pulser/internal/gpio"
	"github.com/sweeney/coin-pulser/internal/logger"
	"github.com/sweeney/coin-pulser/internal/metrics"
	"github.com/sweeney/coin-pulser/internal/mqtt"
	"github.com/sweeney/coin-pulser/internal/relay"
	"github.com/sweeney/coin-pulser/internal/repository"
	"github.com/sweeney/coin-pulser/internal/repository/db"
	"github.com/sweeney/coin-pulser/internal/serial"
	"github.com/sweeney/coin-pulser/internal/settings"
	"github.com/sweeney/coin-pulser/internal/status"
	"github.com/sweeney/coin-pulser/internal/web"
	"github.com/sweeney/coin-pulser/internal/wifi"
)

const shutdownTimeout = 10 * time.Second

// banner is written to the serial console once the link is open.
var banner = []string{
	"Pulse Controller Initialized.",
	"Send 'TRIGGER' or press the built-in button.",
}

func runDaemon(cfg Config, log *logger.Logger) error {
	defer func() { _ = log.Sync() }()

	// GPIO is the only hard dependency: without it nothing can be actuated.
	button, err := gpio.NewRealInput(cfg.GPIO.Chip, cfg.GPIO.ButtonPin)
	if err != nil {
		return fmt.Errorf("init button: %w", err)
	}
	defer button.Close()

	relayIdle := gpio.Level(!cfg.GPIO.RelayActiveHigh)
	relayOut, err := gpio.NewRealOutput(cfg.GPIO.Chip, cfg.GPIO.RelayPin, relayIdle)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer func() {
		if err := relayOut.Set(relayIdle); err != nil {
			log.Errorw("relay_release_failed", "err", err)
		}
		relayOut.Close()
	}()

	m := metrics.New()

	store := openStorage(cfg.DB.Path, log)
	defer store.close()

	cred, err := settings.CredentialFor(cfg.Admin.Hash)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signals are watched before anything that blocks, so a SIGTERM during
	// network association still takes the shutdown path below.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	reason := watchSignals(sigCh, cancel, log)

	gate := settings.Load(ctx, store.settings, settings.DefaultValues(), cred, log)
	gate.OnApplied = func(key string) {
		m.ConfigUpdatesTotal.WithLabelValues(key).Inc()
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		PulseMs:    cfg.Pulse.Duration.Milliseconds(),
		DebounceMs: cfg.Debounce.Milliseconds(),
		PollMs:     cfg.Poll.Milliseconds(),
		Broker:     cfg.MQTT.Broker,
		HTTPAddr:   cfg.HTTP.Addr,
		SerialPort: cfg.Serial.Port,
	})

	var console controller.Console
	if cfg.Serial.Port != "" {
		port, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud)
		if err != nil {
			log.Warnw("serial_unavailable", "port", cfg.Serial.Port, "err", err)
		} else {
			link := serial.NewLink(port, 0, log)
			defer link.Close()
			for _, line := range banner {
				link.Println(line)
			}
			console = link
		}
	}

	var network controller.Network
	var supervisor *wifi.Supervisor
	if cfg.WiFi.Enabled {
		supervisor = wifi.NewSupervisor(wifi.NewNMCLI(cfg.WiFi.Interface), gate, wifi.Config{
			ConnectTimeout:    cfg.WiFi.ConnectTimeout,
			ReconnectInterval: cfg.WiFi.ReconnectInterval,
			AccessPoint: settings.NetworkCredentials{
				SSID:       cfg.WiFi.APSSID,
				Passphrase: cfg.WiFi.APPassword,
			},
		}, log)
		st := supervisor.Associate(ctx)
		log.Infow("network_ready", "mode", st.Mode, "ssid", st.SSID)
		network = supervisor
		defer supervisor.Wait()
	}

	cache := assets.New(cfg.Assets.Dir, log)
	if cache.Available() {
		go func() {
			if err := cache.Watch(ctx); err != nil {
				log.Warnw("asset_watch_failed", "err", err)
			}
		}()
	}

	var publisher mqtt.Publisher
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			OnConnectionChange: tracker.SetMQTTConnected,
		}, log)
		if err != nil {
			log.Warnw("mqtt_unavailable", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			publisher = p
		}
	}

	hub := web.NewHub(log)
	sinks := []events.Sink{hub}
	if store.pulses != nil {
		sinks = append(sinks, events.HistorySink{Repo: store.pulses})
	}
	if publisher != nil {
		sinks = append(sinks, mqtt.NewSink(publisher))
	}
	dispatcher := events.NewDispatcher(events.DefaultQueueSize, log, sinks...)
	dispatcher.OnDrop = m.EventsDroppedTotal.Inc

	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(dispatchCtx)
	}()

	actuator := relay.New(relayOut, cfg.Pulse.Duration, cfg.GPIO.RelayActiveHigh, log)
	ctrl := controller.New(controller.Deps{
		Button:   button,
		Actuator: actuator,
		Console:  console,
		Network:  network,
		Events:   dispatcher,
		Tracker:  tracker,
		Metrics:  m,
		Log:      log,
	}, controller.Config{Debounce: cfg.Debounce}, time.Now())

	deps := web.Deps{
		Trigger:  ctrl,
		Settings: gate,
		Tracker:  tracker,
		Assets:   cache,
		Metrics:  m.Handler(),
		Hub:      hub,
		Log:      log,
	}
	if store.pulses != nil {
		deps.History = store.pulses
	}
	srv := web.New(cfg.HTTP.Addr, deps)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("http_server_failed", "err", err)
		}
	}()
	log.Infow("http_listening", "addr", cfg.HTTP.Addr)

	if publisher != nil {
		publishLifecycle(publisher, tracker, "STARTUP", "", log)
	}

	log.Infow("started",
		"pulse", cfg.Pulse.Duration,
		"debounce", cfg.Debounce,
		"poll", cfg.Poll,
		"broker", cfg.MQTT.Broker,
		"serial", cfg.Serial.Port,
	)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()
	if err := ctrl.Run(ctx, time.Now, ticker.C); err != nil {
		log.Errorw("control_loop_failed", "err", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http_shutdown_failed", "err", err)
	}

	stopDispatch()
	<-dispatchDone

	if publisher != nil {
		why := "UNKNOWN"
		select {
		case why = <-reason:
		default:
		}
		publishLifecycle(publisher, tracker, "SHUTDOWN", why, log)
		if err := publisher.Close(); err != nil {
			log.Warnw("mqtt_close_failed", "err", err)
		}
	}
	log.Infow("stopped")
	return nil
}

// storage is the configuration store and, when SQLite is usable, the
// pulse history.
type storage struct {
	settings settings.Store
	pulses   *repository.PulseSQLite
	close    func()
}

// openStorage opens the SQLite database at path. On failure it logs and
// falls back to an in-memory store with no history.
func openStorage(path string, log *logger.Logger) storage {
	conn, err := db.InitDB(path)
	if err != nil {
		log.Warnw("storage_unavailable", "path", path, "err", err)
		return storage{settings: settings.NewMemStore(), close: func() {}}
	}
	repo := repository.NewRepository(conn)
	return storage{
		settings: repo.Settings,
		pulses:   repo.Pulses,
		close: func() {
			if err := conn.Close(); err != nil {
				log.Warnw("storage_close_failed", "err", err)
			}
		},
	}
}

// publishLifecycle sends a retained system event carrying a status snapshot.
func publishLifecycle(p mqtt.Publisher, tracker *status.Tracker, event, reason string, log *logger.Logger) {
	snap := tracker.Snapshot()
	err := p.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		log.Warnw("system_event_publish_failed", "event", event, "err", err)
		return
	}
	log.Infow("system_event_published", "event", event)
}

// watchSignals waits for the first signal on sigCh, records its name on
// the returned channel and then calls cancel.
func watchSignals(sigCh <-chan os.Signal, cancel context.CancelFunc, log *logger.Logger) <-chan string {
	reason := make(chan string, 1)
	go func() {
		s, ok := <-sigCh
		if !ok {
			return
		}
		log.Infow("shutdown_signal", "signal", s.String())
		reason <- signalName(s)
		cancel()
	}()
	return reason
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
