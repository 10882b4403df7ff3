package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"

	"github.com/sweeney/coin-pulser/internal/events"
	"github.com/sweeney/coin-pulser/internal/logger"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// DefaultBufferSize is the number of messages kept while disconnected.
	DefaultBufferSize = 256
)

var errPublishTimeout = errors.New("publish timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int
	// OnConnectionChange, if set, is called with the new state whenever
	// the connection goes up or down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. While the broker is
// unreachable, or the breaker is open, messages go to a ring buffer that
// is replayed on reconnect.
type RealPublisher struct {
	client  paho.Client
	log     *logger.Logger
	breaker *gobreaker.CircuitBreaker
	onConn  func(bool)

	mu  sync.Mutex
	buf *ringBuffer

	connectedOnce atomic.Bool
	now           func() time.Time
}

// NewRealPublisher creates a publisher for the given broker. The client
// keeps retrying in the background if the broker is not reachable yet, so
// only configuration errors are returned.
func NewRealPublisher(opts Options, log *logger.Logger) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "coin-pulser"
	}
	p := newPublisher(nil, opts, log)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "MQTT_DISCONNECT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleConnectionLost(err) })

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnw("mqtt_connect_pending", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(client paho.Client, opts Options, log *logger.Logger) *RealPublisher {
	size := opts.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealPublisher{
		client: client,
		log:    log,
		onConn: opts.OnConnectionChange,
		buf:    newRingBuffer(size),
		now:    time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     "mqtt-publish",
			Interval: time.Minute,
			Timeout:  30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warnw("mqtt_breaker_state", "from", from.String(), "to", to.String())
			},
		}),
	}
}

func (p *RealPublisher) handleConnect() {
	p.log.Infow("mqtt_connected")
	if p.onConn != nil {
		p.onConn(true)
	}

	p.mu.Lock()
	pending := p.buf.drainAll()
	p.mu.Unlock()
	if len(pending) > 0 {
		p.log.Infow("mqtt_replaying_buffer", "messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.log.Warnw("mqtt_replay_failed", "topic", m.topic, "err", err)
		}
	}

	if p.connectedOnce.Swap(true) {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
		if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1}); err != nil {
			p.log.Warnw("mqtt_publish_failed", "topic", TopicSystem, "err", err)
		}
	}
}

func (p *RealPublisher) handleConnectionLost(err error) {
	p.log.Warnw("mqtt_connection_lost", "err", err)
	if p.onConn != nil {
		p.onConn(false)
	}
}

func (p *RealPublisher) enqueue(m bufferedMsg) {
	p.mu.Lock()
	evicted := p.buf.push(m)
	n := p.buf.len()
	p.mu.Unlock()
	if evicted {
		p.log.Warnw("mqtt_buffer_full", "capacity", n)
	}
}

// send publishes m through the breaker, buffering it on any failure.
func (p *RealPublisher) send(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.enqueue(m)
		return nil
	}
	_, err := p.breaker.Execute(func() (interface{}, error) {
		token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishTimeout) {
			return nil, errPublishTimeout
		}
		return nil, token.Error()
	})
	if err != nil {
		p.enqueue(m)
		return fmt.Errorf("publish to %s (buffered): %w", m.topic, err)
	}
	return nil
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Publish sends a pulse event at QoS 0.
func (p *RealPublisher) Publish(r events.Record) error {
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: Topic, payload: payload})
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the client is connected to the broker.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
