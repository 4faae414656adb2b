package broker

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Taufiq-1904/WeighBridge-IoT/config"
)

var (
	// ErrNotConnected is returned by Publish while the link is down. The
	// message is never queued; the caller decides whether to retry.
	ErrNotConnected = errors.New("broker link is not connected")

	// ErrAckTimeout is returned when no delivery acknowledgment arrives
	// within the configured deadline. The publish itself is not cancelled,
	// so the outcome at the broker is unknown.
	ErrAckTimeout = errors.New("publish acknowledgment timed out")
)

// Message is one inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Client is the slice of an MQTT client the link needs. The production
// implementation wraps paho; tests substitute a fake broker.
type Client interface {
	Connect() error
	Subscribe(topic string, qos byte) error
	// Publish sends a message. When ackWait > 0 it blocks until the broker
	// acknowledges or the wait expires.
	Publish(topic string, qos byte, payload []byte, ackWait time.Duration) error
	Disconnect(quiesceMs uint)
}

// Factory builds a client wired to the link's message and loss handlers.
type Factory func(cfg config.MQTTConfig, onMessage func(topic string, payload []byte), onLost func(error)) Client

// Link owns the connection to the upstream broker: connect, subscribe,
// publish, reconnect with capped backoff. It is the only component holding
// publish capability. State machine: Disconnected -> Connecting -> Connected,
// back to Disconnected on loss; never terminal until the context is cancelled.
type Link struct {
	cfg       config.MQTTConfig
	newClient Factory
	topics    []string

	messages    chan Message
	connChanges chan bool
	lost        chan error

	mu        sync.Mutex
	client    Client
	connected bool
}

// New creates a link to the configured broker, subscribed to the given
// topics once connected.
func New(cfg config.MQTTConfig, topics ...string) *Link {
	return NewWithClientFactory(cfg, newPahoClient, topics...)
}

// NewWithClientFactory is New with a custom client constructor, for tests.
func NewWithClientFactory(cfg config.MQTTConfig, factory Factory, topics ...string) *Link {
	return &Link{
		cfg:         cfg,
		newClient:   factory,
		topics:      topics,
		messages:    make(chan Message, 256),
		connChanges: make(chan bool, 8),
		lost:        make(chan error, 1),
	}
}

// Messages returns the stream of inbound (topic, payload) pairs.
func (l *Link) Messages() <-chan Message { return l.messages }

// ConnectionChanges emits true on connect and false on loss.
func (l *Link) ConnectionChanges() <-chan bool { return l.connChanges }

// IsConnected reports whether the link currently holds a live connection.
func (l *Link) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// Run drives the connection state machine until ctx is cancelled. Each failed
// attempt doubles the retry delay up to the configured cap; a successful
// connection resets it. Subscriptions do not survive a broker-level reconnect,
// so they are replayed on every attempt.
func (l *Link) Run(ctx context.Context) {
	backoff := l.cfg.ReconnectInitial

	for {
		log.Printf("broker: connecting to %s", l.cfg.BrokerURL)
		client := l.newClient(l.cfg, l.handleMessage, l.handleLost)

		err := client.Connect()
		if err == nil {
			err = l.subscribeAll(client)
		}
		if err != nil {
			log.Printf("broker: connect failed: %v (retrying in %s)", err, backoff)
			client.Disconnect(0)
			if !l.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, l.cfg.ReconnectMax)
			continue
		}

		log.Printf("broker: connected, %d topics subscribed", len(l.topics))
		backoff = l.cfg.ReconnectInitial
		l.setConnected(client, true)

		select {
		case <-ctx.Done():
			l.setConnected(nil, false)
			client.Disconnect(250)
			return
		case err := <-l.lost:
			log.Printf("broker: connection lost: %v (reconnecting in %s)", err, backoff)
			l.setConnected(nil, false)
		}

		if !l.sleep(ctx, backoff) {
			return
		}
	}
}

// Publish sends payload on topic. It fails fast with ErrNotConnected while
// the link is down. When requireAck is set the publish is raised to at least
// QoS 1 and the call blocks until the broker acknowledges, bounded by the
// configured ack timeout.
func (l *Link) Publish(topic string, payload []byte, requireAck bool) error {
	l.mu.Lock()
	client, ok := l.client, l.connected
	l.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	qos := l.cfg.CommandQoS
	var ackWait time.Duration
	if requireAck {
		if qos == 0 {
			qos = 1
		}
		ackWait = l.cfg.AckTimeout
	}
	return client.Publish(topic, qos, payload, ackWait)
}

func (l *Link) subscribeAll(client Client) error {
	for _, topic := range l.topics {
		if err := client.Subscribe(topic, 0); err != nil {
			return err
		}
	}
	return nil
}

func (l *Link) setConnected(client Client, up bool) {
	l.mu.Lock()
	l.client = client
	l.connected = up
	l.mu.Unlock()

	select {
	case l.connChanges <- up:
	default:
		log.Printf("broker: connection change listener lagging, dropped transition")
	}
}

func (l *Link) handleMessage(topic string, payload []byte) {
	select {
	case l.messages <- Message{Topic: topic, Payload: payload}:
	default:
		log.Printf("broker: message consumer lagging, dropped message on %s", topic)
	}
}

func (l *Link) handleLost(err error) {
	select {
	case l.lost <- err:
	default:
	}
}

// sleep waits for d or cancellation; false means the context is done.
func (l *Link) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}
