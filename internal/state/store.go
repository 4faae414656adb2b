package state

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrParse is returned when a telemetry payload cannot be parsed.
	// The previous state is retained unchanged.
	ErrParse = errors.New("unparseable telemetry payload")

	// ErrUnknownTopic is returned for messages on topics the store does not track.
	ErrUnknownTopic = errors.New("unrecognized topic")
)

// DeviceState is the last-known snapshot of the weighbridge installation.
// Weight and Status are nil until the first message arrives on their topic,
// so the frontend can distinguish "no data yet" from a real reading.
type DeviceState struct {
	Weight          *float64  `json:"weight"`
	Status          *string   `json:"status"`
	BrokerConnected bool      `json:"brokerConnected"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// StateChange is emitted once per successful mutation. State is the full
// snapshot resulting from the mutation, not a delta.
type StateChange struct {
	Topic string
	State DeviceState
}

// Store owns the canonical device state. All mutation goes through Apply and
// SetBrokerConnected under a single mutex, so concurrent arrivals on different
// topics are serialized into one total order, and every subscriber observes
// changes in exactly that order.
type Store struct {
	weightTopic string
	statusTopic string

	mu     sync.Mutex
	state  DeviceState
	subs   map[int]chan StateChange
	nextID int
}

// subscriberBuffer bounds how far a consumer may lag before it is dropped.
const subscriberBuffer = 64

// New creates a store tracking the given telemetry topics.
func New(weightTopic, statusTopic string) *Store {
	return &Store{
		weightTopic: weightTopic,
		statusTopic: statusTopic,
		subs:        make(map[int]chan StateChange),
	}
}

// Apply parses a raw broker payload according to its topic and folds it into
// the state. A parse failure leaves the state untouched and returns an error
// wrapping ErrParse; callers log and move on, malformed upstream data must
// never take the bridge down.
func (s *Store) Apply(topic string, payload []byte) (StateChange, error) {
	text := strings.TrimSpace(string(payload))

	s.mu.Lock()
	defer s.mu.Unlock()

	switch topic {
	case s.weightTopic:
		w, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return StateChange{}, fmt.Errorf("weight payload %q: %w", text, ErrParse)
		}
		s.state.Weight = &w
	case s.statusTopic:
		// Stored verbatim. Gate/LED/buzzer vocabulary inside the line is a
		// presentation concern, not ours.
		s.state.Status = &text
	default:
		return StateChange{}, fmt.Errorf("topic %q: %w", topic, ErrUnknownTopic)
	}

	s.state.UpdatedAt = time.Now().UTC()
	change := StateChange{Topic: topic, State: s.state}
	s.broadcastLocked(change)
	return change, nil
}

// SetBrokerConnected records a broker connectivity transition so viewers see
// an explicit indicator instead of silently stale data.
func (s *Store) SetBrokerConnected(up bool) StateChange {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.BrokerConnected = up
	s.state.UpdatedAt = time.Now().UTC()
	change := StateChange{State: s.state}
	s.broadcastLocked(change)
	return change
}

// Snapshot returns the current state by value. The snapshot is internally
// consistent: it can never mix fields from two in-flight mutations.
func (s *Store) Snapshot() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a change consumer. The returned snapshot and channel
// are taken under the same lock, so the consumer sees the snapshot followed
// by every later change with no gap and no duplicate. The cancel func is
// idempotent.
func (s *Store) Subscribe() (DeviceState, <-chan StateChange, func()) {
	ch := make(chan StateChange, subscriberBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	snapshot := s.state
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
	return snapshot, ch, cancel
}

// broadcastLocked delivers a change to all subscribers in registration-time
// order, before the triggering Apply returns. A subscriber whose buffer is
// full would otherwise be handed a gap, so it is closed and removed instead;
// the consumer treats the closed channel like a failed transport.
func (s *Store) broadcastLocked(change StateChange) {
	for id, ch := range s.subs {
		select {
		case ch <- change:
		default:
			log.Printf("state: subscriber %d too slow, dropping it", id)
			delete(s.subs, id)
			close(ch)
		}
	}
}
