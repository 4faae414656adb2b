package command

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrInvalidCommand marks a command outside the device vocabulary. Such
// commands never reach the broker.
var ErrInvalidCommand = errors.New("unknown command")

// Publisher is the outbound capability the dispatcher drives. Only the
// dispatcher may publish commands; implemented by broker.Link.
type Publisher interface {
	Publish(topic string, payload []byte, requireAck bool) error
}

// Request is one operator command, attributed to the session that issued it
// when it came over the push transport.
type Request struct {
	Command     string
	RequestedAt time.Time
	SessionID   string
}

// vocabulary maps accepted commands to the firmware payloads they expand to.
// RESET is a composite intent: it closes both gates.
var vocabulary = map[string][]string{
	"OPEN1":  {"OPEN1"},
	"CLOSE1": {"CLOSE1"},
	"OPEN2":  {"OPEN2"},
	"CLOSE2": {"CLOSE2"},
	"RESET":  {"CLOSE1", "CLOSE2"},
}

// Dispatcher validates operator commands and forwards them to the device
// command topic. Dispatches run concurrently; each call is synchronous for
// its caller and bounded by the publisher's ack deadline.
type Dispatcher struct {
	pub        Publisher
	topic      string
	requireAck bool
}

// New creates a dispatcher publishing to the given command topic.
func New(pub Publisher, topic string, requireAck bool) *Dispatcher {
	return &Dispatcher{pub: pub, topic: topic, requireAck: requireAck}
}

// Dispatch validates and delivers a command. It returns nil on confirmed
// delivery and a typed error otherwise. Failed commands are never retried
// here: gate actuation is not idempotent, so a timed-out command must be
// treated by the caller as unknown outcome, not as not-delivered.
func (d *Dispatcher) Dispatch(req Request) error {
	cmd := strings.ToUpper(strings.TrimSpace(req.Command))

	payloads, ok := vocabulary[cmd]
	if !ok {
		return fmt.Errorf("%q: %w", req.Command, ErrInvalidCommand)
	}

	for _, payload := range payloads {
		if err := d.pub.Publish(d.topic, []byte(payload), d.requireAck); err != nil {
			return fmt.Errorf("command %s: %w", cmd, err)
		}
	}

	if req.SessionID != "" {
		log.Printf("command: %s dispatched for session %s", cmd, req.SessionID)
	} else {
		log.Printf("command: %s dispatched", cmd)
	}
	return nil
}
