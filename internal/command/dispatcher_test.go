package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Taufiq-1904/WeighBridge-IoT/internal/broker"
)

// mockPublisher records publishes and returns a scripted error.
type mockPublisher struct {
	err       error
	topics    []string
	payloads  []string
	ackFlags  []bool
	callCount int
}

func (m *mockPublisher) Publish(topic string, payload []byte, requireAck bool) error {
	m.callCount++
	if m.err != nil {
		return m.err
	}
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, string(payload))
	m.ackFlags = append(m.ackFlags, requireAck)
	return nil
}

func newTestRequest(cmd string) Request {
	return Request{Command: cmd, RequestedAt: time.Now().UTC()}
}

func TestDispatch_KnownCommands(t *testing.T) {
	testCases := []struct {
		name     string
		command  string
		payloads []string
	}{
		{"open entry gate", "OPEN1", []string{"OPEN1"}},
		{"close entry gate", "CLOSE1", []string{"CLOSE1"}},
		{"open exit gate", "OPEN2", []string{"OPEN2"}},
		{"close exit gate", "CLOSE2", []string{"CLOSE2"}},
		{"reset closes both gates", "RESET", []string{"CLOSE1", "CLOSE2"}},
		{"lowercase accepted", "open1", []string{"OPEN1"}},
		{"surrounding whitespace accepted", " OPEN1 ", []string{"OPEN1"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &mockPublisher{}
			d := New(pub, "ayoti/scale/cmd", true)

			err := d.Dispatch(newTestRequest(tc.command))
			require.NoError(t, err)
			assert.Equal(t, tc.payloads, pub.payloads)
			for _, topic := range pub.topics {
				assert.Equal(t, "ayoti/scale/cmd", topic)
			}
			for _, ack := range pub.ackFlags {
				assert.True(t, ack)
			}
		})
	}
}

func TestDispatch_UnknownCommandNeverReachesBroker(t *testing.T) {
	pub := &mockPublisher{}
	d := New(pub, "ayoti/scale/cmd", true)

	for _, cmd := range []string{"FORMAT_DISK", "", "OPEN3", "OPEN1; DROP"} {
		err := d.Dispatch(newTestRequest(cmd))
		assert.ErrorIs(t, err, ErrInvalidCommand, "command %q", cmd)
	}
	assert.Zero(t, pub.callCount)
}

func TestDispatch_BrokerDownSurfacesNotConnected(t *testing.T) {
	pub := &mockPublisher{err: broker.ErrNotConnected}
	d := New(pub, "ayoti/scale/cmd", true)

	err := d.Dispatch(newTestRequest("OPEN1"))
	assert.ErrorIs(t, err, broker.ErrNotConnected)
}

func TestDispatch_AckTimeoutSurfacesAndIsNotRetried(t *testing.T) {
	pub := &mockPublisher{err: broker.ErrAckTimeout}
	d := New(pub, "ayoti/scale/cmd", true)

	err := d.Dispatch(newTestRequest("OPEN1"))
	assert.ErrorIs(t, err, broker.ErrAckTimeout)
	// One attempt only: gate actuation is not idempotent.
	assert.Equal(t, 1, pub.callCount)
}

func TestDispatch_FireAndForgetMode(t *testing.T) {
	pub := &mockPublisher{}
	d := New(pub, "ayoti/scale/cmd", false)

	require.NoError(t, d.Dispatch(newTestRequest("OPEN1")))
	require.Len(t, pub.ackFlags, 1)
	assert.False(t, pub.ackFlags[0])
}
