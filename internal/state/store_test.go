package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	weightTopic = "ayoti/scale/Wvehicle"
	statusTopic = "ayoti/scale/status"
)

func newTestStore() *Store {
	return New(weightTopic, statusTopic)
}

func TestApply_FoldsMessagesInArrivalOrder(t *testing.T) {
	s := newTestStore()

	messages := []struct {
		topic   string
		payload string
	}{
		{weightTopic, "1200"},
		{statusTopic, "ENTRY GATE OPENED"},
		{weightTopic, "4500.5"},
		{statusTopic, "ENTRY GATE CLOSED"},
	}

	for _, m := range messages {
		_, err := s.Apply(m.topic, []byte(m.payload))
		require.NoError(t, err)
	}

	snap := s.Snapshot()
	require.NotNil(t, snap.Weight)
	require.NotNil(t, snap.Status)
	assert.Equal(t, 4500.5, *snap.Weight)
	assert.Equal(t, "ENTRY GATE CLOSED", *snap.Status)
	assert.False(t, snap.UpdatedAt.IsZero())
}

func TestApply_MalformedWeightLeavesStateUnchanged(t *testing.T) {
	s := newTestStore()

	_, err := s.Apply(weightTopic, []byte("4500"))
	require.NoError(t, err)
	before := s.Snapshot()

	_, err = s.Apply(weightTopic, []byte("not-a-number"))
	assert.ErrorIs(t, err, ErrParse)

	after := s.Snapshot()
	assert.Equal(t, before.Weight, after.Weight)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestApply_UnknownTopicRejected(t *testing.T) {
	s := newTestStore()

	_, err := s.Apply("ayoti/scale/unrelated", []byte("5"))
	assert.ErrorIs(t, err, ErrUnknownTopic)
	assert.Nil(t, s.Snapshot().Weight)
}

func TestApply_TrimsPayloadWhitespace(t *testing.T) {
	s := newTestStore()

	_, err := s.Apply(weightTopic, []byte(" 1750 \n"))
	require.NoError(t, err)
	require.NotNil(t, s.Snapshot().Weight)
	assert.Equal(t, 1750.0, *s.Snapshot().Weight)
}

func TestApply_NegativeWeightAccepted(t *testing.T) {
	// Device noise below zero is still "last observed"; filtering is a
	// presentation concern.
	s := newTestStore()

	_, err := s.Apply(weightTopic, []byte("-3"))
	require.NoError(t, err)
	assert.Equal(t, -3.0, *s.Snapshot().Weight)
}

func TestSetBrokerConnected(t *testing.T) {
	s := newTestStore()

	change := s.SetBrokerConnected(true)
	assert.True(t, change.State.BrokerConnected)
	assert.True(t, s.Snapshot().BrokerConnected)

	change = s.SetBrokerConnected(false)
	assert.False(t, change.State.BrokerConnected)
	assert.False(t, s.Snapshot().BrokerConnected)
}

func TestSubscribe_SnapshotThenEveryChangeNoGapNoDuplicate(t *testing.T) {
	s := newTestStore()

	// N changes before the subscriber arrives.
	for i := 1; i <= 3; i++ {
		_, err := s.Apply(weightTopic, []byte(fmt.Sprintf("%d", i*1000)))
		require.NoError(t, err)
	}

	snapshot, changes, cancel := s.Subscribe()
	defer cancel()
	require.NotNil(t, snapshot.Weight)
	assert.Equal(t, 3000.0, *snapshot.Weight)

	// Changes after Subscribe arrive on the channel, in order.
	for i := 4; i <= 6; i++ {
		_, err := s.Apply(weightTopic, []byte(fmt.Sprintf("%d", i*1000)))
		require.NoError(t, err)
	}

	for i := 4; i <= 6; i++ {
		change := <-changes
		require.NotNil(t, change.State.Weight)
		assert.Equal(t, float64(i*1000), *change.State.Weight)
	}

	select {
	case extra := <-changes:
		t.Fatalf("unexpected extra change: %+v", extra)
	default:
	}
}

func TestSubscribe_CancelIsIdempotent(t *testing.T) {
	s := newTestStore()

	_, changes, cancel := s.Subscribe()
	cancel()
	cancel()

	_, ok := <-changes
	assert.False(t, ok)

	// Broadcasting after cancel must not panic or block.
	_, err := s.Apply(weightTopic, []byte("100"))
	assert.NoError(t, err)
}

func TestSubscribe_SlowConsumerIsDropped(t *testing.T) {
	s := newTestStore()

	_, changes, cancel := s.Subscribe()
	defer cancel()

	// Fill the buffer and one more; the overflow closes the channel instead
	// of introducing a gap.
	for i := 0; i <= subscriberBuffer; i++ {
		_, err := s.Apply(weightTopic, []byte("1"))
		require.NoError(t, err)
	}

	received := 0
	for range changes {
		received++
	}
	assert.Equal(t, subscriberBuffer, received)
}

func TestApply_ConcurrentProducersSerialize(t *testing.T) {
	s := newTestStore()

	const perProducer = 100
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			s.Apply(weightTopic, []byte("2500"))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < perProducer; i++ {
			s.Apply(statusTopic, []byte("LED GREEN ON"))
		}
	}()

	wg.Wait()

	snap := s.Snapshot()
	require.NotNil(t, snap.Weight)
	require.NotNil(t, snap.Status)
	assert.Equal(t, 2500.0, *snap.Weight)
	assert.Equal(t, "LED GREEN ON", *snap.Status)
}
