package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/wa-relay/pkg/logging"
)

func TestBusFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus(4, logging.New("error"))
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Publish(Event{Type: EventReady})

	assert.Equal(t, EventReady, recv(t, a).Type)
	assert.Equal(t, EventReady, recv(t, b).Type)
	assert.Equal(t, 2, bus.Subscribers())
}

func TestBusLateSubscriberGetsNoReplay(t *testing.T) {
	bus := NewBus(4, logging.New("error"))
	bus.Publish(Event{Type: EventQR, QR: "old"})

	ch, cancel := bus.Subscribe()
	defer cancel()

	select {
	case evt := <-ch:
		t.Fatalf("unexpected replayed event %v", evt.Type)
	case <-time.After(20 * time.Millisecond):
	}

	bus.Publish(Event{Type: EventQR, QR: "new"})
	assert.Equal(t, "new", recv(t, ch).QR)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(1, logging.New("error"))
	ch, cancel := bus.Subscribe()

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())
	assert.NotPanics(t, func() { bus.Publish(Event{Type: EventReady}) })
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := NewBus(1, logging.New("error"))
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Type: EventQR, QR: "first"})
	bus.Publish(Event{Type: EventQR, QR: "second"})

	assert.Equal(t, "first", recv(t, ch).QR)
	select {
	case evt := <-ch:
		t.Fatalf("expected second event to be dropped, got %q", evt.QR)
	default:
	}
}

func TestBusClose(t *testing.T) {
	bus := NewBus(0, nil)
	ch, cancel := bus.Subscribe()

	bus.Close()
	bus.Close()
	cancel()

	_, ok := <-ch
	require.False(t, ok)

	late, _ := bus.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
