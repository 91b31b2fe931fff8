package cdc

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe("orders")
	defer sub.Cancel()

	for i := 1; i <= 3; i++ {
		hub.Publish(Event{Operation: OpInsert, Table: "orders", New: map[string]any{"id": i}})
	}

	for i := 1; i <= 3; i++ {
		ev := <-sub.C
		assert.Equal(t, map[string]any{"id": i}, ev.New)
	}
}

func TestHubRoutesPerTable(t *testing.T) {
	hub := NewHub(8)
	orders := hub.Subscribe("orders")
	defer orders.Cancel()
	users := hub.Subscribe("users")
	defer users.Cancel()

	hub.Publish(Event{Operation: OpInsert, Table: "orders"})

	ev := <-orders.C
	assert.Equal(t, "orders", ev.Table)

	select {
	case <-users.C:
		t.Fatal("users subscriber must not receive orders events")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubSubscriberCountsAndRetirement(t *testing.T) {
	hub := NewHub(8)

	a := hub.Subscribe("orders")
	b := hub.Subscribe("orders")
	assert.Equal(t, 2, hub.SubscriberCount("orders"))
	assert.Equal(t, 2, hub.ActiveSubscribers())

	a.Cancel()
	assert.Equal(t, 1, hub.SubscriberCount("orders"))

	b.Cancel()
	assert.Equal(t, 0, hub.SubscriberCount("orders"))

	// Cancel is idempotent.
	b.Cancel()
	assert.Equal(t, 0, hub.ActiveSubscribers())
}

func TestHubDropsSlowSubscriberWithError(t *testing.T) {
	hub := NewHub(1)
	slow := hub.Subscribe("orders")

	// Fill the buffer, then overflow it.
	hub.Publish(Event{Operation: OpInsert, Table: "orders", New: map[string]any{"id": 1}})
	hub.Publish(Event{Operation: OpInsert, Table: "orders", New: map[string]any{"id": 2}})

	ev, ok := <-slow.C
	require.True(t, ok)
	assert.Equal(t, map[string]any{"id": 1}, ev.New)
	_, ok = <-slow.C
	assert.False(t, ok)
	assert.Error(t, slow.Err())
	assert.Equal(t, 0, hub.SubscriberCount("orders"))
}

func TestHubSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	hub := NewHub(2)
	slow := hub.Subscribe("orders")
	fast := hub.Subscribe("orders")

	for i := 0; i < 4; i++ {
		hub.Publish(Event{Operation: OpInsert, Table: "orders", New: map[string]any{"id": i}})
		<-fast.C
	}

	// slow overflowed after two undrained events and was dropped.
	assert.Equal(t, 1, hub.SubscriberCount("orders"))
	hub.Publish(Event{Operation: OpInsert, Table: "orders", New: map[string]any{"id": 99}})
	ev := <-fast.C
	assert.Equal(t, map[string]any{"id": 99}, ev.New)

	_ = slow
	fast.Cancel()
}

func TestHubFailTerminatesAndRecreates(t *testing.T) {
	hub := NewHub(8)
	sub := hub.Subscribe("orders")

	cause := errors.New("stream interrupted")
	hub.Fail(cause)

	ev, ok := <-sub.C
	require.True(t, ok)
	assert.Equal(t, cause, ev.Err)
	_, ok = <-sub.C
	assert.False(t, ok)
	assert.Equal(t, cause, sub.Err())

	// The sink was removed; a new subscription starts clean.
	assert.Equal(t, 0, hub.ActiveSubscribers())
	fresh := hub.Subscribe("orders")
	hub.Publish(Event{Operation: OpInsert, Table: "orders"})
	ev = <-fresh.C
	assert.Nil(t, ev.Err)
	fresh.Cancel()
}
