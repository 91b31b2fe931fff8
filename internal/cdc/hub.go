package cdc

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var errSlowSubscriber = errors.New("subscriber too slow, dropped from stream")

// DefaultSubscriberBuffer is the per-subscriber event buffer.
const DefaultSubscriberBuffer = 64

// Hub fans decoded events out to per-table sinks. Sinks are created lazily
// on the first subscriber, retired when the last subscriber cancels, and
// recreated transparently after a publisher failure. A slow subscriber is
// dropped with a terminal error event instead of slowing the others.
type Hub struct {
	mu     sync.Mutex
	sinks  map[string]*sink
	buffer int
}

type sink struct {
	subs map[*Subscription]struct{}
}

// Subscription is one subscriber's view of a table stream. Events arrives on
// C; after C closes, Err reports whether the stream ended with an error.
type Subscription struct {
	C <-chan Event

	hub   *Hub
	table string
	ch    chan Event
	once  sync.Once
	err   error
}

// NewHub creates a Hub with the given per-subscriber buffer size.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{sinks: make(map[string]*sink), buffer: buffer}
}

// Subscribe registers a subscriber on a table's sink, creating the sink if
// this is the first subscriber.
func (h *Hub) Subscribe(table string) *Subscription {
	sub := &Subscription{
		hub:   h,
		table: table,
		ch:    make(chan Event, h.buffer),
	}
	sub.C = sub.ch

	h.mu.Lock()
	s, ok := h.sinks[table]
	if !ok {
		s = &sink{subs: make(map[*Subscription]struct{})}
		h.sinks[table] = s
		log.Debug().Str("table", table).Msg("Change sink created")
	}
	s.subs[sub] = struct{}{}
	count := len(s.subs)
	h.mu.Unlock()

	log.Debug().Str("table", table).Int("subscribers", count).Msg("Subscriber added")
	return sub
}

// Cancel removes the subscription from its sink and closes its channel. The
// sink is retired when its last subscriber cancels. Safe to call twice.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
		close(s.ch)
	})
}

// Err reports the terminal stream error, if any, once C is closed.
func (s *Subscription) Err() error {
	return s.err
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sinks[sub.table]
	if !ok {
		return
	}
	delete(s.subs, sub)
	if len(s.subs) == 0 {
		delete(h.sinks, sub.table)
		log.Debug().Str("table", sub.table).Msg("Change sink retired")
	}
}

// Publish delivers an event to every subscriber of the event's table. A
// subscriber whose buffer is full is dropped with a terminal error event.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	s, ok := h.sinks[ev.Table]
	if !ok {
		h.mu.Unlock()
		return
	}
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- ev:
		default:
			log.Warn().Str("table", ev.Table).Msg("Subscriber buffer full, dropping subscriber")
			sub.fail(Event{
				Operation: ev.Operation,
				Schema:    ev.Schema,
				Table:     ev.Table,
				Err:       errSlowSubscriber,
			})
		}
	}
}

// Fail terminates every active subscription with the given error. Sinks are
// removed; the next Subscribe or Publish starts fresh.
func (h *Hub) Fail(err error) {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = make(map[string]*sink)
	h.mu.Unlock()

	for table, s := range sinks {
		for sub := range s.subs {
			sub.fail(Event{Table: table, Err: err})
		}
	}
}

// fail delivers a terminal error event if there is room, then closes the
// subscription.
func (sub *Subscription) fail(ev Event) {
	sub.once.Do(func() {
		sub.err = ev.Err
		sub.hub.remove(sub)
		select {
		case sub.ch <- ev:
		default:
		}
		close(sub.ch)
	})
}

// SubscriberCount reports the number of active subscribers on a table.
func (h *Hub) SubscriberCount(table string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sinks[table]; ok {
		return len(s.subs)
	}
	return 0
}

// ActiveSubscribers reports the total subscriber count across all sinks.
func (h *Hub) ActiveSubscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, s := range h.sinks {
		total += len(s.subs)
	}
	return total
}
