// Copyright 2026 The Maestro Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sync"

	"github.com/maestro-foundation/maestro/lib/schema/campaign"
)

// eventBufferSize is the channel capacity for each event subscriber.
// A full pipeline run emits on the order of a dozen events, so the
// buffer absorbs an entire run even if the subscriber never reads
// until the end. A subscriber that still falls behind is disconnected
// rather than allowed to stall the pipeline.
const eventBufferSize = 256

// EventBus fans out the events of a single campaign run. The pipeline
// publishes; watch and create streams subscribe. Publishing never
// blocks: each subscriber has a buffered channel, and a subscriber
// whose buffer is full is marked overflowed and disconnected.
//
// The bus records every published event so that a subscriber attaching
// mid-run receives the full history before live events. After Close
// (called once the terminal event is published) new subscriptions
// still receive the recorded history followed by channel close.
type EventBus struct {
	mu          sync.Mutex
	subscribers map[*Subscription]struct{}
	history     []campaign.Event
	closed      bool
}

// NewEventBus creates an empty bus for one campaign run.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[*Subscription]struct{})}
}

// Subscription is one consumer's view of the bus. Receive from
// Events until it closes, then check Overflowed to distinguish a
// normal end of stream from a forced disconnect.
type Subscription struct {
	bus        *EventBus
	events     chan campaign.Event
	overflowed bool
}

// Events is the subscriber's receive channel. Closed when the run
// reaches a terminal state, the subscription is cancelled, or the
// subscriber overflows.
func (s *Subscription) Events() <-chan campaign.Event {
	return s.events
}

// Overflowed reports whether the subscription was disconnected for
// falling behind. Meaningful once Events is closed.
func (s *Subscription) Overflowed() bool {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.overflowed
}

// Subscribe attaches a new consumer. The recorded event history is
// queued on the returned subscription before any live event, so a
// mid-run subscriber sees the run from the start. On a closed bus the
// subscription arrives with the history queued and the channel already
// closed.
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &Subscription{bus: b, events: make(chan campaign.Event, eventBufferSize)}
	for _, event := range b.history {
		select {
		case sub.events <- event:
		default:
			sub.overflowed = true
		}
		if sub.overflowed {
			break
		}
	}

	if sub.overflowed || b.closed {
		close(sub.events)
		return sub
	}
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe detaches a consumer and closes its channel. Safe to
// call on an already-detached subscription.
func (b *EventBus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub.events)
	}
}

// Publish records an event and delivers it to every subscriber
// without blocking. A subscriber with a full buffer is disconnected:
// its channel closes after the events already buffered, and its
// Overflowed flag is set. Events published after Close are dropped.
func (b *EventBus) Publish(event campaign.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.history = append(b.history, event)
	for sub := range b.subscribers {
		select {
		case sub.events <- event:
		default:
			sub.overflowed = true
			delete(b.subscribers, sub)
			close(sub.events)
		}
	}
}

// Close ends the stream for all subscribers. Called by the pipeline
// after publishing the terminal event; buffered events drain to each
// subscriber before their channels report closed.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub.events)
	}
}

// History returns a copy of the events published so far. Used by the
// watch handler to answer snapshot requests without subscribing.
func (b *EventBus) History() []campaign.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	history := make([]campaign.Event, len(b.history))
	copy(history, b.history)
	return history
}
