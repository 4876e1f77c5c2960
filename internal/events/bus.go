/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	// Organizer changes
	EventEventCreated   EventType = "event.created"
	EventConfigUpdated  EventType = "event.config_updated"
	EventProgramCreated EventType = "program.created"
	EventProgramUpdated EventType = "program.updated"
	EventProgramDeleted EventType = "program.deleted"

	// Live progression
	EventProgramStarted   EventType = "program.started"
	EventProgramCompleted EventType = "program.completed"
	EventProgramPostponed EventType = "program.postponed"
	EventLiveDelay        EventType = "live.delay"

	// Schedule
	EventScheduleRecalculated EventType = "schedule.recalculated"
	EventScheduleConflict     EventType = "schedule.conflict"
)

// Payload generic event payload.
type Payload map[string]any

// String returns the string value stored under key.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the integer value stored under key. Payloads that crossed a
// JSON boundary carry numbers as float64.
func (p Payload) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Subscriber receives event payloads.
type Subscriber chan Payload

// Broker is implemented by the in-process bus and the distributed buses.
type Broker interface {
	Publish(eventType EventType, payload Payload)
	Subscribe(eventType EventType) Subscriber
	Unsubscribe(eventType EventType, sub Subscriber)
}

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes and closes the subscriber.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// HasSubscribers reports whether anyone listens for eventType.
func (b *Bus) HasSubscribers(eventType EventType) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[eventType]) > 0
}
