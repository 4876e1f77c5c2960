/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package live

import (
	"context"
	"sync"
	"time"

	"github.com/friendsincode/showrunner/internal/cache"
	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/rs/zerolog"
)

// EventLister lists the events the monitor watches.
type EventLister interface {
	ListEvents(ctx context.Context) ([]models.Event, error)
}

// Monitor refreshes delay information for running events on a fixed tick.
// It never writes program state.
type Monitor struct {
	ctrl   *Controller
	events EventLister
	bus    events.Broker
	cache  *cache.Cache
	tick   time.Duration
	logger zerolog.Logger

	mu     sync.Mutex
	delays map[string]int
}

// NewMonitor creates a monitor ticking every interval.
func NewMonitor(ctrl *Controller, lister EventLister, bus events.Broker, c *cache.Cache, interval time.Duration, logger zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		ctrl:   ctrl,
		events: lister,
		bus:    bus,
		cache:  c,
		tick:   interval,
		logger: logger.With().Str("component", "live_monitor").Logger(),
		delays: make(map[string]int),
	}
}

// Run executes the monitor loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.tick).Msg("live monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info().Msg("live monitor stopped")
			return ctx.Err()
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick refreshes every event once.
func (m *Monitor) Tick(ctx context.Context) {
	list, err := m.events.ListEvents(ctx)
	if err != nil {
		m.logger.Error().Err(err).Msg("live monitor failed to load events")
		return
	}
	for i := range list {
		if err := m.refresh(ctx, list[i].ID); err != nil {
			m.logger.Warn().Err(err).Str("event_id", list[i].ID).Msg("live refresh failed")
		}
	}
}

func (m *Monitor) refresh(ctx context.Context, eventID string) error {
	snap, err := m.ctrl.Snapshot(ctx, eventID)
	if err != nil {
		return err
	}

	m.mu.Lock()
	prev, tracked := m.delays[eventID]
	if !snap.Live() {
		delete(m.delays, eventID)
		m.mu.Unlock()
		if tracked {
			telemetry.LiveDelayMinutes.DeleteLabelValues(eventID)
		}
		return nil
	}
	m.delays[eventID] = snap.DelayMinutes
	m.mu.Unlock()

	telemetry.LiveDelayMinutes.WithLabelValues(eventID).Set(float64(snap.DelayMinutes))
	if err := m.cache.SetSnapshot(ctx, eventID, snap); err != nil {
		m.logger.Debug().Err(err).Str("event_id", eventID).Msg("cache snapshot failed")
	}

	if tracked && prev == snap.DelayMinutes {
		return nil
	}
	if snap.DelayMinutes > 0 {
		m.logger.Info().Str("event_id", eventID).Str("program_id", snap.Current.ID).Int("delay_minutes", snap.DelayMinutes).Msg("live program running late")
	}
	m.bus.Publish(events.EventLiveDelay, events.Payload{
		"event_id":      eventID,
		"program_id":    snap.Current.ID,
		"name":          snap.Current.Name,
		"delay_minutes": snap.DelayMinutes,
	})
	return nil
}

// Delay returns the last delay observed for an event.
func (m *Monitor) Delay(eventID string) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.delays[eventID]
	return d, ok
}
