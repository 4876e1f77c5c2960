/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package live drives a running event: it starts, completes and postpones the
// current program item and keeps the rest of the schedule in step with the
// real clock.
package live

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/friendsincode/showrunner/internal/cache"
	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/rs/zerolog"
)

var (
	// ErrAllClear indicates every program item of the event is completed.
	ErrAllClear = errors.New("all programs completed")

	// ErrInvalidTransition indicates the current item cannot take the requested status.
	ErrInvalidTransition = errors.New("invalid program status transition")
)

// Recalculation triggers reported by the controller.
const (
	TriggerComplete = "complete"
	TriggerPostpone = "postpone"
)

// Clock returns the current time.
type Clock func() time.Time

// Committer persists a recomputed schedule. CommitTransition writes a status
// change and the schedule it produces as one unit.
type Committer interface {
	Commit(ctx context.Context, ev *models.Event, items []models.ProgramItem, trigger string) error
	CommitTransition(ctx context.Context, ev *models.Event, items []models.ProgramItem, trigger, id string, patch store.ItemPatch) error
}

// snapshotCache is the part of the Redis cache the controller uses.
// *cache.Cache satisfies it, including as a nil pointer.
type snapshotCache interface {
	GetSnapshot(ctx context.Context, eventID string, dest any) bool
	SetSnapshot(ctx context.Context, eventID string, snapshot any) error
	InvalidateEvent(ctx context.Context, eventID string) error
}

// Controller implements the live progression state machine.
type Controller struct {
	gw     store.Gateway
	sched  Committer
	bus    events.Broker
	cache  snapshotCache
	clock  Clock
	logger zerolog.Logger
}

// NewController creates a live controller. A nil clock uses time.Now; a nil
// cache disables snapshot caching.
func NewController(gw store.Gateway, sched Committer, bus events.Broker, c *cache.Cache, clock Clock, logger zerolog.Logger) *Controller {
	if clock == nil {
		clock = time.Now
	}
	return &Controller{
		gw:     gw,
		sched:  sched,
		bus:    bus,
		cache:  c,
		clock:  clock,
		logger: logger.With().Str("component", "live").Logger(),
	}
}

// Now returns the controller's notion of the current time.
func (c *Controller) Now() time.Time {
	return c.clock().UTC()
}

func (c *Controller) load(ctx context.Context, eventID string) (*models.Event, []models.ProgramItem, error) {
	ev, err := c.gw.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	items, err := c.gw.FetchItems(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	return ev, schedule.SortByOrder(items), nil
}

// Current returns the item presented to the operator.
func (c *Controller) Current(ctx context.Context, eventID string) (*models.ProgramItem, error) {
	_, items, err := c.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	idx := CurrentIndex(items)
	if idx < 0 {
		return nil, ErrAllClear
	}
	return &items[idx], nil
}

// Start puts the current item on stage. Timing is left untouched.
func (c *Controller) Start(ctx context.Context, eventID string) (*models.ProgramItem, error) {
	_, items, err := c.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	idx := CurrentIndex(items)
	if idx < 0 {
		return nil, ErrAllClear
	}
	item := items[idx]
	if !CanTransition(item.Status, models.ProgramLive) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, item.ID, item.Status)
	}

	status := models.ProgramLive
	if err := c.gw.PersistItem(ctx, item.ID, store.ItemPatch{Status: &status}); err != nil {
		return nil, err
	}
	item.Status = status
	if err := c.cache.InvalidateEvent(ctx, eventID); err != nil {
		c.logger.Debug().Err(err).Str("event_id", eventID).Msg("failed to invalidate snapshot cache")
	}
	telemetry.ProgramTransitionsTotal.WithLabelValues(string(status)).Inc()

	c.logger.Info().Str("event_id", eventID).Str("program_id", item.ID).Str("name", item.Name).Msg("program started")
	c.bus.Publish(events.EventProgramStarted, events.Payload{
		"event_id":   eventID,
		"program_id": item.ID,
		"name":       item.Name,
	})
	return &item, nil
}

// Complete marks the current item completed and pulls every remaining item
// up to start from now.
func (c *Controller) Complete(ctx context.Context, eventID string) (*Snapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "live.complete", map[string]any{"event_id": eventID})
	defer span.End()

	ev, items, err := c.load(ctx, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	idx := CurrentIndex(items)
	if idx < 0 {
		return nil, ErrAllClear
	}
	item := items[idx]
	if !CanTransition(item.Status, models.ProgramCompleted) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, item.ID, item.Status)
	}

	status := models.ProgramCompleted
	snap, err := c.transition(ctx, ev, items, idx, store.ItemPatch{Status: &status}, TriggerComplete)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.ProgramTransitionsTotal.WithLabelValues(string(status)).Inc()
	c.bus.Publish(events.EventProgramCompleted, events.Payload{
		"event_id":   eventID,
		"program_id": item.ID,
		"name":       item.Name,
	})
	c.logger.Info().Str("event_id", eventID).Str("program_id", item.ID).Int("remaining", snap.Remaining).Msg("program completed")
	return snap, nil
}

// Postpone sends the current item to the end of the running order, one day
// later than its pin, and retimes the rest of the program from now.
func (c *Controller) Postpone(ctx context.Context, eventID string) (*Snapshot, error) {
	ctx, span := telemetry.StartSpan(ctx, "live.postpone", map[string]any{"event_id": eventID})
	defer span.End()

	ev, items, err := c.load(ctx, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	idx := CurrentIndex(items)
	if idx < 0 {
		return nil, ErrAllClear
	}
	item := items[idx]
	if item.Status != models.ProgramPostponed && !CanTransition(item.Status, models.ProgramPostponed) {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, item.ID, item.Status)
	}

	last := items[len(items)-1].OrderIndex
	status := models.ProgramPending
	order := last + 1
	day := ev.Window().ClampDay(item.Day + 1)
	patch := store.ItemPatch{Status: &status, OrderIndex: &order, Day: &day}
	snap, err := c.transition(ctx, ev, items, idx, patch, TriggerPostpone)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.ProgramTransitionsTotal.WithLabelValues(string(models.ProgramPostponed)).Inc()
	c.bus.Publish(events.EventProgramPostponed, events.Payload{
		"event_id":   eventID,
		"program_id": item.ID,
		"name":       item.Name,
		"day":        day,
	})
	c.logger.Info().Str("event_id", eventID).Str("program_id", item.ID).Int("day", day).Msg("program postponed")
	return snap, nil
}

// transition retimes the program as if patch were applied to items[idx] and
// persists the patch and the new schedule together. items is left modified.
func (c *Controller) transition(ctx context.Context, ev *models.Event, items []models.ProgramItem, idx int, patch store.ItemPatch, trigger string) (*Snapshot, error) {
	patch.Apply(&items[idx])
	now := c.Now()
	planned, err := Repair(items, ev.Window(), now)
	if err != nil {
		return nil, fmt.Errorf("repair schedule: %w", err)
	}
	if err := c.sched.CommitTransition(ctx, ev, planned, trigger, items[idx].ID, patch); err != nil {
		return nil, err
	}
	snap := BuildSnapshot(ev, planned, now)
	return &snap, nil
}

// Snapshot computes the live view of an event.
func (c *Controller) Snapshot(ctx context.Context, eventID string) (*Snapshot, error) {
	ev, items, err := c.load(ctx, eventID)
	if err != nil {
		return nil, err
	}
	snap := BuildSnapshot(ev, items, c.Now())
	return &snap, nil
}

// CachedSnapshot serves the snapshot the monitor last cached, computing and
// caching a fresh one on a miss.
func (c *Controller) CachedSnapshot(ctx context.Context, eventID string) (*Snapshot, error) {
	var cached Snapshot
	if c.cache.GetSnapshot(ctx, eventID, &cached) {
		return &cached, nil
	}
	snap, err := c.Snapshot(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetSnapshot(ctx, eventID, snap); err != nil {
		c.logger.Debug().Err(err).Str("event_id", eventID).Msg("cache snapshot failed")
	}
	return snap, nil
}

// Delay returns how many minutes the live item runs over.
func (c *Controller) Delay(ctx context.Context, eventID string) (int, error) {
	current, err := c.Current(ctx, eventID)
	if errors.Is(err, ErrAllClear) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return DelayMinutes(current, c.Now()), nil
}
