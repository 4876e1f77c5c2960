/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package program

import (
	"context"
	"fmt"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/rs/zerolog"
)

// Recalculation triggers.
const (
	TriggerConfig  = "config"
	TriggerReorder = "reorder"
	TriggerCreate  = "create"
	TriggerUpdate  = "update"
	TriggerDelete  = "delete"
	TriggerManual  = "manual"
)

// Planner recomputes schedules and writes them back.
type Planner struct {
	gw     store.Gateway
	bus    events.Broker
	logger zerolog.Logger
}

// NewPlanner creates a planner.
func NewPlanner(gw store.Gateway, bus events.Broker, logger zerolog.Logger) *Planner {
	return &Planner{
		gw:     gw,
		bus:    bus,
		logger: logger.With().Str("component", "planner").Logger(),
	}
}

// Recalculate runs a full pass over every non-deleted item of the event and
// persists the result.
func (p *Planner) Recalculate(ctx context.Context, eventID, trigger string) ([]models.ProgramItem, error) {
	ctx, span := telemetry.StartSpan(ctx, "schedule.recalculate", map[string]any{
		"event_id": eventID,
		"trigger":  trigger,
	})
	defer span.End()

	ev, err := p.gw.FetchConfig(ctx, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	items, err := p.gw.FetchItems(ctx, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	planned, err := schedule.Calculate(items, ev.Window())
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("calculate schedule: %w", err)
	}

	if err := p.Commit(ctx, ev, planned, trigger); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return planned, nil
}

// Commit persists a computed schedule for ev and announces it.
func (p *Planner) Commit(ctx context.Context, ev *models.Event, items []models.ProgramItem, trigger string) error {
	return p.commit(ev, items, trigger, func() (store.ScheduleResult, error) {
		return p.gw.PersistSchedule(ctx, ev.ID, ev.ScheduleRevision, items)
	})
}

// CommitTransition persists patch on the item id together with the schedule
// computed for it. Nothing is announced unless both land.
func (p *Planner) CommitTransition(ctx context.Context, ev *models.Event, items []models.ProgramItem, trigger, id string, patch store.ItemPatch) error {
	return p.commit(ev, items, trigger, func() (store.ScheduleResult, error) {
		return p.gw.PersistTransition(ctx, ev.ID, ev.ScheduleRevision, id, patch, items)
	})
}

func (p *Planner) commit(ev *models.Event, items []models.ProgramItem, trigger string, persist func() (store.ScheduleResult, error)) error {
	started := time.Now()
	defer func() {
		telemetry.ScheduleRecalculationDuration.Observe(time.Since(started).Seconds())
	}()

	res, err := persist()
	if err != nil {
		return err
	}
	telemetry.ScheduleRecalculationsTotal.WithLabelValues(trigger).Inc()

	p.logger.Debug().
		Str("event_id", ev.ID).
		Str("trigger", trigger).
		Int("items", len(items)).
		Int64("revision", res.Revision).
		Msg("schedule recalculated")

	p.bus.Publish(events.EventScheduleRecalculated, events.Payload{
		"event_id": ev.ID,
		"trigger":  trigger,
		"items":    len(items),
		"revision": res.Revision,
	})
	if res.Conflict {
		p.bus.Publish(events.EventScheduleConflict, events.Payload{
			"event_id":      ev.ID,
			"trigger":       trigger,
			"base_revision": ev.ScheduleRevision,
			"revision":      res.Revision,
		})
	}
	return nil
}
