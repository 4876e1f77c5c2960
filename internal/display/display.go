/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package display pushes "now on stage" boards to stage displays whenever
// the live state of an event changes.
package display

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/rs/zerolog"
)

// Sink delivers a message to a topic.
type Sink interface {
	Publish(topic string, payload []byte) error
}

// SnapshotSource computes the live view of an event.
type SnapshotSource interface {
	Snapshot(ctx context.Context, eventID string) (*live.Snapshot, error)
}

// Act is one entry on a board.
type Act struct {
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	StartsAt     time.Time `json:"starts_at"`
	Day          int       `json:"day"`
}

// Board is the message a stage display renders.
type Board struct {
	EventID      string    `json:"event_id"`
	Title        string    `json:"title"`
	NowOnStage   *Act      `json:"now_on_stage,omitempty"`
	OnStage      bool      `json:"on_stage"`
	UpNext       []Act     `json:"up_next"`
	DelayMinutes int       `json:"delay_minutes"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewBoard converts a live snapshot into a display board.
func NewBoard(snap *live.Snapshot) Board {
	b := Board{
		EventID:      snap.EventID,
		Title:        snap.Title,
		OnStage:      snap.Live(),
		UpNext:       make([]Act, 0, len(snap.UpNext)),
		DelayMinutes: snap.DelayMinutes,
		Status:       snap.Label(),
		UpdatedAt:    snap.Now,
	}
	if snap.Current != nil {
		b.NowOnStage = &Act{
			Name:         snap.Current.Name,
			Participants: snap.Current.Participants,
			StartsAt:     snap.Current.ScheduledStartTime,
			Day:          snap.Current.Day,
		}
	}
	for _, item := range snap.UpNext {
		b.UpNext = append(b.UpNext, Act{
			Name:         item.Name,
			Participants: item.Participants,
			StartsAt:     item.ScheduledStartTime,
			Day:          item.Day,
		})
	}
	return b
}

// Publisher keeps stage displays in step with the live controller.
type Publisher struct {
	sink   Sink
	source SnapshotSource
	bus    events.Broker
	prefix string
	logger zerolog.Logger
}

// NewPublisher creates a display publisher writing under topic prefix.
func NewPublisher(sink Sink, source SnapshotSource, bus events.Broker, prefix string, logger zerolog.Logger) *Publisher {
	return &Publisher{
		sink:   sink,
		source: source,
		bus:    bus,
		prefix: strings.TrimSuffix(prefix, "/"),
		logger: logger.With().Str("component", "display").Logger(),
	}
}

// Topic returns the board topic of an event.
func (p *Publisher) Topic(eventID string) string {
	return fmt.Sprintf("%s/%s/board", p.prefix, eventID)
}

var watched = []events.EventType{
	events.EventProgramStarted,
	events.EventProgramCompleted,
	events.EventProgramPostponed,
	events.EventLiveDelay,
	events.EventScheduleRecalculated,
}

// Run publishes a board for every live change until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	subs := make(map[events.EventType]events.Subscriber, len(watched))
	for _, t := range watched {
		subs[t] = p.bus.Subscribe(t)
	}
	defer func() {
		for t, sub := range subs {
			p.bus.Unsubscribe(t, sub)
		}
	}()

	p.logger.Info().Str("prefix", p.prefix).Msg("display publisher started")
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("display publisher stopped")
			return ctx.Err()
		case payload := <-subs[events.EventProgramStarted]:
			p.handle(ctx, payload)
		case payload := <-subs[events.EventProgramCompleted]:
			p.handle(ctx, payload)
		case payload := <-subs[events.EventProgramPostponed]:
			p.handle(ctx, payload)
		case payload := <-subs[events.EventLiveDelay]:
			p.handle(ctx, payload)
		case payload := <-subs[events.EventScheduleRecalculated]:
			p.handle(ctx, payload)
		}
	}
}

func (p *Publisher) handle(ctx context.Context, payload events.Payload) {
	eventID := payload.String("event_id")
	if eventID == "" {
		return
	}
	if err := p.Publish(ctx, eventID); err != nil {
		telemetry.DisplayPublishErrorsTotal.Inc()
		p.logger.Warn().Err(err).Str("event_id", eventID).Msg("display update failed")
	}
}

// Publish sends the current board of an event.
func (p *Publisher) Publish(ctx context.Context, eventID string) error {
	snap, err := p.source.Snapshot(ctx, eventID)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	data, err := json.Marshal(NewBoard(snap))
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	if err := p.sink.Publish(p.Topic(eventID), data); err != nil {
		return err
	}
	p.logger.Debug().Str("event_id", eventID).Str("status", snap.Label()).Msg("display updated")
	return nil
}
