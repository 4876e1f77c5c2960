/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package display

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type message struct {
	topic   string
	payload []byte
}

type fakeSink struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (s *fakeSink) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, message{topic: topic, payload: payload})
	return nil
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

type fakeSource struct {
	snap *live.Snapshot
	err  error
}

func (f *fakeSource) Snapshot(_ context.Context, eventID string) (*live.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := *f.snap
	s.EventID = eventID
	return &s, nil
}

func testSnapshot() *live.Snapshot {
	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	return &live.Snapshot{
		Title: "Spring Fest",
		Now:   start.Add(13 * time.Minute),
		Current: &models.ProgramItem{
			Name:               "Choir",
			Participants:       []string{"Ann", "Bo"},
			DurationMinutes:    10,
			Day:                1,
			ScheduledStartTime: start,
			Status:             models.ProgramLive,
		},
		UpNext: []models.ProgramItem{
			{Name: "Band", Participants: []string{"Cy"}, Day: 1, ScheduledStartTime: start.Add(10 * time.Minute)},
		},
		DelayMinutes: 3,
	}
}

func TestNewBoard(t *testing.T) {
	b := NewBoard(testSnapshot())
	if b.NowOnStage == nil || b.NowOnStage.Name != "Choir" || !b.OnStage {
		t.Fatalf("now on stage = %+v", b.NowOnStage)
	}
	if len(b.UpNext) != 1 || b.UpNext[0].Name != "Band" {
		t.Fatalf("up next = %+v", b.UpNext)
	}
	if b.Status != "LATE +3 min" || b.DelayMinutes != 3 {
		t.Fatalf("status = %q delay = %d", b.Status, b.DelayMinutes)
	}

	idle := NewBoard(&live.Snapshot{AllClear: true})
	if idle.NowOnStage != nil || idle.OnStage || idle.Status != "ALL CLEAR" || idle.UpNext == nil {
		t.Fatalf("all clear board = %+v", idle)
	}
}

func TestPublishWritesBoardTopic(t *testing.T) {
	sink := &fakeSink{}
	p := NewPublisher(sink, &fakeSource{snap: testSnapshot()}, events.NewBus(), "showrunner/", zerolog.Nop())

	if err := p.Publish(context.Background(), "ev-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sink.msgs) != 1 || sink.msgs[0].topic != "showrunner/ev-1/board" {
		t.Fatalf("messages = %+v", sink.msgs)
	}
	var got Board
	if err := json.Unmarshal(sink.msgs[0].payload, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != "ev-1" || got.NowOnStage.Name != "Choir" {
		t.Fatalf("board = %+v", got)
	}
}

func TestRunReactsToBusEvents(t *testing.T) {
	sink := &fakeSink{}
	bus := events.NewBus()
	p := NewPublisher(sink, &fakeSource{snap: testSnapshot()}, bus, "stage", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !bus.HasSubscribers(events.EventScheduleRecalculated) {
		if time.Now().After(deadline) {
			t.Fatal("publisher did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(events.EventProgramStarted, events.Payload{"event_id": "ev-1"})
	bus.Publish(events.EventLiveDelay, events.Payload{"event_id": "ev-1", "delay_minutes": 3})
	bus.Publish(events.EventProgramCompleted, events.Payload{})

	for sink.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("messages = %d, want 2", sink.count())
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	if sink.count() != 2 {
		t.Fatalf("messages = %d, want 2", sink.count())
	}
}

func TestHandleCountsFailures(t *testing.T) {
	before := testutil.ToFloat64(telemetry.DisplayPublishErrorsTotal)
	p := NewPublisher(&fakeSink{err: errors.New("broker down")}, &fakeSource{snap: testSnapshot()}, events.NewBus(), "stage", zerolog.Nop())

	p.handle(context.Background(), events.Payload{"event_id": "ev-1"})
	if got := testutil.ToFloat64(telemetry.DisplayPublishErrorsTotal); got != before+1 {
		t.Fatalf("errors = %v, want %v", got, before+1)
	}

	p = NewPublisher(&fakeSink{}, &fakeSource{err: errors.New("no such event")}, events.NewBus(), "stage", zerolog.Nop())
	if err := p.Publish(context.Background(), "ev-1"); err == nil {
		t.Fatal("expected snapshot error")
	}
}
