/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/store"
)

type staticSource struct {
	snap *live.Snapshot
}

func (s staticSource) Snapshot(context.Context, string) (*live.Snapshot, error) {
	return s.snap, nil
}

type delivery struct {
	header http.Header
	body   []byte
}

func newTestService(t *testing.T, bus events.Broker) (*Service, *gorm.DB, string) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&models.Event{}, &models.ProgramItem{}, &models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	start := time.Date(2026, 3, 6, 10, 0, 0, 0, time.UTC)
	ev := &models.Event{
		ID:        uuid.NewString(),
		Title:     "Spring Fest",
		StartTime: start,
		EndTime:   start.Add(8 * time.Hour),
		MaxDays:   3,
	}
	if err := db.Create(ev).Error; err != nil {
		t.Fatalf("create event: %v", err)
	}

	current := &models.ProgramItem{
		ID:                 "p1",
		Name:               "Opening",
		Participants:       []string{"Ann"},
		DurationMinutes:    10,
		Day:                1,
		ScheduledStartTime: start,
		Status:             models.ProgramLive,
	}
	snap := &live.Snapshot{
		Current:      current,
		UpNext:       []models.ProgramItem{{ID: "p2", Name: "Choir", Participants: []string{"Choir"}, DurationMinutes: 10, Day: 1, ScheduledStartTime: start.Add(10 * time.Minute)}},
		DelayMinutes: 4,
	}
	return NewService(db, bus, staticSource{snap: snap}, zerolog.Nop()), db, ev.ID
}

func recorder(t *testing.T, status int) (*httptest.Server, <-chan delivery) {
	t.Helper()
	got := make(chan delivery, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- delivery{header: r.Header.Clone(), body: body}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func waitDelivery(t *testing.T, ch <-chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
	}
	return delivery{}
}

func TestCreateTargetValidates(t *testing.T) {
	svc, _, eventID := newTestService(t, events.NewBus())
	ctx := context.Background()

	for _, raw := range []string{"", "ftp://example.com/hook", "/relative", "http://"} {
		if _, err := svc.CreateTarget(ctx, eventID, raw, nil); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("CreateTarget(%q) error = %v, want %v", raw, err, ErrInvalidURL)
		}
	}
	if _, err := svc.CreateTarget(ctx, eventID, "https://example.com/hook", []string{"program.created"}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("CreateTarget() error = %v, want %v", err, ErrUnknownEvent)
	}
	if _, err := svc.CreateTarget(ctx, uuid.NewString(), "https://example.com/hook", nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("CreateTarget() for missing event error = %v, want %v", err, store.ErrNotFound)
	}

	target, err := svc.CreateTarget(ctx, eventID, "https://example.com/hook", []string{"program.started", "live.delay"})
	if err != nil {
		t.Fatalf("CreateTarget() error = %v", err)
	}
	if target.Secret == "" || !target.Active || target.Events != "program.started,live.delay" {
		t.Fatalf("target = %+v", target)
	}

	list, err := svc.ListTargets(ctx, eventID)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListTargets() = %v, %v", list, err)
	}
	if err := svc.DeleteTarget(ctx, target.ID); err != nil {
		t.Fatalf("DeleteTarget() error = %v", err)
	}
	if err := svc.DeleteTarget(ctx, target.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second DeleteTarget() error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestTestDeliverySigned(t *testing.T) {
	svc, _, eventID := newTestService(t, events.NewBus())
	ctx := context.Background()
	srv, got := recorder(t, http.StatusNoContent)

	target, err := svc.CreateTarget(ctx, eventID, srv.URL, nil)
	if err != nil {
		t.Fatalf("CreateTarget() error = %v", err)
	}
	if err := svc.Test(ctx, target.ID); err != nil {
		t.Fatalf("Test() error = %v", err)
	}

	d := waitDelivery(t, got)
	if d.header.Get(HeaderEvent) != EventTest {
		t.Fatalf("%s = %q, want %q", HeaderEvent, d.header.Get(HeaderEvent), EventTest)
	}
	if sig := d.header.Get(HeaderSignature); sig != Sign(d.body, target.Secret) {
		t.Fatalf("signature = %q, want %q", sig, Sign(d.body, target.Secret))
	}

	logs, err := svc.Deliveries(ctx, target.ID, 0)
	if err != nil {
		t.Fatalf("Deliveries() error = %v", err)
	}
	if len(logs) != 1 || logs[0].StatusCode != http.StatusNoContent || logs[0].Error != "" {
		t.Fatalf("logs = %+v", logs)
	}

	if err := svc.Test(ctx, uuid.NewString()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Test() for missing target error = %v, want %v", err, store.ErrNotFound)
	}
}

func TestTestDeliveryRecordsFailure(t *testing.T) {
	svc, _, eventID := newTestService(t, events.NewBus())
	ctx := context.Background()
	srv, got := recorder(t, http.StatusInternalServerError)

	target, err := svc.CreateTarget(ctx, eventID, srv.URL, nil)
	if err != nil {
		t.Fatalf("CreateTarget() error = %v", err)
	}
	if err := svc.Test(ctx, target.ID); err == nil {
		t.Fatal("Test() succeeded against a failing endpoint")
	}
	waitDelivery(t, got)

	logs, err := svc.Deliveries(ctx, target.ID, 10)
	if err != nil {
		t.Fatalf("Deliveries() error = %v", err)
	}
	if len(logs) != 1 || logs[0].StatusCode != http.StatusInternalServerError || logs[0].Error == "" {
		t.Fatalf("logs = %+v", logs)
	}
}

func TestStartForwardsLiveEvents(t *testing.T) {
	bus := events.NewBus()
	svc, _, eventID := newTestService(t, bus)
	srv, got := recorder(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := svc.CreateTarget(ctx, eventID, srv.URL, []string{"program.started"}); err != nil {
		t.Fatalf("CreateTarget() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !bus.HasSubscribers(events.EventProgramStarted) || !bus.HasSubscribers(events.EventLiveDelay) {
		if time.Now().After(deadline) {
			t.Fatal("webhook service never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Filtered out by the target's event list.
	bus.Publish(events.EventLiveDelay, events.Payload{"event_id": eventID, "delay_minutes": 4})
	bus.Publish(events.EventProgramStarted, events.Payload{"event_id": eventID, "program_id": "p1"})

	d := waitDelivery(t, got)
	var payload Payload
	if err := json.Unmarshal(d.body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Event != "program.started" || payload.EventID != eventID || payload.ProgramID != "p1" {
		t.Fatalf("payload = %+v", payload)
	}
	if payload.Current == nil || payload.Current.Name != "Opening" || payload.Next == nil || payload.Next.Name != "Choir" {
		t.Fatalf("payload programs = %+v / %+v", payload.Current, payload.Next)
	}
	if payload.DelayMinutes != 4 || payload.Label != "LATE +4 min" {
		t.Fatalf("payload delay = %d %q", payload.DelayMinutes, payload.Label)
	}
	if !payload.Current.EndsAt.Equal(payload.Current.StartsAt.Add(10 * time.Minute)) {
		t.Fatalf("current ends_at = %s", payload.Current.EndsAt)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	select {
	case d := <-got:
		t.Fatalf("unexpected extra delivery: %s", d.header.Get(HeaderEvent))
	default:
	}
}

func TestHandlesEvent(t *testing.T) {
	tests := []struct {
		events string
		want   bool
	}{
		{"", true},
		{"program.started", true},
		{"live.delay, program.started", true},
		{"live.delay", false},
	}
	for _, tt := range tests {
		got := handlesEvent(models.WebhookTarget{Events: tt.events}, "program.started")
		if got != tt.want {
			t.Fatalf("handlesEvent(%q) = %v, want %v", tt.events, got, tt.want)
		}
	}
}
