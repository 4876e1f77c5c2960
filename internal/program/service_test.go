/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package program

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/timewindow"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var fixedNow = time.Date(2026, 3, 6, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *events.Bus) {
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
	if err := db.AutoMigrate(&models.Event{}, &models.ProgramItem{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	bus := events.NewBus()
	st := store.New(db, nil, zerolog.Nop())
	svc := NewService(st, NewPlanner(st, bus, zerolog.Nop()), bus, timewindow.MaxDays, zerolog.Nop())
	svc.Now = func() time.Time { return fixedNow }
	return svc, bus
}

func addItems(t *testing.T, svc *Service, eventID string, durations ...int) []*models.ProgramItem {
	t.Helper()
	out := make([]*models.ProgramItem, 0, len(durations))
	for i, d := range durations {
		item, err := svc.AddItem(context.Background(), eventID, ItemInput{
			Name:            "Act " + string(rune('A'+i)),
			Participants:    []string{"Ann"},
			DurationMinutes: d,
		})
		if err != nil {
			t.Fatalf("add item %d: %v", i, err)
		}
		out = append(out, item)
	}
	return out
}

func TestCreateEventDefaults(t *testing.T) {
	svc, bus := newTestService(t)
	created := bus.Subscribe(events.EventEventCreated)

	ev, err := svc.CreateEvent(context.Background(), EventInput{Title: "  Spring Fest ", OwnerID: "org-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ev.Title != "Spring Fest" {
		t.Fatalf("title = %q", ev.Title)
	}
	if !ev.StartTime.Equal(fixedNow) || !ev.EndTime.Equal(fixedNow.Add(8*time.Hour)) {
		t.Fatalf("window = %v - %v", ev.StartTime, ev.EndTime)
	}
	if ev.BreakDurationMinutes != 30 || ev.BreakStartTime != nil {
		t.Fatalf("break = %v/%d", ev.BreakStartTime, ev.BreakDurationMinutes)
	}
	if ev.MaxAdmins != 5 || ev.MaxDays != 3 {
		t.Fatalf("max admins/days = %d/%d", ev.MaxAdmins, ev.MaxDays)
	}
	if len(created) != 1 {
		t.Fatal("expected event.created notification")
	}
}

func TestCreateEventValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateEvent(ctx, EventInput{Title: " "}); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("err = %v, want %v", err, ErrEmptyTitle)
	}
	_, err := svc.CreateEvent(ctx, EventInput{Title: "x", StartTime: fixedNow, EndTime: fixedNow.Add(-time.Hour)})
	if !errors.Is(err, timewindow.ErrInvalidWindow) {
		t.Fatalf("err = %v, want %v", err, timewindow.ErrInvalidWindow)
	}
	neg := -1
	_, err = svc.CreateEvent(ctx, EventInput{Title: "x", BreakDurationMinutes: &neg})
	if !errors.Is(err, timewindow.ErrNegativeBreak) {
		t.Fatalf("err = %v, want %v", err, timewindow.ErrNegativeBreak)
	}
}

func TestAddItemDefaultsAndSchedules(t *testing.T) {
	svc, bus := newTestService(t)
	ctx := context.Background()
	recalculated := bus.Subscribe(events.EventScheduleRecalculated)

	ev, err := svc.CreateEvent(ctx, EventInput{Title: "Fest"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := svc.AddItem(ctx, ev.ID, ItemInput{Name: "Opening", Participants: []string{" Ann ", ""}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if first.DurationMinutes != 5 || first.Day != 1 || first.OrderIndex != 0 || first.Status != models.ProgramPending {
		t.Fatalf("first = %+v", first)
	}
	if len(first.Participants) != 1 || first.Participants[0] != "Ann" {
		t.Fatalf("participants = %v", first.Participants)
	}
	if !first.ScheduledStartTime.Equal(fixedNow) {
		t.Fatalf("start = %v, want %v", first.ScheduledStartTime, fixedNow)
	}

	second, err := svc.AddItem(ctx, ev.ID, ItemInput{Name: "Choir", Participants: []string{"Bo"}, DurationMinutes: 10})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if second.OrderIndex != 1 || !second.ScheduledStartTime.Equal(fixedNow.Add(5*time.Minute)) {
		t.Fatalf("second = %+v", second)
	}
	if len(recalculated) != 2 {
		t.Fatalf("recalculated notifications = %d, want 2", len(recalculated))
	}

	tests := []struct {
		in   ItemInput
		want error
	}{
		{ItemInput{Participants: []string{"Ann"}}, schedule.ErrEmptyName},
		{ItemInput{Name: "Solo"}, schedule.ErrNoParticipants},
		{ItemInput{Name: "Solo", Participants: []string{"Ann"}, DurationMinutes: -5}, schedule.ErrInvalidDuration},
	}
	for _, tt := range tests {
		if _, err := svc.AddItem(ctx, ev.ID, tt.in); !errors.Is(err, tt.want) {
			t.Fatalf("AddItem(%+v) err = %v, want %v", tt.in, err, tt.want)
		}
	}

	if _, err := svc.AddItem(ctx, "missing", ItemInput{Name: "x", Participants: []string{"a"}}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestUpdateConfigRecalculates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ev, _ := svc.CreateEvent(ctx, EventInput{Title: "Fest"})
	addItems(t, svc, ev.ID, 60, 60, 60, 60)

	brk := fixedNow.Add(2 * time.Hour)
	minutes := 30
	updated, err := svc.UpdateConfig(ctx, ev.ID, store.ConfigPatch{BreakStartTime: &brk, BreakDurationMinutes: &minutes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ScheduleRevision <= ev.ScheduleRevision {
		t.Fatalf("revision = %d, want > %d", updated.ScheduleRevision, ev.ScheduleRevision)
	}

	items, err := svc.Items(ctx, ev.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if want := fixedNow.Add(2*time.Hour + 30*time.Minute); !items[2].ScheduledStartTime.Equal(want) {
		t.Fatalf("third start = %v, want %v", items[2].ScheduledStartTime, want)
	}

	end := fixedNow.Add(-time.Hour)
	if _, err := svc.UpdateConfig(ctx, ev.ID, store.ConfigPatch{EndTime: &end}); !errors.Is(err, timewindow.ErrInvalidWindow) {
		t.Fatalf("err = %v, want %v", err, timewindow.ErrInvalidWindow)
	}
}

func TestDeleteItemClosesGap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ev, _ := svc.CreateEvent(ctx, EventInput{Title: "Fest"})
	added := addItems(t, svc, ev.ID, 10, 10, 10)

	if err := svc.DeleteItem(ctx, added[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	items, _ := svc.Items(ctx, ev.ID)
	if len(items) != 2 {
		t.Fatalf("len = %d, want 2", len(items))
	}
	for i, item := range items {
		if item.OrderIndex != i {
			t.Fatalf("%s order = %d, want %d", item.ID, item.OrderIndex, i)
		}
	}
	if !items[1].ScheduledStartTime.Equal(fixedNow.Add(10 * time.Minute)) {
		t.Fatalf("pulled up start = %v", items[1].ScheduledStartTime)
	}
}

func TestReorderAndMove(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ev, _ := svc.CreateEvent(ctx, EventInput{Title: "Fest"})
	added := addItems(t, svc, ev.ID, 5, 10, 15)

	got, err := svc.Reorder(ctx, ev.ID, []string{added[2].ID, added[0].ID, added[1].ID})
	if err != nil {
		t.Fatalf("reorder: %v", err)
	}
	if got[0].ID != added[2].ID || !got[1].ScheduledStartTime.Equal(fixedNow.Add(15*time.Minute)) {
		t.Fatalf("reordered = %+v", got)
	}

	got, err = svc.Move(ctx, ev.ID, 0, 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if got[2].ID != added[2].ID || got[0].ID != added[0].ID {
		t.Fatalf("moved order = %s,%s,%s", got[0].ID, got[1].ID, got[2].ID)
	}

	stored, _ := svc.Items(ctx, ev.ID)
	for i := range stored {
		if stored[i].ID != got[i].ID || !stored[i].ScheduledStartTime.Equal(got[i].ScheduledStartTime) {
			t.Fatalf("stored %d = %+v, want %+v", i, stored[i], got[i])
		}
	}

	if _, err := svc.Reorder(ctx, ev.ID, []string{added[0].ID}); !errors.Is(err, schedule.ErrOrderMismatch) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrOrderMismatch)
	}
}

func TestUpdateItem(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ev, _ := svc.CreateEvent(ctx, EventInput{Title: "Fest"})
	added := addItems(t, svc, ev.ID, 10, 10)

	duration := 25
	got, err := svc.UpdateItem(ctx, added[0].ID, store.ItemPatch{DurationMinutes: &duration})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.DurationMinutes != 25 {
		t.Fatalf("duration = %d", got.DurationMinutes)
	}
	items, _ := svc.Items(ctx, ev.ID)
	if !items[1].ScheduledStartTime.Equal(fixedNow.Add(25 * time.Minute)) {
		t.Fatalf("second start = %v", items[1].ScheduledStartTime)
	}

	remarks := "needs mic"
	got, err = svc.UpdateItem(ctx, added[1].ID, store.ItemPatch{Remarks: &remarks})
	if err != nil {
		t.Fatalf("update remarks: %v", err)
	}
	if got.Remarks != "needs mic" {
		t.Fatalf("remarks = %q", got.Remarks)
	}

	status := models.ProgramCompleted
	if _, err := svc.UpdateItem(ctx, added[1].ID, store.ItemPatch{Status: &status}); !errors.Is(err, ErrStatusReadOnly) {
		t.Fatalf("err = %v, want %v", err, ErrStatusReadOnly)
	}
	bogus := models.ProgramStatus("Paused")
	if _, err := svc.UpdateItem(ctx, added[1].ID, store.ItemPatch{Status: &bogus}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want %v", err, ErrInvalidStatus)
	}
	empty := ""
	if _, err := svc.UpdateItem(ctx, added[1].ID, store.ItemPatch{Name: &empty}); !errors.Is(err, schedule.ErrEmptyName) {
		t.Fatalf("err = %v, want %v", err, schedule.ErrEmptyName)
	}
}
