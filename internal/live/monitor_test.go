/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package live

import (
	"context"
	"testing"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestMonitorPublishesDelayChanges(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	m := NewMonitor(f.ctrl, f.store, f.bus, nil, time.Second, zerolog.Nop())
	delays := f.bus.Subscribe(events.EventLiveDelay)

	// Nothing is live yet.
	m.Tick(ctx)
	if len(delays) != 0 {
		t.Fatalf("notifications before start = %d", len(delays))
	}
	if _, ok := m.Delay(f.event.ID); ok {
		t.Fatal("event tracked before start")
	}

	if _, err := f.ctrl.Start(ctx, f.event.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.now = at(10, 13)
	m.Tick(ctx)
	if len(delays) != 1 {
		t.Fatalf("notifications = %d, want 1", len(delays))
	}
	p := <-delays
	if p.Int("delay_minutes") != 3 || p.String("program_id") != f.items[0].ID {
		t.Fatalf("payload = %v", p)
	}
	if got := testutil.ToFloat64(telemetry.LiveDelayMinutes.WithLabelValues(f.event.ID)); got != 3 {
		t.Fatalf("gauge = %v, want 3", got)
	}

	// Unchanged delay stays quiet.
	m.Tick(ctx)
	if len(delays) != 0 {
		t.Fatalf("notifications for unchanged delay = %d", len(delays))
	}

	f.now = at(10, 15)
	m.Tick(ctx)
	if len(delays) != 1 {
		t.Fatalf("notifications = %d, want 1", len(delays))
	}
	if d, ok := m.Delay(f.event.ID); !ok || d != 5 {
		t.Fatalf("Delay = %d, %v", d, ok)
	}

	if _, err := f.ctrl.Complete(ctx, f.event.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}
	m.Tick(ctx)
	if _, ok := m.Delay(f.event.ID); ok {
		t.Fatal("event still tracked after live item completed")
	}
}

func TestMonitorRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, 1)
	m := NewMonitor(f.ctrl, f.store, f.bus, nil, 10*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want %v", err, context.Canceled)
		}
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
