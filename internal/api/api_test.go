/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/showrunner/internal/audit"
	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/logbuffer"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/timewindow"
	"github.com/friendsincode/showrunner/internal/webhooks"
)

type testEnv struct {
	router http.Handler
	audit  *audit.Service
	now    time.Time
}

func at(h, m int) time.Time {
	return time.Date(2026, 3, 6, h, m, 0, 0, time.UTC)
}

func newTestEnv(t *testing.T) *testEnv {
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
	if err := db.AutoMigrate(&models.Event{}, &models.ProgramItem{}, &models.AuditLog{}, &models.WebhookTarget{}, &models.WebhookLog{}); err != nil {
		t.Fatalf("migrate schema: %v", err)
	}

	env := &testEnv{now: at(10, 0)}
	bus := events.NewBus()
	st := store.New(db, nil, zerolog.Nop())
	planner := program.NewPlanner(st, bus, zerolog.Nop())
	programs := program.NewService(st, planner, bus, timewindow.MaxDays, zerolog.Nop())
	programs.Now = func() time.Time { return env.now }
	ctrl := live.NewController(st, planner, bus, nil, func() time.Time { return env.now }, zerolog.Nop())
	env.audit = audit.NewService(db, bus, zerolog.Nop())

	a := New(programs, ctrl, env.audit, bus, zerolog.Nop())
	a.SetWebhooks(webhooks.NewService(db, bus, ctrl, zerolog.Nop()))
	r := chi.NewRouter()
	a.Routes(r)
	env.router = r
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return out
}

func (e *testEnv) createEvent(t *testing.T) models.Event {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/api/v1/events", `{"title":"Spring Fest","start_time":"2026-03-06T10:00:00Z","end_time":"2026-03-06T18:00:00Z"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create event status = %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[models.Event](t, rr)
}

func (e *testEnv) addProgram(t *testing.T, eventID, name string, minutes int) models.ProgramItem {
	t.Helper()
	body, _ := json.Marshal(map[string]any{
		"name":             name,
		"participants":     []string{"Ann"},
		"duration_minutes": minutes,
	})
	rr := e.do(t, http.MethodPost, "/api/v1/events/"+eventID+"/programs", string(body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("add program status = %d, body %s", rr.Code, rr.Body.String())
	}
	return decode[models.ProgramItem](t, rr)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestOrganizerFlow(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)
	if ev.BreakDurationMinutes != 30 || ev.MaxDays != 3 {
		t.Fatalf("event defaults = %+v", ev)
	}

	a := env.addProgram(t, ev.ID, "Opening", 10)
	b := env.addProgram(t, ev.ID, "Choir", 20)
	c := env.addProgram(t, ev.ID, "Band", 15)
	if !c.ScheduledStartTime.Equal(at(10, 30)) {
		t.Fatalf("third start = %v", c.ScheduledStartTime)
	}

	rr := env.do(t, http.MethodPut, "/api/v1/events/"+ev.ID+"/programs/order",
		`{"ids":["`+c.ID+`","`+a.ID+`","`+b.ID+`"]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("reorder status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/events/"+ev.ID+"/programs", "")
	items := decode[[]models.ProgramItem](t, rr)
	if len(items) != 3 || items[0].ID != c.ID || !items[1].ScheduledStartTime.Equal(at(10, 15)) {
		t.Fatalf("programs = %+v", items)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/events/"+ev.ID+"/programs/move", `{"from":0,"to":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("move status = %d", rr.Code)
	}
	items = decode[[]models.ProgramItem](t, rr)
	if items[2].ID != c.ID {
		t.Fatalf("moved last = %s, want %s", items[2].ID, c.ID)
	}

	rr = env.do(t, http.MethodPatch, "/api/v1/events/"+ev.ID, `{"start_time":"2026-03-06T11:00:00Z"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("config status = %d, body %s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodGet, "/api/v1/events/"+ev.ID+"/programs", "")
	items = decode[[]models.ProgramItem](t, rr)
	if !items[0].ScheduledStartTime.Equal(at(11, 0)) {
		t.Fatalf("first start after config = %v", items[0].ScheduledStartTime)
	}

	rr = env.do(t, http.MethodPatch, "/api/v1/programs/"+b.ID, `{"duration_minutes":5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/programs/"+a.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/events/"+ev.ID+"/programs", "")
	items = decode[[]models.ProgramItem](t, rr)
	if len(items) != 2 || items[0].ID != b.ID || items[0].OrderIndex != 0 || items[1].OrderIndex != 1 {
		t.Fatalf("after delete = %+v", items)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/events/"+ev.ID+"/schedule/recalculate", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("recalculate status = %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/events", "")
	if list := decode[[]models.Event](t, rr); len(list) != 1 {
		t.Fatalf("events = %d", len(list))
	}
}

func TestOperatorFlow(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)
	first := env.addProgram(t, ev.ID, "Opening", 10)
	second := env.addProgram(t, ev.ID, "Choir", 10)
	base := "/api/v1/events/" + ev.ID + "/live"

	rr := env.do(t, http.MethodPost, base+"/start", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rr.Code, rr.Body.String())
	}
	if item := decode[models.ProgramItem](t, rr); item.ID != first.ID || item.Status != models.ProgramLive {
		t.Fatalf("started = %+v", item)
	}

	rr = env.do(t, http.MethodPost, base+"/start", "")
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "invalid_transition") {
		t.Fatalf("second start = %d %s", rr.Code, rr.Body.String())
	}

	env.now = at(10, 14)
	rr = env.do(t, http.MethodGet, base+"/delay", "")
	if got := decode[map[string]int](t, rr); got["delay_minutes"] != 4 {
		t.Fatalf("delay = %v", got)
	}

	rr = env.do(t, http.MethodPost, base+"/complete", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("complete status = %d, body %s", rr.Code, rr.Body.String())
	}
	snap := decode[live.Snapshot](t, rr)
	if snap.Current == nil || snap.Current.ID != second.ID || !snap.Current.ScheduledStartTime.Equal(at(10, 14)) {
		t.Fatalf("snapshot after complete = %+v", snap.Current)
	}

	rr = env.do(t, http.MethodGet, base+"/current", "")
	if item := decode[models.ProgramItem](t, rr); item.ID != second.ID {
		t.Fatalf("current = %s", item.ID)
	}

	rr = env.do(t, http.MethodPost, base+"/postpone", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("postpone status = %d", rr.Code)
	}
	snap = decode[live.Snapshot](t, rr)
	if snap.Current.ID != second.ID || snap.Current.Day != 2 {
		t.Fatalf("postponed current = %+v", snap.Current)
	}

	rr = env.do(t, http.MethodPost, base+"/complete", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("complete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, base+"?fresh=true", "")
	if snap := decode[live.Snapshot](t, rr); !snap.AllClear {
		t.Fatalf("snapshot = %+v", snap)
	}
	rr = env.do(t, http.MethodPost, base+"/start", "")
	if rr.Code != http.StatusConflict || !strings.Contains(rr.Body.String(), "all_clear") {
		t.Fatalf("start when clear = %d %s", rr.Code, rr.Body.String())
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)
	item := env.addProgram(t, ev.ID, "Opening", 10)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown event", http.MethodGet, "/api/v1/events/missing", "", http.StatusNotFound, "not_found"},
		{"empty title", http.MethodPost, "/api/v1/events", `{"title":" "}`, http.StatusBadRequest, "title_required"},
		{"bad json", http.MethodPost, "/api/v1/events", `{`, http.StatusBadRequest, "invalid_json"},
		{"unknown field", http.MethodPost, "/api/v1/events", `{"title":"x","color":"red"}`, http.StatusBadRequest, "invalid_json"},
		{"inverted window", http.MethodPatch, "/api/v1/events/" + ev.ID, `{"end_time":"2026-03-06T09:00:00Z"}`, http.StatusBadRequest, "invalid_window"},
		{"negative break", http.MethodPatch, "/api/v1/events/" + ev.ID, `{"break_duration_minutes":-1}`, http.StatusBadRequest, "negative_break"},
		{"empty name", http.MethodPost, "/api/v1/events/" + ev.ID + "/programs", `{"participants":["Ann"]}`, http.StatusUnprocessableEntity, "name_required"},
		{"no participants", http.MethodPost, "/api/v1/events/" + ev.ID + "/programs", `{"name":"Solo"}`, http.StatusUnprocessableEntity, "participants_required"},
		{"negative duration", http.MethodPatch, "/api/v1/programs/" + item.ID, `{"duration_minutes":-3}`, http.StatusUnprocessableEntity, "invalid_duration"},
		{"status edit", http.MethodPatch, "/api/v1/programs/" + item.ID, `{"status":"Completed"}`, http.StatusConflict, "status_read_only"},
		{"unknown status", http.MethodPatch, "/api/v1/programs/" + item.ID, `{"status":"Paused"}`, http.StatusUnprocessableEntity, "invalid_status"},
		{"empty patch", http.MethodPatch, "/api/v1/programs/" + item.ID, `{}`, http.StatusBadRequest, "empty_patch"},
		{"order mismatch", http.MethodPut, "/api/v1/events/" + ev.ID + "/programs/order", `{"ids":["nope"]}`, http.StatusUnprocessableEntity, "order_mismatch"},
		{"move out of range", http.MethodPost, "/api/v1/events/" + ev.ID + "/programs/move", `{"from":0,"to":9}`, http.StatusUnprocessableEntity, "order_mismatch"},
		{"unknown program", http.MethodDelete, "/api/v1/programs/missing", "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			if got := decode[map[string]string](t, rr)["error"]; got != tt.code {
				t.Fatalf("error = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestAuditEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, id := range []string{"ev-1", "ev-1", "ev-2"} {
		if err := env.audit.Log(ctx, &models.AuditLog{EventID: id, Action: models.AuditActionProgramStart}); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	rr := env.do(t, http.MethodGet, "/api/v1/events/ev-1/audit", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decode[struct {
		Logs  []models.AuditLog `json:"audit_logs"`
		Total int64             `json:"total"`
	}](t, rr)
	if body.Total != 2 || len(body.Logs) != 2 {
		t.Fatalf("event audit = %+v", body)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/audit?action=program.start&limit=1", "")
	body = decode[struct {
		Logs  []models.AuditLog `json:"audit_logs"`
		Total int64             `json:"total"`
	}](t, rr)
	if body.Total != 3 || len(body.Logs) != 1 {
		t.Fatalf("audit = %+v", body)
	}
}

func TestLiveFeedPushesSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)
	first := env.addProgram(t, ev.ID, "Opening", 10)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events/" + ev.ID + "/live/ws"
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	type frame struct {
		Type     string        `json:"type"`
		Snapshot live.Snapshot `json:"snapshot"`
	}
	read := func() frame {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return f
	}

	initial := read()
	if initial.Type != "snapshot" || initial.Snapshot.Current == nil || initial.Snapshot.Current.Status != models.ProgramPending {
		t.Fatalf("initial frame = %+v", initial)
	}

	resp, err := http.Post(srv.URL+"/api/v1/events/"+ev.ID+"/live/start", "application/json", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	resp.Body.Close()

	next := read()
	if next.Snapshot.Current == nil || next.Snapshot.Current.ID != first.ID || next.Snapshot.Current.Status != models.ProgramLive {
		t.Fatalf("frame after start = %+v", next)
	}
}

func TestLiveFeedUnknownEvent(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, http.MethodGet, "/api/v1/events/missing/live/ws", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSystemLogs(t *testing.T) {
	a := New(nil, nil, nil, events.NewBus(), zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/logs", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without buffer = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}

	buf := logbuffer.New(10)
	buf.Add(logbuffer.LogEntry{Timestamp: at(9, 0), Level: "info", Component: "live", EventID: "e1", Message: "program completed"})
	buf.Add(logbuffer.LogEntry{Timestamp: at(9, 1), Level: "warn", Component: "store", EventID: "e2", Message: "revision conflict"})
	a.SetLogBuffer(buf)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/system/logs?event_id=e1", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	body := decode[struct {
		Logs []logbuffer.LogEntry `json:"logs"`
	}](t, rr)
	if len(body.Logs) != 1 || body.Logs[0].Message != "program completed" {
		t.Fatalf("logs = %+v", body.Logs)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/system/logs/stats", nil)
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	stats := decode[logbuffer.Stats](t, rr)
	if stats.Count != 2 || stats.LevelCount["warn"] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestScheduleExport(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)
	env.addProgram(t, ev.ID, "Opening", 10)

	rr := env.do(t, http.MethodGet, "/api/v1/events/"+ev.ID+"/schedule.ics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status = %d, body %s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/calendar") {
		t.Fatalf("Content-Type = %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, "spring-fest-program-2026-03-06.ics") {
		t.Fatalf("Content-Disposition = %q", got)
	}
	if !strings.Contains(rr.Body.String(), "SUMMARY:Opening\r\n") {
		t.Fatalf("body = %q", rr.Body.String())
	}

	rr = env.do(t, http.MethodGet, "/api/v1/events/missing/schedule.ics", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing event status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestWebhookEndpoints(t *testing.T) {
	env := newTestEnv(t)
	ev := env.createEvent(t)

	hits := make(chan string, 4)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Header.Get(webhooks.HeaderEvent)
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	rr := env.do(t, http.MethodPost, "/api/v1/events/"+ev.ID+"/webhooks", `{"url":"ftp://nope"}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "invalid_url") {
		t.Fatalf("invalid url status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/events/"+ev.ID+"/webhooks", `{"url":"`+hook.URL+`","events":["program.started"]}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rr.Code, rr.Body.String())
	}
	created := decode[struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}](t, rr)
	if created.ID == "" || created.Secret == "" {
		t.Fatalf("created = %+v", created)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/events/"+ev.ID+"/webhooks", "")
	if rr.Code != http.StatusOK || strings.Contains(rr.Body.String(), created.Secret) {
		t.Fatalf("list status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/test", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("test status = %d, body %s", rr.Code, rr.Body.String())
	}
	select {
	case got := <-hits:
		if got != webhooks.EventTest {
			t.Fatalf("delivered event = %q, want %q", got, webhooks.EventTest)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("test delivery never arrived")
	}

	rr = env.do(t, http.MethodGet, "/api/v1/webhooks/"+created.ID+"/deliveries", "")
	deliveries := decode[struct {
		Deliveries []models.WebhookLog `json:"deliveries"`
	}](t, rr)
	if len(deliveries.Deliveries) != 1 || deliveries.Deliveries[0].StatusCode != http.StatusOK {
		t.Fatalf("deliveries = %+v", deliveries.Deliveries)
	}

	rr = env.do(t, http.MethodDelete, "/api/v1/webhooks/"+created.ID, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodPost, "/api/v1/webhooks/"+created.ID+"/test", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("test after delete status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}
