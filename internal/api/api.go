/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/showrunner/internal/audit"
	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/logbuffer"
	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/timewindow"
	"github.com/friendsincode/showrunner/internal/webhooks"
)

// API exposes HTTP handlers.
type API struct {
	programs *program.Service
	live     *live.Controller
	auditSvc *audit.Service
	bus      events.Broker
	logs     *logbuffer.Buffer
	webhooks *webhooks.Service
	logger   zerolog.Logger
}

// New creates the API router wrapper.
func New(programs *program.Service, ctrl *live.Controller, auditSvc *audit.Service, bus events.Broker, logger zerolog.Logger) *API {
	return &API{
		programs: programs,
		live:     ctrl,
		auditSvc: auditSvc,
		bus:      bus,
		logger:   logger.With().Str("component", "api").Logger(),
	}
}

// SetLogBuffer enables the system log endpoints.
func (a *API) SetLogBuffer(buf *logbuffer.Buffer) {
	a.logs = buf
}

// SetWebhooks enables the webhook management endpoints.
func (a *API) SetWebhooks(svc *webhooks.Service) {
	a.webhooks = svc
}

// Routes registers all API routes on r.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)
		r.Get("/audit", a.handleAuditList)
		r.Get("/system/logs", a.handleSystemLogs)
		r.Get("/system/logs/stats", a.handleSystemLogStats)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", a.handleEventsList)
			r.Post("/", a.handleEventsCreate)
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", a.handleEventsGet)
				r.Patch("/", a.handleEventsUpdateConfig)
				r.Get("/audit", a.handleEventAuditList)

				r.Route("/programs", func(r chi.Router) {
					r.Get("/", a.handleProgramsList)
					r.Post("/", a.handleProgramsCreate)
					r.Put("/order", a.handleProgramsReorder)
					r.Post("/move", a.handleProgramsMove)
				})
				r.Post("/schedule/recalculate", a.handleScheduleRecalculate)
				r.Get("/schedule.ics", a.handleScheduleExport)
				r.Get("/webhooks", a.handleWebhooksList)
				r.Post("/webhooks", a.handleWebhooksCreate)

				r.Route("/live", func(r chi.Router) {
					r.Get("/", a.handleLiveSnapshot)
					r.Get("/current", a.handleLiveCurrent)
					r.Get("/delay", a.handleLiveDelay)
					r.Post("/start", a.handleLiveStart)
					r.Post("/complete", a.handleLiveComplete)
					r.Post("/postpone", a.handleLivePostpone)
					r.Get("/ws", a.handleLiveFeed)
				})
			})
		})

		r.Route("/programs/{programID}", func(r chi.Router) {
			r.Patch("/", a.handleProgramsUpdate)
			r.Delete("/", a.handleProgramsDelete)
		})

		r.Route("/webhooks/{webhookID}", func(r chi.Router) {
			r.Delete("/", a.handleWebhooksDelete)
			r.Get("/deliveries", a.handleWebhookDeliveries)
			r.Post("/test", a.handleWebhooksTest)
		})
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func decodeJSON(r *http.Request, dest any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{store.ErrNotFound, http.StatusNotFound, "not_found"},
	{program.ErrEmptyTitle, http.StatusBadRequest, "title_required"},
	{timewindow.ErrInvalidWindow, http.StatusBadRequest, "invalid_window"},
	{timewindow.ErrNegativeBreak, http.StatusBadRequest, "negative_break"},
	{timewindow.ErrInvalidMaxDays, http.StatusBadRequest, "invalid_max_days"},
	{schedule.ErrEmptyName, http.StatusUnprocessableEntity, "name_required"},
	{schedule.ErrNoParticipants, http.StatusUnprocessableEntity, "participants_required"},
	{schedule.ErrInvalidDuration, http.StatusUnprocessableEntity, "invalid_duration"},
	{schedule.ErrOrderMismatch, http.StatusUnprocessableEntity, "order_mismatch"},
	{program.ErrStatusReadOnly, http.StatusConflict, "status_read_only"},
	{program.ErrInvalidStatus, http.StatusUnprocessableEntity, "invalid_status"},
	{live.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{live.ErrAllClear, http.StatusConflict, "all_clear"},
	{webhooks.ErrInvalidURL, http.StatusBadRequest, "invalid_url"},
	{webhooks.ErrUnknownEvent, http.StatusBadRequest, "unknown_event"},
}

type errorCode struct {
	status int
	code   string
}

func statusCode(err error) (errorCode, bool) {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return errorCode{c.status, c.code}, true
		}
	}
	return errorCode{}, false
}

// writeServiceError maps domain errors to status codes. Anything unknown is a
// persistence failure the client should retry.
func (a *API) writeServiceError(w http.ResponseWriter, err error, op string) {
	if c, ok := statusCode(err); ok {
		writeError(w, c.status, c.code)
		return
	}
	a.logger.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, op+"_failed")
}
