/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/showrunner/internal/audit"
	"github.com/friendsincode/showrunner/internal/models"
)

// handleAuditList returns a paginated list of audit logs.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	a.writeAuditLogs(w, r, parseAuditFilters(r))
}

// handleEventAuditList returns audit logs for a specific event.
func (a *API) handleEventAuditList(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	filters := parseAuditFilters(r)
	filters.EventID = &eventID
	a.writeAuditLogs(w, r, filters)
}

func (a *API) writeAuditLogs(w http.ResponseWriter, r *http.Request, filters audit.QueryFilters) {
	logs, total, err := a.auditSvc.Query(r.Context(), filters)
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to query audit logs")
		writeError(w, http.StatusInternalServerError, "query_failed")
		return
	}
	if logs == nil {
		logs = []models.AuditLog{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"audit_logs": logs,
		"total":      total,
		"limit":      filters.Limit,
		"offset":     filters.Offset,
	})
}

// parseAuditFilters extracts query filters from the request.
func parseAuditFilters(r *http.Request) audit.QueryFilters {
	filters := audit.QueryFilters{
		Limit:  100,
		Offset: 0,
	}

	q := r.URL.Query()
	if eventID := q.Get("event_id"); eventID != "" {
		filters.EventID = &eventID
	}

	if action := q.Get("action"); action != "" {
		a := models.AuditAction(action)
		filters.Action = &a
	}

	if resourceID := q.Get("resource_id"); resourceID != "" {
		filters.ResourceID = &resourceID
	}

	if startTime := q.Get("start_time"); startTime != "" {
		if t, err := time.Parse(time.RFC3339, startTime); err == nil {
			filters.StartTime = &t
		}
	}

	if endTime := q.Get("end_time"); endTime != "" {
		if t, err := time.Parse(time.RFC3339, endTime); err == nil {
			filters.EndTime = &t
		}
	}

	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 && n <= 1000 {
			filters.Limit = n
		}
	}

	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil && n >= 0 {
			filters.Offset = n
		}
	}

	return filters
}
