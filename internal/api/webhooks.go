/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type webhookCreateRequest struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// webhookCreateResponse carries the signing secret, which is only returned once.
type webhookCreateResponse struct {
	ID      string   `json:"id"`
	EventID string   `json:"event_id"`
	URL     string   `json:"url"`
	Events  []string `json:"events"`
	Secret  string   `json:"secret"`
}

func (a *API) webhooksEnabled(w http.ResponseWriter) bool {
	if a.webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "webhooks_unavailable")
		return false
	}
	return true
}

func (a *API) handleWebhooksList(w http.ResponseWriter, r *http.Request) {
	if !a.webhooksEnabled(w) {
		return
	}
	targets, err := a.webhooks.ListTargets(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "webhooks_list")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"webhooks": targets})
}

func (a *API) handleWebhooksCreate(w http.ResponseWriter, r *http.Request) {
	if !a.webhooksEnabled(w) {
		return
	}
	var req webhookCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	target, err := a.webhooks.CreateTarget(r.Context(), chi.URLParam(r, "eventID"), req.URL, req.Events)
	if err != nil {
		a.writeServiceError(w, err, "webhooks_create")
		return
	}
	if req.Events == nil {
		req.Events = []string{}
	}
	writeJSON(w, http.StatusCreated, webhookCreateResponse{
		ID:      target.ID,
		EventID: target.EventID,
		URL:     target.URL,
		Events:  req.Events,
		Secret:  target.Secret,
	})
}

func (a *API) handleWebhooksDelete(w http.ResponseWriter, r *http.Request) {
	if !a.webhooksEnabled(w) {
		return
	}
	if err := a.webhooks.DeleteTarget(r.Context(), chi.URLParam(r, "webhookID")); err != nil {
		a.writeServiceError(w, err, "webhooks_delete")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleWebhookDeliveries(w http.ResponseWriter, r *http.Request) {
	if !a.webhooksEnabled(w) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	logs, err := a.webhooks.Deliveries(r.Context(), chi.URLParam(r, "webhookID"), limit)
	if err != nil {
		a.writeServiceError(w, err, "webhooks_deliveries")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": logs})
}

func (a *API) handleWebhooksTest(w http.ResponseWriter, r *http.Request) {
	if !a.webhooksEnabled(w) {
		return
	}
	if err := a.webhooks.Test(r.Context(), chi.URLParam(r, "webhookID")); err != nil {
		if code, ok := statusCode(err); ok {
			writeError(w, code.status, code.code)
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "delivery_failed", "detail": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "delivered"})
}
