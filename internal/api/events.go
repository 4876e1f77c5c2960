/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/store"
)

func (a *API) handleEventsList(w http.ResponseWriter, r *http.Request) {
	list, err := a.programs.Events(r.Context())
	if err != nil {
		a.writeServiceError(w, err, "list_events")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleEventsCreate(w http.ResponseWriter, r *http.Request) {
	var in program.EventInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ev, err := a.programs.CreateEvent(r.Context(), in)
	if err != nil {
		a.writeServiceError(w, err, "create_event")
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (a *API) handleEventsGet(w http.ResponseWriter, r *http.Request) {
	ev, err := a.programs.Event(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "get_event")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleEventsUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch store.ConfigPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	ev, err := a.programs.UpdateConfig(r.Context(), chi.URLParam(r, "eventID"), patch)
	if err != nil {
		a.writeServiceError(w, err, "update_config")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (a *API) handleScheduleRecalculate(w http.ResponseWriter, r *http.Request) {
	items, err := a.programs.Recalculate(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "recalculate")
		return
	}
	writeJSON(w, http.StatusOK, items)
}
