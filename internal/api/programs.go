/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/showrunner/internal/program"
	"github.com/friendsincode/showrunner/internal/store"
)

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type moveRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

func (a *API) handleProgramsList(w http.ResponseWriter, r *http.Request) {
	items, err := a.programs.Items(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "list_programs")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleScheduleExport(w http.ResponseWriter, r *http.Request) {
	export, err := a.programs.Export(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "export_schedule")
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(export.Data)
}

func (a *API) handleProgramsCreate(w http.ResponseWriter, r *http.Request) {
	var in program.ItemInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	item, err := a.programs.AddItem(r.Context(), chi.URLParam(r, "eventID"), in)
	if err != nil {
		a.writeServiceError(w, err, "create_program")
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (a *API) handleProgramsUpdate(w http.ResponseWriter, r *http.Request) {
	var patch store.ItemPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if patch.Empty() {
		writeError(w, http.StatusBadRequest, "empty_patch")
		return
	}
	item, err := a.programs.UpdateItem(r.Context(), chi.URLParam(r, "programID"), patch)
	if err != nil {
		a.writeServiceError(w, err, "update_program")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleProgramsDelete(w http.ResponseWriter, r *http.Request) {
	if err := a.programs.DeleteItem(r.Context(), chi.URLParam(r, "programID")); err != nil {
		a.writeServiceError(w, err, "delete_program")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleProgramsReorder(w http.ResponseWriter, r *http.Request) {
	var req reorderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	items, err := a.programs.Reorder(r.Context(), chi.URLParam(r, "eventID"), req.IDs)
	if err != nil {
		a.writeServiceError(w, err, "reorder")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleProgramsMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	items, err := a.programs.Move(r.Context(), chi.URLParam(r, "eventID"), req.From, req.To)
	if err != nil {
		a.writeServiceError(w, err, "move")
		return
	}
	writeJSON(w, http.StatusOK, items)
}
