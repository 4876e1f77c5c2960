/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/telemetry"
)

func (a *API) handleLiveSnapshot(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	snapshot := a.live.CachedSnapshot
	if r.URL.Query().Get("fresh") == "true" {
		snapshot = a.live.Snapshot
	}
	snap, err := snapshot(r.Context(), eventID)
	if err != nil {
		a.writeServiceError(w, err, "snapshot")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleLiveCurrent(w http.ResponseWriter, r *http.Request) {
	item, err := a.live.Current(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "current")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleLiveDelay(w http.ResponseWriter, r *http.Request) {
	minutes, err := a.live.Delay(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "delay")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"delay_minutes": minutes})
}

func (a *API) handleLiveStart(w http.ResponseWriter, r *http.Request) {
	item, err := a.live.Start(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "start")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleLiveComplete(w http.ResponseWriter, r *http.Request) {
	snap, err := a.live.Complete(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "complete")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (a *API) handleLivePostpone(w http.ResponseWriter, r *http.Request) {
	snap, err := a.live.Postpone(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		a.writeServiceError(w, err, "postpone")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

var liveFeedTypes = []events.EventType{
	events.EventProgramStarted,
	events.EventProgramCompleted,
	events.EventProgramPostponed,
	events.EventLiveDelay,
	events.EventScheduleRecalculated,
	events.EventConfigUpdated,
}

// handleLiveFeed streams a fresh snapshot over a websocket every time the
// live state of the event changes.
func (a *API) handleLiveFeed(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	if _, err := a.programs.Event(r.Context(), eventID); err != nil {
		a.writeServiceError(w, err, "live_feed")
		return
	}

	conn, err := ws.Accept(w, r, &ws.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.logger.Error().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(ws.StatusInternalError, "server error")

	telemetry.APIActiveConnections.Inc()
	defer telemetry.APIActiveConnections.Dec()

	ctx := conn.CloseRead(r.Context())
	changed := a.watchEvent(ctx, eventID)

	if err := a.writeSnapshot(ctx, conn, eventID); err != nil {
		a.logger.Debug().Err(err).Msg("websocket write failed")
		return
	}

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close(ws.StatusNormalClosure, "")
			return
		case <-ticker.C:
			if err := conn.Write(ctx, ws.MessageText, []byte(`{"type":"ping"}`)); err != nil {
				a.logger.Debug().Err(err).Msg("websocket ping failed")
				return
			}
		case <-changed:
			if err := a.writeSnapshot(ctx, conn, eventID); err != nil {
				a.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}

// watchEvent signals on the returned channel whenever a bus event for eventID
// arrives. Bursts collapse into one signal.
func (a *API) watchEvent(ctx context.Context, eventID string) <-chan struct{} {
	changed := make(chan struct{}, 1)
	for _, t := range liveFeedTypes {
		sub := a.bus.Subscribe(t)
		go func(t events.EventType, sub events.Subscriber) {
			defer a.bus.Unsubscribe(t, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case p, ok := <-sub:
					if !ok {
						return
					}
					if p.String("event_id") != eventID {
						continue
					}
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			}
		}(t, sub)
	}
	return changed
}

func (a *API) writeSnapshot(ctx context.Context, conn *ws.Conn, eventID string) error {
	snap, err := a.live.Snapshot(ctx, eventID)
	if err != nil {
		return err
	}
	data, err := json.Marshal(map[string]any{
		"type":     "snapshot",
		"snapshot": snap,
	})
	if err != nil {
		return err
	}
	return conn.Write(ctx, ws.MessageText, data)
}
