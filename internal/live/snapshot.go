/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package live

import (
	"fmt"
	"time"

	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
)

// UpNextSize is the number of upcoming items a snapshot previews.
const UpNextSize = 3

// Snapshot is what the operator console shows for a running event.
type Snapshot struct {
	EventID      string               `json:"event_id"`
	Title        string               `json:"title"`
	Now          time.Time            `json:"now"`
	Current      *models.ProgramItem  `json:"current,omitempty"`
	UpNext       []models.ProgramItem `json:"up_next"`
	Remaining    int                  `json:"remaining"`
	Completed    int                  `json:"completed"`
	DelayMinutes int                  `json:"delay_minutes"`
	AllClear     bool                 `json:"all_clear"`
	Revision     int64                `json:"revision"`
}

// Live reports whether the current item is on stage.
func (s *Snapshot) Live() bool {
	return s.Current != nil && s.Current.Status == models.ProgramLive
}

// Label is the short delay indicator shown next to the running clock.
func (s *Snapshot) Label() string {
	switch {
	case s.AllClear:
		return "ALL CLEAR"
	case s.DelayMinutes > 0:
		return fmt.Sprintf("LATE +%d min", s.DelayMinutes)
	default:
		return "ON TIME"
	}
}

// BuildSnapshot derives the live view of ev from its items at now.
func BuildSnapshot(ev *models.Event, items []models.ProgramItem, now time.Time) Snapshot {
	sorted := schedule.SortByOrder(items)
	snap := Snapshot{
		EventID:  ev.ID,
		Title:    ev.Title,
		Now:      now,
		UpNext:   []models.ProgramItem{},
		Revision: ev.ScheduleRevision,
	}

	idx := CurrentIndex(sorted)
	for i := range sorted {
		if sorted[i].Status == models.ProgramCompleted {
			snap.Completed++
			continue
		}
		snap.Remaining++
		if idx >= 0 && i > idx && len(snap.UpNext) < UpNextSize {
			snap.UpNext = append(snap.UpNext, sorted[i])
		}
	}

	if idx < 0 {
		snap.AllClear = true
		return snap
	}
	current := sorted[idx]
	snap.Current = &current
	snap.DelayMinutes = DelayMinutes(&current, now)
	return snap
}
