/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package live

import (
	"time"

	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/timewindow"
)

var transitions = map[models.ProgramStatus][]models.ProgramStatus{
	models.ProgramPending:   {models.ProgramLive, models.ProgramCompleted, models.ProgramPostponed},
	models.ProgramPostponed: {models.ProgramPending, models.ProgramLive, models.ProgramCompleted},
	models.ProgramLive:      {models.ProgramCompleted, models.ProgramPostponed},
}

// CanTransition reports whether a program may move from one status to another.
// Completed is terminal.
func CanTransition(from, to models.ProgramStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CurrentIndex returns the position of the current item in sorted, or -1 when
// every item is completed. A live item wins over the first pending one.
func CurrentIndex(sorted []models.ProgramItem) int {
	first := -1
	for i := range sorted {
		switch sorted[i].Status {
		case models.ProgramLive:
			return i
		case models.ProgramCompleted:
		default:
			if first < 0 {
				first = i
			}
		}
	}
	return first
}

// DelayMinutes is how many whole minutes a live item has overrun its slot.
// It is zero for items that are not live or still on time.
func DelayMinutes(item *models.ProgramItem, now time.Time) int {
	if item == nil || item.Status != models.ProgramLive {
		return 0
	}
	over := now.Sub(item.EndTime())
	if over <= 0 {
		return 0
	}
	return int(over / time.Minute)
}

// Repair retimes the remaining items of a running event from now on.
// Completed items keep their slot and take the first order indexes; every
// other item is packed after them starting at now, which pulls the program up
// when an act finishes early.
func Repair(items []models.ProgramItem, w timewindow.Window, now time.Time) ([]models.ProgramItem, error) {
	sorted := schedule.SortByOrder(items)

	done := make([]models.ProgramItem, 0, len(sorted))
	remaining := make([]models.ProgramItem, 0, len(sorted))
	for _, item := range sorted {
		if item.Status == models.ProgramCompleted {
			item.OrderIndex = len(done)
			done = append(done, item)
			continue
		}
		remaining = append(remaining, item)
	}

	packed, err := schedule.Repack(schedule.Request{
		Items:           remaining,
		Window:          w,
		StartAt:         now,
		FirstOrderIndex: len(done),
	})
	if err != nil {
		return nil, err
	}
	return append(done, packed...), nil
}
