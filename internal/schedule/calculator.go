/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule assigns each program item a day and a start time.
//
// The calculator is a single forward pass over the items in play order. It
// never reorders items, only re-times them: an item's pinned day can push the
// cursor forward to that day, a daily break is inserted once the cursor
// reaches the break instant, and an item that does not fit in the remaining
// window moves to the next day. Items on the last day are placed even when
// they run past its end.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/timewindow"
)

// Request describes a packing pass.
type Request struct {
	Items  []models.ProgramItem
	Window timewindow.Window

	// StartAt anchors the cursor at a wall-clock instant instead of the
	// opening of day 1. Used when repairing a schedule during a live event.
	StartAt time.Time

	// FirstOrderIndex is assigned to the first item of the pass.
	FirstOrderIndex int
}

// Calculate runs a full pass from the opening of day 1. The input slice is
// not modified.
func Calculate(items []models.ProgramItem, w timewindow.Window) ([]models.ProgramItem, error) {
	return Repack(Request{Items: items, Window: w})
}

// Repack runs a packing pass as described by req and returns the annotated
// items sorted by their new order index.
func Repack(req Request) ([]models.ProgramItem, error) {
	if err := req.Window.Validate(); err != nil {
		return nil, err
	}
	for i := range req.Items {
		if req.Items[i].DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: program %s has %d minutes", ErrInvalidDuration, req.Items[i].ID, req.Items[i].DurationMinutes)
		}
	}

	out := SortByOrder(req.Items)
	if len(out) == 0 {
		return out, nil
	}

	c := newCursor(req.Window, req.StartAt)
	for i := range out {
		c.place(&out[i])
		out[i].OrderIndex = req.FirstOrderIndex + i
	}
	return out, nil
}

// SortByOrder returns a copy of items stably sorted by order index.
func SortByOrder(items []models.ProgramItem) []models.ProgramItem {
	out := make([]models.ProgramItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderIndex < out[j].OrderIndex
	})
	return out
}

type cursor struct {
	w            timewindow.Window
	days         int
	day          int
	at           time.Time
	dayEnd       time.Time
	breakApplied bool
}

func newCursor(w timewindow.Window, anchor time.Time) *cursor {
	c := &cursor{w: w, days: w.Days()}
	if anchor.IsZero() {
		c.openDay(1)
		return c
	}

	c.openDay(w.DayOf(anchor))
	if anchor.After(c.at) {
		c.at = anchor
	}
	if brk, ok := w.BreakAt(c.day); ok && !anchor.Before(brk) {
		// The break has started in real time; nothing is scheduled inside it.
		if resume := brk.Add(w.BreakDuration()); resume.After(c.at) {
			c.at = resume
		}
		c.breakApplied = true
	}
	return c
}

func (c *cursor) openDay(k int) {
	c.day = k
	c.at, c.dayEnd = c.w.Day(k)
	c.breakApplied = false
}

func (c *cursor) place(item *models.ProgramItem) {
	if item.Day > c.day && item.Day <= c.days {
		c.openDay(item.Day)
	}

	if !c.breakApplied {
		if brk, ok := c.w.BreakAt(c.day); ok && !c.at.Before(brk) {
			c.at = c.at.Add(c.w.BreakDuration())
			c.breakApplied = true
		}
	}

	length := time.Duration(item.DurationMinutes) * time.Minute
	if c.at.Add(length).After(c.dayEnd) && c.day < c.days {
		c.openDay(c.day + 1)
	}

	item.ScheduledStartTime = c.at
	item.Day = c.day
	c.at = c.at.Add(length)
}
