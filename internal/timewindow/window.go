/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package timewindow models the daily working window of a multi-day event.
//
// Day 1 runs from Start to End. Every later day is the same window shifted by
// whole 24 hour steps. An optional break is configured as an absolute instant
// on day 1; only its offset from Start matters and it is reapplied each day.
package timewindow

import (
	"errors"
	"fmt"
	"time"
)

// MaxDays is the default number of days an event spans.
const MaxDays = 3

// Configuration errors.
var (
	ErrInvalidWindow  = errors.New("event end time must be after start time")
	ErrNegativeBreak  = errors.New("break duration must not be negative")
	ErrInvalidMaxDays = errors.New("max days must be at least 1")
)

// Window is the event timetable used by the schedule calculator.
type Window struct {
	Start        time.Time
	End          time.Time
	BreakStart   *time.Time // nil when no break is configured
	BreakMinutes int
	MaxDays      int // 0 means MaxDays
}

// Validate reports a configuration error before any scheduling attempt.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: start %s, end %s", ErrInvalidWindow, w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	if w.BreakMinutes < 0 {
		return fmt.Errorf("%w: %d minutes", ErrNegativeBreak, w.BreakMinutes)
	}
	if w.MaxDays < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxDays, w.MaxDays)
	}
	return nil
}

// Days returns the effective day cap.
func (w Window) Days() int {
	if w.MaxDays <= 0 {
		return MaxDays
	}
	return w.MaxDays
}

// ClampDay bounds day to [1, Days()].
func (w Window) ClampDay(day int) int {
	if day < 1 {
		return 1
	}
	if n := w.Days(); day > n {
		return n
	}
	return day
}

// Day returns the start and end of day k (1-based).
func (w Window) Day(k int) (time.Time, time.Time) {
	shift := 24 * time.Hour * time.Duration(k-1)
	return w.Start.Add(shift), w.End.Add(shift)
}

// HasBreak reports whether a break with a positive duration is configured.
func (w Window) HasBreak() bool {
	return w.BreakStart != nil && w.BreakMinutes > 0
}

// BreakOffset is the break start measured from the day start.
func (w Window) BreakOffset() (time.Duration, bool) {
	if !w.HasBreak() {
		return 0, false
	}
	return w.BreakStart.Sub(w.Start), true
}

// BreakAt returns the absolute break instant on day k.
func (w Window) BreakAt(k int) (time.Time, bool) {
	offset, ok := w.BreakOffset()
	if !ok {
		return time.Time{}, false
	}
	start, _ := w.Day(k)
	return start.Add(offset), true
}

// BreakDuration returns the configured break length.
func (w Window) BreakDuration() time.Duration {
	return time.Duration(w.BreakMinutes) * time.Minute
}

// DayOf returns the first day whose window has not ended at t. Instants past
// the last day map to the last day.
func (w Window) DayOf(t time.Time) int {
	n := w.Days()
	for k := 1; k <= n; k++ {
		if _, end := w.Day(k); t.Before(end) {
			return k
		}
	}
	return n
}
