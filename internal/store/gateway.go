/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package store persists events and program items.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/friendsincode/showrunner/internal/models"
)

// Store errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrStaleRevision = errors.New("schedule revision changed during recalculation")
)

// Gateway is the persistence contract the live controller and the organizer
// service work against.
type Gateway interface {
	// FetchItems returns the non-deleted items of an event in any order.
	FetchItems(ctx context.Context, eventID string) ([]models.ProgramItem, error)
	// FetchConfig returns the event and its time window configuration.
	FetchConfig(ctx context.Context, eventID string) (*models.Event, error)
	// PersistItem writes only the fields set in patch.
	PersistItem(ctx context.Context, id string, patch ItemPatch) error
	// PersistConfigChange writes only the fields set in patch.
	PersistConfigChange(ctx context.Context, eventID string, patch ConfigPatch) error
	// PersistSchedule replaces day, order index and start time of every item
	// and bumps the event's schedule revision.
	PersistSchedule(ctx context.Context, eventID string, baseRevision int64, items []models.ProgramItem) (ScheduleResult, error)
	// PersistTransition writes patch on one item together with the schedule
	// of every item, atomically.
	PersistTransition(ctx context.Context, eventID string, baseRevision int64, id string, patch ItemPatch, items []models.ProgramItem) (ScheduleResult, error)
}

// ScheduleResult reports the outcome of a bulk schedule write.
type ScheduleResult struct {
	Revision int64
	// Conflict is set when another writer bumped the revision after
	// baseRevision was read. The write still landed.
	Conflict bool
}

// ItemPatch is a partial update of a program item. Nil fields are left alone.
type ItemPatch struct {
	Name               *string               `json:"name,omitempty"`
	Participants       *[]string             `json:"participants,omitempty"`
	DurationMinutes    *int                  `json:"duration_minutes,omitempty"`
	Day                *int                  `json:"day,omitempty"`
	OrderIndex         *int                  `json:"order_index,omitempty"`
	ScheduledStartTime *time.Time            `json:"-"`
	Status             *models.ProgramStatus `json:"status,omitempty"`

	Materials    *string `json:"materials,omitempty"`
	DressStatus  *string `json:"dress_status,omitempty"`
	Rating       *int    `json:"rating,omitempty"`
	Remarks      *string `json:"remarks,omitempty"`
	Category     *string `json:"category,omitempty"`
	ProgramClass *string `json:"program_class,omitempty"`
	Division     *string `json:"division,omitempty"`
}

// Empty reports whether the patch sets no field.
func (p ItemPatch) Empty() bool {
	return len(p.Columns()) == 0
}

// Columns maps the set fields to column names.
func (p ItemPatch) Columns() map[string]any {
	cols := make(map[string]any)
	setString(cols, "name", p.Name)
	if p.Participants != nil {
		cols["participants"] = encodeParticipants(*p.Participants)
	}
	setInt(cols, "duration_minutes", p.DurationMinutes)
	setInt(cols, "day", p.Day)
	setInt(cols, "order_index", p.OrderIndex)
	if p.ScheduledStartTime != nil {
		cols["scheduled_start_time"] = p.ScheduledStartTime.UTC()
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	setString(cols, "materials", p.Materials)
	setString(cols, "dress_status", p.DressStatus)
	setInt(cols, "rating", p.Rating)
	setString(cols, "remarks", p.Remarks)
	setString(cols, "category", p.Category)
	setString(cols, "program_class", p.ProgramClass)
	setString(cols, "division", p.Division)
	return cols
}

// Apply copies the set fields onto item.
func (p ItemPatch) Apply(item *models.ProgramItem) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Participants != nil {
		item.Participants = append([]string(nil), (*p.Participants)...)
	}
	if p.DurationMinutes != nil {
		item.DurationMinutes = *p.DurationMinutes
	}
	if p.Day != nil {
		item.Day = *p.Day
	}
	if p.OrderIndex != nil {
		item.OrderIndex = *p.OrderIndex
	}
	if p.ScheduledStartTime != nil {
		item.ScheduledStartTime = *p.ScheduledStartTime
	}
	if p.Status != nil {
		item.Status = *p.Status
	}
	applyString(&item.Materials, p.Materials)
	applyString(&item.DressStatus, p.DressStatus)
	if p.Rating != nil {
		item.Rating = *p.Rating
	}
	applyString(&item.Remarks, p.Remarks)
	applyString(&item.Category, p.Category)
	applyString(&item.ProgramClass, p.ProgramClass)
	applyString(&item.Division, p.Division)
}

// ConfigPatch is a partial update of an event's configuration.
type ConfigPatch struct {
	Title                *string    `json:"title,omitempty"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	BreakStartTime       *time.Time `json:"break_start_time,omitempty"`
	ClearBreak           bool       `json:"clear_break"`
	BreakDurationMinutes *int       `json:"break_duration_minutes,omitempty"`
	MaxDays              *int       `json:"max_days,omitempty"`
	MaxAdmins            *int       `json:"max_admins,omitempty"`
	PublicFormEnabled    *bool      `json:"public_form_enabled,omitempty"`
}

// TouchesWindow reports whether the patch changes scheduling inputs.
func (p ConfigPatch) TouchesWindow() bool {
	return p.StartTime != nil || p.EndTime != nil || p.BreakStartTime != nil ||
		p.ClearBreak || p.BreakDurationMinutes != nil || p.MaxDays != nil
}

// Apply copies the set fields onto ev.
func (p ConfigPatch) Apply(ev *models.Event) {
	applyString(&ev.Title, p.Title)
	if p.StartTime != nil {
		ev.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		ev.EndTime = *p.EndTime
	}
	if p.ClearBreak {
		ev.BreakStartTime = nil
	} else if p.BreakStartTime != nil {
		t := *p.BreakStartTime
		ev.BreakStartTime = &t
	}
	if p.BreakDurationMinutes != nil {
		ev.BreakDurationMinutes = *p.BreakDurationMinutes
	}
	if p.MaxDays != nil {
		ev.MaxDays = *p.MaxDays
	}
	if p.MaxAdmins != nil {
		ev.MaxAdmins = *p.MaxAdmins
	}
	if p.PublicFormEnabled != nil {
		ev.PublicFormEnabled = *p.PublicFormEnabled
	}
}

// Columns maps the set fields to column names.
func (p ConfigPatch) Columns() map[string]any {
	cols := make(map[string]any)
	setString(cols, "title", p.Title)
	if p.StartTime != nil {
		cols["start_time"] = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		cols["end_time"] = p.EndTime.UTC()
	}
	if p.ClearBreak {
		cols["break_start_time"] = nil
	} else if p.BreakStartTime != nil {
		cols["break_start_time"] = p.BreakStartTime.UTC()
	}
	setInt(cols, "break_duration_minutes", p.BreakDurationMinutes)
	setInt(cols, "max_days", p.MaxDays)
	setInt(cols, "max_admins", p.MaxAdmins)
	if p.PublicFormEnabled != nil {
		cols["public_form_enabled"] = *p.PublicFormEnabled
	}
	return cols
}

func setString(cols map[string]any, col string, v *string) {
	if v != nil {
		cols[col] = *v
	}
}

func setInt(cols map[string]any, col string, v *int) {
	if v != nil {
		cols[col] = *v
	}
}

func applyString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
