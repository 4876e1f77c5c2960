/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"github.com/friendsincode/showrunner/internal/timewindow"
)

// Event is a multi-day program together with its time window configuration.
type Event struct {
	ID                   string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title                string     `gorm:"type:varchar(255);not null" json:"title"`
	OwnerID              string     `gorm:"type:varchar(64);index" json:"owner_id,omitempty"`
	StartTime            time.Time  `gorm:"not null" json:"start_time"`
	EndTime              time.Time  `gorm:"not null" json:"end_time"`
	BreakStartTime       *time.Time `json:"break_start_time,omitempty"`
	BreakDurationMinutes int        `gorm:"not null;default:0" json:"break_duration_minutes"`
	MaxDays              int        `gorm:"not null;default:3" json:"max_days"`
	MaxAdmins            int        `gorm:"not null;default:5" json:"max_admins"`
	PublicFormEnabled    bool       `json:"public_form_enabled"`
	ScheduleRevision     int64      `gorm:"not null;default:0" json:"schedule_revision"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Window returns the time window the schedule calculator works against.
func (e *Event) Window() timewindow.Window {
	return timewindow.Window{
		Start:        e.StartTime,
		End:          e.EndTime,
		BreakStart:   e.BreakStartTime,
		BreakMinutes: e.BreakDurationMinutes,
		MaxDays:      e.MaxDays,
	}
}

// TableName returns the table name for GORM.
func (Event) TableName() string {
	return "events"
}
