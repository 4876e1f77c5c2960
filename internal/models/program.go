/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"time"

	"gorm.io/gorm"
)

// ProgramStatus is the live progression state of a program item.
type ProgramStatus string

const (
	ProgramPending   ProgramStatus = "Pending"
	ProgramLive      ProgramStatus = "Live"
	ProgramCompleted ProgramStatus = "Completed"
	ProgramPostponed ProgramStatus = "Postponed"
)

// Valid reports whether s is a known status.
func (s ProgramStatus) Valid() bool {
	switch s {
	case ProgramPending, ProgramLive, ProgramCompleted, ProgramPostponed:
		return true
	}
	return false
}

// ProgramItem is a single performance entry of an event.
//
// Day, OrderIndex and ScheduledStartTime are owned by the schedule
// calculator. The production fields are carried through untouched.
type ProgramItem struct {
	ID                 string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	EventID            string        `gorm:"type:varchar(36);not null;index:idx_program_items_event_order,priority:1" json:"event_id"`
	Name               string        `gorm:"type:varchar(255);not null" json:"name"`
	Participants       []string      `gorm:"type:text;serializer:json" json:"participants"`
	DurationMinutes    int           `gorm:"not null" json:"duration_minutes"`
	Day                int           `gorm:"not null;default:1" json:"day"`
	OrderIndex         int           `gorm:"not null;index:idx_program_items_event_order,priority:2" json:"order_index"`
	ScheduledStartTime time.Time     `json:"scheduled_start_time"`
	Status             ProgramStatus `gorm:"type:varchar(16);not null;default:Pending;index" json:"status"`

	Materials    string `gorm:"type:text" json:"materials,omitempty"`
	DressStatus  string `gorm:"type:varchar(64)" json:"dress_status,omitempty"`
	Rating       int    `json:"rating,omitempty"`
	Remarks      string `gorm:"type:text" json:"remarks,omitempty"`
	Category     string `gorm:"type:varchar(64)" json:"category,omitempty"`
	ProgramClass string `gorm:"type:varchar(64)" json:"program_class,omitempty"`
	Division     string `gorm:"type:varchar(64)" json:"division,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// EndTime is the scheduled end of the item.
func (p *ProgramItem) EndTime() time.Time {
	return p.ScheduledStartTime.Add(time.Duration(p.DurationMinutes) * time.Minute)
}

// TableName returns the table name for GORM.
func (ProgramItem) TableName() string {
	return "program_items"
}
