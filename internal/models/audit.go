/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// AuditAction defines the type of audited action.
type AuditAction string

// Audit action constants for organizer and operator operations.
const (
	AuditActionEventCreate       AuditAction = "event.create"
	AuditActionEventConfigUpdate AuditAction = "event.config_update"
	AuditActionProgramCreate     AuditAction = "program.create"
	AuditActionProgramUpdate     AuditAction = "program.update"
	AuditActionProgramDelete     AuditAction = "program.delete"
	AuditActionProgramStart      AuditAction = "program.start"
	AuditActionProgramComplete   AuditAction = "program.complete"
	AuditActionProgramPostpone   AuditAction = "program.postpone"
	AuditActionScheduleReorder   AuditAction = "schedule.reorder"
	AuditActionScheduleRecalc    AuditAction = "schedule.recalculate"
	AuditActionScheduleConflict  AuditAction = "schedule.conflict"
)

// AuditLog records state changes made by organizers and operators.
type AuditLog struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	Timestamp    time.Time      `gorm:"index:idx_audit_timestamp;not null" json:"timestamp"`
	EventID      string         `gorm:"type:varchar(36);index:idx_audit_event" json:"event_id"`
	Actor        string         `gorm:"type:varchar(255)" json:"actor,omitempty"` // empty for system actions
	Action       AuditAction    `gorm:"type:varchar(64);index:idx_audit_action;not null" json:"action"`
	ResourceType string         `gorm:"type:varchar(64)" json:"resource_type"` // "event", "program", "schedule"
	ResourceID   string         `gorm:"type:varchar(36)" json:"resource_id"`
	Details      map[string]any `gorm:"type:text;serializer:json" json:"details,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// TableName returns the table name for GORM.
func (AuditLog) TableName() string {
	return "audit_logs"
}
