/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/program"
)

// Service handles audit logging by subscribing to events and storing audit entries.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	logger zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus events.Broker, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to relevant events and logs them as audit entries. It
// blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("audit service starting")

	// Organizer events
	eventCreated := s.bus.Subscribe(events.EventEventCreated)
	configUpdated := s.bus.Subscribe(events.EventConfigUpdated)
	programCreated := s.bus.Subscribe(events.EventProgramCreated)
	programUpdated := s.bus.Subscribe(events.EventProgramUpdated)
	programDeleted := s.bus.Subscribe(events.EventProgramDeleted)

	// Live events
	programStarted := s.bus.Subscribe(events.EventProgramStarted)
	programCompleted := s.bus.Subscribe(events.EventProgramCompleted)
	programPostponed := s.bus.Subscribe(events.EventProgramPostponed)

	// Schedule events
	scheduleRecalculated := s.bus.Subscribe(events.EventScheduleRecalculated)
	scheduleConflict := s.bus.Subscribe(events.EventScheduleConflict)

	defer func() {
		s.bus.Unsubscribe(events.EventEventCreated, eventCreated)
		s.bus.Unsubscribe(events.EventConfigUpdated, configUpdated)
		s.bus.Unsubscribe(events.EventProgramCreated, programCreated)
		s.bus.Unsubscribe(events.EventProgramUpdated, programUpdated)
		s.bus.Unsubscribe(events.EventProgramDeleted, programDeleted)
		s.bus.Unsubscribe(events.EventProgramStarted, programStarted)
		s.bus.Unsubscribe(events.EventProgramCompleted, programCompleted)
		s.bus.Unsubscribe(events.EventProgramPostponed, programPostponed)
		s.bus.Unsubscribe(events.EventScheduleRecalculated, scheduleRecalculated)
		s.bus.Unsubscribe(events.EventScheduleConflict, scheduleConflict)
	}()

	s.logger.Info().Msg("audit service started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return

		case payload := <-eventCreated:
			s.logAuditEntry(ctx, models.AuditActionEventCreate, payload)

		case payload := <-configUpdated:
			s.logAuditEntry(ctx, models.AuditActionEventConfigUpdate, payload)

		case payload := <-programCreated:
			s.logAuditEntry(ctx, models.AuditActionProgramCreate, payload)

		case payload := <-programUpdated:
			s.logAuditEntry(ctx, models.AuditActionProgramUpdate, payload)

		case payload := <-programDeleted:
			s.logAuditEntry(ctx, models.AuditActionProgramDelete, payload)

		case payload := <-programStarted:
			s.logAuditEntry(ctx, models.AuditActionProgramStart, payload)

		case payload := <-programCompleted:
			s.logAuditEntry(ctx, models.AuditActionProgramComplete, payload)

		case payload := <-programPostponed:
			s.logAuditEntry(ctx, models.AuditActionProgramPostpone, payload)

		case payload := <-scheduleRecalculated:
			action := models.AuditActionScheduleRecalc
			if payload.String("trigger") == program.TriggerReorder {
				action = models.AuditActionScheduleReorder
			}
			s.logAuditEntry(ctx, action, payload)

		case payload := <-scheduleConflict:
			s.logAuditEntry(ctx, models.AuditActionScheduleConflict, payload)
		}
	}
}

// logAuditEntry creates an audit log entry from an event payload.
func (s *Service) logAuditEntry(ctx context.Context, action models.AuditAction, payload events.Payload) {
	entry := &models.AuditLog{
		ID:      uuid.NewString(),
		EventID: payload.String("event_id"),
		Actor:   payload.String("actor"),
		Action:  action,
		Details: make(map[string]any),
	}

	entry.ResourceType, _, _ = strings.Cut(string(action), ".")
	entry.ResourceID = entry.EventID
	if programID := payload.String("program_id"); programID != "" {
		entry.ResourceID = programID
	}

	// Copy remaining fields to details
	for k, v := range payload {
		switch k {
		case "event_id", "actor", "program_id":
			// Already extracted
		default:
			entry.Details[k] = v
		}
	}

	if err := s.Log(ctx, entry); err != nil {
		s.logger.Error().Err(err).
			Str("action", string(action)).
			Str("event_id", entry.EventID).
			Msg("failed to log audit entry")
	}
}

// Log records an audit entry directly (for non-event-bus actions).
func (s *Service) Log(ctx context.Context, entry *models.AuditLog) error {
	now := time.Now().UTC()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = now
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Details == nil {
		entry.Details = make(map[string]any)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return err
	}

	s.logger.Debug().
		Str("action", string(entry.Action)).
		Str("id", entry.ID).
		Msg("audit entry logged")

	return nil
}

// QueryFilters defines filters for querying audit logs.
type QueryFilters struct {
	EventID    *string
	Action     *models.AuditAction
	ResourceID *string
	StartTime  *time.Time
	EndTime    *time.Time
	Limit      int
	Offset     int
}

// Query retrieves audit logs with filters.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.AuditLog, int64, error) {
	var logs []models.AuditLog
	var total int64

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})

	if filters.EventID != nil {
		query = query.Where("event_id = ?", *filters.EventID)
	}
	if filters.Action != nil {
		query = query.Where("action = ?", *filters.Action)
	}
	if filters.ResourceID != nil {
		query = query.Where("resource_id = ?", *filters.ResourceID)
	}
	if filters.StartTime != nil {
		query = query.Where("timestamp >= ?", *filters.StartTime)
	}
	if filters.EndTime != nil {
		query = query.Where("timestamp <= ?", *filters.EndTime)
	}

	// Count total
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Apply pagination
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	} else {
		query = query.Limit(100) // Default limit
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	// Order by timestamp descending (most recent first)
	if err := query.Order("timestamp DESC").Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
