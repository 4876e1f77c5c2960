/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package program implements the organizer operations on events and their
// program items. Every change that affects timing ends in a full schedule
// recalculation.
package program

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/schedule"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Creation defaults.
const (
	DefaultEventLength          = 8 * time.Hour
	DefaultBreakDurationMinutes = 30
	DefaultMaxAdmins            = 5
	DefaultDurationMinutes      = 5
)

// Organizer errors.
var (
	ErrEmptyTitle     = errors.New("event title is required")
	ErrStatusReadOnly = errors.New("program status is changed through live control")
	ErrInvalidStatus  = errors.New("unknown program status")
)

// Repository is the persistence the organizer service needs.
type Repository interface {
	store.Gateway
	CreateEvent(ctx context.Context, ev *models.Event) error
	ListEvents(ctx context.Context) ([]models.Event, error)
	CreateItem(ctx context.Context, item *models.ProgramItem) error
	GetItem(ctx context.Context, id string) (*models.ProgramItem, error)
	CountItems(ctx context.Context, eventID string) (int, error)
	DeleteItem(ctx context.Context, id string) error
}

// Service implements organizer operations.
type Service struct {
	repo    Repository
	planner *Planner
	bus     events.Broker
	logger  zerolog.Logger
	maxDays int

	// Now returns the current time. Replaced in tests.
	Now func() time.Time
}

// NewService creates an organizer service. maxDays is the day cap given to
// new events.
func NewService(repo Repository, planner *Planner, bus events.Broker, maxDays int, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		planner: planner,
		bus:     bus,
		logger:  logger.With().Str("component", "program").Logger(),
		maxDays: maxDays,
		Now:     time.Now,
	}
}

// EventInput carries the fields of a new event. Zero values get defaults.
type EventInput struct {
	Title                string     `json:"title,omitempty"`
	OwnerID              string     `json:"owner_id,omitempty"`
	StartTime            time.Time  `json:"start_time,omitempty"`
	EndTime              time.Time  `json:"end_time,omitempty"`
	BreakStartTime       *time.Time `json:"break_start_time,omitempty"`
	BreakDurationMinutes *int       `json:"break_duration_minutes,omitempty"`
	MaxDays              int        `json:"max_days,omitempty"`
	MaxAdmins            int        `json:"max_admins,omitempty"`
	PublicFormEnabled    bool       `json:"public_form_enabled,omitempty"`
}

// CreateEvent creates an event. Without explicit times the window runs from
// now for eight hours with a 30 minute break and no break time set.
func (s *Service) CreateEvent(ctx context.Context, in EventInput) (*models.Event, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	now := s.Now().UTC().Truncate(time.Minute)
	ev := &models.Event{
		ID:                   uuid.NewString(),
		Title:                title,
		OwnerID:              in.OwnerID,
		StartTime:            in.StartTime,
		EndTime:              in.EndTime,
		BreakStartTime:       in.BreakStartTime,
		BreakDurationMinutes: DefaultBreakDurationMinutes,
		MaxDays:              in.MaxDays,
		MaxAdmins:            in.MaxAdmins,
		PublicFormEnabled:    in.PublicFormEnabled,
	}
	if ev.StartTime.IsZero() {
		ev.StartTime = now
	}
	if ev.EndTime.IsZero() {
		ev.EndTime = ev.StartTime.Add(DefaultEventLength)
	}
	if in.BreakDurationMinutes != nil {
		ev.BreakDurationMinutes = *in.BreakDurationMinutes
	}
	if ev.MaxDays == 0 {
		ev.MaxDays = s.maxDays
	}
	if ev.MaxAdmins == 0 {
		ev.MaxAdmins = DefaultMaxAdmins
	}

	if err := ev.Window().Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateEvent(ctx, ev); err != nil {
		return nil, err
	}

	s.logger.Info().Str("event_id", ev.ID).Str("title", ev.Title).Msg("event created")
	s.bus.Publish(events.EventEventCreated, events.Payload{"event_id": ev.ID, "actor": ev.OwnerID})
	return ev, nil
}

// Events lists all events.
func (s *Service) Events(ctx context.Context) ([]models.Event, error) {
	return s.repo.ListEvents(ctx)
}

// Event returns one event.
func (s *Service) Event(ctx context.Context, eventID string) (*models.Event, error) {
	return s.repo.FetchConfig(ctx, eventID)
}

// UpdateConfig validates and stores a configuration change. A change to the
// time window invalidates every computed start time and triggers a full
// recalculation.
func (s *Service) UpdateConfig(ctx context.Context, eventID string, patch store.ConfigPatch) (*models.Event, error) {
	current, err := s.repo.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}

	next := *current
	patch.Apply(&next)
	if patch.Title != nil && strings.TrimSpace(next.Title) == "" {
		return nil, ErrEmptyTitle
	}
	if err := next.Window().Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.PersistConfigChange(ctx, eventID, patch); err != nil {
		return nil, err
	}
	s.bus.Publish(events.EventConfigUpdated, events.Payload{"event_id": eventID})

	if patch.TouchesWindow() {
		if _, err := s.planner.Recalculate(ctx, eventID, TriggerConfig); err != nil {
			return nil, err
		}
	}
	return s.repo.FetchConfig(ctx, eventID)
}

// ItemInput carries the fields of a new program item.
type ItemInput struct {
	Name            string   `json:"name,omitempty"`
	Participants    []string `json:"participants,omitempty"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Day             int      `json:"day,omitempty"`

	Materials    string `json:"materials,omitempty"`
	DressStatus  string `json:"dress_status,omitempty"`
	Rating       int    `json:"rating,omitempty"`
	Remarks      string `json:"remarks,omitempty"`
	Category     string `json:"category,omitempty"`
	ProgramClass string `json:"program_class,omitempty"`
	Division     string `json:"division,omitempty"`
}

// AddItem appends a program item to the end of the running order.
func (s *Service) AddItem(ctx context.Context, eventID string, in ItemInput) (*models.ProgramItem, error) {
	ev, err := s.repo.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountItems(ctx, eventID)
	if err != nil {
		return nil, err
	}

	item := &models.ProgramItem{
		ID:              uuid.NewString(),
		EventID:         eventID,
		Name:            strings.TrimSpace(in.Name),
		Participants:    schedule.Participants(in.Participants),
		DurationMinutes: in.DurationMinutes,
		Day:             in.Day,
		OrderIndex:      count,
		Status:          models.ProgramPending,
		Materials:       in.Materials,
		DressStatus:     in.DressStatus,
		Rating:          in.Rating,
		Remarks:         in.Remarks,
		Category:        in.Category,
		ProgramClass:    in.ProgramClass,
		Division:        in.Division,
	}
	if item.DurationMinutes == 0 {
		item.DurationMinutes = DefaultDurationMinutes
	}
	if item.Day == 0 {
		item.Day = 1
	}
	item.Day = ev.Window().ClampDay(item.Day)
	if err := schedule.ValidateItem(item); err != nil {
		return nil, err
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}
	s.bus.Publish(events.EventProgramCreated, events.Payload{"event_id": eventID, "program_id": item.ID})

	planned, err := s.planner.Recalculate(ctx, eventID, TriggerCreate)
	if err != nil {
		return nil, err
	}
	return find(planned, item.ID, item), nil
}

// UpdateItem merges patch into a program item. Changes to duration, day or
// order trigger a recalculation.
func (s *Service) UpdateItem(ctx context.Context, id string, patch store.ItemPatch) (*models.ProgramItem, error) {
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, ErrInvalidStatus
		}
		return nil, ErrStatusReadOnly
	}
	current, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Participants != nil {
		cleaned := schedule.Participants(*patch.Participants)
		patch.Participants = &cleaned
	}
	next := *current
	patch.Apply(&next)
	if err := schedule.ValidateItem(&next); err != nil {
		return nil, err
	}

	if err := s.repo.PersistItem(ctx, id, patch); err != nil {
		return nil, err
	}
	s.bus.Publish(events.EventProgramUpdated, events.Payload{"event_id": current.EventID, "program_id": id})

	if patch.DurationMinutes == nil && patch.Day == nil && patch.OrderIndex == nil {
		return &next, nil
	}
	planned, err := s.planner.Recalculate(ctx, current.EventID, TriggerUpdate)
	if err != nil {
		return nil, err
	}
	return find(planned, id, &next), nil
}

// DeleteItem soft-deletes a program item and closes the gap it leaves in the
// running order.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	current, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteItem(ctx, id); err != nil {
		return err
	}
	s.bus.Publish(events.EventProgramDeleted, events.Payload{"event_id": current.EventID, "program_id": id})

	_, err = s.planner.Recalculate(ctx, current.EventID, TriggerDelete)
	return err
}

// Items returns the running order of an event.
func (s *Service) Items(ctx context.Context, eventID string) ([]models.ProgramItem, error) {
	if _, err := s.repo.FetchConfig(ctx, eventID); err != nil {
		return nil, err
	}
	items, err := s.repo.FetchItems(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return schedule.SortByOrder(items), nil
}

// Reorder applies a complete running order given as item ids.
func (s *Service) Reorder(ctx context.Context, eventID string, orderedIDs []string) ([]models.ProgramItem, error) {
	ev, err := s.repo.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FetchItems(ctx, eventID)
	if err != nil {
		return nil, err
	}
	reordered, err := schedule.Reorder(items, orderedIDs)
	if err != nil {
		return nil, err
	}
	return s.commitOrder(ctx, ev, reordered)
}

// Move drags the item at position from to position to.
func (s *Service) Move(ctx context.Context, eventID string, from, to int) ([]models.ProgramItem, error) {
	ev, err := s.repo.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FetchItems(ctx, eventID)
	if err != nil {
		return nil, err
	}
	moved, err := schedule.Move(items, from, to)
	if err != nil {
		return nil, err
	}
	return s.commitOrder(ctx, ev, moved)
}

func (s *Service) commitOrder(ctx context.Context, ev *models.Event, items []models.ProgramItem) ([]models.ProgramItem, error) {
	planned, err := schedule.Calculate(items, ev.Window())
	if err != nil {
		return nil, err
	}
	if err := s.planner.Commit(ctx, ev, planned, TriggerReorder); err != nil {
		return nil, err
	}
	return planned, nil
}

// Recalculate forces a full recalculation.
func (s *Service) Recalculate(ctx context.Context, eventID string) ([]models.ProgramItem, error) {
	return s.planner.Recalculate(ctx, eventID, TriggerManual)
}

// Export renders the current running order as an iCalendar document.
func (s *Service) Export(ctx context.Context, eventID string) (*schedule.ICalExport, error) {
	ev, err := s.repo.FetchConfig(ctx, eventID)
	if err != nil {
		return nil, err
	}
	items, err := s.repo.FetchItems(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return schedule.ExportICal(ev, items, s.Now()), nil
}

func find(items []models.ProgramItem, id string, fallback *models.ProgramItem) *models.ProgramItem {
	for i := range items {
		if items[i].ID == id {
			return &items[i]
		}
	}
	return fallback
}
