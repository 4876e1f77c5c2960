/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/friendsincode/showrunner/internal/cache"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/telemetry"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// maxConcurrentWrites bounds the item writes of one schedule persist.
const maxConcurrentWrites = 8

// Store is the gorm implementation of Gateway plus the CRUD used by
// organizers.
type Store struct {
	db     *gorm.DB
	cache  eventCache
	logger zerolog.Logger
}

var _ Gateway = (*Store)(nil)

// eventCache is the part of the Redis cache the store uses. *cache.Cache
// satisfies it, including as a nil pointer.
type eventCache interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, bool)
	SetEvent(ctx context.Context, ev *models.Event) error
	InvalidateEvent(ctx context.Context, eventID string) error
}

// New creates a store. c may be nil.
func New(db *gorm.DB, c *cache.Cache, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cache:  c,
		logger: logger.With().Str("component", "store").Logger(),
	}
}

// CreateEvent inserts a new event.
func (s *Store) CreateEvent(ctx context.Context, ev *models.Event) error {
	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// ListEvents returns events ordered by start time.
func (s *Store) ListEvents(ctx context.Context) ([]models.Event, error) {
	var evs []models.Event
	if err := s.db.WithContext(ctx).Order("start_time ASC").Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return evs, nil
}

// FetchConfig returns an event, served from the cache when possible. The
// schedule revision always comes from the database.
func (s *Store) FetchConfig(ctx context.Context, eventID string) (*models.Event, error) {
	if ev, ok := s.cache.GetEvent(ctx, eventID); ok {
		rev, err := fetchRevision(s.db.WithContext(ctx), eventID)
		if err != nil {
			return nil, fmt.Errorf("fetch schedule revision: %w", err)
		}
		ev.ScheduleRevision = rev
		return ev, nil
	}

	var ev models.Event
	err := s.db.WithContext(ctx).Where("id = ?", eventID).First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch event: %w", err)
	}

	if err := s.cache.SetEvent(ctx, &ev); err != nil {
		s.logger.Debug().Err(err).Str("event_id", eventID).Msg("failed to cache event")
	}
	return &ev, nil
}

// PersistConfigChange writes the set fields of patch.
func (s *Store) PersistConfigChange(ctx context.Context, eventID string, patch ConfigPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", eventID).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}

	s.invalidate(ctx, eventID)
	return nil
}

// CreateItem inserts a program item.
func (s *Store) CreateItem(ctx context.Context, item *models.ProgramItem) error {
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	return nil
}

// GetItem loads a non-deleted program item.
func (s *Store) GetItem(ctx context.Context, id string) (*models.ProgramItem, error) {
	var item models.ProgramItem
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("program %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch program: %w", err)
	}
	return &item, nil
}

// CountItems counts the non-deleted items of an event.
func (s *Store) CountItems(ctx context.Context, eventID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.ProgramItem{}).Where("event_id = ?", eventID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count programs: %w", err)
	}
	return int(n), nil
}

// DeleteItem soft-deletes a program item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ProgramItem{})
	if res.Error != nil {
		return fmt.Errorf("delete program: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("program %s: %w", id, ErrNotFound)
	}
	return nil
}

// FetchItems returns the non-deleted items of an event ordered by order index.
func (s *Store) FetchItems(ctx context.Context, eventID string) ([]models.ProgramItem, error) {
	var items []models.ProgramItem
	err := s.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("order_index ASC").
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("fetch programs: %w", err)
	}
	return items, nil
}

// PersistItem writes the set fields of patch.
func (s *Store) PersistItem(ctx context.Context, id string, patch ItemPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.ProgramItem{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update program %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("program %s: %w", id, ErrNotFound)
	}
	return nil
}

// PersistSchedule writes the calculator-owned fields of every item
// concurrently and then bumps the schedule revision.
//
// There is no transaction across the item writes. When another writer bumped
// the revision since baseRevision was read, the writes still land, the
// revision is bumped anyway and the result is flagged as a conflict.
func (s *Store) PersistSchedule(ctx context.Context, eventID string, baseRevision int64, items []models.ProgramItem) (ScheduleResult, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentWrites)
	for i := range items {
		item := items[i]
		g.Go(func() error {
			return s.db.WithContext(gctx).
				Model(&models.ProgramItem{}).
				Where("id = ?", item.ID).
				Updates(scheduleColumns(&item)).Error
		})
	}
	if err := g.Wait(); err != nil {
		return ScheduleResult{}, fmt.Errorf("persist schedule: %w", err)
	}

	result, err := s.bumpRevision(s.db.WithContext(ctx), eventID, baseRevision, len(items))
	if err != nil {
		return ScheduleResult{}, err
	}
	s.invalidate(ctx, eventID)
	return result, nil
}

// PersistTransition applies patch to one item and writes the schedule that
// follows from it in a single transaction. Either the status change and the
// whole schedule land, or nothing does.
func (s *Store) PersistTransition(ctx context.Context, eventID string, baseRevision int64, id string, patch ItemPatch, items []models.ProgramItem) (ScheduleResult, error) {
	var result ScheduleResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cols := patch.Columns(); len(cols) > 0 {
			res := tx.Model(&models.ProgramItem{}).Where("id = ?", id).Updates(cols)
			if res.Error != nil {
				return fmt.Errorf("update program %s: %w", id, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("program %s: %w", id, ErrNotFound)
			}
		}
		for i := range items {
			if err := tx.Model(&models.ProgramItem{}).
				Where("id = ?", items[i].ID).
				Updates(scheduleColumns(&items[i])).Error; err != nil {
				return fmt.Errorf("persist schedule: %w", err)
			}
		}
		var err error
		result, err = s.bumpRevision(tx, eventID, baseRevision, len(items))
		return err
	})
	if err != nil {
		return ScheduleResult{}, err
	}
	s.invalidate(ctx, eventID)
	return result, nil
}

func scheduleColumns(item *models.ProgramItem) map[string]any {
	return map[string]any{
		"day":                  item.Day,
		"order_index":          item.OrderIndex,
		"scheduled_start_time": item.ScheduledStartTime.UTC(),
	}
}

// bumpRevision increments the schedule revision, flagging a conflict when
// another writer moved it away from baseRevision.
func (s *Store) bumpRevision(db *gorm.DB, eventID string, baseRevision int64, items int) (ScheduleResult, error) {
	result := ScheduleResult{Revision: baseRevision + 1}
	res := db.Model(&models.Event{}).
		Where("id = ? AND schedule_revision = ?", eventID, baseRevision).
		Update("schedule_revision", gorm.Expr("schedule_revision + 1"))
	if res.Error != nil {
		return ScheduleResult{}, fmt.Errorf("bump schedule revision: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return result, nil
	}

	result.Conflict = true
	if err := db.Model(&models.Event{}).
		Where("id = ?", eventID).
		Update("schedule_revision", gorm.Expr("schedule_revision + 1")).Error; err != nil {
		return ScheduleResult{}, fmt.Errorf("bump schedule revision: %w", err)
	}
	if rev, err := fetchRevision(db, eventID); err == nil {
		result.Revision = rev
	}
	telemetry.ScheduleConflictsTotal.Inc()
	s.logger.Warn().
		Err(ErrStaleRevision).
		Str("event_id", eventID).
		Int64("base_revision", baseRevision).
		Int64("revision", result.Revision).
		Int("items", items).
		Msg("schedule written over a concurrent recalculation")
	return result, nil
}

func fetchRevision(db *gorm.DB, eventID string) (int64, error) {
	var revs []int64
	if err := db.Model(&models.Event{}).Where("id = ?", eventID).Pluck("schedule_revision", &revs).Error; err != nil {
		return 0, err
	}
	if len(revs) == 0 {
		return 0, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	return revs[0], nil
}

func (s *Store) invalidate(ctx context.Context, eventID string) {
	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		s.logger.Debug().Err(err).Str("event_id", eventID).Msg("failed to invalidate event cache")
	}
}

func encodeParticipants(names []string) string {
	if names == nil {
		names = []string{}
	}
	data, _ := json.Marshal(names)
	return string(data)
}
