/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package webhooks delivers signed live progression notifications to
// endpoints registered per event.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/showrunner/internal/events"
	"github.com/friendsincode/showrunner/internal/live"
	"github.com/friendsincode/showrunner/internal/models"
	"github.com/friendsincode/showrunner/internal/store"
	"github.com/friendsincode/showrunner/internal/telemetry"
)

// Header names set on every delivery.
const (
	HeaderEvent     = "X-Showrunner-Event"
	HeaderTimestamp = "X-Showrunner-Timestamp"
	HeaderSignature = "X-Showrunner-Signature"
)

// EventTest is the event name of a test delivery.
const EventTest = "test"

// Errors returned by target management.
var (
	ErrInvalidURL   = errors.New("webhook url must be an absolute http or https url")
	ErrUnknownEvent = errors.New("unknown webhook event type")
)

// Deliverable lists the bus events that can be forwarded to webhooks.
var Deliverable = []events.EventType{
	events.EventProgramStarted,
	events.EventProgramCompleted,
	events.EventProgramPostponed,
	events.EventLiveDelay,
}

// SnapshotSource computes the live view attached to a delivery.
type SnapshotSource interface {
	Snapshot(ctx context.Context, eventID string) (*live.Snapshot, error)
}

// Payload is the JSON body posted to webhook endpoints.
type Payload struct {
	Event        string          `json:"event"`
	Timestamp    time.Time       `json:"timestamp"`
	EventID      string          `json:"event_id"`
	ProgramID    string          `json:"program_id,omitempty"`
	Current      *ProgramPayload `json:"current,omitempty"`
	Next         *ProgramPayload `json:"next,omitempty"`
	DelayMinutes int             `json:"delay_minutes"`
	Label        string          `json:"label"`
}

// ProgramPayload is a program item as seen by webhook consumers.
type ProgramPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Participants []string  `json:"participants"`
	Day          int       `json:"day"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       string    `json:"status"`
}

// Service handles webhook registration and delivery.
type Service struct {
	db     *gorm.DB
	bus    events.Broker
	source SnapshotSource
	logger zerolog.Logger

	// Client sends deliveries. Replaced in tests.
	Client *http.Client

	inflight sync.WaitGroup
}

// NewService creates a webhook service.
func NewService(db *gorm.DB, bus events.Broker, source SnapshotSource, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		bus:    bus,
		source: source,
		logger: logger.With().Str("component", "webhooks").Logger(),
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type busMessage struct {
	typ     events.EventType
	payload events.Payload
}

// Start forwards live events to registered targets until ctx is cancelled.
// Deliveries still in flight are awaited before it returns.
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("webhook service starting")

	merged := make(chan busMessage, 32)

	var wg sync.WaitGroup
	for _, typ := range Deliverable {
		sub := s.bus.Subscribe(typ)
		wg.Add(1)
		go func(typ events.EventType, sub events.Subscriber) {
			defer wg.Done()
			defer s.bus.Unsubscribe(typ, sub)
			for {
				select {
				case <-ctx.Done():
					return
				case p := <-sub:
					select {
					case merged <- busMessage{typ: typ, payload: p}:
					case <-ctx.Done():
						return
					}
				}
			}
		}(typ, sub)
	}

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.inflight.Wait()
			s.logger.Info().Msg("webhook service stopped")
			return
		case msg := <-merged:
			s.handle(ctx, msg.typ, msg.payload)
		}
	}
}

func (s *Service) handle(ctx context.Context, typ events.EventType, p events.Payload) {
	eventID := p.String("event_id")
	if eventID == "" {
		return
	}

	targets, err := s.activeTargets(ctx, eventID, string(typ))
	if err != nil {
		s.logger.Error().Err(err).Str("event_id", eventID).Msg("failed to fetch webhook targets")
		return
	}
	if len(targets) == 0 {
		return
	}

	payload := Payload{
		Event:     string(typ),
		Timestamp: time.Now().UTC(),
		EventID:   eventID,
		ProgramID: p.String("program_id"),
	}
	if snap, err := s.source.Snapshot(ctx, eventID); err != nil {
		s.logger.Warn().Err(err).Str("event_id", eventID).Msg("webhook snapshot unavailable")
	} else {
		payload.attach(snap)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to marshal webhook payload")
		return
	}

	for _, target := range targets {
		s.inflight.Add(1)
		go func(target models.WebhookTarget) {
			defer s.inflight.Done()
			_ = s.deliver(ctx, target, payload.Event, body)
		}(target)
	}
}

func (p *Payload) attach(snap *live.Snapshot) {
	p.DelayMinutes = snap.DelayMinutes
	p.Label = snap.Label()
	p.Current = programPayload(snap.Current)
	if len(snap.UpNext) > 0 {
		p.Next = programPayload(&snap.UpNext[0])
	}
}

func programPayload(item *models.ProgramItem) *ProgramPayload {
	if item == nil {
		return nil
	}
	return &ProgramPayload{
		ID:           item.ID,
		Name:         item.Name,
		Participants: item.Participants,
		Day:          item.Day,
		StartsAt:     item.ScheduledStartTime,
		EndsAt:       item.EndTime(),
		Status:       string(item.Status),
	}
}

func (s *Service) activeTargets(ctx context.Context, eventID, eventType string) ([]models.WebhookTarget, error) {
	var all []models.WebhookTarget
	if err := s.db.WithContext(ctx).Where("event_id = ? AND active = ?", eventID, true).Find(&all).Error; err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if handlesEvent(t, eventType) {
			out = append(out, t)
		}
	}
	return out, nil
}

func handlesEvent(t models.WebhookTarget, eventType string) bool {
	if strings.TrimSpace(t.Events) == "" {
		return true
	}
	for _, e := range strings.Split(t.Events, ",") {
		if strings.TrimSpace(e) == eventType {
			return true
		}
	}
	return false
}

// deliver posts body to target and records the attempt.
func (s *Service) deliver(ctx context.Context, target models.WebhookTarget, eventType string, body []byte) error {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.URL, bytes.NewReader(body))
	if err != nil {
		s.record(target, eventType, body, 0, err, start)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Showrunner-Webhook/1.0")
	req.Header.Set(HeaderEvent, eventType)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", start.Unix()))
	if target.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(body, target.Secret))
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		s.logger.Warn().Err(err).Str("webhook", target.ID).Str("url", target.URL).Msg("webhook delivery failed")
		s.record(target, eventType, body, 0, err, start)
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		s.logger.Warn().Str("webhook", target.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook returned error status")
	} else {
		s.logger.Debug().Str("webhook", target.ID).Str("event", eventType).Int("status", resp.StatusCode).Msg("webhook delivered")
	}
	s.record(target, eventType, body, resp.StatusCode, err, start)
	return err
}

func (s *Service) record(target models.WebhookTarget, eventType string, body []byte, status int, deliveryErr error, start time.Time) {
	result := "delivered"
	entry := &models.WebhookLog{
		ID:         uuid.NewString(),
		TargetID:   target.ID,
		Event:      eventType,
		Payload:    string(body),
		StatusCode: status,
		Duration:   int(time.Since(start).Milliseconds()),
	}
	if deliveryErr != nil {
		entry.Error = deliveryErr.Error()
		result = "failed"
	}
	telemetry.WebhookDeliveriesTotal.WithLabelValues(result).Inc()

	if err := s.db.Create(entry).Error; err != nil {
		s.logger.Error().Err(err).Msg("failed to log webhook delivery")
	}
}

// Sign returns the HMAC-SHA256 signature header value for payload.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// CreateTarget registers an endpoint for an event. eventTypes may be empty
// to receive every deliverable event.
func (s *Service) CreateTarget(ctx context.Context, eventID, rawURL string, eventTypes []string) (*models.WebhookTarget, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	for _, e := range eventTypes {
		if !deliverable(e) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, e)
		}
	}
	var ev models.Event
	if err := s.db.WithContext(ctx).Select("id").First(&ev, "id = ?", eventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	target := models.NewWebhookTarget(eventID, rawURL, strings.Join(eventTypes, ","))
	if err := s.db.WithContext(ctx).Create(target).Error; err != nil {
		return nil, err
	}
	return target, nil
}

func deliverable(name string) bool {
	for _, t := range Deliverable {
		if string(t) == name {
			return true
		}
	}
	return false
}

// ListTargets returns the targets registered for an event.
func (s *Service) ListTargets(ctx context.Context, eventID string) ([]models.WebhookTarget, error) {
	var out []models.WebhookTarget
	err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// DeleteTarget removes a target and its delivery log.
func (s *Service) DeleteTarget(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.WebhookTarget{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return store.ErrNotFound
		}
		return tx.Delete(&models.WebhookLog{}, "target_id = ?", id).Error
	})
}

// Deliveries returns the most recent delivery attempts of a target.
func (s *Service) Deliveries(ctx context.Context, targetID string, limit int) ([]models.WebhookLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.WebhookLog
	err := s.db.WithContext(ctx).Where("target_id = ?", targetID).Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Test sends a test payload to a target synchronously.
func (s *Service) Test(ctx context.Context, id string) error {
	var target models.WebhookTarget
	if err := s.db.WithContext(ctx).First(&target, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.ErrNotFound
		}
		return err
	}

	body, err := json.Marshal(Payload{
		Event:     EventTest,
		Timestamp: time.Now().UTC(),
		EventID:   target.EventID,
		Label:     "ON TIME",
	})
	if err != nil {
		return err
	}
	return s.deliver(ctx, target, EventTest, body)
}
