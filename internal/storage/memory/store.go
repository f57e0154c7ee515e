// Package memory is an in-process storage.Provider for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/julianstephens/daylitd/internal/errors"
	"github.com/julianstephens/daylitd/internal/models"
)

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu          sync.Mutex
	prefs       map[string]map[string]string
	calendar    map[string]models.CalendarEvent
	blocks      map[string]models.ScheduleBlock
	alerts      map[string]models.ScheduleAlert
	events      map[string]models.AgentEvent
	eventOrder  []string
	attempted   map[string]time.Time
	attempts    []models.ResolutionAttempt
	failUpdates map[string]error
}

func New() *Store {
	return &Store{
		prefs:       map[string]map[string]string{},
		calendar:    map[string]models.CalendarEvent{},
		blocks:      map[string]models.ScheduleBlock{},
		alerts:      map[string]models.ScheduleAlert{},
		events:      map[string]models.AgentEvent{},
		attempted:   map[string]time.Time{},
		failUpdates: map[string]error{},
	}
}

// FailBlockWrites makes every later update or delete of blockID return err.
// A nil err clears the failure.
func (s *Store) FailBlockWrites(blockID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failUpdates, blockID)
		return
	}
	s.failUpdates[blockID] = err
}

func (s *Store) Init(context.Context) error { return nil }
func (s *Store) Load(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }
func (s *Store) GetConfigPath() string      { return "memory:" }

func key(userID, id string) string { return userID + "/" + id }

func (s *Store) GetPreferences(_ context.Context, userID string) (models.UserPreferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefs := models.MapToPreferences(userID, s.prefs[userID])
	models.ApplyDefaultPreferences(&prefs)
	return prefs, nil
}

func (s *Store) SavePreferences(_ context.Context, prefs models.UserPreferences) error {
	if prefs.UserID == "" {
		return fmt.Errorf("preferences user id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[prefs.UserID] = models.PreferencesToMap(prefs)
	return nil
}

func (s *Store) SaveCalendarEvent(_ context.Context, event models.CalendarEvent) error {
	if event.ID == "" || event.UserID == "" {
		return fmt.Errorf("calendar event id and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendar[key(event.UserID, event.ID)] = event
	return nil
}

func (s *Store) GetCalendarEvent(_ context.Context, userID, id string) (models.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.calendar[key(userID, id)]
	if !ok {
		return models.CalendarEvent{}, fmt.Errorf("calendar event %s: %w", id, errors.ErrNotFound)
	}
	return event, nil
}

func (s *Store) ListCalendarEvents(_ context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CalendarEvent
	for _, ev := range s.calendar {
		if ev.UserID != userID || ev.DeletedAt != nil || !ev.HasTimes() {
			continue
		}
		if ev.StartAt.Before(to) && ev.EndAt.After(from) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartAt.Equal(*out[j].StartAt) {
			return out[i].StartAt.Before(*out[j].StartAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddBlock(_ context.Context, block models.ScheduleBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(block.UserID, block.ID)
	if _, exists := s.blocks[k]; exists {
		return fmt.Errorf("block %s already exists", block.ID)
	}
	s.blocks[k] = block
	return nil
}

func (s *Store) GetBlock(_ context.Context, userID, id string) (models.ScheduleBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.blocks[key(userID, id)]
	if !ok {
		return models.ScheduleBlock{}, fmt.Errorf("block %s: %w", id, errors.ErrNotFound)
	}
	return block, nil
}

func (s *Store) ListBlocks(_ context.Context, userID string, from, to time.Time) ([]models.ScheduleBlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduleBlock
	for _, b := range s.blocks {
		if b.UserID == userID && b.StartTime.Before(to) && b.EndTime.After(from) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateBlock(_ context.Context, block models.ScheduleBlock) error {
	if err := block.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdates[block.ID]; err != nil {
		return err
	}
	k := key(block.UserID, block.ID)
	if _, ok := s.blocks[k]; !ok {
		return fmt.Errorf("block %s: %w", block.ID, errors.ErrNotFound)
	}
	s.blocks[k] = block
	return nil
}

func (s *Store) DeleteBlock(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failUpdates[id]; err != nil {
		return err
	}
	k := key(userID, id)
	if _, ok := s.blocks[k]; !ok {
		return fmt.Errorf("block %s: %w", id, errors.ErrNotFound)
	}
	delete(s.blocks, k)
	return nil
}

func (s *Store) AddAlert(_ context.Context, alert models.ScheduleAlert) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertAlertLocked(alert)
}

func (s *Store) insertAlertLocked(alert models.ScheduleAlert) error {
	k := key(alert.UserID, alert.ID)
	if _, exists := s.alerts[k]; exists {
		return fmt.Errorf("alert %s already exists", alert.ID)
	}
	alert.RelatedBlockIDs = slices.Clone(alert.RelatedBlockIDs)
	s.alerts[k] = alert
	return nil
}

func (s *Store) GetAlert(_ context.Context, userID, id string) (models.ScheduleAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	alert, ok := s.alerts[key(userID, id)]
	if !ok {
		return models.ScheduleAlert{}, fmt.Errorf("alert %s: %w", id, errors.ErrNotFound)
	}
	return alert, nil
}

func (s *Store) ListAlerts(_ context.Context, userID string, status models.AlertStatus) ([]models.ScheduleAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ScheduleAlert
	for _, a := range s.alerts {
		if a.UserID == userID && (status == "" || a.Status == status) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateAlertStatus(_ context.Context, userID, id string, status models.AlertStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, id)
	alert, ok := s.alerts[k]
	if !ok {
		return fmt.Errorf("alert %s: %w", id, errors.ErrNotFound)
	}
	alert.Status = status
	alert.UpdatedAt = time.Now().UTC()
	s.alerts[k] = alert
	return nil
}

func (s *Store) RecordConflict(_ context.Context, alert models.ScheduleAlert, event models.AgentEvent) error {
	if err := alert.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEventLocked(event); err != nil {
		return err
	}
	if err := s.insertAlertLocked(alert); err != nil {
		return err
	}
	s.insertEventLocked(event)
	return nil
}

func (s *Store) AddEvent(_ context.Context, event models.AgentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkEventLocked(event); err != nil {
		return err
	}
	s.insertEventLocked(event)
	return nil
}

func (s *Store) checkEventLocked(event models.AgentEvent) error {
	if event.ID == "" || event.UserID == "" {
		return fmt.Errorf("event id and user id are required")
	}
	if _, exists := s.events[event.ID]; exists {
		return fmt.Errorf("event %s already exists", event.ID)
	}
	return nil
}

func (s *Store) insertEventLocked(event models.AgentEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.ProcessedBy = []string{}
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	sort.SliceStable(s.eventOrder, func(i, j int) bool {
		a, b := s.events[s.eventOrder[i]], s.events[s.eventOrder[j]]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) GetEvent(_ context.Context, id string) (models.AgentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return models.AgentEvent{}, fmt.Errorf("event %s: %w", id, errors.ErrNotFound)
	}
	event.ProcessedBy = slices.Clone(event.ProcessedBy)
	return event, nil
}

func (s *Store) ListUnprocessedEvents(_ context.Context, limit int) ([]models.AgentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AgentEvent
	for _, id := range s.eventOrder {
		event := s.events[id]
		if event.IsComplete() {
			continue
		}
		event.ProcessedBy = slices.Clone(event.ProcessedBy)
		out = append(out, event)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.attempted[out[i].ID].Before(s.attempted[out[j].ID])
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkAttempted(_ context.Context, eventID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return fmt.Errorf("event %s: %w", eventID, errors.ErrNotFound)
	}
	s.attempted[eventID] = at
	return nil
}

func (s *Store) MarkProcessed(_ context.Context, eventID, subscriber string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[eventID]
	if !ok {
		return false, fmt.Errorf("event %s: %w", eventID, errors.ErrNotFound)
	}
	if event.IsProcessedBy(subscriber) {
		return false, nil
	}
	event.ProcessedBy = append(event.ProcessedBy, subscriber)
	s.events[eventID] = event
	return true, nil
}

func (s *Store) AddResolutionAttempt(_ context.Context, attempt models.ResolutionAttempt) error {
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *Store) ListResolutionAttempts(_ context.Context, userID, alertID string) ([]models.ResolutionAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ResolutionAttempt
	for _, a := range s.attempts {
		if a.UserID == userID && a.AlertID == alertID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// EventCount returns the number of stored events, complete or not.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
