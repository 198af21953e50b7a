package storage

import (
	"context"
	"errors"
	"sync"

	"liquidityEngine/internal/model"
)

// EventSink receives committed engine events.
type EventSink interface {
	PutEvents(ctx context.Context, events []model.Event) error
}

// Multi fans events out to every sink, returning all failures joined.
type Multi []EventSink

func (m Multi) PutEvents(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutEvents(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory.
type MemorySink struct {
	mu     sync.Mutex
	events []model.Event
}

func (s *MemorySink) PutEvents(_ context.Context, events []model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Events returns a copy of everything received so far.
func (s *MemorySink) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Event, len(s.events))
	copy(out, s.events)
	return out
}
