package durable

import (
	"context"
	"sync"
	"time"
)

type EventKind string

const (
	EventStarted  EventKind = "started"
	EventFinished EventKind = "finished"
	EventFailed   EventKind = "failed"
)

// StepEvent is one journal line of a run.
type StepEvent struct {
	RunID    string        `json:"run_id"`
	Step     string        `json:"step"`
	Kind     EventKind     `json:"kind"`
	Attempt  int           `json:"attempt"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns,omitempty"`
	At       time.Time     `json:"at"`
}

type Journal interface {
	Record(ctx context.Context, ev StepEvent) error
}

type NopJournal struct{}

func (NopJournal) Record(context.Context, StepEvent) error { return nil }

// MemoryJournal keeps events in process; used by the inline runner in tests
// and local development.
type MemoryJournal struct {
	mu     sync.Mutex
	events []StepEvent
}

func (m *MemoryJournal) Record(_ context.Context, ev StepEvent) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

func (m *MemoryJournal) Events() []StepEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StepEvent, len(m.events))
	copy(out, m.events)
	return out
}
