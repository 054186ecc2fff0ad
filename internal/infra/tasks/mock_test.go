//go:build !integration

package tasks

import (
	"context"
	"sync"
	"time"

	"workflow-dashboard/internal/domain"
	"workflow-dashboard/internal/infra/durable"
)

type mockLocker struct {
	mu      sync.Mutex
	held    map[string]string
	unlocks int
}

func newMockLocker() *mockLocker { return &mockLocker{held: map[string]string{}} }

func (m *mockLocker) TryLock(_ context.Context, key string, _ time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return "", domain.ErrLockHeld
	}
	m.held[key] = "token-" + key
	return m.held[key], nil
}

func (m *mockLocker) Unlock(_ context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.unlocks++
	return nil
}

func (m *mockLocker) isHeld(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

// mockRunner records attempts and returns the errors queued in results, then nil.
type mockRunner struct {
	mu       sync.Mutex
	attempts []durable.Attempt
	runIDs   []string
	results  []error
	RunFunc  func(ctx context.Context, run *durable.Run, jobID string) error
}

func (m *mockRunner) Run(ctx context.Context, run *durable.Run, jobID string) error {
	m.mu.Lock()
	m.attempts = append(m.attempts, run.Attempt)
	m.runIDs = append(m.runIDs, run.ID)
	var err error
	if len(m.results) > 0 {
		err, m.results = m.results[0], m.results[1:]
	}
	m.mu.Unlock()
	if m.RunFunc != nil {
		return m.RunFunc(ctx, run, jobID)
	}
	return err
}

func (m *mockRunner) calls() []durable.Attempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]durable.Attempt(nil), m.attempts...)
}
