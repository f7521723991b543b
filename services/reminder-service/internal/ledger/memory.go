package ledger

import (
	"context"
	"sync"
)

// Memory is a process-local ledger.
type Memory struct {
	mu      sync.Mutex
	entries map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]struct{}{}}
}

func (m *Memory) Claim(_ context.Context, appointmentID, label string) (bool, error) {
	k := key(appointmentID, label)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[k]; ok {
		return false, nil
	}
	m.entries[k] = struct{}{}
	return true, nil
}

func (m *Memory) Contains(_ context.Context, appointmentID, label string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key(appointmentID, label)]
	return ok, nil
}

func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	m.entries = map[string]struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
