// Package credstore persists the single opaque team access token that says
// whether a team is logged in on this device. It performs no validation,
// encryption or expiry; the server owns all of that.
package credstore

import (
	"context"
	"sync"
)

type Store interface {
	// Get returns the stored token and whether one was present.
	Get(ctx context.Context) (string, bool, error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Memory is a process-lifetime store, used by tests and by -ephemeral runs.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get(context.Context) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, m.token != "", nil
}

func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
