package infra

import (
	"context"
	"sync"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// MemoryStore implements domain.StateStore in process memory.
// Used for tests and the --store=memory mode.
type MemoryStore struct {
	mu    sync.Mutex
	state domain.State
}

// NewMemoryStore creates a store holding the initial state.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: domain.InitialState()}
}

// NewMemoryStoreWithState creates a store seeded with s (for testing).
func NewMemoryStoreWithState(s domain.State) *MemoryStore {
	return &MemoryStore{state: s.Clone()}
}

// Load returns a copy of the current state.
func (m *MemoryStore) Load(ctx context.Context) (domain.State, error) {
	if err := ctx.Err(); err != nil {
		return domain.State{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), nil
}

// Update applies fn to a copy and swaps it in if fn succeeds.
func (m *MemoryStore) Update(ctx context.Context, fn func(*domain.State) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.Clone()
	if err := fn(&work); err != nil {
		return err
	}
	m.state = work
	return nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

var _ domain.StateStore = (*MemoryStore)(nil)
