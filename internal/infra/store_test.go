package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// storeFactories builds each StateStore implementation in a temp dir.
func storeFactories() map[string]func(t *testing.T) domain.StateStore {
	return map[string]func(t *testing.T) domain.StateStore{
		"memory": func(t *testing.T) domain.StateStore {
			return NewMemoryStore()
		},
		"file": func(t *testing.T) domain.StateStore {
			s, err := NewFileStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"encrypted": func(t *testing.T) domain.StateStore {
			key, err := GenerateKey()
			require.NoError(t, err)
			s, err := NewEncryptedStore(t.TempDir(), key, newMockProcessManager())
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStateStore_Contract(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("fresh store is locked with defaults", func(t *testing.T) {
				s := factory(t)
				state, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Empty(t, state.Patterns)
				assert.Equal(t, domain.StateLocked, state.Session.State())
				assert.Equal(t, domain.DefaultSettings(), state.Settings)
			})

			t.Run("update round trips every field", func(t *testing.T) {
				s := factory(t)
				err := s.Update(ctx, func(st *domain.State) error {
					st.Patterns = append(st.Patterns,
						domain.Pattern{ID: "b", Raw: "b.com", Enabled: true, CreatedAt: created},
						domain.Pattern{ID: "a", Raw: "a.com/*", Enabled: false, Temporary: true, CreatedAt: created},
					)
					st.Session = domain.Session{
						GoalText:     "Ship the quarterly report",
						GoalSetAt:    created,
						Locked:       false,
						FocusEnabled: true,
						LastResetAt:  created.Add(-time.Hour),
					}
					st.Settings = domain.Settings{ResetHour: 0, StrictMode: false}
					return nil
				})
				require.NoError(t, err)

				state, err := s.Load(ctx)
				require.NoError(t, err)
				require.Len(t, state.Patterns, 2)
				assert.Equal(t, "b", state.Patterns[0].ID, "insertion order kept")
				assert.Equal(t, "a.com/*", state.Patterns[1].Raw)
				assert.False(t, state.Patterns[1].Enabled)
				assert.True(t, state.Patterns[1].Temporary)
				assert.True(t, created.Equal(state.Patterns[0].CreatedAt))
				assert.Equal(t, "Ship the quarterly report", state.Session.GoalText)
				assert.True(t, created.Equal(state.Session.GoalSetAt))
				assert.Equal(t, domain.StateUnlockedFocusOn, state.Session.State())
				assert.Equal(t, domain.Settings{ResetHour: 0, StrictMode: false}, state.Settings)
			})

			t.Run("failed update writes nothing", func(t *testing.T) {
				s := factory(t)
				boom := errors.New("rejected")
				err := s.Update(ctx, func(st *domain.State) error {
					st.Patterns = append(st.Patterns, domain.Pattern{ID: "x", Raw: "x.com", Enabled: true})
					st.Session.Locked = false
					return boom
				})
				assert.ErrorIs(t, err, boom)

				state, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Empty(t, state.Patterns)
				assert.True(t, state.Session.Locked)
			})

			t.Run("concurrent read-modify-write loses nothing", func(t *testing.T) {
				s := factory(t)
				const n = 10
				var wg sync.WaitGroup
				for i := 0; i < n; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						err := s.Update(ctx, func(st *domain.State) error {
							raw := fmt.Sprintf("site%d.com", i)
							st.Patterns = append(st.Patterns, domain.Pattern{ID: raw, Raw: raw, Enabled: true})
							return nil
						})
						assert.NoError(t, err)
					}(i)
				}
				wg.Wait()

				state, err := s.Load(ctx)
				require.NoError(t, err)
				assert.Len(t, state.Patterns, n)
			})

			t.Run("canceled context is rejected", func(t *testing.T) {
				s := factory(t)
				cctx, cancel := context.WithCancel(ctx)
				cancel()
				err := s.Update(cctx, func(st *domain.State) error { return nil })
				assert.Error(t, err)
			})
		})
	}
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Update(ctx, func(st *domain.State) error {
		st.Settings.ResetHour = 9
		return nil
	}))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	state, err := s2.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, state.Settings.ResetHour)
}

func TestFileStore_CorruptFile(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, writeFile(s.Path(), "{not json"))

	_, err = s.Load(context.Background())
	assert.Error(t, err)
}

func TestMemoryStore_LoadReturnsCopy(t *testing.T) {
	s := NewMemoryStoreWithState(domain.State{
		Patterns: []domain.Pattern{{ID: "a", Raw: "a.com", Enabled: true}},
		Session:  domain.Session{Locked: true},
	})

	state, err := s.Load(context.Background())
	require.NoError(t, err)
	state.Patterns[0].Enabled = false

	again, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, again.Patterns[0].Enabled)
}
