package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

func TestEngine_SyncReportsOtherProcessChanges(t *testing.T) {
	host, store, rec, clock := newTestEngine(t)
	other := NewEngine(store, zap.NewNop(), EngineOptions{Clock: clock})
	ctx := context.Background()

	require.NoError(t, host.Sync(ctx))
	assert.Empty(t, rec.kinds(), "first sync records a baseline")

	require.NoError(t, other.SetGoal(ctx, "Ship the quarterly report"))
	_, err := other.AddPattern(ctx, "github.com/**", false)
	require.NoError(t, err)
	require.NoError(t, host.Sync(ctx))
	assert.Equal(t, []domain.EventKind{domain.EventGoalSet, domain.EventPatternsChanged}, rec.kinds())
	assert.Equal(t, "Ship the quarterly report", rec.events[0].Goal)

	require.NoError(t, host.Sync(ctx))
	assert.Len(t, rec.events, 2, "nothing new")

	require.NoError(t, other.DailyReset(ctx))
	require.NoError(t, host.Sync(ctx))
	require.Len(t, rec.events, 3)
	assert.Equal(t, domain.EventDailyReset, rec.events[2].Kind)
	assert.True(t, rec.events[2].Locked)
}

func TestEngine_SyncSkipsOwnCommits(t *testing.T) {
	e, _, rec, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Sync(ctx))
	require.NoError(t, e.SetGoal(ctx, "Ship the quarterly report"))
	_, err := e.ToggleFocus(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Sync(ctx))

	assert.Equal(t, []domain.EventKind{domain.EventGoalSet, domain.EventFocusToggled}, rec.kinds())
}

func TestEngine_SyncRunsMissedReset(t *testing.T) {
	e, store, rec, clock := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.SetGoal(ctx, "Ship the quarterly report"))

	clock.Advance(24 * time.Hour)
	require.NoError(t, e.Sync(ctx))

	assert.Equal(t, domain.StateLocked, store.snapshot().Session.State())
	assert.Equal(t, []domain.EventKind{domain.EventGoalSet, domain.EventDailyReset}, rec.kinds())
}

func TestChanges(t *testing.T) {
	base := domain.InitialState()
	base.Session = domain.Session{
		GoalText:     "Ship the quarterly report",
		GoalSetAt:    testNow,
		FocusEnabled: true,
		LastResetAt:  testNow.Add(-time.Hour),
	}
	base.Patterns = []domain.Pattern{{ID: "p1", Raw: "github.com/**", Enabled: true}}

	tests := []struct {
		name   string
		mutate func(s *domain.State)
		want   []domain.EventKind
	}{
		{"unchanged", func(s *domain.State) {}, nil},
		{"reset", func(s *domain.State) {
			s.Session = domain.Session{Locked: true, LastResetAt: testNow}
		}, []domain.EventKind{domain.EventDailyReset}},
		{"reset hour rebased", func(s *domain.State) {
			s.Session.LastResetAt = testNow
			s.Settings.ResetHour = 8
		}, []domain.EventKind{domain.EventSettingsChanged}},
		{"completed", func(s *domain.State) {
			s.Session.GoalCompleted = true
			s.Session.FocusEnabled = false
		}, []domain.EventKind{domain.EventGoalCompleted}},
		{"focus off", func(s *domain.State) {
			s.Session.FocusEnabled = false
		}, []domain.EventKind{domain.EventFocusToggled}},
		{"pattern disabled", func(s *domain.State) {
			s.Patterns[0].Enabled = false
		}, []domain.EventKind{domain.EventPatternsChanged}},
		{"cleared", func(s *domain.State) {
			*s = domain.InitialState()
			s.Session.LastResetAt = testNow
			s.Settings.StrictMode = false
		}, []domain.EventKind{domain.EventDailyReset, domain.EventPatternsChanged, domain.EventSettingsChanged}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cur := base.Clone()
			tt.mutate(&cur)
			assert.Equal(t, tt.want, Changes(base, cur))
		})
	}
}
