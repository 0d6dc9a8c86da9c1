package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// Sync performs a missed reset, then reports as events the changes other
// processes committed since this engine last committed or synced. The
// first call only records a baseline.
func (e *Engine) Sync(ctx context.Context) error {
	if _, err := e.CatchUp(ctx); err != nil {
		return err
	}

	s, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	e.seenMu.Lock()
	prev := e.seen
	cur := s.Clone()
	e.seen = &cur
	e.seenMu.Unlock()

	if prev == nil {
		return nil
	}
	kinds := Changes(*prev, s)
	if len(kinds) > 0 {
		e.logger.Debug("external changes detected", zap.Int("events", len(kinds)))
	}
	for _, kind := range kinds {
		e.emit(kind, s)
	}
	return nil
}

func (e *Engine) markSeen(s domain.State) {
	cur := s.Clone()
	e.seenMu.Lock()
	e.seen = &cur
	e.seenMu.Unlock()
}

// Changes lists the events that take prev to cur, in the order the engine
// would have emitted them. At most one session event is reported: a reset
// outranks a new goal, which outranks completion and focus toggles.
func Changes(prev, cur domain.State) []domain.EventKind {
	var kinds []domain.EventKind

	ps, cs := prev.Session, cur.Session
	switch {
	case !cs.LastResetAt.Equal(ps.LastResetAt) && cs.State() == domain.StateLocked:
		kinds = append(kinds, domain.EventDailyReset)
	case cs.HasGoal() && (cs.GoalText != ps.GoalText || !cs.GoalSetAt.Equal(ps.GoalSetAt)):
		kinds = append(kinds, domain.EventGoalSet)
	case cs.GoalCompleted && !ps.GoalCompleted:
		kinds = append(kinds, domain.EventGoalCompleted)
	case cs.FocusEnabled != ps.FocusEnabled:
		kinds = append(kinds, domain.EventFocusToggled)
	}

	if !samePatterns(prev.Patterns, cur.Patterns) {
		kinds = append(kinds, domain.EventPatternsChanged)
	}
	if prev.Settings != cur.Settings {
		kinds = append(kinds, domain.EventSettingsChanged)
	}
	return kinds
}

func samePatterns(a, b []domain.Pattern) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Raw != b[i].Raw ||
			a[i].Enabled != b[i].Enabled || a[i].Temporary != b[i].Temporary {
			return false
		}
	}
	return true
}
