// Package session implements the daily focus session state machine:
// Locked -> UnlockedFocusOn <-> UnlockedFocusOff -> (reset) Locked.
//
// Transitions operate on a *domain.State so the caller can run them inside
// a store transaction. A rejected transition leaves the state untouched.
package session

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// DefaultMinGoalLength is the minimum goal length in characters.
const DefaultMinGoalLength = 10

// Machine applies session transitions.
type Machine struct {
	MinGoalLength int
}

// NewMachine creates a machine; a non-positive minimum uses the default.
func NewMachine(minGoalLength int) Machine {
	if minGoalLength <= 0 {
		minGoalLength = DefaultMinGoalLength
	}
	return Machine{MinGoalLength: minGoalLength}
}

// ValidateGoal checks the goal text is specific enough.
func (m Machine) ValidateGoal(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return &domain.ValidationError{Field: "goal", Reason: "please enter a focus goal"}
	}
	if utf8.RuneCountInString(trimmed) < m.MinGoalLength {
		return &domain.ValidationError{
			Field:  "goal",
			Reason: fmt.Sprintf("goal should be more specific (at least %d characters)", m.MinGoalLength),
		}
	}
	return nil
}

// SetGoal records a goal and turns focus on. Valid only while locked.
func (m Machine) SetGoal(s *domain.State, text string, now time.Time) error {
	if s.Session.State() != domain.StateLocked {
		return &domain.ValidationError{Field: "goal", Reason: "a goal is already set for today"}
	}
	if err := m.ValidateGoal(text); err != nil {
		return err
	}

	s.Session.GoalText = strings.TrimSpace(text)
	s.Session.GoalSetAt = now
	s.Session.GoalCompleted = false
	s.Session.Locked = false
	s.Session.FocusEnabled = true
	return nil
}

// CompleteGoal marks the goal done and suspends enforcement. The goal text
// stays until the next reset. It reports whether anything changed; it is a
// no-op while locked.
func (m Machine) CompleteGoal(s *domain.State) bool {
	if s.Session.State() == domain.StateLocked {
		return false
	}
	changed := !s.Session.GoalCompleted || s.Session.FocusEnabled
	s.Session.GoalCompleted = true
	s.Session.FocusEnabled = false
	return changed
}

// ToggleFocus flips enforcement while unlocked and returns the new value.
// While locked it has no effect and reports false.
func (m Machine) ToggleFocus(s *domain.State) (enabled bool, changed bool) {
	if s.Session.State() == domain.StateLocked {
		return false, false
	}
	s.Session.FocusEnabled = !s.Session.FocusEnabled
	return s.Session.FocusEnabled, true
}

// Reset clears the goal, purges temporary patterns and re-locks.
// It returns the number of patterns purged.
func (m Machine) Reset(s *domain.State, now time.Time) int {
	kept := make([]domain.Pattern, 0, len(s.Patterns))
	for _, p := range s.Patterns {
		if !p.Temporary {
			kept = append(kept, p)
		}
	}
	purged := len(s.Patterns) - len(kept)

	s.Patterns = kept
	s.Session = domain.Session{
		Locked:      true,
		LastResetAt: now,
	}
	return purged
}
