package usecase

import (
	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/policy"
)

// Command is a request handled by Engine.Handle. The set is closed: only
// the types in this file implement it.
type Command interface {
	isCommand()
}

// Evaluate asks whether URL may be visited. Result: domain.Decision.
type Evaluate struct{ URL string }

// GetStatus returns the session summary. Result: domain.Status.
type GetStatus struct{}

// ListPatterns returns the allow-list in order. Result: []domain.Pattern.
type ListPatterns struct{}

// AddPattern adds a pattern. Result: the new pattern ID.
type AddPattern struct {
	Raw       string
	Temporary bool
}

// AddFromURL adds a pattern derived from a blocked URL. Result: pattern ID.
type AddFromURL struct {
	URL    string
	Option policy.WhitelistOption
	Custom string
}

// RemovePattern deletes a pattern by ID.
type RemovePattern struct{ ID string }

// SetPatternEnabled enables or disables a pattern without removing it.
type SetPatternEnabled struct {
	ID      string
	Enabled bool
}

// TestURL checks a candidate pattern against a URL. Result: bool.
type TestURL struct {
	URL string
	Raw string
}

// SuggestPatterns proposes patterns for a URL. Result: []string.
type SuggestPatterns struct{ URL string }

// SetGoal unlocks the day with a goal.
type SetGoal struct{ Text string }

// CompleteGoal ends the focus session for the day.
type CompleteGoal struct{}

// ToggleFocus flips enforcement. Result: the new focus flag.
type ToggleFocus struct{}

// UpdateSettings changes settings; nil fields are left unchanged.
type UpdateSettings struct {
	ResetHour  *int
	StrictMode *bool
}

// ResetDay performs the daily reset immediately.
type ResetDay struct{}

// CatchUp performs a reset if a scheduled one was missed. Result: bool.
type CatchUp struct{}

// Export returns the settings and patterns. Result: domain.Bundle.
type Export struct{}

// Import replaces settings and patterns from a bundle.
type Import struct{ Bundle domain.Bundle }

// ClearAll restores the state of a fresh install.
type ClearAll struct{}

func (Evaluate) isCommand()          {}
func (GetStatus) isCommand()         {}
func (ListPatterns) isCommand()      {}
func (AddPattern) isCommand()        {}
func (AddFromURL) isCommand()        {}
func (RemovePattern) isCommand()     {}
func (SetPatternEnabled) isCommand() {}
func (TestURL) isCommand()           {}
func (SuggestPatterns) isCommand()   {}
func (SetGoal) isCommand()           {}
func (CompleteGoal) isCommand()      {}
func (ToggleFocus) isCommand()       {}
func (UpdateSettings) isCommand()    {}
func (ResetDay) isCommand()          {}
func (CatchUp) isCommand()           {}
func (Export) isCommand()            {}
func (Import) isCommand()            {}
func (ClearAll) isCommand()          {}
