package nativemsg

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
	"github.com/eliteGoblin/focusd/focusgate/internal/policy"
	"github.com/eliteGoblin/focusd/focusgate/internal/usecase"
)

// Request message types.
const (
	TypeCheckURL          = "CHECK_URL"
	TypeAddPattern        = "ADD_PATTERN"
	TypeRemovePattern     = "REMOVE_PATTERN"
	TypeSetPatternEnabled = "SET_PATTERN_ENABLED"
	TypeGetStatus         = "GET_STATUS"
	TypeSetGoal           = "SET_GOAL"
	TypeCompleteGoal      = "COMPLETE_GOAL"
	TypeToggleFocus       = "TOGGLE_FOCUS"
	TypeGetPatterns       = "GET_PATTERNS"
	TypeUpdateSettings    = "UPDATE_SETTINGS"
	TypeResetDay          = "RESET_DAY"
	TypeAddToWhitelist    = "ADD_TO_WHITELIST"
	TypeTestPattern       = "TEST_PATTERN"
	TypeSuggestPatterns   = "SUGGEST_PATTERNS"
	TypeExportData        = "EXPORT_DATA"
	TypeImportData        = "IMPORT_DATA"
	TypeClearAllData      = "CLEAR_ALL_DATA"
)

// Request is a frame from the browser.
type Request struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response answers a Request with the same ID.
type Response struct {
	ID     string `json:"id,omitempty"`
	Type   string `json:"type"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Broadcast carries an engine event to the browser.
type Broadcast struct {
	Type    domain.EventKind `json:"type"`
	Payload eventPayload     `json:"payload"`
}

type eventPayload struct {
	Goal         string `json:"goal,omitempty"`
	FocusEnabled bool   `json:"focusEnabled"`
	IsLocked     bool   `json:"isLocked"`
	ResetHour    int    `json:"resetHour"`
	At           int64  `json:"at"`
}

type checkURLPayload struct {
	URL string `json:"url"`
}

type addPatternPayload struct {
	Pattern   string `json:"pattern"`
	Temporary bool   `json:"temporary"`
}

type patternIDPayload struct {
	PatternID string `json:"patternId"`
	Enabled   bool   `json:"enabled"`
}

type goalPayload struct {
	Goal string `json:"goal"`
}

type settingsPayload struct {
	ResetHour  *int  `json:"resetHour"`
	StrictMode *bool `json:"strictMode"`
}

type whitelistPayload struct {
	URL           string `json:"url"`
	Option        string `json:"option"`
	CustomPattern string `json:"customPattern"`
}

type testPatternPayload struct {
	URL     string `json:"url"`
	Pattern string `json:"pattern"`
}

type checkURLResponse struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	Goal     string `json:"goal,omitempty"`
	IsLocked bool   `json:"isLocked"`
}

type statusResponse struct {
	IsLocked      bool   `json:"isLocked"`
	HasGoal       bool   `json:"hasGoal"`
	GoalCompleted bool   `json:"goalCompleted"`
	Goal          string `json:"goal,omitempty"`
	FocusEnabled  bool   `json:"focusEnabled"`
	ResetHour     int    `json:"resetHour"`
	StrictMode    bool   `json:"strictMode"`
	NextResetAt   int64  `json:"nextResetAt"`
}

type wirePattern struct {
	ID        string `json:"id"`
	Pattern   string `json:"pattern"`
	Enabled   bool   `json:"enabled"`
	Temporary bool   `json:"temporary,omitempty"`
	AddedAt   int64  `json:"addedAt"`
}

// Decode maps a request onto an engine command.
func Decode(req Request) (usecase.Command, error) {
	switch req.Type {
	case TypeCheckURL:
		var p checkURLPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.Evaluate{URL: p.URL}, nil

	case TypeAddPattern:
		var p addPatternPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.AddPattern{Raw: p.Pattern, Temporary: p.Temporary}, nil

	case TypeRemovePattern:
		id, err := stringOrField(req, func(p *patternIDPayload) string { return p.PatternID })
		if err != nil {
			return nil, err
		}
		return usecase.RemovePattern{ID: id}, nil

	case TypeSetPatternEnabled:
		var p patternIDPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.SetPatternEnabled{ID: p.PatternID, Enabled: p.Enabled}, nil

	case TypeSetGoal:
		text, err := stringOrField(req, func(p *goalPayload) string { return p.Goal })
		if err != nil {
			return nil, err
		}
		return usecase.SetGoal{Text: text}, nil

	case TypeUpdateSettings:
		var p settingsPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.UpdateSettings{ResetHour: p.ResetHour, StrictMode: p.StrictMode}, nil

	case TypeAddToWhitelist:
		var p whitelistPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.AddFromURL{
			URL:    p.URL,
			Option: policy.WhitelistOption(p.Option),
			Custom: p.CustomPattern,
		}, nil

	case TypeTestPattern:
		var p testPatternPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.TestURL{URL: p.URL, Raw: p.Pattern}, nil

	case TypeSuggestPatterns:
		var p checkURLPayload
		if err := unmarshal(req, &p); err != nil {
			return nil, err
		}
		return usecase.SuggestPatterns{URL: p.URL}, nil

	case TypeImportData:
		var b domain.Bundle
		if err := unmarshal(req, &b); err != nil {
			return nil, err
		}
		return usecase.Import{Bundle: b}, nil

	case TypeGetStatus:
		return usecase.GetStatus{}, nil
	case TypeGetPatterns:
		return usecase.ListPatterns{}, nil
	case TypeCompleteGoal:
		return usecase.CompleteGoal{}, nil
	case TypeToggleFocus:
		return usecase.ToggleFocus{}, nil
	case TypeResetDay:
		return usecase.ResetDay{}, nil
	case TypeExportData:
		return usecase.Export{}, nil
	case TypeClearAllData:
		return usecase.ClearAll{}, nil

	default:
		return nil, fmt.Errorf("unknown message type %q", req.Type)
	}
}

func unmarshal(req Request, v any) error {
	if len(req.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", req.Type)
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", req.Type, err)
	}
	return nil
}

// stringOrField accepts a bare JSON string payload or an object carrying
// the value in a named field.
func stringOrField[T any](req Request, field func(*T) string) (string, error) {
	raw := strings.TrimSpace(string(req.Payload))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(req.Payload, &s); err != nil {
			return "", fmt.Errorf("%s: invalid payload: %w", req.Type, err)
		}
		return s, nil
	}
	var p T
	if err := unmarshal(req, &p); err != nil {
		return "", err
	}
	return field(&p), nil
}

// encodeResult converts engine results to the camelCase shapes the
// extension expects.
func encodeResult(result any) any {
	switch r := result.(type) {
	case domain.Decision:
		return checkURLResponse{
			Allowed:  r.Allowed,
			Reason:   r.Reason,
			Goal:     r.Goal,
			IsLocked: r.Locked,
		}
	case domain.Status:
		return statusResponse{
			IsLocked:      r.Locked,
			HasGoal:       r.HasGoal,
			GoalCompleted: r.GoalCompleted,
			Goal:          r.Goal,
			FocusEnabled:  r.FocusEnabled,
			ResetHour:     r.ResetHour,
			StrictMode:    r.StrictMode,
			NextResetAt:   millis(r.NextResetAt),
		}
	case []domain.Pattern:
		out := make([]wirePattern, 0, len(r))
		for _, p := range r {
			out = append(out, wirePattern{
				ID:        p.ID,
				Pattern:   p.Raw,
				Enabled:   p.Enabled,
				Temporary: p.Temporary,
				AddedAt:   millis(p.CreatedAt),
			})
		}
		return out
	default:
		return result
	}
}

func encodeEvent(e domain.Event) Broadcast {
	return Broadcast{
		Type: e.Kind,
		Payload: eventPayload{
			Goal:         e.Goal,
			FocusEnabled: e.FocusEnabled,
			IsLocked:     e.Locked,
			ResetHour:    e.ResetHour,
			At:           millis(e.At),
		},
	}
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
