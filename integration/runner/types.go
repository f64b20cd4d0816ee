package runner

import (
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/chat"
	"github.com/jwebster45206/story-weaver/pkg/state"
)

// Special user prompt values that trigger non-turn actions
const (
	ResetAdventurePrompt = "RESET_ADVENTURE"
)

// TestSuite defines a complete integration test scenario.
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name" yaml:"name"`
	Genre string     `json:"genre,omitempty" yaml:"genre,omitempty"` // Used for regular tests
	Steps []TestStep `json:"steps,omitempty" yaml:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty" yaml:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single utterance and its expected outcomes.
// Use user_prompt: "RESET_ADVENTURE" to start over with a fresh adventure.
type TestStep struct {
	Name         string       `json:"name,omitempty" yaml:"name,omitempty"`
	UserPrompt   string       `json:"user_prompt" yaml:"user_prompt"`
	Expectations Expectations `json:"expect" yaml:"expect"`
}

// Expectations defines what to check after a step executes
type Expectations struct {
	// Turn outcome
	ResponseType   *string  `json:"response_type,omitempty" yaml:"response_type,omitempty"`
	ResponseTypeIn []string `json:"response_type_in,omitempty" yaml:"response_type_in,omitempty"`
	Senders        []string `json:"senders,omitempty" yaml:"senders,omitempty"` // Senders of the messages the turn appended, in order
	HasImage       *bool    `json:"has_image,omitempty" yaml:"has_image,omitempty"`

	// Adventure state after the turn
	CompanionPresent       *bool    `json:"companion_present,omitempty" yaml:"companion_present,omitempty"`
	UserTurnCount          *int     `json:"user_turn_count,omitempty" yaml:"user_turn_count,omitempty"`
	RecentLocationsContain []string `json:"recent_locations_contain,omitempty" yaml:"recent_locations_contain,omitempty"`

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty" yaml:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty" yaml:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty" yaml:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty" yaml:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `json:"response_max_length,omitempty" yaml:"response_max_length,omitempty"`
}

// TurnOutcome is the part of a completed turn the runner checks.
type TurnOutcome struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Error     string `json:"error,omitempty"`
	Result    *struct {
		TurnCount int `json:"user_turn_count"`
		Decision  struct {
			ResponseType string `json:"response_type"`
			Fallback     bool   `json:"fallback,omitempty"`
		} `json:"decision"`
		Forced     bool           `json:"forced_introduction,omitempty"`
		Messages   []chat.Message `json:"messages"`
		Terminated bool           `json:"terminated,omitempty"`
	} `json:"result,omitempty"`
}

// ResponseText joins the text of every message the turn appended.
func (o *TurnOutcome) ResponseText() string {
	if o == nil || o.Result == nil {
		return ""
	}
	var text string
	for i, m := range o.Result.Messages {
		if i > 0 {
			text += "\n"
		}
		text += m.Text
	}
	return text
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseType string
	ResponseText string
	RequestID    string
	Forced       bool // companion introduction forced by the appearance threshold
	Fallback     bool // decided by the keyword heuristic
	IsReset      bool // True if this was a RESET_ADVENTURE step (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	Error     error
	Duration  time.Duration
	Adventure uuid.UUID // ID of the adventure used for this test
}

// adventureResponse mirrors the API's create/read response.
type adventureResponse struct {
	Adventure *state.Session `json:"adventure"`
	RequestID string         `json:"request_id,omitempty"`
}
