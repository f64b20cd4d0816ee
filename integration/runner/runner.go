package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/story-weaver/pkg/state"
	"gopkg.in/yaml.v3"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// Runner executes integration tests against a running story-weaver API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Logger            func(format string, args ...interface{})
	ErrorHandlingMode ErrorHandlingMode
	GenreOverride     string // If set, overrides the genre for all test cases
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		// Synchronous turns include image generation and speech.
		Client:            &http.Client{Timeout: 5 * time.Minute},
		Logger:            func(string, ...interface{}) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a YAML or JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &suite); err != nil {
			return TestSuite{}, fmt.Errorf("failed to parse YAML in %s: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(content, &suite); err != nil {
			return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
		}
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite against a fresh adventure
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	g := suite.Genre
	if r.GenreOverride != "" {
		g = r.GenreOverride
	}

	id, err := r.startAdventure(ctx, g)
	if err != nil {
		result.Error = fmt.Errorf("failed to start adventure: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.Adventure = id

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		var stepResult TestResult
		if step.UserPrompt == ResetAdventurePrompt {
			stepResult, id = r.resetStep(ctx, id, g, step)
			result.Adventure = id
		} else {
			stepResult = r.executeStep(ctx, id, step)
		}
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s [%s] (%v)", i+1, len(suite.Steps), step.Name, stepResult.ResponseType, stepResult.Duration)
	}

	if err := DeleteAdventure(context.WithoutCancel(ctx), r.Client, r.BaseURL, id); err != nil {
		r.Logger("    Warning: failed to clean up adventure %s: %v", id, err)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

func (r *Runner) startAdventure(ctx context.Context, g string) (uuid.UUID, error) {
	s, err := CreateAdventure(ctx, r.Client, r.BaseURL, g)
	if err != nil {
		return uuid.UUID{}, err
	}
	if _, err := WaitForOpening(ctx, r.Client, r.BaseURL, s.ID); err != nil {
		return s.ID, err
	}
	return s.ID, nil
}

// resetStep discards the adventure and starts a new one in the same genre.
func (r *Runner) resetStep(ctx context.Context, id uuid.UUID, g string, step TestStep) (TestResult, uuid.UUID) {
	start := time.Now()
	result := TestResult{StepName: step.Name, IsReset: true, ResponseText: "[ADVENTURE RESET]"}

	if err := DeleteAdventure(ctx, r.Client, r.BaseURL, id); err != nil {
		result.Error = fmt.Errorf("failed to reset adventure: %w", err)
		result.Duration = time.Since(start)
		return result, id
	}
	newID, err := r.startAdventure(ctx, g)
	if err != nil {
		result.Error = fmt.Errorf("failed to restart adventure: %w", err)
		result.Duration = time.Since(start)
		return result, newID
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result, newID
}

// executeStep sends one utterance and checks the outcome
func (r *Runner) executeStep(ctx context.Context, id uuid.UUID, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	outcome, err := PostTurn(ctx, r.Client, r.BaseURL, id, step.UserPrompt)
	if outcome != nil {
		result.RequestID = outcome.RequestID
		result.ResponseText = outcome.ResponseText()
		if outcome.Result != nil {
			result.ResponseType = outcome.Result.Decision.ResponseType
			result.Forced = outcome.Result.Forced
			result.Fallback = outcome.Result.Decision.Fallback
		}
	}
	if err != nil {
		result.Error = fmt.Errorf("failed to run turn: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	var after *state.Session
	if needsAdventure(step.Expectations) {
		after, err = GetAdventure(ctx, r.Client, r.BaseURL, id)
		if err != nil {
			result.Error = fmt.Errorf("failed to get adventure after turn: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}

	if err := checkExpectations(step.Expectations, outcome, after); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func needsAdventure(exp Expectations) bool {
	return exp.CompanionPresent != nil || exp.UserTurnCount != nil || len(exp.RecentLocationsContain) > 0
}

// checkExpectations validates a step's expectations against the turn outcome
// and the adventure state that followed it
func checkExpectations(exp Expectations, outcome *TurnOutcome, after *state.Session) error {
	if outcome == nil || outcome.Result == nil {
		return fmt.Errorf("turn returned no result")
	}
	res := outcome.Result
	responseType := res.Decision.ResponseType

	if exp.ResponseType != nil && responseType != *exp.ResponseType {
		return fmt.Errorf("expected response_type %s, got %s", *exp.ResponseType, responseType)
	}

	if len(exp.ResponseTypeIn) > 0 {
		found := false
		for _, t := range exp.ResponseTypeIn {
			if t == responseType {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("expected response_type in %v, got %s", exp.ResponseTypeIn, responseType)
		}
	}

	if len(exp.Senders) > 0 {
		var got []string
		for _, m := range res.Messages {
			got = append(got, string(m.Sender))
		}
		if strings.Join(got, ",") != strings.Join(exp.Senders, ",") {
			return fmt.Errorf("expected senders %v, got %v", exp.Senders, got)
		}
	}

	if exp.HasImage != nil {
		hasImage := false
		for _, m := range res.Messages {
			if m.ImageURL != "" {
				hasImage = true
				break
			}
		}
		if hasImage != *exp.HasImage {
			return fmt.Errorf("expected has_image to be %t, got %t", *exp.HasImage, hasImage)
		}
	}

	if after != nil {
		if exp.CompanionPresent != nil && after.CompanionPresent != *exp.CompanionPresent {
			return fmt.Errorf("expected companion_present to be %t, got %t", *exp.CompanionPresent, after.CompanionPresent)
		}
		if exp.UserTurnCount != nil && after.UserTurnCount != *exp.UserTurnCount {
			return fmt.Errorf("expected user_turn_count to be %d, got %d", *exp.UserTurnCount, after.UserTurnCount)
		}
		for _, kw := range exp.RecentLocationsContain {
			found := false
			for _, have := range after.RecentLocationKeywords {
				if strings.EqualFold(have, kw) {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("expected recent locations to contain '%s', got %v", kw, after.RecentLocationKeywords)
			}
		}
	}

	responseText := outcome.ResponseText()
	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}
	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	if exp.ResponseMinLength != nil && len(responseText) < *exp.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, len(responseText))
	}
	if exp.ResponseMaxLength != nil && len(responseText) > *exp.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, len(responseText))
	}

	return nil
}
