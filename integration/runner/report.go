package runner

import (
	"fmt"
	"sort"
	"strings"
)

const introductionType = "companion_introduction"

// FilterByGenre keeps the jobs whose suite is set in genre g. An empty g
// keeps everything.
func FilterByGenre(jobs []TestJob, g string) []TestJob {
	if g == "" {
		return jobs
	}
	var out []TestJob
	for _, job := range jobs {
		if strings.EqualFold(job.Suite.Genre, g) {
			out = append(out, job)
		}
	}
	return out
}

// Introduction records when a companion joined an adventure during a suite.
type Introduction struct {
	Run    int
	Turn   int // turn number within the adventure, counted from the last reset
	Forced bool
}

// StepFailure is one failed step of one run.
type StepFailure struct {
	Suite string
	Step  string
	Run   int
	Error string
}

type suiteTally struct {
	passes, failures int
	introductions    []Introduction
}

// Report aggregates suite results across runs.
type Report struct {
	suites        map[string]*suiteTally
	order         []string
	responseTypes map[string]int
	fallbacks     int
	turns         int
	failures      []StepFailure
}

// NewReport creates an empty report.
func NewReport() *Report {
	return &Report{
		suites:        make(map[string]*suiteTally),
		responseTypes: make(map[string]int),
	}
}

// Add records the result of one suite in run.
func (r *Report) Add(run int, res TestRunResult) {
	name := res.Job.Name
	tally, ok := r.suites[name]
	if !ok {
		tally = &suiteTally{}
		r.suites[name] = tally
		r.order = append(r.order, name)
	}
	if res.Error != nil {
		tally.failures++
	} else {
		tally.passes++
	}

	turn := 0
	for _, step := range res.Results {
		if step.IsReset {
			turn = 0
			continue
		}
		turn++
		if step.ResponseType != "" {
			r.turns++
			r.responseTypes[step.ResponseType]++
		}
		if step.Fallback {
			r.fallbacks++
		}
		if step.ResponseType == introductionType {
			tally.introductions = append(tally.introductions, Introduction{Run: run, Turn: turn, Forced: step.Forced})
		}
		if step.Error != nil {
			r.failures = append(r.failures, StepFailure{Suite: name, Step: step.StepName, Run: run, Error: step.Error.Error()})
		}
	}
	if res.Error != nil && len(res.Results) == 0 {
		r.failures = append(r.failures, StepFailure{Suite: name, Step: "setup", Run: run, Error: res.Error.Error()})
	}
}

// Passed returns how many suite runs succeeded.
func (r *Report) Passed() int {
	n := 0
	for _, t := range r.suites {
		n += t.passes
	}
	return n
}

// Failed returns how many suite runs failed.
func (r *Report) Failed() int {
	n := 0
	for _, t := range r.suites {
		n += t.failures
	}
	return n
}

// Failures returns every failed step in the order it was recorded.
func (r *Report) Failures() []StepFailure {
	return r.failures
}

// Flaky lists suites that both passed and failed across runs.
func (r *Report) Flaky() []string {
	var out []string
	for _, name := range r.order {
		if t := r.suites[name]; t.passes > 0 && t.failures > 0 {
			out = append(out, name)
		}
	}
	return out
}

// ResponseTypes returns how often each response type was returned.
func (r *Report) ResponseTypes() map[string]int {
	out := make(map[string]int, len(r.responseTypes))
	for k, v := range r.responseTypes {
		out[k] = v
	}
	return out
}

// Introductions returns the companion introductions seen in suite.
func (r *Report) Introductions(suite string) []Introduction {
	if t, ok := r.suites[suite]; ok {
		return t.introductions
	}
	return nil
}

func (r *Report) String() string {
	var sb strings.Builder

	total := r.Passed() + r.Failed()
	fmt.Fprintf(&sb, "\nStory Weaver integration summary\n")
	fmt.Fprintf(&sb, "Suites: %d passed, %d failed (of %d)\n", r.Passed(), r.Failed(), total)

	if r.turns > 0 {
		fmt.Fprintf(&sb, "\nResponse types over %d turns (%d heuristic):\n", r.turns, r.fallbacks)
		kinds := make([]string, 0, len(r.responseTypes))
		for k := range r.responseTypes {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			n := r.responseTypes[k]
			fmt.Fprintf(&sb, "  %-24s %3d (%.0f%%)\n", k, n, float64(n)/float64(r.turns)*100)
		}
	}

	sb.WriteString("\nCompanion introductions:\n")
	for _, name := range r.order {
		intros := r.suites[name].introductions
		if len(intros) == 0 {
			fmt.Fprintf(&sb, "  %s: none\n", name)
			continue
		}
		parts := make([]string, 0, len(intros))
		for _, in := range intros {
			p := fmt.Sprintf("run %d turn %d", in.Run, in.Turn)
			if in.Forced {
				p += " (threshold)"
			}
			parts = append(parts, p)
		}
		fmt.Fprintf(&sb, "  %s: %s\n", name, strings.Join(parts, ", "))
	}

	if flaky := r.Flaky(); len(flaky) > 0 {
		sb.WriteString("\nFlaky suites (passed and failed across runs):\n")
		for _, name := range flaky {
			t := r.suites[name]
			fmt.Fprintf(&sb, "  %s: %d/%d passes\n", name, t.passes, t.passes+t.failures)
		}
	}

	if len(r.failures) > 0 {
		sb.WriteString("\nFailed steps:\n")
		for _, f := range r.failures {
			fmt.Fprintf(&sb, "  ✗ %s / %s (run %d): %s\n", f.Suite, f.Step, f.Run, f.Error)
		}
	}
	return sb.String()
}
