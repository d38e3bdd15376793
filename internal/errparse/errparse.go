// Package errparse is the fast, deterministic classifier used in CI: it maps
// a step's log and exit code to one error type, computes a grouping
// fingerprint, and builds the outcome record for the step.
package errparse

import (
	"os"
	"strings"
	"time"

	"github.com/newhook/necropolis/internal/logparser"
	"github.com/newhook/necropolis/internal/outcome"
)

// NoClearErrorSignature is the fingerprint of a log without any error-ish line.
const NoClearErrorSignature = "NO_CLEAR_ERROR_SIGNATURE"

const (
	maxFingerprintLines = 3
	maxFailedChecks     = 10
)

// ClassifyError returns the error type of a step. Priority: a successful
// outcome short-circuits, then narrative signatures, then the standard
// taxonomy, then exit-code heuristics, then UNKNOWN.
func ClassifyError(logText string, exitCode int, result string) string {
	if result == outcome.Success {
		return Success
	}

	for _, g := range narrativeGroups {
		if g.matches(logText) {
			return g.Label
		}
	}
	for _, g := range standardGroups {
		if g.matches(logText) {
			return g.Label
		}
	}

	switch exitCode {
	case 124:
		return Timeout
	case 130:
		return Cancelled
	case 2:
		return EnvironmentSetup
	case 1:
		lower := strings.ToLower(logText)
		if strings.Contains(lower, "test") {
			return TestFailure
		}
		if strings.Contains(lower, "build") {
			return BuildFailure
		}
	}
	return Unknown
}

// ExtractFingerprint normalizes up to three error-ish lines so that the same
// failure produces the same fingerprint across runs, paths and line numbers.
func ExtractFingerprint(logText string) string {
	var parts []string
	for _, line := range strings.Split(logparser.CleanLog(logText), "\n") {
		// Keywords only count outside paths and locations.
		normalized := normalizeLine(line)
		if !hasFingerprintKeyword(normalized) {
			continue
		}
		parts = append(parts, normalized)
		if len(parts) == maxFingerprintLines {
			break
		}
	}
	if len(parts) == 0 {
		return NoClearErrorSignature
	}
	return strings.Join(parts, " | ")
}

func hasFingerprintKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range fingerprintKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func normalizeLine(line string) string {
	line = strings.TrimSpace(line)
	line = locationPattern.ReplaceAllString(line, "at LOCATION")
	line = pathPattern.ReplaceAllString(line, "/PATH")
	return digitsPattern.ReplaceAllString(line, "N")
}

// StepInfo is the caller-supplied description of a CI step.
type StepInfo struct {
	Name            string
	Category        string
	Variant         string
	ExitCode        int
	DurationSeconds float64
	Outcome         string
	CollectionType  string
}

// Getenv looks up an environment variable; os.Getenv in production.
type Getenv func(key string) string

// Builder assembles outcome records.
type Builder struct {
	getenv Getenv
	now    func() time.Time
}

// NewBuilder returns a Builder reading the process environment.
func NewBuilder() *Builder {
	return &Builder{
		getenv: os.Getenv,
		now:    time.Now,
	}
}

// Build classifies logText and returns the outcome record for the step.
func (b *Builder) Build(logText string, step StepInfo) *outcome.Record {
	env := func(key string) string {
		if v := b.getenv(key); v != "" {
			return v
		}
		return "unknown"
	}

	collection := step.CollectionType
	if collection == "" {
		collection = "pr_time"
	}

	rec := &outcome.Record{
		Name:              step.Name,
		Outcome:           step.Outcome,
		ErrorType:         ClassifyError(logText, step.ExitCode, step.Outcome),
		Fingerprint:       ExtractFingerprint(logText),
		Category:          step.Category,
		Variant:           step.Variant,
		ExitCode:          step.ExitCode,
		DurationSeconds:   step.DurationSeconds,
		OS:                env("RUNNER_OS"),
		Arch:              env("RUNNER_ARCH"),
		RunnerName:        env("RUNNER_NAME"),
		Job:               env("GITHUB_JOB"),
		Step:              step.Name,
		GitSHA:            env("GITHUB_SHA"),
		GitRef:            env("GITHUB_REF"),
		Actor:             env("GITHUB_ACTOR"),
		Workflow:          env("GITHUB_WORKFLOW"),
		RunID:             env("GITHUB_RUN_ID"),
		Timestamp:         b.now().UTC().Format(time.RFC3339),
		NecropolisVersion: outcome.Version,
		CollectionType:    collection,
	}

	if rec.ErrorType == TestFailure || rec.ErrorType == LintFailure {
		for _, f := range logparser.ExtractFailures(logText, maxFailedChecks) {
			rec.FailedChecks = append(rec.FailedChecks, f.String())
		}
	}
	return rec
}

// ReadLog returns the contents of path, or a placeholder when it cannot be
// read. The second return value reports whether the file was read.
func ReadLog(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "Log file not found: " + path, false
	}
	return string(data), true
}
