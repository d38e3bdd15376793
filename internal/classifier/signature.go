package classifier

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Severity is the tier a signature assigns to a matching line.
type Severity string

// Severity tiers, lowest to highest.
const (
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

func (s Severity) rank() int {
	switch s {
	case SeverityError:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known tiers.
func (s Severity) Valid() bool {
	return s == SeveritySuccess || s == SeverityWarning || s == SeverityError
}

// SignatureSpec is the immutable definition of a signature.
type SignatureSpec struct {
	Category string   `yaml:"category" json:"category"`
	Severity Severity `yaml:"severity" json:"severity"`
	Pattern  string   `yaml:"pattern" json:"pattern"`
}

// Signature is a compiled SignatureSpec plus its learning state.
type Signature struct {
	SignatureSpec
	OccurrenceCount int        `json:"occurrence_count"`
	LearningWeight  float64    `json:"learning_weight"`
	FirstSeen       *time.Time `json:"first_seen,omitempty"`
	LastSeen        *time.Time `json:"last_seen,omitempty"`

	re *regexp.Regexp
}

func compile(spec SignatureSpec) (*Signature, error) {
	if !spec.Severity.Valid() {
		return nil, fmt.Errorf("signature %s: unknown severity %q", spec.Category, spec.Severity)
	}
	if spec.Category == "" {
		return nil, fmt.Errorf("signature %q: missing category", spec.Pattern)
	}
	re, err := regexp.Compile("(?i)" + spec.Pattern)
	if err != nil {
		return nil, fmt.Errorf("signature %s: %w", spec.Category, err)
	}
	return &Signature{SignatureSpec: spec, LearningWeight: 1.0, re: re}, nil
}

// observe records one match at t.
func (s *Signature) observe(t time.Time) {
	s.OccurrenceCount++
	s.LearningWeight = LearningWeight(s.OccurrenceCount)
	if s.FirstSeen == nil {
		first := t
		s.FirstSeen = &first
	}
	last := t
	s.LastSeen = &last
}

// LearningWeight is 1.0 plus 0.1 per occurrence, capped at 10.
func LearningWeight(occurrences int) float64 {
	return min(10.0, 1.0+float64(occurrences)*0.1)
}

// BuiltinSignatures returns the built-in signature table in match order.
func BuiltinSignatures() []SignatureSpec {
	return []SignatureSpec{
		{Category: "DEPENDENCY_PHANTOM", Severity: SeverityError, Pattern: `ModuleNotFoundError|ImportError|cannot find module|no required module provides package`},
		{Category: "RUNTIME_COLLAPSE", Severity: SeverityError, Pattern: `Traceback \(most recent call last\)|^panic:|segmentation fault`},
		{Category: "ACCESS_VOID", Severity: SeverityError, Pattern: `permission denied|EACCES|403 Forbidden`},
		{Category: "SYNTAX_FRACTURE", Severity: SeverityError, Pattern: `SyntaxError|syntax error|unexpected token`},
		{Category: "NETWORK_SEVERANCE", Severity: SeverityError, Pattern: `connection refused|ECONNREFUSED|network is unreachable|could not resolve host`},
		{Category: "STORAGE_EXHAUSTION", Severity: SeverityError, Pattern: `no space left on device|ENOSPC|disk quota exceeded`},
		{Category: "TEMPORAL_COLLAPSE", Severity: SeverityError, Pattern: `timed out|deadline exceeded|timeout exceeded`},
		{Category: "TEST_REALITY_BREACH", Severity: SeverityError, Pattern: `--- FAIL:|[1-9]\d* (tests? )?failed|AssertionError|FAILED \S+::`},
		{Category: "DEPRECATION_ECHO", Severity: SeverityWarning, Pattern: `DeprecationWarning|deprecated`},
		{Category: "RETRY_LOOP", Severity: SeverityWarning, Pattern: `retrying|retry attempt \d+`},
		{Category: "WARNING_WHISPER", Severity: SeverityWarning, Pattern: `\bwarn(ing)?\b:`},
		{Category: "TEST_HARMONY", Severity: SeveritySuccess, Pattern: `all tests passed|\d+ passed|^ok\s+\S+|^PASS$`},
		{Category: "BUILD_HARMONY", Severity: SeveritySuccess, Pattern: `build (succeeded|successful|completed)`},
		{Category: "DEPLOYMENT_HARMONY", Severity: SeveritySuccess, Pattern: `successfully (installed|deployed|built|pushed)`},
	}
}

type signaturePack struct {
	Signatures []SignatureSpec `yaml:"signatures"`
}

// LoadSignaturePack reads additional signatures from a YAML file of the form
//
//	signatures:
//	  - category: FLAKY_RUNNER
//	    severity: WARNING
//	    pattern: "runner lost communication"
func LoadSignaturePack(path string) ([]SignatureSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signature pack: %w", err)
	}
	var pack signaturePack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("failed to parse signature pack: %w", err)
	}
	for _, spec := range pack.Signatures {
		if _, err := compile(spec); err != nil {
			return nil, fmt.Errorf("invalid signature pack %s: %w", path, err)
		}
	}
	return pack.Signatures, nil
}
