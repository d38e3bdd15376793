package errparse

import "regexp"

// patternGroup is one labelled entry of an ordered pattern table.
type patternGroup struct {
	Label    string
	Patterns []*regexp.Regexp
}

func group(label string, patterns ...string) patternGroup {
	g := patternGroup{Label: label}
	for _, p := range patterns {
		g.Patterns = append(g.Patterns, regexp.MustCompile("(?im)"+p))
	}
	return g
}

// matches reports whether any pattern of the group matches text.
func (g patternGroup) matches(text string) bool {
	for _, re := range g.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Narrative signature labels. They are checked before the standard taxonomy.
const (
	GhostDependencyParadox = "GHOST_DEPENDENCY_PARADOX"
	BlackboxCorruption     = "BLACKBOX_CORRUPTION"
	KontrapunktDissonance  = "KONTRAPUNKT_DISSONANCE"
)

// NarrativeKeywords identify narrative signature error types in aggregated data.
var NarrativeKeywords = []string{"GHOST", "BLACKBOX", "KONTRAPUNKT"}

// Standard error type labels.
const (
	EnvironmentSetup  = "ENVIRONMENT_SETUP"
	DependencyFailure = "DEPENDENCY_FAILURE"
	BuildFailure      = "BUILD_FAILURE"
	TestFailure       = "TEST_FAILURE"
	LintFailure       = "LINT_FAILURE"
	SecurityFinding   = "SECURITY_FINDING"
	DiskSpace         = "DISK_SPACE"
	Timeout           = "TIMEOUT"
	Cancelled         = "CANCELLED"
	Unknown           = "UNKNOWN"
	Success           = "SUCCESS"
)

var narrativeGroups = []patternGroup{
	group(GhostDependencyParadox,
		`ghost[_ -]?(process|dependency|module)`,
		`phantom (import|dependency|package)`,
		`circular import`,
	),
	group(BlackboxCorruption,
		`blackbox[_ -]?(failure|corruption|error)`,
		`corrupt(ed)? (cache|archive|artifact)`,
		`checksum mismatch`,
	),
	group(KontrapunktDissonance,
		`kontrapunkt`,
		`psycho[_ -]?noir`,
		`narrative (desync|dissonance)`,
	),
}

var standardGroups = []patternGroup{
	group(EnvironmentSetup,
		`command not found`,
		`no such file or directory`,
		`unable to locate (executable|package)`,
		`setup-(python|node|go|java) .*failed`,
		`environment variable .* (is not set|missing)`,
	),
	group(DependencyFailure,
		`could not find a version that satisfies`,
		`no matching distribution found`,
		`ModuleNotFoundError`,
		`npm ERR!`,
		`ERESOLVE`,
		`dependency resolution failed`,
		`go: .* (module|package) .* not found`,
	),
	group(BuildFailure,
		`build failed`,
		`compilation (failed|error)`,
		`error: could not compile`,
		`make: \*\*\* .*error`,
		`SyntaxError`,
	),
	group(TestFailure,
		`^--- FAIL:`,
		`\d+ (tests? )?failed`,
		`^FAILED \S+::`,
		`AssertionError`,
		`tests? failed`,
	),
	group(LintFailure,
		`flake8`,
		`pylint`,
		`eslint`,
		`golangci-lint`,
		`would reformat`,
		`lint(ing)? (failed|errors?)`,
	),
	group(SecurityFinding,
		`vulnerabilit(y|ies) (found|detected)`,
		`CVE-\d{4}-\d+`,
		`bandit`,
		`gosec`,
		`security (issue|finding)`,
	),
	group(DiskSpace,
		`no space left on device`,
		`disk (quota|space) exceeded`,
		`ENOSPC`,
	),
	group(Timeout,
		`timed out`,
		`timeout (exceeded|expired)`,
		`deadline exceeded`,
	),
	group(Cancelled,
		`operation was cancell?ed`,
		`the run was cancell?ed`,
		`received (SIGINT|SIGTERM)`,
		`KeyboardInterrupt`,
	),
}

// Fingerprint normalization.
var (
	fingerprintKeywords = []string{"error", "failed", "exception", "fatal", "critical"}
	locationPattern     = regexp.MustCompile(`at \w+:\d+`)
	pathPattern         = regexp.MustCompile(`/\S+`)
	digitsPattern       = regexp.MustCompile(`\d+`)
)
