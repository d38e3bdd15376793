package logparser

import (
	"regexp"
	"strconv"
	"strings"
)

func init() {
	RegisterParser(&LintParser{})
}

// LintParser recognizes golangci-lint annotations in GitHub Actions logs.
type LintParser struct{}

// ##[error]file:line[:col]: message (linter)
var lintAnnotationPattern = regexp.MustCompile(`##\[error\]([^:\s]+):(\d+)(?::\d+)?:\s*(.+?)\s*\(([a-z0-9_-]+)\)\s*$`)

// CanParse returns true if the log contains lint annotations.
func (p *LintParser) CanParse(logContent string) bool {
	return strings.Contains(logContent, "##[error]") && lintAnnotationPattern.MatchString(logContent)
}

// Parse extracts each distinct lint finding.
func (p *LintParser) Parse(logContent string) []Failure {
	var out []Failure
	seen := make(map[string]bool)
	for _, line := range strings.Split(logContent, "\n") {
		m := lintAnnotationPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := m[1] + ":" + m[2] + ":" + m[4]
		if seen[key] {
			continue
		}
		seen[key] = true
		n, _ := strconv.Atoi(m[2])
		out = append(out, Failure{
			Kind:    "lint",
			Name:    m[4],
			File:    m[1],
			Line:    n,
			Message: m[3],
		})
	}
	return out
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
