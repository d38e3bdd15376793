package logparser

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	// timestampPattern matches GitHub Actions log timestamp prefixes.
	// Format: 2026-01-26T14:49:40.7760945Z
	timestampPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z\s*`)

	// jobPrefixPattern matches the job/step prefix written by `gh run view --log`.
	// Format: "JobName\tStepName\t2026-01-26..."
	jobPrefixPattern = regexp.MustCompile(`^[^\t]+\t[^\t]+\t\d{4}-\d{2}-\d{2}T[^\s]+\s*`)
)

// StripTimestamps removes CI log timestamp prefixes from each line.
func StripTimestamps(log string) string {
	return mapLines(log, func(line string) string {
		return timestampPattern.ReplaceAllString(line, "")
	})
}

// StripANSI removes terminal escape sequences (colors, cursor movement).
func StripANSI(log string) string {
	return ansi.Strip(log)
}

// StripJobPrefix removes the job/step prefix from each line.
// Input:  "Test\tRun tests\t2026-01-26... content"
// Output: "content"
func StripJobPrefix(log string) string {
	return mapLines(log, func(line string) string {
		return jobPrefixPattern.ReplaceAllString(line, "")
	})
}

// CleanLog applies all cleanup operations to a log.
func CleanLog(log string) string {
	log = StripJobPrefix(log)
	log = StripTimestamps(log)
	return StripANSI(log)
}

func mapLines(log string, fn func(string) string) string {
	lines := strings.Split(log, "\n")
	for i, line := range lines {
		lines[i] = fn(line)
	}
	return strings.Join(lines, "\n")
}
