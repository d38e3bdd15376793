// Package logparser extracts structure from raw CI step logs: it strips runner
// decorations and pulls out individual failing checks (Go tests, lint findings).
package logparser

import "sort"

// Failure is a single failing check found in a log.
type Failure struct {
	Kind    string // "test" or "lint"
	Name    string // test name or linter name
	Package string
	File    string
	Line    int
	Message string
}

// String returns the compact form stored on outcome records.
func (f Failure) String() string {
	switch {
	case f.Kind == "lint":
		return f.Name + ": " + f.File + ":" + itoa(f.Line)
	case f.Package != "":
		return f.Package + "." + f.Name
	default:
		return f.Name
	}
}

// Parser is implemented by each log dialect.
type Parser interface {
	// CanParse returns true if this parser can handle the given log content.
	CanParse(logContent string) bool
	// Parse extracts failures from the log content.
	Parse(logContent string) []Failure
}

var parsers []Parser

// RegisterParser adds a parser to the registry.
func RegisterParser(p Parser) {
	parsers = append(parsers, p)
}

// ExtractFailures runs every registered parser that recognizes the log and
// returns at most limit failures (limit <= 0 means no limit). Results are
// ordered by kind, then file and line, so the output is stable across runs.
func ExtractFailures(logContent string, limit int) []Failure {
	cleaned := CleanLog(logContent)

	var all []Failure
	for _, p := range parsers {
		if p.CanParse(cleaned) {
			all = append(all, p.Parse(cleaned)...)
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Kind != all[j].Kind {
			return all[i].Kind < all[j].Kind
		}
		if all[i].File != all[j].File {
			return all[i].File < all[j].File
		}
		return all[i].Line < all[j].Line
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
