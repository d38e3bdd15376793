package logparser

import (
	"path"
	"regexp"
	"strconv"
	"strings"
)

func init() {
	RegisterParser(&GoTestParser{})
}

// GoTestParser recognizes `go test` and gotestsum failure output.
type GoTestParser struct{}

var (
	goTestFailPattern    = regexp.MustCompile(`---\s*FAIL:\s*(\S+)\s*\([\d.]+s\)`)
	gotestsumFailPattern = regexp.MustCompile(`===\s*FAIL:\s*(\S+)\s+(\S+)\s*\([\d.]+s\)`)
	packageFailPattern   = regexp.MustCompile(`^FAIL\s+(\S+)\s+[\d.]+s`)
	testLocationPattern  = regexp.MustCompile(`(\S+_test\.go):(\d+):?\s*(.*)`)
)

// CanParse returns true if the log contains Go test failures.
func (p *GoTestParser) CanParse(logContent string) bool {
	return strings.Contains(logContent, "--- FAIL:") ||
		strings.Contains(logContent, "=== FAIL:")
}

// Parse extracts one Failure per failing test. Package names from trailing
// "FAIL\tpkg" lines are attached to tests that did not carry one.
func (p *GoTestParser) Parse(logContent string) []Failure {
	lines := strings.Split(logContent, "\n")

	var failures []*Failure
	seen := make(map[string]bool)
	add := func(pkg, name string, at int) {
		key := pkg + "/" + name
		if seen[key] {
			return
		}
		seen[key] = true
		f := &Failure{Kind: "test", Name: name, Package: pkg}
		p.locate(f, lines, at)
		failures = append(failures, f)
	}

	for i, line := range lines {
		if m := gotestsumFailPattern.FindStringSubmatch(line); m != nil {
			add(m[1], m[2], i)
			continue
		}
		if m := goTestFailPattern.FindStringSubmatch(line); m != nil {
			add("", m[1], i)
			continue
		}
		if m := packageFailPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			for _, f := range failures {
				if f.Package == "" {
					f.Package = m[1]
				}
			}
		}
	}

	out := make([]Failure, 0, len(failures))
	for _, f := range failures {
		out = append(out, *f)
	}
	return out
}

// locate scans the few lines after a FAIL header for the first file:line
// reference belonging to a _test.go file.
func (p *GoTestParser) locate(f *Failure, lines []string, at int) {
	end := min(len(lines), at+10)
	for _, line := range lines[at+1 : end] {
		m := testLocationPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		f.File = path.Base(m[1])
		f.Line, _ = strconv.Atoi(m[2])
		f.Message = strings.TrimSpace(m[3])
		return
	}
}
