// Package tui renders taxonomy reports for the terminal: a one-shot summary
// and a scrollable viewer.
package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/muesli/reflow/truncate"
	"github.com/muesli/reflow/wordwrap"
	"github.com/newhook/necropolis/internal/aggregate"
)

// Summary is the short report printed after an aggregation run.
func Summary(r *aggregate.Report, width int) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Necropolis taxonomy report"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %s  %s %s  %s %s\n",
		labelStyle.Render("outcomes"), valueStyle.Render(fmt.Sprint(r.TotalOutcomes)),
		labelStyle.Render("failures"), errorStyle.Render(fmt.Sprint(r.TotalFailures)),
		labelStyle.Render("success"), rateStyle(r.OverallSuccessRate).Render(fmt.Sprintf("%.2f%%", r.OverallSuccessRate)))
	for _, rec := range r.Recommendations {
		b.WriteString(wordwrap.String(dimStyle.Render("• ")+rec, width))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderReport renders every section of r for a terminal width.
func RenderReport(r *aggregate.Report, width int) string {
	if width < 20 {
		width = 20
	}
	rule := dimStyle.Render(strings.Repeat("─", width))
	var b strings.Builder

	section := func(name string) {
		b.WriteString("\n")
		b.WriteString(sectionStyle.Render(name))
		b.WriteString("\n")
		b.WriteString(rule)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Run:"), valueStyle.Render(r.RunID))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Generated:"), valueStyle.Render(r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))

	section("Summary")
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("Total outcomes:"), r.TotalOutcomes)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Failures:"), errorStyle.Render(fmt.Sprint(r.TotalFailures)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Successes:"), successStyle.Render(fmt.Sprint(r.TotalSuccesses)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Success rate:"), rateStyle(r.OverallSuccessRate).Render(fmt.Sprintf("%.2f%%", r.OverallSuccessRate)))

	section("Error types")
	if len(r.ErrorTypes) == 0 {
		b.WriteString(dimStyle.Render("No failures recorded."))
		b.WriteString("\n")
	}
	for _, et := range byCountDesc(r.ErrorTypes) {
		fmt.Fprintf(&b, "%-28s %d\n", et, r.ErrorTypes[et])
	}

	section("Top fingerprints")
	if len(r.TopFingerprints) == 0 {
		b.WriteString(dimStyle.Render("No fingerprints recorded."))
		b.WriteString("\n")
	}
	for i, g := range r.TopFingerprints {
		prefix := fmt.Sprintf("%2d. %3d× ", i+1, g.Count)
		fp := truncate.StringWithTail(g.Fingerprint, uint(max(width-len(prefix), 10)), "...")
		b.WriteString(prefix + fp + "\n")
		if len(g.Examples) > 0 {
			b.WriteString(dimStyle.Render("       " + strings.Join(g.Examples, ", ")))
			b.WriteString("\n")
		}
	}

	section("Categories")
	for _, name := range sortedNames(r.CategoryStats) {
		s := r.CategoryStats[name]
		fmt.Fprintf(&b, "%-20s %3d total %3d failed  %s\n", name, s.Total, s.Failures,
			rateStyle(s.SuccessRate).Render(fmt.Sprintf("%.2f%%", s.SuccessRate)))
	}

	section("Variants")
	for _, name := range sortedNames(r.VariantStats) {
		s := r.VariantStats[name]
		fmt.Fprintf(&b, "%-20s %3d total %3d failed\n", name, s.Total, s.Failures)
	}

	if len(r.NarrativeSignatures) > 0 {
		section("Psycho-noir signatures")
		for _, name := range sortedNames(r.NarrativeSignatures) {
			sig := r.NarrativeSignatures[name]
			fmt.Fprintf(&b, "%s %d\n", narrativeStyle.Render(name), sig.Count)
			for _, fp := range sig.ExampleFingerprints {
				b.WriteString(dimStyle.Render("  " + truncate.StringWithTail(fp, uint(max(width-2, 10)), "...")))
				b.WriteString("\n")
			}
		}
	}

	section("Recommendations")
	for _, rec := range r.Recommendations {
		b.WriteString(wordwrap.String("• "+rec, width))
		b.WriteString("\n")
	}
	return b.String()
}

func byCountDesc(m map[string]int) []string {
	keys := sortedNames(m)
	sort.SliceStable(keys, func(i, j int) bool { return m[keys[i]] > m[keys[j]] })
	return keys
}

func sortedNames[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
