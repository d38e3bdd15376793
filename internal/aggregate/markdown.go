package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const markdownFingerprintWidth = 100

// RenderMarkdown renders the README.md summary of a report. At most topN
// fingerprint groups are listed.
func RenderMarkdown(r *Report, topN int) string {
	var b strings.Builder

	b.WriteString("# Necropolis Taxonomy Report\n\n")
	fmt.Fprintf(&b, "Generated: %s  \n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "Run: `%s`\n\n", r.RunID)

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- Total outcomes: %d\n", r.TotalOutcomes)
	fmt.Fprintf(&b, "- Failures: %d\n", r.TotalFailures)
	fmt.Fprintf(&b, "- Successes: %d\n", r.TotalSuccesses)
	fmt.Fprintf(&b, "- Overall success rate: %s%%\n", formatRate(r.OverallSuccessRate))
	fmt.Fprintf(&b, "- Unique error types: %d\n\n", r.UniqueErrorTypes)

	b.WriteString("## Error Types\n\n")
	if len(r.ErrorTypes) == 0 {
		b.WriteString("_No failures recorded._\n")
	}
	for _, et := range errorTypesByCount(r.ErrorTypes) {
		fmt.Fprintf(&b, "- **%s**: %d\n", et, r.ErrorTypes[et])
	}
	b.WriteString("\n")

	b.WriteString("## Top Failure Fingerprints\n\n")
	if len(r.TopFingerprints) == 0 {
		b.WriteString("_No fingerprints recorded._\n")
	}
	for i, g := range r.TopFingerprints {
		if i == topN {
			break
		}
		fmt.Fprintf(&b, "%d. (%d×) `%s`\n", i+1, g.Count, truncateRunes(g.Fingerprint, markdownFingerprintWidth))
	}
	b.WriteString("\n")

	if len(r.NarrativeSignatures) > 0 {
		b.WriteString("## Psycho-Noir Signatures\n\n")
		for _, et := range sortedKeys(r.NarrativeSignatures) {
			fmt.Fprintf(&b, "- **%s**: %d\n", et, r.NarrativeSignatures[et].Count)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	for _, rec := range r.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	return b.String()
}

// errorTypesByCount orders error types by count descending, then by name.
func errorTypesByCount(m map[string]int) []string {
	keys := sortedKeys(m)
	sort.SliceStable(keys, func(i, j int) bool {
		return m[keys[i]] > m[keys[j]]
	})
	return keys
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
