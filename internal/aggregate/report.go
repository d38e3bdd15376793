package aggregate

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/newhook/necropolis/internal/errparse"
	"github.com/newhook/necropolis/internal/outcome"
)

const (
	reportFingerprintWidth  = 200
	maxFingerprintExamples  = 3
	maxSignatureExamples    = 3
	lowSuccessRateThreshold = 70.0
	minCategorySample       = 2
	frequentFailureCount    = 2
)

// Fixed recommendation texts.
const (
	RecDependencyCaching = "Consider implementing dependency caching to reduce DEPENDENCY_FAILURE occurrences"
	RecTimeouts          = "Review job timeouts and split long-running steps to reduce TIMEOUT failures"
	RecEnvironment       = "Standardize environment setup with pinned tool versions to reduce ENVIRONMENT_SETUP failures"
	RecNarrativeReview   = "Psycho-noir signatures detected - review narrative-coupled build steps"
	RecNarrativeIsolate  = "Isolate Kontrapunkt/ghost/blackbox components behind dedicated CI jobs"
	RecStable            = "System stable - no critical failure patterns detected"
	RecNoArtifacts       = "No artifacts found - ensure outcome collection is enabled in CI workflows"
	RecNoValidRecords    = "No valid outcome records found - check the artifacts for malformed outcome files"
)

// FingerprintGroup is a set of failures sharing a fingerprint.
type FingerprintGroup struct {
	Fingerprint string   `json:"fingerprint"`
	Count       int      `json:"count"`
	Examples    []string `json:"examples"`
}

// CategoryStats summarizes one category.
type CategoryStats struct {
	Total       int     `json:"total"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"`
}

// VariantStats summarizes one variant.
type VariantStats struct {
	Total    int `json:"total"`
	Failures int `json:"failures"`
}

// SignatureBucket collects failures with a narrative error type.
type SignatureBucket struct {
	Count               int      `json:"count"`
	ExampleFingerprints []string `json:"example_fingerprints"`
}

// Report is the taxonomy report for one aggregation run.
type Report struct {
	RunID               string                      `json:"run_id"`
	GeneratedAt         time.Time                   `json:"generated_at"`
	TotalOutcomes       int                         `json:"total_outcomes"`
	TotalFailures       int                         `json:"total_failures"`
	TotalSuccesses      int                         `json:"total_successes"`
	OverallSuccessRate  float64                     `json:"overall_success_rate"`
	ErrorTypes          map[string]int              `json:"error_types"`
	UniqueErrorTypes    int                         `json:"unique_error_types"`
	TopFingerprints     []FingerprintGroup          `json:"top_fingerprints"`
	CategoryStats       map[string]CategoryStats    `json:"category_stats"`
	VariantStats        map[string]VariantStats     `json:"variant_stats"`
	NarrativeSignatures map[string]*SignatureBucket `json:"psycho_noir_signatures"`
	Recommendations     []string                    `json:"recommendations"`
}

func newReport(runID string, at time.Time) *Report {
	return &Report{
		RunID:               runID,
		GeneratedAt:         at,
		OverallSuccessRate:  100,
		ErrorTypes:          map[string]int{},
		TopFingerprints:     []FingerprintGroup{},
		CategoryStats:       map[string]CategoryStats{},
		VariantStats:        map[string]VariantStats{},
		NarrativeSignatures: map[string]*SignatureBucket{},
		Recommendations:     []string{},
	}
}

// EmptyReport is the canonical report for a run that found nothing.
func EmptyReport(runID string, at time.Time) *Report {
	r := newReport(runID, at)
	r.Recommendations = []string{RecNoArtifacts}
	return r
}

// Compute builds the report over records. topN bounds the fingerprint list.
func Compute(records []*outcome.Record, runID string, at time.Time, topN int) *Report {
	if len(records) == 0 {
		return EmptyReport(runID, at)
	}

	r := newReport(runID, at)
	r.TotalOutcomes = len(records)

	var failures []*outcome.Record
	for _, rec := range records {
		switch {
		case rec.IsFailure():
			failures = append(failures, rec)
		case rec.Outcome == outcome.Success:
			r.TotalSuccesses++
		}
	}
	r.TotalFailures = len(failures)
	r.OverallSuccessRate = round2(float64(r.TotalSuccesses) / float64(r.TotalOutcomes) * 100)

	for _, rec := range failures {
		r.ErrorTypes[rec.ErrorType]++
	}
	r.UniqueErrorTypes = len(r.ErrorTypes)

	categoryTotals := map[string]*VariantStats{}
	for _, rec := range records {
		c := categoryTotals[rec.Category]
		if c == nil {
			c = &VariantStats{}
			categoryTotals[rec.Category] = c
		}
		v := r.VariantStats[rec.Variant]
		c.Total++
		v.Total++
		if rec.IsFailure() {
			c.Failures++
			v.Failures++
		}
		r.VariantStats[rec.Variant] = v
	}
	for name, c := range categoryTotals {
		r.CategoryStats[name] = CategoryStats{
			Total:       c.Total,
			Failures:    c.Failures,
			SuccessRate: round2(float64(c.Total-c.Failures) / float64(c.Total) * 100),
		}
	}

	r.TopFingerprints = groupFingerprints(failures, topN)

	for _, rec := range failures {
		if !isNarrative(rec.ErrorType) {
			continue
		}
		b := r.NarrativeSignatures[rec.ErrorType]
		if b == nil {
			b = &SignatureBucket{ExampleFingerprints: []string{}}
			r.NarrativeSignatures[rec.ErrorType] = b
		}
		b.Count++
		if len(b.ExampleFingerprints) < maxSignatureExamples {
			b.ExampleFingerprints = append(b.ExampleFingerprints, rec.Fingerprint)
		}
	}

	r.Recommendations = recommend(r)
	return r
}

// groupFingerprints groups failures by fingerprint and returns the topN
// largest groups, ties kept in first-seen order.
func groupFingerprints(failures []*outcome.Record, topN int) []FingerprintGroup {
	index := map[string]int{}
	var groups []FingerprintGroup
	for _, rec := range failures {
		i, ok := index[rec.Fingerprint]
		if !ok {
			i = len(groups)
			index[rec.Fingerprint] = i
			groups = append(groups, FingerprintGroup{Fingerprint: rec.Fingerprint, Examples: []string{}})
		}
		groups[i].Count++
		if len(groups[i].Examples) < maxFingerprintExamples {
			groups[i].Examples = append(groups[i].Examples, rec.Name)
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	if topN > 0 && len(groups) > topN {
		groups = groups[:topN]
	}
	for i := range groups {
		groups[i].Fingerprint = truncateRunes(groups[i].Fingerprint, reportFingerprintWidth)
	}
	if groups == nil {
		groups = []FingerprintGroup{}
	}
	return groups
}

func recommend(r *Report) []string {
	var recs []string
	if r.ErrorTypes[errparse.DependencyFailure] > frequentFailureCount {
		recs = append(recs, RecDependencyCaching)
	}
	if r.ErrorTypes[errparse.Timeout] > frequentFailureCount {
		recs = append(recs, RecTimeouts)
	}
	if r.ErrorTypes[errparse.EnvironmentSetup] > frequentFailureCount {
		recs = append(recs, RecEnvironment)
	}

	for _, name := range sortedKeys(r.CategoryStats) {
		stats := r.CategoryStats[name]
		if stats.SuccessRate < lowSuccessRateThreshold && stats.Total > minCategorySample {
			recs = append(recs, LowSuccessRecommendation(name, stats.SuccessRate))
		}
	}

	if len(r.NarrativeSignatures) > 0 {
		recs = append(recs, RecNarrativeReview, RecNarrativeIsolate)
	}

	if len(recs) == 0 {
		return []string{RecStable}
	}
	return recs
}

// LowSuccessRecommendation flags a category whose success rate is too low.
func LowSuccessRecommendation(category string, rate float64) string {
	return "Category '" + category + "' has a low success rate (" + formatRate(rate) + "%) - investigate recurring failures"
}

func isNarrative(errorType string) bool {
	for _, kw := range errparse.NarrativeKeywords {
		if strings.Contains(errorType, kw) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
