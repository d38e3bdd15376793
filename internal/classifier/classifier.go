// Package classifier implements the analytical log classifier: every line of a
// log is matched against an ordered signature table, each signature keeps a
// running occurrence count, and the result summarizes severity, anomalies and
// suggested responses.
package classifier

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/newhook/necropolis/internal/logparser"
)

// anomalyKeywords mark lines worth surfacing even when no signature matched.
var anomalyKeywords = []string{"error", "fail", "exception", "warn", "critical"}

const (
	maxLearningOpportunities = 3
	learningOpportunityWidth = 100
)

var adaptiveResponses = map[Severity][]string{
	SeverityError: {
		"Isolate the failing component and capture full logs",
		"Check recent dependency and configuration changes",
		"Re-run the failing step with verbose output",
	},
	SeverityWarning: {
		"Review warnings before they escalate",
		"Schedule cleanup of deprecated usage",
	},
	SeveritySuccess: {
		"Continue monitoring",
		"Record this run as a healthy baseline",
	},
}

// SignatureMatch records one line matched by a signature.
type SignatureMatch struct {
	Line            string   `json:"line"`
	Pattern         string   `json:"pattern"`
	Category        string   `json:"category"`
	Severity        Severity `json:"severity"`
	LearningWeight  float64  `json:"learning_weight"`
	OccurrenceCount int      `json:"occurrence_count"`
}

// Insights are derived from the matches and anomalies of one log.
type Insights struct {
	CategoryCounts           map[string]int `json:"category_counts"`
	AnomalyEmergenceDetected bool           `json:"anomaly_emergence_detected"`
	LearningOpportunities    []string       `json:"learning_opportunities"`
	AdaptiveResponses        []string       `json:"adaptive_responses"`
}

// Result is the classification of a single log blob.
type Result struct {
	Timestamp           time.Time        `json:"timestamp"`
	ClassificationLevel Severity         `json:"classification_level"`
	MatchedSignatures   []SignatureMatch `json:"matched_signatures"`
	Anomalies           []string         `json:"anomalies"`
	Insights            Insights         `json:"intelligence_insights"`
	Context             map[string]any   `json:"context,omitempty"`
}

// Classifier owns the signature table and its learning state. It is safe for
// concurrent use.
type Classifier struct {
	mu         sync.Mutex
	signatures []*Signature
	now        func() time.Time
}

// New returns a classifier with the built-in signatures followed by extra.
func New(extra ...SignatureSpec) (*Classifier, error) {
	specs := append(BuiltinSignatures(), extra...)
	sigs := make([]*Signature, 0, len(specs))
	for _, spec := range specs {
		sig, err := compile(spec)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}
	return &Classifier{
		signatures: sigs,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// ClassifyLogContent classifies logText. It never fails: blank lines are
// skipped and a log with nothing recognizable yields a SUCCESS-level result
// with no matches.
func (c *Classifier) ClassifyLogContent(logText string, context map[string]any) *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	result := &Result{
		Timestamp:           now,
		ClassificationLevel: SeveritySuccess,
		MatchedSignatures:   []SignatureMatch{},
		Anomalies:           []string{},
		Context:             context,
	}

	for _, raw := range strings.Split(logText, "\n") {
		line := strings.TrimSpace(logparser.StripANSI(raw))
		if line == "" {
			continue
		}

		sig := c.match(line)
		if sig == nil {
			if hasAnomalyKeyword(line) {
				result.Anomalies = append(result.Anomalies, line)
			}
			continue
		}

		sig.observe(now)
		result.MatchedSignatures = append(result.MatchedSignatures, SignatureMatch{
			Line:            line,
			Pattern:         sig.Pattern,
			Category:        sig.Category,
			Severity:        sig.Severity,
			LearningWeight:  sig.LearningWeight,
			OccurrenceCount: sig.OccurrenceCount,
		})
		if sig.Severity.rank() > result.ClassificationLevel.rank() {
			result.ClassificationLevel = sig.Severity
		}
	}

	result.Insights = deriveInsights(result)
	return result
}

// match returns the first signature matching line.
func (c *Classifier) match(line string) *Signature {
	for _, sig := range c.signatures {
		if sig.re.MatchString(line) {
			return sig
		}
	}
	return nil
}

// Signatures returns a copy of the signature table and its learning state.
func (c *Classifier) Signatures() []Signature {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Signature, 0, len(c.signatures))
	for _, sig := range c.signatures {
		cp := *sig
		cp.re = nil
		out = append(out, cp)
	}
	return out
}

func deriveInsights(r *Result) Insights {
	counts := make(map[string]int)
	for _, m := range r.MatchedSignatures {
		counts[m.Category]++
	}

	opportunities := []string{}
	for _, a := range r.Anomalies {
		if len(opportunities) == maxLearningOpportunities {
			break
		}
		opportunities = append(opportunities, "Unclassified pattern: "+truncate(a, learningOpportunityWidth))
	}

	return Insights{
		CategoryCounts:           counts,
		AnomalyEmergenceDetected: len(r.Anomalies) > 0,
		LearningOpportunities:    opportunities,
		AdaptiveResponses:        append([]string(nil), adaptiveResponses[r.ClassificationLevel]...),
	}
}

func hasAnomalyKeyword(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range anomalyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
