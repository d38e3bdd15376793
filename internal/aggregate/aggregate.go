// Package aggregate turns many per-step outcome records into one taxonomy
// report: discovery of artifacts, tolerant loading, statistics,
// recommendations and persistence of JSON and Markdown output.
package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/newhook/necropolis/internal/logging"
	"github.com/newhook/necropolis/internal/outcome"
)

// ErrOutputDir is returned when the output tree cannot be created or written.
var ErrOutputDir = errors.New("cannot write output directory")

// Output layout under the output directory.
const (
	RootDirName         = "necropolis"
	KnowledgeBaseDir    = "knowledge-base"
	RunsDir             = "runs"
	ReportFileName      = "taxonomy_report.json"
	LatestReportName    = "latest_taxonomy_report.json"
	MarkdownFileName    = "README.md"
	defaultTopN         = 10
	defaultMarkdownTopN = 5
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Ledger persists aggregation runs beyond the JSON reports.
type Ledger interface {
	RecordRun(ctx context.Context, report *Report, records []*outcome.Record, reportPath string) error
}

// Options tune the report.
type Options struct {
	// TopFingerprints bounds the fingerprint groups in the JSON report.
	TopFingerprints int
	// MarkdownFingerprints bounds the fingerprint groups in README.md.
	MarkdownFingerprints int
}

// Result describes a finished run.
type Result struct {
	Report     *Report
	RunDir     string
	ReportPath string
	LatestPath string
	Artifacts  int
}

// Aggregator runs aggregations. Human-readable progress goes to out.
type Aggregator struct {
	out    io.Writer
	opts   Options
	ledger Ledger
	now    func() time.Time
	newID  func() string
}

// New creates an Aggregator. A nil ledger disables the ledger.
func New(out io.Writer, opts Options, ledger Ledger) *Aggregator {
	if opts.TopFingerprints <= 0 {
		opts.TopFingerprints = defaultTopN
	}
	if opts.MarkdownFingerprints <= 0 {
		opts.MarkdownFingerprints = defaultMarkdownTopN
	}
	return &Aggregator{
		out:    out,
		opts:   opts,
		ledger: ledger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// Run aggregates every outcome record under artifactsDir and writes the
// report tree under outputDir. Only output failures and cancellation are
// returned as errors; bad inputs are skipped.
func (a *Aggregator) Run(ctx context.Context, artifactsDir, outputDir string) (*Result, error) {
	now := a.now().UTC()
	runID := a.newID()

	artifacts, err := Discover(artifactsDir)
	if err != nil {
		a.warn(artifactsDir, err)
	}
	fmt.Fprintf(a.out, "Discovered %d artifact(s) in %s\n", len(artifacts), artifactsDir)
	log := logging.With("run_id", runID)
	log.Info("aggregation started", "artifacts_dir", artifactsDir, "artifacts", len(artifacts))

	var records []*outcome.Record
	report := EmptyReport(runID, now)
	if len(artifacts) > 0 {
		records, err = a.load(ctx, artifacts)
		if err != nil {
			return nil, err
		}
		report = Compute(records, runID, now, a.opts.TopFingerprints)
		if len(records) == 0 {
			report.Recommendations = []string{RecNoValidRecords}
		}
	}

	res, err := a.persist(report, records, outputDir)
	if err != nil {
		return nil, err
	}
	res.Artifacts = len(artifacts)

	if a.ledger != nil {
		if err := a.ledger.RecordRun(ctx, report, records, res.ReportPath); err != nil {
			a.warn("ledger", err)
		}
	}

	log.Info("aggregation finished", "outcomes", report.TotalOutcomes, "report", res.ReportPath)
	return res, nil
}

func (a *Aggregator) persist(report *Report, records []*outcome.Record, outputDir string) (*Result, error) {
	at := report.GeneratedAt
	base := filepath.Join(outputDir, RootDirName)
	runDir := filepath.Join(base, RunsDir, at.Format("2006-01-02"), at.Format("1504"))
	kbDir := filepath.Join(base, KnowledgeBaseDir)

	// A run within the same minute replaces the earlier run's directory,
	// including its per-record copies.
	if err := os.RemoveAll(runDir); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutputDir, err)
	}
	for _, dir := range []string{runDir, kbDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutputDir, err)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}

	res := &Result{
		Report:     report,
		RunDir:     runDir,
		ReportPath: filepath.Join(runDir, ReportFileName),
		LatestPath: filepath.Join(kbDir, LatestReportName),
	}
	writes := []struct {
		path string
		data []byte
	}{
		{res.ReportPath, data},
		{res.LatestPath, data},
		{filepath.Join(runDir, MarkdownFileName), []byte(RenderMarkdown(report, a.opts.MarkdownFingerprints))},
	}
	for _, w := range writes {
		if err := os.WriteFile(w.path, w.data, 0644); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutputDir, err)
		}
	}

	for i, rec := range records {
		path := filepath.Join(runDir, RecordFileName(rec.Name, i))
		if err := outcome.WriteFile(path, rec); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOutputDir, err)
		}
	}
	return res, nil
}

// RecordFileName is the file a copied input record is written to.
func RecordFileName(name string, index int) string {
	safe := unsafeNameChars.ReplaceAllString(name, "_")
	if safe == "" {
		safe = "outcome"
	}
	return fmt.Sprintf("%s_%d.json", safe, index)
}

// LoadReport reads a taxonomy report written by Run.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report %s: %w", path, err)
	}
	return &r, nil
}

// LatestReportPath returns where Run writes the latest report for outputDir.
func LatestReportPath(outputDir string) string {
	return filepath.Join(outputDir, RootDirName, KnowledgeBaseDir, LatestReportName)
}
