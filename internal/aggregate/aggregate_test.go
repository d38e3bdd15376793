package aggregate

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/newhook/necropolis/internal/logging"
	"github.com/newhook/necropolis/internal/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	report  *Report
	records []*outcome.Record
	path    string
	err     error
}

func (f *fakeLedger) RecordRun(_ context.Context, report *Report, records []*outcome.Record, reportPath string) error {
	f.report = report
	f.records = records
	f.path = reportPath
	return f.err
}

func newTestAggregator(out *bytes.Buffer, ledger Ledger) *Aggregator {
	a := New(out, Options{}, ledger)
	a.now = func() time.Time { return testTime }
	a.newID = func() string { return "run-1" }
	return a
}

func writeRecord(t *testing.T, dir string, rec *outcome.Record) {
	t.Helper()
	require.NoError(t, outcome.WriteFiles(dir, rec))
}

func writeZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func mustJSON(t *testing.T, rec *outcome.Record) string {
	t.Helper()
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	return string(data)
}

func TestRunWritesLayout(t *testing.T) {
	artifacts := t.TempDir()
	output := t.TempDir()
	for i, rec := range []*outcome.Record{
		failure("install deps", "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE", "deps"),
		failure("install deps", "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE", "deps"),
		failure("install/deps", "DEPENDENCY_FAILURE", "npm ERR! code ERESOLVE", "deps"),
		failure("e2e", "TIMEOUT", "timeout", "e2e"),
		failure("e2e", "TIMEOUT", "timeout", "e2e"),
	} {
		writeRecord(t, filepath.Join(artifacts, "step", string(rune('a'+i))), rec)
	}

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, output)
	require.NoError(t, err)

	runDir := filepath.Join(output, "necropolis", "runs", "2026-03-01", "1230")
	assert.Equal(t, runDir, res.RunDir)
	assert.Equal(t, 5, res.Artifacts)
	assert.Equal(t, 5, res.Report.TotalOutcomes)
	assert.Equal(t, map[string]int{"DEPENDENCY_FAILURE": 3, "TIMEOUT": 2}, res.Report.ErrorTypes)
	assert.Contains(t, res.Report.Recommendations, RecDependencyCaching)

	assert.FileExists(t, filepath.Join(runDir, ReportFileName))
	assert.FileExists(t, filepath.Join(runDir, MarkdownFileName))
	assert.FileExists(t, filepath.Join(runDir, "install_deps_0.json"))
	assert.FileExists(t, filepath.Join(runDir, "install_deps_2.json"))
	assert.FileExists(t, filepath.Join(runDir, "e2e_4.json"))

	latest, err := LoadReport(LatestReportPath(output))
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
	assert.Equal(t, res.Report.ErrorTypes, latest.ErrorTypes)
	assert.Contains(t, out.String(), "Discovered 5 artifact(s)")
}

func TestRunEmptyArtifacts(t *testing.T) {
	output := t.TempDir()

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), filepath.Join(t.TempDir(), "missing"), output)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Report.TotalOutcomes)
	assert.Equal(t, 100.0, res.Report.OverallSuccessRate)
	assert.Equal(t, []string{RecNoArtifacts}, res.Report.Recommendations)
	assert.FileExists(t, res.LatestPath)
}

func TestRunSkipsMalformedZipMember(t *testing.T) {
	artifacts := t.TempDir()
	output := t.TempDir()
	scratch := t.TempDir()
	t.Setenv("TMPDIR", scratch)
	writeZip(t, filepath.Join(artifacts, "necromancer-linux.zip"), map[string]string{
		"good/outcome.json":   mustJSON(t, success("build", "build")),
		"bad/outcome.json":    "{not json",
		"schema/outcome.json": `{"name": "no outcome"}`,
		"notes.txt":           "ignored",
	})
	writeZip(t, filepath.Join(artifacts, "other.zip"), map[string]string{
		"outcome.json": mustJSON(t, success("ignored", "build")),
	})

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, output)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Artifacts)
	assert.Equal(t, 1, res.Report.TotalOutcomes)
	assert.Equal(t, 1, res.Report.TotalSuccesses)
	assert.Contains(t, out.String(), "warning: skipping")

	leftovers, err := filepath.Glob(filepath.Join(scratch, "necropolis-artifact-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestRunRejectsZipSlip(t *testing.T) {
	artifacts := t.TempDir()
	writeZip(t, filepath.Join(artifacts, "necromancer-evil.zip"), map[string]string{
		"../../outcome.json": mustJSON(t, success("evil", "x")),
	})

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, res.Report.TotalOutcomes)
	assert.Contains(t, out.String(), "warning: skipping")
}

func TestRunDeduplicatesNDJSONSibling(t *testing.T) {
	artifacts := t.TempDir()
	writeRecord(t, filepath.Join(artifacts, "a"), failure("a", "TIMEOUT", "timeout", "e2e"))

	ndjsonOnly := filepath.Join(artifacts, "b")
	require.NoError(t, os.MkdirAll(ndjsonOnly, 0755))
	lines := mustJSON(t, success("b1", "build")) + "\n\n" + "garbage\n" + mustJSON(t, success("b2", "build")) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(ndjsonOnly, outcome.NDJSONFileName), []byte(lines), 0644))

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Artifacts)
	assert.Equal(t, 3, res.Report.TotalOutcomes)
	assert.Equal(t, 2, res.Report.TotalSuccesses)
}

func TestRunWarnsOnIncompatibleVersion(t *testing.T) {
	artifacts := t.TempDir()
	rec := success("future", "build")
	rec.NecropolisVersion = "2.0.0"
	writeRecord(t, artifacts, rec)

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Report.TotalOutcomes)
	assert.Contains(t, out.String(), "necropolis_version 2.0.0")
}

func TestRunRecordsLedger(t *testing.T) {
	artifacts := t.TempDir()
	writeRecord(t, artifacts, failure("a", "TIMEOUT", "timeout", "e2e"))
	ledger := &fakeLedger{err: errors.New("disk full")}

	var out bytes.Buffer
	res, err := newTestAggregator(&out, ledger).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Same(t, res.Report, ledger.report)
	assert.Len(t, ledger.records, 1)
	assert.Equal(t, res.ReportPath, ledger.path)
	assert.Contains(t, out.String(), "disk full")
}

func TestRunOutputDirError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	var out bytes.Buffer
	_, err := newTestAggregator(&out, nil).Run(context.Background(), t.TempDir(), blocker)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputDir)
}

func TestRunCancelled(t *testing.T) {
	artifacts := t.TempDir()
	writeRecord(t, artifacts, success("a", "build"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	_, err := newTestAggregator(&out, nil).Run(ctx, artifacts, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunSkipsUnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}
	artifacts := t.TempDir()
	writeRecord(t, filepath.Join(artifacts, "a-good"), failure("e2e", "TIMEOUT", "timeout", "e2e"))
	locked := filepath.Join(artifacts, "b-locked")
	require.NoError(t, os.MkdirAll(locked, 0755))
	require.NoError(t, os.Chmod(locked, 0))
	t.Cleanup(func() { _ = os.Chmod(locked, 0755) })
	writeRecord(t, filepath.Join(artifacts, "c-good"), success("build", "build"))

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 2, res.Artifacts)
	assert.Equal(t, 2, res.Report.TotalOutcomes)
	assert.Equal(t, map[string]int{"TIMEOUT": 1}, res.Report.ErrorTypes)
	assert.Contains(t, out.String(), "b-locked")
}

func TestRunAcceptsDotEntryInZip(t *testing.T) {
	artifacts := t.TempDir()
	writeZip(t, filepath.Join(artifacts, "necromancer-dot.zip"), map[string]string{
		"./":             "",
		"a/outcome.json": mustJSON(t, success("build", "build")),
	})

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Report.TotalOutcomes)
	assert.NotContains(t, out.String(), "escapes extraction directory")
}

func TestRunAllRecordsMalformed(t *testing.T) {
	artifacts := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(artifacts, outcome.JSONFileName), []byte("{broken"), 0644))

	var out bytes.Buffer
	res, err := newTestAggregator(&out, nil).Run(context.Background(), artifacts, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Artifacts)
	assert.Equal(t, 0, res.Report.TotalOutcomes)
	assert.Equal(t, 100.0, res.Report.OverallSuccessRate)
	assert.Equal(t, []string{RecNoValidRecords}, res.Report.Recommendations)
}

func TestRunSameMinuteReplacesRecordCopies(t *testing.T) {
	first := t.TempDir()
	writeRecord(t, filepath.Join(first, "a"), failure("install", "DEPENDENCY_FAILURE", "npm ERR!", "deps"))
	writeRecord(t, filepath.Join(first, "b"), failure("e2e", "TIMEOUT", "timeout", "e2e"))
	second := t.TempDir()
	writeRecord(t, second, success("build", "build"))
	output := t.TempDir()

	var out bytes.Buffer
	agg := newTestAggregator(&out, nil)
	res, err := agg.Run(context.Background(), first, output)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(res.RunDir, "e2e_1.json"))

	res, err = agg.Run(context.Background(), second, output)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(res.RunDir, "build_0.json"))
	assert.NoFileExists(t, filepath.Join(res.RunDir, "install_0.json"))
	assert.NoFileExists(t, filepath.Join(res.RunDir, "e2e_1.json"))
	report, err := LoadReport(res.ReportPath)
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalOutcomes)
}

func TestRunLogsRunID(t *testing.T) {
	logRoot := t.TempDir()
	logging.Init(logRoot, slog.LevelInfo)
	t.Cleanup(func() { _ = logging.Close() })

	var out bytes.Buffer
	_, err := newTestAggregator(&out, nil).Run(context.Background(), t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.NoError(t, logging.Close())

	data, err := os.ReadFile(filepath.Join(logRoot, logging.StateDir, logging.LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"aggregation finished","run_id":"run-1"`)
}

func TestRecordFileName(t *testing.T) {
	tests := []struct {
		name  string
		index int
		want  string
	}{
		{"unit-tests", 0, "unit-tests_0.json"},
		{"build / linux (x64)", 3, "build___linux__x64__3.json"},
		{"", 1, "outcome_1.json"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, RecordFileName(tt.name, tt.index))
		})
	}
}
