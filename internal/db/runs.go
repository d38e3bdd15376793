package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/newhook/necropolis/internal/aggregate"
	"github.com/newhook/necropolis/internal/outcome"
)

var _ aggregate.Ledger = (*DB)(nil)

// Run is one recorded aggregation run.
type Run struct {
	ID                 string
	GeneratedAt        time.Time
	TotalOutcomes      int
	TotalFailures      int
	TotalSuccesses     int
	OverallSuccessRate float64
	UniqueErrorTypes   int
	ReportPath         string
}

// FingerprintCount is a failure fingerprint counted across every recorded run.
type FingerprintCount struct {
	Fingerprint string
	ErrorType   string
	Count       int
	Runs        int
	LastSeen    time.Time
}

// RecordRun stores a run and its records in one transaction.
func (db *DB) RecordRun(ctx context.Context, report *aggregate.Report, records []*outcome.Record, reportPath string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO aggregation_runs (
			id, generated_at, total_outcomes, total_failures, total_successes,
			overall_success_rate, unique_error_types, report_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, report.RunID, report.GeneratedAt.UTC().Format(time.RFC3339), report.TotalOutcomes,
		report.TotalFailures, report.TotalSuccesses, report.OverallSuccessRate,
		report.UniqueErrorTypes, reportPath)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", report.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (
			id, run_id, name, outcome, error_type, fingerprint, category, variant,
			exit_code, duration_seconds, git_sha, workflow, ci_run_id, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		_, err := stmt.ExecContext(ctx, uuid.New().String(), report.RunID, rec.Name, rec.Outcome,
			rec.ErrorType, rec.Fingerprint, rec.Category, rec.Variant, rec.ExitCode,
			rec.DurationSeconds, rec.GitSHA, rec.Workflow, rec.RunID, rec.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to record outcome %s: %w", rec.Name, err)
		}
	}

	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, generated_at, total_outcomes, total_failures, total_successes,
			overall_success_rate, unique_error_types, report_path
		FROM aggregation_runs
		ORDER BY generated_at DESC, created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var generatedAt string
		if err := rows.Scan(&r.ID, &generatedAt, &r.TotalOutcomes, &r.TotalFailures,
			&r.TotalSuccesses, &r.OverallSuccessRate, &r.UniqueErrorTypes, &r.ReportPath); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.GeneratedAt = parseTime(generatedAt)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// TopFingerprints returns the failure fingerprints seen most often across
// all recorded runs.
func (db *DB) TopFingerprints(ctx context.Context, limit int) ([]FingerprintCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT o.fingerprint, MAX(o.error_type), COUNT(*), COUNT(DISTINCT o.run_id), MAX(r.generated_at)
		FROM outcomes o
		JOIN aggregation_runs r ON r.id = o.run_id
		WHERE o.outcome = ?
		GROUP BY o.fingerprint
		ORDER BY COUNT(*) DESC, o.fingerprint
		LIMIT ?
	`, outcome.Failure, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query fingerprints: %w", err)
	}
	defer rows.Close()

	var counts []FingerprintCount
	for rows.Next() {
		var fc FingerprintCount
		var lastSeen string
		if err := rows.Scan(&fc.Fingerprint, &fc.ErrorType, &fc.Count, &fc.Runs, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		fc.LastSeen = parseTime(lastSeen)
		counts = append(counts, fc)
	}
	return counts, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
