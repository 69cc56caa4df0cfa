package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ampliconflow/internal/stats"
)

const runColumns = "id, mode, backend, manifest, output_dir, status, started_at, finished_at, error_kind, error_message, summary_json"

// Begin inserts a running record.
func (s *Store) Begin(ctx context.Context, start Start) error {
	if start.ID == "" {
		return errors.New("run id required")
	}
	startedAt := start.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, mode, backend, manifest, output_dir, status, started_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		start.ID,
		start.Mode,
		start.Backend,
		nullIfEmpty(start.Manifest),
		nullIfEmpty(start.OutputDir),
		StatusRunning,
		formatTime(startedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Complete finalizes a run with its summary, per-sample statistics and
// compressed engine logs in one transaction.
func (s *Store) Complete(ctx context.Context, id string, c Completion) error {
	ctx = ensureContext(ctx)
	summaryJSON, err := json.Marshal(c.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	finishedAt := c.FinishedAt
	if finishedAt.IsZero() {
		finishedAt = time.Now()
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin completion tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, finished_at = ?, summary_json = ?, error_kind = NULL, error_message = NULL
             WHERE id = ?`,
			StatusCompleted, formatTime(finishedAt), string(summaryJSON), id,
		)
		if err != nil {
			return fmt.Errorf("update run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("complete run %s: %w", id, sql.ErrNoRows)
		}
		for i, sample := range c.Samples {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO run_samples (run_id, position, sample_id, initial_reads, passed_reads, mapped_reads, chimera_reads)
                 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				id, i, sample.SampleID, sample.Initial, sample.Passed, sample.Mapped, sample.Chimera,
			); err != nil {
				return fmt.Errorf("insert sample %s: %w", sample.SampleID, err)
			}
		}
		for i, log := range c.Logs {
			blob, err := compressLog(log.Text)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO run_logs (run_id, position, stage, command, duration_ms, log_zstd)
                 VALUES (?, ?, ?, ?, ?, ?)`,
				id, i, log.Stage, log.Command, log.Duration.Milliseconds(), blob,
			); err != nil {
				return fmt.Errorf("insert log %d: %w", i, err)
			}
		}
		return tx.Commit()
	})
}

// Fail marks a run failed and records the error classification.
func (s *Store) Fail(ctx context.Context, id string, runErr error) error {
	message := ""
	if runErr != nil {
		message = runErr.Error()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_kind = ?, error_message = ? WHERE id = ?`,
		StatusFailed, formatTime(time.Now()), nullIfEmpty(ErrorKind(runErr)), nullIfEmpty(message), id,
	)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("fail run %s: %w", id, sql.ErrNoRows)
	}
	return nil
}

// MarkAbandoned closes out running records started before cutoff and
// returns how many were updated.
func (s *Store) MarkAbandoned(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, error_message = ? WHERE status = ? AND started_at < ?`,
		StatusAbandoned, formatTime(time.Now()), "process exited before the run finished", StatusRunning, formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("mark abandoned runs: %w", err)
	}
	return res.RowsAffected()
}

// Get returns the run with id, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// List returns runs newest first; limit <= 0 returns all of them.
func (s *Store) List(ctx context.Context, limit int, statuses ...Status) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, status)
		}
	}
	query += ` ORDER BY started_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Samples returns the per-sample statistics of a run in manifest order.
func (s *Store) Samples(ctx context.Context, id string) ([]SampleStats, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT sample_id, initial_reads, passed_reads, mapped_reads, chimera_reads
         FROM run_samples WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list run samples: %w", err)
	}
	defer rows.Close()

	var out []SampleStats
	for rows.Next() {
		var st SampleStats
		if err := rows.Scan(&st.SampleID, &st.Initial, &st.Passed, &st.Mapped, &st.Chimera); err != nil {
			return nil, fmt.Errorf("scan run sample: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Logs returns the decompressed engine logs of a run in invocation order.
func (s *Store) Logs(ctx context.Context, id string) ([]Log, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT stage, command, duration_ms, log_zstd FROM run_logs WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var out []Log
	for rows.Next() {
		var (
			entry      Log
			durationMS int64
			blob       []byte
		)
		if err := rows.Scan(&entry.Stage, &entry.Command, &durationMS, &blob); err != nil {
			return nil, fmt.Errorf("scan run log: %w", err)
		}
		entry.Duration = time.Duration(durationMS) * time.Millisecond
		if entry.Text, err = decompressLog(blob); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanRun(scanner interface{ Scan(dest ...any) error }) (*Run, error) {
	var (
		run          Run
		status       string
		manifest     sql.NullString
		outputDir    sql.NullString
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		errorKind    sql.NullString
		errorMessage sql.NullString
		summaryRaw   sql.NullString
	)
	if err := scanner.Scan(
		&run.ID,
		&run.Mode,
		&run.Backend,
		&manifest,
		&outputDir,
		&status,
		&startedRaw,
		&finishedRaw,
		&errorKind,
		&errorMessage,
		&summaryRaw,
	); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.Manifest = manifest.String
	run.OutputDir = outputDir.String
	run.ErrorKind = errorKind.String
	run.ErrorMessage = errorMessage.String
	run.StartedAt = parseStoredTime(startedRaw)
	run.FinishedAt = parseStoredTime(finishedRaw)
	if summaryRaw.Valid && summaryRaw.String != "" {
		var summary stats.Summary
		if err := json.Unmarshal([]byte(summaryRaw.String), &summary); err != nil {
			return nil, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
		}
		run.Summary = &summary
	}
	return &run, nil
}
