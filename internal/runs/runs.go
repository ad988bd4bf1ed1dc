// Package runs implements the Run/Log substrate (§4.J): every stage opens
// a Run, commits per-row process log events as it goes, and closes the
// run with a single-line summary note. A Run is not a transaction — each
// row's work (and its log row) is committed individually so a mid-run
// crash leaves all prior progress intact, mirroring the teacher project's
// checkpoint manager's "commit as you go, never buffer the whole run"
// discipline.
package runs

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"kenshin-ingest/internal/db"
	"kenshin-ingest/internal/metrics"
	"kenshin-ingest/internal/model"

	"github.com/sirupsen/logrus"
)

// Run wraps a single stage invocation's bookkeeping: its own import_runs
// row plus running totals used to compose the closing note.
type Run struct {
	ID        int64
	StartedAt time.Time
	InputRoot string
	stage     string

	conn   *sql.DB
	cat    *db.Catalog
	logger *logrus.Logger

	processed int64
	ok        int64
	errored   int64
}

// Open inserts a new import_runs row and returns a handle for recording
// progress against it. cat may be nil in tests that don't need enum
// guarding; Log falls back to writing the value unguarded in that case.
func Open(ctx context.Context, conn *sql.DB, cat *db.Catalog, logger *logrus.Logger, stage, inputRoot string) (*Run, error) {
	now := time.Now()
	res, err := conn.ExecContext(ctx,
		`INSERT INTO import_runs (started_at, input_root, note) VALUES (?, ?, ?)`,
		now, nullIfEmpty(inputRoot), fmt.Sprintf("%s: started", stage))
	if err != nil {
		return nil, fmt.Errorf("runs: open: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	logger.WithFields(logrus.Fields{"run_id": id, "stage": stage, "input_root": inputRoot}).Info("run started")
	return &Run{ID: id, StartedAt: now, InputRoot: inputRoot, stage: stage, conn: conn, cat: cat, logger: logger}, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// CountOK / CountError let stages track totals for the closing note
// without a second query against xml_process_logs.
func (r *Run) CountOK()    { atomic.AddInt64(&r.processed, 1); atomic.AddInt64(&r.ok, 1) }
func (r *Run) CountError() { atomic.AddInt64(&r.processed, 1); atomic.AddInt64(&r.errored, 1); metrics.RunErrorsTotal.WithLabelValues(r.stage).Inc() }
func (r *Run) CountSkip()  { atomic.AddInt64(&r.processed, 1) }

// Close sets finished_at and a one-line note summarizing the run. Exit
// code selection (0/2/non-zero) is the caller's responsibility based on
// r.Errored().
func (r *Run) Close(ctx context.Context, extra string) error {
	finished := time.Now()
	note := fmt.Sprintf("%s: processed=%d ok=%d err=%d", r.stage, atomic.LoadInt64(&r.processed), atomic.LoadInt64(&r.ok), atomic.LoadInt64(&r.errored))
	if extra != "" {
		note += " — " + extra
	}
	_, err := r.conn.ExecContext(ctx,
		`UPDATE import_runs SET finished_at=?, note=? WHERE run_id=?`, finished, note, r.ID)
	r.logger.WithFields(logrus.Fields{
		"run_id": r.ID, "stage": r.stage, "processed": r.processed, "ok": r.ok, "errored": r.errored,
	}).Info("run finished")
	return err
}

func (r *Run) Errored() int64 { return atomic.LoadInt64(&r.errored) }
func (r *Run) Processed() int64 { return atomic.LoadInt64(&r.processed) }

// Log writes one xml_process_logs row, durable independent of whatever the
// caller does with the data row it describes (§4.J: "Log inserts ... are
// durable even if the caller rolls back data writes for that row"). step and
// result are guarded against the column's declared enum set before the
// insert, so a caller passing a step/result the schema doesn't recognize
// still produces a row (remapped to OTHER, or to the enum's first member
// when OTHER is not declared) instead of failing (§4.L, §8.5).
func (r *Run) Log(ctx context.Context, xmlSHA256 string, step model.ProcessStep, result model.LogResult, message string) error {
	stepVal := string(step)
	resultVal := string(result)
	if r.cat != nil {
		stepVal = r.cat.GuardEnum(ctx, "xml_process_logs", "step", stepVal)
		resultVal = r.cat.GuardEnum(ctx, "xml_process_logs", "result", resultVal)
	}
	metrics.ProcessLogsTotal.WithLabelValues(stepVal, resultVal).Inc()
	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO xml_process_logs (run_id, xml_sha256, step, result, message, processed_at) VALUES (?,?,?,?,?,?)`,
		r.ID, xmlSHA256, stepVal, resultVal, message, time.Now())
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{"xml_sha256": xmlSHA256, "step": step}).Warn("process log insert failed")
	}
	return err
}
