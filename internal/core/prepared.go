package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/coregx/chisel/internal/tracer"
)

// PreparedQuery is a compiled template bound to specific literal values and
// a client handle, ready to run. Instances are created fresh per call and
// hold no shared mutable state beyond the template they reference.
type PreparedQuery struct {
	tpl    *Compiled
	params map[string]any
	conn   Conn
	db     *DB // optional; enables logging and tracing
}

// bind zips the template's ordered parameter names with the supplied literal
// values into a name-to-value map.
func bind(tpl *Compiled, values []any, conn Conn, db *DB) (*PreparedQuery, error) {
	if len(values) != len(tpl.ParamNames) {
		return nil, fmt.Errorf("parameter count mismatch: template has %d placeholders, got %d values",
			len(tpl.ParamNames), len(values))
	}

	params := make(map[string]any, len(values))
	for i, name := range tpl.ParamNames {
		params[name] = normalizeParam(values[i])
	}

	return &PreparedQuery{
		tpl:    tpl,
		params: params,
		conn:   conn,
		db:     db,
	}, nil
}

// SQL returns the compiled SQL text.
func (pq *PreparedQuery) SQL() string {
	return pq.tpl.SQL
}

// Params returns a copy of the bound parameter map.
func (pq *PreparedQuery) Params() map[string]any {
	out := make(map[string]any, len(pq.params))
	for k, v := range pq.params {
		out[k] = v
	}
	return out
}

// Template returns the underlying compiled template.
func (pq *PreparedQuery) Template() *Compiled {
	return pq.tpl
}

// args produces the driver arguments in placeholder order.
func (pq *PreparedQuery) args() []any {
	args := make([]any, 0, len(pq.tpl.ParamNames))
	for _, name := range pq.tpl.ParamNames {
		args = append(args, sql.Named(name, pq.params[name]))
	}
	return args
}

// Rows executes the query and resolves with the result set. This is the
// await-style entry point: callers run it and range over the rows without
// managing execution separately.
func (pq *PreparedQuery) Rows(ctx context.Context) (*sql.Rows, error) {
	var span tracer.Span
	if pq.db != nil {
		ctx, span = pq.db.tracer.StartSpan(ctx, "chisel.query.rows")
		defer span.End()
	}

	start := time.Now()
	rows, err := pq.conn.QueryContext(ctx, pq.tpl.SQL, pq.args()...)
	elapsed := time.Since(start)

	pq.observe(span, elapsed, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Execute fires the query as a mutation and resolves on success without a
// result set.
func (pq *PreparedQuery) Execute(ctx context.Context) error {
	var span tracer.Span
	if pq.db != nil {
		ctx, span = pq.db.tracer.StartSpan(ctx, "chisel.query.execute")
		defer span.End()
	}

	start := time.Now()
	_, err := pq.conn.ExecContext(ctx, pq.tpl.SQL, pq.args()...)
	elapsed := time.Since(start)

	pq.observe(span, elapsed, err)
	return err
}

// observe emits the execution log line and span attributes.
func (pq *PreparedQuery) observe(span tracer.Span, elapsed time.Duration, err error) {
	if pq.db == nil {
		return
	}

	masked := pq.db.sanitizer.FormatParams(pq.db.sanitizer.MaskParams(pq.tpl.SQL, pq.params))
	if err != nil {
		pq.db.logger.Error("query execution failed",
			"sql", pq.tpl.SQL,
			"params", masked,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	} else {
		pq.db.logger.Info("query executed",
			"sql", pq.tpl.SQL,
			"params", masked,
			"duration_ms", elapsed.Milliseconds(),
		)
	}

	if span != nil {
		tracer.AddQueryAttributes(span, &tracer.QueryMetadata{
			SQL:       pq.tpl.SQL,
			Duration:  elapsed,
			Error:     err,
			Operation: tracer.DetectOperation(pq.tpl.SQL),
			Table:     pq.tpl.Table,
		})
	}
}

// WaitOptions configures mutation-completion polling.
type WaitOptions struct {
	// PollInterval is the delay between status checks. Defaults to 500ms.
	PollInterval time.Duration
	// Timeout bounds the total wait. Defaults to 30s. Exceeding it fails
	// the wait locally without canceling the remote mutation.
	Timeout time.Duration
}

const (
	defaultPollInterval = 500 * time.Millisecond
	defaultWaitTimeout  = 30 * time.Second
)

// mutationStatusSQL counts unfinished mutations for the query's table.
const mutationStatusSQL = "SELECT count() FROM system.mutations WHERE table = {t:String} AND is_done = 0"

// Wait polls system.mutations until no unfinished mutation remains for the
// query's table, the timeout elapses, or the context is canceled. A timeout
// returns ErrWaitTimeout; the in-flight remote mutation is unaffected.
func (pq *PreparedQuery) Wait(ctx context.Context, opts WaitOptions) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultWaitTimeout
	}

	deadline := time.Now().Add(opts.Timeout)
	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		done, err := pq.mutationsDone(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w after %s", ErrWaitTimeout, opts.Timeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// mutationsDone reports whether all mutations for the template's table have
// completed.
func (pq *PreparedQuery) mutationsDone(ctx context.Context) (bool, error) {
	rows, err := pq.conn.QueryContext(ctx, mutationStatusSQL, sql.Named("t", pq.tpl.Table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return false, rows.Err()
	}

	var pending uint64
	if err := rows.Scan(&pending); err != nil {
		return false, err
	}
	return pending == 0, rows.Err()
}
