package core

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// mockResult is one scripted query response.
type mockResult struct {
	columns []string
	rows    [][]driver.Value
	err     error
}

// recordedQuery is one statement the mock connection saw.
type recordedQuery struct {
	sql  string
	args []driver.NamedValue
}

// mockConnector is an in-memory database/sql driver that records every
// statement and answers queries from a script. When the script runs dry the
// repeat result (if set) answers every further query; otherwise an empty
// result set does. Named arguments of any Go type are accepted unchanged.
type mockConnector struct {
	mu      sync.Mutex
	queries []recordedQuery
	execs   []recordedQuery
	script  []mockResult
	repeat  *mockResult
	execErr error
}

func newMockDB() (*sql.DB, *mockConnector) {
	c := &mockConnector{}
	return sql.OpenDB(c), c
}

func (c *mockConnector) pushResult(columns []string, rows ...[]driver.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.script = append(c.script, mockResult{columns: columns, rows: rows})
}

func (c *mockConnector) setRepeat(columns []string, row []driver.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = &mockResult{columns: columns, rows: [][]driver.Value{row}}
}

func (c *mockConnector) recordedQueries() []recordedQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedQuery, len(c.queries))
	copy(out, c.queries)
	return out
}

func (c *mockConnector) recordedExecs() []recordedQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]recordedQuery, len(c.execs))
	copy(out, c.execs)
	return out
}

// driver.Connector

func (c *mockConnector) Connect(context.Context) (driver.Conn, error) { return &mockConn{c: c}, nil }
func (c *mockConnector) Driver() driver.Driver                        { return c }

// driver.Driver

func (c *mockConnector) Open(string) (driver.Conn, error) { return &mockConn{c: c}, nil }

type mockConn struct {
	c *mockConnector
}

func (m *mockConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepared statements not supported")
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions not supported")
}

// CheckNamedValue accepts every value as-is so tests can assert on the exact
// Go values the query layer passes down.
func (m *mockConn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (m *mockConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c := m.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, recordedQuery{sql: query, args: args})

	var res mockResult
	switch {
	case len(c.script) > 0:
		res = c.script[0]
		c.script = c.script[1:]
	case c.repeat != nil:
		res = *c.repeat
	}
	if res.err != nil {
		return nil, res.err
	}
	return &mockRows{columns: res.columns, rows: res.rows}, nil
}

func (m *mockConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c := m.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.execs = append(c.execs, recordedQuery{sql: query, args: args})
	if c.execErr != nil {
		return nil, c.execErr
	}
	return driver.RowsAffected(0), nil
}

type mockRows struct {
	columns []string
	rows    [][]driver.Value
	pos     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.pos])
	r.pos++
	return nil
}
