package relation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"sync"
)

// mockConnector is an in-memory database/sql driver that records statements
// and answers queries from a scripted queue of result sets.
type mockConnector struct {
	mu      sync.Mutex
	queries []string
	script  []mockResult
}

type mockResult struct {
	columns []string
	rows    [][]driver.Value
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

func (c *mockConnector) recordedQueries() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.queries))
	copy(out, c.queries)
	return out
}

func (c *mockConnector) Connect(context.Context) (driver.Conn, error) { return &mockConn{c: c}, nil }
func (c *mockConnector) Driver() driver.Driver                        { return c }
func (c *mockConnector) Open(string) (driver.Conn, error)             { return &mockConn{c: c}, nil }

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

func (m *mockConn) CheckNamedValue(*driver.NamedValue) error { return nil }

func (m *mockConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	c := m.c
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queries = append(c.queries, query)

	var res mockResult
	if len(c.script) > 0 {
		res = c.script[0]
		c.script = c.script[1:]
	}
	return &mockRows{columns: res.columns, rows: res.rows}, nil
}

func (m *mockConn) ExecContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Result, error) {
	c := m.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queries = append(c.queries, query)
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
