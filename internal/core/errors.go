package core

import (
	"errors"
	"sort"
	"strings"

	"github.com/coregx/chisel/internal/schema"
)

// Predefined errors returned by Chisel compilation and execution.
var (
	// ErrMissingTable is returned when a query description carries no root table.
	ErrMissingTable = errors.New("query has no root table")
	// ErrWaitTimeout is returned when polling for mutation completion exceeds
	// the configured timeout. The remote mutation is unaffected.
	ErrWaitTimeout = errors.New("timed out waiting for mutations to complete")

	// errNilRef marks a nil column or expression inside an expression tree.
	// The compiler wraps it with the offending table's column candidates.
	errNilRef = errors.New("nil column or expression in expression tree")
)

// CompilationError reports a fatal problem while compiling a query
// description: an unresolvable select alias or an undefined value inside an
// expression. It carries the offending alias and candidate column names.
type CompilationError struct {
	Alias      string
	Candidates []string
	msg        string
}

func (e *CompilationError) Error() string {
	return e.msg
}

// maxCandidates caps how many column names an error message lists.
const maxCandidates = 10

// newResolveError builds the error for a select alias that matched no column.
func newResolveError(table *schema.Table, alias string) *CompilationError {
	names := columnNames(table)

	var b strings.Builder
	b.WriteString("cannot resolve select alias ")
	b.WriteString(quoted(alias))
	if table != nil {
		b.WriteString(" on table ")
		b.WriteString(quoted(table.Name))
	}

	candidates := names
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}
	if len(candidates) > 0 {
		b.WriteString("; known columns: ")
		b.WriteString(strings.Join(candidates, ", "))
		if len(names) > len(candidates) {
			b.WriteString(", ...")
		}
	}

	if near := nearMatches(names, alias); len(near) > 0 {
		b.WriteString("; did you mean ")
		b.WriteString(strings.Join(near, " or "))
		b.WriteString("?")
	}

	return &CompilationError{
		Alias:      alias,
		Candidates: candidates,
		msg:        b.String(),
	}
}

// newUndefinedValueError builds the error for a nil column or expression
// inside an expression tree.
func newUndefinedValueError(table *schema.Table) *CompilationError {
	names := columnNames(table)
	candidates := names
	if len(candidates) > maxCandidates {
		candidates = candidates[:maxCandidates]
	}

	var b strings.Builder
	b.WriteString("undefined value in expression")
	if table != nil {
		b.WriteString(" on table ")
		b.WriteString(quoted(table.Name))
	}
	if len(candidates) > 0 {
		b.WriteString("; known columns: ")
		b.WriteString(strings.Join(candidates, ", "))
		if len(names) > len(candidates) {
			b.WriteString(", ...")
		}
	}

	return &CompilationError{
		Candidates: candidates,
		msg:        b.String(),
	}
}

// columnNames returns the sorted column names of a table.
func columnNames(t *schema.Table) []string {
	if t == nil {
		return nil
	}
	cols := t.Columns()
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// nearMatches finds column names that share a common-name affinity with the
// alias: one contains the other, case-insensitively.
func nearMatches(names []string, alias string) []string {
	lower := strings.ToLower(alias)
	var out []string
	for _, n := range names {
		ln := strings.ToLower(n)
		if strings.Contains(ln, lower) || strings.Contains(lower, ln) {
			out = append(out, quoted(n))
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}

func quoted(s string) string {
	return "\"" + s + "\""
}
