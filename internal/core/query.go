package core

import (
	"github.com/coregx/chisel/internal/schema"
)

// Direction is an ORDER BY direction keyword.
type Direction string

const (
	// Asc sorts ascending.
	Asc Direction = "ASC"
	// Desc sorts descending.
	Desc Direction = "DESC"
)

// JoinKind is the set of supported join types.
type JoinKind string

const (
	// JoinInner is an INNER JOIN.
	JoinInner JoinKind = "INNER"
	// JoinLeft is a LEFT JOIN.
	JoinLeft JoinKind = "LEFT"
	// JoinRight is a RIGHT JOIN.
	JoinRight JoinKind = "RIGHT"
	// JoinFull is a FULL JOIN.
	JoinFull JoinKind = "FULL"
	// JoinCross is a CROSS JOIN; it carries no ON condition.
	JoinCross JoinKind = "CROSS"
)

// Join describes one join clause of a query.
// Global selects the cluster-safe GLOBAL variant; Any the at-most-one-match
// variant. Both modifiers may combine.
type Join struct {
	Kind   JoinKind
	Table  *schema.Table
	On     *Expr
	Global bool
	Any    bool
}

type cte struct {
	name string
	q    *Query
}

type selectItem struct {
	alias string
	value any
}

type orderItem struct {
	value any
	dir   Direction
}

type sampleClause struct {
	ratio     float64
	offset    float64
	hasOffset bool
}

// Query is an abstract, composable description of a SELECT query.
// It is assembled incrementally and handed to the compiler once per
// execution; the compiler itself is stateless.
//
// A Query must carry exactly one root table (or FROM subquery) before
// compilation; absence is fatal.
type Query struct {
	table    *schema.Table
	sub      *Query
	subAlias string

	ctes       []cte
	selects    []selectItem
	distinct   bool
	final      bool
	joins      []Join
	arrayJoins []any
	prewhere   []*Expr
	where      []*Expr
	having     []*Expr
	groupBy    []any
	orderBy    []orderItem
	limit      int
	hasLimit   bool
	offset     int
	hasOffset  bool
	sample     *sampleClause
	settings   map[string]any
	windows    map[string]string

	suggestions []string
}

// From starts a query over the given root table.
func From(t *schema.Table) *Query {
	return &Query{table: t}
}

// FromSubquery starts a query over a parenthesized subquery.
func FromSubquery(sub *Query, alias string) *Query {
	return &Query{sub: sub, subAlias: alias}
}

// Table returns the root table, or nil for subquery-rooted queries.
func (q *Query) Table() *schema.Table {
	return q.table
}

// With prepends a named CTE.
func (q *Query) With(name string, sub *Query) *Query {
	q.ctes = append(q.ctes, cte{name: name, q: sub})
	return q
}

// Select adds columns to the select list, each aliased by its own name.
func (q *Query) Select(cols ...*schema.Column) *Query {
	for _, col := range cols {
		q.selects = append(q.selects, selectItem{alias: col.Name, value: col})
	}
	return q
}

// SelectAs adds a single output with an explicit alias. The value may be a
// column, an expression, or a string column name resolved against the root
// table at compile time.
func (q *Query) SelectAs(alias string, v any) *Query {
	q.selects = append(q.selects, selectItem{alias: alias, value: v})
	return q
}

// Distinct marks the query as SELECT DISTINCT.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Final appends the FINAL modifier to the FROM clause.
func (q *Query) Final() *Query {
	q.final = true
	return q
}

// AddJoin appends a fully specified join clause.
func (q *Query) AddJoin(j Join) *Query {
	q.joins = append(q.joins, j)
	return q
}

// InnerJoin appends an INNER JOIN with an ON condition.
func (q *Query) InnerJoin(t *schema.Table, on *Expr) *Query {
	return q.AddJoin(Join{Kind: JoinInner, Table: t, On: on})
}

// LeftJoin appends a LEFT JOIN with an ON condition.
func (q *Query) LeftJoin(t *schema.Table, on *Expr) *Query {
	return q.AddJoin(Join{Kind: JoinLeft, Table: t, On: on})
}

// CrossJoin appends a CROSS JOIN.
func (q *Query) CrossJoin(t *schema.Table) *Query {
	return q.AddJoin(Join{Kind: JoinCross, Table: t})
}

// ArrayJoin appends columns to the ARRAY JOIN clause, expanding each
// array-typed column into one row per element.
func (q *Query) ArrayJoin(items ...any) *Query {
	q.arrayJoins = append(q.arrayJoins, items...)
	return q
}

// PreWhere adds a PREWHERE condition. Multiple conditions are ANDed.
func (q *Query) PreWhere(e *Expr) *Query {
	if e != nil {
		q.prewhere = append(q.prewhere, e)
	}
	return q
}

// Where adds a WHERE condition. Multiple conditions are ANDed.
func (q *Query) Where(e *Expr) *Query {
	if e != nil {
		q.where = append(q.where, e)
	}
	return q
}

// Having adds a HAVING condition. Multiple conditions are ANDed.
func (q *Query) Having(e *Expr) *Query {
	if e != nil {
		q.having = append(q.having, e)
	}
	return q
}

// GroupBy appends grouping keys (columns, expressions, or raw strings).
func (q *Query) GroupBy(items ...any) *Query {
	q.groupBy = append(q.groupBy, items...)
	return q
}

// OrderBy appends an ordering key with a direction.
func (q *Query) OrderBy(v any, dir Direction) *Query {
	q.orderBy = append(q.orderBy, orderItem{value: v, dir: dir})
	return q
}

// Limit sets the row limit.
func (q *Query) Limit(n int) *Query {
	q.limit = n
	q.hasLimit = true
	return q
}

// Offset sets the row offset.
func (q *Query) Offset(n int) *Query {
	q.offset = n
	q.hasOffset = true
	return q
}

// Sample sets the SAMPLE ratio.
func (q *Query) Sample(ratio float64) *Query {
	q.sample = &sampleClause{ratio: ratio}
	return q
}

// SampleOffset sets the SAMPLE ratio with an offset.
func (q *Query) SampleOffset(ratio, offset float64) *Query {
	q.sample = &sampleClause{ratio: ratio, offset: offset, hasOffset: true}
	return q
}

// Setting adds a SETTINGS entry. Keys are rendered sorted, so insertion
// order does not affect the generated SQL.
func (q *Query) Setting(name string, value any) *Query {
	if q.settings == nil {
		q.settings = make(map[string]any)
	}
	q.settings[name] = value
	return q
}

// Window declares a named WINDOW definition. The definition string is
// embedded verbatim inside the parentheses.
func (q *Query) Window(name, definition string) *Query {
	if q.windows == nil {
		q.windows = make(map[string]string)
	}
	q.windows[name] = definition
	return q
}

// Suggest records a human-readable optimization suggestion on the
// description. The compiler carries suggestions through to the template.
func (q *Query) Suggest(msg string) *Query {
	q.suggestions = append(q.suggestions, msg)
	return q
}
