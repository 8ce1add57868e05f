// Package relation materializes declarative relation-inclusion trees into
// single round-trip ClickHouse queries and reconstructs nested records from
// the flat result set. To-many relations at the top level are fetched as
// aggregated tuple arrays instead of row-multiplying joins; deeper to-many
// relations fall back to joins and are deduplicated after reconstruction.
package relation

import (
	"context"
	"fmt"

	"github.com/coregx/chisel/internal/core"
	"github.com/coregx/chisel/internal/schema"
)

// Record is one reconstructed result object. To-one relations nest as Record
// (or nil when absent), to-many relations as []Record.
type Record = map[string]any

// Filter builds a condition from the table's columns, keyed by name.
type Filter func(cols map[string]*schema.Column) *core.Expr

// Strategy selects how relation joins are rendered on clustered setups.
type Strategy string

const (
	// StrategyAuto picks GLOBAL joins when either side of a relation is
	// distributed across a cluster. The default.
	StrategyAuto Strategy = "auto"
	// StrategyStandard always renders plain joins.
	StrategyStandard Strategy = "standard"
	// StrategyGlobal always renders GLOBAL joins.
	StrategyGlobal Strategy = "global"
	// StrategyAny renders ANY joins, keeping at most one match per row.
	StrategyAny Strategy = "any"
	// StrategyGlobalAny combines GLOBAL and ANY.
	StrategyGlobalAny Strategy = "global_any"
)

// Include scopes one requested relation: an optional filter on the target
// table, limit/offset applied to the related collection, and further nested
// relations. A nil *Include requests the relation with no scoping.
//
// With is ignored on a top-level to-many relation: the aggregated tuple
// array carries only the target's own columns, so nested relations beneath
// it are neither fetched nor joined.
type Include struct {
	Where  any // *core.Expr or Filter
	Limit  int
	Offset int
	With   map[string]*Include
}

// Options configures a find call.
type Options struct {
	Where    any // *core.Expr or Filter
	Limit    int
	Offset   int
	With     map[string]*Include
	Strategy Strategy
}

// Engine runs relational finds against one root table.
type Engine struct {
	db    *core.DB
	table *schema.Table
}

// New creates an engine for the given root table.
func New(db *core.DB, table *schema.Table) *Engine {
	return &Engine{db: db, table: table}
}

// FindMany fetches root rows with their requested relations and returns them
// as nested records. Relation names in Options.With that the table does not
// declare are skipped, and includes nested under a top-level to-many
// relation are ignored (see Include).
func (e *Engine) FindMany(ctx context.Context, opts Options) ([]Record, error) {
	q, p, err := buildPlan(e.table, opts)
	if err != nil {
		return nil, err
	}

	pq, err := e.db.Prepare(q)
	if err != nil {
		return nil, err
	}

	rows, err := pq.Rows(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	flat, err := scanRows(rows)
	if err != nil {
		return nil, err
	}

	return reconstruct(p, flat), nil
}

// FindFirst is FindMany with limit 1, returning nil when no row matches.
func (e *Engine) FindFirst(ctx context.Context, opts Options) (Record, error) {
	opts.Limit = 1
	records, err := e.FindMany(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// resolveFilter turns an Options/Include filter into a condition expression.
func resolveFilter(t *schema.Table, where any) (*core.Expr, error) {
	switch w := where.(type) {
	case nil:
		return nil, nil
	case *core.Expr:
		return w, nil
	case Filter:
		return w(t.ColumnMap()), nil
	case func(cols map[string]*schema.Column) *core.Expr:
		return w(t.ColumnMap()), nil
	default:
		return nil, fmt.Errorf("unsupported filter type %T for table %q", where, t.Name)
	}
}
