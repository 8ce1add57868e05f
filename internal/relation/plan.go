package relation

import (
	"fmt"
	"sort"

	"github.com/coregx/chisel/internal/core"
	"github.com/coregx/chisel/internal/schema"
)

// maxDepth caps relation tree recursion so cyclic declarations cannot loop
// the planner.
const maxDepth = 8

type nodeKind uint8

const (
	// nodeOne joins the target and inlines its columns under the path prefix.
	nodeOne nodeKind = iota
	// nodeAggregated fetches a top-level to-many relation as one aggregated
	// array of tuples, avoiding row multiplication.
	nodeAggregated
	// nodeFallback joins a nested to-many relation the ordinary way,
	// multiplying root rows. Results are merged back after reconstruction.
	nodeFallback
)

// planNode is one requested relation in the fetch plan.
type planNode struct {
	name     string
	path     string // relation names chained with '.'
	rel      *schema.Relation
	include  *Include
	kind     nodeKind
	children []*planNode
}

// plan is what reconstruction needs to walk flat rows back into records.
type plan struct {
	root        *schema.Table
	nodes       []*planNode
	aggregated  bool // at least one aggregated relation: query is grouped
	hasFallback bool // at least one fallback join: rows must be merged
}

// planBuilder accumulates the query and plan while recursing over the
// requested relation tree.
type planBuilder struct {
	q         *core.Query
	plan      *plan
	strategy  Strategy
	groupCols []any // every inline-selected column, grouped when aggregating
}

// buildPlan turns a root table plus find options into a compilable query
// description and the plan reconstruction will follow.
func buildPlan(table *schema.Table, opts Options) (*core.Query, *plan, error) {
	b := &planBuilder{
		q:        core.From(table),
		plan:     &plan{root: table},
		strategy: opts.Strategy,
	}

	for _, col := range table.Columns() {
		b.q.Select(col)
		b.groupCols = append(b.groupCols, col)
	}

	filter, err := resolveFilter(table, opts.Where)
	if err != nil {
		return nil, nil, err
	}
	b.q.Where(filter)

	nodes, err := b.addRelations(table, opts.With, "", 1)
	if err != nil {
		return nil, nil, err
	}
	b.plan.nodes = nodes

	if b.plan.aggregated {
		b.q.GroupBy(b.groupCols...)
	}

	if opts.Limit > 0 {
		b.q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		b.q.Offset(opts.Offset)
	}

	return b.q, b.plan, nil
}

// addRelations visits one level of the requested tree in sorted name order,
// so structurally identical requests compile to identical SQL. Names that
// match no declared relation are skipped; levels past maxDepth are ignored.
func (b *planBuilder) addRelations(owner *schema.Table, with map[string]*Include, prefix string, depth int) ([]*planNode, error) {
	if len(with) == 0 || depth > maxDepth {
		return nil, nil
	}

	names := make([]string, 0, len(with))
	for name := range with {
		names = append(names, name)
	}
	sort.Strings(names)

	var nodes []*planNode
	for _, name := range names {
		rel := owner.Relation(name)
		if rel == nil {
			continue
		}
		node, err := b.addRelation(owner, name, rel, with[name], prefix, depth)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (b *planBuilder) addRelation(owner *schema.Table, name string, rel *schema.Relation, inc *Include, prefix string, depth int) (*planNode, error) {
	path := name
	if prefix != "" {
		path = prefix + "." + name
	}

	node := &planNode{name: name, path: path, rel: rel, include: inc}

	on, err := joinCondition(owner, rel)
	if err != nil {
		return nil, err
	}

	relFilter, err := includeFilter(rel.Target, inc)
	if err != nil {
		return nil, err
	}

	aggregated := rel.Kind == schema.Many && prefix == ""
	if !aggregated && relFilter != nil {
		// Scoping a joined relation via WHERE would drop roots without a
		// match, so the filter rides on the join condition instead.
		on = core.And(on, relFilter)
	}

	global, anyJoin := b.resolveStrategy(owner, rel.Target)
	b.q.AddJoin(core.Join{
		Kind:   core.JoinLeft,
		Table:  rel.Target,
		On:     on,
		Global: global,
		Any:    anyJoin,
	})

	switch {
	case aggregated:
		node.kind = nodeAggregated
		b.plan.aggregated = true
		b.q.SelectAs(name, aggregateExpr(rel.Target, relFilter))
		// Nested includes cannot ride inside the tuple array; they are not
		// representable without array-of-array shapes and are skipped.

	case rel.Kind == schema.Many:
		node.kind = nodeFallback
		b.plan.hasFallback = true
		b.selectPrefixed(rel.Target, path)
		if node.children, err = b.addRelations(rel.Target, includeWith(inc), path, depth+1); err != nil {
			return nil, err
		}

	default:
		node.kind = nodeOne
		b.selectPrefixed(rel.Target, path)
		if node.children, err = b.addRelations(rel.Target, includeWith(inc), path, depth+1); err != nil {
			return nil, err
		}
	}

	return node, nil
}

// selectPrefixed inlines every target column under the path prefix.
func (b *planBuilder) selectPrefixed(t *schema.Table, path string) {
	for _, col := range t.Columns() {
		b.q.SelectAs(path+"."+col.Name, col)
		b.groupCols = append(b.groupCols, col)
	}
}

// joinCondition ANDs the declared field/reference pairs into the ON clause.
func joinCondition(owner *schema.Table, rel *schema.Relation) (*core.Expr, error) {
	if len(rel.Fields) == 0 || len(rel.Fields) != len(rel.References) {
		return nil, fmt.Errorf("relation from %q to %q declares %d fields but %d references",
			owner.Name, rel.Target.Name, len(rel.Fields), len(rel.References))
	}

	pairs := make([]*core.Expr, 0, len(rel.Fields))
	for i, field := range rel.Fields {
		local := owner.Column(field)
		remote := rel.Target.Column(rel.References[i])
		if local == nil || remote == nil {
			return nil, fmt.Errorf("relation from %q to %q references undeclared column %q/%q",
				owner.Name, rel.Target.Name, field, rel.References[i])
		}
		pairs = append(pairs, core.Eq(local, remote))
	}
	return core.And(pairs...), nil
}

// aggregateExpr builds groupArray(tuple(cols...)), or groupArrayIf with the
// rendered filter as the aggregation condition.
func aggregateExpr(t *schema.Table, filter *core.Expr) *core.Expr {
	cols := t.Columns()
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		args = append(args, col)
	}
	tuple := core.Fn("tuple", args...)

	if filter != nil {
		return core.Fn("groupArrayIf", tuple, filter)
	}
	return core.Fn("groupArray", tuple)
}

// resolveStrategy maps the requested strategy to join modifiers. Auto picks
// GLOBAL when either side is distributed.
func (b *planBuilder) resolveStrategy(owner, target *schema.Table) (global, anyJoin bool) {
	switch b.strategy {
	case StrategyStandard:
		return false, false
	case StrategyGlobal:
		return true, false
	case StrategyAny:
		return false, true
	case StrategyGlobalAny:
		return true, true
	default:
		return owner.Cluster != "" || target.Cluster != "", false
	}
}

func includeFilter(t *schema.Table, inc *Include) (*core.Expr, error) {
	if inc == nil {
		return nil, nil
	}
	return resolveFilter(t, inc.Where)
}

func includeWith(inc *Include) map[string]*Include {
	if inc == nil {
		return nil
	}
	return inc.With
}
