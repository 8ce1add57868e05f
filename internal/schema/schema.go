// Package schema describes ClickHouse tables, columns, and the relations
// between them. These descriptors are the input contracts for the compiler
// and the relational engine; they carry no behavior beyond identifier
// rendering.
package schema

import "strings"

// RelationKind distinguishes to-one from to-many relations.
type RelationKind string

const (
	// One marks a relation that resolves to at most a single target row.
	One RelationKind = "one"
	// Many marks a relation that resolves to zero or more target rows.
	Many RelationKind = "many"
)

// Column describes a single table column.
type Column struct {
	Name     string
	Table    string // owning table name
	Type     string // ClickHouse type string, e.g. "Int32", "Nullable(String)"
	Nullable bool
}

// Ref renders the fully qualified, backtick-quoted column reference.
func (c *Column) Ref() string {
	return QuoteIdent(c.Table) + "." + QuoteIdent(c.Name)
}

// Relation declares how rows of one table relate to rows of another.
// Fields and References are matched pairwise to build the join condition.
type Relation struct {
	Kind       RelationKind
	Target     *Table
	Fields     []string // columns on the declaring table
	References []string // columns on the target table
}

// Table describes a ClickHouse table: its columns in declaration order,
// declared relations, primary key, and cluster/projection options.
type Table struct {
	Name        string
	PrimaryKey  []string
	Cluster     string // non-empty when the table is distributed across a cluster
	Projections []string

	columns   map[string]*Column
	order     []string
	relations map[string]*Relation
}

// NewTable creates an empty table descriptor.
func NewTable(name string) *Table {
	return &Table{
		Name:      name,
		columns:   make(map[string]*Column),
		relations: make(map[string]*Relation),
	}
}

// AddColumn declares a column and returns its descriptor.
// Redeclaring a name replaces the previous descriptor in place.
func (t *Table) AddColumn(name, typ string) *Column {
	col := &Column{
		Name:     name,
		Table:    t.Name,
		Type:     typ,
		Nullable: strings.HasPrefix(typ, "Nullable("),
	}
	if _, exists := t.columns[name]; !exists {
		t.order = append(t.order, name)
	}
	t.columns[name] = col
	return col
}

// AddRelation declares a named relation to another table.
func (t *Table) AddRelation(name string, rel *Relation) *Table {
	t.relations[name] = rel
	return t
}

// WithPrimaryKey sets the primary key column names.
func (t *Table) WithPrimaryKey(cols ...string) *Table {
	t.PrimaryKey = cols
	return t
}

// WithCluster marks the table as distributed across the named cluster.
func (t *Table) WithCluster(cluster string) *Table {
	t.Cluster = cluster
	return t
}

// WithProjection records a declared projection name.
func (t *Table) WithProjection(name string) *Table {
	t.Projections = append(t.Projections, name)
	return t
}

// Column returns the descriptor for name, or nil when not declared.
func (t *Table) Column(name string) *Column {
	return t.columns[name]
}

// Columns returns all column descriptors in declaration order.
func (t *Table) Columns() []*Column {
	cols := make([]*Column, 0, len(t.order))
	for _, name := range t.order {
		cols = append(cols, t.columns[name])
	}
	return cols
}

// ColumnMap returns a name-keyed view of the columns.
// The returned map is a copy; mutating it does not affect the table.
func (t *Table) ColumnMap() map[string]*Column {
	m := make(map[string]*Column, len(t.columns))
	for name, col := range t.columns {
		m[name] = col
	}
	return m
}

// Relation returns the named relation, or nil when not declared.
func (t *Table) Relation(name string) *Relation {
	return t.relations[name]
}

// Relations returns a name-keyed copy of the declared relations.
func (t *Table) Relations() map[string]*Relation {
	m := make(map[string]*Relation, len(t.relations))
	for name, rel := range t.relations {
		m[name] = rel
	}
	return m
}

// QuoteIdent quotes an identifier with backticks, escaping embedded backticks.
func QuoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "\\`") + "`"
}
