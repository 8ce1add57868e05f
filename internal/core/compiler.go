// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/coregx/chisel/internal/schema"
)

// projectionSetting is the server setting that lets ClickHouse substitute a
// declared projection for a matching query.
const projectionSetting = "optimize_use_projections"

// Compiled is a fully compiled, client-independent query template: SQL text
// with named placeholders, the parameter names in the exact order rendering
// produced them, and output column metadata. Templates are created once per
// structural cache miss and never mutated.
type Compiled struct {
	SQL           string
	ParamNames    []string
	ParamTypes    []string
	Params        map[string]any
	Table         string
	OutputColumns []string
	OutputTypes   []string
	Suggestions   []string
}

// Values returns the compile-time parameter values in placeholder order.
func (c *Compiled) Values() []any {
	values := make([]any, len(c.ParamNames))
	for i, name := range c.ParamNames {
		values[i] = c.Params[name]
	}
	return values
}

// outputMeta collects select-list metadata during compilation.
type outputMeta struct {
	columns     []string
	types       []string
	suggestions []string
}

// Compile performs full compilation of a query description into SQL text, a
// parameter map, and output column metadata. Compilation is a deterministic
// pure function of the description: the parameter counter resets at the
// start of each call and no state is shared between calls.
func Compile(q *Query) (*Compiled, error) {
	p := &paramSeq{}
	sql, out, err := compileInto(q, p)
	if err != nil {
		return nil, err
	}

	params := make(map[string]any, len(p.names))
	for i, name := range p.names {
		params[name] = p.values[i]
	}

	var tableName string
	if q.table != nil {
		tableName = q.table.Name
	}

	suggestions := append([]string{}, q.suggestions...)
	suggestions = append(suggestions, out.suggestions...)

	return &Compiled{
		SQL:           sql,
		ParamNames:    p.names,
		ParamTypes:    p.types,
		Params:        params,
		Table:         tableName,
		OutputColumns: out.columns,
		OutputTypes:   out.types,
		Suggestions:   suggestions,
	}, nil
}

// compileInto renders one query description into SQL, appending its
// parameters to the shared sequence. Subqueries (CTEs, FROM) recurse here so
// placeholder names stay unique across the whole statement.
//
//nolint:gocyclo // clause emission is a fixed linear sequence
func compileInto(q *Query, p *paramSeq) (string, *outputMeta, error) {
	if q.table == nil && q.sub == nil {
		return "", nil, ErrMissingTable
	}

	out := &outputMeta{}
	var clauses []string

	// WITH
	if len(q.ctes) > 0 {
		parts := make([]string, 0, len(q.ctes))
		for _, c := range q.ctes {
			subSQL, _, err := compileInto(c.q, p)
			if err != nil {
				return "", nil, err
			}
			parts = append(parts, schema.QuoteIdent(c.name)+" AS ("+subSQL+")")
		}
		clauses = append(clauses, "WITH "+strings.Join(parts, ", "))
	}

	// SELECT [DISTINCT]
	keyword := "SELECT"
	if q.distinct {
		keyword = "SELECT DISTINCT"
	}
	var subOut *outputMeta
	if len(q.selects) == 0 {
		clauses = append(clauses, keyword+" *")
		if q.table != nil {
			for _, col := range q.table.Columns() {
				out.columns = append(out.columns, col.Name)
				out.types = append(out.types, col.Type)
			}
		}
	} else {
		items := make([]string, 0, len(q.selects))
		for _, it := range q.selects {
			rendered, typ, err := resolveSelect(q, it, p)
			if err != nil {
				return "", nil, err
			}
			items = append(items, rendered)
			out.columns = append(out.columns, it.alias)
			out.types = append(out.types, typ)
		}
		clauses = append(clauses, keyword+" "+strings.Join(items, ", "))
	}

	// FROM [FINAL]
	var from string
	if q.sub != nil {
		subSQL, so, err := compileInto(q.sub, p)
		if err != nil {
			return "", nil, err
		}
		subOut = so
		from = "FROM (" + subSQL + ")"
		if q.subAlias != "" {
			from += " AS " + schema.QuoteIdent(q.subAlias)
		}
	} else {
		from = "FROM " + schema.QuoteIdent(q.table.Name)
	}
	if q.final {
		from += " FINAL"
	}
	clauses = append(clauses, from)

	// Subquery roots without an explicit select inherit the inner output.
	if len(q.selects) == 0 && subOut != nil {
		out.columns = subOut.columns
		out.types = subOut.types
	}

	// JOINs
	for _, j := range q.joins {
		rendered, err := renderJoin(q, j, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, rendered)
	}

	// ARRAY JOIN
	if len(q.arrayJoins) > 0 {
		items, err := renderItems(q, q.arrayJoins, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "ARRAY JOIN "+strings.Join(items, ", "))
	}

	// PREWHERE / WHERE
	for _, c := range []struct {
		keyword string
		exprs   []*Expr
	}{
		{"PREWHERE", q.prewhere},
		{"WHERE", q.where},
	} {
		if len(c.exprs) == 0 {
			continue
		}
		cond, err := renderConditions(q, c.exprs, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, c.keyword+" "+cond)
	}

	// GROUP BY
	if len(q.groupBy) > 0 {
		items, err := renderItems(q, q.groupBy, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "GROUP BY "+strings.Join(items, ", "))
	}

	// HAVING
	if len(q.having) > 0 {
		cond, err := renderConditions(q, q.having, p)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, "HAVING "+cond)
	}

	// ORDER BY
	if len(q.orderBy) > 0 {
		items := make([]string, 0, len(q.orderBy))
		for _, o := range q.orderBy {
			rendered, err := renderItem(q, o.value, p)
			if err != nil {
				return "", nil, err
			}
			items = append(items, withDirection(rendered, o.dir))
		}
		clauses = append(clauses, "ORDER BY "+strings.Join(items, ", "))
	}

	// LIMIT [OFFSET]
	switch {
	case q.hasLimit && q.hasOffset:
		clauses = append(clauses, "LIMIT "+strconv.Itoa(q.limit)+" OFFSET "+strconv.Itoa(q.offset))
	case q.hasLimit:
		clauses = append(clauses, "LIMIT "+strconv.Itoa(q.limit))
	case q.hasOffset:
		clauses = append(clauses, "OFFSET "+strconv.Itoa(q.offset))
	}

	// SAMPLE
	if q.sample != nil {
		s := "SAMPLE " + formatFloat(q.sample.ratio)
		if q.sample.hasOffset {
			s += " OFFSET " + formatFloat(q.sample.offset)
		}
		clauses = append(clauses, s)
	}

	// WINDOW
	if len(q.windows) > 0 {
		names := sortedKeys(q.windows)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, schema.QuoteIdent(name)+" AS ("+q.windows[name]+")")
		}
		clauses = append(clauses, "WINDOW "+strings.Join(parts, ", "))
	}

	// SETTINGS
	settings, suggestion := effectiveSettings(q)
	if suggestion != "" {
		out.suggestions = append(out.suggestions, suggestion)
	}
	if len(settings) > 0 {
		names := sortedKeys(settings)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+" = "+formatSettingValue(settings[name]))
		}
		clauses = append(clauses, "SETTINGS "+strings.Join(parts, ", "))
	}

	return strings.Join(clauses, " "), out, nil
}

// resolveSelect turns one select item into its rendered SQL and output type.
// Ambiguous values (string names) run through the alias resolution chain;
// unresolvable or nil values are fatal.
func resolveSelect(q *Query, it selectItem, p *paramSeq) (string, string, error) {
	switch v := it.value.(type) {
	case *schema.Column:
		if v == nil {
			return "", "", newResolveError(q.table, it.alias)
		}
		rendered := v.Ref()
		if it.alias != v.Name {
			rendered += " AS " + schema.QuoteIdent(it.alias)
		}
		return rendered, v.Type, nil

	case *Expr:
		if v == nil {
			return "", "", newResolveError(q.table, it.alias)
		}
		rendered, err := v.render(p)
		if err != nil {
			return "", "", wrapExprErr(err, q.table)
		}
		// Expression-derived outputs have no declared type.
		return rendered + " AS " + schema.QuoteIdent(it.alias), "String", nil

	case string:
		if col := resolveAlias(q.table, v); col != nil {
			rendered := col.Ref()
			if it.alias != col.Name {
				rendered += " AS " + schema.QuoteIdent(it.alias)
			}
			return rendered, col.Type, nil
		}
		if col := resolveAlias(q.table, it.alias); col != nil {
			rendered := col.Ref()
			if it.alias != col.Name {
				rendered += " AS " + schema.QuoteIdent(it.alias)
			}
			return rendered, col.Type, nil
		}
		return "", "", newResolveError(q.table, it.alias)

	case nil:
		return "", "", newResolveError(q.table, it.alias)

	default:
		return "", "", &CompilationError{
			Alias: it.alias,
			msg:   fmt.Sprintf("unsupported select value of type %T for alias %q", it.value, it.alias),
		}
	}
}

// aliasStrategy is one named resolution step of the alias fallback chain.
type aliasStrategy struct {
	name  string
	apply func(t *schema.Table, alias string) *schema.Column
}

// aliasStrategies is the ordered fallback chain used to resolve a select
// alias to a column: direct lookup, camelCase conversion, snake_case
// conversion, then case-insensitive scan.
var aliasStrategies = []aliasStrategy{
	{
		name: "direct",
		apply: func(t *schema.Table, alias string) *schema.Column {
			return t.Column(alias)
		},
	},
	{
		name: "camelCase",
		apply: func(t *schema.Table, alias string) *schema.Column {
			return t.Column(toCamelCase(alias))
		},
	},
	{
		name: "snake_case",
		apply: func(t *schema.Table, alias string) *schema.Column {
			return t.Column(toSnakeCase(alias))
		},
	},
	{
		name: "case-insensitive",
		apply: func(t *schema.Table, alias string) *schema.Column {
			for _, col := range t.Columns() {
				if strings.EqualFold(col.Name, alias) {
					return col
				}
			}
			return nil
		},
	},
}

// resolveAlias runs the strategy chain in order, returning the first match.
func resolveAlias(t *schema.Table, alias string) *schema.Column {
	if t == nil || alias == "" {
		return nil
	}
	for _, s := range aliasStrategies {
		if col := s.apply(t, alias); col != nil {
			return col
		}
	}
	return nil
}

// toSnakeCase converts camelCase to snake_case: "userName" -> "user_name".
func toSnakeCase(s string) string {
	result := make([]rune, 0, len(s)+5)
	for i, r := range s {
		if i > 0 && 'A' <= r && r <= 'Z' {
			result = append(result, '_')
		}
		result = append(result, r)
	}
	return strings.ToLower(string(result))
}

// toCamelCase converts snake_case to camelCase: "user_name" -> "userName".
func toCamelCase(s string) string {
	parts := strings.Split(s, "_")
	if len(parts) == 1 {
		return s
	}
	var b strings.Builder
	for i, part := range parts {
		if part == "" {
			continue
		}
		if i == 0 {
			b.WriteString(part)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]))
		b.WriteString(part[1:])
	}
	return b.String()
}

// renderJoin renders one join clause. CROSS joins omit ON; all other kinds
// require it.
func renderJoin(q *Query, j Join, p *paramSeq) (string, error) {
	if j.Table == nil {
		return "", &CompilationError{msg: "join has no target table"}
	}

	var parts []string
	if j.Global {
		parts = append(parts, "GLOBAL")
	}
	if j.Any {
		parts = append(parts, "ANY")
	}
	parts = append(parts, string(j.Kind), "JOIN", schema.QuoteIdent(j.Table.Name))

	if j.Kind != JoinCross {
		if j.On == nil {
			return "", &CompilationError{
				msg: fmt.Sprintf("%s join on table %q requires an ON condition", j.Kind, j.Table.Name),
			}
		}
		on, err := j.On.render(p)
		if err != nil {
			return "", wrapExprErr(err, q.table)
		}
		parts = append(parts, "ON", on)
	}

	return strings.Join(parts, " "), nil
}

// renderConditions ANDs a list of condition expressions.
func renderConditions(q *Query, exprs []*Expr, p *paramSeq) (string, error) {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		rendered, err := e.render(p)
		if err != nil {
			return "", wrapExprErr(err, q.table)
		}
		parts = append(parts, rendered)
	}
	return strings.Join(parts, " AND "), nil
}

// renderItem renders a clause item that may be a column, an expression, or a
// trusted raw string.
func renderItem(q *Query, v any, p *paramSeq) (string, error) {
	switch x := v.(type) {
	case *schema.Column:
		if x == nil {
			return "", wrapExprErr(errNilRef, q.table)
		}
		return x.Ref(), nil
	case *Expr:
		if x == nil {
			return "", wrapExprErr(errNilRef, q.table)
		}
		rendered, err := x.render(p)
		if err != nil {
			return "", wrapExprErr(err, q.table)
		}
		return rendered, nil
	case string:
		return x, nil
	default:
		return "", &CompilationError{msg: fmt.Sprintf("unsupported clause item of type %T", v)}
	}
}

func renderItems(q *Query, vs []any, p *paramSeq) ([]string, error) {
	items := make([]string, 0, len(vs))
	for _, v := range vs {
		rendered, err := renderItem(q, v, p)
		if err != nil {
			return nil, err
		}
		items = append(items, rendered)
	}
	return items, nil
}

// withDirection appends the direction keyword unless the rendered expression
// already ends with it (case-insensitive), so self-ordering expressions are
// not suffixed twice.
func withDirection(rendered string, dir Direction) string {
	d := string(dir)
	if d == "" {
		d = string(Asc)
	}
	up := strings.ToUpper(strings.TrimSpace(rendered))
	if up == d || strings.HasSuffix(up, " "+d) {
		return rendered
	}
	return rendered + " " + d
}

// effectiveSettings merges the automatic projection optimization into the
// declared settings without mutating the description. The returned
// suggestion is non-empty when the flag was added.
func effectiveSettings(q *Query) (map[string]any, string) {
	useProjections := q.table != nil && len(q.table.Projections) > 0
	if useProjections {
		if _, explicit := q.settings[projectionSetting]; explicit {
			useProjections = false
		}
	}

	if !useProjections {
		return q.settings, ""
	}

	settings := make(map[string]any, len(q.settings)+1)
	for k, v := range q.settings {
		settings[k] = v
	}
	settings[projectionSetting] = 1

	suggestion := fmt.Sprintf(
		"table %q declares projections (%s): enabled %s so the server may substitute them",
		q.table.Name, strings.Join(q.table.Projections, ", "), projectionSetting,
	)
	return settings, suggestion
}

// formatSettingValue renders a settings value: booleans as 1/0, strings
// single-quoted, numbers verbatim.
func formatSettingValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "1"
		}
		return "0"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "\\'") + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// wrapExprErr upgrades a nil-reference error from expression traversal into
// a descriptive compilation error naming the table's columns.
func wrapExprErr(err error, t *schema.Table) error {
	if errors.Is(err, errNilRef) {
		return newUndefinedValueError(t)
	}
	return err
}
