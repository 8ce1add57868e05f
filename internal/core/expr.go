// Copyright (c) 2025 COREGX. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package core

import (
	"strings"

	"github.com/coregx/chisel/internal/schema"
)

// Expr is a structural SQL expression: ordered literal-text chunks
// interleaved with slots, each slot holding exactly one of a column
// reference, a nested expression, a literal value, or a raw SQL fragment.
//
// Two traversals must stay in lock-step: render emits parameter placeholders
// and collects bound values, walk emits a structural signature and collects
// the same values in the same order. Both visit slots in identical order.
type Expr struct {
	chunks []string // always len(slots)+1
	slots  []slot
}

// slotKind is the closed set of things a slot can hold.
type slotKind uint8

const (
	slotColumn slotKind = iota
	slotExpr
	slotValue
	slotRaw
)

type slot struct {
	kind  slotKind
	col   *schema.Column
	expr  *Expr
	value any
	hint  string // declared column type driving literal inference, may be empty
	raw   string
}

// asSlot classifies an argument once at construction time.
// hint carries the declared type of the column the value is compared against.
func asSlot(v any, hint string) slot {
	switch x := v.(type) {
	case *schema.Column:
		return slot{kind: slotColumn, col: x}
	case *Expr:
		return slot{kind: slotExpr, expr: x}
	default:
		return slot{kind: slotValue, value: v, hint: hint}
	}
}

func colSlot(col *schema.Column) slot {
	return slot{kind: slotColumn, col: col}
}

// render emits the final SQL text for the expression, appending each literal
// value to p as a named parameter placeholder.
func (e *Expr) render(p *paramSeq) (string, error) {
	var b strings.Builder
	if err := e.renderInto(&b, p); err != nil {
		return "", err
	}
	return b.String(), nil
}

func (e *Expr) renderInto(b *strings.Builder, p *paramSeq) error {
	for i, chunk := range e.chunks {
		b.WriteString(chunk)
		if i >= len(e.slots) {
			continue
		}
		s := e.slots[i]
		switch s.kind {
		case slotColumn:
			if s.col == nil {
				return errNilRef
			}
			b.WriteString(s.col.Ref())
		case slotExpr:
			if s.expr == nil {
				return errNilRef
			}
			if err := s.expr.renderInto(b, p); err != nil {
				return err
			}
		case slotValue:
			name, typ := p.add(s.value, s.hint)
			b.WriteString("{" + name + ":" + typ + "}")
		case slotRaw:
			b.WriteString(s.raw)
		}
	}
	return nil
}

// walk emits the structural signature for the expression, appending each
// literal value to values in traversal order. Columns contribute
// "table.column", literals a type-tagged placeholder token.
func (e *Expr) walk(sig *strings.Builder, values *[]any) error {
	for i, chunk := range e.chunks {
		sig.WriteString(chunk)
		if i >= len(e.slots) {
			continue
		}
		s := e.slots[i]
		switch s.kind {
		case slotColumn:
			if s.col == nil {
				return errNilRef
			}
			sig.WriteString(s.col.Table + "." + s.col.Name)
		case slotExpr:
			if s.expr == nil {
				return errNilRef
			}
			if err := s.expr.walk(sig, values); err != nil {
				return err
			}
		case slotValue:
			sig.WriteString("?:" + inferType(s.value, s.hint))
			*values = append(*values, s.value)
		case slotRaw:
			sig.WriteString(s.raw)
		}
	}
	return nil
}

// cmp builds a binary comparison between a column and a value, column, or
// nested expression.
func cmp(col *schema.Column, op string, v any) *Expr {
	return &Expr{
		chunks: []string{"", " " + op + " ", ""},
		slots:  []slot{colSlot(col), asSlot(v, columnType(col))},
	}
}

func columnType(col *schema.Column) string {
	if col == nil {
		return ""
	}
	return col.Type
}

// Eq generates an equality expression (column = value).
func Eq(col *schema.Column, v any) *Expr { return cmp(col, "=", v) }

// NotEq generates an inequality expression (column != value).
func NotEq(col *schema.Column, v any) *Expr { return cmp(col, "!=", v) }

// GreaterThan generates a greater-than expression (column > value).
func GreaterThan(col *schema.Column, v any) *Expr { return cmp(col, ">", v) }

// LessThan generates a less-than expression (column < value).
func LessThan(col *schema.Column, v any) *Expr { return cmp(col, "<", v) }

// GreaterOrEqual generates a greater-than-or-equal expression (column >= value).
func GreaterOrEqual(col *schema.Column, v any) *Expr { return cmp(col, ">=", v) }

// LessOrEqual generates a less-than-or-equal expression (column <= value).
func LessOrEqual(col *schema.Column, v any) *Expr { return cmp(col, "<=", v) }

// In generates an IN expression binding the values as a single array
// parameter. An empty value list compiles to "1=0" (always false).
func In(col *schema.Column, values ...any) *Expr {
	if len(values) == 0 {
		return Raw("1=0")
	}
	return &Expr{
		chunks: []string{"", " IN ", ""},
		slots:  []slot{colSlot(col), {kind: slotValue, value: values, hint: columnType(col)}},
	}
}

// NotIn generates a NOT IN expression. An empty value list compiles to "1=1"
// (always true).
func NotIn(col *schema.Column, values ...any) *Expr {
	if len(values) == 0 {
		return Raw("1=1")
	}
	return &Expr{
		chunks: []string{"", " NOT IN ", ""},
		slots:  []slot{colSlot(col), {kind: slotValue, value: values, hint: columnType(col)}},
	}
}

// Like generates a LIKE expression (column LIKE pattern).
func Like(col *schema.Column, pattern string) *Expr {
	return cmp(col, "LIKE", pattern)
}

// NotLike generates a NOT LIKE expression.
func NotLike(col *schema.Column, pattern string) *Expr {
	return cmp(col, "NOT LIKE", pattern)
}

// Between generates a BETWEEN expression (column BETWEEN from AND to).
func Between(col *schema.Column, from, to any) *Expr {
	return &Expr{
		chunks: []string{"", " BETWEEN ", " AND ", ""},
		slots:  []slot{colSlot(col), asSlot(from, columnType(col)), asSlot(to, columnType(col))},
	}
}

// IsNull generates a NULL check (column IS NULL).
func IsNull(col *schema.Column) *Expr {
	return &Expr{
		chunks: []string{"", " IS NULL"},
		slots:  []slot{colSlot(col)},
	}
}

// IsNotNull generates a NOT NULL check (column IS NOT NULL).
func IsNotNull(col *schema.Column) *Expr {
	return &Expr{
		chunks: []string{"", " IS NOT NULL"},
		slots:  []slot{colSlot(col)},
	}
}

// And concatenates expressions with AND, wrapping each in parentheses.
// Nil expressions are filtered out; a single survivor is returned unchanged.
func And(exprs ...*Expr) *Expr { return combine("AND", exprs) }

// Or concatenates expressions with OR, wrapping each in parentheses.
func Or(exprs ...*Expr) *Expr { return combine("OR", exprs) }

func combine(op string, exprs []*Expr) *Expr {
	parts := make([]*Expr, 0, len(exprs))
	for _, e := range exprs {
		if e != nil {
			parts = append(parts, e)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	if len(parts) == 1 {
		return parts[0]
	}

	chunks := make([]string, 0, len(parts)+1)
	slots := make([]slot, 0, len(parts))
	chunks = append(chunks, "(")
	for i, e := range parts {
		if i > 0 {
			chunks = append(chunks, ") "+op+" (")
		}
		slots = append(slots, slot{kind: slotExpr, expr: e})
	}
	chunks = append(chunks, ")")
	return &Expr{chunks: chunks, slots: slots}
}

// Not prefixes NOT to an expression.
func Not(e *Expr) *Expr {
	return &Expr{
		chunks: []string{"NOT (", ")"},
		slots:  []slot{{kind: slotExpr, expr: e}},
	}
}

// Raw embeds a raw SQL fragment verbatim. The fragment carries no parameters
// and contributes its text to both the rendered SQL and the fingerprint.
func Raw(sql string) *Expr {
	return &Expr{
		chunks: []string{"", ""},
		slots:  []slot{{kind: slotRaw, raw: sql}},
	}
}

// Fn builds a function call expression: name(arg1, arg2, ...).
// Arguments may be columns, nested expressions, or literal values.
func Fn(name string, args ...any) *Expr {
	chunks := make([]string, 0, len(args)+1)
	slots := make([]slot, 0, len(args))

	chunks = append(chunks, name+"(")
	for i, a := range args {
		if i > 0 {
			chunks = append(chunks, ", ")
		}
		slots = append(slots, asSlot(a, ""))
	}
	chunks = append(chunks, ")")
	return &Expr{chunks: chunks, slots: slots}
}
