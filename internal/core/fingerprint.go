package core

import (
	"strconv"
	"strings"

	"github.com/coregx/chisel/internal/schema"
)

// Fingerprint walks a query description into a structural cache key plus the
// ordered sequence of literal values the description carries.
//
// The key is a pure function of structure, never of literal values: two
// structurally identical descriptions yield identical keys, and under full
// compilation they produce byte-identical SQL with an identical ordered
// parameter-name list. The value sequence has the same length and order as
// the parameter list Compile would produce, which is what makes binding a
// cached template to a fresh value set sound.
func Fingerprint(q *Query) (string, []any, error) {
	var sig strings.Builder
	var values []any
	if err := fingerprintInto(q, &sig, &values); err != nil {
		return "", nil, err
	}
	return sig.String(), values, nil
}

// fingerprintInto appends one description's signature, visiting clauses in
// the same fixed order as compileInto so value order agrees with parameter
// order.
//
// Nested CTE/subquery descriptions are independently compiled (not walked)
// to obtain their SQL and parameter values; full compilation will compile
// them again. Determinism of compilation makes this redundant but safe.
//
//nolint:gocyclo // clause traversal is a fixed linear sequence
func fingerprintInto(q *Query, sig *strings.Builder, values *[]any) error {
	if q.table == nil && q.sub == nil {
		return ErrMissingTable
	}

	// WITH
	if len(q.ctes) > 0 {
		sig.WriteString("with:")
		for _, c := range q.ctes {
			sub, err := Compile(c.q)
			if err != nil {
				return err
			}
			sig.WriteString(c.name + "=(" + sub.SQL + ");")
			*values = append(*values, sub.Values()...)
		}
	}

	// SELECT [DISTINCT]
	if q.distinct {
		sig.WriteString("distinct;")
	}
	if len(q.selects) > 0 {
		sig.WriteString("select:")
		for _, it := range q.selects {
			sig.WriteString(it.alias + "=")
			if err := fingerprintItem(it.value, sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(",")
		}
		sig.WriteString(";")
	}

	// FROM [FINAL]
	if q.sub != nil {
		sub, err := Compile(q.sub)
		if err != nil {
			return err
		}
		sig.WriteString("from:(" + sub.SQL + ")")
		if q.subAlias != "" {
			sig.WriteString(" " + q.subAlias)
		}
	} else {
		sig.WriteString("from:" + q.table.Name)
	}
	if q.final {
		sig.WriteString(",final")
	}
	sig.WriteString(";")

	// JOINs
	for _, j := range q.joins {
		sig.WriteString("join:")
		if j.Global {
			sig.WriteString("global,")
		}
		if j.Any {
			sig.WriteString("any,")
		}
		sig.WriteString(string(j.Kind) + ",")
		if j.Table != nil {
			sig.WriteString(j.Table.Name)
		}
		if j.Kind != JoinCross && j.On != nil {
			sig.WriteString(",on=")
			if err := j.On.walk(sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
		}
		sig.WriteString(";")
	}

	// ARRAY JOIN
	if len(q.arrayJoins) > 0 {
		sig.WriteString("arrayJoin:")
		for _, v := range q.arrayJoins {
			if err := fingerprintItem(v, sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(",")
		}
		sig.WriteString(";")
	}

	// PREWHERE / WHERE
	for _, c := range []struct {
		label string
		exprs []*Expr
	}{
		{"prewhere", q.prewhere},
		{"where", q.where},
	} {
		if len(c.exprs) == 0 {
			continue
		}
		sig.WriteString(c.label + ":")
		for _, e := range c.exprs {
			if err := e.walk(sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(",")
		}
		sig.WriteString(";")
	}

	// GROUP BY
	if len(q.groupBy) > 0 {
		sig.WriteString("groupBy:")
		for _, v := range q.groupBy {
			if err := fingerprintItem(v, sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(",")
		}
		sig.WriteString(";")
	}

	// HAVING
	if len(q.having) > 0 {
		sig.WriteString("having:")
		for _, e := range q.having {
			if err := e.walk(sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(",")
		}
		sig.WriteString(";")
	}

	// ORDER BY
	if len(q.orderBy) > 0 {
		sig.WriteString("orderBy:")
		for _, o := range q.orderBy {
			if err := fingerprintItem(o.value, sig, values); err != nil {
				return wrapExprErr(err, q.table)
			}
			sig.WriteString(" " + string(o.dir) + ",")
		}
		sig.WriteString(";")
	}

	// LIMIT [OFFSET]
	// Limit and offset are inlined in the SQL rather than parameterized, so
	// their values are part of the structural key.
	if q.hasLimit {
		sig.WriteString("limit:" + strconv.Itoa(q.limit) + ";")
	}
	if q.hasOffset {
		sig.WriteString("offset:" + strconv.Itoa(q.offset) + ";")
	}

	// SAMPLE
	if q.sample != nil {
		sig.WriteString("sample:" + formatFloat(q.sample.ratio))
		if q.sample.hasOffset {
			sig.WriteString(" offset " + formatFloat(q.sample.offset))
		}
		sig.WriteString(";")
	}

	// WINDOW (sorted keys so source ordering does not affect the key)
	if len(q.windows) > 0 {
		sig.WriteString("window:")
		for _, name := range sortedKeys(q.windows) {
			sig.WriteString(name + "=(" + q.windows[name] + "),")
		}
		sig.WriteString(";")
	}

	// SETTINGS (sorted keys; values are inlined in SQL, so part of the key).
	// The effective set is used, not the declared one: projection-backed
	// tables compile with optimize_use_projections folded in, so two
	// same-named tables differing only in projections must not share a key.
	settings, _ := effectiveSettings(q)
	if len(settings) > 0 {
		sig.WriteString("settings:")
		for _, name := range sortedKeys(settings) {
			sig.WriteString(name + "=" + formatSettingValue(settings[name]) + ",")
		}
		sig.WriteString(";")
	}

	return nil
}

// fingerprintItem appends the signature of a single clause item: column
// references contribute table.column, expressions their walk signature,
// strings their literal text.
func fingerprintItem(v any, sig *strings.Builder, values *[]any) error {
	switch x := v.(type) {
	case *schema.Column:
		if x == nil {
			return errNilRef
		}
		sig.WriteString(x.Table + "." + x.Name)
		return nil
	case *Expr:
		if x == nil {
			return errNilRef
		}
		return x.walk(sig, values)
	case string:
		sig.WriteString("str:" + x)
		return nil
	case nil:
		sig.WriteString("nil")
		return nil
	default:
		sig.WriteString("unknown")
		return nil
	}
}
