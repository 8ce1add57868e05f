package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/chisel/internal/schema"
)

func TestFingerprint_IndependentOfLiteralValues(t *testing.T) {
	tbl := testTable()

	keyA, valuesA, err := Fingerprint(From(tbl).Where(Eq(tbl.Column("col"), 1)))
	require.NoError(t, err)
	keyB, valuesB, err := Fingerprint(From(tbl).Where(Eq(tbl.Column("col"), 999)))
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
	assert.Equal(t, []any{1}, valuesA)
	assert.Equal(t, []any{999}, valuesB)
}

func TestFingerprint_DistinguishesStructure(t *testing.T) {
	tbl := testTable()
	base := func() *Query { return From(tbl).Where(Eq(tbl.Column("col"), 1)) }

	baseKey, _, err := Fingerprint(base())
	require.NoError(t, err)

	variants := map[string]*Query{
		"different column":        From(tbl).Where(Eq(tbl.Column("name"), "x")),
		"different literal type":  From(tbl).Where(Eq(tbl.Column("score"), 1)),
		"extra condition":         base().Where(IsNotNull(tbl.Column("name"))),
		"distinct":                base().Distinct(),
		"final":                   base().Final(),
		"limit":                   base().Limit(10),
		"different limit":         base().Limit(20),
		"offset":                  base().Offset(5),
		"sample":                  base().Sample(0.1),
		"setting":                 base().Setting("max_threads", 4),
		"setting value":           base().Setting("max_threads", 8),
		"order":                   base().OrderBy(tbl.Column("col"), Desc),
		"group":                   base().GroupBy(tbl.Column("col")),
	}

	for name, q := range variants {
		t.Run(name, func(t *testing.T) {
			key, _, err := Fingerprint(q)
			require.NoError(t, err)
			assert.NotEqual(t, baseKey, key)
		})
	}
}

// Same structural key must mean same SQL and same parameter order under full
// compilation, and the fingerprint's value sequence must line up with the
// compiled parameter list one to one.
func TestFingerprint_AgreesWithCompile(t *testing.T) {
	tbl := testTable()
	other := schema.NewTable("u")
	other.AddColumn("id", "UUID")
	other.AddColumn("flag", "UInt8")

	queries := map[string]func() *Query{
		"bare": func() *Query {
			return From(tbl)
		},
		"conditions": func() *Query {
			return From(tbl).
				PreWhere(GreaterThan(tbl.Column("col"), 10)).
				Where(And(
					Eq(tbl.Column("name"), "x"),
					In(tbl.Column("col"), 1, 2, 3),
				))
		},
		"join and having": func() *Query {
			return From(tbl).
				InnerJoin(other, Eq(tbl.Column("id"), other.Column("id"))).
				Where(Eq(other.Column("flag"), 1)).
				GroupBy(tbl.Column("col")).
				Having(Raw("count() > 5"))
		},
		"cte": func() *Query {
			inner := From(tbl).Select(tbl.Column("id")).Where(Eq(tbl.Column("col"), 7))
			return From(tbl).With("recent", inner).Where(Eq(tbl.Column("name"), "y"))
		},
		"from subquery": func() *Query {
			inner := From(tbl).Where(LessThan(tbl.Column("score"), 0.5))
			return FromSubquery(inner, "low").Limit(3)
		},
	}

	for name, build := range queries {
		t.Run(name, func(t *testing.T) {
			key1, values1, err := Fingerprint(build())
			require.NoError(t, err)
			key2, _, err := Fingerprint(build())
			require.NoError(t, err)
			assert.Equal(t, key1, key2, "fingerprint must be deterministic")

			compiled, err := Compile(build())
			require.NoError(t, err)

			require.Len(t, values1, len(compiled.ParamNames),
				"fingerprint value count must match compiled placeholder count")
			for i, name := range compiled.ParamNames {
				assert.Equal(t, normalizeParam(values1[i]), compiled.Params[name],
					"value %d must bind to %s", i, name)
			}
		})
	}
}

// Projections change the compiled SETTINGS clause, so two same-named tables
// that differ only in declared projections must not share a cache key.
func TestFingerprint_ProjectionsAffectKey(t *testing.T) {
	plain := testTable()
	projected := testTable()
	projected.WithProjection("by_id")

	plainKey, _, err := Fingerprint(From(plain))
	require.NoError(t, err)
	projectedKey, _, err := Fingerprint(From(projected))
	require.NoError(t, err)
	assert.NotEqual(t, plainKey, projectedKey)

	plainSQL, err := Compile(From(plain))
	require.NoError(t, err)
	projectedSQL, err := Compile(From(projected))
	require.NoError(t, err)
	assert.NotEqual(t, plainSQL.SQL, projectedSQL.SQL)

	// An explicit setting overrides the automatic one in SQL and in key.
	explicitKey, _, err := Fingerprint(From(projected).Setting(projectionSetting, 0))
	require.NoError(t, err)
	assert.NotEqual(t, projectedKey, explicitKey)
	assert.NotEqual(t, plainKey, explicitKey)
}

// Nil clause items surface the same descriptive error fingerprinting as they
// do compiling, so Prepare never leaks the raw sentinel.
func TestFingerprint_NilClauseItemsReportDescriptiveError(t *testing.T) {
	tbl := testTable()

	queries := map[string]*Query{
		"select as":  From(tbl).SelectAs("total", (*Expr)(nil)),
		"array join": From(tbl).ArrayJoin((*Expr)(nil)),
		"group by":   From(tbl).GroupBy((*schema.Column)(nil)),
		"order by":   From(tbl).OrderBy((*Expr)(nil), Asc),
	}

	for name, q := range queries {
		t.Run(name, func(t *testing.T) {
			_, _, err := Fingerprint(q)
			var cerr *CompilationError
			require.ErrorAs(t, err, &cerr)
			assert.Contains(t, cerr.Error(), "undefined value")
		})
	}
}

func TestFingerprint_MissingTable(t *testing.T) {
	_, _, err := Fingerprint(&Query{})
	assert.ErrorIs(t, err, ErrMissingTable)
}

func TestFingerprint_WindowAndSettingsOrderInsensitive(t *testing.T) {
	tbl := testTable()

	a, _, err := Fingerprint(From(tbl).
		Setting("b", 2).Setting("a", 1).
		Window("w2", "ORDER BY x").Window("w1", "ORDER BY y"))
	require.NoError(t, err)

	b, _, err := Fingerprint(From(tbl).
		Setting("a", 1).Setting("b", 2).
		Window("w1", "ORDER BY y").Window("w2", "ORDER BY x"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestFingerprint_SubqueryValuesPrecedeOuter(t *testing.T) {
	tbl := testTable()
	inner := From(tbl).Select(tbl.Column("id")).Where(Eq(tbl.Column("col"), 1))
	q := From(tbl).With("recent", inner).Where(Eq(tbl.Column("col"), 2))

	_, values, err := Fingerprint(q)
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2}, values)
}
