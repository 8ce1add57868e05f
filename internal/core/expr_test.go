package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/chisel/internal/schema"
)

func testTable() *schema.Table {
	t := schema.NewTable("t")
	t.AddColumn("id", "UUID")
	t.AddColumn("col", "Int32")
	t.AddColumn("name", "String")
	t.AddColumn("score", "Float64")
	t.WithPrimaryKey("id")
	return t
}

// renderExpr is a test helper running a fresh parameter sequence.
func renderExpr(t *testing.T, e *Expr) (string, *paramSeq) {
	t.Helper()
	p := &paramSeq{}
	sql, err := e.render(p)
	require.NoError(t, err)
	return sql, p
}

func TestEq_Render(t *testing.T) {
	tbl := testTable()
	sql, p := renderExpr(t, Eq(tbl.Column("col"), 5))

	assert.Equal(t, "`t`.`col` = {p_1:Int32}", sql)
	assert.Equal(t, []any{5}, p.values)
}

func TestCmp_ColumnHintDrivesType(t *testing.T) {
	tbl := testTable()

	// The id column declares UUID; a plain string literal inherits it.
	sql, p := renderExpr(t, Eq(tbl.Column("id"), "abc"))
	assert.Equal(t, "`t`.`id` = {p_1:UUID}", sql)
	assert.Equal(t, []string{"UUID"}, p.types)
}

func TestCmp_ColumnToColumn(t *testing.T) {
	tbl := testTable()
	sql, p := renderExpr(t, Eq(tbl.Column("col"), tbl.Column("score")))

	assert.Equal(t, "`t`.`col` = `t`.`score`", sql)
	assert.Empty(t, p.values)
}

func TestComparisonOperators(t *testing.T) {
	tbl := testTable()
	col := tbl.Column("col")

	tests := []struct {
		name string
		expr *Expr
		want string
	}{
		{"not eq", NotEq(col, 1), "`t`.`col` != {p_1:Int32}"},
		{"greater", GreaterThan(col, 1), "`t`.`col` > {p_1:Int32}"},
		{"less", LessThan(col, 1), "`t`.`col` < {p_1:Int32}"},
		{"greater or equal", GreaterOrEqual(col, 1), "`t`.`col` >= {p_1:Int32}"},
		{"less or equal", LessOrEqual(col, 1), "`t`.`col` <= {p_1:Int32}"},
		{"like", Like(tbl.Column("name"), "%x%"), "`t`.`name` LIKE {p_1:String}"},
		{"not like", NotLike(tbl.Column("name"), "%x%"), "`t`.`name` NOT LIKE {p_1:String}"},
		{"between", Between(col, 1, 10), "`t`.`col` BETWEEN {p_1:Int32} AND {p_2:Int32}"},
		{"is null", IsNull(col), "`t`.`col` IS NULL"},
		{"is not null", IsNotNull(col), "`t`.`col` IS NOT NULL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, _ := renderExpr(t, tt.expr)
			assert.Equal(t, tt.want, sql)
		})
	}
}

func TestIn(t *testing.T) {
	tbl := testTable()
	col := tbl.Column("col")

	t.Run("values bound as one array parameter", func(t *testing.T) {
		sql, p := renderExpr(t, In(col, 1, 2, 3))
		assert.Equal(t, "`t`.`col` IN {p_1:Array(Int32)}", sql)
		require.Len(t, p.values, 1)
		assert.Equal(t, []any{1, 2, 3}, p.values[0])
	})

	t.Run("empty IN is always false", func(t *testing.T) {
		sql, p := renderExpr(t, In(col))
		assert.Equal(t, "1=0", sql)
		assert.Empty(t, p.values)
	})

	t.Run("empty NOT IN is always true", func(t *testing.T) {
		sql, p := renderExpr(t, NotIn(col))
		assert.Equal(t, "1=1", sql)
		assert.Empty(t, p.values)
	})
}

func TestAndOr(t *testing.T) {
	tbl := testTable()
	col := tbl.Column("col")
	name := tbl.Column("name")

	t.Run("and wraps each part", func(t *testing.T) {
		sql, p := renderExpr(t, And(Eq(col, 1), Eq(name, "x")))
		assert.Equal(t, "(`t`.`col` = {p_1:Int32}) AND (`t`.`name` = {p_2:String})", sql)
		assert.Equal(t, []any{1, "x"}, p.values)
	})

	t.Run("or wraps each part", func(t *testing.T) {
		sql, _ := renderExpr(t, Or(Eq(col, 1), Eq(col, 2)))
		assert.Equal(t, "(`t`.`col` = {p_1:Int32}) OR (`t`.`col` = {p_2:Int32})", sql)
	})

	t.Run("nil parts are filtered", func(t *testing.T) {
		sql, _ := renderExpr(t, And(nil, Eq(col, 1), nil))
		assert.Equal(t, "`t`.`col` = {p_1:Int32}", sql)
	})

	t.Run("all nil collapses to nil", func(t *testing.T) {
		assert.Nil(t, And(nil, nil))
	})
}

func TestNot(t *testing.T) {
	tbl := testTable()
	sql, _ := renderExpr(t, Not(Eq(tbl.Column("col"), 1)))
	assert.Equal(t, "NOT (`t`.`col` = {p_1:Int32})", sql)
}

func TestRaw(t *testing.T) {
	sql, p := renderExpr(t, Raw("count() > 0"))
	assert.Equal(t, "count() > 0", sql)
	assert.Empty(t, p.values)
}

func TestFn(t *testing.T) {
	tbl := testTable()

	sql, p := renderExpr(t, Fn("toStartOfHour", tbl.Column("col")))
	assert.Equal(t, "toStartOfHour(`t`.`col`)", sql)
	assert.Empty(t, p.values)

	sql, p = renderExpr(t, Fn("plus", tbl.Column("col"), 1))
	assert.Equal(t, "plus(`t`.`col`, {p_1:Int32})", sql)
	assert.Equal(t, []any{1}, p.values)
}

// Render and walk must visit slots in identical order so the literal-value
// sequence from walking matches the parameter order from rendering.
func TestRenderWalkLockstep(t *testing.T) {
	tbl := testTable()
	expr := And(
		Eq(tbl.Column("col"), 5),
		Or(
			In(tbl.Column("name"), "a", "b"),
			GreaterThan(tbl.Column("score"), 1.5),
		),
	)

	p := &paramSeq{}
	_, err := expr.render(p)
	require.NoError(t, err)

	var sig strings.Builder
	var walked []any
	require.NoError(t, expr.walk(&sig, &walked))

	require.Len(t, walked, len(p.values))
	assert.Equal(t, 5, walked[0])
	assert.Equal(t, []any{"a", "b"}, walked[1])
	assert.Equal(t, 1.5, walked[2])
}

func TestWalk_Signature(t *testing.T) {
	tbl := testTable()
	var sig strings.Builder
	var values []any

	require.NoError(t, Eq(tbl.Column("col"), 5).walk(&sig, &values))
	assert.Equal(t, "t.col = ?:Int32", sig.String())
	assert.Equal(t, []any{5}, values)
}

func TestWalk_SignatureIndependentOfValues(t *testing.T) {
	tbl := testTable()

	sigOf := func(v any) string {
		var sig strings.Builder
		var values []any
		require.NoError(t, Eq(tbl.Column("col"), v).walk(&sig, &values))
		return sig.String()
	}

	assert.Equal(t, sigOf(1), sigOf(999))
	assert.NotEqual(t, sigOf(1), sigOf("one"), "different literal types change structure")
}

func TestRender_NilColumn(t *testing.T) {
	p := &paramSeq{}
	_, err := Eq(nil, 5).render(p)
	assert.ErrorIs(t, err, errNilRef)
}
