package benchmark

import (
	"testing"

	"github.com/coregx/chisel/internal/core"
	"github.com/coregx/chisel/internal/schema"
)

func benchTable() *schema.Table {
	t := schema.NewTable("events").WithPrimaryKey("id")
	t.AddColumn("id", "UUID")
	t.AddColumn("kind", "String")
	t.AddColumn("count", "Int32")
	t.AddColumn("at", "DateTime")
	return t
}

func benchQuery(t *schema.Table, v int) *core.Query {
	return core.From(t).
		Select(t.Column("id"), t.Column("kind")).
		Where(core.Eq(t.Column("kind"), "click")).
		Where(core.GreaterThan(t.Column("count"), v)).
		OrderBy(t.Column("at"), core.Desc).
		Limit(100)
}

func BenchmarkCompile(b *testing.B) {
	t := benchTable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := core.Compile(benchQuery(t, i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkFingerprint(b *testing.B) {
	t := benchTable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := core.Fingerprint(benchQuery(t, i)); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPrepare measures the cached path: after the first iteration every
// structurally identical description hits the template cache.
func BenchmarkPrepare(b *testing.B) {
	db := core.WrapDB(nil)
	t := benchTable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := db.Prepare(benchQuery(t, i)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPrepareColdCache(b *testing.B) {
	db := core.WrapDB(nil)
	t := benchTable()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		db.ClearCache()
		if _, err := db.Prepare(benchQuery(t, i)); err != nil {
			b.Fatal(err)
		}
	}
}
