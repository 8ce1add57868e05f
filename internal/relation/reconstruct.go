package relation

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/coregx/chisel/internal/schema"
)

// scanRows reads every result row into a column-keyed map.
func scanRows(rows *sql.Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var flat []map[string]any
	for rows.Next() {
		ptrs := make([]any, len(cols))
		for i := range ptrs {
			ptrs[i] = new(any)
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, name := range cols {
			row[name] = *(ptrs[i].(*any))
		}
		flat = append(flat, row)
	}
	return flat, rows.Err()
}

// reconstruct walks flat rows back into nested records using the plan's
// prefix scheme, then merges duplicated roots when any relation used the
// row-multiplying fallback.
func reconstruct(p *plan, flat []map[string]any) []Record {
	records := make([]Record, 0, len(flat))
	for _, row := range flat {
		records = append(records, buildRecord(p.root, p.nodes, row, ""))
	}

	if p.hasFallback {
		records = mergeByIdentity(p, records)
	}
	return records
}

// buildRecord reads one table level out of a flat row: primary columns by
// prefixed name, then each requested relation per its plan node.
func buildRecord(t *schema.Table, nodes []*planNode, row map[string]any, prefix string) Record {
	rec := make(Record, len(t.Columns())+len(nodes))
	for _, col := range t.Columns() {
		key := col.Name
		if prefix != "" {
			key = prefix + "." + col.Name
		}
		rec[col.Name] = row[key]
	}

	for _, n := range nodes {
		switch n.kind {
		case nodeOne:
			child := buildRecord(n.rel.Target, n.children, row, n.path)
			if allNull(n.rel.Target, child) {
				rec[n.name] = nil
			} else {
				rec[n.name] = child
			}

		case nodeAggregated:
			rec[n.name] = tuplesToRecords(n, row[n.name])

		case nodeFallback:
			child := buildRecord(n.rel.Target, n.children, row, n.path)
			if allNull(n.rel.Target, child) {
				rec[n.name] = []Record{}
			} else {
				rec[n.name] = []Record{child}
			}
		}
	}
	return rec
}

// allNull reports whether every one of the table's own fields is absent, the
// signature of a LEFT JOIN that found no match.
func allNull(t *schema.Table, rec Record) bool {
	for _, col := range t.Columns() {
		if rec[col.Name] != nil {
			return false
		}
	}
	return true
}

// tuplesToRecords deserializes an aggregated tuple array into column-keyed
// records: tuple elements map onto the target's columns in declaration
// order, all-null tuples are dropped, and the relation's own limit/offset,
// which the aggregation cannot apply server-side, are applied here.
//
// The array and its tuples are traversed reflectively: the driver scans
// Array(Tuple(...)) as the concrete [][]any, not []any of []any.
func tuplesToRecords(n *planNode, v any) []Record {
	cols := n.rel.Target.Columns()
	out := []Record{}

	outer := asSliceValue(v)
	if !outer.IsValid() {
		return out
	}

	// The aggregation can return duplicate tuples when the outer query was
	// multiplied by another join, so elements dedup structurally.
	seen := make(map[string]bool, outer.Len())
	for i := 0; i < outer.Len(); i++ {
		tuple := asSliceValue(outer.Index(i).Interface())
		if !tuple.IsValid() {
			continue
		}

		elem := make(Record, len(cols))
		empty := true
		for j, col := range cols {
			var val any
			if j < tuple.Len() {
				val = tuple.Index(j).Interface()
			}
			if val != nil {
				empty = false
			}
			elem[col.Name] = val
		}
		if empty {
			continue
		}
		key := structuralKey(elem)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, elem)
	}

	return applyWindow(out, n.include)
}

// asSliceValue unwraps v into a reflect slice or array value, returning the
// zero Value for anything else.
func asSliceValue(v any) reflect.Value {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv
	}
	return reflect.Value{}
}

// applyWindow applies an include's offset and limit to a collection.
func applyWindow(records []Record, inc *Include) []Record {
	if inc == nil {
		return records
	}
	if inc.Offset > 0 {
		if inc.Offset >= len(records) {
			return []Record{}
		}
		records = records[inc.Offset:]
	}
	if inc.Limit > 0 && len(records) > inc.Limit {
		records = records[:inc.Limit]
	}
	return records
}

// mergeByIdentity collapses rows multiplied by fallback joins: records
// sharing the root's primary-key identity merge into one, unioning every
// fallback collection along the way. First-seen order is preserved.
func mergeByIdentity(p *plan, records []Record) []Record {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))

	for _, rec := range records {
		key := identityKey(p.root, rec)
		if at, seen := index[key]; seen {
			mergeRecord(out[at], rec, p.nodes)
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out
}

// identityKey builds the composite identity from the root's primary key
// columns, falling back to every column when no key is declared. Timestamps
// reduce to epoch milliseconds so zone representation cannot split identity.
func identityKey(t *schema.Table, rec Record) string {
	names := t.PrimaryKey
	if len(names) == 0 {
		for _, col := range t.Columns() {
			names = append(names, col.Name)
		}
	}

	parts := make([]string, 0, len(names))
	for _, name := range names {
		switch v := rec[name].(type) {
		case time.Time:
			parts = append(parts, strconv.FormatInt(v.UnixMilli(), 10))
		default:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return strings.Join(parts, "|")
}

// mergeRecord folds a duplicate root into the kept one: fallback collections
// union by structural equality with the relation limit re-applied, one
// relations merge recursively so deeper fallbacks union too.
func mergeRecord(dst, src Record, nodes []*planNode) {
	for _, n := range nodes {
		switch n.kind {
		case nodeFallback:
			dst[n.name] = unionRecords(asRecords(dst[n.name]), asRecords(src[n.name]), n.include)

		case nodeOne:
			d, dok := dst[n.name].(Record)
			s, sok := src[n.name].(Record)
			if dok && sok {
				mergeRecord(d, s, n.children)
			}
		}
	}
}

func asRecords(v any) []Record {
	records, _ := v.([]Record)
	return records
}

// unionRecords appends elements of b not structurally present in a. JSON
// encoding with sorted map keys is the equality key.
func unionRecords(a, b []Record, inc *Include) []Record {
	seen := make(map[string]bool, len(a))
	for _, rec := range a {
		seen[structuralKey(rec)] = true
	}

	for _, rec := range b {
		key := structuralKey(rec)
		if seen[key] {
			continue
		}
		seen[key] = true
		a = append(a, rec)
	}

	if inc != nil && inc.Limit > 0 && len(a) > inc.Limit {
		a = a[:inc.Limit]
	}
	return a
}

func structuralKey(rec Record) string {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Sprintf("%v", rec)
	}
	return string(data)
}
