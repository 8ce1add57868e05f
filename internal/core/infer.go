package core

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	guuid "github.com/google/uuid"
)

// dateTimeLayout is the serialization format for DateTime literals:
// UTC, truncated to seconds.
const dateTimeLayout = "2006-01-02 15:04:05"

// paramSeq accumulates named parameters during a single compilation.
// Names are p_<n>, strictly increasing, reset at the start of each compile.
type paramSeq struct {
	names  []string
	types  []string
	values []any
}

// add registers a literal value and returns its parameter name and inferred
// ClickHouse type.
func (p *paramSeq) add(v any, hint string) (name, typ string) {
	typ = inferType(v, hint)
	name = "p_" + strconv.Itoa(len(p.names)+1)
	p.names = append(p.names, name)
	p.types = append(p.types, typ)
	p.values = append(p.values, normalizeParam(v))
	return name, typ
}

// inferType maps a Go literal to a ClickHouse type tag.
//
// Priority order: the declared type of the column the literal is compared
// against (UUID, integer, float, or decimal families) overrides inference;
// otherwise the value's own shape decides.
func inferType(v any, hint string) string {
	if base, ok := overridingHint(hint); ok {
		if isSlice(v) {
			return arrayType(v, hint)
		}
		return base
	}

	switch x := v.(type) {
	case nil:
		return "String"
	case bool:
		return "Bool"
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "Int32"
	case float32:
		return floatType(float64(x))
	case float64:
		return floatType(x)
	case time.Time:
		return "DateTime"
	case string:
		if isUUIDShaped(x) {
			return "UUID"
		}
		return "String"
	case []byte:
		return "String"
	}

	if isSlice(v) {
		return arrayType(v, hint)
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Map || rv.Kind() == reflect.Struct {
		// Stringified to JSON at bind time.
		return "String"
	}

	return "String"
}

// floatType distinguishes integral from fractional numeric literals.
func floatType(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return "Int32"
	}
	return "Float64"
}

// arrayType infers an Array(...) type from the first element, or
// Array(String) when the slice is empty.
func arrayType(v any, hint string) string {
	rv := reflect.ValueOf(v)
	if rv.Len() == 0 {
		return "Array(String)"
	}
	return "Array(" + inferType(rv.Index(0).Interface(), hint) + ")"
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	k := reflect.TypeOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// overridingHint reports whether a declared column type takes precedence over
// value-shape inference, returning the unwrapped base type when it does.
// Only the UUID, integer, float, and decimal families override.
func overridingHint(hint string) (string, bool) {
	base := hint
	for {
		switch {
		case strings.HasPrefix(base, "Nullable(") && strings.HasSuffix(base, ")"):
			base = base[len("Nullable(") : len(base)-1]
		case strings.HasPrefix(base, "LowCardinality(") && strings.HasSuffix(base, ")"):
			base = base[len("LowCardinality(") : len(base)-1]
		default:
			if base == "UUID" ||
				strings.HasPrefix(base, "Int") ||
				strings.HasPrefix(base, "UInt") ||
				strings.HasPrefix(base, "Float") ||
				strings.HasPrefix(base, "Decimal") {
				return base, true
			}
			return "", false
		}
	}
}

// isUUIDShaped reports whether s is a 36-character lowercase hex-with-dashes
// string in canonical UUID form.
func isUUIDShaped(s string) bool {
	if len(s) != 36 || s != strings.ToLower(s) {
		return false
	}
	return guuid.Validate(s) == nil
}

// normalizeParam converts a literal into the form it is bound with:
// DateTime values become their serialized string, plain objects become JSON.
func normalizeParam(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UTC().Truncate(time.Second).Format(dateTimeLayout)
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = normalizeParam(rv.Index(i).Interface())
		}
		return out
	case reflect.Map, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	default:
		return v
	}
}
