package filter

import (
	"fmt"
	"net/url"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"crudkit/internal/core/apperror"
)

// numericRegex matches decimal numbers with optional sign, fraction and exponent.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Pair is a single raw key/value, used when the caller needs a fixed criteria order.
type Pair struct {
	Key   string
	Value any
}

// Create classifies a raw key/value map into a QueryFilter.
//
// Per entry:
//   - empty strings, nil (typed nil pointers included) and collections are skipped;
//   - other pointers are classified by the value they point to;
//   - keys outside allowed (when allowed is non-nil) are skipped;
//   - "null" (any case) becomes an IS NULL check;
//   - numbers and booleans become equality checks, value unchanged;
//   - anything else becomes a substring LIKE with the value wrapped in '%'.
//
// Every criterion gets combiner op. Go maps have no order, so keys are visited in
// sorted order; use CreateFromPairs to control the order explicitly. Create never
// fails: ineligible entries are dropped silently.
func Create(raw map[string]any, op Combiner, allowed AllowedFields) QueryFilter {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]Pair, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, Pair{Key: k, Value: raw[k]})
	}

	f := CreateFromPairs(pairs, op, allowed)
	f.raw = copyRaw(raw)
	return f
}

// CreateFromPairs is Create with caller-defined order.
func CreateFromPairs(pairs []Pair, op Combiner, allowed AllowedFields) QueryFilter {
	f := QueryFilter{
		criteria: make([]Criterion, 0, len(pairs)),
		raw:      make(map[string]any, len(pairs)),
	}

	for _, p := range pairs {
		f.raw[p.Key] = p.Value

		if !allowed.Contains(p.Key) {
			continue
		}
		compare, value, ok := classify(p.Value)
		if !ok {
			continue
		}
		f.criteria = append(f.criteria, NewCriterion(p.Key, compare, value, op))
	}

	return f
}

// classify infers the comparator for a raw value. ok is false when the value must be skipped.
func classify(v any) (CompareType, any, bool) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return "", nil, false
		}
		return classify(rv.Elem().Interface())
	}

	switch val := v.(type) {
	case nil:
		return "", nil, false
	case string:
		return classifyText(val, val)
	case bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return Equal, val, true
	case fmt.Stringer:
		return classifyText(val.String(), val)
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return "", nil, false
	}
	return classifyText(fmt.Sprint(v), v)
}

// classifyText applies the text heuristics to s; original is kept for equality checks.
func classifyText(s string, original any) (CompareType, any, bool) {
	if s == "" {
		return "", nil, false
	}
	if strings.EqualFold(s, "null") {
		return IsNull, nil, true
	}
	if !IsNumeric(s) {
		return Like, "%" + s + "%", true
	}
	return Equal, original, true
}

// IsNumeric reports whether s is a decimal number, surrounding whitespace allowed.
func IsNumeric(s string) bool {
	return numericRegex.MatchString(strings.TrimSpace(s))
}

func copyRaw(raw map[string]any) map[string]any {
	if raw == nil {
		return nil
	}
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}
	return out
}

// Resolve turns the argument of a read/count call into a QueryFilter.
//
// Accepted: QueryFilter, *QueryFilter, map[string]any, map[string]string and url.Values.
// Maps go through Create with AND and no field restriction. url.Values entries with more
// than one value are passed on as collections and therefore dropped. Anything else fails
// with a MISSING_FILTER error.
func Resolve(src any) (QueryFilter, error) {
	return ResolveAllowed(src, nil)
}

// ResolveAllowed is Resolve with a field whitelist applied to raw maps.
func ResolveAllowed(src any, allowed AllowedFields) (QueryFilter, error) {
	switch v := src.(type) {
	case QueryFilter:
		return v, nil
	case *QueryFilter:
		if v == nil {
			return QueryFilter{}, apperror.NewMissingFilter(src)
		}
		return *v, nil
	case map[string]any:
		return Create(v, And, allowed), nil
	case map[string]string:
		raw := make(map[string]any, len(v))
		for k, s := range v {
			raw[k] = s
		}
		return Create(raw, And, allowed), nil
	case url.Values:
		raw := make(map[string]any, len(v))
		for k, vals := range v {
			if len(vals) == 1 {
				raw[k] = vals[0]
			} else {
				raw[k] = vals
			}
		}
		return Create(raw, And, allowed), nil
	}
	return QueryFilter{}, apperror.NewMissingFilter(src)
}
