// Package structmap maps entity structs to column/value maps using "db" tags.
// Repositories use it to build INSERT/UPDATE statements and to evaluate filters
// in memory; the form binder uses it to assign raw input onto entity fields.
package structmap

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Columns extracts all column names from struct "db" tags, embedded structs included.
// Called once at initialization time, so reflection overhead is acceptable.
//
// Usage:
//
//	columns := structmap.Columns[product.Product]()
//	// Returns: ["id", "sku", "name", ...]
func Columns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	cols := make([]string, 0, len(meta.fields))
	for _, fi := range meta.fields {
		cols = append(cols, fi.column)
	}
	return cols
}

// fieldInfo contains pre-computed metadata about a struct field.
type fieldInfo struct {
	index  []int  // Field index path (through embedded structs)
	column string // "db" tag
	alias  string // "form" tag, if different from column
}

// typeMetadata contains cached reflection metadata for a type.
type typeMetadata struct {
	fields   []fieldInfo
	byColumn map[string]int // column or alias -> position in fields
}

// typeCache holds metadata per reflect.Type.
var typeCache sync.Map // map[reflect.Type]*typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if t == nil {
		return &typeMetadata{byColumn: map[string]int{}}
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{byColumn: make(map[string]int)}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}

	typeCache.Store(t, meta)
	return meta
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, index, meta)
			continue
		}
		if !field.IsExported() {
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}

		fi := fieldInfo{index: index, column: tag}
		if alias := field.Tag.Get("form"); alias != "" && alias != "-" && alias != tag {
			fi.alias = alias
		}
		meta.byColumn[tag] = len(meta.fields)
		if fi.alias != "" {
			meta.byColumn[fi.alias] = len(meta.fields)
		}
		meta.fields = append(meta.fields, fi)
	}
}

// ToMap converts a struct (or pointer to struct) to a column -> value map.
// Only fields with a "db" tag are included.
func ToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, fi := range meta.fields {
		res[fi.column] = rv.FieldByIndex(fi.index).Interface()
	}
	return res
}

// Get returns the value of one column, ok=false when the struct has no such column.
func Get(v any, column string) (any, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}

	meta := metadataFor(rv.Type())
	pos, ok := meta.byColumn[column]
	if !ok {
		return nil, false
	}
	return rv.FieldByIndex(meta.fields[pos].index).Interface(), true
}

// Has reports whether the struct type of v has a column (or form alias) named name.
func Has(v any, name string) bool {
	_, ok := metadataFor(reflect.TypeOf(v)).byColumn[name]
	return ok
}

// Clone returns a shallow copy of the struct behind a pointer. Non-pointer and
// nil values are returned unchanged.
func Clone[T any](v T) T {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return v
	}
	c := reflect.New(rv.Elem().Type())
	c.Elem().Set(rv.Elem())
	return c.Interface().(T)
}

// Assign sets a column (or its form alias) on the struct pointed to by ptr.
// Strings are parsed into the field type; other values must be assignable or
// convertible. An empty string clears pointer fields and zeroes value fields.
func Assign(ptr any, name string, value any) error {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("assign %s: target must be a non-nil pointer, got %T", name, ptr)
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Struct {
		return fmt.Errorf("assign %s: target must point to a struct, got %T", name, ptr)
	}

	meta := metadataFor(rv.Type())
	pos, ok := meta.byColumn[name]
	if !ok {
		return fmt.Errorf("unknown field %q", name)
	}

	return setValue(rv.FieldByIndex(meta.fields[pos].index), value)
}

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	uuidType    = reflect.TypeOf(uuid.UUID{})
	timeType    = reflect.TypeOf(time.Time{})
)

func setValue(field reflect.Value, value any) error {
	if value == nil {
		field.Set(reflect.Zero(field.Type()))
		return nil
	}

	in := reflect.ValueOf(value)
	if in.Type().AssignableTo(field.Type()) {
		field.Set(in)
		return nil
	}

	if field.Kind() == reflect.Ptr {
		if s, ok := value.(string); ok && strings.TrimSpace(s) == "" {
			field.Set(reflect.Zero(field.Type()))
			return nil
		}
		elem := reflect.New(field.Type().Elem())
		if err := setValue(elem.Elem(), value); err != nil {
			return err
		}
		field.Set(elem)
		return nil
	}

	if s, ok := value.(string); ok {
		return parseInto(field, s)
	}

	if isNumericKind(in.Kind()) && isNumericKind(field.Kind()) {
		return convertNumber(field, in)
	}

	return parseInto(field, fmt.Sprint(value))
}

// convertNumber sets a native number, refusing values the field cannot hold exactly.
func convertNumber(field reflect.Value, in reflect.Value) error {
	switch in.Kind() {
	case reflect.Float32, reflect.Float64:
		f := in.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%v is not a valid number", f)
		}
		switch field.Kind() {
		case reflect.Float32, reflect.Float64:
			if field.OverflowFloat(f) {
				return fmt.Errorf("%v is out of range", f)
			}
			field.SetFloat(f)
			return nil
		}
		if f != math.Trunc(f) {
			return fmt.Errorf("%v is not a valid integer", f)
		}
		return parseInto(field, strconv.FormatFloat(f, 'f', -1, 64))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return parseInto(field, strconv.FormatUint(in.Uint(), 10))
	}
	return parseInto(field, strconv.FormatInt(in.Int(), 10))
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// parseInto parses s according to the field's type.
func parseInto(field reflect.Value, s string) error {
	s = strings.TrimSpace(s)
	t := field.Type()

	switch t {
	case decimalType:
		if s == "" {
			field.Set(reflect.ValueOf(decimal.Zero))
			return nil
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("%q is not a valid number", s)
		}
		field.Set(reflect.ValueOf(d))
		return nil
	case uuidType:
		if s == "" {
			field.Set(reflect.ValueOf(uuid.Nil))
			return nil
		}
		u, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("%q is not a valid UUID", s)
		}
		field.Set(reflect.ValueOf(u))
		return nil
	case timeType:
		if s == "" {
			field.Set(reflect.Zero(t))
			return nil
		}
		tm, err := parseTime(s)
		if err != nil {
			return err
		}
		field.Set(reflect.ValueOf(tm))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(s)
	case reflect.Bool:
		if s == "" {
			field.SetBool(false)
			return nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("%q is not a valid boolean", s)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if s == "" {
			field.SetInt(0)
			return nil
		}
		n, err := strconv.ParseInt(s, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("%q is not a valid integer", s)
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if s == "" {
			field.SetUint(0)
			return nil
		}
		n, err := strconv.ParseUint(s, 10, t.Bits())
		if err != nil {
			return fmt.Errorf("%q is not a valid non-negative integer", s)
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		if s == "" {
			field.SetFloat(0)
			return nil
		}
		f, err := strconv.ParseFloat(s, t.Bits())
		if err != nil {
			return fmt.Errorf("%q is not a valid number", s)
		}
		field.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field type %s", t)
	}
	return nil
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a valid date", s)
}
