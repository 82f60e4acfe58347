package memory

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"crudkit/internal/core/apperror"
	"crudkit/internal/core/structmap"
	"crudkit/internal/domain/filter"
)

// compiled is a QueryFilter checked once and evaluated per entity.
type compiled struct {
	criteria []filter.Criterion
	likes    map[int]*regexp.Regexp
}

// compile validates comparators, combiners and columns in the same order the
// SQL builder does, so both stores fail identically.
func compile(f filter.QueryFilter, prototype any) (*compiled, error) {
	c := &compiled{criteria: f.Criteria(), likes: map[int]*regexp.Regexp{}}
	for i, cr := range c.criteria {
		n := i + 1
		if !cr.Compare().Valid() {
			return nil, apperror.NewInvalidComparator(string(cr.Compare())).WithDetail("criterion", n)
		}
		if !cr.Combiner().Valid() {
			return nil, apperror.NewInvalidCombiner(string(cr.Combiner())).WithDetail("criterion", n)
		}
		if !structmap.Has(prototype, column(cr.Column())) {
			return nil, apperror.NewInvalidColumn(cr.Column()).WithDetail("criterion", n)
		}
		if cr.Compare() == filter.Like || cr.Compare() == filter.NotLike {
			c.likes[i] = likeRegexp(fmt.Sprint(cr.Value()))
		}
	}
	return c, nil
}

// column strips the root alias; joined relations are not supported in memory.
func column(path string) string {
	if rest, ok := strings.CutPrefix(path, "t."); ok {
		return rest
	}
	return path
}

// match folds criteria left to right exactly like the SQL rendering:
// the first criterion seeds the result, every later one joins with its combiner.
func (c *compiled) match(entity any) bool {
	var acc bool
	for i, cr := range c.criteria {
		v, _ := structmap.Get(entity, column(cr.Column()))
		m := c.test(i, cr, v)
		switch {
		case i == 0:
			acc = m
		case cr.Combiner() == filter.And:
			acc = acc && m
		default:
			acc = acc || m
		}
	}
	return len(c.criteria) == 0 || acc
}

func (c *compiled) test(i int, cr filter.Criterion, v any) bool {
	v = deref(v)
	switch cr.Compare() {
	case filter.IsNull:
		return v == nil
	case filter.IsNotNull:
		return v != nil
	}
	if v == nil || cr.Value() == nil {
		// SQL comparisons with NULL are never true
		return false
	}

	switch cr.Compare() {
	case filter.Like:
		return c.likes[i].MatchString(text(v))
	case filter.NotLike:
		return !c.likes[i].MatchString(text(v))
	}

	cmp, ok := compare(v, cr.Value())
	if !ok {
		return false
	}
	switch cr.Compare() {
	case filter.Equal:
		return cmp == 0
	case filter.NotEqual:
		return cmp != 0
	case filter.Greater:
		return cmp > 0
	case filter.GreaterOrEqual:
		return cmp >= 0
	case filter.Less:
		return cmp < 0
	case filter.LessOrEqual:
		return cmp <= 0
	}
	return false
}

// likeRegexp translates a SQL LIKE pattern: % any run, _ one character, case-sensitive.
func likeRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^(?s)")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// compare orders a stored field value against a criterion value, coercing the
// criterion value to the field's type. ok is false when they are not comparable.
func compare(field, value any) (int, bool) {
	value = deref(value)

	if _, isText := field.(string); !isText {
		if d, ok := toDecimal(field); ok {
			other, ok := toDecimal(value)
			if !ok {
				return 0, false
			}
			return d.Cmp(other), true
		}
	}

	switch f := field.(type) {
	case bool:
		other, ok := toBool(value)
		if !ok {
			return 0, false
		}
		switch {
		case f == other:
			return 0, true
		case !f:
			return -1, true
		default:
			return 1, true
		}
	case time.Time:
		other, ok := toTime(value)
		if !ok {
			return 0, false
		}
		return f.Compare(other), true
	}

	return strings.Compare(text(field), text(value)), true
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return decimal.NewFromInt(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		d, err := decimal.NewFromString(strconv.FormatUint(rv.Uint(), 10))
		return d, err == nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(f), true
	}
	return decimal.Decimal{}, false
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		return b, err == nil
	}
	if d, ok := toDecimal(v); ok {
		return !d.IsZero(), true
	}
	return false, false
}

func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
			if t, err := time.Parse(layout, strings.TrimSpace(x)); err == nil {
				return t, true
			}
		}
	}
	return time.Time{}, false
}
