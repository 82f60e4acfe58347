// Package filter describes query predicates as data.
//
// A QueryFilter is an ordered list of criteria. Criteria are folded left to right:
// each criterion's combiner joins it to everything accumulated before it, with no
// grouping. [A(AND), B(OR), C(AND)] therefore means ((A OR B) AND C). Callers that
// need real boolean precedence must split criteria across filters and compose the
// results themselves.
package filter

import "fmt"

// CompareType is the comparison applied by a criterion.
type CompareType string

const (
	Equal          CompareType = "eq"
	NotEqual       CompareType = "neq"
	Greater        CompareType = "gt"
	GreaterOrEqual CompareType = "gte"
	Less           CompareType = "lt"
	LessOrEqual    CompareType = "lte"
	Like           CompareType = "like"
	NotLike        CompareType = "notLike"
	IsNull         CompareType = "isNull"
	IsNotNull      CompareType = "isNotNull"
)

// Valid reports whether c belongs to the closed set of comparators.
func (c CompareType) Valid() bool {
	switch c {
	case Equal, NotEqual, Greater, GreaterOrEqual, Less, LessOrEqual,
		Like, NotLike, IsNull, IsNotNull:
		return true
	}
	return false
}

// Unary reports whether the comparator binds no parameter.
func (c CompareType) Unary() bool {
	return c == IsNull || c == IsNotNull
}

// Combiner joins a criterion to the predicate accumulated so far.
type Combiner string

const (
	And Combiner = "AND"
	Or  Combiner = "OR"
)

// Valid reports whether c is AND or OR.
func (c Combiner) Valid() bool {
	return c == And || c == Or
}

// Criterion is one column/comparator/value/combiner tuple. It is immutable once built.
type Criterion struct {
	column   string
	value    any
	compare  CompareType
	combiner Combiner
}

// NewCriterion builds a criterion. Values are not checked here: an out-of-set
// comparator or combiner is reported when the criterion is applied to a query.
func NewCriterion(column string, compare CompareType, value any, combiner Combiner) Criterion {
	return Criterion{column: column, value: value, compare: compare, combiner: combiner}
}

// Where is shorthand for an AND criterion.
func Where(column string, compare CompareType, value any) Criterion {
	return NewCriterion(column, compare, value, And)
}

// OrWhere is shorthand for an OR criterion.
func OrWhere(column string, compare CompareType, value any) Criterion {
	return NewCriterion(column, compare, value, Or)
}

func (c Criterion) Column() string { return c.column }
func (c Criterion) Value() any { return c.value }
func (c Criterion) Compare() CompareType { return c.compare }
func (c Criterion) Combiner() Combiner { return c.combiner }

func (c Criterion) String() string {
	if c.compare.Unary() {
		return fmt.Sprintf("%s %s %s", c.combiner, c.column, c.compare)
	}
	return fmt.Sprintf("%s %s %s %v", c.combiner, c.column, c.compare, c.value)
}

// QueryFilter is an ordered sequence of criteria plus the raw input it was built from.
// Raw is kept for logging only and is never reinterpreted.
type QueryFilter struct {
	criteria []Criterion
	raw      map[string]any
}

// New creates a filter from criteria, in the given order.
func New(criteria ...Criterion) QueryFilter {
	return QueryFilter{criteria: append([]Criterion(nil), criteria...)}
}

// Criteria returns a copy of the criteria in fold order.
func (f QueryFilter) Criteria() []Criterion {
	return append([]Criterion(nil), f.criteria...)
}

// Raw returns the input map the filter was created from, nil for hand-built filters.
func (f QueryFilter) Raw() map[string]any {
	return f.raw
}

// Len returns the number of criteria.
func (f QueryFilter) Len() int {
	return len(f.criteria)
}

// IsEmpty reports whether the filter matches everything.
func (f QueryFilter) IsEmpty() bool {
	return len(f.criteria) == 0
}

// With returns a new filter with extra criteria appended.
func (f QueryFilter) With(criteria ...Criterion) QueryFilter {
	out := QueryFilter{raw: f.raw}
	out.criteria = make([]Criterion, 0, len(f.criteria)+len(criteria))
	out.criteria = append(out.criteria, f.criteria...)
	out.criteria = append(out.criteria, criteria...)
	return out
}

// AllowedFields restricts which raw keys may become criteria.
// A nil set allows every key.
type AllowedFields map[string]struct{}

// Allow builds an AllowedFields set.
func Allow(names ...string) AllowedFields {
	set := make(AllowedFields, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// Contains reports whether name is allowed.
func (a AllowedFields) Contains(name string) bool {
	if a == nil {
		return true
	}
	_, ok := a[name]
	return ok
}
