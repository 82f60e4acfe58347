package postgres

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"crudkit/internal/core/apperror"
	"crudkit/internal/domain"
	"crudkit/internal/domain/filter"
)

// DefaultRootAlias is the alias of the queried table; undotted column paths resolve against it.
const DefaultRootAlias = "t"

// identRegex accepts "column" and "relation.column".
var identRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Query is a SELECT under construction. Predicates reference pgx named
// parameters (@name); their values are collected in Args and bound at execution.
type Query struct {
	alias   string
	builder squirrel.SelectBuilder
	args    pgx.NamedArgs
}

// NewQuery starts "SELECT columns FROM table AS alias".
func NewQuery(table, alias string, columns ...string) *Query {
	if alias == "" {
		alias = DefaultRootAlias
	}
	return &Query{
		alias: alias,
		builder: squirrel.StatementBuilder.
			PlaceholderFormat(squirrel.Dollar).
			Select(columns...).
			From(table + " AS " + alias),
		args: pgx.NamedArgs{},
	}
}

// Alias returns the root alias.
func (q *Query) Alias() string {
	return q.alias
}

// Qualify prefixes undotted column paths with the root alias.
func (q *Query) Qualify(column string) string {
	if strings.Contains(column, ".") {
		return column
	}
	return q.alias + "." + column
}

// Join adds a raw "LEFT JOIN ..." clause.
func (q *Query) Join(clause string) *Query {
	q.builder = q.builder.LeftJoin(clause)
	return q
}

// Where adds a predicate ANDed with what is already there.
func (q *Query) Where(pred squirrel.Sqlizer) *Query {
	q.builder = q.builder.Where(pred)
	return q
}

// OrderBy appends sort keys in the given order.
func (q *Query) OrderBy(sorts []domain.Sort) (*Query, error) {
	for _, s := range sorts {
		if !identRegex.MatchString(s.Column) {
			return q, apperror.NewInvalidColumn(s.Column)
		}
		dir := s.Direction
		if dir == "" {
			dir = domain.Asc
		}
		if dir != domain.Asc && dir != domain.Desc {
			return q, apperror.NewInvalidInput("invalid sort direction").WithDetail("direction", string(dir))
		}
		q.builder = q.builder.OrderBy(q.Qualify(s.Column) + " " + string(dir))
	}
	return q, nil
}

// Paginate sets OFFSET and LIMIT.
func (q *Query) Paginate(offset, limit int) *Query {
	if offset > 0 {
		q.builder = q.builder.Offset(uint64(offset))
	}
	if limit > 0 {
		q.builder = q.builder.Limit(uint64(limit))
	}
	return q
}

// Bind registers named parameters.
func (q *Query) Bind(args pgx.NamedArgs) *Query {
	for k, v := range args {
		q.args[k] = v
	}
	return q
}

// Args returns the bound named parameters.
func (q *Query) Args() pgx.NamedArgs {
	return q.args
}

// ToSql renders the statement. Positional args are never produced; every value
// travels in the returned NamedArgs.
func (q *Query) ToSql() (string, pgx.NamedArgs, error) {
	sql, positional, err := q.builder.ToSql()
	if err != nil {
		return "", nil, fmt.Errorf("build query: %w", err)
	}
	if len(positional) > 0 {
		return "", nil, fmt.Errorf("build query: unexpected positional arguments %v", positional)
	}
	return sql, q.args, nil
}

// PredicateBuilder applies a QueryFilter to a Query.
//
// Criteria are folded strictly left to right: the predicate built so far becomes
// the left operand of the next criterion's combiner. [A(AND), B(OR), C(AND)] renders
// ((A OR B) AND C). There is no operator precedence and no grouping.
type PredicateBuilder struct{}

// NewPredicateBuilder creates a predicate builder.
func NewPredicateBuilder() PredicateBuilder {
	return PredicateBuilder{}
}

// Apply adds the filter to q and binds its parameters. On error q is left untouched.
//
// Errors: INVALID_COMPARATOR, INVALID_COMBINER and INVALID_COLUMN, all programming errors.
func (PredicateBuilder) Apply(f filter.QueryFilter, q *Query) (*Query, error) {
	var acc squirrel.Sqlizer
	args := pgx.NamedArgs{}

	for i, c := range f.Criteria() {
		n := i + 1

		if !c.Compare().Valid() {
			return q, apperror.NewInvalidComparator(string(c.Compare())).WithDetail("criterion", n)
		}
		if !c.Combiner().Valid() {
			return q, apperror.NewInvalidCombiner(string(c.Combiner())).WithDetail("criterion", n)
		}
		if !identRegex.MatchString(c.Column()) {
			return q, apperror.NewInvalidColumn(c.Column()).WithDetail("criterion", n)
		}

		column := q.Qualify(c.Column())
		param := ParamName(column, n)
		expr := predicate(column, c.Compare(), param)

		switch {
		case acc == nil:
			acc = expr
		case c.Combiner() == filter.And:
			acc = squirrel.And{acc, expr}
		default:
			acc = squirrel.Or{acc, expr}
		}

		if !c.Compare().Unary() {
			args[param] = c.Value()
		}
	}

	if acc != nil {
		q.Where(acc)
	}
	q.Bind(args)
	return q, nil
}

// ParamName derives a unique parameter name from a qualified column and the
// criterion's 1-based position.
func ParamName(qualified string, n int) string {
	return strings.ReplaceAll(qualified, ".", "_") + "_" + strconv.Itoa(n)
}

// predicate renders one comparison. compare must already be validated.
func predicate(column string, compare filter.CompareType, param string) squirrel.Sqlizer {
	switch compare {
	case filter.IsNull:
		return squirrel.Expr(column + " IS NULL")
	case filter.IsNotNull:
		return squirrel.Expr(column + " IS NOT NULL")
	case filter.Like, filter.NotLike:
		// Pattern matching works on any column type, as the in-memory store does.
		return squirrel.Expr("CAST(" + column + " AS TEXT) " + operators[compare] + " @" + param)
	}
	return squirrel.Expr(column + " " + operators[compare] + " @" + param)
}

var operators = map[filter.CompareType]string{
	filter.Equal:          "=",
	filter.NotEqual:       "<>",
	filter.Greater:        ">",
	filter.GreaterOrEqual: ">=",
	filter.Less:           "<",
	filter.LessOrEqual:    "<=",
	filter.Like:           "LIKE",
	filter.NotLike:        "NOT LIKE",
}
