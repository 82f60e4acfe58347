// Package entity_repo provides the PostgreSQL implementation of domain.Repository.
package entity_repo

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crudkit/internal/core/apperror"
	"crudkit/internal/core/structmap"
	"crudkit/internal/core/tx"
	"crudkit/internal/core/uow"
	"crudkit/internal/domain"
	"crudkit/internal/domain/filter"
	"crudkit/internal/infrastructure/storage/postgres"
)

var tracer = otel.Tracer("crudkit/entity_repo")

// Store opens transactions and hands out the querier for the current context.
// *postgres.TxManager implements it.
type Store interface {
	tx.Manager
	GetQuerier(ctx context.Context) postgres.Querier
}

// Config describes how an entity type maps onto a table.
type Config[T any] struct {
	// Table name, required
	Table string

	// Alias of the root table; defaults to "t"
	Alias string

	// Entity name for errors and traces; defaults to Table
	Entity string

	// IDColumn defaults to "id"
	IDColumn string

	// Columns defaults to every "db" tag of T
	Columns []string

	// Joins are raw LEFT JOIN clauses, e.g. "cat_categories AS c ON c.id = t.category_id"
	Joins []string

	// Allowed restricts which raw map keys become criteria; nil allows all
	Allowed filter.AllowedFields

	// New returns an empty entity, required
	New func() T
}

// BaseRepo implements domain.Repository[T] over one table. T is usually a pointer
// to a struct with "db" tags.
//
// Every mutation runs in its own transaction (or joins the one in ctx) and is
// committed before the call returns. Loaded entities are tracked in an identity
// map until Clear.
type BaseRepo[T any] struct {
	store      Store
	cfg        Config[T]
	predicates postgres.PredicateBuilder
	identity   *uow.IdentityMap[T]
}

var _ domain.Repository[any] = (*BaseRepo[any])(nil)

// NewBaseRepo creates a repository. store may be nil for query rendering only.
func NewBaseRepo[T any](store Store, cfg Config[T]) *BaseRepo[T] {
	if cfg.Alias == "" {
		cfg.Alias = postgres.DefaultRootAlias
	}
	if cfg.Entity == "" {
		cfg.Entity = cfg.Table
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = structmap.Columns[T]()
	}
	return &BaseRepo[T]{
		store:      store,
		cfg:        cfg,
		predicates: postgres.NewPredicateBuilder(),
		identity:   uow.NewIdentityMap[T](),
	}
}

// Prototype returns a fresh entity.
func (r *BaseRepo[T]) Prototype() T {
	return r.cfg.New()
}

// Identity returns the identity map of loaded entities.
func (r *BaseRepo[T]) Identity() *uow.IdentityMap[T] {
	return r.identity
}

// Clear implements uow.Scope.
func (r *BaseRepo[T]) Clear() {
	r.identity.Clear()
}

// --- Query rendering ---

func (r *BaseRepo[T]) newQuery(columns ...string) *postgres.Query {
	q := postgres.NewQuery(r.cfg.Table, r.cfg.Alias, columns...)
	for _, j := range r.cfg.Joins {
		q.Join(j)
	}
	return q
}

func (r *BaseRepo[T]) selectColumns() []string {
	cols := make([]string, len(r.cfg.Columns))
	for i, c := range r.cfg.Columns {
		cols[i] = r.cfg.Alias + "." + c
	}
	return cols
}

func (r *BaseRepo[T]) resolve(src any) (filter.QueryFilter, error) {
	return filter.ResolveAllowed(src, r.cfg.Allowed)
}

// SelectQuery renders the statement Read executes.
func (r *BaseRepo[T]) SelectQuery(src any, page domain.Page) (string, pgx.NamedArgs, error) {
	f, err := r.resolve(src)
	if err != nil {
		return "", nil, err
	}
	return r.selectQuery(f, page)
}

func (r *BaseRepo[T]) selectQuery(f filter.QueryFilter, page domain.Page) (string, pgx.NamedArgs, error) {
	q, err := r.predicates.Apply(f, r.newQuery(r.selectColumns()...))
	if err != nil {
		return "", nil, err
	}
	if q, err = q.OrderBy(page.OrderBy); err != nil {
		return "", nil, err
	}
	return q.Paginate(page.Offset, page.Limit).ToSql()
}

// CountQuery renders the statement Count executes: same filter, no ordering or paging.
func (r *BaseRepo[T]) CountQuery(src any) (string, pgx.NamedArgs, error) {
	f, err := r.resolve(src)
	if err != nil {
		return "", nil, err
	}
	return r.countQuery(f)
}

func (r *BaseRepo[T]) countQuery(f filter.QueryFilter) (string, pgx.NamedArgs, error) {
	q, err := r.predicates.Apply(f, r.newQuery("COUNT(*)"))
	if err != nil {
		return "", nil, err
	}
	return q.ToSql()
}

// --- Reads ---

// FindByID returns the entity with the given primary key.
func (r *BaseRepo[T]) FindByID(ctx context.Context, id any) (T, bool, error) {
	if e, ok := r.identity.Get(id); ok {
		return e, true, nil
	}

	entity, found, err := r.findOne(ctx, filter.New(filter.Where(r.cfg.IDColumn, filter.Equal, id)))
	if err != nil || !found {
		return entity, found, err
	}
	r.identity.Put(id, entity)
	return entity, true, nil
}

// FindAll returns every entity in primary key order.
func (r *BaseRepo[T]) FindAll(ctx context.Context) ([]T, error) {
	sql, args, err := r.selectQuery(filter.New(), domain.Page{
		OrderBy: []domain.Sort{{Column: r.cfg.IDColumn, Direction: domain.Asc}},
	})
	if err != nil {
		return nil, err
	}

	var items []T
	if err := pgxscan.Select(ctx, r.store.GetQuerier(ctx), &items, sql, args); err != nil {
		return nil, fmt.Errorf("find all %s: %w", r.cfg.Table, err)
	}
	r.track(items...)
	return items, nil
}

// FindOneBy returns the first entity whose columns equal every value in criteria.
// A nil value matches NULL.
func (r *BaseRepo[T]) FindOneBy(ctx context.Context, criteria map[string]any) (T, bool, error) {
	return r.findOne(ctx, ExactFilter(criteria))
}

func (r *BaseRepo[T]) findOne(ctx context.Context, f filter.QueryFilter) (T, bool, error) {
	entity := r.cfg.New()

	sql, args, err := r.selectQuery(f, domain.Page{Limit: 1})
	if err != nil {
		return entity, false, err
	}

	if err := pgxscan.Get(ctx, r.store.GetQuerier(ctx), entity, sql, args); err != nil {
		if pgxscan.NotFound(err) {
			var zero T
			return zero, false, nil
		}
		return entity, false, fmt.Errorf("find %s: %w", r.cfg.Table, err)
	}
	r.track(entity)
	return entity, true, nil
}

// Read returns one page of entities matching src. src is resolved before the
// store is touched, so an unusable src never reaches the database.
func (r *BaseRepo[T]) Read(ctx context.Context, src any, page domain.Page) (*domain.PaginatedResult[T], error) {
	f, err := r.resolve(src)
	if err != nil {
		return nil, err
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	ctx, span := r.startSpan(ctx, "Read", f)
	defer span.End()

	sql, args, err := r.selectQuery(f, page)
	if err != nil {
		return nil, err
	}

	var items []T
	if err := pgxscan.Select(ctx, r.store.GetQuerier(ctx), &items, sql, args); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("read %s: %w", r.cfg.Table, err)
	}
	r.track(items...)

	return domain.NewPaginatedResult(items, page, func(ctx context.Context) (int64, error) {
		return r.count(ctx, f)
	}), nil
}

// Count returns the number of entities matching src.
func (r *BaseRepo[T]) Count(ctx context.Context, src any) (int64, error) {
	f, err := r.resolve(src)
	if err != nil {
		return 0, err
	}
	return r.count(ctx, f)
}

func (r *BaseRepo[T]) count(ctx context.Context, f filter.QueryFilter) (int64, error) {
	ctx, span := r.startSpan(ctx, "Count", f)
	defer span.End()

	sql, args, err := r.countQuery(f)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := r.store.GetQuerier(ctx).QueryRow(ctx, sql, args).Scan(&n); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("count %s: %w", r.cfg.Table, err)
	}
	return n, nil
}

// PageCount returns ceil(Count(src) / perPage).
func (r *BaseRepo[T]) PageCount(ctx context.Context, src any, perPage int) (int64, error) {
	if _, err := domain.PageCount(0, perPage); err != nil {
		return 0, err
	}
	n, err := r.Count(ctx, src)
	if err != nil {
		return 0, err
	}
	return domain.PageCount(n, perPage)
}

// --- Mutations ---

// Save inserts a new entity and commits.
func (r *BaseRepo[T]) Save(ctx context.Context, entity T) error {
	domain.Stamp(entity)
	data := r.columnValues(entity)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in %T", entity)
	}

	sql, args, err := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Insert(r.cfg.Table).
		SetMap(data).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	err = r.store.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := r.store.GetQuerier(ctx).Exec(ctx, sql, args...)
		return err
	})
	if err != nil {
		return r.mapWriteError("insert", data[r.cfg.IDColumn], err)
	}

	r.identity.Put(data[r.cfg.IDColumn], entity)
	return nil
}

// Update writes every column of an existing entity and commits.
func (r *BaseRepo[T]) Update(ctx context.Context, entity T) error {
	domain.Stamp(entity)
	data := r.columnValues(entity)
	id, ok := data[r.cfg.IDColumn]
	if !ok {
		return fmt.Errorf("%T has no %q column", entity, r.cfg.IDColumn)
	}
	delete(data, r.cfg.IDColumn)

	sql, args, err := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Update(r.cfg.Table).
		SetMap(data).
		Where(squirrel.Eq{r.cfg.IDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	var affected int64
	err = r.store.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.store.GetQuerier(ctx).Exec(ctx, sql, args...)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return r.mapWriteError("update", id, err)
	}
	if affected == 0 {
		return apperror.NewNotFound(r.cfg.Entity, id)
	}

	r.identity.Put(id, entity)
	return nil
}

// Delete removes an entity and commits.
func (r *BaseRepo[T]) Delete(ctx context.Context, entity T) error {
	id, ok := structmap.Get(entity, r.cfg.IDColumn)
	if !ok {
		return fmt.Errorf("%T has no %q column", entity, r.cfg.IDColumn)
	}

	sql, args, err := squirrel.StatementBuilder.
		PlaceholderFormat(squirrel.Dollar).
		Delete(r.cfg.Table).
		Where(squirrel.Eq{r.cfg.IDColumn: id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	var affected int64
	err = r.store.RunInTransaction(ctx, func(ctx context.Context) error {
		tag, err := r.store.GetQuerier(ctx).Exec(ctx, sql, args...)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return r.mapWriteError("delete", id, err)
	}
	if affected == 0 {
		return apperror.NewNotFound(r.cfg.Entity, id)
	}

	r.identity.Forget(id)
	return nil
}

// columnValues keeps only configured columns.
func (r *BaseRepo[T]) columnValues(entity T) map[string]any {
	all := structmap.ToMap(entity)
	data := make(map[string]any, len(r.cfg.Columns))
	for _, col := range r.cfg.Columns {
		if v, ok := all[col]; ok {
			data[col] = v
		}
	}
	return data
}

func (r *BaseRepo[T]) mapWriteError(op string, id any, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return apperror.NewConflict(fmt.Sprintf("%s already exists", r.cfg.Entity)).
				WithDetail("constraint", pgErr.ConstraintName).
				WithCause(err)
		case "23503":
			return apperror.NewConflict(fmt.Sprintf("%s is referenced by other records", r.cfg.Entity)).
				WithDetail("id", fmt.Sprint(id)).
				WithCause(err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, r.cfg.Table, err)
}

func (r *BaseRepo[T]) track(items ...T) {
	for _, e := range items {
		if id, ok := structmap.Get(e, r.cfg.IDColumn); ok {
			r.identity.Put(id, e)
		}
	}
}

func (r *BaseRepo[T]) startSpan(ctx context.Context, op string, f filter.QueryFilter) (context.Context, trace.Span) {
	return tracer.Start(ctx, r.cfg.Entity+"."+op, trace.WithAttributes(
		attribute.String("db.table", r.cfg.Table),
		attribute.Int("filter.criteria", f.Len()),
	))
}

// ExactFilter turns equality criteria into a filter: keys sorted, nil matches NULL.
func ExactFilter(criteria map[string]any) filter.QueryFilter {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]filter.Criterion, 0, len(keys))
	for _, k := range keys {
		if criteria[k] == nil {
			out = append(out, filter.Where(k, filter.IsNull, nil))
			continue
		}
		out = append(out, filter.Where(k, filter.Equal, criteria[k]))
	}
	return filter.New(out...)
}
