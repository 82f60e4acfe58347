// Package memory provides an in-process domain.Repository. It evaluates query
// filters with the same fold semantics as the PostgreSQL repository and backs
// dry-run imports and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"crudkit/internal/core/apperror"
	"crudkit/internal/core/structmap"
	"crudkit/internal/core/uow"
	"crudkit/internal/domain"
	"crudkit/internal/domain/filter"
)

// Config describes the stored entity type.
type Config[T any] struct {
	// Entity name for errors
	Entity string

	// IDColumn defaults to "id"
	IDColumn string

	// Unique columns reject duplicates with CONFLICT, like a unique index
	Unique []string

	// Allowed restricts which raw map keys become criteria; nil allows all
	Allowed filter.AllowedFields

	// New returns an empty entity, required
	New func() T
}

// Repo keeps entities in insertion order. Mutations apply immediately.
// Stored entities are private copies: changing a returned entity has no effect
// until it is passed to Update.
type Repo[T any] struct {
	mu       sync.RWMutex
	cfg      Config[T]
	order    []string
	rows     map[string]T
	identity *uow.IdentityMap[T]
}

var _ domain.Repository[any] = (*Repo[any])(nil)

// New creates an empty repository.
func New[T any](cfg Config[T]) *Repo[T] {
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.Entity == "" {
		cfg.Entity = "entity"
	}
	return &Repo[T]{
		cfg:      cfg,
		rows:     make(map[string]T),
		identity: uow.NewIdentityMap[T](),
	}
}

// Prototype returns a fresh entity.
func (r *Repo[T]) Prototype() T {
	return r.cfg.New()
}

// Identity returns the identity map of loaded entities.
func (r *Repo[T]) Identity() *uow.IdentityMap[T] {
	return r.identity
}

// Clear implements uow.Scope.
func (r *Repo[T]) Clear() {
	r.identity.Clear()
}

// Len returns the number of stored entities.
func (r *Repo[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *Repo[T]) key(entity T) (string, error) {
	id, ok := structmap.Get(entity, r.cfg.IDColumn)
	if !ok {
		return "", fmt.Errorf("%T has no %q column", entity, r.cfg.IDColumn)
	}
	return fmt.Sprint(id), nil
}

// FindByID returns the entity with the given primary key.
func (r *Repo[T]) FindByID(ctx context.Context, id any) (T, bool, error) {
	if e, ok := r.identity.Get(id); ok {
		return e, true, nil
	}

	r.mu.RLock()
	e, ok := r.rows[fmt.Sprint(id)]
	r.mu.RUnlock()
	if !ok {
		return e, false, nil
	}
	e = structmap.Clone(e)
	r.identity.Put(id, e)
	return e, true, nil
}

// FindAll returns every entity in insertion order.
func (r *Repo[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.scan(nil), nil
}

// FindOneBy returns the first entity whose columns equal every given value.
func (r *Repo[T]) FindOneBy(ctx context.Context, criteria map[string]any) (T, bool, error) {
	keys := make([]string, 0, len(criteria))
	for k := range criteria {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]filter.Criterion, 0, len(keys))
	for _, k := range keys {
		if criteria[k] == nil {
			list = append(list, filter.Where(k, filter.IsNull, nil))
			continue
		}
		list = append(list, filter.Where(k, filter.Equal, criteria[k]))
	}

	c, err := compile(filter.New(list...), r.cfg.New())
	if err != nil {
		var zero T
		return zero, false, err
	}

	items := r.scan(c)
	if len(items) == 0 {
		var zero T
		return zero, false, nil
	}
	return items[0], true, nil
}

// Read returns one page of entities matching src.
func (r *Repo[T]) Read(ctx context.Context, src any, page domain.Page) (*domain.PaginatedResult[T], error) {
	c, err := r.compile(src)
	if err != nil {
		return nil, err
	}
	if err := page.Validate(); err != nil {
		return nil, err
	}

	items := r.scan(c)
	total := int64(len(items))
	if err := r.sort(items, page.OrderBy); err != nil {
		return nil, err
	}

	start := min(page.Offset, len(items))
	end := min(start+page.Limit, len(items))
	items = items[start:end]

	return domain.NewPaginatedResult(items, page, func(context.Context) (int64, error) {
		return total, nil
	}), nil
}

// Count returns the number of entities matching src.
func (r *Repo[T]) Count(ctx context.Context, src any) (int64, error) {
	c, err := r.compile(src)
	if err != nil {
		return 0, err
	}
	return int64(len(r.scan(c))), nil
}

// PageCount returns ceil(Count(src) / perPage).
func (r *Repo[T]) PageCount(ctx context.Context, src any, perPage int) (int64, error) {
	if _, err := domain.PageCount(0, perPage); err != nil {
		return 0, err
	}
	n, err := r.Count(ctx, src)
	if err != nil {
		return 0, err
	}
	return domain.PageCount(n, perPage)
}

// Save stores a new entity.
func (r *Repo[T]) Save(ctx context.Context, entity T) error {
	domain.Stamp(entity)
	k, err := r.key(entity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[k]; exists {
		return apperror.NewConflict(fmt.Sprintf("%s already exists", r.cfg.Entity)).WithDetail("id", k)
	}
	if err := r.checkUnique(k, entity); err != nil {
		return err
	}

	r.rows[k] = structmap.Clone(entity)
	r.order = append(r.order, k)
	r.identity.Put(k, entity)
	return nil
}

// Update replaces a stored entity.
func (r *Repo[T]) Update(ctx context.Context, entity T) error {
	domain.Stamp(entity)
	k, err := r.key(entity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[k]; !exists {
		return apperror.NewNotFound(r.cfg.Entity, k)
	}
	if err := r.checkUnique(k, entity); err != nil {
		return err
	}

	r.rows[k] = structmap.Clone(entity)
	r.identity.Put(k, entity)
	return nil
}

// Delete removes a stored entity.
func (r *Repo[T]) Delete(ctx context.Context, entity T) error {
	k, err := r.key(entity)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rows[k]; !exists {
		return apperror.NewNotFound(r.cfg.Entity, k)
	}
	delete(r.rows, k)
	for i, o := range r.order {
		if o == k {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.identity.Forget(k)
	return nil
}

// checkUnique must be called with the write lock held.
func (r *Repo[T]) checkUnique(self string, entity T) error {
	for _, col := range r.cfg.Unique {
		v, ok := structmap.Get(entity, col)
		if !ok {
			continue
		}
		for k, other := range r.rows {
			if k == self {
				continue
			}
			if ov, _ := structmap.Get(other, col); fmt.Sprint(ov) == fmt.Sprint(v) {
				return apperror.NewDuplicate(r.cfg.Entity, col, v)
			}
		}
	}
	return nil
}

func (r *Repo[T]) compile(src any) (*compiled, error) {
	f, err := filter.ResolveAllowed(src, r.cfg.Allowed)
	if err != nil {
		return nil, err
	}
	return compile(f, r.cfg.New())
}

// scan returns matching entities in insertion order; nil c matches everything.
func (r *Repo[T]) scan(c *compiled) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, 0, len(r.order))
	for _, k := range r.order {
		e := r.rows[k]
		if c == nil || c.match(e) {
			out = append(out, structmap.Clone(e))
		}
	}
	return out
}

func (r *Repo[T]) sort(items []T, orderBy []domain.Sort) error {
	if len(orderBy) == 0 {
		return nil
	}
	proto := r.cfg.New()
	for _, s := range orderBy {
		if !structmap.Has(proto, column(s.Column)) {
			return apperror.NewInvalidColumn(s.Column)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		for _, s := range orderBy {
			a, _ := structmap.Get(items[i], column(s.Column))
			b, _ := structmap.Get(items[j], column(s.Column))
			cmp := order(deref(a), deref(b))
			if cmp == 0 {
				continue
			}
			if s.Direction == domain.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return nil
}

// order sorts NULLs last in ascending order, as PostgreSQL does.
func order(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	cmp, _ := compare(a, b)
	return cmp
}
