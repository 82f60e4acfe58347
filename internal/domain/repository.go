// Package domain provides the storage port and the CRUD orchestration built on it.
package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"crudkit/internal/core/apperror"
)

// --- Pagination ---

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

// Sort is one ORDER BY key. Undotted columns resolve against the root alias.
type Sort struct {
	Column    string
	Direction Direction
}

// Page selects a window of a filtered result. Sort keys apply in slice order.
type Page struct {
	Offset  int
	Limit   int
	OrderBy []Sort
}

// DefaultPage returns offset 0, limit 10, no ordering.
func DefaultPage() Page {
	return Page{Limit: 10}
}

// Validate checks offset >= 0, limit > 0 and sort directions.
func (p Page) Validate() error {
	if p.Offset < 0 {
		return apperror.NewInvalidInput("offset must not be negative").WithDetail("offset", p.Offset)
	}
	if p.Limit <= 0 {
		return apperror.NewInvalidInput("limit must be positive").WithDetail("limit", p.Limit)
	}
	for _, s := range p.OrderBy {
		if s.Direction != Asc && s.Direction != Desc {
			return apperror.NewInvalidInput("invalid sort direction").
				WithDetail("column", s.Column).
				WithDetail("direction", string(s.Direction))
		}
	}
	return nil
}

// ParseSort parses "name,-price,+sku" into sort keys; "-" means DESC.
func ParseSort(orderBy string) ([]Sort, error) {
	var out []Sort
	for _, part := range strings.Split(orderBy, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		dir := Asc
		switch part[0] {
		case '-':
			dir = Desc
			part = part[1:]
		case '+':
			part = part[1:]
		}

		part = strings.TrimSpace(part)
		if part == "" {
			return nil, apperror.NewInvalidInput("invalid orderBy").WithDetail("orderBy", orderBy)
		}
		out = append(out, Sort{Column: part, Direction: dir})
	}
	return out, nil
}

// PaginatedResult is one page of entities. The total row count is computed on
// first request and cached.
type PaginatedResult[T any] struct {
	Items   []T
	Offset  int
	Limit   int
	OrderBy []Sort

	count func(ctx context.Context) (int64, error)
	total *int64
}

// NewPaginatedResult creates a page. count is called lazily by TotalCount.
func NewPaginatedResult[T any](items []T, page Page, count func(ctx context.Context) (int64, error)) *PaginatedResult[T] {
	return &PaginatedResult[T]{
		Items:   items,
		Offset:  page.Offset,
		Limit:   page.Limit,
		OrderBy: page.OrderBy,
		count:   count,
	}
}

// TotalCount returns the number of rows matching the filter, ignoring offset/limit.
func (r *PaginatedResult[T]) TotalCount(ctx context.Context) (int64, error) {
	if r.total != nil {
		return *r.total, nil
	}
	if r.count == nil {
		n := int64(len(r.Items))
		r.total = &n
		return n, nil
	}
	n, err := r.count(ctx)
	if err != nil {
		return 0, err
	}
	r.total = &n
	return n, nil
}

// Len returns the number of items on this page.
func (r *PaginatedResult[T]) Len() int {
	return len(r.Items)
}

// PageCount returns ceil(count / perPage). perPage must be positive.
func PageCount(count int64, perPage int) (int64, error) {
	if perPage <= 0 {
		return 0, apperror.NewInvalidInput("perPage must be positive").WithDetail("perPage", perPage)
	}
	per := int64(perPage)
	return (count + per - 1) / per, nil
}

// --- Repository port ---

// Repository is the generic storage port over one entity type.
//
// Read, Count and PageCount accept either a filter.QueryFilter or a raw map
// (map[string]any, map[string]string, url.Values); raw maps are classified with
// filter.Create using AND. Any other argument fails with MISSING_FILTER before
// the store is touched.
//
// Save, Update and Delete commit immediately. A single Repository is not safe
// for concurrent mutating use.
type Repository[T any] interface {
	// Prototype returns a fresh, empty entity.
	Prototype() T

	// FindByID returns the entity with the given primary key; found is false if absent.
	FindByID(ctx context.Context, id any) (entity T, found bool, err error)

	// FindAll returns every entity.
	FindAll(ctx context.Context) ([]T, error)

	// FindOneBy returns the first entity whose columns equal every given value.
	FindOneBy(ctx context.Context, criteria map[string]any) (entity T, found bool, err error)

	// Save persists a new entity.
	Save(ctx context.Context, entity T) error

	// Update merges an existing entity.
	Update(ctx context.Context, entity T) error

	// Delete removes an entity.
	Delete(ctx context.Context, entity T) error

	// Read returns one page of entities matching src.
	Read(ctx context.Context, src any, page Page) (*PaginatedResult[T], error)

	// Count returns the number of entities matching src.
	Count(ctx context.Context, src any) (int64, error)

	// PageCount returns ceil(Count(src) / perPage).
	PageCount(ctx context.Context, src any, perPage int) (int64, error)
}

// Timestamped entities are stamped by repositories before every write.
type Timestamped interface {
	Touch(now time.Time)
}

// Stamp calls Touch when entity is Timestamped.
func Stamp(entity any) {
	if ts, ok := entity.(Timestamped); ok {
		ts.Touch(time.Now().UTC())
	}
}

// NotFoundOr converts a found=false lookup into a NOT_FOUND error.
func NotFoundOr[T any](entity T, found bool, err error, entityName string, id any) (T, error) {
	if err != nil {
		return entity, err
	}
	if !found {
		return entity, apperror.NewNotFound(entityName, fmt.Sprint(id))
	}
	return entity, nil
}
