package domain

import (
	"context"
	"fmt"

	"crudkit/internal/core/structmap"
	"crudkit/pkg/logger"
)

// Result is the outcome of a validated create/update.
// When Messages is non-empty the entity was rejected and nothing was stored.
type Result[T any] struct {
	Entity   T
	Messages Messages
}

// Valid reports whether the entity passed validation and was persisted.
func (r Result[T]) Valid() bool {
	return r.Messages.Empty()
}

// CrudService binds a Repository and a Form to provide validated create/update.
//
// A single call walks Unbound -> Bound -> Valid -> Persisted or Unbound -> Bound ->
// Invalid -> Rejected; no intermediate state is visible to the caller.
type CrudService[T any] struct {
	repo    Repository[T]
	newForm FormFactory[T]
	hooks   *HookRegistry[T]

	// entityName for error messages and logs
	entityName string
}

// CrudServiceConfig configures the service.
type CrudServiceConfig[T any] struct {
	Repo       Repository[T]
	NewForm    FormFactory[T]
	EntityName string
}

// NewCrudService creates a new CRUD service.
func NewCrudService[T any](cfg CrudServiceConfig[T]) *CrudService[T] {
	return &CrudService[T]{
		repo:       cfg.Repo,
		newForm:    cfg.NewForm,
		hooks:      NewHookRegistry[T](),
		entityName: cfg.EntityName,
	}
}

// WithRepository returns a service with the same forms and hooks over another repository.
func (s *CrudService[T]) WithRepository(repo Repository[T]) *CrudService[T] {
	c := *s
	c.repo = repo
	return &c
}

// Hooks returns the hook registry for external registration.
func (s *CrudService[T]) Hooks() *HookRegistry[T] {
	return s.hooks
}

// Repository returns the underlying repository.
func (s *CrudService[T]) Repository() Repository[T] {
	return s.repo
}

// EntityName returns the configured entity name.
func (s *CrudService[T]) EntityName() string {
	return s.entityName
}

// Create binds data onto a fresh prototype, validates it and saves it.
// Invalid input is returned as Result.Messages without touching storage;
// the error return is reserved for storage and hook failures.
func (s *CrudService[T]) Create(ctx context.Context, data map[string]any) (Result[T], error) {
	form := s.bind(s.repo.Prototype(), data)
	entity := form.Object()

	if !form.IsValid(ctx) {
		return Result[T]{Entity: entity, Messages: form.Messages()}, nil
	}

	if err := s.hooks.Run(ctx, BeforeCreate, entity); err != nil {
		return Result[T]{Entity: entity}, err
	}

	if err := s.repo.Save(ctx, entity); err != nil {
		return Result[T]{Entity: entity}, fmt.Errorf("create %s: %w", s.entityName, err)
	}

	if err := s.hooks.Run(ctx, AfterCreate, entity); err != nil {
		// Entity is already stored
		logger.Warn(ctx, "after-create hook failed", "entity", s.entityName, "error", err)
	}

	return Result[T]{Entity: entity}, nil
}

// Update binds data onto a copy of an entity the caller already fetched,
// validates and merges it. existing itself is never modified, so entities shared
// through an identity map only change once the store accepted the update.
func (s *CrudService[T]) Update(ctx context.Context, existing T, data map[string]any) (Result[T], error) {
	form := s.bind(structmap.Clone(existing), data)
	entity := form.Object()

	if !form.IsValid(ctx) {
		return Result[T]{Entity: entity, Messages: form.Messages()}, nil
	}

	if err := s.hooks.Run(ctx, BeforeUpdate, entity); err != nil {
		return Result[T]{Entity: entity}, err
	}

	if err := s.repo.Update(ctx, entity); err != nil {
		return Result[T]{Entity: entity}, fmt.Errorf("update %s: %w", s.entityName, err)
	}

	if err := s.hooks.Run(ctx, AfterUpdate, entity); err != nil {
		logger.Warn(ctx, "after-update hook failed", "entity", s.entityName, "error", err)
	}

	return Result[T]{Entity: entity}, nil
}

// Delete removes the entity. There is no validation step.
func (s *CrudService[T]) Delete(ctx context.Context, entity T) error {
	if err := s.hooks.Run(ctx, BeforeDelete, entity); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, entity); err != nil {
		return fmt.Errorf("delete %s: %w", s.entityName, err)
	}

	if err := s.hooks.Run(ctx, AfterDelete, entity); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "entity", s.entityName, "error", err)
	}
	return nil
}

// GetByID returns the entity or a NOT_FOUND error.
func (s *CrudService[T]) GetByID(ctx context.Context, id any) (T, error) {
	entity, found, err := s.repo.FindByID(ctx, id)
	return NotFoundOr(entity, found, err, s.entityName, id)
}

// FindOneBy passes through to the repository.
func (s *CrudService[T]) FindOneBy(ctx context.Context, criteria map[string]any) (T, bool, error) {
	return s.repo.FindOneBy(ctx, criteria)
}

// Read passes through to the repository.
func (s *CrudService[T]) Read(ctx context.Context, src any, page Page) (*PaginatedResult[T], error) {
	return s.repo.Read(ctx, src, page)
}

// Count passes through to the repository.
func (s *CrudService[T]) Count(ctx context.Context, src any) (int64, error) {
	return s.repo.Count(ctx, src)
}

// PageCount passes through to the repository.
func (s *CrudService[T]) PageCount(ctx context.Context, src any, perPage int) (int64, error) {
	return s.repo.PageCount(ctx, src, perPage)
}

func (s *CrudService[T]) bind(entity T, data map[string]any) Form[T] {
	form := s.newForm()
	form.Bind(entity)
	form.SetData(data)
	return form
}
