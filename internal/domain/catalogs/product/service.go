package product

import (
	"context"

	"crudkit/internal/domain"
)

// EntityName is used in errors and logs.
const EntityName = "product"

// ReadOnlyFields are maintained by the system; input never sets them.
var ReadOnlyFields = []string{"id", "created_at", "updated_at"}

// Service provides product CRUD on top of domain.CrudService.
// SKU uniqueness is enforced by the repository (unique index).
type Service struct {
	*domain.CrudService[*Product]
	repo Repository
}

// NewService creates a product service. newForm binds and validates input.
func NewService(repo Repository, newForm domain.FormFactory[*Product]) *Service {
	return &Service{
		CrudService: domain.NewCrudService(domain.CrudServiceConfig[*Product]{
			Repo:       repo,
			NewForm:    newForm,
			EntityName: EntityName,
		}),
		repo: repo,
	}
}

// Scope returns the unit-of-work scope cleared between import rows.
func (s *Service) Scope() Repository {
	return s.repo
}

// GetBySKU returns the product with the given SKU or NOT_FOUND.
func (s *Service) GetBySKU(ctx context.Context, sku string) (*Product, error) {
	p, found, err := s.FindOneBy(ctx, map[string]any{"sku": sku})
	return domain.NotFoundOr(p, found, err, EntityName, sku)
}
