package product

import (
	"crudkit/internal/core/uow"
	"crudkit/internal/domain"
)

// Repository is product persistence. Clear resets the repository's identity map.
type Repository interface {
	domain.Repository[*Product]
	uow.Scope
}
