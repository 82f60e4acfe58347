// Package app wires the product catalog: repository, form, service and importer.
// Both the HTTP server and crudctl build their product stack here.
package app

import (
	"crudkit/internal/core/structmap"
	"crudkit/internal/domain/catalogs/product"
	"crudkit/internal/domain/filter"
	"crudkit/internal/importer"
	"crudkit/internal/infrastructure/form"
	"crudkit/internal/infrastructure/storage/memory"
	"crudkit/internal/infrastructure/storage/postgres/entity_repo"
)

// productRules run after the struct's own validation.
var productRules = []*form.Rule{
	form.MustRule("quantity", "row.active || row.quantity == 0", "inactive products must have no stock"),
}

// Products is the wired product stack.
type Products struct {
	Service  *product.Service
	Importer *importer.Pipeline[*product.Product]
}

// NewProducts wires a service and an importer over repo. journal may be nil.
func NewProducts(repo product.Repository, journal importer.Journal) *Products {
	newForm := form.Factory[*product.Product](
		form.WithReadOnly(product.ReadOnlyFields...),
		form.WithRules(productRules...),
	)
	svc := product.NewService(repo, newForm)

	return &Products{
		Service: svc,
		Importer: importer.New(importer.Config[*product.Product]{
			Service: svc.CrudService,
			Scope:   repo,
			Journal: journal,
		}),
	}
}

// NewPostgresProducts wires products over PostgreSQL. Import runs are
// journaled in the same database.
func NewPostgresProducts(store entity_repo.Store, journal importer.Journal) *Products {
	return NewProducts(entity_repo.NewProductRepo(store), journal)
}

// NewMemoryProducts wires products over an in-process store.
func NewMemoryProducts() (*Products, *memory.Repo[*product.Product]) {
	repo := memory.New(memory.Config[*product.Product]{
		Entity:  product.EntityName,
		Unique:  []string{"sku"},
		Allowed: filter.Allow(structmap.Columns[product.Product]()...),
		New:     product.New,
	})
	return NewProducts(repo, nil), repo
}
