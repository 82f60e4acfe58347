package entity_repo

import (
	"context"
	"fmt"

	"crudkit/internal/core/structmap"
	"crudkit/internal/domain/catalogs/product"
	"crudkit/internal/domain/filter"
	"crudkit/internal/infrastructure/storage/postgres"
)

// ProductRepo stores products in cat_products.
type ProductRepo = BaseRepo[*product.Product]

// NewProductRepo creates the product repository. Raw filters may only name product columns.
func NewProductRepo(store Store) *ProductRepo {
	return NewBaseRepo(store, Config[*product.Product]{
		Table:   product.Table,
		Entity:  "product",
		Allowed: filter.Allow(structmap.Columns[product.Product]()...),
		New:     product.New,
	})
}

const productSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id          UUID PRIMARY KEY,
    sku         VARCHAR(64) NOT NULL,
    name        VARCHAR(255) NOT NULL,
    category    VARCHAR(128),
    price       NUMERIC(18, 4) NOT NULL DEFAULT 0,
    quantity    INTEGER NOT NULL DEFAULT 0,
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS %[1]s_sku_uq ON %[1]s (sku);
`

// EnsureProductSchema creates the products table when missing.
func EnsureProductSchema(ctx context.Context, q postgres.Querier) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(productSchema, product.Table)); err != nil {
		return fmt.Errorf("ensure %s schema: %w", product.Table, err)
	}
	return nil
}
