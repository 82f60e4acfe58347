package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/core/apperror"
	"crudkit/internal/importer"
)

func TestProducts_CreateAppliesRules(t *testing.T) {
	products, repo := NewMemoryProducts()
	ctx := context.Background()

	res, err := products.Service.Create(ctx, map[string]any{
		"sku": "A-1", "name": "Anvil", "price": "12.50", "quantity": "3", "active": "false",
	})
	require.NoError(t, err)
	assert.False(t, res.Valid())
	assert.Equal(t, []string{"quantity"}, res.Messages.Fields())
	assert.Zero(t, repo.Len())

	res, err = products.Service.Create(ctx, map[string]any{
		"sku": "A-1", "name": "Anvil", "price": "12.50", "quantity": "3",
	})
	require.NoError(t, err)
	require.True(t, res.Valid(), res.Messages)
	assert.Equal(t, 1, repo.Len())
	assert.False(t, res.Entity.CreatedAt.IsZero())
}

func TestProducts_ReadOnlyFieldsIgnored(t *testing.T) {
	products, _ := NewMemoryProducts()
	ctx := context.Background()

	res, err := products.Service.Create(ctx, map[string]any{
		"id": "00000000-0000-0000-0000-000000000001", "sku": "B", "name": "Bolt",
	})
	require.NoError(t, err)
	require.True(t, res.Valid(), res.Messages)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000001", res.Entity.ID.String())
}

func TestProducts_GetBySKU(t *testing.T) {
	products, _ := NewMemoryProducts()
	ctx := context.Background()

	_, err := products.Service.Create(ctx, map[string]any{"sku": "C", "name": "Cog"})
	require.NoError(t, err)

	p, err := products.Service.GetBySKU(ctx, "C")
	require.NoError(t, err)
	assert.Equal(t, "Cog", p.Name)

	_, err = products.Service.GetBySKU(ctx, "missing")
	assert.True(t, apperror.IsNotFound(err))
}

func TestProducts_ImportBySKU(t *testing.T) {
	products, repo := NewMemoryProducts()
	ctx := context.Background()

	_, err := products.Service.Create(ctx, map[string]any{"sku": "A", "name": "old", "price": "1"})
	require.NoError(t, err)

	src := importer.NewSliceSource([]string{"sku", "name", "price"},
		map[string]string{"sku": "A", "name": "Anvil", "price": "9.99"},
		map[string]string{"sku": "B", "name": "Bolt", "price": "0.10"},
	)
	res, err := products.Importer.Import(ctx, src, importer.Options{KeyField: "sku", UpdateIfFound: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"Row 1: updated", "Row 2: inserted"}, res.Messages)
	assert.Equal(t, 2, repo.Len())

	a, err := products.Service.GetBySKU(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "Anvil", a.Name)
	assert.Equal(t, "9.99", a.Price.String())
}

func TestProducts_DuplicateSKU(t *testing.T) {
	products, _ := NewMemoryProducts()
	ctx := context.Background()

	_, err := products.Service.Create(ctx, map[string]any{"sku": "A", "name": "one"})
	require.NoError(t, err)

	_, err = products.Service.Create(ctx, map[string]any{"sku": "A", "name": "two"})
	assert.True(t, apperror.HasCode(err, apperror.CodeDuplicate))
}
