package structmap

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type audit struct {
	CreatedAt time.Time `db:"created_at"`
}

type mockItem struct {
	audit
	ID       uuid.UUID       `db:"id"`
	Code     string          `db:"code" form:"sku"`
	Price    decimal.Decimal `db:"price"`
	Qty      int             `db:"quantity"`
	Active   bool            `db:"active"`
	Note     *string         `db:"note"`
	Internal string
	skipped  string `db:"skipped"`
}

func TestColumns_Embedded(t *testing.T) {
	cols := Columns[mockItem]()

	assert.Equal(t, []string{"created_at", "id", "code", "price", "quantity", "active", "note"}, cols)
	assert.Equal(t, cols, Columns[*mockItem](), "pointer types resolve to the same columns")
}

func TestToMap(t *testing.T) {
	note := "fragile"
	item := &mockItem{ID: uuid.New(), Code: "A-1", Qty: 5, Note: &note, skipped: "x"}

	m := ToMap(item)

	assert.Equal(t, item.ID, m["id"])
	assert.Equal(t, "A-1", m["code"])
	assert.Equal(t, 5, m["quantity"])
	assert.Equal(t, &note, m["note"])
	assert.NotContains(t, m, "skipped")
	assert.NotContains(t, m, "Internal")
	assert.Nil(t, ToMap((*mockItem)(nil)))
	assert.Nil(t, ToMap(42))
}

func TestAssign_ParsesStrings(t *testing.T) {
	item := &mockItem{}

	require.NoError(t, Assign(item, "sku", "B-2"), "form alias")
	require.NoError(t, Assign(item, "price", "19.90"))
	require.NoError(t, Assign(item, "quantity", " 12 "))
	require.NoError(t, Assign(item, "active", "true"))
	require.NoError(t, Assign(item, "note", "keep dry"))
	require.NoError(t, Assign(item, "created_at", "2024-05-01"))
	require.NoError(t, Assign(item, "id", "0190c4a8-6f5e-7c3a-9a52-5b6d8e1f2a3b"))

	assert.Equal(t, "B-2", item.Code)
	assert.True(t, decimal.RequireFromString("19.9").Equal(item.Price))
	assert.Equal(t, 12, item.Qty)
	assert.True(t, item.Active)
	require.NotNil(t, item.Note)
	assert.Equal(t, "keep dry", *item.Note)
	assert.Equal(t, 2024, item.CreatedAt.Year())
	assert.Equal(t, "0190c4a8-6f5e-7c3a-9a52-5b6d8e1f2a3b", item.ID.String())

	require.NoError(t, Assign(item, "note", ""))
	assert.Nil(t, item.Note, "empty string clears pointers")
}

func TestAssign_NativeValues(t *testing.T) {
	item := &mockItem{}

	require.NoError(t, Assign(item, "quantity", float64(7)))
	require.NoError(t, Assign(item, "active", true))
	require.NoError(t, Assign(item, "price", 2.5))

	assert.Equal(t, 7, item.Qty)
	assert.True(t, item.Active)
	assert.Equal(t, "2.5", item.Price.String())

	require.NoError(t, Assign(item, "quantity", int64(-3)))
	assert.Equal(t, -3, item.Qty)
}

func TestAssign_FloatIntoIntMustBeExact(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"fraction", 2.7},
		{"negative fraction", -0.5},
		{"too large", 1e20},
		{"nan", math.NaN()},
		{"infinity", math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &mockItem{Qty: 5}
			err := Assign(item, "quantity", tt.value)
			require.Error(t, err)
			assert.Equal(t, 5, item.Qty, "field left untouched")
		})
	}
}

func TestAssign_Errors(t *testing.T) {
	item := &mockItem{}

	assert.Error(t, Assign(item, "quantity", "many"))
	assert.Error(t, Assign(item, "active", "maybe"))
	assert.Error(t, Assign(item, "price", "abc"))
	assert.Error(t, Assign(item, "missing", "x"))
	assert.Error(t, Assign(*item, "code", "x"), "non-pointer target")
}

func TestGetAndHas(t *testing.T) {
	item := mockItem{Code: "C"}

	v, ok := Get(item, "code")
	assert.True(t, ok)
	assert.Equal(t, "C", v)

	_, ok = Get(item, "nope")
	assert.False(t, ok)

	assert.True(t, Has(&item, "sku"))
	assert.False(t, Has(&item, "Internal"))
}

func TestClone(t *testing.T) {
	note := "n"
	orig := &mockItem{Code: "A", Note: &note}

	c := Clone(orig)
	require.NotSame(t, orig, c)
	c.Code = "B"
	require.NoError(t, Assign(c, "note", "changed"))

	assert.Equal(t, "A", orig.Code)
	assert.Equal(t, "n", *orig.Note)

	var nilItem *mockItem
	assert.Nil(t, Clone(nilItem))
	assert.Equal(t, 3, Clone(3))
}
