package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/core/apperror"
)

func TestParseSort(t *testing.T) {
	tests := []struct {
		in      string
		want    []Sort
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "name", want: []Sort{{Column: "name", Direction: Asc}}},
		{in: "name,-price, +sku", want: []Sort{
			{Column: "name", Direction: Asc},
			{Column: "price", Direction: Desc},
			{Column: "sku", Direction: Asc},
		}},
		{in: "t.name,,", want: []Sort{{Column: "t.name", Direction: Asc}}},
		{in: "-", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSort(tt.in)
			if tt.wantErr {
				assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPage_Validate(t *testing.T) {
	assert.NoError(t, DefaultPage().Validate())
	assert.Error(t, Page{Offset: -1, Limit: 1}.Validate())
	assert.Error(t, Page{Limit: 0}.Validate())
	assert.Error(t, Page{Limit: 1, OrderBy: []Sort{{Column: "x", Direction: "sideways"}}}.Validate())
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		count   int64
		perPage int
		want    int64
	}{
		{0, 10, 0},
		{1, 10, 1},
		{10, 10, 1},
		{11, 10, 2},
		{25, 5, 5},
	}
	for _, tt := range tests {
		got, err := PageCount(tt.count, tt.perPage)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "count=%d perPage=%d", tt.count, tt.perPage)
	}

	_, err := PageCount(3, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeInvalidInput))
}

func TestPaginatedResult_TotalCountIsCached(t *testing.T) {
	calls := 0
	r := NewPaginatedResult([]int{1, 2}, Page{Limit: 2}, func(context.Context) (int64, error) {
		calls++
		return 7, nil
	})

	for i := 0; i < 3; i++ {
		n, err := r.TotalCount(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, r.Len())
}

func TestPaginatedResult_TotalCountError(t *testing.T) {
	r := NewPaginatedResult([]int{}, Page{Limit: 2}, func(context.Context) (int64, error) {
		return 0, errors.New("timeout")
	})
	_, err := r.TotalCount(context.Background())
	assert.EqualError(t, err, "timeout")
}

func TestNotFoundOr(t *testing.T) {
	_, err := NotFoundOr("", false, nil, "product", 42)
	assert.True(t, apperror.IsNotFound(err))

	v, err := NotFoundOr("x", true, nil, "product", 42)
	require.NoError(t, err)
	assert.Equal(t, "x", v)
}
