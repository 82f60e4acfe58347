package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCode_ThroughWrapping(t *testing.T) {
	err := fmt.Errorf("read products: %w", NewMissingFilter("oops"))

	assert.True(t, IsMissingFilter(err))
	assert.False(t, IsInvalidComparator(err))
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(err))
}

func TestRowValidation_Details(t *testing.T) {
	err := NewRowValidation(3, map[string][]string{"sku": {"cannot be blank"}})

	assert.Equal(t, CodeRowValidation, err.Code)
	assert.Equal(t, 3, err.Details["row"])
	assert.Equal(t, http.StatusUnprocessableEntity, err.HTTPStatus)
	assert.Contains(t, err.Error(), "row 3")
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewInternal(cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(errors.New("plain")))
}
