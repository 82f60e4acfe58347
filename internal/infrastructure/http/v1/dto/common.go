// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"crudkit/internal/domain"
)

// --- List Response ---

// ListResponse wraps one page of results.
type ListResponse struct {
	Items      any   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// CountResponse is the body of GET /{entity}/count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// PagesResponse is the body of GET /{entity}/pages.
type PagesResponse struct {
	Pages   int64 `json:"pages"`
	PerPage int   `json:"perPage"`
}

// --- Validation ---

// ValidationResponse is returned with 422 when a form rejects the input.
// It is not an error: nothing was stored.
type ValidationResponse struct {
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Messages domain.Messages `json:"messages"`
}

// NewValidationResponse wraps form messages.
func NewValidationResponse(msgs domain.Messages) ValidationResponse {
	return ValidationResponse{
		Code:     "VALIDATION_FAILED",
		Message:  "input rejected",
		Messages: msgs,
	}
}

// --- Common Responses ---

// IDResponse returns created entity ID.
type IDResponse struct {
	ID string `json:"id"`
}

// SuccessResponse for operations without specific return data.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
