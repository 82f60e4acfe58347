package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"crudkit/internal/core/apperror"
	"crudkit/internal/domain"
	"crudkit/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds a JSON object body into a raw map.
func (h *BaseHandler) BindJSON(c *gin.Context) (map[string]any, bool) {
	var data map[string]any
	if err := c.ShouldBindJSON(&data); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return nil, false
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, true
}

// Error registers err on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// QueryInt parses an integer query parameter; absent means def.
func (h *BaseHandler) QueryInt(c *gin.Context, key string, def int) (int, error) {
	val := c.Query(key)
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, apperror.NewInvalidInput("invalid integer parameter").
			WithDetail("param", key).
			WithDetail("value", val)
	}
	return n, nil
}

// FormBool parses a boolean form or query value; absent means false.
func (h *BaseHandler) FormBool(c *gin.Context, key string) (bool, error) {
	val := c.PostForm(key)
	if val == "" {
		val = c.Query(key)
	}
	if val == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, apperror.NewInvalidInput("invalid boolean parameter").
			WithDetail("param", key).
			WithDetail("value", val)
	}
	return b, nil
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Created sends 201 response with data.
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends 204 response.
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Rejected sends 422 with the form messages.
func (h *BaseHandler) Rejected(c *gin.Context, msgs domain.Messages) {
	c.JSON(http.StatusUnprocessableEntity, dto.NewValidationResponse(msgs))
}
