package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"crudkit/internal/core/apperror"
	"crudkit/internal/domain"
	"crudkit/internal/importer"
	"crudkit/internal/infrastructure/http/v1/dto"
	"crudkit/internal/infrastructure/source"
)

// Query parameters that control paging rather than filtering.
const (
	ParamOffset  = "offset"
	ParamLimit   = "limit"
	ParamOrderBy = "orderBy"
	ParamPerPage = "perPage"
)

// multipartMemory is how much of an upload is buffered in memory before spilling to disk.
const multipartMemory = 8 << 20

// ResourceHandler provides generic HTTP handlers for one entity type.
// Every query parameter except the paging ones is passed to the repository as a
// raw filter map.
type ResourceHandler[T any] struct {
	*BaseHandler
	service  *domain.CrudService[T]
	importer *importer.Pipeline[T]

	parseID  func(string) (any, error)
	mapToDTO func(T) any

	delimiter      rune
	maxUploadBytes int64
}

// ResourceHandlerConfig configures the resource handler.
type ResourceHandlerConfig[T any] struct {
	Service  *domain.CrudService[T]
	Importer *importer.Pipeline[T]

	// ParseID converts the :id path segment; nil passes the string through
	ParseID func(string) (any, error)

	// MapToDTO converts entities for responses; nil returns them as is
	MapToDTO func(T) any

	// Delimiter is the default CSV delimiter for imports
	Delimiter rune

	// MaxUploadBytes caps the import request body; 0 means unlimited
	MaxUploadBytes int64
}

// NewResourceHandler creates a new resource handler.
func NewResourceHandler[T any](base *BaseHandler, cfg ResourceHandlerConfig[T]) *ResourceHandler[T] {
	h := &ResourceHandler[T]{
		BaseHandler:    base,
		service:        cfg.Service,
		importer:       cfg.Importer,
		parseID:        cfg.ParseID,
		mapToDTO:       cfg.MapToDTO,
		delimiter:      cfg.Delimiter,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if h.parseID == nil {
		h.parseID = func(s string) (any, error) { return s, nil }
	}
	if h.mapToDTO == nil {
		h.mapToDTO = func(e T) any { return e }
	}
	return h
}

// filterParams returns the query string without paging parameters.
func filterParams(c *gin.Context) map[string]any {
	raw := make(map[string]any)
	for k, vals := range c.Request.URL.Query() {
		switch k {
		case ParamOffset, ParamLimit, ParamOrderBy, ParamPerPage:
			continue
		}
		if len(vals) == 1 {
			raw[k] = vals[0]
		} else {
			raw[k] = vals
		}
	}
	return raw
}

// List handles GET /{entity}.
func (h *ResourceHandler[T]) List(c *gin.Context) {
	ctx := c.Request.Context()

	page := domain.DefaultPage()
	var err error
	if page.Offset, err = h.QueryInt(c, ParamOffset, page.Offset); err != nil {
		h.Error(c, err)
		return
	}
	if page.Limit, err = h.QueryInt(c, ParamLimit, page.Limit); err != nil {
		h.Error(c, err)
		return
	}
	if page.OrderBy, err = domain.ParseSort(c.Query(ParamOrderBy)); err != nil {
		h.Error(c, err)
		return
	}

	result, err := h.service.Read(ctx, filterParams(c), page)
	if err != nil {
		h.Error(c, err)
		return
	}
	total, err := result.TotalCount(ctx)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]any, len(result.Items))
	for i, item := range result.Items {
		items[i] = h.mapToDTO(item)
	}

	h.OK(c, dto.ListResponse{
		Items:      items,
		TotalCount: total,
		Limit:      result.Limit,
		Offset:     result.Offset,
	})
}

// Count handles GET /{entity}/count.
func (h *ResourceHandler[T]) Count(c *gin.Context) {
	n, err := h.service.Count(c.Request.Context(), filterParams(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.CountResponse{Count: n})
}

// Pages handles GET /{entity}/pages?perPage=N.
func (h *ResourceHandler[T]) Pages(c *gin.Context) {
	perPage, err := h.QueryInt(c, ParamPerPage, 0)
	if err != nil {
		h.Error(c, err)
		return
	}
	n, err := h.service.PageCount(c.Request.Context(), filterParams(c), perPage)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.PagesResponse{Pages: n, PerPage: perPage})
}

// Get handles GET /{entity}/:id.
func (h *ResourceHandler[T]) Get(c *gin.Context) {
	entity, ok := h.load(c)
	if !ok {
		return
	}
	h.OK(c, h.mapToDTO(entity))
}

// Create handles POST /{entity}.
func (h *ResourceHandler[T]) Create(c *gin.Context) {
	data, ok := h.BindJSON(c)
	if !ok {
		return
	}

	res, err := h.service.Create(c.Request.Context(), data)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !res.Valid() {
		h.Rejected(c, res.Messages)
		return
	}
	h.Created(c, h.mapToDTO(res.Entity))
}

// Update handles PUT /{entity}/:id. Only the given fields change.
func (h *ResourceHandler[T]) Update(c *gin.Context) {
	existing, ok := h.load(c)
	if !ok {
		return
	}
	data, ok := h.BindJSON(c)
	if !ok {
		return
	}

	res, err := h.service.Update(c.Request.Context(), existing, data)
	if err != nil {
		h.Error(c, err)
		return
	}
	if !res.Valid() {
		h.Rejected(c, res.Messages)
		return
	}
	h.OK(c, h.mapToDTO(res.Entity))
}

// Delete handles DELETE /{entity}/:id.
func (h *ResourceHandler[T]) Delete(c *gin.Context) {
	existing, ok := h.load(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), existing); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// Import handles POST /{entity}/import with a multipart "file" field.
// Form fields keyField, updateIfFound, ignoreRowErrors, dryRun and delimiter
// map onto importer.Options. An aborted run responds with the error and the
// partial result under details.result.
func (h *ResourceHandler[T]) Import(c *gin.Context) {
	if h.importer == nil {
		h.Error(c, apperror.NewInvalidInput("import is not supported for this resource"))
		return
	}
	if h.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(c, apperror.NewInvalidInput("upload too large").WithDetail("limit", tooLarge.Limit))
			return
		}
		h.Error(c, apperror.NewInvalidInput("multipart form expected").WithCause(err))
		return
	}

	opts, delim, err := h.importOptions(c)
	if err != nil {
		h.Error(c, err)
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		h.Error(c, apperror.NewInvalidInput("multipart field \"file\" is required").WithCause(err))
		return
	}
	opts.Source = fh.Filename
	f, err := fh.Open()
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	rc, err := source.Decompress(fh.Filename, f)
	if err != nil {
		if !apperror.IsAppError(err) {
			err = apperror.NewInvalidInput("cannot decompress upload").WithCause(err)
		}
		h.Error(c, err)
		return
	}
	defer rc.Close()

	rows, err := importer.NewCSVSource(rc, delim)
	if err != nil {
		h.Error(c, err)
		return
	}

	res, err := h.importer.Import(c.Request.Context(), rows, opts)
	if err != nil {
		appErr, ok := apperror.AsAppError(err)
		if !ok {
			appErr = apperror.NewInternal(err)
		}
		if res != nil {
			appErr = appErr.WithDetail("result", res)
		}
		h.Error(c, appErr)
		return
	}
	h.OK(c, res)
}

func (h *ResourceHandler[T]) importOptions(c *gin.Context) (importer.Options, rune, error) {
	var (
		opts importer.Options
		err  error
	)
	opts.KeyField = c.PostForm("keyField")
	if opts.UpdateIfFound, err = h.FormBool(c, "updateIfFound"); err != nil {
		return opts, 0, err
	}
	if opts.IgnoreRowErrors, err = h.FormBool(c, "ignoreRowErrors"); err != nil {
		return opts, 0, err
	}
	if opts.DryRun, err = h.FormBool(c, "dryRun"); err != nil {
		return opts, 0, err
	}

	delim := h.delimiter
	if d := c.PostForm("delimiter"); d != "" {
		if delim, err = importer.ParseDelimiter(d); err != nil {
			return opts, 0, err
		}
	}
	return opts, delim, nil
}

// load fetches the entity named by :id, writing the error response on failure.
func (h *ResourceHandler[T]) load(c *gin.Context) (T, bool) {
	var zero T
	id, err := h.parseID(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid id format").WithDetail("id", c.Param("id")))
		return zero, false
	}
	entity, err := h.service.GetByID(c.Request.Context(), id)
	if err != nil {
		h.Error(c, err)
		return zero, false
	}
	return entity, true
}
