// Package importer runs tabular rows through a CRUD service as upserts keyed by
// one column.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"crudkit/internal/core/apperror"
	"crudkit/internal/core/uow"
	"crudkit/internal/domain"
	"crudkit/internal/infrastructure/storage/memory"
	"crudkit/pkg/logger"
)

var tracer = otel.Tracer("crudkit/importer")

// Options control one import run.
type Options struct {
	// KeyField names the column used to find existing entities; empty always inserts
	KeyField string `json:"keyField,omitempty"`

	// UpdateIfFound updates matched entities; otherwise matched rows are skipped
	UpdateIfFound bool `json:"updateIfFound"`

	// IgnoreRowErrors records invalid rows and continues instead of aborting
	IgnoreRowErrors bool `json:"ignoreRowErrors"`

	// DryRun validates every row against an empty in-memory store; nothing is persisted
	DryRun bool `json:"dryRun"`

	// Source names the input (file name or URI) in logs and the journal
	Source string `json:"source,omitempty"`
}

// RowError is one rejected row. Rows are numbered from 1 at the first data row.
type RowError struct {
	Row      int             `json:"row"`
	Messages domain.Messages `json:"messages"`
}

// Result summarises a run. On abort it still carries everything done before the failing row.
type Result struct {
	Succeeded    bool       `json:"succeeded"`
	DryRun       bool       `json:"dryRun,omitempty"`
	RowsInserted int        `json:"rowsInserted"`
	RowsUpdated  int        `json:"rowsUpdated"`
	RowsSkipped  int        `json:"rowsSkipped"`
	Messages     []string   `json:"messages"`
	RowErrors    []RowError `json:"rowErrors"`
}

// Config wires a pipeline.
type Config[T any] struct {
	Service *domain.CrudService[T]

	// Scope is cleared after every row; usually the repository behind Service
	Scope uow.Scope

	// Journal records every run that got past the header check; optional
	Journal Journal
}

// Pipeline imports rows for one entity type. It is sequential and keeps no
// state between runs.
type Pipeline[T any] struct {
	service *domain.CrudService[T]
	scope   uow.Scope
	journal Journal
}

// New creates a pipeline. A nil Scope is allowed.
func New[T any](cfg Config[T]) *Pipeline[T] {
	scope := cfg.Scope
	if scope == nil {
		scope = uow.Scopes{}
	}
	return &Pipeline[T]{service: cfg.Service, scope: scope, journal: cfg.Journal}
}

// Import processes rows in source order.
//
// A key field missing from the header fails with MISSING_KEY_FIELD before any
// row is read. An invalid row aborts the run with ROW_VALIDATION unless
// IgnoreRowErrors is set; storage errors, malformed input and context
// cancellation always abort. Rows committed before an abort stay committed.
func (p *Pipeline[T]) Import(ctx context.Context, rows RowSource, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "import.Run", trace.WithAttributes(
		attribute.String("import.entity", p.service.EntityName()),
		attribute.String("import.key_field", opts.KeyField),
		attribute.Bool("import.dry_run", opts.DryRun),
	))
	defer span.End()

	header := rows.Header()
	if opts.KeyField != "" && !slices.Contains(header, opts.KeyField) {
		return nil, apperror.NewMissingKeyField(opts.KeyField, header)
	}

	run := Run{ID: uuid.New(), Entity: p.service.EntityName(), Options: opts, StartedAt: time.Now().UTC()}
	res, err := p.run(ctx, span, rows, opts)
	run.Result = res
	if err != nil {
		run.Error = err.Error()
	}
	p.record(ctx, run)
	return res, err
}

func (p *Pipeline[T]) run(ctx context.Context, span trace.Span, rows RowSource, opts Options) (*Result, error) {
	service, scope := p.service, p.scope
	if opts.DryRun {
		repo := memory.New(memory.Config[T]{
			Entity: service.EntityName(),
			New:    service.Repository().Prototype,
		})
		service, scope = service.WithRepository(repo), repo
	}

	log := logger.FromContext(ctx).WithComponent("importer").With("entity", service.EntityName(), "source", opts.Source)
	res := &Result{Succeeded: true, DryRun: opts.DryRun, Messages: []string{}, RowErrors: []RowError{}}

	for n := 1; ; n++ {
		if err := ctx.Err(); err != nil {
			return p.abort(ctx, span, res, fmt.Errorf("import cancelled before row %d: %w", n, err))
		}

		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return p.abort(ctx, span, res, err)
		}

		err = p.importRow(ctx, service, n, row, opts, res)
		scope.Clear()
		if err != nil {
			return p.abort(ctx, span, res, err)
		}
	}

	span.SetAttributes(
		attribute.Int("import.inserted", res.RowsInserted),
		attribute.Int("import.updated", res.RowsUpdated),
		attribute.Int("import.failed", len(res.RowErrors)),
	)
	log.Infow("import finished",
		"inserted", res.RowsInserted,
		"updated", res.RowsUpdated,
		"skipped", res.RowsSkipped,
		"row_errors", len(res.RowErrors),
		"dry_run", opts.DryRun,
	)
	return res, nil
}

func (p *Pipeline[T]) importRow(ctx context.Context, service *domain.CrudService[T], n int, row map[string]string, opts Options, res *Result) error {
	data := make(map[string]any, len(row))
	for k, v := range row {
		data[k] = v
	}

	var (
		existing T
		found    bool
		err      error
	)
	if opts.KeyField != "" {
		existing, found, err = service.FindOneBy(ctx, map[string]any{opts.KeyField: row[opts.KeyField]})
		if err != nil {
			return fmt.Errorf("row %d: find by %s: %w", n, opts.KeyField, err)
		}
	}

	switch {
	case found && !opts.UpdateIfFound:
		res.RowsSkipped++
		logger.Debug(ctx, "import row skipped", "row", n, "key", row[opts.KeyField])
		return nil

	case found:
		r, err := service.Update(ctx, existing, data)
		if err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
		if !r.Valid() {
			return rejectRow(ctx, n, r.Messages, opts, res)
		}
		res.RowsUpdated++
		res.Messages = append(res.Messages, fmt.Sprintf("Row %d: updated", n))

	default:
		r, err := service.Create(ctx, data)
		if err != nil {
			return fmt.Errorf("row %d: %w", n, err)
		}
		if !r.Valid() {
			return rejectRow(ctx, n, r.Messages, opts, res)
		}
		res.RowsInserted++
		res.Messages = append(res.Messages, fmt.Sprintf("Row %d: inserted", n))
	}

	logger.Debug(ctx, "import row stored", "row", n)
	return nil
}

func (p *Pipeline[T]) record(ctx context.Context, run Run) {
	if p.journal == nil {
		return
	}
	run.FinishedAt = time.Now().UTC()
	if err := p.journal.Record(ctx, run); err != nil {
		logger.Warn(ctx, "import journal write failed", "run_id", run.ID, "error", err)
	}
}

func rejectRow(ctx context.Context, n int, msgs domain.Messages, opts Options, res *Result) error {
	res.RowErrors = append(res.RowErrors, RowError{Row: n, Messages: msgs})
	if !opts.IgnoreRowErrors {
		return apperror.NewRowValidation(n, msgs)
	}
	logger.Debug(ctx, "import row rejected", "row", n, "fields", msgs.Fields())
	return nil
}

func (p *Pipeline[T]) abort(ctx context.Context, span trace.Span, res *Result, err error) (*Result, error) {
	res.Succeeded = false
	span.RecordError(err)
	logger.Warn(ctx, "import aborted",
		"error", err,
		"inserted", res.RowsInserted,
		"updated", res.RowsUpdated,
	)
	return res, err
}
