package importer

import (
	"context"
	"errors"
	"strings"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/core/apperror"
	"crudkit/internal/core/uow"
	"crudkit/internal/domain"
	"crudkit/internal/infrastructure/form"
	"crudkit/internal/infrastructure/storage/memory"
)

type person struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	City string `db:"city" json:"city"`
}

func (p person) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.Required),
	)
}

func newPerson() *person { return &person{} }

// countingScope counts Clear calls.
type countingScope struct{ clears int }

func (c *countingScope) Clear() { c.clears++ }

// failingRepo fails every insert as a broken store would.
type failingRepo struct {
	*memory.Repo[*person]
}

func (failingRepo) Save(context.Context, *person) error {
	return errors.New("connection refused")
}

type fixture struct {
	repo     *memory.Repo[*person]
	scope    *countingScope
	pipeline *Pipeline[*person]
}

func newFixture(t *testing.T, existing ...*person) *fixture {
	t.Helper()
	repo := memory.New(memory.Config[*person]{Entity: "person", New: newPerson})
	for _, p := range existing {
		require.NoError(t, repo.Save(context.Background(), p))
	}
	scope := &countingScope{}
	svc := domain.NewCrudService(domain.CrudServiceConfig[*person]{
		Repo:       repo,
		NewForm:    form.Factory[*person](),
		EntityName: "person",
	})
	return &fixture{
		repo:     repo,
		scope:    scope,
		pipeline: New(Config[*person]{Service: svc, Scope: uow.Scopes{repo, scope}}),
	}
}

func rows(header []string, data ...map[string]string) *SliceSource {
	return NewSliceSource(header, data...)
}

func TestImport_UpsertByKey(t *testing.T) {
	fx := newFixture(t, &person{ID: "1", Name: "old"})
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": "Alice"},
		map[string]string{"id": "2", "name": "Bob"},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id", UpdateIfFound: true})
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, res.RowsUpdated)
	assert.Equal(t, 1, res.RowsInserted)
	assert.Equal(t, []string{"Row 1: updated", "Row 2: inserted"}, res.Messages)
	assert.Empty(t, res.RowErrors)
	assert.Equal(t, 2, fx.scope.clears)

	alice, found, err := fx.repo.FindOneBy(context.Background(), map[string]any{"id": "1"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, 2, fx.repo.Len())
}

func TestImport_AbortsOnFirstInvalidRow(t *testing.T) {
	fx := newFixture(t, &person{ID: "1", Name: "old"})
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": ""},
		map[string]string{"id": "2", "name": "Bob"},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id", UpdateIfFound: true})
	require.Error(t, err)
	assert.True(t, apperror.IsRowValidation(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, 1, appErr.Details["row"])

	require.NotNil(t, res)
	assert.False(t, res.Succeeded)
	assert.Zero(t, res.RowsInserted)
	assert.Zero(t, res.RowsUpdated)
	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, 1, res.RowErrors[0].Row)
	assert.Equal(t, []string{"name"}, res.RowErrors[0].Messages.Fields())

	assert.Equal(t, 1, src.Consumed(), "row 2 is never read")
	assert.Equal(t, 1, fx.scope.clears)

	stored, _, err := fx.repo.FindOneBy(context.Background(), map[string]any{"id": "1"})
	require.NoError(t, err)
	assert.Equal(t, "old", stored.Name)
}

func TestImport_IgnoreRowErrors(t *testing.T) {
	fx := newFixture(t)
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": ""},
		map[string]string{"id": "2", "name": "Bob"},
		map[string]string{"id": "3", "name": ""},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id", IgnoreRowErrors: true})
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Equal(t, 1, res.RowsInserted)
	assert.Equal(t, []string{"Row 2: inserted"}, res.Messages)
	require.Len(t, res.RowErrors, 2)
	assert.Equal(t, 1, res.RowErrors[0].Row)
	assert.Equal(t, 3, res.RowErrors[1].Row)
	assert.Equal(t, 3, fx.scope.clears)
}

func TestImport_SkipWhenFoundWithoutUpdate(t *testing.T) {
	fx := newFixture(t, &person{ID: "1", Name: "old"})
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": "Alice"},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id"})
	require.NoError(t, err)

	assert.True(t, res.Succeeded)
	assert.Zero(t, res.RowsUpdated)
	assert.Zero(t, res.RowsInserted)
	assert.Equal(t, 1, res.RowsSkipped)
	assert.Empty(t, res.Messages)
	assert.Equal(t, 1, fx.scope.clears, "cleared after skipped rows too")
}

func TestImport_NoKeyFieldAlwaysInserts(t *testing.T) {
	fx := newFixture(t)
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": "A"},
		map[string]string{"id": "2", "name": "B"},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.RowsInserted)
	assert.Equal(t, 2, fx.repo.Len())
}

func TestImport_MissingKeyField(t *testing.T) {
	fx := newFixture(t)
	src := rows([]string{"id", "name"}, map[string]string{"id": "1", "name": "A"})

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "email"})
	assert.Nil(t, res)
	assert.True(t, apperror.IsMissingKeyField(err))
	assert.Zero(t, src.Consumed())
	assert.Zero(t, fx.scope.clears)
}

func TestImport_StorageErrorAbortsDespiteIgnoreRowErrors(t *testing.T) {
	base := memory.New(memory.Config[*person]{Entity: "person", New: newPerson})
	svc := domain.NewCrudService(domain.CrudServiceConfig[*person]{
		Repo:       failingRepo{base},
		NewForm:    form.Factory[*person](),
		EntityName: "person",
	})
	p := New(Config[*person]{Service: svc, Scope: base})
	src := rows([]string{"name"},
		map[string]string{"name": "A"},
		map[string]string{"name": "B"},
	)

	res, err := p.Import(context.Background(), src, Options{IgnoreRowErrors: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, res.Succeeded)
	assert.Empty(t, res.RowErrors)
	assert.Equal(t, 1, src.Consumed())
}

func TestImport_ContextCancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := fx.pipeline.Import(ctx, rows([]string{"name"}, map[string]string{"name": "A"}), Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Succeeded)
	assert.Zero(t, fx.repo.Len())
}

func TestImport_DryRun(t *testing.T) {
	fx := newFixture(t, &person{ID: "1", Name: "old"})
	src := rows([]string{"id", "name"},
		map[string]string{"id": "1", "name": "Alice"},
		map[string]string{"id": "2", "name": ""},
		map[string]string{"id": "3", "name": "Carol"},
	)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id", UpdateIfFound: true, IgnoreRowErrors: true, DryRun: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.Equal(t, 2, res.RowsInserted, "the dry-run store starts empty")
	require.Len(t, res.RowErrors, 1)
	assert.Equal(t, 2, res.RowErrors[0].Row)

	assert.Equal(t, 1, fx.repo.Len())
	assert.Zero(t, fx.scope.clears)
}

func TestImport_FromCSV(t *testing.T) {
	fx := newFixture(t)
	src, err := NewCSVSource(strings.NewReader("id;name;city\n1;Alice;\"Paris; FR\"\n"), ';')
	require.NoError(t, err)

	res, err := fx.pipeline.Import(context.Background(), src, Options{KeyField: "id"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowsInserted)

	p, found, err := fx.repo.FindOneBy(context.Background(), map[string]any{"id": "1"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Paris; FR", p.City)
}

type recordingJournal struct {
	runs []Run
	err  error
}

func (j *recordingJournal) Record(_ context.Context, run Run) error {
	j.runs = append(j.runs, run)
	return j.err
}

func TestImport_Journal(t *testing.T) {
	fx := newFixture(t)
	journal := &recordingJournal{}
	p := New(Config[*person]{Service: fx.pipeline.service, Scope: fx.scope, Journal: journal})

	_, err := p.Import(context.Background(), rows([]string{"name"}, map[string]string{"name": "A"}), Options{Source: "people.csv"})
	require.NoError(t, err)

	_, err = p.Import(context.Background(), rows([]string{"name"}, map[string]string{"name": ""}), Options{})
	require.Error(t, err)

	_, err = p.Import(context.Background(), rows([]string{"name"}), Options{KeyField: "id"})
	require.Error(t, err)

	require.Len(t, journal.runs, 2, "runs failing the header check are not journaled")

	ok := journal.runs[0]
	assert.Equal(t, "person", ok.Entity)
	assert.Equal(t, "people.csv", ok.Options.Source)
	assert.Empty(t, ok.Error)
	assert.Equal(t, 1, ok.Result.RowsInserted)
	assert.False(t, ok.FinishedAt.Before(ok.StartedAt))

	failed := journal.runs[1]
	assert.NotEmpty(t, failed.Error)
	assert.False(t, failed.Result.Succeeded)
	assert.NotEqual(t, ok.ID, failed.ID)
}

func TestImport_JournalFailureDoesNotFailRun(t *testing.T) {
	fx := newFixture(t)
	p := New(Config[*person]{Service: fx.pipeline.service, Journal: &recordingJournal{err: errors.New("disk full")}})

	res, err := p.Import(context.Background(), rows([]string{"name"}, map[string]string{"name": "A"}), Options{})
	require.NoError(t, err)
	assert.True(t, res.Succeeded)
}
