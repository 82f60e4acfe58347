package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crudkit/internal/importer"
)

// execRecorder captures Exec calls; other methods are unused by Record.
type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (r *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	r.sql, r.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), r.err
}

func (r *execRecorder) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (r *execRecorder) QueryRow(context.Context, string, ...any) pgx.Row {
	return nil
}

type staticSource struct{ q Querier }

func (s staticSource) GetQuerier(context.Context) Querier { return s.q }

func newRun(messages int) importer.Run {
	res := &importer.Result{Succeeded: true, RowsInserted: messages, Messages: []string{}, RowErrors: []importer.RowError{}}
	for i := 0; i < messages; i++ {
		res.Messages = append(res.Messages, "Row inserted")
	}
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return importer.Run{
		ID:         uuid.New(),
		Entity:     "product",
		Options:    importer.Options{KeyField: "sku", Source: "products.csv"},
		Result:     res,
		StartedAt:  start,
		FinishedAt: start.Add(time.Second),
	}
}

func TestImportJournal_RecordSmallResult(t *testing.T) {
	q := &execRecorder{}
	j, err := NewImportJournal(staticSource{q})
	require.NoError(t, err)

	run := newRun(2)
	require.NoError(t, j.Record(context.Background(), run))

	assert.Contains(t, q.sql, "INSERT INTO "+ImportJournalTable)
	require.Len(t, q.args, 11)
	assert.Equal(t, run.ID, q.args[0])
	assert.Equal(t, "product", q.args[1])
	assert.Equal(t, "products.csv", q.args[2])
	assert.JSONEq(t, `{"keyField":"sku","updateIfFound":false,"ignoreRowErrors":false,"dryRun":false,"source":"products.csv"}`, string(q.args[3].(json.RawMessage)))
	assert.NotEmpty(t, q.args[4])
	assert.Nil(t, q.args[5])
	assert.Equal(t, CompressionNone, q.args[6])
	assert.Equal(t, true, q.args[7])
	assert.Nil(t, q.args[8])
}

func TestImportJournal_CompressesLargeResults(t *testing.T) {
	j, err := NewImportJournal(staticSource{&execRecorder{}})
	require.NoError(t, err)
	j.WithCompressThreshold(64)

	run := newRun(500)
	rec, err := j.encode(run)
	require.NoError(t, err)

	assert.Equal(t, CompressionZstd, rec.CompressionAlgo)
	assert.Nil(t, rec.Result)
	require.NotEmpty(t, rec.ResultCompressed)

	require.NoError(t, j.decode(rec))
	assert.Equal(t, CompressionNone, rec.CompressionAlgo)

	var got importer.Result
	require.NoError(t, json.Unmarshal(rec.Result, &got))
	assert.Equal(t, 500, got.RowsInserted)
	assert.Len(t, got.Messages, 500)
}

func TestImportJournal_FailedRun(t *testing.T) {
	j, err := NewImportJournal(staticSource{&execRecorder{}})
	require.NoError(t, err)

	run := newRun(0)
	run.Result.Succeeded = false
	run.Error = "row 1: connection refused"

	rec, err := j.encode(run)
	require.NoError(t, err)
	assert.False(t, rec.Succeeded)
	require.NotNil(t, rec.Error)
	assert.Equal(t, "row 1: connection refused", *rec.Error)
}

func TestImportJournal_RecordWrapsExecError(t *testing.T) {
	j, err := NewImportJournal(staticSource{&execRecorder{err: errors.New("relation does not exist")}})
	require.NoError(t, err)

	err = j.Record(context.Background(), newRun(1))
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "record import run"))
	assert.Contains(t, err.Error(), "relation does not exist")
}

func TestEnsureImportJournalSchema(t *testing.T) {
	q := &execRecorder{}
	require.NoError(t, EnsureImportJournalSchema(context.Background(), q))
	assert.Contains(t, q.sql, "CREATE TABLE IF NOT EXISTS sys_import_runs")
	assert.Contains(t, q.sql, "sys_import_runs_entity_started_idx")
}
