package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"crudkit/internal/importer"
)

// ImportJournalTable holds one row per import run.
const ImportJournalTable = "sys_import_runs"

// CompressionAlgo specifies the compression algorithm used for stored results.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// DefaultCompressThreshold is the result size above which results are stored zstd-compressed.
const DefaultCompressThreshold = 10 * 1024

// QuerierSource hands out the querier for the current context. *TxManager implements it.
type QuerierSource interface {
	GetQuerier(ctx context.Context) Querier
}

// ImportRunRecord is one stored import run. Result is always decompressed.
type ImportRunRecord struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	Entity           string          `db:"entity" json:"entity"`
	Source           string          `db:"source" json:"source,omitempty"`
	Options          json.RawMessage `db:"options" json:"options"`
	Result           json.RawMessage `db:"result" json:"result,omitempty"`
	ResultCompressed []byte          `db:"result_compressed" json:"-"`
	CompressionAlgo  CompressionAlgo `db:"compression_algo" json:"-"`
	Succeeded        bool            `db:"succeeded" json:"succeeded"`
	Error            *string         `db:"error" json:"error,omitempty"`
	StartedAt        time.Time       `db:"started_at" json:"startedAt"`
	FinishedAt       time.Time       `db:"finished_at" json:"finishedAt"`
}

// ImportJournal stores import runs in PostgreSQL. Large results are compressed.
type ImportJournal struct {
	db                QuerierSource
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ importer.Journal = (*ImportJournal)(nil)

// NewImportJournal creates a journal.
func NewImportJournal(db QuerierSource) (*ImportJournal, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &ImportJournal{
		db:                db,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: DefaultCompressThreshold,
	}, nil
}

// WithCompressThreshold sets the size in bytes above which results are compressed.
func (j *ImportJournal) WithCompressThreshold(n int) *ImportJournal {
	j.compressThreshold = n
	return j
}

const importJournalSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id                 UUID PRIMARY KEY,
    entity             VARCHAR(128) NOT NULL,
    source             TEXT NOT NULL DEFAULT '',
    options            JSONB NOT NULL,
    result             JSONB,
    result_compressed  BYTEA,
    compression_algo   VARCHAR(16) NOT NULL DEFAULT 'none',
    succeeded          BOOLEAN NOT NULL,
    error              TEXT,
    started_at         TIMESTAMPTZ NOT NULL,
    finished_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS %[1]s_entity_started_idx ON %[1]s (entity, started_at DESC);
`

// EnsureImportJournalSchema creates the journal table when missing.
func EnsureImportJournalSchema(ctx context.Context, q Querier) error {
	if _, err := q.Exec(ctx, fmt.Sprintf(importJournalSchema, ImportJournalTable)); err != nil {
		return fmt.Errorf("ensure %s schema: %w", ImportJournalTable, err)
	}
	return nil
}

// Record implements importer.Journal.
func (j *ImportJournal) Record(ctx context.Context, run importer.Run) error {
	rec, err := j.encode(run)
	if err != nil {
		return err
	}

	sql := `
		INSERT INTO ` + ImportJournalTable + ` (
			id, entity, source, options, result, result_compressed,
			compression_algo, succeeded, error, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = j.db.GetQuerier(ctx).Exec(ctx, sql,
		rec.ID, rec.Entity, rec.Source, rec.Options, rec.Result, rec.ResultCompressed,
		rec.CompressionAlgo, rec.Succeeded, rec.Error, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record import run %s: %w", run.ID, err)
	}
	return nil
}

// encode converts a run into its stored form.
func (j *ImportJournal) encode(run importer.Run) (*ImportRunRecord, error) {
	opts, err := json.Marshal(run.Options)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	rec := &ImportRunRecord{
		ID:              run.ID,
		Entity:          run.Entity,
		Source:          run.Options.Source,
		Options:         opts,
		CompressionAlgo: CompressionNone,
		Succeeded:       run.Error == "" && run.Result != nil && run.Result.Succeeded,
		StartedAt:       run.StartedAt,
		FinishedAt:      run.FinishedAt,
	}
	if run.Error != "" {
		msg := run.Error
		rec.Error = &msg
	}

	if run.Result != nil {
		result, err := json.Marshal(run.Result)
		if err != nil {
			return nil, fmt.Errorf("marshal result: %w", err)
		}
		if len(result) > j.compressThreshold {
			rec.ResultCompressed = j.encoder.EncodeAll(result, nil)
			rec.CompressionAlgo = CompressionZstd
		} else {
			rec.Result = result
		}
	}
	return rec, nil
}

// decode restores a compressed result in place.
func (j *ImportJournal) decode(rec *ImportRunRecord) error {
	if rec.CompressionAlgo != CompressionZstd || len(rec.ResultCompressed) == 0 {
		return nil
	}
	result, err := j.decoder.DecodeAll(rec.ResultCompressed, nil)
	if err != nil {
		return fmt.Errorf("decompress result of run %s: %w", rec.ID, err)
	}
	rec.Result = result
	rec.ResultCompressed = nil
	rec.CompressionAlgo = CompressionNone
	return nil
}

// Recent returns the latest runs for entity, newest first. An empty entity lists all.
func (j *ImportJournal) Recent(ctx context.Context, entity string, limit int) ([]ImportRunRecord, error) {
	sql := `
		SELECT id, entity, source, options, result, result_compressed,
			   compression_algo, succeeded, error, started_at, finished_at
		FROM ` + ImportJournalTable + `
		WHERE ($1 = '' OR entity = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`

	var records []ImportRunRecord
	if err := pgxscan.Select(ctx, j.db.GetQuerier(ctx), &records, sql, entity, limit); err != nil {
		return nil, fmt.Errorf("query import runs: %w", err)
	}
	for i := range records {
		if err := j.decode(&records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}
