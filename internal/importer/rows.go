package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"crudkit/internal/core/apperror"
)

// RowSource yields header-keyed rows lazily. Next returns io.EOF after the last row.
type RowSource interface {
	Header() []string
	Next() (map[string]string, error)
}

// CSVSource reads a header row followed by data rows.
type CSVSource struct {
	r      *csv.Reader
	header []string
}

const bom = "\uFEFF"

// NewCSVSource reads the header immediately. delim 0 means ','.
// Header names are trimmed; a leading BOM is dropped; duplicate names are rejected.
func NewCSVSource(r io.Reader, delim rune) (*CSVSource, error) {
	if delim == 0 {
		delim = ','
	}
	if delim == '"' || delim == '\r' || delim == '\n' || delim == utf8.RuneError || !utf8.ValidRune(delim) {
		return nil, apperror.NewInvalidInput("invalid delimiter").WithDetail("delimiter", string(delim))
	}

	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.ReuseRecord = true

	record, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperror.NewInvalidInput("input has no header row")
	}
	if err != nil {
		return nil, apperror.NewInvalidInput("malformed header row").WithCause(err)
	}

	header := make([]string, len(record))
	seen := make(map[string]bool, len(record))
	for i, name := range record {
		if i == 0 {
			name = strings.TrimPrefix(name, bom)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperror.NewInvalidInput("empty header name").WithDetail("column", i+1)
		}
		if seen[name] {
			return nil, apperror.NewInvalidInput("duplicate header name").WithDetail("name", name)
		}
		seen[name] = true
		header[i] = name
	}
	cr.FieldsPerRecord = len(header)

	return &CSVSource{r: cr, header: header}, nil
}

// Header returns the trimmed header names.
func (s *CSVSource) Header() []string {
	return s.header
}

// Next returns the next data row.
func (s *CSVSource) Next() (map[string]string, error) {
	record, err := s.r.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, apperror.NewInvalidInput(fmt.Sprintf("malformed input on line %d", perr.Line)).WithCause(err)
		}
		return nil, fmt.Errorf("read row: %w", err)
	}

	row := make(map[string]string, len(s.header))
	for i, name := range s.header {
		row[name] = record[i]
	}
	return row, nil
}

// SliceSource serves rows held in memory.
type SliceSource struct {
	header []string
	rows   []map[string]string
	pos    int
}

// NewSliceSource creates a source over rows.
func NewSliceSource(header []string, rows ...map[string]string) *SliceSource {
	return &SliceSource{header: header, rows: rows}
}

// Header returns the header names.
func (s *SliceSource) Header() []string {
	return s.header
}

// Next returns the next row.
func (s *SliceSource) Next() (map[string]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// Consumed returns how many rows were handed out.
func (s *SliceSource) Consumed() int {
	return s.pos
}

// ParseDelimiter accepts one character, or "tab" / `\t` for a tab. Empty means ','.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return ',', nil
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, apperror.NewInvalidInput("delimiter must be a single character").WithDetail("delimiter", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}
