// Package dataset loads the tabular source data and splits it into
// retrievable row-range chunks.
//
// A Dataset is immutable once loaded. Chunks produced from it are a pure
// function of the dataset and the configured chunk size, so two ingestion
// runs over the same file always yield identical chunk ids and content.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	// ErrInvalidInput marks malformed datasets. Callers match it with errors.Is.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoColumns is returned when a dataset has no columns to render.
	ErrNoColumns = fmt.Errorf("%w: dataset has zero columns", ErrInvalidInput)
)

// Dataset is an ordered table of rows with named columns.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// RowCount returns the number of data rows.
func (d Dataset) RowCount() int {
	return len(d.Rows)
}

// Validate checks that every row carries one value per column.
func (d Dataset) Validate() error {
	if len(d.Columns) == 0 {
		return ErrNoColumns
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("%w: row %d has %d values, expected %d", ErrInvalidInput, i, len(row), len(d.Columns))
		}
	}
	return nil
}

// LoadCSV reads a dataset from a CSV file whose first record is the header.
func LoadCSV(path string) (Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	ds, err := ReadCSV(f)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses CSV content with a header row.
func ReadCSV(r io.Reader) (Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Dataset{}, ErrNoColumns
		}
		return Dataset{}, err
	}

	columns := make([]string, len(header))
	for i, col := range header {
		if i == 0 {
			col = strings.TrimPrefix(col, "\ufeff")
		}
		columns[i] = strings.TrimSpace(col)
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Dataset{}, err
		}
		rows = append(rows, record)
	}

	ds := Dataset{Columns: columns, Rows: rows}
	if err := ds.Validate(); err != nil {
		return Dataset{}, err
	}
	return ds, nil
}
