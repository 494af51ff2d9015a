package mimic3

import (
	"compress/gzip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// table is a small in-memory relation: a header index plus raw string rows.
// Values are parsed on access by the views, not up front.
type table struct {
	cols map[string]int
	rows [][]string
}

// get returns the value of col in row, or "" when the column is absent.
func (t *table) get(row []string, col string) string {
	i, ok := t.cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

// tableReader streams one compressed delimited table.
type tableReader struct {
	file *os.File
	gz   *gzip.Reader
	csv  *csv.Reader
	cols map[string]int
}

// openTable opens <dir>/<name>.csv.gz, validates the header against the
// table's schema description in schemaDir, and returns a reader positioned
// at the first data row.
func openTable(dir, schemaDir, name string) (*tableReader, error) {
	schemaPath := filepath.Join(schemaDir, name+".txt")
	if _, err := os.Stat(schemaPath); err != nil {
		return nil, fmt.Errorf("could not find schema description for table %s at %s: %w", name, schemaPath, err)
	}
	schema, err := readSchema(schemaPath)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, name+".csv.gz")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", name, err)
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open table %s: %w", name, err)
	}

	r := csv.NewReader(gz)
	r.ReuseRecord = false
	header, err := r.Read()
	if err != nil {
		gz.Close()
		f.Close()
		return nil, fmt.Errorf("read header of table %s: %w", name, err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		col := strings.ToUpper(strings.TrimSpace(strings.Trim(h, `"`)))
		if _, ok := schema[col]; !ok {
			gz.Close()
			f.Close()
			return nil, fmt.Errorf("table %s column %q has no entry in its schema description", name, col)
		}
		cols[col] = i
	}

	return &tableReader{file: f, gz: gz, csv: r, cols: cols}, nil
}

// readChunk reads up to size rows, returning io.EOF alongside the final
// partial chunk.
func (r *tableReader) readChunk(size int) ([][]string, error) {
	rows := make([][]string, 0, size)
	for len(rows) < size {
		rec, err := r.csv.Read()
		if err == io.EOF {
			return rows, io.EOF
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

func (r *tableReader) Close() error {
	r.gz.Close()
	return r.file.Close()
}

// readTable loads a whole table into memory. Only used for the small
// backing tables; the measurement table goes through streamTable instead.
func readTable(dir, schemaDir, name string) (*table, error) {
	r, err := openTable(dir, schemaDir, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t := &table{cols: r.cols}
	for {
		rows, err := r.readChunk(4096)
		t.rows = append(t.rows, rows...)
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
	}
}

// streamTable reads a table in fixed-size chunks, handing each chunk to
// keep for immediate filtering, and returns the accumulated kept rows.
// Peak memory stays proportional to the filtered subset, never the whole
// table.
func streamTable(dir, schemaDir, name string, chunkSize int, keep func(t *table, rows [][]string) [][]string) (*table, error) {
	r, err := openTable(dir, schemaDir, name)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	t := &table{cols: r.cols}
	for {
		rows, err := r.readChunk(chunkSize)
		if len(rows) > 0 {
			t.rows = append(t.rows, keep(t, rows)...)
		}
		if err == io.EOF {
			return t, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read table %s: %w", name, err)
		}
	}
}
