// Package tabular parses uploaded CSV and XLSX content into an ordered table
// of rows keyed by column name, and validates the column contract before any
// row processing begins.
package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ErrUnsupportedFormat is returned for file extensions other than
// .csv/.xlsx/.xls.
var ErrUnsupportedFormat = eris.New("unsupported file format, use CSV or Excel (xlsx)")

// Table is a parsed upload: an ordered header plus rows in file order.
type Table struct {
	header  []string
	colIdx  map[string]int
	records [][]string
}

// Row is a view over one record, keyed by column name.
type Row struct {
	table  *Table
	record []string
}

// Read parses content into a Table based on the filename extension.
func Read(content []byte, filename string) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return readCSV(content)
	case ".xlsx", ".xls":
		return readXLSX(content)
	default:
		return nil, ErrUnsupportedFormat
	}
}

func readCSV(content []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1 // allow variable fields

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "tabular: read csv row")
		}
		records = append(records, record)
	}
	return newTable(records)
}

func readXLSX(content []byte) (*Table, error) {
	f, err := xlsx.OpenBinary(content)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("tabular: xlsx has no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	return newTable(records)
}

func newTable(records [][]string) (*Table, error) {
	if len(records) == 0 {
		return nil, eris.New("tabular: file has no header row")
	}

	header := make([]string, len(records[0]))
	colIdx := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		name = strings.TrimSpace(name)
		header[i] = name
		if _, ok := colIdx[name]; !ok {
			colIdx[name] = i
		}
	}

	return &Table{header: header, colIdx: colIdx, records: records[1:]}, nil
}

// Header returns the column names in file order.
func (t *Table) Header() []string { return t.header }

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.records) }

// Row returns the i-th data row in file order.
func (t *Table) Row(i int) Row { return Row{table: t, record: t.records[i]} }

// Has reports whether the column exists in the header.
func (r Row) Has(col string) bool {
	_, ok := r.table.colIdx[col]
	return ok
}

// Get returns the trimmed value of the named column, or "" when the column is
// absent or the record is short.
func (r Row) Get(col string) string {
	idx, ok := r.table.colIdx[col]
	if !ok || idx >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[idx])
}

// Map returns the row as a column-to-value mapping, used to capture the raw
// payload for staging.
func (r Row) Map() map[string]string {
	m := make(map[string]string, len(r.table.header))
	for _, col := range r.table.header {
		m[col] = r.Get(col)
	}
	return m
}
