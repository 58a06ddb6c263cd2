package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Table is a parsed sensor export: a header row plus string cells. Cells stay
// untyped here; numeric interpretation happens during aggregation so that a
// contaminated column surfaces as a reported error, not a silent zero.
type Table struct {
	Columns []string
	Rows    [][]string
}

// ParseUpload reads an uploaded export into a Table. The format is chosen by
// the filename extension: .xlsx goes through excelize, .csv through
// encoding/csv.
func ParseUpload(filename string, r io.Reader) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return parseXLSX(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, ErrInvalidFilename
	}
}

func parseXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("error reading file: %s", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("error reading file: workbook has no sheets")
	}

	// Raw values keep datetime cells as serial numbers instead of whatever
	// display format the cell style dictates; validation converts them back.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("error reading file: %s", err)
	}
	return tableFromRows(rows), nil
}

func parseCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("error reading file: %s", err)
	}
	return tableFromRows(rows), nil
}

func tableFromRows(rows [][]string) *Table {
	if len(rows) == 0 {
		return &Table{}
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	return &Table{Columns: header, Rows: rows[1:]}
}

// cell returns the value at column idx, tolerating short rows from trailing
// empty xlsx cells.
func (t *Table) cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}
