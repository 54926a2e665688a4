package importer

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/arnavshah/workload-api-go/pkg/apperr"
	"github.com/xuri/excelize/v2"
)

// Table is a parsed tabular file with its header indexed by column name
type Table struct {
	Cols map[string]int
	Rows [][]string
}

// firstDataRow is the spreadsheet row number of the first record after the header
const firstDataRow = 2

// ReadTable parses a CSV or XLSX file, picking the format from the file name
func ReadTable(filename string, r io.Reader) (*Table, error) {
	var records [][]string
	var err error
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", "":
		records, err = readCSV(r)
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r)
	default:
		return nil, apperr.Validation(fmt.Sprintf("unsupported file type %q, upload .csv or .xlsx", filepath.Ext(filename)))
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, apperr.Validation("file is empty")
	}

	t := &Table{Cols: make(map[string]int), Rows: records[1:]}
	for i, h := range records[0] {
		t.Cols[normalizeHeader(h)] = i
	}
	return t, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "malformed csv")
	}
	return records, nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "malformed xlsx")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperr.Validation("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "reading sheet "+sheets[0])
	}
	return rows, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.ReplaceAll(h, " ", "_")
}

// Require fails when any of the named columns is missing from the header
func (t *Table) Require(cols ...string) error {
	var missing []apperr.FieldError
	for _, c := range cols {
		if _, ok := t.Cols[c]; !ok {
			missing = append(missing, apperr.FieldError{Field: c, Message: "column is required"})
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing required columns", missing...)
	}
	return nil
}

// Cell returns the trimmed value of a column in a row, or "" when absent
func (t *Table) Cell(row []string, col string) string {
	i, ok := t.Cols[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
