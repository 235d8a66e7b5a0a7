// Package export writes tabular data as XLSX workbooks or CSV.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var ErrEmptyHeaders = errors.New("export: headers cannot be empty")

// Table is one sheet of output.
type Table struct {
	Name    string
	Headers []string
	Rows    [][]any
}

// Append adds a row.
func (t *Table) Append(values ...any) {
	t.Rows = append(t.Rows, values)
}

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	dateTimeFormat  = "yyyy-mm-dd hh:mm:ss"
	maxColWidth     = 60
)

// WriteXLSX writes one sheet per table. Headers are bold on a grey fill
// and frozen; time.Time cells get a date-time format.
func WriteXLSX(w io.Writer, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}
	fmtStr := dateTimeFormat
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &fmtStr})
	if err != nil {
		return fmt.Errorf("export: date style: %w", err)
	}

	for i, t := range tables {
		if len(t.Headers) == 0 {
			return ErrEmptyHeaders
		}
		name := t.Name
		if name == "" {
			name = "Sheet" + strconv.Itoa(i+1)
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("export: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("export: new sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, t, header, dateStyle); err != nil {
			return err
		}
	}
	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet string, t Table, header, dateStyle int) error {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = max(10, utf8.RuneCountInString(h)+2)
	}

	first, _ := excelize.CoordinatesToCellName(1, 1)
	if err := f.SetSheetRow(sheet, first, &t.Headers); err != nil {
		return fmt.Errorf("export: headers: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(t.Headers), 1)
	if err := f.SetCellStyle(sheet, first, last, header); err != nil {
		return fmt.Errorf("export: header style: %w", err)
	}

	for r, row := range t.Rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("export: cell %s: %w", cell, err)
			}
			if tm, ok := v.(time.Time); ok && !tm.IsZero() {
				_ = f.SetCellStyle(sheet, cell, cell, dateStyle)
			}
			if c < len(widths) {
				widths[c] = max(widths[c], utf8.RuneCountInString(cellText(v))+2)
			}
		}
	}

	for c, wd := range widths {
		col, _ := excelize.ColumnNumberToName(c + 1)
		if err := f.SetColWidth(sheet, col, col, float64(min(wd, maxColWidth))); err != nil {
			return fmt.Errorf("export: col width: %w", err)
		}
	}
	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// WriteCSV writes t with a header row. Text cells that a spreadsheet
// would evaluate as a formula are prefixed with a quote.
func WriteCSV(w io.Writer, t Table) error {
	if len(t.Headers) == 0 {
		return ErrEmptyHeaders
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Headers); err != nil {
		return err
	}
	rec := make([]string, len(t.Headers))
	for _, row := range t.Rows {
		for i := range rec {
			rec[i] = ""
			if i < len(row) {
				rec[i] = neutralize(cellText(row[i]))
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ServeXLSX writes the workbook as an attachment.
func ServeXLSX(w http.ResponseWriter, filename string, tables ...Table) error {
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	return WriteXLSX(w, tables...)
}

// ServeCSV writes t as a CSV attachment.
func ServeCSV(w http.ResponseWriter, filename string, t Table) error {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	return WriteCSV(w, t)
}

func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func neutralize(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}
