package tabular

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

type xlsxDecoder struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	styles   map[int]bool
}

func decodeXLSX(data []byte) (Matrix, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return Matrix{}, nil
	}

	d := &xlsxDecoder{f: f, sheet: sheets[0], styles: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		d.date1904 = *props.Date1904
	}

	// raw values so numbers and date serials are not pre-formatted as text
	rows, err := f.GetRows(d.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, err
	}

	m := make(Matrix, len(rows))
	for i, row := range rows {
		cells := make([]Cell, len(row))
		for j, raw := range row {
			axis, err := excelize.CoordinatesToCellName(j+1, i+1)
			if err != nil {
				cells[j] = Text(raw)
				continue
			}
			cells[j] = d.cell(axis, raw)
		}
		m[i] = cells
	}
	return m, nil
}

func (d *xlsxDecoder) cell(axis, raw string) Cell {
	if raw == "" {
		return Cell{}
	}
	typ, err := d.f.GetCellType(d.sheet, axis)
	if err != nil {
		return Text(raw)
	}

	switch typ {
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeBool, excelize.CellTypeError:
		return Text(raw)
	case excelize.CellTypeDate:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, raw); err == nil {
				return Date(t)
			}
		}
		return Text(raw)
	}

	// numbers, unset types and cached formula results
	n, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Text(raw)
	}
	if d.isDateStyled(axis) {
		if t, err := excelize.ExcelDateToTime(n, d.date1904); err == nil {
			return Date(t)
		}
	}
	return Number(n)
}

func (d *xlsxDecoder) isDateStyled(axis string) bool {
	styleID, err := d.f.GetCellStyle(d.sheet, axis)
	if err != nil || styleID == 0 {
		return false
	}
	if known, ok := d.styles[styleID]; ok {
		return known
	}
	isDate := false
	if style, err := d.f.GetStyle(styleID); err == nil && style != nil {
		isDate = isDateNumFmt(style.NumFmt)
		if !isDate && style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	d.styles[styleID] = isDate
	return isDate
}

// isDateNumFmt reports whether a builtin number format id renders a date.
// Time-only formats (18-21, 45-47) are left as numbers.
func isDateNumFmt(id int) bool {
	switch {
	case id >= 14 && id <= 17, id == 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode inspects a custom format code, ignoring quoted literals,
// escaped characters and bracketed sections such as colours or locales.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket, escaped := false, false, false
	for _, r := range code {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.ToLower(b.String())
	if clean == "general" || clean == "" {
		return false
	}
	return strings.ContainsAny(clean, "dy")
}
