// Package tabular reads uploaded statement exports into a matrix of native cells.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strings"
	"unicode/utf8"

	extxls "github.com/extrame/xls"
	"github.com/shakinm/xlsReader/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	// ErrDecode means the bytes could not be read as a spreadsheet at all.
	ErrDecode = errors.New("statement file could not be read")
	// ErrUnsupportedFormat means the file is neither a workbook nor a CSV export.
	ErrUnsupportedFormat = errors.New("unsupported statement file format")
)

type format int

const (
	formatUnknown format = iota
	formatXLSX
	formatXLS
	formatCSV
)

var (
	zipMagic = []byte("PK\x03\x04")
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM  = []byte{0xEF, 0xBB, 0xBF}
)

// Decode reads the first worksheet of a statement export. A workbook without
// worksheets yields an empty matrix and no error.
func Decode(r io.Reader, filename string) (Matrix, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrDecode)
	}

	var m Matrix
	switch detectFormat(data, filename) {
	case formatXLSX:
		m, err = decodeXLSX(data)
	case formatXLS:
		m, err = decodeXLS(data)
	case formatCSV:
		m, err = decodeCSV(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return m, nil
}

// detectFormat trusts magic bytes over the extension; banks often ship .xls
// names on xlsx content and vice versa.
func detectFormat(data []byte, filename string) format {
	switch {
	case bytes.HasPrefix(data, zipMagic):
		return formatXLSX
	case bytes.HasPrefix(data, oleMagic):
		return formatXLS
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return formatXLSX
	case ".xls":
		return formatXLS
	case ".csv", ".txt":
		return formatCSV
	}
	return formatUnknown
}

// ---------------------- xls (legacy) ----------------------

type legacyCell interface {
	GetString() string
	GetFloat64() float64
	GetXFIndex() int
	GetType() string
}

func decodeXLS(data []byte) (Matrix, error) {
	m, err := decodeXLSPrimary(data)
	if err != nil {
		return decodeXLSFallback(data, err)
	}
	return m, nil
}

// decodeXLSPrimary reads BIFF records with xlsReader, which indexes the record
// stream without bounds checks, so a truncated file surfaces as a panic.
func decodeXLSPrimary(data []byte) (m Matrix, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("xls reader panicked: %v", r)
		}
	}()

	workbook, err := xls.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if len(workbook.GetSheets()) == 0 {
		return Matrix{}, nil
	}
	sheet, err := workbook.GetSheet(0)
	if err != nil {
		return nil, err
	}

	formats := &legacyFormats{wb: &workbook, dates: make(map[int]bool)}
	for _, row := range sheet.GetRows() {
		var cells []Cell
		for _, col := range row.GetCols() {
			cells = append(cells, formats.cell(col))
		}
		m = append(m, cells)
	}
	return m, nil
}

// legacyFormats resolves a cell's XF record to its number format, caching per XF.
type legacyFormats struct {
	wb    *xls.Workbook
	dates map[int]bool
}

func (f *legacyFormats) cell(c legacyCell) Cell {
	if !isLegacyNumeric(c.GetType()) {
		return Text(c.GetString())
	}
	n := c.GetFloat64()
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Text(c.GetString())
	}
	if f.isDate(c.GetXFIndex()) {
		if t, err := excelize.ExcelDateToTime(n, false); err == nil {
			return Date(t)
		}
	}
	return Number(n)
}

func (f *legacyFormats) isDate(xfIndex int) (isDate bool) {
	if known, ok := f.dates[xfIndex]; ok {
		return known
	}
	defer func() {
		// workbooks with fewer than 16 XF records make GetXFbyIndex panic
		if recover() != nil {
			isDate = false
		}
		f.dates[xfIndex] = isDate
	}()

	xf := f.wb.GetXFbyIndex(xfIndex)
	id := xf.GetFormatIndex()
	if isDateNumFmt(id) {
		return true
	}
	if id < firstCustomNumFmt {
		return false
	}
	format := f.wb.GetFormatByIndex(id)
	return isDateFormatCode(format.String())
}

// firstCustomNumFmt is the first number format id a workbook defines itself.
const firstCustomNumFmt = 164

// isLegacyNumeric matches the BIFF number records (NUMBER, RK, MULRK).
func isLegacyNumeric(recordType string) bool {
	return strings.HasSuffix(recordType, ".Number") ||
		strings.HasSuffix(recordType, ".Rk") ||
		strings.HasSuffix(recordType, ".MulRk")
}

// decodeXLSFallback retries with a second BIFF reader that copes with some
// workbooks the primary one rejects. All cells come back as text.
func decodeXLSFallback(data []byte, cause error) (m Matrix, err error) {
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("%v; fallback reader panicked: %v", cause, r)
		}
	}()

	workbook, ferr := extxls.OpenReader(bytes.NewReader(data), "utf-8")
	if ferr != nil {
		return nil, fmt.Errorf("%v; fallback reader: %w", cause, ferr)
	}
	if workbook == nil {
		return nil, fmt.Errorf("%v; fallback reader: no workbook stream", cause)
	}
	if workbook.NumSheets() == 0 {
		return Matrix{}, nil
	}
	sheet := workbook.GetSheet(0)
	if sheet == nil {
		return Matrix{}, nil
	}

	m = make(Matrix, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			m = append(m, nil)
			continue
		}
		cells := make([]Cell, 0, row.LastCol())
		for j := 0; j < row.LastCol(); j++ {
			cells = append(cells, Text(row.Col(j)))
		}
		m = append(m, cells)
	}
	return m, nil
}

// ---------------------- csv ----------------------

func decodeCSV(data []byte) (Matrix, error) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var src io.Reader = bytes.NewReader(data)
	if !utf8.Valid(data) {
		src = transform.NewReader(src, charmap.Windows1252.NewDecoder())
	}

	reader := csv.NewReader(src)
	reader.Comma = sniffDelimiter(data)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	m := make(Matrix, len(records))
	for i, record := range records {
		cells := make([]Cell, len(record))
		for j, field := range record {
			cells[j] = Text(field)
		}
		m[i] = cells
	}
	return m, nil
}

// sniffDelimiter picks the most frequent candidate separator in the first lines.
func sniffDelimiter(data []byte) rune {
	lines := bytes.SplitN(data, []byte("\n"), 11)
	if len(lines) > 10 {
		lines = lines[:10]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t', '|'} {
		count := 0
		for _, line := range lines {
			count += bytes.Count(line, []byte(string(d)))
		}
		if count > bestCount {
			best, bestCount = d, count
		}
	}
	return best
}
