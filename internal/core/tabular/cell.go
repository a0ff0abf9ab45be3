package tabular

import (
	"strconv"
	"strings"
	"time"
)

// Kind is the native type of a decoded cell.
type Kind int

const (
	KindBlank Kind = iota
	KindText
	KindNumber
	KindDate
)

// Cell is an untyped spreadsheet value. Only the field matching Kind is meaningful.
type Cell struct {
	Kind   Kind
	Text   string
	Number float64
	Time   time.Time
}

// Matrix is the decoded first worksheet, rows in file order.
type Matrix [][]Cell

// Text builds a text cell. Empty input yields a blank cell.
func Text(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: KindText, Text: s}
}

// Number builds a numeric cell.
func Number(f float64) Cell {
	return Cell{Kind: KindNumber, Number: f}
}

// Date builds a date cell.
func Date(t time.Time) Cell {
	return Cell{Kind: KindDate, Time: t}
}

// IsBlank reports whether the cell carries no value (whitespace-only text counts as blank).
func (c Cell) IsBlank() bool {
	switch c.Kind {
	case KindBlank:
		return true
	case KindText:
		return strings.TrimSpace(c.Text) == ""
	}
	return false
}

// String renders the cell the way it would be read by an operator.
func (c Cell) String() string {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return strconv.FormatFloat(c.Number, 'f', -1, 64)
	case KindDate:
		return FormatDate(c.Time)
	}
	return ""
}

// Value returns the cell as a JSON-friendly value: string, float64 or nil.
// Dates are rendered with FormatDate.
func (c Cell) Value() any {
	switch c.Kind {
	case KindText:
		return c.Text
	case KindNumber:
		return c.Number
	case KindDate:
		return FormatDate(c.Time)
	}
	return nil
}

// FormatDate renders t as YYYY-MM-DD, keeping the clock part only when it is set.
func FormatDate(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
		return t.Format("2006-01-02")
	}
	return t.Format("2006-01-02 15:04:05")
}
