package statement

import (
	"math"
	"strings"
	"time"

	"statement-service/internal/core/tabular"

	"github.com/shopspring/decimal"
)

var amountCleaner = strings.NewReplacer(",", "", " ", "", "\u00a0", "")

// ParseAmount reads a numeric cell. Blank cells, a lone dash and anything
// unparsable are "no value" (false); it never fails.
func ParseAmount(c tabular.Cell) (float64, bool) {
	switch c.Kind {
	case tabular.KindNumber:
		if math.IsNaN(c.Number) || math.IsInf(c.Number, 0) {
			return 0, false
		}
		return c.Number, true
	case tabular.KindText:
		return parseAmountText(c.Text)
	}
	return 0, false
}

// parseAmountText strips thousands separators of both western (1,234,567.50)
// and Indian (12,34,567.50) grouping before parsing as a decimal.
func parseAmountText(s string) (float64, bool) {
	s = amountCleaner.Replace(strings.TrimSpace(s))
	if s == "" || s == "-" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

func optionalAmount(c tabular.Cell) *float64 {
	if v, ok := ParseAmount(c); ok {
		return &v
	}
	return nil
}

// Excel serials accepted as dates when a numeric cell shows up in a date field:
// 1970-01-01 through 2099-12-31.
const (
	minDateSerial = 25569
	maxDateSerial = 73050
)

// dateText renders a date field. Date cells become YYYY-MM-DD, text is trimmed
// and kept as written.
func dateText(c tabular.Cell) string {
	switch c.Kind {
	case tabular.KindDate:
		return c.Time.Format("2006-01-02")
	case tabular.KindNumber:
		if c.Number >= minDateSerial && c.Number <= maxDateSerial {
			return excelSerialToDate(c.Number).Format("2006-01-02")
		}
	}
	return strings.TrimSpace(c.String())
}

func excelSerialToDate(serial float64) time.Time {
	// base Excel serial -> 1899-12-30
	base := time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)
	return base.AddDate(0, 0, int(serial))
}

func text(c tabular.Cell) string {
	return strings.TrimSpace(c.String())
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
