package statement

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"statement-service/internal/core/tabular"
	"statement-service/internal/domain"

	"github.com/shopspring/decimal"
)

const maxWarnings = 50

type normalizer struct {
	tables   *Tables
	layout   *headerLayout
	currency string
	debug    *collector
	warnings []string
	dropped  int
}

// derivation is the intermediate state kept for diagnostics.
type derivation struct {
	keys      []string
	indicator string
	amount    *float64
	balance   *float64
	reference *string
}

func (n *normalizer) resolve(view rowView, field domain.Field) tabular.Cell {
	aliases := n.tables.Aliases[field]
	if v := ResolveField(view, aliases); !v.IsBlank() {
		return v
	}
	if !n.tables.Loose[field] {
		return tabular.Cell{}
	}
	view = view.exceptOthers(field)
	if field == domain.FieldTransactionAmount {
		view = view.exceptSided()
	}
	return ResolveFieldLoose(view, aliases)
}

// normalizeRow converts one data row. The bool is false when the row is dropped.
// rowNum is the 1-based spreadsheet row, used in warnings.
func (n *normalizer) normalizeRow(rowNum int, cells []tabular.Cell) (domain.NormalizedRow, derivation, bool) {
	view := rowView{layout: n.layout, cells: cells}
	if view.allBlank() {
		return domain.NormalizedRow{}, derivation{}, false
	}

	row := domain.NormalizedRow{Currency: n.currency}
	row.TxnDate = dateText(n.resolve(view, domain.FieldTxnDate))
	row.ValueDate = optionalText(dateText(n.resolve(view, domain.FieldValueDate)))
	row.Description = text(n.resolve(view, domain.FieldDescription))
	row.ReferenceNo = optionalText(n.reference(view, row.Description))

	rawIndicator := text(n.resolve(view, domain.FieldCrDr))
	indicator := normalizeIndicator(rawIndicator)
	amount := optionalAmount(n.resolve(view, domain.FieldTransactionAmount))
	debit, credit := splitDebitCredit(
		optionalAmount(n.resolve(view, domain.FieldDebit)),
		optionalAmount(n.resolve(view, domain.FieldCredit)),
	)

	switch {
	case amount == nil:
		row.Debit, row.Credit = debit, credit
	case indicator == domain.IndicatorCredit:
		row.Credit = math.Abs(*amount)
	case indicator == domain.IndicatorDebit:
		row.Debit = math.Abs(*amount)
	case debit != 0 || credit != 0:
		row.Debit, row.Credit = debit, credit
	case rawIndicator != "":
		n.warn(fmt.Sprintf("row %d: unrecognized CR/DR indicator %q, amount %v left unassigned", rowNum, rawIndicator, *amount))
	default:
		n.warn(fmt.Sprintf("row %d: amount %v has no CR/DR indicator and was left unassigned", rowNum, *amount))
	}

	row.Balance = optionalAmount(n.resolve(view, domain.FieldBalance))
	if row.Balance == nil {
		row.Balance = optionalAmount(n.resolve(view, domain.FieldAvailableBalance))
	}

	if !retained(row) {
		n.dropped++
		return domain.NormalizedRow{}, derivation{}, false
	}

	row.Raw = make(map[string]any, len(n.layout.columns))
	keys := make([]string, 0, len(n.layout.columns))
	for _, c := range n.layout.columns {
		if c.index >= len(cells) || cells[c.index].IsBlank() {
			continue
		}
		row.Raw[c.label] = cells[c.index].Value()
		keys = append(keys, c.label)
	}

	d := derivation{
		keys:      keys,
		indicator: indicator,
		amount:    amount,
		balance:   row.Balance,
		reference: row.ReferenceNo,
	}
	if d.amount == nil && (row.Debit != 0 || row.Credit != 0) {
		v := row.Debit + row.Credit
		d.amount = &v
	}
	return row, d, true
}

// reference prefers an explicit transaction id, then a real cheque number,
// then whatever the narration gives up.
func (n *normalizer) reference(view rowView, description string) string {
	if id := text(n.resolve(view, domain.FieldTransactionID)); id != "" {
		return id
	}
	if chq := text(n.resolve(view, domain.FieldChequeNo)); chq != "" && !isPlaceholder(chq) {
		return chq
	}
	return ExtractReference(description)
}

func (n *normalizer) warn(msg string) {
	switch {
	case len(n.warnings) < maxWarnings:
		n.warnings = append(n.warnings, msg)
	case len(n.warnings) == maxWarnings:
		n.warnings = append(n.warnings, "further warnings suppressed")
	}
}

// normalizeIndicator keeps only letters, upper-cased: "Cr." and " cr " read as "CR".
func normalizeIndicator(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) {
			return unicode.ToUpper(r)
		}
		return -1
	}, s)
}

// splitDebitCredit returns non-negative sides with at most one of them non-zero.
// A row carrying both is netted onto the larger side.
func splitDebitCredit(debit, credit *float64) (float64, float64) {
	d, c := decimal.Zero, decimal.Zero
	if debit != nil {
		d = decimal.NewFromFloat(*debit).Abs()
	}
	if credit != nil {
		c = decimal.NewFromFloat(*credit).Abs()
	}
	if d.IsZero() || c.IsZero() {
		df, _ := d.Float64()
		cf, _ := c.Float64()
		return df, cf
	}
	net, _ := c.Sub(d).Float64()
	if net > 0 {
		return 0, net
	}
	return -net, 0
}

func retained(row domain.NormalizedRow) bool {
	return row.TxnDate != "" ||
		row.ValueDate != nil ||
		row.Description != "" ||
		row.ReferenceNo != nil ||
		row.Debit != 0 ||
		row.Credit != 0
}
