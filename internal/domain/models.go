// package domain/models.go
package domain

// Field identifies a canonical statement column.
type Field string

// Canonical fields produced by the header resolver.
const (
	FieldTxnDate           Field = "txn_date"
	FieldValueDate         Field = "value_date"
	FieldDescription       Field = "description"
	FieldDebit             Field = "debit"
	FieldCredit            Field = "credit"
	FieldBalance           Field = "balance"
	FieldReferenceNo       Field = "reference_no"
	FieldTransactionID     Field = "transaction_id"
	FieldChequeNo          Field = "cheque_no"
	FieldCrDr              Field = "crdr"
	FieldTransactionAmount Field = "transaction_amount"
	FieldAvailableBalance  Field = "available_balance"
)

// Indicator codes used by statements that carry a single amount column.
const (
	IndicatorCredit = "CR"
	IndicatorDebit  = "DR"
)

// NoValidRowsMessage is reported when a file opened but yielded no rows.
const NoValidRowsMessage = "no valid rows found in the statement file"

// HeaderMap maps a canonical field to the zero-based column that supplies it.
// Fields missing from the statement are absent from the map.
type HeaderMap map[Field]int

// NormalizedRow is the canonical transaction record handed to the ingestion procedure.
type NormalizedRow struct {
	TxnDate     string         `json:"txn_date"`
	ValueDate   *string        `json:"value_date"`
	Description string         `json:"description"`
	ReferenceNo *string        `json:"reference_no"`
	Debit       float64        `json:"debit"`
	Credit      float64        `json:"credit"`
	Balance     *float64       `json:"balance"`
	Currency    string         `json:"currency"`
	Raw         map[string]any `json:"raw"`
}

// DebugRow is a diagnostic snapshot of how a row was derived.
type DebugRow struct {
	Keys      []string `json:"keys"`
	Indicator string   `json:"indicator"`
	Amount    *float64 `json:"amount"`
	Balance   *float64 `json:"balance"`
	Reference *string  `json:"reference"`
}

// ParseResult is everything an operator reviews before committing an import.
type ParseResult struct {
	ImportID    string           `json:"import_id"`
	FileName    string           `json:"file_name"`
	HeaderRow   int              `json:"header_row"`
	Headers     []string         `json:"headers"`
	HeaderMap   HeaderMap        `json:"header_map"`
	Rows        []NormalizedRow  `json:"rows"`
	RowCount    int              `json:"row_count"`
	DebugRows   []DebugRow       `json:"debug_rows"`
	Warnings    []string         `json:"warnings,omitempty"`
	Suggestions map[Field]string `json:"suggestions,omitempty"`
	Message     string           `json:"message,omitempty"`
}

// Empty reports whether the parse produced no rows.
func (r *ParseResult) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// CommitRequest carries an already-normalized row set to the ingestion procedure.
type CommitRequest struct {
	BankAccountID string          `json:"bank_account_id" binding:"required"`
	ImportID      string          `json:"import_id"`
	FileName      string          `json:"file_name"`
	Rows          []NormalizedRow `json:"rows" binding:"required"`
}

// CommitReceipt is the opaque reply of the ingestion procedure.
type CommitReceipt struct {
	ImportID  string         `json:"import_id"`
	Submitted int            `json:"submitted"`
	Result    map[string]any `json:"result,omitempty"`
}
