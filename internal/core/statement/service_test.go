package statement

import (
	"bytes"
	"encoding/csv"
	"reflect"
	"strings"
	"testing"

	"statement-service/internal/core/tabular"
	"statement-service/internal/domain"

	"github.com/xuri/excelize/v2"
)

func textRows(rows ...[]string) tabular.Matrix {
	m := make(tabular.Matrix, len(rows))
	for i, row := range rows {
		m[i] = make([]tabular.Cell, len(row))
		for j, v := range row {
			m[i][j] = tabular.Text(v)
		}
	}
	return m
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return "<nil>"
	}
	return *s
}

var savingsHeader = []string{"Date", "Narration", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"}

func TestNormalizeEndToEnd(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		[]string{"ACME BANK LTD - Statement of Account"},
		savingsHeader,
		[]string{"01/04/2024", "NEFT IN FROM ABC UTR1234567890", "", "5000.00", "105000.00"},
	)

	result := svc.Normalize(m)
	if result.HeaderRow != 1 {
		t.Fatalf("header row: got %d, want 1", result.HeaderRow)
	}
	if len(result.Rows) != 1 || result.RowCount != 1 {
		t.Fatalf("got %d rows (count %d), want 1", len(result.Rows), result.RowCount)
	}

	row := result.Rows[0]
	if row.TxnDate != "01/04/2024" {
		t.Errorf("txn_date: got %q", row.TxnDate)
	}
	if row.Debit != 0 || row.Credit != 5000 {
		t.Errorf("debit/credit: got %v/%v, want 0/5000", row.Debit, row.Credit)
	}
	if row.Balance == nil || *row.Balance != 105000 {
		t.Errorf("balance: got %v, want 105000", row.Balance)
	}
	if got := deref(row.ReferenceNo); got != "1234567890" {
		t.Errorf("reference_no: got %q, want 1234567890", got)
	}
	if !strings.Contains(row.Description, "NEFT IN FROM ABC") {
		t.Errorf("description: got %q", row.Description)
	}
	if row.Currency != DefaultCurrency {
		t.Errorf("currency: got %q", row.Currency)
	}
	if _, ok := row.Raw["Withdrawal Amt."]; ok {
		t.Errorf("raw should skip blank cells: %v", row.Raw)
	}
	if row.Raw["Deposit Amt."] != "5000.00" {
		t.Errorf("raw deposit: got %v", row.Raw["Deposit Amt."])
	}

	want := domain.HeaderMap{
		domain.FieldTxnDate:     0,
		domain.FieldDescription: 1,
		domain.FieldDebit:       2,
		domain.FieldCredit:      3,
		domain.FieldBalance:     4,
	}
	if !reflect.DeepEqual(result.HeaderMap, want) {
		t.Errorf("header map: got %v, want %v", result.HeaderMap, want)
	}
	if result.Message != "" {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestNormalizeHeaderPositionIndependence(t *testing.T) {
	data := [][]string{
		{"02/04/2024", "ATM WDL 0042 MG ROAD", "2,000.00", "", "1,03,000.00"},
		{"03/04/2024", "UPI/412345678901/GROCER", "350.50", "", "1,02,649.50"},
		{"04/04/2024", "SALARY APR", "", "75,000.00", "1,77,649.50"},
	}

	build := func(offset int) tabular.Matrix {
		var rows [][]string
		for i := 0; i < offset; i++ {
			rows = append(rows, []string{"Branch: MG Road", "", "IFSC HDFC0000042"})
		}
		rows = append(rows, savingsHeader)
		rows = append(rows, data...)
		return textRows(rows...)
	}

	svc := NewService(Options{})
	base := svc.Normalize(build(0))
	if len(base.Rows) != len(data) {
		t.Fatalf("got %d rows, want %d", len(base.Rows), len(data))
	}

	for _, offset := range []int{1, 4, 11} {
		got := svc.Normalize(build(offset))
		if got.HeaderRow != offset {
			t.Errorf("offset %d: header row %d", offset, got.HeaderRow)
		}
		if !reflect.DeepEqual(got.Rows, base.Rows) {
			t.Errorf("offset %d: rows differ from offset 0", offset)
		}
	}
}

func TestNormalizeDebitCreditExclusive(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		savingsHeader,
		[]string{"01/04/2024", "both sides", "100", "40", ""},
		[]string{"02/04/2024", "credit larger", "10", "75.5", ""},
		[]string{"03/04/2024", "negative debit", "-250", "", ""},
		[]string{"04/04/2024", "plain credit", "", "12", ""},
		[]string{"05/04/2024", "nothing", "", "", ""},
	)

	result := svc.Normalize(m)
	if len(result.Rows) != 5 {
		t.Fatalf("got %d rows, want 5", len(result.Rows))
	}
	for i, row := range result.Rows {
		if row.Debit < 0 || row.Credit < 0 {
			t.Errorf("row %d: negative side %v/%v", i, row.Debit, row.Credit)
		}
		if row.Debit > 0 && row.Credit > 0 {
			t.Errorf("row %d: both sides set %v/%v", i, row.Debit, row.Credit)
		}
	}

	wants := [][2]float64{{60, 0}, {0, 65.5}, {250, 0}, {0, 12}, {0, 0}}
	for i, w := range wants {
		if got := result.Rows[i]; got.Debit != w[0] || got.Credit != w[1] {
			t.Errorf("row %d: got %v/%v, want %v/%v", i, got.Debit, got.Credit, w[0], w[1])
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		[]string{"Txn Date", "Value Date", "Description", "Cheque No", "Amount", "Cr/Dr", "Balance"},
		[]string{"01-04-2024", "01-04-2024", "CHQ DEP 000123", "000123", "1,500.00", "CR", "11,500.00"},
		[]string{"02-04-2024", "03-04-2024", "RTGS-HDFCR52024040212345678-VENDOR", "-", "9,000.00", "DR", "2,500.00"},
	)

	first := svc.Normalize(m)
	second := svc.Normalize(m)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("normalizing the same matrix twice gave different results")
	}
}

func TestNormalizeAliasPriority(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		[]string{"Txn Date", "Description", "Transaction ID", "Reference", "Amount", "Cr/Dr", "Balance"},
		[]string{"02/04/2024", "ATM WDL", "TXN778899", "REF-001", "1,250.00", "Dr", "98,750.00"},
		[]string{"03/04/2024", "UPI/123456789012/PAYEE", "", "-", "500", "Cr.", "99,250.00"},
		[]string{"04/04/2024", "CASH DEP", "", "CHQ4455", "100", "CR", "99,350.00"},
	)

	result := svc.Normalize(m)
	if len(result.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(result.Rows))
	}
	if idx, ok := result.HeaderMap[domain.FieldReferenceNo]; !ok || idx != 2 {
		t.Errorf("reference_no column: got %d (%v), want 2", idx, ok)
	}

	tests := []struct {
		ref    string
		debit  float64
		credit float64
	}{
		{"TXN778899", 1250, 0},
		{"123456789012", 0, 500},
		{"CHQ4455", 0, 100},
	}
	for i, tt := range tests {
		row := result.Rows[i]
		if got := deref(row.ReferenceNo); got != tt.ref {
			t.Errorf("row %d: reference got %q, want %q", i, got, tt.ref)
		}
		if row.Debit != tt.debit || row.Credit != tt.credit {
			t.Errorf("row %d: got %v/%v, want %v/%v", i, row.Debit, row.Credit, tt.debit, tt.credit)
		}
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestNormalizeRetention(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		savingsHeader,
		[]string{"01/04/2024", "OPENING", "", "", "100"},
		[]string{"", "", "", "", "100"},
		[]string{"", "", "", "", ""},
		[]string{"  ", "-", "", "", ""},
		[]string{"", "", "", "25", ""},
	)

	result := svc.Normalize(m)
	if len(result.Rows) != 3 {
		t.Fatalf("got %d rows, want 3: %+v", len(result.Rows), result.Rows)
	}
	if result.Rows[1].Description != "-" {
		t.Errorf("dash narration row: got %q", result.Rows[1].Description)
	}
	if result.Rows[2].Credit != 25 {
		t.Errorf("credit-only row: got %v", result.Rows[2].Credit)
	}
}

func TestNormalizeNoHeader(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		[]string{"Quarterly report"},
		[]string{"Region", "Sales"},
		[]string{"North", "120"},
	)

	result := svc.Normalize(m)
	if result.HeaderRow != NoHeader {
		t.Errorf("header row: got %d", result.HeaderRow)
	}
	if result.Rows == nil || len(result.Rows) != 0 {
		t.Errorf("rows: got %v, want empty non-nil slice", result.Rows)
	}
	if result.Message != domain.NoValidRowsMessage {
		t.Errorf("message: got %q", result.Message)
	}
	if !result.Empty() {
		t.Errorf("result should be empty")
	}
}

func TestNormalizeHeaderOnly(t *testing.T) {
	result := NewService(Options{}).Normalize(textRows(savingsHeader))
	if result.HeaderRow != 0 {
		t.Errorf("header row: got %d", result.HeaderRow)
	}
	if result.Message != domain.NoValidRowsMessage {
		t.Errorf("message: got %q", result.Message)
	}
}

func TestNormalizeLooseColumns(t *testing.T) {
	svc := NewService(Options{Currency: "USD"})
	m := textRows(
		[]string{"Value Date", "Narration", "Amount (INR)", "Cr/Dr", "Available Balance(INR)"},
		[]string{"05/04/2024", "IMPS/987654321012/JOHN", "2500", "CR", "1,02,500.00"},
	)

	result := svc.Normalize(m)
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}
	row := result.Rows[0]
	if row.TxnDate != "" {
		t.Errorf("txn_date must not be loosely matched to Value Date: got %q", row.TxnDate)
	}
	if deref(row.ValueDate) != "05/04/2024" {
		t.Errorf("value_date: got %q", deref(row.ValueDate))
	}
	if row.Credit != 2500 || row.Debit != 0 {
		t.Errorf("debit/credit: got %v/%v", row.Debit, row.Credit)
	}
	if row.Balance == nil || *row.Balance != 102500 {
		t.Errorf("balance: got %v", row.Balance)
	}
	if deref(row.ReferenceNo) != "987654321012" {
		t.Errorf("reference_no: got %q", deref(row.ReferenceNo))
	}
	if row.Currency != "USD" {
		t.Errorf("currency: got %q", row.Currency)
	}
}

func TestNormalizeLooseSideColumns(t *testing.T) {
	tests := []struct {
		name   string
		header []string
	}{
		{"withdrawal and deposit", []string{"Date", "Transaction Remarks", "Withdrawal Amount (INR )", "Deposit Amount (INR )", "Balance (INR )"}},
		{"debit and credit", []string{"Date", "Transaction Remarks", "Debit Amount (INR)", "Credit Amount (INR)", "Balance (INR)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Options{})
			result := svc.Normalize(textRows(
				tt.header,
				[]string{"01/04/2024", "ATM CASH WDL", "2500.00", "", "100000.00"},
			))

			want := domain.HeaderMap{
				domain.FieldTxnDate:     0,
				domain.FieldDescription: 1,
				domain.FieldDebit:       2,
				domain.FieldCredit:      3,
				domain.FieldBalance:     4,
			}
			if !reflect.DeepEqual(result.HeaderMap, want) {
				t.Errorf("header map: got %v, want %v", result.HeaderMap, want)
			}
			if len(result.Rows) != 1 {
				t.Fatalf("got %d rows, want 1", len(result.Rows))
			}
			if row := result.Rows[0]; row.Debit != 2500 || row.Credit != 0 {
				t.Errorf("debit/credit: got %v/%v", row.Debit, row.Credit)
			}
			if len(result.Warnings) != 0 {
				t.Errorf("unexpected warnings: %v", result.Warnings)
			}
		})
	}
}

func TestNormalizeIndicatorWarnings(t *testing.T) {
	svc := NewService(Options{})
	m := textRows(
		[]string{"Date", "Description", "Amount", "Cr/Dr", "Balance"},
		[]string{"01/04/2024", "REVERSAL", "300", "XX", "1000"},
		[]string{"02/04/2024", "FEE", "20", "", "980"},
		[]string{"03/04/2024", "FEE", "20", " dr ", "960"},
	)

	result := svc.Normalize(m)
	if len(result.Rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(result.Rows))
	}
	if r := result.Rows[0]; r.Debit != 0 || r.Credit != 0 {
		t.Errorf("unknown indicator must leave sides zero, got %v/%v", r.Debit, r.Credit)
	}
	if r := result.Rows[2]; r.Debit != 20 {
		t.Errorf("lower-case indicator: got debit %v", r.Debit)
	}
	if len(result.Warnings) != 2 {
		t.Fatalf("warnings: got %v, want 2", result.Warnings)
	}
	if !strings.Contains(result.Warnings[0], "row 2") || !strings.Contains(result.Warnings[0], `"XX"`) {
		t.Errorf("first warning: got %q", result.Warnings[0])
	}
}

func TestNormalizeWarningsAreCapped(t *testing.T) {
	rows := [][]string{{"Date", "Description", "Amount", "Cr/Dr"}}
	for i := 0; i < maxWarnings+10; i++ {
		rows = append(rows, []string{"01/04/2024", "X", "1", "??"})
	}
	result := NewService(Options{}).Normalize(textRows(rows...))
	if len(result.Warnings) != maxWarnings+1 {
		t.Fatalf("got %d warnings, want %d", len(result.Warnings), maxWarnings+1)
	}
	if last := result.Warnings[maxWarnings]; last != "further warnings suppressed" {
		t.Errorf("last warning: got %q", last)
	}
}

func TestNormalizeDiagnosticsBounded(t *testing.T) {
	rows := [][]string{savingsHeader}
	for i := 0; i < 8; i++ {
		rows = append(rows, []string{"01/04/2024", "NEFT CR ABCD1234567", "", "10", "10"})
	}
	result := NewService(Options{}).Normalize(textRows(rows...))

	if len(result.Rows) != 8 {
		t.Fatalf("got %d rows, want 8", len(result.Rows))
	}
	if len(result.DebugRows) != debugRowLimit {
		t.Fatalf("got %d debug rows, want %d", len(result.DebugRows), debugRowLimit)
	}
	d := result.DebugRows[0]
	if d.Amount == nil || *d.Amount != 10 {
		t.Errorf("debug amount: got %v", d.Amount)
	}
	if deref(d.Reference) != "ABCD1234567" {
		t.Errorf("debug reference: got %q", deref(d.Reference))
	}
	wantKeys := []string{"Date", "Narration", "Deposit Amt.", "Closing Balance"}
	if !reflect.DeepEqual(d.Keys, wantKeys) {
		t.Errorf("debug keys: got %v, want %v", d.Keys, wantKeys)
	}
}

func TestNormalizeNativeCells(t *testing.T) {
	m := tabular.Matrix{
		{tabular.Text("Date"), tabular.Text("Value Date"), tabular.Text("Narration"), tabular.Text("Debit"), tabular.Text("Credit"), tabular.Text("Balance")},
		{tabular.Number(45383), tabular.Text(" 02/04/2024 "), tabular.Text("POS 4411"), tabular.Number(99.99), tabular.Cell{}, tabular.Number(900.01)},
	}
	result := NewService(Options{}).Normalize(m)
	if len(result.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(result.Rows))
	}
	row := result.Rows[0]
	if row.TxnDate != "2024-04-01" {
		t.Errorf("serial date: got %q", row.TxnDate)
	}
	if deref(row.ValueDate) != "02/04/2024" {
		t.Errorf("text date should be trimmed: got %q", deref(row.ValueDate))
	}
	if row.Debit != 99.99 {
		t.Errorf("debit: got %v", row.Debit)
	}
	if row.Raw["Debit"] != 99.99 {
		t.Errorf("raw keeps native numbers: got %#v", row.Raw["Debit"])
	}
}

func TestNormalizeSuggestions(t *testing.T) {
	m := textRows(
		[]string{"Date", "Narration", "Withdrawal Amt.", "Deposit Amt.", "Closng Bal"},
		[]string{"01/04/2024", "X", "1", "", "99"},
	)
	result := NewService(Options{}).Normalize(m)
	if got := result.Suggestions[domain.FieldBalance]; got != "Closng Bal" {
		t.Errorf("balance suggestion: got %q", got)
	}
	if _, ok := result.Suggestions[domain.FieldTxnDate]; ok {
		t.Errorf("resolved fields must not get suggestions")
	}
	if result.Rows[0].Balance != nil {
		t.Errorf("suggestions must not feed normalization")
	}
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := [][]any{
		{"STATEMENT OF ACCOUNT"},
		{"Date", "Narration", "Withdrawal Amt.", "Deposit Amt.", "Closing Balance"},
		{"01/04/2024", "NEFT IN FROM ABC UTR1234567890", "", 5000.0, 105000.0},
	}
	for i, row := range sheet {
		for j, v := range row {
			axis, _ := excelize.CoordinatesToCellName(j+1, i+1)
			if err := f.SetCellValue("Sheet1", axis, v); err != nil {
				t.Fatalf("set cell: %v", err)
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	data := buf.Bytes()

	svc := NewService(Options{})
	first, err := svc.Parse(bytes.NewReader(data), "/tmp/uploads/april.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.FileName != "april.xlsx" {
		t.Errorf("file name: got %q", first.FileName)
	}
	if len(first.Rows) != 1 || first.Rows[0].Credit != 5000 {
		t.Fatalf("rows: got %+v", first.Rows)
	}

	second, err := svc.Parse(bytes.NewReader(data), "april.xlsx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ImportID == "" || first.ImportID != second.ImportID {
		t.Errorf("import id must be stable: %q vs %q", first.ImportID, second.ImportID)
	}

	other, err := svc.Parse(strings.NewReader("Date,Narration,Balance\n01/04/2024,X,1\n"), "other.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.ImportID == first.ImportID {
		t.Errorf("different files share import id %q", other.ImportID)
	}
}

func TestParseDecodeFailure(t *testing.T) {
	_, err := NewService(Options{}).Parse(strings.NewReader(""), "empty.xlsx")
	if err == nil {
		t.Fatal("expected an error for an empty upload")
	}
}

func TestCSVField(t *testing.T) {
	tests := map[string]string{
		"":                "",
		"  ATM\tWDL\r\n ": "ATM WDL",
		"NEFT\x00IN":      "NEFT IN",
		"=1+1":            "'=1+1",
		"+91 9800000000":  "'+91 9800000000",
		"-250 REVERSAL":   "'-250 REVERSAL",
		"@cmd":            "'@cmd",
		"  =SUM(A1)":      "'=SUM(A1)",
		"UPI-REF":         "UPI-REF",
	}
	for in, want := range tests {
		if got := csvField(in); got != want {
			t.Errorf("csvField(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExportCSV(t *testing.T) {
	balance := 105000.0
	rows := []domain.NormalizedRow{
		{
			TxnDate:     "01/04/2024",
			Description: "  NEFT IN\nFROM ABC ",
			ReferenceNo: strPtr("1234567890"),
			Credit:      5000,
			Balance:     &balance,
			Currency:    "INR",
		},
		{TxnDate: "02/04/2024", ValueDate: strPtr("03/04/2024"), Description: "ATM", Debit: 20.5, Currency: "INR"},
		{TxnDate: "03/04/2024", Description: "=HYPERLINK(\"http://x\")", ReferenceNo: strPtr("@SUM(A1)"), Debit: 1, Currency: "INR"},
	}

	out, err := NewService(Options{}).ExportCSV(rows)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	if err != nil {
		t.Fatalf("exported csv does not parse: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("got %d records, want 4", len(records))
	}

	want := [][]string{
		{"01/04/2024", "", "NEFT IN FROM ABC", "1234567890", "0.00", "5000.00", "105000.00", "INR"},
		{"02/04/2024", "03/04/2024", "ATM", "", "20.50", "0.00", "", "INR"},
		{"03/04/2024", "", "'=HYPERLINK(\"http://x\")", "'@SUM(A1)", "1.00", "0.00", "", "INR"},
	}
	for i, w := range want {
		if !reflect.DeepEqual(records[i+1], w) {
			t.Errorf("record %d: got %q, want %q", i+1, records[i+1], w)
		}
	}
}
