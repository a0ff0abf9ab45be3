// Package statement turns decoded statement exports into canonical transaction rows.
package statement

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"statement-service/internal/core/tabular"
	"statement-service/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCurrency is used when no statement currency is configured.
const DefaultCurrency = "INR"

// importNamespace seeds import ids so identical bytes always get the same id.
var importNamespace = uuid.MustParse("6f1c2b8e-3d4a-5e7f-9a0b-1c2d3e4f5a6b")

// Service defines the bank statement import operations.
type Service interface {
	Parse(file io.Reader, filename string) (*domain.ParseResult, error)
	Normalize(m tabular.Matrix) *domain.ParseResult
	ExportCSV(rows []domain.NormalizedRow) ([]byte, error)
}

// Options configures NewService. Zero values fall back to defaults.
type Options struct {
	Currency string
	Tables   *Tables
	Logger   *zap.Logger
}

type service struct {
	currency string
	tables   *Tables
	logger   *zap.Logger
}

// NewService creates a new statement import service.
func NewService(opts Options) Service {
	svc := &service{currency: opts.Currency, tables: opts.Tables, logger: opts.Logger}
	if svc.currency == "" {
		svc.currency = DefaultCurrency
	}
	if svc.tables == nil {
		svc.tables = DefaultTables()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	return svc
}

// Parse decodes an uploaded file and normalizes its first worksheet. Only a
// decode failure is an error; a file without a recognizable header returns an
// empty result carrying domain.NoValidRowsMessage.
func (svc *service) Parse(file io.Reader, filename string) (*domain.ParseResult, error) {
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement file: %w", err)
	}

	m, err := tabular.Decode(bytes.NewReader(data), filename)
	if err != nil {
		svc.logger.Warn("statement decode failed", zap.String("file", filename), zap.Error(err))
		return nil, err
	}

	result := svc.Normalize(m)
	result.ImportID = uuid.NewSHA1(importNamespace, data).String()
	result.FileName = filepath.Base(filename)

	svc.logger.Info("statement parsed",
		zap.String("file", result.FileName),
		zap.String("import_id", result.ImportID),
		zap.Int("matrix_rows", len(m)),
		zap.Int("header_row", result.HeaderRow),
		zap.Int("rows", result.RowCount),
		zap.Int("warnings", len(result.Warnings)),
	)
	return result, nil
}

// Normalize runs header location, field resolution and row normalization over
// an already decoded matrix.
func (svc *service) Normalize(m tabular.Matrix) *domain.ParseResult {
	result := &domain.ParseResult{
		HeaderRow: NoHeader,
		HeaderMap: domain.HeaderMap{},
		Rows:      []domain.NormalizedRow{},
		DebugRows: []domain.DebugRow{},
	}

	headerIdx := LocateHeader(m, svc.tables.Vocabulary)
	if headerIdx == NoHeader {
		svc.logger.Debug("header row not found", zap.Int("matrix_rows", len(m)))
		result.Message = domain.NoValidRowsMessage
		return result
	}

	layout := newHeaderLayout(m[headerIdx], svc.tables)
	result.HeaderRow = headerIdx
	result.Headers = layout.labels()
	result.HeaderMap = layout.headerMap()
	result.Suggestions = layout.suggestions(svc.tables)

	n := &normalizer{
		tables:   svc.tables,
		layout:   layout,
		currency: svc.currency,
		debug:    newCollector(debugRowLimit),
	}
	for i := headerIdx + 1; i < len(m); i++ {
		row, d, ok := n.normalizeRow(i+1, m[i])
		if !ok {
			continue
		}
		result.Rows = append(result.Rows, row)
		n.debug.observe(d)
	}

	result.RowCount = len(result.Rows)
	result.DebugRows = n.debug.snapshot()
	result.Warnings = n.warnings
	if result.RowCount == 0 {
		result.Message = domain.NoValidRowsMessage
	}

	svc.logger.Debug("statement normalized",
		zap.Int("header_row", headerIdx),
		zap.Strings("headers", result.Headers),
		zap.Int("rows", result.RowCount),
		zap.Int("dropped_without_data", n.dropped),
	)
	return result
}

// ---------------------- CSV export ----------------------

// formulaLeaders open a formula in spreadsheet tools.
const formulaLeaders = "=+-@"

// csvField puts a text value on one line with single spaces and prefixes a
// quote when it would otherwise be read as a formula.
func csvField(s string) string {
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}), " ")
	if s != "" && strings.IndexByte(formulaLeaders, s[0]) >= 0 {
		return "'" + s
	}
	return s
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptionalAmount(v *float64) string {
	if v == nil {
		return ""
	}
	return formatAmount(*v)
}

func derefText(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ExportCSV renders normalized rows for operators who review imports in a spreadsheet.
func (svc *service) ExportCSV(rows []domain.NormalizedRow) ([]byte, error) {
	var buffer bytes.Buffer
	writer := csv.NewWriter(&buffer)

	header := []string{"Txn Date", "Value Date", "Description", "Reference No", "Debit", "Credit", "Balance", "Currency"}
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, row := range rows {
		record := []string{
			csvField(row.TxnDate),
			csvField(derefText(row.ValueDate)),
			csvField(row.Description),
			csvField(derefText(row.ReferenceNo)),
			formatAmount(row.Debit),
			formatAmount(row.Credit),
			formatOptionalAmount(row.Balance),
			csvField(row.Currency),
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buffer.Bytes(), writer.Error()
}
