package statement

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"statement-service/internal/domain"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// fieldOrder is the claim order for the exact pass when building a HeaderMap.
// Indicator and combined amount come before debit/credit so a "Debit/Credit"
// indicator column is not taken for an amount column.
var fieldOrder = []domain.Field{
	domain.FieldTxnDate,
	domain.FieldValueDate,
	domain.FieldDescription,
	domain.FieldTransactionID,
	domain.FieldChequeNo,
	domain.FieldCrDr,
	domain.FieldTransactionAmount,
	domain.FieldDebit,
	domain.FieldCredit,
	domain.FieldBalance,
	domain.FieldAvailableBalance,
}

// looseOrder is the claim order for the containment pass. Debit and credit go
// first because "amount inr" is contained in "withdrawal amount inr".
var looseOrder = []domain.Field{
	domain.FieldTransactionID,
	domain.FieldChequeNo,
	domain.FieldDebit,
	domain.FieldCredit,
	domain.FieldTransactionAmount,
	domain.FieldBalance,
	domain.FieldAvailableBalance,
}

// sideTokens mark a header as one side of a debit/credit pair. The combined
// amount never takes such a column by containment.
var sideTokens = []string{"withdrawal", "deposit", "debit", "credit"}

// Tables holds the immutable header vocabulary and alias lists, all normalized.
type Tables struct {
	Vocabulary []string
	Aliases    map[domain.Field][]string
	Loose      map[domain.Field]bool
}

type tablesFile struct {
	Vocabulary  []string            `yaml:"vocabulary"`
	Fields      map[string][]string `yaml:"fields"`
	LooseFields []string            `yaml:"loose_fields"`
}

var defaultTables = mustLoadDefaultTables()

func mustLoadDefaultTables() *Tables {
	t, err := parseTables(defaultAliases)
	if err != nil {
		panic(fmt.Sprintf("embedded alias tables are invalid: %v", err))
	}
	return t
}

// DefaultTables returns the built-in tables.
func DefaultTables() *Tables {
	return defaultTables
}

// LoadTables reads a YAML alias document in the same shape as the embedded one.
func LoadTables(r io.Reader) (*Tables, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias tables: %w", err)
	}
	return parseTables(data)
}

// LoadTablesFile is LoadTables for a path on disk.
func LoadTablesFile(path string) (*Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open alias tables: %w", err)
	}
	defer f.Close()
	return LoadTables(f)
}

func parseTables(data []byte) (*Tables, error) {
	var doc tablesFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid alias tables: %w", err)
	}

	known := make(map[domain.Field]bool, len(fieldOrder))
	for _, f := range fieldOrder {
		known[f] = true
	}

	t := &Tables{
		Vocabulary: normalizeAll(doc.Vocabulary),
		Aliases:    make(map[domain.Field][]string, len(doc.Fields)),
		Loose:      make(map[domain.Field]bool, len(doc.LooseFields)),
	}
	if len(t.Vocabulary) < minHeaderMatches {
		return nil, fmt.Errorf("vocabulary needs at least %d entries", minHeaderMatches)
	}
	for name, aliases := range doc.Fields {
		field := domain.Field(name)
		if !known[field] {
			return nil, fmt.Errorf("unknown field %q", name)
		}
		t.Aliases[field] = normalizeAll(aliases)
	}
	for _, name := range doc.LooseFields {
		field := domain.Field(name)
		if !known[field] {
			return nil, fmt.Errorf("unknown loose field %q", name)
		}
		if field == domain.FieldTxnDate || field == domain.FieldValueDate {
			return nil, fmt.Errorf("date field %q cannot use loose matching", name)
		}
		t.Loose[field] = true
	}
	return t, nil
}

// ---------------------- normalization ----------------------

var nonAlphanumericRegex = regexp.MustCompile(`[^a-z0-9]+`)

// normalizeKey folds accents, lower-cases and drops everything but [a-z0-9].
func normalizeKey(str string) string {
	t := transform.Chain(norm.NFD, transform.RemoveFunc(func(r rune) bool {
		return unicode.Is(unicode.Mn, r)
	}))
	result, _, _ := transform.String(t, str)
	result = strings.ToLower(result)
	return nonAlphanumericRegex.ReplaceAllString(result, "")
}

// normalizeAll normalizes and de-duplicates, keeping first occurrence order.
func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		k := normalizeKey(s)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
