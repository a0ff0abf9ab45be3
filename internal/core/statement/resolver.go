package statement

import (
	"fmt"
	"strings"

	"statement-service/internal/core/tabular"
	"statement-service/internal/domain"

	"github.com/schollz/closestmatch"
	"github.com/xuri/excelize/v2"
)

// minLooseKeyLen keeps tiny headers such as "Dr" from matching inside longer aliases.
const minLooseKeyLen = 4

// Lookup is a row keyed by normalized header text. Keys are in column order.
type Lookup interface {
	Keys() []string
	Get(key string) (tabular.Cell, bool)
}

// ResolveField returns the value of the first alias that is present on the row
// and not blank. Unresolved fields yield a blank cell.
func ResolveField(row Lookup, aliases []string) tabular.Cell {
	for _, alias := range aliases {
		if v, ok := row.Get(alias); ok && !v.IsBlank() {
			return v
		}
	}
	return tabular.Cell{}
}

// ResolveFieldLoose retries with containment in either direction, so
// "Available Balance(INR)" answers to "available balance".
func ResolveFieldLoose(row Lookup, aliases []string) tabular.Cell {
	keys := row.Keys()
	for _, alias := range aliases {
		for _, key := range keys {
			if !looseMatch(key, alias) {
				continue
			}
			if v, ok := row.Get(key); ok && !v.IsBlank() {
				return v
			}
		}
	}
	return tabular.Cell{}
}

func looseMatch(key, alias string) bool {
	if key == "" || alias == "" {
		return false
	}
	if strings.Contains(key, alias) {
		return true
	}
	return len(key) >= minLooseKeyLen && strings.Contains(alias, key)
}

func hasSideToken(key string) bool {
	for _, token := range sideTokens {
		if strings.Contains(key, token) {
			return true
		}
	}
	return false
}

// ---------------------- header layout ----------------------

type column struct {
	index int
	key   string
	label string
}

type headerLayout struct {
	columns []column
	byKey   map[string]int
	keys    []string
	claims  map[domain.Field]int
	owner   map[int]domain.Field
}

// BuildHeaderMap resolves every canonical field against a header row.
func BuildHeaderMap(header []tabular.Cell, tables *Tables) domain.HeaderMap {
	return newHeaderLayout(header, tables).headerMap()
}

func newHeaderLayout(header []tabular.Cell, tables *Tables) *headerLayout {
	l := &headerLayout{
		columns: make([]column, 0, len(header)),
		byKey:   make(map[string]int, len(header)),
		claims:  make(map[domain.Field]int),
		owner:   make(map[int]domain.Field),
	}

	labels := make(map[string]int, len(header))
	for i, c := range header {
		label := strings.TrimSpace(c.String())
		if label == "" {
			label = "column_" + columnLetter(i)
		}
		if n := labels[label]; n > 0 {
			labels[label] = n + 1
			label = fmt.Sprintf("%s_%d", label, n)
		} else {
			labels[label] = 1
		}

		col := column{index: i, key: normalizeKey(c.String()), label: label}
		l.columns = append(l.columns, col)
		if col.key == "" {
			continue
		}
		if _, dup := l.byKey[col.key]; dup {
			continue
		}
		l.byKey[col.key] = len(l.columns) - 1
		l.keys = append(l.keys, col.key)
	}

	l.claimColumns(tables)
	return l
}

// claimColumns runs an exact pass over all fields before any loose matching so a
// generic alias cannot take a column another field names exactly.
func (l *headerLayout) claimColumns(tables *Tables) {
	claim := func(field domain.Field, idx int) bool {
		if _, taken := l.owner[idx]; taken {
			return false
		}
		l.claims[field] = idx
		l.owner[idx] = field
		return true
	}

	for _, field := range fieldOrder {
		for _, alias := range tables.Aliases[field] {
			if pos, ok := l.byKey[alias]; ok && claim(field, l.columns[pos].index) {
				break
			}
		}
	}

	for _, field := range looseOrder {
		if _, done := l.claims[field]; done || !tables.Loose[field] {
			continue
		}
	aliases:
		for _, alias := range tables.Aliases[field] {
			for _, key := range l.keys {
				if field == domain.FieldTransactionAmount && hasSideToken(key) {
					continue
				}
				if looseMatch(key, alias) && claim(field, l.columns[l.byKey[key]].index) {
					break aliases
				}
			}
		}
	}
}

// headerMap reports the claims, naming the winning reference column reference_no.
func (l *headerLayout) headerMap() domain.HeaderMap {
	hm := make(domain.HeaderMap, len(l.claims))
	for field, idx := range l.claims {
		hm[field] = idx
	}
	if idx, ok := hm[domain.FieldTransactionID]; ok {
		delete(hm, domain.FieldTransactionID)
		hm[domain.FieldReferenceNo] = idx
	} else if idx, ok := hm[domain.FieldChequeNo]; ok {
		delete(hm, domain.FieldChequeNo)
		hm[domain.FieldReferenceNo] = idx
	}
	return hm
}

func (l *headerLayout) labels() []string {
	out := make([]string, len(l.columns))
	for i, c := range l.columns {
		out[i] = c.label
	}
	return out
}

// suggestions names the closest unclaimed header for core fields that did not
// resolve. Hints only; they never feed the normalizer.
func (l *headerLayout) suggestions(tables *Tables) map[domain.Field]string {
	var free []string
	labelByKey := make(map[string]string)
	for _, c := range l.columns {
		if _, taken := l.owner[c.index]; taken || c.key == "" {
			continue
		}
		if _, seen := labelByKey[c.key]; seen {
			continue
		}
		free = append(free, c.key)
		labelByKey[c.key] = c.label
	}
	if len(free) == 0 {
		return nil
	}

	wanted := []domain.Field{domain.FieldTxnDate, domain.FieldDescription, domain.FieldBalance}
	_, hasAmount := l.claims[domain.FieldTransactionAmount]
	_, hasDebit := l.claims[domain.FieldDebit]
	_, hasCredit := l.claims[domain.FieldCredit]
	if !hasAmount && !hasDebit && !hasCredit {
		wanted = append(wanted, domain.FieldDebit, domain.FieldCredit)
	}

	cm := closestmatch.New(free, []int{2, 3})
	out := make(map[domain.Field]string)
	for _, field := range wanted {
		if _, ok := l.claims[field]; ok {
			continue
		}
		aliases := tables.Aliases[field]
		if len(aliases) == 0 {
			continue
		}
		if match := cm.Closest(aliases[0]); match != "" {
			out[field] = labelByKey[match]
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func columnLetter(i int) string {
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return fmt.Sprint(i + 1)
	}
	return name
}

// ---------------------- row view ----------------------

// rowView exposes one data row through its header layout. Columns in hidden
// are invisible to lookups.
type rowView struct {
	layout *headerLayout
	cells  []tabular.Cell
	hidden map[int]bool
}

func (r rowView) Keys() []string {
	if len(r.hidden) == 0 {
		return r.layout.keys
	}
	keys := make([]string, 0, len(r.layout.keys))
	for _, k := range r.layout.keys {
		if !r.hidden[r.layout.columns[r.layout.byKey[k]].index] {
			keys = append(keys, k)
		}
	}
	return keys
}

func (r rowView) Get(key string) (tabular.Cell, bool) {
	pos, ok := r.layout.byKey[key]
	if !ok {
		return tabular.Cell{}, false
	}
	idx := r.layout.columns[pos].index
	if r.hidden[idx] {
		return tabular.Cell{}, false
	}
	if idx >= len(r.cells) {
		return tabular.Cell{}, true
	}
	return r.cells[idx], true
}

// exceptOthers hides the columns claimed by fields other than field.
func (r rowView) exceptOthers(field domain.Field) rowView {
	hidden := make(map[int]bool, len(r.layout.owner))
	for idx, owner := range r.layout.owner {
		if owner != field {
			hidden[idx] = true
		}
	}
	return rowView{layout: r.layout, cells: r.cells, hidden: hidden}
}

// exceptSided additionally hides unclaimed debit or credit looking columns.
func (r rowView) exceptSided() rowView {
	hidden := make(map[int]bool, len(r.hidden))
	for idx := range r.hidden {
		hidden[idx] = true
	}
	for _, c := range r.layout.columns {
		if _, claimed := r.layout.owner[c.index]; !claimed && hasSideToken(c.key) {
			hidden[c.index] = true
		}
	}
	return rowView{layout: r.layout, cells: r.cells, hidden: hidden}
}

func (r rowView) allBlank() bool {
	for _, c := range r.layout.columns {
		if c.index < len(r.cells) && !r.cells[c.index].IsBlank() {
			return false
		}
	}
	return true
}
