package statement

import "statement-service/internal/domain"

// debugRowLimit bounds the snapshot regardless of file size.
const debugRowLimit = 5

type collector struct {
	limit int
	rows  []domain.DebugRow
}

func newCollector(limit int) *collector {
	return &collector{limit: limit, rows: make([]domain.DebugRow, 0, limit)}
}

func (c *collector) observe(d derivation) {
	if len(c.rows) >= c.limit {
		return
	}
	c.rows = append(c.rows, domain.DebugRow{
		Keys:      d.keys,
		Indicator: d.indicator,
		Amount:    d.amount,
		Balance:   d.balance,
		Reference: d.reference,
	})
}

func (c *collector) snapshot() []domain.DebugRow {
	return c.rows
}
