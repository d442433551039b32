package harvest

import "github.com/IshaanNene/ReviewGoat/internal/types"

// Table is an append-only, order-preserving collection of records.
type Table struct {
	records []types.ReviewRecord
}

// NewTable creates an empty table.
func NewTable() *Table { return &Table{} }

// Append adds records after those already present.
func (t *Table) Append(recs ...types.ReviewRecord) {
	t.records = append(t.records, recs...)
}

// Len returns the number of records.
func (t *Table) Len() int { return len(t.records) }

// Records returns a copy of the records in insertion order.
func (t *Table) Records() []types.ReviewRecord {
	return append([]types.ReviewRecord(nil), t.records...)
}

// Rows returns the table as string rows with 1-based indices.
func (t *Table) Rows() [][]string {
	rows := make([][]string, len(t.records))
	for i, rec := range t.records {
		rows[i] = rec.Row(i + 1)
	}
	return rows
}
