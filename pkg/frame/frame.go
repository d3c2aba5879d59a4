// Package frame holds the loosely typed tabular data that moves between
// pipeline stages: raw CSV rows, engineered features and inference input.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Record is one row keyed by column name.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of columns and the rows that carry them.
type Table struct {
	Columns []string
	Rows    []Record
}

// NewTable builds a table from records, deriving the column list from the
// first appearance of every key. Keys are sorted within each record so the
// result does not depend on map iteration order.
func NewTable(rows []Record) Table {
	seen := make(map[string]bool)
	cols := make([]string, 0)
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	return Table{Columns: cols, Rows: rows}
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// Has reports whether the column is part of the table.
func (t Table) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// FirstOf returns the first of the candidate column names present in the table.
func (t Table) FirstOf(candidates ...string) (string, bool) {
	for _, c := range candidates {
		if t.Has(c) {
			return c, true
		}
	}
	return "", false
}

// Missing lists the requested columns absent from the table, in request order.
func (t Table) Missing(cols ...string) []string {
	var missing []string
	for _, c := range cols {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Float coerces a cell to float64. Numbers, numeric strings and booleans are
// converted; anything else becomes NaN.
func Float(v any) float64 {
	switch x := v.(type) {
	case nil:
		return math.NaN()
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case uint32:
		return float64(x)
	case bool:
		if x {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	case interface{ Float64() (float64, error) }:
		f, err := x.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

// String renders a cell as text; nil becomes the empty string.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}

// Nullable maps NaN and ±Inf to nil so a value survives JSON encoding.
func Nullable(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

