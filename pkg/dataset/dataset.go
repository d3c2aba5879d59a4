// Package dataset selects the single server that feeds model training and
// turns its feature rows into a clean numeric design matrix.
package dataset

import (
	"fmt"
	"math"
	"sort"

	"loadcast/pkg/apperr"
	"loadcast/pkg/features"
	"loadcast/pkg/frame"
)

// Winsorization percentiles for the percent-variation feature.
const (
	LowerClipPercentile = 1.0
	UpperClipPercentile = 99.0
)

// Provenance records where a dataset came from.
type Provenance struct {
	Server    string
	Rows      int
	ClipLower float64
	ClipUpper float64
}

// Dataset is the modeling input for one server: X holds the five modeling
// features per row (NaN marks a missing value), Y the player counts.
type Dataset struct {
	Columns    []string
	X          [][]float64
	Y          []float64
	Dropped    int
	Provenance Provenance
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Y)
}

// Subset returns the rows at idx, in idx order.
func (d *Dataset) Subset(idx []int) ([][]float64, []float64) {
	x := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for k, i := range idx {
		x[k] = d.X[i]
		y[k] = d.Y[i]
	}
	return x, y
}

// SelectServer returns the server with the most rows. Ties go to the
// lexicographically smallest id. Rows without an id are not counted; the
// result is empty when no row has one.
func SelectServer(t frame.Table, serverCol string) string {
	counts := make(map[string]int)
	for _, row := range t.Rows {
		if id := frame.String(row[serverCol]); id != "" {
			counts[id]++
		}
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, bestCount := "", -1
	for _, id := range ids {
		if counts[id] > bestCount {
			best, bestCount = id, counts[id]
		}
	}
	return best
}

// SelectAndClean picks the most represented server and returns its modeling
// features and target, with non-numeric and infinite values treated as
// missing, the percent-variation feature winsorized to its in-sample
// [p1, p99] range and rows with a missing target dropped.
func SelectAndClean(t frame.Table) (*Dataset, error) {
	if t.Len() == 0 {
		return nil, apperr.ErrEmptyInput
	}
	serverCol, ok := t.FirstOf(features.ColServer, features.ColServerAlias)
	if !ok {
		return nil, apperr.NewSchemaError([]string{features.ColServer})
	}

	required := append(append([]string{}, features.ModelColumns...), features.TargetColumn)
	if err := apperr.NewSchemaError(t.Missing(required...)); err != nil {
		return nil, err
	}

	server := SelectServer(t, serverCol)
	if server == "" {
		return nil, fmt.Errorf("%w: no row carries a server id", apperr.ErrEmptyInput)
	}

	pctIdx := columnIndex(features.ModelColumns, features.ColPctChange)
	var x [][]float64
	var y []float64
	for _, row := range t.Rows {
		if frame.String(row[serverCol]) != server {
			continue
		}
		vals := make([]float64, len(features.ModelColumns))
		for j, col := range features.ModelColumns {
			vals[j] = finite(frame.Float(row[col]))
		}
		x = append(x, vals)
		y = append(y, finite(frame.Float(row[features.TargetColumn])))
	}
	selected := len(y)

	lower, upper := winsorize(x, pctIdx)

	cleanX := make([][]float64, 0, len(x))
	cleanY := make([]float64, 0, len(y))
	for i := range y {
		if math.IsNaN(y[i]) {
			continue
		}
		cleanX = append(cleanX, x[i])
		cleanY = append(cleanY, y[i])
	}

	cols := make([]string, len(features.ModelColumns))
	copy(cols, features.ModelColumns)
	return &Dataset{
		Columns: cols,
		X:       cleanX,
		Y:       cleanY,
		Dropped: selected - len(cleanY),
		Provenance: Provenance{
			Server:    server,
			Rows:      len(cleanY),
			ClipLower: lower,
			ClipUpper: upper,
		},
	}, nil
}

// winsorize clips column j to its own [p1, p99] range, ignoring missing
// values. It returns the bounds, NaN when the column is entirely missing.
func winsorize(x [][]float64, j int) (float64, float64) {
	col := make([]float64, len(x))
	for i := range x {
		col[i] = x[i][j]
	}
	lower := frame.Percentile(col, LowerClipPercentile)
	upper := frame.Percentile(col, UpperClipPercentile)
	if math.IsNaN(lower) || math.IsNaN(upper) {
		return lower, upper
	}
	for i := range x {
		v := x[i][j]
		if math.IsNaN(v) {
			continue
		}
		x[i][j] = math.Min(math.Max(v, lower), upper)
	}
	return lower, upper
}

func finite(v float64) float64 {
	if math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}

func columnIndex(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
