package ml

import (
	"fmt"
	"math"

	"loadcast/pkg/frame"

	"gonum.org/v1/gonum/stat"
)

// MedianImputer replaces missing values with the per-column median learned
// during Fit.
type MedianImputer struct {
	Medians []float64 `json:"medians"`
}

// Fit learns one median per column. A column with no observed values is
// imputed with zero.
func (m *MedianImputer) Fit(x [][]float64) error {
	if len(x) == 0 {
		return fmt.Errorf("imputer: no rows to fit")
	}
	cols := len(x[0])
	m.Medians = make([]float64, cols)
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		med := frame.Median(col)
		if math.IsNaN(med) {
			med = 0
		}
		m.Medians[j] = med
	}
	return nil
}

// Transform returns a copy of x with missing values filled.
func (m *MedianImputer) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) && j < len(m.Medians) {
				v = m.Medians[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out
}

// StandardScaler centers each column and scales it to unit variance.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Fit learns column means and population standard deviations. Constant
// columns get a scale of one.
func (s *StandardScaler) Fit(x [][]float64) error {
	if len(x) == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}
	cols := len(x[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)
	col := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		sd := math.Sqrt(variance)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.Scale[j] = sd
	}
	return nil
}

// Transform returns a standardized copy of x.
func (s *StandardScaler) Transform(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = r
	}
	return out
}
