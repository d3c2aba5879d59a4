package ml

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// KindLinear identifies ordinary least squares estimators in artifacts.
const KindLinear = "linear_regression"

// LinearRegression is ordinary least squares with an intercept. The design is
// centered and solved with an SVD, so rank-deficient inputs get the
// minimum-norm solution.
type LinearRegression struct {
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (l *LinearRegression) Kind() string { return KindLinear }

// Fit solves for the coefficients.
func (l *LinearRegression) Fit(_ context.Context, x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return fmt.Errorf("linear regression: %d rows for %d targets", n, len(y))
	}
	p := len(x[0])

	xMean := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := range x {
			col[i] = x[i][j]
		}
		xMean[j] = stat.Mean(col, nil)
	}
	yMean := stat.Mean(y, nil)

	a := mat.NewDense(n, p, nil)
	b := mat.NewVecDense(n, nil)
	for i := range x {
		for j := 0; j < p; j++ {
			a.Set(i, j, x[i][j]-xMean[j])
		}
		b.SetVec(i, y[i]-yMean)
	}

	coef := make([]float64, p)
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return fmt.Errorf("linear regression: SVD factorization failed")
	}
	rank := svd.Rank(rcond(n, p))
	if rank > 0 {
		var sol mat.VecDense
		svd.SolveVecTo(&sol, b, rank)
		for j := 0; j < p; j++ {
			coef[j] = sol.AtVec(j)
		}
	}

	l.Coef = coef
	l.Intercept = yMean - floats.Dot(coef, xMean)
	return nil
}

// Predict returns one prediction per row.
func (l *LinearRegression) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = l.Intercept + floats.Dot(l.Coef, row)
	}
	return out
}

// rcond mirrors the LAPACK least-squares default cutoff.
func rcond(n, p int) float64 {
	m := n
	if p > m {
		m = p
	}
	return float64(m) * 2.220446049250313e-16
}
