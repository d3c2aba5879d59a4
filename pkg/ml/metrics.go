package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// MeanAbsoluteError returns the mean of |y - pred|.
func MeanAbsoluteError(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := range y {
		sum += math.Abs(y[i] - pred[i])
	}
	return sum / float64(len(y))
}

// RSquared returns the coefficient of determination. When the target is
// constant the score is 1 for a perfect prediction and 0 otherwise.
func RSquared(y, pred []float64) float64 {
	if len(y) == 0 {
		return math.NaN()
	}
	mean := stat.Mean(y, nil)
	var ssRes, ssTot float64
	for i := range y {
		r := y[i] - pred[i]
		ssRes += r * r
		d := y[i] - mean
		ssTot += d * d
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
