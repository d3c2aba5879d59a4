package ml

import (
	"fmt"
	"math"
	"math/rand"

	"loadcast/pkg/apperr"
)

// Split settings shared by training and evaluation.
const (
	TestFraction = 0.2
	SplitSeed    = 42
)

// TrainTestSplit partitions row indices 0..n-1. The test partition holds
// ceil(n*testFraction) rows taken from the front of a permutation seeded with
// seed; the train partition holds the rest. The function is pure, so separate
// stages that call it with the same arguments get identical partitions.
func TrainTestSplit(n int, testFraction float64, seed int64) (train, test []int, err error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction %v out of range (0, 1)", testFraction)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	nTrain := n - nTest
	if n < 2 || nTest < 1 || nTrain < 1 {
		return nil, nil, fmt.Errorf("%w: %d rows", apperr.ErrInsufficientSamples, n)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	test = append([]int(nil), perm[:nTest]...)
	train = append([]int(nil), perm[nTest:]...)
	return train, test, nil
}
