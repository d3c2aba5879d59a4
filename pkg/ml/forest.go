package ml

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// KindForest identifies random forest estimators in artifacts.
const KindForest = "random_forest"

// RandomForest averages bootstrap-trained regression trees. Each tree gets its
// own seed drawn in order from Seed, so the fitted forest does not depend on
// how the trees are scheduled across workers.
type RandomForest struct {
	NTrees  int               `json:"n_trees"`
	Seed    int64             `json:"seed"`
	Workers int               `json:"-"` // <= 0 uses every CPU
	Trees   []*RegressionTree `json:"trees"`
}

func (f *RandomForest) Kind() string { return KindForest }

// Fit grows NTrees trees in parallel.
func (f *RandomForest) Fit(ctx context.Context, x [][]float64, y []float64) error {
	n := len(x)
	if n == 0 || n != len(y) {
		return fmt.Errorf("random forest: %d rows for %d targets", n, len(y))
	}
	if f.NTrees <= 0 {
		return fmt.Errorf("random forest: invalid tree count %d", f.NTrees)
	}

	master := rand.New(rand.NewSource(f.Seed))
	seeds := make([]int64, f.NTrees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	workers := f.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	trees := make([]*RegressionTree, f.NTrees)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range trees {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seeds[i]))
			sample := make([]int, n)
			for k := range sample {
				sample[k] = rng.Intn(n)
			}
			trees[i] = growTree(x, y, sample, rng)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("random forest: %w", err)
	}

	f.Trees = trees
	return nil
}

// Predict averages the trees' predictions.
func (f *RandomForest) Predict(x [][]float64) []float64 {
	out := make([]float64, len(x))
	if len(f.Trees) == 0 {
		return out
	}
	for i, row := range x {
		sum := 0.0
		for _, t := range f.Trees {
			sum += t.Predict(row)
		}
		out[i] = sum / float64(len(f.Trees))
	}
	return out
}
