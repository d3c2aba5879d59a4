// Package training fits the candidate models on a reproducible split,
// evaluates them on the held-out rows and persists the winner.
package training

import (
	"context"
	"fmt"

	"loadcast/pkg/apperr"
	"loadcast/pkg/dataset"
	"loadcast/pkg/logger"
	"loadcast/pkg/ml"
)

// Split returns the train and test partitions of ds. Train and
// EvaluateAndSelect both call it, so the partitions never overlap and need not
// be stored.
func Split(ds *dataset.Dataset) (train, test []int, err error) {
	return ml.TrainTestSplit(ds.Len(), ml.TestFraction, ml.SplitSeed)
}

// Train fits every candidate on the training partition of ds.
func Train(ctx context.Context, candidates ml.Candidates, ds *dataset.Dataset) (ml.Candidates, error) {
	if len(candidates) == 0 {
		return nil, apperr.ErrNoCandidates
	}
	train, _, err := Split(ds)
	if err != nil {
		return nil, err
	}
	x, y := ds.Subset(train)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.InfoCtx(ctx, "training %s on %d rows", c.Name, len(y))
		if err := c.Fit(ctx, x, y); err != nil {
			return nil, fmt.Errorf("failed to train %s: %w", c.Name, err)
		}
	}
	return candidates, nil
}
