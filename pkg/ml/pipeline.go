// Package ml implements the candidate regressors compared by the training
// pipeline, with the preprocessing each one carries, the deterministic
// train/test split and the evaluation metrics.
package ml

import (
	"context"
	"encoding/json"
	"fmt"
)

// Candidate names.
const (
	LinearRegressionName = "LinearRegression"
	RandomForestName     = "RandomForest"
)

// Forest settings.
const (
	ForestTrees = 200
	ForestSeed  = 42
)

// Estimator is a regressor over a dense, fully observed design matrix.
type Estimator interface {
	Kind() string
	Fit(ctx context.Context, x [][]float64, y []float64) error
	Predict(x [][]float64) []float64
}

// Pipeline chains median imputation, optional standardization and an
// estimator.
type Pipeline struct {
	Name      string
	Imputer   *MedianImputer
	Scaler    *StandardScaler
	Estimator Estimator

	width  int
	fitted bool
}

// Fitted reports whether Fit has completed.
func (p *Pipeline) Fitted() bool {
	return p.fitted
}

// Fit runs every step on x in order.
func (p *Pipeline) Fit(ctx context.Context, x [][]float64, y []float64) error {
	if len(x) == 0 {
		return fmt.Errorf("%s: no rows to fit", p.Name)
	}
	if err := p.Imputer.Fit(x); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	xt := p.Imputer.Transform(x)
	if p.Scaler != nil {
		if err := p.Scaler.Fit(xt); err != nil {
			return fmt.Errorf("%s: %w", p.Name, err)
		}
		xt = p.Scaler.Transform(xt)
	}
	if err := p.Estimator.Fit(ctx, xt, y); err != nil {
		return fmt.Errorf("%s: %w", p.Name, err)
	}
	p.width = len(x[0])
	p.fitted = true
	return nil
}

// Predict transforms x with the fitted steps and returns one prediction per row.
func (p *Pipeline) Predict(x [][]float64) ([]float64, error) {
	if !p.fitted {
		return nil, fmt.Errorf("%s: model is not fitted", p.Name)
	}
	for i, row := range x {
		if len(row) != p.width {
			return nil, fmt.Errorf("%s: row %d has %d features, want %d", p.Name, i, len(row), p.width)
		}
	}
	xt := p.Imputer.Transform(x)
	if p.Scaler != nil {
		xt = p.Scaler.Transform(xt)
	}
	return p.Estimator.Predict(xt), nil
}

type pipelineJSON struct {
	Name    string            `json:"name"`
	Kind    string            `json:"kind"`
	Width   int               `json:"width"`
	Imputer *MedianImputer    `json:"imputer"`
	Scaler  *StandardScaler   `json:"scaler,omitempty"`
	Linear  *LinearRegression `json:"linear,omitempty"`
	Forest  *RandomForest     `json:"forest,omitempty"`
}

// MarshalJSON encodes a fitted pipeline.
func (p *Pipeline) MarshalJSON() ([]byte, error) {
	if !p.fitted {
		return nil, fmt.Errorf("%s: refusing to encode an unfitted model", p.Name)
	}
	out := pipelineJSON{
		Name:    p.Name,
		Kind:    p.Estimator.Kind(),
		Width:   p.width,
		Imputer: p.Imputer,
		Scaler:  p.Scaler,
	}
	switch est := p.Estimator.(type) {
	case *LinearRegression:
		out.Linear = est
	case *RandomForest:
		out.Forest = est
	default:
		return nil, fmt.Errorf("%s: unknown estimator kind %q", p.Name, est.Kind())
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a fitted pipeline.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var in pipelineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Imputer == nil {
		return fmt.Errorf("model %q has no imputer", in.Name)
	}
	switch in.Kind {
	case KindLinear:
		if in.Linear == nil || in.Scaler == nil {
			return fmt.Errorf("model %q: incomplete linear regression", in.Name)
		}
		p.Estimator = in.Linear
	case KindForest:
		if in.Forest == nil || len(in.Forest.Trees) == 0 {
			return fmt.Errorf("model %q: incomplete random forest", in.Name)
		}
		p.Estimator = in.Forest
	default:
		return fmt.Errorf("model %q: unknown estimator kind %q", in.Name, in.Kind)
	}
	p.Name = in.Name
	p.Imputer = in.Imputer
	p.Scaler = in.Scaler
	p.width = in.Width
	p.fitted = true
	return nil
}

// Candidates is an ordered set of named pipelines.
type Candidates []*Pipeline

// Get returns the pipeline with the given name, or nil.
func (c Candidates) Get(name string) *Pipeline {
	for _, p := range c {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Names lists the pipeline names in order.
func (c Candidates) Names() []string {
	names := make([]string, len(c))
	for i, p := range c {
		names[i] = p.Name
	}
	return names
}

// NewCandidates returns the two untrained candidates.
func NewCandidates() Candidates {
	return Candidates{
		{
			Name:      LinearRegressionName,
			Imputer:   &MedianImputer{},
			Scaler:    &StandardScaler{},
			Estimator: &LinearRegression{},
		},
		{
			Name:      RandomForestName,
			Imputer:   &MedianImputer{},
			Estimator: &RandomForest{NTrees: ForestTrees, Seed: ForestSeed},
		},
	}
}
