package training

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"loadcast/pkg/apperr"
	"loadcast/pkg/dataset"
	"loadcast/pkg/logger"
	"loadcast/pkg/ml"

	"go.uber.org/zap"
)

// sampleRows is the number of held-out rows logged as prediction examples.
const sampleRows = 5

// ArtifactWriter persists the winning model and the training report.
type ArtifactWriter interface {
	SaveModel(name string, at time.Time, model *ml.Pipeline) (string, error)
	SaveReport(at time.Time, report string) (string, error)
}

// EvaluationResult holds one candidate's held-out metrics.
type EvaluationResult struct {
	Name              string  `json:"name"`
	MeanAbsoluteError float64 `json:"mean_absolute_error"`
	RSquared          float64 `json:"r_squared"`
}

// SelectedModel is the published outcome of a training run.
type SelectedModel struct {
	Name       string             `json:"name"`
	Model      *ml.Pipeline       `json:"-"`
	Server     string             `json:"server"`
	Dropped    int                `json:"dropped"`
	Results    []EvaluationResult `json:"results"`
	TrainedAt  time.Time          `json:"trained_at"`
	ModelPath  string             `json:"model_path"`
	ReportPath string             `json:"report_path"`
}

// Evaluator scores trained candidates and persists the best one.
type Evaluator struct {
	store ArtifactWriter
	now   func() time.Time
}

// NewEvaluator creates an evaluator writing through store.
func NewEvaluator(store ArtifactWriter) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// WithClock overrides the clock used to timestamp artifacts.
func (e *Evaluator) WithClock(now func() time.Time) *Evaluator {
	e.now = now
	return e
}

// Evaluate scores every trained candidate on the test partition of ds.
func Evaluate(ctx context.Context, trained ml.Candidates, ds *dataset.Dataset) ([]EvaluationResult, error) {
	if len(trained) == 0 {
		return nil, apperr.ErrNoCandidates
	}
	_, test, err := Split(ds)
	if err != nil {
		return nil, err
	}
	x, y := ds.Subset(test)

	results := make([]EvaluationResult, 0, len(trained))
	for _, c := range trained {
		pred, err := c.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s: %w", c.Name, err)
		}
		res := EvaluationResult{
			Name:              c.Name,
			MeanAbsoluteError: ml.MeanAbsoluteError(y, pred),
			RSquared:          ml.RSquared(y, pred),
		}
		logger.InfoCtx(ctx, "%s -> MAE: %.2f | R²: %.4f", res.Name, res.MeanAbsoluteError, res.RSquared)
		results = append(results, res)
	}
	return results, nil
}

// SelectBest returns the result with the highest R². Ties go to the lower MAE,
// then to the lexicographically smaller name. NaN scores rank last.
func SelectBest(results []EvaluationResult) (EvaluationResult, error) {
	if len(results) == 0 {
		return EvaluationResult{}, apperr.ErrNoCandidates
	}
	ranked := append([]EvaluationResult(nil), results...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		ar, br := orNegInf(a.RSquared), orNegInf(b.RSquared)
		if ar != br {
			return ar > br
		}
		am, bm := orPosInf(a.MeanAbsoluteError), orPosInf(b.MeanAbsoluteError)
		if am != bm {
			return am < bm
		}
		return a.Name < b.Name
	})
	return ranked[0], nil
}

// EvaluateAndSelect regenerates the training split, scores every candidate,
// picks the winner and persists it together with a text report. Persistence
// failures are returned as *apperr.PersistenceError.
func (e *Evaluator) EvaluateAndSelect(ctx context.Context, trained ml.Candidates, ds *dataset.Dataset) (*SelectedModel, error) {
	results, err := Evaluate(ctx, trained, ds)
	if err != nil {
		return nil, err
	}
	best, err := SelectBest(results)
	if err != nil {
		return nil, err
	}
	winner := trained.Get(best.Name)

	at := e.now()
	modelPath, err := e.store.SaveModel(best.Name, at, winner)
	if err != nil {
		return nil, err
	}

	selected := &SelectedModel{
		Name:      best.Name,
		Model:     winner,
		Server:    ds.Provenance.Server,
		Dropped:   ds.Dropped,
		Results:   results,
		TrainedAt: at,
		ModelPath: modelPath,
	}
	reportPath, err := e.store.SaveReport(at, FormatReport(selected))
	if err != nil {
		return nil, err
	}
	selected.ReportPath = reportPath

	logger.Info("model selected",
		zap.String("model", best.Name),
		zap.String("server", selected.Server),
		zap.Float64("r2", best.RSquared),
		zap.Float64("mae", best.MeanAbsoluteError),
		zap.String("model_path", modelPath),
		zap.String("report_path", reportPath),
	)
	logExamples(ctx, winner, ds)
	return selected, nil
}

// FormatReport renders the human-readable training report.
func FormatReport(s *SelectedModel) string {
	var b strings.Builder
	b.WriteString("REGRESSION TRAINING - player count forecast by time of day\n")
	fmt.Fprintf(&b, "Server: %s\n", s.Server)
	fmt.Fprintf(&b, "Rows dropped (missing target): %d\n", s.Dropped)
	b.WriteString("\nTest metrics:\n")
	for _, r := range s.Results {
		fmt.Fprintf(&b, "%s: MAE=%.2f | R2=%.4f\n", r.Name, r.MeanAbsoluteError, r.RSquared)
	}
	fmt.Fprintf(&b, "\nBest model: %s\nSaved at: %s\n", s.Name, s.ModelPath)
	return b.String()
}

func logExamples(ctx context.Context, model *ml.Pipeline, ds *dataset.Dataset) {
	_, test, err := Split(ds)
	if err != nil {
		return
	}
	if len(test) > sampleRows {
		test = test[:sampleRows]
	}
	x, y := ds.Subset(test)
	pred, err := model.Predict(x)
	if err != nil {
		return
	}
	logger.InfoCtx(ctx, "prediction examples (first %d test rows):", len(test))
	for i := range pred {
		logger.InfoCtx(ctx, "%02d) actual=%.0f | predicted=%.0f", i+1, y[i], pred[i])
	}
}

func orNegInf(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(-1)
	}
	return v
}

func orPosInf(v float64) float64 {
	if math.IsNaN(v) {
		return math.Inf(1)
	}
	return v
}
