package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"loadcast/pkg/apperr"
	"loadcast/pkg/artifact"
	"loadcast/pkg/dataset"
	"loadcast/pkg/features"
	"loadcast/pkg/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearDataset(n int) *dataset.Dataset {
	rng := rand.New(rand.NewSource(7))
	ds := &dataset.Dataset{Provenance: dataset.Provenance{Server: "mc.example.net"}, Dropped: 2}
	for i := 0; i < n; i++ {
		row := []float64{float64(i % 24), float64(i % 2), rng.Float64() * 500, rng.Float64(), rng.Float64()*40 - 20}
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, 100*row[0]+2*row[2]+50)
	}
	return ds
}

func smallCandidates() ml.Candidates {
	c := ml.NewCandidates()
	c.Get(ml.RandomForestName).Estimator.(*ml.RandomForest).NTrees = 10
	return c
}

type memoryWriter struct {
	models  map[string]*ml.Pipeline
	reports []string
	failOn  string
}

func (w *memoryWriter) SaveModel(name string, at time.Time, model *ml.Pipeline) (string, error) {
	path := name + "_" + at.Format(artifact.TimestampLayout) + ".json"
	if w.failOn == "model" {
		return "", &apperr.PersistenceError{Path: path, Err: errors.New("disk full")}
	}
	if w.models == nil {
		w.models = make(map[string]*ml.Pipeline)
	}
	w.models[path] = model
	return path, nil
}

func (w *memoryWriter) SaveReport(at time.Time, report string) (string, error) {
	if w.failOn == "report" {
		return "", &apperr.PersistenceError{Path: "report", Err: errors.New("disk full")}
	}
	w.reports = append(w.reports, report)
	return "report_" + at.Format(artifact.TimestampLayout) + ".txt", nil
}

func TestTrain(t *testing.T) {
	trained, err := Train(context.Background(), smallCandidates(), linearDataset(50))
	require.NoError(t, err)
	for _, c := range trained {
		assert.True(t, c.Fitted(), c.Name)
	}
}

func TestTrain_Errors(t *testing.T) {
	_, err := Train(context.Background(), nil, linearDataset(50))
	assert.ErrorIs(t, err, apperr.ErrNoCandidates)

	_, err = Train(context.Background(), smallCandidates(), linearDataset(1))
	assert.ErrorIs(t, err, apperr.ErrInsufficientSamples)
}

func TestSplit_DisjointAndStable(t *testing.T) {
	ds := linearDataset(30)
	train, test, err := Split(ds)
	require.NoError(t, err)

	seen := make(map[int]bool)
	for _, i := range train {
		seen[i] = true
	}
	for _, i := range test {
		assert.False(t, seen[i], "row %d in both partitions", i)
	}

	_, again, err := Split(ds)
	require.NoError(t, err)
	assert.Equal(t, test, again)
}

func TestSelectBest(t *testing.T) {
	best, err := SelectBest([]EvaluationResult{
		{Name: "b", RSquared: 0.8, MeanAbsoluteError: 10},
		{Name: "a", RSquared: 0.9, MeanAbsoluteError: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", best.Name)

	// Equal R² falls back to MAE, then name
	best, _ = SelectBest([]EvaluationResult{
		{Name: "b", RSquared: 0.9, MeanAbsoluteError: 10},
		{Name: "a", RSquared: 0.9, MeanAbsoluteError: 20},
	})
	assert.Equal(t, "b", best.Name)

	best, _ = SelectBest([]EvaluationResult{
		{Name: "b", RSquared: 0.9, MeanAbsoluteError: 10},
		{Name: "a", RSquared: 0.9, MeanAbsoluteError: 10},
	})
	assert.Equal(t, "a", best.Name)

	best, _ = SelectBest([]EvaluationResult{
		{Name: "a", RSquared: math.NaN()},
		{Name: "b", RSquared: -5},
	})
	assert.Equal(t, "b", best.Name)

	_, err = SelectBest(nil)
	assert.ErrorIs(t, err, apperr.ErrNoCandidates)
}

func TestEvaluateAndSelect(t *testing.T) {
	ctx := context.Background()
	ds := linearDataset(60)
	trained, err := Train(ctx, smallCandidates(), ds)
	require.NoError(t, err)

	at := time.Date(2021, 8, 3, 12, 30, 0, 0, time.UTC)
	writer := &memoryWriter{}
	selected, err := NewEvaluator(writer).WithClock(func() time.Time { return at }).EvaluateAndSelect(ctx, trained, ds)
	require.NoError(t, err)

	// The target is linear in the features, so least squares wins
	assert.Equal(t, ml.LinearRegressionName, selected.Name)
	assert.Equal(t, "mc.example.net", selected.Server)
	assert.Equal(t, 2, selected.Dropped)
	assert.Equal(t, at, selected.TrainedAt)
	assert.Equal(t, "LinearRegression_20210803_123000.json", selected.ModelPath)
	assert.Equal(t, "report_20210803_123000.txt", selected.ReportPath)
	assert.Same(t, trained.Get(ml.LinearRegressionName), writer.models[selected.ModelPath])
	require.Len(t, selected.Results, 2)
	assert.Equal(t, []string{ml.LinearRegressionName, ml.RandomForestName},
		[]string{selected.Results[0].Name, selected.Results[1].Name})
	assert.InDelta(t, 1.0, selected.Results[0].RSquared, 1e-9)

	require.Len(t, writer.reports, 1)
	report := writer.reports[0]
	assert.Contains(t, report, "Server: mc.example.net")
	assert.Contains(t, report, "Rows dropped (missing target): 2")
	assert.Contains(t, report, "Best model: LinearRegression")
	assert.Contains(t, report, "Saved at: LinearRegression_20210803_123000.json")
	assert.Equal(t, 2, strings.Count(report, "MAE="))
}

// pipelineInput runs the feature and selection stages over a day of samples
// for two servers.
func pipelineInput(t *testing.T) *dataset.Dataset {
	start := time.Date(2021, 8, 2, 0, 0, 0, 0, time.UTC)
	var samples []features.Sample
	for i := 0; i < 150; i++ {
		at := start.Add(time.Duration(i) * 5 * time.Minute)
		busy := 400 + 30*float64(at.Hour()) + 25*math.Sin(float64(i)/7)
		samples = append(samples, features.Sample{ServerID: "busy.example.net", Timestamp: at, PlayerCount: int64(busy)})
		if i%3 == 0 {
			samples = append(samples, features.Sample{ServerID: "quiet.example.net", Timestamp: at, PlayerCount: int64(i % 40)})
		}
	}
	ds, err := dataset.SelectAndClean(features.ToTable(features.Build(samples)))
	require.NoError(t, err)
	return ds
}

func TestEvaluateAndSelect_Reproducible(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2021, 8, 3, 0, 0, 0, 0, time.UTC)

	run := func() (*SelectedModel, []float64) {
		ds := pipelineInput(t)
		trained, err := Train(ctx, ml.NewCandidates(), ds)
		require.NoError(t, err)
		selected, err := NewEvaluator(&memoryWriter{}).WithClock(func() time.Time { return at }).EvaluateAndSelect(ctx, trained, ds)
		require.NoError(t, err)
		preds, err := selected.Model.Predict(ds.X[:20])
		require.NoError(t, err)
		return selected, preds
	}

	first, firstPreds := run()
	second, secondPreds := run()

	assert.Equal(t, "busy.example.net", first.Server)
	assert.Equal(t, first.Name, second.Name)
	assert.Equal(t, first.ModelPath, second.ModelPath)
	assert.Equal(t, first.Results, second.Results)
	assert.Equal(t, firstPreds, secondPreds)
}

func TestEvaluateAndSelect_PersistenceFailure(t *testing.T) {
	ctx := context.Background()
	ds := linearDataset(40)
	trained, err := Train(ctx, smallCandidates(), ds)
	require.NoError(t, err)

	for _, step := range []string{"model", "report"} {
		_, err := NewEvaluator(&memoryWriter{failOn: step}).EvaluateAndSelect(ctx, trained, ds)
		var persistErr *apperr.PersistenceError
		assert.ErrorAs(t, err, &persistErr, step)
	}
}

func TestEvaluateAndSelect_FileStore(t *testing.T) {
	ctx := context.Background()
	ds := linearDataset(40)
	trained, err := Train(ctx, smallCandidates(), ds)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "models")
	selected, err := NewEvaluator(artifact.NewStore(dir)).EvaluateAndSelect(ctx, trained, ds)
	require.NoError(t, err)

	loaded, err := artifact.LoadModel(selected.ModelPath)
	require.NoError(t, err)
	x, _ := ds.Subset([]int{0, 1, 2})
	want, _ := selected.Model.Predict(x)
	got, err := loaded.Predict(x)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	report, err := os.ReadFile(selected.ReportPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(report), "REGRESSION TRAINING"))
}

func TestEvaluate_UnfittedCandidate(t *testing.T) {
	_, err := Evaluate(context.Background(), ml.NewCandidates(), linearDataset(20))
	assert.Error(t, err)
}
