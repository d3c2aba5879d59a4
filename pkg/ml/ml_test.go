package ml

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"sort"
	"testing"

	"loadcast/pkg/apperr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearData returns rows of five features with y = 3*x0 - 2*x1 + 5.
func linearData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		row := make([]float64, 5)
		for j := range row {
			row[j] = rng.Float64() * 100
		}
		x[i] = row
		y[i] = 3*row[0] - 2*row[1] + 5
	}
	return x, y
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, TestFraction, SplitSeed)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)

	all := append(append([]int{}, train...), test...)
	sort.Ints(all)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, all)

	train2, test2, err := TrainTestSplit(10, TestFraction, SplitSeed)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	// ceil(11 * 0.2) = 3
	_, test, err = TrainTestSplit(11, TestFraction, SplitSeed)
	require.NoError(t, err)
	assert.Len(t, test, 3)
}

func TestTrainTestSplit_Errors(t *testing.T) {
	_, _, err := TrainTestSplit(1, TestFraction, SplitSeed)
	assert.ErrorIs(t, err, apperr.ErrInsufficientSamples)

	_, _, err = TrainTestSplit(0, TestFraction, SplitSeed)
	assert.ErrorIs(t, err, apperr.ErrInsufficientSamples)

	_, _, err = TrainTestSplit(10, 1.5, SplitSeed)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	assert.Equal(t, 0.0, MeanAbsoluteError(y, y))
	assert.Equal(t, 1.0, RSquared(y, y))
	assert.Equal(t, 0.5, MeanAbsoluteError(y, []float64{1.5, 2.5, 3.5, 4.5}))
	assert.InDelta(t, 0.0, RSquared(y, []float64{2.5, 2.5, 2.5, 2.5}), 1e-12)

	assert.Equal(t, 1.0, RSquared([]float64{2, 2}, []float64{2, 2}))
	assert.Equal(t, 0.0, RSquared([]float64{2, 2}, []float64{1, 2}))
	assert.True(t, math.IsNaN(MeanAbsoluteError(nil, nil)))
}

func TestMedianImputer(t *testing.T) {
	nan := math.NaN()
	x := [][]float64{{1, nan}, {3, nan}, {nan, nan}, {2, nan}}

	imp := &MedianImputer{}
	require.NoError(t, imp.Fit(x))
	assert.Equal(t, []float64{2, 0}, imp.Medians)

	out := imp.Transform(x)
	assert.Equal(t, []float64{2, 0}, out[2])
	assert.True(t, math.IsNaN(x[2][0]), "input is not modified")
}

func TestStandardScaler_ConstantColumn(t *testing.T) {
	s := &StandardScaler{}
	require.NoError(t, s.Fit([][]float64{{1, 7}, {3, 7}}))

	assert.Equal(t, []float64{2, 7}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, [][]float64{{-1, 0}, {1, 0}}, s.Transform([][]float64{{1, 7}, {3, 7}}))
}

func TestLinearRegression_RecoversCoefficients(t *testing.T) {
	x, y := linearData(50, 1)
	p := NewCandidates().Get(LinearRegressionName)
	require.NoError(t, p.Fit(context.Background(), x, y))

	pred, err := p.Predict(x)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, RSquared(y, pred), 1e-9)
	assert.InDelta(t, 0.0, MeanAbsoluteError(y, pred), 1e-6)
}

func TestLinearRegression_RankDeficient(t *testing.T) {
	x := [][]float64{{1, 1}, {2, 2}, {3, 3}}
	y := []float64{2, 4, 6}

	l := &LinearRegression{}
	require.NoError(t, l.Fit(context.Background(), x, y))
	assert.InDelta(t, l.Coef[0], l.Coef[1], 1e-9, "minimum-norm solution splits the weight")
	assert.InDelta(t, 8.0, l.Predict([][]float64{{4, 4}})[0], 1e-9)
}

func TestRandomForest_Deterministic(t *testing.T) {
	x, y := linearData(60, 2)

	fit := func(workers int) []float64 {
		f := &RandomForest{NTrees: 20, Seed: ForestSeed, Workers: workers}
		require.NoError(t, f.Fit(context.Background(), x, y))
		return f.Predict(x[:10])
	}

	assert.Equal(t, fit(1), fit(1))
	assert.Equal(t, fit(1), fit(4), "scheduling does not change the forest")
}

func TestRandomForest_FitsTrainingData(t *testing.T) {
	x, y := linearData(80, 3)
	f := &RandomForest{NTrees: 30, Seed: ForestSeed}
	require.NoError(t, f.Fit(context.Background(), x, y))

	assert.Greater(t, RSquared(y, f.Predict(x)), 0.9)
}

func TestRandomForest_Cancelled(t *testing.T) {
	x, y := linearData(20, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &RandomForest{NTrees: 10, Seed: ForestSeed}
	assert.ErrorIs(t, f.Fit(ctx, x, y), context.Canceled)
}

func TestPipeline_PredictValidation(t *testing.T) {
	p := NewCandidates().Get(LinearRegressionName)
	_, err := p.Predict([][]float64{{1, 2, 3, 4, 5}})
	assert.Error(t, err, "unfitted")

	x, y := linearData(10, 5)
	require.NoError(t, p.Fit(context.Background(), x, y))
	assert.True(t, p.Fitted())

	_, err = p.Predict([][]float64{{1, 2}})
	assert.Error(t, err)

	// Missing values are imputed with training medians
	pred, err := p.Predict([][]float64{{math.NaN(), 1, 1, 1, 1}})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(pred[0]))
}

func TestPipeline_JSONRoundTrip(t *testing.T) {
	x, y := linearData(40, 6)
	ctx := context.Background()

	for _, p := range NewCandidates() {
		if p.Name == RandomForestName {
			p.Estimator.(*RandomForest).NTrees = 5
		}
		require.NoError(t, p.Fit(ctx, x, y))

		data, err := json.Marshal(p)
		require.NoError(t, err)

		var restored Pipeline
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Equal(t, p.Name, restored.Name)

		want, err := p.Predict(x[:5])
		require.NoError(t, err)
		got, err := restored.Predict(x[:5])
		require.NoError(t, err)
		assert.Equal(t, want, got, p.Name)
	}
}

func TestPipeline_RefusesUnfitted(t *testing.T) {
	_, err := json.Marshal(NewCandidates()[0])
	assert.Error(t, err)

	var p Pipeline
	assert.Error(t, json.Unmarshal([]byte(`{"name":"x","kind":"svm","imputer":{"medians":[]}}`), &p))
}

func TestCandidates(t *testing.T) {
	c := NewCandidates()
	assert.Equal(t, []string{LinearRegressionName, RandomForestName}, c.Names())
	assert.NotNil(t, c.Get(LinearRegressionName).Scaler)
	assert.Nil(t, c.Get(RandomForestName).Scaler)
	assert.Nil(t, c.Get("missing"))
}
