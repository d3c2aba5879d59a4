// Package inference applies a trained model to fresh feature rows and turns
// the predictions into a cluster-level load report.
package inference

import (
	"fmt"
	"math"

	"loadcast/pkg/apperr"
	"loadcast/pkg/features"
	"loadcast/pkg/frame"
)

// PredictionColumn is the field Infer attaches to every row.
const PredictionColumn = "prediction"

// Predictor is satisfied by *ml.Pipeline.
type Predictor interface {
	Predict(x [][]float64) ([]float64, error)
}

// Infer predicts the player count of every row in input and returns copies of
// the rows with a prediction field attached. The caller's rows are not
// modified.
//
// input may be a frame.Table, a slice of records or a column-oriented map.
func Infer(model Predictor, input any) ([]frame.Record, error) {
	rows, err := Normalize(input)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apperr.ErrEmptyInput
	}
	table := frame.NewTable(rows)
	if err := apperr.NewSchemaError(table.Missing(features.ModelColumns...)); err != nil {
		return nil, err
	}

	x := make([][]float64, len(rows))
	for i, row := range rows {
		v := make([]float64, len(features.ModelColumns))
		for j, col := range features.ModelColumns {
			f := frame.Float(row[col])
			if math.IsInf(f, 0) {
				f = math.NaN()
			}
			v[j] = f
		}
		x[i] = v
	}
	pred, err := model.Predict(x)
	if err != nil {
		return nil, fmt.Errorf("prediction failed: %w", err)
	}

	out := make([]frame.Record, len(rows))
	for i, row := range rows {
		r := row.Clone()
		r[PredictionColumn] = pred[i]
		out[i] = r
	}
	return out, nil
}

// Normalize converts the accepted input shapes into records. Column-oriented
// maps must hold equally long slices.
func Normalize(input any) ([]frame.Record, error) {
	switch v := input.(type) {
	case frame.Table:
		return v.Rows, nil
	case *frame.Table:
		if v == nil {
			return nil, &apperr.TypeMismatchError{Got: "nil table"}
		}
		return v.Rows, nil
	case []frame.Record:
		return v, nil
	case []map[string]any:
		rows := make([]frame.Record, len(v))
		for i, m := range v {
			rows[i] = frame.Record(m)
		}
		return rows, nil
	case []any:
		rows := make([]frame.Record, len(v))
		for i, item := range v {
			switch m := item.(type) {
			case map[string]any:
				rows[i] = frame.Record(m)
			case frame.Record:
				rows[i] = m
			default:
				return nil, &apperr.TypeMismatchError{Got: fmt.Sprintf("%T at index %d", item, i)}
			}
		}
		return rows, nil
	case map[string][]any:
		cols := make(map[string]any, len(v))
		for k, c := range v {
			cols[k] = c
		}
		return fromColumns(cols)
	case map[string]any:
		return fromColumns(v)
	case frame.Record:
		return fromColumns(v)
	default:
		return nil, &apperr.TypeMismatchError{Got: fmt.Sprintf("%T", input)}
	}
}

func fromColumns(cols map[string]any) ([]frame.Record, error) {
	n := -1
	values := make(map[string][]any, len(cols))
	for name, c := range cols {
		col, ok := asSlice(c)
		if !ok {
			return nil, &apperr.TypeMismatchError{Got: fmt.Sprintf("column %q of type %T", name, c)}
		}
		if n >= 0 && len(col) != n {
			return nil, fmt.Errorf("column %q has %d values, want %d", name, len(col), n)
		}
		n = len(col)
		values[name] = col
	}
	if n < 0 {
		return nil, nil
	}
	rows := make([]frame.Record, n)
	for i := range rows {
		r := make(frame.Record, len(values))
		for name, col := range values {
			r[name] = col[i]
		}
		rows[i] = r
	}
	return rows, nil
}

func asSlice(c any) ([]any, bool) {
	switch col := c.(type) {
	case []any:
		return col, true
	case []float64:
		out := make([]any, len(col))
		for i, f := range col {
			out[i] = f
		}
		return out, true
	case []int:
		out := make([]any, len(col))
		for i, f := range col {
			out[i] = f
		}
		return out, true
	case []string:
		out := make([]any, len(col))
		for i, f := range col {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
