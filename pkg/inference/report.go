package inference

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"loadcast/pkg/apperr"
	"loadcast/pkg/features"
	"loadcast/pkg/frame"
)

// ClusterColumn groups rows in a report.
const ClusterColumn = "cluster"

// LoadLevel is the ordinal load class of a cluster.
type LoadLevel int

const (
	LevelLow LoadLevel = iota
	LevelMedium
	LevelHigh
	LevelCritical
)

type band struct {
	upper  float64
	level  LoadLevel
	label  string
	action string
}

// bands are ordered by upper bound; a value belongs to the first band whose
// bound it is strictly below.
var bands = []band{
	{30000, LevelLow, "baixo", "Janela boa p/ manutenção; reduzir recursos."},
	{60000, LevelMedium, "médio", "Monitorar; ajustar autoscaling conforme tendência."},
	{90000, LevelHigh, "alto", "Preparar autoscaling; adiar manutenção; reforçar capacidade."},
	{math.Inf(1), LevelCritical, "crítico", "Alerta de sobrecarga; ativar mitigação; limitar eventos."},
}

// ClassifyLoad returns the level of a predicted player count.
func ClassifyLoad(prediction float64) LoadLevel {
	for _, b := range bands {
		if prediction < b.upper {
			return b.level
		}
	}
	return LevelCritical
}

func (l LoadLevel) String() string {
	if l < LevelLow || l > LevelCritical {
		return fmt.Sprintf("LoadLevel(%d)", int(l))
	}
	return bands[l].label
}

// Action returns the recommended action for the level.
func (l LoadLevel) Action() string {
	if l < LevelLow || l > LevelCritical {
		return ""
	}
	return bands[l].action
}

func (l LoadLevel) MarshalJSON() ([]byte, error) {
	if l < LevelLow || l > LevelCritical {
		return nil, fmt.Errorf("invalid load level %d", int(l))
	}
	return json.Marshal(l.String())
}

func (l *LoadLevel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for _, b := range bands {
		if b.label == s {
			*l = b.level
			return nil
		}
	}
	return fmt.Errorf("unknown load level %q", s)
}

// ClusterReport summarizes one cluster.
type ClusterReport struct {
	ClusterID          int64          `json:"cluster_id"`
	BaselinePrediction int64          `json:"baseline_prediction"`
	Level              LoadLevel      `json:"level"`
	Action             string         `json:"action"`
	Instances          []frame.Record `json:"instances"`
}

// RankingEntry is one position of the load ranking.
type RankingEntry struct {
	Position   int       `json:"posicao"`
	ClusterID  int64     `json:"cluster_id"`
	Prediction int64     `json:"prediction"`
	Level      LoadLevel `json:"level"`
}

// Report is the cluster-level load report.
type Report struct {
	Legend   map[string]string `json:"legend"`
	Clusters []ClusterReport   `json:"clusters"`
	Ranking  []RankingEntry    `json:"ranking"`
}

type clusterGroup struct {
	id        int64
	sum       float64
	n         int
	instances []frame.Record
}

// GenerateReport groups predicted rows by cluster, classifies the mean
// prediction of each cluster and ranks the clusters by descending load.
// Clusters are listed in ascending id order. Rows without a numeric cluster id
// are ignored, as are missing predictions when averaging.
func GenerateReport(rows []frame.Record) (*Report, error) {
	if len(rows) == 0 {
		return nil, apperr.ErrEmptyInput
	}
	table := frame.NewTable(rows)
	if err := apperr.NewSchemaError(table.Missing(ClusterColumn, PredictionColumn)); err != nil {
		return nil, err
	}

	groups := make(map[int64]*clusterGroup)
	for _, row := range rows {
		c := frame.Float(row[ClusterColumn])
		if math.IsNaN(c) || math.IsInf(c, 0) {
			continue
		}
		id := int64(c)
		g, ok := groups[id]
		if !ok {
			g = &clusterGroup{id: id}
			groups[id] = g
		}
		if p := frame.Float(row[PredictionColumn]); !math.IsNaN(p) {
			g.sum += p
			g.n++
		}
		g.instances = append(g.instances, instance(row))
	}

	ordered := make([]*clusterGroup, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].id < ordered[j].id })

	report := &Report{
		Legend:   legend(),
		Clusters: make([]ClusterReport, 0, len(ordered)),
		Ranking:  make([]RankingEntry, 0, len(ordered)),
	}
	means := make([]float64, len(ordered))
	for i, g := range ordered {
		if g.n == 0 {
			return nil, fmt.Errorf("cluster %d has no valid predictions", g.id)
		}
		means[i] = g.sum / float64(g.n)
		baseline := math.RoundToEven(means[i])
		level := ClassifyLoad(baseline)
		report.Clusters = append(report.Clusters, ClusterReport{
			ClusterID:          g.id,
			BaselinePrediction: int64(baseline),
			Level:              level,
			Action:             level.Action(),
			Instances:          g.instances,
		})
	}

	rank := make([]int, len(ordered))
	for i := range rank {
		rank[i] = i
	}
	sort.SliceStable(rank, func(a, b int) bool { return means[rank[a]] > means[rank[b]] })
	for pos, i := range rank {
		pred := math.RoundToEven(means[i])
		report.Ranking = append(report.Ranking, RankingEntry{
			Position:   pos + 1,
			ClusterID:  ordered[i].id,
			Prediction: int64(pred),
			Level:      ClassifyLoad(pred),
		})
	}
	return report, nil
}

// instance copies a row without its prediction, replacing non-finite numbers
// with nil so the report stays JSON-encodable.
func instance(row frame.Record) frame.Record {
	out := make(frame.Record, len(row))
	for k, v := range row {
		if k == PredictionColumn {
			continue
		}
		if f, ok := v.(float64); ok {
			out[k] = frame.Nullable(f)
			continue
		}
		out[k] = v
	}
	return out
}

func legend() map[string]string {
	out := make(map[string]string, len(features.Legend))
	for k, v := range features.Legend {
		out[k] = v
	}
	return out
}
