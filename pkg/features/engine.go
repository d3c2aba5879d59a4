// Package features derives the temporal, trend and relative-popularity
// signals used for player-load forecasting from raw server samples.
package features

import (
	"math"
	"sort"
	"strconv"
	"time"

	"loadcast/pkg/frame"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PeriodOfDay buckets the hour of day into four ranges.
type PeriodOfDay int

const (
	Dawn      PeriodOfDay = iota // [0,6)
	Morning                      // [6,12)
	Afternoon                    // [12,18)
	Night                        // [18,24)
)

var periodLabels = [...]string{"Madrugada", "Manhã", "Tarde", "Noite"}

func (p PeriodOfDay) String() string {
	if p < Dawn || p > Night {
		return ""
	}
	return periodLabels[p]
}

// PeriodFor returns the bucket an hour falls into.
func PeriodFor(hour int) PeriodOfDay {
	return PeriodOfDay(hour / 6)
}

// FeatureRow is a sample enriched with derived features. Undefined values
// (first row of a group, zero denominators) are NaN.
type FeatureRow struct {
	Sample

	Date               string
	Hour               int
	Minute             int
	Weekday            time.Weekday
	IsWeekend          int
	DeltaCount         float64
	PctChange          float64
	RollingMean10      float64
	RollingMean30      float64
	RollingStd30       float64
	NetworkTotal       float64
	NetworkShare       float64
	IsPeak             int
	SuddenDrop         int
	Recovery           int
	Period             PeriodOfDay
	InterSampleSeconds float64
	ServerCode         int
	ServerHour         string
}

// Build derives feature rows from samples. Output order matches input order;
// grouped derivations run per server in timestamp order. The input is not
// modified.
func Build(samples []Sample) []FeatureRow {
	rows := make([]FeatureRow, len(samples))
	if len(samples) == 0 {
		return rows
	}

	counts := make([]float64, len(samples))
	for i, s := range samples {
		counts[i] = float64(s.PlayerCount)
		rows[i] = calendarFeatures(s)
	}

	peak := frame.Percentile(counts, PeakPercentile)
	codes := serverCodes(samples)
	networkShare(samples, counts, rows)

	for _, idx := range groupByServer(samples) {
		trendFeatures(samples, counts, idx, rows)
	}

	for i := range rows {
		r := &rows[i]
		if counts[i] > peak {
			r.IsPeak = 1
		}
		if r.PctChange < SuddenDropPercent {
			r.SuddenDrop = 1
		}
		if r.PctChange > RecoveryPercent {
			r.Recovery = 1
		}
		r.ServerCode = codes[r.ServerID]
	}
	return rows
}

func calendarFeatures(s Sample) FeatureRow {
	ts := s.Timestamp.UTC()
	r := FeatureRow{
		Sample:     s,
		Date:       ts.Format("2006-01-02"),
		Hour:       ts.Hour(),
		Minute:     ts.Minute(),
		Weekday:    ts.Weekday(),
		Period:     PeriodFor(ts.Hour()),
		ServerHour: s.ServerID + "_" + strconv.Itoa(ts.Hour()),
	}
	if r.Weekday == time.Saturday || r.Weekday == time.Sunday {
		r.IsWeekend = 1
	}
	return r
}

// groupByServer returns, per server in first-seen order, the sample indices
// sorted by timestamp. The sort is stable so equal timestamps keep arrival order.
func groupByServer(samples []Sample) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, s := range samples {
		g, ok := pos[s.ServerID]
		if !ok {
			g = len(groups)
			pos[s.ServerID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	for _, idx := range groups {
		sort.SliceStable(idx, func(a, b int) bool {
			return samples[idx[a]].Timestamp.Before(samples[idx[b]].Timestamp)
		})
	}
	return groups
}

func trendFeatures(samples []Sample, counts []float64, idx []int, rows []FeatureRow) {
	series := make([]float64, len(idx))
	for k, i := range idx {
		series[k] = counts[i]
	}

	for k, i := range idx {
		r := &rows[i]
		if k == 0 {
			r.DeltaCount = math.NaN()
			r.PctChange = math.NaN()
			r.InterSampleSeconds = math.NaN()
		} else {
			prev := series[k-1]
			r.DeltaCount = series[k] - prev
			r.PctChange = pctChange(prev, series[k])
			r.InterSampleSeconds = samples[i].Timestamp.Sub(samples[idx[k-1]].Timestamp).Seconds()
		}

		r.RollingMean10 = stat.Mean(trailing(series, k, ShortWindow), nil)
		long := trailing(series, k, LongWindow)
		r.RollingMean30 = stat.Mean(long, nil)
		if len(long) < 2 {
			r.RollingStd30 = math.NaN()
		} else {
			r.RollingStd30 = stat.StdDev(long, nil)
		}
	}
}

// trailing returns the window of at most size points ending at k.
func trailing(series []float64, k, size int) []float64 {
	start := k - size + 1
	if start < 0 {
		start = 0
	}
	return series[start : k+1]
}

func pctChange(prev, cur float64) float64 {
	if prev == 0 {
		switch {
		case cur > 0:
			return math.Inf(1)
		case cur < 0:
			return math.Inf(-1)
		default:
			return math.NaN()
		}
	}
	return (cur - prev) / prev * 100
}

func networkShare(samples []Sample, counts []float64, rows []FeatureRow) {
	byInstant := make(map[int64][]int)
	for i, s := range samples {
		key := s.Timestamp.UnixNano()
		byInstant[key] = append(byInstant[key], i)
	}
	for _, idx := range byInstant {
		group := make([]float64, len(idx))
		for k, i := range idx {
			group[k] = counts[i]
		}
		total := floats.Sum(group)
		for _, i := range idx {
			rows[i].NetworkTotal = total
			if total == 0 {
				rows[i].NetworkShare = math.NaN()
			} else {
				rows[i].NetworkShare = counts[i] / total
			}
		}
	}
}

// serverCodes assigns one small integer per distinct server id, in
// lexicographic order of the ids.
func serverCodes(samples []Sample) map[string]int {
	ids := make([]string, 0)
	seen := make(map[string]bool)
	for _, s := range samples {
		if !seen[s.ServerID] {
			seen[s.ServerID] = true
			ids = append(ids, s.ServerID)
		}
	}
	sort.Strings(ids)
	codes := make(map[string]int, len(ids))
	for i, id := range ids {
		codes[id] = i
	}
	return codes
}

// Record exports the row with canonical column names. NaN becomes nil.
func (r FeatureRow) Record() frame.Record {
	return frame.Record{
		ColServer:        r.ServerID,
		ColTimestamp:     r.Timestamp.Format(time.RFC3339),
		ColPlayers:       r.PlayerCount,
		ColDate:          r.Date,
		ColHour:          r.Hour,
		ColMinute:        r.Minute,
		ColWeekday:       r.Weekday.String(),
		ColWeekend:       r.IsWeekend,
		ColDelta:         frame.Nullable(r.DeltaCount),
		ColPctChange:     frame.Nullable(r.PctChange),
		ColRollingMean10: frame.Nullable(r.RollingMean10),
		ColRollingMean30: frame.Nullable(r.RollingMean30),
		ColRollingStd30:  frame.Nullable(r.RollingStd30),
		ColNetworkTotal:  r.NetworkTotal,
		ColNetworkShare:  frame.Nullable(r.NetworkShare),
		ColPeak:          r.IsPeak,
		ColSuddenDrop:    r.SuddenDrop,
		ColRecovery:      r.Recovery,
		ColPeriod:        r.Period.String(),
		ColInterval:      frame.Nullable(r.InterSampleSeconds),
		ColServerCode:    r.ServerCode,
		ColServerHour:    r.ServerHour,
	}
}

// TableColumns is the column order of ToTable.
var TableColumns = []string{
	ColServer, ColTimestamp, ColPlayers, ColDate, ColHour, ColMinute, ColWeekday,
	ColWeekend, ColDelta, ColPctChange, ColRollingMean10, ColRollingMean30,
	ColRollingStd30, ColNetworkTotal, ColNetworkShare, ColPeak, ColSuddenDrop,
	ColRecovery, ColPeriod, ColInterval, ColServerCode, ColServerHour,
}

// ToTable exports feature rows as a table.
func ToTable(rows []FeatureRow) frame.Table {
	out := make([]frame.Record, len(rows))
	for i, r := range rows {
		out[i] = r.Record()
	}
	cols := make([]string, len(TableColumns))
	copy(cols, TableColumns)
	return frame.Table{Columns: cols, Rows: out}
}
