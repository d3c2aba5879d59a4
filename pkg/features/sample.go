package features

import (
	"math"
	"strconv"
	"strings"
	"time"

	"loadcast/pkg/apperr"
	"loadcast/pkg/frame"
)

// Sample is one observation of a server's player count.
type Sample struct {
	ServerID    string    `json:"server_id"`
	Timestamp   time.Time `json:"timestamp"`
	PlayerCount int64     `json:"player_count"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseSamples converts a raw table into samples. It fails with a SchemaError
// naming every missing raw column. Rows with an unparseable timestamp or player
// count, or without a server id, are skipped and counted.
func ParseSamples(t frame.Table) ([]Sample, int, error) {
	serverCol, okServer := t.FirstOf(ColServer, ColServerAlias)
	countCol, okCount := t.FirstOf(ColPlayers, ColPlayerAlias)

	var missing []string
	if !okServer {
		missing = append(missing, ColServer)
	}
	if !t.Has(ColTimestamp) {
		missing = append(missing, ColTimestamp)
	}
	if !okCount {
		missing = append(missing, ColPlayers)
	}
	if err := apperr.NewSchemaError(missing); err != nil {
		return nil, 0, err
	}

	samples := make([]Sample, 0, len(t.Rows))
	skipped := 0
	for _, row := range t.Rows {
		server := frame.String(row[serverCol])
		if server == "" {
			skipped++
			continue
		}
		ts, ok := ParseTimestamp(row[ColTimestamp])
		if !ok {
			skipped++
			continue
		}
		count := frame.Float(row[countCol])
		if math.IsNaN(count) || math.IsInf(count, 0) || count < 0 {
			skipped++
			continue
		}
		samples = append(samples, Sample{
			ServerID:    server,
			Timestamp:   ts,
			PlayerCount: int64(math.Round(count)),
		})
	}
	return samples, skipped, nil
}

// ParseTimestamp accepts epoch milliseconds (numeric or numeric string),
// time.Time values and the common textual layouts. Results are in UTC.
func ParseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return time.Time{}, false
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			return fromEpochMillis(ms)
		}
		for _, layout := range timeLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		ms := frame.Float(v)
		return fromEpochMillis(ms)
	}
}

func fromEpochMillis(ms float64) (time.Time, bool) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(ms)).UTC(), true
}
