// Package source loads raw player-count samples, one CSV file per period.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loadcast/pkg/frame"
	"loadcast/pkg/logger"
)

// PeriodLayout formats a day as a period name, e.g. 1-8-2021.
const PeriodLayout = "2-1-2006"

// PeriodFor returns the period name of a day.
func PeriodFor(day time.Time) string {
	return day.Format(PeriodLayout)
}

// Fetcher returns the raw CSV of one period.
type Fetcher interface {
	Fetch(ctx context.Context, period string) (io.ReadCloser, error)
}

// HTTPFetcher downloads periods from a URL template containing {period}.
type HTTPFetcher struct {
	template string
	client   *http.Client
}

// NewHTTPFetcher creates a fetcher with a per-request timeout.
func NewHTTPFetcher(template string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		template: template,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// URL returns the download location of a period.
func (f *HTTPFetcher) URL(period string) string {
	return strings.ReplaceAll(f.template, "{period}", period)
}

func (f *HTTPFetcher) Fetch(ctx context.Context, period string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL(period), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch period %s: %w", period, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("period %s: source returned status code %d", period, resp.StatusCode)
	}
	return resp.Body, nil
}

// FileFetcher reads <dir>/<period>.csv.
type FileFetcher struct {
	Dir string
}

func (f FileFetcher) Fetch(_ context.Context, period string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(f.Dir, period+".csv"))
	if err != nil {
		return nil, fmt.Errorf("failed to open period %s: %w", period, err)
	}
	return file, nil
}

// ReadCSV parses a CSV document with a header row. Cells stay strings; empty
// cells become nil.
func ReadCSV(r io.Reader) (frame.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return frame.Table{}, nil
	}
	if err != nil {
		return frame.Table{}, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	table := frame.Table{Columns: cols}
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return frame.Table{}, fmt.Errorf("failed to read CSV line %d: %w", len(table.Rows)+2, err)
		}
		row := make(frame.Record, len(cols))
		for i, c := range cols {
			if i >= len(rec) || rec[i] == "" {
				row[c] = nil
				continue
			}
			row[c] = rec[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// Loader concatenates the tables of several periods.
type Loader struct {
	fetcher Fetcher
	// OnFailure is called for every period that could not be loaded.
	OnFailure func(period string, err error)
}

// NewLoader creates a loader over fetcher.
func NewLoader(fetcher Fetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// LoadPeriods fetches and concatenates every period. A period that fails is
// logged and skipped; an error is returned only when none could be loaded.
func (l *Loader) LoadPeriods(ctx context.Context, periods []string) (frame.Table, error) {
	if len(periods) == 0 {
		return frame.Table{}, fmt.Errorf("no periods to load")
	}

	var out frame.Table
	seen := make(map[string]bool)
	loaded := 0
	for _, period := range periods {
		if err := ctx.Err(); err != nil {
			return frame.Table{}, err
		}
		t, err := l.load(ctx, period)
		if err != nil {
			logger.WarnCtx(ctx, "skipping period %s: %v", period, err)
			if l.OnFailure != nil {
				l.OnFailure(period, err)
			}
			continue
		}
		loaded++
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				out.Columns = append(out.Columns, c)
			}
		}
		out.Rows = append(out.Rows, t.Rows...)
		logger.InfoCtx(ctx, "loaded period %s: %d rows", period, t.Len())
	}
	if loaded == 0 {
		return frame.Table{}, fmt.Errorf("all %d periods failed to load", len(periods))
	}
	return out, nil
}

func (l *Loader) load(ctx context.Context, period string) (frame.Table, error) {
	body, err := l.fetcher.Fetch(ctx, period)
	if err != nil {
		return frame.Table{}, err
	}
	defer body.Close()
	return ReadCSV(body)
}
