package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"loadcast/internal/model"
	"loadcast/pkg/inference"
	"loadcast/pkg/logger"
	"loadcast/pkg/metrics"
	"loadcast/pkg/ml"
	mysqlModel "loadcast/pkg/store/mysql/model"
)

// ErrNoModel is returned while no model has been loaded
var ErrNoModel = fmt.Errorf("no model loaded")

// ModelSource resolves and loads registry URIs
type ModelSource interface {
	Resolve(ctx context.Context, uri string) (*mysqlModel.ModelVersion, error)
	Load(ctx context.Context, uri string) (*ml.Pipeline, *mysqlModel.ModelVersion, error)
}

// ReportStore keeps the latest load report
type ReportStore interface {
	SaveReport(ctx context.Context, report any) error
	LatestReport(ctx context.Context) (json.RawMessage, error)
}

// ServingService answers predictions with the model a registry URI points at
type ServingService struct {
	source  ModelSource
	uri     string
	reports ReportStore

	mu      sync.RWMutex
	model   *ml.Pipeline
	version *mysqlModel.ModelVersion
	served  *model.ServedModel
}

// NewServingService creates a serving service for uri. reports may be nil.
func NewServingService(source ModelSource, uri string, reports ReportStore) *ServingService {
	return &ServingService{source: source, uri: uri, reports: reports}
}

// URI returns the registry URI being served
func (s *ServingService) URI() string {
	return s.uri
}

// Reload loads the model the URI currently points at
func (s *ServingService) Reload(ctx context.Context) error {
	p, v, err := s.source.Load(ctx, s.uri)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", s.uri, err)
	}
	s.swap(p, v)
	return nil
}

// Refresh reloads the model when the URI resolves to a different version
// than the one served. It reports whether a reload happened.
func (s *ServingService) Refresh(ctx context.Context) (bool, error) {
	v, err := s.source.Resolve(ctx, s.uri)
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	current := s.version
	s.mu.RUnlock()
	if current != nil && current.Name == v.Name && current.Version == v.Version {
		return false, nil
	}
	if err := s.Reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Use serves p directly, bypassing the registry
func (s *ServingService) Use(p *ml.Pipeline, v *mysqlModel.ModelVersion) {
	s.swap(p, v)
}

func (s *ServingService) swap(p *ml.Pipeline, v *mysqlModel.ModelVersion) {
	served := &model.ServedModel{Name: p.Name, URI: s.uri, LoadedAt: time.Now()}
	if v != nil {
		served.Version = v.Version
		served.Stage = v.Stage
		metrics.SetServedVersion(v.Name, v.Version)
	}

	s.mu.Lock()
	s.model = p
	s.version = v
	s.served = served
	s.mu.Unlock()

	logger.InfoCtx(context.Background(), "serving %s version %d from %s", p.Name, served.Version, s.uri)
}

// Served describes the current model, or nil
func (s *ServingService) Served() *model.ServedModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.served == nil {
		return nil
	}
	out := *s.served
	return &out
}

func (s *ServingService) current() (*ml.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.model == nil {
		return nil, ErrNoModel
	}
	return s.model, nil
}

// Predict returns one prediction per input row
func (s *ServingService) Predict(ctx context.Context, input any) ([]float64, error) {
	m, err := s.current()
	if err != nil {
		return nil, err
	}
	rows, err := inference.Infer(m, input)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, r := range rows {
		out[i] = r[inference.PredictionColumn].(float64)
	}
	metrics.ObservePredictions(m.Name, len(out))
	logger.DebugCtx(ctx, "scored %d rows with %s", len(out), m.Name)
	return out, nil
}

// Report scores rows and aggregates them into a cluster load report, which
// becomes the latest cached report
func (s *ServingService) Report(ctx context.Context, input any) (*inference.Report, error) {
	m, err := s.current()
	if err != nil {
		return nil, err
	}
	rows, err := inference.Infer(m, input)
	if err != nil {
		return nil, err
	}
	report, err := inference.GenerateReport(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range report.Clusters {
		metrics.ObserveReportLevel(c.Level.String())
	}

	if s.reports != nil {
		if err := s.reports.SaveReport(ctx, report); err != nil {
			logger.WarnCtx(ctx, "failed to cache report: %v", err)
		}
	}
	return report, nil
}

// LatestReport returns the last cached report
func (s *ServingService) LatestReport(ctx context.Context) (json.RawMessage, error) {
	if s.reports == nil {
		return nil, fmt.Errorf("report cache is not configured")
	}
	return s.reports.LatestReport(ctx)
}
