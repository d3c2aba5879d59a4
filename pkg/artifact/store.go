// Package artifact persists trained models and training reports on the local
// filesystem.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"loadcast/pkg/apperr"
	"loadcast/pkg/ml"
)

// TimestampLayout names artifacts of one training run.
const TimestampLayout = "20060102_150405"

// Store writes artifacts below a single directory.
type Store struct {
	dir string
}

// NewStore creates a store rooted at dir. The directory is created lazily.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ModelPath returns the path a model saved at the given time would have.
func (s *Store) ModelPath(name string, at time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", name, at.Format(TimestampLayout)))
}

// ReportPath returns the path a report saved at the given time would have.
func (s *Store) ReportPath(at time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("report_%s.txt", at.Format(TimestampLayout)))
}

// SaveModel encodes a fitted pipeline to <name>_<timestamp>.json.
func (s *Store) SaveModel(name string, at time.Time, model *ml.Pipeline) (string, error) {
	path := s.ModelPath(name, at)
	data, err := json.Marshal(model)
	if err != nil {
		return "", &apperr.PersistenceError{Path: path, Err: err}
	}
	if err := s.write(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// SaveReport writes a plain-text report to report_<timestamp>.txt.
func (s *Store) SaveReport(at time.Time, report string) (string, error) {
	path := s.ReportPath(at)
	if err := s.write(path, []byte(report)); err != nil {
		return "", err
	}
	return path, nil
}

// LoadModel reads a pipeline written by SaveModel.
func (s *Store) LoadModel(path string) (*ml.Pipeline, error) {
	return LoadModel(path)
}

// LoadModel reads a pipeline from any path.
func LoadModel(path string) (*ml.Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	var p ml.Pipeline
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode model %s: %w", path, err)
	}
	return &p, nil
}

func (s *Store) write(path string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return &apperr.PersistenceError{Path: s.dir, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &apperr.PersistenceError{Path: path, Err: err}
	}
	return nil
}
