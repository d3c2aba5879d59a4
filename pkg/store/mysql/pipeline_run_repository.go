package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// PipelineRunRepository handles pipeline run records in MySQL
type PipelineRunRepository struct {
	ds *Datastore
}

// NewPipelineRunRepository creates a new pipeline run repository
func NewPipelineRunRepository(ds *Datastore) *PipelineRunRepository {
	return &PipelineRunRepository{ds: ds}
}

// Create creates a new run record
func (r *PipelineRunRepository) Create(ctx context.Context, run *PipelineRun) error {
	return r.ds.DB(ctx).Create(run).Error
}

// Update saves every field of a run record
func (r *PipelineRunRepository) Update(ctx context.Context, run *PipelineRun) error {
	return r.ds.DB(ctx).Save(run).Error
}

// Get retrieves a run by run id, or nil if it does not exist
func (r *PipelineRunRepository) Get(ctx context.Context, runID string) (*PipelineRun, error) {
	var run PipelineRun
	err := r.ds.DB(ctx).Where("run_id = ?", runID).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pipeline run: %w", err)
	}
	return &run, nil
}

// List retrieves the most recent runs, newest first
func (r *PipelineRunRepository) List(ctx context.Context, limit int) ([]*PipelineRun, error) {
	var runs []*PipelineRun
	query := r.ds.DB(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list pipeline runs: %w", err)
	}
	return runs, nil
}
