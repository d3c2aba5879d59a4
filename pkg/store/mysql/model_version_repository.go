package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ModelVersionRepository handles registered models and their versions in MySQL
type ModelVersionRepository struct {
	ds *Datastore
}

// NewModelVersionRepository creates a new model version repository
func NewModelVersionRepository(ds *Datastore) *ModelVersionRepository {
	return &ModelVersionRepository{ds: ds}
}

// Create registers the model if needed and stores v as its next version.
// v.Version is assigned inside the transaction.
func (r *ModelVersionRepository) Create(ctx context.Context, v *ModelVersion) error {
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		db := r.ds.DB(ctx)
		rm := RegisteredModel{Name: v.Name}
		if err := db.Where("name = ?", v.Name).FirstOrCreate(&rm).Error; err != nil {
			return fmt.Errorf("failed to register model: %w", err)
		}

		// Lock the model row so concurrent registrations serialize
		if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", rm.ID).First(&rm).Error; err != nil {
			return fmt.Errorf("failed to lock model: %w", err)
		}

		var maxVersion int
		if err := db.Model(&ModelVersion{}).
			Where("name = ?", v.Name).
			Select("COALESCE(MAX(version), 0)").
			Scan(&maxVersion).Error; err != nil {
			return fmt.Errorf("failed to read latest version: %w", err)
		}
		v.Version = maxVersion + 1
		return db.Create(v).Error
	})
}

// Get retrieves a version, or nil if it does not exist
func (r *ModelVersionRepository) Get(ctx context.Context, name string, version int) (*ModelVersion, error) {
	var v ModelVersion
	err := r.ds.DB(ctx).Where("name = ? AND version = ?", name, version).First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get model version: %w", err)
	}
	return &v, nil
}

// Latest retrieves the highest version of a model, or nil
func (r *ModelVersionRepository) Latest(ctx context.Context, name string) (*ModelVersion, error) {
	var v ModelVersion
	err := r.ds.DB(ctx).Where("name = ?", name).Order("version DESC").First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest model version: %w", err)
	}
	return &v, nil
}

// LatestInStage retrieves the highest version of a model in a stage, or nil
func (r *ModelVersionRepository) LatestInStage(ctx context.Context, name, stage string) (*ModelVersion, error) {
	var v ModelVersion
	err := r.ds.DB(ctx).
		Where("name = ? AND stage = ?", name, stage).
		Order("version DESC").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get model version in stage %s: %w", stage, err)
	}
	return &v, nil
}

// List retrieves every version of a model, newest first
func (r *ModelVersionRepository) List(ctx context.Context, name string) ([]*ModelVersion, error) {
	var versions []*ModelVersion
	err := r.ds.DB(ctx).Where("name = ?", name).Order("version DESC").Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list model versions: %w", err)
	}
	return versions, nil
}

// ListModels retrieves all registered models
func (r *ModelVersionRepository) ListModels(ctx context.Context) ([]*RegisteredModel, error) {
	var models []*RegisteredModel
	if err := r.ds.DB(ctx).Order("name ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list registered models: %w", err)
	}
	return models, nil
}

// SetStage moves a version to stage. With archiveOthers, every other version
// of the model currently in that stage is archived in the same transaction.
func (r *ModelVersionRepository) SetStage(ctx context.Context, name string, version int, stage string, archiveOthers bool) error {
	return r.ds.ExecTx(ctx, func(ctx context.Context) error {
		db := r.ds.DB(ctx)
		if archiveOthers {
			if err := db.Model(&ModelVersion{}).
				Where("name = ? AND stage = ? AND version <> ?", name, stage, version).
				Update("stage", StageArchived).Error; err != nil {
				return fmt.Errorf("failed to archive versions in stage %s: %w", stage, err)
			}
		}
		res := db.Model(&ModelVersion{}).
			Where("name = ? AND version = ?", name, version).
			Update("stage", stage)
		if res.Error != nil {
			return fmt.Errorf("failed to update stage: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("model %s version %d not found", name, version)
		}
		return nil
	})
}
