package model

import "time"

// Model version stages
const (
	StageNone       = "None"
	StageStaging    = "Staging"
	StageProduction = "Production"
	StageArchived   = "Archived"
)

// RegisteredModel MySQL model for registered_models table
type RegisteredModel struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_registered_model_name" json:"name"`
	Description string    `gorm:"column:description;type:varchar(500);not null;default:''" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for RegisteredModel
func (RegisteredModel) TableName() string {
	return "registered_models"
}

// ModelVersion MySQL model for model_versions table
type ModelVersion struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"column:name;type:varchar(255);not null;uniqueIndex:idx_model_version,priority:1" json:"name"`
	Version      int       `gorm:"column:version;type:int;not null;uniqueIndex:idx_model_version,priority:2" json:"version"`
	Stage        string    `gorm:"column:stage;type:varchar(32);not null;default:None;index:idx_stage" json:"stage"`
	ArtifactPath string    `gorm:"column:artifact_path;type:varchar(1024);not null" json:"artifact_path"`
	RunID        string    `gorm:"column:run_id;type:varchar(64);not null;default:''" json:"run_id"`
	Server       string    `gorm:"column:server;type:varchar(255);not null;default:''" json:"server"`
	Metrics      JSONMap   `gorm:"column:metrics;type:json" json:"metrics"`
	CreatedAt    time.Time `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_created_at" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for ModelVersion
func (ModelVersion) TableName() string {
	return "model_versions"
}
