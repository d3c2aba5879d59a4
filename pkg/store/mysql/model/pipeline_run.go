package model

import "time"

// Pipeline run status
const (
	RunStatusPending   = "PENDING"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// PipelineRun MySQL model for pipeline_runs table
type PipelineRun struct {
	ID           int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID        string          `gorm:"column:run_id;type:varchar(64);not null;uniqueIndex:idx_run_id" json:"run_id"`
	Status       string          `gorm:"column:status;type:varchar(32);not null;index:idx_status" json:"status"`
	Trigger      string          `gorm:"column:trigger_source;type:varchar(32);not null;default:''" json:"trigger"` // api, schedule, cli
	Periods      JSONStringArray `gorm:"column:periods;type:json" json:"periods"`
	Server       string          `gorm:"column:server;type:varchar(255);not null;default:''" json:"server"`
	Winner       string          `gorm:"column:winner;type:varchar(100);not null;default:''" json:"winner"`
	Dropped      int             `gorm:"column:dropped;type:int;not null;default:0" json:"dropped"`
	Metrics      JSONMap         `gorm:"column:metrics;type:json" json:"metrics"` // <model>.mae / <model>.r2
	ModelVersion int             `gorm:"column:model_version;type:int;not null;default:0" json:"model_version"`
	ModelURI     string          `gorm:"column:model_uri;type:varchar(512);not null;default:''" json:"model_uri"`
	ModelPath    string          `gorm:"column:model_path;type:varchar(1024);not null;default:''" json:"model_path"`
	ReportPath   string          `gorm:"column:report_path;type:varchar(1024);not null;default:''" json:"report_path"`
	Error        *string         `gorm:"column:error;type:text" json:"error,omitempty"`
	StartedAt    *time.Time      `gorm:"column:started_at;type:datetime(3)" json:"started_at,omitempty"`
	FinishedAt   *time.Time      `gorm:"column:finished_at;type:datetime(3)" json:"finished_at,omitempty"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3);index:idx_created_at" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:datetime(3);not null;default:CURRENT_TIMESTAMP(3)" json:"updated_at"`
}

// TableName specifies the table name for PipelineRun
func (PipelineRun) TableName() string {
	return "pipeline_runs"
}
