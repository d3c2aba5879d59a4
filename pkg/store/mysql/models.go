package mysql

import "loadcast/pkg/store/mysql/model"

// Re-export types from model package so repositories and callers share one name

type (
	// Database models
	RegisteredModel = model.RegisteredModel
	ModelVersion    = model.ModelVersion
	PipelineRun     = model.PipelineRun

	// Custom JSON types
	JSONMap         = model.JSONMap
	JSONStringArray = model.JSONStringArray
)

// Re-export stages
const (
	StageNone       = model.StageNone
	StageStaging    = model.StageStaging
	StageProduction = model.StageProduction
	StageArchived   = model.StageArchived
)
