package model

import (
	"encoding/json"
	"math"
	"time"
)

// RunStatus pipeline run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"   // Queued
	RunStatusRunning   RunStatus = "RUNNING"   // Executing
	RunStatusSucceeded RunStatus = "SUCCEEDED" // Model published
	RunStatusFailed    RunStatus = "FAILED"    // Aborted by an error
)

// Run triggers
const (
	TriggerAPI      = "api"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
)

// RunRequest asks for one pipeline run
type RunRequest struct {
	RunID   string   `json:"run_id,omitempty"`
	Periods []string `json:"periods,omitempty"` // defaults to the configured periods
	Trigger string   `json:"trigger,omitempty"`
}

// SubmitRunResponse submit run response
type SubmitRunResponse struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`
}

// CandidateScore held-out metrics of one candidate
type CandidateScore struct {
	Name string  `json:"name"`
	MAE  float64 `json:"mae"`
	R2   float64 `json:"r2"`
}

// MarshalJSON writes non-finite scores, such as the R² of a constant target, as null
func (s CandidateScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name string   `json:"name"`
		MAE  *float64 `json:"mae"`
		R2   *float64 `json:"r2"`
	}{s.Name, finite(s.MAE), finite(s.R2)})
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// RunSummary outcome of a pipeline run
type RunSummary struct {
	RunID        string           `json:"run_id"`
	Status       RunStatus        `json:"status"`
	Trigger      string           `json:"trigger"`
	Periods      []string         `json:"periods"`
	Server       string           `json:"server,omitempty"`
	Rows         int              `json:"rows"`
	Dropped      int              `json:"dropped"`
	Winner       string           `json:"winner,omitempty"`
	Scores       []CandidateScore `json:"scores,omitempty"`
	ModelVersion int              `json:"model_version,omitempty"`
	ModelURI     string           `json:"model_uri,omitempty"`
	ModelPath    string           `json:"model_path,omitempty"`
	ReportPath   string           `json:"report_path,omitempty"`
	Error        string           `json:"error,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
}

// PredictRequest prediction request; X_test holds records or columns
type PredictRequest struct {
	XTest json.RawMessage `json:"X_test" binding:"required"`
}

// PredictResponse prediction response
type PredictResponse struct {
	Prediction []float64 `json:"prediction"`
}

// ReportRequest load report request; every row carries a cluster id and the
// modeling features
type ReportRequest struct {
	Rows json.RawMessage `json:"rows" binding:"required"`
}

// StageTransitionRequest moves a model version to another stage
type StageTransitionRequest struct {
	Stage           string `json:"stage" binding:"required"`
	ArchiveExisting bool   `json:"archive_existing"`
}

// ServedModel describes the model answering predictions
type ServedModel struct {
	Name     string    `json:"name"`
	Version  int       `json:"version"`
	URI      string    `json:"uri"`
	Stage    string    `json:"stage"`
	LoadedAt time.Time `json:"loaded_at"`
}
