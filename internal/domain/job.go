package domain

import (
	"encoding/json"
	"time"
)

// JobType enumerates supported generation job categories.
type JobType string

const (
	JobTypeImageGenerate JobType = "image.generate"
	JobTypeVideoGenerate JobType = "video.generate"
	JobTypeVideoExtend   JobType = "video.extend"
)

// Valid reports whether t is one of the known job types.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeImageGenerate, JobTypeVideoGenerate, JobTypeVideoExtend:
		return true
	default:
		return false
	}
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCanceled  JobStatus = "canceled"
)

// Terminal reports whether no further transition may leave s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSucceeded || s == JobStatusFailed || s == JobStatusCanceled
}

// AuthMode selects how a provider client authenticates.
type AuthMode string

const (
	AuthModeAPIKey AuthMode = "api_key"
	AuthModeVertex AuthMode = "vertex"
)

// Valid reports whether m is a known auth mode.
func (m AuthMode) Valid() bool {
	return m == AuthModeAPIKey || m == AuthModeVertex
}

// Job encapsulates the lifecycle of an image/video generation request.
type Job struct {
	ID              string         `json:"id"`
	Type            JobType        `json:"job_type"`
	ModelID         string         `json:"model_id"`
	AuthMode        AuthMode       `json:"auth_mode"`
	Status          JobStatus      `json:"status"`
	CancelRequested bool           `json:"cancel_requested"`
	Progress        *float64       `json:"progress"`
	StatusMessage   *string        `json:"status_message"`
	Params          map[string]any `json:"params"`
	Result          *JobResult     `json:"result"`
	ErrorMessage    *string        `json:"error_message"`
	ErrorDetail     *string        `json:"error_detail"`
	CreatedAt       time.Time      `json:"created_at"`
	StartedAt       *time.Time     `json:"started_at"`
	FinishedAt      *time.Time     `json:"finished_at"`
}

// DecodeParams copies the free-form params into a typed struct.
func (j *Job) DecodeParams(dst any) error {
	raw, err := json.Marshal(j.Params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// JobOutput references one asset produced by a job.
type JobOutput struct {
	AssetID   string       `json:"asset_id"`
	MediaType MediaType    `json:"media_type"`
	Role      JobAssetRole `json:"role"`
	Index     int          `json:"index"`
}

// JobResult is persisted once a job succeeds.
type JobResult struct {
	OutputAssetID string      `json:"output_asset_id,omitempty"`
	Outputs       []JobOutput `json:"outputs"`
}

// NewJobResult aggregates outputs; the first output doubles as OutputAssetID.
func NewJobResult(outputs []JobOutput) *JobResult {
	res := &JobResult{Outputs: outputs}
	if len(outputs) > 0 {
		res.OutputAssetID = outputs[0].AssetID
	}
	return res
}

// JobFilter narrows job listings. Empty fields are ignored.
type JobFilter struct {
	Status  JobStatus
	Type    JobType
	ModelID string
	Limit   int
	Offset  int
}
