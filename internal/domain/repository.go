package domain

import "context"

// JobRepository defines persistence for job entities. Every method is a
// single statement; terminal rows are never rewritten.
type JobRepository interface {
	Create(ctx context.Context, job *Job) (*Job, error)
	Get(ctx context.Context, jobID string) (*Job, error)
	List(ctx context.Context, filter JobFilter) ([]Job, error)
	// ListByStatus pages through jobs in one status, oldest first.
	ListByStatus(ctx context.Context, status JobStatus, limit, offset int) ([]Job, error)
	SetStatus(ctx context.Context, jobID string, status JobStatus, message *string) error
	// TransitionStatus moves a job from one status to another and reports
	// whether the row was in the expected status.
	TransitionStatus(ctx context.Context, jobID string, from, to JobStatus, message *string) (bool, error)
	SetSucceeded(ctx context.Context, jobID string, result *JobResult) error
	SetFailed(ctx context.Context, jobID, message string, detail *string) error
	RequestCancel(ctx context.Context, jobID string) error
}

// AssetRepository handles persistence for asset rows.
type AssetRepository interface {
	InsertUpload(ctx context.Context, asset *Asset) (*Asset, error)
	InsertGenerated(ctx context.Context, asset *Asset) (*Asset, error)
	Get(ctx context.Context, assetID string) (*Asset, error)
	List(ctx context.Context, filter AssetFilter) ([]Asset, error)
	// DeleteGenerated removes a generated asset row; uploads are never deleted.
	DeleteGenerated(ctx context.Context, assetID string) error
}

// JobAssetRepository links jobs to assets.
type JobAssetRepository interface {
	Add(ctx context.Context, jobID, assetID string, role JobAssetRole) error
	Remove(ctx context.Context, jobID, assetID string, role JobAssetRole) error
	ListByJob(ctx context.Context, jobID string) ([]JobAsset, error)
}

// SettingsRepository stores process-wide key/value configuration as JSON.
type SettingsRepository interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
