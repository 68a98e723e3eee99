package domain

import "time"

// MediaType enumerates asset media kinds.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// AssetOrigin records whether an asset was uploaded or produced by a job.
type AssetOrigin string

const (
	AssetOriginUpload    AssetOrigin = "upload"
	AssetOriginGenerated AssetOrigin = "generated"
)

// Asset represents a stored media file. Rows are immutable once inserted.
type Asset struct {
	ID              string         `json:"id"`
	MediaType       MediaType      `json:"media_type"`
	Origin          AssetOrigin    `json:"origin"`
	FilePath        string         `json:"file_path"`
	MIMEType        string         `json:"mime_type"`
	SizeBytes       int64          `json:"size_bytes"`
	Width           *int           `json:"width"`
	Height          *int           `json:"height"`
	DurationSeconds *float64       `json:"duration_seconds"`
	ParentAssetID   *string        `json:"parent_asset_id"`
	SourceJobID     *string        `json:"source_job_id"`
	Metadata        map[string]any `json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
}

// AssetFilter narrows asset listings. Empty fields are ignored.
type AssetFilter struct {
	MediaType MediaType
	Origin    AssetOrigin
	Limit     int
	Offset    int
}

// JobAssetRole describes how a job uses an asset.
type JobAssetRole string

const (
	RoleInputReference JobAssetRole = "input_reference"
	RoleInputStart     JobAssetRole = "input_start"
	RoleInputEnd       JobAssetRole = "input_end"
	RoleInputVideo     JobAssetRole = "input_video"
	RoleOutput         JobAssetRole = "output"
)

// JobAsset links a job to an asset it consumed or produced.
type JobAsset struct {
	JobID   string       `json:"job_id"`
	AssetID string       `json:"asset_id"`
	Role    JobAssetRole `json:"role"`
}
