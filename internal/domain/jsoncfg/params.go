package jsoncfg

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	// DefaultImageAspectRatio is used when an image job omits the aspect ratio.
	DefaultImageAspectRatio = "1:1"
	// DefaultVideoAspectRatio is used when a video job omits the aspect ratio.
	DefaultVideoAspectRatio = "16:9"
	// DefaultImageSize is the resolution preset sent to providers by default.
	DefaultImageSize = "1k"
	// DefaultVideoDurationSeconds applies to video jobs without a duration.
	DefaultVideoDurationSeconds = 5
	// DefaultExtendSeconds applies to extend jobs without extend_seconds.
	DefaultExtendSeconds = 5

	AspectRatioAuto = "auto"
)

// SequentialOptions tunes batched image generation.
type SequentialOptions struct {
	MaxImages *int `json:"max_images,omitempty"`
}

// ImageParams is the params contract of image.generate jobs.
type ImageParams struct {
	Prompt                           string             `json:"prompt"`
	AspectRatio                      string             `json:"aspect_ratio"`
	ImageSize                        string             `json:"image_size"`
	ReferenceImageAssetID            string             `json:"reference_image_asset_id"`
	ReferenceImageAssetIDs           []string           `json:"reference_image_asset_ids"`
	SequentialImageGeneration        *string            `json:"sequential_image_generation"`
	SequentialImageGenerationOptions *SequentialOptions `json:"sequential_image_generation_options"`
	Watermark                        *bool              `json:"watermark"`
}

// Normalize applies server defaults.
func (p *ImageParams) Normalize() {
	if p == nil {
		return
	}
	if strings.TrimSpace(p.AspectRatio) == "" {
		p.AspectRatio = DefaultImageAspectRatio
	}
	if strings.TrimSpace(p.ImageSize) == "" {
		p.ImageSize = DefaultImageSize
	}
}

// ReferenceIDs returns the ordered, de-duplicated reference asset ids. The
// single-reference field always comes first.
func (p ImageParams) ReferenceIDs() []string {
	var ids []string
	seen := map[string]struct{}{}
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	add(p.ReferenceImageAssetID)
	for _, id := range p.ReferenceImageAssetIDs {
		add(id)
	}
	return ids
}

// VideoParams is the params contract of video.generate jobs.
type VideoParams struct {
	Prompt            string `json:"prompt"`
	AspectRatio       string `json:"aspect_ratio"`
	DurationSeconds   int    `json:"duration_seconds"`
	StartImageAssetID string `json:"start_image_asset_id"`
	EndImageAssetID   string `json:"end_image_asset_id"`
}

// Normalize applies server defaults.
func (p *VideoParams) Normalize() {
	if p == nil {
		return
	}
	if strings.TrimSpace(p.AspectRatio) == "" {
		p.AspectRatio = DefaultVideoAspectRatio
	}
	if p.DurationSeconds <= 0 {
		p.DurationSeconds = DefaultVideoDurationSeconds
	}
}

// ExtendParams is the params contract of video.extend jobs.
type ExtendParams struct {
	Prompt            string `json:"prompt"`
	InputVideoAssetID string `json:"input_video_asset_id"`
	ExtendSeconds     int    `json:"extend_seconds"`
	AspectRatio       string `json:"aspect_ratio"`
}

// Normalize applies server defaults.
func (p *ExtendParams) Normalize() {
	if p == nil {
		return
	}
	if p.ExtendSeconds <= 0 {
		p.ExtendSeconds = DefaultExtendSeconds
	}
}

// Decode converts free-form params into dst.
func Decode(params map[string]any, dst any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func MustMarshal(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("json marshal: %w", err))
	}
	return b
}
