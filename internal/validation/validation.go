// Package validation normalizes job creation requests against the model
// catalog and stored settings before anything is persisted.
package validation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/infra/credentials"
	"studio/internal/providers"
)

// ValidationError is a user-facing request rejection.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// AuthOverride selects an auth mode for one job.
type AuthOverride struct {
	Mode string `json:"mode"`
}

// JobCreateRequest is the body accepted by job creation.
type JobCreateRequest struct {
	JobType string         `json:"job_type"`
	ModelID string         `json:"model_id"`
	Prompt  *string        `json:"prompt,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	Auth    *AuthOverride  `json:"auth,omitempty"`
}

// Input is an asset the job consumes.
type Input struct {
	AssetID string
	Role    domain.JobAssetRole
}

// ValidatedJob is ready to be persisted as a queued job.
type ValidatedJob struct {
	JobType  domain.JobType
	ModelID  string
	AuthMode domain.AuthMode
	Params   map[string]any
	Inputs   []Input
}

// Models resolves catalog entries.
type Models interface {
	Get(modelID string) (catalog.Model, bool)
}

// Assets resolves stored assets.
type Assets interface {
	Get(ctx context.Context, assetID string) (*domain.Asset, error)
}

type Validator struct {
	models      Models
	credentials *credentials.Store
	assets      Assets
}

func New(models Models, creds *credentials.Store, assets Assets) *Validator {
	return &Validator{models: models, credentials: creds, assets: assets}
}

// Validate checks req and returns the normalized job. Rejections are
// *ValidationError; any other error is an infrastructure failure.
func (v *Validator) Validate(ctx context.Context, req JobCreateRequest) (*ValidatedJob, error) {
	jobType := domain.JobType(strings.TrimSpace(req.JobType))
	modelID := strings.TrimSpace(req.ModelID)
	if jobType == "" {
		return nil, invalid("job_type is required")
	}
	if modelID == "" {
		return nil, invalid("model_id is required")
	}
	if !jobType.Valid() {
		return nil, invalid("Unsupported job_type")
	}

	model, ok := v.models.Get(modelID)
	if !ok {
		return nil, invalid("Unknown model_id")
	}
	if model.ComingSoon {
		return nil, invalid("Model is coming soon")
	}
	if !model.SupportsJobType(jobType) {
		return nil, invalid("job_type not supported for model")
	}

	authMode, err := v.resolveAuthMode(ctx, req.Auth)
	if err != nil {
		return nil, err
	}
	if !model.SupportsAuth(authMode) {
		return nil, invalid("Auth mode not supported for model")
	}

	params := maps.Clone(req.Params)
	if params == nil {
		params = map[string]any{}
	}
	if req.Prompt != nil {
		if _, ok := params["prompt"]; !ok {
			params["prompt"] = *req.Prompt
		}
	}
	if prompt, _ := params["prompt"].(string); model.PromptMaxChars > 0 && utf8.RuneCountInString(prompt) > model.PromptMaxChars {
		return nil, invalid("prompt exceeds %d characters", model.PromptMaxChars)
	}

	job := &ValidatedJob{JobType: jobType, ModelID: modelID, AuthMode: authMode, Params: params}
	var ratioSource *domain.Asset
	switch jobType {
	case domain.JobTypeImageGenerate:
		ratioSource, err = v.checkImage(ctx, model, job)
	case domain.JobTypeVideoGenerate:
		ratioSource, err = v.checkVideo(ctx, model, job)
	case domain.JobTypeVideoExtend:
		err = v.checkExtend(ctx, job)
	}
	if err != nil {
		return nil, err
	}

	if err := normalizeAspectRatio(params, model, ratioSource); err != nil {
		return nil, err
	}
	return job, nil
}

// resolveAuthMode prefers an explicit valid override, then the stored
// default, then api_key.
func (v *Validator) resolveAuthMode(ctx context.Context, override *AuthOverride) (domain.AuthMode, error) {
	if override != nil {
		if mode := domain.AuthMode(strings.TrimSpace(override.Mode)); mode.Valid() {
			return mode, nil
		}
	}
	if v.credentials == nil {
		return domain.AuthModeAPIKey, nil
	}
	mode, err := v.credentials.DefaultAuthMode(ctx)
	if err != nil {
		return "", fmt.Errorf("load default auth mode: %w", err)
	}
	return mode, nil
}

func (v *Validator) checkImage(ctx context.Context, model catalog.Model, job *ValidatedJob) (*domain.Asset, error) {
	var p jsoncfg.ImageParams
	if err := jsoncfg.Decode(job.Params, &p); err != nil {
		return nil, invalid("invalid params: %v", err)
	}

	refs := p.ReferenceIDs()
	if len(refs) > 0 && !model.ReferenceImageSupported {
		return nil, invalid("reference_image not supported for model")
	}
	if model.MaxReferenceImages > 0 && len(refs) > model.MaxReferenceImages {
		return nil, invalid("too many reference images (max %d)", model.MaxReferenceImages)
	}

	outputs := 1
	if p.SequentialImageGeneration != nil && *p.SequentialImageGeneration != "" {
		mode := *p.SequentialImageGeneration
		if mode != providers.SequentialAuto && mode != providers.SequentialDisabled {
			return nil, invalid("sequential_image_generation must be auto or disabled")
		}
		if !model.SequentialImageGenerationSupported {
			return nil, invalid("sequential_image_generation not supported for model")
		}
	}
	if opts := p.SequentialImageGenerationOptions; opts != nil && opts.MaxImages != nil {
		if !model.SequentialImageGenerationSupported {
			return nil, invalid("sequential_image_generation not supported for model")
		}
		n := *opts.MaxImages
		if n < 1 {
			return nil, invalid("max_images must be at least 1")
		}
		if model.MaxOutputImages > 0 && n > model.MaxOutputImages {
			return nil, invalid("max_images exceeds %d", model.MaxOutputImages)
		}
		outputs = n
	}
	if model.MaxTotalImages > 0 && len(refs)+outputs > model.MaxTotalImages {
		return nil, invalid("reference and output images exceed %d", model.MaxTotalImages)
	}

	if size := strings.TrimSpace(p.ImageSize); size != "" && len(model.ResolutionPresets) > 0 {
		if !slices.ContainsFunc(model.ResolutionPresets, func(s string) bool { return strings.EqualFold(s, size) }) {
			return nil, invalid("image_size not supported")
		}
	}

	var first *domain.Asset
	for i, id := range refs {
		asset, err := v.imageAsset(ctx, id, "reference image")
		if err != nil {
			return nil, err
		}
		if i == 0 {
			first = asset
		}
		job.Inputs = append(job.Inputs, Input{AssetID: id, Role: domain.RoleInputReference})
	}
	return first, nil
}

func (v *Validator) checkVideo(ctx context.Context, model catalog.Model, job *ValidatedJob) (*domain.Asset, error) {
	var p jsoncfg.VideoParams
	if err := jsoncfg.Decode(job.Params, &p); err != nil {
		return nil, invalid("invalid params: %v", err)
	}
	if p.DurationSeconds != 0 && len(model.DurationSeconds) > 0 && !slices.Contains(model.DurationSeconds, p.DurationSeconds) {
		return nil, invalid("duration_seconds not supported")
	}

	start := strings.TrimSpace(p.StartImageAssetID)
	end := strings.TrimSpace(p.EndImageAssetID)
	if (start != "" || end != "") && !model.StartEndImageSupported {
		return nil, invalid("start/end images not supported for model")
	}

	var source *domain.Asset
	if start != "" {
		asset, err := v.imageAsset(ctx, start, "start image")
		if err != nil {
			return nil, err
		}
		source = asset
		job.Inputs = append(job.Inputs, Input{AssetID: start, Role: domain.RoleInputStart})
	}
	if end != "" {
		asset, err := v.imageAsset(ctx, end, "end image")
		if err != nil {
			return nil, err
		}
		if source == nil {
			source = asset
		}
		job.Inputs = append(job.Inputs, Input{AssetID: end, Role: domain.RoleInputEnd})
	}
	return source, nil
}

func (v *Validator) checkExtend(ctx context.Context, job *ValidatedJob) error {
	if job.AuthMode != domain.AuthModeVertex {
		return invalid("video.extend requires vertex auth")
	}
	if v.credentials == nil {
		return invalid("VERTEX_GCS_BUCKET not configured")
	}
	vc, err := v.credentials.Vertex(ctx)
	if err != nil {
		return fmt.Errorf("load vertex settings: %w", err)
	}
	if vc.GCSBucket == "" {
		return invalid("VERTEX_GCS_BUCKET not configured")
	}

	var p jsoncfg.ExtendParams
	if err := jsoncfg.Decode(job.Params, &p); err != nil {
		return invalid("invalid params: %v", err)
	}
	id := strings.TrimSpace(p.InputVideoAssetID)
	if id == "" {
		return invalid("input_video_asset_id is required")
	}
	asset, err := v.lookup(ctx, id, "input video")
	if err != nil {
		return err
	}
	if asset.MediaType != domain.MediaTypeVideo {
		return invalid("input video asset must be a video")
	}
	job.Inputs = append(job.Inputs, Input{AssetID: id, Role: domain.RoleInputVideo})
	return nil
}

func (v *Validator) imageAsset(ctx context.Context, id, label string) (*domain.Asset, error) {
	asset, err := v.lookup(ctx, id, label)
	if err != nil {
		return nil, err
	}
	if asset.MediaType != domain.MediaTypeImage {
		return nil, invalid("%s asset must be an image", label)
	}
	return asset, nil
}

func (v *Validator) lookup(ctx context.Context, id, label string) (*domain.Asset, error) {
	if v.assets == nil {
		return nil, invalid("%s asset not found", label)
	}
	asset, err := v.assets.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, invalid("%s asset not found", label)
	}
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", id, err)
	}
	return asset, nil
}

// normalizeAspectRatio checks a supplied ratio against the model and resolves
// "auto" to the supported ratio closest to the source asset's shape.
func normalizeAspectRatio(params map[string]any, model catalog.Model, source *domain.Asset) error {
	aspect, _ := params["aspect_ratio"].(string)
	if aspect == "" {
		return nil
	}

	supported := slices.DeleteFunc(slices.Clone(model.AspectRatios), func(r string) bool { return r == jsoncfg.AspectRatioAuto })
	if aspect != jsoncfg.AspectRatioAuto {
		if len(supported) > 0 && !slices.Contains(supported, aspect) {
			return invalid("aspect_ratio not supported")
		}
		return nil
	}

	fallback := jsoncfg.DefaultVideoAspectRatio
	if model.MediaType == domain.MediaTypeImage {
		fallback = jsoncfg.DefaultImageAspectRatio
	}
	params["aspect_ratio"] = fallback
	if source == nil || len(supported) == 0 || source.Width == nil || source.Height == nil || *source.Width <= 0 || *source.Height <= 0 {
		return nil
	}
	if chosen, ok := nearestRatio(float64(*source.Width)/float64(*source.Height), supported); ok {
		params["aspect_ratio"] = chosen
	}
	return nil
}

func nearestRatio(target float64, candidates []string) (string, bool) {
	best, bestDiff := "", math.Inf(1)
	for _, r := range candidates {
		v, ok := parseRatio(r)
		if !ok {
			continue
		}
		if d := math.Abs(v - target); d < bestDiff {
			best, bestDiff = r, d
		}
	}
	return best, best != ""
}

func parseRatio(r string) (float64, bool) {
	a, b, ok := strings.Cut(r, ":")
	if !ok {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, false
	}
	den, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}
