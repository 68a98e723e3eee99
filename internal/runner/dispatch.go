package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/domain/jsoncfg"
	"studio/internal/providers"
	"studio/internal/storage"
)

func (r *Runner) dispatch(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	switch job.Type {
	case domain.JobTypeImageGenerate:
		return r.runImageGenerate(ctx, job)
	case domain.JobTypeVideoGenerate:
		return r.runVideoGenerate(ctx, job)
	case domain.JobTypeVideoExtend:
		return r.runVideoExtend(ctx, job)
	default:
		return nil, fmt.Errorf("unsupported job_type %q", job.Type)
	}
}

// resolve returns the catalog entry and provider for a job.
func (r *Runner) resolve(job *domain.Job) (catalog.Model, providers.Provider, error) {
	model, ok := r.deps.Models.Get(job.ModelID)
	if !ok {
		return catalog.Model{}, nil, fmt.Errorf("unknown model_id %q", job.ModelID)
	}
	provider, ok := r.deps.Providers.Get(model.ProviderID)
	if !ok {
		return catalog.Model{}, nil, fmt.Errorf("provider %q not configured", model.ProviderID)
	}
	return model, provider, nil
}

func providerModel(model catalog.Model, capability string) string {
	if m := model.ProviderModelFor(capability); m != "" {
		return m
	}
	return model.ModelID
}

// makeClient authenticates against the provider per the job's auth mode.
func (r *Runner) makeClient(ctx context.Context, job *domain.Job, model catalog.Model, provider providers.Provider) (providers.Client, error) {
	switch job.AuthMode {
	case domain.AuthModeAPIKey:
		auth, ok := provider.(providers.APIKeyAuthenticator)
		if !ok {
			return nil, errors.New("provider does not support api_key auth")
		}
		key, err := r.deps.Credentials.APIKey(ctx, model.ProviderID)
		if err != nil {
			return nil, err
		}
		return auth.MakeClientAPIKey(key)
	case domain.AuthModeVertex:
		auth, ok := provider.(providers.VertexAuthenticator)
		if !ok {
			return nil, errors.New("provider does not support vertex auth")
		}
		creds, err := r.deps.VertexCredentials(ctx)
		if err != nil {
			return nil, err
		}
		return auth.MakeClientVertex(ctx, creds)
	default:
		return nil, fmt.Errorf("unknown auth mode %q", job.AuthMode)
	}
}

func (r *Runner) runImageGenerate(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	model, provider, err := r.resolve(job)
	if err != nil {
		return nil, err
	}
	var params jsoncfg.ImageParams
	if err := job.DecodeParams(&params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	params.Normalize()

	refs := make([]providers.ReferenceImage, 0, len(params.ReferenceIDs()))
	for _, id := range params.ReferenceIDs() {
		ref, err := r.loadImage(ctx, id)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}

	client, err := r.makeClient(ctx, job, model, provider)
	if err != nil {
		return nil, err
	}

	var out *providers.ImageOutput
	editor, canEdit := provider.(providers.ImageEditor)
	if canEdit && job.AuthMode == domain.AuthModeVertex && len(refs) == 1 && model.HasCapability(catalog.CapabilityImageEdit) {
		out, err = editor.EditImage(ctx, client, providers.EditRequest{
			ProviderModel: providerModel(model, catalog.CapabilityImageEdit),
			Prompt:        params.Prompt,
			AspectRatio:   params.AspectRatio,
			Reference:     refs[0],
		})
	} else {
		gen, ok := provider.(providers.ImageGenerator)
		if !ok {
			return nil, errors.New("provider does not support image generation")
		}
		req := providers.ImageRequest{
			ProviderModel: providerModel(model, catalog.CapabilityImageGenerate),
			Prompt:        params.Prompt,
			AspectRatio:   params.AspectRatio,
			ImageSize:     params.ImageSize,
			References:    refs,
			Watermark:     params.Watermark,
		}
		if params.SequentialImageGeneration != nil {
			req.SequentialImageGeneration = *params.SequentialImageGeneration
		}
		if opts := params.SequentialImageGenerationOptions; opts != nil {
			req.MaxImages = opts.MaxImages
		}
		out, err = gen.GenerateImage(ctx, client, req)
	}
	if err != nil {
		return nil, err
	}
	if out == nil || len(out.Items) == 0 {
		return nil, &providers.NoOutputError{Media: "image"}
	}

	outputs, err := r.storeImageOutputs(ctx, job, model, out)
	if err != nil {
		return nil, err
	}
	return domain.NewJobResult(outputs), nil
}

func (r *Runner) runVideoGenerate(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	model, provider, err := r.resolve(job)
	if err != nil {
		return nil, err
	}
	gen, ok := provider.(providers.VideoGenerator)
	if !ok {
		return nil, errors.New("provider does not support video generation")
	}
	var params jsoncfg.VideoParams
	if err := job.DecodeParams(&params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	params.Normalize()

	req := providers.VideoRequest{
		ProviderModel:   providerModel(model, catalog.CapabilityVideoGenerate),
		Prompt:          params.Prompt,
		DurationSeconds: params.DurationSeconds,
		AspectRatio:     params.AspectRatio,
		PollInterval:    r.opts.PollInterval,
		MaxPolls:        r.opts.MaxPolls,
	}
	if id := strings.TrimSpace(params.StartImageAssetID); id != "" {
		img, err := r.loadImage(ctx, id)
		if err != nil {
			return nil, err
		}
		req.StartImage = &img
	}
	if id := strings.TrimSpace(params.EndImageAssetID); id != "" {
		img, err := r.loadImage(ctx, id)
		if err != nil {
			return nil, err
		}
		req.EndImage = &img
	}

	client, err := r.makeClient(ctx, job, model, provider)
	if err != nil {
		return nil, err
	}
	out, err := gen.GenerateVideo(ctx, client, req)
	if err != nil {
		return nil, err
	}
	output, err := r.storeVideoOutput(ctx, job, model, out, nil)
	if err != nil {
		return nil, err
	}
	return domain.NewJobResult([]domain.JobOutput{output}), nil
}

// runVideoExtend uploads the input video to the configured bucket, extends it
// on Vertex and stores the result as a child of the input asset.
func (r *Runner) runVideoExtend(ctx context.Context, job *domain.Job) (*domain.JobResult, error) {
	if job.AuthMode != domain.AuthModeVertex {
		return nil, errors.New("video.extend requires vertex auth")
	}
	model, provider, err := r.resolve(job)
	if err != nil {
		return nil, err
	}
	ext, ok := provider.(providers.VideoExtender)
	if !ok {
		return nil, errors.New("provider does not support video extension")
	}
	var params jsoncfg.ExtendParams
	if err := job.DecodeParams(&params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	params.Normalize()

	input, err := r.loadAsset(ctx, params.InputVideoAssetID)
	if err != nil {
		return nil, err
	}
	if input.MediaType != domain.MediaTypeVideo {
		return nil, fmt.Errorf("asset %s is not a video", input.ID)
	}
	vc, err := r.deps.Credentials.Vertex(ctx)
	if err != nil {
		return nil, err
	}
	if vc.GCSBucket == "" {
		return nil, fmt.Errorf("%s: %w", domain.SettingVertexGCSBucket, domain.ErrNotConfigured)
	}

	remote, err := r.deps.Remote(ctx)
	if err != nil {
		return nil, fmt.Errorf("remote store: %w", err)
	}
	localPath, err := r.deps.Store.Resolve(input.FilePath)
	if err != nil {
		return nil, err
	}
	object := "inputs/" + input.ID + path.Ext(input.FilePath)
	inputURI, err := remote.UploadFile(ctx, vc.GCSBucket, object, localPath)
	if err != nil {
		return nil, fmt.Errorf("upload input video: %w", err)
	}

	client, err := r.makeClient(ctx, job, model, provider)
	if err != nil {
		return nil, err
	}
	out, err := ext.ExtendVideo(ctx, client, providers.ExtendRequest{
		ProviderModel:   providerModel(model, catalog.CapabilityVideoExtend),
		Prompt:          params.Prompt,
		InputVideoURI:   inputURI,
		InputMIMEType:   input.MIMEType,
		ExtendSeconds:   params.ExtendSeconds,
		AspectRatio:     params.AspectRatio,
		OutputURIPrefix: fmt.Sprintf("gs://%s/outputs/%s/", vc.GCSBucket, job.ID),
		PollInterval:    r.opts.PollInterval,
		MaxPolls:        r.opts.MaxPolls,
	})
	if err != nil {
		return nil, err
	}
	parent := input.ID
	output, err := r.storeVideoOutput(ctx, job, model, out, &parent)
	if err != nil {
		return nil, err
	}
	return domain.NewJobResult([]domain.JobOutput{output}), nil
}

func (r *Runner) loadAsset(ctx context.Context, assetID string) (*domain.Asset, error) {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return nil, errors.New("asset id is required")
	}
	asset, err := r.deps.Assets.Get(ctx, assetID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("asset %s not found", assetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load asset %s: %w", assetID, err)
	}
	return asset, nil
}

// loadImage reads an image asset's bytes through the asset store.
func (r *Runner) loadImage(ctx context.Context, assetID string) (providers.ReferenceImage, error) {
	asset, err := r.loadAsset(ctx, assetID)
	if err != nil {
		return providers.ReferenceImage{}, err
	}
	f, err := r.deps.Store.Open(asset.FilePath)
	if err != nil {
		return providers.ReferenceImage{}, fmt.Errorf("open asset %s: %w", asset.ID, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return providers.ReferenceImage{}, fmt.Errorf("read asset %s: %w", asset.ID, err)
	}
	mime := asset.MIMEType
	if mime == "" {
		mime = storage.MIMEForPath(asset.FilePath)
	}
	return providers.ReferenceImage{Data: data, MIMEType: mime}, nil
}
