package runner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"

	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/media"
	"studio/internal/providers"
	"studio/internal/storage"
)

const (
	defaultImageMIME = "image/png"
	defaultVideoMIME = "video/mp4"
)

// storeImageOutputs materializes every item before writing any of them, so a
// bad item fails the job with nothing stored. A write failure part way
// through discards the outputs already recorded.
func (r *Runner) storeImageOutputs(ctx context.Context, job *domain.Job, model catalog.Model, out *providers.ImageOutput) ([]domain.JobOutput, error) {
	type pendingImage struct {
		data     []byte
		mimeType string
		url      string
	}
	pending := make([]pendingImage, 0, len(out.Items))
	for idx, item := range out.Items {
		data, mimeType, err := r.readImageItem(ctx, item)
		if err != nil {
			return nil, fmt.Errorf("image output %d: %w", idx, err)
		}
		pending = append(pending, pendingImage{data: data, mimeType: mimeType, url: item.URL})
	}

	var written outputSet
	outputs := make([]domain.JobOutput, 0, len(pending))
	for idx, p := range pending {
		assetID := domain.NewID()
		stored, err := r.deps.Store.SaveGenerated(ctx, assetID, extFor(p.mimeType, ".png"), p.data)
		if err != nil {
			r.discardOutputs(ctx, job.ID, written)
			return nil, fmt.Errorf("store image output: %w", err)
		}

		asset := &domain.Asset{
			ID:          assetID,
			MediaType:   domain.MediaTypeImage,
			FilePath:    stored.RelPath,
			MIMEType:    p.mimeType,
			SizeBytes:   stored.SizeBytes,
			SourceJobID: &job.ID,
			Metadata:    outputMetadata(model, idx),
		}
		if w, h, err := media.ImageSizeBytes(p.data); err == nil {
			asset.Width, asset.Height = &w, &h
		} else {
			r.logger.Debug().Err(err).Str("job_id", job.ID).Msg("runner: image probe failed")
		}
		if p.url != "" {
			asset.Metadata["source_url"] = p.url
		}
		written = append(written, asset)
		if err := r.recordOutput(ctx, job.ID, asset); err != nil {
			r.discardOutputs(ctx, job.ID, written)
			return nil, err
		}
		outputs = append(outputs, domain.JobOutput{
			AssetID:   assetID,
			MediaType: domain.MediaTypeImage,
			Role:      domain.RoleOutput,
			Index:     idx,
		})
	}
	return outputs, nil
}

// readImageItem materializes one provider item. A failed URL fetch is fatal.
func (r *Runner) readImageItem(ctx context.Context, item providers.ImageItem) ([]byte, string, error) {
	mimeType := item.MIMEType
	if mimeType == "" {
		mimeType = defaultImageMIME
	}
	switch {
	case len(item.Data) > 0:
		return item.Data, mimeType, nil
	case item.B64 != "":
		data, err := base64.StdEncoding.DecodeString(item.B64)
		if err != nil {
			return nil, "", fmt.Errorf("decode base64 image: %w", err)
		}
		return data, mimeType, nil
	case item.URL != "":
		data, contentType, err := r.fetch(ctx, item.URL)
		if err != nil {
			return nil, "", err
		}
		if item.MIMEType == "" && strings.HasPrefix(contentType, "image/") {
			mimeType = contentType
		}
		return data, mimeType, nil
	default:
		return nil, "", errors.New("unsupported image output item")
	}
}

func (r *Runner) fetch(ctx context.Context, url string) ([]byte, string, error) {
	resp, err := r.get(ctx, url)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", url, err)
	}
	return data, contentTypeOf(resp), nil
}

func (r *Runner) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create fetch request: %w", err)
	}
	resp, err := r.deps.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch output: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch output: status %d", resp.StatusCode)
	}
	return resp, nil
}

// storeVideoOutput saves inline bytes directly and downloads remote URIs
// through a temp file.
func (r *Runner) storeVideoOutput(ctx context.Context, job *domain.Job, model catalog.Model, out *providers.VideoOutput, parent *string) (domain.JobOutput, error) {
	if out == nil {
		return domain.JobOutput{}, &providers.NoOutputError{Media: "video"}
	}
	mimeType := out.MIMEType
	if mimeType == "" {
		mimeType = defaultVideoMIME
	}
	ext := extFor(mimeType, ".mp4")
	assetID := domain.NewID()

	var stored storage.StoredFile
	var err error
	switch {
	case len(out.Data) > 0:
		stored, err = r.deps.Store.SaveGenerated(ctx, assetID, ext, out.Data)
	case out.URI != "":
		stored, err = r.downloadVideo(ctx, assetID, ext, out.URI)
	default:
		return domain.JobOutput{}, &providers.NoOutputError{Media: "video"}
	}
	if err != nil {
		return domain.JobOutput{}, err
	}

	asset := &domain.Asset{
		ID:            assetID,
		MediaType:     domain.MediaTypeVideo,
		FilePath:      stored.RelPath,
		MIMEType:      mimeType,
		SizeBytes:     stored.SizeBytes,
		ParentAssetID: parent,
		SourceJobID:   &job.ID,
		Metadata:      outputMetadata(model, 0),
	}
	if out.URI != "" {
		asset.Metadata["source_uri"] = out.URI
	}
	if r.deps.Prober != nil {
		meta, err := r.deps.Prober.Probe(ctx, stored.AbsPath)
		if err == nil {
			asset.Width, asset.Height, asset.DurationSeconds = meta.Width, meta.Height, meta.DurationSeconds
		} else if !errors.Is(err, media.ErrProbeUnavailable) {
			r.logger.Debug().Err(err).Str("job_id", job.ID).Msg("runner: video probe failed")
		}
	}
	if err := r.recordOutput(ctx, job.ID, asset); err != nil {
		r.discardOutputs(ctx, job.ID, outputSet{asset})
		return domain.JobOutput{}, err
	}
	return domain.JobOutput{AssetID: assetID, MediaType: domain.MediaTypeVideo, Role: domain.RoleOutput, Index: 0}, nil
}

func (r *Runner) downloadVideo(ctx context.Context, assetID, ext, uri string) (storage.StoredFile, error) {
	tmp := r.deps.Store.TempPath(ext)
	defer os.Remove(tmp)

	switch {
	case strings.HasPrefix(uri, "gs://"):
		remote, err := r.deps.Remote(ctx)
		if err != nil {
			return storage.StoredFile{}, fmt.Errorf("remote store: %w", err)
		}
		if err := remote.DownloadToFile(ctx, uri, tmp); err != nil {
			return storage.StoredFile{}, fmt.Errorf("download %s: %w", uri, err)
		}
	case strings.HasPrefix(uri, "http://"), strings.HasPrefix(uri, "https://"):
		if err := r.downloadHTTP(ctx, uri, tmp); err != nil {
			return storage.StoredFile{}, err
		}
	default:
		return storage.StoredFile{}, fmt.Errorf("unsupported video uri %q", uri)
	}
	return r.deps.Store.SaveGeneratedFromFile(ctx, assetID, ext, tmp)
}

func (r *Runner) downloadHTTP(ctx context.Context, url, dst string) error {
	resp, err := r.get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("download video: %w", err)
	}
	return f.Close()
}

// recordOutput inserts the generated asset and links it to the job.
func (r *Runner) recordOutput(ctx context.Context, jobID string, asset *domain.Asset) error {
	if _, err := r.deps.Assets.InsertGenerated(ctx, asset); err != nil {
		return fmt.Errorf("insert output asset: %w", err)
	}
	if err := r.deps.JobAssets.Add(ctx, jobID, asset.ID, domain.RoleOutput); err != nil {
		return fmt.Errorf("link output asset: %w", err)
	}
	return nil
}

// outputSet is the generated assets a job has written so far.
type outputSet []*domain.Asset

// discardOutputs removes the links, rows and files of outputs that must not
// outlive a job that did not succeed. Cleanup runs detached from shutdown.
func (r *Runner) discardOutputs(ctx context.Context, jobID string, outputs outputSet) {
	ctx = context.WithoutCancel(ctx)
	for _, asset := range outputs {
		log := r.logger.With().Str("job_id", jobID).Str("asset_id", asset.ID).Logger()
		if err := r.deps.JobAssets.Remove(ctx, jobID, asset.ID, domain.RoleOutput); err != nil {
			log.Error().Err(err).Msg("runner: unlink discarded output failed")
		}
		if err := r.deps.Assets.DeleteGenerated(ctx, asset.ID); err != nil {
			log.Error().Err(err).Msg("runner: delete discarded output failed")
		}
		if err := r.deps.Store.Remove(asset.FilePath); err != nil {
			log.Error().Err(err).Msg("runner: remove discarded output file failed")
		}
	}
	if len(outputs) > 0 {
		r.logger.Info().Str("job_id", jobID).Int("outputs", len(outputs)).Msg("runner: discarded outputs")
	}
}

// discardResult drops every output listed in a result that could not be recorded.
func (r *Runner) discardResult(ctx context.Context, jobID string, result *domain.JobResult) {
	if result == nil {
		return
	}
	var outputs outputSet
	for _, out := range result.Outputs {
		asset, err := r.deps.Assets.Get(context.WithoutCancel(ctx), out.AssetID)
		if err != nil {
			r.logger.Error().Err(err).Str("job_id", jobID).Str("asset_id", out.AssetID).Msg("runner: load output for discard failed")
			continue
		}
		outputs = append(outputs, asset)
	}
	r.discardOutputs(ctx, jobID, outputs)
}

func outputMetadata(model catalog.Model, idx int) map[string]any {
	return map[string]any{
		"model_id":    model.ModelID,
		"provider_id": model.ProviderID,
		"index":       idx,
	}
}

func extFor(mimeType, fallback string) string {
	if ext := storage.ExtensionForMIME(mimeType); ext != "" {
		return ext
	}
	return fallback
}

func contentTypeOf(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}
