package handlers

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/media"
	"studio/internal/storage"
)

type assetView struct {
	*domain.Asset
	SourceModelID   *string `json:"source_model_id"`
	SourceModelName *string `json:"source_model_name"`
}

// UploadAsset stores a multipart "file" field. Only images and videos are
// accepted.
func (a *App) UploadAsset(w http.ResponseWriter, r *http.Request) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "too_large", "upload exceeds size limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "file is required")
		return
	}
	defer file.Close()

	mimeType, _, _ := mime.ParseMediaType(header.Header.Get("Content-Type"))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = storage.MIMEForPath(header.Filename)
	}
	mediaType, ok := storage.MediaTypeOf(mimeType)
	if !ok {
		a.error(w, http.StatusBadRequest, "validation", "Only image/video supported")
		return
	}
	filename := header.Filename
	if strings.TrimSpace(filename) == "" {
		filename = "upload.bin"
	}

	ctx := r.Context()
	asset := &domain.Asset{ID: domain.NewID(), MediaType: mediaType, MIMEType: mimeType}
	stored, err := a.Store.SaveUpload(ctx, asset.ID, filename, file)
	if err != nil {
		a.internal(w, r, err, "failed to store upload")
		return
	}
	asset.FilePath = stored.RelPath
	asset.SizeBytes = stored.SizeBytes
	a.probe(ctx, asset, stored.AbsPath)

	created, err := a.Assets.InsertUpload(ctx, asset)
	if err != nil {
		a.internal(w, r, err, "failed to record upload")
		return
	}
	a.json(w, http.StatusCreated, created)
}

// probe fills dimensions and duration on a best-effort basis.
func (a *App) probe(ctx context.Context, asset *domain.Asset, absPath string) {
	switch asset.MediaType {
	case domain.MediaTypeImage:
		if w, h, err := media.ImageSizeFile(absPath); err == nil {
			asset.Width, asset.Height = &w, &h
		}
	case domain.MediaTypeVideo:
		if a.Prober == nil {
			return
		}
		meta, err := a.Prober.Probe(ctx, absPath)
		if err != nil {
			if !errors.Is(err, media.ErrProbeUnavailable) {
				a.Logger.Warn().Err(err).Str("asset_id", asset.ID).Msg("api: video probe failed")
			}
			return
		}
		asset.Width, asset.Height, asset.DurationSeconds = meta.Width, meta.Height, meta.DurationSeconds
	}
}

func (a *App) ListAssets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pageParams(r)
	assets, err := a.Assets.List(r.Context(), domain.AssetFilter{
		MediaType: domain.MediaType(strings.TrimSpace(q.Get("media_type"))),
		Origin:    domain.AssetOrigin(strings.TrimSpace(q.Get("origin"))),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		a.internal(w, r, err, "failed to list assets")
		return
	}
	views := make([]assetView, 0, len(assets))
	for i := range assets {
		views = append(views, a.withSourceModel(r.Context(), &assets[i]))
	}
	a.json(w, http.StatusOK, views)
}

func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.loadAsset(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, a.withSourceModel(r.Context(), asset))
}

// AssetContent streams the stored file with the asset's MIME type.
func (a *App) AssetContent(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.loadAsset(w, r)
	if !ok {
		return
	}
	f, err := a.Store.Open(asset.FilePath)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "Asset file not found")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		a.internal(w, r, err, "failed to read asset")
		return
	}
	w.Header().Set("Content-Type", asset.MIMEType)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// withSourceModel resolves the model that produced a generated asset. Lookup
// failures leave the fields empty.
func (a *App) withSourceModel(ctx context.Context, asset *domain.Asset) assetView {
	view := assetView{Asset: asset}
	if asset.SourceJobID == nil {
		return view
	}
	job, err := a.Jobs.Get(ctx, *asset.SourceJobID)
	if err != nil || job.ModelID == "" {
		return view
	}
	modelID := job.ModelID
	view.SourceModelID = &modelID
	if m, ok := a.Models.Get(modelID); ok && m.DisplayName != "" {
		name := m.DisplayName
		view.SourceModelName = &name
	}
	return view
}

func (a *App) loadAsset(w http.ResponseWriter, r *http.Request) (*domain.Asset, bool) {
	asset, err := a.Assets.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "Asset not found")
		return nil, false
	}
	if err != nil {
		a.internal(w, r, err, "failed to load asset")
		return nil, false
	}
	return asset, true
}
