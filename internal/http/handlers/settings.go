package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"studio/internal/domain"
	"studio/internal/infra/credentials"
)

type settingsView struct {
	DefaultAuthMode      domain.AuthMode `json:"default_auth_mode"`
	GoogleAPIKeyPresent  bool            `json:"google_api_key_present"`
	ArkAPIKeyPresent     bool            `json:"ark_api_key_present"`
	VertexSAPathPresent  bool            `json:"vertex_sa_path_present"`
	VertexProjectID      string          `json:"vertex_project_id"`
	VertexLocation       string          `json:"vertex_location"`
	VertexGCSBucket      string          `json:"vertex_gcs_bucket"`
	GCSHMACKeyConfigured bool            `json:"gcs_hmac_configured"`
}

type settingsUpdate struct {
	DefaultAuthMode *string `json:"default_auth_mode"`
	GoogleAPIKey    *string `json:"google_api_key"`
	ArkAPIKey       *string `json:"ark_api_key"`
	VertexSAPath    *string `json:"vertex_sa_path"`
	VertexProjectID *string `json:"vertex_project_id"`
	VertexLocation  *string `json:"vertex_location"`
	VertexGCSBucket *string `json:"vertex_gcs_bucket"`
	GCSHMACAccessID *string `json:"gcs_hmac_access_id"`
	GCSHMACSecret   *string `json:"gcs_hmac_secret"`
}

// GetSettings reports configuration without echoing secrets.
func (a *App) GetSettings(w http.ResponseWriter, r *http.Request) {
	view, err := a.settingsView(r.Context())
	if err != nil {
		a.internal(w, r, err, "failed to load settings")
		return
	}
	a.json(w, http.StatusOK, view)
}

// PutSettings writes the non-empty fields of the body and returns the
// resulting view.
func (a *App) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	ctx := r.Context()

	if v := deref(req.DefaultAuthMode); v != "" {
		mode := domain.AuthMode(v)
		if !mode.Valid() {
			a.error(w, http.StatusBadRequest, "validation", "default_auth_mode must be api_key or vertex")
			return
		}
		if err := a.Credentials.SetDefaultAuthMode(ctx, mode); err != nil {
			a.internal(w, r, err, "failed to save settings")
			return
		}
	}
	keys := []struct {
		provider string
		value    string
	}{
		{domain.ProviderGoogle, deref(req.GoogleAPIKey)},
		{domain.ProviderVolcengineArk, deref(req.ArkAPIKey)},
	}
	for _, k := range keys {
		if k.value == "" {
			continue
		}
		if err := a.Credentials.SetAPIKey(ctx, k.provider, k.value); err != nil {
			a.internal(w, r, err, "failed to save settings")
			return
		}
	}

	vertex := credentials.VertexConfig{
		ServiceAccountPath: deref(req.VertexSAPath),
		ProjectID:          deref(req.VertexProjectID),
		Location:           deref(req.VertexLocation),
		GCSBucket:          deref(req.VertexGCSBucket),
	}
	if err := credentials.ValidateBucket(vertex.GCSBucket); err != nil {
		a.error(w, http.StatusBadRequest, "validation", err.Error())
		return
	}
	if err := a.Credentials.SetVertex(ctx, vertex); err != nil {
		a.internal(w, r, err, "failed to save settings")
		return
	}

	id, secret := deref(req.GCSHMACAccessID), deref(req.GCSHMACSecret)
	if id != "" || secret != "" {
		if err := a.Credentials.SetGCSHMAC(ctx, credentials.HMACKey{AccessID: id, Secret: secret}); err != nil {
			a.error(w, http.StatusBadRequest, "validation", err.Error())
			return
		}
	}

	a.GetSettings(w, r)
}

func (a *App) settingsView(ctx context.Context) (settingsView, error) {
	var view settingsView
	var err error
	if view.DefaultAuthMode, err = a.Credentials.DefaultAuthMode(ctx); err != nil {
		return view, err
	}
	if view.GoogleAPIKeyPresent, err = a.Credentials.HasAPIKey(ctx, domain.ProviderGoogle); err != nil {
		return view, err
	}
	if view.ArkAPIKeyPresent, err = a.Credentials.HasAPIKey(ctx, domain.ProviderVolcengineArk); err != nil {
		return view, err
	}
	vc, err := a.Credentials.Vertex(ctx)
	if err != nil {
		return view, err
	}
	view.VertexSAPathPresent = vc.ServiceAccountPath != ""
	view.VertexProjectID = vc.ProjectID
	view.VertexLocation = vc.Location
	view.VertexGCSBucket = vc.GCSBucket

	_, err = a.Credentials.GCSHMAC(ctx)
	switch {
	case err == nil:
		view.GCSHMACKeyConfigured = true
	case !errors.Is(err, domain.ErrNotConfigured):
		return view, err
	}
	return view, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
