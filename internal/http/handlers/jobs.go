package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"studio/internal/domain"
	"studio/internal/validation"
	"studio/pkg/zip"
)

const defaultListLimit = 50

type jobDetail struct {
	*domain.Job
	JobAssets []domain.JobAsset `json:"job_assets"`
}

type cloneRequest struct {
	Prompt *string                  `json:"prompt"`
	Params map[string]any           `json:"params"`
	Auth   *validation.AuthOverride `json:"auth"`
}

func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req validation.JobCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	a.createJob(w, r, req)
}

// createJob validates req, persists the job with its input links and hands
// it to the runner.
func (a *App) createJob(w http.ResponseWriter, r *http.Request, req validation.JobCreateRequest) {
	ctx := r.Context()
	v, err := a.Validator.Validate(ctx, req)
	if err != nil {
		var verr *validation.ValidationError
		if errors.As(err, &verr) {
			a.error(w, http.StatusBadRequest, "validation", verr.Message)
			return
		}
		a.internal(w, r, err, "failed to validate job")
		return
	}

	job, err := a.Jobs.Create(ctx, &domain.Job{
		Type:     v.JobType,
		ModelID:  v.ModelID,
		AuthMode: v.AuthMode,
		Params:   v.Params,
	})
	if err != nil {
		a.internal(w, r, err, "failed to create job")
		return
	}
	for _, in := range v.Inputs {
		if err := a.JobAssets.Add(ctx, job.ID, in.AssetID, in.Role); err != nil {
			a.internal(w, r, err, "failed to link job inputs")
			return
		}
	}
	if a.Runner != nil {
		a.Runner.Enqueue(job.ID)
	}
	a.Logger.Info().Str("job_id", job.ID).Str("job_type", string(job.Type)).Str("model_id", job.ModelID).Msg("api: job queued")
	a.json(w, http.StatusAccepted, job)
}

func (a *App) ListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := pageParams(r)
	jobs, err := a.Jobs.List(r.Context(), domain.JobFilter{
		Status:  domain.JobStatus(strings.TrimSpace(q.Get("status"))),
		Type:    domain.JobType(strings.TrimSpace(q.Get("job_type"))),
		ModelID: strings.TrimSpace(q.Get("model_id")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		a.internal(w, r, err, "failed to list jobs")
		return
	}
	a.json(w, http.StatusOK, jobs)
}

func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	links, err := a.JobAssets.ListByJob(r.Context(), job.ID)
	if err != nil {
		a.internal(w, r, err, "failed to load job assets")
		return
	}
	a.json(w, http.StatusOK, jobDetail{Job: job, JobAssets: links})
}

// CancelJob cancels a queued job outright and flags a running one for
// cooperative cancellation.
func (a *App) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if job.Status == domain.JobStatusQueued {
		canceled, err := a.Jobs.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusCanceled, nil)
		if err != nil {
			a.internal(w, r, err, "failed to cancel job")
			return
		}
		if canceled {
			a.json(w, http.StatusOK, map[string]bool{"ok": true})
			return
		}
	}
	err := a.Jobs.RequestCancel(ctx, job.ID)
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "conflict", "job already finished")
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "Job not found")
	case err != nil:
		a.internal(w, r, err, "failed to cancel job")
	default:
		a.json(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

// CloneJob creates a new job from an existing one. The body may override the
// prompt, merge params and switch the auth mode.
func (a *App) CloneJob(w http.ResponseWriter, r *http.Request) {
	src, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	var body cloneRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	params := maps.Clone(src.Params)
	if params == nil {
		params = map[string]any{}
	}
	if body.Prompt != nil {
		params["prompt"] = *body.Prompt
	}
	maps.Copy(params, body.Params)

	auth := &validation.AuthOverride{Mode: string(src.AuthMode)}
	if body.Auth != nil && strings.TrimSpace(body.Auth.Mode) != "" {
		auth.Mode = body.Auth.Mode
	}
	a.createJob(w, r, validation.JobCreateRequest{
		JobType: string(src.Type),
		ModelID: src.ModelID,
		Params:  params,
		Auth:    auth,
	})
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "Job not found")
		return nil, false
	}
	if err != nil {
		a.internal(w, r, err, "failed to load job")
		return nil, false
	}
	return job, true
}

func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// JobOutputsArchive streams every output asset of a succeeded job as one zip file.
func (a *App) JobOutputsArchive(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusSucceeded {
		a.error(w, http.StatusConflict, "conflict", "Job has not succeeded")
		return
	}
	ctx := r.Context()
	links, err := a.JobAssets.ListByJob(ctx, job.ID)
	if err != nil {
		a.internal(w, r, err, "failed to load job assets")
		return
	}

	var entries []zip.Entry
	for _, link := range links {
		if link.Role != domain.RoleOutput {
			continue
		}
		asset, err := a.Assets.Get(ctx, link.AssetID)
		if err != nil {
			a.internal(w, r, err, "failed to load output asset")
			return
		}
		relPath := asset.FilePath
		entries = append(entries, zip.Entry{
			Name:     fmt.Sprintf("%02d-%s%s", len(entries)+1, asset.ID, path.Ext(relPath)),
			Modified: asset.CreatedAt,
			Open: func() (io.ReadCloser, error) {
				return a.Store.Open(relPath)
			},
		})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "Job has no outputs")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, job.ID))
	if err := zip.Write(w, entries); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("api: failed to stream outputs archive")
	}
}
