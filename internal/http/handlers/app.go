// Package handlers implements the HTTP surface over the job runner,
// repositories and asset store.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/media"
	"studio/internal/storage"
	"studio/internal/validation"
)

// Enqueuer hands created jobs to the runner.
type Enqueuer interface {
	Enqueue(jobID string)
	QueueLen() int
}

// Pinger checks database connectivity.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ModelCatalog is the subset of the catalog the API reads.
type ModelCatalog interface {
	Get(modelID string) (catalog.Model, bool)
	List() []catalog.Model
	Reload() error
}

type App struct {
	Jobs        domain.JobRepository
	Assets      domain.AssetRepository
	JobAssets   domain.JobAssetRepository
	Models      ModelCatalog
	Credentials *credentials.Store
	Store       *storage.FileStore
	Validator   *validation.Validator
	Runner      Enqueuer
	DB          Pinger
	Prober      *media.VideoProber
	Logger      infra.Logger

	MaxUploadBytes int64
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) internal(w http.ResponseWriter, r *http.Request, err error, message string) {
	a.Logger.Error().Err(err).Str("path", r.URL.Path).Msg("api: " + message)
	a.error(w, http.StatusInternalServerError, "internal", message)
}
