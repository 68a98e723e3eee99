package handlers_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"studio/internal/adapter/repo"
	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/http/handlers"
	"studio/internal/http/httpapi"
	"studio/internal/infra/credentials"
	"studio/internal/infra/infratest"
	"studio/internal/storage"
	"studio/internal/validation"
)

type enqueueRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (e *enqueueRecorder) Enqueue(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ids = append(e.ids, id)
}

func (e *enqueueRecorder) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.ids)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type testAPI struct {
	handler http.Handler
	jobs    *repo.JobRepositorySQL
	assets  *repo.AssetRepositorySQL
	links   *repo.JobAssetRepositorySQL
	store   *storage.FileStore
	queue   *enqueueRecorder
}

func newTestAPI(t *testing.T, rateLimit int) *testAPI {
	t.Helper()
	db := infratest.OpenSQLite(t)
	models, err := catalog.Load("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	jobs := repo.NewJobRepository(db)
	assets := repo.NewAssetRepository(db)
	creds := credentials.NewStore(repo.NewSettingsRepository(db))
	links := repo.NewJobAssetRepository(db)
	queue := &enqueueRecorder{}
	app := &handlers.App{
		Jobs:           jobs,
		Assets:         assets,
		JobAssets:      links,
		Models:         models,
		Credentials:    creds,
		Store:          store,
		Validator:      validation.New(models, creds, assets),
		Runner:         queue,
		Logger:         zerolog.Nop(),
		MaxUploadBytes: 1 << 20,
	}
	return &testAPI{
		handler: httpapi.NewRouter(app, httpapi.Options{Logger: zerolog.Nop(), CORSAllowedOrigins: []string{"*"}, RateLimitPerMin: rateLimit}),
		jobs:    jobs,
		assets:  assets,
		links:   links,
		store:   store,
		queue:   queue,
	}
}

func (api *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func (api *testAPI) upload(t *testing.T, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	_, _ = part.Write(data)
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/assets/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func pngBytes(w, h int) []byte {
	var buf bytes.Buffer
	_ = png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)))
	return buf.Bytes()
}

func (api *testAPI) createJob(t *testing.T, body map[string]any) domain.Job {
	t.Helper()
	rec := api.do(t, http.MethodPost, "/api/jobs", body)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Job](t, rec)
}

type healthBody struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queued   int    `json:"queued"`
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, 0)
	api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "x"})

	rec := api.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode[healthBody](t, rec)
	if got.Status != "ok" || got.Database != "ok" || got.Queued != 1 {
		t.Fatalf("health = %+v", got)
	}
}

func TestHealthReportsDatabaseFailure(t *testing.T) {
	app := &handlers.App{
		Runner: &enqueueRecorder{},
		DB:     pingFunc(func(ctx context.Context) error { return errors.New("database is locked") }),
		Logger: zerolog.Nop(),
	}
	h := httpapi.NewRouter(app, httpapi.Options{Logger: zerolog.Nop()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if got := decode[healthBody](t, rec); got.Status != "degraded" || got.Database != "unavailable" {
		t.Fatalf("health = %+v", got)
	}
}

func TestCreateJobQueuesAndLinksInputs(t *testing.T) {
	api := newTestAPI(t, 0)
	up := api.upload(t, "ref.png", pngBytes(4, 2))
	if up.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", up.Code, up.Body.String())
	}
	ref := decode[domain.Asset](t, up)

	job := api.createJob(t, map[string]any{
		"job_type": "image.generate",
		"model_id": "nano-banana",
		"prompt":   "a fox in the snow",
		"params": map[string]any{
			"reference_image_asset_id": ref.ID,
			"aspect_ratio":             "auto",
		},
	})
	if job.Status != domain.JobStatusQueued || job.AuthMode != domain.AuthModeAPIKey {
		t.Fatalf("job = %+v", job)
	}
	if job.Params["prompt"] != "a fox in the snow" || job.Params["aspect_ratio"] != "16:9" {
		t.Fatalf("params = %#v", job.Params)
	}
	if len(api.queue.ids) != 1 || api.queue.ids[0] != job.ID {
		t.Fatalf("enqueued = %v, want [%s]", api.queue.ids, job.ID)
	}

	rec := api.do(t, http.MethodGet, "/api/jobs/"+job.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	detail := decode[struct {
		ID        string            `json:"id"`
		JobAssets []domain.JobAsset `json:"job_assets"`
	}](t, rec)
	if detail.ID != job.ID || len(detail.JobAssets) != 1 {
		t.Fatalf("detail = %+v", detail)
	}
	if link := detail.JobAssets[0]; link.AssetID != ref.ID || link.Role != domain.RoleInputReference {
		t.Fatalf("link = %+v", link)
	}
}

func TestCreateJobRejections(t *testing.T) {
	api := newTestAPI(t, 0)

	tests := []struct {
		name string
		body any
		code string
		msg  string
	}{
		{"bad json", "{", "bad_request", "invalid payload"},
		{"unknown model", map[string]any{"job_type": "image.generate", "model_id": "nope"}, "validation", "Unknown model_id"},
		{"unsupported type", map[string]any{"job_type": "audio.generate", "model_id": "nano-banana"}, "validation", "Unsupported job_type"},
		{"missing reference", map[string]any{
			"job_type": "image.generate",
			"model_id": "nano-banana",
			"params":   map[string]any{"reference_image_asset_id": "missing"},
		}, "validation", "reference image asset not found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, http.MethodPost, "/api/jobs", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			got := decode[errorResponse](t, rec)
			if got.Error.Code != tc.code || got.Error.Message != tc.msg {
				t.Fatalf("error = %+v, want %s/%q", got.Error, tc.code, tc.msg)
			}
		})
	}
	if len(api.queue.ids) != 0 {
		t.Fatalf("enqueued = %v, want none", api.queue.ids)
	}
}

func TestListJobsFilters(t *testing.T) {
	api := newTestAPI(t, 0)
	api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "a"})
	video := api.createJob(t, map[string]any{"job_type": "video.generate", "model_id": "veo-3.1", "prompt": "b"})

	rec := api.do(t, http.MethodGet, "/api/jobs?job_type=video.generate", nil)
	jobs := decode[[]domain.Job](t, rec)
	if len(jobs) != 1 || jobs[0].ID != video.ID {
		t.Fatalf("jobs = %+v, want only %s", jobs, video.ID)
	}

	rec = api.do(t, http.MethodGet, "/api/jobs?limit=1", nil)
	if jobs := decode[[]domain.Job](t, rec); len(jobs) != 1 {
		t.Fatalf("limited jobs = %d, want 1", len(jobs))
	}
}

func TestCancelJob(t *testing.T) {
	api := newTestAPI(t, 0)
	ctx := context.Background()
	queued := api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "a"})

	if rec := api.do(t, http.MethodPost, "/api/jobs/"+queued.ID+"/cancel", nil); rec.Code != http.StatusOK {
		t.Fatalf("cancel status = %d", rec.Code)
	}
	got, err := api.jobs.Get(ctx, queued.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.JobStatusCanceled {
		t.Fatalf("status = %q, want canceled", got.Status)
	}
	if rec := api.do(t, http.MethodPost, "/api/jobs/"+queued.ID+"/cancel", nil); rec.Code != http.StatusConflict {
		t.Fatalf("second cancel status = %d, want 409", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/api/jobs/missing/cancel", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing cancel status = %d, want 404", rec.Code)
	}

	running := api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "b"})
	if ok, err := api.jobs.TransitionStatus(ctx, running.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil); err != nil || !ok {
		t.Fatalf("TransitionStatus = %v, %v", ok, err)
	}
	if rec := api.do(t, http.MethodPost, "/api/jobs/"+running.ID+"/cancel", nil); rec.Code != http.StatusOK {
		t.Fatalf("running cancel status = %d", rec.Code)
	}
	got, _ = api.jobs.Get(ctx, running.ID)
	if got.Status != domain.JobStatusRunning || !got.CancelRequested {
		t.Fatalf("running job = %q cancel=%v, want running with cancel flag", got.Status, got.CancelRequested)
	}
}

func TestCloneJob(t *testing.T) {
	api := newTestAPI(t, 0)
	src := api.createJob(t, map[string]any{
		"job_type": "image.generate",
		"model_id": "nano-banana",
		"prompt":   "original",
		"params":   map[string]any{"aspect_ratio": "16:9"},
	})

	rec := api.do(t, http.MethodPost, "/api/jobs/"+src.ID+"/clone", map[string]any{
		"prompt": "changed",
		"params": map[string]any{"image_size": "1k"},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("clone status = %d, body %s", rec.Code, rec.Body.String())
	}
	clone := decode[domain.Job](t, rec)
	if clone.ID == src.ID || clone.ModelID != src.ModelID || clone.Type != src.Type {
		t.Fatalf("clone = %+v", clone)
	}
	if clone.Params["prompt"] != "changed" || clone.Params["aspect_ratio"] != "16:9" || clone.Params["image_size"] != "1k" {
		t.Fatalf("clone params = %#v", clone.Params)
	}

	rec = api.do(t, http.MethodPost, "/api/jobs/"+src.ID+"/clone", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("bare clone status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(api.queue.ids) != 3 {
		t.Fatalf("enqueued = %d, want 3", len(api.queue.ids))
	}

	rec = api.do(t, http.MethodPost, "/api/jobs/"+src.ID+"/clone", map[string]any{"auth": map[string]string{"mode": "vertex"}})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("vertex clone status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Job](t, rec); got.AuthMode != domain.AuthModeVertex {
		t.Fatalf("auth mode = %q, want vertex", got.AuthMode)
	}

	if rec := api.do(t, http.MethodPost, "/api/jobs/missing/clone", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing clone status = %d, want 404", rec.Code)
	}
}

func TestUploadRejectsNonMedia(t *testing.T) {
	api := newTestAPI(t, 0)
	rec := api.upload(t, "notes.txt", []byte("hello"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := decode[errorResponse](t, rec); got.Error.Message != "Only image/video supported" {
		t.Fatalf("message = %q", got.Error.Message)
	}
}

func TestAssetEndpoints(t *testing.T) {
	api := newTestAPI(t, 0)
	data := pngBytes(3, 2)
	up := decode[domain.Asset](t, api.upload(t, "pic.png", data))
	if up.Width == nil || *up.Width != 3 || up.Origin != domain.AssetOriginUpload {
		t.Fatalf("uploaded = %+v", up)
	}

	job := api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "x"})
	gen, err := api.assets.InsertGenerated(context.Background(), &domain.Asset{
		MediaType:   domain.MediaTypeImage,
		FilePath:    up.FilePath,
		MIMEType:    "image/png",
		SourceJobID: &job.ID,
	})
	if err != nil {
		t.Fatalf("InsertGenerated: %v", err)
	}

	type view struct {
		ID              string  `json:"id"`
		SourceModelID   *string `json:"source_model_id"`
		SourceModelName *string `json:"source_model_name"`
	}
	got := decode[view](t, api.do(t, http.MethodGet, "/api/assets/"+gen.ID, nil))
	if got.SourceModelID == nil || *got.SourceModelID != "nano-banana" {
		t.Fatalf("source_model_id = %v", got.SourceModelID)
	}
	if got.SourceModelName == nil || *got.SourceModelName != "Nano Banana" {
		t.Fatalf("source_model_name = %v", got.SourceModelName)
	}

	uploads := decode[[]view](t, api.do(t, http.MethodGet, "/api/assets?origin=upload", nil))
	if len(uploads) != 1 || uploads[0].ID != up.ID || uploads[0].SourceModelID != nil {
		t.Fatalf("uploads = %+v", uploads)
	}

	rec := api.do(t, http.MethodGet, "/api/assets/"+up.ID+"/content", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("content status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Fatal("content mismatch")
	}

	if rec := api.do(t, http.MethodGet, "/api/assets/missing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing asset status = %d, want 404", rec.Code)
	}
}

func TestModels(t *testing.T) {
	api := newTestAPI(t, 0)
	models := decode[[]catalog.Model](t, api.do(t, http.MethodGet, "/api/models", nil))
	found := false
	for _, m := range models {
		if m.ModelID == "nano-banana" {
			found = true
		}
	}
	if !found {
		t.Fatalf("models = %+v, want nano-banana", models)
	}
	if rec := api.do(t, http.MethodPost, "/api/models/reload", nil); rec.Code != http.StatusOK {
		t.Fatalf("reload status = %d", rec.Code)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	api := newTestAPI(t, 0)
	type view struct {
		DefaultAuthMode     string `json:"default_auth_mode"`
		GoogleAPIKeyPresent bool   `json:"google_api_key_present"`
		ArkAPIKeyPresent    bool   `json:"ark_api_key_present"`
		VertexGCSBucket     string `json:"vertex_gcs_bucket"`
		VertexLocation      string `json:"vertex_location"`
		GCSHMACConfigured   bool   `json:"gcs_hmac_configured"`
	}

	initial := decode[view](t, api.do(t, http.MethodGet, "/api/settings", nil))
	if initial.DefaultAuthMode != "api_key" || initial.GoogleAPIKeyPresent || initial.VertexLocation != "us-central1" {
		t.Fatalf("initial = %+v", initial)
	}

	rec := api.do(t, http.MethodPut, "/api/settings", map[string]any{
		"default_auth_mode":  "vertex",
		"google_api_key":     "secret-key",
		"vertex_gcs_bucket":  "media-bucket",
		"gcs_hmac_access_id": "GOOG1",
		"gcs_hmac_secret":    "s3cr3t",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret-key") {
		t.Fatal("settings response leaks the api key")
	}
	updated := decode[view](t, rec)
	if updated.DefaultAuthMode != "vertex" || !updated.GoogleAPIKeyPresent || updated.ArkAPIKeyPresent {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.VertexGCSBucket != "media-bucket" || !updated.GCSHMACConfigured {
		t.Fatalf("updated vertex = %+v", updated)
	}

	bad := []map[string]any{
		{"vertex_gcs_bucket": "gs://media-bucket"},
		{"default_auth_mode": "oauth"},
		{"gcs_hmac_access_id": "only-id"},
	}
	for _, body := range bad {
		if rec := api.do(t, http.MethodPut, "/api/settings", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("put %v status = %d, want 400", body, rec.Code)
		}
	}
}

func TestJobCreationIsRateLimited(t *testing.T) {
	api := newTestAPI(t, 1)
	body := map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "x"}
	if rec := api.do(t, http.MethodPost, "/api/jobs", body); rec.Code != http.StatusAccepted {
		t.Fatalf("first status = %d", rec.Code)
	}
	if rec := api.do(t, http.MethodPost, "/api/jobs", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
	if rec := api.do(t, http.MethodGet, "/api/jobs", nil); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
}

func TestJobOutputsArchive(t *testing.T) {
	api := newTestAPI(t, 0)
	ctx := context.Background()
	job := api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "x"})

	if rec := api.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/outputs.zip", nil); rec.Code != http.StatusConflict {
		t.Fatalf("queued archive status = %d, want 409", rec.Code)
	}
	if ok, err := api.jobs.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil); err != nil || !ok {
		t.Fatalf("TransitionStatus = %v, %v", ok, err)
	}

	bodies := []string{"first", "second"}
	for _, body := range bodies {
		id := domain.NewID()
		stored, err := api.store.SaveGenerated(ctx, id, ".png", []byte(body))
		if err != nil {
			t.Fatalf("SaveGenerated: %v", err)
		}
		asset, err := api.assets.InsertGenerated(ctx, &domain.Asset{
			ID:          id,
			MediaType:   domain.MediaTypeImage,
			FilePath:    stored.RelPath,
			MIMEType:    "image/png",
			SizeBytes:   stored.SizeBytes,
			SourceJobID: &job.ID,
		})
		if err != nil {
			t.Fatalf("InsertGenerated: %v", err)
		}
		if err := api.links.Add(ctx, job.ID, asset.ID, domain.RoleOutput); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	if rec := api.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/outputs.zip", nil); rec.Code != http.StatusConflict {
		t.Fatalf("running archive status = %d, want 409", rec.Code)
	}
	if err := api.jobs.SetSucceeded(ctx, job.ID, domain.NewJobResult(nil)); err != nil {
		t.Fatalf("SetSucceeded: %v", err)
	}

	rec := api.do(t, http.MethodGet, "/api/jobs/"+job.ID+"/outputs.zip", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	if len(zr.File) != len(bodies) {
		t.Fatalf("files = %d, want %d", len(zr.File), len(bodies))
	}
	got := map[string]bool{}
	for _, f := range zr.File {
		if !strings.HasSuffix(f.Name, ".png") {
			t.Fatalf("entry name = %q, want .png suffix", f.Name)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		got[string(data)] = true
	}
	for _, body := range bodies {
		if !got[body] {
			t.Fatalf("archive missing %q", body)
		}
	}

	empty := api.createJob(t, map[string]any{"job_type": "image.generate", "model_id": "nano-banana", "prompt": "y"})
	if ok, err := api.jobs.TransitionStatus(ctx, empty.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil); err != nil || !ok {
		t.Fatalf("TransitionStatus = %v, %v", ok, err)
	}
	if err := api.jobs.SetSucceeded(ctx, empty.ID, domain.NewJobResult(nil)); err != nil {
		t.Fatalf("SetSucceeded: %v", err)
	}
	if rec := api.do(t, http.MethodGet, "/api/jobs/"+empty.ID+"/outputs.zip", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("empty archive status = %d, want 404", rec.Code)
	}
}

func TestOpenAPIDocument(t *testing.T) {
	api := newTestAPI(t, 0)
	rec := api.do(t, http.MethodGet, "/api/openapi.json", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	doc := decode[struct {
		Paths map[string]any `json:"paths"`
	}](t, rec)
	for _, path := range []string{"/jobs", "/jobs/{id}/outputs.zip", "/assets/upload", "/settings"} {
		if _, ok := doc.Paths[path]; !ok {
			t.Fatalf("openapi paths missing %s", path)
		}
	}

	etag := rec.Header().Get("ETag")
	req := httptest.NewRequest(http.MethodGet, "/api/openapi.json", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Fatalf("revalidation status = %d, want 304", rec.Code)
	}
}
