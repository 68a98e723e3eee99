package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"studio/internal/domain"
	"studio/internal/infra/infratest"
)

// steppingClock returns strictly increasing times so ordering is deterministic.
func steppingClock() func() time.Time {
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func newJobRepo(t *testing.T) *JobRepositorySQL {
	t.Helper()
	r := NewJobRepository(infratest.OpenSQLite(t))
	r.now = steppingClock()
	return r
}

func createJob(t *testing.T, r *JobRepositorySQL, jobType domain.JobType, model string) *domain.Job {
	t.Helper()
	job, err := r.Create(context.Background(), &domain.Job{
		Type:     jobType,
		ModelID:  model,
		AuthMode: domain.AuthModeAPIKey,
		Params:   map[string]any{"prompt": "a red fox"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return job
}

func TestJobCreateAndGet(t *testing.T) {
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")

	if len(job.ID) != 32 {
		t.Fatalf("id = %q, want 32 hex chars", job.ID)
	}
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("status = %q, want %q", job.Status, domain.JobStatusQueued)
	}
	if job.Params["prompt"] != "a red fox" {
		t.Fatalf("params = %#v", job.Params)
	}
	if job.StartedAt != nil || job.FinishedAt != nil || job.Result != nil || job.ErrorMessage != nil {
		t.Fatalf("fresh job carries lifecycle fields: %+v", job)
	}

	if _, err := r.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestJobTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")

	ok, err := r.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil)
	if err != nil || !ok {
		t.Fatalf("first claim = %v, %v; want true", ok, err)
	}
	ok, err = r.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil)
	if err != nil || ok {
		t.Fatalf("second claim = %v, %v; want false", ok, err)
	}

	got, _ := r.Get(ctx, job.ID)
	if got.StartedAt == nil {
		t.Fatal("started_at not set on claim")
	}
	started := *got.StartedAt

	if err := r.SetStatus(ctx, job.ID, domain.JobStatusRunning, nil); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	got, _ = r.Get(ctx, job.ID)
	if !got.StartedAt.Equal(started) {
		t.Fatalf("started_at rewritten: %s != %s", got.StartedAt, started)
	}
}

func claimJob(t *testing.T, r *JobRepositorySQL, jobID string) {
	t.Helper()
	ok, err := r.TransitionStatus(context.Background(), jobID, domain.JobStatusQueued, domain.JobStatusRunning, nil)
	if err != nil || !ok {
		t.Fatalf("claim %s = %v, %v", jobID, ok, err)
	}
}

func TestJobTerminalWritesRequireRunning(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")

	if err := r.SetSucceeded(ctx, job.ID, domain.NewJobResult(nil)); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("SetSucceeded on queued = %v, want ErrInvalidTransition", err)
	}
	if err := r.SetFailed(ctx, job.ID, "boom", nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("SetFailed on queued = %v, want ErrInvalidTransition", err)
	}
	got, _ := r.Get(ctx, job.ID)
	if got.Status != domain.JobStatusQueued || got.FinishedAt != nil {
		t.Fatalf("queued job changed: status=%q finished=%v", got.Status, got.FinishedAt)
	}
}

func TestJobTerminalStatesAreFinal(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")
	claimJob(t, r, job.ID)

	result := domain.NewJobResult([]domain.JobOutput{{AssetID: "a1", MediaType: domain.MediaTypeImage, Role: domain.RoleOutput, Index: 0}})
	if err := r.SetSucceeded(ctx, job.ID, result); err != nil {
		t.Fatalf("SetSucceeded: %v", err)
	}

	if err := r.SetFailed(ctx, job.ID, "late failure", nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("SetFailed after success = %v, want ErrInvalidTransition", err)
	}
	if err := r.SetStatus(ctx, job.ID, domain.JobStatusRunning, nil); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("SetStatus after success = %v, want ErrInvalidTransition", err)
	}
	if ok, _ := r.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusCanceled, nil); ok {
		t.Fatal("transition from wrong status succeeded")
	}
	if err := r.RequestCancel(ctx, job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("RequestCancel after success = %v, want ErrInvalidTransition", err)
	}
	if err := r.SetFailed(ctx, "missing", "x", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetFailed missing = %v, want ErrNotFound", err)
	}

	got, _ := r.Get(ctx, job.ID)
	if got.Status != domain.JobStatusSucceeded {
		t.Fatalf("status = %q", got.Status)
	}
	if got.Result == nil || got.Result.OutputAssetID != "a1" || len(got.Result.Outputs) != 1 {
		t.Fatalf("result = %+v", got.Result)
	}
	if got.FinishedAt == nil || got.StartedAt == nil {
		t.Fatalf("timestamps missing: started=%v finished=%v", got.StartedAt, got.FinishedAt)
	}
	if got.ErrorMessage != nil {
		t.Fatalf("error_message = %q, want nil", *got.ErrorMessage)
	}
}

func TestJobSetFailedKeepsDetail(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeVideoGenerate, "veo-3.1")
	claimJob(t, r, job.ID)

	detail := "503 UNAVAILABLE"
	if err := r.SetFailed(ctx, job.ID, "busy", &detail); err != nil {
		t.Fatalf("SetFailed: %v", err)
	}
	got, _ := r.Get(ctx, job.ID)
	if got.Status != domain.JobStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "busy" {
		t.Fatalf("job = %+v", got)
	}
	if got.ErrorDetail == nil || *got.ErrorDetail != detail {
		t.Fatalf("error_detail = %v, want %q", got.ErrorDetail, detail)
	}
	if got.Result != nil {
		t.Fatalf("failed job has result %+v", got.Result)
	}
}

func TestJobListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	first := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")
	second := createJob(t, r, domain.JobTypeVideoGenerate, "veo-3.1")
	third := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana-pro")

	all, err := r.List(ctx, domain.JobFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].ID != third.ID || all[2].ID != first.ID {
		t.Fatalf("List order wrong: %v", ids(all))
	}

	images, _ := r.List(ctx, domain.JobFilter{Type: domain.JobTypeImageGenerate})
	if len(images) != 2 {
		t.Fatalf("image jobs = %d, want 2", len(images))
	}
	byModel, _ := r.List(ctx, domain.JobFilter{ModelID: "veo-3.1"})
	if len(byModel) != 1 || byModel[0].ID != second.ID {
		t.Fatalf("model filter = %v", ids(byModel))
	}
	page, _ := r.List(ctx, domain.JobFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ID != second.ID {
		t.Fatalf("page = %v", ids(page))
	}

	queued, _ := r.ListByStatus(ctx, domain.JobStatusQueued, 10, 0)
	if len(queued) != 3 || queued[0].ID != first.ID {
		t.Fatalf("ListByStatus oldest-first = %v", ids(queued))
	}
}

func TestRequestCancelFlagsRunningJob(t *testing.T) {
	ctx := context.Background()
	r := newJobRepo(t)
	job := createJob(t, r, domain.JobTypeImageGenerate, "nano-banana")
	if _, err := r.TransitionStatus(ctx, job.ID, domain.JobStatusQueued, domain.JobStatusRunning, nil); err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if err := r.RequestCancel(ctx, job.ID); err != nil {
		t.Fatalf("RequestCancel: %v", err)
	}
	got, _ := r.Get(ctx, job.ID)
	if !got.CancelRequested || got.Status != domain.JobStatusRunning {
		t.Fatalf("job = status %q cancel %v", got.Status, got.CancelRequested)
	}
}

func TestAssetsAndLinks(t *testing.T) {
	ctx := context.Background()
	db := infratest.OpenSQLite(t)
	assets := NewAssetRepository(db)
	assets.now = steppingClock()
	links := NewJobAssetRepository(db)

	width, height := 640, 480
	upload, err := assets.InsertUpload(ctx, &domain.Asset{
		MediaType: domain.MediaTypeImage,
		FilePath:  "assets/uploads/x.png",
		MIMEType:  "image/png",
		SizeBytes: 12,
		Width:     &width,
		Height:    &height,
		Metadata:  map[string]any{"original_filename": "x.png"},
	})
	if err != nil {
		t.Fatalf("InsertUpload: %v", err)
	}
	if upload.Origin != domain.AssetOriginUpload || upload.Width == nil || *upload.Width != 640 {
		t.Fatalf("upload = %+v", upload)
	}
	if upload.Metadata["original_filename"] != "x.png" {
		t.Fatalf("metadata = %#v", upload.Metadata)
	}

	jobID := "job1"
	generated, err := assets.InsertGenerated(ctx, &domain.Asset{
		MediaType:     domain.MediaTypeVideo,
		FilePath:      "assets/generated/y.mp4",
		MIMEType:      "video/mp4",
		SizeBytes:     99,
		ParentAssetID: &upload.ID,
		SourceJobID:   &jobID,
	})
	if err != nil {
		t.Fatalf("InsertGenerated: %v", err)
	}
	if generated.Origin != domain.AssetOriginGenerated || generated.SourceJobID == nil || *generated.SourceJobID != jobID {
		t.Fatalf("generated = %+v", generated)
	}
	if generated.ParentAssetID == nil || *generated.ParentAssetID != upload.ID {
		t.Fatalf("parent = %v", generated.ParentAssetID)
	}

	videos, _ := assets.List(ctx, domain.AssetFilter{MediaType: domain.MediaTypeVideo})
	if len(videos) != 1 || videos[0].ID != generated.ID {
		t.Fatalf("video list = %+v", videos)
	}
	uploads, _ := assets.List(ctx, domain.AssetFilter{Origin: domain.AssetOriginUpload})
	if len(uploads) != 1 || uploads[0].ID != upload.ID {
		t.Fatalf("upload list = %+v", uploads)
	}
	if _, err := assets.Get(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get missing = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := links.Add(ctx, jobID, upload.ID, domain.RoleInputReference); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := links.Add(ctx, jobID, generated.ID, domain.RoleOutput); err != nil {
		t.Fatalf("Add output: %v", err)
	}
	got, err := links.ListByJob(ctx, jobID)
	if err != nil {
		t.Fatalf("ListByJob: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("links = %+v, want 2 (duplicate ignored)", got)
	}
	if got[0].Role != domain.RoleInputReference || got[1].Role != domain.RoleOutput {
		t.Fatalf("links order = %+v", got)
	}

	if err := links.Remove(ctx, jobID, generated.ID, domain.RoleOutput); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := assets.DeleteGenerated(ctx, generated.ID); err != nil {
		t.Fatalf("DeleteGenerated: %v", err)
	}
	if err := assets.DeleteGenerated(ctx, upload.ID); err != nil {
		t.Fatalf("DeleteGenerated upload: %v", err)
	}
	if _, err := assets.Get(ctx, generated.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get deleted = %v, want ErrNotFound", err)
	}
	if _, err := assets.Get(ctx, upload.ID); err != nil {
		t.Fatalf("upload deleted: %v", err)
	}
	got, _ = links.ListByJob(ctx, jobID)
	if len(got) != 1 || got[0].AssetID != upload.ID {
		t.Fatalf("links after remove = %+v", got)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSettingsRepository(infratest.OpenSQLite(t))

	if _, ok, err := s.GetString(ctx, domain.SettingGoogleAPIKey); err != nil || ok {
		t.Fatalf("GetString on empty = %v, %v", ok, err)
	}
	if err := s.SetString(ctx, domain.SettingGoogleAPIKey, "k1"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if err := s.SetString(ctx, domain.SettingGoogleAPIKey, "k2"); err != nil {
		t.Fatalf("SetString overwrite: %v", err)
	}
	v, ok, err := s.GetString(ctx, domain.SettingGoogleAPIKey)
	if err != nil || !ok || v != "k2" {
		t.Fatalf("GetString = %q, %v, %v", v, ok, err)
	}

	if err := s.SetJSON(ctx, domain.SettingDefaultAuthMode, map[string]string{"mode": "vertex"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var mode struct {
		Mode string `json:"mode"`
	}
	if ok, err := s.GetJSON(ctx, domain.SettingDefaultAuthMode, &mode); err != nil || !ok || mode.Mode != "vertex" {
		t.Fatalf("GetJSON = %+v, %v, %v", mode, ok, err)
	}
	if _, _, err := s.GetString(ctx, domain.SettingDefaultAuthMode); err == nil {
		t.Fatal("GetString on object setting should fail")
	}

	if err := s.Delete(ctx, domain.SettingGoogleAPIKey); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := s.GetString(ctx, domain.SettingGoogleAPIKey); ok {
		t.Fatal("setting still present after Delete")
	}
}

func ids(jobs []domain.Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}
