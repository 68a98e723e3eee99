// Package runner executes queued generation jobs in-process: it claims jobs,
// dispatches them to providers, stores the produced media and records the
// outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/message"

	"studio/internal/catalog"
	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
	"studio/internal/media"
	"studio/internal/providers"
	"studio/internal/storage"
)

const recoveryPageSize = 500

// Models resolves catalog entries.
type Models interface {
	Get(modelID string) (catalog.Model, bool)
}

// RemoteStore moves files in and out of the bucket used by Vertex video jobs.
type RemoteStore interface {
	UploadFile(ctx context.Context, bucket, object, localPath string) (string, error)
	DownloadToFile(ctx context.Context, uri, localPath string) error
}

// Deps are the collaborators a Runner needs. Remote and VertexCredentials
// default to implementations backed by the stored settings.
type Deps struct {
	Jobs        domain.JobRepository
	Assets      domain.AssetRepository
	JobAssets   domain.JobAssetRepository
	Models      Models
	Providers   *providers.Registry
	Credentials *credentials.Store
	Store       *storage.FileStore
	Prober      *media.VideoProber
	HTTPClient  *http.Client
	Logger      infra.Logger

	Remote            func(ctx context.Context) (RemoteStore, error)
	VertexCredentials func(ctx context.Context) (providers.VertexCredentials, error)
}

type Options struct {
	Concurrency  int
	PollInterval time.Duration
	MaxPolls     int
	Locale       string
	GCSEndpoint  string
}

type Runner struct {
	deps    Deps
	opts    Options
	queue   *queue
	printer *message.Printer
	logger  infra.Logger
}

func New(deps Deps, opts Options) *Runner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.MaxPolls < 1 {
		opts.MaxPolls = 120
	}
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	r := &Runner{
		deps:    deps,
		opts:    opts,
		queue:   newQueue(),
		printer: newPrinter(opts.Locale),
		logger:  deps.Logger.With().Str("component", "runner").Logger(),
	}
	if r.deps.Remote == nil {
		r.deps.Remote = r.gcsFromSettings
	}
	if r.deps.VertexCredentials == nil {
		r.deps.VertexCredentials = r.vertexFromSettings
	}
	return r
}

// Enqueue appends a job id to the queue. It never blocks.
func (r *Runner) Enqueue(jobID string) {
	r.queue.push(jobID)
}

// QueueLen reports how many ids are waiting.
func (r *Runner) QueueLen() int {
	return r.queue.len()
}

// Run starts the worker pool and blocks until ctx ends.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.Concurrency; i++ {
		worker := i
		g.Go(func() error {
			r.logger.Debug().Int("worker", worker).Msg("runner: worker started")
			for {
				id, err := r.queue.pop(ctx)
				if err != nil {
					return nil
				}
				r.RunOne(ctx, id)
			}
		})
	}
	r.logger.Info().Int("concurrency", r.opts.Concurrency).Msg("runner: started")
	err := g.Wait()
	r.logger.Info().Msg("runner: stopped")
	return err
}

// RecoverOnStartup fails every job left running by a previous process and
// re-enqueues queued jobs oldest first. Call it before Run.
func (r *Runner) RecoverOnStartup(ctx context.Context) (failed, requeued int, err error) {
	var orphaned []string
	for offset := 0; ; offset += recoveryPageSize {
		page, err := r.deps.Jobs.ListByStatus(ctx, domain.JobStatusRunning, recoveryPageSize, offset)
		if err != nil {
			return 0, 0, fmt.Errorf("list running jobs: %w", err)
		}
		for _, j := range page {
			orphaned = append(orphaned, j.ID)
		}
		if len(page) < recoveryPageSize {
			break
		}
	}
	msg := r.printer.Sprintf(msgServerRestarted)
	for _, id := range orphaned {
		if err := r.deps.Jobs.SetFailed(ctx, id, msg, nil); err != nil {
			if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return failed, 0, fmt.Errorf("fail orphaned job %s: %w", id, err)
		}
		failed++
	}

	for offset := 0; ; offset += recoveryPageSize {
		page, err := r.deps.Jobs.ListByStatus(ctx, domain.JobStatusQueued, recoveryPageSize, offset)
		if err != nil {
			return failed, requeued, fmt.Errorf("list queued jobs: %w", err)
		}
		for _, j := range page {
			r.Enqueue(j.ID)
			requeued++
		}
		if len(page) < recoveryPageSize {
			break
		}
	}

	r.logger.Info().Int("failed", failed).Int("requeued", requeued).Msg("runner: startup recovery done")
	return failed, requeued, nil
}

// RunOne claims and executes one job. Absent, already claimed and terminal
// jobs are dropped silently.
func (r *Runner) RunOne(ctx context.Context, jobID string) {
	log := r.logger.With().Str("job_id", jobID).Logger()

	job, err := r.deps.Jobs.Get(ctx, jobID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Debug().Msg("runner: job vanished")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("runner: load job failed")
		return
	}
	if job.Status != domain.JobStatusQueued {
		log.Debug().Str("status", string(job.Status)).Msg("runner: job not queued, dropping")
		return
	}
	if job.CancelRequested {
		if _, err := r.deps.Jobs.TransitionStatus(ctx, jobID, domain.JobStatusQueued, domain.JobStatusCanceled, nil); err != nil {
			log.Error().Err(err).Msg("runner: cancel job failed")
		}
		return
	}

	claimed, err := r.deps.Jobs.TransitionStatus(ctx, jobID, domain.JobStatusQueued, domain.JobStatusRunning, nil)
	if err != nil {
		log.Error().Err(err).Msg("runner: claim job failed")
		return
	}
	if !claimed {
		log.Debug().Msg("runner: job claimed elsewhere")
		return
	}
	job.Status = domain.JobStatusRunning

	started := time.Now()
	log.Info().Str("job_type", string(job.Type)).Str("model_id", job.ModelID).Msg("runner: job started")
	result, runErr := r.execute(ctx, job)

	// Outcomes are recorded even when shutdown canceled ctx.
	wctx := context.WithoutCancel(ctx)
	if runErr != nil {
		detail := runErr.Error()
		msg := r.describeFailure(job, runErr)
		if err := r.deps.Jobs.SetFailed(wctx, jobID, msg, &detail); err != nil {
			log.Error().Err(err).Msg("runner: record failure failed")
		}
		log.Warn().Err(runErr).Dur("elapsed", time.Since(started)).Msg("runner: job failed")
		return
	}
	if err := r.deps.Jobs.SetSucceeded(wctx, jobID, result); err != nil {
		log.Error().Err(err).Msg("runner: record success failed")
		r.discardResult(wctx, jobID, result)
		return
	}
	log.Info().Int("outputs", len(result.Outputs)).Dur("elapsed", time.Since(started)).Msg("runner: job succeeded")
}

func (r *Runner) execute(ctx context.Context, job *domain.Job) (result *domain.JobResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Str("job_id", job.ID).Bytes("stack", debug.Stack()).Msg("runner: job panicked")
			result, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	return r.dispatch(ctx, job)
}

func (r *Runner) gcsFromSettings(ctx context.Context) (RemoteStore, error) {
	key, err := r.deps.Credentials.GCSHMAC(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewGCSStore(r.opts.GCSEndpoint, key.AccessID, key.Secret)
}

func (r *Runner) vertexFromSettings(ctx context.Context) (providers.VertexCredentials, error) {
	vc, err := r.deps.Credentials.Vertex(ctx)
	if err != nil {
		return providers.VertexCredentials{}, err
	}
	if vc.ServiceAccountPath == "" {
		return providers.VertexCredentials{}, fmt.Errorf("%s: %w", domain.SettingVertexSAPath, domain.ErrNotConfigured)
	}
	data, err := os.ReadFile(vc.ServiceAccountPath)
	if err != nil {
		return providers.VertexCredentials{}, fmt.Errorf("read vertex service account: %w", err)
	}
	return providers.VertexCredentials{
		ServiceAccountJSON: data,
		ProjectID:          vc.ProjectID,
		Location:           vc.Location,
	}, nil
}
