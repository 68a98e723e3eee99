package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobRepositorySQL implements domain.JobRepository.
type JobRepositorySQL struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewJobRepository creates a new job repository backed by the SQL runner.
func NewJobRepository(db infra.SQLExecutor) *JobRepositorySQL {
	return &JobRepositorySQL{db: db, now: time.Now}
}

// Create inserts a queued job and returns the stored row.
func (r *JobRepositorySQL) Create(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	id := job.ID
	if id == "" {
		id = domain.NewID()
	}
	params := job.Params
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := marshalJSON(params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertJob,
		id,
		string(job.Type),
		job.ModelID,
		string(job.AuthMode),
		paramsJSON,
		formatTime(r.now()),
	); err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return r.Get(ctx, id)
}

// Get fetches a job by its identifier.
func (r *JobRepositorySQL) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return job, nil
}

// List returns jobs newest first.
func (r *JobRepositorySQL) List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, sqlinline.QListJobs,
		string(filter.Status),
		string(filter.Type),
		filter.ModelID,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// ListByStatus returns jobs in one status, oldest first.
func (r *JobRepositorySQL) ListByStatus(ctx context.Context, status domain.JobStatus, limit, offset int) ([]domain.Job, error) {
	limit, offset = pageBounds(limit, offset)
	rows, err := r.db.Query(ctx, sqlinline.QListJobsByStatusOldest, string(status), limit, offset)
	if err != nil {
		return nil, err
	}
	return collectJobs(rows)
}

// SetStatus moves a non-terminal job to status.
func (r *JobRepositorySQL) SetStatus(ctx context.Context, jobID string, status domain.JobStatus, message *string) error {
	res, err := r.db.Exec(ctx, sqlinline.QSetJobStatus, jobID, string(status), stringArg(message), formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return r.requireUpdated(ctx, res, jobID)
}

// TransitionStatus is a compare-and-set on the status column.
func (r *JobRepositorySQL) TransitionStatus(ctx context.Context, jobID string, from, to domain.JobStatus, message *string) (bool, error) {
	res, err := r.db.Exec(ctx, sqlinline.QTransitionJobStatus, jobID, string(from), string(to), stringArg(message), formatTime(r.now()))
	if err != nil {
		return false, fmt.Errorf("transition job status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetSucceeded records the result of a running job.
func (r *JobRepositorySQL) SetSucceeded(ctx context.Context, jobID string, result *domain.JobResult) error {
	if result == nil {
		result = domain.NewJobResult(nil)
	}
	if result.Outputs == nil {
		result.Outputs = []domain.JobOutput{}
	}
	resultJSON, err := marshalJSON(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	res, err := r.db.Exec(ctx, sqlinline.QSetJobSucceeded, jobID, resultJSON, formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("set job succeeded: %w", err)
	}
	return r.requireUpdated(ctx, res, jobID)
}

// SetFailed records a failure for a running job.
func (r *JobRepositorySQL) SetFailed(ctx context.Context, jobID, message string, detail *string) error {
	res, err := r.db.Exec(ctx, sqlinline.QSetJobFailed, jobID, message, stringArg(detail), formatTime(r.now()))
	if err != nil {
		return fmt.Errorf("set job failed: %w", err)
	}
	return r.requireUpdated(ctx, res, jobID)
}

// RequestCancel flags a non-terminal job for cancellation.
func (r *JobRepositorySQL) RequestCancel(ctx context.Context, jobID string) error {
	res, err := r.db.Exec(ctx, sqlinline.QRequestJobCancel, jobID)
	if err != nil {
		return fmt.Errorf("request cancel: %w", err)
	}
	return r.requireUpdated(ctx, res, jobID)
}

// requireUpdated maps a zero-row update to ErrNotFound or ErrInvalidTransition.
func (r *JobRepositorySQL) requireUpdated(ctx context.Context, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := r.db.QueryRow(ctx, sqlinline.QJobExists, jobID).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrInvalidTransition
}

func collectJobs(rows infra.Rows) ([]domain.Job, error) {
	defer rows.Close()

	jobs := []domain.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row infra.Row) (*domain.Job, error) {
	var (
		job           domain.Job
		jobType       string
		authMode      string
		status        string
		cancel        int
		progress      sql.NullFloat64
		statusMessage sql.NullString
		paramsJSON    string
		resultJSON    sql.NullString
		errorMessage  sql.NullString
		errorDetail   sql.NullString
		createdAt     string
		startedAt     sql.NullString
		finishedAt    sql.NullString
	)
	if err := row.Scan(
		&job.ID,
		&jobType,
		&job.ModelID,
		&authMode,
		&status,
		&cancel,
		&progress,
		&statusMessage,
		&paramsJSON,
		&resultJSON,
		&errorMessage,
		&errorDetail,
		&createdAt,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	job.Type = domain.JobType(jobType)
	job.AuthMode = domain.AuthMode(authMode)
	job.Status = domain.JobStatus(status)
	job.CancelRequested = cancel != 0
	job.Progress = nullFloat(progress)
	job.StatusMessage = nullString(statusMessage)
	job.ErrorMessage = nullString(errorMessage)
	job.ErrorDetail = nullString(errorDetail)

	job.Params = map[string]any{}
	if paramsJSON != "" {
		if err := json.Unmarshal([]byte(paramsJSON), &job.Params); err != nil {
			return nil, fmt.Errorf("decode params of job %s: %w", job.ID, err)
		}
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result domain.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("decode result of job %s: %w", job.ID, err)
		}
		job.Result = &result
	}

	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if job.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = parseNullTime(finishedAt); err != nil {
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositorySQL)(nil)
