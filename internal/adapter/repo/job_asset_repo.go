package repo

import (
	"context"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// JobAssetRepositorySQL implements domain.JobAssetRepository.
type JobAssetRepositorySQL struct {
	db infra.SQLExecutor
}

func NewJobAssetRepository(db infra.SQLExecutor) *JobAssetRepositorySQL {
	return &JobAssetRepositorySQL{db: db}
}

// Add links an asset to a job. Repeating a link is a no-op.
func (r *JobAssetRepositorySQL) Add(ctx context.Context, jobID, assetID string, role domain.JobAssetRole) error {
	if _, err := r.db.Exec(ctx, sqlinline.QInsertJobAsset, jobID, assetID, string(role)); err != nil {
		return fmt.Errorf("link asset %s to job %s: %w", assetID, jobID, err)
	}
	return nil
}

func (r *JobAssetRepositorySQL) Remove(ctx context.Context, jobID, assetID string, role domain.JobAssetRole) error {
	if _, err := r.db.Exec(ctx, sqlinline.QDeleteJobAsset, jobID, assetID, string(role)); err != nil {
		return fmt.Errorf("unlink asset %s from job %s: %w", assetID, jobID, err)
	}
	return nil
}

// ListByJob returns links in insertion order.
func (r *JobAssetRepositorySQL) ListByJob(ctx context.Context, jobID string) ([]domain.JobAsset, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListJobAssetsByJob, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	links := []domain.JobAsset{}
	for rows.Next() {
		var (
			link domain.JobAsset
			role string
		)
		if err := rows.Scan(&link.JobID, &link.AssetID, &role); err != nil {
			return nil, err
		}
		link.Role = domain.JobAssetRole(role)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return links, nil
}

var _ domain.JobAssetRepository = (*JobAssetRepositorySQL)(nil)
