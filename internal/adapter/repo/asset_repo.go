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

// AssetRepositorySQL implements domain.AssetRepository.
type AssetRepositorySQL struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewAssetRepository constructs a new asset repository instance.
func NewAssetRepository(db infra.SQLExecutor) *AssetRepositorySQL {
	return &AssetRepositorySQL{db: db, now: time.Now}
}

// InsertUpload stores an asset row with origin "upload".
func (r *AssetRepositorySQL) InsertUpload(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	return r.insert(ctx, asset, domain.AssetOriginUpload)
}

// InsertGenerated stores an asset row with origin "generated".
func (r *AssetRepositorySQL) InsertGenerated(ctx context.Context, asset *domain.Asset) (*domain.Asset, error) {
	return r.insert(ctx, asset, domain.AssetOriginGenerated)
}

func (r *AssetRepositorySQL) insert(ctx context.Context, asset *domain.Asset, origin domain.AssetOrigin) (*domain.Asset, error) {
	if asset == nil {
		return nil, errors.New("asset is required")
	}
	id := asset.ID
	if id == "" {
		id = domain.NewID()
	}
	var metadataJSON any
	if len(asset.Metadata) > 0 {
		encoded, err := marshalJSON(asset.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		metadataJSON = encoded
	}
	if _, err := r.db.Exec(ctx, sqlinline.QInsertAsset,
		id,
		string(asset.MediaType),
		string(origin),
		asset.FilePath,
		asset.MIMEType,
		asset.SizeBytes,
		intArg(asset.Width),
		intArg(asset.Height),
		floatArg(asset.DurationSeconds),
		stringArg(asset.ParentAssetID),
		stringArg(asset.SourceJobID),
		metadataJSON,
		formatTime(r.now()),
	); err != nil {
		return nil, fmt.Errorf("insert asset: %w", err)
	}
	return r.Get(ctx, id)
}

// Get fetches an asset by id.
func (r *AssetRepositorySQL) Get(ctx context.Context, assetID string) (*domain.Asset, error) {
	asset, err := scanAsset(r.db.QueryRow(ctx, sqlinline.QSelectAssetByID, assetID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return asset, nil
}

// List returns assets newest first.
func (r *AssetRepositorySQL) List(ctx context.Context, filter domain.AssetFilter) ([]domain.Asset, error) {
	limit, offset := pageBounds(filter.Limit, filter.Offset)
	rows, err := r.db.Query(ctx, sqlinline.QListAssets, string(filter.MediaType), string(filter.Origin), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assets := []domain.Asset{}
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func scanAsset(row infra.Row) (*domain.Asset, error) {
	var (
		asset        domain.Asset
		mediaType    string
		origin       string
		width        sql.NullInt64
		height       sql.NullInt64
		duration     sql.NullFloat64
		parentID     sql.NullString
		sourceJobID  sql.NullString
		metadataJSON sql.NullString
		createdAt    string
	)
	if err := row.Scan(
		&asset.ID,
		&mediaType,
		&origin,
		&asset.FilePath,
		&asset.MIMEType,
		&asset.SizeBytes,
		&width,
		&height,
		&duration,
		&parentID,
		&sourceJobID,
		&metadataJSON,
		&createdAt,
	); err != nil {
		return nil, err
	}
	asset.MediaType = domain.MediaType(mediaType)
	asset.Origin = domain.AssetOrigin(origin)
	asset.Width = nullInt(width)
	asset.Height = nullInt(height)
	asset.DurationSeconds = nullFloat(duration)
	asset.ParentAssetID = nullString(parentID)
	asset.SourceJobID = nullString(sourceJobID)
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &asset.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata of asset %s: %w", asset.ID, err)
		}
	}
	var err error
	if asset.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &asset, nil
}

// DeleteGenerated removes a generated asset row. Deleting a missing row is a no-op.
func (r *AssetRepositorySQL) DeleteGenerated(ctx context.Context, assetID string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QDeleteGeneratedAsset, assetID); err != nil {
		return fmt.Errorf("delete asset %s: %w", assetID, err)
	}
	return nil
}

var _ domain.AssetRepository = (*AssetRepositorySQL)(nil)
