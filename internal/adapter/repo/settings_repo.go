package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// SettingsRepositorySQL implements domain.SettingsRepository over the settings table.
type SettingsRepositorySQL struct {
	db infra.SQLExecutor
}

func NewSettingsRepository(db infra.SQLExecutor) *SettingsRepositorySQL {
	return &SettingsRepositorySQL{db: db}
}

// GetJSON decodes the stored value into dst and reports whether the key exists.
func (r *SettingsRepositorySQL) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	if err := r.db.QueryRow(ctx, sqlinline.QSelectSetting, key).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("read setting %s: %w", key, err)
	}
	if dst == nil {
		return true, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// SetJSON upserts the JSON encoding of value.
func (r *SettingsRepositorySQL) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := marshalJSON(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	if _, err := r.db.Exec(ctx, sqlinline.QUpsertSetting, key, raw); err != nil {
		return fmt.Errorf("write setting %s: %w", key, err)
	}
	return nil
}

// GetString reads a string setting. A stored JSON null counts as absent.
func (r *SettingsRepositorySQL) GetString(ctx context.Context, key string) (string, bool, error) {
	var value *string
	ok, err := r.GetJSON(ctx, key, &value)
	if err != nil {
		return "", false, err
	}
	if !ok || value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (r *SettingsRepositorySQL) SetString(ctx context.Context, key, value string) error {
	return r.SetJSON(ctx, key, value)
}

func (r *SettingsRepositorySQL) Delete(ctx context.Context, key string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QDeleteSetting, key); err != nil {
		return fmt.Errorf("delete setting %s: %w", key, err)
	}
	return nil
}

var _ domain.SettingsRepository = (*SettingsRepositorySQL)(nil)
