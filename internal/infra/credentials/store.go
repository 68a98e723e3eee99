package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"studio/internal/domain"
)

// DefaultVertexLocation is used when no vertex_location setting is stored.
const DefaultVertexLocation = "us-central1"

var apiKeySettings = map[string]string{
	domain.ProviderGoogle:        domain.SettingGoogleAPIKey,
	domain.ProviderVolcengineArk: domain.SettingArkAPIKey,
}

// APIKeySetting returns the settings key holding the API key of a provider.
func APIKeySetting(providerID string) (string, bool) {
	key, ok := apiKeySettings[providerID]
	return key, ok
}

// VertexConfig holds the Vertex AI connection settings.
type VertexConfig struct {
	ServiceAccountPath string `json:"vertex_sa_path"`
	ProjectID          string `json:"vertex_project_id"`
	Location           string `json:"vertex_location"`
	GCSBucket          string `json:"vertex_gcs_bucket"`
}

// HMACKey is an interoperability key pair for the GCS XML API.
type HMACKey struct {
	AccessID string
	Secret   string
}

// Store exposes typed accessors over the settings table.
type Store struct {
	settings domain.SettingsRepository
}

func NewStore(settings domain.SettingsRepository) *Store {
	return &Store{settings: settings}
}

// APIKey returns the trimmed API key configured for providerID. A missing key
// wraps domain.ErrNotConfigured.
func (s *Store) APIKey(ctx context.Context, providerID string) (string, error) {
	key, ok := APIKeySetting(providerID)
	if !ok {
		return "", fmt.Errorf("provider %q has no api key setting", providerID)
	}
	value, err := s.trimmed(ctx, key)
	if err != nil {
		return "", err
	}
	if value == "" {
		return "", fmt.Errorf("%s not set: %w", key, domain.ErrNotConfigured)
	}
	return value, nil
}

// HasAPIKey reports whether a non-empty key is stored for providerID.
func (s *Store) HasAPIKey(ctx context.Context, providerID string) (bool, error) {
	_, err := s.APIKey(ctx, providerID)
	if errors.Is(err, domain.ErrNotConfigured) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) SetAPIKey(ctx context.Context, providerID, value string) error {
	key, ok := APIKeySetting(providerID)
	if !ok {
		return fmt.Errorf("provider %q has no api key setting", providerID)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%s is required", key)
	}
	return s.settings.SetString(ctx, key, value)
}

// DefaultAuthMode falls back to api_key when unset or invalid.
func (s *Store) DefaultAuthMode(ctx context.Context) (domain.AuthMode, error) {
	var stored struct {
		Mode string `json:"mode"`
	}
	ok, err := s.settings.GetJSON(ctx, domain.SettingDefaultAuthMode, &stored)
	if err != nil {
		return domain.AuthModeAPIKey, err
	}
	mode := domain.AuthMode(stored.Mode)
	if !ok || !mode.Valid() {
		return domain.AuthModeAPIKey, nil
	}
	return mode, nil
}

func (s *Store) SetDefaultAuthMode(ctx context.Context, mode domain.AuthMode) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid auth mode %q", mode)
	}
	return s.settings.SetJSON(ctx, domain.SettingDefaultAuthMode, map[string]string{"mode": string(mode)})
}

// Vertex returns the stored Vertex settings; Location defaults to us-central1.
func (s *Store) Vertex(ctx context.Context) (VertexConfig, error) {
	var cfg VertexConfig
	var err error
	if cfg.ServiceAccountPath, err = s.trimmed(ctx, domain.SettingVertexSAPath); err != nil {
		return cfg, err
	}
	if cfg.ProjectID, err = s.trimmed(ctx, domain.SettingVertexProjectID); err != nil {
		return cfg, err
	}
	if cfg.Location, err = s.trimmed(ctx, domain.SettingVertexLocation); err != nil {
		return cfg, err
	}
	if cfg.GCSBucket, err = s.trimmed(ctx, domain.SettingVertexGCSBucket); err != nil {
		return cfg, err
	}
	if cfg.Location == "" {
		cfg.Location = DefaultVertexLocation
	}
	return cfg, nil
}

// ValidateBucket rejects bucket values that are URIs rather than names.
func ValidateBucket(bucket string) error {
	bucket = strings.TrimSpace(bucket)
	if strings.HasPrefix(bucket, "gs://") {
		return errors.New("vertex_gcs_bucket must be a bucket name without the gs:// prefix")
	}
	if strings.ContainsAny(bucket, "/ ") {
		return errors.New("vertex_gcs_bucket must not contain slashes or spaces")
	}
	return nil
}

// SetVertex writes the non-empty fields of cfg.
func (s *Store) SetVertex(ctx context.Context, cfg VertexConfig) error {
	if err := ValidateBucket(cfg.GCSBucket); err != nil {
		return err
	}
	pairs := []struct{ key, value string }{
		{domain.SettingVertexSAPath, cfg.ServiceAccountPath},
		{domain.SettingVertexProjectID, cfg.ProjectID},
		{domain.SettingVertexLocation, cfg.Location},
		{domain.SettingVertexGCSBucket, cfg.GCSBucket},
	}
	for _, p := range pairs {
		v := strings.TrimSpace(p.value)
		if v == "" {
			continue
		}
		if err := s.settings.SetString(ctx, p.key, v); err != nil {
			return err
		}
	}
	return nil
}

// GCSHMAC returns the HMAC key pair, wrapping domain.ErrNotConfigured when
// either half is missing.
func (s *Store) GCSHMAC(ctx context.Context) (HMACKey, error) {
	id, err := s.trimmed(ctx, domain.SettingGCSHMACAccessID)
	if err != nil {
		return HMACKey{}, err
	}
	secret, err := s.trimmed(ctx, domain.SettingGCSHMACSecret)
	if err != nil {
		return HMACKey{}, err
	}
	if id == "" || secret == "" {
		return HMACKey{}, fmt.Errorf("gcs hmac key not set: %w", domain.ErrNotConfigured)
	}
	return HMACKey{AccessID: id, Secret: secret}, nil
}

func (s *Store) SetGCSHMAC(ctx context.Context, key HMACKey) error {
	id, secret := strings.TrimSpace(key.AccessID), strings.TrimSpace(key.Secret)
	if id == "" || secret == "" {
		return errors.New("gcs hmac access id and secret are required")
	}
	if err := s.settings.SetString(ctx, domain.SettingGCSHMACAccessID, id); err != nil {
		return err
	}
	return s.settings.SetString(ctx, domain.SettingGCSHMACSecret, secret)
}

func (s *Store) trimmed(ctx context.Context, key string) (string, error) {
	v, _, err := s.settings.GetString(ctx, key)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(v), nil
}
