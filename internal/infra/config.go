package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	DataDir            string
	ModelCatalogPath   string
	Locale             string
	RunnerConcurrency  int
	VideoPollInterval  time.Duration
	VideoMaxPolls      int
	GeminiBaseURL      string
	VertexBaseURL      string
	ArkBaseURL         string
	GCSEndpoint        string
	CORSAllowedOrigins []string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RateLimitPerMin    int
	MaxUploadBytes     int64
	FFProbePath        string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", "development"),
		LogLevel:           os.Getenv("LOG_LEVEL"),
		Port:               getEnv("PORT", "8000"),
		DataDir:            getEnv("DATA_DIR", "./data"),
		ModelCatalogPath:   os.Getenv("MODEL_CATALOG_PATH"),
		Locale:             strings.ToLower(getEnv("APP_LOCALE", "en")),
		RunnerConcurrency:  getEnvInt("RUNNER_CONCURRENCY", 1),
		VideoPollInterval:  time.Second * time.Duration(getEnvInt("VIDEO_POLL_INTERVAL_SECONDS", 10)),
		VideoMaxPolls:      getEnvInt("VIDEO_MAX_POLLS", 120),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		VertexBaseURL:      os.Getenv("VERTEX_BASE_URL"),
		ArkBaseURL:         getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		GCSEndpoint:        getEnv("GCS_ENDPOINT", "storage.googleapis.com"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 120)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", 200)) << 20,
		FFProbePath:        getEnv("FFPROBE_PATH", "ffprobe"),
	}

	if cfg.RunnerConcurrency < 1 {
		return nil, fmt.Errorf("RUNNER_CONCURRENCY must be at least 1")
	}
	if cfg.VideoMaxPolls < 1 {
		return nil, fmt.Errorf("VIDEO_MAX_POLLS must be at least 1")
	}
	if cfg.VideoPollInterval < 0 {
		return nil, fmt.Errorf("VIDEO_POLL_INTERVAL_SECONDS must not be negative")
	}
	switch cfg.Locale {
	case "en", "zh":
	default:
		return nil, fmt.Errorf("APP_LOCALE %q is not supported", cfg.Locale)
	}

	return cfg, nil
}

// DBPath is the SQLite file inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "app.db")
}

// EnsureDataDirs creates the data directory layout.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{
		c.DataDir,
		filepath.Join(c.DataDir, "assets", "uploads"),
		filepath.Join(c.DataDir, "assets", "generated"),
		filepath.Join(c.DataDir, "credentials"),
		filepath.Join(c.DataDir, "tmp"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
