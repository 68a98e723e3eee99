// Package catalog loads the static registry of generation models.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"studio/internal/domain"
)

// Capability keys used in provider_models.
const (
	CapabilityImageGenerate = "image_generate"
	CapabilityImageEdit     = "image_edit"
	CapabilityVideoGenerate = "video_generate"
	CapabilityVideoExtend   = "video_extend"
)

//go:embed models.yaml
var defaultCatalog []byte

// Model is one catalog entry.
type Model struct {
	ModelID                            string            `yaml:"model_id" json:"model_id"`
	DisplayName                        string            `yaml:"display_name" json:"display_name"`
	ProviderID                         string            `yaml:"provider_id" json:"provider_id"`
	ProviderModels                     map[string]string `yaml:"provider_models" json:"provider_models,omitempty"`
	ProviderModel                      string            `yaml:"provider_model" json:"provider_model,omitempty"`
	MediaType                          domain.MediaType  `yaml:"media_type" json:"media_type"`
	ComingSoon                         bool              `yaml:"coming_soon" json:"coming_soon"`
	AuthSupport                        []domain.AuthMode `yaml:"auth_support" json:"auth_support"`
	PromptMaxChars                     int               `yaml:"prompt_max_chars" json:"prompt_max_chars,omitempty"`
	AspectRatios                       []string          `yaml:"aspect_ratios" json:"aspect_ratios,omitempty"`
	DurationSeconds                    []int             `yaml:"duration_seconds" json:"duration_seconds,omitempty"`
	ResolutionPresets                  []string          `yaml:"resolution_presets" json:"resolution_presets,omitempty"`
	ReferenceImageSupported            bool              `yaml:"reference_image_supported" json:"reference_image_supported"`
	MaxReferenceImages                 int               `yaml:"max_reference_images" json:"max_reference_images,omitempty"`
	SequentialImageGenerationSupported bool              `yaml:"sequential_image_generation_supported" json:"sequential_image_generation_supported"`
	MaxOutputImages                    int               `yaml:"max_output_images" json:"max_output_images,omitempty"`
	MaxTotalImages                     int               `yaml:"max_total_images" json:"max_total_images,omitempty"`
	StartEndImageSupported             bool              `yaml:"start_end_image_supported" json:"start_end_image_supported"`
	ExtendSupported                    bool              `yaml:"extend_supported" json:"extend_supported"`
}

// ProviderModelFor returns the vendor model for a capability, falling back to
// provider_model.
func (m Model) ProviderModelFor(capability string) string {
	if v := strings.TrimSpace(m.ProviderModels[capability]); v != "" {
		return v
	}
	return strings.TrimSpace(m.ProviderModel)
}

// HasCapability reports whether provider_models names the capability explicitly.
func (m Model) HasCapability(capability string) bool {
	return strings.TrimSpace(m.ProviderModels[capability]) != ""
}

func (m Model) SupportsAuth(mode domain.AuthMode) bool {
	return slices.Contains(m.AuthSupport, mode)
}

// SupportsJobType reports whether jobType can run on this model.
func (m Model) SupportsJobType(jobType domain.JobType) bool {
	switch jobType {
	case domain.JobTypeImageGenerate:
		return m.MediaType == domain.MediaTypeImage
	case domain.JobTypeVideoGenerate:
		return m.MediaType == domain.MediaTypeVideo
	case domain.JobTypeVideoExtend:
		return m.MediaType == domain.MediaTypeVideo && m.ExtendSupported
	default:
		return false
	}
}

// Catalog is a reloadable, concurrency-safe set of models.
type Catalog struct {
	path string

	mu     sync.RWMutex
	models []Model
	byID   map[string]int
}

// Load reads the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	c := &Catalog{path: strings.TrimSpace(path)}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// FromModels builds a catalog from in-memory entries.
func FromModels(models []Model) (*Catalog, error) {
	c := &Catalog{}
	if err := c.set(models); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog source. On error the previous entries stay active.
func (c *Catalog) Reload() error {
	raw := defaultCatalog
	if c.path != "" {
		data, err := os.ReadFile(c.path)
		if err != nil {
			return fmt.Errorf("read model catalog: %w", err)
		}
		raw = data
	}
	models, err := Parse(raw)
	if err != nil {
		return err
	}
	return c.set(models)
}

// Parse decodes a YAML (or JSON) list of models.
func Parse(raw []byte) ([]Model, error) {
	var models []Model
	if err := yaml.Unmarshal(raw, &models); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(models) == 0 {
		return nil, errors.New("model catalog is empty")
	}
	return models, nil
}

func (c *Catalog) set(models []Model) error {
	byID := make(map[string]int, len(models))
	for i, m := range models {
		if strings.TrimSpace(m.ModelID) == "" {
			return fmt.Errorf("model catalog entry #%d missing model_id", i)
		}
		if _, dup := byID[m.ModelID]; dup {
			return fmt.Errorf("model catalog entry #%d duplicates model_id %q", i, m.ModelID)
		}
		if strings.TrimSpace(m.ProviderID) == "" {
			return fmt.Errorf("model %q missing provider_id", m.ModelID)
		}
		byID[m.ModelID] = i
	}
	c.mu.Lock()
	c.models = models
	c.byID = byID
	c.mu.Unlock()
	return nil
}

// Get returns the model with id.
func (c *Catalog) Get(modelID string) (Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byID[modelID]
	if !ok {
		return Model{}, false
	}
	return c.models[i], true
}

// List returns all models in catalog order.
func (c *Catalog) List() []Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.models)
}
