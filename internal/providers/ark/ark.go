// Package ark calls the Volcengine Ark OpenAI-compatible image API.
package ark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers"
)

const DefaultBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Provider generates images through Ark. It only supports API key auth.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

func New(opts Options) *Provider {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Provider{baseURL: baseURL, httpClient: client, logger: logger}
}

func (p *Provider) ID() string { return domain.ProviderVolcengineArk }

// Client is an Ark session bound to one API key.
type Client struct {
	apiKey  string
	baseURL string
}

func (c *Client) AuthMode() domain.AuthMode { return domain.AuthModeAPIKey }

func (p *Provider) MakeClientAPIKey(apiKey string) (providers.Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return &Client{apiKey: apiKey, baseURL: p.baseURL}, nil
}

type sequentialOptions struct {
	MaxImages int `json:"max_images"`
}

type generateRequest struct {
	Model                            string             `json:"model"`
	Prompt                           string             `json:"prompt"`
	Size                             string             `json:"size"`
	ResponseFormat                   string             `json:"response_format"`
	Image                            any                `json:"image,omitempty"`
	SequentialImageGeneration        string             `json:"sequential_image_generation,omitempty"`
	SequentialImageGenerationOptions *sequentialOptions `json:"sequential_image_generation_options,omitempty"`
	Watermark                        *bool              `json:"watermark,omitempty"`
}

type generateResponse struct {
	Data []struct {
		URL     string `json:"url,omitempty"`
		B64JSON string `json:"b64_json,omitempty"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage requests one or more images. Aspect ratio is not sent; Ark
// derives the shape from the size preset and the prompt.
func (p *Provider) GenerateImage(ctx context.Context, client providers.Client, req providers.ImageRequest) (*providers.ImageOutput, error) {
	c, ok := client.(*Client)
	if !ok || c == nil {
		return nil, fmt.Errorf("ark: unexpected client %T", client)
	}

	body := generateRequest{
		Model:          req.ProviderModel,
		Prompt:         req.Prompt,
		Size:           normalizeSize(req.ImageSize),
		ResponseFormat: "url",
		Watermark:      req.Watermark,
	}
	refs := make([]string, 0, len(req.References))
	for _, ref := range req.References {
		if len(ref.Data) == 0 {
			continue
		}
		refs = append(refs, dataURL(ref))
	}
	switch len(refs) {
	case 0:
	case 1:
		body.Image = refs[0]
	default:
		body.Image = refs
	}
	switch req.SequentialImageGeneration {
	case providers.SequentialAuto, providers.SequentialDisabled:
		body.SequentialImageGeneration = req.SequentialImageGeneration
	}
	if req.MaxImages != nil {
		body.SequentialImageGenerationOptions = &sequentialOptions{MaxImages: *req.MaxImages}
	}

	var resp generateResponse
	if err := p.post(ctx, c, "/images/generations", body, &resp); err != nil {
		return nil, err
	}

	out := &providers.ImageOutput{}
	for _, item := range resp.Data {
		switch {
		case item.URL != "":
			out.Items = append(out.Items, providers.ImageItem{URL: item.URL})
		case item.B64JSON != "":
			out.Items = append(out.Items, providers.ImageItem{B64: item.B64JSON})
		}
	}
	if len(out.Items) == 0 {
		return nil, &providers.NoOutputError{Media: "image"}
	}
	return out, nil
}

func (p *Provider) post(ctx context.Context, c *Client, path string, payload any, out any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	started := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke ark: %w", err)
	}
	defer resp.Body.Close()

	p.logger.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(started)).
		Msg("ark call")

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		msg := strings.TrimSpace(string(data))
		var apiErr errorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			msg = apiErr.Error.Message
			if apiErr.Error.Code != "" {
				msg = apiErr.Error.Code + ": " + msg
			}
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return &providers.AuthError{Provider: domain.ProviderVolcengineArk, StatusCode: resp.StatusCode, Message: msg}
		}
		return fmt.Errorf("ark status %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ark response: %w", err)
	}
	return nil
}

// normalizeSize defaults to 1K and upper-cases the 1k/2k presets.
func normalizeSize(size string) string {
	v := strings.TrimSpace(size)
	if v == "" {
		return "1K"
	}
	switch strings.ToLower(v) {
	case "1k", "2k":
		return strings.ToUpper(v)
	}
	return v
}

func dataURL(img providers.ReferenceImage) string {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}
