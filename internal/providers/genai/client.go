package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers"
)

const (
	DefaultBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	cloudPlatformHost = "aiplatform.googleapis.com"
)

// Options controls how the client is configured. Either APIKey or
// TokenSource must be set; a TokenSource selects Vertex AI.
type Options struct {
	APIKey        string
	BaseURL       string
	TokenSource   oauth2.TokenSource
	ProjectID     string
	Location      string
	VertexBaseURL string
	HTTPClient    *http.Client
	Logger        *infra.Logger
}

// Client is a thin REST facade over the Gemini API and Vertex AI. Both
// surfaces share request and response shapes; only addressing and auth differ.
type Client struct {
	apiKey     string
	baseURL    string
	tokens     oauth2.TokenSource
	project    string
	location   string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with sane defaults. Callers may provide a nil
// HTTP client; a reusable one with sensible timeouts will be created.
func NewClient(opts Options) (*Client, error) {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Minute}
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	c := &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		tokens:     opts.TokenSource,
		project:    strings.TrimSpace(opts.ProjectID),
		location:   strings.TrimSpace(opts.Location),
		httpClient: client,
		logger:     logger,
	}

	if c.tokens != nil {
		if c.project == "" {
			return nil, errors.New("vertex project id is required")
		}
		if c.location == "" {
			c.location = "us-central1"
		}
		c.baseURL = strings.TrimRight(opts.VertexBaseURL, "/")
		if c.baseURL == "" {
			c.baseURL = vertexBaseURL(c.location)
		}
		return c, nil
	}

	if c.apiKey == "" {
		return nil, errors.New("api key is required")
	}
	c.baseURL = strings.TrimRight(opts.BaseURL, "/")
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	return c, nil
}

func vertexBaseURL(location string) string {
	if location == "global" {
		return "https://" + cloudPlatformHost + "/v1"
	}
	return "https://" + location + "-" + cloudPlatformHost + "/v1"
}

// AuthMode reports how the client authenticates.
func (c *Client) AuthMode() domain.AuthMode {
	if c.tokens != nil {
		return domain.AuthModeVertex
	}
	return domain.AuthModeAPIKey
}

// Part is one piece of multimodal content.
type Part struct {
	Text       string    `json:"text,omitempty"`
	InlineData *Blob     `json:"inlineData,omitempty"`
	FileData   *FileData `json:"fileData,omitempty"`
}

type Blob struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type FileData struct {
	MIMEType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts,omitempty"`
}

type ImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type GenerationConfig struct {
	CandidateCount     int          `json:"candidateCount,omitempty"`
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *ImageConfig `json:"imageConfig,omitempty"`
}

type GenerateContentRequest struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Candidate struct {
	Content       *Content `json:"content,omitempty"`
	FinishReason  string   `json:"finishReason,omitempty"`
	FinishMessage string   `json:"finishMessage,omitempty"`
}

type PromptFeedback struct {
	BlockReason        string `json:"blockReason,omitempty"`
	BlockReasonMessage string `json:"blockReasonMessage,omitempty"`
}

type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
}

// Operation is a long-running prediction.
type Operation struct {
	Name     string          `json:"name"`
	Done     bool            `json:"done"`
	Error    *Status         `json:"error,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
}

// Status is the error payload shared by API responses and operations.
type Status struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Status  string `json:"status,omitempty"`
}

type errorResponse struct {
	Error Status `json:"error"`
}

// GenerateContent calls models/{model}:generateContent.
func (c *Client) GenerateContent(ctx context.Context, model string, req GenerateContentRequest) (*GenerateContentResponse, error) {
	var out GenerateContentResponse
	if err := c.invoke(ctx, http.MethodPost, c.modelURL(model, "generateContent"), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Predict calls models/{model}:predict and decodes into out.
func (c *Client) Predict(ctx context.Context, model string, payload any, out any) error {
	return c.invoke(ctx, http.MethodPost, c.modelURL(model, "predict"), payload, out)
}

// PredictLongRunning starts a long-running prediction.
func (c *Client) PredictLongRunning(ctx context.Context, model string, payload any) (*Operation, error) {
	var op Operation
	if err := c.invoke(ctx, http.MethodPost, c.modelURL(model, "predictLongRunning"), payload, &op); err != nil {
		return nil, err
	}
	return &op, nil
}

// GetOperation refreshes op. Vertex exposes prediction operations through
// fetchPredictOperation on the model rather than a generic operations path.
func (c *Client) GetOperation(ctx context.Context, model string, op *Operation) (*Operation, error) {
	if op == nil || op.Name == "" {
		return nil, errors.New("operation name is required")
	}
	var out Operation
	if c.tokens != nil {
		payload := map[string]string{"operationName": op.Name}
		if err := c.invoke(ctx, http.MethodPost, c.modelURL(model, "fetchPredictOperation"), payload, &out); err != nil {
			return nil, err
		}
		return &out, nil
	}
	endpoint := c.baseURL + "/" + strings.TrimLeft(op.Name, "/")
	if err := c.invoke(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download fetches a file URI returned by the API using the client's auth.
func (c *Client) Download(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(uri, "/")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if err := c.authorize(req); err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, "", c.statusError(resp.StatusCode, data)
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) modelURL(model, method string) string {
	model = strings.TrimPrefix(model, "models/")
	if c.tokens != nil {
		return fmt.Sprintf("%s/projects/%s/locations/%s/publishers/google/models/%s:%s",
			c.baseURL, url.PathEscape(c.project), url.PathEscape(c.location), url.PathEscape(model), method)
	}
	return fmt.Sprintf("%s/models/%s:%s", c.baseURL, url.PathEscape(model), method)
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens != nil {
		tok, err := c.tokens.Token()
		if err != nil {
			return &providers.AuthError{Provider: domain.ProviderGoogle, Message: err.Error()}
		}
		tok.SetAuthHeader(req)
		return nil
	}
	if c.apiKey != "" {
		q := req.URL.Query()
		q.Set("key", c.apiKey)
		req.URL.RawQuery = q.Encode()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke gemini: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(started)).
		Msg("gemini call")

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return c.statusError(resp.StatusCode, data)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode gemini response: %w", err)
	}
	return nil
}

func (c *Client) statusError(code int, data []byte) error {
	msg := strings.TrimSpace(string(data))
	status := ""
	var apiErr errorResponse
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
		status = apiErr.Error.Status
	}
	if code == http.StatusUnauthorized || code == http.StatusForbidden {
		return &providers.AuthError{Provider: domain.ProviderGoogle, StatusCode: code, Message: msg}
	}
	prefix := fmt.Sprintf("gemini status %d", code)
	if status != "" {
		prefix += " " + status
	}
	if msg == "" {
		return errors.New(prefix)
	}
	return fmt.Errorf("%s: %s", prefix, msg)
}
