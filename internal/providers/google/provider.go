// Package google implements image and video generation against the Gemini
// API (API key) and Vertex AI (service account).
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2/google"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/providers"
	"studio/internal/providers/genai"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// CredentialsFunc turns service account JSON into token-bearing credentials.
type CredentialsFunc func(ctx context.Context, data []byte) (*google.Credentials, error)

func defaultCredentials(ctx context.Context, data []byte) (*google.Credentials, error) {
	return google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
}

// Options configures a Provider.
type Options struct {
	BaseURL       string
	VertexBaseURL string
	HTTPClient    *http.Client
	Logger        *infra.Logger
	Credentials   CredentialsFunc
}

// Provider serves Gemini/Imagen images and Veo videos.
type Provider struct {
	opts Options
}

func New(opts Options) *Provider {
	if opts.Credentials == nil {
		opts.Credentials = defaultCredentials
	}
	return &Provider{opts: opts}
}

func (p *Provider) ID() string { return domain.ProviderGoogle }

// MakeClientAPIKey builds a Gemini API client. A rejected key surfaces as an
// *providers.AuthError on the first call.
func (p *Provider) MakeClientAPIKey(apiKey string) (providers.Client, error) {
	return genai.NewClient(genai.Options{
		APIKey:     apiKey,
		BaseURL:    p.opts.BaseURL,
		HTTPClient: p.opts.HTTPClient,
		Logger:     p.opts.Logger,
	})
}

// MakeClientVertex builds a Vertex AI client from service account JSON. The
// project falls back to the one embedded in the credentials.
func (p *Provider) MakeClientVertex(ctx context.Context, creds providers.VertexCredentials) (providers.Client, error) {
	if len(creds.ServiceAccountJSON) == 0 {
		return nil, fmt.Errorf("vertex service account: %w", domain.ErrNotConfigured)
	}
	gc, err := p.opts.Credentials(ctx, creds.ServiceAccountJSON)
	if err != nil {
		return nil, fmt.Errorf("parse service account: %w", err)
	}
	project := strings.TrimSpace(creds.ProjectID)
	if project == "" {
		project = gc.ProjectID
	}
	if project == "" {
		return nil, errors.New("vertex project id is not set")
	}
	return genai.NewClient(genai.Options{
		TokenSource:   gc.TokenSource,
		ProjectID:     project,
		Location:      creds.Location,
		VertexBaseURL: p.opts.VertexBaseURL,
		HTTPClient:    p.opts.HTTPClient,
		Logger:        p.opts.Logger,
	})
}

func asGenai(client providers.Client) (*genai.Client, error) {
	c, ok := client.(*genai.Client)
	if !ok || c == nil {
		return nil, fmt.Errorf("google: unexpected client %T", client)
	}
	return c, nil
}
