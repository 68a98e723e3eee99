// Package providers defines the capability contract implemented by media
// generation vendors and the registry the runner dispatches through.
package providers

import (
	"context"
	"time"

	"studio/internal/domain"
)

// Client is an authenticated, provider-specific session.
type Client interface {
	AuthMode() domain.AuthMode
}

// Provider is the minimal surface every vendor implements. Generation
// capabilities are discovered with type assertions against the interfaces below.
type Provider interface {
	ID() string
}

type APIKeyAuthenticator interface {
	MakeClientAPIKey(apiKey string) (Client, error)
}

// VertexCredentials carries what a Vertex AI session needs.
type VertexCredentials struct {
	ServiceAccountJSON []byte
	ProjectID          string
	Location           string
}

type VertexAuthenticator interface {
	MakeClientVertex(ctx context.Context, creds VertexCredentials) (Client, error)
}

type ImageGenerator interface {
	GenerateImage(ctx context.Context, client Client, req ImageRequest) (*ImageOutput, error)
}

// ImageEditor is implemented by vendors whose reference-image flow requires a
// dedicated edit call.
type ImageEditor interface {
	EditImage(ctx context.Context, client Client, req EditRequest) (*ImageOutput, error)
}

type VideoGenerator interface {
	GenerateVideo(ctx context.Context, client Client, req VideoRequest) (*VideoOutput, error)
}

type VideoExtender interface {
	ExtendVideo(ctx context.Context, client Client, req ExtendRequest) (*VideoOutput, error)
}

// ReferenceImage is an input image passed inline to a vendor.
type ReferenceImage struct {
	Data     []byte
	MIMEType string
}

// Sequential generation modes.
const (
	SequentialAuto     = "auto"
	SequentialDisabled = "disabled"
)

// ImageRequest asks for one or more images. References[0] is the single
// reference for vendors that accept only one.
type ImageRequest struct {
	ProviderModel             string
	Prompt                    string
	AspectRatio               string
	ImageSize                 string
	References                []ReferenceImage
	SequentialImageGeneration string
	MaxImages                 *int
	Watermark                 *bool
}

// EditRequest edits Reference under Prompt. Mask is optional.
type EditRequest struct {
	ProviderModel string
	Prompt        string
	AspectRatio   string
	Reference     ReferenceImage
	Mask          *ReferenceImage
}

// ImageItem is one produced image: exactly one of Data, B64 or URL is set.
type ImageItem struct {
	Data     []byte
	B64      string
	URL      string
	MIMEType string
}

type ImageOutput struct {
	Items []ImageItem
}

// VideoRequest asks for one video. Polling is bounded by MaxPolls attempts
// spaced PollInterval apart.
type VideoRequest struct {
	ProviderModel   string
	Prompt          string
	DurationSeconds int
	AspectRatio     string
	StartImage      *ReferenceImage
	EndImage        *ReferenceImage
	PollInterval    time.Duration
	MaxPolls        int
}

// ExtendRequest continues the video stored at InputVideoURI and writes the
// result under OutputURIPrefix.
type ExtendRequest struct {
	ProviderModel   string
	Prompt          string
	InputVideoURI   string
	InputMIMEType   string
	ExtendSeconds   int
	AspectRatio     string
	OutputURIPrefix string
	PollInterval    time.Duration
	MaxPolls        int
}

// VideoOutput carries either inline bytes or a remote URI (gs:// or http(s)://).
type VideoOutput struct {
	Data     []byte
	URI      string
	MIMEType string
}

// Registry maps provider ids to providers.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.providers[p.ID()] = p
	}
	return r
}

// Get returns the provider registered under id.
func (r *Registry) Get(id string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	p, ok := r.providers[id]
	return p, ok
}
