package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"studio/internal/providers"
	"studio/internal/providers/genai"
)

const (
	defaultVideoMIME     = "video/mp4"
	defaultPollInterval  = 10 * time.Second
	defaultMaxVideoPolls = 120
)

type inlineImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded"`
	MIMEType           string `json:"mimeType,omitempty"`
}

type gcsVideo struct {
	GCSURI   string `json:"gcsUri"`
	MIMEType string `json:"mimeType,omitempty"`
}

type videoInstance struct {
	Prompt    string       `json:"prompt,omitempty"`
	Image     *inlineImage `json:"image,omitempty"`
	LastFrame *inlineImage `json:"lastFrame,omitempty"`
	Video     *gcsVideo    `json:"video,omitempty"`
}

type videoParameters struct {
	DurationSeconds int    `json:"durationSeconds,omitempty"`
	AspectRatio     string `json:"aspectRatio,omitempty"`
	SampleCount     int    `json:"sampleCount,omitempty"`
	StorageURI      string `json:"storageUri,omitempty"`
}

type videoPayload struct {
	Instances  []videoInstance `json:"instances"`
	Parameters videoParameters `json:"parameters"`
}

type videoRef struct {
	URI                string `json:"uri,omitempty"`
	GCSURI             string `json:"gcsUri,omitempty"`
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MIMEType           string `json:"mimeType,omitempty"`
}

type generatedSample struct {
	Video *videoRef `json:"video,omitempty"`
}

// videoResponse covers both the Gemini API (generateVideoResponse) and the
// Vertex AI (videos) operation result shapes.
type videoResponse struct {
	GenerateVideoResponse *struct {
		GeneratedSamples        []generatedSample `json:"generatedSamples"`
		RAIMediaFilteredReasons []string          `json:"raiMediaFilteredReasons"`
	} `json:"generateVideoResponse,omitempty"`
	Videos                  []videoRef `json:"videos,omitempty"`
	RAIMediaFilteredReasons []string   `json:"raiMediaFilteredReasons,omitempty"`
}

// GenerateVideo starts a Veo generation conditioned on an optional first and
// last frame and waits for it to finish.
func (p *Provider) GenerateVideo(ctx context.Context, client providers.Client, req providers.VideoRequest) (*providers.VideoOutput, error) {
	c, err := asGenai(client)
	if err != nil {
		return nil, err
	}
	instance := videoInstance{Prompt: req.Prompt}
	if req.StartImage != nil {
		instance.Image = toInlineImage(*req.StartImage)
	}
	if req.EndImage != nil {
		instance.LastFrame = toInlineImage(*req.EndImage)
	}
	payload := videoPayload{
		Instances: []videoInstance{instance},
		Parameters: videoParameters{
			DurationSeconds: req.DurationSeconds,
			AspectRatio:     req.AspectRatio,
			SampleCount:     1,
		},
	}
	return p.runVideoOperation(ctx, c, req.ProviderModel, payload, req.PollInterval, req.MaxPolls)
}

// ExtendVideo continues a video stored in GCS. Only Vertex accepts gs://
// inputs, and the result is written under OutputURIPrefix.
func (p *Provider) ExtendVideo(ctx context.Context, client providers.Client, req providers.ExtendRequest) (*providers.VideoOutput, error) {
	c, err := asGenai(client)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(req.InputVideoURI, "gs://") {
		return nil, fmt.Errorf("extend input must be a gs:// uri, got %q", req.InputVideoURI)
	}
	mime := req.InputMIMEType
	if mime == "" {
		mime = defaultVideoMIME
	}
	payload := videoPayload{
		Instances: []videoInstance{{
			Prompt: req.Prompt,
			Video:  &gcsVideo{GCSURI: req.InputVideoURI, MIMEType: mime},
		}},
		Parameters: videoParameters{
			DurationSeconds: req.ExtendSeconds,
			AspectRatio:     req.AspectRatio,
			SampleCount:     1,
			StorageURI:      req.OutputURIPrefix,
		},
	}
	return p.runVideoOperation(ctx, c, req.ProviderModel, payload, req.PollInterval, req.MaxPolls)
}

func (p *Provider) runVideoOperation(ctx context.Context, c *genai.Client, model string, payload videoPayload, interval time.Duration, maxPolls int) (*providers.VideoOutput, error) {
	if maxPolls <= 0 {
		maxPolls = defaultMaxVideoPolls
	}
	if interval < 0 {
		interval = defaultPollInterval
	}

	op, err := c.PredictLongRunning(ctx, model, payload)
	if err != nil {
		return nil, err
	}
	if !op.Done {
		err := providers.Poll(ctx, interval, maxPolls, func(ctx context.Context) (bool, error) {
			next, err := c.GetOperation(ctx, model, op)
			if err != nil {
				return false, err
			}
			if next.Name == "" {
				next.Name = op.Name
			}
			op = next
			return op.Done, nil
		})
		if err != nil {
			return nil, err
		}
	}
	if op.Error != nil && (op.Error.Message != "" || op.Error.Code != 0) {
		return nil, fmt.Errorf("video operation failed (code %d): %s", op.Error.Code, op.Error.Message)
	}
	return p.videoOutput(ctx, c, op.Response)
}

func (p *Provider) videoOutput(ctx context.Context, c *genai.Client, raw json.RawMessage) (*providers.VideoOutput, error) {
	var resp videoResponse
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode video response: %w", err)
		}
	}

	var refs []videoRef
	reasons := resp.RAIMediaFilteredReasons
	if g := resp.GenerateVideoResponse; g != nil {
		for _, s := range g.GeneratedSamples {
			if s.Video != nil {
				refs = append(refs, *s.Video)
			}
		}
		reasons = append(reasons, g.RAIMediaFilteredReasons...)
	}
	refs = append(refs, resp.Videos...)
	if len(refs) == 0 {
		return nil, &providers.NoOutputError{Media: "generated video", Detail: strings.Join(reasons, "; ")}
	}

	v := refs[0]
	mime := v.MIMEType
	if mime == "" {
		mime = defaultVideoMIME
	}
	if v.BytesBase64Encoded != "" {
		data, err := base64.StdEncoding.DecodeString(v.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode video bytes: %w", err)
		}
		return &providers.VideoOutput{Data: data, MIMEType: mime}, nil
	}

	uri := v.GCSURI
	if uri == "" {
		uri = v.URI
	}
	switch {
	case uri == "":
		return nil, &providers.NoOutputError{Media: "video"}
	case strings.HasPrefix(uri, "gs://"):
		return &providers.VideoOutput{URI: uri, MIMEType: mime}, nil
	}

	data, contentType, err := c.Download(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("download video: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("downloaded video is empty")
	}
	if v.MIMEType == "" && strings.HasPrefix(contentType, "video/") {
		mime = contentType
	}
	return &providers.VideoOutput{Data: data, MIMEType: mime}, nil
}

func toInlineImage(img providers.ReferenceImage) *inlineImage {
	mime := img.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &inlineImage{BytesBase64Encoded: base64.StdEncoding.EncodeToString(img.Data), MIMEType: mime}
}
