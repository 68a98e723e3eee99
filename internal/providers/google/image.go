package google

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"studio/internal/providers"
	"studio/internal/providers/genai"
)

// Only this Gemini model accepts an explicit output size.
const sizedGeminiModel = "gemini-3-pro-image-preview"

const snippetLimit = 160

// GenerateImage routes gemini* models through generateContent and everything
// else through Imagen predict. Imagen models accept no reference image.
func (p *Provider) GenerateImage(ctx context.Context, client providers.Client, req providers.ImageRequest) (*providers.ImageOutput, error) {
	c, err := asGenai(client)
	if err != nil {
		return nil, err
	}
	size := normalizeImageSize(req.ImageSize)
	isGemini := strings.HasPrefix(req.ProviderModel, "gemini")
	if len(req.References) > 0 && !isGemini {
		return nil, errors.New("reference_image not supported for provider model")
	}
	if isGemini {
		return p.generateGemini(ctx, c, req, size)
	}
	return p.generateImagen(ctx, c, req, size)
}

func (p *Provider) generateGemini(ctx context.Context, c *genai.Client, req providers.ImageRequest, size string) (*providers.ImageOutput, error) {
	parts := []genai.Part{{Text: req.Prompt}}
	if len(req.References) > 0 {
		ref := req.References[0]
		mime := ref.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		parts = append(parts, genai.Part{InlineData: &genai.Blob{
			MIMEType: mime,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}
	cfg := &genai.ImageConfig{AspectRatio: req.AspectRatio}
	if req.ProviderModel == sizedGeminiModel {
		cfg.ImageSize = size
	}

	resp, err := c.GenerateContent(ctx, req.ProviderModel, genai.GenerateContentRequest{
		Contents: []genai.Content{{Role: "user", Parts: parts}},
		GenerationConfig: &genai.GenerationConfig{
			ResponseModalities: []string{"IMAGE"},
			ImageConfig:        cfg,
		},
	})
	if err != nil {
		return nil, err
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			inline := part.InlineData
			if inline == nil || inline.Data == "" || !strings.HasPrefix(inline.MIMEType, "image/") {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(inline.Data)
			if err != nil {
				return nil, fmt.Errorf("decode inline image: %w", err)
			}
			return &providers.ImageOutput{Items: []providers.ImageItem{{Data: data, MIMEType: inline.MIMEType}}}, nil
		}
	}
	return nil, &providers.NoOutputError{Media: "image", Detail: noImageDiagnostics(resp)}
}

// noImageDiagnostics summarizes why a generateContent response carried no image.
func noImageDiagnostics(resp *genai.GenerateContentResponse) string {
	var details []string
	if fb := resp.PromptFeedback; fb != nil {
		if fb.BlockReasonMessage != "" {
			details = append(details, "prompt_feedback="+fb.BlockReasonMessage)
		}
		if fb.BlockReason != "" {
			details = append(details, "block_reason="+fb.BlockReason)
		}
	}
	for i, cand := range resp.Candidates {
		if cand.FinishReason != "" {
			details = append(details, fmt.Sprintf("candidate[%d].finish_reason=%s", i, cand.FinishReason))
		}
		if cand.FinishMessage != "" {
			details = append(details, fmt.Sprintf("candidate[%d].finish_message=%s", i, cand.FinishMessage))
		}
	}

	var snippets []string
collect:
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			t := strings.Join(strings.Fields(part.Text), " ")
			if t == "" {
				continue
			}
			if r := []rune(t); len(r) > snippetLimit {
				t = string(r[:snippetLimit])
			}
			snippets = append(snippets, t)
			if len(snippets) >= 2 {
				break collect
			}
		}
	}
	if len(snippets) > 0 {
		details = append(details, "text="+strings.Join(snippets, " | "))
	}
	return strings.Join(details, "; ")
}

type imagenImage struct {
	BytesBase64Encoded string `json:"bytesBase64Encoded,omitempty"`
	MIMEType           string `json:"mimeType,omitempty"`
}

type imagenPrediction struct {
	imagenImage
	RAIFilteredReason string `json:"raiFilteredReason,omitempty"`
}

type imagenResponse struct {
	Predictions []imagenPrediction `json:"predictions"`
}

func (p *Provider) generateImagen(ctx context.Context, c *genai.Client, req providers.ImageRequest, size string) (*providers.ImageOutput, error) {
	params := map[string]any{"sampleCount": 1}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	if size != "" {
		params["sampleImageSize"] = size
	}
	payload := map[string]any{
		"instances":  []map[string]any{{"prompt": req.Prompt}},
		"parameters": params,
	}
	var resp imagenResponse
	if err := c.Predict(ctx, req.ProviderModel, payload, &resp); err != nil {
		return nil, err
	}
	return imagenOutput(resp)
}

// EditImage runs an Imagen capability edit on one reference image. Without a
// mask the model edits the whole image under the prompt.
func (p *Provider) EditImage(ctx context.Context, client providers.Client, req providers.EditRequest) (*providers.ImageOutput, error) {
	c, err := asGenai(client)
	if err != nil {
		return nil, err
	}
	if len(req.Reference.Data) == 0 {
		return nil, errors.New("edit requires a reference image")
	}
	refs := []map[string]any{{
		"referenceType":  "REFERENCE_TYPE_RAW",
		"referenceId":    1,
		"referenceImage": map[string]any{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Reference.Data)},
	}}
	editMode := "EDIT_MODE_DEFAULT"
	if req.Mask != nil && len(req.Mask.Data) > 0 {
		editMode = "EDIT_MODE_INPAINT_INSERTION"
		refs = append(refs, map[string]any{
			"referenceType":   "REFERENCE_TYPE_MASK",
			"referenceId":     2,
			"referenceImage":  map[string]any{"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Mask.Data)},
			"maskImageConfig": map[string]any{"maskMode": "MASK_MODE_USER_PROVIDED"},
		})
	}
	params := map[string]any{"sampleCount": 1, "editMode": editMode}
	if req.AspectRatio != "" {
		params["aspectRatio"] = req.AspectRatio
	}
	payload := map[string]any{
		"instances":  []map[string]any{{"prompt": req.Prompt, "referenceImages": refs}},
		"parameters": params,
	}
	var resp imagenResponse
	if err := c.Predict(ctx, req.ProviderModel, payload, &resp); err != nil {
		return nil, err
	}
	return imagenOutput(resp)
}

func imagenOutput(resp imagenResponse) (*providers.ImageOutput, error) {
	var reasons []string
	for _, pred := range resp.Predictions {
		if pred.BytesBase64Encoded == "" {
			if pred.RAIFilteredReason != "" {
				reasons = append(reasons, "rai_filtered_reason="+pred.RAIFilteredReason)
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(pred.BytesBase64Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode imagen output: %w", err)
		}
		mime := pred.MIMEType
		if mime == "" {
			mime = "image/png"
		}
		return &providers.ImageOutput{Items: []providers.ImageItem{{Data: data, MIMEType: mime}}}, nil
	}
	return nil, &providers.NoOutputError{Media: "image", Detail: strings.Join(reasons, "; ")}
}

// normalizeImageSize upper-cases the 1k/2k/4k presets and passes anything
// else through.
func normalizeImageSize(size string) string {
	v := strings.TrimSpace(size)
	switch strings.ToLower(v) {
	case "1k", "2k", "4k":
		return strings.ToUpper(v)
	}
	return v
}
