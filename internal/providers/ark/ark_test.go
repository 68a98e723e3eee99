package ark

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studio/internal/providers"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) (*Provider, providers.Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p := New(Options{BaseURL: srv.URL + "/", HTTPClient: srv.Client()})
	client, err := p.MakeClientAPIKey("ark_x")
	if err != nil {
		t.Fatalf("MakeClientAPIKey: %v", err)
	}
	return p, client
}

func TestGenerateImageBuildsPayloadForReferencesAndSequence(t *testing.T) {
	var body map[string]any
	p, client := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ark_x" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []any{
				map[string]any{"url": "https://example.com/a.png"},
				map[string]any{"b64_json": "aW1n"},
				map[string]any{},
			},
		})
	})

	maxImages := 4
	watermark := true
	out, err := p.GenerateImage(context.Background(), client, providers.ImageRequest{
		ProviderModel: "doubao-seedream-4-5-251128",
		Prompt:        "p",
		AspectRatio:   "1:1",
		ImageSize:     "2k",
		References: []providers.ReferenceImage{
			{Data: []byte("a"), MIMEType: "image/png"},
			{Data: []byte("b"), MIMEType: "image/jpeg"},
		},
		SequentialImageGeneration: "auto",
		MaxImages:                 &maxImages,
		Watermark:                 &watermark,
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if len(out.Items) != 2 || out.Items[0].URL != "https://example.com/a.png" || out.Items[1].B64 != "aW1n" {
		t.Fatalf("items = %+v", out.Items)
	}

	if body["model"] != "doubao-seedream-4-5-251128" || body["size"] != "2K" || body["response_format"] != "url" {
		t.Fatalf("body = %v", body)
	}
	if body["sequential_image_generation"] != "auto" || body["watermark"] != true {
		t.Fatalf("body = %v", body)
	}
	opts, _ := body["sequential_image_generation_options"].(map[string]any)
	if opts["max_images"] != float64(4) {
		t.Fatalf("sequential options = %v", opts)
	}
	images, ok := body["image"].([]any)
	if !ok || len(images) != 2 {
		t.Fatalf("image = %v, want two data urls", body["image"])
	}
	if !strings.HasPrefix(images[0].(string), "data:image/png;base64,") || !strings.HasPrefix(images[1].(string), "data:image/jpeg;base64,") {
		t.Fatalf("image = %v", images)
	}
}

func TestGenerateImageSingleReferenceIsAString(t *testing.T) {
	var body map[string]any
	p, client := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{map[string]any{"url": "u"}}})
	})

	_, err := p.GenerateImage(context.Background(), client, providers.ImageRequest{
		ProviderModel:             "m",
		Prompt:                    "p",
		References:                []providers.ReferenceImage{{Data: []byte("a")}},
		SequentialImageGeneration: "sometimes",
	})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if s, ok := body["image"].(string); !ok || !strings.HasPrefix(s, "data:image/png;base64,") {
		t.Fatalf("image = %v", body["image"])
	}
	if body["size"] != "1K" {
		t.Fatalf("size = %v, want 1K", body["size"])
	}
	for _, key := range []string{"sequential_image_generation", "sequential_image_generation_options", "watermark"} {
		if _, ok := body[key]; ok {
			t.Fatalf("body carries %s: %v", key, body)
		}
	}
}

func TestGenerateImageWithoutItems(t *testing.T) {
	p, client := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	_, err := p.GenerateImage(context.Background(), client, providers.ImageRequest{ProviderModel: "m", Prompt: "p"})
	var noOut *providers.NoOutputError
	if !errors.As(err, &noOut) || err.Error() != "No image output" {
		t.Fatalf("err = %v, want No image output", err)
	}
}

func TestGenerateImageErrors(t *testing.T) {
	p, client := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Authorization"), "bad") {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"code":"AuthenticationError","message":"invalid key"}}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"InvalidParameter","message":"size is invalid"}}`))
	})

	_, err := p.GenerateImage(context.Background(), client, providers.ImageRequest{ProviderModel: "m", Prompt: "p"})
	if err == nil || err.Error() != "ark status 400: InvalidParameter: size is invalid" {
		t.Fatalf("err = %v", err)
	}

	bad, err := p.MakeClientAPIKey("bad")
	if err != nil {
		t.Fatalf("MakeClientAPIKey: %v", err)
	}
	_, err = p.GenerateImage(context.Background(), bad, providers.ImageRequest{ProviderModel: "m", Prompt: "p"})
	var authErr *providers.AuthError
	if !errors.As(err, &authErr) || authErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("err = %v, want AuthError", err)
	}
}

func TestMakeClientAPIKeyRequiresKey(t *testing.T) {
	if _, err := New(Options{}).MakeClientAPIKey("  "); err == nil {
		t.Fatal("expected error for blank key")
	}
}

func TestNormalizeSize(t *testing.T) {
	cases := map[string]string{"": "1K", "1k": "1K", "2K": "2K", "4k": "4k", "2048x2048": "2048x2048"}
	for in, want := range cases {
		if got := normalizeSize(in); got != want {
			t.Fatalf("normalizeSize(%q) = %q, want %q", in, got, want)
		}
	}
}
