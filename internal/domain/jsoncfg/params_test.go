package jsoncfg

import (
	"reflect"
	"testing"
)

func TestImageParamsNormalizeDefaults(t *testing.T) {
	p := &ImageParams{}
	p.Normalize()

	if p.AspectRatio != DefaultImageAspectRatio {
		t.Fatalf("AspectRatio = %q, want %q", p.AspectRatio, DefaultImageAspectRatio)
	}
	if p.ImageSize != DefaultImageSize {
		t.Fatalf("ImageSize = %q, want %q", p.ImageSize, DefaultImageSize)
	}
}

func TestImageParamsReferenceIDsSingleFirst(t *testing.T) {
	p := ImageParams{
		ReferenceImageAssetID:  "b",
		ReferenceImageAssetIDs: []string{"a", " ", "b", "c"},
	}
	got := p.ReferenceIDs()
	want := []string{"b", "a", "c"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ReferenceIDs = %v, want %v", got, want)
	}
}

func TestVideoParamsNormalizeKeepsExplicitValues(t *testing.T) {
	p := &VideoParams{AspectRatio: "9:16", DurationSeconds: 8}
	p.Normalize()
	if p.AspectRatio != "9:16" {
		t.Fatalf("AspectRatio should keep explicit value, got %q", p.AspectRatio)
	}
	if p.DurationSeconds != 8 {
		t.Fatalf("DurationSeconds = %d, want 8", p.DurationSeconds)
	}

	empty := &VideoParams{}
	empty.Normalize()
	if empty.DurationSeconds != DefaultVideoDurationSeconds {
		t.Fatalf("DurationSeconds = %d, want %d", empty.DurationSeconds, DefaultVideoDurationSeconds)
	}
}

func TestDecodeParams(t *testing.T) {
	var p ImageParams
	err := Decode(map[string]any{
		"prompt":                              "a cat",
		"watermark":                           false,
		"sequential_image_generation":         "auto",
		"sequential_image_generation_options": map[string]any{"max_images": 3},
	}, &p)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if p.Prompt != "a cat" {
		t.Fatalf("Prompt = %q, want %q", p.Prompt, "a cat")
	}
	if p.Watermark == nil || *p.Watermark {
		t.Fatalf("Watermark = %v, want false", p.Watermark)
	}
	if p.SequentialImageGenerationOptions == nil || p.SequentialImageGenerationOptions.MaxImages == nil || *p.SequentialImageGenerationOptions.MaxImages != 3 {
		t.Fatalf("max_images not decoded: %+v", p.SequentialImageGenerationOptions)
	}
}
