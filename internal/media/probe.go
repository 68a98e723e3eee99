// Package media reads dimensions and duration from stored media files.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"os/exec"
	"strconv"

	_ "golang.org/x/image/webp"
)

// ImageSize decodes only the image header and returns width and height.
func ImageSize(r io.Reader) (int, int, error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image header: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// ImageSizeBytes is ImageSize over an in-memory payload.
func ImageSizeBytes(data []byte) (int, int, error) {
	return ImageSize(bytes.NewReader(data))
}

// ImageSizeFile is ImageSize over a file on disk.
func ImageSizeFile(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	return ImageSize(f)
}

// VideoMeta is the subset of ffprobe output recorded on video assets.
type VideoMeta struct {
	Width           *int
	Height          *int
	DurationSeconds *float64
}

// ErrProbeUnavailable is returned when no ffprobe binary is configured or found.
var ErrProbeUnavailable = errors.New("ffprobe unavailable")

// VideoProber runs ffprobe to read video stream metadata.
type VideoProber struct {
	Path string
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns what ffprobe reports for path. Missing fields stay nil.
func (p VideoProber) Probe(ctx context.Context, path string) (VideoMeta, error) {
	if p.Path == "" {
		return VideoMeta{}, ErrProbeUnavailable
	}
	bin, err := exec.LookPath(p.Path)
	if err != nil {
		return VideoMeta{}, ErrProbeUnavailable
	}
	cmd := exec.CommandContext(ctx, bin, "-v", "error", "-print_format", "json", "-show_streams", "-show_format", path)
	out, err := cmd.Output()
	if err != nil {
		return VideoMeta{}, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFFProbe(out)
}

func parseFFProbe(out []byte) (VideoMeta, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return VideoMeta{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	var meta VideoMeta
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		meta.DurationSeconds = &d
	}
	for _, s := range parsed.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width > 0 && s.Height > 0 {
			w, h := s.Width, s.Height
			meta.Width, meta.Height = &w, &h
		}
		break
	}
	return meta, nil
}
