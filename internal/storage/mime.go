package storage

import (
	"mime"
	"path/filepath"
	"strings"

	"studio/internal/domain"
)

var extByMIME = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"video/webm":      ".webm",
}

var mimeByExt = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// ExtensionForMIME maps a MIME type to a file extension, or "" when unknown.
func ExtensionForMIME(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return extByMIME[mimeType]
}

// MIMEForPath guesses the MIME type from a file extension.
func MIMEForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if m, ok := mimeByExt[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		if i := strings.IndexByte(m, ';'); i >= 0 {
			m = strings.TrimSpace(m[:i])
		}
		return m
	}
	return "application/octet-stream"
}

// MediaTypeOf classifies a MIME type as image or video; ok is false otherwise.
func MediaTypeOf(mimeType string) (domain.MediaType, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return domain.MediaTypeImage, true
	case strings.HasPrefix(mimeType, "video/"):
		return domain.MediaTypeVideo, true
	default:
		return "", false
	}
}
