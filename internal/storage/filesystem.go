package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"studio/internal/domain"
)

const (
	uploadsDir   = "assets/uploads"
	generatedDir = "assets/generated"
	tmpDir       = "tmp"
)

// StoredFile describes a file written into the store.
type StoredFile struct {
	RelPath   string
	AbsPath   string
	MIMEType  string
	SizeBytes int64
}

// FileStore persists asset files under the data directory. Relative paths
// returned by the store are what asset rows record.
type FileStore struct {
	basePath string
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	for _, dir := range []string{uploadsDir, generatedDir, tmpDir} {
		if err := os.MkdirAll(filepath.Join(abs, filepath.FromSlash(dir)), 0o755); err != nil {
			return nil, fmt.Errorf("storage: ensure %s: %w", dir, err)
		}
	}
	return &FileStore{basePath: abs}, nil
}

// BasePath returns the configured root directory.
func (s *FileStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// SaveUpload streams an uploaded file to assets/uploads/{assetID}{ext}, where
// ext is taken from the client filename.
func (s *FileStore) SaveUpload(ctx context.Context, assetID, filename string, r io.Reader) (StoredFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	return s.write(ctx, uploadsDir, assetID, ext, r)
}

// SaveGenerated writes provider output bytes to assets/generated/{assetID}{ext}.
func (s *FileStore) SaveGenerated(ctx context.Context, assetID, ext string, data []byte) (StoredFile, error) {
	return s.write(ctx, generatedDir, assetID, normalizeExt(ext), bytes.NewReader(data))
}

// SaveGeneratedFromFile moves a downloaded file into assets/generated. The
// target is hard-linked so an existing file is never replaced; across devices
// the bytes are copied through the exclusive-create path. The source is
// removed on success.
func (s *FileStore) SaveGeneratedFromFile(ctx context.Context, assetID, ext, srcPath string) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	rel, abs, err := s.target(generatedDir, assetID, normalizeExt(ext))
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("storage: ensure directory: %w", err)
	}
	err = os.Link(srcPath, abs)
	switch {
	case err == nil:
		_ = os.Remove(srcPath)
		return s.stat(rel, abs)
	case errors.Is(err, fs.ErrExist):
		return StoredFile{}, fmt.Errorf("storage: %s already exists", rel)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: open source: %w", err)
	}
	stored, err := s.write(ctx, generatedDir, assetID, normalizeExt(ext), src)
	src.Close()
	if err != nil {
		return StoredFile{}, err
	}
	_ = os.Remove(srcPath)
	return stored, nil
}

// Remove deletes a stored file. A missing file is not an error.
func (s *FileStore) Remove(relPath string) error {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("storage: remove: %w", err)
	}
	return nil
}

// Resolve maps a stored relative path to an absolute path inside the store.
func (s *FileStore) Resolve(relPath string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	clean, err := sanitizeKey(relPath)
	if err != nil {
		return "", err
	}
	abs := filepath.Join(s.basePath, filepath.FromSlash(clean))
	if !within(s.basePath, abs) {
		return "", errors.New("storage: invalid asset path")
	}
	return abs, nil
}

// Open returns a reader for a stored relative path.
func (s *FileStore) Open(relPath string) (*os.File, error) {
	abs, err := s.Resolve(relPath)
	if err != nil {
		return nil, err
	}
	return os.Open(abs)
}

// TempPath returns a fresh path under the store's tmp directory. The file is
// not created.
func (s *FileStore) TempPath(ext string) string {
	return filepath.Join(s.basePath, tmpDir, domain.NewID()+normalizeExt(ext))
}

func (s *FileStore) target(dir, assetID, ext string) (string, string, error) {
	if s == nil {
		return "", "", errors.New("storage: no store configured")
	}
	if strings.TrimSpace(assetID) == "" || strings.ContainsAny(assetID, `/\.`) {
		return "", "", fmt.Errorf("storage: invalid asset id %q", assetID)
	}
	rel, err := sanitizeKey(dir + "/" + assetID + ext)
	if err != nil {
		return "", "", err
	}
	return rel, filepath.Join(s.basePath, filepath.FromSlash(rel)), nil
}

func (s *FileStore) write(ctx context.Context, dir, assetID, ext string, r io.Reader) (StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, err
	}
	rel, abs, err := s.target(dir, assetID, ext)
	if err != nil {
		return StoredFile{}, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("storage: ensure directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		_ = os.Remove(abs)
		return StoredFile{}, fmt.Errorf("storage: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(abs)
		return StoredFile{}, fmt.Errorf("storage: close file: %w", err)
	}
	return s.stat(rel, abs)
}

func (s *FileStore) stat(rel, abs string) (StoredFile, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return StoredFile{}, fmt.Errorf("storage: stat: %w", err)
	}
	return StoredFile{
		RelPath:   rel,
		AbsPath:   abs,
		MIMEType:  MIMEForPath(abs),
		SizeBytes: info.Size(),
	}, nil
}

func within(base, path string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.ToSlash(filepath.Clean(key))
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
