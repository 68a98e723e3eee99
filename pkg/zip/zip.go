// Package zip streams stored files into a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file in the archive. Open is called once, while the entry is
// being written.
type Entry struct {
	Name     string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// Write streams entries into w as a zip archive. Media files are stored
// without compression.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := writeEntry(zw, e); err != nil {
			_ = zw.Close()
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, e Entry) error {
	src, err := e.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Name, err)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     e.Name,
		Method:   zip.Store,
		Modified: e.Modified,
	})
	if err != nil {
		return fmt.Errorf("create %s: %w", e.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("write %s: %w", e.Name, err)
	}
	return nil
}
