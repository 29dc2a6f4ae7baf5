package render

import (
	"bytes"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/nagasawakenji/WalkFInd-sub000/internal/fsutil"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/monitoring"
	"github.com/nagasawakenji/WalkFInd-sub000/internal/security"
)

// Writer stores rendered reports under Dir.
type Writer struct {
	FS         fsutil.FileSystem
	Dir        string
	AssetsHost string

	logf func(format string, v ...interface{})
}

// Paths are the files written for one report.
type Paths struct {
	HTML string
	PNG  string
}

// NewWriter returns a Writer for dir. A nil fsys selects the OS filesystem.
func NewWriter(fsys fsutil.FileSystem, dir string) *Writer {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	return &Writer{FS: fsys, Dir: dir, logf: monitoring.Tagged("render")}
}

// Write stores r as HTML and PNG. Both are rendered concurrently; the first
// error is returned.
func (w *Writer) Write(r Report) (Paths, error) {
	var paths Paths
	var g errgroup.Group
	g.Go(func() (err error) {
		paths.HTML, err = w.WriteHTML(r)
		return err
	})
	g.Go(func() (err error) {
		paths.PNG, err = w.WritePNG(r)
		return err
	})
	return paths, g.Wait()
}

// WriteHTML stores r as an echarts page and returns its path.
func (w *Writer) WriteHTML(r Report) (string, error) {
	var buf bytes.Buffer
	if err := HTML(&buf, r, w.AssetsHost); err != nil {
		return "", err
	}
	path, err := w.path(r, "html")
	if err != nil {
		return "", err
	}
	if err := w.FS.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	w.logf("wrote %s (%d bytes)", path, buf.Len())
	return path, nil
}

// WritePNG stores r as a PNG image and returns its path. A partially
// written file is removed.
func (w *Writer) WritePNG(r Report) (string, error) {
	path, err := w.path(r, "png")
	if err != nil {
		return "", err
	}
	f, err := w.FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := PNG(f, r); err != nil {
		f.Close()
		_ = w.FS.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = w.FS.Remove(path)
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	w.logf("wrote %s", path)
	return path, nil
}

func (w *Writer) path(r Report, ext string) (string, error) {
	if r.Model == nil {
		return "", ErrNoPlot
	}
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(w.Dir, security.ReportFilename(r.ContestID, r.PhotoID, ext))
	if err := security.ValidatePathWithinDirectory(path, w.Dir); err != nil {
		return "", err
	}
	return path, nil
}
