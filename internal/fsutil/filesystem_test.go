package fsutil

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	osfs := OSFileSystem{}
	dir := filepath.Join(t.TempDir(), "reports", "c1")

	if err := osfs.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	if !osfs.Exists(dir) {
		t.Fatalf("expected %s to exist", dir)
	}

	name := filepath.Join(dir, "a.html")
	w, err := osfs.Create(name)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("<html>")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := osfs.ReadFile(name)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "<html>" {
		t.Errorf("got %q", data)
	}

	if err := osfs.Remove(name); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if osfs.Exists(name) {
		t.Error("expected file to be removed")
	}
}

func TestMemoryFileSystem_WriteAndRead(t *testing.T) {
	mfs := NewMemoryFileSystem()

	src := []byte("hello")
	if err := mfs.WriteFile("/out/a.txt", src, 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	src[0] = 'j'

	data, err := mfs.ReadFile("/out/./a.txt")
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected stored copy to be unaffected, got %q", data)
	}
}

func TestMemoryFileSystem_CreateVisibleOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/out/plot.png")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.Write([]byte("png")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if mfs.Exists("/out/plot.png") {
		t.Error("file should not be visible before Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !mfs.Exists("/out/plot.png") {
		t.Error("file should be visible after Close")
	}

	if _, err := w.Write([]byte("x")); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	if err := w.Close(); !errors.Is(err, fs.ErrClosed) {
		t.Errorf("expected ErrClosed on second Close, got %v", err)
	}
}

func TestMemoryFileSystem_ReadMissing(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if _, err := mfs.ReadFile("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
	if err := mfs.Remove("/nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}

func TestMemoryFileSystem_MkdirAllAndRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()
	if err := mfs.MkdirAll("/a/b/c", 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, d := range []string{"/a", "/a/b", "/a/b/c"} {
		if !mfs.Exists(d) {
			t.Errorf("expected %s to exist", d)
		}
	}
	if err := mfs.Remove("/a/b/c"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if mfs.Exists("/a/b/c") {
		t.Error("expected directory to be removed")
	}
}

func TestMemoryFileSystem_Files(t *testing.T) {
	mfs := NewMemoryFileSystem()
	_ = mfs.WriteFile("/out/b.png", nil, 0o644)
	_ = mfs.WriteFile("/out/a.html", nil, 0o644)
	_ = mfs.WriteFile("/other/c.html", nil, 0o644)

	got := mfs.Files("/out")
	want := []string{"/out/a.html", "/out/b.png"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
