// Package security guards the paths the viewer writes reports and journals to.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscapes is returned when a path resolves outside its base directory.
var ErrPathEscapes = errors.New("path escapes base directory")

// maxFilenameLen bounds the length of a sanitized file name.
const maxFilenameLen = 128

// ValidatePathWithinDirectory reports an error unless filePath, after
// cleaning and symlink resolution, lies inside baseDir. baseDir must exist;
// filePath need not. When filePath does not exist yet, its deepest existing
// ancestor is resolved instead, so a symlinked parent cannot redirect a new
// file outside baseDir.
func ValidatePathWithinDirectory(filePath, baseDir string) error {
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %w", err)
	}
	base, err = filepath.EvalSymlinks(base)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory symlinks: %w", err)
	}

	target, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	target = resolveExisting(target)

	rel, err := filepath.Rel(base, target)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathEscapes, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s is outside %s", ErrPathEscapes, filePath, baseDir)
	}
	return nil
}

// resolveExisting resolves symlinks in the longest existing prefix of abs
// and re-attaches the remainder.
func resolveExisting(abs string) string {
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	for dir := filepath.Dir(abs); ; dir = filepath.Dir(dir) {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			rest, _ := filepath.Rel(dir, abs)
			return filepath.Join(resolved, rest)
		}
		if parent := filepath.Dir(dir); parent == dir {
			return abs
		}
	}
}

// EnsureDirectory creates dir if needed and returns its absolute path.
func EnsureDirectory(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// SanitizeFilename maps s onto ASCII letters, digits, dot, underscore and
// dash. Runs of other characters become a single underscore, and leading
// or trailing dots and underscores are dropped. An empty result becomes
// "unknown".
func SanitizeFilename(s string) string {
	var b strings.Builder
	pending := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
			pending = false
		case !pending:
			b.WriteByte('_')
			pending = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// ReportFilename names the report of one (contest, photo) pair.
func ReportFilename(contestID, photoID int64, ext string) string {
	name := SanitizeFilename(fmt.Sprintf("insight-c%d-p%d", contestID, photoID))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return name
	}
	return name + "." + SanitizeFilename(ext)
}
