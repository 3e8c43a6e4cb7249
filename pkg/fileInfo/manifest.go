package fileInfo

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var ErrNoFiles = errors.New("no files found")

// Entry is one file of a transfer manifest.
type Entry struct {
	Path         string `json:"-"`
	RelativePath string `json:"name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type,omitempty"`
}

// BuildManifest enumerates the files named by path once, before anything is sent.
// A directory is walked and named relative to its parent, so the directory
// itself is recreated on the other side. Anything else is treated as a glob
// and each match is sent under its base name.
func BuildManifest(path string) ([]Entry, error) {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return walkDir(path)
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	matches, err := filepath.Glob(path)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", path, err)
	}
	var entries []Entry
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			slog.Warn("Skipping unreadable file", "path", match, "error", err)
			continue
		}
		if info.IsDir() {
			continue
		}
		entries = append(entries, newEntry(match, filepath.Base(match), info.Size()))
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoFiles, path)
	}
	return entries, nil
}

func walkDir(root string) ([]Entry, error) {
	root = filepath.Clean(root)
	base := filepath.Dir(root)

	var entries []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		entries = append(entries, newEntry(p, filepath.ToSlash(rel), info.Size()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w in %q", ErrNoFiles, root)
	}
	return entries, nil
}

func newEntry(path, rel string, size int64) Entry {
	e := Entry{Path: path, RelativePath: rel, Size: size, MimeType: "application/octet-stream"}
	if mime, err := mimetype.DetectFile(path); err == nil {
		e.MimeType = mime.String()
	}
	return e
}

// TotalSize sums the declared sizes of all entries.
func TotalSize(entries []Entry) int64 {
	var total int64
	for _, e := range entries {
		total += e.Size
	}
	return total
}

// Describe returns a short human label such as "report.pdf" or "3 files".
func Describe(entries []Entry) string {
	if len(entries) == 1 {
		return entries[0].RelativePath
	}
	if len(entries) > 1 {
		if top, _, ok := strings.Cut(entries[0].RelativePath, "/"); ok {
			return fmt.Sprintf("%s/ (%d files)", top, len(entries))
		}
	}
	return fmt.Sprintf("%d files", len(entries))
}
