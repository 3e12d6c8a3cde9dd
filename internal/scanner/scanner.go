// Package scanner walks a project tree and selects indexable files.
package scanner

import (
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/codescope/codescope/internal/gitignore"
)

// Options controls file selection.
type Options struct {
	// Include lists file extensions to accept (e.g., ".go").
	Include []string

	// Exclude lists path segment names to skip (e.g., "node_modules").
	Exclude []string

	// Ignore applies gitignore rules on top of Exclude. Nil disables.
	Ignore *gitignore.Matcher

	// MaxFileSizeBytes skips larger files entirely; they contribute
	// zero chunks. Zero disables the gate.
	MaxFileSizeBytes int64

	// Logger receives skip events.
	Logger *slog.Logger
}

// File is one selected file.
type File struct {
	// Path is relative to the scanned root, slash-separated.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the file modification time, used for change detection.
	ModTime time.Time
}

// Scan walks root and returns the selected files in walk order.
// Unreadable entries are logged and skipped, never fatal.
func Scan(root string, opts Options) ([]File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	include := make(map[string]bool, len(opts.Include))
	for _, ext := range opts.Include {
		include[strings.ToLower(ext)] = true
	}

	var files []File
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (excluded(rel, opts.Exclude) || ignored(opts.Ignore, rel, true)) {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(rel, opts.Exclude) || ignored(opts.Ignore, rel, false) {
			return nil
		}
		if len(include) > 0 && !include[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			logger.Warn("skipping unstatable file", "path", path, "error", err)
			return nil
		}
		if opts.MaxFileSizeBytes > 0 && info.Size() > opts.MaxFileSizeBytes {
			logger.Debug("skipping oversized file",
				"path", rel, "size", info.Size(), "limit", opts.MaxFileSizeBytes)
			return nil
		}

		files = append(files, File{
			Path:    rel,
			AbsPath: path,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func ignored(m *gitignore.Matcher, rel string, isDir bool) bool {
	return m != nil && m.Match(rel, isDir)
}

// excluded reports whether any slash-separated segment of the relative
// path equals an exclude name. Substrings never match, so excluding
// "build" leaves rebuild.go alone.
func excluded(rel string, excludes []string) bool {
	for _, ex := range excludes {
		if ex == "" {
			continue
		}
		for _, seg := range strings.Split(rel, "/") {
			if seg == ex {
				return true
			}
		}
	}
	return false
}
