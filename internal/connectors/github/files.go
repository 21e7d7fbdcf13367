package github

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gh "github.com/google/go-github/v80/github"

	"github.com/custodia-labs/sercha-docs/internal/core/domain"
)

// MaxFileSize is the largest blob fetched (the Git Blobs API limit for
// inline content is higher, but documentation files never need it).
const MaxFileSize = 1024 * 1024

// file is one blob selected for fetching.
type file struct {
	path string
	sha  string
	size int
}

// selectFiles filters tree entries to matching text blobs, sorted by path.
func selectFiles(entries []*gh.TreeEntry, patterns []string) []file {
	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		if entry.GetType() != "blob" {
			continue
		}
		p := entry.GetPath()
		if !matchesPatterns(p, patterns) || isBinaryExtension(p) {
			continue
		}
		if entry.GetSize() > MaxFileSize {
			continue
		}
		files = append(files, file{path: p, sha: entry.GetSHA(), size: entry.GetSize()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })
	return files
}

// matchesPatterns checks a path against doublestar patterns.
// Patterns without a slash also match the base name, so "*.md" selects
// markdown files at any depth.
func matchesPatterns(p string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, p); err == nil && ok {
			return true
		}
		if !strings.Contains(pattern, "/") {
			if ok, err := doublestar.Match(pattern, path.Base(p)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// ValidatePatterns rejects malformed glob patterns.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: invalid path pattern %q", domain.ErrInvalidInput, pattern)
		}
	}
	return nil
}

// detectKind maps a file extension to a content kind.
func detectKind(p string) domain.ContentKind {
	switch strings.ToLower(path.Ext(p)) {
	case ".md", ".markdown", ".mdx":
		return domain.ContentKindMarkdown
	case ".html", ".htm":
		return domain.ContentKindHTML
	case ".yaml", ".yml", ".json":
		return domain.ContentKindStructured
	default:
		return domain.ContentKindText
	}
}

// fileURL returns the web URL used as the document identifier.
func fileURL(owner, repo, branch, p string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, p)
}

var binaryExts = map[string]bool{
	".exe": true, ".dll": true, ".so": true, ".dylib": true,
	".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true, ".svg": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".mp3": true, ".mp4": true, ".avi": true, ".mov": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".bin": true, ".dat": true, ".db": true, ".sqlite": true,
	".pyc": true, ".pyo": true, ".class": true, ".o": true, ".a": true,
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(p string) bool {
	return binaryExts[strings.ToLower(path.Ext(p))]
}
