// Package fs discovers local documents for batch runs.
package fs

import (
	"io/fs"
	"net/url"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludes matches every format the loader understands.
var DefaultIncludes = []string{"**/*.pdf", "**/*.docx", "**/*.eml", "**/*.msg"}

type Walker struct {
	includes []string
	excludes []string
}

// NewWalker rejects malformed glob patterns.
func NewWalker(includes, excludes []string) (*Walker, error) {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	for _, p := range append(append([]string{}, includes...), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, &PatternError{Pattern: p}
		}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}, nil
}

type PatternError struct {
	Pattern string
}

func (e *PatternError) Error() string {
	return "invalid glob pattern: " + e.Pattern
}

// DocumentFile is a local document found under the walk root.
type DocumentFile struct {
	Path    string // absolute
	RelPath string // slash separated, relative to the root
	Size    int64
	ModTime time.Time
}

// URL returns the file:// URL the fetcher accepts for this document.
func (d DocumentFile) URL() string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(d.Path)}).String()
}

// Walk returns matching files under root sorted by relative path.
// Excluded directories are not descended into.
func (w *Walker) Walk(root string) ([]DocumentFile, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	var files []DocumentFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if relPath != "." && w.shouldExclude(relPath+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if w.shouldInclude(relPath) && !w.shouldExclude(relPath) {
			info, err := d.Info()
			if err != nil {
				return err
			}
			files = append(files, DocumentFile{
				Path:    path,
				RelPath: relPath,
				Size:    info.Size(),
				ModTime: info.ModTime(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func (w *Walker) shouldInclude(path string) bool {
	return matchAny(w.includes, path)
}

func (w *Walker) shouldExclude(path string) bool {
	return matchAny(w.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}
