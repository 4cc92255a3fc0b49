// Package scan enumerates candidate board-description files in a source-tree
// snapshot.
package scan

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
)

// Board-description and build-manifest file patterns recognized in the
// device-definition directories.
var (
	descriptionPatterns = []string{"*.dts", "*.dtsi"}
	manifestPatterns    = []string{"*.mk"}
)

// namePattern is the allow-listed identifier charset for candidate filenames.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)

// NoCandidatesError indicates that a full walk of the snapshot accepted zero
// board-description files. The source tree is structurally unusable.
type NoCandidatesError struct {
	Root string
}

// Error implements the error interface
func (e *NoCandidatesError) Error() string {
	return fmt.Sprintf("no candidate board-description files found under %s", e.Root)
}

// Candidate is an accepted file within a device-definition directory.
type Candidate struct {
	// Path is the absolute file path
	Path string

	// Root is the device-definition directory the file was found under
	Root string
}

// Selector walks the snapshot's device-definition directories and yields
// accepted candidate files. Oversized files and files with disallowed
// characters in their names are skipped with a warning, never fatally.
type Selector struct {
	root        string
	dirs        []string
	maxFileSize int64
	log         *slog.Logger

	skipped int
}

// NewSelector creates a Selector over the snapshot rooted at root. dirs are
// the device-definition directories relative to root; maxFileSize is the
// candidate size ceiling in bytes.
func NewSelector(root string, dirs []string, maxFileSize int64, log *slog.Logger) *Selector {
	return &Selector{
		root:        root,
		dirs:        dirs,
		maxFileSize: maxFileSize,
		log:         log,
	}
}

// Descriptions returns a lazy, restartable sequence of accepted
// board-description files. Each iteration performs a fresh walk.
func (s *Selector) Descriptions() iter.Seq[Candidate] {
	return s.walk(descriptionPatterns)
}

// Manifests returns a lazy, restartable sequence of accepted build-manifest
// files, used for optional driver enrichment.
func (s *Selector) Manifests() iter.Seq[Candidate] {
	return s.walk(manifestPatterns)
}

// Skipped returns the number of files rejected during the most recent walk.
func (s *Selector) Skipped() int {
	return s.skipped
}

func (s *Selector) walk(patterns []string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		s.skipped = 0
		stopped := false
		for _, dir := range s.dirs {
			if stopped {
				break
			}
			defRoot := filepath.Join(s.root, dir)
			err := filepath.WalkDir(defRoot, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					// A missing definition directory yields zero candidates,
					// judged at the aggregate level
					if path == defRoot {
						s.log.Debug("Definition directory not walkable", "dir", defRoot, "error", err)
						return filepath.SkipAll
					}
					s.log.Warn("Skipping unreadable path", "path", path, "error", err)
					return nil
				}

				if d.IsDir() {
					if strings.HasPrefix(d.Name(), ".") && path != defRoot {
						return filepath.SkipDir
					}
					return nil
				}

				if !matchesAny(patterns, d.Name()) {
					return nil
				}
				if !s.accept(path, d) {
					s.skipped++
					return nil
				}

				if !yield(Candidate{Path: path, Root: defRoot}) {
					// The consumer is done; no further directory may
					// call yield again
					stopped = true
					return filepath.SkipAll
				}
				return nil
			})
			if err != nil {
				s.log.Warn("Walk aborted", "dir", defRoot, "error", err)
			}
		}
	}
}

// accept applies the size ceiling and filename charset checks.
func (s *Selector) accept(path string, d fs.DirEntry) bool {
	if !namePattern.MatchString(d.Name()) {
		s.log.Warn("Skipping file with disallowed characters in name", "path", path)
		return false
	}

	info, err := d.Info()
	if err != nil {
		s.log.Warn("Skipping file without readable metadata", "path", path, "error", err)
		return false
	}
	if info.Size() > s.maxFileSize {
		s.log.Warn("Skipping oversized file",
			"path", path,
			"size", info.Size(),
			"ceiling", s.maxFileSize)
		return false
	}

	return true
}

func matchesAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}
