// Package sandbox confines file mutations originating from untrusted
// reflection output to an allow-list of targets under a base directory.
package sandbox

import (
	"path/filepath"
	"strings"
)

// Sandbox is a pure predicate over relative paths. A path is safe only if it
// resolves to one of the allowed file targets, or strictly inside one of the
// allowed directory roots.
type Sandbox struct {
	base         string
	allowedFiles []string
	allowedDirs  []string
}

// New builds a sandbox rooted at baseDir. files and dirs are paths relative
// to baseDir; they are resolved once at construction time.
func New(baseDir string, files, dirs []string) *Sandbox {
	s := &Sandbox{base: absClean(baseDir)}
	for _, f := range files {
		s.allowedFiles = append(s.allowedFiles, absClean(filepath.Join(baseDir, f)))
	}
	for _, d := range dirs {
		s.allowedDirs = append(s.allowedDirs, absClean(filepath.Join(baseDir, d)))
	}
	return s
}

// IsSafe reports whether the relative path may be written to. Absolute paths
// are rejected outright. Directory containment uses a separator-terminated
// prefix comparison, so a sibling directory whose name merely starts with an
// allowed root's name (e.g. "skills_generatedEvil") is rejected.
func (s *Sandbox) IsSafe(path string) bool {
	if path == "" || filepath.IsAbs(path) {
		return false
	}
	resolved := absClean(filepath.Join(s.base, path))
	for _, f := range s.allowedFiles {
		if resolved == f {
			return true
		}
	}
	for _, d := range s.allowedDirs {
		prefix := strings.TrimRight(d, string(filepath.Separator)) + string(filepath.Separator)
		if strings.HasPrefix(resolved, prefix) {
			return true
		}
	}
	return false
}

// Resolve returns the cleaned absolute path for a relative path the caller
// has already checked with IsSafe.
func (s *Sandbox) Resolve(path string) string {
	return absClean(filepath.Join(s.base, path))
}

func absClean(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		// filepath.Abs only fails when the working directory is unreadable;
		// fall back to a lexical clean so the prefix comparison stays sound.
		return filepath.Clean(p)
	}
	return abs
}
