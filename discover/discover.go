// Package discover finds the source documents of a documentation tree.
//
// A walk starts at the source root and yields slash-separated paths relative
// to it. Hidden names, tooling directories, configured exclusions, localized
// output directories and non-content files are skipped.
package discover

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/zerr"
)

var (
	// ErrNoMatch is returned when an include filter matches no source file.
	ErrNoMatch = zerr.New("no source files match the filter")

	// ErrWalkFailed is returned when the source tree cannot be walked.
	ErrWalkFailed = zerr.New("failed to walk source tree")
)

// DefaultExtensions lists the recognized content extensions.
var DefaultExtensions = []string{".mdx"}

// ToolingDirs are directory names that never contain translatable content.
var ToolingDirs = []string{"node_modules", "dist", "build", "scripts"}

// Options controls which files a walk yields.
type Options struct {
	// Extensions are the content file extensions (default DefaultExtensions).
	Extensions []string
	// Exclude holds glob patterns matched against both the base name and the
	// relative path of every entry.
	Exclude []string
	// LanguageDirs are localized output directory names to skip.
	LanguageDirs []string
	// OutputDir is the slash-separated path of the output root relative to
	// the walk root. Language directories are skipped directly below it
	// ("" or "." for the walk root itself).
	OutputDir string
	// Include restricts the result to matching paths (see Match).
	Include string
}

func (o *Options) extensions() []string {
	if len(o.Extensions) > 0 {
		return o.Extensions
	}
	return DefaultExtensions
}

// Files walks root and returns the sorted relative paths of content files.
func Files(root string, opts Options) ([]string, error) {
	langDirs := make(map[string]bool, len(opts.LanguageDirs))
	for _, l := range opts.LanguageDirs {
		langDirs[l] = true
	}
	outDir := path.Clean(opts.OutputDir)
	tooling := make(map[string]bool, len(ToolingDirs))
	for _, d := range ToolingDirs {
		tooling[d] = true
	}

	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			// Language directories are only skipped directly below the
			// output root, where the localized trees live.
			isOutputLangDir := langDirs[name] && path.Dir(rel) == outDir
			if strings.HasPrefix(name, ".") || tooling[name] || isOutputLangDir || excluded(rel, name, opts.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") || excluded(rel, name, opts.Exclude) {
			return nil
		}
		if !hasExtension(name, opts.extensions()) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", ErrWalkFailed, err), "root", root)
	}

	sort.Strings(files)

	if opts.Include == "" {
		return files, nil
	}
	var matched []string
	for _, f := range files {
		if Match(f, opts.Include) {
			matched = append(matched, f)
		}
	}
	if len(matched) == 0 {
		return nil, zerr.With(fmt.Errorf("%w: %q", ErrNoMatch, opts.Include), "filter", opts.Include)
	}
	return matched, nil
}

// Match reports whether the relative path rel is selected by pattern.
// The pattern is tried as an exact path, then as a glob, then as a path
// prefix; the first success wins. An invalid glob therefore still matches
// by prefix.
func Match(rel, pattern string) bool {
	pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
	if rel == pattern {
		return true
	}
	if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
		return true
	}
	return strings.HasPrefix(rel, pattern)
}

func excluded(rel, name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, name); err == nil && ok {
			return true
		}
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func hasExtension(name string, exts []string) bool {
	ext := path.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}
