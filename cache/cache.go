// Package cache implements the translation cache, a JSON file that remembers,
// for every source document, the fingerprint it had when it was last
// translated and the translated text per language. It enables incremental
// translation: only new or changed documents are sent to the AI provider.
//
// The cache file is stored in the project root as .mdxlate-cache.json.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/zerr"
)

// FileName is the default cache file name.
const FileName = ".mdxlate-cache.json"

// ErrCacheIO is returned when the cache file cannot be read, parsed or written.
// It is never fatal: callers log it and carry on with an empty cache.
var ErrCacheIO = zerr.New("translation cache I/O failed")

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Entry is the cached state of one source document.
type Entry struct {
	SourceHash   string            `json:"sourceHash"`
	Translations map[string]string `json:"translations"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Cache maps source document paths to their cache entries.
type Cache struct {
	mu      sync.Mutex
	path    string
	entries map[string]*Entry
	now     func() time.Time
}

// ---------------------------------------------------------------------------
// Fingerprint
// ---------------------------------------------------------------------------

// Fingerprint computes the change-detection token of a document: the xxhash64
// of its raw bytes as 16 hex digits.
func Fingerprint(text string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(text))
}

// ---------------------------------------------------------------------------
// Loading and saving
// ---------------------------------------------------------------------------

// New returns an empty cache that will be saved to path.
func New(path string) *Cache {
	return &Cache{
		path:    filepath.Clean(path),
		entries: make(map[string]*Entry),
		now:     time.Now,
	}
}

// Load reads the cache file at path.
// A missing file yields an empty cache and no error. An unreadable or
// malformed file also yields a usable empty cache, together with an error
// wrapping ErrCacheIO so the caller can report it.
func Load(path string) (*Cache, error) {
	c := New(path)

	//nolint:gosec // path comes from the project configuration
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return c, c.ioError("reading", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	entries := make(map[string]*Entry)
	if err := json.Unmarshal(data, &entries); err != nil {
		return c, c.ioError("parsing", err)
	}
	for p, e := range entries {
		if e == nil {
			continue
		}
		if e.Translations == nil {
			e.Translations = make(map[string]string)
		}
		c.entries[p] = e
	}
	return c, nil
}

// Save writes the cache to disk, overwriting the previous file.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.MarshalIndent(c.entries, "", "  ")
	if err != nil {
		return c.ioError("encoding", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return c.ioError("creating directory", err)
	}
	//nolint:gosec // cache content is not secret
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return c.ioError("writing", err)
	}
	return nil
}

// Path returns the cache file path.
func (c *Cache) Path() string {
	return c.path
}

// ioError wraps err in ErrCacheIO, keeping both in the chain.
func (c *Cache) ioError(op string, err error) error {
	return zerr.With(fmt.Errorf("%w: %s: %w", ErrCacheIO, op, err), "path", c.path)
}

// ---------------------------------------------------------------------------
// Lookup and store
// ---------------------------------------------------------------------------

// Lookup returns the cached translation of path into lang, but only when the
// entry was recorded for the given fingerprint.
func (c *Cache) Lookup(path, lang, fingerprint string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok || e.SourceHash != fingerprint {
		return "", false
	}
	text, ok := e.Translations[lang]
	return text, ok
}

// Store records the translation of path into lang for the given fingerprint.
// Storing under a fingerprint different from the entry's current one drops
// the translations recorded for the old content.
func (c *Cache) Store(path, lang, fingerprint, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		e = &Entry{}
		c.entries[path] = e
	}
	if e.SourceHash != fingerprint || e.Translations == nil {
		e.SourceHash = fingerprint
		e.Translations = make(map[string]string)
	}
	e.Translations[lang] = text
	e.UpdatedAt = c.now().UTC()
}

// Entry returns a copy of the entry for path.
func (c *Cache) Entry(path string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[path]
	if !ok {
		return Entry{}, false
	}
	cp := Entry{
		SourceHash:   e.SourceHash,
		Translations: make(map[string]string, len(e.Translations)),
		UpdatedAt:    e.UpdatedAt,
	}
	for lang, text := range e.Translations {
		cp.Translations[lang] = text
	}
	return cp, true
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Paths returns the sorted list of cached document paths.
func (c *Cache) Paths() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Stats returns the number of cached documents and stored translations.
func (c *Cache) Stats() (docs, translations int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	docs = len(c.entries)
	for _, e := range c.entries {
		translations += len(e.Translations)
	}
	return
}
