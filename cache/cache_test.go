package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintDeterministic(t *testing.T) {
	h1 := Fingerprint("hello world")
	h2 := Fingerprint("hello world")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 16)

	assert.NotEqual(t, h1, Fingerprint("hello world!"))
	assert.NotEqual(t, h1, Fingerprint("Hello world"))
}

func TestLoadNonExistent(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	docs, translations := c.Stats()
	assert.Zero(t, docs)
	assert.Zero(t, translations)
}

func TestLoadMalformedFailsSoft(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	c, err := Load(path)
	require.ErrorIs(t, err, ErrCacheIO)
	require.NotNil(t, c, "a usable cache must be returned on parse failure")

	_, ok := c.Lookup("a.mdx", "zh", Fingerprint("x"))
	assert.False(t, ok)

	c.Store("a.mdx", "zh", Fingerprint("x"), "甲")
	require.NoError(t, c.Save())
}

func TestSaveErrorKeepsCause(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	c := New(filepath.Join(blocker, FileName))
	c.Store("a.mdx", "zh", Fingerprint("x"), "甲")
	err := c.Save()
	require.ErrorIs(t, err, ErrCacheIO)

	var pathErr *fs.PathError
	assert.True(t, errors.As(err, &pathErr), "underlying error lost: %v", err)
	assert.Regexp(t, `^translation cache I/O failed: creating directory: `, err.Error())
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)

	c, err := Load(path)
	require.NoError(t, err)

	fp := Fingerprint("Hello")
	c.Store("guides/x.mdx", "zh", fp, "你好")
	c.Store("guides/x.mdx", "ja", fp, "こんにちは")
	c.Store("index.mdx", "zh", Fingerprint("Index"), "索引")
	require.NoError(t, c.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)

	docs, translations := reloaded.Stats()
	assert.Equal(t, 2, docs)
	assert.Equal(t, 3, translations)

	text, ok := reloaded.Lookup("guides/x.mdx", "ja", fp)
	require.True(t, ok)
	assert.Equal(t, "こんにちは", text)
	assert.Equal(t, []string{"guides/x.mdx", "index.mdx"}, reloaded.Paths())
}

func TestFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	c := New(path)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	c.Store("a.mdx", "zh", "0123456789abcdef", "甲")
	require.NoError(t, c.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	entry := raw["a.mdx"]
	require.NotNil(t, entry)
	assert.Equal(t, "0123456789abcdef", entry["sourceHash"])
	assert.Equal(t, map[string]any{"zh": "甲"}, entry["translations"])
	assert.Equal(t, "2026-01-02T03:04:05Z", entry["updatedAt"])
}

func TestLookupRequiresMatchingFingerprint(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), FileName))

	_, ok := c.Lookup("a.mdx", "zh", Fingerprint("v1"))
	assert.False(t, ok, "empty cache should miss")

	c.Store("a.mdx", "zh", Fingerprint("v1"), "一")
	text, ok := c.Lookup("a.mdx", "zh", Fingerprint("v1"))
	assert.True(t, ok)
	assert.Equal(t, "一", text)

	_, ok = c.Lookup("a.mdx", "zh", Fingerprint("v2"))
	assert.False(t, ok, "changed source should miss")

	_, ok = c.Lookup("a.mdx", "ja", Fingerprint("v1"))
	assert.False(t, ok, "uncached language should miss")
}

func TestStoreNewFingerprintDropsOtherLanguages(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), FileName))
	v1, v2 := Fingerprint("v1"), Fingerprint("v2")

	c.Store("a.mdx", "zh", v1, "一")
	c.Store("a.mdx", "ja", v1, "いち")

	c.Store("a.mdx", "zh", v2, "二")

	_, ok := c.Lookup("a.mdx", "ja", v2)
	assert.False(t, ok, "ja was translated from old content and must not validate against v2")

	e, ok := c.Entry("a.mdx")
	require.True(t, ok)
	assert.Equal(t, v2, e.SourceHash)
	assert.Equal(t, map[string]string{"zh": "二"}, e.Translations)
}

func TestEntryReturnsCopy(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), FileName))
	c.Store("a.mdx", "zh", "fp", "一")

	e, ok := c.Entry("a.mdx")
	require.True(t, ok)
	e.Translations["zh"] = "changed"

	text, _ := c.Lookup("a.mdx", "zh", "fp")
	assert.Equal(t, "一", text)
}
