package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/minios-linux/mdxlate/cache"
	"github.com/minios-linux/mdxlate/langmeta"
	"github.com/minios-linux/mdxlate/pipeline/mocks"
)

type fixture struct {
	src   string
	out   string
	cache *cache.Cache
}

func newFixture(t *testing.T, files map[string]string) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		src:   filepath.Join(root, "docs"),
		out:   filepath.Join(root, "docs"),
		cache: cache.New(filepath.Join(root, cache.FileName)),
	}
	for rel, content := range files {
		f.write(t, rel, content)
	}
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.src, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) read(t *testing.T, lang, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.out, lang, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func (f *fixture) options(codes ...string) Options {
	langs, _ := langmeta.Select(codes)
	return Options{
		SourceRoot: f.src,
		OutputRoot: f.out,
		Languages:  langs,
	}
}

// prefixTranslator answers with "<code>: <text>".
func prefixTranslator(_ context.Context, text string, lang langmeta.Meta) (string, error) {
	return lang.Code + ": " + text, nil
}

const guide = "Hello [link](https://example.com/en/y)\n"

func TestRunWritesTranslations(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	f := newFixture(t, map[string]string{"guides/x.mdx": guide})

	tr.EXPECT().Translate(gomock.Any(), guide, gomock.Any()).
		Return("你好 [链接](https://example.com/zh/y)\n", nil)

	sum, err := Run(context.Background(), []string{"guides/x.mdx"}, tr, f.cache, f.options("zh"))
	require.NoError(t, err)

	assert.Equal(t, "你好 [链接](https://example.com/zh/y)\n", f.read(t, "zh", "guides/x.mdx"))
	assert.Equal(t, Counts{Translated: 1}, *sum.ByLang["zh"])
	assert.False(t, sum.AllFailed())

	text, ok := f.cache.Lookup("guides/x.mdx", "zh", cache.Fingerprint(guide))
	require.True(t, ok)
	assert.Equal(t, "你好 [链接](https://example.com/zh/y)\n", text)

	require.Len(t, sum.Results, 1)
	assert.Equal(t, Written, sum.Results[0].Status)
	assert.Equal(t, filepath.Join(f.out, "zh", "guides", "x.mdx"), sum.Results[0].Target)
}

func TestRunSecondPassUsesCache(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n", "b/c.mdx": "# C\n"})
	files := []string{"a.mdx", "b/c.mdx"}
	opts := f.options("ja", "de")

	ctrl := gomock.NewController(t)
	first := mocks.NewMockTranslator(ctrl)
	first.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(prefixTranslator).Times(4)

	_, err := Run(context.Background(), files, first, f.cache, opts)
	require.NoError(t, err)
	before := f.read(t, "de", "b/c.mdx")

	// No expectations: any call fails the test.
	second := mocks.NewMockTranslator(gomock.NewController(t))
	sum, err := Run(context.Background(), files, second, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, Counts{Cached: 4}, sum.Total)
	assert.Equal(t, before, f.read(t, "de", "b/c.mdx"))
}

func TestRunCacheHitRestoresDeletedTarget(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})
	f.cache.Store("a.mdx", "ja", cache.Fingerprint("# A\n"), "ja: # A\n")

	tr := mocks.NewMockTranslator(gomock.NewController(t))
	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, f.options("ja"))
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Total.Cached)
	assert.Equal(t, "ja: # A\n", f.read(t, "ja", "a.mdx"))
}

func TestRunChangedSourceInvalidatesAllLanguages(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})
	fp := cache.Fingerprint("# A\n")
	f.cache.Store("a.mdx", "ja", fp, "old ja")
	f.cache.Store("a.mdx", "de", fp, "old de")

	f.write(t, "a.mdx", "# A!\n")

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), "# A!\n", gomock.Any()).
		DoAndReturn(prefixTranslator).Times(2)

	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, f.options("ja", "de"))
	require.NoError(t, err)

	assert.Equal(t, Counts{Translated: 2}, sum.Total)
	assert.Equal(t, "de: # A!\n", f.read(t, "de", "a.mdx"))
	entry, ok := f.cache.Entry("a.mdx")
	require.True(t, ok)
	assert.Equal(t, cache.Fingerprint("# A!\n"), entry.SourceHash)
	assert.Len(t, entry.Translations, 2)
}

func TestRunForceBypassesCache(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})
	f.cache.Store("a.mdx", "ja", cache.Fingerprint("# A\n"), "stale")

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(prefixTranslator).Times(1)

	opts := f.options("ja")
	opts.Force = true
	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, sum.Total.Translated)
	assert.Equal(t, "ja: # A\n", f.read(t, "ja", "a.mdx"))
}

func TestRunDryRun(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n", "b.mdx": "# B\n"})
	f.cache.Store("a.mdx", "ja", cache.Fingerprint("# A\n"), "cached")

	var mu sync.Mutex
	var logs []string
	opts := f.options("ja", "de")
	opts.DryRun = true
	opts.OnLog = func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		logs = append(logs, format)
	}

	tr := mocks.NewMockTranslator(gomock.NewController(t))
	sum, err := Run(context.Background(), []string{"a.mdx", "b.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, Counts{Skipped: 4}, sum.Total)
	assert.False(t, sum.AllFailed())
	assert.Len(t, logs, 4)
	for _, lang := range []string{"ja", "de"} {
		_, err := os.Stat(filepath.Join(f.out, lang))
		assert.True(t, os.IsNotExist(err), "dry run must not create %s", lang)
	}
	_, ok := f.cache.Entry("b.mdx")
	assert.False(t, ok)
}

func TestRunConcurrencyBound(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})

	var inFlight, peak atomic.Int32
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, text string, lang langmeta.Meta) (string, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			return prefixTranslator(ctx, text, lang)
		}).Times(5)

	opts := f.options("zh", "ja", "ko", "es", "fr")
	opts.Concurrency = 2
	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, 5, sum.Total.Translated)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestRunFilesAreSequential(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n", "b.mdx": "# B\n"})

	var mu sync.Mutex
	var order []string
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, text string, lang langmeta.Meta) (string, error) {
			mu.Lock()
			order = append(order, text)
			mu.Unlock()
			return prefixTranslator(ctx, text, lang)
		}).Times(6)

	opts := f.options("zh", "ja", "ko")
	opts.FileDelay = time.Millisecond
	_, err := Run(context.Background(), []string{"a.mdx", "b.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"# A\n", "# A\n", "# A\n", "# B\n", "# B\n", "# B\n"}, order)
}

func TestRunFailureDoesNotStopRun(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n", "b.mdx": "# B\n"})
	errBoom := errors.New("API returned status 500: boom")

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), language("de")).
		Return("", errBoom).Times(2)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), language("ja")).
		DoAndReturn(prefixTranslator).Times(2)

	var errs atomic.Int32
	opts := f.options("ja", "de")
	opts.OnError = func(string, ...any) { errs.Add(1) }
	sum, err := Run(context.Background(), []string{"a.mdx", "b.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	assert.Equal(t, Counts{Translated: 2}, *sum.ByLang["ja"])
	assert.Equal(t, Counts{Failed: 2}, *sum.ByLang["de"])
	assert.False(t, sum.AllFailed())
	assert.Equal(t, int32(2), errs.Load())

	failures := sum.Failures()
	require.Len(t, failures, 2)
	for _, r := range failures {
		assert.ErrorIs(t, r.Err, errBoom)
		assert.Equal(t, "de", r.Lang)
	}
	_, statErr := os.Stat(filepath.Join(f.out, "de", "a.mdx"))
	assert.True(t, os.IsNotExist(statErr))
	_, ok := f.cache.Lookup("a.mdx", "de", cache.Fingerprint("# A\n"))
	assert.False(t, ok)
}

func TestRunEmptyTranslationFails(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).Return("  \n", nil)

	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, f.options("ja"))
	require.NoError(t, err)

	assert.True(t, sum.AllFailed())
	require.Len(t, sum.Results, 1)
	assert.ErrorIs(t, sum.Results[0].Err, ErrEmptyTranslation)
	_, statErr := os.Stat(filepath.Join(f.out, "ja", "a.mdx"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRunStructureWarnings(t *testing.T) {
	src := "---\ntitle: A\n---\n\n# A\n"
	f := newFixture(t, map[string]string{"a.mdx": src})

	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).Return("# A\n", nil)

	var logs []string
	opts := f.options("ja")
	opts.OnWarning = func(format string, args ...any) { logs = append(logs, format) }
	sum, err := Run(context.Background(), []string{"a.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)

	require.Len(t, sum.Results, 1)
	assert.Equal(t, Written, sum.Results[0].Status)
	assert.Equal(t, []string{"frontmatter missing"}, sum.Results[0].Warnings)
	assert.Len(t, logs, 1)
}

func TestRunMissingSource(t *testing.T) {
	f := newFixture(t, nil)
	tr := mocks.NewMockTranslator(gomock.NewController(t))

	sum, err := Run(context.Background(), []string{"gone.mdx"}, tr, f.cache, f.options("ja", "de"))
	require.NoError(t, err)

	assert.Equal(t, Counts{Failed: 2}, sum.Total)
	assert.True(t, sum.AllFailed())
	for _, r := range sum.Results {
		assert.ErrorIs(t, r.Err, ErrReadSource)
		assert.ErrorIs(t, r.Err, fs.ErrNotExist)
	}
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n"})
	tr := mocks.NewMockTranslator(gomock.NewController(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum, err := Run(ctx, []string{"a.mdx"}, tr, f.cache, f.options("ja"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sum.Results)
}

func TestRunProgress(t *testing.T) {
	f := newFixture(t, map[string]string{"a.mdx": "# A\n", "b.mdx": "# B\n"})
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTranslator(ctrl)
	tr.EXPECT().Translate(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(prefixTranslator).Times(4)

	var mu sync.Mutex
	var last, total int
	opts := f.options("ja", "de")
	opts.OnProgress = func(_ Result, done, n int) {
		mu.Lock()
		defer mu.Unlock()
		if done > last {
			last = done
		}
		total = n
	}
	_, err := Run(context.Background(), []string{"a.mdx", "b.mdx"}, tr, f.cache, opts)
	require.NoError(t, err)
	assert.Equal(t, 4, last)
	assert.Equal(t, 4, total)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "cached", CacheHit.String())
	assert.Equal(t, "translated", Written.String())
	assert.Equal(t, "Status(42)", Status(42).String())
}

// language returns the registry entry for code.
func language(code string) langmeta.Meta {
	m, _ := langmeta.Lookup(code)
	return m
}
