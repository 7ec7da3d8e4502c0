// Package pipeline runs the translation of a set of source documents into
// every target language.
//
// Files are processed one after another. The languages of one file fan out
// concurrently, bounded by Options.Concurrency, and each (file, language)
// unit ends in exactly one terminal Status. Unit failures are recorded in
// the Summary and never stop the run.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"

	"github.com/minios-linux/mdxlate/cache"
	"github.com/minios-linux/mdxlate/langmeta"
	"github.com/minios-linux/mdxlate/mdx"
)

var (
	// ErrEmptyTranslation is recorded when the translator returns no text.
	ErrEmptyTranslation = zerr.New("translation is empty")

	// ErrReadSource is recorded for every language of an unreadable source.
	ErrReadSource = zerr.New("failed to read source file")

	// ErrWriteTarget is recorded when a target file cannot be written.
	ErrWriteTarget = zerr.New("failed to write target file")
)

// DefaultConcurrency is the number of simultaneous calls per file.
const DefaultConcurrency = 3

// DefaultFileDelay is the usual pause between two files.
const DefaultFileDelay = 500 * time.Millisecond

// Status is the state of one (file, language) unit.
type Status int

const (
	Pending Status = iota
	CacheHit
	DryRunSkipped
	Translating
	Written
	Failed
)

func (s Status) String() string {
	switch s {
	case Pending:
		return "pending"
	case CacheHit:
		return "cached"
	case DryRunSkipped:
		return "dry-run"
	case Translating:
		return "translating"
	case Written:
		return "translated"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Result is the outcome of one unit.
type Result struct {
	Path   string
	Lang   string
	Status Status
	// Target is the output file path.
	Target string
	// Err is set when Status is Failed.
	Err error
	// Warnings lists structure the translation lost.
	Warnings []string
}

// Options controls a run.
type Options struct {
	// SourceRoot is the directory the file paths are relative to.
	SourceRoot string
	// OutputRoot receives <lang>/<path> for every unit.
	OutputRoot string
	// Languages are the target languages.
	Languages []langmeta.Meta
	// Concurrency bounds the simultaneous calls for one file (default 3).
	Concurrency int
	// FileDelay is the pause between files (0 = none).
	FileDelay time.Duration
	// Force skips the cache lookup.
	Force bool
	// DryRun reports what would happen without calling the translator or
	// writing files.
	DryRun bool
	// OnLog emits log messages.
	OnLog func(format string, args ...any)
	// OnWarning emits structure warnings (default OnLog).
	OnWarning func(format string, args ...any)
	// OnError emits per-unit errors.
	OnError func(format string, args ...any)
	// OnProgress is called after every finished unit.
	OnProgress func(r Result, done, total int)
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logWarning(format string, args ...any) {
	if o.OnWarning != nil {
		o.OnWarning(format, args...)
	} else {
		o.log(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveConcurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return DefaultConcurrency
}

type runner struct {
	tr    Translator
	cache *cache.Cache
	opts  Options
	sum   *Summary

	mu    sync.Mutex
	done  int
	total int
}

// Run translates files into opts.Languages. Cached translations whose
// fingerprint still matches are copied instead of translated. The cache is
// updated in memory; saving it is up to the caller.
//
// When ctx is canceled, no new unit is started and Run returns ctx.Err()
// together with the summary of the units that finished.
func Run(ctx context.Context, files []string, tr Translator, c *cache.Cache, opts Options) (*Summary, error) {
	r := &runner{
		tr:    tr,
		cache: c,
		opts:  opts,
		sum:   newSummary(opts.Languages),
		total: len(files) * len(opts.Languages),
	}
	if r.total == 0 {
		return r.sum, nil
	}

	limit := min(opts.effectiveConcurrency(), len(opts.Languages))
	delay := opts.FileDelay

	for i, rel := range files {
		if i > 0 && delay > 0 && !opts.DryRun {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return r.sum, err
		}
		r.runFile(ctx, rel, limit)
	}
	return r.sum, ctx.Err()
}

func (r *runner) runFile(ctx context.Context, rel string, limit int) {
	data, err := os.ReadFile(filepath.Join(r.opts.SourceRoot, filepath.FromSlash(rel)))
	if err != nil {
		err = zerr.With(fmt.Errorf("%w: %w", ErrReadSource, err), "path", rel)
		r.opts.logError("%s: %v", rel, err)
		for _, lang := range r.opts.Languages {
			r.finish(Result{Path: rel, Lang: lang.Code, Status: Failed, Err: err})
		}
		return
	}
	src := string(data)
	fp := cache.Fingerprint(src)

	var g errgroup.Group
	g.SetLimit(limit)
	for _, lang := range r.opts.Languages {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.finish(r.unit(ctx, rel, src, fp, lang))
			return nil
		})
	}
	_ = g.Wait()
}

func (r *runner) unit(ctx context.Context, rel, src, fp string, lang langmeta.Meta) Result {
	res := Result{
		Path:   rel,
		Lang:   lang.Code,
		Status: Pending,
		Target: filepath.Join(r.opts.OutputRoot, lang.Code, filepath.FromSlash(rel)),
	}

	if !r.opts.Force {
		if text, ok := r.cache.Lookup(rel, lang.Code, fp); ok {
			if r.opts.DryRun {
				r.opts.log("[dry-run] %s [%s]: cached, would write %s", rel, lang.Code, res.Target)
				res.Status = DryRunSkipped
				return res
			}
			if err := writeTarget(res.Target, text); err != nil {
				return r.fail(res, err)
			}
			res.Status = CacheHit
			return res
		}
	}

	if r.opts.DryRun {
		r.opts.log("[dry-run] %s [%s]: would translate into %s", rel, lang.Code, res.Target)
		res.Status = DryRunSkipped
		return res
	}

	res.Status = Translating
	out, err := r.tr.Translate(ctx, src, lang)
	if err != nil {
		return r.fail(res, err)
	}
	if strings.TrimSpace(out) == "" {
		return r.fail(res, ErrEmptyTranslation)
	}

	res.Warnings = mdx.Check(src, out)
	for _, w := range res.Warnings {
		r.opts.logWarning("%s [%s]: %s", rel, lang.Code, w)
	}

	if err := writeTarget(res.Target, out); err != nil {
		return r.fail(res, err)
	}
	r.cache.Store(rel, lang.Code, fp, out)
	res.Status = Written
	return res
}

func (r *runner) fail(res Result, err error) Result {
	res.Status = Failed
	res.Err = zerr.With(zerr.With(zerr.Wrap(err, ""), "path", res.Path), "lang", res.Lang)
	r.opts.logError("%s [%s]: %v", res.Path, res.Lang, err)
	return res
}

func (r *runner) finish(res Result) {
	r.sum.add(res)

	r.mu.Lock()
	r.done++
	done := r.done
	r.mu.Unlock()

	if r.opts.OnProgress != nil {
		r.opts.OnProgress(res, done, r.total)
	}
}

func writeTarget(path, text string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return zerr.With(fmt.Errorf("%w: %w", ErrWriteTarget, err), "target", path)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return zerr.With(fmt.Errorf("%w: %w", ErrWriteTarget, err), "target", path)
	}
	return nil
}
