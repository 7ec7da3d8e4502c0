// Package config resolves the .mdxlate.yaml project configuration.
//
// A project is a directory holding MDX sources and, optionally, a
// .mdxlate.yaml file and a .env file. Settings are resolved once at startup
// into a Config value that is handed to discovery, the client and the
// pipeline. Precedence, highest first: command-line flags (applied by the
// caller), environment, .mdxlate.yaml, built-in defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"

	"github.com/minios-linux/mdxlate/cache"
	"github.com/minios-linux/mdxlate/discover"
	"github.com/minios-linux/mdxlate/langmeta"
	"github.com/minios-linux/mdxlate/pipeline"
	"github.com/minios-linux/mdxlate/settings"
	"github.com/minios-linux/mdxlate/translate"
)

// FileName is the project configuration file name.
const FileName = ".mdxlate.yaml"

// EnvFileName is the dotenv file loaded from the project root.
const EnvFileName = ".env"

// Environment variables.
const (
	EnvAPIKey  = settings.EnvAPIKey
	EnvBaseURL = "MDXLATE_BASE_URL"
	EnvModel   = "MDXLATE_MODEL"
)

// Defaults.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultModel      = "gpt-4o-mini"
	DefaultSourceLang = "en"
)

var (
	// ErrConfig is returned for unreadable or invalid configuration.
	ErrConfig = zerr.New("invalid configuration")

	// ErrMissingCredential is returned when no API key is configured.
	ErrMissingCredential = zerr.New("no API key configured")

	// ErrUnsupportedLanguage is returned for an unknown language code.
	ErrUnsupportedLanguage = zerr.New("unsupported language")
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the .mdxlate.yaml structure. Relative paths are resolved against
// the directory holding the file.
type File struct {
	// SourceDir holds the source documents (default ".").
	SourceDir string `yaml:"source_dir,omitempty"`
	// OutputDir receives <lang>/<path> (default SourceDir).
	OutputDir string `yaml:"output_dir,omitempty"`
	// CacheFile is the translation cache (default .mdxlate-cache.json).
	CacheFile string `yaml:"cache_file,omitempty"`
	// SourceLang is the language of the sources (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// Languages are the target codes (default langmeta.DefaultTargets).
	Languages []string `yaml:"languages,omitempty"`
	// Exclude holds extra glob patterns skipped during discovery.
	Exclude []string `yaml:"exclude,omitempty"`
	// Extensions are the content file extensions (default [.mdx]).
	Extensions []string `yaml:"extensions,omitempty"`
	// Concurrency bounds the simultaneous calls per file (default 3).
	Concurrency int `yaml:"concurrency,omitempty"`
	// FileDelay is the pause between files (default 500ms).
	FileDelay *time.Duration `yaml:"file_delay,omitempty"`
	// BaseURL is the API base URL.
	BaseURL string `yaml:"base_url,omitempty"`
	// Model is the model identifier.
	Model string `yaml:"model,omitempty"`
	// Timeout is the HTTP request timeout (default none).
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Proxy is an HTTP/HTTPS proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
	// LinkHosts are the site hosts whose absolute links are localized.
	// Without hosts only site-relative links are rewritten.
	LinkHosts []string `yaml:"link_hosts,omitempty"`
}

// LoadFile reads .mdxlate.yaml from dir. It returns nil, nil if the file
// does not exist. Unknown keys are rejected.
func LoadFile(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, zerr.With(fmt.Errorf("%w: %w", ErrConfig, err), "path", path)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, zerr.With(fmt.Errorf("%w: parsing %s: %w", ErrConfig, FileName, err), "path", path)
	}
	return &f, nil
}

// ---------------------------------------------------------------------------
// Resolved configuration
// ---------------------------------------------------------------------------

// Config is the resolved configuration of one run.
type Config struct {
	// Root is the absolute project root.
	Root string
	// SourceDir, OutputDir and CachePath are absolute.
	SourceDir string
	OutputDir string
	CachePath string

	SourceLang  string
	Languages   []langmeta.Meta
	Exclude     []string
	Extensions  []string
	Concurrency int
	FileDelay   time.Duration
	LinkHosts   []string

	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Proxy   string
}

// Load resolves the configuration of the project at root: it loads the
// .env file, reads .mdxlate.yaml if present and applies the environment.
// The API key is not required here; see RequireCredential.
func Load(root string) (*Config, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, zerr.With(fmt.Errorf("%w: %w", ErrConfig, err), "root", root)
	}
	if err := LoadEnvFile(abs); err != nil {
		return nil, err
	}
	f, err := LoadFile(abs)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = &File{}
	}
	cfg, err := f.Resolve(abs)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// LoadEnvFile loads <root>/.env into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(root string) error {
	path := filepath.Join(root, EnvFileName)
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return zerr.With(fmt.Errorf("%w: loading %s: %w", ErrConfig, EnvFileName, err), "path", path)
	}
	return nil
}

// Resolve applies defaults, validates f and makes its paths absolute
// against root.
func (f *File) Resolve(root string) (*Config, error) {
	cfg := &Config{
		Root:        root,
		SourceLang:  f.SourceLang,
		Exclude:     f.Exclude,
		Concurrency: f.Concurrency,
		FileDelay:   pipeline.DefaultFileDelay,
		LinkHosts:   f.LinkHosts,
		BaseURL:     f.BaseURL,
		Model:       f.Model,
		Timeout:     f.Timeout,
		Proxy:       f.Proxy,
	}

	sourceDir := f.SourceDir
	if sourceDir == "" {
		sourceDir = "."
	}
	cfg.SourceDir = resolvePath(root, sourceDir)
	cfg.OutputDir = cfg.SourceDir
	if f.OutputDir != "" {
		cfg.OutputDir = resolvePath(root, f.OutputDir)
	}
	cacheFile := f.CacheFile
	if cacheFile == "" {
		cacheFile = cache.FileName
	}
	cfg.CachePath = resolvePath(root, cacheFile)

	if cfg.SourceLang == "" {
		cfg.SourceLang = DefaultSourceLang
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	if cfg.Concurrency < 0 {
		return nil, zerr.With(fmt.Errorf("%w: concurrency must be positive", ErrConfig), "concurrency", cfg.Concurrency)
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = pipeline.DefaultConcurrency
	}
	if f.FileDelay != nil {
		if *f.FileDelay < 0 {
			return nil, zerr.With(fmt.Errorf("%w: file_delay must not be negative", ErrConfig), "file_delay", *f.FileDelay)
		}
		cfg.FileDelay = *f.FileDelay
	}
	if cfg.Timeout < 0 {
		return nil, zerr.With(fmt.Errorf("%w: timeout must not be negative", ErrConfig), "timeout", cfg.Timeout)
	}

	for _, ext := range f.Extensions {
		ext = strings.TrimSpace(ext)
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Extensions = append(cfg.Extensions, ext)
	}
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = discover.DefaultExtensions
	}

	codes := f.Languages
	if len(codes) == 0 {
		codes = langmeta.DefaultTargets
	}
	langs, unknown := langmeta.Select(codes)
	if len(unknown) > 0 {
		return nil, UnsupportedLanguage(unknown...)
	}
	for _, l := range langs {
		if err := cfg.checkTarget(l); err != nil {
			return nil, err
		}
	}
	cfg.Languages = langs

	return cfg, nil
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}

// ApplyEnv overrides the endpoint settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
}

// RequireCredential returns ErrMissingCredential if no API key is set.
func (c *Config) RequireCredential() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return zerr.With(fmt.Errorf("%w: set %s or run 'mdxlate auth set-key'", ErrMissingCredential, EnvAPIKey), "env", EnvAPIKey)
	}
	return nil
}

// SelectLanguage restricts the run to one target language.
func (c *Config) SelectLanguage(code string) error {
	m, ok := langmeta.Lookup(code)
	if !ok {
		return UnsupportedLanguage(code)
	}
	if err := c.checkTarget(m); err != nil {
		return err
	}
	c.Languages = []langmeta.Meta{m}
	return nil
}

// checkTarget rejects the source language as a target.
func (c *Config) checkTarget(l langmeta.Meta) error {
	if src, ok := langmeta.Lookup(c.SourceLang); (ok && src.Code == l.Code) || l.Code == c.SourceLang {
		return zerr.With(fmt.Errorf("%w: source language %q cannot be a target", ErrConfig, l.Code), "lang", l.Code)
	}
	return nil
}

// UnsupportedLanguage returns an ErrUnsupportedLanguage error naming codes
// and carrying the supported codes as metadata.
func UnsupportedLanguage(codes ...string) error {
	err := fmt.Errorf("%w: %s", ErrUnsupportedLanguage, strings.Join(codes, ", "))
	return zerr.With(err, "supported", langmeta.Codes())
}

// Provider returns the endpoint settings for the translation client.
func (c *Config) Provider() translate.Provider {
	return translate.Provider{
		BaseURL: c.BaseURL,
		APIKey:  c.APIKey,
		Model:   c.Model,
		Proxy:   c.Proxy,
		Timeout: c.Timeout,
	}
}

// DiscoverOptions returns the discovery settings. Every registered language
// code and every target directly below the output root is treated as a
// localized output directory.
func (c *Config) DiscoverOptions(include string) discover.Options {
	dirs := langmeta.Codes()
	for _, l := range c.Languages {
		dirs = append(dirs, l.Code)
	}
	return discover.Options{
		Extensions:   c.Extensions,
		Exclude:      c.Exclude,
		LanguageDirs: dirs,
		OutputDir:    c.outputRel(),
		Include:      include,
	}
}

// outputRel returns OutputDir relative to SourceDir in slash form, or "."
// when the output root is not inside the source tree.
func (c *Config) outputRel() string {
	rel, err := filepath.Rel(c.SourceDir, c.OutputDir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "."
	}
	return filepath.ToSlash(rel)
}

// LanguageCodes returns the codes of the target languages.
func (c *Config) LanguageCodes() []string {
	codes := make([]string, len(c.Languages))
	for i, l := range c.Languages {
		codes[i] = l.Code
	}
	return codes
}
