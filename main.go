// mdxlate — incremental AI translation for MDX documentation sites.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"

	"github.com/minios-linux/mdxlate/cache"
	"github.com/minios-linux/mdxlate/config"
	"github.com/minios-linux/mdxlate/discover"
	"github.com/minios-linux/mdxlate/langmeta"
	"github.com/minios-linux/mdxlate/pipeline"
	"github.com/minios-linux/mdxlate/settings"
	"github.com/minios-linux/mdxlate/translate"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow, color.Bold).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// logOut receives all log output. Pipeline callbacks log from several
// goroutines, so writes are serialized.
var (
	logOut io.Writer = os.Stderr
	logMu  sync.Mutex
)

func logLine(prefix, format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	fmt.Fprintf(logOut, prefix+" "+format+"\n", args...)
}

func logInfo(format string, args ...any)    { logLine(blue("[INFO]"), format, args...) }
func logSuccess(format string, args ...any) { logLine(green("[OK]"), format, args...) }
func logWarning(format string, args ...any) { logLine(yellow("[WARN]"), format, args...) }
func logError(format string, args ...any)   { logLine(red("[ERROR]"), format, args...) }

// errAllFailed is returned when every attempted translation failed.
var errAllFailed = zerr.New("all translations failed")

// ---------------------------------------------------------------------------
// Global flag
// ---------------------------------------------------------------------------

var rootDir string

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mdxlate",
		Short: "Incremental AI translation for MDX documentation",
		Long: `mdxlate — incremental AI translation for MDX documentation sites.

Finds the .mdx sources of a documentation tree, translates every page into
the configured languages through an OpenAI-compatible chat/completions
endpoint and writes the results to <output>/<lang>/<path>. A content
fingerprint per page is kept in .mdxlate-cache.json so unchanged pages are
never sent again.

Commands:
  translate   Translate changed pages into all target languages
  status      Show cache coverage per language
  auth        Manage the stored API key

Configuration is read from .mdxlate.yaml and .env in the project root and
from the MDXLATE_API_KEY, MDXLATE_BASE_URL and MDXLATE_MODEL variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global persistent flag, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory")

	root.AddCommand(
		newTranslateCmd(),
		newStatusCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, and build date.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mdxlate version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
		},
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	lang, file             string
	apiKey, model, baseURL string
	proxy                  string
	force, dryRun, verbose bool
	concurrency            int
	delay, timeout         time.Duration

	concurrencySet, delaySet, timeoutSet bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate changed pages into the target languages",
		Long: `Translate MDX pages into the target languages.

Pages whose content fingerprint matches the cache are copied from the cache
without calling the API. Files are processed one at a time; the languages of
a file are translated concurrently.

Examples:
  # Translate everything that changed
  mdxlate translate

  # Only Japanese, only the guides
  mdxlate translate --lang ja --file 'guides/**'

  # Show what would happen
  mdxlate translate --dry-run

  # Re-translate one page regardless of the cache
  mdxlate translate --file guides/install.mdx --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			a.concurrencySet = flags.Changed("concurrency")
			a.delaySet = flags.Changed("delay")
			a.timeoutSet = flags.Changed("timeout")
			return runTranslate(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&a.lang, "lang", "", "Translate only this language code")
	cmd.Flags().StringVar(&a.file, "file", "", "Translate only matching source paths (exact path, glob, or prefix)")
	cmd.Flags().BoolVar(&a.force, "force", false, "Ignore the cache and translate again")
	cmd.Flags().BoolVar(&a.dryRun, "dry-run", false, "Show what would be translated without calling the API or writing files")
	cmd.Flags().IntVar(&a.concurrency, "concurrency", pipeline.DefaultConcurrency, "Maximum simultaneous requests per file")
	cmd.Flags().DurationVar(&a.delay, "delay", pipeline.DefaultFileDelay, "Pause between files")

	cmd.Flags().StringVar(&a.apiKey, "api-key", "", "API key (or "+config.EnvAPIKey+" env var)")
	cmd.Flags().StringVar(&a.model, "model", "", "Model name (default "+config.DefaultModel+")")
	cmd.Flags().StringVar(&a.baseURL, "base-url", "", "API base URL (default "+config.DefaultBaseURL+")")
	cmd.Flags().DurationVar(&a.timeout, "timeout", 0, "Request timeout (0 = none)")
	cmd.Flags().StringVar(&a.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	cmd.Flags().BoolVar(&a.verbose, "verbose", false, "Log every API request")

	_ = cmd.RegisterFlagCompletionFunc("lang", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var out []string
		for _, code := range langmeta.Codes() {
			m := langmeta.Registry[code]
			out = append(out, fmt.Sprintf("%s\t%s (%s)", code, m.Name, m.Native))
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runTranslate(parent context.Context, a translateArgs) error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return withSupportedCodes(err)
	}
	if err := applyTranslateFlags(cfg, a); err != nil {
		return withSupportedCodes(err)
	}

	// The credential is checked before any source file is touched.
	if err := cfg.RequireCredential(); err != nil {
		return err
	}

	files, err := discover.Files(cfg.SourceDir, cfg.DiscoverOptions(a.file))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		logWarning("No source files found in %s", cfg.SourceDir)
		return nil
	}

	c, err := cache.Load(cfg.CachePath)
	if err != nil {
		logWarning("Ignoring translation cache: %v", err)
	}

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("Interrupted, finishing running requests...")
			cancel()
		case <-ctx.Done():
		}
	}()

	client := translate.NewClient(cfg.Provider(), translate.Options{
		SourceLang: cfg.SourceLang,
		LinkHosts:  cfg.LinkHosts,
		Verbose:    a.verbose,
		OnLog:      logWarning,
	})

	mode := ""
	if a.dryRun {
		mode = " (dry run)"
	}
	logInfo("Translating %d file(s) into %d language(s)%s: %s",
		len(files), len(cfg.Languages), mode, strings.Join(cfg.LanguageCodes(), ", "))
	if a.verbose {
		logInfo("Endpoint: %s, model: %s, concurrency: %d", client.Endpoint(), cfg.Model, cfg.Concurrency)
	}

	start := time.Now()
	sum, runErr := pipeline.Run(ctx, files, client, c, pipeline.Options{
		SourceRoot:  cfg.SourceDir,
		OutputRoot:  cfg.OutputDir,
		Languages:   cfg.Languages,
		Concurrency: cfg.Concurrency,
		FileDelay:   cfg.FileDelay,
		Force:       a.force,
		DryRun:      a.dryRun,
		OnLog:       logInfo,
		OnWarning:   logWarning,
		OnError:     logError,
		OnProgress: func(r pipeline.Result, done, total int) {
			if r.Status == pipeline.DryRunSkipped || r.Status == pipeline.Failed {
				return
			}
			logInfo("[%d/%d] %s %s %s", done, total, r.Lang, r.Path, statusLabel(r.Status))
		},
	})

	if !a.dryRun {
		if err := c.Save(); err != nil {
			logWarning("Could not save translation cache: %v", err)
		}
	}

	fmt.Fprintln(logOut)
	fmt.Fprintln(logOut, renderSummary(sum))
	for _, r := range sum.Failures() {
		logError("%s [%s]: %v", r.Path, r.Lang, r.Err)
	}

	if errors.Is(runErr, context.Canceled) {
		logWarning("Translation interrupted, finished pages are cached")
	}
	if sum.AllFailed() {
		return zerr.With(fmt.Errorf("%w (%d of %d)", errAllFailed, sum.Total.Failed, sum.Total.Attempted()), "failed", sum.Total.Failed)
	}
	if a.dryRun {
		logSuccess("Dry run complete: %d page(s) would be processed", sum.Total.Skipped)
		return nil
	}
	logSuccess("Done in %v: %d translated, %d cached, %d failed",
		time.Since(start).Round(time.Millisecond), sum.Total.Translated, sum.Total.Cached, sum.Total.Failed)
	return nil
}

// applyTranslateFlags applies command-line overrides to cfg.
func applyTranslateFlags(cfg *config.Config, a translateArgs) error {
	if key := settings.ResolveAPIKey(settings.DefaultProfile, a.apiKey); key != "" {
		cfg.APIKey = key
	}
	if a.model != "" {
		cfg.Model = a.model
	}
	if a.baseURL != "" {
		cfg.BaseURL = a.baseURL
	}
	if a.proxy != "" {
		cfg.Proxy = a.proxy
	}
	if a.timeoutSet {
		cfg.Timeout = a.timeout
	}
	if a.concurrencySet {
		if a.concurrency < 1 {
			return zerr.With(fmt.Errorf("%w: --concurrency must be at least 1", config.ErrConfig), "concurrency", a.concurrency)
		}
		cfg.Concurrency = a.concurrency
	}
	if a.delaySet {
		if a.delay < 0 {
			return zerr.With(fmt.Errorf("%w: --delay must not be negative", config.ErrConfig), "delay", a.delay)
		}
		cfg.FileDelay = a.delay
	}
	if a.lang != "" {
		if err := cfg.SelectLanguage(a.lang); err != nil {
			return err
		}
	}
	return nil
}

// withSupportedCodes adds the list of supported codes to a language error.
func withSupportedCodes(err error) error {
	if !errors.Is(err, config.ErrUnsupportedLanguage) {
		return err
	}
	return zerr.With(fmt.Errorf("%w\nSupported languages: %s", err, strings.Join(langmeta.Codes(), ", ")), "supported", langmeta.Codes())
}

func statusLabel(s pipeline.Status) string {
	switch s {
	case pipeline.Written:
		return green(s.String())
	case pipeline.CacheHit:
		return blue(s.String())
	case pipeline.Failed:
		return red(s.String())
	}
	return s.String()
}

// ---------------------------------------------------------------------------
// status (read-only: cache coverage per language)
// ---------------------------------------------------------------------------

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache coverage per language",
		Long: `Show the project configuration and, per target language, how many
source pages have a valid cached translation, a stale one (the source
changed since), or none. Does not modify any files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return withSupportedCodes(err)
	}

	files, err := discover.Files(cfg.SourceDir, cfg.DiscoverOptions(""))
	if err != nil {
		return err
	}
	c, err := cache.Load(cfg.CachePath)
	if err != nil {
		logWarning("Ignoring translation cache: %v", err)
	}

	fmt.Fprintf(logOut, "\n%s\n", blue("Project"))
	fmt.Fprintln(logOut, strings.Repeat("─", 60))
	fmt.Fprintf(logOut, "  Root:       %s\n", cfg.Root)
	fmt.Fprintf(logOut, "  Sources:    %s (%d pages)\n", cfg.SourceDir, len(files))
	fmt.Fprintf(logOut, "  Output:     %s/<lang>\n", cfg.OutputDir)
	docs, translations := c.Stats()
	fmt.Fprintf(logOut, "  Cache:      %s (%d pages, %d translations)\n", c.Path(), docs, translations)
	fmt.Fprintf(logOut, "  Endpoint:   %s (model %s)\n", cfg.BaseURL, cfg.Model)
	if key := settings.ResolveAPIKey(settings.DefaultProfile, ""); key != "" {
		fmt.Fprintf(logOut, "  API key:    %s\n", settings.MaskKey(key))
	} else {
		fmt.Fprintf(logOut, "  API key:    %s\n", red("not configured"))
	}
	fmt.Fprintln(logOut)

	cov, err := computeCoverage(cfg, files, c)
	if err != nil {
		return err
	}
	fmt.Fprintln(logOut, renderCoverage(cov))

	if len(cov.orphaned) > 0 {
		logWarning("%d cache entr(ies) belong to removed sources: %s",
			len(cov.orphaned), strings.Join(cov.orphaned, ", "))
	}
	return nil
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the stored API key",
		Long: `Manage API keys stored in ` + "~/.local/share/mdxlate/auth.json" + `.

The key is looked up in this order:
  1. --api-key flag
  2. MDXLATE_API_KEY environment variable (or .env in the project root)
  3. the stored key

Examples:
  mdxlate auth set-key                 Prompt for the key and store it
  echo "$KEY" | mdxlate auth set-key   Read the key from stdin
  mdxlate auth list                    Show stored keys
  mdxlate auth logout                  Remove all stored keys`,
	}

	cmd.AddCommand(
		newAuthSetKeyCmd(),
		newAuthLogoutCmd(),
		newAuthListCmd(),
	)

	return cmd
}

func newAuthSetKeyCmd() *cobra.Command {
	var profile, baseURL string

	cmd := &cobra.Command{
		Use:   "set-key [key]",
		Short: "Store an API key",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			if len(args) == 1 {
				key = args[0]
			} else {
				fmt.Fprint(logOut, "API key: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return zerr.Wrap(err, "reading key")
				}
				key = line
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return zerr.New("empty API key")
			}
			if err := settings.SetAPIKey(profile, key, baseURL); err != nil {
				return zerr.Wrap(err, "storing key")
			}
			logSuccess("API key %s stored for profile %q in %s", settings.MaskKey(key), profile, settings.FilePath())
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", settings.DefaultProfile, "Profile name")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint the key belongs to (informational)")
	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored API keys",
		Long: `Remove the stored key of one profile, or all stored keys if --profile is
not given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if profile != "" {
				if err := settings.Remove(profile); err != nil {
					return zerr.With(zerr.Wrap(err, "removing profile"), "profile", profile)
				}
				logSuccess("Profile %q removed", profile)
				return nil
			}
			if err := settings.RemoveAll(); err != nil {
				return err
			}
			logSuccess("All stored credentials removed")
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "Profile to remove (default: all)")
	_ = cmd.RegisterFlagCompletionFunc("profile", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return settings.Load().Profiles(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(logOut, "\n%s\n", blue("Stored Credentials"))
			fmt.Fprintln(logOut, strings.Repeat("─", 60))

			store := settings.Load()
			if len(store) == 0 {
				fmt.Fprintf(logOut, "  %s\n", red("none"))
			}
			for _, name := range store.Profiles() {
				info := store[name]
				line := fmt.Sprintf("  %-14s %s", name, settings.MaskKey(info.Key))
				if info.BaseURL != "" {
					line += "  " + info.BaseURL
				}
				fmt.Fprintln(logOut, line)
			}

			fmt.Fprintf(logOut, "\n  %s\n", yellow("Environment Variables"))
			if envKey := os.Getenv(config.EnvAPIKey); envKey != "" {
				fmt.Fprintf(logOut, "  %s: %s (overrides stored keys)\n", config.EnvAPIKey, green(settings.MaskKey(envKey)))
			} else {
				fmt.Fprintf(logOut, "  %s: %s\n", config.EnvAPIKey, red("not set"))
			}
			fmt.Fprintln(logOut)
		},
	}
}
