package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"go.trai.ch/zerr"

	"github.com/minios-linux/mdxlate/cache"
	"github.com/minios-linux/mdxlate/config"
	"github.com/minios-linux/mdxlate/pipeline"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	totalStyle  = cellStyle.Bold(true)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#667085"))
)

// ---------------------------------------------------------------------------
// Run summary
// ---------------------------------------------------------------------------

// renderSummary renders the per-language counts of a run with a total row.
func renderSummary(sum *pipeline.Summary) string {
	rows := make([][]string, 0, len(sum.Languages)+1)
	for _, code := range sum.Languages {
		c := sum.ByLang[code]
		rows = append(rows, countsRow(code, *c))
	}
	rows = append(rows, countsRow("total", sum.Total))
	last := len(rows) - 1

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Lang", "Translated", "Cached", "Dry run", "Failed").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row == last:
				return totalStyle
			}
			return cellStyle
		}).
		String()
}

func countsRow(label string, c pipeline.Counts) []string {
	return []string{
		label,
		fmt.Sprint(c.Translated),
		fmt.Sprint(c.Cached),
		fmt.Sprint(c.Skipped),
		fmt.Sprint(c.Failed),
	}
}

// ---------------------------------------------------------------------------
// Cache coverage
// ---------------------------------------------------------------------------

type langCoverage struct {
	code                  string
	valid, stale, missing int
}

type coverage struct {
	total    int
	langs    []langCoverage
	orphaned []string
}

// computeCoverage classifies every (file, language) pair against the cache.
// A translation is valid when the cached fingerprint matches the current
// source, stale when it exists under an older fingerprint, and missing
// otherwise.
func computeCoverage(cfg *config.Config, files []string, c *cache.Cache) (*coverage, error) {
	cov := &coverage{total: len(files)}
	for _, l := range cfg.Languages {
		cov.langs = append(cov.langs, langCoverage{code: l.Code})
	}

	known := make(map[string]bool, len(files))
	for _, rel := range files {
		known[rel] = true

		data, err := os.ReadFile(filepath.Join(cfg.SourceDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, "reading source"), "path", rel)
		}
		fp := cache.Fingerprint(string(data))
		entry, ok := c.Entry(rel)

		for i := range cov.langs {
			lc := &cov.langs[i]
			_, has := entry.Translations[lc.code]
			switch {
			case ok && has && entry.SourceHash == fp:
				lc.valid++
			case ok && has:
				lc.stale++
			default:
				lc.missing++
			}
		}
	}

	for _, p := range c.Paths() {
		if !known[p] {
			cov.orphaned = append(cov.orphaned, p)
		}
	}
	sort.Strings(cov.orphaned)
	return cov, nil
}

// renderCoverage renders the coverage table.
func renderCoverage(cov *coverage) string {
	rows := make([][]string, 0, len(cov.langs))
	for _, lc := range cov.langs {
		rows = append(rows, []string{
			lc.code,
			fmt.Sprint(lc.valid),
			fmt.Sprint(lc.stale),
			fmt.Sprint(lc.missing),
			progressBar(lc.valid, cov.total, 20),
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("Lang", "Valid", "Stale", "Missing", "Coverage").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// progressBar renders done/total as a bar of width cells followed by the
// percentage.
func progressBar(done, total, width int) string {
	percent := 0
	if total > 0 {
		percent = done * 100 / total
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
	}
	if filled > width {
		filled = width
	}
	return fmt.Sprintf("%s%s %3d%%",
		strings.Repeat("█", filled), strings.Repeat("░", width-filled), percent)
}
