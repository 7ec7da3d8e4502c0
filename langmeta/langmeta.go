// Package langmeta provides the language registry used to describe target
// languages to the translation prompt (English and native names) and to
// validate language codes given on the command line.
package langmeta

import (
	"sort"
	"strings"
)

// Meta describes a language.
type Meta struct {
	// Code is the language code as used in output directories and links.
	Code string
	// Name is the English display name.
	Name string
	// Native is the language's name for itself.
	Native string
}

// Registry contains canonical language metadata. Lookup accepts
// variant spellings such as pt_br.
var Registry = map[string]Meta{
	"ar":      {Code: "ar", Name: "Arabic", Native: "العربية"},
	"cs":      {Code: "cs", Name: "Czech", Native: "Čeština"},
	"de":      {Code: "de", Name: "German", Native: "Deutsch"},
	"en":      {Code: "en", Name: "English", Native: "English"},
	"es":      {Code: "es", Name: "Spanish", Native: "Español"},
	"fr":      {Code: "fr", Name: "French", Native: "Français"},
	"hi":      {Code: "hi", Name: "Hindi", Native: "हिन्दी"},
	"id":      {Code: "id", Name: "Indonesian", Native: "Bahasa Indonesia"},
	"it":      {Code: "it", Name: "Italian", Native: "Italiano"},
	"ja":      {Code: "ja", Name: "Japanese", Native: "日本語"},
	"ko":      {Code: "ko", Name: "Korean", Native: "한국어"},
	"nl":      {Code: "nl", Name: "Dutch", Native: "Nederlands"},
	"pl":      {Code: "pl", Name: "Polish", Native: "Polski"},
	"pt":      {Code: "pt", Name: "Portuguese", Native: "Português"},
	"pt-BR":   {Code: "pt-BR", Name: "Portuguese (Brazil)", Native: "Português (Brasil)"},
	"ru":      {Code: "ru", Name: "Russian", Native: "Русский"},
	"th":      {Code: "th", Name: "Thai", Native: "ไทย"},
	"tr":      {Code: "tr", Name: "Turkish", Native: "Türkçe"},
	"uk":      {Code: "uk", Name: "Ukrainian", Native: "Українська"},
	"vi":      {Code: "vi", Name: "Vietnamese", Native: "Tiếng Việt"},
	"zh":      {Code: "zh", Name: "Simplified Chinese", Native: "简体中文"},
	"zh-Hant": {Code: "zh-Hant", Name: "Traditional Chinese", Native: "繁體中文"},
}

// DefaultTargets is the target language list used when the project
// configuration does not name one.
var DefaultTargets = []string{"zh", "zh-Hant", "ja", "ko", "es", "fr", "de", "pt-BR", "ru", "ar", "vi", "id"}

func canonicalize(lang string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(lang), "_", "-")
	if normalized == "" {
		return ""
	}
	parts := strings.Split(normalized, "-")
	parts[0] = strings.ToLower(parts[0])
	if len(parts) >= 2 {
		// Region subtags are upper case, script subtags title case.
		if len(parts[1]) == 4 {
			parts[1] = strings.ToUpper(parts[1][:1]) + strings.ToLower(parts[1][1:])
		} else {
			parts[1] = strings.ToUpper(parts[1])
		}
	}
	return strings.Join(parts, "-")
}

// Lookup returns the metadata for an exact or normalized registry code.
// Regional variants missing from the registry do not fall back to the base
// language.
func Lookup(lang string) (Meta, bool) {
	if m, ok := Registry[lang]; ok {
		return m, true
	}
	m, ok := Registry[canonicalize(lang)]
	return m, ok
}

// Codes returns all registry codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for code := range Registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Select resolves codes to metadata, keeping the given order and dropping
// duplicates. It returns the codes that are not in the registry.
func Select(codes []string) (langs []Meta, unknown []string) {
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		m, ok := Lookup(code)
		if !ok {
			unknown = append(unknown, code)
			continue
		}
		if seen[m.Code] {
			continue
		}
		seen[m.Code] = true
		langs = append(langs, m)
	}
	return langs, unknown
}
