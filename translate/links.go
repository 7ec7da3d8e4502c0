package translate

import (
	"regexp"
	"strings"
)

// RewriteLinks replaces the /<from>/ path segment of links in text with
// /<to>/.
//
// Site-relative link targets are rewritten in Markdown links and in href/src
// attributes. Absolute http(s) URLs are rewritten only when their host, or a
// parent domain of it, is listed in hosts. Fenced code blocks are left as
// they are, and so are paths that merely start with the code, such as
// /en-us/.
func RewriteLinks(text, from, to string, hosts []string) string {
	if from == "" || to == "" || from == to {
		return text
	}
	seg := regexp.QuoteMeta(from)
	relative := regexp.MustCompile(`(\]\(\s*|(?:href|src)=\{?["'])/` + seg + `([/)"'#?]|$)`)
	absolute := regexp.MustCompile(`(https?://)([^/\s)"'<>\]]+)/` + seg + `([/\s)"'#?<>\]]|$)`)

	return outsideFences(text, func(chunk string) string {
		chunk = relative.ReplaceAllString(chunk, "${1}/"+to+"${2}")
		if len(hosts) == 0 {
			return chunk
		}
		return replaceSubmatchFunc(absolute, chunk, func(m []string) string {
			if !hostAllowed(m[2], hosts) {
				return m[0]
			}
			return m[1] + m[2] + "/" + to + m[3]
		})
	})
}

func hostAllowed(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, h := range hosts {
		h = strings.ToLower(h)
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// outsideFences applies fn to the text between fenced code blocks and
// copies the blocks unchanged. An unclosed fence runs to the end of text.
func outsideFences(text string, fn func(string) string) string {
	var out, chunk strings.Builder
	fence := ""
	for _, line := range strings.SplitAfter(text, "\n") {
		marker := fenceMarker(line)
		switch {
		case fence != "":
			out.WriteString(line)
			if marker == fence {
				fence = ""
			}
		case marker != "":
			out.WriteString(fn(chunk.String()))
			chunk.Reset()
			out.WriteString(line)
			fence = marker
		default:
			chunk.WriteString(line)
		}
	}
	out.WriteString(fn(chunk.String()))
	return out.String()
}

func fenceMarker(line string) string {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	}
	return ""
}

// replaceSubmatchFunc is ReplaceAllStringFunc with access to the submatches.
func replaceSubmatchFunc(re *regexp.Regexp, s string, fn func([]string) string) string {
	idx := re.FindAllStringSubmatchIndex(s, -1)
	if idx == nil {
		return s
	}
	var b strings.Builder
	last := 0
	for _, loc := range idx {
		groups := make([]string, len(loc)/2)
		for i := range groups {
			if loc[2*i] >= 0 {
				groups[i] = s[loc[2*i]:loc[2*i+1]]
			}
		}
		b.WriteString(s[last:loc[0]])
		b.WriteString(fn(groups))
		last = loc[1]
	}
	b.WriteString(s[last:])
	return b.String()
}
