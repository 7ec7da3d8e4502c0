// Package mdx inspects MDX documents around a translation.
//
// A document is a YAML frontmatter block between --- delimiters followed by
// the MDX body. The package splits that structure, removes fences that a
// model wraps around a whole reply, and compares a translation against its
// source to catch structure the model lost.
package mdx

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed MDX document.
type Document struct {
	// HasFrontmatter is true if the text starts with a YAML mapping block.
	HasFrontmatter bool
	// Keys is the ordered list of top-level frontmatter field names.
	Keys []string
	// Fields holds the scalar frontmatter values by key.
	Fields map[string]string
	// Body is the text after the frontmatter block.
	Body string
}

// frontmatterBlock matches a YAML front matter block at the start of the file.
var frontmatterBlock = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---\r?\n?`)

// fenceLine matches an opening or closing code fence line.
var fenceLine = regexp.MustCompile("(?m)^\\s*(```|~~~)")

// wrappedReply matches a reply that is entirely one fenced block.
var wrappedReply = regexp.MustCompile("(?s)^```(mdx|markdown|md)?[ \\t]*\\r?\\n(.*?)\\r?\\n```\\s*$")

// Parse splits text into frontmatter and body.
// Frontmatter that is not a YAML mapping is treated as body text.
func Parse(text string) (*Document, error) {
	doc := &Document{Fields: make(map[string]string), Body: text}

	m := frontmatterBlock.FindStringSubmatchIndex(text)
	if m == nil {
		return doc, nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text[m[2]:m[3]]), &node); err != nil {
		return doc, fmt.Errorf("parsing frontmatter: %w", err)
	}
	if len(node.Content) == 0 || node.Content[0].Kind != yaml.MappingNode {
		return doc, nil
	}

	root := node.Content[0]
	doc.HasFrontmatter = true
	doc.Body = text[m[1]:]
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		doc.Keys = append(doc.Keys, key.Value)
		if val.Kind == yaml.ScalarNode {
			doc.Fields[key.Value] = val.Value
		}
	}
	return doc, nil
}

// Unwrap removes a code fence wrapped around an entire model reply to
// source. Replies that merely contain code blocks are returned unchanged, as
// are replies to a source that itself starts with a fence.
func Unwrap(reply, source string) string {
	if startsWithFence(source) {
		return reply
	}
	trimmed := strings.TrimSpace(reply)
	m := wrappedReply.FindStringSubmatch(trimmed)
	if m == nil {
		return reply
	}
	tag, inner := m[1], m[2]
	// Without a document tag, inner fences mean the outer backticks belong
	// to real code blocks at the edges of the document.
	n := CountFences(inner)
	if (tag == "" && n > 0) || n%2 != 0 {
		return reply
	}
	return inner + "\n"
}

func startsWithFence(text string) bool {
	loc := fenceLine.FindStringIndex(text)
	return loc != nil && strings.TrimSpace(text[:loc[0]]) == ""
}

// CountFences returns the number of code fence lines in text.
func CountFences(text string) int {
	return len(fenceLine.FindAllString(text, -1))
}

// Check compares a translated document with its source and returns
// human-readable descriptions of structure the translation lost.
func Check(source, translated string) []string {
	var problems []string

	src, srcErr := Parse(source)
	out, outErr := Parse(translated)

	if srcErr == nil && src.HasFrontmatter {
		switch {
		case outErr != nil:
			problems = append(problems, fmt.Sprintf("frontmatter no longer parses: %v", outErr))
		case !out.HasFrontmatter:
			problems = append(problems, "frontmatter missing")
		default:
			if missing := missingKeys(src.Keys, out.Keys); len(missing) > 0 {
				problems = append(problems, fmt.Sprintf("frontmatter keys missing: %s", strings.Join(missing, ", ")))
			}
		}
	}

	if a, b := CountFences(source), CountFences(translated); a != b {
		problems = append(problems, fmt.Sprintf("code fence count changed from %d to %d", a, b))
	}
	return problems
}

func missingKeys(want, have []string) []string {
	present := make(map[string]bool, len(have))
	for _, k := range have {
		present[k] = true
	}
	var missing []string
	for _, k := range want {
		if !present[k] {
			missing = append(missing, k)
		}
	}
	return missing
}
