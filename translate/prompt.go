package translate

import (
	"strings"

	"github.com/minios-linux/mdxlate/langmeta"
)

// DocsPrompt is the instruction sent with every document. The placeholders
// {{langName}}, {{langNative}}, {{langCode}} and {{content}} are filled in by
// BuildPrompt.
const DocsPrompt = `You are a professional translator specializing in technical documentation. You are translating one page of a documentation site written in MDX (Markdown with JSX components) into {{langName}} ({{langNative}}, language code "{{langCode}}").

Translate:
- all natural-language text: headings, paragraphs, list items, table cells, blockquotes and image alt text
- the frontmatter values of title, description and sidebarTitle
- human-readable component attributes such as title="..." on <Card> or <Tab>

Keep exactly as they are:
- fenced code blocks (everything between the opening and closing ` + "```" + ` lines), including comments inside them
- inline code spans written in backticks
- URLs and link targets
- MDX/JSX component names, tags and attribute names (for example <Card>, <Tabs>, <ParamField path="...">)
- frontmatter keys and the values of all other frontmatter keys
- API parameter names, field names, identifiers, environment variables and file paths
- Markdown structure: heading levels, list markers, table layout and blank lines

Output ONLY the translated document. Do not add explanations or notes, and do not wrap the document in a code fence.

Document:

{{content}}`

// BuildPrompt returns the single-turn prompt that asks for text to be
// translated into lang.
func BuildPrompt(text string, lang langmeta.Meta) string {
	r := strings.NewReplacer(
		"{{langName}}", lang.Name,
		"{{langNative}}", lang.Native,
		"{{langCode}}", lang.Code,
		"{{content}}", text,
	)
	return r.Replace(DocsPrompt)
}
