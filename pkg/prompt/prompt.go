// Package prompt assembles the text sent to the model and pulls code back out
// of its reply.
package prompt

import (
	"regexp"
	"strings"
)

// Placeholder is replaced with the language tag in a template prefix.
const Placeholder = "{language}"

// Template wraps a snippet with a prefix and suffix.
type Template struct {
	Prefix string `yaml:"prefix" toml:"prefix"`
	Suffix string `yaml:"suffix" toml:"suffix"`
}

// DefaultTemplate asks for a single fenced block with no commentary.
func DefaultTemplate() Template {
	return Template{
		Prefix: "Fix the following " + Placeholder + " code. Respond with only the corrected code in a single fenced code block.\n\n",
		Suffix: "",
	}
}

// Build returns prefix + snippet + suffix, with the first {language} in the
// prefix replaced by lang. A prefix without the placeholder is used as-is.
func Build(t Template, lang, snippet string) string {
	var sb strings.Builder

	sb.WriteString(strings.Replace(t.Prefix, Placeholder, lang, 1))
	sb.WriteString(snippet)
	sb.WriteString(t.Suffix)

	return sb.String()
}

// Block is one fenced code block found in a reply.
type Block struct {
	Lang string
	Code string
}

var fenceRe = regexp.MustCompile("(?s)```([A-Za-z0-9_+#.-]*)[^\\n]*\\n(.*?)```")

// CodeBlocks returns every fenced block in raw, in order. Code is trimmed.
func CodeBlocks(raw string) []Block {
	matches := fenceRe.FindAllStringSubmatch(raw, -1)

	out := make([]Block, 0, len(matches))
	for _, m := range matches {
		out = append(out, Block{
			Lang: strings.ToLower(m[1]),
			Code: strings.TrimSpace(m[2]),
		})
	}

	return out
}

// ExtractCode returns the trimmed contents of the last fenced block when that
// block ends the text. Otherwise it returns raw trimmed. Block contents never
// contain a fence, so ExtractCode(ExtractCode(x)) == ExtractCode(x).
func ExtractCode(raw string) string {
	idx := fenceRe.FindAllStringSubmatchIndex(raw, -1)
	if len(idx) == 0 {
		return strings.TrimSpace(raw)
	}

	last := idx[len(idx)-1]
	if strings.TrimSpace(raw[last[1]:]) != "" {
		return strings.TrimSpace(raw)
	}

	return strings.TrimSpace(raw[last[4]:last[5]])
}
