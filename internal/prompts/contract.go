package prompts

import (
	"regexp"
	"strings"

	"adcreative/internal/core"
)

// Section markers the model is asked to emit.
const (
	MarkerAnalysis    = "ANALYSIS"
	MarkerImagePrompt = "NANO_BANANA_PROMPT"
	MarkerVideoPrompt = "VIDEO_PROMPT"
)

// markerLine matches a known label line such as "VIDEO_PROMPT:" or "**ANALYSIS:**",
// with optional markdown heading or bold decoration.
var markerLine = regexp.MustCompile(`(?m)^[ \t]*(?:#{1,6}[ \t]*)?\**[ \t]*(` +
	MarkerAnalysis + `|` + MarkerImagePrompt + `|` + MarkerVideoPrompt +
	`)[ \t]*\**[ \t]*:[ \t]*\**`)

// outputContract is appended to prompts that need labelled sections back.
func outputContract(markers ...string) string {
	var b strings.Builder
	b.WriteString("Output format: respond with exactly the following labelled sections, each label on its own line followed by a colon, and nothing before the first label:\n")
	for _, m := range markers {
		b.WriteString(m)
		b.WriteString(": <content>\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ExtractSection returns the content following marker up to the next marker line.
// A missing or empty section is a malformed_model_output error.
func ExtractSection(text, marker string) (string, error) {
	locs := markerLine.FindAllStringSubmatchIndex(text, -1)
	for i, loc := range locs {
		if text[loc[2]:loc[3]] != marker {
			continue
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		section := CleanText(text[loc[1]:end])
		if section == "" {
			break
		}
		return section, nil
	}
	return "", core.NewMalformedOutputError("model response did not follow the requested format").
		WithDetails("missing " + marker + " section")
}

// SectionOrText returns the marker's section when present and the whole trimmed text
// otherwise. Used for re-optimized output, where a label is optional.
func SectionOrText(text, marker string) string {
	if s, err := ExtractSection(text, marker); err == nil {
		return s
	}
	return CleanText(text)
}

// CleanText trims whitespace, code fences and wrapping double quotes.
func CleanText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

// SingleParagraph collapses every line break and run of whitespace into a single space.
func SingleParagraph(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
