package receipt

import (
	"regexp"
	"strings"
)

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n\\s*```")

// extractJSON pulls the first JSON object out of free-form model output:
// a fenced code block if present, otherwise a balanced brace scan.
func extractJSON(text string) string {
	if matches := codeBlockRe.FindStringSubmatch(text); len(matches) >= 2 {
		if obj := extractJSONObject(matches[1]); obj != "" {
			return obj
		}
	}
	return extractJSONObject(text)
}

func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
