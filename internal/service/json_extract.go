package service

import (
	"regexp"
	"strings"
)

var (
	reFenceStart = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	reFenceEnd   = regexp.MustCompile("(?is)\\s*```\\s*$")
)

// cleanModelJSON quita fences ```json ... ``` y BOM, dejando el contenido usable.
// Algunos modelos envuelven el JSON aunque se les pida crudo.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = strings.TrimPrefix(s, "\uFEFF")
	s = reFenceStart.ReplaceAllString(s, "")
	s = reFenceEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// extractFirstJSONObject devuelve el primer objeto JSON balanceado del input,
// respetando strings y escapes para no confundir llaves dentro de valores.
func extractFirstJSONObject(input string) string {
	start := strings.IndexByte(input, '{')
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}

	return ""
}
