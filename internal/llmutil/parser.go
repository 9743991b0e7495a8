// internal/llmutil/parser.go
package llmutil

import (
	"fmt"
	"regexp"
	"strings"

	json "github.com/json-iterator/go"
)

// fencedJSONRegex captures the body of a ```json ... ``` (or bare ```) block.
// \x60 is a backtick; raw strings cannot contain one.
var fencedJSONRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60")

// ParseJSONResponse decodes a model response into T. It tolerates markdown
// fences and conversational text around a single JSON object or array.
func ParseJSONResponse[T any](response string) (*T, error) {
	candidate := ExtractJSON(response)

	var result T
	if err := json.Unmarshal([]byte(candidate), &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model JSON response: %w. Extracted JSON (truncated): %s", err, Truncate(candidate, 500))
	}
	return &result, nil
}

// ExtractJSON returns the most plausible JSON payload inside response.
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)

	if m := fencedJSONRegex.FindStringSubmatch(response); len(m) > 1 {
		response = strings.TrimSpace(m[1])
	}
	if strings.HasPrefix(response, "{") || strings.HasPrefix(response, "[") {
		return response
	}

	// Prefer an object; fall back to an array.
	for _, pair := range [][2]string{{"{", "}"}, {"[", "]"}} {
		first := strings.Index(response, pair[0])
		last := strings.LastIndex(response, pair[1])
		if first != -1 && last > first {
			return response[first : last+1]
		}
	}
	return response
}

// Truncate shortens s to at most maxLen characters, appending "..." when cut.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if clipped := Clip(s, maxLen); len(clipped) < len(s) {
		return clipped + "..."
	}
	return s
}

// Clip returns the first n characters of s. A multi-byte rune is never split.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
