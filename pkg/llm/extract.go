package llm

import "strings"

// ExtractCode returns the body of the first ```go fence, else the first
// untagged ``` fence, else the whole text. The result is trimmed.
func ExtractCode(raw string) string {
	if body, ok := fenced(raw, "```go"); ok {
		return strings.TrimSpace(body)
	}
	if body, ok := fenced(raw, "```"); ok {
		return strings.TrimSpace(body)
	}
	return strings.TrimSpace(raw)
}

func fenced(raw, open string) (string, bool) {
	_, rest, ok := strings.Cut(raw, open)
	if !ok {
		return "", false
	}
	body, _, _ := strings.Cut(rest, "```")
	return body, true
}
