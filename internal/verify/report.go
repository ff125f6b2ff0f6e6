package verify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// PreviewLimit is the number of characters of tool output shown before
// truncation.
const PreviewLimit = 300

// TruncationMarker is appended to previews cut at PreviewLimit.
const TruncationMarker = "..."

// Preview returns text unchanged when it has at most PreviewLimit
// characters, otherwise the first PreviewLimit followed by TruncationMarker.
func Preview(text string) string {
	cut := previewCut(text)
	if cut == len(text) {
		return text
	}
	return text[:cut] + TruncationMarker
}

// previewCut returns the byte offset just past the PreviewLimit'th
// character, or len(text) when no truncation is needed.
func previewCut(text string) int {
	if utf8.RuneCountInString(text) <= PreviewLimit {
		return len(text)
	}
	n := 0
	for i := range text {
		if n == PreviewLimit {
			return i
		}
		n++
	}
	return len(text)
}

// ClientConfig renders the mcpServers block an MCP client needs to reach
// the verified deployment.
func ClientConfig(serverName, url string) (string, error) {
	cfg := map[string]any{
		"mcpServers": map[string]any{
			serverName: map[string]any{
				"url": url,
			},
		},
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to marshal client config: %w", err)
	}
	return buf.String(), nil
}
