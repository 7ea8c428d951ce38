package llm

import (
	"encoding/json"
	"log"
	"strings"
)

// ParseJSONResponse decodes a model reply into a generic map. Models
// wrap JSON in a markdown fence often enough, even when told not to,
// that a surrounding fence is stripped before decoding. Returns nil for
// empty or undecodable replies.
func ParseJSONResponse(text string) map[string]any {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &parsed); err != nil {
		log.Printf("Failed to parse LLM response as JSON: %v", err)
		return nil
	}
	return parsed
}

// stripFence removes an enclosing ``` fence, tolerating a language tag
// on the opening line. Text without a leading fence passes through.
func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	end := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			end = i
			break
		}
	}
	return strings.Join(lines[1:end], "\n")
}
