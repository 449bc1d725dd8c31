package llm

import (
	"fmt"
	"strings"
)

// InstructionFunc returns the current system instruction. It is called on
// every request so a reloaded instruction takes effect immediately.
type InstructionFunc func() string

// Static wraps a fixed instruction.
func Static(text string) InstructionFunc {
	return func() string { return text }
}

// UserContent is the user turn sent to every optimizer backend.
func UserContent(prompt, style string) string {
	prompt = strings.TrimSpace(prompt)
	style = strings.TrimSpace(style)
	if style == "" {
		return fmt.Sprintf("Description: %s", prompt)
	}
	return fmt.Sprintf("Description: %s\nStyle: %s", prompt, style)
}

// CleanResponse strips wrapping quotes and whitespace models tend to add.
func CleanResponse(text string) string {
	text = strings.TrimSpace(text)
	text = strings.Trim(text, "\"'`")
	return strings.TrimSpace(text)
}
