package revisions

import "strings"

const aiPrefix = "AI: "

// AIDescription labels a revision produced by a generation. Prompts longer
// than 50 runes are cut to 47 runes plus "...".
func AIDescription(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > 50 {
		return aiPrefix + string(runes[:47]) + "..."
	}
	return aiPrefix + prompt
}

// IsAI reports whether a description marks an AI revision.
func IsAI(description string) bool {
	return strings.HasPrefix(strings.ToLower(description), "ai:")
}

// Source is the metrics label for a description.
func Source(description string) string {
	if IsAI(description) {
		return "ai"
	}
	return "manual"
}
