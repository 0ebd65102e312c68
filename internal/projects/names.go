package projects

import "strings"

const DefaultName = "Untitled"

// SanitizeName drops a trailing ".ext", keeps only ASCII letters, digits,
// space, '-' and '_', and trims surrounding spaces.
func SanitizeName(name string) string {
	if dot := strings.LastIndex(name, "."); dot >= 0 {
		name = name[:dot]
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	if cleaned == "" {
		return DefaultName
	}
	return cleaned
}
