package export

import (
	"fmt"
	"strings"
	"time"
)

// DownloadName is "<name with spaces as underscores>-YYYY-MM-DD-HHMM.<ext>"
// in local time.
func DownloadName(projectName string, now time.Time, format Format) string {
	name := strings.ReplaceAll(projectName, " ", "_")
	if strings.TrimSpace(name) == "" {
		name = "Untitled_Project"
	}
	return fmt.Sprintf("%s-%s.%s", name, now.Format("2006-01-02-1504"), format)
}

// ClipboardText prefixes the document with the snapshot header used when
// copying an app.
func ClipboardText(content string, now time.Time) (string, error) {
	code := strings.TrimSpace(content)
	if code == "" {
		return "", ErrEmptyDocument
	}
	return fmt.Sprintf("// GT Pilot Snapshot - %s\n// Files: index.html (inline styles & scripts)\n\n%s",
		now.Format("2006-01-02 15:04:05"), code), nil
}

// sanitizeFilename creates a safe filename from a title
func sanitizeFilename(title string) string {
	var result strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result.WriteRune(r)
		case r == ' ':
			result.WriteByte('-')
		case r == '-', r == '_', r == '.':
			result.WriteRune(r)
		}
	}
	out := result.String()
	if len(out) > 80 {
		out = out[:80]
	}
	if out == "" {
		out = "document"
	}
	return out
}
