package reconcile

import "strings"

var speechReplacer = strings.NewReplacer("✅", "OK.", "*", "", "#", "", "`", "")

// SpeechText returns prose suitable for a text-to-speech summary.
func SpeechText(prose string) string {
	return strings.TrimSpace(speechReplacer.Replace(prose))
}
