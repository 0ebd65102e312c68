package workspace

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"

	"pilothub/api/internal/revisions"
)

const SharePrefix = "#/shared/"

// EncodeShare percent-encodes the document the way browsers'
// encodeURIComponent does, then base64-encodes the result.
func EncodeShare(content string) string {
	return base64.StdEncoding.EncodeToString([]byte(encodeURIComponent(content)))
}

func DecodeShare(payload string) (string, error) {
	payload = strings.TrimSpace(payload)
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return "", fmt.Errorf("decode share payload: %w", err)
		}
	}
	content, err := url.PathUnescape(string(raw))
	if err != nil {
		return "", fmt.Errorf("decode share payload: %w", err)
	}
	return content, nil
}

const hexUpper = "0123456789ABCDEF"

func encodeURIComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreservedComponent(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexUpper[c>>4])
		b.WriteByte(hexUpper[c&15])
	}
	return b.String()
}

func unreservedComponent(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return strings.IndexByte("-_.!~*'()", c) >= 0
}

// ShareLink returns a link that reopens the current document.
func (c *Controller) ShareLink(baseURL string) (string, error) {
	content := c.Editor()
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyDocument
	}
	return strings.TrimRight(baseURL, "/") + "/" + SharePrefix + EncodeShare(content), nil
}

// LoadShared starts a new unsaved project from a share payload.
func (c *Controller) LoadShared(ctx context.Context, payload string, force bool) error {
	content, err := DecodeShare(payload)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.project.Dirty && !force {
		return ErrUnsavedChanges
	}
	c.resetLocked(SharedName)
	c.clearSnapshotLocked(ctx)
	c.editor = content
	c.addRevisionLocked(content, revisions.DescSharedLink, true)
	c.project.Dirty = true
	return nil
}
