package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Renderer produces a binary rendering of an HTML document.
type Renderer interface {
	Render(ctx context.Context, html string, format Format) ([]byte, error)
}

// ChromeRenderer renders with headless Chrome.
type ChromeRenderer struct {
	Timeout        time.Duration
	ViewportWidth  int64
	ViewportHeight int64
	lookPath       func(string) (string, error)
}

func NewChromeRenderer() *ChromeRenderer {
	return &ChromeRenderer{
		Timeout:        30 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 800,
		lookPath:       exec.LookPath,
	}
}

var chromeBinaries = []string{"chromium-browser", "chromium", "google-chrome", "headless-shell"}

// Available reports whether a Chrome binary is on PATH.
func (c *ChromeRenderer) Available() bool {
	for _, bin := range chromeBinaries {
		if _, err := c.lookPath(bin); err == nil {
			return true
		}
	}
	return false
}

func (c *ChromeRenderer) Render(ctx context.Context, html string, format Format) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("%w: chromium not installed", ErrRendererMissing)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// url.QueryEscape uses + for spaces which is wrong for data URLs.
	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)

	var out []byte
	actions := []chromedp.Action{
		chromedp.EmulateViewport(c.ViewportWidth, c.ViewportHeight),
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
	}
	switch format {
	case FormatPDF:
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			out, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPaperWidth(8.5).
				WithPaperHeight(11.0).
				WithMarginTop(0.4).
				WithMarginBottom(0.4).
				WithMarginLeft(0.4).
				WithMarginRight(0.4).
				WithPreferCSSPageSize(true).
				Do(ctx)
			return err
		}))
	case FormatPNG:
		// Quality 100 keeps the capture lossless PNG.
		actions = append(actions, chromedp.FullScreenshot(&out, 100))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("chrome %s render failed: %w", format, err)
	}
	return out, nil
}

// percentEncodeForDataURL encodes a string for use in a data URL.
// Unlike url.QueryEscape, spaces become %20.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			var buf [4]byte
			n := utf8.EncodeRune(buf[:], r)
			for _, b := range buf[:n] {
				fmt.Fprintf(&result, "%%%02X", b)
			}
		}
	}
	return result.String()
}
