// Package export turns the editor document into downloadable artifacts: the
// raw HTML file, a PDF print and a PNG screenshot.
package export

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatPNG  Format = "png"
)

func ParseFormat(value string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(value))) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	case FormatPNG:
		return FormatPNG, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, value)
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatPDF:
		return "application/pdf"
	case FormatPNG:
		return "image/png"
	default:
		return "text/html; charset=utf-8"
	}
}

// Request contains parameters for an export operation
type Request struct {
	ProjectName string
	Content     string
	Format      Format
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrEmptyDocument indicates there is nothing to export.
	ErrEmptyDocument = errors.New("export document empty")
	// ErrUnsupportedFormat indicates an unknown export format.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrRendererMissing indicates headless Chrome is not available.
	ErrRendererMissing = errors.New("export renderer missing")
)
