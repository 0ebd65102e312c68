package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

// Service provides document export functionality
type Service struct {
	renderer Renderer
	slots    *semaphore.Weighted
	now      func() time.Time
}

// NewService creates an export service. At most maxRenders headless
// renders run at once; callers beyond that wait or give up with ctx.
func NewService(renderer Renderer, maxRenders int64) *Service {
	if maxRenders <= 0 {
		maxRenders = 2
	}
	return &Service{
		renderer: renderer,
		slots:    semaphore.NewWeighted(maxRenders),
		now:      time.Now,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, ErrEmptyDocument
	}
	format := req.Format
	if format == "" {
		format = FormatHTML
	}
	filename := sanitizeFilename(DownloadName(req.ProjectName, s.now(), format))

	switch format {
	case FormatHTML:
		return &Result{Data: []byte(content), Filename: filename, MimeType: format.MimeType()}, nil
	case FormatPDF, FormatPNG:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if s.renderer == nil {
		return nil, fmt.Errorf("%w: no renderer configured", ErrRendererMissing)
	}
	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("wait for render slot: %w", err)
	}
	defer s.slots.Release(1)

	data, err := s.renderer.Render(ctx, content, format)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Filename: filename, MimeType: format.MimeType()}, nil
}
