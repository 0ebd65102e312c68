package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"pilothub/api/internal/genai"
	"pilothub/api/internal/metrics"
	"pilothub/api/internal/reconcile"
	"pilothub/api/internal/revisions"
)

// GenerateResult describes one finished generation.
type GenerateResult struct {
	Prose       string              `json:"prose"`
	Speech      string              `json:"speech"`
	CodeApplied bool                `json:"codeApplied"`
	Revision    *revisions.Revision `json:"revision,omitempty"`
}

// Generate streams a model response for prompt. Prose is passed to sink as
// it becomes safe to show; the fenced document replaces the editor once the
// stream completes. The editor is snapshotted afterwards whatever the
// outcome.
func (c *Controller) Generate(ctx context.Context, prompt string, sink func(string)) (GenerateResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return GenerateResult{}, ErrEmptyPrompt
	}
	if sink == nil {
		sink = func(string) {}
	}

	c.mu.Lock()
	if c.ai == nil {
		c.mu.Unlock()
		return GenerateResult{}, ErrAIUnavailable
	}
	if c.busy {
		c.mu.Unlock()
		return GenerateResult{}, ErrBusy
	}
	c.busy = true
	seed := c.editor
	memory := c.memory
	var history []genai.Turn
	memoryOn := false
	if memory != nil {
		history = memory.History()
		memoryOn = memory.Enabled()
	}
	c.mu.Unlock()

	started := c.now()
	rec := reconcile.New(seed)
	streamErr := c.stream(ctx, genai.Request{
		Model:   c.model,
		System:  genai.SystemInstruction(memoryOn),
		Prompt:  prompt,
		History: history,
	}, rec, sink)
	if tail := rec.Flush(); tail != "" {
		sink(tail)
	}
	out := rec.Result()
	if streamErr != nil {
		sink("\n\nAn error occurred: " + errorMessage(streamErr))
	}

	// The request context may already be cancelled; finalization must still
	// reach the store.
	finalCtx := context.WithoutCancel(ctx)
	result := GenerateResult{Prose: out.Prose, Speech: reconcile.SpeechText(out.Prose)}

	c.mu.Lock()
	if streamErr == nil && out.HasCode() {
		c.editor = out.Code
		result.CodeApplied = true
		if c.addRevisionLocked(out.Code, revisions.AIDescription(prompt), true) {
			if latest, ok := c.project.Ledger.Latest(); ok {
				result.Revision = &latest
			}
		}
	}
	c.busy = false
	if strings.TrimSpace(c.editor) != "" {
		if _, err := c.snaps.Save(finalCtx, c.editor); err != nil {
			c.logger.Warn("snapshot after generation failed", "error", err)
		}
	}
	c.mu.Unlock()

	status := "ok"
	if streamErr != nil {
		status = "error"
		if errors.Is(streamErr, context.Canceled) {
			status = "cancelled"
		}
	} else if memory != nil {
		if err := memory.Record(finalCtx, prompt, out.Prose); err != nil {
			c.logger.Warn("record memory failed", "error", err)
		}
	}
	elapsed := c.now().Sub(started)
	metrics.RecordGeneration(status, elapsed.Seconds())
	c.logger.Info("generation finished",
		"status", status,
		"code_applied", result.CodeApplied,
		"prose_chars", len(out.Prose),
		"duration_ms", elapsed.Milliseconds(),
	)

	if streamErr != nil {
		return result, fmt.Errorf("generate: %w", streamErr)
	}
	return result, nil
}

func (c *Controller) stream(ctx context.Context, req genai.Request, rec *reconcile.Reconciler, sink func(string)) error {
	stream, err := c.ai.StreamText(ctx, req)
	if err != nil {
		return err
	}
	defer stream.Close()
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		metrics.RecordStreamFragment()
		if prose := rec.Feed(fragment); prose != "" {
			sink(prose)
		}
	}
}

// Summarize asks the model for a one-shot description of the document.
func (c *Controller) Summarize(ctx context.Context) (string, error) {
	c.mu.Lock()
	content := c.editor
	ai := c.ai
	c.mu.Unlock()
	if ai == nil {
		return "", ErrAIUnavailable
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyDocument
	}
	req := genai.SummaryRequest(content)
	req.Model = c.model
	summary, err := ai.GenerateText(ctx, req)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	return strings.TrimSpace(summary), nil
}

func errorMessage(err error) string {
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}
