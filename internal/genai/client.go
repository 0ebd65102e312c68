// Package genai talks to the streaming text-generation backend and keeps the
// per-user conversation memory sent along with each prompt.
package genai

import (
	"context"
	"errors"
	"fmt"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

type Request struct {
	// Model overrides the client default when set.
	Model   string
	System  string
	Prompt  string
	History []Turn
}

// Stream yields text fragments in arrival order. Recv returns io.EOF after
// the last fragment.
type Stream interface {
	Recv() (string, error)
	Close() error
}

type Client interface {
	StreamText(ctx context.Context, req Request) (Stream, error)
	// GenerateText is the non-streaming call used for one-shot summaries.
	GenerateText(ctx context.Context, req Request) (string, error)
}

var (
	ErrMissingAPIKey = errors.New("genai: api key not configured")
	ErrEmptyPrompt   = errors.New("genai: prompt is empty")
)

// APIError is a structured failure reported by the backend.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Status     string `json:"status"`
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("genai: %s (%d): %s", e.Status, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("genai: status %d: %s", e.HTTPStatus, e.Message)
}
