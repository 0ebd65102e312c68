package app

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"pilothub/api/internal/genai"
	"pilothub/api/internal/projects"
	"pilothub/api/internal/workspace"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"domain", domainError(http.StatusTeapot, "TEAPOT", "short and stout", nil), http.StatusTeapot, "TEAPOT"},
		{"busy", workspace.ErrBusy, http.StatusConflict, "BUSY"},
		{"wrapped not found", fmt.Errorf("open: %w", projects.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"too large", fmt.Errorf("save: %w", projects.ErrTooLarge), http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{"api error", fmt.Errorf("generate: %w", &genai.APIError{Message: "quota"}), http.StatusBadGateway, "AI_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code, _, _ := mapError(tt.err)
			if status != tt.status || code != tt.code {
				t.Errorf("mapError(%v) = %d %s, want %d %s", tt.err, status, code, tt.status, tt.code)
			}
		})
	}
}
