package app

import (
	"errors"
	"fmt"
	"net/http"

	"pilothub/api/internal/auth"
	"pilothub/api/internal/deploy"
	"pilothub/api/internal/export"
	"pilothub/api/internal/genai"
	"pilothub/api/internal/gitrepo"
	"pilothub/api/internal/kv"
	"pilothub/api/internal/projects"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/snapshot"
	"pilothub/api/internal/workspace"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{workspace.ErrBusy, http.StatusConflict, "BUSY", "A generation is in progress"},
	{workspace.ErrUnsavedChanges, http.StatusConflict, "UNSAVED_CHANGES", "Unsaved changes would be discarded"},
	{workspace.ErrEmptyPrompt, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "prompt is required"},
	{workspace.ErrNameRequired, http.StatusUnprocessableEntity, "NAME_REQUIRED", "Choose a project name with Save As"},
	{workspace.ErrEmptyDocument, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", "The editor is empty"},
	{export.ErrEmptyDocument, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", "The editor is empty"},
	{deploy.ErrEmptyDocument, http.StatusUnprocessableEntity, "EMPTY_DOCUMENT", "The editor is empty"},
	{workspace.ErrNoSnapshot, http.StatusNotFound, "NO_SNAPSHOT", "No snapshot to restore"},
	{workspace.ErrAIUnavailable, http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI backend is not configured"},
	{genai.ErrMissingAPIKey, http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI backend is not configured"},
	{revisions.ErrSoleRevision, http.StatusConflict, "SOLE_REVISION", "Cannot delete the only revision"},
	{revisions.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Revision not found"},
	{projects.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Project not found"},
	{projects.ErrTooLarge, http.StatusRequestEntityTooLarge, "TOO_LARGE", "Project size exceeds 5MB limit"},
	{projects.ErrCorrupt, http.StatusUnprocessableEntity, "CORRUPT", "Project data is corrupt"},
	{snapshot.ErrCorrupt, http.StatusUnprocessableEntity, "CORRUPT", "Snapshot data is corrupt"},
	{gitrepo.ErrNoRepository, http.StatusNotFound, "NOT_FOUND", "Project has no history yet"},
	{export.ErrUnsupportedFormat, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be 'html', 'pdf' or 'png'"},
	{export.ErrRendererMissing, http.StatusServiceUnavailable, "RENDERER_UNAVAILABLE", "Headless Chrome is not available"},
	{deploy.ErrNotConfigured, http.StatusServiceUnavailable, "DEPLOY_UNAVAILABLE", "Deploy storage is not configured"},
	{kv.ErrNotFound, http.StatusNotFound, "NOT_FOUND", "Not found"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"},
	{auth.ErrExpiredToken, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized"},
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code, m.message, nil
		}
	}
	var apiErr *genai.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, "AI_ERROR", apiErr.Message, map[string]any{"status": apiErr.Status}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
