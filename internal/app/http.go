package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pilothub/api/internal/export"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *slog.Logger
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     service.logger,
		metrics:    promhttp.Handler(),
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"store": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["store"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		s.metrics.ServeHTTP(w, r)
		return
	}

	if r.URL.Path == "/api/session" {
		s.handleSession(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/workspace" {
		writeJSON(w, http.StatusOK, s.service.Workspace(r.Context()))
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/workspace/editor" {
		var body struct {
			Content string `json:"content"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.service.ctrl.SetEditor(body.Content)
		writeJSON(w, http.StatusOK, s.service.Workspace(r.Context()))
		return
	}

	parts := splitPath(r.URL.Path)

	if len(parts) == 3 && parts[0] == "api" && parts[1] == "workspace" {
		s.handleWorkspaceAction(w, r, parts[2])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/projects" {
		items, err := s.service.ListProjects(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": items})
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "projects" {
		s.handleProjects(w, r, parts[2:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/revisions" {
		filter, err := revisions.ParseFilter(r.URL.Query().Get("filter"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		visible, selected := s.service.ctrl.History(filter, r.URL.Query().Get("q"))
		writeJSON(w, http.StatusOK, map[string]any{"revisions": visible, "selected": selected})
		return
	}

	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "revisions" {
		s.handleRevisions(w, r, parts[2:])
		return
	}

	if r.URL.Path == "/api/snapshot" || r.URL.Path == "/api/snapshot/restore" {
		s.handleSnapshot(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/generate" {
		s.handleGenerate(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/summary" {
		summary, err := s.service.ctrl.Summarize(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"summary": summary})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/memory" {
		var body struct {
			Enabled *bool `json:"enabled"`
			Clear   bool  `json:"clear"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.SetMemory(r.Context(), body.Enabled, body.Clear); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Workspace(r.Context()))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/route" {
		var body struct {
			Hash  string `json:"hash"`
			Force bool   `json:"force"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		route, err := s.service.Navigate(r.Context(), body.Hash, body.Force)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"route": route, "workspace": s.service.Workspace(r.Context())})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/share" {
		link, err := s.service.ShareLink(r.URL.Query().Get("base"))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"link": link})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/export" {
		format, err := export.ParseFormat(r.URL.Query().Get("format"))
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		result, err := s.service.Export(r.Context(), format)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		w.Header().Set("Content-Type", result.MimeType)
		_, _ = w.Write(result.Data)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/export/clipboard" {
		text, err := s.service.ClipboardText()
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"text": text})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/deploy" {
		deployment, err := s.service.Deploy(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, deployment)
		return
	}

	if r.Method == http.MethodGet && len(parts) >= 2 && parts[0] == "api" && parts[1] == "history" {
		s.handleHistory(w, r, parts[2:])
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := search.Query{
			Text:    strings.TrimSpace(r.URL.Query().Get("q")),
			Project: strings.TrimSpace(r.URL.Query().Get("project")),
			Source:  strings.TrimSpace(r.URL.Query().Get("source")),
		}
		var ok bool
		if q.Limit, ok = queryInt(w, r, "limit", 20); !ok {
			return
		}
		if q.Offset, ok = queryInt(w, r, "offset", 0); !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(q))
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		session, err := s.service.SessionFromToken(token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userName": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userName":      session.UserName,
			"userId":        session.UserID,
			"provider":      session.Provider,
		})
	case http.MethodPost:
		var body struct {
			Provider string `json:"provider"`
			UserID   string `json:"userId"`
			Name     string `json:"name"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if strings.TrimSpace(body.Provider) == "" || strings.TrimSpace(body.UserID) == "" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "provider and userId are required", nil)
			return
		}
		session, err := s.service.StartSession(r.Context(), body.Provider, body.UserID, body.Name)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":     session.Token,
			"userId":    session.UserID,
			"userName":  session.UserName,
			"provider":  session.Provider,
			"expiresAt": session.ExpiresAt.Unix(),
		})
	case http.MethodDelete:
		if err := s.service.EndSession(r.Context()); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleWorkspaceAction(w http.ResponseWriter, r *http.Request, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	var body struct {
		Name  string `json:"name"`
		Force bool   `json:"force"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	ctrl := s.service.ctrl
	var err error
	response := map[string]any{}
	switch action {
	case "new":
		err = ctrl.NewProject(r.Context(), body.Force)
	case "save":
		response["result"], err = ctrl.Save(r.Context())
	case "save-as":
		response["result"], err = ctrl.SaveAs(r.Context(), body.Name)
	case "unload":
		response["warnUnsaved"], err = ctrl.Unload(r.Context())
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	response["workspace"] = s.service.Workspace(r.Context())
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleProjects(w http.ResponseWriter, r *http.Request, parts []string) {
	name := parts[0]
	if strings.TrimSpace(name) == "" {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "project name is required", nil)
		return
	}

	if len(parts) == 1 && r.Method == http.MethodDelete {
		result, err := s.service.DeleteProject(r.Context(), name)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": result})
		return
	}

	if len(parts) == 2 && parts[1] == "open" && r.Method == http.MethodPost {
		opened, err := s.service.ctrl.Open(r.Context(), name)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"name":      opened.Name,
			"timestamp": opened.Timestamp,
			"migrated":  opened.Migrated,
			"workspace": s.service.Workspace(r.Context()),
		})
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleRevisions(w http.ResponseWriter, r *http.Request, parts []string) {
	id := parts[0]
	ctrl := s.service.ctrl

	if len(parts) == 1 && r.Method == http.MethodDelete {
		if err := ctrl.DeleteRevision(id); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Workspace(r.Context()))
		return
	}

	if len(parts) == 2 && r.Method == http.MethodPost {
		switch parts[1] {
		case "restore":
			rev, err := ctrl.RestoreRevision(id)
			if err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"revision": rev, "workspace": s.service.Workspace(r.Context())})
			return
		case "select":
			if err := ctrl.SelectRevision(id); err != nil {
				writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctrl := s.service.ctrl
	if r.URL.Path == "/api/snapshot/restore" {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err := ctrl.RestoreSnapshot(r.Context()); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Workspace(r.Context()))
		return
	}

	switch r.Method {
	case http.MethodGet:
		snap, ok, err := ctrl.PendingSnapshot(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"snapshot": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	case http.MethodPost:
		snap, err := ctrl.SaveSnapshot(r.Context())
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"snapshot": snap})
	case http.MethodDelete:
		if err := ctrl.DismissSnapshot(r.Context()); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

// handleGenerate streams prose as server-sent "prose" events and finishes
// with a "result" or "error" event. Failures before the first byte are
// plain JSON errors.
func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	stream := &sseWriter{w: w}
	result, err := s.service.ctrl.Generate(r.Context(), body.Prompt, func(fragment string) {
		stream.send("prose", fragment)
	})
	if err != nil {
		status, code, message, details := mapError(err)
		if !stream.started {
			writeError(w, status, code, message, details)
			return
		}
		stream.send("error", map[string]any{"code": code, "error": message})
		return
	}
	stream.send("result", map[string]any{"result": result, "workspace": s.service.Workspace(r.Context())})
}

type sseWriter struct {
	w       http.ResponseWriter
	started bool
}

func (s *sseWriter) send(event string, payload any) {
	if !s.started {
		header := s.w.Header()
		header.Set("Content-Type", "text/event-stream")
		header.Set("Connection", "keep-alive")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	if flusher, ok := s.w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, parts []string) {
	project := r.URL.Query().Get("project")
	if len(parts) == 1 {
		content, info, err := s.service.HistoryAt(project, parts[0])
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"commit": info, "content": content})
		return
	}
	if len(parts) > 1 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	items, err := s.service.History(project, limit)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": items})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func queryInt(w http.ResponseWriter, r *http.Request, key string, fallback int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, true
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", key+" must be an integer", nil)
		return 0, false
	}
	return parsed, true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
