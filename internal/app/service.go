package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"pilothub/api/internal/auth"
	"pilothub/api/internal/config"
	"pilothub/api/internal/deploy"
	"pilothub/api/internal/export"
	"pilothub/api/internal/genai"
	"pilothub/api/internal/gitrepo"
	"pilothub/api/internal/kv"
	"pilothub/api/internal/notify"
	"pilothub/api/internal/projects"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/search"
	"pilothub/api/internal/snapshot"
	"pilothub/api/internal/workspace"
)

// Deps are the collaborators wired by the entrypoint. Store is required;
// Git, Search, Exporter and Publisher are optional.
type Deps struct {
	Config    config.Config
	Store     kv.Store
	AI        genai.Client
	Git       *gitrepo.Service
	Search    *search.Service
	Exporter  *export.Service
	Publisher *deploy.Publisher
	Notifier  notify.Notifier
	Logger    *slog.Logger
}

type Session struct {
	Token     string
	UserID    string
	UserName  string
	Provider  string
	ExpiresAt time.Time
}

// WorkspacePayload is the state a client renders after every action. Events
// holds the notifications raised since the previous payload.
type WorkspacePayload struct {
	workspace.View
	Snapshot *snapshot.Snapshot `json:"snapshot,omitempty"`
	Events   []notify.Event     `json:"events"`
}

type Service struct {
	cfg       config.Config
	store     kv.Store
	repo      *projects.Repository
	ctrl      *workspace.Controller
	feed      *notify.Feed
	git       *gitrepo.Service
	search    *search.Service
	exporter  *export.Service
	publisher *deploy.Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(ctx context.Context, deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, errors.New("app: store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	memory, err := genai.LoadMemory(ctx, deps.Store, genai.Identity{})
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}

	s := &Service{
		cfg:       deps.Config,
		store:     deps.Store,
		repo:      projects.New(deps.Store, logger),
		feed:      notify.NewFeed(50),
		git:       deps.Git,
		search:    deps.Search,
		exporter:  deps.Exporter,
		publisher: deps.Publisher,
		logger:    logger,
		now:       time.Now,
	}
	if s.search == nil {
		s.search = search.NewService(nil, nil, logger)
	}
	if s.exporter == nil {
		s.exporter = export.NewService(nil, 1)
	}

	notifiers := notify.Multi{s.feed, notify.NewLog(logger)}
	if deps.Notifier != nil {
		notifiers = append(notifiers, deps.Notifier)
	}
	hooks := []workspace.SaveHook{s.indexProject}
	if s.git != nil {
		hooks = append(hooks, s.mirrorProject)
	}
	s.ctrl = workspace.New(workspace.Options{
		Repository: s.repo,
		Snapshots:  snapshot.New(deps.Store),
		AI:         deps.AI,
		Memory:     memory,
		Model:      deps.Config.GeminiModel,
		Notifier:   notifiers,
		Logger:     logger,
		AfterSave:  hooks,
	})
	return s, nil
}

// Bootstrap rebuilds the search index from every stored project. Projects
// that fail to open are skipped.
func (s *Service) Bootstrap(ctx context.Context) error {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	ledgers := make(map[string]revisions.Ledger, len(entries))
	for _, entry := range entries {
		opened, err := s.repo.Open(ctx, entry.Name)
		if err != nil {
			s.logger.Warn("bootstrap: skip project", "project", entry.Name, "error", err)
			continue
		}
		ledgers[opened.Name] = opened.Data
	}
	s.search.ReindexAll(ctx, ledgers)
	s.logger.Info("bootstrap complete", "projects", len(ledgers))
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	if pinger, ok := s.store.(kv.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (s *Service) Controller() *workspace.Controller {
	return s.ctrl
}

func (s *Service) Workspace(ctx context.Context) WorkspacePayload {
	payload := WorkspacePayload{View: s.ctrl.View()}
	snap, ok, err := s.ctrl.PendingSnapshot(ctx)
	switch {
	case err != nil:
		s.logger.Warn("read snapshot failed", "error", err)
	case ok:
		payload.Snapshot = &snap
	}
	payload.Events = s.feed.Drain()
	return payload
}

// StartSession signs a user in and switches conversation memory to theirs.
// The previous user's memory is backed up first.
func (s *Service) StartSession(ctx context.Context, provider, userID, name string) (Session, error) {
	token, claims, err := auth.NewSession([]byte(s.cfg.TokenSecret), provider, userID, name, s.tokenTTL())
	if err != nil {
		return Session{}, err
	}
	if err := s.switchMemory(ctx, genai.Identity{Provider: claims.Provider, ID: claims.Sub}); err != nil {
		return Session{}, err
	}
	s.logger.Info("session started", "provider", claims.Provider, "user_id", claims.Sub)
	return sessionFromClaims(token, claims), nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	return sessionFromClaims(token, claims), nil
}

// EndSession returns to the anonymous memory log.
func (s *Service) EndSession(ctx context.Context) error {
	return s.switchMemory(ctx, genai.Identity{})
}

func (s *Service) switchMemory(ctx context.Context, id genai.Identity) error {
	if current := s.ctrl.Memory(); current != nil {
		if current.Key() == genai.MemoryKey(id) {
			return nil
		}
		if err := current.Backup(ctx); err != nil {
			s.logger.Warn("memory backup failed", "key", current.Key(), "error", err)
		}
	}
	memory, err := genai.LoadMemory(ctx, s.store, id)
	if err != nil {
		return fmt.Errorf("load memory: %w", err)
	}
	s.ctrl.SetMemory(memory)
	return nil
}

// SetMemory applies the memory toggle and optional wipe.
func (s *Service) SetMemory(ctx context.Context, enabled *bool, clear bool) error {
	memory := s.ctrl.Memory()
	if memory == nil {
		return workspace.ErrAIUnavailable
	}
	if enabled != nil {
		if err := memory.SetEnabled(ctx, *enabled); err != nil {
			return err
		}
	}
	if clear {
		if err := memory.Clear(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) ListProjects(ctx context.Context) ([]projects.Entry, error) {
	return s.repo.List(ctx)
}

// DeleteProject removes a stored project along with its mirror repository
// and search records.
func (s *Service) DeleteProject(ctx context.Context, name string) (projects.Result, error) {
	result, err := s.repo.Delete(ctx, name)
	if err != nil {
		return result, err
	}
	if s.git != nil {
		if err := s.git.RemoveProject(name); err != nil {
			s.logger.Warn("remove mirror repo failed", "project", name, "error", err)
		}
	}
	s.search.DeleteProject(name)
	return result, nil
}

func (s *Service) Export(ctx context.Context, format export.Format) (*export.Result, error) {
	name, _ := s.ctrl.Ledger()
	return s.exporter.Export(ctx, export.Request{
		ProjectName: name,
		Content:     s.ctrl.Editor(),
		Format:      format,
	})
}

func (s *Service) ClipboardText() (string, error) {
	return export.ClipboardText(s.ctrl.Editor(), s.now())
}

func (s *Service) Deploy(ctx context.Context) (deploy.Deployment, error) {
	name, _ := s.ctrl.Ledger()
	deployment, err := s.publisher.Publish(ctx, name, s.ctrl.Editor())
	if err != nil {
		return deploy.Deployment{}, err
	}
	s.logger.Info("project deployed", "project", name, "slug", deployment.Slug, "version", deployment.Version)
	return deployment, nil
}

// ShareLink builds a share link against baseURL, falling back to the
// configured public URL.
func (s *Service) ShareLink(baseURL string) (string, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = s.cfg.PublicBaseURL
	}
	return s.ctrl.ShareLink(baseURL)
}

// Navigate resolves a client route. Shared links load their document.
func (s *Service) Navigate(ctx context.Context, hash string, force bool) (workspace.Route, error) {
	route := workspace.ResolveRoute(hash)
	if route.Kind == workspace.RouteShared {
		if err := s.ctrl.LoadShared(ctx, route.Payload, force); err != nil {
			return route, err
		}
	}
	return route, nil
}

// History lists mirror commits of project, defaulting to the open project.
func (s *Service) History(project string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.git == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Git history is not configured", nil)
	}
	return s.git.History(s.projectOrCurrent(project), limit)
}

func (s *Service) HistoryAt(project, hash string) (string, gitrepo.CommitInfo, error) {
	if s.git == nil {
		return "", gitrepo.CommitInfo{}, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "Git history is not configured", nil)
	}
	return s.git.ContentAt(s.projectOrCurrent(project), hash)
}

func (s *Service) Search(q search.Query) search.Response {
	return s.search.Search(q)
}

func (s *Service) projectOrCurrent(project string) string {
	if project = strings.TrimSpace(project); project != "" {
		return project
	}
	name, _ := s.ctrl.Ledger()
	return name
}

func (s *Service) indexProject(ctx context.Context, name string, ledger revisions.Ledger) error {
	return s.search.IndexProject(ctx, name, ledger)
}

func (s *Service) mirrorProject(ctx context.Context, name string, ledger revisions.Ledger) error {
	created, err := s.git.MirrorProject(ctx, name, ledger)
	if err != nil {
		return fmt.Errorf("mirror project: %w", err)
	}
	s.logger.Debug("project mirrored", "project", name, "commits", created)
	return nil
}

func (s *Service) tokenTTL() time.Duration {
	if s.cfg.TokenTTL <= 0 {
		return 30 * 24 * time.Hour
	}
	return s.cfg.TokenTTL
}

func sessionFromClaims(token string, claims auth.Claims) Session {
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		Provider:  claims.Provider,
		ExpiresAt: time.Unix(claims.Exp, 0).UTC(),
	}
}
