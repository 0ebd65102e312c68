// Package workspace owns the single open project: its revision ledger, the
// editor buffer, dirty tracking and crash-recovery snapshot lifecycle.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"pilothub/api/internal/genai"
	"pilothub/api/internal/metrics"
	"pilothub/api/internal/notify"
	"pilothub/api/internal/projects"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/snapshot"
	"pilothub/api/internal/util"
)

const (
	UntitledName = "Untitled Project"
	RestoredName = "Restored Snapshot"
	SharedName   = "Shared Project"
)

var (
	ErrBusy           = errors.New("a generation is in progress")
	ErrEmptyPrompt    = errors.New("prompt is empty")
	ErrUnsavedChanges = errors.New("unsaved changes would be discarded")
	ErrNameRequired   = errors.New("project needs a name before saving")
	ErrEmptyDocument  = errors.New("document is empty")
	ErrNoSnapshot     = errors.New("no snapshot to restore")
	ErrAIUnavailable  = errors.New("ai backend not configured")
)

type Repository interface {
	SaveLedger(ctx context.Context, name string, ledger revisions.Ledger) (projects.Result, error)
	Open(ctx context.Context, name string) (projects.Opened, error)
}

type SnapshotStore interface {
	Save(ctx context.Context, content string) (snapshot.Snapshot, error)
	Peek(ctx context.Context) (snapshot.Snapshot, bool, error)
	Clear(ctx context.Context) error
}

// SaveHook runs after a project is durably saved. Failures are logged only.
type SaveHook func(ctx context.Context, name string, ledger revisions.Ledger) error

type Options struct {
	Repository Repository
	Snapshots  SnapshotStore
	AI         genai.Client
	Memory     *genai.Memory
	Model      string
	Notifier   notify.Notifier
	Logger     *slog.Logger
	AfterSave  []SaveHook
}

type Project struct {
	Name   string
	Dirty  bool
	Ledger revisions.Ledger
}

// View is a consistent copy of the controller state.
type View struct {
	Name          string               `json:"name"`
	Dirty         bool                 `json:"dirty"`
	Busy          bool                 `json:"busy"`
	Editor        string               `json:"editor"`
	Revisions     []revisions.Revision `json:"revisions"`
	MemoryEnabled bool                 `json:"memoryEnabled"`
}

// Controller serializes every state mutation behind one mutex. Only the
// streaming phase of Generate runs without it; the busy flag keeps other
// project-level operations out meanwhile.
type Controller struct {
	mu        sync.Mutex
	repo      Repository
	snaps     SnapshotStore
	ai        genai.Client
	memory    *genai.Memory
	model     string
	notifier  notify.Notifier
	logger    *slog.Logger
	afterSave []SaveHook
	now       func() time.Time
	newID     func() string

	project Project
	editor  string
	busy    bool
	browser *revisions.Browser
}

func New(opts Options) *Controller {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Multi{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		repo:      opts.Repository,
		snaps:     opts.Snapshots,
		ai:        opts.AI,
		memory:    opts.Memory,
		model:     opts.Model,
		notifier:  notifier,
		logger:    logger,
		afterSave: opts.AfterSave,
		now:       time.Now,
		newID:     func() string { return util.NewID("") },
		project:   Project{Name: UntitledName},
		browser:   revisions.NewBrowser(nil),
	}
}

func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := View{
		Name:      c.project.Name,
		Dirty:     c.project.Dirty,
		Busy:      c.busy,
		Editor:    c.editor,
		Revisions: c.project.Ledger.Clone().Revisions,
	}
	if view.Revisions == nil {
		view.Revisions = []revisions.Revision{}
	}
	if c.memory != nil {
		view.MemoryEnabled = c.memory.Enabled()
	}
	return view
}

func (c *Controller) Editor() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor
}

// Ledger returns the project name and a copy of its ledger.
func (c *Controller) Ledger() (string, revisions.Ledger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project.Name, c.project.Ledger.Clone()
}

// SetEditor records a manual edit.
func (c *Controller) SetEditor(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if content == c.editor {
		return
	}
	c.editor = content
	c.project.Dirty = true
}

// NewProject resets to an empty untitled project. A dirty project is only
// discarded when force is set.
func (c *Controller) NewProject(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	if c.project.Dirty && !force {
		return ErrUnsavedChanges
	}
	c.resetLocked(UntitledName)
	c.clearSnapshotLocked(ctx)
	c.notifier.Notify(notify.LevelInfo, "New project started.")
	return nil
}

// Open replaces the current project with a stored one.
func (c *Controller) Open(ctx context.Context, name string) (projects.Opened, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return projects.Opened{}, ErrBusy
	}
	opened, err := c.repo.Open(ctx, name)
	if err != nil {
		if errors.Is(err, projects.ErrNotFound) {
			c.notifier.Notify(notify.LevelError, "Project not found.")
		}
		return projects.Opened{}, err
	}
	c.project = Project{Name: opened.Name, Ledger: opened.Data.Clone()}
	c.editor = ""
	if latest, ok := c.project.Ledger.Latest(); ok {
		c.editor = latest.Content
	}
	c.ledgerChangedLocked()
	c.clearSnapshotLocked(ctx)
	c.notifier.Notify(notify.LevelSuccess, fmt.Sprintf("Project '%s' loaded.", opened.Name))
	return opened, nil
}

// Save persists under the current name. Placeholder names must go through
// SaveAs.
func (c *Controller) Save(ctx context.Context) (projects.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return projects.Result{}, ErrBusy
	}
	if c.project.Name == UntitledName || c.project.Name == RestoredName {
		return projects.Result{}, ErrNameRequired
	}
	return c.performSaveLocked(ctx, c.project.Name)
}

func (c *Controller) SaveAs(ctx context.Context, name string) (projects.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return projects.Result{}, ErrBusy
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = UntitledName
	}
	return c.performSaveLocked(ctx, name)
}

func (c *Controller) performSaveLocked(ctx context.Context, name string) (projects.Result, error) {
	if strings.TrimSpace(c.editor) != "" {
		latest, ok := c.project.Ledger.Latest()
		if !ok || latest.Content != c.editor {
			desc := revisions.DescManualEdit
			if !ok {
				desc = revisions.DescInitialCreation
			}
			c.addRevisionLocked(c.editor, desc, false)
		}
	}

	result, err := c.repo.SaveLedger(ctx, name, c.project.Ledger)
	if err != nil {
		if errors.Is(err, projects.ErrTooLarge) {
			metrics.RecordProjectSave("rejected")
		} else {
			metrics.RecordProjectSave("error")
		}
		message := result.Message
		if message == "" {
			message = "Failed to save project."
		}
		c.notifier.Notify(notify.LevelError, message)
		return result, err
	}
	metrics.RecordProjectSave("ok")

	c.project.Name = result.FinalName
	c.project.Dirty = false
	c.clearSnapshotLocked(ctx)
	c.notifier.Notify(notify.LevelSuccess, result.Message)

	ledger := c.project.Ledger.Clone()
	for _, hook := range c.afterSave {
		if err := hook(ctx, result.FinalName, ledger); err != nil {
			c.logger.Warn("after-save hook failed", "project", result.FinalName, "error", err)
		}
	}
	return result, nil
}

// AddRevision appends content unless it equals the latest revision.
func (c *Controller) AddRevision(content, description string, markDirty bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addRevisionLocked(content, description, markDirty)
}

func (c *Controller) addRevisionLocked(content, description string, markDirty bool) bool {
	rev := revisions.Revision{
		ID:          c.newID(),
		Timestamp:   revisions.FormatTimestamp(c.now()),
		Content:     content,
		Description: description,
	}
	if !c.project.Ledger.Append(rev) {
		return false
	}
	if markDirty {
		c.project.Dirty = true
	}
	c.ledgerChangedLocked()
	metrics.RecordRevision(revisions.Source(description))
	c.notifier.Notify(notify.LevelInfo, "Snapshot created: "+truncateRunes(description, 40))
	return true
}

// DeleteRevision removes a revision. If the editor showed the removed
// content it falls back to the new latest revision.
func (c *Controller) DeleteRevision(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed, err := c.project.Ledger.Remove(id)
	switch {
	case errors.Is(err, revisions.ErrSoleRevision):
		c.notifier.Notify(notify.LevelError, "Cannot delete the only revision.")
		return err
	case err != nil:
		c.notifier.Notify(notify.LevelError, "Error: Revision not found.")
		return err
	}
	if removed.Content == c.editor {
		if latest, ok := c.project.Ledger.Latest(); ok {
			c.editor = latest.Content
		}
	}
	c.project.Dirty = true
	c.ledgerChangedLocked()
	c.notifier.Notify(notify.LevelSuccess, "Revision deleted.")
	return nil
}

// RestoreRevision loads a revision into the editor. The project is dirty
// unless the restored content is the latest revision.
func (c *Controller) RestoreRevision(id string) (revisions.Revision, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rev, ok := c.project.Ledger.Find(id)
	if !ok {
		c.notifier.Notify(notify.LevelError, "Error: Revision not found.")
		return revisions.Revision{}, revisions.ErrNotFound
	}
	c.editor = rev.Content
	latest, _ := c.project.Ledger.Latest()
	c.project.Dirty = latest.Content != rev.Content
	c.notifier.Notify(notify.LevelSuccess, "Restored revision from "+rev.Timestamp)
	return rev, nil
}

// History applies the history panel filter and returns the visible
// revisions with the current selection.
func (c *Controller) History(filter revisions.Filter, query string) ([]revisions.Revision, *revisions.Revision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if filter != c.browser.Filter() {
		c.browser.SetFilter(filter)
	}
	if query != c.browser.Query() {
		c.browser.SetQuery(query)
	}
	visible := c.browser.Visible()
	if selected, ok := c.browser.Selected(); ok {
		return visible, &selected
	}
	return visible, nil
}

// SelectRevision selects a revision visible in the history panel.
func (c *Controller) SelectRevision(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.browser.Select(id)
}

func (c *Controller) PendingSnapshot(ctx context.Context) (snapshot.Snapshot, bool, error) {
	return c.snaps.Peek(ctx)
}

// RestoreSnapshot turns the crash snapshot into an unsaved project.
func (c *Controller) RestoreSnapshot(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	snap, ok, err := c.snaps.Peek(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSnapshot
	}
	c.project = Project{
		Name:  RestoredName,
		Dirty: true,
		Ledger: revisions.Ledger{Revisions: []revisions.Revision{{
			ID:          c.newID(),
			Timestamp:   snap.Timestamp,
			Content:     snap.Content,
			Description: revisions.DescRestoredSnapshot,
		}}},
	}
	c.editor = snap.Content
	c.ledgerChangedLocked()
	c.clearSnapshotLocked(ctx)
	c.notifier.Notify(notify.LevelSuccess, "Snapshot restored.")
	return nil
}

func (c *Controller) DismissSnapshot(ctx context.Context) error {
	return c.snaps.Clear(ctx)
}

// SaveSnapshot writes the editor to the crash snapshot on demand.
func (c *Controller) SaveSnapshot(ctx context.Context) (snapshot.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if strings.TrimSpace(c.editor) == "" {
		return snapshot.Snapshot{}, ErrEmptyDocument
	}
	return c.snaps.Save(ctx, c.editor)
}

// Unload runs when the client goes away. It reports whether the user should
// be warned about unsaved changes.
func (c *Controller) Unload(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.memory != nil {
		if err := c.memory.Backup(ctx); err != nil {
			c.logger.Warn("memory backup failed", "error", err)
		}
	}
	if !c.project.Dirty {
		return false, c.snaps.Clear(ctx)
	}
	if strings.TrimSpace(c.editor) != "" {
		if _, err := c.snaps.Save(ctx, c.editor); err != nil {
			return true, err
		}
	}
	return true, nil
}

// SetMemory swaps the conversation memory, e.g. after a user switch.
func (c *Controller) SetMemory(memory *genai.Memory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.memory = memory
}

func (c *Controller) Memory() *genai.Memory {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memory
}

func (c *Controller) resetLocked(name string) {
	c.project = Project{Name: name}
	c.editor = ""
	c.ledgerChangedLocked()
}

func (c *Controller) ledgerChangedLocked() {
	c.browser.Reload(c.project.Ledger.Revisions)
}

func (c *Controller) clearSnapshotLocked(ctx context.Context) {
	if err := c.snaps.Clear(ctx); err != nil {
		c.logger.Warn("clear snapshot failed", "error", err)
	}
}

func truncateRunes(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max])
}
