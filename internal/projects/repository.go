// Package projects stores named projects and their manifest in a kv.Store.
package projects

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"pilothub/api/internal/kv"
	"pilothub/api/internal/revisions"
	"pilothub/api/internal/util"
)

const (
	ManifestKey      = "GT_PROJECTS_MANIFEST"
	ProjectKeyPrefix = "GT_PROJECT__"
	// MaxContentBytes is the largest serialized project accepted by Save.
	MaxContentBytes = 5 * 1024 * 1024
)

var (
	ErrNotFound = errors.New("project not found")
	ErrTooLarge = errors.New("project size exceeds limit")
	ErrCorrupt  = errors.New("project data corrupt")
)

// Result reports the outcome of a mutating repository call in the form the
// UI shows to the user.
type Result struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	FinalName string `json:"finalName,omitempty"`
}

type ManifestEntry struct {
	Timestamp string `json:"timestamp"`
}

type Manifest map[string]ManifestEntry

type Entry struct {
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

type Opened struct {
	Name      string           `json:"name"`
	Data      revisions.Ledger `json:"projectData"`
	Timestamp string           `json:"timestamp"`
	// Migrated is set when legacy content was converted during Open.
	Migrated bool `json:"migrated,omitempty"`
}

type Repository struct {
	store  kv.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func New(store kv.Store, logger *slog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return util.NewID("") },
	}
}

func ProjectKey(name string) string {
	return ProjectKeyPrefix + name
}

// Save writes content under the sanitized name and stamps the manifest.
// Oversized content is rejected without touching storage. The manifest is
// written last; if that write fails the previous content is put back so the
// key and its manifest entry stay consistent.
func (r *Repository) Save(ctx context.Context, name, content string) (Result, error) {
	finalName := SanitizeName(name)
	if len(content) > MaxContentBytes {
		return Result{OK: false, Message: "Project size exceeds 5MB limit.", FinalName: finalName},
			fmt.Errorf("save project %s: %w", finalName, ErrTooLarge)
	}

	manifest, err := r.manifest(ctx)
	if err != nil {
		return Result{}, err
	}
	key := ProjectKey(finalName)
	previous, err := r.store.Get(ctx, key)
	existed := err == nil
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return Result{}, fmt.Errorf("read project %s: %w", finalName, err)
	}

	if err := r.store.Set(ctx, key, content); err != nil {
		return Result{}, fmt.Errorf("write project %s: %w", finalName, err)
	}
	manifest[finalName] = ManifestEntry{Timestamp: revisions.FormatTimestamp(r.now())}
	if err := kv.SetJSON(ctx, r.store, ManifestKey, manifest); err != nil {
		r.restore(ctx, key, previous, existed)
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}

	r.logger.Debug("project saved", "name", finalName, "bytes", len(content))
	return Result{OK: true, Message: fmt.Sprintf("Project '%s' saved.", finalName), FinalName: finalName}, nil
}

func (r *Repository) restore(ctx context.Context, key, previous string, existed bool) {
	var err error
	if existed {
		err = r.store.Set(ctx, key, previous)
	} else {
		err = r.store.Remove(ctx, key)
	}
	if err != nil {
		r.logger.Error("restore project content after failed manifest write", "key", key, "error", err)
	}
}

// SaveLedger serializes ledger and saves it.
func (r *Repository) SaveLedger(ctx context.Context, name string, ledger revisions.Ledger) (Result, error) {
	content, err := Encode(ledger)
	if err != nil {
		return Result{}, err
	}
	return r.Save(ctx, name, content)
}

// List returns manifest entries, most recently saved first.
func (r *Repository) List(ctx context.Context) ([]Entry, error) {
	manifest, err := r.manifest(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(manifest))
	for name, entry := range manifest {
		entries = append(entries, Entry{Name: name, Timestamp: entry.Timestamp})
	}
	sort.Slice(entries, func(i, j int) bool {
		ti, _ := revisions.ParseTimestamp(entries[i].Timestamp)
		tj, _ := revisions.ParseTimestamp(entries[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// Open loads a project. Open may write: legacy content is migrated to a
// single-revision ledger and saved back before it is returned.
func (r *Repository) Open(ctx context.Context, name string) (Opened, error) {
	manifest, err := r.manifest(ctx)
	if err != nil {
		return Opened{}, err
	}
	entry, ok := manifest[name]
	if !ok {
		return Opened{}, fmt.Errorf("open project %s: %w", name, ErrNotFound)
	}

	raw, err := r.store.Get(ctx, ProjectKey(name))
	if errors.Is(err, kv.ErrNotFound) {
		return Opened{}, fmt.Errorf("open project %s: %w: content missing", name, ErrCorrupt)
	}
	if err != nil {
		return Opened{}, fmt.Errorf("read project %s: %w", name, err)
	}

	stored, err := Decode(raw)
	if err != nil {
		return Opened{}, fmt.Errorf("open project %s: %w", name, err)
	}

	switch stored.Kind {
	case KindLedger:
		return Opened{Name: name, Data: stored.Ledger, Timestamp: entry.Timestamp}, nil
	default:
		ledger, err := r.migrate(ctx, name, stored.Legacy)
		if err != nil {
			return Opened{}, err
		}
		return Opened{Name: name, Data: ledger, Timestamp: entry.Timestamp, Migrated: true}, nil
	}
}

func (r *Repository) migrate(ctx context.Context, name, legacy string) (revisions.Ledger, error) {
	ledger := revisions.Ledger{Revisions: []revisions.Revision{{
		ID:          r.newID(),
		Timestamp:   revisions.FormatTimestamp(r.now()),
		Content:     legacy,
		Description: revisions.DescImported,
	}}}
	if _, err := r.SaveLedger(ctx, name, ledger); err != nil {
		if errors.Is(err, ErrTooLarge) {
			return revisions.Ledger{}, fmt.Errorf("migrate project %s: %w: %v", name, ErrCorrupt, err)
		}
		return revisions.Ledger{}, fmt.Errorf("migrate project %s: %w", name, err)
	}
	r.logger.Info("migrated legacy project", "name", name)
	return ledger, nil
}

// Delete removes the manifest entry and the content key.
func (r *Repository) Delete(ctx context.Context, name string) (Result, error) {
	manifest, err := r.manifest(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, ok := manifest[name]; !ok {
		return Result{OK: false, Message: "Project not found."}, fmt.Errorf("delete project %s: %w", name, ErrNotFound)
	}
	delete(manifest, name)
	if err := kv.SetJSON(ctx, r.store, ManifestKey, manifest); err != nil {
		return Result{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := r.store.Remove(ctx, ProjectKey(name)); err != nil {
		return Result{}, fmt.Errorf("remove project %s: %w", name, err)
	}
	return Result{OK: true, Message: fmt.Sprintf("Project '%s' deleted.", name)}, nil
}

// manifest reads the manifest. A missing manifest is empty; one that does not
// decode is ErrCorrupt.
func (r *Repository) manifest(ctx context.Context) (Manifest, error) {
	raw, err := r.store.Get(ctx, ManifestKey)
	if errors.Is(err, kv.ErrNotFound) {
		return Manifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	manifest := Manifest{}
	if err := json.Unmarshal([]byte(raw), &manifest); err != nil {
		r.logger.Error("manifest unreadable", "bytes", len(raw), "error", err)
		return nil, fmt.Errorf("read manifest: %w: %v", ErrCorrupt, err)
	}
	if manifest == nil {
		manifest = Manifest{}
	}
	return manifest, nil
}
