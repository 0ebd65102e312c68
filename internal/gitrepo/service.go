// Package gitrepo mirrors saved project ledgers into per-project git
// repositories, one commit per revision.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"pilothub/api/internal/revisions"
)

const (
	documentFile   = "index.html"
	revisionSuffix = "Revision-Id: "
	mainBranch     = "main"
)

var ErrNoRepository = errors.New("project has no mirror repository")

type CommitInfo struct {
	Hash       string    `json:"hash"`
	Message    string    `json:"message"`
	RevisionID string    `json:"revisionId,omitempty"`
	Author     string    `json:"author"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	author  string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		author:  "Pilot",
		locks:   make(map[string]*sync.Mutex),
	}
}

// MirrorProject commits every ledger revision not yet present in the
// project's repository, oldest first, and returns how many commits it made.
// Revisions are matched by the Revision-Id trailer so re-mirroring is a no-op.
func (s *Service) MirrorProject(ctx context.Context, project string, ledger revisions.Ledger) (int, error) {
	lock := s.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.ensureRepo(project)
	if err != nil {
		return 0, err
	}
	mirrored, err := mirroredRevisions(repo)
	if err != nil {
		return 0, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return 0, fmt.Errorf("open worktree: %w", err)
	}
	root := worktree.Filesystem.Root()

	created := 0
	for _, rev := range ledger.Revisions {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		if _, ok := mirrored[rev.ID]; ok {
			continue
		}
		if err := os.WriteFile(filepath.Join(root, documentFile), []byte(rev.Content), 0o644); err != nil {
			return created, fmt.Errorf("write %s: %w", documentFile, err)
		}
		if _, err := worktree.Add(documentFile); err != nil {
			return created, fmt.Errorf("git add document: %w", err)
		}
		when, ok := revisions.ParseTimestamp(rev.Timestamp)
		if !ok {
			when = time.Now()
		}
		message := fmt.Sprintf("%s\n\n%s%s", commitSubject(rev.Description), revisionSuffix, rev.ID)
		if _, err := worktree.Commit(message, &git.CommitOptions{
			AllowEmptyCommits: true,
			Author: &object.Signature{
				Name:  s.author,
				Email: "pilot@localhost",
				When:  when,
			},
		}); err != nil {
			return created, fmt.Errorf("commit revision %s: %w", rev.ID, err)
		}
		mirrored[rev.ID] = struct{}{}
		created++
	}
	return created, nil
}

// RemoveProject deletes the mirror repository. Missing repositories are fine.
func (s *Service) RemoveProject(project string) error {
	lock := s.projectLock(project)
	lock.Lock()
	defer lock.Unlock()
	if err := os.RemoveAll(s.repoPath(project)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

// History lists commits from HEAD, newest first. limit <= 0 means all.
func (s *Service) History(project string, limit int) ([]CommitInfo, error) {
	lock := s.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(project)
	if err != nil {
		return nil, err
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// ContentAt returns the document stored by a commit. Abbreviated hashes are
// accepted.
func (s *Service) ContentAt(project, hash string) (string, CommitInfo, error) {
	lock := s.projectLock(project)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openRepo(project)
	if err != nil {
		return "", CommitInfo{}, err
	}
	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", CommitInfo{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", CommitInfo{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	file, err := commitObj.File(documentFile)
	if err != nil {
		return "", CommitInfo{}, fmt.Errorf("load %s from commit: %w", documentFile, err)
	}
	content, err := file.Contents()
	if err != nil {
		return "", CommitInfo{}, fmt.Errorf("read document: %w", err)
	}
	return content, toCommitInfo(commitObj), nil
}

func (s *Service) ensureRepo(project string) (*git.Repository, error) {
	path := s.repoPath(project)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return nil, fmt.Errorf("set HEAD to main: %w", err)
	}
	return repo, nil
}

func (s *Service) openRepo(project string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(project))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo %s: %w", project, ErrNoRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) repoPath(project string) string {
	return filepath.Join(s.baseDir, repoDirName(project))
}

func (s *Service) projectLock(project string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[project]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[project] = lock
	return lock
}

func mirroredRevisions(repo *git.Repository) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return seen, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()
	err = iter.ForEach(func(commitObj *object.Commit) error {
		if id := revisionID(commitObj.Message); id != "" {
			seen[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return seen, nil
}

func revisionID(message string) string {
	for _, line := range strings.Split(message, "\n") {
		if id, ok := strings.CutPrefix(strings.TrimSpace(line), revisionSuffix); ok {
			return strings.TrimSpace(id)
		}
	}
	return ""
}

func commitSubject(description string) string {
	subject := strings.TrimSpace(strings.SplitN(description, "\n", 2)[0])
	if subject == "" {
		return "Update document"
	}
	return subject
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:       commitObj.Hash.String()[:7],
		Message:    strings.TrimSpace(strings.SplitN(commitObj.Message, "\n", 2)[0]),
		RevisionID: revisionID(commitObj.Message),
		Author:     commitObj.Author.Name,
		CreatedAt:  commitObj.Author.When,
	}
}

// repoDirName keeps project names usable as directory names.
func repoDirName(project string) string {
	out := make([]rune, 0, len(project))
	for _, r := range project {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'), r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "untitled"
	}
	return string(out)
}

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve hash %s: %w", hash, err)
	}
	return *resolved, nil
}
