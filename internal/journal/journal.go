// Package journal keeps an append-only snapshot history of every draft
// flush, one git repository per case. Drafts in the key-value store are
// last-writer-wins; the journal is the belt that makes an overwritten
// answer recoverable.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"casebook/api/internal/record"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const snapshotFile = "record.json"

// Snapshot is one committed draft state.
type Snapshot struct {
	Hash    string    `json:"hash"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Append commits the record's current state to the case's journal,
// initializing the repository on first write. An unchanged record commits
// nothing.
func (s *Service) Append(rec *record.CaseRecord) error {
	lock := s.caseLock(rec.CaseID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(rec.CaseID)
	repo, initialized, err := s.openOrInit(path)
	if err != nil {
		return err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(path, snapshotFile), append(payload, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if _, err := worktree.Add(snapshotFile); err != nil {
		return fmt.Errorf("git add snapshot: %w", err)
	}

	if !initialized {
		status, err := worktree.Status()
		if err != nil {
			return fmt.Errorf("worktree status: %w", err)
		}
		if status.IsClean() {
			return nil
		}
	}

	message := fmt.Sprintf("Snapshot %s", rec.LastUpdated.UTC().Format(time.RFC3339))
	if initialized {
		message = fmt.Sprintf("Open case %s", rec.CaseID)
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  rec.Clinician.Name,
			Email: rec.Clinician.Email,
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}

	if initialized {
		if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("main"), hash)); err != nil {
			return fmt.Errorf("set main branch ref: %w", err)
		}
		if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))); err != nil {
			return fmt.Errorf("set HEAD to main: %w", err)
		}
	}
	return nil
}

// Snapshots lists the case's journal history, newest first.
func (s *Service) Snapshots(caseID string) ([]Snapshot, error) {
	lock := s.caseLock(caseID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(caseID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return nil, fmt.Errorf("read journal log: %w", err)
	}
	defer iter.Close()

	snapshots := make([]Snapshot, 0)
	err = iter.ForEach(func(c *object.Commit) error {
		snapshots = append(snapshots, Snapshot{
			Hash:    c.Hash.String(),
			Message: c.Message,
			At:      c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate journal log: %w", err)
	}
	return snapshots, nil
}

func (s *Service) openOrInit(path string) (*git.Repository, bool, error) {
	if _, err := os.Stat(path); err == nil {
		repo, err := git.PlainOpen(path)
		if err != nil {
			return nil, false, fmt.Errorf("open journal repo: %w", err)
		}
		return repo, false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, false, fmt.Errorf("stat journal path: %w", err)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, false, fmt.Errorf("create journal dir: %w", err)
	}
	repo, err := git.PlainInit(path, false)
	if err != nil {
		return nil, false, fmt.Errorf("init journal repo: %w", err)
	}
	return repo, true, nil
}

func (s *Service) repoPath(caseID string) string {
	return filepath.Join(s.baseDir, caseID)
}

func (s *Service) caseLock(caseID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[caseID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[caseID] = lock
	}
	return lock
}
