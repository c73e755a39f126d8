// Package backup exports the card library into a local git repository and
// commits a snapshot whenever the library changed since the last export.
package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/conorfennell/phrasebook/internal/config"
	"github.com/conorfennell/phrasebook/internal/domain"
)

const (
	cardsDir = "cards"
	audioDir = "audio"
)

// Source is the read side of the card repository.
type Source interface {
	ListAll(ctx context.Context) ([]domain.Card, error)
	GetPayload(ctx context.Context, id string) ([]byte, error)
}

// Result summarises one export.
type Result struct {
	Cards   int
	Written int
	Removed int
	// Commit is zero when nothing changed.
	Commit plumbing.Hash
}

type Exporter struct {
	cfg    config.BackupConfig
	src    Source
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg config.BackupConfig, src Source, logger *zap.Logger) *Exporter {
	return &Exporter{cfg: cfg, src: src, logger: logger, now: time.Now}
}

// Run writes every card to cards/<id>.yaml and its payload to audio/<id>.bin,
// deletes files of cards that no longer exist and commits the result. The
// repository is created on first use. Nothing is pushed anywhere.
func (e *Exporter) Run(ctx context.Context) (*Result, error) {
	repo, err := e.openOrInit()
	if err != nil {
		return nil, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree for repo at %s: %w", e.cfg.Dir, err)
	}

	all, err := e.src.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}

	res := &Result{Cards: len(all)}
	for _, dir := range []string{cardsDir, audioDir} {
		if err := os.MkdirAll(filepath.Join(e.cfg.Dir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	live := make(map[string]bool, len(all))
	for _, card := range all {
		live[card.ID] = true

		doc, err := yaml.Marshal(card)
		if err != nil {
			return nil, fmt.Errorf("failed to encode card %s: %w", card.ID, err)
		}
		written, err := writeIfChanged(filepath.Join(e.cfg.Dir, cardsDir, card.ID+".yaml"), doc)
		if err != nil {
			return nil, err
		}
		if written {
			res.Written++
		}

		payload, err := e.src.GetPayload(ctx, card.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload of card %s: %w", card.ID, err)
		}
		if payload == nil {
			continue
		}
		written, err = writeIfChanged(filepath.Join(e.cfg.Dir, audioDir, card.ID+".bin"), payload)
		if err != nil {
			return nil, err
		}
		if written {
			res.Written++
		}
	}

	removed, err := e.removeOrphans(worktree, live)
	if err != nil {
		return nil, err
	}
	res.Removed = removed

	if err := worktree.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return nil, fmt.Errorf("failed to stage backup: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to read worktree status: %w", err)
	}
	if status.IsClean() {
		e.logger.Info("backup unchanged, nothing to commit", zap.String("dir", e.cfg.Dir), zap.Int("cards", res.Cards))
		return res, nil
	}

	msg := fmt.Sprintf("Back up %d cards (%d files written, %d removed)", res.Cards, res.Written, res.Removed)
	hash, err := worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  e.cfg.AuthorName,
			Email: e.cfg.AuthorEmail,
			When:  e.now(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to commit backup: %w", err)
	}
	res.Commit = hash

	e.logger.Info("backup committed",
		zap.String("dir", e.cfg.Dir),
		zap.String("commit", hash.String()),
		zap.Int("cards", res.Cards),
		zap.Int("written", res.Written),
		zap.Int("removed", res.Removed),
	)
	return res, nil
}

func (e *Exporter) openOrInit() (*git.Repository, error) {
	repo, err := git.PlainOpen(e.cfg.Dir)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("failed to open backup repo at %s: %w", e.cfg.Dir, err)
	}

	e.logger.Info("initialising backup repository", zap.String("dir", e.cfg.Dir))
	if err := os.MkdirAll(e.cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", e.cfg.Dir, err)
	}
	repo, err = git.PlainInit(e.cfg.Dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init backup repo at %s: %w", e.cfg.Dir, err)
	}
	return repo, nil
}

// removeOrphans deletes exported files whose card is not in live, staging the
// deletion of files already tracked.
func (e *Exporter) removeOrphans(worktree *git.Worktree, live map[string]bool) (int, error) {
	var removed int
	for _, dir := range []string{cardsDir, audioDir} {
		entries, err := os.ReadDir(filepath.Join(e.cfg.Dir, dir))
		if err != nil {
			return removed, fmt.Errorf("failed to list %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			id := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
			if live[id] {
				continue
			}
			rel := dir + "/" + entry.Name()
			e.logger.Info("removing backup of deleted card", zap.String("path", rel))
			if _, err := worktree.Remove(rel); err != nil {
				if !errors.Is(err, index.ErrEntryNotFound) {
					return removed, fmt.Errorf("failed to remove %s: %w", rel, err)
				}
				// Never committed, so only on disk.
				if err := os.Remove(filepath.Join(e.cfg.Dir, dir, entry.Name())); err != nil {
					return removed, fmt.Errorf("failed to remove %s: %w", rel, err)
				}
			}
			removed++
		}
	}
	return removed, nil
}

// writeIfChanged replaces path with b unless it already holds the same bytes.
func writeIfChanged(path string, b []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, b) {
			return false, nil
		}
	case !errors.Is(err, os.ErrNotExist):
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}
