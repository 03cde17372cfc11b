// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"repo-sync/internal/database"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github"
)

// Options tunes a sync pass.
type Options struct {
	// Lease is how long a SYNCING row blocks other passes before it is
	// considered abandoned.
	Lease                time.Duration
	CommitPageSize       int
	FileMaxDepth         int
	FileInlineMaxBytes   int64
	EventFreshnessWindow time.Duration
	Retry                github.RetryPolicy
}

func DefaultOptions() Options {
	return Options{
		Lease:                30 * time.Minute,
		CommitPageSize:       github.PageSize,
		FileMaxDepth:         5,
		FileInlineMaxBytes:   1 << 20,
		EventFreshnessWindow: 5 * time.Minute,
		Retry:                github.DefaultRetryPolicy(),
	}
}

// Syncer orchestrates the fetching and storing of repository data.
type Syncer struct {
	store   database.Store
	clients *github.Factory
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

// NewSyncer creates a new Syncer instance.
func NewSyncer(store database.Store, clients *github.Factory, opts Options, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:   store,
		clients: clients,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

type stage struct {
	name string
	run  func(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error
}

func (s *Syncer) stages() []stage {
	return []stage{
		{"metadata", s.syncMetadata},
		{"branches", s.syncBranches},
		{"commits", s.syncCommits},
		{"files", s.syncFiles},
		{"collaborators", s.syncCollaborators},
	}
}

// SyncRepository runs one full pass over a repository. It returns
// ErrSyncInProgress without touching the row when another pass holds it.
// A failing stage is logged and the pass moves on; only an error or panic
// escaping the stage loop marks the repository FAILED.
func (s *Syncer) SyncRepository(ctx context.Context, repoID int64, token string) (err error) {
	repo, err := s.store.GetRepository(ctx, repoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return custom_errors.ErrRepositoryNotFound
	} else if err != nil {
		return fmt.Errorf("failed to load repository %d: %w", repoID, err)
	}

	now := s.now()
	_, err = s.store.BeginRepositorySync(ctx, database.BeginRepositorySyncParams{
		ID:          repoID,
		StartedAt:   now,
		LeaseCutoff: now.Add(-s.opts.Lease),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return custom_errors.ErrSyncInProgress
	} else if err != nil {
		return fmt.Errorf("failed to mark repository %d as syncing: %w", repoID, err)
	}

	logger := s.logger.With("repo", repo.FullName, "repo_id", repo.ID)
	logger.Info("Syncing repository")
	start := s.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sync panicked: %v", r)
		}
		// The final status must be written even when ctx is already cancelled.
		finishCtx := context.WithoutCancel(ctx)
		if err != nil {
			logger.Error("Repository sync failed", "error", err)
			if ferr := s.store.FailRepositorySync(finishCtx, database.FailRepositorySyncParams{
				ID:            repoID,
				LastSyncError: database.TextOf(truncate(err.Error(), 1000)),
			}); ferr != nil {
				logger.Error("Failed to record sync failure", "error", ferr)
			}
			return
		}
		if cerr := s.store.CompleteRepositorySync(finishCtx, database.CompleteRepositorySyncParams{
			ID:         repoID,
			LastSyncAt: s.now(),
		}); cerr != nil {
			err = fmt.Errorf("failed to record sync completion: %w", cerr)
			logger.Error("Failed to record sync completion", "error", cerr)
			if ferr := s.store.FailRepositorySync(finishCtx, database.FailRepositorySyncParams{
				ID:            repoID,
				LastSyncError: database.TextOf(truncate(err.Error(), 1000)),
			}); ferr != nil {
				logger.Error("Failed to record sync failure", "error", ferr)
			}
			return
		}
		logger.Info("Repository sync completed", "duration", s.now().Sub(start).String())
	}()

	client := s.clients.ForToken(token)
	return s.runStages(ctx, logger, client, &repo)
}

func (s *Syncer) runStages(ctx context.Context, logger *slog.Logger, client *github.Client, repo *database.RemoteRepository) error {
	for _, st := range s.stages() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync interrupted before %s stage: %w", st.name, err)
		}
		err := s.store.ExecTx(ctx, func(q database.Querier) error {
			return st.run(ctx, q, client, repo)
		})
		if err != nil {
			logger.Error("Sync stage failed", "stage", st.name, "error", err)
			continue
		}
		logger.Debug("Sync stage finished", "stage", st.name)
	}
	return nil
}

// retry runs a provider call under the configured backoff policy.
func (s *Syncer) retry(ctx context.Context, op func() error) error {
	return github.Retry(ctx, s.opts.Retry, op)
}

// ParseFullName splits "owner/name".
func ParseFullName(fullName string) (owner, name string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: fullName}
	}
	return parts[0], parts[1], nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
