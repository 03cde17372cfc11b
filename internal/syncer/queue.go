// internal/syncer/queue.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"repo-sync/internal/database"
	custom_errors "repo-sync/internal/errors"
)

// RepositorySyncer runs a single full pass over a repository.
type RepositorySyncer interface {
	SyncRepository(ctx context.Context, repoID int64, token string) error
}

// Job is one queued background sync.
type Job struct {
	ID           uuid.UUID
	RepositoryID int64
	// Discovered marks a repository seen for the first time; the post-sync
	// hook only runs for these.
	Discovered bool
	EnqueuedAt time.Time
}

// PostSyncHook runs after a completed pass of a newly discovered repository.
type PostSyncHook func(ctx context.Context, repo database.RemoteRepository, token string)

type QueueOptions struct {
	Size    int
	Workers int
	// Delay is the pause a worker takes between two jobs.
	Delay time.Duration
}

// Queue runs sync passes in the background, at most one pending job per
// repository.
type Queue struct {
	runner RepositorySyncer
	store  database.Querier
	opts   QueueOptions
	logger *slog.Logger
	hook   PostSyncHook

	jobs      chan Job
	pendingMu sync.Mutex
	pending   map[int64]uuid.UUID

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewQueue creates a stopped queue.
func NewQueue(runner RepositorySyncer, store database.Querier, opts QueueOptions, logger *slog.Logger) *Queue {
	if opts.Size < 1 {
		opts.Size = 1
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Queue{
		runner:  runner,
		store:   store,
		opts:    opts,
		logger:  logger,
		jobs:    make(chan Job, opts.Size),
		pending: make(map[int64]uuid.UUID),
	}
}

// OnDiscoveredSynced registers the hook run after a newly discovered
// repository completes its first pass.
func (q *Queue) OnDiscoveredSynced(hook PostSyncHook) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.hook = hook
}

// Enqueue schedules a pass. It reports false when the repository already
// has a pending job or the queue is full.
func (q *Queue) Enqueue(repoID int64, discovered bool) (uuid.UUID, bool) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()

	if id, ok := q.pending[repoID]; ok {
		q.logger.Debug("Sync already pending", "repo_id", repoID, "job_id", id)
		return id, false
	}

	job := Job{ID: uuid.New(), RepositoryID: repoID, Discovered: discovered, EnqueuedAt: time.Now()}
	select {
	case q.jobs <- job:
		q.pending[repoID] = job.ID
		q.logger.Debug("Sync enqueued", "repo_id", repoID, "job_id", job.ID)
		return job.ID, true
	default:
		q.logger.Warn("Sync queue full, dropping job", "repo_id", repoID)
		return uuid.Nil, false
	}
}

// Pending returns the number of queued jobs not yet picked up.
func (q *Queue) Pending() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return len(q.pending)
}

// Start launches the workers.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()

	ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			q.run(ctx)
		}()
	}
	q.logger.Info("Sync queue started", "workers", q.opts.Workers, "delay", q.opts.Delay.String())
}

// Stop cancels the workers and waits for the current jobs to return.
func (q *Queue) Stop() {
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
	q.logger.Info("Sync queue stopped")
}

func (q *Queue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.pendingMu.Lock()
			delete(q.pending, job.RepositoryID)
			q.pendingMu.Unlock()

			q.process(ctx, job)

			if q.opts.Delay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(q.opts.Delay):
				}
			}
		}
	}
}

func (q *Queue) process(ctx context.Context, job Job) {
	logger := q.logger.With("job_id", job.ID, "repo_id", job.RepositoryID)

	repo, token, err := q.load(ctx, job.RepositoryID)
	if err != nil {
		logger.Error("Skipping queued sync", "error", err)
		return
	}

	err = q.runner.SyncRepository(ctx, job.RepositoryID, token)
	switch {
	case errors.Is(err, custom_errors.ErrSyncInProgress):
		logger.Info("Repository already syncing, dropping job")
		return
	case err != nil:
		logger.Error("Queued sync failed", "error", err)
		return
	}
	logger.Info("Queued sync finished", "waited", time.Since(job.EnqueuedAt).String())

	q.mu.Lock()
	hook := q.hook
	q.mu.Unlock()
	if job.Discovered && hook != nil {
		hook(ctx, repo, token)
	}
}

func (q *Queue) load(ctx context.Context, repoID int64) (database.RemoteRepository, string, error) {
	repo, err := q.store.GetRepository(ctx, repoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo, "", custom_errors.ErrRepositoryNotFound
	} else if err != nil {
		return repo, "", err
	}
	u, err := q.store.GetUser(ctx, repo.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo, "", fmt.Errorf("user %d: %w", repo.UserID, custom_errors.ErrUserNotFound)
	} else if err != nil {
		return repo, "", err
	}
	if !u.AccessToken.Valid || u.AccessToken.String == "" {
		return repo, "", fmt.Errorf("user %d: %w", repo.UserID, custom_errors.ErrNoToken)
	}
	return repo, u.AccessToken.String, nil
}
