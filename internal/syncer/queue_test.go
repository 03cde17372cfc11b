// internal/syncer/queue_test.go
package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-sync/internal/database"
	"repo-sync/internal/database/dbtest"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github/githubtest"
)

type MockRepositorySyncer struct {
	mock.Mock
}

func (m *MockRepositorySyncer) SyncRepository(ctx context.Context, repoID int64, token string) error {
	args := m.Called(ctx, repoID, token)
	return args.Error(0)
}

type hookRecorder struct {
	mu    sync.Mutex
	repos []int64
}

func (h *hookRecorder) hook(ctx context.Context, repo database.RemoteRepository, token string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.repos = append(h.repos, repo.ID)
}

func (h *hookRecorder) called() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.repos...)
}

func queueFixture(t *testing.T) (*dbtest.Store, database.User) {
	t.Helper()
	store := dbtest.New()
	return store, store.AddUser("octo", "octo", "token")
}

func addRepo(store *dbtest.Store, userID int64, name string) database.RemoteRepository {
	return store.AddRepository(database.RemoteRepository{UserID: userID, Owner: "octo", Name: name})
}

func TestQueue_EnqueueDeduplicatesPendingJobs(t *testing.T) {
	store, user := queueFixture(t)
	repo := addRepo(store, user.ID, "demo")
	q := NewQueue(new(MockRepositorySyncer), store, QueueOptions{Size: 4}, githubtest.Logger())

	first, ok := q.Enqueue(repo.ID, true)
	require.True(t, ok)
	second, ok := q.Enqueue(repo.ID, false)

	assert.False(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, q.Pending())
}

func TestQueue_EnqueueWhenFull(t *testing.T) {
	store, user := queueFixture(t)
	a := addRepo(store, user.ID, "a")
	b := addRepo(store, user.ID, "b")
	q := NewQueue(new(MockRepositorySyncer), store, QueueOptions{Size: 1}, githubtest.Logger())

	_, ok := q.Enqueue(a.ID, false)
	require.True(t, ok)
	id, ok := q.Enqueue(b.ID, false)

	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
}

func TestQueue_HookRunsOnlyForDiscoveredRepositories(t *testing.T) {
	store, user := queueFixture(t)
	discovered := addRepo(store, user.ID, "new")
	known := addRepo(store, user.ID, "old")
	busy := addRepo(store, user.ID, "busy")

	var synced atomic.Int32
	count := func(mock.Arguments) { synced.Add(1) }
	runner := new(MockRepositorySyncer)
	runner.On("SyncRepository", mock.Anything, discovered.ID, "token").Return(nil).Run(count)
	runner.On("SyncRepository", mock.Anything, known.ID, "token").Return(nil).Run(count)
	runner.On("SyncRepository", mock.Anything, busy.ID, "token").Return(custom_errors.ErrSyncInProgress).Run(count)

	rec := &hookRecorder{}
	q := NewQueue(runner, store, QueueOptions{Size: 8, Workers: 1}, githubtest.Logger())
	q.OnDiscoveredSynced(rec.hook)

	for _, job := range []struct {
		id         int64
		discovered bool
	}{{discovered.ID, true}, {known.ID, false}, {busy.ID, true}} {
		_, ok := q.Enqueue(job.id, job.discovered)
		require.True(t, ok)
	}

	q.Start(context.Background())
	assert.Eventually(t, func() bool {
		return synced.Load() == 3
	}, 2*time.Second, 10*time.Millisecond)
	q.Stop()

	runner.AssertExpectations(t)
	assert.Equal(t, []int64{discovered.ID}, rec.called())
}

func TestQueue_SkipsRepositoriesWithoutToken(t *testing.T) {
	store := dbtest.New()
	user := store.AddUser("ghost", "ghost", "")
	repo := addRepo(store, user.ID, "demo")
	runner := new(MockRepositorySyncer)

	q := NewQueue(runner, store, QueueOptions{Size: 2}, githubtest.Logger())
	_, ok := q.Enqueue(repo.ID, true)
	require.True(t, ok)

	q.Start(context.Background())
	assert.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 10*time.Millisecond)
	q.Stop()

	runner.AssertNotCalled(t, "SyncRepository", mock.Anything, mock.Anything, mock.Anything)
}

func TestQueue_StopIsIdempotent(t *testing.T) {
	store, _ := queueFixture(t)
	q := NewQueue(new(MockRepositorySyncer), store, QueueOptions{Workers: 2, Delay: time.Hour}, githubtest.Logger())

	q.Start(context.Background())
	q.Stop()
	q.Stop()
}
