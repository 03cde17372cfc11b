// internal/service/service_test.go
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-sync/internal/database"
	"repo-sync/internal/database/dbtest"
	"repo-sync/internal/discovery"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github/githubtest"
	"repo-sync/internal/scheduler"
	"repo-sync/internal/syncer"
	"repo-sync/internal/webhook"
)

const listRoute = "GET /user/repos"

type fixture struct {
	gh    *githubtest.Server
	store *dbtest.Store
	queue *syncer.Queue
	svc   *Service
	user  database.User
}

func listed(id int64, name string) map[string]any {
	return map[string]any{
		"id":             id,
		"name":           name,
		"full_name":      "octo/" + name,
		"owner":          map[string]any{"login": "octo"},
		"default_branch": "main",
	}
}

func newFixture(t *testing.T, queueSize int) *fixture {
	gh := githubtest.New(t)
	gh.Seed()
	gh.Handle(listRoute, func(w http.ResponseWriter, r *http.Request) {
		body := []map[string]any{listed(githubtest.DemoProviderID, githubtest.DemoName)}
		if r.URL.Query().Get("affiliation") == "owner" {
			body = append(body, listed(43, "tools"))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
	gh.JSON("POST /repos/octo/demo/hooks", http.StatusCreated, map[string]any{"id": 777})

	store := dbtest.New()
	user := store.AddUser("octo", "octo", "token")

	logger := githubtest.Logger()
	factory := gh.Factory(t)
	opts := syncer.DefaultOptions()
	opts.Retry = githubtest.FastRetry()
	s := syncer.NewSyncer(store, factory, opts, logger)
	q := syncer.NewQueue(s, store, syncer.QueueOptions{Size: queueSize}, logger)
	mgr := webhook.NewManager(store, factory, webhook.Options{
		CallbackURL: "https://hooks.example.com/webhooks/github",
		Secret:      "s3cret",
		Retry:       githubtest.FastRetry(),
	}, logger)
	disc := discovery.New(factory, githubtest.FastRetry(), logger)

	svc := New(store, disc, s, q, mgr, Options{AutoSubscribe: true}, logger)
	return &fixture{gh: gh, store: store, queue: q, svc: svc, user: user}
}

func TestDiscoverAndSyncRepositories_StoresAndQueuesNewRepositories(t *testing.T) {
	f := newFixture(t, 16)

	repos, err := f.svc.DiscoverAndSyncRepositories(context.Background(), f.user.ID, false)

	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "octo/demo", repos[0].FullName)
	assert.Equal(t, "octo/tools", repos[1].FullName)
	assert.Equal(t, "IDLE", repos[0].SyncStatus)
	assert.Equal(t, 2, f.queue.Pending())
	assert.Equal(t, 3, f.gh.Calls(listRoute), "one page per affiliation")
}

func TestDiscoverAndSyncRepositories_FreshRepositoriesSkipProvider(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})
	require.NoError(t, f.store.CompleteRepositorySync(ctx, database.CompleteRepositorySyncParams{
		ID:         repo.ID,
		LastSyncAt: time.Now().Add(-time.Hour),
	}))

	repos, err := f.svc.DiscoverAndSyncRepositories(ctx, f.user.ID, false)

	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Zero(t, f.gh.Calls("GET /user"))
	assert.Zero(t, f.queue.Pending())
}

func TestDiscoverAndSyncRepositories_ForceQueuesEverything(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})
	require.NoError(t, f.store.CompleteRepositorySync(ctx, database.CompleteRepositorySyncParams{
		ID:         repo.ID,
		LastSyncAt: time.Now(),
	}))

	repos, err := f.svc.DiscoverAndSyncRepositories(ctx, f.user.ID, true)

	require.NoError(t, err)
	assert.Len(t, repos, 2, "the known repository is updated, not duplicated")
	assert.Equal(t, 2, f.queue.Pending())
}

func TestDiscoverAndSyncRepositories_StaleRepositoriesAreResynced(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	for _, r := range []struct {
		id   int64
		name string
	}{{githubtest.DemoProviderID, githubtest.DemoName}, {43, "tools"}} {
		repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: r.id, Owner: "octo", Name: r.name})
		require.NoError(t, f.store.CompleteRepositorySync(ctx, database.CompleteRepositorySyncParams{
			ID:         repo.ID,
			LastSyncAt: time.Now().Add(-7 * time.Hour),
		}))
	}

	_, err := f.svc.DiscoverAndSyncRepositories(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.queue.Pending(), "both stale repositories are queued")

	_, err = f.svc.DiscoverAndSyncRepositories(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.queue.Pending(), "pending jobs are not duplicated")
	assert.Equal(t, 2, f.gh.Calls("GET /user"))

	f.queue.Start(ctx)
	t.Cleanup(f.queue.Stop)
	assert.Eventually(t, func() bool {
		repos, err := f.store.ListRepositoriesByUser(ctx, f.user.ID)
		if err != nil || len(repos) != 2 {
			return false
		}
		for _, r := range repos {
			if scheduler.IsStale(r, time.Now(), scheduler.DefaultFreshnessWindow) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	_, err = f.svc.DiscoverAndSyncRepositories(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.gh.Calls("GET /user"), "no discovery once the repositories are fresh again")
	assert.Zero(t, f.queue.Pending())
	assert.Zero(t, f.gh.CallsWithPrefix("POST /repos/"), "known repositories are not auto-subscribed")
}

func TestDiscoverAndSyncRepositories_RejectedTokenKeepsCache(t *testing.T) {
	f := newFixture(t, 16)
	f.gh.Fail("GET /user", http.StatusUnauthorized)
	f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})

	repos, err := f.svc.DiscoverAndSyncRepositories(context.Background(), f.user.ID, false)

	require.NoError(t, err)
	assert.Len(t, repos, 1)
	assert.Zero(t, f.queue.Pending())
	assert.Zero(t, f.gh.Calls(listRoute))
}

func TestDiscoverAndSyncRepositories_UserErrors(t *testing.T) {
	f := newFixture(t, 16)
	tokenless := f.store.AddUser("ghost", "ghost", "")

	_, err := f.svc.DiscoverAndSyncRepositories(context.Background(), tokenless.ID, false)
	assert.ErrorIs(t, err, custom_errors.ErrNoToken)

	_, err = f.svc.DiscoverAndSyncRepositories(context.Background(), 999, false)
	assert.ErrorIs(t, err, custom_errors.ErrUserNotFound)
}

func TestSyncUser_ReportsWhetherProviderWasConsulted(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()

	fetched, err := f.svc.SyncUser(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.True(t, fetched)

	repos, err := f.store.ListRepositoriesByUser(ctx, f.user.ID)
	require.NoError(t, err)
	require.NoError(t, f.store.CompleteRepositorySync(ctx, database.CompleteRepositorySyncParams{
		ID:         repos[0].ID,
		LastSyncAt: time.Now(),
	}))

	fetched, err = f.svc.SyncUser(ctx, f.user.ID, false)
	require.NoError(t, err)
	assert.False(t, fetched)
}

func TestGetSyncStatus(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})
	require.NoError(t, f.store.FailRepositorySync(ctx, database.FailRepositorySyncParams{
		ID:            repo.ID,
		LastSyncError: database.TextOf("boom"),
	}))

	st, err := f.svc.GetSyncStatus(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "FAILED", st.Status)
	assert.Equal(t, "boom", st.LastError)
	assert.Nil(t, st.LastSyncAt)

	_, err = f.svc.GetSyncStatus(ctx, 999)
	assert.ErrorIs(t, err, custom_errors.ErrRepositoryNotFound)
}

func TestTriggerSync(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	a := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})
	b := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 43, Owner: "octo", Name: "tools"})

	id, err := f.svc.TriggerSync(ctx, a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	again, err := f.svc.TriggerSync(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	_, err = f.svc.TriggerSync(ctx, b.ID)
	assert.ErrorIs(t, err, ErrQueueFull)

	_, err = f.svc.TriggerSync(ctx, 999)
	assert.ErrorIs(t, err, custom_errors.ErrRepositoryNotFound)
}

func TestSubscribeAndUnsubscribeWebhook(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})
	f.gh.Handle("DELETE /repos/octo/demo/hooks/777", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	sub, err := f.svc.SubscribeWebhook(ctx, repo.ID, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, "ACTIVE", sub.Status)

	require.NoError(t, f.svc.UnsubscribeWebhook(ctx, repo.ID, f.user.ID))
	stored, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "INACTIVE", stored.Status)

	_, err = f.svc.SubscribeWebhook(ctx, 999, f.user.ID)
	assert.ErrorIs(t, err, custom_errors.ErrRepositoryNotFound)
}

func TestSubscribeAfterSync(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo"})

	f.svc.opts.AutoSubscribe = false
	f.svc.subscribeAfterSync(ctx, repo, "token")
	_, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.Error(t, err)

	f.svc.opts.AutoSubscribe = true
	f.svc.subscribeAfterSync(ctx, repo, "token")
	sub, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "777", sub.ProviderWebhookID)
}

func TestHandleDelivery(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{
		UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo", DefaultBranch: "main",
	})
	f.store.AddWebhookSubscription(database.WebhookSubscription{
		RepositoryID:      repo.ID,
		ProviderWebhookID: "777",
		Status:            "ACTIVE",
		FailureCount:      2,
	})

	push := `{"ref": "refs/heads/main", "after": "c3", "commits": [{"id": "c3"}],
		"repository": {"id": 42, "full_name": "octo/demo"}}`
	ev, err := f.svc.HandleDelivery(ctx, Delivery{ID: "d-1", EventType: "push", HookID: 777, Payload: []byte(push)})
	require.NoError(t, err)
	assert.NotNil(t, ev.Push)

	sub, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(0), sub.FailureCount)
	assert.True(t, sub.LastDeliveryAt.Valid)

	commits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	assert.Len(t, commits, 1)

	ping := `{"zen": "Design for failure.", "hook_id": 777, "repository": {"id": 42, "full_name": "octo/demo"}}`
	ev, err = f.svc.HandleDelivery(ctx, Delivery{ID: "d-2", EventType: "ping", Payload: []byte(ping)})
	require.NoError(t, err)
	require.NotNil(t, ev.Ping)
	assert.Equal(t, int64(777), ev.Ping.HookID)
}

func TestHandleDelivery_FailureCountsAgainstSubscription(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{
		UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo", DefaultBranch: "main",
	})
	f.store.AddWebhookSubscription(database.WebhookSubscription{RepositoryID: repo.ID, ProviderWebhookID: "777", Status: "ACTIVE"})
	f.store.SetFault("InsertCommit", assert.AnError)

	push := `{"ref": "refs/heads/main", "after": "c3", "commits": [{"id": "c3"}],
		"repository": {"id": 42, "full_name": "octo/demo"}}`
	_, err := f.svc.HandleDelivery(ctx, Delivery{ID: "d-1", EventType: "push", HookID: 777, Payload: []byte(push)})
	require.Error(t, err)

	sub, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sub.FailureCount)
	assert.Contains(t, sub.LastError.String, assert.AnError.Error())
}

func TestAcceptDelivery_QueuesEventsAndRecordsPings(t *testing.T) {
	f := newFixture(t, 16)
	ctx := context.Background()
	repo := f.store.AddRepository(database.RemoteRepository{
		UserID: f.user.ID, ProviderID: 42, Owner: "octo", Name: "demo", DefaultBranch: "main",
	})
	f.store.AddWebhookSubscription(database.WebhookSubscription{RepositoryID: repo.ID, ProviderWebhookID: "777", Status: "ACTIVE"})

	ev, err := f.svc.AcceptDelivery(ctx, Delivery{ID: "d-0", EventType: "push", Payload: []byte(`{not json`)})
	assert.Error(t, err)
	assert.Nil(t, ev)

	ping := `{"zen": "Keep it logically awesome.", "hook_id": 777, "repository": {"id": 42, "full_name": "octo/demo"}}`
	ev, err = f.svc.AcceptDelivery(ctx, Delivery{ID: "d-1", EventType: "ping", Payload: []byte(ping)})
	require.NoError(t, err)
	require.NotNil(t, ev.Ping)
	assert.Zero(t, f.svc.PendingDeliveries())
	sub, err := f.store.GetWebhookSubscription(ctx, repo.ID)
	require.NoError(t, err)
	assert.True(t, sub.LastDeliveryAt.Valid, "pings are recorded without queueing")

	push := `{"ref": "refs/heads/main", "after": "c3", "commits": [{"id": "c3"}],
		"repository": {"id": 42, "full_name": "octo/demo"}}`
	ev, err = f.svc.AcceptDelivery(ctx, Delivery{ID: "d-2", EventType: "push", HookID: 777, Payload: []byte(push)})
	require.NoError(t, err)
	require.NotNil(t, ev.Push)
	assert.Equal(t, 1, f.svc.PendingDeliveries())
	commits, err := f.store.ListCommits(ctx, repo.ID)
	require.NoError(t, err)
	assert.Empty(t, commits)

	f.svc.Start(ctx)
	t.Cleanup(f.svc.Stop)
	assert.Eventually(t, func() bool {
		commits, err := f.store.ListCommits(ctx, repo.ID)
		return err == nil && len(commits) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, f.svc.PendingDeliveries())
}
