// internal/discovery/discovery_test.go
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

type ghRepo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func repoPage(ids ...int64) []ghRepo {
	out := make([]ghRepo, 0, len(ids))
	for _, id := range ids {
		r := ghRepo{ID: id, Name: fmt.Sprintf("repo-%d", id), FullName: fmt.Sprintf("octo/repo-%d", id)}
		r.Owner.Login = "octo"
		out = append(out, r)
	}
	return out
}

func rangeIDs(from, n int64) []int64 {
	ids := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		ids = append(ids, from+i)
	}
	return ids
}

func newDiscoverer(t *testing.T, handler http.Handler) *Discoverer {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	factory, err := github.NewFactory(server.URL, 5*time.Second, logger)
	require.NoError(t, err)

	return New(factory, github.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
		MaxAttempts:     2,
		MaxResetWait:    time.Second,
	}, logger)
}

func TestDiscover_MergesAffiliationsByProviderID(t *testing.T) {
	pages := map[string]map[int][]ghRepo{
		"owner": {
			1: repoPage(rangeIDs(1, github.PageSize)...),
			2: repoPage(101),
		},
		"collaborator":        {1: repoPage(5, 200, 101)},
		"organization_member": {1: repoPage(200, 300)},
	}
	var listCalls int32
	handler := http.NewServeMux()
	handler.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"id": 7, "login": "octo"}`)
	})
	handler.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
		assert.Equal(t, "all", r.URL.Query().Get("visibility"))
		assert.Equal(t, "100", r.URL.Query().Get("per_page"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		batch := pages[r.URL.Query().Get("affiliation")][page]
		if batch == nil {
			batch = []ghRepo{}
		}
		_ = json.NewEncoder(w).Encode(batch)
	})
	d := newDiscoverer(t, handler)

	repos, err := d.Discover(context.Background(), "token", nil)

	require.NoError(t, err)
	assert.Len(t, repos, 103)
	assert.Equal(t, int32(4), atomic.LoadInt32(&listCalls), "owner pages twice, the others once")

	seen := make(map[int64]int)
	for _, r := range repos {
		seen[r.ProviderID]++
	}
	for id, count := range seen {
		assert.Equal(t, 1, count, "provider ID %d listed more than once", id)
	}
	assert.Contains(t, seen, int64(300))
}

func TestDiscover_InvalidTokenReturnsCached(t *testing.T) {
	var listCalls int32
	handler := http.NewServeMux()
	handler.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, `{"message": "Bad credentials"}`)
	})
	handler.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&listCalls, 1)
	})
	d := newDiscoverer(t, handler)
	cached := []model.RemoteRepository{{ProviderID: 1, FullName: "octo/cached"}}

	res, err := d.Refresh(context.Background(), "revoked", cached)

	require.NoError(t, err)
	assert.Equal(t, cached, res.Repositories)
	assert.True(t, res.Cached)
	assert.Zero(t, atomic.LoadInt32(&listCalls))
}

func TestDiscover_SkipsFailingAffiliation(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"id": 7, "login": "octo"}`)
	})
	handler.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("affiliation") == "collaborator" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(repoPage(1))
	})
	d := newDiscoverer(t, handler)

	res, err := d.Refresh(context.Background(), "token", []model.RemoteRepository{{ProviderID: 99}})

	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Repositories, 1)
	assert.Equal(t, int64(1), res.Repositories[0].ProviderID)
}

func TestDiscover_AllAffiliationsFailReturnsCached(t *testing.T) {
	handler := http.NewServeMux()
	handler.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"id": 7, "login": "octo"}`)
	})
	handler.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, `{"message": "Resource not accessible by integration"}`)
	})
	d := newDiscoverer(t, handler)
	cached := []model.RemoteRepository{{ProviderID: 99, FullName: "octo/cached"}}

	res, err := d.Refresh(context.Background(), "token", cached)

	require.NoError(t, err)
	assert.Equal(t, cached, res.Repositories)
	assert.True(t, res.Cached)
}

func TestMerge_FirstOccurrenceWins(t *testing.T) {
	repos := []model.RemoteRepository{
		{ProviderID: 1, FullName: "octo/first"},
		{ProviderID: 2, FullName: "octo/two"},
		{ProviderID: 1, FullName: "octo/renamed"},
	}

	merged := Merge(repos)

	require.Len(t, merged, 2)
	assert.Equal(t, "octo/first", merged[0].FullName)
}
