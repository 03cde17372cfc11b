// internal/github/client_test.go
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "repo-sync/internal/errors"
)

// setupTestClient creates a httptest server and a client pointing to it.
func setupTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	factory, err := NewFactory(server.URL, 5*time.Second, logger)
	require.NoError(t, err)

	return factory.ForToken("test-token"), server
}

func testPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsed:      5 * time.Second,
		MaxAttempts:     3,
		MaxResetWait:    5 * time.Second,
	}
}

func TestClient_GetRepository(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/test/repo", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		fmt.Fprintln(w, `{"id": 1, "name": "repo", "full_name": "test/repo", "owner": {"login": "test"},
			"default_branch": "main", "private": true, "stargazers_count": 3, "topics": ["go"],
			"license": {"spdx_id": "MIT"}}`)
	})
	client, _ := setupTestClient(t, handler)

	repo, err := client.GetRepository(context.Background(), "test", "repo")

	require.NoError(t, err)
	assert.Equal(t, int64(1), repo.ProviderID)
	assert.Equal(t, "test/repo", repo.FullName)
	assert.Equal(t, "private", repo.Visibility)
	assert.Equal(t, 3, repo.StarsCount)
	assert.Equal(t, []string{"go"}, repo.Topics)
	require.NotNil(t, repo.License)
	assert.Equal(t, "MIT", *repo.License)
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		header map[string]string
		body   string
		want   custom_errors.Kind
	}{
		{"not found", http.StatusNotFound, nil, `{"message": "Not Found"}`, custom_errors.KindNotFound},
		{"unauthorized", http.StatusUnauthorized, nil, `{"message": "Bad credentials"}`, custom_errors.KindUnauthorized},
		{"forbidden", http.StatusForbidden, nil, `{"message": "Resource not accessible"}`, custom_errors.KindForbidden},
		{"primary rate limit", http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1"}, `{"message": "API rate limit exceeded"}`, custom_errors.KindRateLimited},
		{"too many requests", http.StatusTooManyRequests, nil, `{"message": "slow down"}`, custom_errors.KindRateLimited},
		{"server error", http.StatusBadGateway, nil, `{"message": "bad gateway"}`, custom_errors.KindTransient},
		{"unprocessable", http.StatusUnprocessableEntity, nil, `{"message": "Validation Failed"}`, custom_errors.KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.header {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
				fmt.Fprintln(w, tt.body)
			})
			client, _ := setupTestClient(t, handler)

			_, err := client.GetRepository(context.Background(), "test", "repo")

			require.Error(t, err)
			var pErr *custom_errors.ProviderError
			require.ErrorAs(t, err, &pErr)
			assert.Equal(t, tt.want, pErr.Kind)
			assert.Equal(t, tt.status, pErr.Status)
		})
	}
}

func TestClient_Call(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/test/repo/hooks", r.URL.Path)

		var body createHookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "web", body.Name)
		assert.Equal(t, "json", body.Config.ContentType)
		assert.Equal(t, "s3cr3t", body.Config.Secret)
		assert.Equal(t, []string{"push", "create"}, body.Events)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprintln(w, `{"id": 4242}`)
	})
	client, _ := setupTestClient(t, handler)

	id, err := client.CreateWebhook(context.Background(), "test", "repo", HookSpec{
		URL:    "https://sync.example.com/webhooks/github",
		Secret: "s3cr3t",
		Events: []string{"push", "create"},
	})

	require.NoError(t, err)
	assert.Equal(t, int64(4242), id)
}

func TestClient_ListCollaborators_Paginates(t *testing.T) {
	var requests int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		page := r.URL.Query().Get("page")
		if page == "1" {
			batch := make([]collaboratorPayload, PageSize)
			for i := range batch {
				batch[i] = collaboratorPayload{ID: int64(i + 1), Login: fmt.Sprintf("user%d", i+1)}
			}
			_ = json.NewEncoder(w).Encode(batch)
			return
		}
		fmt.Fprintln(w, `[{"id": 999, "login": "admin", "permissions": {"admin": true, "push": true, "pull": true}}]`)
	})
	client, _ := setupTestClient(t, handler)

	collaborators, err := client.ListCollaborators(context.Background(), "test", "repo")

	require.NoError(t, err)
	assert.Len(t, collaborators, PageSize+1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
	assert.True(t, collaborators[PageSize].Permissions.Admin)
}

func TestClient_ResolveTagCommit(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/repos/test/repo/git/ref/tags/v1.0.0":
			fmt.Fprintln(w, `{"ref": "refs/tags/v1.0.0", "object": {"type": "tag", "sha": "tagobj"}}`)
		case "/repos/test/repo/git/tags/tagobj":
			fmt.Fprintln(w, `{"sha": "tagobj", "object": {"type": "commit", "sha": "abc123"}}`)
		default:
			http.NotFound(w, r)
		}
	})
	client, _ := setupTestClient(t, handler)

	sha, err := client.ResolveTagCommit(context.Background(), "test", "repo", "v1.0.0")

	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)
}

func TestRetry(t *testing.T) {
	t.Run("retries on 503 server error and succeeds", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requestCount, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, _ := setupTestClient(t, handler)

		err := Retry(context.Background(), testPolicy(), func() error {
			_, err := client.GetRepository(context.Background(), "test", "repo")
			return err
		})

		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount), "should have made two requests")
	})

	t.Run("waits for rate limit reset", func(t *testing.T) {
		var requestCount int32
		resetTime := time.Now().Add(time.Second)
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&requestCount, 1) == 1 {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime.Unix()))
				w.WriteHeader(http.StatusForbidden)
				fmt.Fprintln(w, `{"message": "API rate limit exceeded"}`)
				return
			}
			fmt.Fprintln(w, `{"id": 1, "name": "repo", "owner": {"login": "test"}}`)
		})
		client, _ := setupTestClient(t, handler)

		err := Retry(context.Background(), testPolicy(), func() error {
			_, err := client.GetRepository(context.Background(), "test", "repo")
			return err
		})

		require.NoError(t, err)
		assert.False(t, time.Now().Before(time.Unix(resetTime.Unix(), 0)), "should wait for the rate limit reset")
		assert.Equal(t, int32(2), atomic.LoadInt32(&requestCount))
	})

	t.Run("does not retry not found", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusNotFound)
		})
		client, _ := setupTestClient(t, handler)

		err := Retry(context.Background(), testPolicy(), func() error {
			_, err := client.GetRepository(context.Background(), "test", "repo")
			return err
		})

		assert.True(t, custom_errors.IsKind(err, custom_errors.KindNotFound))
		assert.Equal(t, int32(1), atomic.LoadInt32(&requestCount))
	})

	t.Run("fails after max attempts on persistent server error", func(t *testing.T) {
		var requestCount int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requestCount, 1)
			w.WriteHeader(http.StatusInternalServerError)
		})
		client, _ := setupTestClient(t, handler)
		policy := testPolicy()

		err := Retry(context.Background(), policy, func() error {
			_, err := client.GetRepository(context.Background(), "test", "repo")
			return err
		})

		require.Error(t, err)
		var ghErr *github.ErrorResponse
		assert.ErrorAs(t, err, &ghErr)
		assert.Equal(t, http.StatusInternalServerError, ghErr.Response.StatusCode)
		assert.Equal(t, int32(policy.MaxAttempts), atomic.LoadInt32(&requestCount))
	})
}
