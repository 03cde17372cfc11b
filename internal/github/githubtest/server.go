// internal/github/githubtest/server.go

// Package githubtest serves canned GitHub REST responses for tests.
package githubtest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"repo-sync/internal/github"
)

// Server is an httptest server with overridable routes. A route key is
// "METHOD /path"; a key ending in "*" matches any path with that prefix.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	calls  map[string]int
}

func New(t *testing.T) *Server {
	s := &Server{
		routes: make(map[string]http.HandlerFunc),
		calls:  make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path

	s.mu.Lock()
	s.calls[key]++
	h, ok := s.routes[key]
	if !ok {
		var prefixes []string
		for k := range s.routes {
			if strings.HasSuffix(k, "*") && strings.HasPrefix(key, strings.TrimSuffix(k, "*")) {
				prefixes = append(prefixes, k)
			}
		}
		if len(prefixes) > 0 {
			sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
			h, ok = s.routes[prefixes[0]]
		}
	}
	s.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"message": "Not Found"}`)
		return
	}
	h(w, r)
}

// Handle registers or replaces a route.
func (s *Server) Handle(route string, h http.HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes[route] = h
}

// JSON registers a route answering with a fixed status and JSON body.
func (s *Server) JSON(route string, status int, body any) {
	s.Handle(route, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	})
}

// Fail makes a route answer with status and a GitHub-style error body.
func (s *Server) Fail(route string, status int) {
	s.JSON(route, status, map[string]string{"message": http.StatusText(status)})
}

// Calls returns how many requests hit "METHOD /path" exactly.
func (s *Server) Calls(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[key]
}

// CallsWithPrefix sums the requests whose "METHOD /path" starts with prefix.
func (s *Server) CallsWithPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, c := range s.calls {
		if strings.HasPrefix(k, prefix) {
			n += c
		}
	}
	return n
}

// Factory returns a client factory pointed at the server.
func (s *Server) Factory(t *testing.T) *github.Factory {
	f, err := github.NewFactory(s.URL, 5*time.Second, Logger())
	require.NoError(t, err)
	return f
}

// Logger returns a debug-level text logger on stderr.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// FastRetry is a retry policy suitable for tests.
func FastRetry() github.RetryPolicy {
	return github.RetryPolicy{
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
		MaxAttempts:     2,
		MaxResetWait:    time.Second,
	}
}

// Commit builds a commit payload as returned by the list and detail endpoints.
func Commit(sha, message, author string, date time.Time, parents ...string) map[string]any {
	ps := make([]map[string]string, 0, len(parents))
	for _, p := range parents {
		ps = append(ps, map[string]string{"sha": p})
	}
	return map[string]any{
		"sha":      sha,
		"html_url": "https://github.com/commit/" + sha,
		"commit": map[string]any{
			"message":   message,
			"author":    map[string]any{"name": author, "email": author + "@example.com", "date": date.Format(time.RFC3339)},
			"committer": map[string]any{"name": author, "email": author + "@example.com", "date": date.Format(time.RFC3339)},
		},
		"parents": ps,
		"stats":   map[string]int{"additions": 10, "deletions": 2, "total": 12},
	}
}

// File builds a contents API file payload.
func File(path, content string) map[string]any {
	name := path[strings.LastIndex(path, "/")+1:]
	return map[string]any{
		"type":     "file",
		"name":     name,
		"path":     path,
		"sha":      "blob-" + path,
		"size":     len(content),
		"encoding": "base64",
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
	}
}

// Entry builds one directory listing item.
func Entry(kind, path string, size int) map[string]any {
	name := path[strings.LastIndex(path, "/")+1:]
	return map[string]any{"type": kind, "name": name, "path": path, "sha": kind + "-" + path, "size": size}
}

// Demo is the repository served by Seed.
const (
	DemoOwner      = "octo"
	DemoName       = "demo"
	DemoFullName   = "octo/demo"
	DemoProviderID = 42
)

// Seed registers a complete fixture for octo/demo: metadata, languages,
// two branches, two commits, a small tree and two collaborators.
func (s *Server) Seed() {
	base := "/repos/" + DemoFullName
	t0 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	s.JSON("GET /user", http.StatusOK, map[string]any{"id": 7, "login": DemoOwner})
	s.JSON("GET "+base, http.StatusOK, map[string]any{
		"id":                DemoProviderID,
		"name":              DemoName,
		"full_name":         DemoFullName,
		"owner":             map[string]any{"login": DemoOwner},
		"description":       "demo repository",
		"html_url":          "https://github.com/" + DemoFullName,
		"default_branch":    "main",
		"private":           false,
		"stargazers_count":  5,
		"forks_count":       1,
		"open_issues_count": 2,
		"topics":            []string{"sync"},
		"permissions":       map[string]bool{"admin": true, "push": true, "pull": true},
	})
	s.JSON("GET "+base+"/languages", http.StatusOK, map[string]int{"Go": 1000, "Shell": 20})
	s.JSON("GET "+base+"/branches", http.StatusOK, []map[string]any{
		{"name": "main", "commit": map[string]string{"sha": "c2"}, "protected": true},
		{"name": "dev", "commit": map[string]string{"sha": "c1"}, "protected": false},
	})

	commits := map[string]map[string]any{
		"c1": Commit("c1", "initial commit", "alice", t0),
		"c2": Commit("c2", "add main\n\nlonger body", "bob", t0.Add(time.Hour), "c1"),
	}
	s.JSON("GET "+base+"/commits", http.StatusOK, []map[string]any{commits["c2"], commits["c1"]})
	s.Handle("GET "+base+"/commits/*", func(w http.ResponseWriter, r *http.Request) {
		sha := strings.TrimPrefix(r.URL.Path, base+"/commits/")
		c, ok := commits[sha]
		if !ok {
			c = Commit(sha, "commit "+sha, "carol", t0.Add(2*time.Hour), "c2")
		}
		_ = json.NewEncoder(w).Encode(c)
	})

	s.JSON("GET "+base+"/contents/", http.StatusOK, []map[string]any{
		Entry("file", "README.md", 6),
		Entry("dir", "src", 0),
		Entry("symlink", "link", 0),
	})
	s.JSON("GET "+base+"/contents/src", http.StatusOK, []map[string]any{
		Entry("file", "src/main.go", 13),
	})
	s.JSON("GET "+base+"/contents/README.md", http.StatusOK, File("README.md", "# demo"))
	s.JSON("GET "+base+"/contents/src/main.go", http.StatusOK, File("src/main.go", "package main\n"))

	s.JSON("GET "+base+"/collaborators", http.StatusOK, []map[string]any{
		{"id": 1, "login": "alice", "avatar_url": "https://avatars/alice", "permissions": map[string]bool{"admin": true, "maintain": true, "push": true, "triage": true, "pull": true}},
		{"id": 2, "login": "bob", "permissions": map[string]bool{"pull": true}},
	})
}
