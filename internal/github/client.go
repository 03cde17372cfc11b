// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"repo-sync/internal/model"
)

// PageSize is the fixed page size used for every paginated listing.
const PageSize = 100

// Client is a wrapper around the go-github client, bound to one user's token.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// Factory builds per-token clients sharing a base URL and an HTTP timeout.
type Factory struct {
	baseURL *url.URL
	timeout time.Duration
	logger  *slog.Logger
}

// NewFactory validates the optional API base URL and returns a Factory.
// An empty baseURL targets api.github.com.
func NewFactory(baseURL string, timeout time.Duration, logger *slog.Logger) (*Factory, error) {
	f := &Factory{timeout: timeout, logger: logger}
	if baseURL == "" {
		return f, nil
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid GitHub API base URL %q: %w", baseURL, err)
	}
	f.baseURL = u
	return f, nil
}

// ForToken returns a client authenticated with the given access token.
func (f *Factory) ForToken(token string) *Client {
	c := newClient(token, f.timeout, f.logger)
	if f.baseURL != nil {
		u := *f.baseURL
		c.gh.BaseURL = &u
	}
	return c
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	return newClient(token, 0, logger)
}

func newClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = timeout

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// Call executes an authenticated request against path (relative to the API
// base URL) and decodes a 2xx JSON body into v. Non-2xx responses come back
// as a classified *errors.ProviderError.
func (c *Client) Call(ctx context.Context, method, path string, body, v any) error {
	req, err := c.gh.NewRequest(method, path, body)
	if err != nil {
		return classify(method+" "+path, err)
	}
	if _, err := c.gh.Do(ctx, req, v); err != nil {
		return classify(method+" "+path, err)
	}
	return nil
}

// Identity validates the token by fetching the authenticated user.
func (c *Client) Identity(ctx context.Context) (*model.Identity, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return nil, classify("get authenticated user", err)
	}
	return &model.Identity{ID: u.GetID(), Login: u.GetLogin()}, nil
}

// ListRepositoriesPage fetches one page of the authenticated user's repositories
// for a single affiliation, across all visibilities.
func (c *Client) ListRepositoriesPage(ctx context.Context, affiliation string, page int) ([]model.RemoteRepository, error) {
	c.logger.Debug("Fetching repositories page", "affiliation", affiliation, "page", page)

	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Visibility:  "all",
		Affiliation: affiliation,
		ListOptions: github.ListOptions{Page: page, PerPage: PageSize},
	}
	repos, _, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return nil, classify("list repositories ("+affiliation+")", err)
	}

	out := make([]model.RemoteRepository, 0, len(repos))
	for _, r := range repos {
		out = append(out, *toInternalRepository(r))
	}
	return out, nil
}

// GetRepository fetches repository details and translates them to our internal model.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.RemoteRepository, error) {
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, classify("get repository "+owner+"/"+name, err)
	}
	return toInternalRepository(repo), nil
}

// GetRepositoryPermissions reads the caller's permission set on a repository.
func (c *Client) GetRepositoryPermissions(ctx context.Context, owner, name string) (model.PermissionSet, error) {
	var resp struct {
		Permissions model.PermissionSet `json:"permissions"`
	}
	if err := c.Call(ctx, http.MethodGet, fmt.Sprintf("repos/%s/%s", owner, name), nil, &resp); err != nil {
		return model.PermissionSet{}, err
	}
	return resp.Permissions, nil
}

// ListLanguages returns the per-language byte counts of a repository.
func (c *Client) ListLanguages(ctx context.Context, owner, name string) (map[string]int64, error) {
	langs, _, err := c.gh.Repositories.ListLanguages(ctx, owner, name)
	if err != nil {
		return nil, classify("list languages "+owner+"/"+name, err)
	}
	out := make(map[string]int64, len(langs))
	for k, v := range langs {
		out[k] = int64(v)
	}
	return out, nil
}

// ListBranches fetches all branches of a repository.
// It handles API pagination transparently.
func (c *Client) ListBranches(ctx context.Context, owner, name string) ([]model.Branch, error) {
	var all []model.Branch
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: PageSize}}

	for {
		branches, resp, err := c.gh.Repositories.ListBranches(ctx, owner, name, opts)
		if err != nil {
			return nil, classify("list branches "+owner+"/"+name, err)
		}
		for _, b := range branches {
			all = append(all, model.Branch{
				Name:      b.GetName(),
				HeadSHA:   b.GetCommit().GetSHA(),
				Protected: b.GetProtected(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// CommitQuery narrows a single-page commit listing.
type CommitQuery struct {
	SHA     string
	Path    string
	PerPage int
}

// ListCommits fetches a single bounded page of commits.
func (c *Client) ListCommits(ctx context.Context, owner, name string, q CommitQuery) ([]model.Commit, error) {
	perPage := q.PerPage
	if perPage <= 0 || perPage > PageSize {
		perPage = PageSize
	}
	opts := &github.CommitsListOptions{
		SHA:         q.SHA,
		Path:        q.Path,
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "sha", q.SHA)
	commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, name, opts)
	if err != nil {
		return nil, classify("list commits "+owner+"/"+name, err)
	}

	out := make([]model.Commit, 0, len(commits))
	for _, commit := range commits {
		out = append(out, toInternalCommit(commit))
	}
	return out, nil
}

// GetCommit fetches a single commit with its stats and parents.
func (c *Client) GetCommit(ctx context.Context, owner, name, sha string) (*model.Commit, error) {
	commit, _, err := c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
	if err != nil {
		return nil, classify("get commit "+sha, err)
	}
	out := toInternalCommit(commit)
	return &out, nil
}

// ListDirectory lists one directory level at ref. An empty path is the root.
func (c *Client) ListDirectory(ctx context.Context, owner, name, path, ref string) ([]model.ContentEntry, error) {
	_, dir, _, err := c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return nil, classify("list contents "+owner+"/"+name+"/"+path, err)
	}
	out := make([]model.ContentEntry, 0, len(dir))
	for _, e := range dir {
		out = append(out, model.ContentEntry{
			Type: e.GetType(),
			Name: e.GetName(),
			Path: e.GetPath(),
			SHA:  e.GetSHA(),
			Size: e.GetSize(),
		})
	}
	return out, nil
}

// GetFileContent fetches and decodes a single file at ref.
func (c *Client) GetFileContent(ctx context.Context, owner, name, path, ref string) (string, error) {
	file, _, _, err := c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", classify("get file "+owner+"/"+name+"/"+path, err)
	}
	if file == nil {
		return "", classify("get file "+path, fmt.Errorf("%s is not a file", path))
	}
	content, err := file.GetContent()
	if err != nil {
		return "", classify("decode file "+path, err)
	}
	return content, nil
}

type collaboratorPayload struct {
	ID          int64               `json:"id"`
	Login       string              `json:"login"`
	AvatarURL   string              `json:"avatar_url"`
	Permissions model.PermissionSet `json:"permissions"`
}

// ListCollaborators fetches every collaborator with their permission booleans.
func (c *Client) ListCollaborators(ctx context.Context, owner, name string) ([]model.Collaborator, error) {
	var all []model.Collaborator
	for page := 1; ; page++ {
		var batch []collaboratorPayload
		path := fmt.Sprintf("repos/%s/%s/collaborators?per_page=%d&page=%d", owner, name, PageSize, page)
		if err := c.Call(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return nil, err
		}
		for _, p := range batch {
			all = append(all, model.Collaborator{
				ProviderID:  p.ID,
				Login:       p.Login,
				AvatarURL:   p.AvatarURL,
				Permissions: p.Permissions,
			})
		}
		if len(batch) < PageSize {
			return all, nil
		}
	}
}

// HookSpec describes a repository webhook to create.
type HookSpec struct {
	URL    string
	Secret string
	Events []string
}

type hookConfigPayload struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Secret      string `json:"secret,omitempty"`
	InsecureSSL string `json:"insecure_ssl"`
}

type createHookPayload struct {
	Name   string            `json:"name"`
	Active bool              `json:"active"`
	Events []string          `json:"events"`
	Config hookConfigPayload `json:"config"`
}

// CreateWebhook registers a JSON webhook and returns its provider ID.
func (c *Client) CreateWebhook(ctx context.Context, owner, name string, spec HookSpec) (int64, error) {
	body := createHookPayload{
		Name:   "web",
		Active: true,
		Events: spec.Events,
		Config: hookConfigPayload{
			URL:         spec.URL,
			ContentType: "json",
			Secret:      spec.Secret,
			InsecureSSL: "0",
		},
	}
	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.Call(ctx, http.MethodPost, fmt.Sprintf("repos/%s/%s/hooks", owner, name), body, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteWebhook removes a repository webhook.
func (c *Client) DeleteWebhook(ctx context.Context, owner, name string, id int64) error {
	if _, err := c.gh.Repositories.DeleteHook(ctx, owner, name, id); err != nil {
		return classify(fmt.Sprintf("delete webhook %d", id), err)
	}
	return nil
}

// ResolveTagCommit returns the commit SHA a tag points at, dereferencing
// annotated tag objects.
func (c *Client) ResolveTagCommit(ctx context.Context, owner, name, tag string) (string, error) {
	ref, _, err := c.gh.Git.GetRef(ctx, owner, name, "tags/"+tag)
	if err != nil {
		return "", classify("get tag ref "+tag, err)
	}
	obj := ref.GetObject()
	if obj.GetType() != "tag" {
		return obj.GetSHA(), nil
	}
	annotated, _, err := c.gh.Git.GetTag(ctx, owner, name, obj.GetSHA())
	if err != nil {
		return "", classify("get annotated tag "+tag, err)
	}
	return annotated.GetObject().GetSHA(), nil
}

// toInternalRepository translates a github.Repository object to our internal model.RemoteRepository.
func toInternalRepository(r *github.Repository) *model.RemoteRepository {
	var license *string
	if id := r.GetLicense().GetSPDXID(); id != "" {
		license = &id
	}
	visibility := r.GetVisibility()
	if visibility == "" {
		visibility = "public"
		if r.GetPrivate() {
			visibility = "private"
		}
	}
	return &model.RemoteRepository{
		ProviderID:      r.GetID(),
		Owner:           r.GetOwner().GetLogin(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		Description:     r.Description,
		HTMLURL:         r.GetHTMLURL(),
		Private:         r.GetPrivate(),
		Visibility:      visibility,
		DefaultBranch:   r.GetDefaultBranch(),
		Language:        r.Language,
		Size:            r.GetSize(),
		StarsCount:      r.GetStargazersCount(),
		ForksCount:      r.GetForksCount(),
		WatchersCount:   r.GetWatchersCount(),
		OpenIssuesCount: r.GetOpenIssuesCount(),
		Fork:            r.GetFork(),
		Archived:        r.GetArchived(),
		License:         license,
		Topics:          r.Topics,
		RepoCreatedAt:   r.GetCreatedAt().Time,
		RepoUpdatedAt:   r.GetUpdatedAt().Time,
		RepoPushedAt:    r.GetPushedAt().Time,
	}
}

// toInternalCommit translates a github.RepositoryCommit object to our internal model.Commit.
func toInternalCommit(c *github.RepositoryCommit) model.Commit {
	parents := make([]string, 0, len(c.Parents))
	for _, p := range c.Parents {
		parents = append(parents, p.GetSHA())
	}
	return model.Commit{
		SHA:            c.GetSHA(),
		Message:        c.GetCommit().GetMessage(),
		AuthorName:     c.GetCommit().GetAuthor().GetName(),
		AuthorEmail:    c.GetCommit().GetAuthor().GetEmail(),
		AuthorDate:     c.GetCommit().GetAuthor().GetDate().Time,
		CommitterName:  c.GetCommit().GetCommitter().GetName(),
		CommitterEmail: c.GetCommit().GetCommitter().GetEmail(),
		CommitterDate:  c.GetCommit().GetCommitter().GetDate().Time,
		Additions:      c.GetStats().GetAdditions(),
		Deletions:      c.GetStats().GetDeletions(),
		Total:          c.GetStats().GetTotal(),
		ParentSHAs:     parents,
		URL:            c.GetHTMLURL(),
	}
}
