// internal/database/dbtest/store.go

// Package dbtest provides an in-memory database.Store for unit tests.
package dbtest

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/lo"

	"repo-sync/internal/database"
)

type branchKey struct {
	repoID int64
	name   string
}

type fileKey struct {
	repoID int64
	branch string
	path   string
}

type collaboratorKey struct {
	repoID int64
	userID int64
}

// Store mimics the Postgres queries closely enough for unit tests: unique
// keys, the sync status lease and NULL-preserving upserts. Transactions are
// serialized but never rolled back.
type Store struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID int64

	users         map[int64]database.User
	repos         map[int64]database.RemoteRepository
	branches      map[branchKey]database.Branch
	commits       map[int64][]database.Commit
	files         map[fileKey]database.TrackedFile
	collaborators map[collaboratorKey]database.Collaborator
	webhooks      map[int64]database.WebhookSubscription

	// Faults makes the named Querier method return the given error.
	Faults map[string]error
}

var _ database.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		users:         make(map[int64]database.User),
		repos:         make(map[int64]database.RemoteRepository),
		branches:      make(map[branchKey]database.Branch),
		commits:       make(map[int64][]database.Commit),
		files:         make(map[fileKey]database.TrackedFile),
		collaborators: make(map[collaboratorKey]database.Collaborator),
		webhooks:      make(map[int64]database.WebhookSubscription),
		Faults:        make(map[string]error),
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) fault(method string) error {
	return s.Faults[method]
}

// SetFault installs or clears (err == nil) a fault for method.
func (s *Store) SetFault(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.Faults, method)
		return
	}
	s.Faults[method] = err
}

func (s *Store) ExecTx(ctx context.Context, fn func(database.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

// AddUser inserts a user and returns it with its assigned ID.
func (s *Store) AddUser(username, githubLogin, token string) database.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := database.User{
		ID:          s.id(),
		Username:    username,
		GithubLogin: database.TextOf(githubLogin),
		AccessToken: database.TextOf(token),
		CreatedAt:   time.Now(),
	}
	s.users[u.ID] = u
	return u
}

// AddRepository inserts r as-is, assigning an ID and defaults.
func (s *Store) AddRepository(r database.RemoteRepository) database.RemoteRepository {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.id()
	if r.SyncStatus == "" {
		r.SyncStatus = "IDLE"
	}
	if r.FullName == "" {
		r.FullName = r.Owner + "/" + r.Name
	}
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	s.repos[r.ID] = r
	return r
}

// AddWebhookSubscription inserts w as-is.
func (s *Store) AddWebhookSubscription(w database.WebhookSubscription) database.WebhookSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.ID = s.id()
	w.CreatedAt = time.Now()
	w.UpdatedAt = w.CreatedAt
	s.webhooks[w.RepositoryID] = w
	return w
}

func (s *Store) GetUser(ctx context.Context, id int64) (database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("GetUser"); err != nil {
		return database.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return database.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByGithubLogin(ctx context.Context, login string) (database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range sortedKeys(s.users) {
		u := s.users[id]
		if u.GithubLogin.Valid && strings.EqualFold(u.GithubLogin.String, login) {
			return u, nil
		}
	}
	return database.User{}, pgx.ErrNoRows
}

func (s *Store) ListUsersWithToken(ctx context.Context) ([]database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListUsersWithToken"); err != nil {
		return nil, err
	}
	var out []database.User
	for _, id := range sortedKeys(s.users) {
		u := s.users[id]
		if u.AccessToken.Valid && u.AccessToken.String != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) GetRepository(ctx context.Context, id int64) (database.RemoteRepository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return database.RemoteRepository{}, pgx.ErrNoRows
	}
	return r, nil
}

func (s *Store) filterRepos(keep func(database.RemoteRepository) bool) []database.RemoteRepository {
	var out []database.RemoteRepository
	for _, id := range sortedKeys(s.repos) {
		if r := s.repos[id]; keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) ListRepositoriesByUser(ctx context.Context, userID int64) ([]database.RemoteRepository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("ListRepositoriesByUser"); err != nil {
		return nil, err
	}
	out := s.filterRepos(func(r database.RemoteRepository) bool { return r.UserID == userID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (s *Store) ListRepositoriesByFullName(ctx context.Context, fullName string) ([]database.RemoteRepository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterRepos(func(r database.RemoteRepository) bool { return strings.EqualFold(r.FullName, fullName) }), nil
}

func (s *Store) ListRepositoriesByProviderID(ctx context.Context, providerID int64) ([]database.RemoteRepository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filterRepos(func(r database.RemoteRepository) bool { return r.ProviderID == providerID }), nil
}

func applyMetadata(r *database.RemoteRepository, m database.RepositoryMetadata) {
	r.Owner = m.Owner
	r.Name = m.Name
	r.FullName = m.FullName
	r.Description = m.Description
	r.HtmlUrl = m.HtmlUrl
	r.Private = m.Private
	r.Visibility = m.Visibility
	r.DefaultBranch = m.DefaultBranch
	r.Language = m.Language
	r.Size = m.Size
	r.StarsCount = m.StarsCount
	r.ForksCount = m.ForksCount
	r.WatchersCount = m.WatchersCount
	r.OpenIssuesCount = m.OpenIssuesCount
	r.Fork = m.Fork
	r.Archived = m.Archived
	r.License = m.License
	r.Topics = m.Topics
	if r.Topics == nil {
		r.Topics = []string{}
	}
	r.RepoCreatedAt = m.RepoCreatedAt
	r.RepoUpdatedAt = m.RepoUpdatedAt
	r.RepoPushedAt = m.RepoPushedAt
	r.UpdatedAt = time.Now()
}

func (s *Store) UpsertDiscoveredRepository(ctx context.Context, arg database.UpsertDiscoveredRepositoryParams) (database.UpsertDiscoveredRepositoryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertDiscoveredRepository"); err != nil {
		return database.UpsertDiscoveredRepositoryRow{}, err
	}
	for id, r := range s.repos {
		if r.UserID == arg.UserID && r.ProviderID == arg.ProviderID {
			applyMetadata(&r, arg.RepositoryMetadata)
			s.repos[id] = r
			return database.UpsertDiscoveredRepositoryRow{ID: id}, nil
		}
	}
	r := database.RemoteRepository{
		ID:         s.id(),
		UserID:     arg.UserID,
		ProviderID: arg.ProviderID,
		SyncStatus: "IDLE",
		Languages:  map[string]int64{},
		CreatedAt:  time.Now(),
	}
	applyMetadata(&r, arg.RepositoryMetadata)
	s.repos[r.ID] = r
	return database.UpsertDiscoveredRepositoryRow{ID: r.ID, Inserted: true}, nil
}

func (s *Store) UpdateRepositoryMetadata(ctx context.Context, arg database.UpdateRepositoryMetadataParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpdateRepositoryMetadata"); err != nil {
		return err
	}
	r, ok := s.repos[arg.ID]
	if !ok {
		return nil
	}
	applyMetadata(&r, arg.RepositoryMetadata)
	r.Languages = arg.Languages
	if r.Languages == nil {
		r.Languages = map[string]int64{}
	}
	s.repos[arg.ID] = r
	return nil
}

func (s *Store) BeginRepositorySync(ctx context.Context, arg database.BeginRepositorySyncParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("BeginRepositorySync"); err != nil {
		return 0, err
	}
	r, ok := s.repos[arg.ID]
	if !ok {
		return 0, pgx.ErrNoRows
	}
	leaseHeld := r.SyncStatus == "SYNCING" && r.SyncStartedAt.Valid && !r.SyncStartedAt.Time.Before(arg.LeaseCutoff)
	if leaseHeld {
		return 0, pgx.ErrNoRows
	}
	r.SyncStatus = "SYNCING"
	r.SyncStartedAt = database.Timestamptz(arg.StartedAt)
	r.LastSyncError = pgtype.Text{}
	s.repos[arg.ID] = r
	return r.ID, nil
}

func (s *Store) CompleteRepositorySync(ctx context.Context, arg database.CompleteRepositorySyncParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("CompleteRepositorySync"); err != nil {
		return err
	}
	r, ok := s.repos[arg.ID]
	if !ok {
		return nil
	}
	r.SyncStatus = "COMPLETED"
	r.SyncStartedAt = pgtype.Timestamptz{}
	r.LastSyncAt = database.Timestamptz(arg.LastSyncAt)
	r.LastSyncError = pgtype.Text{}
	s.repos[arg.ID] = r
	return nil
}

func (s *Store) FailRepositorySync(ctx context.Context, arg database.FailRepositorySyncParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("FailRepositorySync"); err != nil {
		return err
	}
	r, ok := s.repos[arg.ID]
	if !ok {
		return nil
	}
	r.SyncStatus = "FAILED"
	r.SyncStartedAt = pgtype.Timestamptz{}
	r.LastSyncError = arg.LastSyncError
	s.repos[arg.ID] = r
	return nil
}

func (s *Store) GetBranch(ctx context.Context, arg database.GetBranchParams) (database.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchKey{arg.RepositoryID, arg.Name}]
	if !ok {
		return database.Branch{}, pgx.ErrNoRows
	}
	return b, nil
}

func (s *Store) ListBranches(ctx context.Context, repositoryID int64) ([]database.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Branch
	for k, b := range s.branches {
		if k.repoID == repositoryID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UpsertBranch(ctx context.Context, arg database.UpsertBranchParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertBranch"); err != nil {
		return err
	}
	key := branchKey{arg.RepositoryID, arg.Name}
	b, ok := s.branches[key]
	if !ok {
		b = database.Branch{ID: s.id(), RepositoryID: arg.RepositoryID, Name: arg.Name}
	}
	b.HeadSha = arg.HeadSha
	b.Protected = arg.Protected
	if arg.LastCommitMessage.Valid || !ok {
		b.LastCommitMessage = arg.LastCommitMessage
	}
	if arg.LastCommitAuthor.Valid || !ok {
		b.LastCommitAuthor = arg.LastCommitAuthor
	}
	if arg.LastCommitDate.Valid || !ok {
		b.LastCommitDate = arg.LastCommitDate
	}
	b.UpdatedAt = time.Now()
	s.branches[key] = b
	return nil
}

func (s *Store) UpdateBranchHead(ctx context.Context, arg database.UpdateBranchHeadParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := branchKey{arg.RepositoryID, arg.Name}
	b, ok := s.branches[key]
	if !ok {
		b = database.Branch{ID: s.id(), RepositoryID: arg.RepositoryID, Name: arg.Name}
	}
	b.HeadSha = arg.HeadSha
	b.LastCommitMessage = arg.LastCommitMessage
	b.LastCommitAuthor = arg.LastCommitAuthor
	b.LastCommitDate = arg.LastCommitDate
	b.UpdatedAt = time.Now()
	s.branches[key] = b
	return nil
}

func (s *Store) ResetDefaultBranch(ctx context.Context, arg database.ResetDefaultBranchParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, b := range s.branches {
		if k.repoID == arg.RepositoryID {
			b.IsDefault = b.Name == arg.Name
			s.branches[k] = b
		}
	}
	return nil
}

func (s *Store) CommitExists(ctx context.Context, arg database.CommitExistsParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commits[arg.RepositoryID] {
		if c.Sha == arg.Sha {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) InsertCommit(ctx context.Context, arg database.InsertCommitParams) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("InsertCommit"); err != nil {
		return 0, err
	}
	for _, c := range s.commits[arg.RepositoryID] {
		if c.Sha == arg.Sha {
			return 0, nil
		}
	}
	parents := arg.ParentShas
	if parents == nil {
		parents = []string{}
	}
	s.commits[arg.RepositoryID] = append(s.commits[arg.RepositoryID], database.Commit{
		ID:             s.id(),
		RepositoryID:   arg.RepositoryID,
		Sha:            arg.Sha,
		Message:        arg.Message,
		AuthorName:     arg.AuthorName,
		AuthorEmail:    arg.AuthorEmail,
		AuthorDate:     arg.AuthorDate,
		CommitterName:  arg.CommitterName,
		CommitterEmail: arg.CommitterEmail,
		CommitterDate:  arg.CommitterDate,
		Additions:      arg.Additions,
		Deletions:      arg.Deletions,
		Total:          arg.Total,
		ParentShas:     parents,
		Url:            arg.Url,
		CreatedAt:      time.Now(),
	})
	return 1, nil
}

func (s *Store) ListCommits(ctx context.Context, repositoryID int64) ([]database.Commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]database.Commit(nil), s.commits[repositoryID]...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AuthorDate.Time.After(out[j].AuthorDate.Time)
	})
	return out, nil
}

func (s *Store) UpsertTrackedFile(ctx context.Context, arg database.UpsertTrackedFileParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertTrackedFile"); err != nil {
		return err
	}
	key := fileKey{arg.RepositoryID, arg.Branch, arg.Path}
	f, ok := s.files[key]
	if !ok {
		f = database.TrackedFile{ID: s.id(), RepositoryID: arg.RepositoryID, Branch: arg.Branch, Path: arg.Path}
	}
	f.Name = arg.Name
	f.Type = arg.Type
	f.Sha = arg.Sha
	f.Size = arg.Size
	f.Language = arg.Language
	f.Content = arg.Content
	f.UpdatedAt = time.Now()
	s.files[key] = f
	return nil
}

func (s *Store) ListTrackedFiles(ctx context.Context, arg database.ListTrackedFilesParams) ([]database.TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.TrackedFile
	for k, f := range s.files {
		if k.repoID == arg.RepositoryID && k.branch == arg.Branch {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *Store) UpsertCollaborator(ctx context.Context, arg database.UpsertCollaboratorParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := collaboratorKey{arg.RepositoryID, arg.ProviderUserID}
	c, ok := s.collaborators[key]
	if !ok {
		c = database.Collaborator{ID: s.id(), RepositoryID: arg.RepositoryID, ProviderUserID: arg.ProviderUserID}
	}
	c.Login = arg.Login
	c.AvatarUrl = arg.AvatarUrl
	c.Permission = arg.Permission
	c.UserID = arg.UserID
	c.UpdatedAt = time.Now()
	s.collaborators[key] = c
	return nil
}

func (s *Store) ListCollaborators(ctx context.Context, repositoryID int64) ([]database.Collaborator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.Collaborator
	for k, c := range s.collaborators {
		if k.repoID == repositoryID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out, nil
}

func (s *Store) GetWebhookSubscription(ctx context.Context, repositoryID int64) (database.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.webhooks[repositoryID]
	if !ok {
		return database.WebhookSubscription{}, pgx.ErrNoRows
	}
	return w, nil
}

func (s *Store) GetWebhookSubscriptionForUpdate(ctx context.Context, repositoryID int64) (database.WebhookSubscription, error) {
	return s.GetWebhookSubscription(ctx, repositoryID)
}

func (s *Store) GetWebhookSubscriptionByProviderID(ctx context.Context, providerWebhookID string) (database.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *database.WebhookSubscription
	for _, w := range s.webhooks {
		if w.ProviderWebhookID == providerWebhookID && (found == nil || w.ID < found.ID) {
			w := w
			found = &w
		}
	}
	if found == nil {
		return database.WebhookSubscription{}, pgx.ErrNoRows
	}
	return *found, nil
}

func (s *Store) UpsertWebhookSubscription(ctx context.Context, arg database.UpsertWebhookSubscriptionParams) (database.WebhookSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fault("UpsertWebhookSubscription"); err != nil {
		return database.WebhookSubscription{}, err
	}
	w, ok := s.webhooks[arg.RepositoryID]
	if !ok {
		w = database.WebhookSubscription{ID: s.id(), RepositoryID: arg.RepositoryID, CreatedAt: time.Now()}
	}
	if w.ProviderWebhookID != arg.ProviderWebhookID {
		w.FailureCount = 0
	}
	w.ProviderWebhookID = arg.ProviderWebhookID
	w.CallbackUrl = arg.CallbackUrl
	w.Events = arg.Events
	if w.Events == nil {
		w.Events = []string{}
	}
	w.Status = arg.Status
	w.SecretFingerprint = arg.SecretFingerprint
	w.LastError = arg.LastError
	w.UpdatedAt = time.Now()
	s.webhooks[arg.RepositoryID] = w
	return w, nil
}

func (s *Store) updateWebhook(id int64, fn func(*database.WebhookSubscription)) {
	for k, w := range s.webhooks {
		if w.ID == id {
			fn(&w)
			w.UpdatedAt = time.Now()
			s.webhooks[k] = w
			return
		}
	}
}

func (s *Store) UpdateWebhookDelivery(ctx context.Context, arg database.UpdateWebhookDeliveryParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateWebhook(arg.ID, func(w *database.WebhookSubscription) {
		w.Status = arg.Status
		w.FailureCount = arg.FailureCount
		w.LastError = arg.LastError
		w.LastDeliveryAt = arg.LastDeliveryAt
	})
	return nil
}

func (s *Store) SetWebhookSubscriptionStatus(ctx context.Context, arg database.SetWebhookSubscriptionStatusParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateWebhook(arg.ID, func(w *database.WebhookSubscription) {
		w.Status = arg.Status
	})
	return nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
