// internal/database/repositories.sql.go
package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const repositoryColumns = `id, user_id, provider_id, owner, name, full_name, description, html_url, private,
    visibility, default_branch, language, size, stars_count, forks_count, watchers_count,
    open_issues_count, fork, archived, license, topics, languages, repo_created_at,
    repo_updated_at, repo_pushed_at, sync_status, sync_started_at, last_sync_at,
    last_sync_error, created_at, updated_at`

func scanRepository(row scanner) (RemoteRepository, error) {
	var i RemoteRepository
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.ProviderID,
		&i.Owner,
		&i.Name,
		&i.FullName,
		&i.Description,
		&i.HtmlUrl,
		&i.Private,
		&i.Visibility,
		&i.DefaultBranch,
		&i.Language,
		&i.Size,
		&i.StarsCount,
		&i.ForksCount,
		&i.WatchersCount,
		&i.OpenIssuesCount,
		&i.Fork,
		&i.Archived,
		&i.License,
		&i.Topics,
		&i.Languages,
		&i.RepoCreatedAt,
		&i.RepoUpdatedAt,
		&i.RepoPushedAt,
		&i.SyncStatus,
		&i.SyncStartedAt,
		&i.LastSyncAt,
		&i.LastSyncError,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectRepositories(rows pgx.Rows, err error) ([]RemoteRepository, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RemoteRepository
	for rows.Next() {
		i, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getRepository = `-- name: GetRepository :one
SELECT ` + repositoryColumns + ` FROM remote_repositories
WHERE id = $1
`

func (q *Queries) GetRepository(ctx context.Context, id int64) (RemoteRepository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepository, id))
}

const listRepositoriesByUser = `-- name: ListRepositoriesByUser :many
SELECT ` + repositoryColumns + ` FROM remote_repositories
WHERE user_id = $1
ORDER BY full_name
`

func (q *Queries) ListRepositoriesByUser(ctx context.Context, userID int64) ([]RemoteRepository, error) {
	return collectRepositories(q.db.Query(ctx, listRepositoriesByUser, userID))
}

const listRepositoriesByFullName = `-- name: ListRepositoriesByFullName :many
SELECT ` + repositoryColumns + ` FROM remote_repositories
WHERE lower(full_name) = lower($1)
ORDER BY id
`

func (q *Queries) ListRepositoriesByFullName(ctx context.Context, fullName string) ([]RemoteRepository, error) {
	return collectRepositories(q.db.Query(ctx, listRepositoriesByFullName, fullName))
}

const listRepositoriesByProviderID = `-- name: ListRepositoriesByProviderID :many
SELECT ` + repositoryColumns + ` FROM remote_repositories
WHERE provider_id = $1
ORDER BY id
`

func (q *Queries) ListRepositoriesByProviderID(ctx context.Context, providerID int64) ([]RemoteRepository, error) {
	return collectRepositories(q.db.Query(ctx, listRepositoriesByProviderID, providerID))
}

// RepositoryMetadata is the provider-owned part of a repository row.
type RepositoryMetadata struct {
	Owner           string
	Name            string
	FullName        string
	Description     pgtype.Text
	HtmlUrl         string
	Private         bool
	Visibility      string
	DefaultBranch   string
	Language        pgtype.Text
	Size            int32
	StarsCount      int32
	ForksCount      int32
	WatchersCount   int32
	OpenIssuesCount int32
	Fork            bool
	Archived        bool
	License         pgtype.Text
	Topics          []string
	RepoCreatedAt   pgtype.Timestamptz
	RepoUpdatedAt   pgtype.Timestamptz
	RepoPushedAt    pgtype.Timestamptz
}

func (m RepositoryMetadata) args() []any {
	return []any{
		m.Owner,
		m.Name,
		m.FullName,
		m.Description,
		m.HtmlUrl,
		m.Private,
		m.Visibility,
		m.DefaultBranch,
		m.Language,
		m.Size,
		m.StarsCount,
		m.ForksCount,
		m.WatchersCount,
		m.OpenIssuesCount,
		m.Fork,
		m.Archived,
		m.License,
		m.Topics,
		m.RepoCreatedAt,
		m.RepoUpdatedAt,
		m.RepoPushedAt,
	}
}

const upsertDiscoveredRepository = `-- name: UpsertDiscoveredRepository :one
INSERT INTO remote_repositories (
    user_id, provider_id, owner, name, full_name, description, html_url, private, visibility,
    default_branch, language, size, stars_count, forks_count, watchers_count, open_issues_count,
    fork, archived, license, topics, repo_created_at, repo_updated_at, repo_pushed_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
    COALESCE($20::text[], '{}'), $21, $22, $23
)
ON CONFLICT (user_id, provider_id) DO UPDATE SET
    owner = EXCLUDED.owner,
    name = EXCLUDED.name,
    full_name = EXCLUDED.full_name,
    description = EXCLUDED.description,
    html_url = EXCLUDED.html_url,
    private = EXCLUDED.private,
    visibility = EXCLUDED.visibility,
    default_branch = EXCLUDED.default_branch,
    language = EXCLUDED.language,
    size = EXCLUDED.size,
    stars_count = EXCLUDED.stars_count,
    forks_count = EXCLUDED.forks_count,
    watchers_count = EXCLUDED.watchers_count,
    open_issues_count = EXCLUDED.open_issues_count,
    fork = EXCLUDED.fork,
    archived = EXCLUDED.archived,
    license = EXCLUDED.license,
    topics = EXCLUDED.topics,
    repo_created_at = EXCLUDED.repo_created_at,
    repo_updated_at = EXCLUDED.repo_updated_at,
    repo_pushed_at = EXCLUDED.repo_pushed_at,
    updated_at = now()
RETURNING id, (xmax = 0) AS inserted
`

type UpsertDiscoveredRepositoryParams struct {
	UserID     int64
	ProviderID int64
	RepositoryMetadata
}

type UpsertDiscoveredRepositoryRow struct {
	ID       int64
	Inserted bool
}

func (q *Queries) UpsertDiscoveredRepository(ctx context.Context, arg UpsertDiscoveredRepositoryParams) (UpsertDiscoveredRepositoryRow, error) {
	args := append([]any{arg.UserID, arg.ProviderID}, arg.args()...)
	row := q.db.QueryRow(ctx, upsertDiscoveredRepository, args...)
	var i UpsertDiscoveredRepositoryRow
	err := row.Scan(&i.ID, &i.Inserted)
	return i, err
}

const updateRepositoryMetadata = `-- name: UpdateRepositoryMetadata :exec
UPDATE remote_repositories SET
    owner = $2,
    name = $3,
    full_name = $4,
    description = $5,
    html_url = $6,
    private = $7,
    visibility = $8,
    default_branch = $9,
    language = $10,
    size = $11,
    stars_count = $12,
    forks_count = $13,
    watchers_count = $14,
    open_issues_count = $15,
    fork = $16,
    archived = $17,
    license = $18,
    topics = COALESCE($19::text[], '{}'),
    repo_created_at = $20,
    repo_updated_at = $21,
    repo_pushed_at = $22,
    languages = $23,
    updated_at = now()
WHERE id = $1
`

type UpdateRepositoryMetadataParams struct {
	ID        int64
	Languages map[string]int64
	RepositoryMetadata
}

func (q *Queries) UpdateRepositoryMetadata(ctx context.Context, arg UpdateRepositoryMetadataParams) error {
	languages := arg.Languages
	if languages == nil {
		languages = map[string]int64{}
	}
	args := append([]any{arg.ID}, arg.args()...)
	args = append(args, languages)
	_, err := q.db.Exec(ctx, updateRepositoryMetadata, args...)
	return err
}

const beginRepositorySync = `-- name: BeginRepositorySync :one
UPDATE remote_repositories SET
    sync_status = 'SYNCING',
    sync_started_at = $2,
    last_sync_error = NULL,
    updated_at = now()
WHERE id = $1
  AND (sync_status <> 'SYNCING' OR sync_started_at IS NULL OR sync_started_at < $3)
RETURNING id
`

type BeginRepositorySyncParams struct {
	ID          int64
	StartedAt   time.Time
	LeaseCutoff time.Time
}

// BeginRepositorySync returns pgx.ErrNoRows when another pass holds a live lease.
func (q *Queries) BeginRepositorySync(ctx context.Context, arg BeginRepositorySyncParams) (int64, error) {
	row := q.db.QueryRow(ctx, beginRepositorySync, arg.ID, arg.StartedAt, arg.LeaseCutoff)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const completeRepositorySync = `-- name: CompleteRepositorySync :exec
UPDATE remote_repositories SET
    sync_status = 'COMPLETED',
    sync_started_at = NULL,
    last_sync_at = $2,
    last_sync_error = NULL,
    updated_at = now()
WHERE id = $1
`

type CompleteRepositorySyncParams struct {
	ID         int64
	LastSyncAt time.Time
}

func (q *Queries) CompleteRepositorySync(ctx context.Context, arg CompleteRepositorySyncParams) error {
	_, err := q.db.Exec(ctx, completeRepositorySync, arg.ID, arg.LastSyncAt)
	return err
}

const failRepositorySync = `-- name: FailRepositorySync :exec
UPDATE remote_repositories SET
    sync_status = 'FAILED',
    sync_started_at = NULL,
    last_sync_error = $2,
    updated_at = now()
WHERE id = $1
`

type FailRepositorySyncParams struct {
	ID            int64
	LastSyncError pgtype.Text
}

func (q *Queries) FailRepositorySync(ctx context.Context, arg FailRepositorySyncParams) error {
	_, err := q.db.Exec(ctx, failRepositorySync, arg.ID, arg.LastSyncError)
	return err
}
