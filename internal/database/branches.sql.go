// internal/database/branches.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const branchColumns = `id, repository_id, name, head_sha, protected, is_default, last_commit_message,
    last_commit_author, last_commit_date, updated_at`

func scanBranch(row scanner) (Branch, error) {
	var i Branch
	err := row.Scan(
		&i.ID,
		&i.RepositoryID,
		&i.Name,
		&i.HeadSha,
		&i.Protected,
		&i.IsDefault,
		&i.LastCommitMessage,
		&i.LastCommitAuthor,
		&i.LastCommitDate,
		&i.UpdatedAt,
	)
	return i, err
}

const getBranch = `-- name: GetBranch :one
SELECT ` + branchColumns + ` FROM branches
WHERE repository_id = $1 AND name = $2
`

type GetBranchParams struct {
	RepositoryID int64
	Name         string
}

func (q *Queries) GetBranch(ctx context.Context, arg GetBranchParams) (Branch, error) {
	return scanBranch(q.db.QueryRow(ctx, getBranch, arg.RepositoryID, arg.Name))
}

const listBranches = `-- name: ListBranches :many
SELECT ` + branchColumns + ` FROM branches
WHERE repository_id = $1
ORDER BY name
`

func (q *Queries) ListBranches(ctx context.Context, repositoryID int64) ([]Branch, error) {
	rows, err := q.db.Query(ctx, listBranches, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Branch
	for rows.Next() {
		i, err := scanBranch(rows)
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

const upsertBranch = `-- name: UpsertBranch :exec
INSERT INTO branches (
    repository_id, name, head_sha, protected, last_commit_message, last_commit_author, last_commit_date
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (repository_id, name) DO UPDATE SET
    head_sha = EXCLUDED.head_sha,
    protected = EXCLUDED.protected,
    last_commit_message = COALESCE(EXCLUDED.last_commit_message, branches.last_commit_message),
    last_commit_author = COALESCE(EXCLUDED.last_commit_author, branches.last_commit_author),
    last_commit_date = COALESCE(EXCLUDED.last_commit_date, branches.last_commit_date),
    updated_at = now()
`

// UpsertBranchParams leaves the stored last-commit summary untouched when the
// summary fields are NULL.
type UpsertBranchParams struct {
	RepositoryID      int64
	Name              string
	HeadSha           string
	Protected         bool
	LastCommitMessage pgtype.Text
	LastCommitAuthor  pgtype.Text
	LastCommitDate    pgtype.Timestamptz
}

func (q *Queries) UpsertBranch(ctx context.Context, arg UpsertBranchParams) error {
	_, err := q.db.Exec(ctx, upsertBranch,
		arg.RepositoryID,
		arg.Name,
		arg.HeadSha,
		arg.Protected,
		arg.LastCommitMessage,
		arg.LastCommitAuthor,
		arg.LastCommitDate,
	)
	return err
}

const updateBranchHead = `-- name: UpdateBranchHead :exec
INSERT INTO branches (
    repository_id, name, head_sha, last_commit_message, last_commit_author, last_commit_date
) VALUES (
    $1, $2, $3, $4, $5, $6
)
ON CONFLICT (repository_id, name) DO UPDATE SET
    head_sha = EXCLUDED.head_sha,
    last_commit_message = EXCLUDED.last_commit_message,
    last_commit_author = EXCLUDED.last_commit_author,
    last_commit_date = EXCLUDED.last_commit_date,
    updated_at = now()
`

type UpdateBranchHeadParams struct {
	RepositoryID      int64
	Name              string
	HeadSha           string
	LastCommitMessage pgtype.Text
	LastCommitAuthor  pgtype.Text
	LastCommitDate    pgtype.Timestamptz
}

func (q *Queries) UpdateBranchHead(ctx context.Context, arg UpdateBranchHeadParams) error {
	_, err := q.db.Exec(ctx, updateBranchHead,
		arg.RepositoryID,
		arg.Name,
		arg.HeadSha,
		arg.LastCommitMessage,
		arg.LastCommitAuthor,
		arg.LastCommitDate,
	)
	return err
}

const resetDefaultBranch = `-- name: ResetDefaultBranch :exec
UPDATE branches SET is_default = (name = $2)
WHERE repository_id = $1
`

type ResetDefaultBranchParams struct {
	RepositoryID int64
	Name         string
}

func (q *Queries) ResetDefaultBranch(ctx context.Context, arg ResetDefaultBranchParams) error {
	_, err := q.db.Exec(ctx, resetDefaultBranch, arg.RepositoryID, arg.Name)
	return err
}
