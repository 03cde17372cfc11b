// internal/database/commits.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const commitExists = `-- name: CommitExists :one
SELECT EXISTS (
    SELECT 1 FROM commits WHERE repository_id = $1 AND sha = $2
)
`

type CommitExistsParams struct {
	RepositoryID int64
	Sha          string
}

func (q *Queries) CommitExists(ctx context.Context, arg CommitExistsParams) (bool, error) {
	row := q.db.QueryRow(ctx, commitExists, arg.RepositoryID, arg.Sha)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const insertCommit = `-- name: InsertCommit :execrows
INSERT INTO commits (
    repository_id, sha, message, author_name, author_email, author_date, committer_name,
    committer_email, committer_date, additions, deletions, total, parent_shas, url
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13::text[], '{}'), $14
)
ON CONFLICT (repository_id, sha) DO NOTHING
`

type InsertCommitParams struct {
	RepositoryID   int64
	Sha            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     pgtype.Timestamptz
	CommitterName  string
	CommitterEmail string
	CommitterDate  pgtype.Timestamptz
	Additions      int32
	Deletions      int32
	Total          int32
	ParentShas     []string
	Url            string
}

// InsertCommit returns 0 when the SHA is already stored for the repository.
func (q *Queries) InsertCommit(ctx context.Context, arg InsertCommitParams) (int64, error) {
	result, err := q.db.Exec(ctx, insertCommit,
		arg.RepositoryID,
		arg.Sha,
		arg.Message,
		arg.AuthorName,
		arg.AuthorEmail,
		arg.AuthorDate,
		arg.CommitterName,
		arg.CommitterEmail,
		arg.CommitterDate,
		arg.Additions,
		arg.Deletions,
		arg.Total,
		arg.ParentShas,
		arg.Url,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listCommits = `-- name: ListCommits :many
SELECT id, repository_id, sha, message, author_name, author_email, author_date, committer_name,
    committer_email, committer_date, additions, deletions, total, parent_shas, url, created_at
FROM commits
WHERE repository_id = $1
ORDER BY author_date DESC NULLS LAST, id DESC
`

func (q *Queries) ListCommits(ctx context.Context, repositoryID int64) ([]Commit, error) {
	rows, err := q.db.Query(ctx, listCommits, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Commit
	for rows.Next() {
		var i Commit
		if err := rows.Scan(
			&i.ID,
			&i.RepositoryID,
			&i.Sha,
			&i.Message,
			&i.AuthorName,
			&i.AuthorEmail,
			&i.AuthorDate,
			&i.CommitterName,
			&i.CommitterEmail,
			&i.CommitterDate,
			&i.Additions,
			&i.Deletions,
			&i.Total,
			&i.ParentShas,
			&i.Url,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
