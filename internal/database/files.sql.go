// internal/database/files.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const upsertTrackedFile = `-- name: UpsertTrackedFile :exec
INSERT INTO tracked_files (
    repository_id, branch, path, name, type, sha, size, language, content
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (repository_id, branch, path) DO UPDATE SET
    name = EXCLUDED.name,
    type = EXCLUDED.type,
    sha = EXCLUDED.sha,
    size = EXCLUDED.size,
    language = EXCLUDED.language,
    content = EXCLUDED.content,
    updated_at = now()
`

type UpsertTrackedFileParams struct {
	RepositoryID int64
	Branch       string
	Path         string
	Name         string
	Type         string
	Sha          string
	Size         int64
	Language     pgtype.Text
	Content      pgtype.Text
}

func (q *Queries) UpsertTrackedFile(ctx context.Context, arg UpsertTrackedFileParams) error {
	_, err := q.db.Exec(ctx, upsertTrackedFile,
		arg.RepositoryID,
		arg.Branch,
		arg.Path,
		arg.Name,
		arg.Type,
		arg.Sha,
		arg.Size,
		arg.Language,
		arg.Content,
	)
	return err
}

const listTrackedFiles = `-- name: ListTrackedFiles :many
SELECT id, repository_id, branch, path, name, type, sha, size, language, content, updated_at
FROM tracked_files
WHERE repository_id = $1 AND branch = $2
ORDER BY path
`

type ListTrackedFilesParams struct {
	RepositoryID int64
	Branch       string
}

func (q *Queries) ListTrackedFiles(ctx context.Context, arg ListTrackedFilesParams) ([]TrackedFile, error) {
	rows, err := q.db.Query(ctx, listTrackedFiles, arg.RepositoryID, arg.Branch)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TrackedFile
	for rows.Next() {
		var i TrackedFile
		if err := rows.Scan(
			&i.ID,
			&i.RepositoryID,
			&i.Branch,
			&i.Path,
			&i.Name,
			&i.Type,
			&i.Sha,
			&i.Size,
			&i.Language,
			&i.Content,
			&i.UpdatedAt,
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
