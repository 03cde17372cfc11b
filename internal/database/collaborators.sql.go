// internal/database/collaborators.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const upsertCollaborator = `-- name: UpsertCollaborator :exec
INSERT INTO collaborators (
    repository_id, provider_user_id, login, avatar_url, permission, user_id
) VALUES (
    $1, $2, $3, $4, $5, $6
)
ON CONFLICT (repository_id, provider_user_id) DO UPDATE SET
    login = EXCLUDED.login,
    avatar_url = EXCLUDED.avatar_url,
    permission = EXCLUDED.permission,
    user_id = EXCLUDED.user_id,
    updated_at = now()
`

type UpsertCollaboratorParams struct {
	RepositoryID   int64
	ProviderUserID int64
	Login          string
	AvatarUrl      string
	Permission     string
	UserID         pgtype.Int8
}

func (q *Queries) UpsertCollaborator(ctx context.Context, arg UpsertCollaboratorParams) error {
	_, err := q.db.Exec(ctx, upsertCollaborator,
		arg.RepositoryID,
		arg.ProviderUserID,
		arg.Login,
		arg.AvatarUrl,
		arg.Permission,
		arg.UserID,
	)
	return err
}

const listCollaborators = `-- name: ListCollaborators :many
SELECT id, repository_id, provider_user_id, login, avatar_url, permission, user_id, updated_at
FROM collaborators
WHERE repository_id = $1
ORDER BY login
`

func (q *Queries) ListCollaborators(ctx context.Context, repositoryID int64) ([]Collaborator, error) {
	rows, err := q.db.Query(ctx, listCollaborators, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Collaborator
	for rows.Next() {
		var i Collaborator
		if err := rows.Scan(
			&i.ID,
			&i.RepositoryID,
			&i.ProviderUserID,
			&i.Login,
			&i.AvatarUrl,
			&i.Permission,
			&i.UserID,
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
