// internal/database/users.sql.go
package database

import (
	"context"
)

const userColumns = `id, username, github_login, access_token, created_at`

func scanUser(row scanner) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Username,
		&i.GithubLogin,
		&i.AccessToken,
		&i.CreatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + ` FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUser, id))
}

const getUserByGithubLogin = `-- name: GetUserByGithubLogin :one
SELECT ` + userColumns + ` FROM users
WHERE lower(github_login) = lower($1)
LIMIT 1
`

func (q *Queries) GetUserByGithubLogin(ctx context.Context, login string) (User, error) {
	return scanUser(q.db.QueryRow(ctx, getUserByGithubLogin, login))
}

const listUsersWithToken = `-- name: ListUsersWithToken :many
SELECT ` + userColumns + ` FROM users
WHERE access_token IS NOT NULL AND access_token <> ''
ORDER BY id
`

func (q *Queries) ListUsersWithToken(ctx context.Context) ([]User, error) {
	rows, err := q.db.Query(ctx, listUsersWithToken)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
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
