// internal/database/webhooks.sql.go
package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const webhookColumns = `id, repository_id, provider_webhook_id, callback_url, events, status,
    secret_fingerprint, failure_count, last_error, last_delivery_at, created_at, updated_at`

func scanWebhookSubscription(row scanner) (WebhookSubscription, error) {
	var i WebhookSubscription
	err := row.Scan(
		&i.ID,
		&i.RepositoryID,
		&i.ProviderWebhookID,
		&i.CallbackUrl,
		&i.Events,
		&i.Status,
		&i.SecretFingerprint,
		&i.FailureCount,
		&i.LastError,
		&i.LastDeliveryAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getWebhookSubscription = `-- name: GetWebhookSubscription :one
SELECT ` + webhookColumns + ` FROM webhook_subscriptions
WHERE repository_id = $1
`

func (q *Queries) GetWebhookSubscription(ctx context.Context, repositoryID int64) (WebhookSubscription, error) {
	return scanWebhookSubscription(q.db.QueryRow(ctx, getWebhookSubscription, repositoryID))
}

const getWebhookSubscriptionForUpdate = `-- name: GetWebhookSubscriptionForUpdate :one
SELECT ` + webhookColumns + ` FROM webhook_subscriptions
WHERE repository_id = $1
FOR UPDATE
`

// GetWebhookSubscriptionForUpdate locks the row until the surrounding
// transaction ends.
func (q *Queries) GetWebhookSubscriptionForUpdate(ctx context.Context, repositoryID int64) (WebhookSubscription, error) {
	return scanWebhookSubscription(q.db.QueryRow(ctx, getWebhookSubscriptionForUpdate, repositoryID))
}

const getWebhookSubscriptionByProviderID = `-- name: GetWebhookSubscriptionByProviderID :one
SELECT ` + webhookColumns + ` FROM webhook_subscriptions
WHERE provider_webhook_id = $1
ORDER BY id
LIMIT 1
`

func (q *Queries) GetWebhookSubscriptionByProviderID(ctx context.Context, providerWebhookID string) (WebhookSubscription, error) {
	return scanWebhookSubscription(q.db.QueryRow(ctx, getWebhookSubscriptionByProviderID, providerWebhookID))
}

const upsertWebhookSubscription = `-- name: UpsertWebhookSubscription :one
INSERT INTO webhook_subscriptions (
    repository_id, provider_webhook_id, callback_url, events, status, secret_fingerprint, last_error
) VALUES (
    $1, $2, $3, COALESCE($4::text[], '{}'), $5, $6, $7
)
ON CONFLICT (repository_id) DO UPDATE SET
    failure_count = CASE
        WHEN webhook_subscriptions.provider_webhook_id = EXCLUDED.provider_webhook_id
        THEN webhook_subscriptions.failure_count
        ELSE 0
    END,
    provider_webhook_id = EXCLUDED.provider_webhook_id,
    callback_url = EXCLUDED.callback_url,
    events = EXCLUDED.events,
    status = EXCLUDED.status,
    secret_fingerprint = EXCLUDED.secret_fingerprint,
    last_error = EXCLUDED.last_error,
    updated_at = now()
RETURNING ` + webhookColumns

// UpsertWebhookSubscriptionParams keeps failure_count for the same hook and
// resets it when the stored hook ID changes.
type UpsertWebhookSubscriptionParams struct {
	RepositoryID      int64
	ProviderWebhookID string
	CallbackUrl       string
	Events            []string
	Status            string
	SecretFingerprint string
	LastError         pgtype.Text
}

func (q *Queries) UpsertWebhookSubscription(ctx context.Context, arg UpsertWebhookSubscriptionParams) (WebhookSubscription, error) {
	return scanWebhookSubscription(q.db.QueryRow(ctx, upsertWebhookSubscription,
		arg.RepositoryID,
		arg.ProviderWebhookID,
		arg.CallbackUrl,
		arg.Events,
		arg.Status,
		arg.SecretFingerprint,
		arg.LastError,
	))
}

const updateWebhookDelivery = `-- name: UpdateWebhookDelivery :exec
UPDATE webhook_subscriptions SET
    status = $2,
    failure_count = $3,
    last_error = $4,
    last_delivery_at = $5,
    updated_at = now()
WHERE id = $1
`

type UpdateWebhookDeliveryParams struct {
	ID             int64
	Status         string
	FailureCount   int32
	LastError      pgtype.Text
	LastDeliveryAt pgtype.Timestamptz
}

func (q *Queries) UpdateWebhookDelivery(ctx context.Context, arg UpdateWebhookDeliveryParams) error {
	_, err := q.db.Exec(ctx, updateWebhookDelivery,
		arg.ID,
		arg.Status,
		arg.FailureCount,
		arg.LastError,
		arg.LastDeliveryAt,
	)
	return err
}

const setWebhookSubscriptionStatus = `-- name: SetWebhookSubscriptionStatus :exec
UPDATE webhook_subscriptions SET
    status = $2,
    updated_at = now()
WHERE id = $1
`

type SetWebhookSubscriptionStatusParams struct {
	ID     int64
	Status string
}

func (q *Queries) SetWebhookSubscriptionStatus(ctx context.Context, arg SetWebhookSubscriptionStatusParams) error {
	_, err := q.db.Exec(ctx, setWebhookSubscriptionStatus, arg.ID, arg.Status)
	return err
}
