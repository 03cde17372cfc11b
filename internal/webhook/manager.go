// internal/webhook/manager.go
package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"repo-sync/internal/database"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

// Events are the provider events every subscription asks for.
var Events = []string{"push", "create", "delete", "release"}

const DefaultFailureThreshold = 5

// Placeholder ID prefixes for subscriptions that have no provider webhook.
const (
	placeholderLocal    = "LOCAL"
	placeholderNoAccess = "NOACCESS"
	placeholderNotFound = "NOTFOUND"
	placeholderError    = "ERROR"
)

var (
	// ErrNotConfigured is returned when no callback URL is set.
	ErrNotConfigured = errors.New("webhook callback URL is not configured")
	// ErrNoSubscription is returned when a delivery matches no subscription.
	ErrNoSubscription = errors.New("no webhook subscription for delivery")
)

type Options struct {
	CallbackURL      string
	Secret           string
	FailureThreshold int
	Retry            github.RetryPolicy
}

// DeliveryRef identifies the subscription an inbound delivery belongs to.
// HookID is tried first, then the repository identity.
type DeliveryRef struct {
	HookID         int64
	RepoProviderID int64
	RepoFullName   string
}

// Manager creates, removes and health-tracks repository webhooks.
type Manager struct {
	store   database.Store
	clients *github.Factory
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
}

func NewManager(store database.Store, clients *github.Factory, opts Options, logger *slog.Logger) *Manager {
	if opts.FailureThreshold < 1 {
		opts.FailureThreshold = DefaultFailureThreshold
	}
	return &Manager{
		store:   store,
		clients: clients,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// Subscribe ensures repo has a webhook pointing at the callback URL. Cases
// the provider will never accept (unreachable callback, missing repository,
// no admin rights) are recorded as FAILED placeholders with a nil error.
func (m *Manager) Subscribe(ctx context.Context, repo database.RemoteRepository, token string) (database.WebhookSubscription, error) {
	if m.opts.CallbackURL == "" {
		return database.WebhookSubscription{}, ErrNotConfigured
	}
	logger := m.logger.With("repo", repo.FullName, "repo_id", repo.ID)

	existing, err := m.store.GetWebhookSubscription(ctx, repo.ID)
	if err == nil && existing.Status == string(model.WebhookActive) {
		return existing, nil
	} else if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return database.WebhookSubscription{}, fmt.Errorf("failed to load webhook subscription: %w", err)
	}

	client := m.clients.ForToken(token)

	// A FAILED or INACTIVE row can still point at a live provider hook. It
	// is removed before anything replaces the stored ID.
	if hookID, ok := ProviderHookID(existing.ProviderWebhookID); ok {
		if err := m.deleteRemote(ctx, client, repo, hookID); err != nil {
			logger.Error("Failed to remove previous webhook", "hook_id", hookID, "error", err)
			return existing, err
		}
		logger.Info("Removed previous webhook", "hook_id", hookID, "status", existing.Status)
	}

	if IsLocalCallback(m.opts.CallbackURL) {
		logger.Warn("Webhook callback is not reachable from the provider", "callback_url", m.opts.CallbackURL)
		return m.save(ctx, repo.ID, m.placeholder(placeholderLocal), model.WebhookFailed,
			"callback URL "+m.opts.CallbackURL+" is not publicly reachable")
	}

	var perms model.PermissionSet
	err = github.Retry(ctx, m.opts.Retry, func() error {
		var err error
		perms, err = client.GetRepositoryPermissions(ctx, repo.Owner, repo.Name)
		return err
	})
	switch {
	case custom_errors.IsKind(err, custom_errors.KindNotFound):
		logger.Warn("Repository not found on provider, not subscribing")
		return m.save(ctx, repo.ID, m.placeholder(placeholderNotFound), model.WebhookFailed, "repository not found")
	case custom_errors.IsKind(err, custom_errors.KindForbidden):
		return m.save(ctx, repo.ID, m.placeholder(placeholderNoAccess), model.WebhookFailed, "token cannot read repository hooks")
	case err != nil:
		return m.fail(ctx, repo.ID, logger, err)
	case !perms.Admin:
		logger.Info("No admin access, not subscribing")
		return m.save(ctx, repo.ID, m.placeholder(placeholderNoAccess), model.WebhookFailed, "admin permission required")
	}

	var hookID int64
	err = github.Retry(ctx, m.opts.Retry, func() error {
		var err error
		hookID, err = client.CreateWebhook(ctx, repo.Owner, repo.Name, github.HookSpec{
			URL:    m.opts.CallbackURL,
			Secret: m.opts.Secret,
			Events: Events,
		})
		return err
	})
	if err != nil {
		return m.fail(ctx, repo.ID, logger, err)
	}

	logger.Info("Webhook subscribed", "hook_id", hookID)
	return m.save(ctx, repo.ID, strconv.FormatInt(hookID, 10), model.WebhookActive, "")
}

// fail persists an ERROR placeholder and returns the cause.
func (m *Manager) fail(ctx context.Context, repoID int64, logger *slog.Logger, cause error) (database.WebhookSubscription, error) {
	logger.Error("Webhook subscription failed", "error", cause)
	sub, err := m.save(ctx, repoID, m.placeholder(placeholderError), model.WebhookFailed, cause.Error())
	if err != nil {
		return sub, errors.Join(cause, err)
	}
	return sub, fmt.Errorf("failed to subscribe webhook: %w", cause)
}

func (m *Manager) save(ctx context.Context, repoID int64, providerID string, status model.WebhookStatus, lastError string) (database.WebhookSubscription, error) {
	sub, err := m.store.UpsertWebhookSubscription(ctx, database.UpsertWebhookSubscriptionParams{
		RepositoryID:      repoID,
		ProviderWebhookID: providerID,
		CallbackUrl:       m.opts.CallbackURL,
		Events:            Events,
		Status:            string(status),
		SecretFingerprint: Fingerprint(m.opts.Secret),
		LastError:         database.TextOf(lastError),
	})
	if err != nil {
		return sub, fmt.Errorf("failed to save webhook subscription: %w", err)
	}
	return sub, nil
}

func (m *Manager) placeholder(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, m.now().Unix())
}

// Unsubscribe deletes the provider webhook if one exists and marks the
// subscription INACTIVE. A repository without a subscription is a no-op.
func (m *Manager) Unsubscribe(ctx context.Context, repo database.RemoteRepository, token string) error {
	sub, err := m.store.GetWebhookSubscription(ctx, repo.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to load webhook subscription: %w", err)
	}

	if hookID, ok := ProviderHookID(sub.ProviderWebhookID); ok {
		if err := m.deleteRemote(ctx, m.clients.ForToken(token), repo, hookID); err != nil {
			return err
		}
	}

	if err := m.store.SetWebhookSubscriptionStatus(ctx, database.SetWebhookSubscriptionStatusParams{
		ID:     sub.ID,
		Status: string(model.WebhookInactive),
	}); err != nil {
		return fmt.Errorf("failed to deactivate webhook subscription: %w", err)
	}
	m.logger.Info("Webhook unsubscribed", "repo", repo.FullName, "webhook_id", sub.ProviderWebhookID)
	return nil
}

// deleteRemote removes a provider hook. A hook that is already gone counts
// as removed.
func (m *Manager) deleteRemote(ctx context.Context, client *github.Client, repo database.RemoteRepository, hookID int64) error {
	err := github.Retry(ctx, m.opts.Retry, func() error {
		return client.DeleteWebhook(ctx, repo.Owner, repo.Name, hookID)
	})
	if err != nil && !custom_errors.IsKind(err, custom_errors.KindNotFound) {
		return fmt.Errorf("failed to delete webhook %d: %w", hookID, err)
	}
	return nil
}

// RecordDelivery applies one delivery outcome. Failures accumulate until
// the threshold flips the subscription to FAILED; a success clears the
// count and revives a FAILED subscription that has a real provider hook.
func (m *Manager) RecordDelivery(ctx context.Context, ref DeliveryRef, success bool, errMsg string) (database.WebhookSubscription, error) {
	var updated database.WebhookSubscription
	err := m.store.ExecTx(ctx, func(q database.Querier) error {
		sub, err := m.lockSubscription(ctx, q, ref)
		if err != nil {
			return err
		}

		params := database.UpdateWebhookDeliveryParams{
			ID:             sub.ID,
			Status:         sub.Status,
			LastDeliveryAt: database.Timestamptz(m.now()),
		}
		if success {
			params.FailureCount = 0
			if _, ok := ProviderHookID(sub.ProviderWebhookID); ok && sub.Status == string(model.WebhookFailed) {
				params.Status = string(model.WebhookActive)
			}
		} else {
			params.FailureCount = sub.FailureCount + 1
			params.LastError = database.TextOf(errMsg)
			if int(params.FailureCount) >= m.opts.FailureThreshold {
				params.Status = string(model.WebhookFailed)
			}
		}
		if err := q.UpdateWebhookDelivery(ctx, params); err != nil {
			return fmt.Errorf("failed to record delivery: %w", err)
		}

		if params.Status != sub.Status {
			m.logger.Warn("Webhook status changed", "repo_id", sub.RepositoryID,
				"from", sub.Status, "to", params.Status, "failures", params.FailureCount)
		}
		sub.Status = params.Status
		sub.FailureCount = params.FailureCount
		sub.LastError = params.LastError
		sub.LastDeliveryAt = params.LastDeliveryAt
		updated = sub
		return nil
	})
	return updated, err
}

func (m *Manager) lockSubscription(ctx context.Context, q database.Querier, ref DeliveryRef) (database.WebhookSubscription, error) {
	if ref.HookID != 0 {
		sub, err := q.GetWebhookSubscriptionByProviderID(ctx, strconv.FormatInt(ref.HookID, 10))
		if err == nil {
			return q.GetWebhookSubscriptionForUpdate(ctx, sub.RepositoryID)
		} else if !errors.Is(err, pgx.ErrNoRows) {
			return sub, err
		}
	}

	var (
		repos []database.RemoteRepository
		err   error
	)
	switch {
	case ref.RepoProviderID != 0:
		repos, err = q.ListRepositoriesByProviderID(ctx, ref.RepoProviderID)
	case ref.RepoFullName != "":
		repos, err = q.ListRepositoriesByFullName(ctx, ref.RepoFullName)
	}
	if err != nil {
		return database.WebhookSubscription{}, err
	}
	for _, r := range repos {
		sub, err := q.GetWebhookSubscriptionForUpdate(ctx, r.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		return sub, err
	}
	return database.WebhookSubscription{}, ErrNoSubscription
}

// ProviderHookID parses a stored webhook ID; placeholders report false.
func ProviderHookID(stored string) (int64, bool) {
	id, err := strconv.ParseInt(stored, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Fingerprint identifies a secret without storing it: the first 16 hex
// characters of its SHA-256.
func Fingerprint(secret string) string {
	if secret == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:16]
}
