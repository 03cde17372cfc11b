// internal/service/service.go

// Package service is the entry point other modules use to ask for a
// user's repositories, a repository's sync state, or webhook changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"

	"repo-sync/internal/database"
	"repo-sync/internal/discovery"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github"
	"repo-sync/internal/model"
	"repo-sync/internal/scheduler"
	"repo-sync/internal/syncer"
	"repo-sync/internal/webhook"
)

// ErrQueueFull is returned when a manual sync cannot be queued.
var ErrQueueFull = errors.New("sync queue is full")

type Options struct {
	FreshnessWindow time.Duration
	// AutoSubscribe creates a webhook after the first completed sync of a
	// newly discovered repository.
	AutoSubscribe bool
	// DeliveryQueueSize and DeliveryWorkers size the background webhook
	// event appliers.
	DeliveryQueueSize int
	DeliveryWorkers   int
}

type Service struct {
	store      database.Store
	discoverer *discovery.Discoverer
	syncer     *syncer.Syncer
	queue      *syncer.Queue
	webhooks   *webhook.Manager
	deliveries *deliveryWorkers
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

var _ scheduler.UserSyncer = (*Service)(nil)

// New wires the service and registers its post-sync hook on queue.
func New(store database.Store, discoverer *discovery.Discoverer, s *syncer.Syncer, queue *syncer.Queue, webhooks *webhook.Manager, opts Options, logger *slog.Logger) *Service {
	if opts.FreshnessWindow <= 0 {
		opts.FreshnessWindow = scheduler.DefaultFreshnessWindow
	}
	svc := &Service{
		store:      store,
		discoverer: discoverer,
		syncer:     s,
		queue:      queue,
		webhooks:   webhooks,
		deliveries: newDeliveryWorkers(opts.DeliveryQueueSize, opts.DeliveryWorkers),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
	queue.OnDiscoveredSynced(svc.subscribeAfterSync)
	return svc
}

// DiscoverAndSyncRepositories returns the user's repositories, consulting
// the provider only when none of them synced within the freshness window
// or force is set. New repositories and those not synced within the window
// (all of them under force) are queued for a full sync.
func (s *Service) DiscoverAndSyncRepositories(ctx context.Context, userID int64, force bool) ([]database.RemoteRepository, error) {
	repos, _, err := s.discoverAndSync(ctx, userID, force)
	return repos, err
}

// SyncUser is the sweep entry point.
func (s *Service) SyncUser(ctx context.Context, userID int64, force bool) (bool, error) {
	_, fetched, err := s.discoverAndSync(ctx, userID, force)
	return fetched, err
}

func (s *Service) discoverAndSync(ctx context.Context, userID int64, force bool) ([]database.RemoteRepository, bool, error) {
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	logger := s.logger.With("user_id", userID)

	cached, err := s.store.ListRepositoriesByUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list repositories for user %d: %w", userID, err)
	}
	if !force && !scheduler.ShouldFetch(cached, s.now(), s.opts.FreshnessWindow) {
		logger.Debug("Repositories are fresh, skipping discovery", "count", len(cached))
		return cached, false, nil
	}

	res, err := s.discoverer.Refresh(ctx, token, lo.Map(cached, func(r database.RemoteRepository, _ int) model.RemoteRepository {
		return syncer.RemoteFromRecord(r)
	}))
	if err != nil {
		return nil, true, err
	}
	if res.Cached {
		queued := 0
		if force {
			for _, r := range cached {
				if _, ok := s.queue.Enqueue(r.ID, false); ok {
					queued++
				}
			}
		}
		logger.Warn("Provider listing unavailable, keeping cached repositories", "cached", len(cached), "queued", queued)
		return cached, true, nil
	}

	type upserted struct {
		id       int64
		inserted bool
	}
	var rows []upserted
	err = s.store.ExecTx(ctx, func(q database.Querier) error {
		for _, r := range res.Repositories {
			row, err := q.UpsertDiscoveredRepository(ctx, database.UpsertDiscoveredRepositoryParams{
				UserID:             userID,
				ProviderID:         r.ProviderID,
				RepositoryMetadata: syncer.MetadataParams(r),
			})
			if err != nil {
				return fmt.Errorf("failed to store repository %s: %w", r.FullName, err)
			}
			rows = append(rows, upserted{row.ID, row.Inserted})
		}
		return nil
	})
	if err != nil {
		return nil, true, err
	}

	// New rows and rows whose last pass fell outside the window are due.
	known := lo.SliceToMap(cached, func(r database.RemoteRepository) (int64, database.RemoteRepository) {
		return r.ID, r
	})
	now := s.now()
	queued := 0
	for _, row := range rows {
		prev, ok := known[row.id]
		due := force || row.inserted || !ok || scheduler.IsStale(prev, now, s.opts.FreshnessWindow)
		if !due {
			continue
		}
		if _, ok := s.queue.Enqueue(row.id, row.inserted); ok {
			queued++
		}
	}
	logger.Info("Discovery finished",
		"found", len(res.Repositories),
		"new", lo.CountBy(rows, func(r upserted) bool { return r.inserted }),
		"queued", queued,
	)

	repos, err := s.store.ListRepositoriesByUser(ctx, userID)
	if err != nil {
		return nil, true, fmt.Errorf("failed to list repositories for user %d: %w", userID, err)
	}
	return repos, true, nil
}

// SyncStatus is the externally visible sync state of a repository.
type SyncStatus struct {
	RepositoryID int64      `json:"repository_id"`
	Status       string     `json:"status"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

func (s *Service) GetSyncStatus(ctx context.Context, repoID int64) (SyncStatus, error) {
	repo, err := s.repository(ctx, repoID)
	if err != nil {
		return SyncStatus{}, err
	}
	st := SyncStatus{
		RepositoryID: repo.ID,
		Status:       repo.SyncStatus,
		LastError:    repo.LastSyncError.String,
	}
	if repo.SyncStartedAt.Valid {
		st.StartedAt = &repo.SyncStartedAt.Time
	}
	if repo.LastSyncAt.Valid {
		st.LastSyncAt = &repo.LastSyncAt.Time
	}
	return st, nil
}

// TriggerSync queues a manual pass. A repository that already has a job
// pending returns that job's ID.
func (s *Service) TriggerSync(ctx context.Context, repoID int64) (uuid.UUID, error) {
	if _, err := s.repository(ctx, repoID); err != nil {
		return uuid.Nil, err
	}
	id, _ := s.queue.Enqueue(repoID, false)
	if id == uuid.Nil {
		return uuid.Nil, ErrQueueFull
	}
	return id, nil
}

// SubscribeWebhook subscribes the repository using userID's token.
func (s *Service) SubscribeWebhook(ctx context.Context, repoID, userID int64) (database.WebhookSubscription, error) {
	repo, err := s.repository(ctx, repoID)
	if err != nil {
		return database.WebhookSubscription{}, err
	}
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return database.WebhookSubscription{}, err
	}
	return s.webhooks.Subscribe(ctx, repo, token)
}

// UnsubscribeWebhook removes the repository webhook using userID's token.
func (s *Service) UnsubscribeWebhook(ctx context.Context, repoID, userID int64) error {
	repo, err := s.repository(ctx, repoID)
	if err != nil {
		return err
	}
	token, err := s.tokenFor(ctx, userID)
	if err != nil {
		return err
	}
	return s.webhooks.Unsubscribe(ctx, repo, token)
}

// Delivery is one verified inbound webhook request.
type Delivery struct {
	ID        string
	EventType string
	HookID    int64
	Payload   []byte
}

// HandleDelivery applies a verified delivery and records its outcome
// against the matching subscription. It returns the decoded event so the
// caller can tell pings apart.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) (*model.Event, error) {
	ev, err := github.ParseEvent(d.EventType, d.Payload)
	if err != nil {
		return nil, err
	}
	return ev, s.applyDelivery(ctx, d, ev)
}

func (s *Service) applyDelivery(ctx context.Context, d Delivery, ev *model.Event) error {
	var applyErr error
	if ev.Ping == nil {
		applyErr = s.syncer.ApplyEvent(ctx, ev.RepoFullName, ev)
	}
	s.recordDelivery(ctx, d, ev, applyErr)
	return applyErr
}

func (s *Service) recordDelivery(ctx context.Context, d Delivery, ev *model.Event, applyErr error) {
	logger := s.logger.With("delivery_id", d.ID, "event", d.EventType, "repo", ev.RepoFullName)

	errMsg := ""
	if applyErr != nil {
		errMsg = applyErr.Error()
	}
	ref := webhook.DeliveryRef{HookID: d.HookID, RepoProviderID: ev.RepoProviderID, RepoFullName: ev.RepoFullName}
	if ev.Ping != nil && ref.HookID == 0 {
		ref.HookID = ev.Ping.HookID
	}
	if _, err := s.webhooks.RecordDelivery(context.WithoutCancel(ctx), ref, applyErr == nil, errMsg); err != nil {
		if errors.Is(err, webhook.ErrNoSubscription) {
			logger.Debug("Delivery matches no subscription")
		} else {
			logger.Error("Failed to record delivery outcome", "error", err)
		}
	}
}

func (s *Service) subscribeAfterSync(ctx context.Context, repo database.RemoteRepository, token string) {
	if !s.opts.AutoSubscribe {
		return
	}
	if _, err := s.webhooks.Subscribe(ctx, repo, token); err != nil && !errors.Is(err, webhook.ErrNotConfigured) {
		s.logger.Error("Automatic webhook subscription failed", "repo", repo.FullName, "error", err)
	}
}

func (s *Service) repository(ctx context.Context, repoID int64) (database.RemoteRepository, error) {
	repo, err := s.store.GetRepository(ctx, repoID)
	if errors.Is(err, pgx.ErrNoRows) {
		return repo, custom_errors.ErrRepositoryNotFound
	} else if err != nil {
		return repo, fmt.Errorf("failed to load repository %d: %w", repoID, err)
	}
	return repo, nil
}

func (s *Service) tokenFor(ctx context.Context, userID int64) (string, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", custom_errors.ErrUserNotFound
	} else if err != nil {
		return "", fmt.Errorf("failed to load user %d: %w", userID, err)
	}
	if !u.AccessToken.Valid || u.AccessToken.String == "" {
		return "", custom_errors.ErrNoToken
	}
	return u.AccessToken.String, nil
}
