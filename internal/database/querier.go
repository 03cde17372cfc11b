// internal/database/querier.go
package database

import (
	"context"
)

type Querier interface {
	// users
	GetUser(ctx context.Context, id int64) (User, error)
	GetUserByGithubLogin(ctx context.Context, login string) (User, error)
	ListUsersWithToken(ctx context.Context) ([]User, error)

	// remote_repositories
	GetRepository(ctx context.Context, id int64) (RemoteRepository, error)
	ListRepositoriesByUser(ctx context.Context, userID int64) ([]RemoteRepository, error)
	ListRepositoriesByFullName(ctx context.Context, fullName string) ([]RemoteRepository, error)
	ListRepositoriesByProviderID(ctx context.Context, providerID int64) ([]RemoteRepository, error)
	UpsertDiscoveredRepository(ctx context.Context, arg UpsertDiscoveredRepositoryParams) (UpsertDiscoveredRepositoryRow, error)
	UpdateRepositoryMetadata(ctx context.Context, arg UpdateRepositoryMetadataParams) error
	BeginRepositorySync(ctx context.Context, arg BeginRepositorySyncParams) (int64, error)
	CompleteRepositorySync(ctx context.Context, arg CompleteRepositorySyncParams) error
	FailRepositorySync(ctx context.Context, arg FailRepositorySyncParams) error

	// branches
	GetBranch(ctx context.Context, arg GetBranchParams) (Branch, error)
	ListBranches(ctx context.Context, repositoryID int64) ([]Branch, error)
	UpsertBranch(ctx context.Context, arg UpsertBranchParams) error
	UpdateBranchHead(ctx context.Context, arg UpdateBranchHeadParams) error
	ResetDefaultBranch(ctx context.Context, arg ResetDefaultBranchParams) error

	// commits
	CommitExists(ctx context.Context, arg CommitExistsParams) (bool, error)
	InsertCommit(ctx context.Context, arg InsertCommitParams) (int64, error)
	ListCommits(ctx context.Context, repositoryID int64) ([]Commit, error)

	// tracked_files
	UpsertTrackedFile(ctx context.Context, arg UpsertTrackedFileParams) error
	ListTrackedFiles(ctx context.Context, arg ListTrackedFilesParams) ([]TrackedFile, error)

	// collaborators
	UpsertCollaborator(ctx context.Context, arg UpsertCollaboratorParams) error
	ListCollaborators(ctx context.Context, repositoryID int64) ([]Collaborator, error)

	// webhook_subscriptions
	GetWebhookSubscription(ctx context.Context, repositoryID int64) (WebhookSubscription, error)
	GetWebhookSubscriptionForUpdate(ctx context.Context, repositoryID int64) (WebhookSubscription, error)
	GetWebhookSubscriptionByProviderID(ctx context.Context, providerWebhookID string) (WebhookSubscription, error)
	UpsertWebhookSubscription(ctx context.Context, arg UpsertWebhookSubscriptionParams) (WebhookSubscription, error)
	UpdateWebhookDelivery(ctx context.Context, arg UpdateWebhookDeliveryParams) error
	SetWebhookSubscriptionStatus(ctx context.Context, arg SetWebhookSubscriptionStatusParams) error
}

var _ Querier = (*Queries)(nil)
