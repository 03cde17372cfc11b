// internal/database/models.go
package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID          int64
	Username    string
	GithubLogin pgtype.Text
	AccessToken pgtype.Text
	CreatedAt   time.Time
}

type RemoteRepository struct {
	ID              int64
	UserID          int64
	ProviderID      int64
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
	Languages       map[string]int64
	RepoCreatedAt   pgtype.Timestamptz
	RepoUpdatedAt   pgtype.Timestamptz
	RepoPushedAt    pgtype.Timestamptz
	SyncStatus      string
	SyncStartedAt   pgtype.Timestamptz
	LastSyncAt      pgtype.Timestamptz
	LastSyncError   pgtype.Text
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Branch struct {
	ID                int64
	RepositoryID      int64
	Name              string
	HeadSha           string
	Protected         bool
	IsDefault         bool
	LastCommitMessage pgtype.Text
	LastCommitAuthor  pgtype.Text
	LastCommitDate    pgtype.Timestamptz
	UpdatedAt         time.Time
}

type Commit struct {
	ID             int64
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
	CreatedAt      time.Time
}

type TrackedFile struct {
	ID           int64
	RepositoryID int64
	Branch       string
	Path         string
	Name         string
	Type         string
	Sha          string
	Size         int64
	Language     pgtype.Text
	Content      pgtype.Text
	UpdatedAt    time.Time
}

type Collaborator struct {
	ID             int64
	RepositoryID   int64
	ProviderUserID int64
	Login          string
	AvatarUrl      string
	Permission     string
	UserID         pgtype.Int8
	UpdatedAt      time.Time
}

type WebhookSubscription struct {
	ID                int64
	RepositoryID      int64
	ProviderWebhookID string
	CallbackUrl       string
	Events            []string
	Status            string
	SecretFingerprint string
	FailureCount      int32
	LastError         pgtype.Text
	LastDeliveryAt    pgtype.Timestamptz
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
