// internal/model/models.go
package model

import (
	"time"
)

// SyncStatus is the lifecycle state of a repository sync pass.
type SyncStatus string

const (
	SyncIdle      SyncStatus = "IDLE"
	SyncSyncing   SyncStatus = "SYNCING"
	SyncCompleted SyncStatus = "COMPLETED"
	SyncFailed    SyncStatus = "FAILED"
)

// WebhookStatus is the lifecycle state of a webhook subscription.
type WebhookStatus string

const (
	WebhookActive   WebhookStatus = "ACTIVE"
	WebhookInactive WebhookStatus = "INACTIVE"
	WebhookFailed   WebhookStatus = "FAILED"
)

// Identity is the authenticated provider account behind a token.
type Identity struct {
	ID    int64
	Login string
}

// RemoteRepository is a repository as reported by the provider.
type RemoteRepository struct {
	ProviderID      int64
	Owner           string
	Name            string
	FullName        string
	Description     *string
	HTMLURL         string
	Private         bool
	Visibility      string
	DefaultBranch   string
	Language        *string
	Size            int
	StarsCount      int
	ForksCount      int
	WatchersCount   int
	OpenIssuesCount int
	Fork            bool
	Archived        bool
	License         *string
	Topics          []string
	RepoCreatedAt   time.Time
	RepoUpdatedAt   time.Time
	RepoPushedAt    time.Time
}

type Branch struct {
	Name      string
	HeadSHA   string
	Protected bool
}

type Commit struct {
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	AuthorDate     time.Time
	CommitterName  string
	CommitterEmail string
	CommitterDate  time.Time
	Additions      int
	Deletions      int
	Total          int
	ParentSHAs     []string
	URL            string
}

// ContentEntry is one item of a directory listing.
type ContentEntry struct {
	Type string // "file" or "dir"
	Name string
	Path string
	SHA  string
	Size int
}

// Permission is a single collaborator access level.
type Permission string

const (
	PermissionAdmin    Permission = "admin"
	PermissionMaintain Permission = "maintain"
	PermissionWrite    Permission = "write"
	PermissionTriage   Permission = "triage"
	PermissionRead     Permission = "read"
)

// PermissionSet mirrors the provider's per-collaborator permission booleans.
type PermissionSet struct {
	Admin    bool `json:"admin"`
	Maintain bool `json:"maintain"`
	Push     bool `json:"push"`
	Triage   bool `json:"triage"`
	Pull     bool `json:"pull"`
}

// Level returns the highest granted permission, in the order
// admin > maintain > write > triage > read.
func (p PermissionSet) Level() Permission {
	switch {
	case p.Admin:
		return PermissionAdmin
	case p.Maintain:
		return PermissionMaintain
	case p.Push:
		return PermissionWrite
	case p.Triage:
		return PermissionTriage
	default:
		return PermissionRead
	}
}

type Collaborator struct {
	ProviderID  int64
	Login       string
	AvatarURL   string
	Permissions PermissionSet
}
