// internal/model/events.go
package model

// Event is a decoded inbound webhook delivery. Exactly one of the typed
// payload fields is set for the event types we act on.
type Event struct {
	Type           string
	RepoFullName   string
	RepoProviderID int64

	Push    *PushEvent
	Create  *RefEvent
	Delete  *RefEvent
	Release *ReleaseEvent
	Ping    *PingEvent
}

type PushEvent struct {
	Ref        string
	Before     string
	After      string
	Deleted    bool
	Forced     bool
	CommitSHAs []string
}

// RefEvent is a branch or tag creation or deletion.
type RefEvent struct {
	RefType string // "branch" or "tag"
	Ref     string
}

type ReleaseEvent struct {
	Action  string
	TagName string
}

type PingEvent struct {
	HookID int64
	Zen    string
}
