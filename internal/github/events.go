// internal/github/events.go
package github

import (
	"encoding/json"
	"fmt"

	"github.com/google/go-github/v62/github"

	"repo-sync/internal/model"
)

type eventEnvelope struct {
	Repository struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseEvent decodes a webhook payload. Event types we do not act on come
// back with only the repository identity filled in.
func ParseEvent(eventType string, payload []byte) (*model.Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}
	ev := &model.Event{
		Type:           eventType,
		RepoFullName:   env.Repository.FullName,
		RepoProviderID: env.Repository.ID,
	}

	switch eventType {
	case "push", "create", "delete", "release", "ping":
	default:
		return ev, nil
	}

	parsed, err := github.ParseWebHook(eventType, payload)
	if err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
	}

	switch e := parsed.(type) {
	case *github.PushEvent:
		shas := make([]string, 0, len(e.Commits))
		for _, c := range e.Commits {
			shas = append(shas, c.GetID())
		}
		ev.Push = &model.PushEvent{
			Ref:        e.GetRef(),
			Before:     e.GetBefore(),
			After:      e.GetAfter(),
			Deleted:    e.GetDeleted(),
			Forced:     e.GetForced(),
			CommitSHAs: shas,
		}
	case *github.CreateEvent:
		ev.Create = &model.RefEvent{RefType: e.GetRefType(), Ref: e.GetRef()}
	case *github.DeleteEvent:
		ev.Delete = &model.RefEvent{RefType: e.GetRefType(), Ref: e.GetRef()}
	case *github.ReleaseEvent:
		ev.Release = &model.ReleaseEvent{Action: e.GetAction(), TagName: e.GetRelease().GetTagName()}
	case *github.PingEvent:
		ev.Ping = &model.PingEvent{HookID: e.GetHookID(), Zen: e.GetZen()}
	}
	return ev, nil
}

// ValidateSignature checks an X-Hub-Signature-256 header value against the
// payload using a constant-time HMAC comparison.
func ValidateSignature(signature string, payload, secret []byte) error {
	return github.ValidateSignature(signature, payload, secret)
}
