// internal/syncer/events.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"repo-sync/internal/database"
	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

const (
	createEventCommitLimit = 20
	zeroSHA                = "0000000000000000000000000000000000000000"
)

// criticalEvents are applied even when the repository has just been synced.
var criticalEvents = map[string]bool{
	"push":   true,
	"create": true,
	"delete": true,
}

// HandleEvent decodes a webhook payload and applies it to every local
// record of the repository.
func (s *Syncer) HandleEvent(ctx context.Context, fullName, eventType string, payload []byte) error {
	ev, err := github.ParseEvent(eventType, payload)
	if err != nil {
		return err
	}
	if fullName == "" {
		fullName = ev.RepoFullName
	}
	return s.ApplyEvent(ctx, fullName, ev)
}

// ApplyEvent applies an already decoded event. Unknown event types are
// logged and ignored.
func (s *Syncer) ApplyEvent(ctx context.Context, fullName string, ev *model.Event) error {
	logger := s.logger.With("repo", fullName, "event", ev.Type)

	switch ev.Type {
	case "push", "create", "delete", "release":
	default:
		logger.Debug("Ignoring unhandled event type")
		return nil
	}
	if _, _, err := ParseFullName(fullName); err != nil {
		return err
	}

	repos, err := s.store.ListRepositoriesByFullName(ctx, fullName)
	if err != nil {
		return fmt.Errorf("failed to look up repository %s: %w", fullName, err)
	}
	if len(repos) == 0 {
		logger.Debug("No local record for repository, ignoring event")
		return nil
	}

	var errs []error
	for i := range repos {
		repo := &repos[i]
		rlog := logger.With("repo_id", repo.ID)

		if !criticalEvents[ev.Type] && s.recentlySynced(repo) {
			rlog.Debug("Repository synced recently, skipping event")
			continue
		}

		token, err := s.tokenFor(ctx, repo.UserID)
		if err != nil {
			rlog.Warn("No usable token for repository owner, skipping event", "error", err)
			continue
		}
		client := s.clients.ForToken(token)

		if err := s.store.ExecTx(ctx, func(q database.Querier) error {
			return s.applyEvent(ctx, q, client, repo, ev, rlog)
		}); err != nil {
			rlog.Error("Failed to apply event", "error", err)
			errs = append(errs, fmt.Errorf("repository %d: %w", repo.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Syncer) applyEvent(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, ev *model.Event, logger *slog.Logger) error {
	switch {
	case ev.Push != nil:
		return s.applyPush(ctx, q, client, repo, ev.Push, logger)
	case ev.Create != nil:
		return s.applyCreate(ctx, q, client, repo, ev.Create, logger)
	case ev.Delete != nil:
		logger.Info("Ref deleted on provider", "ref_type", ev.Delete.RefType, "ref", ev.Delete.Ref)
		return nil
	case ev.Release != nil:
		return s.applyRelease(ctx, q, client, repo, ev.Release, logger)
	}
	return nil
}

func (s *Syncer) applyPush(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, push *model.PushEvent, logger *slog.Logger) error {
	branch, ok := strings.CutPrefix(push.Ref, "refs/heads/")
	if !ok {
		logger.Debug("Ignoring push to non-branch ref", "ref", push.Ref)
		return nil
	}
	if push.Deleted || push.After == "" || push.After == zeroSHA {
		logger.Info("Branch deleted by push", "branch", branch)
		return nil
	}

	shas := push.CommitSHAs
	if len(shas) == 0 {
		shas = []string{push.After}
	}
	commits := make([]model.Commit, 0, len(shas))
	for _, sha := range shas {
		commits = append(commits, model.Commit{SHA: sha})
	}
	inserted, err := s.storeNewCommits(ctx, q, client, repo, commits)
	if err != nil {
		return err
	}

	if err := s.advanceBranch(ctx, q, client, repo, branch, push.After); err != nil {
		return err
	}
	logger.Info("Applied push", "branch", branch, "commits", len(shas), "new", inserted, "forced", push.Forced)
	return nil
}

func (s *Syncer) applyCreate(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, ref *model.RefEvent, logger *slog.Logger) error {
	if ref.RefType != "branch" {
		logger.Info("Ref created on provider", "ref_type", ref.RefType, "ref", ref.Ref)
		return nil
	}

	var commits []model.Commit
	if err := s.retry(ctx, func() error {
		var err error
		commits, err = client.ListCommits(ctx, repo.Owner, repo.Name, github.CommitQuery{
			SHA:     ref.Ref,
			PerPage: createEventCommitLimit,
		})
		return err
	}); err != nil {
		return err
	}

	inserted, err := s.storeNewCommits(ctx, q, client, repo, commits)
	if err != nil {
		return err
	}
	if len(commits) > 0 {
		if err := s.advanceBranch(ctx, q, client, repo, ref.Ref, commits[0].SHA); err != nil {
			return err
		}
	}
	logger.Info("Applied branch creation", "branch", ref.Ref, "listed", len(commits), "new", inserted)
	return nil
}

func (s *Syncer) applyRelease(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, rel *model.ReleaseEvent, logger *slog.Logger) error {
	if rel.Action != "published" {
		logger.Debug("Ignoring release action", "action", rel.Action)
		return nil
	}

	var sha string
	if err := s.retry(ctx, func() error {
		var err error
		sha, err = client.ResolveTagCommit(ctx, repo.Owner, repo.Name, rel.TagName)
		return err
	}); err != nil {
		return fmt.Errorf("failed to resolve tag %s: %w", rel.TagName, err)
	}

	inserted, err := s.storeNewCommits(ctx, q, client, repo, []model.Commit{{SHA: sha}})
	if err != nil {
		return err
	}
	logger.Info("Applied release", "tag", rel.TagName, "sha", sha, "new", inserted)
	return nil
}

// advanceBranch moves a branch head to sha, recording the head commit summary.
func (s *Syncer) advanceBranch(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, branch, sha string) error {
	params := database.UpdateBranchHeadParams{
		RepositoryID: repo.ID,
		Name:         branch,
		HeadSha:      sha,
	}
	head, err := s.fetchCommit(ctx, client, repo, sha)
	if err != nil {
		s.logger.Warn("Failed to fetch new branch head", "repo", repo.FullName, "branch", branch, "error", err)
	} else {
		params.LastCommitMessage = database.TextOf(firstLine(head.Message))
		params.LastCommitAuthor = database.TextOf(head.AuthorName)
		params.LastCommitDate = database.Timestamptz(head.AuthorDate)
	}
	if err := q.UpdateBranchHead(ctx, params); err != nil {
		return fmt.Errorf("failed to advance branch %s: %w", branch, err)
	}
	return nil
}

func (s *Syncer) recentlySynced(repo *database.RemoteRepository) bool {
	if !repo.LastSyncAt.Valid || s.opts.EventFreshnessWindow <= 0 {
		return false
	}
	return s.now().Sub(repo.LastSyncAt.Time) < s.opts.EventFreshnessWindow
}

func (s *Syncer) tokenFor(ctx context.Context, userID int64) (string, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("user %d: %w", userID, custom_errors.ErrUserNotFound)
	} else if err != nil {
		return "", err
	}
	if !u.AccessToken.Valid || u.AccessToken.String == "" {
		return "", fmt.Errorf("user %d: %w", userID, custom_errors.ErrNoToken)
	}
	return u.AccessToken.String, nil
}
