// internal/syncer/stages.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"repo-sync/internal/database"
	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

// syncMetadata overwrites the repository scalars and language breakdown.
func (s *Syncer) syncMetadata(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error {
	var remote *model.RemoteRepository
	if err := s.retry(ctx, func() error {
		var err error
		remote, err = client.GetRepository(ctx, repo.Owner, repo.Name)
		return err
	}); err != nil {
		return err
	}

	languages := repo.Languages
	if err := s.retry(ctx, func() error {
		var err error
		languages, err = client.ListLanguages(ctx, repo.Owner, repo.Name)
		return err
	}); err != nil {
		s.logger.Warn("Failed to fetch languages, keeping stored breakdown", "repo", repo.FullName, "error", err)
		languages = repo.Languages
	}

	if err := q.UpdateRepositoryMetadata(ctx, database.UpdateRepositoryMetadataParams{
		ID:                 repo.ID,
		Languages:          languages,
		RepositoryMetadata: MetadataParams(*remote),
	}); err != nil {
		return fmt.Errorf("failed to update repository metadata: %w", err)
	}

	updated, err := q.GetRepository(ctx, repo.ID)
	if err != nil {
		return err
	}
	*repo = updated
	return nil
}

// syncBranches upserts every branch by name, then marks exactly the
// repository's default branch.
func (s *Syncer) syncBranches(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error {
	var branches []model.Branch
	if err := s.retry(ctx, func() error {
		var err error
		branches, err = client.ListBranches(ctx, repo.Owner, repo.Name)
		return err
	}); err != nil {
		return err
	}

	stored, err := q.ListBranches(ctx, repo.ID)
	if err != nil {
		return err
	}
	known := make(map[string]database.Branch, len(stored))
	for _, b := range stored {
		known[b.Name] = b
	}

	for _, b := range branches {
		params := database.UpsertBranchParams{
			RepositoryID: repo.ID,
			Name:         b.Name,
			HeadSha:      b.HeadSHA,
			Protected:    b.Protected,
		}
		if prev, ok := known[b.Name]; !ok || prev.HeadSha != b.HeadSHA || !prev.LastCommitDate.Valid {
			head, err := s.fetchCommit(ctx, client, repo, b.HeadSHA)
			if err != nil {
				s.logger.Warn("Failed to fetch branch head commit", "repo", repo.FullName, "branch", b.Name, "error", err)
			} else {
				params.LastCommitMessage = database.TextOf(firstLine(head.Message))
				params.LastCommitAuthor = database.TextOf(head.AuthorName)
				params.LastCommitDate = database.Timestamptz(head.AuthorDate)
			}
		}
		if err := q.UpsertBranch(ctx, params); err != nil {
			return fmt.Errorf("failed to upsert branch %s: %w", b.Name, err)
		}
	}

	if err := q.ResetDefaultBranch(ctx, database.ResetDefaultBranchParams{
		RepositoryID: repo.ID,
		Name:         repo.DefaultBranch,
	}); err != nil {
		return fmt.Errorf("failed to mark default branch: %w", err)
	}
	s.logger.Info("Synced branches", "repo", repo.FullName, "count", len(branches))
	return nil
}

// syncCommits stores the newest page of commits on the default branch.
func (s *Syncer) syncCommits(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error {
	if repo.DefaultBranch == "" {
		return nil
	}

	var commits []model.Commit
	if err := s.retry(ctx, func() error {
		var err error
		commits, err = client.ListCommits(ctx, repo.Owner, repo.Name, github.CommitQuery{
			SHA:     repo.DefaultBranch,
			PerPage: s.opts.CommitPageSize,
		})
		return err
	}); err != nil {
		return err
	}

	inserted, err := s.storeNewCommits(ctx, q, client, repo, commits)
	if err != nil {
		return err
	}
	s.logger.Info("Synced commits", "repo", repo.FullName, "listed", len(commits), "new", inserted)
	return nil
}

// storeNewCommits inserts the commits not yet stored, fetching full detail
// (stats and parents) for each new one.
func (s *Syncer) storeNewCommits(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, commits []model.Commit) (int, error) {
	inserted := 0
	for _, c := range commits {
		exists, err := q.CommitExists(ctx, database.CommitExistsParams{RepositoryID: repo.ID, Sha: c.SHA})
		if err != nil {
			return inserted, err
		}
		if exists {
			continue
		}
		detail, err := s.fetchCommit(ctx, client, repo, c.SHA)
		if err != nil {
			return inserted, err
		}
		n, err := q.InsertCommit(ctx, commitParams(repo.ID, *detail))
		if err != nil {
			return inserted, fmt.Errorf("failed to insert commit %s: %w", c.SHA, err)
		}
		inserted += int(n)
	}
	return inserted, nil
}

func (s *Syncer) fetchCommit(ctx context.Context, client *github.Client, repo *database.RemoteRepository, sha string) (*model.Commit, error) {
	var commit *model.Commit
	err := s.retry(ctx, func() error {
		var err error
		commit, err = client.GetCommit(ctx, repo.Owner, repo.Name, sha)
		return err
	})
	return commit, err
}

// syncFiles walks the default branch tree down to FileMaxDepth levels.
func (s *Syncer) syncFiles(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error {
	if repo.DefaultBranch == "" {
		return nil
	}
	count, err := s.walk(ctx, q, client, repo, "", 1)
	if err != nil {
		return err
	}
	s.logger.Info("Synced files", "repo", repo.FullName, "branch", repo.DefaultBranch, "entries", count)
	return nil
}

func (s *Syncer) walk(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository, dir string, depth int) (int, error) {
	var entries []model.ContentEntry
	if err := s.retry(ctx, func() error {
		var err error
		entries, err = client.ListDirectory(ctx, repo.Owner, repo.Name, dir, repo.DefaultBranch)
		return err
	}); err != nil {
		return 0, err
	}

	count := 0
	for _, e := range entries {
		params := database.UpsertTrackedFileParams{
			RepositoryID: repo.ID,
			Branch:       repo.DefaultBranch,
			Path:         e.Path,
			Name:         e.Name,
			Type:         e.Type,
			Sha:          e.SHA,
			Size:         int64(e.Size),
		}

		switch e.Type {
		case "file":
			params.Language = database.TextOf(LanguageForPath(e.Path))
			if int64(e.Size) < s.opts.FileInlineMaxBytes {
				params.Content = s.fileContent(ctx, client, repo, e.Path)
			}
		case "dir":
		default:
			// symlinks and submodules are not tracked
			continue
		}

		if err := q.UpsertTrackedFile(ctx, params); err != nil {
			return count, fmt.Errorf("failed to upsert file %s: %w", e.Path, err)
		}
		count++

		if e.Type == "dir" && depth < s.opts.FileMaxDepth {
			n, err := s.walk(ctx, q, client, repo, e.Path, depth+1)
			count += n
			if err != nil {
				return count, err
			}
		}
	}
	return count, nil
}

// fileContent returns the decoded file body, or NULL when it cannot be
// fetched or is not storable text.
func (s *Syncer) fileContent(ctx context.Context, client *github.Client, repo *database.RemoteRepository, path string) pgtype.Text {
	var content string
	if err := s.retry(ctx, func() error {
		var err error
		content, err = client.GetFileContent(ctx, repo.Owner, repo.Name, path, repo.DefaultBranch)
		return err
	}); err != nil {
		s.logger.Warn("Failed to fetch file content", "repo", repo.FullName, "path", path, "error", err)
		return pgtype.Text{}
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return pgtype.Text{}
	}
	return pgtype.Text{String: content, Valid: true}
}

// syncCollaborators stores each collaborator at their highest permission
// and links them to a local user by login.
func (s *Syncer) syncCollaborators(ctx context.Context, q database.Querier, client *github.Client, repo *database.RemoteRepository) error {
	var collaborators []model.Collaborator
	if err := s.retry(ctx, func() error {
		var err error
		collaborators, err = client.ListCollaborators(ctx, repo.Owner, repo.Name)
		return err
	}); err != nil {
		return err
	}

	for _, c := range collaborators {
		var userID pgtype.Int8
		u, err := q.GetUserByGithubLogin(ctx, c.Login)
		switch {
		case err == nil:
			userID = database.Int8(u.ID)
		case !errors.Is(err, pgx.ErrNoRows):
			return err
		}

		if err := q.UpsertCollaborator(ctx, database.UpsertCollaboratorParams{
			RepositoryID:   repo.ID,
			ProviderUserID: c.ProviderID,
			Login:          c.Login,
			AvatarUrl:      c.AvatarURL,
			Permission:     string(c.Permissions.Level()),
			UserID:         userID,
		}); err != nil {
			return fmt.Errorf("failed to upsert collaborator %s: %w", c.Login, err)
		}
	}
	s.logger.Info("Synced collaborators", "repo", repo.FullName, "count", len(collaborators))
	return nil
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
