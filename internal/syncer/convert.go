// internal/syncer/convert.go
package syncer

import (
	"github.com/jackc/pgx/v5/pgtype"

	"repo-sync/internal/database"
	"repo-sync/internal/model"
)

// MetadataParams maps provider repository fields onto their columns.
func MetadataParams(r model.RemoteRepository) database.RepositoryMetadata {
	fullName := r.FullName
	if fullName == "" {
		fullName = r.Owner + "/" + r.Name
	}
	return database.RepositoryMetadata{
		Owner:           r.Owner,
		Name:            r.Name,
		FullName:        fullName,
		Description:     database.Text(r.Description),
		HtmlUrl:         r.HTMLURL,
		Private:         r.Private,
		Visibility:      r.Visibility,
		DefaultBranch:   r.DefaultBranch,
		Language:        database.Text(r.Language),
		Size:            int32(r.Size),
		StarsCount:      int32(r.StarsCount),
		ForksCount:      int32(r.ForksCount),
		WatchersCount:   int32(r.WatchersCount),
		OpenIssuesCount: int32(r.OpenIssuesCount),
		Fork:            r.Fork,
		Archived:        r.Archived,
		License:         database.Text(r.License),
		Topics:          r.Topics,
		RepoCreatedAt:   database.Timestamptz(r.RepoCreatedAt),
		RepoUpdatedAt:   database.Timestamptz(r.RepoUpdatedAt),
		RepoPushedAt:    database.Timestamptz(r.RepoPushedAt),
	}
}

func commitParams(repoID int64, c model.Commit) database.InsertCommitParams {
	return database.InsertCommitParams{
		RepositoryID:   repoID,
		Sha:            c.SHA,
		Message:        c.Message,
		AuthorName:     c.AuthorName,
		AuthorEmail:    c.AuthorEmail,
		AuthorDate:     database.Timestamptz(c.AuthorDate),
		CommitterName:  c.CommitterName,
		CommitterEmail: c.CommitterEmail,
		CommitterDate:  database.Timestamptz(c.CommitterDate),
		Additions:      int32(c.Additions),
		Deletions:      int32(c.Deletions),
		Total:          int32(c.Total),
		ParentShas:     c.ParentSHAs,
		Url:            c.URL,
	}
}

// RemoteFromRecord rebuilds the provider view of a stored repository, as
// used for the cached fallback of discovery.
func RemoteFromRecord(r database.RemoteRepository) model.RemoteRepository {
	return model.RemoteRepository{
		ProviderID:      r.ProviderID,
		Owner:           r.Owner,
		Name:            r.Name,
		FullName:        r.FullName,
		Description:     textPtr(r.Description),
		HTMLURL:         r.HtmlUrl,
		Private:         r.Private,
		Visibility:      r.Visibility,
		DefaultBranch:   r.DefaultBranch,
		Language:        textPtr(r.Language),
		Size:            int(r.Size),
		StarsCount:      int(r.StarsCount),
		ForksCount:      int(r.ForksCount),
		WatchersCount:   int(r.WatchersCount),
		OpenIssuesCount: int(r.OpenIssuesCount),
		Fork:            r.Fork,
		Archived:        r.Archived,
		License:         textPtr(r.License),
		Topics:          r.Topics,
		RepoCreatedAt:   r.RepoCreatedAt.Time,
		RepoUpdatedAt:   r.RepoUpdatedAt.Time,
		RepoPushedAt:    r.RepoPushedAt.Time,
	}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}
