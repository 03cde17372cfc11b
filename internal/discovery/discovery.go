// internal/discovery/discovery.go
package discovery

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	custom_errors "repo-sync/internal/errors"
	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

// Affiliations lists every relationship a user can have with a repository.
var Affiliations = []string{"owner", "collaborator", "organization_member"}

// Discoverer enumerates all repositories a token can see.
type Discoverer struct {
	clients *github.Factory
	retry   github.RetryPolicy
	logger  *slog.Logger
}

func New(clients *github.Factory, retry github.RetryPolicy, logger *slog.Logger) *Discoverer {
	return &Discoverer{clients: clients, retry: retry, logger: logger}
}

// Result is the outcome of one discovery pass.
type Result struct {
	Repositories []model.RemoteRepository
	// Cached is set when the provider could not be listed and Repositories
	// is the cached list handed in.
	Cached bool
}

// Discover lists the repositories visible to token across every affiliation,
// each provider ID exactly once. When the token is rejected, or no affiliation
// can be listed, the cached list is returned unchanged.
func (d *Discoverer) Discover(ctx context.Context, token string, cached []model.RemoteRepository) ([]model.RemoteRepository, error) {
	res, err := d.Refresh(ctx, token, cached)
	return res.Repositories, err
}

// Refresh is Discover, also reporting whether the cached list was used.
func (d *Discoverer) Refresh(ctx context.Context, token string, cached []model.RemoteRepository) (Result, error) {
	client := d.clients.ForToken(token)

	var identity *model.Identity
	err := github.Retry(ctx, d.retry, func() error {
		var err error
		identity, err = client.Identity(ctx)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if custom_errors.IsKind(err, custom_errors.KindUnauthorized) {
			d.logger.Warn("Provider token rejected, returning cached repositories", "cached", len(cached))
		} else {
			d.logger.Error("Failed to validate provider token, returning cached repositories", "error", err, "cached", len(cached))
		}
		return Result{Repositories: cached, Cached: true}, nil
	}
	logger := d.logger.With("login", identity.Login)

	var all []model.RemoteRepository
	succeeded := 0
	for _, affiliation := range Affiliations {
		repos, err := d.listAffiliation(ctx, client, affiliation)
		if err != nil {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			logger.Error("Failed to list repositories for affiliation", "affiliation", affiliation, "error", err)
			continue
		}
		succeeded++
		logger.Debug("Listed repositories for affiliation", "affiliation", affiliation, "count", len(repos))
		all = append(all, repos...)
	}

	if succeeded == 0 {
		logger.Warn("Every affiliation listing failed, returning cached repositories", "cached", len(cached))
		return Result{Repositories: cached, Cached: true}, nil
	}

	merged := Merge(all)
	logger.Info("Discovered repositories", "listed", len(all), "unique", len(merged))
	return Result{Repositories: merged}, nil
}

func (d *Discoverer) listAffiliation(ctx context.Context, client *github.Client, affiliation string) ([]model.RemoteRepository, error) {
	var out []model.RemoteRepository
	for page := 1; ; page++ {
		var batch []model.RemoteRepository
		err := github.Retry(ctx, d.retry, func() error {
			var err error
			batch, err = client.ListRepositoriesPage(ctx, affiliation, page)
			return err
		})
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
		if len(batch) < github.PageSize {
			return out, nil
		}
	}
}

// Merge de-duplicates by provider ID; the first occurrence wins.
func Merge(repos []model.RemoteRepository) []model.RemoteRepository {
	return lo.UniqBy(repos, func(r model.RemoteRepository) int64 {
		return r.ProviderID
	})
}
