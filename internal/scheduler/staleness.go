// internal/scheduler/staleness.go
package scheduler

import (
	"time"

	"repo-sync/internal/database"
)

// DefaultFreshnessWindow is how long a completed sync keeps a user's
// repositories from being fetched again.
const DefaultFreshnessWindow = 6 * time.Hour

// ShouldFetch reports whether the provider must be consulted for these
// repositories: there are none yet, or none completed a sync within window.
func ShouldFetch(repos []database.RemoteRepository, now time.Time, window time.Duration) bool {
	if len(repos) == 0 {
		return true
	}
	for _, r := range repos {
		if !IsStale(r, now, window) {
			return false
		}
	}
	return true
}

// IsStale reports whether repo has no completed sync within window.
func IsStale(repo database.RemoteRepository, now time.Time, window time.Duration) bool {
	return !repo.LastSyncAt.Valid || !repo.LastSyncAt.Time.After(now.Add(-window))
}
