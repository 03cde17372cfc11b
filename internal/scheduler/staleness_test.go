// internal/scheduler/staleness_test.go
package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"repo-sync/internal/database"
)

func syncedAgo(now time.Time, ago time.Duration) database.RemoteRepository {
	return database.RemoteRepository{LastSyncAt: database.Timestamptz(now.Add(-ago))}
}

func TestShouldFetch(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		repos []database.RemoteRepository
		want  bool
	}{
		{"no repositories", nil, true},
		{"synced one hour ago", []database.RemoteRepository{syncedAgo(now, time.Hour)}, false},
		{"synced seven hours ago", []database.RemoteRepository{syncedAgo(now, 7*time.Hour)}, true},
		{"never synced", []database.RemoteRepository{{}}, true},
		{
			"one fresh among stale",
			[]database.RemoteRepository{syncedAgo(now, 30*time.Hour), {}, syncedAgo(now, 2*time.Hour)},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldFetch(tt.repos, now, DefaultFreshnessWindow))
		})
	}
}

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.False(t, IsStale(syncedAgo(now, time.Hour), now, DefaultFreshnessWindow))
	assert.True(t, IsStale(syncedAgo(now, 7*time.Hour), now, DefaultFreshnessWindow))
	assert.True(t, IsStale(syncedAgo(now, DefaultFreshnessWindow), now, DefaultFreshnessWindow), "the window edge is stale")
	assert.True(t, IsStale(database.RemoteRepository{}, now, DefaultFreshnessWindow))
}
