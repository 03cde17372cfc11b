// internal/scheduler/sweeper.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"repo-sync/internal/database"
)

// UserSyncer refreshes one user's repositories, reporting whether the
// provider was actually consulted.
type UserSyncer interface {
	SyncUser(ctx context.Context, userID int64, force bool) (fetched bool, err error)
}

// SweepStats summarizes one sweep over all users.
type SweepStats struct {
	Checked int
	Fetched int
	Skipped int
	Errored int
}

// Sweeper periodically refreshes every user that has a stored token.
type Sweeper struct {
	store       database.Querier
	users       UserSyncer
	schedule    string
	concurrency int
	logger      *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewSweeper validates the cron schedule and returns a stopped Sweeper.
func NewSweeper(store database.Querier, users UserSyncer, schedule string, concurrency int, logger *slog.Logger) (*Sweeper, error) {
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	if concurrency < 1 {
		concurrency = 1
	}
	return &Sweeper{
		store:       store,
		users:       users,
		schedule:    schedule,
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Start registers the sweep with cron. A sweep still running when the next
// one is due causes the next one to be skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.logger})))
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("failed to register sweep: %w", err)
	}
	s.cron.Start()

	s.logger.Info("Sweep scheduler started", "schedule", s.schedule, "concurrency", s.concurrency)
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info("Sweep scheduler stopped")
}

// RunOnce sweeps every user with a stored token, honouring the freshness
// window of each.
func (s *Sweeper) RunOnce(ctx context.Context) SweepStats {
	start := time.Now()
	s.logger.Info("Starting repository sweep")

	users, err := s.store.ListUsersWithToken(ctx)
	if err != nil {
		s.logger.Error("Failed to list users for sweep", "error", err)
		return SweepStats{Errored: 1}
	}

	var checked, fetched, skipped, errored atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, u := range users {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			checked.Add(1)
			didFetch, err := s.users.SyncUser(gctx, u.ID, false)
			switch {
			case err != nil && !errors.Is(err, context.Canceled):
				errored.Add(1)
				s.logger.Error("Failed to sweep user", "user_id", u.ID, "error", err)
			case err != nil:
			case didFetch:
				fetched.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	stats := SweepStats{
		Checked: int(checked.Load()),
		Fetched: int(fetched.Load()),
		Skipped: int(skipped.Load()),
		Errored: int(errored.Load()),
	}
	s.logger.Info("Repository sweep finished",
		"checked", stats.Checked,
		"fetched", stats.Fetched,
		"skipped", stats.Skipped,
		"errored", stats.Errored,
		"duration", time.Since(start).String(),
	)
	return stats
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
