package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/blinkdate/match-server-go/internal/config"
	"github.com/blinkdate/match-server-go/internal/repository"
	"github.com/blinkdate/match-server-go/internal/service"
)

// CleanupJob sweeps abandoned state on a timer: matching sessions
// nobody polls anymore, call sessions both clients walked away from,
// video sessions stuck in waiting, and per-match call history beyond
// the retention cap.
type CleanupJob struct {
	sessionRepo repository.MatchingSessionRepository
	videoRepo   repository.VideoSessionRepository
	coordinator *service.CallCoordinator
	interval    time.Duration
	done        chan struct{}
}

func NewCleanupJob(
	sessionRepo repository.MatchingSessionRepository,
	videoRepo repository.VideoSessionRepository,
	coordinator *service.CallCoordinator,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		videoRepo:   videoRepo,
		coordinator: coordinator,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	now := time.Now()

	j.runCleanup(ctx, "stale matching sessions", func(ctx context.Context) (int64, error) {
		return j.sessionRepo.CompleteStale(ctx, now.Add(-config.MatchingSessionStaleAfter))
	})
	if j.coordinator != nil {
		j.runCleanup(ctx, "stale call sessions", func(ctx context.Context) (int64, error) {
			return j.coordinator.ReapStaleCalls(ctx, now.Add(-config.CallStaleAfter))
		})
	}
	j.runCleanup(ctx, "expired video sessions", func(ctx context.Context) (int64, error) {
		ids, err := j.videoRepo.CancelExpired(ctx, now.Add(-config.CallStaleAfter))
		return int64(len(ids)), err
	})
	j.runCleanup(ctx, "excess call history", func(ctx context.Context) (int64, error) {
		return j.videoRepo.DeleteCompletedBeyondPerMatch(ctx, config.VideoSessionsKeptPerMatch)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
