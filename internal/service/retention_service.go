package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-chat-api/internal/observability"
	"github.com/noah-isme/gema-chat-api/internal/repository"
)

// Retention defaults.
const (
	DefaultRetentionHorizon  = 24 * time.Hour
	DefaultRetentionInterval = 24 * time.Hour
)

// RetentionService periodically deletes messages older than the horizon.
type RetentionService interface {
	Start(ctx context.Context)
	SweepNow(ctx context.Context) int64
	TriggerSweep(ctx context.Context, actorID string) (int64, error)
}

// RetentionConfig tunes the sweeper.
type RetentionConfig struct {
	Horizon  time.Duration
	Interval time.Duration
	// Files receives uploads orphaned by a sweep. Optional.
	Files FileStorage
}

type retentionService struct {
	store  repository.Store
	cfg    RetentionConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewRetentionService constructs the sweeper.
func NewRetentionService(store repository.Store, cfg RetentionConfig, logger zerolog.Logger) RetentionService {
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultRetentionHorizon
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetentionInterval
	}
	return &retentionService{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "retention_service").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Start runs a sweep every interval until ctx is cancelled. It does not block.
func (s *retentionService) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepNow(ctx)
			}
		}
	}()
}

// SweepNow deletes expired messages and returns how many were removed.
// Failures are logged and reported as zero.
func (s *retentionService) SweepNow(ctx context.Context) int64 {
	cutoff := s.now().Add(-s.cfg.Horizon)
	purge, err := s.store.DeleteMessagesBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error().Err(err).Time("cutoff", cutoff).Msg("retention sweep failed")
		return 0
	}
	releaseFiles(ctx, s.cfg.Files, s.logger, purge.Files)

	removed := purge.Messages
	if removed > 0 {
		observability.RetentionSwept().Add(float64(removed))
		observability.MessagesDeleted().Add(float64(removed))
	}
	s.logger.Info().Int64("removed", removed).Int("files", len(purge.Files)).Time("cutoff", cutoff).Msg("retention sweep completed")
	return removed
}

func (s *retentionService) TriggerSweep(ctx context.Context, actorID string) (int64, error) {
	actor, err := requireAdmin(ctx, s.store, actorID)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("admin_id", actor.ID).Msg("manual retention sweep requested")
	return s.SweepNow(ctx), nil
}
