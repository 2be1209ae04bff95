package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	"github.com/rs/zerolog"
)

// ErrCycleInFlight is returned when a trigger arrives while a cycle is
// already running. Cycles are never allowed to overlap.
var ErrCycleInFlight = errors.New("a processing cycle is already running")

// RiotIDRefreshInterval is how often player Name#Tags are re-resolved.
const RiotIDRefreshInterval = 24 * time.Hour

// Scheduler drives periodic processing cycles and serializes them with
// manual triggers through a single-slot run lock.
type Scheduler struct {
	processor *Processor
	ranking   *RankingService
	players   *PlayerService
	interval  time.Duration
	logger    zerolog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(processor *Processor, ranking *RankingService, players *PlayerService, cfg *config.Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		processor: processor,
		ranking:   ranking,
		players:   players,
		interval:  cfg.UpdateInterval,
		logger:    logger,
	}
}

// Start launches the background loop. Call Stop to shut it down.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop cancels the loop and waits for it, or gives up when ctx expires. A
// cycle interrupted mid-run leaves every committed match durable; the next
// cycle resumes from the watermarks.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	cycleTicker := time.NewTicker(s.interval)
	defer cycleTicker.Stop()
	identityTicker := time.NewTicker(RiotIDRefreshInterval)
	defer identityTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cycleTicker.C:
			if _, err := s.TriggerCycle(ctx); err != nil && !errors.Is(err, ErrCycleInFlight) {
				s.logger.Error().Err(err).Msg("scheduled cycle failed")
			}
		case <-identityTicker.C:
			if _, err := s.players.RefreshRiotIDs(ctx); err != nil {
				s.logger.Error().Err(err).Msg("riot id refresh failed")
			}
		}
	}
}

// TriggerCycle runs one cycle now, shared by the timer and manual triggers.
// Returns ErrCycleInFlight instead of queueing when one is already running.
func (s *Scheduler) TriggerCycle(ctx context.Context) (*domain.CycleSummary, error) {
	if !s.runMu.TryLock() {
		return nil, ErrCycleInFlight
	}
	defer s.runMu.Unlock()

	summary, err := s.processor.RunCycle(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.ranking.Refresh(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to refresh ranking cache after cycle")
	}
	return summary, nil
}
