package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"
	"github.com/JoaoVictor-C/ArenaRanking/internal/repository"

	"github.com/rs/zerolog"
)

// RankingService serves the leaderboard from an in-memory snapshot so
// ranking reads do not hit the store on every request. The snapshot is
// rebuilt when stale and after every processing cycle.
type RankingService struct {
	repo   *repository.PlayerRepository
	logger zerolog.Logger

	mu          sync.RWMutex
	cached      []domain.Player
	lastRefresh time.Time
}

func NewRankingService(repo *repository.PlayerRepository, logger zerolog.Logger) *RankingService {
	return &RankingService{repo: repo, logger: logger}
}

// GetRanking returns one page of the leaderboard plus the total tracked
// player count.
func (s *RankingService) GetRanking(ctx context.Context, page, pageSize int) ([]domain.Player, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = constants.DefaultRankingPageSize
	}
	if pageSize > constants.MaxRankingPageSize {
		pageSize = constants.MaxRankingPageSize
	}

	if err := s.ensureFresh(ctx); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(s.cached)
	start := (page - 1) * pageSize
	if start >= total {
		return []domain.Player{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	out := make([]domain.Player, end-start)
	copy(out, s.cached[start:end])
	return out, total, nil
}

// Refresh rebuilds the snapshot from the store.
func (s *RankingService) Refresh(ctx context.Context) error {
	total, err := s.repo.CountTracked(ctx)
	if err != nil {
		return fmt.Errorf("failed to count tracked players: %w", err)
	}

	players, err := s.repo.GetRanking(ctx, 1, max(total, 1))
	if err != nil {
		return fmt.Errorf("failed to load ranking: %w", err)
	}

	s.mu.Lock()
	s.cached = players
	s.lastRefresh = time.Now()
	s.mu.Unlock()

	s.logger.Debug().Int("players", len(players)).Msg("ranking cache refreshed")
	return nil
}

func (s *RankingService) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := len(s.cached) > 0 && time.Since(s.lastRefresh) < constants.RankingCacheTTL
	s.mu.RUnlock()

	if fresh {
		return nil
	}
	return s.Refresh(ctx)
}
