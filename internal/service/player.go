package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/api"
	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"
	"github.com/JoaoVictor-C/ArenaRanking/internal/repository"

	"github.com/rs/zerolog"
)

// ErrPlayerNotFound covers both an unknown Riot ID upstream and a missing
// local record, depending on the operation.
var ErrPlayerNotFound = errors.New("player not found")

// AccountSource is the slice of the remote provider used for identity.
type AccountSource interface {
	GetAccountByRiotID(ctx context.Context, name, tag string) (*api.AccountResponse, error)
	GetAccountByPuuid(ctx context.Context, puuid string) (*api.AccountResponse, error)
}

// PlayerService handles registration and identity upkeep. Rating mutations
// belong to the processor; this service only creates records and flips
// tracking flags.
type PlayerService struct {
	riot    AccountSource
	repo    *repository.PlayerRepository
	history *repository.HistoryRepository
	logger  zerolog.Logger
}

func NewPlayerService(riot AccountSource, repo *repository.PlayerRepository, history *repository.HistoryRepository, logger zerolog.Logger) *PlayerService {
	return &PlayerService{riot: riot, repo: repo, history: history, logger: logger}
}

// Register verifies a Riot ID upstream and enrolls the player for automatic
// rating updates. A player previously known only as an opponent keeps their
// earned rating and record; only the tracking flag flips.
func (s *PlayerService) Register(ctx context.Context, name, tag string) (*domain.Player, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	account, err := s.riot.GetAccountByRiotID(ctx, name, tag)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s#%s", ErrPlayerNotFound, name, tag)
		}
		return nil, fmt.Errorf("failed to verify riot id: %w", err)
	}

	riotID := fmt.Sprintf("%s#%s", account.GameName, account.TagLine)

	existing, err := s.repo.Get(ctx, account.Puuid)
	if err == nil {
		if !existing.AutoCheck {
			if err := s.repo.SetAutoCheck(ctx, account.Puuid, true); err != nil {
				return nil, fmt.Errorf("failed to enable tracking: %w", err)
			}
			existing.AutoCheck = true
			s.logger.Info().
				Str("riot_id", riotID).
				Str("puuid", account.Puuid).
				Msg("known opponent enrolled for tracking")
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up player: %w", err)
	}

	player := &domain.Player{
		Puuid:     account.Puuid,
		RiotID:    riotID,
		Name:      account.GameName,
		MMR:       constants.RegisteredPlayerMMR,
		AutoCheck: true,
		DateAdded: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, player); err != nil {
		return nil, fmt.Errorf("failed to create player: %w", err)
	}

	s.logger.Info().
		Str("riot_id", riotID).
		Str("puuid", account.Puuid).
		Int("mmr", player.MMR).
		Msg("player registered")
	return player, nil
}

// GetWithHistory returns a player plus their recent rating history.
func (s *PlayerService) GetWithHistory(ctx context.Context, puuid string, historyLimit int) (*domain.Player, []domain.RatingHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	player, err := s.repo.Get(ctx, puuid)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrPlayerNotFound
		}
		return nil, nil, err
	}

	entries, err := s.history.GetRecent(ctx, puuid, historyLimit)
	if err != nil {
		return nil, nil, err
	}
	return player, entries, nil
}

// Remove deletes a player and their history. Operator action.
func (s *PlayerService) Remove(ctx context.Context, puuid string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if _, err := s.repo.Get(ctx, puuid); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPlayerNotFound
		}
		return err
	}

	s.logger.Info().Str("puuid", puuid).Msg("removing player")
	return s.repo.Delete(ctx, puuid)
}

// RefreshRiotIDs re-resolves every stored player's Name#Tag from their puuid
// and persists changes. Riot IDs are mutable; puuids are not.
func (s *PlayerService) RefreshRiotIDs(ctx context.Context) (int, error) {
	players, err := s.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list players: %w", err)
	}

	updated := 0
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			return updated, err
		}

		account, err := s.riot.GetAccountByPuuid(ctx, player.Puuid)
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				s.logger.Warn().Str("puuid", player.Puuid).Msg("account no longer resolvable")
				continue
			}
			s.logger.Error().Err(err).Str("puuid", player.Puuid).Msg("failed to refresh riot id")
			continue
		}

		riotID := fmt.Sprintf("%s#%s", account.GameName, account.TagLine)
		if riotID == player.RiotID {
			continue
		}

		if err := s.repo.UpdateRiotID(ctx, player.Puuid, riotID, account.GameName); err != nil {
			s.logger.Error().Err(err).Str("puuid", player.Puuid).Msg("failed to persist riot id change")
			continue
		}
		updated++
		s.logger.Info().
			Str("old_riot_id", player.RiotID).
			Str("new_riot_id", riotID).
			Str("puuid", player.Puuid).
			Msg("riot id updated")
	}

	s.logger.Info().Int("updated", updated).Msg("riot id refresh completed")
	return updated, nil
}
