package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/api"
	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"
	"github.com/JoaoVictor-C/ArenaRanking/internal/mmr"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// MatchSource is the slice of the remote provider the processor needs.
type MatchSource interface {
	GetMatchHistory(ctx context.Context, puuid string) ([]string, error)
	GetMatchDetails(ctx context.Context, matchID string) (*api.MatchResponse, error)
	GetTier(ctx context.Context, puuid string) (string, error)
}

// PlayerStore is the slice of the persistence layer the processor needs.
type PlayerStore interface {
	ListAll(ctx context.Context) ([]domain.Player, error)
	GetByPuuids(ctx context.Context, puuids []string) (map[string]domain.Player, error)
	Create(ctx context.Context, player *domain.Player) error
	ResetSessionDelta(ctx context.Context, puuid string) error
	SetLastProcessedMatch(ctx context.Context, puuid, matchID string) error
	ApplySettlement(ctx context.Context, update domain.SettlementUpdate) error
}

// Processor replays newly discovered matches and folds them into ratings.
// One instance must not run two cycles concurrently; the scheduler holds the
// run lock that guarantees that.
type Processor struct {
	riot    MatchSource
	players PlayerStore
	mode    string
	logger  zerolog.Logger
}

func NewProcessor(riot MatchSource, players PlayerStore, cfg *config.Config, logger zerolog.Logger) *Processor {
	return &Processor{
		riot:    riot,
		players: players,
		mode:    cfg.TrackedGameMode,
		logger:  logger,
	}
}

// RunCycle processes every tracked player once. Failures are contained per
// player; the cycle itself always completes and reports a summary.
func (p *Processor) RunCycle(ctx context.Context) (*domain.CycleSummary, error) {
	start := time.Now()
	p.logger.Info().Msg("starting MMR cycle")

	players, err := p.players.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	summary := &domain.CycleSummary{StartedAt: start}
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			p.logger.Warn().Err(err).Msg("cycle cancelled")
			break
		}
		if !player.AutoCheck {
			continue
		}

		settled, err := p.processPlayer(ctx, player)
		summary.MatchesSettled += settled
		if err != nil {
			summary.Errors++
			p.logger.Error().Err(err).
				Str("puuid", player.Puuid).
				Str("riot_id", player.RiotID).
				Msg("player processing aborted")
			continue
		}
		summary.PlayersProcessed++
	}

	summary.Duration = time.Since(start)
	p.logger.Info().
		Int("players_processed", summary.PlayersProcessed).
		Int("matches_settled", summary.MatchesSettled).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("MMR cycle finished")
	return summary, nil
}

// processPlayer replays the player's new matches oldest first. An error on
// one match aborts the rest of this player's replay; the watermark stays at
// the last committed match so the next cycle resumes from there.
func (p *Processor) processPlayer(ctx context.Context, player domain.Player) (int, error) {
	matchIDs, err := p.riot.GetMatchHistory(ctx, player.Puuid)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			p.logger.Debug().Str("puuid", player.Puuid).Msg("no match history upstream")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to fetch match history: %w", err)
	}

	newIDs := mmr.NewMatchIDs(matchIDs, player.LastProcessedMatchID)
	if len(newIDs) == 0 {
		return 0, nil
	}

	p.logger.Info().
		Str("riot_id", player.RiotID).
		Int("new_matches", len(newIDs)).
		Msg("replaying new matches")

	if err := p.players.ResetSessionDelta(ctx, player.Puuid); err != nil {
		return 0, fmt.Errorf("failed to reset session delta: %w", err)
	}

	settled := 0
	for i, matchID := range newIDs {
		if err := ctx.Err(); err != nil {
			return settled, err
		}

		newest := i == len(newIDs)-1
		ok, err := p.settleMatch(ctx, matchID, player, newest)
		if err != nil {
			return settled, fmt.Errorf("match %s: %w", matchID, err)
		}
		if ok {
			settled++
		}
	}

	return settled, nil
}

// settleMatch applies one match to every participant who still needs it.
// Returns false when the match was skipped without rating effect.
func (p *Processor) settleMatch(ctx context.Context, matchID string, trigger domain.Player, newest bool) (bool, error) {
	detail, err := p.riot.GetMatchDetails(ctx, matchID)
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			p.logger.Warn().Str("match_id", matchID).Msg("match no longer available upstream")
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch match details: %w", err)
	}

	match := toDomainMatch(detail)

	// Matches played before the player joined never affect ratings, and do
	// not move the watermark either.
	if match.GameCreation.Before(trigger.DateAdded) {
		p.logger.Debug().
			Str("match_id", matchID).
			Time("game_creation", match.GameCreation).
			Time("date_added", trigger.DateAdded).
			Msg("match predates player registration, skipping")
		return false, nil
	}

	if match.GameMode != p.mode {
		p.logger.Debug().
			Str("match_id", matchID).
			Str("game_mode", match.GameMode).
			Msg("untracked game mode, skipping")
		// Advance past the newest skipped id so the window is not refetched
		// forever; older skipped ids stay behind the watermark naturally.
		if newest {
			if err := p.players.SetLastProcessedMatch(ctx, trigger.Puuid, matchID); err != nil {
				return false, fmt.Errorf("failed to advance watermark: %w", err)
			}
		}
		return false, nil
	}

	existing, err := p.players.GetByPuuids(ctx, match.Participants)
	if err != nil {
		return false, fmt.Errorf("failed to load participants: %w", err)
	}

	tiers, err := p.lookupUnknownTiers(ctx, match, existing)
	if err != nil {
		return false, err
	}

	var (
		mmrSum  int
		mmrN    int
		staged  []stagedUpdate
		updates []domain.SettlementUpdate
	)

	for _, puuid := range match.Participants {
		info, ok := match.Placements[puuid]
		if !ok {
			p.logger.Warn().
				Str("match_id", matchID).
				Str("puuid", puuid).
				Msg("participant missing from match detail payload")
			continue
		}

		var rating, wins, losses int
		if record, ok := existing[puuid]; ok {
			// Already settled for them, or their own cycle is authoritative:
			// their rating still shapes the average, but they get no update.
			if record.LastProcessedMatchID == matchID || (record.AutoCheck && puuid != trigger.Puuid) {
				mmrSum += record.MMR
				mmrN++
				continue
			}
			rating, wins, losses = record.MMR, record.Wins, record.Losses
		} else {
			tier := tiers[puuid]
			rating = seedMMR(tier)
			created := domain.Player{
				Puuid:     puuid,
				RiotID:    fmt.Sprintf("%s#%s", info.GameName, info.TagLine),
				Name:      info.GameName,
				MMR:       rating,
				AutoCheck: false,
			}
			if err := p.players.Create(ctx, &created); err != nil {
				return false, fmt.Errorf("failed to create player %s: %w", puuid, err)
			}
			p.logger.Info().
				Str("puuid", puuid).
				Str("riot_id", created.RiotID).
				Str("tier", tier).
				Int("mmr", rating).
				Msg("discovered new opponent")
		}

		mmrSum += rating
		mmrN++

		isWin := info.Placement <= constants.WinPlacementThreshold
		if isWin {
			wins++
		} else {
			losses++
		}
		staged = append(staged, stagedUpdate{
			puuid:       puuid,
			rating:      rating,
			wins:        wins,
			losses:      losses,
			placement:   info.Placement,
			gamesPlayed: wins + losses - 1,
		})
	}

	var average float64
	if mmrN > 0 {
		average = float64(mmrSum) / float64(mmrN)
	}

	for _, s := range staged {
		delta := mmr.Delta(s.rating, average, s.placement, s.gamesPlayed)
		updates = append(updates, domain.SettlementUpdate{
			Puuid:     s.puuid,
			MatchID:   matchID,
			MatchDate: match.GameCreation,
			NewMMR:    s.rating + delta,
			Delta:     delta,
			Wins:      s.wins,
			Losses:    s.losses,
		})
	}

	// The triggering player's watermark advance must be the last write of
	// this match, so commit everyone else first.
	triggerCommitted := false
	for _, u := range updates {
		if u.Puuid == trigger.Puuid {
			continue
		}
		if err := p.players.ApplySettlement(ctx, u); err != nil {
			return false, fmt.Errorf("failed to commit settlement for %s: %w", u.Puuid, err)
		}
	}
	for _, u := range updates {
		if u.Puuid != trigger.Puuid {
			continue
		}
		if err := p.players.ApplySettlement(ctx, u); err != nil {
			return false, fmt.Errorf("failed to commit settlement for %s: %w", u.Puuid, err)
		}
		triggerCommitted = true
		p.logger.Info().
			Str("riot_id", trigger.RiotID).
			Int("mmr", u.NewMMR).
			Int("delta", u.Delta).
			Str("match_id", matchID).
			Msg("rating updated")
	}

	if !triggerCommitted {
		if err := p.players.SetLastProcessedMatch(ctx, trigger.Puuid, matchID); err != nil {
			return false, fmt.Errorf("failed to advance watermark: %w", err)
		}
	}

	p.logger.Info().
		Str("match_id", matchID).
		Int("participants", len(match.Participants)).
		Int("updated", len(updates)).
		Float64("average_mmr", average).
		Msg("match settled")
	return len(updates) > 0, nil
}

type stagedUpdate struct {
	puuid       string
	rating      int
	wins        int
	losses      int
	placement   int
	gamesPlayed int
}

// lookupUnknownTiers resolves ranked tiers for participants with no stored
// record, in parallel. A failed lookup degrades to UNRANKED rather than
// failing the match.
func (p *Processor) lookupUnknownTiers(ctx context.Context, match *domain.Match, existing map[string]domain.Player) (map[string]string, error) {
	var unknown []string
	for _, puuid := range match.Participants {
		if _, ok := existing[puuid]; ok {
			continue
		}
		if _, ok := match.Placements[puuid]; !ok {
			continue
		}
		unknown = append(unknown, puuid)
	}
	if len(unknown) == 0 {
		return map[string]string{}, nil
	}

	var mu sync.Mutex
	tiers := make(map[string]string, len(unknown))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, puuid := range unknown {
		puuid := puuid
		g.Go(func() error {
			tier, err := p.riot.GetTier(gCtx, puuid)
			if err != nil {
				p.logger.Warn().Err(err).Str("puuid", puuid).Msg("tier lookup failed, seeding as unranked")
				tier = "UNRANKED"
			}
			mu.Lock()
			tiers[puuid] = tier
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tiers, nil
}

func seedMMR(tier string) int {
	if seed, ok := constants.DefaultMMR[tier]; ok {
		return seed
	}
	return constants.DefaultMMR["UNRANKED"]
}

func toDomainMatch(detail *api.MatchResponse) *domain.Match {
	match := &domain.Match{
		MatchID:      detail.Metadata.MatchID,
		GameMode:     detail.Info.GameMode,
		GameCreation: time.UnixMilli(detail.Info.GameCreation).UTC(),
		Participants: detail.Metadata.Participants,
		Placements:   make(map[string]domain.Placement, len(detail.Info.Participants)),
	}
	for _, participant := range detail.Info.Participants {
		if participant.Puuid == "" {
			continue
		}
		match.Placements[participant.Puuid] = domain.Placement{
			Placement: participant.Placement,
			GameName:  participant.RiotIDGameName,
			TagLine:   participant.RiotIDTagline,
		}
	}
	return match
}
