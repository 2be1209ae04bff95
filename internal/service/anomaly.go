package service

import (
	"context"
	"fmt"

	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	"github.com/rs/zerolog"
)

// HistoryReader is the slice of the persistence layer the scanner needs.
type HistoryReader interface {
	GetRecent(ctx context.Context, puuid string, limit int) ([]domain.RatingHistory, error)
}

// AnomalyScanner is a read-only diagnostic over committed rating history.
// It never mutates state; reports are for operator review.
type AnomalyScanner struct {
	players PlayerStore
	history HistoryReader
	logger  zerolog.Logger
}

func NewAnomalyScanner(players PlayerStore, history HistoryReader, logger zerolog.Logger) *AnomalyScanner {
	return &AnomalyScanner{players: players, history: history, logger: logger}
}

// Scan flags players whose rating moved more than the threshold across their
// most recent history window.
func (s *AnomalyScanner) Scan(ctx context.Context) ([]domain.Anomaly, error) {
	players, err := s.players.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list players: %w", err)
	}

	var anomalies []domain.Anomaly
	for _, player := range players {
		if err := ctx.Err(); err != nil {
			return anomalies, err
		}

		entries, err := s.history.GetRecent(ctx, player.Puuid, constants.AnomalyWindow)
		if err != nil {
			s.logger.Warn().Err(err).Str("puuid", player.Puuid).Msg("failed to load rating history")
			continue
		}
		if len(entries) < constants.AnomalyWindow {
			continue
		}

		// Entries come newest first.
		newest := entries[0].MMR
		oldest := entries[len(entries)-1].MMR
		change := newest - oldest

		if change > constants.AnomalyThreshold || change < -constants.AnomalyThreshold {
			anomalies = append(anomalies, domain.Anomaly{
				Puuid:   player.Puuid,
				RiotID:  player.RiotID,
				Change:  change,
				Matches: constants.AnomalyWindow,
			})
			s.logger.Warn().
				Str("riot_id", player.RiotID).
				Int("change", change).
				Int("matches", constants.AnomalyWindow).
				Msg("anomalous rating swing detected")
		}
	}

	s.logger.Info().Int("anomalies", len(anomalies)).Msg("anomaly scan completed")
	return anomalies, nil
}
