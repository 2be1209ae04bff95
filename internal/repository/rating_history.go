package repository

import (
	"context"
	"database/sql"

	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	"github.com/rs/zerolog"
)

// HistoryRepository is the read side of rating_history; writes happen inside
// PlayerRepository.ApplySettlement so they share the player's transaction.
type HistoryRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewHistoryRepository(sqlDB *sql.DB, logger zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		db:     sqlDB,
		logger: logger,
	}
}

// GetRecent returns up to limit entries for a player, newest first.
func (r *HistoryRepository) GetRecent(ctx context.Context, puuid string, limit int) ([]domain.RatingHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, puuid, match_id, mmr, date, created_at
		FROM rating_history
		WHERE puuid = ?
		ORDER BY date DESC, created_at DESC
		LIMIT ?`,
		puuid, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.RatingHistory
	for rows.Next() {
		var e domain.RatingHistory
		if err := rows.Scan(&e.ID, &e.Puuid, &e.MatchID, &e.MMR, &e.Date, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *HistoryRepository) CountByPuuid(ctx context.Context, puuid string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rating_history WHERE puuid = ?`, puuid).Scan(&count)
	return count, err
}
