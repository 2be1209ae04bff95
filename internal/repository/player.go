package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{
		db:     sqlDB,
		logger: logger,
	}
}

const playerColumns = `puuid, riot_id, name, mmr, wins, losses, auto_check,
	COALESCE(last_processed_match_id, ''), session_delta, date_added, last_updated_at`

func scanPlayer(row interface{ Scan(...any) error }) (*domain.Player, error) {
	var p domain.Player
	err := row.Scan(
		&p.Puuid, &p.RiotID, &p.Name, &p.MMR, &p.Wins, &p.Losses,
		&p.AutoCheck, &p.LastProcessedMatchID, &p.SessionDelta,
		&p.DateAdded, &p.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepository) Get(ctx context.Context, puuid string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE puuid = ?`, puuid)
	return scanPlayer(row)
}

func (r *PlayerRepository) GetByRiotID(ctx context.Context, riotID string) (*domain.Player, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE riot_id = ?`, riotID)
	return scanPlayer(row)
}

// ListAll returns every stored player, tracked or not.
func (r *PlayerRepository) ListAll(ctx context.Context) ([]domain.Player, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players ORDER BY date_added`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPlayers(rows)
}

// GetByPuuids loads the participant records for one match in a single query.
func (r *PlayerRepository) GetByPuuids(ctx context.Context, puuids []string) (map[string]domain.Player, error) {
	if len(puuids) == 0 {
		return map[string]domain.Player{}, nil
	}

	placeholders := strings.Repeat("?,", len(puuids)-1) + "?"
	args := make([]any, len(puuids))
	for i, p := range puuids {
		args[i] = p
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players WHERE puuid IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	players, err := collectPlayers(rows)
	if err != nil {
		return nil, err
	}

	result := make(map[string]domain.Player, len(players))
	for _, p := range players {
		result[p.Puuid] = p
	}
	return result, nil
}

func (r *PlayerRepository) Create(ctx context.Context, player *domain.Player) error {
	if player.DateAdded.IsZero() {
		player.DateAdded = time.Now().UTC()
	}
	player.LastUpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO players (puuid, riot_id, name, mmr, wins, losses, auto_check,
			last_processed_match_id, session_delta, date_added, last_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)
		ON CONFLICT (puuid) DO NOTHING`,
		player.Puuid, player.RiotID, player.Name, player.MMR, player.Wins,
		player.Losses, player.AutoCheck, player.LastProcessedMatchID,
		player.SessionDelta, player.DateAdded, player.LastUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create player %s: %w", player.Puuid, err)
	}

	r.logger.Debug().
		Str("puuid", player.Puuid).
		Str("riot_id", player.RiotID).
		Int("mmr", player.MMR).
		Bool("auto_check", player.AutoCheck).
		Msg("player created")
	return nil
}

func (r *PlayerRepository) SetAutoCheck(ctx context.Context, puuid string, autoCheck bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET auto_check = ?, last_updated_at = ? WHERE puuid = ?`,
		autoCheck, time.Now().UTC(), puuid)
	return err
}

func (r *PlayerRepository) UpdateRiotID(ctx context.Context, puuid, riotID, name string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET riot_id = ?, name = ?, last_updated_at = ? WHERE puuid = ?`,
		riotID, name, time.Now().UTC(), puuid)
	return err
}

// ResetSessionDelta zeroes the running delta at the start of a player's
// processing pass.
func (r *PlayerRepository) ResetSessionDelta(ctx context.Context, puuid string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET session_delta = 0 WHERE puuid = ?`, puuid)
	return err
}

// SetLastProcessedMatch advances a player's watermark without touching their
// rating. Used when the newest observed match was skipped (untracked mode)
// so it is not refetched every cycle.
func (r *PlayerRepository) SetLastProcessedMatch(ctx context.Context, puuid, matchID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE players SET last_processed_match_id = ?, last_updated_at = ? WHERE puuid = ?`,
		matchID, time.Now().UTC(), puuid)
	return err
}

// ApplySettlement commits one match's effect on one player: rating, win/loss
// counters, watermark, session delta and the history entry move in a single
// transaction. Re-applying an identical update is a no-op because the player
// row is only touched while its watermark differs from the match id, and the
// history row is only inserted when the player row moved.
func (r *PlayerRepository) ApplySettlement(ctx context.Context, update domain.SettlementUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE players
		SET mmr = ?, wins = ?, losses = ?, last_processed_match_id = ?,
			session_delta = session_delta + ?, last_updated_at = ?
		WHERE puuid = ?
			AND (last_processed_match_id IS NULL OR last_processed_match_id != ?)`,
		update.NewMMR, update.Wins, update.Losses, update.MatchID,
		update.Delta, time.Now().UTC(), update.Puuid, update.MatchID,
	)
	if err != nil {
		return fmt.Errorf("failed to update player %s: %w", update.Puuid, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Watermark already at this match: an earlier attempt committed.
		r.logger.Debug().
			Str("puuid", update.Puuid).
			Str("match_id", update.MatchID).
			Msg("settlement already applied, skipping")
		return nil
	}

	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate nanoid: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rating_history (id, puuid, match_id, mmr, date, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, update.Puuid, update.MatchID, update.NewMMR, update.MatchDate, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append rating history for %s: %w", update.Puuid, err)
	}

	return tx.Commit()
}

// GetRanking returns tracked players ordered by rating, paginated.
func (r *PlayerRepository) GetRanking(ctx context.Context, page, pageSize int) ([]domain.Player, error) {
	if page < 1 {
		page = 1
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+playerColumns+` FROM players
		WHERE auto_check = 1
		ORDER BY mmr DESC, wins DESC
		LIMIT ? OFFSET ?`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectPlayers(rows)
}

func (r *PlayerRepository) CountTracked(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM players WHERE auto_check = 1`).Scan(&count)
	return count, err
}

// Delete removes a player and their history. Operator action only; the
// processing core never deletes.
func (r *PlayerRepository) Delete(ctx context.Context, puuid string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM rating_history WHERE puuid = ?`, puuid); err != nil {
		return fmt.Errorf("failed to delete rating history for %s: %w", puuid, err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM players WHERE puuid = ?`, puuid); err != nil {
		return fmt.Errorf("failed to delete player %s: %w", puuid, err)
	}

	return tx.Commit()
}

func collectPlayers(rows *sql.Rows) ([]domain.Player, error) {
	var players []domain.Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		players = append(players, *p)
	}
	return players, rows.Err()
}
