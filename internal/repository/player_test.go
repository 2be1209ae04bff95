package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/database"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepos(t *testing.T) (*PlayerRepository, *HistoryRepository) {
	t.Helper()

	cfg := &config.Config{DBPath: filepath.Join(t.TempDir(), "arena.db")}
	db, err := database.New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPlayerRepository(db, zerolog.Nop()), NewHistoryRepository(db, zerolog.Nop())
}

func testPlayer(puuid string, mmr int, tracked bool) *domain.Player {
	return &domain.Player{
		Puuid:     puuid,
		RiotID:    puuid + "#BR1",
		Name:      puuid,
		MMR:       mmr,
		AutoCheck: tracked,
		DateAdded: time.Now().UTC(),
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	players, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))

	got, err := players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1#BR1", got.RiotID)
	assert.Equal(t, 1000, got.MMR)
	assert.True(t, got.AutoCheck)
	assert.Empty(t, got.LastProcessedMatchID)
	assert.Zero(t, got.SessionDelta)
}

func TestCreateConflictIsNoOp(t *testing.T) {
	players, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))
	require.NoError(t, players.Create(ctx, testPlayer("p1", 600, false)))

	got, err := players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1000, got.MMR)
	assert.True(t, got.AutoCheck)
}

func TestApplySettlementIsIdempotent(t *testing.T) {
	players, history := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))

	update := domain.SettlementUpdate{
		Puuid:     "p1",
		MatchID:   "BR1_100",
		MatchDate: time.Now().UTC(),
		NewMMR:    1060,
		Delta:     60,
		Wins:      1,
		Losses:    0,
	}

	require.NoError(t, players.ApplySettlement(ctx, update))

	got, err := players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1060, got.MMR)
	assert.Equal(t, 1, got.Wins)
	assert.Equal(t, "BR1_100", got.LastProcessedMatchID)
	assert.Equal(t, 60, got.SessionDelta)

	// A crashed run retrying the same match must change nothing.
	update.NewMMR = 1120
	update.Delta = 120
	require.NoError(t, players.ApplySettlement(ctx, update))

	got, err = players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1060, got.MMR)
	assert.Equal(t, 60, got.SessionDelta)

	count, err := history.CountByPuuid(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestApplySettlementAccumulatesSessionDelta(t *testing.T) {
	players, history := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))

	matchDate := time.Now().UTC()
	for i, u := range []domain.SettlementUpdate{
		{Puuid: "p1", MatchID: "BR1_1", NewMMR: 1060, Delta: 60, Wins: 1, Losses: 0},
		{Puuid: "p1", MatchID: "BR1_2", NewMMR: 1020, Delta: -40, Wins: 1, Losses: 1},
	} {
		u.MatchDate = matchDate.Add(time.Duration(i) * time.Hour)
		require.NoError(t, players.ApplySettlement(ctx, u))
	}

	got, err := players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1020, got.MMR)
	assert.Equal(t, 20, got.SessionDelta)
	assert.Equal(t, "BR1_2", got.LastProcessedMatchID)

	require.NoError(t, players.ResetSessionDelta(ctx, "p1"))
	got, err = players.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, got.SessionDelta)

	entries, err := history.GetRecent(ctx, "p1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, "BR1_2", entries[0].MatchID)
	assert.Equal(t, "BR1_1", entries[1].MatchID)
}

func TestGetByPuuidsReturnsOnlyKnown(t *testing.T) {
	players, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))
	require.NoError(t, players.Create(ctx, testPlayer("p2", 600, false)))

	got, err := players.GetByPuuids(ctx, []string{"p1", "p2", "stranger"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1000, got["p1"].MMR)
	assert.Equal(t, 600, got["p2"].MMR)

	empty, err := players.GetByPuuids(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestGetRankingFiltersAndOrders(t *testing.T) {
	players, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("low", 900, true)))
	require.NoError(t, players.Create(ctx, testPlayer("high", 1500, true)))
	require.NoError(t, players.Create(ctx, testPlayer("mid", 1100, true)))
	// Discovered opponents never appear on the ladder.
	require.NoError(t, players.Create(ctx, testPlayer("npc", 2000, false)))

	ranking, err := players.GetRanking(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, ranking, 3)
	assert.Equal(t, "high", ranking[0].Puuid)
	assert.Equal(t, "mid", ranking[1].Puuid)
	assert.Equal(t, "low", ranking[2].Puuid)

	page2, err := players.GetRanking(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "low", page2[0].Puuid)

	count, err := players.CountTracked(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSetAutoCheckAndUpdateRiotID(t *testing.T) {
	players, _ := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 600, false)))
	require.NoError(t, players.SetAutoCheck(ctx, "p1", true))
	require.NoError(t, players.UpdateRiotID(ctx, "p1", "NewName#BR1", "NewName"))

	got, err := players.GetByRiotID(ctx, "NewName#BR1")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.Puuid)
	assert.True(t, got.AutoCheck)
	assert.Equal(t, "NewName", got.Name)
}

func TestDeleteRemovesPlayerAndHistory(t *testing.T) {
	players, history := newTestRepos(t)
	ctx := context.Background()

	require.NoError(t, players.Create(ctx, testPlayer("p1", 1000, true)))
	require.NoError(t, players.ApplySettlement(ctx, domain.SettlementUpdate{
		Puuid: "p1", MatchID: "BR1_1", MatchDate: time.Now().UTC(),
		NewMMR: 1060, Delta: 60, Wins: 1,
	}))

	require.NoError(t, players.Delete(ctx, "p1"))

	_, err := players.Get(ctx, "p1")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	count, err := history.CountByPuuid(ctx, "p1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
