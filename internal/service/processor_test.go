package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/api"
	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeStore mirrors the repository's commit semantics in memory, including
// the watermark guard that makes ApplySettlement idempotent.
type fakeStore struct {
	mu      sync.Mutex
	order   []string
	players map[string]*domain.Player
	history map[string][]domain.RatingHistory

	// failSettle makes ApplySettlement fail for puuid+matchID pairs.
	failSettle map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		players:    map[string]*domain.Player{},
		history:    map[string][]domain.RatingHistory{},
		failSettle: map[string]error{},
	}
}

func (s *fakeStore) add(p domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.players[p.Puuid] = &cp
	s.order = append(s.order, p.Puuid)
}

func (s *fakeStore) get(puuid string) domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.players[puuid]
}

func (s *fakeStore) ListAll(ctx context.Context) ([]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Player, 0, len(s.order))
	for _, puuid := range s.order {
		out = append(out, *s.players[puuid])
	}
	return out, nil
}

func (s *fakeStore) GetByPuuids(ctx context.Context, puuids []string) (map[string]domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]domain.Player{}
	for _, puuid := range puuids {
		if p, ok := s.players[puuid]; ok {
			out[puuid] = *p
		}
	}
	return out, nil
}

func (s *fakeStore) Create(ctx context.Context, player *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.players[player.Puuid]; ok {
		return nil
	}
	if player.DateAdded.IsZero() {
		player.DateAdded = time.Now().UTC()
	}
	cp := *player
	s.players[player.Puuid] = &cp
	s.order = append(s.order, player.Puuid)
	return nil
}

func (s *fakeStore) ResetSessionDelta(ctx context.Context, puuid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[puuid]; ok {
		p.SessionDelta = 0
	}
	return nil
}

func (s *fakeStore) SetLastProcessedMatch(ctx context.Context, puuid, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.players[puuid]; ok {
		p.LastProcessedMatchID = matchID
	}
	return nil
}

func (s *fakeStore) ApplySettlement(ctx context.Context, update domain.SettlementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failSettle[update.Puuid+"/"+update.MatchID]; ok {
		return err
	}

	p, ok := s.players[update.Puuid]
	if !ok {
		return fmt.Errorf("player %s not found", update.Puuid)
	}
	if p.LastProcessedMatchID == update.MatchID {
		return nil
	}

	p.MMR = update.NewMMR
	p.Wins = update.Wins
	p.Losses = update.Losses
	p.LastProcessedMatchID = update.MatchID
	p.SessionDelta += update.Delta
	p.LastUpdatedAt = time.Now().UTC()
	s.history[update.Puuid] = append(s.history[update.Puuid], domain.RatingHistory{
		Puuid:   update.Puuid,
		MatchID: update.MatchID,
		MMR:     update.NewMMR,
		Date:    update.MatchDate,
	})
	return nil
}

type fakeRiot struct {
	mu        sync.Mutex
	histories map[string][]string
	matches   map[string]*api.MatchResponse
	tiers     map[string]string
}

func newFakeRiot() *fakeRiot {
	return &fakeRiot{
		histories: map[string][]string{},
		matches:   map[string]*api.MatchResponse{},
		tiers:     map[string]string{},
	}
}

func (r *fakeRiot) GetMatchHistory(ctx context.Context, puuid string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids, ok := r.histories[puuid]
	if !ok {
		return nil, api.ErrNotFound
	}
	return append([]string(nil), ids...), nil
}

func (r *fakeRiot) GetMatchDetails(ctx context.Context, matchID string) (*api.MatchResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.matches[matchID]
	if !ok {
		return nil, api.ErrNotFound
	}
	return m, nil
}

func (r *fakeRiot) GetTier(ctx context.Context, puuid string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tier, ok := r.tiers[puuid]; ok {
		return tier, nil
	}
	return "UNRANKED", nil
}

// addMatch registers a match and appends it (as newest) to every
// participant's history.
func (r *fakeRiot) addMatch(id, mode string, creation time.Time, placements map[string]int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp := &api.MatchResponse{}
	resp.Metadata.MatchID = id
	resp.Info.GameMode = mode
	resp.Info.GameCreation = creation.UnixMilli()
	for puuid, placement := range placements {
		resp.Metadata.Participants = append(resp.Metadata.Participants, puuid)
		resp.Info.Participants = append(resp.Info.Participants, api.MatchParticipant{
			Puuid:          puuid,
			Placement:      placement,
			RiotIDGameName: "player-" + puuid,
			RiotIDTagline:  "BR1",
		})
	}
	r.matches[id] = resp

	for puuid := range placements {
		r.histories[puuid] = append([]string{id}, r.histories[puuid]...)
	}
}

func newTestProcessor(riot *fakeRiot, store *fakeStore) *Processor {
	cfg := &config.Config{TrackedGameMode: "CHERRY"}
	return NewProcessor(riot, store, cfg, zerolog.Nop())
}

func trackedPlayer(puuid string, mmr, wins, losses int) domain.Player {
	return domain.Player{
		Puuid:     puuid,
		RiotID:    "player-" + puuid + "#BR1",
		Name:      "player-" + puuid,
		MMR:       mmr,
		Wins:      wins,
		Losses:    losses,
		AutoCheck: true,
		DateAdded: baseTime.Add(-24 * time.Hour),
	}
}

func TestPreJoinMatchLeavesStateUntouched(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	player := trackedPlayer("p1", 1000, 5, 5)
	player.DateAdded = baseTime
	store.add(player)

	// Played before the player registered.
	riot.addMatch("m1", "CHERRY", baseTime.Add(-time.Hour), map[string]int{
		"p1": 1, "p2": 2,
	})

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PlayersProcessed)
	assert.Equal(t, 0, summary.MatchesSettled)

	got := store.get("p1")
	assert.Equal(t, 1000, got.MMR)
	assert.Equal(t, 5, got.Wins)
	assert.Empty(t, got.LastProcessedMatchID)
	assert.Empty(t, store.history["p1"])
	// Opponents of a skipped match are never created.
	_, exists := store.players["p2"]
	assert.False(t, exists)
}

func TestUntrackedModeSkipsButAdvancesPastNewest(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 5, 5))

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 5})
	riot.addMatch("m2", "CLASSIC", baseTime.Add(time.Hour), map[string]int{"p1": 1, "p2": 5})

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MatchesSettled)

	got := store.get("p1")
	// m1 settled, m2 skipped; the watermark still lands on m2 so the
	// window is not refetched forever.
	assert.Equal(t, "m2", got.LastProcessedMatchID)
	assert.Equal(t, 6, got.Wins)
	assert.Len(t, store.history["p1"], 1)
	assert.Equal(t, "m1", store.history["p1"][0].MatchID)
}

func TestSettleCreatesUnknownOpponentsTierSeeded(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 25, 0))
	riot.tiers["p2"] = "GOLD"

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 8})

	_, err := p.RunCycle(context.Background())
	require.NoError(t, err)

	p2 := store.get("p2")
	assert.False(t, p2.AutoCheck)
	assert.Equal(t, "player-p2#BR1", p2.RiotID)
	assert.Equal(t, "m1", p2.LastProcessedMatchID)
	// Seeded from GOLD (350) before the match delta was applied.
	assert.Equal(t, 0, p2.Wins)
	assert.Equal(t, 1, p2.Losses)
	assert.Less(t, p2.MMR, 350)
	assert.Len(t, store.history["p2"], 1)
}

func TestSharedMatchEachEligiblePlayerSettlesThemselves(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	// P1 below the lobby average, P2 above it; six known opponents at 1100
	// put the starting average at exactly 1100.
	store.add(trackedPlayer("p1", 1000, 13, 12))
	store.add(trackedPlayer("p2", 1200, 13, 12))
	for i := 3; i <= 8; i++ {
		opp := trackedPlayer(fmt.Sprintf("o%d", i), 1100, 13, 12)
		opp.AutoCheck = false
		store.add(opp)
	}

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{
		"p1": 1, "p2": 2, "o3": 3, "o4": 4, "o5": 5, "o6": 6, "o7": 7, "o8": 8,
	})

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.PlayersProcessed)
	assert.Equal(t, 2, summary.MatchesSettled)

	p1 := store.get("p1")
	p2 := store.get("p2")

	// Underdog in first gets the upset bonus; both gain, P1 gains more.
	assert.Greater(t, p1.MMR, 1000)
	assert.Greater(t, p2.MMR, 1200)
	assert.Greater(t, p1.MMR-1000, p2.MMR-1200)

	assert.Equal(t, 14, p1.Wins)
	assert.Equal(t, 14, p2.Wins)

	// Exactly one history entry each, even though both cycles saw m1.
	assert.Len(t, store.history["p1"], 1)
	assert.Len(t, store.history["p2"], 1)
	for i := 3; i <= 8; i++ {
		assert.Len(t, store.history[fmt.Sprintf("o%d", i)], 1)
	}

	// Opponents settled exactly once, by P1's cycle.
	o3 := store.get("o3")
	assert.Equal(t, 14, o3.Wins)
	assert.Equal(t, 12, o3.Losses)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 25, 0))
	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 5})
	riot.addMatch("m2", "CHERRY", baseTime.Add(time.Hour), map[string]int{"p1": 2, "p2": 6})

	_, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	after := store.get("p1")
	firstHistory := len(store.history["p1"])

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.MatchesSettled)

	again := store.get("p1")
	assert.Equal(t, after.MMR, again.MMR)
	assert.Equal(t, after.Wins, again.Wins)
	assert.Equal(t, after.Losses, again.Losses)
	assert.Equal(t, after.LastProcessedMatchID, again.LastProcessedMatchID)
	assert.Equal(t, firstHistory, len(store.history["p1"]))
}

func TestStoreFailureAbortsOnlyThatPlayer(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 25, 0))
	store.add(trackedPlayer("p2", 1000, 25, 0))

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "x1": 5})
	riot.addMatch("m2", "CHERRY", baseTime.Add(time.Hour), map[string]int{"p1": 2, "x2": 6})
	riot.addMatch("m3", "CHERRY", baseTime.Add(2*time.Hour), map[string]int{"p2": 1, "x3": 5})

	store.failSettle["p1/m2"] = fmt.Errorf("disk full")

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.PlayersProcessed)

	// P1's watermark stops at the last successful commit.
	p1 := store.get("p1")
	assert.Equal(t, "m1", p1.LastProcessedMatchID)
	assert.Equal(t, 26, p1.Wins)

	// P2 is unaffected by P1's failure.
	p2 := store.get("p2")
	assert.Equal(t, "m3", p2.LastProcessedMatchID)
	assert.Equal(t, 26, p2.Wins)
}

func TestParticipantMissingFromDetailIsSkipped(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 25, 0))

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 5})
	// Corrupt the payload: p2 listed as a participant but absent from the
	// placement data.
	m := riot.matches["m1"]
	m.Info.Participants = m.Info.Participants[:0]
	m.Info.Participants = append(m.Info.Participants, api.MatchParticipant{
		Puuid: "p1", Placement: 1, RiotIDGameName: "player-p1", RiotIDTagline: "BR1",
	})

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MatchesSettled)

	// The rest of the match still settled.
	p1 := store.get("p1")
	assert.Equal(t, "m1", p1.LastProcessedMatchID)
	assert.Equal(t, 26, p1.Wins)
	_, exists := store.players["p2"]
	assert.False(t, exists)
}

func TestWinLossAccounting(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 0, 0))
	store.add(trackedPlayer("p2", 1000, 0, 0))

	// 100 shared matches with alternating results.
	wantWinsP1 := 0
	for i := 0; i < 100; i++ {
		p1Placement := 1 + i%8
		p2Placement := 1 + (i+4)%8
		if p1Placement <= 4 {
			wantWinsP1++
		}
		riot.addMatch(
			fmt.Sprintf("m%03d", i),
			"CHERRY",
			baseTime.Add(time.Duration(i)*time.Hour),
			map[string]int{"p1": p1Placement, "p2": p2Placement},
		)
	}

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Errors)

	p1 := store.get("p1")
	p2 := store.get("p2")

	// Every settled match contributes exactly one win or loss, with no
	// double counting across the two cycles that share every match.
	assert.Equal(t, 100, p1.Wins+p1.Losses)
	assert.Equal(t, 100, p2.Wins+p2.Losses)
	assert.Equal(t, wantWinsP1, p1.Wins)
	assert.Len(t, store.history["p1"], 100)
	assert.Len(t, store.history["p2"], 100)
}

func TestCycleStopsOnCancellation(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	store.add(trackedPlayer("p1", 1000, 25, 0))
	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 5})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := p.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PlayersProcessed)
	assert.Empty(t, store.get("p1").LastProcessedMatchID)
}

func TestNonEligiblePlayersAreNotRefreshed(t *testing.T) {
	riot := newFakeRiot()
	store := newFakeStore()
	p := newTestProcessor(riot, store)

	opponent := trackedPlayer("p1", 1000, 5, 5)
	opponent.AutoCheck = false
	store.add(opponent)

	riot.addMatch("m1", "CHERRY", baseTime, map[string]int{"p1": 1, "p2": 5})

	summary, err := p.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PlayersProcessed)
	assert.Equal(t, 0, summary.MatchesSettled)
	assert.Empty(t, store.get("p1").LastProcessedMatchID)
}
