package domain

import (
	"time"
)

// Player is the persisted record for everyone the system has ever seen,
// whether they registered themselves or only appeared as an opponent.
type Player struct {
	Puuid string

	// RiotID is the mutable "Name#Tag" form; Puuid is the stable identity.
	RiotID string
	Name   string

	MMR    int
	Wins   int
	Losses int

	// AutoCheck marks players whose rating is refreshed by the cycle driver.
	// Opponents discovered mid-match stay false until they register.
	AutoCheck bool

	// LastProcessedMatchID is the idempotency watermark: the newest match
	// already folded into this player's rating.
	LastProcessedMatchID string

	// SessionDelta is the net rating change accumulated over the current
	// processing pass; reset to zero when a new pass starts for this player.
	SessionDelta int

	DateAdded     time.Time
	LastUpdatedAt time.Time
}

func (p *Player) GamesPlayed() int {
	return p.Wins + p.Losses
}

func (p *Player) WinRate() float64 {
	games := p.GamesPlayed()
	if games == 0 {
		return 0
	}
	return float64(p.Wins) / float64(games) * 100
}

// Match is the ephemeral view of one remote match; it is never persisted.
type Match struct {
	MatchID      string
	GameMode     string
	GameCreation time.Time

	// Participants lists every puuid in the lobby.
	Participants []string

	// Placements maps puuid to finishing rank (1 is best). A participant
	// missing here was absent from the detail payload.
	Placements map[string]Placement
}

// Placement carries a single participant's result plus the identity fields
// needed to create them if they are unknown.
type Placement struct {
	Placement int
	GameName  string
	TagLine   string
}

// RatingHistory is one append-only entry per settled match per player.
type RatingHistory struct {
	ID        string // nanoid
	Puuid     string
	MatchID   string
	MMR       int
	Date      time.Time
	CreatedAt time.Time
}

// SettlementUpdate stages the full per-player effect of one match. The
// repository applies it as a single transaction so a player's rating, record
// counters, watermark and history entry move together or not at all.
type SettlementUpdate struct {
	Puuid     string
	MatchID   string
	MatchDate time.Time
	NewMMR    int
	Delta     int
	Wins      int
	Losses    int
}

// Anomaly flags a statistically extreme short-term rating swing.
type Anomaly struct {
	Puuid   string
	RiotID  string
	Change  int
	Matches int
}

// CycleSummary reports the outcome of one full processing pass.
type CycleSummary struct {
	PlayersProcessed int
	MatchesSettled   int
	Errors           int
	StartedAt        time.Time
	Duration         time.Duration
}
