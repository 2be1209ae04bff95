package constants

import "time"

// K-factor configuration for MMR adjustments.
const (
	KFactorBase      = 40
	KFactorNewPlayer = 50
	KFactorMax       = 80

	// Players with fewer games than this get the new-player K.
	MinMatchesStable = 20
)

// MMRChangeLimit bounds a single match's rating adjustment in both directions.
const MMRChangeLimit = 100

// PlacementMultipliers maps an Arena placement (1-8) to its K multiplier.
// Placements outside the table contribute no rating change.
var PlacementMultipliers = map[int]float64{
	1: 1.5,
	2: 1.2,
	3: 0.7,
	4: 0.5,
	5: -0.5,
	6: -0.7,
	7: -0.8,
	8: -1.0,
}

// WinPlacementThreshold: top half of an 8-player Arena lobby counts as a win.
const WinPlacementThreshold = 4

// DefaultMMR seeds a newly discovered player's rating from their ranked tier.
var DefaultMMR = map[string]int{
	"CHALLENGER":  2000,
	"GRANDMASTER": 1600,
	"MASTER":      1300,
	"DIAMOND":     900,
	"PLATINUM":    700,
	"UNRANKED":    600,
	"EMERALD":     550,
	"GOLD":        350,
	"SILVER":      250,
	"BRONZE":      200,
	"IRON":        100,
}

// RegisteredPlayerMMR is the starting rating for players who sign up
// themselves rather than being discovered as opponents.
const RegisteredPlayerMMR = 1000

const (
	// TrackedGameMode is the only game mode folded into ratings.
	TrackedGameMode = "CHERRY"

	// MatchesToFetch bounds the remote match-id window per player.
	MatchesToFetch = 20
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	RequestTimeout     = 30 * time.Second

	// RateLimitBackoff is how long to wait before retrying a 429'd request.
	RateLimitBackoff = 10 * time.Second
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// AnomalyWindow is how many recent history entries the scan inspects.
	AnomalyWindow = 10

	// AnomalyThreshold flags swings larger than this across the window.
	AnomalyThreshold = 500
)

const (
	RankingCacheTTL        = 5 * time.Minute
	DefaultRankingPageSize = 10
	MaxRankingPageSize     = 100
)
