package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/JoaoVictor-C/ArenaRanking/internal/config"
	"github.com/JoaoVictor-C/ArenaRanking/internal/constants"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

// ErrNotFound means the resource does not exist upstream; callers treat it
// as "no data", not a failure.
var ErrNotFound = errors.New("riot: not found")

// ErrRateLimited is returned once the retry budget for a 429'd request is
// exhausted.
var ErrRateLimited = errors.New("riot: rate limited")

type RiotClient struct {
	apiKey     string
	region     string
	maxRetries int
	client     *fasthttp.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

func NewRiotClient(cfg *config.Config, logger zerolog.Logger) *RiotClient {
	return &RiotClient{
		apiKey:     cfg.RiotAPIKey,
		region:     cfg.Region,
		maxRetries: cfg.MaxRetries,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		// Riot application limit is 100 requests per 120s.
		limiter: rate.NewLimiter(rate.Every(1200*time.Millisecond), 20),
		logger:  logger,
	}
}

// GetMatchHistory returns recent match ids for a puuid, newest first.
func (c *RiotClient) GetMatchHistory(ctx context.Context, puuid string) ([]string, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/by-puuid/%s/ids?start=0&count=%d",
		c.region, puuid, constants.MatchesToFetch)
	ids, err := doRequest[[]string](ctx, c, u)
	if err != nil {
		return nil, err
	}
	return *ids, nil
}

func (c *RiotClient) GetMatchDetails(ctx context.Context, matchID string) (*MatchResponse, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/lol/match/v5/matches/%s", c.region, matchID)
	return doRequest[MatchResponse](ctx, c, u)
}

// GetTier returns the solo-queue tier label for a puuid, or "UNRANKED" when
// the player has no ranked entry.
func (c *RiotClient) GetTier(ctx context.Context, puuid string) (string, error) {
	u := fmt.Sprintf("https://%s.api.riotgames.com/lol/league/v4/entries/by-puuid/%s", c.region, puuid)
	entries, err := doRequest[[]LeagueEntry](ctx, c, u)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "UNRANKED", nil
		}
		return "", err
	}
	for _, entry := range *entries {
		if entry.QueueType == "RANKED_SOLO_5x5" {
			return entry.Tier, nil
		}
	}
	return "UNRANKED", nil
}

func (c *RiotClient) GetAccountByRiotID(ctx context.Context, name, tag string) (*AccountResponse, error) {
	u := fmt.Sprintf("https://americas.api.riotgames.com/riot/account/v1/accounts/by-riot-id/%s/%s",
		url.PathEscape(name), url.PathEscape(tag))
	return doRequest[AccountResponse](ctx, c, u)
}

func (c *RiotClient) GetAccountByPuuid(ctx context.Context, puuid string) (*AccountResponse, error) {
	u := fmt.Sprintf("https://americas.api.riotgames.com/riot/account/v1/accounts/by-puuid/%s", puuid)
	return doRequest[AccountResponse](ctx, c, u)
}

// doRequest performs one authenticated GET, retrying 429s with a constant
// backoff until the configured retry budget runs out. A zero budget retries
// indefinitely (bounded only by ctx).
func doRequest[T any](ctx context.Context, client *RiotClient, url string) (*T, error) {
	backoff := retry.Backoff(retry.NewConstant(constants.RateLimitBackoff))
	if client.maxRetries > 0 {
		backoff = retry.WithMaxRetries(uint64(client.maxRetries), backoff)
	}

	var result T
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := client.limiter.Wait(ctx); err != nil {
			return err
		}

		status, body, err := client.get(ctx, url)
		if err != nil {
			return err
		}

		switch status {
		case fasthttp.StatusOK:
			if err := json.Unmarshal(body, &result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
			return nil
		case fasthttp.StatusNotFound:
			return ErrNotFound
		case fasthttp.StatusTooManyRequests:
			client.logger.Warn().Str("url", url).Msg("rate limited, backing off")
			return retry.RetryableError(ErrRateLimited)
		default:
			return fmt.Errorf("riot API error: status %d", status)
		}
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *RiotClient) get(ctx context.Context, url string) (int, []byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("X-Riot-Token", c.apiKey)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			return 0, nil, err
		}
	} else {
		if err := c.client.Do(req, resp); err != nil {
			return 0, nil, err
		}
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return resp.StatusCode(), body, nil
}

type AccountResponse struct {
	Puuid    string `json:"puuid"`
	GameName string `json:"gameName"`
	TagLine  string `json:"tagLine"`
}

type LeagueEntry struct {
	QueueType string `json:"queueType"`
	Tier      string `json:"tier"`
	Rank      string `json:"rank"`
	Wins      int    `json:"wins"`
	Losses    int    `json:"losses"`
}

type MatchResponse struct {
	Metadata MatchMetadata `json:"metadata"`
	Info     MatchInfo     `json:"info"`
}

type MatchMetadata struct {
	MatchID      string   `json:"matchId"`
	Participants []string `json:"participants"`
}

type MatchInfo struct {
	GameMode string `json:"gameMode"`

	// GameCreation is milliseconds since epoch.
	GameCreation int64              `json:"gameCreation"`
	Participants []MatchParticipant `json:"participants"`
}

type MatchParticipant struct {
	Puuid          string `json:"puuid"`
	Placement      int    `json:"placement"`
	RiotIDGameName string `json:"riotIdGameName"`
	RiotIDTagline  string `json:"riotIdTagline"`
}
