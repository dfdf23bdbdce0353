package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"lp-tracker/internal/config"
	"lp-tracker/internal/constants"
	"lp-tracker/internal/domain"
	"lp-tracker/internal/fetch"
	"lp-tracker/internal/metrics"

	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

type RiotClient struct {
	apiKey  string
	baseURL string
	client  *fasthttp.Client
	policy  fetch.Policy
	metrics *metrics.Metrics
	logger  zerolog.Logger

	rateLimitMu sync.RWMutex
	rateLimit   RateLimitInfo
}

type RateLimitInfo struct {
	AppLimit      string `json:"app_limit"`
	AppCount      string `json:"app_count"`
	MethodLimit   string `json:"method_limit"`
	MethodCount   string `json:"method_count"`
	RetryAfterSec int    `json:"retry_after_sec"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewRiotClient(cfg *config.Config, m *metrics.Metrics, logger zerolog.Logger) *RiotClient {
	policy := fetch.DefaultPolicy()
	policy.MaxAttempts = constants.RetryMaxAttempts
	policy.BaseDelay = constants.RetryBaseDelay
	policy.MaxDelay = constants.RetryMaxDelay
	policy.AttemptTimeout = constants.ExternalAPITimeout

	return &RiotClient{
		apiKey:  cfg.RiotAPIKey,
		baseURL: cfg.RiotBaseURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     100,
			ReadTimeout:         constants.ExternalAPITimeout,
			WriteTimeout:        constants.ExternalAPITimeout,
			MaxIdleConnDuration: 1 * time.Minute,
		},
		policy:  policy,
		metrics: m,
		logger:  logger,
	}
}

func (c *RiotClient) GetRateLimitInfo() RateLimitInfo {
	c.rateLimitMu.RLock()
	defer c.rateLimitMu.RUnlock()
	return c.rateLimit
}

func (c *RiotClient) updateRateLimit(resp *fasthttp.Response) {
	c.rateLimitMu.Lock()
	defer c.rateLimitMu.Unlock()

	if v := string(resp.Header.Peek("X-App-Rate-Limit")); v != "" {
		c.rateLimit.AppLimit = v
	}
	if v := string(resp.Header.Peek("X-App-Rate-Limit-Count")); v != "" {
		c.rateLimit.AppCount = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit")); v != "" {
		c.rateLimit.MethodLimit = v
	}
	if v := string(resp.Header.Peek("X-Method-Rate-Limit-Count")); v != "" {
		c.rateLimit.MethodCount = v
	}
	c.rateLimit.RetryAfterSec = 0
	if v := string(resp.Header.Peek("Retry-After")); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			c.rateLimit.RetryAfterSec = val
		}
	}
	c.rateLimit.UpdatedAt = time.Now()
}

func (c *RiotClient) host(routing string) string {
	return fmt.Sprintf(c.baseURL, routing)
}

// GetActiveGame returns nil when the player is not in a game of the given ranked queue.
func (c *RiotClient) GetActiveGame(ctx context.Context, puuid, region string, queue domain.QueueCategory) (*domain.GameHandle, error) {
	u := fmt.Sprintf("%s/lol/spectator/v5/active-games/by-summoner/%s", c.host(platformOf(region)), url.PathEscape(puuid))
	game, err := getJSON[ActiveGameResponse](ctx, c, "spectator", u)
	if err != nil || game == nil {
		return nil, err
	}

	if game.GameQueueConfigID != queue.QueueID() {
		return nil, nil
	}
	for _, p := range game.Participants {
		if p.Puuid == puuid || p.SummonerID == puuid {
			return &domain.GameHandle{
				GameID:     game.GameID,
				ChampionID: p.ChampionID,
				Queue:      queue,
				StartedAt:  time.UnixMilli(game.GameStartTime),
			}, nil
		}
	}
	return nil, nil
}

func (c *RiotClient) GetRankSnapshot(ctx context.Context, puuid string, queue domain.QueueCategory, region string) (*domain.RankSnapshot, error) {
	u := fmt.Sprintf("%s/lol/league/v4/entries/by-puuid/%s", c.host(platformOf(region)), url.PathEscape(puuid))
	entries, err := getJSON[[]LeagueEntry](ctx, c, "league", u)
	if err != nil || entries == nil {
		return nil, err
	}

	for _, e := range *entries {
		if e.QueueType != queue.LeagueQueueType() {
			continue
		}
		return &domain.RankSnapshot{
			Queue:        queue,
			Tier:         domain.Tier(e.Tier),
			Division:     domain.Division(e.Rank),
			LeaguePoints: e.LeaguePoints,
			Wins:         e.Wins,
			Losses:       e.Losses,
		}, nil
	}
	return nil, nil
}

func (c *RiotClient) GetRecentRankedMatchIDs(ctx context.Context, puuid string, count int, region string) ([]string, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/by-puuid/%s/ids?type=ranked&count=%d",
		c.host(ClusterFor(region)), url.PathEscape(puuid), count)
	ids, err := getJSON[[]string](ctx, c, "match-ids", u)
	if err != nil || ids == nil || len(*ids) == 0 {
		return nil, err
	}
	return *ids, nil
}

func (c *RiotClient) GetMatchDetail(ctx context.Context, matchID, region string) (*domain.MatchDetail, error) {
	u := fmt.Sprintf("%s/lol/match/v5/matches/%s", c.host(ClusterFor(region)), url.PathEscape(matchID))
	m, err := getJSON[MatchResponse](ctx, c, "match", u)
	if err != nil || m == nil {
		return nil, err
	}

	detail := &domain.MatchDetail{
		MatchID:      m.Metadata.MatchID,
		QueueID:      m.Info.QueueID,
		Duration:     time.Duration(m.Info.GameDuration) * time.Second,
		Participants: make([]domain.Participant, 0, len(m.Info.Participants)),
	}
	if detail.MatchID == "" {
		detail.MatchID = matchID
	}
	for _, p := range m.Info.Participants {
		detail.Participants = append(detail.Participants, domain.Participant{
			Puuid:          p.Puuid,
			ChampionID:     p.ChampionID,
			ChampionName:   p.ChampionName,
			Win:            p.Win,
			Kills:          p.Kills,
			Deaths:         p.Deaths,
			Assists:        p.Assists,
			Damage:         p.TotalDamageDealtToChampions,
			EarlySurrender: p.GameEndedInEarlySurrender,
		})
	}
	return detail, nil
}

// getJSON calls a Riot API endpoint with the API key. A 404 comes back as (nil, nil).
func getJSON[T any](ctx context.Context, c *RiotClient, endpoint, url string) (*T, error) {
	return fetchJSON[T](ctx, c, endpoint, url, true)
}

// getPublicJSON fetches from a public CDN such as Data Dragon: no API key, and the
// response does not touch the rate-limit state.
func getPublicJSON[T any](ctx context.Context, c *RiotClient, endpoint, url string) (*T, error) {
	return fetchJSON[T](ctx, c, endpoint, url, false)
}

func fetchJSON[T any](ctx context.Context, c *RiotClient, endpoint, url string, signed bool) (*T, error) {
	policy := c.policy
	policy.OnRetry = func(attempt int, err error) {
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Int("attempt", attempt).Msg("retrying upstream request")
		if c.metrics != nil {
			c.metrics.UpstreamRetries.WithLabelValues(endpoint).Inc()
		}
	}

	result, err := fetch.Do(ctx, policy, func(ctx context.Context) (*T, error) {
		return doRequest[T](ctx, c, url, signed)
	})
	if errors.Is(err, fetch.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	return result, nil
}

func doRequest[T any](ctx context.Context, client *RiotClient, url string, signed bool) (*T, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if signed {
		req.Header.Set("X-Riot-Token", client.apiKey)
	}

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.client.DoDeadline(req, resp, deadline); err != nil {
			return nil, err
		}
	} else {
		if err := client.client.Do(req, resp); err != nil {
			return nil, err
		}
	}

	if signed {
		client.updateRateLimit(resp)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return nil, fetch.ErrNotFound
	case status != fasthttp.StatusOK:
		return nil, &fetch.StatusError{Code: status, Body: truncate(string(resp.Body()), 256)}
	}

	var result T
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &result, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type ActiveGameResponse struct {
	GameID            int64                   `json:"gameId"`
	GameQueueConfigID int                     `json:"gameQueueConfigId"`
	GameStartTime     int64                   `json:"gameStartTime"`
	Participants      []ActiveGameParticipant `json:"participants"`
}

type ActiveGameParticipant struct {
	Puuid      string `json:"puuid"`
	SummonerID string `json:"summonerId"`
	ChampionID int    `json:"championId"`
	TeamID     int    `json:"teamId"`
}

type LeagueEntry struct {
	QueueType    string `json:"queueType"`
	Tier         string `json:"tier"`
	Rank         string `json:"rank"`
	LeaguePoints int    `json:"leaguePoints"`
	Wins         int    `json:"wins"`
	Losses       int    `json:"losses"`
}

type MatchResponse struct {
	Metadata struct {
		MatchID      string   `json:"matchId"`
		Participants []string `json:"participants"`
	} `json:"metadata"`
	Info struct {
		GameDuration int64              `json:"gameDuration"`
		QueueID      int                `json:"queueId"`
		Participants []MatchParticipant `json:"participants"`
	} `json:"info"`
}

type MatchParticipant struct {
	Puuid                       string `json:"puuid"`
	ChampionID                  int    `json:"championId"`
	ChampionName                string `json:"championName"`
	Win                         bool   `json:"win"`
	Kills                       int    `json:"kills"`
	Deaths                      int    `json:"deaths"`
	Assists                     int    `json:"assists"`
	TotalDamageDealtToChampions int    `json:"totalDamageDealtToChampions"`
	GameEndedInEarlySurrender   bool   `json:"gameEndedInEarlySurrender"`
}
