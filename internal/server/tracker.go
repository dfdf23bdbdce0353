package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"lp-tracker/internal/api"
	"lp-tracker/internal/constants"
	"lp-tracker/internal/domain"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/notify"
	"lp-tracker/internal/tracking"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

type PairLister interface {
	ListTrackedPairs(ctx context.Context) ([]domain.TrackedPair, error)
}

type HistoryReader interface {
	GetByPuuid(ctx context.Context, puuid string, limit int) ([]domain.LPHistory, error)
}

type RateLimiter interface {
	GetRateLimitInfo() api.RateLimitInfo
}

type CacheSizer interface {
	Len() int
}

// TrackerServer exposes the tracker's live state read-only over HTTP.
type TrackerServer struct {
	pairs   PairLister
	history HistoryReader
	state   *tracking.State
	cache   CacheSizer
	riot    RateLimiter
	metrics *metrics.Metrics
}

func NewTrackerServer(pairs PairLister, history HistoryReader, state *tracking.State, cache CacheSizer, riot RateLimiter, m *metrics.Metrics) *TrackerServer {
	return &TrackerServer{pairs: pairs, history: history, state: state, cache: cache, riot: riot, metrics: m}
}

type PairStatus struct {
	Puuid           string     `json:"puuid"`
	Username        string     `json:"username"`
	GuildID         string     `json:"guild_id"`
	Region          string     `json:"region"`
	State           string     `json:"state"`
	InGameSince     *time.Time `json:"in_game_since,omitempty"`
	LastSeenMatchID string     `json:"last_seen_match_id"`
	SoloRank        string     `json:"solo_rank"`
	FlexRank        string     `json:"flex_rank"`
	LP24h           int        `json:"lp_24h"`
	LP7d            int        `json:"lp_7d"`
}

type StatusResponse struct {
	Pairs       []PairStatus      `json:"pairs"`
	InGame      int               `json:"in_game"`
	CachedLP    int               `json:"cached_lp_results"`
	RateLimit   api.RateLimitInfo `json:"rate_limit"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type HistoryEntry struct {
	MatchID   string    `json:"match_id"`
	Queue     string    `json:"queue"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	LPChange  int       `json:"lp_change"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *TrackerServer) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/players/{puuid}/history", s.handleHistory)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

func (s *TrackerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *TrackerServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	pairs, err := s.pairs.ListTrackedPairs(ctx)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to list tracked pairs")
		writeError(w, r, http.StatusInternalServerError, "failed to list tracked pairs")
		return
	}

	entries := s.state.Snapshot()
	resp := StatusResponse{
		Pairs:       make([]PairStatus, 0, len(pairs)),
		InGame:      len(entries),
		CachedLP:    s.cache.Len(),
		RateLimit:   s.riot.GetRateLimitInfo(),
		GeneratedAt: time.Now().UTC(),
	}
	for _, p := range pairs {
		ps := PairStatus{
			Puuid:           p.Puuid,
			Username:        p.Username,
			GuildID:         p.SubscriptionID,
			Region:          p.Region,
			State:           tracking.Idle.String(),
			LastSeenMatchID: p.LastSeenMatchID,
			SoloRank:        notify.FormatRank(p.Solo),
			FlexRank:        notify.FormatRank(p.Flex),
			LP24h:           p.LP24h,
			LP7d:            p.LP7d,
		}
		if e, ok := entries[p.Key()]; ok {
			since := e.Since.UTC()
			ps.State = tracking.InGame.String()
			ps.InGameSince = &since
		}
		resp.Pairs = append(resp.Pairs, ps)
	}

	writeJSON(w, r, http.StatusOK, resp)
}

func (s *TrackerServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	puuid := r.PathValue("puuid")

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	ctx, cancel := context.WithTimeout(r.Context(), constants.DatabaseTimeout)
	defer cancel()

	rows, err := s.history.GetByPuuid(ctx, puuid, limit)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("puuid", puuid).Msg("failed to read lp history")
		writeError(w, r, http.StatusInternalServerError, "failed to read lp history")
		return
	}

	out := make([]HistoryEntry, 0, len(rows))
	for _, h := range rows {
		out = append(out, HistoryEntry{
			MatchID:   h.MatchID,
			Queue:     h.Queue.String(),
			Before:    notify.FormatRank(domain.RankSnapshot{Tier: h.OldTier, Division: h.OldDiv, LeaguePoints: h.OldLP}),
			After:     notify.FormatRank(domain.RankSnapshot{Tier: h.NewTier, Division: h.NewDiv, LeaguePoints: h.NewLP}),
			LPChange:  h.LPChange,
			CreatedAt: h.CreatedAt.UTC(),
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, map[string]string{"error": msg})
}
