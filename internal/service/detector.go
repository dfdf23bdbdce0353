package service

import (
	"context"
	"fmt"
	"time"

	"lp-tracker/internal/cache"
	"lp-tracker/internal/constants"
	"lp-tracker/internal/domain"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/rank"
	"lp-tracker/internal/tracking"

	"github.com/rs/zerolog"
)

// CompletionDetector moves pairs from InGame back to Idle once the finished
// match is visible upstream, and accounts its LP exactly once per player.
type CompletionDetector struct {
	store       PlayerStore
	history     HistoryRecorder
	games       GameDataService
	sink        NotificationSink
	leaderboard LeaderboardRefresher
	calc        *rank.Calculator
	cache       *cache.MatchLP
	state       *tracking.State
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	staleAfter time.Duration
	now        func() time.Time
}

type DetectorDeps struct {
	Store       PlayerStore
	History     HistoryRecorder
	Games       GameDataService
	Sink        NotificationSink
	Leaderboard LeaderboardRefresher
	Calculator  *rank.Calculator
	Cache       *cache.MatchLP
	State       *tracking.State
	Metrics     *metrics.Metrics
}

func NewCompletionDetector(deps DetectorDeps, staleAfter time.Duration, logger zerolog.Logger) *CompletionDetector {
	return &CompletionDetector{
		store:       deps.Store,
		history:     deps.History,
		games:       deps.Games,
		sink:        deps.Sink,
		leaderboard: deps.Leaderboard,
		calc:        deps.Calculator,
		cache:       deps.Cache,
		state:       deps.State,
		metrics:     deps.Metrics,
		logger:      logger.With().Str("component", "completion_detector").Logger(),
		staleAfter:  staleAfter,
		now:         time.Now,
	}
}

func (d *CompletionDetector) RunCycle(ctx context.Context) error {
	if n := d.cache.EvictExpired(d.now()); n > 0 {
		d.logger.Debug().Int("evicted", n).Msg("evicted expired match lp entries")
	}

	keys := d.state.InGameKeys()
	if len(keys) == 0 {
		return nil
	}

	pairs, err := listPairs(ctx, d.store)
	if err != nil {
		return err
	}
	byKey := make(map[domain.PairKey]domain.TrackedPair, len(pairs))
	for _, p := range pairs {
		byKey[p.Key()] = p
	}

	subs := newSubscriptions(d.store)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		pair, ok := byKey[key]
		if !ok {
			d.release(ctx, key, "registration removed while in game")
			continue
		}
		d.processPair(ctx, subs, pair)
	}

	d.metrics.InGamePairs.Set(float64(d.state.Len()))
	return nil
}

func (d *CompletionDetector) processPair(ctx context.Context, subs *subscriptions, pair domain.TrackedPair) {
	defer func() {
		if r := recover(); r != nil {
			d.metrics.PairFailures.WithLabelValues("detector", "panic").Inc()
			d.logger.Error().
				Interface("panic", r).
				Str("puuid", pair.Puuid).
				Str("guild_id", pair.SubscriptionID).
				Msg("recovered panic while resolving pair")
		}
	}()

	if err := d.resolvePair(ctx, subs, pair); err != nil {
		phase := phaseOf(err)
		d.metrics.PairFailures.WithLabelValues("detector", phase).Inc()
		d.logger.Warn().
			Err(err).
			Str("puuid", pair.Puuid).
			Str("guild_id", pair.SubscriptionID).
			Str("phase", phase).
			Msg("failed to resolve pair, retrying next cycle")
	}
}

func (d *CompletionDetector) resolvePair(ctx context.Context, subs *subscriptions, pair domain.TrackedPair) error {
	key := pair.Key()
	entry, ok := d.state.Get(key)
	if !ok {
		return nil
	}

	sub, err := subs.get(ctx, pair.SubscriptionID)
	if err != nil {
		return phaseErr("subscription", err)
	}
	if sub == nil {
		d.release(ctx, key, "subscription removed while in game")
		return nil
	}

	game, err := d.games.GetActiveGame(ctx, pair.Puuid, pair.Region, entry.Queue)
	if err != nil {
		return phaseErr("active_game", err)
	}
	if game != nil {
		return nil
	}

	ids, err := d.games.GetRecentRankedMatchIDs(ctx, pair.Puuid, constants.RecentMatchCount, pair.Region)
	if err != nil {
		return phaseErr("match_ids", err)
	}
	if len(ids) == 0 || ids[0] == pair.LastSeenMatchID {
		d.expireIfStale(ctx, key, entry)
		return nil
	}
	matchID := ids[0]

	detail, err := d.games.GetMatchDetail(ctx, matchID, pair.Region)
	if err != nil {
		return phaseErr("match_detail", err)
	}
	if detail == nil {
		d.expireIfStale(ctx, key, entry)
		return nil
	}

	// Only a match of the queue the game was announced for can end it. The
	// newest id may still be an older game of the other queue until match-v5
	// publishes the one just played.
	queue, ranked := domain.QueueFromID(detail.QueueID)
	if !ranked || queue != entry.Queue {
		d.logger.Debug().
			Str("puuid", pair.Puuid).
			Str("match_id", matchID).
			Int("queue_id", detail.QueueID).
			Str("waiting_for", entry.Queue.String()).
			Msg("latest match is not from the tracked queue, waiting")
		d.expireIfStale(ctx, key, entry)
		return nil
	}

	old := pair.Snapshot(queue)
	old.Queue = queue

	delta, updated, err := d.accountMatch(ctx, pair, queue, matchID, old)
	if err != nil {
		return err
	}

	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	err = d.store.UpdateLastSeenMatch(dbCtx, pair.Puuid, pair.SubscriptionID, matchID)
	cancel()
	if err != nil {
		return phaseErr("persist_last_seen", err)
	}

	entry, _ = d.state.Clear(key)
	d.removeAnnouncement(ctx, pair, entry.Handle)

	outcome := buildOutcome(pair.Puuid, queue, detail)
	if err := d.sink.AnnounceMatchResult(ctx, *sub, pair.WithSnapshot(updated), outcome, delta); err != nil {
		d.logger.Warn().Err(err).Str("puuid", pair.Puuid).Str("match_id", matchID).Msg("failed to send match result")
	}
	if err := d.leaderboard.Refresh(ctx, sub.SubscriptionID); err != nil {
		d.logger.Warn().Err(err).Str("guild_id", sub.SubscriptionID).Msg("failed to refresh leaderboard")
	}

	d.metrics.MatchesResolved.WithLabelValues(queue.String()).Inc()
	d.logger.Info().
		Str("puuid", pair.Puuid).
		Str("username", pair.Username).
		Str("guild_id", pair.SubscriptionID).
		Str("match_id", matchID).
		Str("queue", queue.String()).
		Bool("win", outcome.Win).
		Int("lp_change", delta).
		Msg("match resolved")
	return nil
}

// accountMatch returns the LP delta for (player, match) and the snapshot after it.
// The first subscription to resolve a match fetches the rank and persists it;
// every later one reuses the cached result with no rank fetch.
func (d *CompletionDetector) accountMatch(
	ctx context.Context,
	pair domain.TrackedPair,
	queue domain.QueueCategory,
	matchID string,
	old domain.RankSnapshot,
) (int, domain.RankSnapshot, error) {
	if hit, ok := d.cache.Get(pair.Puuid, matchID); ok {
		d.metrics.LPCacheHits.Inc()
		updated := hit.After
		if !updated.Ranked() {
			updated = old
			updated.LeaguePoints = old.LeaguePoints + hit.Delta
		}
		return hit.Delta, updated, nil
	}
	d.metrics.LPCacheMisses.Inc()

	updated := old
	fresh, err := d.games.GetRankSnapshot(ctx, pair.Puuid, queue, pair.Region)
	switch {
	case err != nil:
		d.logger.Warn().Err(err).Str("puuid", pair.Puuid).Msg("rank fetch failed, keeping last known snapshot")
	case fresh == nil:
		d.logger.Warn().Str("puuid", pair.Puuid).Str("queue", queue.String()).Msg("no rank entry returned, keeping last known snapshot")
	default:
		updated = *fresh
		updated.Queue = queue
	}

	delta := d.calc.Delta(old, updated)

	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	if err := d.store.UpdateGlobalRank(dbCtx, pair.Puuid, queue, updated, delta); err != nil {
		return 0, old, phaseErr("persist_rank", err)
	}

	// Cached only after the rank is stored, so a failed write is redone from a
	// fresh fetch instead of being skipped by a cache hit.
	d.cache.Put(pair.Puuid, matchID, cache.Result{Delta: delta, After: updated})

	if d.history != nil {
		err := d.history.Record(dbCtx, domain.LPHistory{
			Puuid:    pair.Puuid,
			MatchID:  matchID,
			Queue:    queue,
			OldTier:  old.Tier,
			OldDiv:   old.Division,
			OldLP:    old.LeaguePoints,
			NewTier:  updated.Tier,
			NewDiv:   updated.Division,
			NewLP:    updated.LeaguePoints,
			LPChange: delta,
		})
		if err != nil {
			d.logger.Warn().Err(err).Str("puuid", pair.Puuid).Str("match_id", matchID).Msg("failed to record lp history")
		}
	}
	return delta, updated, nil
}

func (d *CompletionDetector) expireIfStale(ctx context.Context, key domain.PairKey, entry tracking.Entry) {
	if d.staleAfter <= 0 || d.now().Sub(entry.Since) <= d.staleAfter {
		return
	}
	d.release(ctx, key, fmt.Sprintf("no ranked result after %s", d.staleAfter))
}

// release drops a pair back to Idle without accounting any match.
func (d *CompletionDetector) release(ctx context.Context, key domain.PairKey, reason string) {
	entry, ok := d.state.Clear(key)
	if !ok {
		return
	}
	d.logger.Info().
		Str("puuid", key.Puuid).
		Str("guild_id", key.SubscriptionID).
		Str("reason", reason).
		Msg("released in-game pair")
	d.removeAnnouncement(ctx, domain.TrackedPair{Puuid: key.Puuid, SubscriptionID: key.SubscriptionID}, entry.Handle)
}

func (d *CompletionDetector) removeAnnouncement(ctx context.Context, pair domain.TrackedPair, handle domain.AnnouncementHandle) {
	if handle == "" {
		return
	}
	if err := d.sink.ClearAnnouncement(ctx, handle); err != nil {
		d.logger.Warn().Err(err).Str("puuid", pair.Puuid).Str("guild_id", pair.SubscriptionID).Msg("failed to remove in-game announcement")
	}
}

func buildOutcome(puuid string, queue domain.QueueCategory, detail *domain.MatchDetail) domain.MatchOutcome {
	outcome := domain.MatchOutcome{
		MatchID:        detail.MatchID,
		Queue:          queue,
		EarlySurrender: detail.EarlySurrender(),
		Duration:       detail.Duration,
	}
	if p, ok := detail.Participant(puuid); ok {
		outcome.Win = p.Win
		outcome.ChampionID = p.ChampionID
		outcome.Champion = p.ChampionName
		outcome.Kills = p.Kills
		outcome.Deaths = p.Deaths
		outcome.Assists = p.Assists
		outcome.Damage = p.Damage
	}
	return outcome
}
