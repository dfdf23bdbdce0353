package service

import (
	"context"
	"errors"
	"time"

	"lp-tracker/internal/constants"
	"lp-tracker/internal/domain"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/notify"
	"lp-tracker/internal/tracking"

	"github.com/rs/zerolog"
)

// GameWatcher moves pairs from Idle to InGame when the player enters a ranked
// game of the queue their subscription follows.
type GameWatcher struct {
	store     PlayerStore
	games     GameDataService
	sink      NotificationSink
	champions ChampionResolver
	state     *tracking.State
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

func NewGameWatcher(
	store PlayerStore,
	games GameDataService,
	sink NotificationSink,
	champions ChampionResolver,
	state *tracking.State,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *GameWatcher {
	return &GameWatcher{
		store:     store,
		games:     games,
		sink:      sink,
		champions: champions,
		state:     state,
		metrics:   m,
		logger:    logger.With().Str("component", "game_watcher").Logger(),
		now:       time.Now,
	}
}

func (w *GameWatcher) RunCycle(ctx context.Context) error {
	pairs, err := listPairs(ctx, w.store)
	if err != nil {
		return err
	}

	if err := w.champions.EnsureLoaded(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("champion data unavailable, announcing without champion art")
	}

	subs := newSubscriptions(w.store)
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		w.processPair(ctx, subs, pair)
	}

	w.metrics.InGamePairs.Set(float64(w.state.Len()))
	return nil
}

func (w *GameWatcher) processPair(ctx context.Context, subs *subscriptions, pair domain.TrackedPair) {
	defer func() {
		if r := recover(); r != nil {
			w.metrics.PairFailures.WithLabelValues("watcher", "panic").Inc()
			w.logger.Error().
				Interface("panic", r).
				Str("puuid", pair.Puuid).
				Str("guild_id", pair.SubscriptionID).
				Msg("recovered panic while watching pair")
		}
	}()

	if err := w.watchPair(ctx, subs, pair); err != nil {
		phase := phaseOf(err)
		w.metrics.PairFailures.WithLabelValues("watcher", phase).Inc()
		w.logger.Warn().
			Err(err).
			Str("puuid", pair.Puuid).
			Str("guild_id", pair.SubscriptionID).
			Str("phase", phase).
			Msg("failed to watch pair")
	}
}

func (w *GameWatcher) watchPair(ctx context.Context, subs *subscriptions, pair domain.TrackedPair) error {
	key := pair.Key()
	if w.state.IsInGame(key) {
		return nil
	}

	sub, err := subs.get(ctx, pair.SubscriptionID)
	if err != nil {
		return phaseErr("subscription", err)
	}
	if sub == nil {
		w.logger.Debug().Str("guild_id", pair.SubscriptionID).Msg("subscription not found, skipping pair")
		return nil
	}

	game, err := w.games.GetActiveGame(ctx, pair.Puuid, pair.Region, sub.Queue)
	if err != nil {
		return phaseErr("active_game", err)
	}
	if game == nil {
		return nil
	}

	slug := w.champions.Name(game.ChampionID)
	champion := domain.ChampionRef{ID: game.ChampionID, Name: slug, ImageURL: w.champions.ImageURL(slug)}

	// The pair only goes InGame once the announcement exists, so a failed
	// send is retried on the next cycle. A channel that is gone is dropped and
	// the game is tracked without an announcement.
	handle, err := w.sink.AnnounceGameStarted(ctx, *sub, pair, champion)
	if errors.Is(err, notify.ErrChannelGone) {
		if err := w.dropChannel(ctx, subs, *sub, pair); err != nil {
			return phaseErr("drop_channel", err)
		}
		handle = ""
	} else if err != nil {
		return phaseErr("announce", err)
	}

	if !w.state.MarkInGame(key, tracking.Entry{Handle: handle, Since: w.now(), Queue: sub.Queue}) {
		if handle == "" {
			return nil
		}
		if err := w.sink.ClearAnnouncement(ctx, handle); err != nil {
			w.logger.Warn().Err(err).Str("puuid", pair.Puuid).Msg("failed to remove duplicate announcement")
		}
		return nil
	}

	w.metrics.GamesStarted.Inc()
	w.logger.Info().
		Str("puuid", pair.Puuid).
		Str("username", pair.Username).
		Str("guild_id", pair.SubscriptionID).
		Str("queue", sub.Queue.String()).
		Int64("game_id", game.GameID).
		Str("champion", slug).
		Msg("player entered ranked game")
	return nil
}

// dropChannel forgets whichever channel the announcement was sent to: the
// pair's own alert channel, or else the guild's notification channel.
func (w *GameWatcher) dropChannel(ctx context.Context, subs *subscriptions, sub domain.SubscriptionConfig, pair domain.TrackedPair) error {
	dbCtx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if pair.AlertChannelID != "" {
		w.logger.Warn().
			Str("puuid", pair.Puuid).
			Str("guild_id", pair.SubscriptionID).
			Str("channel_id", pair.AlertChannelID).
			Msg("alert channel is gone, dropping it")
		return w.store.DropAlertChannel(dbCtx, pair.Puuid, pair.SubscriptionID)
	}

	w.logger.Warn().
		Str("guild_id", sub.SubscriptionID).
		Str("channel_id", sub.NotificationChannelID).
		Msg("notification channel is gone, dropping it")
	if err := w.store.DropNotificationChannel(dbCtx, sub.SubscriptionID); err != nil {
		return err
	}
	sub.NotificationChannelID = ""
	subs.seen[sub.SubscriptionID] = &sub
	return nil
}
