package fx

import (
	"lp-tracker/internal/api"
	"lp-tracker/internal/cache"
	"lp-tracker/internal/config"
	"lp-tracker/internal/database"
	"lp-tracker/internal/leaderboard"
	"lp-tracker/internal/logger"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/notify"
	"lp-tracker/internal/rank"
	"lp-tracker/internal/repository"
	"lp-tracker/internal/server"
	"lp-tracker/internal/service"
	"lp-tracker/internal/tracking"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func ProvideMatchCache(cfg *config.Config) *cache.MatchLP {
	return cache.NewMatchLP(cfg.MatchCacheTTL)
}

func ProvideSink(d *notify.Discord, champions *api.Champions, logger zerolog.Logger) *notify.Sink {
	return notify.NewSink(d, champions, logger)
}

func ProvideLeaderboard(store *repository.Store, sink *notify.Sink, logger zerolog.Logger) *leaderboard.Refresher {
	return leaderboard.NewRefresher(store, sink, logger)
}

func ProvideGameWatcher(
	store *repository.Store,
	riot *api.RiotClient,
	sink *notify.Sink,
	champions *api.Champions,
	state *tracking.State,
	m *metrics.Metrics,
	logger zerolog.Logger,
) *service.GameWatcher {
	return service.NewGameWatcher(store, riot, sink, champions, state, m, logger)
}

type detectorParams struct {
	fx.In

	Config      *config.Config
	Store       *repository.Store
	History     *repository.LPHistoryRepository
	Riot        *api.RiotClient
	Sink        *notify.Sink
	Leaderboard *leaderboard.Refresher
	Calculator  *rank.Calculator
	Cache       *cache.MatchLP
	State       *tracking.State
	Metrics     *metrics.Metrics
	Logger      zerolog.Logger
}

func ProvideCompletionDetector(p detectorParams) *service.CompletionDetector {
	return service.NewCompletionDetector(service.DetectorDeps{
		Store:       p.Store,
		History:     p.History,
		Games:       p.Riot,
		Sink:        p.Sink,
		Leaderboard: p.Leaderboard,
		Calculator:  p.Calculator,
		Cache:       p.Cache,
		State:       p.State,
		Metrics:     p.Metrics,
	}, p.Config.StaleGameTimeout, p.Logger)
}

func ProvideTrackerServer(
	store *repository.Store,
	history *repository.LPHistoryRepository,
	state *tracking.State,
	matchCache *cache.MatchLP,
	riot *api.RiotClient,
	m *metrics.Metrics,
) *server.TrackerServer {
	return server.NewTrackerServer(store, history, state, matchCache, riot, m)
}

var Module = fx.Options(
	logger.Module,
	config.Module,
	fx.Provide(database.New),
	fx.Provide(metrics.New),
	// repos
	fx.Provide(repository.NewPlayerRepository),
	fx.Provide(repository.NewGuildRepository),
	fx.Provide(repository.NewLPHistoryRepository),
	fx.Provide(repository.NewStore),
	// upstream clients
	fx.Provide(api.NewRiotClient),
	fx.Provide(api.NewChampions),
	fx.Provide(notify.NewDiscord),
	fx.Provide(ProvideSink),
	// tracking core
	fx.Provide(tracking.NewState),
	fx.Provide(ProvideMatchCache),
	fx.Provide(rank.NewCalculator),
	fx.Provide(ProvideLeaderboard),
	fx.Provide(ProvideGameWatcher),
	fx.Provide(ProvideCompletionDetector),
	// server
	fx.Provide(ProvideTrackerServer),
)
