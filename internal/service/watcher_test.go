package service

import (
	"context"
	"errors"
	"testing"

	"lp-tracker/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherMarksInGameOnce(t *testing.T) {
	h := newHarness(soloSub("g1"))
	pair := goldPair("p1", "g1")
	// the same registration listed twice within one scan
	h.store.pairs = []domain.TrackedPair{pair, pair}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, ChampionID: 103, Queue: domain.QueueSolo}

	require.NoError(t, h.watcher.RunCycle(context.Background()))
	require.NoError(t, h.watcher.RunCycle(context.Background()))

	assert.Equal(t, 1, h.state.Len())
	assert.True(t, h.state.IsInGame(pair.Key()))
	require.Len(t, h.sink.started, 1)
	assert.Equal(t, "Ahri", h.sink.started[0].champion.Name)
	assert.Equal(t, "http://ddragon.test/Ahri.png", h.sink.started[0].champion.ImageURL)

	entry, ok := h.state.Get(pair.Key())
	require.True(t, ok)
	assert.Equal(t, domain.AnnouncementHandle("chan-g1/msg-1"), entry.Handle)
	assert.Equal(t, h.clock, entry.Since)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.GamesStarted))
}

func TestWatcherUsesSubscriptionQueue(t *testing.T) {
	flex := domain.SubscriptionConfig{SubscriptionID: "g2", Queue: domain.QueueFlex, NotificationChannelID: "chan-g2"}
	h := newHarness(soloSub("g1"), flex)
	h.store.pairs = []domain.TrackedPair{goldPair("p1", "g1"), goldPair("p1", "g2"), goldPair("p2", "g1")}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, ChampionID: 103, Queue: domain.QueueSolo}

	require.NoError(t, h.watcher.RunCycle(context.Background()))

	assert.True(t, h.state.IsInGame(domain.PairKey{Puuid: "p1", SubscriptionID: "g1"}))
	assert.False(t, h.state.IsInGame(domain.PairKey{Puuid: "p1", SubscriptionID: "g2"}))
	assert.False(t, h.state.IsInGame(domain.PairKey{Puuid: "p2", SubscriptionID: "g1"}))
	assert.Equal(t, 1, h.store.subCalls["g1"], "subscription config resolved once per cycle")
}

func TestWatcherAnnounceFailureLeavesIdle(t *testing.T) {
	h := newHarness(soloSub("g1"))
	h.store.pairs = []domain.TrackedPair{goldPair("p1", "g1")}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}
	h.sink.announceErr = errors.New("discord down")

	require.NoError(t, h.watcher.RunCycle(context.Background()))
	assert.Equal(t, 0, h.state.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PairFailures.WithLabelValues("watcher", "announce")))

	h.sink.announceErr = nil
	require.NoError(t, h.watcher.RunCycle(context.Background()))
	assert.Equal(t, 1, h.state.Len())
}

func TestWatcherIsolatesPairFailures(t *testing.T) {
	h := newHarness(soloSub("g1"))
	h.store.pairs = []domain.TrackedPair{goldPair("p3", "g1"), goldPair("p1", "g1"), goldPair("p2", "g1")}
	h.games.panicOn = "p1"
	h.games.activeErr["p2"] = errors.New("spectator request failed: 503")
	h.games.active["p3"] = &domain.GameHandle{GameID: 3, Queue: domain.QueueSolo}

	require.NoError(t, h.watcher.RunCycle(context.Background()))

	assert.True(t, h.state.IsInGame(domain.PairKey{Puuid: "p3", SubscriptionID: "g1"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PairFailures.WithLabelValues("watcher", "panic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PairFailures.WithLabelValues("watcher", "active_game")))
}

func TestWatcherLeavesInGamePairsAlone(t *testing.T) {
	h := newHarness(soloSub("g1"))
	pair := goldPair("p1", "g1")
	h.store.pairs = []domain.TrackedPair{pair}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}
	require.NoError(t, h.watcher.RunCycle(context.Background()))

	// an upstream error on an in-game pair never clears it here
	h.games.activeErr["p1"] = errors.New("timeout")
	calls := h.games.activeCalls
	require.NoError(t, h.watcher.RunCycle(context.Background()))

	assert.True(t, h.state.IsInGame(pair.Key()))
	assert.Equal(t, calls, h.games.activeCalls, "in-game pairs are not queried by the watcher")
}

func TestWatcherSkipsMissingSubscription(t *testing.T) {
	h := newHarness()
	h.store.pairs = []domain.TrackedPair{goldPair("p1", "gone")}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}

	require.NoError(t, h.watcher.RunCycle(context.Background()))
	assert.Equal(t, 0, h.state.Len())
	assert.Empty(t, h.sink.started)
}

func TestWatcherListError(t *testing.T) {
	h := newHarness(soloSub("g1"))
	h.store.listErr = errors.New("database is locked")

	err := h.watcher.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list tracked pairs")
}

func TestWatcherDropsGoneNotificationChannel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(soloSub("g1"))
	h.store.pairs = []domain.TrackedPair{goldPair("p1", "g1"), goldPair("p2", "g1")}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, ChampionID: 103, Queue: domain.QueueSolo}
	h.games.active["p2"] = &domain.GameHandle{GameID: 2, Queue: domain.QueueSolo}
	h.sink.gone = map[string]bool{"chan-g1": true}

	require.NoError(t, h.watcher.RunCycle(ctx))

	assert.Equal(t, []string{"g1"}, h.store.droppedSub, "dropped once, later pairs see the cleared channel")
	for _, p := range h.store.pairs {
		entry, ok := h.state.Get(p.Key())
		require.True(t, ok, p.Puuid)
		assert.Empty(t, entry.Handle)
	}
	assert.Zero(t, testutil.ToFloat64(h.metrics.PairFailures.WithLabelValues("watcher", "announce")))

	// the game still resolves with nothing to clear
	delete(h.games.active, "p1")
	h.games.matchIDs["p1"] = []string{"M2"}
	h.games.details["M2"] = soloMatch("M2", "p1", true)
	h.games.ranks["p1"] = goldIII10()

	require.NoError(t, h.detector.RunCycle(ctx))
	assert.Equal(t, "M2", h.store.pair("p1", "g1").LastSeenMatchID)
	assert.Empty(t, h.sink.cleared)
}

func TestWatcherDropsGonePairAlertChannel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(soloSub("g1"))
	pair := goldPair("p1", "g1")
	pair.AlertChannelID = "chan-p1"
	h.store.pairs = []domain.TrackedPair{pair}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}
	h.sink.gone = map[string]bool{"chan-p1": true}

	require.NoError(t, h.watcher.RunCycle(ctx))

	assert.Equal(t, []domain.PairKey{pair.Key()}, h.store.droppedPair)
	assert.Empty(t, h.store.droppedSub)
	assert.Empty(t, h.store.pair("p1", "g1").AlertChannelID)
	assert.True(t, h.state.IsInGame(pair.Key()))
}

func TestWatcherDropFailureLeavesIdle(t *testing.T) {
	h := newHarness(soloSub("g1"))
	h.store.pairs = []domain.TrackedPair{goldPair("p1", "g1")}
	h.store.dropErr = errors.New("database is locked")
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}
	h.sink.gone = map[string]bool{"chan-g1": true}

	require.NoError(t, h.watcher.RunCycle(context.Background()))
	assert.Equal(t, 0, h.state.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PairFailures.WithLabelValues("watcher", "drop_channel")))
}

func TestWatcherTracksPairsWithoutChannel(t *testing.T) {
	h := newHarness(domain.SubscriptionConfig{SubscriptionID: "g1", Queue: domain.QueueSolo})
	pair := goldPair("p1", "g1")
	h.store.pairs = []domain.TrackedPair{pair}
	h.games.active["p1"] = &domain.GameHandle{GameID: 1, Queue: domain.QueueSolo}

	require.NoError(t, h.watcher.RunCycle(context.Background()))

	entry, ok := h.state.Get(pair.Key())
	require.True(t, ok, "LP is still accounted for guilds with no alert channel")
	assert.Empty(t, entry.Handle)
	assert.Empty(t, h.sink.started)
	assert.Empty(t, h.store.droppedSub)
}
