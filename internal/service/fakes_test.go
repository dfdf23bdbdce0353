package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lp-tracker/internal/cache"
	"lp-tracker/internal/domain"
	"lp-tracker/internal/metrics"
	"lp-tracker/internal/notify"
	"lp-tracker/internal/rank"
	"lp-tracker/internal/tracking"

	"github.com/rs/zerolog"
)

type rankUpdate struct {
	puuid    string
	queue    domain.QueueCategory
	snapshot domain.RankSnapshot
	delta    int
}

type fakeStore struct {
	mu          sync.Mutex
	pairs       []domain.TrackedPair
	subs        map[string]*domain.SubscriptionConfig
	subCalls    map[string]int
	listErr     error
	rankErr     error
	lastSeenErr error
	rankUpdates []rankUpdate
	dropErr     error
	droppedPair []domain.PairKey
	droppedSub  []string
}

func newFakeStore(subs ...domain.SubscriptionConfig) *fakeStore {
	s := &fakeStore{subs: map[string]*domain.SubscriptionConfig{}, subCalls: map[string]int{}}
	for _, sub := range subs {
		s.subs[sub.SubscriptionID] = &sub
	}
	return s
}

func (s *fakeStore) ListTrackedPairs(ctx context.Context) ([]domain.TrackedPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]domain.TrackedPair(nil), s.pairs...), nil
}

func (s *fakeStore) GetSubscriptionConfig(ctx context.Context, id string) (*domain.SubscriptionConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subCalls[id]++
	return s.subs[id], nil
}

func (s *fakeStore) UpdateGlobalRank(ctx context.Context, puuid string, queue domain.QueueCategory, snapshot domain.RankSnapshot, lpDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rankErr != nil {
		return s.rankErr
	}
	s.rankUpdates = append(s.rankUpdates, rankUpdate{puuid: puuid, queue: queue, snapshot: snapshot, delta: lpDelta})
	for i := range s.pairs {
		if s.pairs[i].Puuid == puuid {
			s.pairs[i] = s.pairs[i].WithSnapshot(snapshot)
			s.pairs[i].LP24h += lpDelta
			s.pairs[i].LP7d += lpDelta
		}
	}
	return nil
}

func (s *fakeStore) UpdateLastSeenMatch(ctx context.Context, puuid, subscriptionID, matchID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSeenErr != nil {
		return s.lastSeenErr
	}
	for i := range s.pairs {
		if s.pairs[i].Puuid == puuid && s.pairs[i].SubscriptionID == subscriptionID {
			s.pairs[i].LastSeenMatchID = matchID
		}
	}
	return nil
}

func (s *fakeStore) DropAlertChannel(ctx context.Context, puuid, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropErr != nil {
		return s.dropErr
	}
	s.droppedPair = append(s.droppedPair, domain.PairKey{Puuid: puuid, SubscriptionID: subscriptionID})
	for i := range s.pairs {
		if s.pairs[i].Puuid == puuid && s.pairs[i].SubscriptionID == subscriptionID {
			s.pairs[i].AlertChannelID = ""
		}
	}
	return nil
}

func (s *fakeStore) DropNotificationChannel(ctx context.Context, subscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropErr != nil {
		return s.dropErr
	}
	s.droppedSub = append(s.droppedSub, subscriptionID)
	if sub, ok := s.subs[subscriptionID]; ok {
		c := *sub
		c.NotificationChannelID = ""
		s.subs[subscriptionID] = &c
	}
	return nil
}

func (s *fakeStore) pair(puuid, sub string) domain.TrackedPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pairs {
		if p.Puuid == puuid && p.SubscriptionID == sub {
			return p
		}
	}
	return domain.TrackedPair{}
}

type fakeGames struct {
	mu          sync.Mutex
	active      map[string]*domain.GameHandle
	activeErr   map[string]error
	panicOn     string
	matchIDs    map[string][]string
	details     map[string]*domain.MatchDetail
	ranks       map[string]*domain.RankSnapshot
	rankErr     error
	rankCalls   int
	activeCalls int
}

func newFakeGames() *fakeGames {
	return &fakeGames{
		active:    map[string]*domain.GameHandle{},
		activeErr: map[string]error{},
		matchIDs:  map[string][]string{},
		details:   map[string]*domain.MatchDetail{},
		ranks:     map[string]*domain.RankSnapshot{},
	}
}

func (g *fakeGames) GetActiveGame(ctx context.Context, puuid, region string, queue domain.QueueCategory) (*domain.GameHandle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeCalls++
	if puuid == g.panicOn {
		panic("spectator decoder blew up")
	}
	if err := g.activeErr[puuid]; err != nil {
		return nil, err
	}
	game := g.active[puuid]
	if game == nil || game.Queue != queue {
		return nil, nil
	}
	return game, nil
}

func (g *fakeGames) GetRankSnapshot(ctx context.Context, puuid string, queue domain.QueueCategory, region string) (*domain.RankSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rankCalls++
	if g.rankErr != nil {
		return nil, g.rankErr
	}
	return g.ranks[puuid], nil
}

func (g *fakeGames) GetRecentRankedMatchIDs(ctx context.Context, puuid string, count int, region string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.matchIDs[puuid], nil
}

func (g *fakeGames) GetMatchDetail(ctx context.Context, matchID, region string) (*domain.MatchDetail, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.details[matchID], nil
}

type startedCall struct {
	sub      string
	puuid    string
	champion domain.ChampionRef
}

type resultCall struct {
	sub     string
	pair    domain.TrackedPair
	outcome domain.MatchOutcome
	delta   int
}

type fakeSink struct {
	mu          sync.Mutex
	announceErr error
	gone        map[string]bool
	next        int
	started     []startedCall
	cleared     []domain.AnnouncementHandle
	results     []resultCall
}

func (s *fakeSink) AnnounceGameStarted(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, champion domain.ChampionRef) (domain.AnnouncementHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.announceErr != nil {
		return "", s.announceErr
	}
	channel := pair.AlertChannelID
	if channel == "" {
		channel = sub.NotificationChannelID
	}
	if channel == "" {
		return "", nil
	}
	if s.gone[channel] {
		return "", fmt.Errorf("failed to create message in %s: %w", channel, notify.ErrChannelGone)
	}
	s.next++
	s.started = append(s.started, startedCall{sub: sub.SubscriptionID, puuid: pair.Puuid, champion: champion})
	return domain.AnnouncementHandle(fmt.Sprintf("%s/msg-%d", channel, s.next)), nil
}

func (s *fakeSink) ClearAnnouncement(ctx context.Context, handle domain.AnnouncementHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, handle)
	return nil
}

func (s *fakeSink) AnnounceMatchResult(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, outcome domain.MatchOutcome, lpDelta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, resultCall{sub: sub.SubscriptionID, pair: pair, outcome: outcome, delta: lpDelta})
	return nil
}

type fakeLeaderboard struct {
	mu        sync.Mutex
	refreshed []string
}

func (l *fakeLeaderboard) Refresh(ctx context.Context, subscriptionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshed = append(l.refreshed, subscriptionID)
	return nil
}

type fakeHistory struct {
	rows []domain.LPHistory
}

func (h *fakeHistory) Record(ctx context.Context, row domain.LPHistory) error {
	h.rows = append(h.rows, row)
	return nil
}

type fakeChampions struct{}

func (fakeChampions) EnsureLoaded(ctx context.Context) error { return nil }

func (fakeChampions) Name(id int) string {
	if id == 103 {
		return "Ahri"
	}
	return ""
}

func (fakeChampions) ImageURL(slug string) string {
	return "http://ddragon.test/" + slug + ".png"
}

// harness wires both loops over the same fakes and shared state.
type harness struct {
	store       *fakeStore
	games       *fakeGames
	sink        *fakeSink
	leaderboard *fakeLeaderboard
	history     *fakeHistory
	state       *tracking.State
	cache       *cache.MatchLP
	metrics     *metrics.Metrics
	clock       time.Time
	watcher     *GameWatcher
	detector    *CompletionDetector
}

func newHarness(subs ...domain.SubscriptionConfig) *harness {
	h := &harness{
		store:       newFakeStore(subs...),
		games:       newFakeGames(),
		sink:        &fakeSink{},
		leaderboard: &fakeLeaderboard{},
		history:     &fakeHistory{},
		state:       tracking.NewState(),
		metrics:     metrics.New(),
		clock:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return h.clock }
	h.cache = cache.NewMatchLP(time.Hour).WithClock(now)

	h.watcher = NewGameWatcher(h.store, h.games, h.sink, fakeChampions{}, h.state, h.metrics, zerolog.Nop())
	h.watcher.now = now

	h.detector = NewCompletionDetector(DetectorDeps{
		Store:       h.store,
		History:     h.history,
		Games:       h.games,
		Sink:        h.sink,
		Leaderboard: h.leaderboard,
		Calculator:  rank.NewCalculator(zerolog.Nop()),
		Cache:       h.cache,
		State:       h.state,
		Metrics:     h.metrics,
	}, 2*time.Hour, zerolog.Nop())
	h.detector.now = now
	return h
}

func soloSub(id string) domain.SubscriptionConfig {
	return domain.SubscriptionConfig{SubscriptionID: id, Queue: domain.QueueSolo, NotificationChannelID: "chan-" + id}
}

func goldPair(puuid, sub string) domain.TrackedPair {
	return domain.TrackedPair{
		Puuid:           puuid,
		Username:        puuid + "#EUW",
		SubscriptionID:  sub,
		Region:          "euw1",
		LastSeenMatchID: "M1",
		Solo:            domain.RankSnapshot{Queue: domain.QueueSolo, Tier: domain.TierGold, Division: domain.DivisionIV, LeaguePoints: 50},
		Flex:            domain.RankSnapshot{Queue: domain.QueueFlex},
	}
}

func soloMatch(id, puuid string, win bool) *domain.MatchDetail {
	return &domain.MatchDetail{
		MatchID:  id,
		QueueID:  domain.QueueIDSolo,
		Duration: 31 * time.Minute,
		Participants: []domain.Participant{
			{Puuid: puuid, ChampionID: 103, ChampionName: "Ahri", Win: win, Kills: 7, Deaths: 3, Assists: 9, Damage: 21000},
		},
	}
}
