package service

import (
	"context"

	"lp-tracker/internal/domain"
)

type PlayerStore interface {
	ListTrackedPairs(ctx context.Context) ([]domain.TrackedPair, error)
	GetSubscriptionConfig(ctx context.Context, subscriptionID string) (*domain.SubscriptionConfig, error)
	// UpdateGlobalRank stores the snapshot for the queue and adds lpDelta to the 24h/7d totals.
	UpdateGlobalRank(ctx context.Context, puuid string, queue domain.QueueCategory, snapshot domain.RankSnapshot, lpDelta int) error
	UpdateLastSeenMatch(ctx context.Context, puuid, subscriptionID, matchID string) error
	// DropAlertChannel and DropNotificationChannel stop alerts to a channel that is gone.
	DropAlertChannel(ctx context.Context, puuid, subscriptionID string) error
	DropNotificationChannel(ctx context.Context, subscriptionID string) error
}

// HistoryRecorder keeps an audit row per accounted match.
type HistoryRecorder interface {
	Record(ctx context.Context, h domain.LPHistory) error
}

// GameDataService returns nil values with a nil error when upstream has nothing.
type GameDataService interface {
	GetActiveGame(ctx context.Context, puuid, region string, queue domain.QueueCategory) (*domain.GameHandle, error)
	GetRankSnapshot(ctx context.Context, puuid string, queue domain.QueueCategory, region string) (*domain.RankSnapshot, error)
	GetRecentRankedMatchIDs(ctx context.Context, puuid string, count int, region string) ([]string, error)
	GetMatchDetail(ctx context.Context, matchID, region string) (*domain.MatchDetail, error)
}

type NotificationSink interface {
	AnnounceGameStarted(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, champion domain.ChampionRef) (domain.AnnouncementHandle, error)
	ClearAnnouncement(ctx context.Context, handle domain.AnnouncementHandle) error
	AnnounceMatchResult(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, outcome domain.MatchOutcome, lpDelta int) error
}

type LeaderboardRefresher interface {
	Refresh(ctx context.Context, subscriptionID string) error
}

type ChampionResolver interface {
	EnsureLoaded(ctx context.Context) error
	Name(id int) string
	ImageURL(slug string) string
}
