package constants

import "time"

const (
	InGameInterval     = 15 * time.Second
	CompletionInterval = 10 * time.Second
	MatchLPCacheTTL    = 1 * time.Hour
	StaleGameTimeout   = 2 * time.Hour
)

const (
	ExternalAPITimeout = 10 * time.Second
	DatabaseTimeout    = 5 * time.Second
	DiscordTimeout     = 10 * time.Second
)

const (
	RetryMaxAttempts = 3
	RetryBaseDelay   = 1 * time.Second
	RetryMaxDelay    = 8 * time.Second
)

const (
	DBMaxOpenConns    = 1
	DBMaxIdleConns    = 1
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	RecentMatchCount = 1
)

const (
	ChampionRefreshInterval = 24 * time.Hour
	ChampionRetryInterval   = 5 * time.Minute
)
