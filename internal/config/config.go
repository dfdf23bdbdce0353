package config

import (
	"fmt"
	"os"
	"time"

	"lp-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	RiotAPIKey     string
	RiotBaseURL    string // printf pattern taking the platform or cluster host prefix
	DDragonBaseURL string
	DiscordToken   string
	DiscordAPIURL  string
	DBPath         string
	StatusPort     string

	InGameInterval     time.Duration
	CompletionInterval time.Duration
	MatchCacheTTL      time.Duration
	StaleGameTimeout   time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		RiotAPIKey:     getEnv("RIOT_API_KEY", ""),
		RiotBaseURL:    getEnv("RIOT_BASE_URL", "https://%s.api.riotgames.com"),
		DDragonBaseURL: getEnv("DDRAGON_BASE_URL", "https://ddragon.leagueoflegends.com"),
		DiscordToken:   getEnv("DISCORD_BOT_TOKEN", ""),
		DiscordAPIURL:  getEnv("DISCORD_API_URL", "https://discord.com/api/v10"),
		DBPath:         getEnv("DB_PATH", "tracker.db"),
		StatusPort:     getEnv("STATUS_PORT", "8080"),
	}

	var err error
	if cfg.InGameInterval, err = getDuration("INGAME_INTERVAL", constants.InGameInterval); err != nil {
		return nil, err
	}
	if cfg.CompletionInterval, err = getDuration("COMPLETION_INTERVAL", constants.CompletionInterval); err != nil {
		return nil, err
	}
	if cfg.MatchCacheTTL, err = getDuration("MATCH_CACHE_TTL", constants.MatchLPCacheTTL); err != nil {
		return nil, err
	}
	if cfg.StaleGameTimeout, err = getDuration("STALE_GAME_TIMEOUT", constants.StaleGameTimeout); err != nil {
		return nil, err
	}

	if cfg.RiotAPIKey == "" {
		return nil, fmt.Errorf("RIOT_API_KEY is required")
	}
	if cfg.DiscordToken == "" {
		return nil, fmt.Errorf("DISCORD_BOT_TOKEN is required")
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("status_port", cfg.StatusPort).
		Dur("ingame_interval", cfg.InGameInterval).
		Dur("completion_interval", cfg.CompletionInterval).
		Dur("match_cache_ttl", cfg.MatchCacheTTL).
		Dur("stale_game_timeout", cfg.StaleGameTimeout).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

var Module = fx.Provide(Load)
