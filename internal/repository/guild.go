package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"lp-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type GuildRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewGuildRepository(sqlDB *sql.DB, logger zerolog.Logger) *GuildRepository {
	return &GuildRepository{db: sqlDB, logger: logger}
}

// GetSubscriptionConfig returns nil without an error when the guild is unknown.
func (r *GuildRepository) GetSubscriptionConfig(ctx context.Context, guildID string) (*domain.SubscriptionConfig, error) {
	var (
		flex bool
		sub  = domain.SubscriptionConfig{SubscriptionID: guildID}
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT flex_enabled, notification_channel_id, leaderboard_channel_id
		FROM guild WHERE guild_id = ?`, guildID,
	).Scan(&flex, &sub.NotificationChannelID, &sub.LeaderboardChannelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild %s: %w", guildID, err)
	}

	if flex {
		sub.Queue = domain.QueueFlex
	}
	return &sub, nil
}

// LeaderboardMessage returns the id of the standings message last posted for the guild.
func (r *GuildRepository) LeaderboardMessage(ctx context.Context, guildID string) (string, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT leaderboard_message_id FROM guild WHERE guild_id = ?`, guildID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get leaderboard message for %s: %w", guildID, err)
	}
	return id, nil
}

func (r *GuildRepository) SetLeaderboardMessage(ctx context.Context, guildID, messageID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE guild SET leaderboard_message_id = ?, updated_at = ? WHERE guild_id = ?`,
		messageID, time.Now().UTC(), guildID)
	if err != nil {
		return fmt.Errorf("failed to set leaderboard message for %s: %w", guildID, err)
	}
	return nil
}

// DropLeaderboard forgets the guild's leaderboard channel after it was deleted.
func (r *GuildRepository) DropLeaderboard(ctx context.Context, guildID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE guild SET leaderboard_channel_id = '', leaderboard_message_id = '', updated_at = ?
		WHERE guild_id = ?`, time.Now().UTC(), guildID)
	if err != nil {
		return fmt.Errorf("failed to drop leaderboard for %s: %w", guildID, err)
	}
	r.logger.Info().Str("guild_id", guildID).Msg("leaderboard channel dropped")
	return nil
}

// DropNotificationChannel forgets the guild's notification channel after it was
// deleted or became unreachable.
func (r *GuildRepository) DropNotificationChannel(ctx context.Context, guildID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE guild SET notification_channel_id = '', updated_at = ? WHERE guild_id = ?`,
		time.Now().UTC(), guildID)
	if err != nil {
		return fmt.Errorf("failed to drop notification channel for %s: %w", guildID, err)
	}
	r.logger.Info().Str("guild_id", guildID).Msg("notification channel dropped")
	return nil
}
