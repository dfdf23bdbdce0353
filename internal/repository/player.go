package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lp-tracker/internal/domain"

	"github.com/rs/zerolog"
)

const listTrackedPairs = `
SELECT p.puuid, p.username, p.region,
       p.solo_tier, p.solo_division, p.solo_lp, p.solo_wins, p.solo_losses,
       p.flex_tier, p.flex_division, p.flex_lp, p.flex_wins, p.flex_losses,
       p.lp_24h, p.lp_7d,
       pg.guild_id, pg.alert_channel_id, pg.last_match_id
FROM player_guild pg
JOIN player p ON p.puuid = pg.puuid
ORDER BY p.puuid, pg.guild_id`

const updateSoloRank = `
UPDATE player
SET solo_tier = ?, solo_division = ?, solo_lp = ?, solo_wins = ?, solo_losses = ?,
    lp_24h = lp_24h + ?, lp_7d = lp_7d + ?, updated_at = ?
WHERE puuid = ?`

const updateFlexRank = `
UPDATE player
SET flex_tier = ?, flex_division = ?, flex_lp = ?, flex_wins = ?, flex_losses = ?,
    lp_24h = lp_24h + ?, lp_7d = lp_7d + ?, updated_at = ?
WHERE puuid = ?`

const updateLastMatch = `
UPDATE player_guild SET last_match_id = ? WHERE puuid = ? AND guild_id = ?`

const clearAlertChannel = `
UPDATE player_guild SET alert_channel_id = '' WHERE puuid = ? AND guild_id = ?`

const leaderboardSolo = `
SELECT p.username, p.solo_tier, p.solo_division, p.solo_lp, p.solo_wins, p.solo_losses, p.lp_24h, p.lp_7d
FROM player_guild pg
JOIN player p ON p.puuid = pg.puuid
WHERE pg.guild_id = ? AND p.solo_tier <> ''`

const leaderboardFlex = `
SELECT p.username, p.flex_tier, p.flex_division, p.flex_lp, p.flex_wins, p.flex_losses, p.lp_24h, p.lp_7d
FROM player_guild pg
JOIN player p ON p.puuid = pg.puuid
WHERE pg.guild_id = ? AND p.flex_tier <> ''`

type PlayerRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewPlayerRepository(sqlDB *sql.DB, logger zerolog.Logger) *PlayerRepository {
	return &PlayerRepository{db: sqlDB, logger: logger}
}

func (r *PlayerRepository) ListTrackedPairs(ctx context.Context) ([]domain.TrackedPair, error) {
	rows, err := r.db.QueryContext(ctx, listTrackedPairs)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.TrackedPair
	for rows.Next() {
		p := domain.TrackedPair{
			Solo: domain.RankSnapshot{Queue: domain.QueueSolo},
			Flex: domain.RankSnapshot{Queue: domain.QueueFlex},
		}
		err := rows.Scan(
			&p.Puuid, &p.Username, &p.Region,
			&p.Solo.Tier, &p.Solo.Division, &p.Solo.LeaguePoints, &p.Solo.Wins, &p.Solo.Losses,
			&p.Flex.Tier, &p.Flex.Division, &p.Flex.LeaguePoints, &p.Flex.Wins, &p.Flex.Losses,
			&p.LP24h, &p.LP7d,
			&p.SubscriptionID, &p.AlertChannelID, &p.LastSeenMatchID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tracked pair: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tracked pairs: %w", err)
	}
	return pairs, nil
}

// UpdateGlobalRank stores the queue's snapshot on the player row and adds lpDelta
// to the rolling 24h and 7d totals.
func (r *PlayerRepository) UpdateGlobalRank(ctx context.Context, puuid string, queue domain.QueueCategory, s domain.RankSnapshot, lpDelta int) error {
	query := updateSoloRank
	if queue == domain.QueueFlex {
		query = updateFlexRank
	}

	res, err := r.db.ExecContext(ctx, query,
		string(s.Tier), string(s.Division), s.LeaguePoints, s.Wins, s.Losses,
		lpDelta, lpDelta, time.Now().UTC(), puuid)
	if err != nil {
		return fmt.Errorf("failed to update %s rank for %s: %w", queue, puuid, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update %s rank for %s: %w", queue, puuid, sql.ErrNoRows)
	}

	r.logger.Debug().
		Str("puuid", puuid).
		Str("queue", queue.String()).
		Str("tier", string(s.Tier)).
		Str("division", string(s.Division)).
		Int("lp", s.LeaguePoints).
		Int("lp_change", lpDelta).
		Msg("global rank updated")
	return nil
}

func (r *PlayerRepository) UpdateLastSeenMatch(ctx context.Context, puuid, guildID, matchID string) error {
	res, err := r.db.ExecContext(ctx, updateLastMatch, matchID, puuid, guildID)
	if err != nil {
		return fmt.Errorf("failed to update last match for %s in %s: %w", puuid, guildID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update last match for %s in %s: %w", puuid, guildID, sql.ErrNoRows)
	}
	return nil
}

// DropAlertChannel forgets the pair's own alert channel after it was deleted or
// became unreachable. Alerts fall back to the guild's notification channel.
func (r *PlayerRepository) DropAlertChannel(ctx context.Context, puuid, guildID string) error {
	if _, err := r.db.ExecContext(ctx, clearAlertChannel, puuid, guildID); err != nil {
		return fmt.Errorf("failed to drop alert channel for %s in %s: %w", puuid, guildID, err)
	}
	r.logger.Info().Str("puuid", puuid).Str("guild_id", guildID).Msg("alert channel dropped")
	return nil
}

// LeaderboardRows returns the guild's ranked players for queue, unsorted.
func (r *PlayerRepository) LeaderboardRows(ctx context.Context, guildID string, queue domain.QueueCategory) ([]domain.LeaderboardRow, error) {
	query := leaderboardSolo
	if queue == domain.QueueFlex {
		query = leaderboardFlex
	}

	rows, err := r.db.QueryContext(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard for %s: %w", guildID, err)
	}
	defer rows.Close()

	var out []domain.LeaderboardRow
	for rows.Next() {
		row := domain.LeaderboardRow{Snapshot: domain.RankSnapshot{Queue: queue}}
		err := rows.Scan(&row.Username,
			&row.Snapshot.Tier, &row.Snapshot.Division, &row.Snapshot.LeaguePoints,
			&row.Snapshot.Wins, &row.Snapshot.Losses, &row.LP24h, &row.LP7d)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
