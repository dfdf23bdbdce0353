package leaderboard

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"lp-tracker/internal/domain"
	"lp-tracker/internal/notify"
	"lp-tracker/internal/rank"

	"github.com/rs/zerolog"
)

const header = "Username                      | Rank              | LP (24h) | LP (7d)"

type Store interface {
	GetSubscriptionConfig(ctx context.Context, guildID string) (*domain.SubscriptionConfig, error)
	LeaderboardRows(ctx context.Context, guildID string, queue domain.QueueCategory) ([]domain.LeaderboardRow, error)
	LeaderboardMessage(ctx context.Context, guildID string) (string, error)
	SetLeaderboardMessage(ctx context.Context, guildID, messageID string) error
	DropLeaderboard(ctx context.Context, guildID string) error
}

type Publisher interface {
	PublishLeaderboard(ctx context.Context, channelID, messageID, content string) (string, error)
}

// Refresher rebuilds a guild's standings message after a match is accounted.
type Refresher struct {
	store     Store
	publisher Publisher
	logger    zerolog.Logger
}

func NewRefresher(store Store, publisher Publisher, logger zerolog.Logger) *Refresher {
	return &Refresher{store: store, publisher: publisher, logger: logger}
}

func (r *Refresher) Refresh(ctx context.Context, guildID string) error {
	sub, err := r.store.GetSubscriptionConfig(ctx, guildID)
	if err != nil {
		return err
	}
	if sub == nil || sub.LeaderboardChannelID == "" {
		return nil
	}

	rows, err := r.store.LeaderboardRows(ctx, guildID, sub.Queue)
	if err != nil {
		return err
	}
	Sort(rows)

	messageID, err := r.store.LeaderboardMessage(ctx, guildID)
	if err != nil {
		return err
	}

	newID, err := r.publisher.PublishLeaderboard(ctx, sub.LeaderboardChannelID, messageID, Render(rows))
	if errors.Is(err, notify.ErrChannelGone) {
		r.logger.Warn().
			Str("guild_id", guildID).
			Str("channel_id", sub.LeaderboardChannelID).
			Msg("leaderboard channel is gone, dropping it")
		return r.store.DropLeaderboard(ctx, guildID)
	}
	if err != nil {
		return fmt.Errorf("failed to publish leaderboard for %s: %w", guildID, err)
	}

	if newID != messageID {
		if err := r.store.SetLeaderboardMessage(ctx, guildID, newID); err != nil {
			return err
		}
	}
	r.logger.Debug().Str("guild_id", guildID).Int("players", len(rows)).Msg("leaderboard refreshed")
	return nil
}

// Sort orders rows best first: tier, then division, then LP.
func Sort(rows []domain.LeaderboardRow) {
	slices.SortStableFunc(rows, func(a, b domain.LeaderboardRow) int {
		return cmp.Or(rank.Compare(b.Snapshot, a.Snapshot), cmp.Compare(a.Username, b.Username))
	})
}

// Render draws rows as a monospace table in a Discord code block.
func Render(rows []domain.LeaderboardRow) string {
	parts := strings.Split(header, "|")
	userW, rankW, lp24W, lp7W := len(parts[0]), len(parts[1]), len(parts[2]), len(parts[3])

	var b strings.Builder
	b.WriteString("```")
	b.WriteString(header)
	b.WriteByte('\n')
	b.WriteString(strings.Repeat("-", len(header)))
	for _, row := range rows {
		fmt.Fprintf(&b, "\n%-*s|%-*s|%*d|%*d",
			userW, row.Username,
			rankW, notify.FormatRank(row.Snapshot),
			lp24W, row.LP24h,
			lp7W, row.LP7d)
	}
	b.WriteString("```")
	return b.String()
}
