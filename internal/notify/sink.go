package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lp-tracker/internal/domain"

	"github.com/rs/zerolog"
)

const (
	colorGold   = 0xf1c40f
	colorGreen  = 0x2ecc71
	colorRed    = 0xe74c3c
	colorOrange = 0xe67e22
)

type ChampionImages interface {
	ImageURL(slug string) string
}

// Sink posts tracking events to the guild's Discord channels.
type Sink struct {
	discord *Discord
	images  ChampionImages
	logger  zerolog.Logger
}

func NewSink(discord *Discord, images ChampionImages, logger zerolog.Logger) *Sink {
	return &Sink{discord: discord, images: images, logger: logger}
}

// AnnounceGameStarted returns an empty handle when the guild has no channel to post to.
func (s *Sink) AnnounceGameStarted(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, champion domain.ChampionRef) (domain.AnnouncementHandle, error) {
	channelID := alertChannel(sub, pair)
	if channelID == "" {
		s.logger.Debug().Str("guild_id", sub.SubscriptionID).Msg("no alert channel configured")
		return "", nil
	}

	messageID, err := s.discord.CreateMessage(ctx, channelID, Message{Embeds: []Embed{gameStartedEmbed(pair, champion)}})
	if err != nil {
		return "", err
	}
	return makeHandle(channelID, messageID), nil
}

func (s *Sink) ClearAnnouncement(ctx context.Context, handle domain.AnnouncementHandle) error {
	channelID, messageID, ok := parseHandle(handle)
	if !ok {
		return fmt.Errorf("malformed announcement handle %q", handle)
	}

	err := s.discord.DeleteMessage(ctx, channelID, messageID)
	if errors.Is(err, ErrMessageGone) || errors.Is(err, ErrChannelGone) {
		return nil
	}
	return err
}

func (s *Sink) AnnounceMatchResult(ctx context.Context, sub domain.SubscriptionConfig, pair domain.TrackedPair, outcome domain.MatchOutcome, lpDelta int) error {
	channelID := alertChannel(sub, pair)
	if channelID == "" {
		return nil
	}
	_, err := s.discord.CreateMessage(ctx, channelID, Message{Embeds: []Embed{matchResultEmbed(pair, outcome, lpDelta, s.images.ImageURL(outcome.Champion))}})
	return err
}

// PublishLeaderboard edits the standings message in place, or posts a new one
// when there is none yet. It returns the id of the message now holding content.
func (s *Sink) PublishLeaderboard(ctx context.Context, channelID, messageID, content string) (string, error) {
	msg := Message{Content: content}
	if messageID != "" {
		err := s.discord.EditMessage(ctx, channelID, messageID, msg)
		if err == nil {
			return messageID, nil
		}
		if !errors.Is(err, ErrMessageGone) {
			return "", err
		}
		s.logger.Debug().Str("channel_id", channelID).Str("message_id", messageID).Msg("leaderboard message gone, posting a new one")
	}
	return s.discord.CreateMessage(ctx, channelID, msg)
}

func alertChannel(sub domain.SubscriptionConfig, pair domain.TrackedPair) string {
	if pair.AlertChannelID != "" {
		return pair.AlertChannelID
	}
	return sub.NotificationChannelID
}

func makeHandle(channelID, messageID string) domain.AnnouncementHandle {
	return domain.AnnouncementHandle(channelID + "/" + messageID)
}

func parseHandle(h domain.AnnouncementHandle) (channelID, messageID string, ok bool) {
	channelID, messageID, ok = strings.Cut(string(h), "/")
	return channelID, messageID, ok && channelID != "" && messageID != ""
}

func gameStartedEmbed(pair domain.TrackedPair, champion domain.ChampionRef) Embed {
	e := Embed{
		Title: pair.Username + " is playing a game!",
		Color: colorGold,
		Fields: []EmbedField{
			{Name: "K/D/A", Value: ":hourglass:", Inline: true},
			{Name: "Damage", Value: ":hourglass:", Inline: true},
			{Name: "LP", Value: ":hourglass:", Inline: true},
		},
	}
	if champion.ImageURL != "" {
		e.Thumbnail = &EmbedImage{URL: champion.ImageURL}
	}
	return e
}

func matchResultEmbed(pair domain.TrackedPair, o domain.MatchOutcome, lpDelta int, image string) Embed {
	result, color := "Defeat", colorRed
	switch {
	case o.EarlySurrender:
		result, color = "Early Surrender", colorOrange
	case o.Win:
		result, color = "Victory", colorGreen
	}

	lpName := "LP Lost"
	if lpDelta > 0 {
		lpName = "LP Win"
	}

	e := Embed{
		Title: fmt.Sprintf("%s for %s", result, pair.Username),
		Color: color,
		Fields: []EmbedField{
			{Name: "K/D/A", Value: fmt.Sprintf("%d/%d/%d", o.Kills, o.Deaths, o.Assists), Inline: true},
			{Name: "Damage", Value: fmt.Sprintf("%d", o.Damage), Inline: true},
			{Name: lpName, Value: formatLP(lpDelta), Inline: true},
		},
	}
	if s := pair.Snapshot(o.Queue); s.Ranked() {
		e.Fields = append(e.Fields, EmbedField{Name: "Rank", Value: FormatRank(s)})
	}
	if image != "" {
		e.Thumbnail = &EmbedImage{URL: image}
	}
	return e
}

func formatLP(delta int) string {
	if delta > 0 {
		return fmt.Sprintf("+%d LP", delta)
	}
	return fmt.Sprintf("%d LP", delta)
}

// FormatRank renders a snapshot as "GOLD III 10 LP", or "Unranked".
func FormatRank(s domain.RankSnapshot) string {
	if !s.Ranked() {
		return "Unranked"
	}
	if s.Division == "" {
		return fmt.Sprintf("%s %d LP", s.Tier, s.LeaguePoints)
	}
	return fmt.Sprintf("%s %s %d LP", s.Tier, s.Division, s.LeaguePoints)
}
