package domain

import (
	"time"
)

type QueueCategory int

const (
	QueueSolo QueueCategory = iota
	QueueFlex
)

const (
	QueueIDSolo = 420
	QueueIDFlex = 440
)

func (q QueueCategory) String() string {
	if q == QueueFlex {
		return "flex"
	}
	return "solo"
}

// LeagueQueueType is the queueType string used by the league-v4 endpoints.
func (q QueueCategory) LeagueQueueType() string {
	if q == QueueFlex {
		return "RANKED_FLEX_SR"
	}
	return "RANKED_SOLO_5x5"
}

func (q QueueCategory) QueueID() int {
	if q == QueueFlex {
		return QueueIDFlex
	}
	return QueueIDSolo
}

// QueueFromID maps a match/spectator queue id to a ranked category.
func QueueFromID(id int) (QueueCategory, bool) {
	switch id {
	case QueueIDSolo:
		return QueueSolo, true
	case QueueIDFlex:
		return QueueFlex, true
	}
	return QueueSolo, false
}

type Tier string

const (
	TierIron        Tier = "IRON"
	TierBronze      Tier = "BRONZE"
	TierSilver      Tier = "SILVER"
	TierGold        Tier = "GOLD"
	TierPlatinum    Tier = "PLATINUM"
	TierEmerald     Tier = "EMERALD"
	TierDiamond     Tier = "DIAMOND"
	TierMaster      Tier = "MASTER"
	TierGrandmaster Tier = "GRANDMASTER"
	TierChallenger  Tier = "CHALLENGER"
)

type Division string

const (
	DivisionIV  Division = "IV"
	DivisionIII Division = "III"
	DivisionII  Division = "II"
	DivisionI   Division = "I"
)

// RankSnapshot is one ladder reading for a queue. An empty Tier means unranked.
type RankSnapshot struct {
	Queue        QueueCategory
	Tier         Tier
	Division     Division
	LeaguePoints int
	Wins         int
	Losses       int
}

func (s RankSnapshot) Ranked() bool {
	return s.Tier != ""
}

type PairKey struct {
	Puuid          string
	SubscriptionID string
}

// TrackedPair is one player registration in one guild, joined with the global player row.
type TrackedPair struct {
	Puuid           string
	Username        string
	SubscriptionID  string
	AlertChannelID  string
	Region          string
	LastSeenMatchID string
	Solo            RankSnapshot
	Flex            RankSnapshot
	LP24h           int
	LP7d            int
}

func (p TrackedPair) Key() PairKey {
	return PairKey{Puuid: p.Puuid, SubscriptionID: p.SubscriptionID}
}

func (p TrackedPair) Snapshot(q QueueCategory) RankSnapshot {
	if q == QueueFlex {
		return p.Flex
	}
	return p.Solo
}

// WithSnapshot returns a copy of p carrying s in the slot of s.Queue.
func (p TrackedPair) WithSnapshot(s RankSnapshot) TrackedPair {
	if s.Queue == QueueFlex {
		p.Flex = s
	} else {
		p.Solo = s
	}
	return p
}

type SubscriptionConfig struct {
	SubscriptionID        string
	Queue                 QueueCategory
	LeaderboardChannelID  string
	NotificationChannelID string
}

type GameHandle struct {
	GameID     int64
	ChampionID int
	Queue      QueueCategory
	StartedAt  time.Time
}

type Participant struct {
	Puuid          string
	ChampionID     int
	ChampionName   string
	Win            bool
	Kills          int
	Deaths         int
	Assists        int
	Damage         int
	EarlySurrender bool
}

type MatchDetail struct {
	MatchID      string
	QueueID      int
	Duration     time.Duration
	Participants []Participant
}

func (m MatchDetail) Participant(puuid string) (Participant, bool) {
	for _, p := range m.Participants {
		if p.Puuid == puuid {
			return p, true
		}
	}
	return Participant{}, false
}

func (m MatchDetail) EarlySurrender() bool {
	for _, p := range m.Participants {
		if p.EarlySurrender {
			return true
		}
	}
	return false
}

type MatchOutcome struct {
	MatchID        string
	Queue          QueueCategory
	Win            bool
	EarlySurrender bool
	ChampionID     int
	Champion       string
	Kills          int
	Deaths         int
	Assists        int
	Damage         int
	Duration       time.Duration
}

type ChampionRef struct {
	ID       int
	Name     string
	ImageURL string
}

// AnnouncementHandle identifies a posted "in game" message so it can be removed later.
type AnnouncementHandle string

type LPHistory struct {
	ID        string // nanoid
	Puuid     string
	MatchID   string
	Queue     QueueCategory
	OldTier   Tier
	OldDiv    Division
	OldLP     int
	NewTier   Tier
	NewDiv    Division
	NewLP     int
	LPChange  int
	CreatedAt time.Time
}

type LeaderboardRow struct {
	Username string
	Snapshot RankSnapshot
	LP24h    int
	LP7d     int
}
