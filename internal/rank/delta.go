package rank

import (
	"cmp"
	"errors"
	"fmt"
	"lp-tracker/internal/domain"

	"github.com/rs/zerolog"
)

var (
	ErrUnknownTier     = errors.New("unknown tier")
	ErrUnknownDivision = errors.New("unknown division")
)

const (
	divisionStep = 100
	tierStep     = 400
)

// worst to best
var tierOrder = []domain.Tier{
	domain.TierIron,
	domain.TierBronze,
	domain.TierSilver,
	domain.TierGold,
	domain.TierPlatinum,
	domain.TierEmerald,
	domain.TierDiamond,
	domain.TierMaster,
	domain.TierGrandmaster,
	domain.TierChallenger,
}

// worst to best
var divisionOrder = []domain.Division{
	domain.DivisionIV,
	domain.DivisionIII,
	domain.DivisionII,
	domain.DivisionI,
}

// apex promotions are not worth a full tier step: the target tier starts at 0 LP
// and the LP needed to enter it is fixed.
var apexPromotion = map[domain.Tier]struct {
	from domain.Tier
	cap  int
}{
	domain.TierMaster:      {from: domain.TierDiamond, cap: 100},
	domain.TierGrandmaster: {from: domain.TierMaster, cap: 200},
	domain.TierChallenger:  {from: domain.TierGrandmaster, cap: 200},
}

func IsApex(t domain.Tier) bool {
	return t == domain.TierMaster || t == domain.TierGrandmaster || t == domain.TierChallenger
}

func TierIndex(t domain.Tier) (int, error) {
	for i, v := range tierOrder {
		if v == t {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTier, t)
}

// DivisionIndex returns 0 for IV up to 3 for I. Apex tiers and an absent division count as 0.
func DivisionIndex(t domain.Tier, d domain.Division) (int, error) {
	if IsApex(t) || d == "" {
		return 0, nil
	}
	for i, v := range divisionOrder {
		if v == d {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDivision, d)
}

// Compute returns the signed LP change between two snapshots of the same queue.
// Unranked sides yield 0 with no error.
func Compute(before, after domain.RankSnapshot) (int, error) {
	if !before.Ranked() || !after.Ranked() {
		return 0, nil
	}

	oldTier, err := TierIndex(before.Tier)
	if err != nil {
		return 0, err
	}
	newTier, err := TierIndex(after.Tier)
	if err != nil {
		return 0, err
	}
	oldDiv, err := DivisionIndex(before.Tier, before.Division)
	if err != nil {
		return 0, err
	}
	newDiv, err := DivisionIndex(after.Tier, after.Division)
	if err != nil {
		return 0, err
	}

	lpDiff := after.LeaguePoints - before.LeaguePoints

	if oldTier == newTier {
		return (newDiv-oldDiv)*divisionStep + lpDiff, nil
	}

	if promo, ok := apexPromotion[after.Tier]; ok && promo.from == before.Tier {
		return promo.cap - before.LeaguePoints, nil
	}

	return (newTier-oldTier)*tierStep + (newDiv-oldDiv)*divisionStep + lpDiff, nil
}

// Compare orders snapshots on the ladder: tier, then division, then LP.
// Unranked and unparseable snapshots sort below every ranked one.
func Compare(a, b domain.RankSnapshot) int {
	ka, kb := ladderKey(a), ladderKey(b)
	for i := range ka {
		if c := cmp.Compare(ka[i], kb[i]); c != 0 {
			return c
		}
	}
	return 0
}

func ladderKey(s domain.RankSnapshot) [3]int {
	if !s.Ranked() {
		return [3]int{-1, -1, -1}
	}
	t, err := TierIndex(s.Tier)
	if err != nil {
		return [3]int{-1, -1, -1}
	}
	d, err := DivisionIndex(s.Tier, s.Division)
	if err != nil {
		return [3]int{-1, -1, -1}
	}
	return [3]int{t, d, s.LeaguePoints}
}

type Calculator struct {
	logger zerolog.Logger
}

func NewCalculator(logger zerolog.Logger) *Calculator {
	return &Calculator{logger: logger}
}

// Delta never fails: a comparison it cannot make is logged and counted as 0.
func (c *Calculator) Delta(before, after domain.RankSnapshot) int {
	delta, err := Compute(before, after)
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("old_tier", string(before.Tier)).
			Str("old_division", string(before.Division)).
			Str("new_tier", string(after.Tier)).
			Str("new_division", string(after.Division)).
			Msg("invalid rank values, lp change set to 0")
		return 0
	}
	return delta
}
