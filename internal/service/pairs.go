package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"lp-tracker/internal/constants"
	"lp-tracker/internal/domain"
)

// pairError tags a per-pair failure with the step it happened in.
type pairError struct {
	phase string
	err   error
}

func (e *pairError) Error() string { return fmt.Sprintf("%s: %v", e.phase, e.err) }
func (e *pairError) Unwrap() error { return e.err }

func phaseErr(phase string, err error) error {
	return &pairError{phase: phase, err: err}
}

func phaseOf(err error) string {
	var pe *pairError
	if errors.As(err, &pe) {
		return pe.phase
	}
	return "unknown"
}

// sortPairs fixes the per-cycle iteration order: puuid first so that every
// subscription of one player is handled back to back.
func sortPairs(pairs []domain.TrackedPair) {
	slices.SortFunc(pairs, func(a, b domain.TrackedPair) int {
		return cmp.Or(cmp.Compare(a.Puuid, b.Puuid), cmp.Compare(a.SubscriptionID, b.SubscriptionID))
	})
}

func listPairs(ctx context.Context, store PlayerStore) ([]domain.TrackedPair, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	pairs, err := store.ListTrackedPairs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked pairs: %w", err)
	}
	sortPairs(pairs)
	return pairs, nil
}

// subscriptions memoizes GetSubscriptionConfig for the length of one cycle.
type subscriptions struct {
	store PlayerStore
	seen  map[string]*domain.SubscriptionConfig
}

func newSubscriptions(store PlayerStore) *subscriptions {
	return &subscriptions{store: store, seen: make(map[string]*domain.SubscriptionConfig)}
}

// get returns nil without an error when the subscription no longer exists.
func (s *subscriptions) get(ctx context.Context, id string) (*domain.SubscriptionConfig, error) {
	if sub, ok := s.seen[id]; ok {
		return sub, nil
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	sub, err := s.store.GetSubscriptionConfig(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription %s: %w", id, err)
	}
	s.seen[id] = sub
	return sub, nil
}
