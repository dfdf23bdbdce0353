package tracking

import (
	"sort"
	"sync"
	"time"

	"lp-tracker/internal/domain"
)

type Status int

const (
	Idle Status = iota
	InGame
)

func (s Status) String() string {
	if s == InGame {
		return "in_game"
	}
	return "idle"
}

// Entry exists only while a pair is in game; absence means Idle.
type Entry struct {
	Handle domain.AnnouncementHandle
	Since  time.Time
	Queue  domain.QueueCategory
}

// State is shared by the game watcher (Idle -> InGame) and the completion
// detector (InGame -> Idle). Neither loop writes the other's transition.
type State struct {
	mu      sync.RWMutex
	entries map[domain.PairKey]Entry
}

func NewState() *State {
	return &State{entries: make(map[domain.PairKey]Entry)}
}

func (s *State) Status(key domain.PairKey) Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entries[key]; ok {
		return InGame
	}
	return Idle
}

func (s *State) IsInGame(key domain.PairKey) bool {
	return s.Status(key) == InGame
}

// MarkInGame records the transition and returns false if the pair was already in game.
func (s *State) MarkInGame(key domain.PairKey, e Entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[key]; ok {
		return false
	}
	s.entries[key] = e
	return true
}

func (s *State) Get(key domain.PairKey) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Clear moves the pair back to Idle and hands back its entry so the caller can
// remove the announcement.
func (s *State) Clear(key domain.PairKey) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok {
		delete(s.entries, key)
	}
	return e, ok
}

// InGameKeys returns the in-game pairs sorted by puuid then subscription.
func (s *State) InGameKeys() []domain.PairKey {
	s.mu.RLock()
	keys := make([]domain.PairKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Puuid != keys[j].Puuid {
			return keys[i].Puuid < keys[j].Puuid
		}
		return keys[i].SubscriptionID < keys[j].SubscriptionID
	})
	return keys
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *State) Snapshot() map[domain.PairKey]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.PairKey]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
