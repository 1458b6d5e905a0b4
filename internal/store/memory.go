package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oddspool/market-engine/internal/model"
)

// activeSet is an unordered id set with O(1) add, membership and
// swap-with-last removal.
type activeSet struct {
	ids []uint64
	pos map[uint64]int
}

func newActiveSet() *activeSet {
	return &activeSet{pos: make(map[uint64]int)}
}

func (s *activeSet) add(id uint64) {
	if _, ok := s.pos[id]; ok {
		return
	}
	s.pos[id] = len(s.ids)
	s.ids = append(s.ids, id)
}

func (s *activeSet) remove(id uint64) bool {
	i, ok := s.pos[id]
	if !ok {
		return false
	}
	last := len(s.ids) - 1
	moved := s.ids[last]
	s.ids[i] = moved
	s.pos[moved] = i
	s.ids = s.ids[:last]
	delete(s.pos, id)
	return true
}

func (s *activeSet) list() []uint64 {
	return append([]uint64(nil), s.ids...)
}

type ownerMarket struct {
	owner, market string
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu         sync.RWMutex
	markets    map[string]*model.Market
	byEvent    map[string]string
	bets       map[uint64]*model.Bet
	nextBetID  uint64
	active     map[ownerMarket]*activeSet
	marketBets map[string][]uint64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:    make(map[string]*model.Market),
		byEvent:    make(map[string]string),
		bets:       make(map[uint64]*model.Bet),
		nextBetID:  1,
		active:     make(map[ownerMarket]*activeSet),
		marketBets: make(map[string][]uint64),
	}
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("%w: id %s", model.ErrMarketExists, m.ID)
	}
	if _, ok := s.byEvent[m.EventID]; ok {
		return fmt.Errorf("%w: event %s", model.ErrMarketExists, m.EventID)
	}
	s.markets[m.ID] = m.Clone()
	s.byEvent[m.EventID] = m.ID
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, id)
	}
	return m.Clone(), nil
}

func (s *MemoryStore) GetMarketByEvent(_ context.Context, eventID string) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("%w: no market for event %s", model.ErrInvalidMarket, eventID)
	}
	return s.markets[id].Clone(), nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m.Clone())
	}
	sort.Slice(markets, func(i, j int) bool {
		return markets[i].CreatedAt.After(markets[j].CreatedAt)
	})
	return markets, nil
}

func (s *MemoryStore) UpdateMarket(_ context.Context, m *model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.markets[m.ID]
	if !ok {
		return fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, m.ID)
	}
	if existing.EventID != m.EventID {
		return fmt.Errorf("%w: event id of market %s is immutable", model.ErrInvariant, m.ID)
	}
	s.markets[m.ID] = m.Clone()
	return nil
}

func (s *MemoryStore) InsertBet(_ context.Context, bet *model.Bet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[bet.MarketID]; !ok {
		return fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, bet.MarketID)
	}
	bet.ID = s.nextBetID
	s.nextBetID++

	stored := *bet
	s.bets[bet.ID] = &stored
	s.marketBets[bet.MarketID] = append(s.marketBets[bet.MarketID], bet.ID)
	return nil
}

func (s *MemoryStore) GetBet(_ context.Context, id uint64) (*model.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bets[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", model.ErrBetNotFound, id)
	}
	out := *b
	return &out, nil
}

func (s *MemoryStore) SetBetStatus(_ context.Context, id uint64, status model.BetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return fmt.Errorf("%w: id %d", model.ErrBetNotFound, id)
	}
	b.Status = status
	return nil
}

func (s *MemoryStore) AddActiveBet(_ context.Context, owner, marketID string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := ownerMarket{owner, marketID}
	set, ok := s.active[key]
	if !ok {
		set = newActiveSet()
		s.active[key] = set
	}
	set.add(id)
	return nil
}

func (s *MemoryStore) RemoveActiveBet(_ context.Context, owner, marketID string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if set, ok := s.active[ownerMarket{owner, marketID}]; ok {
		set.remove(id)
	}
	return nil
}

func (s *MemoryStore) ActiveBetIDs(_ context.Context, owner, marketID string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.active[ownerMarket{owner, marketID}]
	if !ok {
		return nil, nil
	}
	return set.list(), nil
}

func (s *MemoryStore) MarketBetIDs(_ context.Context, marketID string) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]uint64(nil), s.marketBets[marketID]...), nil
}
