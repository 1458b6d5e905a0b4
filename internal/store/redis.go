package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oddspool/market-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// market cache. Writes go to the primary store and invalidate the cache;
// reads check Redis first then fall back to the primary. Bets are not
// cached. Read-modify-write cycles go through GetMarketForUpdate.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		Store: primary,
		rdb:   rdb,
		ttl:   ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.Store.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := s.Store.UpdateMarket(ctx, m); err != nil {
		return err
	}
	// Invalidate; next read re-populates from the primary.
	s.rdb.Del(ctx, marketKey(m.ID))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		m := new(model.Market)
		if json.Unmarshal(data, m) == nil && m.Validate() == nil {
			return m, nil
		}
	}

	m, err := s.Store.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

// GetMarketForUpdate reads the primary store and leaves the cache alone.
// A cached copy may predate the last commit, and a reader outside the
// market lock may re-populate the cache with one.
func (s *CachedStore) GetMarketForUpdate(ctx context.Context, id string) (*model.Market, error) {
	return GetMarketForUpdate(ctx, s.Store, id)
}

func (s *CachedStore) GetMarketByEvent(ctx context.Context, eventID string) (*model.Market, error) {
	// Event ids map to market ids for the lifetime of the market.
	marketID, err := s.rdb.Get(ctx, eventKey(eventID)).Result()
	if err == nil {
		return s.GetMarket(ctx, marketID)
	}

	m, err := s.Store.GetMarketByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	s.rdb.Set(ctx, eventKey(eventID), m.ID, 0)
	return m, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id string) string { return fmt.Sprintf("market:%s", id) }
func eventKey(id string) string  { return fmt.Sprintf("event:%s", id) }
var _ UpdateReader = (*CachedStore)(nil)
