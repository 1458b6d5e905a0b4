// Package store defines the persistence interface for the betting engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// market cache), and in-memory (for testing and development).
//
// Stores hand out copies: a returned *model.Market or *model.Bet is a
// consistent snapshot that the caller may mutate freely.
package store

import (
	"context"

	"github.com/oddspool/market-engine/internal/model"
)

// MarketStore persists Market records. Markets are created once and never
// removed. Every write validates the market's invariants first.
type MarketStore interface {
	// CreateMarket persists a new market. Fails with model.ErrMarketExists
	// if the id or event id is taken.
	CreateMarket(ctx context.Context, market *model.Market) error

	// GetMarket retrieves a market by id (model.ErrInvalidMarket if unknown).
	GetMarket(ctx context.Context, id string) (*model.Market, error)

	// GetMarketByEvent retrieves the market linked to an external event.
	GetMarketByEvent(ctx context.Context, eventID string) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// UpdateMarket replaces the stored state of an existing market.
	UpdateMarket(ctx context.Context, market *model.Market) error
}

// BetStore persists Bet records and the two ledger indexes: the unordered
// per-(owner, market) active set and the per-market list of every bet.
type BetStore interface {
	// InsertBet appends a bet, assigns its id (monotonic from 1) and adds it
	// to the market's all-bets index.
	InsertBet(ctx context.Context, bet *model.Bet) error

	// GetBet retrieves a bet by id (model.ErrBetNotFound if unknown).
	GetBet(ctx context.Context, id uint64) (*model.Bet, error)

	// SetBetStatus overwrites a bet's status. Legality is the caller's job.
	SetBetStatus(ctx context.Context, id uint64, status model.BetStatus) error

	// AddActiveBet adds id to the (owner, market) active set.
	AddActiveBet(ctx context.Context, owner, marketID string, id uint64) error

	// RemoveActiveBet removes id from the (owner, market) active set. The
	// set is unordered; removal is O(1).
	RemoveActiveBet(ctx context.Context, owner, marketID string, id uint64) error

	// ActiveBetIDs lists the (owner, market) active set in no particular order.
	ActiveBetIDs(ctx context.Context, owner, marketID string) ([]uint64, error)

	// MarketBetIDs lists every bet ever recorded on a market in id order.
	MarketBetIDs(ctx context.Context, marketID string) ([]uint64, error)
}

// Store is the full persistence interface.
type Store interface {
	MarketStore
	BetStore
}

// UpdateReader is implemented by stores whose GetMarket may serve a cached
// copy. GetMarketForUpdate always reads the source of truth and must be
// used for a read that is followed by UpdateMarket.
type UpdateReader interface {
	GetMarketForUpdate(ctx context.Context, id string) (*model.Market, error)
}

// GetMarketForUpdate reads a market for a read-modify-write cycle,
// bypassing any cache in front of s.
func GetMarketForUpdate(ctx context.Context, s MarketStore, id string) (*model.Market, error) {
	if u, ok := s.(UpdateReader); ok {
		return u.GetMarketForUpdate(ctx, id)
	}
	return s.GetMarket(ctx, id)
}
