// Package ledger keeps the lifecycle record of every bet: the append-only
// bet log, the per-(owner, market) active set, and read-only cashout
// valuation of open positions.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/cpmm"
	"github.com/oddspool/market-engine/internal/model"
	"github.com/oddspool/market-engine/internal/store"
)

// FeeSource returns the early-exit fee, in basis points, currently in force.
type FeeSource func() uint256.Int

// CashoutEntry is the current early-exit value of one active bet. Value is
// zero when the bet cannot be cashed out against the market as it stands.
type CashoutEntry struct {
	BetID uint64
	Value uint256.Int
}

// Ledger records bets and their status transitions.
type Ledger struct {
	store   store.Store
	exitFee FeeSource
}

// New creates a ledger over s. exitFee is consulted on every valuation.
func New(s store.Store, exitFee FeeSource) *Ledger {
	return &Ledger{store: s, exitFee: exitFee}
}

// RecordBet stores a new Active bet and indexes it. Only the pricing engine
// calls this, inside the market's critical section.
func (l *Ledger) RecordBet(ctx context.Context, owner, marketID string, option int, amount, payout, odds uint256.Int, now time.Time) (uint64, error) {
	b := &model.Bet{
		Owner:           owner,
		MarketID:        marketID,
		OptionIndex:     option,
		Amount:          amount,
		PotentialPayout: payout,
		LockedOdds:      odds,
		CreatedAt:       now,
		Status:          model.BetActive,
	}
	if err := l.store.InsertBet(ctx, b); err != nil {
		return 0, fmt.Errorf("record bet: %w", err)
	}
	if err := l.store.AddActiveBet(ctx, owner, marketID, b.ID); err != nil {
		return 0, fmt.Errorf("index bet %d: %w", b.ID, err)
	}
	return b.ID, nil
}

// UpdateBetStatus moves a bet to status. Setting the current status again
// is a no-op; any other move must be in the transition table. A bet leaving
// Active is dropped from its owner's active set.
func (l *Ledger) UpdateBetStatus(ctx context.Context, id uint64, status model.BetStatus) error {
	b, err := l.store.GetBet(ctx, id)
	if err != nil {
		return err
	}
	if b.Status == status {
		return nil
	}
	if err := model.CheckTransition(b.Status, status); err != nil {
		return fmt.Errorf("bet %d: %w", id, err)
	}
	if err := l.store.SetBetStatus(ctx, id, status); err != nil {
		return err
	}
	if b.Status == model.BetActive {
		return l.store.RemoveActiveBet(ctx, b.Owner, b.MarketID, id)
	}
	return nil
}

// GetBet returns a copy of bet id.
func (l *Ledger) GetBet(ctx context.Context, id uint64) (*model.Bet, error) {
	return l.store.GetBet(ctx, id)
}

// ActiveBets returns the owner's Active bets on a market in no particular
// order.
func (l *Ledger) ActiveBets(ctx context.Context, owner, marketID string) ([]*model.Bet, error) {
	ids, err := l.store.ActiveBetIDs(ctx, owner, marketID)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, ids)
}

// MarketBets returns every bet ever placed on a market, oldest first.
func (l *Ledger) MarketBets(ctx context.Context, marketID string) ([]*model.Bet, error) {
	ids, err := l.store.MarketBetIDs(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return l.load(ctx, ids)
}

func (l *Ledger) load(ctx context.Context, ids []uint64) ([]*model.Bet, error) {
	bets := make([]*model.Bet, 0, len(ids))
	for _, id := range ids {
		b, err := l.store.GetBet(ctx, id)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, nil
}

// GetActiveBetsWithCashout values each of the owner's active bets against
// one snapshot of the market. Bets the simulator rejects are reported with
// a zero value instead of failing the whole call.
func (l *Ledger) GetActiveBetsWithCashout(ctx context.Context, owner, marketID string) ([]CashoutEntry, error) {
	m, err := l.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	bets, err := l.ActiveBets(ctx, owner, marketID)
	if err != nil {
		return nil, err
	}

	fee := l.exitFee()
	entries := make([]CashoutEntry, len(bets))
	for i, b := range bets {
		entries[i].BetID = b.ID
		if c, err := cpmm.SimulateCashout(m, b, fee); err == nil {
			entries[i].Value = c.Value
		}
	}
	return entries, nil
}
