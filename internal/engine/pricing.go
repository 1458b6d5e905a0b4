package engine

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/cpmm"
	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/metrics"
	"github.com/oddspool/market-engine/internal/model"
)

// BetRequest is a bet to place.
type BetRequest struct {
	MarketID string
	Owner    string
	Option   int
	Amount   uint256.Int
	// MinOdds is the lowest acceptable locked odds; zero accepts any.
	MinOdds uint256.Int
}

func allOdds(m *model.Market) ([]uint256.Int, error) {
	if err := cpmm.RequireBinary(m); err != nil {
		return nil, err
	}
	return cpmm.AllOdds(m)
}

// GetOdds returns the current odds of one option.
func (e *Engine) GetOdds(ctx context.Context, marketID string, option int) (uint256.Int, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return uint256.Int{}, err
	}
	if err := cpmm.RequireBinary(m); err != nil {
		return uint256.Int{}, err
	}
	return cpmm.Odds(m, option)
}

// GetAllOdds returns the current odds of every option.
func (e *Engine) GetAllOdds(ctx context.Context, marketID string) ([]uint256.Int, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return allOdds(m)
}

// CalculatePotentialReturn previews a bet without placing it. The quote is
// exactly what PlaceBet would lock in against the same market state.
func (e *Engine) CalculatePotentialReturn(ctx context.Context, marketID string, option int, amount uint256.Int) (*cpmm.Quote, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	return cpmm.QuoteBet(m, option, amount, e.PlatformFee())
}

// PlaceBet prices a bet, takes the stake from the owner and records an
// Active bet at the quoted odds.
func (e *Engine) PlaceBet(ctx context.Context, req BetRequest) (*model.Bet, error) {
	start := time.Now()
	label := strconv.Itoa(req.Option)

	var bet *model.Bet
	err := e.withMarket(ctx, req.MarketID, func(m *model.Market) error {
		var err error
		bet, err = e.placeBet(ctx, m, req)
		return err
	})
	if err != nil {
		metrics.BetRejections.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	metrics.BetsTotal.WithLabelValues(label).Inc()
	metrics.BetLatency.WithLabelValues(label).Observe(time.Since(start).Seconds())
	metrics.MarketVolume.WithLabelValues(req.MarketID, label).Add(bet.Amount.Float64())
	return bet, nil
}

func (e *Engine) placeBet(ctx context.Context, m *model.Market, req BetRequest) (*model.Bet, error) {
	if err := requireOpen(m); err != nil {
		return nil, err
	}
	if err := cpmm.RequireBinary(m); err != nil {
		return nil, err
	}
	if err := m.CheckOption(req.Option); err != nil {
		return nil, err
	}
	if req.Amount.IsZero() {
		return nil, model.ErrZeroAmount
	}
	now := e.now()
	if err := e.requireWindow(ctx, m, now); err != nil {
		return nil, err
	}
	if err := e.checkLimits(ctx, req); err != nil {
		return nil, err
	}

	q, err := cpmm.QuoteBet(m, req.Option, req.Amount, e.PlatformFee())
	if err != nil {
		return nil, err
	}
	if q.LockedOdds.Lt(&req.MinOdds) {
		return nil, fmt.Errorf("%w: locked odds %s below minimum %s",
			model.ErrSlippageExceeded, q.LockedOdds.Dec(), req.MinOdds.Dec())
	}

	next := m.Clone()
	if next.TotalBets[req.Option], err = fixed.Add(next.TotalBets[req.Option], req.Amount); err != nil {
		return nil, err
	}
	if next.TotalFees, err = fixed.Add(next.TotalFees, q.Fee); err != nil {
		return nil, err
	}
	next.CurrentLiquidity[0] = q.NewLiquidity[0]
	next.CurrentLiquidity[1] = q.NewLiquidity[1]
	if err := next.RecomputeTotal(); err != nil {
		return nil, err
	}

	if err := e.vault.Deposit(ctx, req.Owner, m.ID, req.Amount); err != nil {
		return nil, err
	}
	refund := func(ctx context.Context) error {
		return e.vault.Withdraw(ctx, m.ID, req.Owner, req.Amount)
	}
	if err := e.commit(ctx, next, refund); err != nil {
		return nil, err
	}

	id, err := e.ledger.RecordBet(ctx, req.Owner, m.ID, req.Option, req.Amount, q.PotentialReturn, q.LockedOdds, now)
	if err != nil {
		// The pool must never price an unrecorded bet.
		e.rollback(ctx, m, refund)
		return nil, err
	}

	e.logger.Info("bet placed",
		"market_id", m.ID,
		"bet_id", id,
		"owner", req.Owner,
		"option", req.Option,
		"amount", req.Amount.Dec(),
		"effective_amount", q.EffectiveAmount.Dec(),
		"potential_payout", q.PotentialReturn.Dec(),
		"locked_odds", q.LockedOdds.Dec(),
	)
	e.publish(next)

	return &model.Bet{
		ID:              id,
		Owner:           req.Owner,
		MarketID:        m.ID,
		OptionIndex:     req.Option,
		Amount:          req.Amount,
		PotentialPayout: q.PotentialReturn,
		LockedOdds:      q.LockedOdds,
		CreatedAt:       now,
		Status:          model.BetActive,
	}, nil
}

func (e *Engine) checkLimits(ctx context.Context, req BetRequest) error {
	if e.limiter == nil {
		return nil
	}
	open, err := e.ledger.ActiveBets(ctx, req.Owner, req.MarketID)
	if err != nil {
		return err
	}
	stakes := make([]uint256.Int, len(open))
	for i, b := range open {
		stakes[i] = b.Amount
	}
	return e.limiter.CheckLimit(req.Amount, stakes)
}

// QuoteCashout values an early exit of bet id at the current market state.
func (e *Engine) QuoteCashout(ctx context.Context, betID uint64) (*cpmm.Cashout, error) {
	b, err := e.ledger.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	m, err := e.store.GetMarket(ctx, b.MarketID)
	if err != nil {
		return nil, err
	}
	return cpmm.SimulateCashout(m, b, e.EarlyExitFee())
}

// EarlyExit closes an active bet before settlement and pays its cashout
// value to the owner.
func (e *Engine) EarlyExit(ctx context.Context, betID uint64, caller string) (*cpmm.Cashout, error) {
	b, err := e.ledger.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}

	var c *cpmm.Cashout
	err = e.withMarket(ctx, b.MarketID, func(m *model.Market) error {
		var err error
		c, err = e.earlyExit(ctx, m, betID, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.CashoutsTotal.Inc()
	return c, nil
}

func (e *Engine) earlyExit(ctx context.Context, m *model.Market, betID uint64, caller string) (*cpmm.Cashout, error) {
	// Re-read under the lock; the status may have moved since.
	b, err := e.ledger.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}
	if b.Owner != caller {
		return nil, fmt.Errorf("%w: bet %d", model.ErrNotBetOwner, betID)
	}
	if b.Status != model.BetActive {
		return nil, fmt.Errorf("%w: bet %d is %s", model.ErrBetNotActive, betID, b.Status)
	}
	if err := cpmm.RequireBinary(m); err != nil {
		return nil, err
	}
	if err := requireOpen(m); err != nil {
		return nil, err
	}
	if err := e.requireWindow(ctx, m, e.now()); err != nil {
		return nil, err
	}

	c, err := cpmm.SimulateCashout(m, b, e.EarlyExitFee())
	if err != nil {
		return nil, err
	}

	next := m.Clone()
	next.CurrentLiquidity[0] = c.NewLiquidity[0]
	next.CurrentLiquidity[1] = c.NewLiquidity[1]
	if next.TotalFees, err = fixed.Add(next.TotalFees, c.Fee); err != nil {
		return nil, err
	}
	if err := next.RecomputeTotal(); err != nil {
		return nil, err
	}

	var undo func(context.Context) error
	if !c.Value.IsZero() {
		if err := e.vault.Withdraw(ctx, m.ID, caller, c.Value); err != nil {
			return nil, err
		}
		undo = func(ctx context.Context) error {
			return e.vault.Deposit(ctx, caller, m.ID, c.Value)
		}
	}
	if err := e.commit(ctx, next, undo); err != nil {
		return nil, err
	}
	if err := e.ledger.UpdateBetStatus(ctx, b.ID, model.BetCashedOut); err != nil {
		// A bet left Active must not keep its payout, or it could exit twice.
		if !e.statusLanded(ctx, b.ID, model.BetCashedOut) {
			e.rollback(ctx, m, undo)
		}
		return nil, err
	}

	e.logger.Info("bet cashed out",
		"market_id", m.ID,
		"bet_id", b.ID,
		"owner", caller,
		"value", c.Value.Dec(),
		"fee", c.Fee.Dec(),
	)
	e.publish(next)
	return c, nil
}
