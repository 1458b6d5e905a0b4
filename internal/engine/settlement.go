package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/cpmm"
	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/metrics"
	"github.com/oddspool/market-engine/internal/model"
)

// Settle closes a market with winner as the winning option once the oracle
// has approved that outcome and the settlement deadline has passed.
//
// The winning pool is fixed here: the potential return of one bet the size
// of all active winning stakes, priced on the final curve. Claims later pay
// it out pro rata by stake.
func (e *Engine) Settle(ctx context.Context, marketID string, winner int) error {
	var settled *model.Market
	err := e.withMarket(ctx, marketID, func(m *model.Market) error {
		if m.Closed() {
			return fmt.Errorf("%w: %s already closed", model.ErrMarketClosed, m.ID)
		}
		if err := m.CheckOption(winner); err != nil {
			return err
		}
		now := e.now()
		if now.Before(m.SettlementDeadline) {
			return fmt.Errorf("%w: deadline %s", model.ErrDeadlineNotReached, m.SettlementDeadline)
		}
		out, err := e.oracle.ApprovalAndWinner(ctx, m.EventID)
		if err != nil {
			return err
		}
		if !out.Approved {
			return fmt.Errorf("%w: event %s", model.ErrNotApproved, m.EventID)
		}
		if !out.Confirms(winner) {
			return fmt.Errorf("%w: oracle reports %d, got %d", model.ErrWinnerMismatch, out.Winner, winner)
		}

		stake, err := e.activeStake(ctx, m.ID, func(b *model.Bet) bool { return b.OptionIndex == winner })
		if err != nil {
			return err
		}
		if m.TotalLiquidity.IsZero() && stake.IsZero() {
			return fmt.Errorf("%w: %s", model.ErrNothingToSettle, m.ID)
		}
		pool, err := e.winningPool(m, winner, stake)
		if err != nil {
			return err
		}

		next := m.Clone()
		next.Settled = true
		next.WinningOptionIndex = winner
		next.WinningStake = stake
		next.WinningPool = pool
		if err := e.commit(ctx, next, nil); err != nil {
			return err
		}
		settled = next
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("market settled",
		"market_id", marketID,
		"winner", winner,
		"winning_stake", settled.WinningStake.Dec(),
		"winning_pool", settled.WinningPool.Dec(),
	)
	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.ActiveMarkets.Dec()
	e.archive(ctx, settled)
	return nil
}

// winningPool prices the aggregate winning stake. When the curve has no
// liquidity left to price against, winners get their stakes back.
func (e *Engine) winningPool(m *model.Market, winner int, stake uint256.Int) (uint256.Int, error) {
	if stake.IsZero() {
		return uint256.Int{}, nil
	}
	q, err := cpmm.QuoteBet(m, winner, stake, e.PlatformFee())
	if errors.Is(err, fixed.ErrDivisionByZero) {
		return stake, nil
	}
	if err != nil {
		return uint256.Int{}, err
	}
	return q.PotentialReturn, nil
}

// activeStake sums the amounts of a market's Active bets matching keep.
func (e *Engine) activeStake(ctx context.Context, marketID string, keep func(*model.Bet) bool) (uint256.Int, error) {
	bets, err := e.ledger.MarketBets(ctx, marketID)
	if err != nil {
		return uint256.Int{}, err
	}
	var total uint256.Int
	for _, b := range bets {
		if b.Status != model.BetActive || !keep(b) {
			continue
		}
		if total, err = fixed.Add(total, b.Amount); err != nil {
			return uint256.Int{}, err
		}
	}
	return total, nil
}

// Cancel closes a market without a winner. Every active bet becomes
// refundable through ClaimWinnings.
func (e *Engine) Cancel(ctx context.Context, marketID string) error {
	var canceled *model.Market
	err := e.withMarket(ctx, marketID, func(m *model.Market) error {
		if m.Closed() {
			return fmt.Errorf("%w: %s already closed", model.ErrMarketClosed, m.ID)
		}
		stake, err := e.activeStake(ctx, m.ID, func(*model.Bet) bool { return true })
		if err != nil {
			return err
		}

		next := m.Clone()
		next.Canceled = true
		next.WinningStake = stake
		next.WinningPool = stake
		if err := e.commit(ctx, next, nil); err != nil {
			return err
		}
		canceled = next
		return nil
	})
	if err != nil {
		return err
	}

	e.logger.Info("market canceled", "market_id", marketID, "refundable", canceled.WinningPool.Dec())
	metrics.SettlementsTotal.WithLabelValues("canceled").Inc()
	metrics.ActiveMarkets.Dec()
	e.archive(ctx, canceled)
	return nil
}

// ClaimWinnings closes all of the claimant's active bets on a closed
// market and pays what they are owed: a pro-rata share of the winning pool
// for winning bets, the stake for bets on a canceled market, nothing for
// losing bets.
func (e *Engine) ClaimWinnings(ctx context.Context, marketID, claimant string) (uint256.Int, error) {
	var payout uint256.Int
	err := e.withMarket(ctx, marketID, func(m *model.Market) error {
		var err error
		payout, err = e.claim(ctx, m, claimant)
		return err
	})
	return payout, err
}

func (e *Engine) claim(ctx context.Context, m *model.Market, claimant string) (uint256.Int, error) {
	if !m.Closed() {
		return uint256.Int{}, fmt.Errorf("%w: %s", model.ErrMarketNotClosed, m.ID)
	}
	bets, err := e.ledger.ActiveBets(ctx, claimant, m.ID)
	if err != nil {
		return uint256.Int{}, err
	}
	if len(bets) == 0 {
		return uint256.Int{}, fmt.Errorf("%w: %s has no open bets on %s", model.ErrNothingToClaim, claimant, m.ID)
	}

	var payout uint256.Int
	statuses := make([]model.BetStatus, len(bets))
	shares := make([]uint256.Int, len(bets))
	for i, b := range bets {
		var share uint256.Int
		switch {
		case m.Canceled:
			share, statuses[i] = b.Amount, model.BetRefunded
		case b.OptionIndex == m.WinningOptionIndex:
			if share, err = fixed.MulDiv(m.WinningPool, b.Amount, m.WinningStake); err != nil {
				return uint256.Int{}, fmt.Errorf("bet %d share: %w", b.ID, err)
			}
			statuses[i] = model.BetSettledWon
		default:
			statuses[i] = model.BetSettledLost
		}
		shares[i] = share
		if payout, err = fixed.Add(payout, share); err != nil {
			return uint256.Int{}, err
		}
	}

	next := m.Clone()
	if next.ClaimedPayout, err = fixed.Add(next.ClaimedPayout, payout); err != nil {
		return uint256.Int{}, err
	}
	if next.ClaimedPayout.Gt(&next.WinningPool) {
		return uint256.Int{}, fmt.Errorf("%w: claimed %s exceeds pool %s", model.ErrInvariant,
			next.ClaimedPayout.Dec(), next.WinningPool.Dec())
	}

	var undo func(context.Context) error
	if !payout.IsZero() {
		if err := e.vault.Withdraw(ctx, m.ID, claimant, payout); err != nil {
			return uint256.Int{}, err
		}
		undo = func(ctx context.Context) error {
			return e.vault.Deposit(ctx, claimant, m.ID, payout)
		}
	}
	if err := e.commit(ctx, next, undo); err != nil {
		return uint256.Int{}, err
	}
	for i, b := range bets {
		if err := e.ledger.UpdateBetStatus(ctx, b.ID, statuses[i]); err != nil {
			e.unwindClaim(ctx, m, claimant, bets[:i+1], statuses, shares, payout)
			return uint256.Int{}, err
		}
		metrics.ClaimsTotal.WithLabelValues(statuses[i].String()).Inc()
	}

	e.logger.Info("winnings claimed",
		"market_id", m.ID,
		"claimant", claimant,
		"bets", len(bets),
		"payout", payout.Dec(),
	)
	return payout, nil
}

// unwindClaim keeps what was paid for the bets that were closed and moves
// the rest of the payout back into the pool. tried are the bets whose
// status update was attempted, the last one having failed.
func (e *Engine) unwindClaim(ctx context.Context, m *model.Market, claimant string, tried []*model.Bet,
	statuses []model.BetStatus, shares []uint256.Int, payout uint256.Int) {
	var kept uint256.Int
	for i, b := range tried {
		if i == len(tried)-1 && !e.statusLanded(ctx, b.ID, statuses[i]) {
			break
		}
		kept.Add(&kept, &shares[i])
	}

	prev := m.Clone()
	prev.ClaimedPayout.Add(&prev.ClaimedPayout, &kept)
	refund := fixed.SatSub(payout, kept)

	var undo func(context.Context) error
	if !refund.IsZero() {
		undo = func(ctx context.Context) error {
			return e.vault.Deposit(ctx, claimant, m.ID, refund)
		}
	}
	e.rollback(ctx, prev, undo)
	e.logger.Warn("claim unwound",
		"market_id", m.ID,
		"claimant", claimant,
		"kept", kept.Dec(),
		"refunded", refund.Dec(),
	)
}
