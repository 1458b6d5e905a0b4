package engine

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

// AddLiquidity deposits amount into a market, split evenly across its
// options. The odd remainder goes to option 0. Both initial and current
// liquidity grow by the same increment, so a deposit creates no reserve.
// Every option must hold liquidity afterwards.
func (e *Engine) AddLiquidity(ctx context.Context, marketID, provider string, amount uint256.Int) error {
	return e.withMarket(ctx, marketID, func(m *model.Market) error {
		if !m.Initialized {
			return fmt.Errorf("%w: %s", model.ErrInvalidMarket, m.ID)
		}
		if m.Closed() {
			return fmt.Errorf("%w: %s", model.ErrMarketClosed, m.ID)
		}
		if amount.IsZero() {
			return model.ErrZeroAmount
		}

		next, err := withLiquidity(m, provider, amount)
		if err != nil {
			return err
		}

		if err := e.vault.Deposit(ctx, provider, m.ID, amount); err != nil {
			return err
		}
		if err := e.commit(ctx, next, func(ctx context.Context) error {
			return e.vault.Withdraw(ctx, m.ID, provider, amount)
		}); err != nil {
			return err
		}

		e.logger.Info("liquidity added",
			"market_id", m.ID,
			"provider", provider,
			"amount", amount.Dec(),
			"total_liquidity", next.TotalLiquidity.Dec(),
		)
		e.publish(next)
		return nil
	})
}

// withLiquidity returns a copy of m with amount added.
func withLiquidity(m *model.Market, provider string, amount uint256.Int) (*model.Market, error) {
	n := uint256.NewInt(uint64(m.NumOptions()))
	var share, rem uint256.Int
	share.DivMod(&amount, n, &rem)

	next := m.Clone()
	for i := range next.OptionNames {
		inc := share
		if i == 0 {
			inc.Add(&inc, &rem)
		}
		var err error
		if next.InitialLiquidity[i], err = fixed.Add(next.InitialLiquidity[i], inc); err != nil {
			return nil, err
		}
		if next.CurrentLiquidity[i], err = fixed.Add(next.CurrentLiquidity[i], inc); err != nil {
			return nil, err
		}
	}
	for i := range next.CurrentLiquidity {
		if next.CurrentLiquidity[i].IsZero() {
			return nil, fmt.Errorf("%w: %s split over %d options leaves option %d empty",
				model.ErrLiquidityTooSmall, amount.Dec(), m.NumOptions(), i)
		}
	}
	if err := next.AddProvider(provider, amount); err != nil {
		return nil, err
	}
	if err := next.RecomputeTotal(); err != nil {
		return nil, err
	}
	return next, nil
}

// RemoveLiquidity pays a provider out of a closed market in one
// withdrawal: its share of what the pool holds beyond unclaimed payouts and
// fees, plus its share of the fees. Shares are by contribution.
func (e *Engine) RemoveLiquidity(ctx context.Context, marketID, provider string) (uint256.Int, error) {
	var payout uint256.Int
	err := e.withMarket(ctx, marketID, func(m *model.Market) error {
		if !m.Closed() {
			return fmt.Errorf("%w: %s", model.ErrMarketNotClosed, m.ID)
		}
		c, ok := m.Contribution(provider)
		if !ok {
			return fmt.Errorf("%w: %s on %s", model.ErrNotProvider, provider, m.ID)
		}
		if c.IsZero() {
			return fmt.Errorf("%w: %s already withdrew from %s", model.ErrNothingToClaim, provider, m.ID)
		}

		balance, err := e.vault.PoolBalance(ctx, m.ID)
		if err != nil {
			return err
		}
		remaining := fixed.SatSub(fixed.SatSub(balance, m.Outstanding()), m.TotalFees)
		providerShare, err := fixed.MulDiv(remaining, c, m.TotalContributed)
		if err != nil {
			return err
		}
		feeShare, err := fixed.MulDiv(m.TotalFees, c, m.TotalContributed)
		if err != nil {
			return err
		}
		if payout, err = fixed.Add(providerShare, feeShare); err != nil {
			return err
		}

		next := m.Clone()
		next.TotalContributed = fixed.SatSub(next.TotalContributed, c)
		next.TotalFees = fixed.SatSub(next.TotalFees, feeShare)
		next.ClearContribution(provider)

		var undo func(context.Context) error
		if !payout.IsZero() {
			if err := e.vault.Withdraw(ctx, m.ID, provider, payout); err != nil {
				return err
			}
			undo = func(ctx context.Context) error {
				return e.vault.Deposit(ctx, provider, m.ID, payout)
			}
		}
		if err := e.commit(ctx, next, undo); err != nil {
			return err
		}

		e.logger.Info("liquidity removed",
			"market_id", m.ID,
			"provider", provider,
			"provider_share", providerShare.Dec(),
			"fee_share", feeShare.Dec(),
		)
		return nil
	})
	if err != nil {
		return uint256.Int{}, err
	}
	return payout, nil
}
