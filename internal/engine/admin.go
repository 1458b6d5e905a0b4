package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/metrics"
	"github.com/oddspool/market-engine/internal/model"
)

// MarketParams describes a market to create. When InitialLiquidity is
// non-zero it is deposited by Provider right after creation.
type MarketParams struct {
	EventID            string
	Options            []string
	SettlementDeadline time.Time
	InitialLiquidity   uint256.Int
	Provider           string
}

// CreateMarket registers a market for an event the oracle knows about.
func (e *Engine) CreateMarket(ctx context.Context, p MarketParams) (*model.Market, error) {
	if p.EventID == "" {
		return nil, fmt.Errorf("%w: empty event id", model.ErrInvalidMarket)
	}
	if len(p.Options) < 2 {
		return nil, fmt.Errorf("%w: %d options", model.ErrInvalidMarket, len(p.Options))
	}
	if p.SettlementDeadline.IsZero() {
		return nil, fmt.Errorf("%w: settlement deadline required", model.ErrInvalidMarket)
	}
	if !p.InitialLiquidity.IsZero() && p.Provider == "" {
		return nil, fmt.Errorf("%w: initial liquidity without provider", model.ErrInvalidMarket)
	}
	if _, err := e.oracle.BettingWindow(ctx, p.EventID); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidMarket, err)
	}

	m := model.NewMarket(uuid.NewString(), p.EventID, p.Options, p.SettlementDeadline, e.now())
	if err := e.store.CreateMarket(ctx, m); err != nil {
		return nil, err
	}
	metrics.ActiveMarkets.Inc()
	e.logger.Info("market created", "market_id", m.ID, "event_id", m.EventID, "options", len(p.Options))

	if p.InitialLiquidity.IsZero() {
		return m, nil
	}
	if err := e.AddLiquidity(ctx, m.ID, p.Provider, p.InitialLiquidity); err != nil {
		return m, fmt.Errorf("market %s created, initial liquidity failed: %w", m.ID, err)
	}
	return e.store.GetMarket(ctx, m.ID)
}

// GetMarket returns a snapshot of a market.
func (e *Engine) GetMarket(ctx context.Context, marketID string) (*model.Market, error) {
	return e.store.GetMarket(ctx, marketID)
}

// ListMarkets returns every market, newest first.
func (e *Engine) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return e.store.ListMarkets(ctx)
}

// SetFees replaces both fees. Each must be at most the configured maximum.
func (e *Engine) SetFees(platformBps, earlyExitBps uint64) error {
	platform, exit := fixed.New(platformBps), fixed.New(earlyExitBps)
	if platform.Gt(&e.maxFee) {
		return fmt.Errorf("%w: platform fee %d > %s bps", model.ErrFeeTooHigh, platformBps, e.maxFee.Dec())
	}
	if exit.Gt(&e.maxFee) {
		return fmt.Errorf("%w: early exit fee %d > %s bps", model.ErrFeeTooHigh, earlyExitBps, e.maxFee.Dec())
	}

	e.feeMu.Lock()
	e.platformFee, e.exitFee = platform, exit
	e.feeMu.Unlock()

	e.logger.Info("fees updated", "platform_fee_bps", platformBps, "early_exit_fee_bps", earlyExitBps)
	return nil
}

// Pause stops bets and early exits on a market until Unpause.
func (e *Engine) Pause(ctx context.Context, marketID string) error {
	return e.setPaused(ctx, marketID, true)
}

// Unpause reopens a paused market.
func (e *Engine) Unpause(ctx context.Context, marketID string) error {
	return e.setPaused(ctx, marketID, false)
}

func (e *Engine) setPaused(ctx context.Context, marketID string, paused bool) error {
	return e.withMarket(ctx, marketID, func(m *model.Market) error {
		if m.Closed() {
			return fmt.Errorf("%w: %s", model.ErrMarketClosed, m.ID)
		}
		if m.Paused == paused {
			return nil
		}
		next := m.Clone()
		next.Paused = paused
		if err := e.commit(ctx, next, nil); err != nil {
			return err
		}
		e.logger.Info("market pause changed", "market_id", m.ID, "paused", paused)
		return nil
	})
}
