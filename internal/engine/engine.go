// Package engine runs the betting operations of every market: pricing and
// placing bets, early exits, settlement, claims and liquidity provision.
//
// Each mutating operation holds the market's lock for its whole duration,
// runs every check and every computation against one snapshot, and only
// then moves funds and commits. Reads go straight to the store.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/ledger"
	"github.com/oddspool/market-engine/internal/limits"
	"github.com/oddspool/market-engine/internal/lock"
	"github.com/oddspool/market-engine/internal/model"
	"github.com/oddspool/market-engine/internal/oracle"
	"github.com/oddspool/market-engine/internal/store"
	"github.com/oddspool/market-engine/internal/vault"
)

// DefaultMaxFeeBps caps both fees unless Options overrides it.
const DefaultMaxFeeBps = 1000

// Publisher is notified with the new odds of a market after every change
// to its liquidity.
type Publisher interface {
	PublishOdds(marketID string, odds []uint256.Int)
}

// Archiver stores the final ledger of a settled or canceled market.
type Archiver interface {
	ArchiveMarket(ctx context.Context, m *model.Market, bets []*model.Bet) error
}

// Options configures an Engine. Zero values are usable.
type Options struct {
	PlatformFeeBps  uint64
	EarlyExitFeeBps uint64
	MaxFeeBps       uint64

	Limiter   *limits.StakeLimiter
	Publisher Publisher
	Archiver  Archiver
	Now       func() time.Time
	Logger    *slog.Logger
}

// Engine is safe for concurrent use.
type Engine struct {
	store     store.Store
	ledger    *ledger.Ledger
	vault     vault.Vault
	oracle    oracle.Oracle
	locker    lock.Locker
	limiter   *limits.StakeLimiter
	publisher Publisher
	archiver  Archiver
	now       func() time.Time
	logger    *slog.Logger

	feeMu       sync.RWMutex
	platformFee uint256.Int
	exitFee     uint256.Int
	maxFee      uint256.Int
}

// New creates an Engine over its collaborators.
func New(s store.Store, v vault.Vault, o oracle.Oracle, l lock.Locker, opts Options) (*Engine, error) {
	if opts.MaxFeeBps == 0 {
		opts.MaxFeeBps = DefaultMaxFeeBps
	}
	if opts.MaxFeeBps > fixed.Precision {
		return nil, fmt.Errorf("%w: max fee %d bps", model.ErrFeeTooHigh, opts.MaxFeeBps)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	e := &Engine{
		store:     s,
		vault:     v,
		oracle:    o,
		locker:    l,
		limiter:   opts.Limiter,
		publisher: opts.Publisher,
		archiver:  opts.Archiver,
		now:       opts.Now,
		logger:    opts.Logger.With("component", "engine"),
		maxFee:    fixed.New(opts.MaxFeeBps),
	}
	if err := e.SetFees(opts.PlatformFeeBps, opts.EarlyExitFeeBps); err != nil {
		return nil, err
	}
	e.ledger = ledger.New(s, e.EarlyExitFee)
	return e, nil
}

// Ledger exposes the bet ledger for read-only queries.
func (e *Engine) Ledger() *ledger.Ledger { return e.ledger }

// PlatformFee returns the platform fee in basis points.
func (e *Engine) PlatformFee() uint256.Int {
	e.feeMu.RLock()
	defer e.feeMu.RUnlock()
	return e.platformFee
}

// EarlyExitFee returns the early-exit fee in basis points.
func (e *Engine) EarlyExitFee() uint256.Int {
	e.feeMu.RLock()
	defer e.feeMu.RUnlock()
	return e.exitFee
}

// withMarket runs fn with the market's lock held. fn receives a private
// copy of the market read from the source of truth, never from a cache.
func (e *Engine) withMarket(ctx context.Context, marketID string, fn func(m *model.Market) error) error {
	unlock, err := e.locker.Lock(ctx, marketID)
	if err != nil {
		return fmt.Errorf("lock market %s: %w", marketID, err)
	}
	defer unlock()

	m, err := store.GetMarketForUpdate(ctx, e.store, marketID)
	if err != nil {
		return err
	}
	return fn(m)
}

// requireOpen fails unless bets and exits are currently accepted on m.
func requireOpen(m *model.Market) error {
	if !m.Initialized {
		return fmt.Errorf("%w: %s", model.ErrInvalidMarket, m.ID)
	}
	switch {
	case m.Settled:
		return fmt.Errorf("%w: %s is settled", model.ErrMarketClosed, m.ID)
	case m.Canceled:
		return fmt.Errorf("%w: %s is canceled", model.ErrMarketClosed, m.ID)
	case m.Paused:
		return fmt.Errorf("%w: %s is paused", model.ErrMarketClosed, m.ID)
	}
	return nil
}

// requireWindow fails unless the event's betting window contains now.
func (e *Engine) requireWindow(ctx context.Context, m *model.Market, now time.Time) error {
	w, err := e.oracle.BettingWindow(ctx, m.EventID)
	if err != nil {
		return err
	}
	if !w.Contains(now) {
		return fmt.Errorf("%w: %s outside [%s, %s]", model.ErrWindowClosed,
			now.Format(time.RFC3339), w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
	}
	return nil
}

// commit persists next. If that fails, undo moves the funds back; the
// original error is returned either way.
func (e *Engine) commit(ctx context.Context, next *model.Market, undo func(context.Context) error) error {
	err := e.store.UpdateMarket(ctx, next)
	if err == nil {
		return nil
	}
	if undo != nil {
		if uerr := undo(context.WithoutCancel(ctx)); uerr != nil {
			e.logger.Error("compensating transfer failed",
				"market_id", next.ID, "commit_error", err, "error", uerr)
		}
	}
	return fmt.Errorf("commit market %s: %w", next.ID, err)
}

// rollback restores the market to its state before a commit and runs undo
// when a later step of the same operation fails. Errors are logged only;
// the caller returns the original failure.
func (e *Engine) rollback(ctx context.Context, prev *model.Market, undo func(context.Context) error) {
	bg := context.WithoutCancel(ctx)
	if err := e.store.UpdateMarket(bg, prev); err != nil {
		e.logger.Error("market rollback failed", "market_id", prev.ID, "error", err)
	}
	if undo == nil {
		return
	}
	if err := undo(bg); err != nil {
		e.logger.Error("compensating transfer failed", "market_id", prev.ID, "error", err)
	}
}

// statusLanded reports whether bet id already carries status, for a status
// update that returned an error part way through.
func (e *Engine) statusLanded(ctx context.Context, id uint64, status model.BetStatus) bool {
	b, err := e.ledger.GetBet(context.WithoutCancel(ctx), id)
	return err == nil && b.Status == status
}

func (e *Engine) publish(m *model.Market) {
	if e.publisher == nil || !m.IsBinary() {
		return
	}
	odds, err := allOdds(m)
	if err != nil {
		e.logger.Warn("odds unavailable for publish", "market_id", m.ID, "error", err)
		return
	}
	e.publisher.PublishOdds(m.ID, odds)
}

// archive uploads the closed market's ledger. Failures are logged only;
// the market is already committed.
func (e *Engine) archive(ctx context.Context, m *model.Market) {
	if e.archiver == nil {
		return
	}
	bets, err := e.ledger.MarketBets(ctx, m.ID)
	if err == nil {
		err = e.archiver.ArchiveMarket(ctx, m, bets)
	}
	if err != nil {
		e.logger.Warn("archive failed", "market_id", m.ID, "error", err)
		return
	}
	e.logger.Info("market archived", "market_id", m.ID, "bets", len(bets))
}

// rejectReason maps an error to a short metrics label.
func rejectReason(err error) string {
	for _, r := range []struct {
		err   error
		label string
	}{
		{model.ErrInvalidMarket, "invalid_market"},
		{model.ErrMarketClosed, "market_closed"},
		{model.ErrInvalidOption, "invalid_option"},
		{model.ErrZeroAmount, "zero_amount"},
		{model.ErrSlippageExceeded, "slippage"},
		{model.ErrNotBinaryMarket, "not_binary"},
		{model.ErrWindowClosed, "window_closed"},
		{model.ErrInsufficientBalance, "insufficient_balance"},
		{fixed.ErrDivisionByZero, "division_by_zero"},
		{fixed.ErrOverflow, "overflow"},
		{limits.ErrBetLimitExceeded, "bet_limit"},
		{limits.ErrOpenStakeLimitExceeded, "open_stake_limit"},
	} {
		if errors.Is(err, r.err) {
			return r.label
		}
	}
	return "other"
}
