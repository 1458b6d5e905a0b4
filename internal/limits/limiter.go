// Package limits enforces stake limits on new bets: a cap on any single
// bet and a cap on one owner's open stake in one market.
package limits

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
)

var (
	// ErrBetLimitExceeded is returned when a single bet is larger than the
	// per-bet maximum.
	ErrBetLimitExceeded = errors.New("limits: per-bet limit exceeded")

	// ErrOpenStakeLimitExceeded is returned when a bet would push the
	// owner's open stake in a market beyond the maximum.
	ErrOpenStakeLimitExceeded = errors.New("limits: open stake limit exceeded")
)

// StakeLimiter enforces stake limits. A zero limit is disabled.
type StakeLimiter struct {
	// MaxBet is the largest amount accepted for a single bet.
	MaxBet uint256.Int

	// MaxOpenStake is the largest total amount an owner may hold in
	// active bets on one market.
	MaxOpenStake uint256.Int
}

// NewStakeLimiter creates a limiter with the given per-bet and open-stake
// limits.
func NewStakeLimiter(maxBet, maxOpenStake uint256.Int) *StakeLimiter {
	return &StakeLimiter{MaxBet: maxBet, MaxOpenStake: maxOpenStake}
}

// CheckLimit validates a new bet of amount against the owner's current
// open stake in the market.
func (l *StakeLimiter) CheckLimit(amount uint256.Int, openStakes []uint256.Int) error {
	if !l.MaxBet.IsZero() && amount.Gt(&l.MaxBet) {
		return fmt.Errorf("%w: %s > %s", ErrBetLimitExceeded, amount.Dec(), l.MaxBet.Dec())
	}
	if l.MaxOpenStake.IsZero() {
		return nil
	}

	open, err := fixed.Sum(openStakes)
	if err != nil {
		return err
	}
	total, err := fixed.Add(open, amount)
	if err != nil {
		return err
	}
	if total.Gt(&l.MaxOpenStake) {
		return fmt.Errorf("%w: %s > %s", ErrOpenStakeLimitExceeded, total.Dec(), l.MaxOpenStake.Dec())
	}
	return nil
}
