package model

import "errors"

// Error kinds surfaced by the engine. Callers wrap them with the offending
// value and match with errors.Is.
var (
	ErrInvalidMarket           = errors.New("invalid market")
	ErrMarketExists            = errors.New("market already exists")
	ErrMarketClosed            = errors.New("market closed")
	ErrMarketNotClosed         = errors.New("market not settled or canceled")
	ErrInvalidOption           = errors.New("invalid option")
	ErrZeroAmount              = errors.New("amount must be positive")
	ErrLiquidityTooSmall       = errors.New("deposit leaves an option without liquidity")
	ErrSlippageExceeded        = errors.New("slippage exceeded")
	ErrInsufficientPoolBalance = errors.New("insufficient pool balance")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrBetNotFound             = errors.New("bet not found")
	ErrNotBetOwner             = errors.New("not bet owner")
	ErrBetNotActive            = errors.New("bet not active")
	ErrNotBinaryMarket         = errors.New("market is not binary")
	ErrWindowClosed            = errors.New("betting window closed")
	ErrInvalidTransition       = errors.New("invalid bet status transition")
	ErrNotApproved             = errors.New("outcome not approved")
	ErrWinnerMismatch          = errors.New("winning option does not match oracle")
	ErrDeadlineNotReached      = errors.New("settlement deadline not reached")
	ErrNothingToSettle         = errors.New("no liquidity and no winning stake")
	ErrNothingToClaim          = errors.New("nothing to claim")
	ErrNotProvider             = errors.New("not a liquidity provider")
	ErrFeeTooHigh              = errors.New("fee exceeds maximum")
	ErrInvariant               = errors.New("market invariant violated")
)
