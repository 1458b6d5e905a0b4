package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/limits"
	"github.com/oddspool/market-engine/internal/lock"
	"github.com/oddspool/market-engine/internal/model"
	"github.com/oddspool/market-engine/internal/oracle"
)

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidMarket),
		errors.Is(err, model.ErrBetNotFound),
		errors.Is(err, oracle.ErrUnknownEvent):
		return http.StatusNotFound

	case errors.Is(err, model.ErrInvalidOption),
		errors.Is(err, model.ErrZeroAmount),
		errors.Is(err, model.ErrLiquidityTooSmall),
		errors.Is(err, model.ErrNotBinaryMarket),
		errors.Is(err, model.ErrFeeTooHigh):
		return http.StatusBadRequest

	case errors.Is(err, model.ErrNotBetOwner),
		errors.Is(err, model.ErrNotProvider):
		return http.StatusForbidden

	case errors.Is(err, model.ErrInsufficientBalance):
		return http.StatusPaymentRequired

	// The bet would drain an option or overflow the curve.
	case errors.Is(err, fixed.ErrDivisionByZero),
		errors.Is(err, fixed.ErrOverflow):
		return http.StatusUnprocessableEntity

	case errors.Is(err, model.ErrMarketExists),
		errors.Is(err, model.ErrMarketClosed),
		errors.Is(err, model.ErrMarketNotClosed),
		errors.Is(err, model.ErrSlippageExceeded),
		errors.Is(err, model.ErrInsufficientPoolBalance),
		errors.Is(err, model.ErrBetNotActive),
		errors.Is(err, model.ErrWindowClosed),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrNotApproved),
		errors.Is(err, model.ErrWinnerMismatch),
		errors.Is(err, model.ErrDeadlineNotReached),
		errors.Is(err, model.ErrNothingToSettle),
		errors.Is(err, model.ErrNothingToClaim),
		errors.Is(err, limits.ErrBetLimitExceeded),
		errors.Is(err, limits.ErrOpenStakeLimitExceeded),
		errors.Is(err, lock.ErrLockHeld):
		return http.StatusConflict

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
