package api

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/oddspool/market-engine/internal/cpmm"
	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/ledger"
	"github.com/oddspool/market-engine/internal/model"
)

// Amounts cross the wire as base-unit integers in decimal strings. Odds
// and fee rates are rendered as decimals (1.85 = 18500 bps).

// --- Requests ---

// CreateMarketRequest is the JSON body for POST /markets.
type CreateMarketRequest struct {
	EventID            string    `json:"event_id"`
	Options            []string  `json:"options"`
	SettlementDeadline time.Time `json:"settlement_deadline"`
	InitialLiquidity   string    `json:"initial_liquidity,omitempty"`
	Provider           string    `json:"provider,omitempty"`
}

// PlaceBetRequest is the JSON body for POST /markets/{marketID}/bets.
type PlaceBetRequest struct {
	Owner   string          `json:"owner"`
	Option  int             `json:"option"`
	Amount  string          `json:"amount"`
	MinOdds decimal.Decimal `json:"min_odds"` // 0 accepts any odds
}

// ExitRequest is the JSON body for POST /bets/{betID}/exit.
type ExitRequest struct {
	Caller string `json:"caller"`
}

// LiquidityRequest is the JSON body for POST /markets/{marketID}/liquidity.
type LiquidityRequest struct {
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}

// SettleRequest is the JSON body for POST /markets/{marketID}/settle.
type SettleRequest struct {
	WinningOption int `json:"winning_option"`
}

// ClaimRequest is the JSON body for POST /markets/{marketID}/claim.
type ClaimRequest struct {
	Claimant string `json:"claimant"`
}

// FeesRequest is the JSON body for PUT /admin/fees.
type FeesRequest struct {
	PlatformFeeBps  uint64 `json:"platform_fee_bps"`
	EarlyExitFeeBps uint64 `json:"early_exit_fee_bps"`
}

// --- Responses ---

// MarketResponse is a market snapshot with its current odds.
type MarketResponse struct {
	ID                 string             `json:"id"`
	EventID            string             `json:"event_id"`
	Status             string             `json:"status"`
	Options            []string           `json:"options"`
	SettlementDeadline time.Time          `json:"settlement_deadline"`
	CreatedAt          time.Time          `json:"created_at"`
	WinningOption      *int               `json:"winning_option,omitempty"`
	InitialLiquidity   []string           `json:"initial_liquidity"`
	CurrentLiquidity   []string           `json:"current_liquidity"`
	TotalBets          []string           `json:"total_bets"`
	TotalLiquidity     string             `json:"total_liquidity"`
	TotalFees          string             `json:"total_fees"`
	Odds               []decimal.Decimal  `json:"odds"`
	Providers          []ProviderResponse `json:"providers"`
	TotalContributed   string             `json:"total_contributed"`
	WinningStake       string             `json:"winning_stake"`
	WinningPool        string             `json:"winning_pool"`
	ClaimedPayout      string             `json:"claimed_payout"`
}

// ProviderResponse is one liquidity provider's contribution.
type ProviderResponse struct {
	Address      string `json:"address"`
	Contribution string `json:"contribution"`
}

// BetResponse is a ledger entry.
type BetResponse struct {
	ID              uint64          `json:"id"`
	Owner           string          `json:"owner"`
	MarketID        string          `json:"market_id"`
	Option          int             `json:"option"`
	Amount          string          `json:"amount"`
	PotentialPayout string          `json:"potential_payout"`
	LockedOdds      decimal.Decimal `json:"locked_odds"`
	CreatedAt       time.Time       `json:"created_at"`
	Status          model.BetStatus `json:"status"`
}

// QuoteResponse previews a bet without placing it.
type QuoteResponse struct {
	Option          int             `json:"option"`
	Amount          string          `json:"amount"`
	EffectiveAmount string          `json:"effective_amount"`
	RawReturn       string          `json:"raw_return"`
	Fee             string          `json:"fee"`
	PotentialReturn string          `json:"potential_return"`
	LockedOdds      decimal.Decimal `json:"locked_odds"`
	NewLiquidity    []string        `json:"new_liquidity"`
}

// CashoutResponse describes an early exit, quoted or executed.
type CashoutResponse struct {
	BetID      uint64 `json:"bet_id"`
	Profit     string `json:"profit"`
	RawCashout string `json:"raw_cashout"`
	Fee        string `json:"fee"`
	Value      string `json:"value"`
}

// CashoutEntryResponse is one row of GET /markets/{marketID}/cashout/{owner}.
type CashoutEntryResponse struct {
	BetID uint64 `json:"bet_id"`
	Value string `json:"value"`
}

// PayoutResponse reports an amount paid by a claim or a liquidity removal.
type PayoutResponse struct {
	MarketID string `json:"market_id"`
	Account  string `json:"account"`
	Amount   string `json:"amount"`
}

// FeesResponse reports the engine's fee rates.
type FeesResponse struct {
	PlatformFeeBps  string          `json:"platform_fee_bps"`
	EarlyExitFeeBps string          `json:"early_exit_fee_bps"`
	PlatformFee     decimal.Decimal `json:"platform_fee"`
	EarlyExitFee    decimal.Decimal `json:"early_exit_fee"`
}

// BalanceResponse reports a vault account balance.
type BalanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// --- Conversions ---

// ratio renders a PRECISION-scaled value as a decimal.
func ratio(x uint256.Int) decimal.Decimal {
	return decimal.NewFromBigInt(x.ToBig(), -4)
}

// parseRatio reads a decimal such as "1.85" into basis points. More than
// four fractional digits are rejected rather than rounded.
func parseRatio(d decimal.Decimal) (uint256.Int, error) {
	if d.IsNegative() {
		return uint256.Int{}, fmt.Errorf("must not be negative, got %s", d)
	}
	scaled := d.Shift(4)
	if !scaled.IsInteger() {
		return uint256.Int{}, fmt.Errorf("at most 4 decimal places, got %s", d)
	}
	v, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return uint256.Int{}, fmt.Errorf("%w: %s", fixed.ErrOverflow, d)
	}
	return *v, nil
}

// parseAmount reads a required base-unit amount. Zero is left to the engine.
func parseAmount(field, s string) (uint256.Int, error) {
	if s == "" {
		return uint256.Int{}, fmt.Errorf("%s is required", field)
	}
	v, err := fixed.Parse(s)
	if err != nil {
		return uint256.Int{}, fmt.Errorf("%s must be a non-negative integer", field)
	}
	return v, nil
}

func decs(xs []uint256.Int) []string {
	out := make([]string, len(xs))
	for i := range xs {
		out[i] = xs[i].Dec()
	}
	return out
}

func ratios(xs []uint256.Int) []decimal.Decimal {
	out := make([]decimal.Decimal, len(xs))
	for i := range xs {
		out[i] = ratio(xs[i])
	}
	return out
}

func marketStatus(m *model.Market) string {
	switch {
	case m.Settled:
		return "settled"
	case m.Canceled:
		return "canceled"
	case m.Paused:
		return "paused"
	case m.TotalLiquidity.IsZero():
		return "unfunded"
	}
	return "open"
}

func newMarketResponse(m *model.Market) MarketResponse {
	resp := MarketResponse{
		ID:                 m.ID,
		EventID:            m.EventID,
		Status:             marketStatus(m),
		Options:            m.OptionNames,
		SettlementDeadline: m.SettlementDeadline,
		CreatedAt:          m.CreatedAt,
		InitialLiquidity:   decs(m.InitialLiquidity),
		CurrentLiquidity:   decs(m.CurrentLiquidity),
		TotalBets:          decs(m.TotalBets),
		TotalLiquidity:     m.TotalLiquidity.Dec(),
		TotalFees:          m.TotalFees.Dec(),
		Providers:          make([]ProviderResponse, 0, len(m.Providers)),
		TotalContributed:   m.TotalContributed.Dec(),
		WinningStake:       m.WinningStake.Dec(),
		WinningPool:        m.WinningPool.Dec(),
		ClaimedPayout:      m.ClaimedPayout.Dec(),
	}
	if m.Settled {
		w := m.WinningOptionIndex
		resp.WinningOption = &w
	}
	// Odds only exist for binary markets with remaining liquidity.
	if odds, err := cpmm.AllOdds(m); err == nil {
		resp.Odds = ratios(odds)
	}
	for _, p := range m.Providers {
		resp.Providers = append(resp.Providers, ProviderResponse{Address: p.Address, Contribution: p.Contribution.Dec()})
	}
	return resp
}

func newBetResponse(b *model.Bet) BetResponse {
	return BetResponse{
		ID:              b.ID,
		Owner:           b.Owner,
		MarketID:        b.MarketID,
		Option:          b.OptionIndex,
		Amount:          b.Amount.Dec(),
		PotentialPayout: b.PotentialPayout.Dec(),
		LockedOdds:      ratio(b.LockedOdds),
		CreatedAt:       b.CreatedAt,
		Status:          b.Status,
	}
}

func newBetResponses(bets []*model.Bet) []BetResponse {
	out := make([]BetResponse, 0, len(bets))
	for _, b := range bets {
		out = append(out, newBetResponse(b))
	}
	return out
}

func newQuoteResponse(q *cpmm.Quote) QuoteResponse {
	return QuoteResponse{
		Option:          q.Option,
		Amount:          q.Amount.Dec(),
		EffectiveAmount: q.EffectiveAmount.Dec(),
		RawReturn:       q.RawReturn.Dec(),
		Fee:             q.Fee.Dec(),
		PotentialReturn: q.PotentialReturn.Dec(),
		LockedOdds:      ratio(q.LockedOdds),
		NewLiquidity:    decs(q.NewLiquidity[:]),
	}
}

func newCashoutResponse(betID uint64, c *cpmm.Cashout) CashoutResponse {
	return CashoutResponse{
		BetID:      betID,
		Profit:     c.Profit.Dec(),
		RawCashout: c.RawCashout.Dec(),
		Fee:        c.Fee.Dec(),
		Value:      c.Value.Dec(),
	}
}

func newCashoutEntries(entries []ledger.CashoutEntry) []CashoutEntryResponse {
	out := make([]CashoutEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, CashoutEntryResponse{BetID: e.BetID, Value: e.Value.Dec()})
	}
	return out
}
