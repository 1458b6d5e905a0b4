// Package cpmm implements the constant-product pricing curve for binary
// betting markets.
//
// The curve constant is always the product of the market's *initial*
// liquidity, K = initial[0] * initial[1]. Bets are priced by moving the
// receiving option's liquidity up and solving other = K / this. Every
// caller (quote preview, bet execution, cashout valuation and execution)
// goes through this package so quoted and realized values cannot diverge.
//
// All functions are pure: they read a *model.Market and return the state it
// should move to, leaving the commit to the caller.
package cpmm

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

// Quote is the outcome of pricing a bet against a market snapshot.
type Quote struct {
	Option          int
	Amount          uint256.Int
	EffectiveAmount uint256.Int // amount added to the receiving option after throttling
	NewLiquidity    [2]uint256.Int
	RawReturn       uint256.Int
	Fee             uint256.Int
	PotentialReturn uint256.Int
	LockedOdds      uint256.Int
}

// Cashout is the outcome of simulating an early exit.
type Cashout struct {
	Option       int
	Profit       uint256.Int
	RawCashout   uint256.Int
	Fee          uint256.Int
	Value        uint256.Int
	SimulatedOwn uint256.Int // liquidity of the bet's option after exit
	SimulatedOpp uint256.Int // liquidity of the opposite option after exit
	NewLiquidity [2]uint256.Int
}

// RequireBinary fails unless the market has exactly two options.
func RequireBinary(m *model.Market) error {
	if !m.IsBinary() {
		return fmt.Errorf("%w: %d options", model.ErrNotBinaryMarket, m.NumOptions())
	}
	return nil
}

// K returns initial[0] * initial[1].
func K(m *model.Market) (uint256.Int, error) {
	if err := RequireBinary(m); err != nil {
		return uint256.Int{}, err
	}
	return fixed.Mul(m.InitialLiquidity[0], m.InitialLiquidity[1])
}

// Odds returns totalRemaining * Precision / current[i], or zero when the
// option holds no liquidity.
func Odds(m *model.Market, i int) (uint256.Int, error) {
	if err := m.CheckOption(i); err != nil {
		return uint256.Int{}, err
	}
	if m.CurrentLiquidity[i].IsZero() {
		return uint256.Int{}, nil
	}
	total, err := m.TotalRemaining()
	if err != nil {
		return uint256.Int{}, err
	}
	return fixed.Ratio(total, m.CurrentLiquidity[i])
}

// AllOdds applies Odds to every option.
func AllOdds(m *model.Market) ([]uint256.Int, error) {
	out := make([]uint256.Int, m.NumOptions())
	for i := range out {
		o, err := Odds(m, i)
		if err != nil {
			return nil, err
		}
		out[i] = o
	}
	return out, nil
}

// effectiveAmount applies the reserve throttle: when the opposite option
// carries more cumulative bets and the receiving option has reserve, the
// amount is scaled by reserve * Precision / |excess|.
func effectiveAmount(m *model.Market, this, other int, amount uint256.Int) (uint256.Int, error) {
	excess, thisAhead := fixed.AbsDiff(m.TotalBets[this], m.TotalBets[other])
	if thisAhead || excess.IsZero() {
		return amount, nil
	}
	reserve := m.Reserve(this)
	if reserve.IsZero() {
		return amount, nil
	}
	factor, err := fixed.Ratio(reserve, excess)
	if err != nil {
		return uint256.Int{}, err
	}
	return fixed.Apply(amount, factor)
}

// QuoteBet prices a bet of amount on option without mutating m. platformFee
// is in basis points.
func QuoteBet(m *model.Market, option int, amount, platformFee uint256.Int) (*Quote, error) {
	if err := RequireBinary(m); err != nil {
		return nil, err
	}
	if err := m.CheckOption(option); err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, model.ErrZeroAmount
	}
	this, other := option, 1-option

	k, err := K(m)
	if err != nil {
		return nil, err
	}
	eff, err := effectiveAmount(m, this, other, amount)
	if err != nil {
		return nil, err
	}
	newThis, err := fixed.Add(m.CurrentLiquidity[this], eff)
	if err != nil {
		return nil, err
	}
	newOther, err := fixed.Div(k, newThis)
	if err != nil {
		return nil, fmt.Errorf("option %d liquidity after bet: %w", this, err)
	}
	if newOther.IsZero() {
		return nil, fmt.Errorf("%w: option %d liquidity would be drained by %s", fixed.ErrDivisionByZero, other, amount.Dec())
	}

	raw := fixed.SatSub(m.CurrentLiquidity[other], newOther)
	extraction, err := fixed.Ratio(raw, amount)
	if err != nil {
		return nil, err
	}
	scale := fixed.Scale()
	netRate, err := fixed.Sub(scale, platformFee)
	if err != nil {
		return nil, fmt.Errorf("platform fee %s: %w", platformFee.Dec(), err)
	}
	bonus, err := fixed.Apply(extraction, netRate)
	if err != nil {
		return nil, err
	}
	odds, err := fixed.Add(scale, bonus)
	if err != nil {
		return nil, err
	}
	fee, err := fixed.Apply(raw, platformFee)
	if err != nil {
		return nil, err
	}
	gross, err := fixed.Add(amount, raw)
	if err != nil {
		return nil, err
	}

	q := &Quote{
		Option:          option,
		Amount:          amount,
		EffectiveAmount: eff,
		RawReturn:       raw,
		Fee:             fee,
		PotentialReturn: fixed.SatSub(gross, fee),
		LockedOdds:      odds,
	}
	q.NewLiquidity[this] = newThis
	q.NewLiquidity[other] = newOther
	return q, nil
}

// SimulateCashout values an early exit of bet against m. The bet's profit
// is treated as a hypothetical bet on the opposite option; the liquidity it
// frees on the bet's own option is the raw cashout. earlyExitFee is in
// basis points.
func SimulateCashout(m *model.Market, bet *model.Bet, earlyExitFee uint256.Int) (*Cashout, error) {
	if err := RequireBinary(m); err != nil {
		return nil, err
	}
	if err := m.CheckOption(bet.OptionIndex); err != nil {
		return nil, err
	}
	own, opp := bet.OptionIndex, 1-bet.OptionIndex

	k, err := K(m)
	if err != nil {
		return nil, err
	}
	profit := bet.Profit()
	simOpp, err := fixed.Add(m.CurrentLiquidity[opp], profit)
	if err != nil {
		return nil, err
	}
	simOwn, err := fixed.Div(k, simOpp)
	if err != nil {
		return nil, fmt.Errorf("option %d liquidity after exit: %w", opp, err)
	}
	if simOwn.IsZero() {
		return nil, fmt.Errorf("%w: option %d liquidity would be drained by exit of bet %d", fixed.ErrDivisionByZero, own, bet.ID)
	}
	raw := fixed.SatSub(m.CurrentLiquidity[own], simOwn)
	fee, err := fixed.Apply(raw, earlyExitFee)
	if err != nil {
		return nil, err
	}

	c := &Cashout{
		Option:       own,
		Profit:       profit,
		RawCashout:   raw,
		Fee:          fee,
		Value:        fixed.SatSub(raw, fee),
		SimulatedOwn: simOwn,
		SimulatedOpp: simOpp,
	}
	c.NewLiquidity[own] = simOwn
	c.NewLiquidity[opp] = simOpp
	return c, nil
}
