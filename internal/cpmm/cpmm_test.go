package cpmm

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

// u is a test helper for creating amounts.
func u(v uint64) uint256.Int { return fixed.New(v) }

// seeded returns a binary market with the given initial = current liquidity.
func seeded(t *testing.T, a, b uint64) *model.Market {
	t.Helper()
	m := model.NewMarket("m", "ev", []string{"yes", "no"}, time.Time{}, time.Time{})
	m.InitialLiquidity[0], m.InitialLiquidity[1] = u(a), u(b)
	m.CurrentLiquidity[0], m.CurrentLiquidity[1] = u(a), u(b)
	if err := m.RecomputeTotal(); err != nil {
		t.Fatal(err)
	}
	return m
}

// apply commits a quote the way the engine does.
func apply(t *testing.T, m *model.Market, q *Quote) {
	t.Helper()
	m.CurrentLiquidity[0], m.CurrentLiquidity[1] = q.NewLiquidity[0], q.NewLiquidity[1]
	tb, err := fixed.Add(m.TotalBets[q.Option], q.Amount)
	if err != nil {
		t.Fatal(err)
	}
	m.TotalBets[q.Option] = tb
	if err := m.RecomputeTotal(); err != nil {
		t.Fatal(err)
	}
}

// --- Odds ---

func TestOdds_BalancedPoolIsTwo(t *testing.T) {
	m := seeded(t, 750000, 750000)
	for i := 0; i < 2; i++ {
		o, err := Odds(m, i)
		if err != nil {
			t.Fatal(err)
		}
		if o.Uint64() != 20000 {
			t.Errorf("odds[%d] = %d, want 20000", i, o.Uint64())
		}
	}
}

func TestOdds_ZeroLiquidityIsZero(t *testing.T) {
	m := seeded(t, 0, 0)
	o, err := Odds(m, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !o.IsZero() {
		t.Errorf("expected zero odds, got %s", o.Dec())
	}
}

func TestOdds_InvalidOption(t *testing.T) {
	m := seeded(t, 10, 10)
	if _, err := Odds(m, 2); !errors.Is(err, model.ErrInvalidOption) {
		t.Errorf("expected ErrInvalidOption, got %v", err)
	}
}

// --- Quote ---

// 37.5/37.5 pool (scaled by 10^4), 3% fee, bet 10 on option 0.
func TestQuoteBet_ReferenceScenario(t *testing.T) {
	m := seeded(t, 375000, 375000)

	q, err := QuoteBet(m, 0, u(100000), u(300))
	if err != nil {
		t.Fatal(err)
	}

	checks := []struct {
		name string
		got  uint256.Int
		want uint64
	}{
		{"newThis", q.NewLiquidity[0], 475000},
		{"newOther", q.NewLiquidity[1], 296052},
		{"rawReturn", q.RawReturn, 78948},
		{"fee", q.Fee, 2368},
		{"potentialReturn", q.PotentialReturn, 176580},
		{"lockedOdds", q.LockedOdds, 17657},
	}
	for _, c := range checks {
		if c.got.Uint64() != c.want {
			t.Errorf("%s = %s, want %d", c.name, c.got.Dec(), c.want)
		}
	}
	// ≈1.766x
	if q.LockedOdds.Uint64() < 17600 || q.LockedOdds.Uint64() > 17700 {
		t.Errorf("locked odds %s outside ≈1.766x", q.LockedOdds.Dec())
	}
}

func TestQuoteBet_DoesNotMutate(t *testing.T) {
	m := seeded(t, 375000, 375000)
	before := m.Clone()
	if _, err := QuoteBet(m, 1, u(5000), u(300)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if !m.CurrentLiquidity[i].Eq(&before.CurrentLiquidity[i]) {
			t.Errorf("current liquidity %d mutated", i)
		}
	}
}

func TestQuoteBet_ZeroAmount(t *testing.T) {
	m := seeded(t, 100, 100)
	if _, err := QuoteBet(m, 0, u(0), u(300)); !errors.Is(err, model.ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount, got %v", err)
	}
}

func TestQuoteBet_NotBinary(t *testing.T) {
	m := model.NewMarket("m", "ev", []string{"a", "b", "c"}, time.Time{}, time.Time{})
	if _, err := QuoteBet(m, 0, u(10), u(300)); !errors.Is(err, model.ErrNotBinaryMarket) {
		t.Errorf("expected ErrNotBinaryMarket, got %v", err)
	}
}

func TestQuoteBet_NoLiquidityDivisionByZero(t *testing.T) {
	m := seeded(t, 0, 0)
	if _, err := QuoteBet(m, 0, u(10), u(300)); !errors.Is(err, fixed.ErrDivisionByZero) {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

// A bet large enough that K / newThis floors to zero must fail instead of
// draining the opposite option.
func TestQuoteBet_DrainingBetFails(t *testing.T) {
	m := seeded(t, 10, 10) // K = 100
	_, err := QuoteBet(m, 0, u(91), u(300))
	if !errors.Is(err, fixed.ErrDivisionByZero) {
		t.Fatalf("expected ErrDivisionByZero, got %v", err)
	}
	// One unit less leaves exactly one unit on the other side.
	q, err := QuoteBet(m, 0, u(90), u(300))
	if err != nil {
		t.Fatal(err)
	}
	if q.NewLiquidity[1].Uint64() != 1 {
		t.Errorf("newOther = %s, want 1", q.NewLiquidity[1].Dec())
	}
}

func TestQuoteBet_UsesInitialK(t *testing.T) {
	m := seeded(t, 375000, 375000)
	q1, _ := QuoteBet(m, 0, u(100000), u(300))
	apply(t, m, q1)

	// Second bet on the same side: the curve is still anchored to the
	// initial product, not current[0]*current[1].
	q2, err := QuoteBet(m, 0, u(100000), u(300))
	if err != nil {
		t.Fatal(err)
	}
	want := 140625000000 / (475000 + 100000)
	if q2.NewLiquidity[1].Uint64() != uint64(want) {
		t.Errorf("newOther = %s, want %d", q2.NewLiquidity[1].Dec(), want)
	}
}

func TestQuoteBet_ReserveThrottle(t *testing.T) {
	m := seeded(t, 750000, 750000)
	q1, _ := QuoteBet(m, 0, u(100000), u(300))
	apply(t, m, q1)

	// Option 1 now has reserve and option 0 carries the bet excess, so a
	// bet on option 1 is scaled by reserve/excess.
	q2, err := QuoteBet(m, 1, u(100000), u(300))
	if err != nil {
		t.Fatal(err)
	}
	if q2.EffectiveAmount.Uint64() != 88230 {
		t.Errorf("effective amount = %s, want 88230", q2.EffectiveAmount.Dec())
	}
	if q2.NewLiquidity[1].Uint64() != 749994 || q2.NewLiquidity[0].Uint64() != 750006 {
		t.Errorf("new liquidity = [%s %s], want [750006 749994]",
			q2.NewLiquidity[0].Dec(), q2.NewLiquidity[1].Dec())
	}
}

func TestBalancedBook_OppositeBetsKeepOddsClose(t *testing.T) {
	m := seeded(t, 750000, 750000)
	for _, opt := range []int{0, 1} {
		q, err := QuoteBet(m, opt, u(100000), u(300))
		if err != nil {
			t.Fatal(err)
		}
		apply(t, m, q)
	}
	odds, err := AllOdds(m)
	if err != nil {
		t.Fatal(err)
	}
	a, b := odds[0].Uint64(), odds[1].Uint64()
	hi, lo := a, b
	if lo > hi {
		hi, lo = lo, hi
	}
	if (hi-lo)*10 > hi {
		t.Errorf("odds diverge more than 10%%: %d vs %d", a, b)
	}
}

// --- Cashout ---

func TestSimulateCashout_ReferenceScenario(t *testing.T) {
	m := seeded(t, 375000, 375000)
	q, _ := QuoteBet(m, 0, u(100000), u(300))
	apply(t, m, q)

	bet := &model.Bet{ID: 1, OptionIndex: 0, Amount: q.Amount, PotentialPayout: q.PotentialReturn}
	c, err := SimulateCashout(m, bet, u(200))
	if err != nil {
		t.Fatal(err)
	}
	if c.Profit.Uint64() != 76580 {
		t.Errorf("profit = %s, want 76580", c.Profit.Dec())
	}
	if c.SimulatedOpp.Uint64() != 372632 || c.SimulatedOwn.Uint64() != 377383 {
		t.Errorf("simulated = own %s opp %s", c.SimulatedOwn.Dec(), c.SimulatedOpp.Dec())
	}
	if c.RawCashout.Uint64() != 97617 || c.Fee.Uint64() != 1952 || c.Value.Uint64() != 95665 {
		t.Errorf("raw=%s fee=%s value=%s", c.RawCashout.Dec(), c.Fee.Dec(), c.Value.Dec())
	}

	upper, _ := fixed.Add(q.Amount, q.RawReturn)
	if c.Value.IsZero() || c.Value.Cmp(&upper) >= 0 {
		t.Errorf("cashout %s not in (0, %s)", c.Value.Dec(), upper.Dec())
	}
}

func TestSimulateCashout_MirrorsForOptionOne(t *testing.T) {
	a := seeded(t, 375000, 375000)
	qa, _ := QuoteBet(a, 0, u(100000), u(300))
	apply(t, a, qa)
	ca, err := SimulateCashout(a, &model.Bet{OptionIndex: 0, Amount: qa.Amount, PotentialPayout: qa.PotentialReturn}, u(200))
	if err != nil {
		t.Fatal(err)
	}

	b := seeded(t, 375000, 375000)
	qb, _ := QuoteBet(b, 1, u(100000), u(300))
	apply(t, b, qb)
	cb, err := SimulateCashout(b, &model.Bet{OptionIndex: 1, Amount: qb.Amount, PotentialPayout: qb.PotentialReturn}, u(200))
	if err != nil {
		t.Fatal(err)
	}

	if !ca.Value.Eq(&cb.Value) {
		t.Errorf("asymmetric cashout: %s vs %s", ca.Value.Dec(), cb.Value.Dec())
	}
	if !cb.NewLiquidity[1].Eq(&cb.SimulatedOwn) || !cb.NewLiquidity[0].Eq(&cb.SimulatedOpp) {
		t.Error("option 1 exit did not mirror liquidity assignment")
	}
}

func TestSimulateCashout_NoProfitBet(t *testing.T) {
	m := seeded(t, 1000, 1000)
	bet := &model.Bet{OptionIndex: 0, Amount: u(50), PotentialPayout: u(50)}
	c, err := SimulateCashout(m, bet, u(200))
	if err != nil {
		t.Fatal(err)
	}
	if !c.Value.IsZero() {
		t.Errorf("expected zero cashout for zero-profit bet on untouched pool, got %s", c.Value.Dec())
	}
}
