package model

import (
	"errors"
	"testing"
	"time"

	"github.com/oddspool/market-engine/internal/fixed"
)

func newBinary(t *testing.T) *Market {
	t.Helper()
	m := NewMarket("m1", "ev1", []string{"home", "away"}, time.Unix(0, 0), time.Unix(0, 0))
	return m
}

func TestCanTransition_Table(t *testing.T) {
	all := []BetStatus{BetActive, BetCashedOut, BetSettledWon, BetSettledLost, BetRefunded}
	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			want := from == to || from == BetActive
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCheckTransition_TerminalRejected(t *testing.T) {
	err := CheckTransition(BetCashedOut, BetActive)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestBetStatus_JSONRoundTrip(t *testing.T) {
	for _, s := range []BetStatus{BetActive, BetRefunded} {
		data, err := s.MarshalJSON()
		if err != nil {
			t.Fatal(err)
		}
		var got BetStatus
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatal(err)
		}
		if got != s {
			t.Errorf("round trip %s -> %s", s, got)
		}
	}
}

func TestMarket_ReserveAndTotal(t *testing.T) {
	m := newBinary(t)
	m.InitialLiquidity[0] = fixed.New(100)
	m.InitialLiquidity[1] = fixed.New(100)
	m.CurrentLiquidity[0] = fixed.New(120)
	m.CurrentLiquidity[1] = fixed.New(80)
	if err := m.RecomputeTotal(); err != nil {
		t.Fatal(err)
	}
	if r := m.Reserve(0); !r.IsZero() {
		t.Errorf("reserve[0] = %s, want 0", r.Dec())
	}
	if r := m.Reserve(1); r.Uint64() != 20 {
		t.Errorf("reserve[1] = %s, want 20", r.Dec())
	}
	if m.TotalLiquidity.Uint64() != 220 {
		t.Errorf("total = %s, want 220", m.TotalLiquidity.Dec())
	}
	if err := m.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestMarket_ValidateStaleTotal(t *testing.T) {
	m := newBinary(t)
	m.CurrentLiquidity[0] = fixed.New(5)
	if err := m.Validate(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant for stale total, got %v", err)
	}
}

func TestMarket_ValidateLengthMismatch(t *testing.T) {
	m := newBinary(t)
	m.TotalBets = m.TotalBets[:1]
	if err := m.Validate(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestMarket_AddProviderDistinct(t *testing.T) {
	m := newBinary(t)
	for i := 0; i < 3; i++ {
		if err := m.AddProvider("lp1", fixed.New(10)); err != nil {
			t.Fatal(err)
		}
	}
	if err := m.AddProvider("lp2", fixed.New(5)); err != nil {
		t.Fatal(err)
	}
	if len(m.Providers) != 2 {
		t.Errorf("providers = %v, want 2 distinct", m.Providers)
	}
	c, ok := m.Contribution("lp1")
	if !ok || c.Uint64() != 30 {
		t.Errorf("lp1 contribution = %s, want 30", c.Dec())
	}
	if m.TotalContributed.Uint64() != 35 {
		t.Errorf("total contributed = %s, want 35", m.TotalContributed.Dec())
	}
}

func TestMarket_CloneIsDeep(t *testing.T) {
	m := newBinary(t)
	_ = m.AddProvider("lp1", fixed.New(10))
	c := m.Clone()
	c.CurrentLiquidity[0] = fixed.New(99)
	c.ClearContribution("lp1")
	if !m.CurrentLiquidity[0].IsZero() {
		t.Error("clone shares liquidity slice")
	}
	orig, _ := m.Contribution("lp1")
	if orig.Uint64() != 10 {
		t.Error("clone shares contributions map")
	}
}

func TestMarket_ValidateDuplicateProvider(t *testing.T) {
	m := newBinary(t)
	m.Providers = []Provider{{Address: "lp"}, {Address: "lp"}}
	if err := m.Validate(); !errors.Is(err, ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}
}

func TestCheckOption(t *testing.T) {
	m := newBinary(t)
	if err := m.CheckOption(1); err != nil {
		t.Errorf("option 1: %v", err)
	}
	for _, i := range []int{-1, 2} {
		if err := m.CheckOption(i); !errors.Is(err, ErrInvalidOption) {
			t.Errorf("option %d: expected ErrInvalidOption, got %v", i, err)
		}
	}
}
