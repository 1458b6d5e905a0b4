package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
	"github.com/oddspool/market-engine/internal/store"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func u(v uint64) uint256.Int { return fixed.New(v) }

// newLedger returns a ledger over a memory store holding market m1 after a
// 100000 bet on option 0 against 375000/375000 liquidity.
func newLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	m := model.NewMarket("m1", "e1", []string{"yes", "no"}, now.Add(time.Hour), now)
	m.InitialLiquidity = []uint256.Int{u(375000), u(375000)}
	m.CurrentLiquidity = []uint256.Int{u(475000), u(296052)}
	if err := m.RecomputeTotal(); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateMarket(context.Background(), m); err != nil {
		t.Fatal(err)
	}
	return New(s, func() uint256.Int { return u(200) }), s
}

func TestRecordBet(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	id, err := l.RecordBet(ctx, "alice", "m1", 0, u(100000), u(176580), u(17657), now)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("expected first id 1, got %d", id)
	}

	b, err := l.GetBet(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != model.BetActive || b.Owner != "alice" || b.PotentialPayout.Uint64() != 176580 {
		t.Errorf("unexpected bet %+v", b)
	}

	active, _ := l.ActiveBets(ctx, "alice", "m1")
	if len(active) != 1 || active[0].ID != id {
		t.Errorf("expected bet in active set, got %v", active)
	}
	all, _ := l.MarketBets(ctx, "m1")
	if len(all) != 1 {
		t.Errorf("expected bet in market index, got %d", len(all))
	}
}

func TestUpdateBetStatus(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	id, _ := l.RecordBet(ctx, "alice", "m1", 0, u(10), u(15), u(15000), now)
	keep, _ := l.RecordBet(ctx, "alice", "m1", 1, u(10), u(15), u(15000), now)

	if err := l.UpdateBetStatus(ctx, id, model.BetCashedOut); err != nil {
		t.Fatal(err)
	}
	ids, _ := s.ActiveBetIDs(ctx, "alice", "m1")
	if len(ids) != 1 || ids[0] != keep {
		t.Fatalf("expected only bet %d active, got %v", keep, ids)
	}

	// Same status again: no-op.
	if err := l.UpdateBetStatus(ctx, id, model.BetCashedOut); err != nil {
		t.Errorf("repeat update should be a no-op, got %v", err)
	}
	ids, _ = s.ActiveBetIDs(ctx, "alice", "m1")
	if len(ids) != 1 {
		t.Errorf("repeat update must not touch the index, got %v", ids)
	}

	// Terminal states are final.
	err := l.UpdateBetStatus(ctx, id, model.BetSettledWon)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	err = l.UpdateBetStatus(ctx, id, model.BetActive)
	if !errors.Is(err, model.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	if err := l.UpdateBetStatus(ctx, 999, model.BetRefunded); !errors.Is(err, model.ErrBetNotFound) {
		t.Errorf("expected ErrBetNotFound, got %v", err)
	}
}

func TestGetActiveBetsWithCashout(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	id, _ := l.RecordBet(ctx, "alice", "m1", 0, u(100000), u(176580), u(17657), now)
	// A profit this large on option 1 would drain option 0.
	huge, _ := l.RecordBet(ctx, "alice", "m1", 1, u(1), fixed.MustParse("1000000000000000"), u(1), now)
	_, _ = l.RecordBet(ctx, "bob", "m1", 0, u(5000), u(9000), u(18000), now)

	entries, err := l.GetActiveBetsWithCashout(ctx, "alice", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	values := map[uint64]uint64{}
	for _, e := range entries {
		values[e.BetID] = e.Value.Uint64()
	}
	if values[id] != 95665 {
		t.Errorf("expected cashout 95665, got %d", values[id])
	}
	if v, ok := values[huge]; !ok || v != 0 {
		t.Errorf("expected zero entry for unsimulatable bet, got %d (present=%v)", v, ok)
	}
}

func TestGetActiveBetsWithCashout_UnknownMarket(t *testing.T) {
	l, _ := newLedger(t)
	_, err := l.GetActiveBetsWithCashout(context.Background(), "alice", "nope")
	if !errors.Is(err, model.ErrInvalidMarket) {
		t.Errorf("expected ErrInvalidMarket, got %v", err)
	}
}
