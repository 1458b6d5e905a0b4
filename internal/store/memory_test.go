package store

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/model"
)

func newMarket(id, event string) *model.Market {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return model.NewMarket(id, event, []string{"home", "away"}, now.Add(24*time.Hour), now)
}

func TestCreateMarket_DuplicateEvent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.CreateMarket(ctx, newMarket("m1", "e1")); err != nil {
		t.Fatal(err)
	}
	err := s.CreateMarket(ctx, newMarket("m2", "e1"))
	if !errors.Is(err, model.ErrMarketExists) {
		t.Fatalf("expected ErrMarketExists, got %v", err)
	}
	err = s.CreateMarket(ctx, newMarket("m1", "e2"))
	if !errors.Is(err, model.ErrMarketExists) {
		t.Fatalf("expected ErrMarketExists for duplicate id, got %v", err)
	}

	m, err := s.GetMarketByEvent(ctx, "e1")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "m1" {
		t.Errorf("expected m1, got %s", m.ID)
	}
}

func TestGetMarket_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetMarket(context.Background(), "missing")
	if !errors.Is(err, model.ErrInvalidMarket) {
		t.Fatalf("expected ErrInvalidMarket, got %v", err)
	}
}

func TestGetMarket_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateMarket(ctx, newMarket("m1", "e1")); err != nil {
		t.Fatal(err)
	}

	m, _ := s.GetMarket(ctx, "m1")
	m.CurrentLiquidity[0].SetUint64(500)
	m.Paused = true

	again, _ := s.GetMarket(ctx, "m1")
	if !again.CurrentLiquidity[0].IsZero() || again.Paused {
		t.Error("mutating a returned market must not touch the stored copy")
	}
}

func TestUpdateMarket_RejectsBrokenInvariant(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	m := newMarket("m1", "e1")
	if err := s.CreateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}

	m.CurrentLiquidity[0].SetUint64(100)
	// TotalLiquidity left stale.
	if err := s.UpdateMarket(ctx, m); !errors.Is(err, model.ErrInvariant) {
		t.Fatalf("expected ErrInvariant, got %v", err)
	}

	m.RecomputeTotal()
	if err := s.UpdateMarket(ctx, m); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetMarket(ctx, "m1")
	if got.TotalLiquidity.Uint64() != 100 {
		t.Errorf("expected total 100, got %s", got.TotalLiquidity.Dec())
	}
}

func TestInsertBet_AssignsMonotonicIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateMarket(ctx, newMarket("m1", "e1")); err != nil {
		t.Fatal(err)
	}

	for want := uint64(1); want <= 3; want++ {
		b := &model.Bet{Owner: "alice", MarketID: "m1", Amount: *uint256.NewInt(10)}
		if err := s.InsertBet(ctx, b); err != nil {
			t.Fatal(err)
		}
		if b.ID != want {
			t.Errorf("expected id %d, got %d", want, b.ID)
		}
	}

	ids, _ := s.MarketBetIDs(ctx, "m1")
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Errorf("unexpected market index %v", ids)
	}

	if err := s.InsertBet(ctx, &model.Bet{MarketID: "nope"}); !errors.Is(err, model.ErrInvalidMarket) {
		t.Errorf("expected ErrInvalidMarket, got %v", err)
	}
}

func TestSetBetStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.CreateMarket(ctx, newMarket("m1", "e1"))
	b := &model.Bet{Owner: "alice", MarketID: "m1"}
	_ = s.InsertBet(ctx, b)

	if err := s.SetBetStatus(ctx, b.ID, model.BetCashedOut); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetBet(ctx, b.ID)
	if got.Status != model.BetCashedOut {
		t.Errorf("expected cashed_out, got %s", got.Status)
	}
	if err := s.SetBetStatus(ctx, 99, model.BetCashedOut); !errors.Is(err, model.ErrBetNotFound) {
		t.Errorf("expected ErrBetNotFound, got %v", err)
	}
}

func TestActiveSet_SwapRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, id := range []uint64{1, 2, 3, 4} {
		_ = s.AddActiveBet(ctx, "alice", "m1", id)
	}
	_ = s.AddActiveBet(ctx, "alice", "m1", 2) // duplicate add is a no-op
	_ = s.AddActiveBet(ctx, "bob", "m1", 5)

	_ = s.RemoveActiveBet(ctx, "alice", "m1", 2)
	_ = s.RemoveActiveBet(ctx, "alice", "m1", 42) // absent

	ids, _ := s.ActiveBetIDs(ctx, "alice", "m1")
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 3 || ids[2] != 4 {
		t.Fatalf("unexpected active set %v", ids)
	}

	// Remove the element that was swapped into the freed slot.
	_ = s.RemoveActiveBet(ctx, "alice", "m1", 4)
	_ = s.RemoveActiveBet(ctx, "alice", "m1", 1)
	ids, _ = s.ActiveBetIDs(ctx, "alice", "m1")
	if len(ids) != 1 || ids[0] != 3 {
		t.Fatalf("expected [3], got %v", ids)
	}

	bob, _ := s.ActiveBetIDs(ctx, "bob", "m1")
	if len(bob) != 1 || bob[0] != 5 {
		t.Errorf("bob's set must be untouched, got %v", bob)
	}

	none, _ := s.ActiveBetIDs(ctx, "carol", "m1")
	if len(none) != 0 {
		t.Errorf("expected empty set, got %v", none)
	}
}
