package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

func TestMemory_DepositWithdraw(t *testing.T) {
	ctx := context.Background()
	v := NewMemory()
	_ = v.Credit(ctx, "alice", fixed.New(1000))

	if err := v.Deposit(ctx, "alice", "m1", fixed.New(400)); err != nil {
		t.Fatal(err)
	}
	bal, _ := v.Balance(ctx, "alice")
	pool, _ := v.PoolBalance(ctx, "m1")
	if bal.Uint64() != 600 || pool.Uint64() != 400 {
		t.Fatalf("expected 600/400, got %s/%s", bal.Dec(), pool.Dec())
	}

	if err := v.Withdraw(ctx, "m1", "bob", fixed.New(150)); err != nil {
		t.Fatal(err)
	}
	bob, _ := v.Balance(ctx, "bob")
	pool, _ = v.PoolBalance(ctx, "m1")
	if bob.Uint64() != 150 || pool.Uint64() != 250 {
		t.Fatalf("expected 150/250, got %s/%s", bob.Dec(), pool.Dec())
	}
}

func TestMemory_Shortfalls(t *testing.T) {
	ctx := context.Background()
	v := NewMemory()
	_ = v.Credit(ctx, "alice", fixed.New(10))

	err := v.Deposit(ctx, "alice", "m1", fixed.New(11))
	if !errors.Is(err, model.ErrInsufficientBalance) {
		t.Errorf("expected ErrInsufficientBalance, got %v", err)
	}
	err = v.Withdraw(ctx, "m1", "alice", fixed.New(1))
	if !errors.Is(err, model.ErrInsufficientPoolBalance) {
		t.Errorf("expected ErrInsufficientPoolBalance, got %v", err)
	}

	// Failed calls leave balances untouched.
	bal, _ := v.Balance(ctx, "alice")
	if bal.Uint64() != 10 {
		t.Errorf("expected 10, got %s", bal.Dec())
	}
}
