// Package vault is the settlement-asset ledger the engine moves value
// through. Each market has a pool account; bettors and providers have
// their own accounts.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

// Vault moves funds between user accounts and market pools.
type Vault interface {
	// Deposit moves amount from an account into a market pool. Fails with
	// model.ErrInsufficientBalance if the account is short.
	Deposit(ctx context.Context, from, marketID string, amount uint256.Int) error

	// Withdraw moves amount from a market pool to an account. Fails with
	// model.ErrInsufficientPoolBalance if the pool is short.
	Withdraw(ctx context.Context, marketID, to string, amount uint256.Int) error

	PoolBalance(ctx context.Context, marketID string) (uint256.Int, error)
	Balance(ctx context.Context, account string) (uint256.Int, error)

	// Credit mints funds into an account (faucet, test setup, external
	// on-ramp).
	Credit(ctx context.Context, account string, amount uint256.Int) error
}

// Memory is an in-process Vault.
type Memory struct {
	mu       sync.Mutex
	accounts map[string]uint256.Int
	pools    map[string]uint256.Int
}

// NewMemory returns an empty in-memory vault.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]uint256.Int),
		pools:    make(map[string]uint256.Int),
	}
}

func (v *Memory) Deposit(_ context.Context, from, marketID string, amount uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal := v.accounts[from]
	if bal.Lt(&amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", model.ErrInsufficientBalance, from, bal.Dec(), amount.Dec())
	}
	pool, err := fixed.Add(v.pools[marketID], amount)
	if err != nil {
		return err
	}
	v.accounts[from] = fixed.SatSub(bal, amount)
	v.pools[marketID] = pool
	return nil
}

func (v *Memory) Withdraw(_ context.Context, marketID, to string, amount uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool := v.pools[marketID]
	if pool.Lt(&amount) {
		return fmt.Errorf("%w: pool %s has %s, needs %s", model.ErrInsufficientPoolBalance, marketID, pool.Dec(), amount.Dec())
	}
	bal, err := fixed.Add(v.accounts[to], amount)
	if err != nil {
		return err
	}
	v.pools[marketID] = fixed.SatSub(pool, amount)
	v.accounts[to] = bal
	return nil
}

func (v *Memory) PoolBalance(_ context.Context, marketID string) (uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pools[marketID], nil
}

func (v *Memory) Balance(_ context.Context, account string) (uint256.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.accounts[account], nil
}

func (v *Memory) Credit(_ context.Context, account string, amount uint256.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	bal, err := fixed.Add(v.accounts[account], amount)
	if err != nil {
		return err
	}
	v.accounts[account] = bal
	return nil
}

var _ Vault = (*Memory)(nil)
