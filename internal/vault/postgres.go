package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

// Postgres keeps balances in the vault_accounts table. User accounts are
// keyed "user:<address>", market pools "pool:<market id>".
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed vault.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func userAccount(addr string) string { return "user:" + addr }
func poolAccount(id string) string   { return "pool:" + id }

func (v *Postgres) Deposit(ctx context.Context, from, marketID string, amount uint256.Int) error {
	return v.transfer(ctx, userAccount(from), poolAccount(marketID), amount, model.ErrInsufficientBalance)
}

func (v *Postgres) Withdraw(ctx context.Context, marketID, to string, amount uint256.Int) error {
	return v.transfer(ctx, poolAccount(marketID), userAccount(to), amount, model.ErrInsufficientPoolBalance)
}

// transfer debits src and credits dst in one transaction. The conditional
// UPDATE doubles as the balance check.
func (v *Postgres) transfer(ctx context.Context, src, dst string, amount uint256.Int, short error) error {
	return pgx.BeginFunc(ctx, v.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE vault_accounts SET balance = balance - $2::NUMERIC
			 WHERE account = $1 AND balance >= $2::NUMERIC`,
			src, amount.Dec())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			bal, _ := balance(ctx, tx, src)
			return fmt.Errorf("%w: %s has %s, needs %s", short, src, bal.Dec(), amount.Dec())
		}
		return credit(ctx, tx, dst, amount)
	})
}

func (v *Postgres) PoolBalance(ctx context.Context, marketID string) (uint256.Int, error) {
	return balance(ctx, v.pool, poolAccount(marketID))
}

func (v *Postgres) Balance(ctx context.Context, account string) (uint256.Int, error) {
	return balance(ctx, v.pool, userAccount(account))
}

func (v *Postgres) Credit(ctx context.Context, account string, amount uint256.Int) error {
	return credit(ctx, v.pool, userAccount(account), amount)
}

type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func credit(ctx context.Context, q execQuerier, account string, amount uint256.Int) error {
	_, err := q.Exec(ctx,
		`INSERT INTO vault_accounts (account, balance) VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (account) DO UPDATE SET balance = vault_accounts.balance + EXCLUDED.balance`,
		account, amount.Dec())
	return err
}

func balance(ctx context.Context, q execQuerier, account string) (uint256.Int, error) {
	var s string
	err := q.QueryRow(ctx, `SELECT balance::TEXT FROM vault_accounts WHERE account = $1`, account).Scan(&s)
	if errors.Is(err, pgx.ErrNoRows) {
		return uint256.Int{}, nil
	}
	if err != nil {
		return uint256.Int{}, err
	}
	return fixed.Parse(s)
}

var _ Vault = (*Postgres)(nil)
