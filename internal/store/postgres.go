package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oddspool/market-engine/internal/fixed"
	"github.com/oddspool/market-engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC(78,0), which holds any uint256 exactly.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies the embedded schema files in lexical order. Every file is
// idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		sql, err := migrationsFS.ReadFile(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migrate %s: %w", name, err)
		}
	}
	return nil
}

const marketColumns = `id, event_id, initialized, settled, canceled, paused,
	winning_option_index, settlement_deadline, created_at, option_names,
	initial_liquidity::TEXT[], current_liquidity::TEXT[], total_bets::TEXT[],
	total_liquidity::TEXT, total_fees::TEXT, total_contributed::TEXT,
	winning_stake::TEXT, winning_pool::TEXT, claimed_payout::TEXT`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO markets (id, event_id, initialized, settled, canceled, paused,
				winning_option_index, settlement_deadline, created_at, option_names,
				initial_liquidity, current_liquidity, total_bets,
				total_liquidity, total_fees, total_contributed,
				winning_stake, winning_pool, claimed_payout)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11::TEXT[]::NUMERIC[], $12::TEXT[]::NUMERIC[], $13::TEXT[]::NUMERIC[],
				$14::NUMERIC, $15::NUMERIC, $16::NUMERIC, $17::NUMERIC, $18::NUMERIC, $19::NUMERIC)`,
			marketArgs(m)...,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: %s", model.ErrMarketExists, pgErr.Detail)
			}
			return err
		}
		return writeProviders(ctx, tx, m)
	})
}

func (s *PostgresStore) UpdateMarket(ctx context.Context, m *model.Market) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE markets SET
				initialized = $2, settled = $3, canceled = $4, paused = $5,
				winning_option_index = $6, settlement_deadline = $7,
				initial_liquidity = $8::TEXT[]::NUMERIC[],
				current_liquidity = $9::TEXT[]::NUMERIC[],
				total_bets = $10::TEXT[]::NUMERIC[],
				total_liquidity = $11::NUMERIC, total_fees = $12::NUMERIC,
				total_contributed = $13::NUMERIC, winning_stake = $14::NUMERIC,
				winning_pool = $15::NUMERIC, claimed_payout = $16::NUMERIC
			 WHERE id = $1`,
			m.ID, m.Initialized, m.Settled, m.Canceled, m.Paused,
			m.WinningOptionIndex, m.SettlementDeadline,
			decStrings(m.InitialLiquidity), decStrings(m.CurrentLiquidity), decStrings(m.TotalBets),
			m.TotalLiquidity.Dec(), m.TotalFees.Dec(), m.TotalContributed.Dec(),
			m.WinningStake.Dec(), m.WinningPool.Dec(), m.ClaimedPayout.Dec(),
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, m.ID)
		}
		return writeProviders(ctx, tx, m)
	})
}

func marketArgs(m *model.Market) []any {
	return []any{
		m.ID, m.EventID, m.Initialized, m.Settled, m.Canceled, m.Paused,
		m.WinningOptionIndex, m.SettlementDeadline, m.CreatedAt, m.OptionNames,
		decStrings(m.InitialLiquidity), decStrings(m.CurrentLiquidity), decStrings(m.TotalBets),
		m.TotalLiquidity.Dec(), m.TotalFees.Dec(), m.TotalContributed.Dec(),
		m.WinningStake.Dec(), m.WinningPool.Dec(), m.ClaimedPayout.Dec(),
	}
}

func writeProviders(ctx context.Context, tx pgx.Tx, m *model.Market) error {
	batch := &pgx.Batch{}
	for i, p := range m.Providers {
		batch.Queue(
			`INSERT INTO market_providers (market_id, provider, position, contribution)
			 VALUES ($1, $2, $3, $4::NUMERIC)
			 ON CONFLICT (market_id, provider) DO UPDATE SET contribution = EXCLUDED.contribution`,
			m.ID, p.Address, i, p.Contribution.Dec(),
		)
	}
	if batch.Len() == 0 {
		return nil
	}
	return tx.SendBatch(ctx, batch).Close()
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	return s.getMarket(ctx, `SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
}

func (s *PostgresStore) GetMarketByEvent(ctx context.Context, eventID string) (*model.Market, error) {
	return s.getMarket(ctx, `SELECT `+marketColumns+` FROM markets WHERE event_id = $1`, eventID)
}

// getMarket reads the market row and its providers in one repeatable-read
// transaction so the snapshot is consistent.
func (s *PostgresStore) getMarket(ctx context.Context, query, key string) (*model.Market, error) {
	var m *model.Market
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		m, err = scanMarket(tx.QueryRow(ctx, query, key))
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, key)
		}
		if err != nil {
			return fmt.Errorf("get market %s: %w", key, err)
		}
		return readProviders(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range markets {
		if err := readProviders(ctx, s.pool, &markets[i]); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func readProviders(ctx context.Context, q querier, m *model.Market) error {
	rows, err := q.Query(ctx,
		`SELECT provider, contribution::TEXT FROM market_providers
		 WHERE market_id = $1 ORDER BY position`, m.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Provider
		var c string
		if err := rows.Scan(&p.Address, &c); err != nil {
			return err
		}
		if p.Contribution, err = fixed.Parse(c); err != nil {
			return err
		}
		m.Providers = append(m.Providers, p)
	}
	return rows.Err()
}

func scanMarket(row pgx.Row) (*model.Market, error) {
	var m model.Market
	var initial, current, bets []string
	var total, fees, contributed, stake, pool, claimed string

	err := row.Scan(&m.ID, &m.EventID, &m.Initialized, &m.Settled, &m.Canceled, &m.Paused,
		&m.WinningOptionIndex, &m.SettlementDeadline, &m.CreatedAt, &m.OptionNames,
		&initial, &current, &bets,
		&total, &fees, &contributed, &stake, &pool, &claimed)
	if err != nil {
		return nil, err
	}

	if m.InitialLiquidity, err = parseAll(initial); err != nil {
		return nil, err
	}
	if m.CurrentLiquidity, err = parseAll(current); err != nil {
		return nil, err
	}
	if m.TotalBets, err = parseAll(bets); err != nil {
		return nil, err
	}
	for dst, src := range map[*uint256.Int]string{
		&m.TotalLiquidity:   total,
		&m.TotalFees:        fees,
		&m.TotalContributed: contributed,
		&m.WinningStake:     stake,
		&m.WinningPool:      pool,
		&m.ClaimedPayout:    claimed,
	} {
		v, err := fixed.Parse(src)
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return &m, nil
}

func (s *PostgresStore) InsertBet(ctx context.Context, b *model.Bet) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO bets (owner, market_id, option_index, amount, potential_payout, locked_odds, created_at, status)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)
		 RETURNING id`,
		b.Owner, b.MarketID, b.OptionIndex,
		b.Amount.Dec(), b.PotentialPayout.Dec(), b.LockedOdds.Dec(),
		b.CreatedAt, b.Status.String(),
	).Scan(&b.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return fmt.Errorf("%w: market %s not found", model.ErrInvalidMarket, b.MarketID)
		}
		return err
	}
	return nil
}

func (s *PostgresStore) GetBet(ctx context.Context, id uint64) (*model.Bet, error) {
	var b model.Bet
	var amount, payout, odds, status string

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, market_id, option_index,
		        amount::TEXT, potential_payout::TEXT, locked_odds::TEXT,
		        created_at, status
		 FROM bets WHERE id = $1`, id).
		Scan(&b.ID, &b.Owner, &b.MarketID, &b.OptionIndex,
			&amount, &payout, &odds, &b.CreatedAt, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", model.ErrBetNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get bet %d: %w", id, err)
	}

	if b.Amount, err = fixed.Parse(amount); err != nil {
		return nil, err
	}
	if b.PotentialPayout, err = fixed.Parse(payout); err != nil {
		return nil, err
	}
	if b.LockedOdds, err = fixed.Parse(odds); err != nil {
		return nil, err
	}
	if b.Status, err = model.ParseBetStatus(status); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *PostgresStore) SetBetStatus(ctx context.Context, id uint64, status model.BetStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE bets SET status = $2 WHERE id = $1`, id, status.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", model.ErrBetNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AddActiveBet(ctx context.Context, owner, marketID string, id uint64) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO active_bets (owner, market_id, bet_id) VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`, owner, marketID, id)
	return err
}

func (s *PostgresStore) RemoveActiveBet(ctx context.Context, owner, marketID string, id uint64) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM active_bets WHERE owner = $1 AND market_id = $2 AND bet_id = $3`,
		owner, marketID, id)
	return err
}

func (s *PostgresStore) ActiveBetIDs(ctx context.Context, owner, marketID string) ([]uint64, error) {
	return s.ids(ctx, `SELECT bet_id FROM active_bets WHERE owner = $1 AND market_id = $2`, owner, marketID)
}

func (s *PostgresStore) MarketBetIDs(ctx context.Context, marketID string) ([]uint64, error) {
	return s.ids(ctx, `SELECT id FROM bets WHERE market_id = $1 ORDER BY id`, marketID)
}

func (s *PostgresStore) ids(ctx context.Context, query string, args ...any) ([]uint64, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uint64])
}

func decStrings(xs []uint256.Int) []string {
	out := make([]string, len(xs))
	for i := range xs {
		out[i] = xs[i].Dec()
	}
	return out
}

func parseAll(ss []string) ([]uint256.Int, error) {
	out := make([]uint256.Int, len(ss))
	for i, s := range ss {
		v, err := fixed.Parse(s)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
