// Package model defines the core domain types shared across the engine.
// All amounts are unsigned base-unit integers (holiman/uint256), never
// floats; odds and fee rates are scaled by fixed.Precision.
package model

import (
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"github.com/oddspool/market-engine/internal/fixed"
)

// Market is the pooled-liquidity state of one betting event. The per-option
// slices always have the same length; pricing only supports two options.
type Market struct {
	ID                 string    `json:"id"`
	EventID            string    `json:"event_id"`
	Initialized        bool      `json:"initialized"`
	Settled            bool      `json:"settled"`
	Canceled           bool      `json:"canceled"`
	Paused             bool      `json:"paused"`
	WinningOptionIndex int       `json:"winning_option_index"`
	SettlementDeadline time.Time `json:"settlement_deadline"`
	CreatedAt          time.Time `json:"created_at"`

	OptionNames      []string      `json:"option_names"`
	InitialLiquidity []uint256.Int `json:"initial_liquidity"`
	CurrentLiquidity []uint256.Int `json:"current_liquidity"`
	TotalBets        []uint256.Int `json:"total_bets"`

	TotalLiquidity uint256.Int `json:"total_liquidity"`
	TotalFees      uint256.Int `json:"total_fees"`

	// Liquidity-provider ledger in first-deposit order. Membership goes
	// through providerIndex, never a scan.
	Providers        []Provider  `json:"providers"`
	TotalContributed uint256.Int `json:"total_contributed"`
	providerIndex    map[string]int

	// Settlement bookkeeping. For a canceled market WinningPool equals
	// WinningStake (every active bet is refunded).
	WinningStake  uint256.Int `json:"winning_stake"`
	WinningPool   uint256.Int `json:"winning_pool"`
	ClaimedPayout uint256.Int `json:"claimed_payout"`
}

// Provider is one liquidity provider's running contribution.
type Provider struct {
	Address      string      `json:"address"`
	Contribution uint256.Int `json:"contribution"`
}

// NewMarket returns an initialized market with zero liquidity.
func NewMarket(id, eventID string, options []string, deadline, now time.Time) *Market {
	n := len(options)
	return &Market{
		ID:                 id,
		EventID:            eventID,
		Initialized:        true,
		WinningOptionIndex: -1,
		SettlementDeadline: deadline,
		CreatedAt:          now,
		OptionNames:        append([]string(nil), options...),
		InitialLiquidity:   make([]uint256.Int, n),
		CurrentLiquidity:   make([]uint256.Int, n),
		TotalBets:          make([]uint256.Int, n),
	}
}

// NumOptions returns the number of outcomes.
func (m *Market) NumOptions() int { return len(m.OptionNames) }

// IsBinary reports whether the market has exactly two options.
func (m *Market) IsBinary() bool { return len(m.OptionNames) == 2 }

// Closed reports whether the market is in a terminal state.
func (m *Market) Closed() bool { return m.Settled || m.Canceled }

// Open reports whether bets and early exits are currently accepted.
func (m *Market) Open() bool { return m.Initialized && !m.Closed() && !m.Paused }

// CheckOption validates an option index.
func (m *Market) CheckOption(i int) error {
	if i < 0 || i >= len(m.OptionNames) {
		return fmt.Errorf("%w: index %d (market has %d options)", ErrInvalidOption, i, len(m.OptionNames))
	}
	return nil
}

// Reserve returns max(0, initial[i] - current[i]).
func (m *Market) Reserve(i int) uint256.Int {
	return fixed.SatSub(m.InitialLiquidity[i], m.CurrentLiquidity[i])
}

// Reserves returns the reserve of every option.
func (m *Market) Reserves() []uint256.Int {
	out := make([]uint256.Int, len(m.CurrentLiquidity))
	for i := range out {
		out[i] = m.Reserve(i)
	}
	return out
}

// TotalRemaining returns Σ current + Σ reserve.
func (m *Market) TotalRemaining() (uint256.Int, error) {
	cur, err := fixed.Sum(m.CurrentLiquidity)
	if err != nil {
		return uint256.Int{}, err
	}
	res, err := fixed.Sum(m.Reserves())
	if err != nil {
		return uint256.Int{}, err
	}
	return fixed.Add(cur, res)
}

// RecomputeTotal refreshes TotalLiquidity from the per-option state.
func (m *Market) RecomputeTotal() error {
	total, err := m.TotalRemaining()
	if err != nil {
		return err
	}
	m.TotalLiquidity = total
	return nil
}

func (m *Market) index() map[string]int {
	if m.providerIndex == nil || len(m.providerIndex) != len(m.Providers) {
		m.providerIndex = make(map[string]int, len(m.Providers))
		for i, p := range m.Providers {
			m.providerIndex[p.Address] = i
		}
	}
	return m.providerIndex
}

// Contribution returns the provider's recorded contribution and whether
// the provider has ever deposited.
func (m *Market) Contribution(provider string) (uint256.Int, bool) {
	i, ok := m.index()[provider]
	if !ok {
		return uint256.Int{}, false
	}
	return m.Providers[i].Contribution, true
}

// AddProvider records a contribution, appending the provider to the
// ordered list on first deposit only.
func (m *Market) AddProvider(provider string, amount uint256.Int) error {
	total, err := fixed.Add(m.TotalContributed, amount)
	if err != nil {
		return err
	}
	idx := m.index()
	if i, ok := idx[provider]; ok {
		next, err := fixed.Add(m.Providers[i].Contribution, amount)
		if err != nil {
			return err
		}
		m.Providers[i].Contribution = next
	} else {
		idx[provider] = len(m.Providers)
		m.Providers = append(m.Providers, Provider{Address: provider, Contribution: amount})
	}
	m.TotalContributed = total
	return nil
}

// ClearContribution zeroes a provider's contribution, keeping the provider
// in the list.
func (m *Market) ClearContribution(provider string) {
	if i, ok := m.index()[provider]; ok {
		m.Providers[i].Contribution.Clear()
	}
}

// Outstanding returns the part of the winning (or refund) pool that has not
// been claimed yet.
func (m *Market) Outstanding() uint256.Int {
	return fixed.SatSub(m.WinningPool, m.ClaimedPayout)
}

// Validate checks the structural invariants that must hold for every
// persisted market.
func (m *Market) Validate() error {
	if m.ID == "" || !m.Initialized {
		return fmt.Errorf("%w: id=%q initialized=%v", ErrInvalidMarket, m.ID, m.Initialized)
	}
	n := len(m.OptionNames)
	if n < 2 {
		return fmt.Errorf("%w: %d options", ErrInvalidMarket, n)
	}
	if len(m.InitialLiquidity) != n || len(m.CurrentLiquidity) != n || len(m.TotalBets) != n {
		return fmt.Errorf("%w: option slices have lengths %d/%d/%d/%d", ErrInvariant,
			n, len(m.InitialLiquidity), len(m.CurrentLiquidity), len(m.TotalBets))
	}
	if m.Settled && m.Canceled {
		return fmt.Errorf("%w: market both settled and canceled", ErrInvariant)
	}
	if m.Settled {
		if err := m.CheckOption(m.WinningOptionIndex); err != nil {
			return fmt.Errorf("%w: settled with %v", ErrInvariant, err)
		}
	}
	total, err := m.TotalRemaining()
	if err != nil {
		return err
	}
	if !total.Eq(&m.TotalLiquidity) {
		return fmt.Errorf("%w: total liquidity %s, expected %s", ErrInvariant, m.TotalLiquidity.Dec(), total.Dec())
	}
	seen := make(map[string]bool, len(m.Providers))
	for _, p := range m.Providers {
		if seen[p.Address] {
			return fmt.Errorf("%w: provider %s listed twice", ErrInvariant, p.Address)
		}
		seen[p.Address] = true
	}
	return nil
}

// Clone returns a deep copy so callers never share slices or maps with a
// stored record.
func (m *Market) Clone() *Market {
	c := *m
	c.OptionNames = append([]string(nil), m.OptionNames...)
	c.InitialLiquidity = append([]uint256.Int(nil), m.InitialLiquidity...)
	c.CurrentLiquidity = append([]uint256.Int(nil), m.CurrentLiquidity...)
	c.TotalBets = append([]uint256.Int(nil), m.TotalBets...)
	c.Providers = append([]Provider(nil), m.Providers...)
	c.providerIndex = nil
	return &c
}
