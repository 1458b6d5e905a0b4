package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
)

// BetStatus is the lifecycle state of a bet.
type BetStatus uint8

const (
	BetActive BetStatus = iota
	BetCashedOut
	BetSettledWon
	BetSettledLost
	BetRefunded
)

var betStatusNames = [...]string{
	BetActive:      "active",
	BetCashedOut:   "cashed_out",
	BetSettledWon:  "settled_won",
	BetSettledLost: "settled_lost",
	BetRefunded:    "refunded",
}

func (s BetStatus) String() string {
	if int(s) < len(betStatusNames) {
		return betStatusNames[s]
	}
	return fmt.Sprintf("status(%d)", s)
}

// ParseBetStatus is the inverse of String.
func ParseBetStatus(s string) (BetStatus, error) {
	for i, name := range betStatusNames {
		if name == s {
			return BetStatus(i), nil
		}
	}
	return 0, fmt.Errorf("unknown bet status %q", s)
}

func (s BetStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *BetStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseBetStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no transition can leave s.
func (s BetStatus) Terminal() bool { return s != BetActive }

// transitions is the complete set of legal status changes.
var transitions = map[BetStatus]map[BetStatus]bool{
	BetActive: {
		BetCashedOut:   true,
		BetSettledWon:  true,
		BetSettledLost: true,
		BetRefunded:    true,
	},
}

// CanTransition reports whether from -> to is legal. Staying in the same
// state is always allowed and is a no-op for callers.
func CanTransition(from, to BetStatus) bool {
	if from == to {
		return true
	}
	return transitions[from][to]
}

// CheckTransition is CanTransition with a descriptive error.
func CheckTransition(from, to BetStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Bet is an immutable record of a placed bet; only Status changes after
// creation. Bets are never deleted.
type Bet struct {
	ID              uint64      `json:"id"`
	Owner           string      `json:"owner"`
	MarketID        string      `json:"market_id"`
	OptionIndex     int         `json:"option_index"`
	Amount          uint256.Int `json:"amount"`
	PotentialPayout uint256.Int `json:"potential_payout"`
	LockedOdds      uint256.Int `json:"locked_odds"`
	CreatedAt       time.Time   `json:"created_at"`
	Status          BetStatus   `json:"status"`
}

// Profit returns max(0, potentialPayout - amount).
func (b *Bet) Profit() uint256.Int {
	if b.PotentialPayout.Cmp(&b.Amount) <= 0 {
		return uint256.Int{}
	}
	var z uint256.Int
	z.Sub(&b.PotentialPayout, &b.Amount)
	return z
}
