// Package oracle exposes the governance outcome of an event to the engine:
// when betting is open, and whether a winner has been approved.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownEvent is returned for events the governance side has never
// registered.
var ErrUnknownEvent = errors.New("unknown event")

// Window is the closed interval during which bets and early exits are
// accepted.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Outcome is the governance verdict for an event. Winner is only meaningful
// when HasWinner is set.
type Outcome struct {
	Approved  bool `json:"approved"`
	HasWinner bool `json:"has_winner"`
	Winner    int  `json:"winner"`
}

// Confirms reports whether the outcome approves option as the winner.
func (o Outcome) Confirms(option int) bool {
	return o.Approved && o.HasWinner && o.Winner == option
}

// Oracle answers event queries.
type Oracle interface {
	BettingWindow(ctx context.Context, eventID string) (Window, error)
	ApprovalAndWinner(ctx context.Context, eventID string) (Outcome, error)
}

// Memory is an Oracle whose answers are set directly. Used by tests and
// single-node development setups.
type Memory struct {
	mu       sync.RWMutex
	windows  map[string]Window
	outcomes map[string]Outcome
}

// NewMemory returns an empty in-memory oracle.
func NewMemory() *Memory {
	return &Memory{
		windows:  make(map[string]Window),
		outcomes: make(map[string]Outcome),
	}
}

// SetWindow registers or replaces an event's betting window.
func (o *Memory) SetWindow(eventID string, w Window) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.windows[eventID] = w
}

// Approve records winner as the approved outcome of an event.
func (o *Memory) Approve(eventID string, winner int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes[eventID] = Outcome{Approved: true, HasWinner: true, Winner: winner}
}

func (o *Memory) BettingWindow(_ context.Context, eventID string) (Window, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.windows[eventID]
	if !ok {
		return Window{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	return w, nil
}

func (o *Memory) ApprovalAndWinner(_ context.Context, eventID string) (Outcome, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if _, ok := o.windows[eventID]; !ok {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	return o.outcomes[eventID], nil
}

var _ Oracle = (*Memory)(nil)
