package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres reads the event_windows and event_outcomes tables maintained by
// the governance service.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed oracle.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (o *Postgres) BettingWindow(ctx context.Context, eventID string) (Window, error) {
	var w Window
	err := o.pool.QueryRow(ctx,
		`SELECT starts_at, ends_at FROM event_windows WHERE event_id = $1`, eventID).
		Scan(&w.Start, &w.End)
	if errors.Is(err, pgx.ErrNoRows) {
		return Window{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	if err != nil {
		return Window{}, fmt.Errorf("betting window %s: %w", eventID, err)
	}
	return w, nil
}

// ApprovalAndWinner reports an unapproved outcome for registered events
// that have no verdict row yet.
func (o *Postgres) ApprovalAndWinner(ctx context.Context, eventID string) (Outcome, error) {
	var (
		known    bool
		approved *bool
		winner   *int32
	)
	err := o.pool.QueryRow(ctx,
		`SELECT TRUE, o.approved, o.winning_index
		 FROM event_windows w
		 LEFT JOIN event_outcomes o ON o.event_id = w.event_id
		 WHERE w.event_id = $1`, eventID).
		Scan(&known, &approved, &winner)
	if errors.Is(err, pgx.ErrNoRows) {
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("outcome %s: %w", eventID, err)
	}

	var out Outcome
	if approved != nil {
		out.Approved = *approved
	}
	if winner != nil {
		out.HasWinner = true
		out.Winner = int(*winner)
	}
	return out, nil
}

var _ Oracle = (*Postgres)(nil)
