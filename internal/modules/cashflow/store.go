// README: PostgreSQL agent cash ledger; balances move only through atomic increments.
package cashflow

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"vrent/internal/apperr"
	"vrent/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Credit inserts the entry and bumps the running balance in one statement.
// A replayed entry ID inserts nothing and so adds nothing.
func (s *Store) Credit(ctx context.Context, e Entry) error {
	_, err := s.db.Exec(ctx, `
		WITH ins AS (
			INSERT INTO agent_cash_entries (id, agent_id, booking_id, kind, amount, created_at)
			VALUES ($1, $2, $3, 'collection', $4, $5)
			ON CONFLICT (id) DO NOTHING
			RETURNING amount
		)
		INSERT INTO agent_cash_ledger (agent_id, collected, handed_over, updated_at)
		SELECT $2, amount, 0, $5 FROM ins
		ON CONFLICT (agent_id) DO UPDATE
		SET collected = agent_cash_ledger.collected + EXCLUDED.collected,
		    updated_at = EXCLUDED.updated_at`,
		string(e.ID), string(e.AgentID), toStringPtr(e.BookingID), e.Amount, e.At,
	)
	if err != nil {
		return apperr.External("DB_ERROR", err)
	}
	return nil
}

func (s *Store) HandOver(ctx context.Context, e Entry) (Entry, error) {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var onHand int64
		err := tx.QueryRow(ctx, `
			SELECT collected - handed_over FROM agent_cash_ledger
			WHERE agent_id = $1 FOR UPDATE`, string(e.AgentID)).Scan(&onHand)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && onHand <= 0) {
			return ErrNothingToHandOver
		}
		if err != nil {
			return err
		}
		e.Amount = onHand
		if _, err := tx.Exec(ctx, `
			INSERT INTO agent_cash_entries (id, agent_id, kind, amount, received_by, receipt_no, created_at)
			VALUES ($1, $2, 'handover', $3, $4, $5, $6)`,
			string(e.ID), string(e.AgentID), e.Amount, toStringPtr(e.ReceivedBy), e.ReceiptNo, e.At,
		); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE agent_cash_ledger
			SET handed_over = handed_over + $2, updated_at = $3
			WHERE agent_id = $1`, string(e.AgentID), e.Amount, e.At)
		return err
	})
	if errors.Is(err, ErrNothingToHandOver) {
		return Entry{}, ErrNothingToHandOver
	}
	if err != nil {
		return Entry{}, apperr.External("DB_ERROR", err)
	}
	return e, nil
}

func (s *Store) Balance(ctx context.Context, agentID types.ID) (Balance, error) {
	b := Balance{AgentID: agentID}
	err := s.db.QueryRow(ctx, `
		SELECT collected, handed_over, updated_at FROM agent_cash_ledger WHERE agent_id = $1`,
		string(agentID)).Scan(&b.Collected, &b.HandedOver, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, nil
	}
	if err != nil {
		return Balance{}, apperr.External("DB_ERROR", err)
	}
	return b, nil
}

func (s *Store) Entries(ctx context.Context, agentID types.ID, from, to time.Time) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, agent_id, booking_id, kind, amount, received_by, COALESCE(receipt_no, ''), created_at
		FROM agent_cash_entries
		WHERE agent_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at, id`, string(agentID), from, to)
	if err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id, agent, kind string
		var bookingID, receivedBy *string
		if err := rows.Scan(&id, &agent, &bookingID, &kind, &e.Amount, &receivedBy, &e.ReceiptNo, &e.At); err != nil {
			return nil, apperr.External("DB_ERROR", err)
		}
		e.ID = types.ID(id)
		e.AgentID = types.ID(agent)
		e.Kind = EntryKind(kind)
		e.BookingID = toIDPtr(bookingID)
		e.ReceivedBy = toIDPtr(receivedBy)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	return out, nil
}

func (s *Store) Agents(ctx context.Context) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `SELECT agent_id FROM agent_cash_ledger ORDER BY agent_id`)
	if err != nil {
		return nil, apperr.External("DB_ERROR", err)
	}
	defer rows.Close()
	var out []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.External("DB_ERROR", err)
		}
		out = append(out, types.ID(id))
	}
	return out, rows.Err()
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
