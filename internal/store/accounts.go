package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type LeaderboardRow struct {
	PlayerID string
	Name     string
	Balance  int64
}

func (s *Store) EnsureAccount(ctx context.Context, playerID, name string, initial int64) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO accounts (id, name, balance_orbs)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		playerID, name, initial)
	return err
}

func (s *Store) GetBalance(ctx context.Context, playerID string) (int64, error) {
	var bal int64
	err := s.Pool.QueryRow(ctx,
		`SELECT balance_orbs FROM accounts WHERE id = $1`, playerID).Scan(&bal)
	if err != nil {
		return 0, MapNotFound(err)
	}
	return bal, nil
}

// Credit adds amount to the account inside a transaction and records a
// ledger entry. Amount must be positive.
func (s *Store) Credit(ctx context.Context, playerID string, amount int64, reason, refType, refID string) (int64, error) {
	return s.applyDelta(ctx, playerID, amount, reason, refType, refID)
}

// Debit subtracts amount, failing with ErrInsufficientFunds when the row
// balance would go negative. Amount must be positive.
func (s *Store) Debit(ctx context.Context, playerID string, amount int64, reason, refType, refID string) (int64, error) {
	return s.applyDelta(ctx, playerID, -amount, reason, refType, refID)
}

func (s *Store) applyDelta(ctx context.Context, playerID string, delta int64, reason, refType, refID string) (int64, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var bal int64
	err = tx.QueryRow(ctx,
		`SELECT balance_orbs FROM accounts WHERE id = $1 FOR UPDATE`, playerID).Scan(&bal)
	if err != nil {
		return 0, MapNotFound(err)
	}
	newBal := bal + delta
	if newBal < 0 {
		return 0, ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx,
		`UPDATE accounts SET balance_orbs = $1 WHERE id = $2`, newBal, playerID); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, player_id, reason, amount_orbs, ref_type, ref_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		NewID(), playerID, reason, delta, refType, refID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newBal, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, name, balance_orbs FROM accounts
		ORDER BY balance_orbs DESC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.PlayerID, &r.Name, &r.Balance); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
