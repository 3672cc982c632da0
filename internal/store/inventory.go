package store

import (
	"context"
	"encoding/json"
)

// Inventory is item id -> quantity.
type Inventory map[string]int

func (s *Store) GetInventory(ctx context.Context, playerID string) (Inventory, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx,
		`SELECT inventory FROM accounts WHERE id = $1`, playerID).Scan(&raw)
	if err != nil {
		return nil, MapNotFound(err)
	}
	inv := Inventory{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &inv); err != nil {
			return nil, err
		}
	}
	return inv, nil
}

func (s *Store) SetInventory(ctx context.Context, playerID string, inv Inventory) error {
	raw, err := json.Marshal(inv)
	if err != nil {
		return err
	}
	ct, err := s.Pool.Exec(ctx,
		`UPDATE accounts SET inventory = $1 WHERE id = $2`, raw, playerID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
