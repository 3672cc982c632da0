package catalog

import (
	"context"
	"encoding/json"

	"orbvale/internal/store"
)

// Item is one cosmetic catalog row. Pricing and seeding live outside this
// server; we only look items up.
type Item struct {
	ID         string          `json:"id"`
	Price      int64           `json:"price"`
	Attributes json.RawMessage `json:"attributes"`
}

type Catalog struct {
	store *store.Store
}

func New(s *store.Store) *Catalog {
	return &Catalog{store: s}
}

func (c *Catalog) GetItem(ctx context.Context, id string) (Item, error) {
	var it Item
	err := c.store.Pool.QueryRow(ctx,
		`SELECT id, price_orbs, attributes FROM catalog_items WHERE id = $1`, id).
		Scan(&it.ID, &it.Price, &it.Attributes)
	if err != nil {
		return Item{}, store.MapNotFound(err)
	}
	return it, nil
}

// Known reports which of the given ids exist in the catalog. Trade offers
// are filtered to known ids; ownership is not verified here.
func (c *Catalog) Known(ctx context.Context, ids []string) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := c.store.Pool.Query(ctx,
		`SELECT id FROM catalog_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
