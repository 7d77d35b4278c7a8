package cart

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct{ DB *pgxpool.Pool }

var _ Store = (*PgStore)(nil)

// Save upserts the cart row and rewrites its items. Carts are small; replacing
// the item set wholesale keeps the write path simple.
func (s *PgStore) Save(ctx context.Context, c *Cart) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO carts(id, user_id, created_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.UserID, c.CreatedAt,
	)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, c.ID); err != nil {
		return err
	}
	for _, it := range c.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO cart_items(id, cart_id, product_id, qty, price)
			VALUES ($1,$2,$3,$4,$5)`,
			it.ID, c.ID, it.ProductID, it.Quantity, it.Price,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PgStore) ListByUser(ctx context.Context, userID string) ([]*Cart, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, created_at FROM carts
		WHERE user_id=$1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Cart
	for rows.Next() {
		var c Cart
		if err := rows.Scan(&c.ID, &c.UserID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		items, err := s.loadItems(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		c.Items = items
	}
	return out, nil
}

func (s *PgStore) Delete(ctx context.Context, id string) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, id); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM carts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}

func (s *PgStore) loadItems(ctx context.Context, cartID string) ([]Item, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, product_id, qty, price FROM cart_items WHERE cart_id=$1`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
