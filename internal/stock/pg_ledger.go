package stock

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgLedger serializes check-and-decrement per product with a row lock so the
// non-negative invariant survives concurrent reservations.
type PgLedger struct{ DB *pgxpool.Pool }

var _ Ledger = (*PgLedger)(nil)

func (l *PgLedger) Reserve(ctx context.Context, orderID, productID string, qty int) error {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Idempotency short-circuit: this (order, product) was already reserved.
	var n int
	err = tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM reservations
		WHERE order_id=$1 AND product_id=$2 AND status <> $3`,
		orderID, productID, StatusReleased).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var available int
	err = tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, productID).Scan(&available)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrUnknownProduct
		}
		return err
	}
	if available < qty {
		return ErrInsufficientStock // rollback via defer, no mutation
	}

	if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1`, productID, qty); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO reservations(order_id, product_id, qty, status)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (order_id, product_id) DO NOTHING`,
		orderID, productID, qty, StatusReserved); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *PgLedger) Release(ctx context.Context, productID string, qty int) error {
	ct, err := l.DB.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, productID, qty)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUnknownProduct
	}
	return nil
}

func (l *PgLedger) PendingRelease(ctx context.Context, orderID string) (int, error) {
	ct, err := l.DB.Exec(ctx, `
		UPDATE reservations SET status=$2
		WHERE order_id=$1 AND status=$3`,
		orderID, StatusPendingRelease, StatusReserved)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

func (l *PgLedger) ReleaseOrder(ctx context.Context, orderID string) (int, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT product_id, qty FROM reservations
		WHERE order_id=$1 AND status <> $2`, orderID, StatusReleased)
	if err != nil {
		return 0, err
	}
	type rec struct {
		pid string
		qty int
	}
	var recs []rec
	for rows.Next() {
		var x rec
		if err := rows.Scan(&x.pid, &x.qty); err != nil {
			rows.Close()
			return 0, err
		}
		recs = append(recs, x)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, x := range recs {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, x.pid, x.qty); err != nil {
			return 0, err
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE reservations SET status=$2
		WHERE order_id=$1 AND status <> $2`, orderID, StatusReleased); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(recs), nil
}
