package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepo struct{ DB *pgxpool.Pool }

var _ Repository = (*PgRepo)(nil)

func (r *PgRepo) Create(ctx context.Context, p *Payment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO payments(id, order_id, user_id, amount, payment_method, status,
		                     transaction_id, error_message, payment_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.Method, p.Status,
		p.TransactionID, p.ErrorMessage, p.PaymentDate, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (r *PgRepo) Update(ctx context.Context, p *Payment) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE payments
		SET status=$2, transaction_id=$3, error_message=$4, updated_at=$5
		WHERE id=$1`,
		p.ID, p.Status, p.TransactionID, p.ErrorMessage, p.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PgRepo) Get(ctx context.Context, id string) (*Payment, error) {
	return r.scanOne(r.DB.QueryRow(ctx, selectPayment+` WHERE id=$1`, id))
}

func (r *PgRepo) GetByOrder(ctx context.Context, orderID string) (*Payment, error) {
	return r.scanOne(r.DB.QueryRow(ctx, selectPayment+` WHERE order_id=$1`, orderID))
}

func (r *PgRepo) ListByUser(ctx context.Context, userID string) ([]*Payment, error) {
	rows, err := r.DB.Query(ctx, selectPayment+` WHERE user_id=$1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(
			&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &p.Status,
			&p.TransactionID, &p.ErrorMessage, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

const selectPayment = `
	SELECT id, order_id, user_id, amount, payment_method, status,
	       transaction_id, error_message, payment_date, created_at, updated_at
	FROM payments`

func (r *PgRepo) scanOne(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.UserID, &p.Amount, &p.Method, &p.Status,
		&p.TransactionID, &p.ErrorMessage, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
