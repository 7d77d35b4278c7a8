package notify

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct{ DB *pgxpool.Pool }

var _ Store = (*PgStore)(nil)

func (s *PgStore) Create(ctx context.Context, n *Notification) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO notifications(id, user_id, category, title, message, data, read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		n.ID, n.UserID, n.Category, n.Title, n.Message, n.Data, n.Read, n.CreatedAt,
	)
	return err
}

func (s *PgStore) ListByUser(ctx context.Context, userID string) ([]*Notification, error) {
	return s.list(ctx, `
		SELECT id, user_id, category, title, message, data, read, created_at
		FROM notifications WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (s *PgStore) ListUnread(ctx context.Context, userID string) ([]*Notification, error) {
	return s.list(ctx, `
		SELECT id, user_id, category, title, message, data, read, created_at
		FROM notifications WHERE user_id=$1 AND read=false ORDER BY created_at DESC`, userID)
}

func (s *PgStore) list(ctx context.Context, query, userID string) ([]*Notification, error) {
	rows, err := s.DB.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Category, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *PgStore) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE user_id=$1 AND read=false`, userID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (s *PgStore) MarkRead(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `UPDATE notifications SET read=true WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgStore) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, `UPDATE notifications SET read=true WHERE user_id=$1 AND read=false`, userID)
	return err
}
