package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AdminNotice is an operator-facing message about a condition that needs
// manual follow-up, such as a refund the provider would not accept.
type AdminNotice struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// NoticeStore persists admin notices.
type NoticeStore struct {
	Pool *pgxpool.Pool
}

// Notice records a new admin notice.
func (s *NoticeStore) Notice(ctx context.Context, code, message string) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO admin_notices (id, code, message)
		VALUES ($1, $2, $3)`,
		pgtype.UUID{Bytes: uuid.New(), Valid: true}, code, message)
	if err != nil {
		return fmt.Errorf("record admin notice: %w", err)
	}
	return nil
}

// List returns the most recent notices, newest first.
func (s *NoticeStore) List(ctx context.Context, limit int) ([]AdminNotice, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, code, message, created_at
		FROM admin_notices
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list admin notices: %w", err)
	}
	defer rows.Close()
	var notices []AdminNotice
	for rows.Next() {
		var n AdminNotice
		var id pgtype.UUID
		if err := rows.Scan(&id, &n.Code, &n.Message, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin notice: %w", err)
		}
		n.ID = fromPGUUID(id)
		notices = append(notices, n)
	}
	return notices, rows.Err()
}
