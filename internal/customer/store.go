// Package customer keeps local customer records and mirrors their lifecycle
// onto the hosted payment provider.
package customer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the customer does not exist.
var ErrNotFound = errors.New("customer: not found")

// Customer is a local shopper identity. FoxyCustomerID is empty until the
// first checkout or explicit mirror binds the provider record.
type Customer struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	FoxyCustomerID string    `json:"-"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Store persists customers.
type Store struct {
	Pool *pgxpool.Pool
}

const columns = `id, email, first_name, last_name, coalesce(foxy_customer_id, ''), created_at, updated_at`

func scan(row pgx.Row) (Customer, error) {
	var c Customer
	var id pgtype.UUID
	err := row.Scan(&id, &c.Email, &c.FirstName, &c.LastName, &c.FoxyCustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Customer{}, err
	}
	if id.Valid {
		c.ID = uuid.UUID(id.Bytes)
	}
	return c, nil
}

// Create inserts a customer.
func (s *Store) Create(ctx context.Context, c Customer) (Customer, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO customers (id, email, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING `+columns,
		pgtype.UUID{Bytes: c.ID, Valid: true}, c.Email, c.FirstName, c.LastName)
	created, err := scan(row)
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	return created, nil
}

// Get loads a customer by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Customer, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+columns+` FROM customers WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true})
	c, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// Update rewrites the mutable customer fields.
func (s *Store) Update(ctx context.Context, c Customer) (Customer, error) {
	row := s.Pool.QueryRow(ctx, `
		UPDATE customers SET email = $2, first_name = $3, last_name = $4, updated_at = now()
		WHERE id = $1
		RETURNING `+columns,
		pgtype.UUID{Bytes: c.ID, Valid: true}, c.Email, c.FirstName, c.LastName)
	updated, err := scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrNotFound
		}
		return Customer{}, fmt.Errorf("update customer: %w", err)
	}
	return updated, nil
}

// Delete removes a customer.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM customers WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true})
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BindRemoteCustomer stores the provider customer id against a local
// customer. Local ids arrive as strings because the binding is invoked from
// the provider client, which does not know local id types.
func (s *Store) BindRemoteCustomer(ctx context.Context, localID, remoteID string) error {
	id, err := uuid.Parse(localID)
	if err != nil {
		return fmt.Errorf("bind remote customer: %w", err)
	}
	_, err = s.Pool.Exec(ctx, `
		UPDATE customers SET foxy_customer_id = $2, updated_at = now()
		WHERE id = $1`,
		pgtype.UUID{Bytes: id, Valid: true}, remoteID)
	if err != nil {
		return fmt.Errorf("bind remote customer: %w", err)
	}
	return nil
}
