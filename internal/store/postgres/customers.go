package postgres

import (
	"context"
	"fmt"

	"forgeplane/internal/store"

	"github.com/google/uuid"
)

// CreateCustomer inserts a new customer with its hashed API key.
func (s *Store) CreateCustomer(ctx context.Context, c *store.Customer, hashedKey string) error {
	query := `
		INSERT INTO customers (id, name, api_key_hash, rate_limit, rate_limit_burst, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query, c.ID, c.Name, hashedKey, c.RateLimit, c.RateLimitBurst, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("create customer: %w", err)
	}
	return nil
}

// GetCustomerByID returns a customer by its ID.
func (s *Store) GetCustomerByID(ctx context.Context, id uuid.UUID) (*store.Customer, error) {
	query := `
		SELECT id, name, rate_limit, rate_limit_burst, created_at
		FROM customers
		WHERE id = $1
	`
	return s.scanCustomer(s.db.QueryRowContext(ctx, query, id))
}

// GetCustomerByAPIKeyHash returns a customer by its API key hash.
func (s *Store) GetCustomerByAPIKeyHash(ctx context.Context, hash string) (*store.Customer, error) {
	query := `
		SELECT id, name, rate_limit, rate_limit_burst, created_at
		FROM customers
		WHERE api_key_hash = $1
	`
	return s.scanCustomer(s.db.QueryRowContext(ctx, query, hash))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanCustomer(row rowScanner) (*store.Customer, error) {
	var c store.Customer
	if err := row.Scan(&c.ID, &c.Name, &c.RateLimit, &c.RateLimitBurst, &c.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan customer: %w", err)
	}
	return &c, nil
}
