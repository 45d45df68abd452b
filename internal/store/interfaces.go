package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx.
// This allows passing either a connection pool or an active transaction
// to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type Tx interface {
	DBTransaction
	Commit() error
	Rollback() error
}

// TxLog is the append-only Transaction Log. Append assigns the next
// sequence number and persists the entry before returning; an entry is
// never mutated or deleted while its job is active.
type TxLog interface {
	// Append persists the entry and fills in Entry.Seq.
	Append(ctx context.Context, e *Entry) error

	// Replay streams all entries in ascending sequence order.
	Replay(ctx context.Context, fn func(Entry) error) error

	// LastSeq returns the highest assigned sequence number, 0 if empty.
	LastSeq(ctx context.Context) (int64, error)
}

// CustomerStore handles customer accounts and API key lookups.
type CustomerStore interface {
	// CreateCustomer inserts a new customer with its hashed API key.
	CreateCustomer(ctx context.Context, c *Customer, hashedKey string) error

	// GetCustomerByID returns a customer by its ID.
	GetCustomerByID(ctx context.Context, id uuid.UUID) (*Customer, error)

	// GetCustomerByAPIKeyHash returns a customer by its API key hash.
	GetCustomerByAPIKeyHash(ctx context.Context, hash string) (*Customer, error)
}
