package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"forgeplane/internal/store"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestCreateCustomer_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	c := &store.Customer{
		ID:        uuid.New(),
		Name:      "atelier-north",
		CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO customers`).
		WithArgs(c.ID, c.Name, "hash123", c.RateLimit, c.RateLimitBurst, c.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.CreateCustomer(context.Background(), c, "hash123"); err != nil {
		t.Fatalf("CreateCustomer failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestGetCustomerByAPIKeyHash_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, rate_limit, rate_limit_burst, created_at FROM customers`).
		WithArgs("hash123").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "rate_limit", "rate_limit_burst", "created_at"}).
			AddRow(id, "atelier-north", 2.0, 5, time.Now()))

	c, err := s.GetCustomerByAPIKeyHash(context.Background(), "hash123")
	if err != nil {
		t.Fatalf("GetCustomerByAPIKeyHash failed: %v", err)
	}
	if c.ID != id || c.Name != "atelier-north" || c.RateLimit != 2.0 || c.RateLimitBurst != 5 {
		t.Errorf("customer mismatch: %+v", c)
	}
}

func TestGetCustomerByAPIKeyHash_NotFound(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	mock.ExpectQuery(`SELECT id, name, rate_limit, rate_limit_burst, created_at FROM customers`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetCustomerByAPIKeyHash(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("got err %v, want wrapped sql.ErrNoRows", err)
	}
}

func TestGetCustomerByID_Success(t *testing.T) {
	s, mock := newMockStore(t)
	defer s.db.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, name, rate_limit, rate_limit_burst, created_at FROM customers`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "rate_limit", "rate_limit_burst", "created_at"}).
			AddRow(id, "studio-mira", 0.0, 0, time.Now()))

	c, err := s.GetCustomerByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetCustomerByID failed: %v", err)
	}
	if c.Name != "studio-mira" {
		t.Errorf("got name %q, want studio-mira", c.Name)
	}
}
