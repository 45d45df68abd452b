package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"forgeplane/internal/auth"
	"forgeplane/internal/store"

	"github.com/google/uuid"
)

var errNotFound = errors.New("not found")

type fakeCustomerStore struct {
	byHash map[string]*store.Customer
}

func (f *fakeCustomerStore) CreateCustomer(_ context.Context, c *store.Customer, hash string) error {
	f.byHash[hash] = c
	return nil
}

func (f *fakeCustomerStore) GetCustomerByID(_ context.Context, id uuid.UUID) (*store.Customer, error) {
	for _, c := range f.byHash {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errNotFound
}

func (f *fakeCustomerStore) GetCustomerByAPIKeyHash(_ context.Context, hash string) (*store.Customer, error) {
	c, ok := f.byHash[hash]
	if !ok {
		return nil, errNotFound
	}
	return c, nil
}

func TestAuth(t *testing.T) {
	key := "fp_testkey"
	customer := &store.Customer{ID: uuid.New(), Name: "atelier-north"}
	cs := &fakeCustomerStore{byHash: map[string]*store.Customer{
		auth.HashKey(key): customer,
	}}

	var gotCustomer *store.Customer
	handler := Auth(cs)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCustomer, _ = CustomerFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		authHeader string
		wantStatus int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"unknown key", "Bearer fp_wrong", http.StatusUnauthorized},
		{"valid key", "Bearer " + key, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotCustomer = nil
			req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotCustomer == nil || gotCustomer.ID != customer.ID {
					t.Errorf("customer not attached to context: %+v", gotCustomer)
				}
			}
		})
	}
}

func TestRequireUnitAuth(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("empty secret disables the check", func(t *testing.T) {
		handler := RequireUnitAuth("")(next)
		req := httptest.NewRequest(http.MethodGet, "/internal/units/u1/assignment", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("got status %d, want 200", rec.Code)
		}
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		handler := RequireUnitAuth("secret")(next)
		req := httptest.NewRequest(http.MethodGet, "/internal/units/u1/assignment", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})

	t.Run("correct token accepted", func(t *testing.T) {
		handler := RequireUnitAuth("secret")(next)
		req := httptest.NewRequest(http.MethodGet, "/internal/units/u1/assignment", nil)
		req.Header.Set("Authorization", "Bearer secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("got status %d, want 200", rec.Code)
		}
	})
}

func TestRateLimit(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := RateLimit()(next)

	send := func(c *store.Customer) int {
		req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
		req = req.WithContext(NewContextWithCustomer(req.Context(), c))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	t.Run("no customer in context", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/jobs", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})

	t.Run("unlimited customer never throttled", func(t *testing.T) {
		c := &store.Customer{ID: uuid.New()}
		for i := 0; i < 20; i++ {
			if code := send(c); code != http.StatusCreated {
				t.Fatalf("request %d: got status %d, want 201", i, code)
			}
		}
	})

	t.Run("burst exhausted", func(t *testing.T) {
		c := &store.Customer{ID: uuid.New(), RateLimit: 0.001, RateLimitBurst: 2}
		if code := send(c); code != http.StatusCreated {
			t.Fatalf("first request: got status %d", code)
		}
		if code := send(c); code != http.StatusCreated {
			t.Fatalf("second request: got status %d", code)
		}
		if code := send(c); code != http.StatusTooManyRequests {
			t.Errorf("third request: got status %d, want 429", code)
		}
	})

	t.Run("isolated per customer", func(t *testing.T) {
		a := &store.Customer{ID: uuid.New(), RateLimit: 0.001, RateLimitBurst: 1}
		b := &store.Customer{ID: uuid.New(), RateLimit: 0.001, RateLimitBurst: 1}
		send(a)
		if code := send(a); code != http.StatusTooManyRequests {
			t.Fatalf("customer a not throttled: %d", code)
		}
		if code := send(b); code != http.StatusCreated {
			t.Errorf("customer b throttled by a's limiter: %d", code)
		}
	})
}
