// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"forgeplane/internal/auth"
	"forgeplane/internal/store"
)

// customerKey is the context key for the authenticated customer.
type customerKey struct{}

// Auth validates the bearer API key and attaches the customer to the
// request context. Every job operation must be scoped by customer.
func Auth(cs store.CustomerStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}

			customer, err := cs.GetCustomerByAPIKeyHash(r.Context(), auth.HashKey(parts[1]))
			if err != nil {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}

			ctx := NewContextWithCustomer(r.Context(), customer)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewContextWithCustomer returns a context carrying the customer.
func NewContextWithCustomer(ctx context.Context, c *store.Customer) context.Context {
	return context.WithValue(ctx, customerKey{}, c)
}

// CustomerFromContext extracts the authenticated customer.
func CustomerFromContext(ctx context.Context) (*store.Customer, bool) {
	c, ok := ctx.Value(customerKey{}).(*store.Customer)
	return c, ok
}
