package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"forgeplane/internal/auth"
	"forgeplane/internal/store"
	"forgeplane/pkg/api"

	"github.com/google/uuid"
)

// CreateCustomer registers a customer account and returns its API key.
// The plaintext key is shown exactly once; only the hash is stored.
func (h *Handlers) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		httpError(w, http.StatusBadRequest, "name is required")
		return
	}

	key, err := auth.GenerateKey()
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to generate api key", "error", err)
		httpError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	customer := &store.Customer{
		ID:        uuid.New(),
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.customers.CreateCustomer(r.Context(), customer, auth.HashKey(key)); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to create customer", "error", err)
		httpError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	respondJson(w, http.StatusCreated, api.CreateCustomerResponse{
		ID:     customer.ID.String(),
		Name:   customer.Name,
		ApiKey: key,
	})
}
