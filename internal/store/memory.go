package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// MemoryLog is an in-process TxLog. It backs single-node deployments
// without a database and the test suites. Entries survive only for the
// lifetime of the process.
type MemoryLog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryLog creates an empty in-memory Transaction Log.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

// Append assigns the next sequence number and stores the entry.
func (l *MemoryLog) Append(_ context.Context, e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.Seq = int64(len(l.entries)) + 1
	l.entries = append(l.entries, *e)
	return nil
}

// Replay invokes fn for every entry in sequence order.
func (l *MemoryLog) Replay(_ context.Context, fn func(Entry) error) error {
	l.mu.Lock()
	snapshot := make([]Entry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.Unlock()

	for _, e := range snapshot {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// LastSeq returns the highest assigned sequence number.
func (l *MemoryLog) LastSeq(_ context.Context) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return int64(len(l.entries)), nil
}

// MemoryCustomers is an in-process CustomerStore for single-node
// deployments without a database.
type MemoryCustomers struct {
	mu     sync.Mutex
	byHash map[string]*Customer
}

// NewMemoryCustomers creates an empty in-memory customer store.
func NewMemoryCustomers() *MemoryCustomers {
	return &MemoryCustomers{byHash: make(map[string]*Customer)}
}

// CreateCustomer stores the customer keyed by its API key hash.
func (m *MemoryCustomers) CreateCustomer(_ context.Context, c *Customer, hashedKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.byHash[hashedKey] = &cp
	return nil
}

// GetCustomerByID returns a customer by its ID.
func (m *MemoryCustomers) GetCustomerByID(_ context.Context, id uuid.UUID) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.byHash {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("customer %s not found", id)
}

// GetCustomerByAPIKeyHash returns a customer by its API key hash.
func (m *MemoryCustomers) GetCustomerByAPIKeyHash(_ context.Context, hash string) (*Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("no customer for key")
	}
	cp := *c
	return &cp, nil
}
