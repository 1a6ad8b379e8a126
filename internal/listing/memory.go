package listing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

// MemoryStore implements AccountLookup and Repository in process memory.
// Used for dry runs and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	listings   map[string]*Listing
	byExternal map[string]string // accountID + "\x00" + externalID -> listing ID
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:   make(map[string]Account),
		listings:   make(map[string]*Listing),
		byExternal: make(map[string]string),
	}
}

// AddAccount registers an account. An empty ID gets a generated one.
func (s *MemoryStore) AddAccount(id, name string) Account {
	if id == "" {
		id = uuid.New().String()
	}
	a := Account{ID: id, Name: name, CreatedAt: time.Now().UTC()}

	s.mu.Lock()
	s.accounts[id] = a
	s.mu.Unlock()
	return a
}

// GetByID implements AccountLookup.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return &a, nil
}

// FindByExternalID implements Repository.
func (s *MemoryStore) FindByExternalID(ctx context.Context, accountID, externalID string) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalKey(accountID, externalID)]
	if !ok {
		return nil, nil
	}
	return copyListing(s.listings[id]), nil
}

// Create implements Repository. Creating a duplicate external ID is an error.
func (s *MemoryStore) Create(ctx context.Context, rec core.NormalizedRecord) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := externalKey(rec.AccountID, rec.ExternalID)
	if _, exists := s.byExternal[key]; exists {
		return nil, fmt.Errorf("create listing: duplicate key %s", rec.ExternalID)
	}

	now := time.Now().UTC()
	l := &Listing{
		ID:         uuid.New().String(),
		AccountID:  rec.AccountID,
		ExternalID: rec.ExternalID,
		CreatedAt:  now,
	}
	applyUpdate(l, UpdateFromRecord(rec), now)

	s.listings[l.ID] = l
	s.byExternal[key] = l.ID
	return copyListing(l), nil
}

// Update implements Repository.
func (s *MemoryStore) Update(ctx context.Context, id string, u ListingUpdate) (*Listing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("update listing %s: not found", id)
	}
	applyUpdate(l, u, time.Now().UTC())
	return copyListing(l), nil
}

// Listings returns an account's listings ordered by external ID.
func (s *MemoryStore) Listings(accountID string) []Listing {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Listing
	for _, l := range s.listings {
		if l.AccountID == accountID {
			out = append(out, *copyListing(l))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out
}

func applyUpdate(l *Listing, u ListingUpdate, at time.Time) {
	l.Title = u.Title
	l.Price = u.Price
	l.Quantity = u.Quantity
	l.Status = u.Status
	l.StartDate = u.StartDate
	l.EndDate = u.EndDate
	l.SKU = u.SKU
	l.Extra = u.Extra
	l.UpdatedAt = at
}

func copyListing(l *Listing) *Listing {
	c := *l
	if l.EndDate != nil {
		end := *l.EndDate
		c.EndDate = &end
	}
	if l.Extra != nil {
		c.Extra = make(map[string]string, len(l.Extra))
		for k, v := range l.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func externalKey(accountID, externalID string) string {
	return accountID + "\x00" + externalID
}
