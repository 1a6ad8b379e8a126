// Package listing defines the account and listing stores the import jobs
// write through, with PostgreSQL and in-memory implementations.
package listing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

var (
	// ErrAccountNotFound is returned by AccountLookup for unknown IDs.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnavailable marks failures of the store itself (connection lost,
	// pool closed, timeouts) as opposed to a problem with one record.
	ErrUnavailable = errors.New("listing store unavailable")
)

// Account is a seller account listings are imported into.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Listing is a stored listing, unique per (AccountID, ExternalID).
type Listing struct {
	ID         string             `json:"id"`
	AccountID  string             `json:"account_id"`
	ExternalID string             `json:"external_id"`
	Title      string             `json:"title"`
	Price      pgtype.Numeric     `json:"price"`
	Quantity   int                `json:"quantity"`
	Status     core.ListingStatus `json:"status"`
	StartDate  time.Time          `json:"start_date"`
	EndDate    *time.Time         `json:"end_date,omitempty"`
	SKU        string             `json:"sku,omitempty"`
	Extra      map[string]string  `json:"extra_fields,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// ListingUpdate replaces the mutable fields of an existing listing.
type ListingUpdate struct {
	Title     string
	Price     pgtype.Numeric
	Quantity  int
	Status    core.ListingStatus
	StartDate time.Time
	EndDate   *time.Time
	SKU       string
	Extra     map[string]string
}

// UpdateFromRecord builds the update applied when a record's external ID already exists.
func UpdateFromRecord(rec core.NormalizedRecord) ListingUpdate {
	return ListingUpdate{
		Title:     rec.Title,
		Price:     rec.Price,
		Quantity:  rec.Quantity,
		Status:    rec.Status,
		StartDate: rec.StartDate,
		EndDate:   rec.EndDate,
		SKU:       rec.SKU,
		Extra:     rec.Extra,
	}
}

// AccountLookup resolves accounts by ID.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*Account, error)
}

// Repository persists listings. FindByExternalID returns (nil, nil) when absent.
type Repository interface {
	FindByExternalID(ctx context.Context, accountID, externalID string) (*Listing, error)
	Create(ctx context.Context, rec core.NormalizedRecord) (*Listing, error)
	Update(ctx context.Context, id string, u ListingUpdate) (*Listing, error)
}
