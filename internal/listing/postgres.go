package listing

// postgres.go stores accounts and listings in PostgreSQL via pgxpool.
//
// Expected tables:
//
//	accounts (id uuid PRIMARY KEY, name text NOT NULL, created_at timestamptz NOT NULL)
//	listings (id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
//	          account_id uuid NOT NULL REFERENCES accounts(id),
//	          external_id text NOT NULL, title varchar(255) NOT NULL,
//	          price numeric(12,2) NOT NULL, quantity int NOT NULL,
//	          status text NOT NULL, start_date timestamptz NOT NULL,
//	          end_date timestamptz, sku text, extra jsonb NOT NULL DEFAULT '{}',
//	          created_at timestamptz NOT NULL DEFAULT now(),
//	          updated_at timestamptz NOT NULL DEFAULT now(),
//	          UNIQUE (account_id, external_id))

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/ListingImport/internal/core"
)

const listingColumns = `id::text, account_id::text, external_id, title, price, quantity,
	status, start_date, end_date, COALESCE(sku, ''), extra, created_at, updated_at`

// PostgresStore implements AccountLookup and Repository on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an open pool. The caller owns the pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetByID implements AccountLookup.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx,
		`SELECT id::text, name, created_at FROM accounts WHERE id::text = $1`, id,
	).Scan(&a.ID, &a.Name, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, classify("get account", err)
	}
	return &a, nil
}

// FindByExternalID implements Repository.
func (s *PostgresStore) FindByExternalID(ctx context.Context, accountID, externalID string) (*Listing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE account_id::text = $1 AND external_id = $2`,
		accountID, externalID,
	)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find listing", err)
	}
	return l, nil
}

// Create implements Repository.
func (s *PostgresStore) Create(ctx context.Context, rec core.NormalizedRecord) (*Listing, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO listings (account_id, external_id, title, price, quantity, status,
			start_date, end_date, sku, extra)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), COALESCE($10::jsonb, '{}'::jsonb))
		RETURNING `+listingColumns,
		rec.AccountID, rec.ExternalID, rec.Title, rec.Price, rec.Quantity, string(rec.Status),
		rec.StartDate, rec.EndDate, rec.SKU, extraArg(rec.Extra),
	)
	l, err := scanListing(row)
	if err != nil {
		return nil, classify("create listing", err)
	}
	return l, nil
}

// Update implements Repository.
func (s *PostgresStore) Update(ctx context.Context, id string, u ListingUpdate) (*Listing, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE listings SET title = $2, price = $3, quantity = $4, status = $5,
			start_date = $6, end_date = $7, sku = NULLIF($8, ''),
			extra = COALESCE($9::jsonb, '{}'::jsonb), updated_at = now()
		WHERE id::text = $1
		RETURNING `+listingColumns,
		id, u.Title, u.Price, u.Quantity, string(u.Status),
		u.StartDate, u.EndDate, u.SKU, extraArg(u.Extra),
	)
	l, err := scanListing(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update listing %s: not found", id)
	}
	if err != nil {
		return nil, classify("update listing", err)
	}
	return l, nil
}

// Ping reports whether the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func scanListing(row pgx.Row) (*Listing, error) {
	var (
		l      Listing
		status string
		end    pgtype.Timestamptz
	)
	err := row.Scan(
		&l.ID, &l.AccountID, &l.ExternalID, &l.Title, &l.Price, &l.Quantity,
		&status, &l.StartDate, &end, &l.SKU, &l.Extra, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.Status = core.ListingStatus(status)
	if end.Valid {
		t := end.Time
		l.EndDate = &t
	}
	return &l, nil
}

// extraArg sends nil for an empty map so the column default applies.
func extraArg(extra map[string]string) any {
	if len(extra) == 0 {
		return nil
	}
	return extra
}

// classify wraps connection-level failures with ErrUnavailable so the job
// manager fails the job instead of counting a per-record error.
func classify(op string, err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	if pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception. 57P01-57P03: server shutting down / unavailable.
		switch {
		case len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03":
			return true
		}
	}
	return errors.Is(err, pgx.ErrTxClosed) || err.Error() == "closed pool"
}
