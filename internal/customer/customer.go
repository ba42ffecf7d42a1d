// Package customer stores caller records keyed by phone number.
//
// A record is created the moment an unknown number calls in and is enriched
// over the conversation as the agent learns the caller's name, email and
// address.
package customer

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    id                       BIGSERIAL    PRIMARY KEY,
    phone                    TEXT         NOT NULL UNIQUE,
    email                    TEXT         NOT NULL DEFAULT '',
    first_name               TEXT         NOT NULL DEFAULT '',
    last_name                TEXT         NOT NULL DEFAULT '',
    address_line1            TEXT         NOT NULL DEFAULT '',
    address_line2            TEXT         NOT NULL DEFAULT '',
    city                     TEXT         NOT NULL DEFAULT '',
    state                    TEXT         NOT NULL DEFAULT '',
    zip_code                 TEXT         NOT NULL DEFAULT '',
    preferred_contact_method TEXT         NOT NULL DEFAULT 'phone',
    created_at               TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures the customers table exists. Idempotent; other
// stores reference customers, so run this migration first.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlCustomers); err != nil {
		return fmt.Errorf("customer migrate: %w", err)
	}
	return nil
}

// Customer is a caller record. String fields are empty until learned.
type Customer struct {
	ID                     int
	Phone                  string
	Email                  string
	FirstName              string
	LastName               string
	AddressLine1           string
	AddressLine2           string
	City                   string
	State                  string
	ZipCode                string
	PreferredContactMethod string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// FullName returns "First Last", either part alone, or "" when unknown.
func (c *Customer) FullName() string {
	switch {
	case c.FirstName != "" && c.LastName != "":
		return c.FirstName + " " + c.LastName
	case c.FirstName != "":
		return c.FirstName
	default:
		return c.LastName
	}
}

// Update carries a partial customer update; nil fields are left untouched.
type Update struct {
	Email                  *string
	FirstName              *string
	LastName               *string
	AddressLine1           *string
	AddressLine2           *string
	City                   *string
	State                  *string
	ZipCode                *string
	PreferredContactMethod *string
}

// SplitName splits a spoken full name into first and last parts at the first
// whitespace run. A single token is all first name.
func SplitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexFunc(full, unicode.IsSpace); i >= 0 {
		return full[:i], strings.TrimLeftFunc(full[i:], unicode.IsSpace)
	}
	return full, ""
}

const customerColumns = `id, phone, email, first_name, last_name,
       address_line1, address_line2, city, state, zip_code,
       preferred_contact_method, created_at, updated_at`

// Store runs customer operations against PostgreSQL. All methods are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing connection pool. Callers own the pool's
// lifecycle; run [Migrate] before first use.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetOrCreate returns the customer with the given phone number, inserting a
// fresh record when the number has never called before. Safe under
// concurrent calls for the same number.
func (s *Store) GetOrCreate(ctx context.Context, phone string) (*Customer, error) {
	const q = `
		INSERT INTO customers (phone)
		VALUES ($1)
		ON CONFLICT (phone) DO UPDATE SET phone = EXCLUDED.phone
		RETURNING ` + customerColumns

	rows, err := s.pool.Query(ctx, q, phone)
	if err != nil {
		return nil, fmt.Errorf("customer store: get or create: %w", err)
	}
	customers, err := collectCustomers(rows)
	if err != nil {
		return nil, fmt.Errorf("customer store: get or create: %w", err)
	}
	if len(customers) == 0 {
		return nil, fmt.Errorf("customer store: get or create: no row returned for %q", phone)
	}
	return &customers[0], nil
}

// ByID returns the customer with the given id, or (nil, nil) when absent.
func (s *Store) ByID(ctx context.Context, id int) (*Customer, error) {
	return s.one(ctx, "id = $1", id)
}

// ByPhone returns the customer with the given phone number, or (nil, nil)
// when absent.
func (s *Store) ByPhone(ctx context.Context, phone string) (*Customer, error) {
	return s.one(ctx, "phone = $1", phone)
}

// ApplyUpdate writes the non-nil fields of u and returns the refreshed
// record, or (nil, nil) when no customer has the given id.
func (s *Store) ApplyUpdate(ctx context.Context, id int, u Update) (*Customer, error) {
	args := []any{id}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	assignments := []string{"updated_at = now()"}
	for _, f := range []struct {
		col string
		val *string
	}{
		{"email", u.Email},
		{"first_name", u.FirstName},
		{"last_name", u.LastName},
		{"address_line1", u.AddressLine1},
		{"address_line2", u.AddressLine2},
		{"city", u.City},
		{"state", u.State},
		{"zip_code", u.ZipCode},
		{"preferred_contact_method", u.PreferredContactMethod},
	} {
		if f.val != nil {
			assignments = append(assignments, f.col+" = "+next(*f.val))
		}
	}

	q := "UPDATE customers\nSET    " + strings.Join(assignments, ",\n       ") +
		"\nWHERE  id = $1\nRETURNING " + customerColumns

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("customer store: update: %w", err)
	}
	customers, err := collectCustomers(rows)
	if err != nil {
		return nil, fmt.Errorf("customer store: update: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

func (s *Store) one(ctx context.Context, condition string, arg any) (*Customer, error) {
	q := "SELECT " + customerColumns + "\nFROM   customers\nWHERE  " + condition

	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("customer store: query: %w", err)
	}
	customers, err := collectCustomers(rows)
	if err != nil {
		return nil, fmt.Errorf("customer store: query: %w", err)
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

func collectCustomers(rows pgx.Rows) ([]Customer, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Customer, error) {
		var c Customer
		err := row.Scan(
			&c.ID,
			&c.Phone,
			&c.Email,
			&c.FirstName,
			&c.LastName,
			&c.AddressLine1,
			&c.AddressLine2,
			&c.City,
			&c.State,
			&c.ZipCode,
			&c.PreferredContactMethod,
			&c.CreatedAt,
			&c.UpdatedAt,
		)
		return c, err
	})
}
