package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlImageUploadRequests = `
CREATE TABLE IF NOT EXISTS image_upload_requests (
    id                BIGSERIAL    PRIMARY KEY,
    customer_id       BIGINT       REFERENCES customers (id),
    upload_token      TEXT         NOT NULL UNIQUE,
    email_sent_to     TEXT         NOT NULL DEFAULT '',
    email_sent_at     TIMESTAMPTZ,
    expires_at        TIMESTAMPTZ  NOT NULL,
    is_used           BOOLEAN      NOT NULL DEFAULT false,
    uploaded_at       TIMESTAMPTZ,
    image_filename    TEXT         NOT NULL DEFAULT '',
    image_path        TEXT         NOT NULL DEFAULT '',
    image_analysis    TEXT         NOT NULL DEFAULT '',
    appliance_type    TEXT         NOT NULL DEFAULT '',
    issue_description TEXT         NOT NULL DEFAULT '',
    call_sid          TEXT         NOT NULL DEFAULT '',
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// Migrate creates or ensures the image_upload_requests table exists. The
// table references customers, so the customer store must be migrated first.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlImageUploadRequests); err != nil {
		return fmt.Errorf("upload migrate: %w", err)
	}
	return nil
}

const requestColumns = `id, customer_id, upload_token, email_sent_to, email_sent_at,
       expires_at, is_used, uploaded_at, image_filename, image_path,
       image_analysis, appliance_type, issue_description, call_sid, created_at`

// Store is the PostgreSQL implementation of [RequestStore]. All methods are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ RequestStore = (*Store)(nil)

// NewStore wraps an existing connection pool. Callers own the pool's
// lifecycle; run [Migrate] before first use.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create implements [RequestStore].
func (s *Store) Create(ctx context.Context, r *Request) error {
	const q = `
		INSERT INTO image_upload_requests (customer_id, upload_token, email_sent_to, email_sent_at,
		                                   expires_at, appliance_type, issue_description, call_sid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	var customerID any
	if r.CustomerID != 0 {
		customerID = r.CustomerID
	}
	err := s.pool.QueryRow(ctx, q,
		customerID, r.Token, r.EmailSentTo, r.EmailSentAt,
		r.ExpiresAt, r.ApplianceType, r.IssueDescription, r.CallSID,
	).Scan(&r.ID, &r.CreatedAt)
	if err != nil {
		return fmt.Errorf("upload store: create request: %w", err)
	}
	return nil
}

// ByToken implements [RequestStore].
func (s *Store) ByToken(ctx context.Context, token string) (*Request, error) {
	const q = `
		SELECT ` + requestColumns + `
		FROM   image_upload_requests
		WHERE  upload_token = $1`

	rows, err := s.pool.Query(ctx, q, token)
	if err != nil {
		return nil, fmt.Errorf("upload store: by token: %w", err)
	}
	requests, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("upload store: by token: %w", err)
	}
	if len(requests) == 0 {
		return nil, nil
	}
	return &requests[0], nil
}

// MarkUploaded implements [RequestStore].
func (s *Store) MarkUploaded(ctx context.Context, id int, at time.Time, filename, path string) error {
	const q = `
		UPDATE image_upload_requests
		SET    is_used = true, uploaded_at = $2, image_filename = $3, image_path = $4
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, at, filename, path)
	if err != nil {
		return fmt.Errorf("upload store: mark uploaded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload store: mark uploaded: request %d not found", id)
	}
	return nil
}

// SaveAnalysis implements [RequestStore].
func (s *Store) SaveAnalysis(ctx context.Context, id int, analysis string) error {
	const q = `
		UPDATE image_upload_requests
		SET    image_analysis = $2
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q, id, analysis)
	if err != nil {
		return fmt.Errorf("upload store: save analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("upload store: save analysis: request %d not found", id)
	}
	return nil
}

func collectRequests(rows pgx.Rows) ([]Request, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Request, error) {
		var (
			r          Request
			customerID pgtype.Int8
			sentAt     pgtype.Timestamptz
			uploadedAt pgtype.Timestamptz
		)
		err := row.Scan(
			&r.ID,
			&customerID,
			&r.Token,
			&r.EmailSentTo,
			&sentAt,
			&r.ExpiresAt,
			&r.IsUsed,
			&uploadedAt,
			&r.ImageFilename,
			&r.ImagePath,
			&r.ImageAnalysis,
			&r.ApplianceType,
			&r.IssueDescription,
			&r.CallSID,
			&r.CreatedAt,
		)
		r.CustomerID = int(customerID.Int64)
		r.EmailSentAt = sentAt.Time
		r.UploadedAt = uploadedAt.Time
		return r, err
	})
}
