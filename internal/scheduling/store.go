package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlTechnicians = `
CREATE TABLE IF NOT EXISTS technicians (
    id               BIGSERIAL    PRIMARY KEY,
    first_name       TEXT         NOT NULL,
    last_name        TEXT         NOT NULL,
    email            TEXT         NOT NULL UNIQUE,
    phone            TEXT         NOT NULL DEFAULT '',
    employee_id      TEXT         NOT NULL UNIQUE,
    is_active        BOOLEAN      NOT NULL DEFAULT true,
    years_experience INT          NOT NULL DEFAULT 0,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS specialties (
    id             BIGSERIAL  PRIMARY KEY,
    appliance_type TEXT       NOT NULL UNIQUE,
    description    TEXT       NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS technician_specialties (
    technician_id BIGINT NOT NULL REFERENCES technicians (id) ON DELETE CASCADE,
    specialty_id  BIGINT NOT NULL REFERENCES specialties (id) ON DELETE CASCADE,
    PRIMARY KEY (technician_id, specialty_id)
);

CREATE TABLE IF NOT EXISTS service_areas (
    id            BIGSERIAL  PRIMARY KEY,
    technician_id BIGINT     NOT NULL REFERENCES technicians (id) ON DELETE CASCADE,
    zip_code      TEXT       NOT NULL,
    is_primary    BOOLEAN    NOT NULL DEFAULT false
);

CREATE INDEX IF NOT EXISTS idx_service_areas_zip
    ON service_areas (zip_code);
`

const ddlTimeSlots = `
CREATE TABLE IF NOT EXISTS time_slots (
    id            BIGSERIAL    PRIMARY KEY,
    technician_id BIGINT       NOT NULL REFERENCES technicians (id) ON DELETE CASCADE,
    date          DATE         NOT NULL,
    start_time    TIME         NOT NULL,
    end_time      TIME         NOT NULL,
    is_available  BOOLEAN      NOT NULL DEFAULT true,
    is_blocked    BOOLEAN      NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_time_slots_open
    ON time_slots (date, start_time)
    WHERE is_available AND NOT is_blocked;
`

const ddlAppointments = `
CREATE TABLE IF NOT EXISTS appointments (
    id                  BIGSERIAL    PRIMARY KEY,
    technician_id       BIGINT       NOT NULL REFERENCES technicians (id),
    customer_id         BIGINT       NOT NULL REFERENCES customers (id),
    time_slot_id        BIGINT       NOT NULL REFERENCES time_slots (id),
    confirmation_number TEXT         NOT NULL UNIQUE,
    status              TEXT         NOT NULL DEFAULT 'scheduled',
    appliance_type      TEXT         NOT NULL,
    issue_description   TEXT         NOT NULL,
    symptoms            TEXT         NOT NULL DEFAULT '',
    customer_notes      TEXT         NOT NULL DEFAULT '',
    technician_notes    TEXT         NOT NULL DEFAULT '',
    call_sid            TEXT         NOT NULL DEFAULT '',
    created_at          TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at          TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_appointments_customer
    ON appointments (customer_id);
`

// Migrate creates or ensures all scheduling tables exist. It is idempotent
// and safe to run on every application start. The appointments table
// references customers, so the customer store must be migrated first.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTechnicians, ddlTimeSlots, ddlAppointments} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("scheduling migrate: %w", err)
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Store
// ─────────────────────────────────────────────────────────────────────────────

// Store runs availability and appointment operations against PostgreSQL.
// All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing connection pool. Callers own the pool's
// lifecycle; run [Migrate] before first use.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// AvailableSlots returns open slots matching the query: available, not
// blocked, inside the date window, in a technician's service area and
// specialty, ordered by date then start time. An empty result is not an
// error.
func (s *Store) AvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	start := q.StartDate
	if start.IsZero() {
		start = time.Now().UTC().AddDate(0, 0, 1)
	}
	end := q.EndDate
	if end.IsZero() {
		end = start.AddDate(0, 0, 14)
	}

	args := []any{
		pgtype.Date{Time: start, Valid: true},
		pgtype.Date{Time: end, Valid: true},
		q.ZipCode,
		q.ApplianceType,
	}
	conditions := []string{
		"ts.is_available",
		"NOT ts.is_blocked",
		"ts.date >= $1",
		"ts.date <= $2",
		"sa.zip_code = $3",
		"sp.appliance_type = $4",
		"t.is_active",
	}
	switch q.TimePreference {
	case "morning":
		conditions = append(conditions, "ts.start_time < TIME '12:00'")
	case "afternoon":
		conditions = append(conditions, "ts.start_time >= TIME '12:00'")
	}

	query := `
		SELECT DISTINCT
		       ts.id, t.id, t.first_name || ' ' || t.last_name,
		       ts.date, ts.start_time, ts.end_time
		FROM   time_slots ts
		JOIN   technicians t  ON t.id = ts.technician_id
		JOIN   service_areas sa ON sa.technician_id = t.id
		JOIN   technician_specialties tsp ON tsp.technician_id = t.id
		JOIN   specialties sp ON sp.id = tsp.specialty_id
		WHERE  ` + strings.Join(conditions, "\n  AND  ") + `
		ORDER  BY ts.date, ts.start_time`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("scheduling store: available slots: %w", err)
	}
	slots, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Slot, error) {
		var (
			sl         Slot
			start, end pgtype.Time
		)
		if err := row.Scan(&sl.ID, &sl.TechnicianID, &sl.TechnicianName, &sl.Date, &start, &end); err != nil {
			return Slot{}, err
		}
		sl.Start = clockOn(sl.Date, start)
		sl.End = clockOn(sl.Date, end)
		return sl, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling store: available slots: scan: %w", err)
	}
	return slots, nil
}

// Book reserves the slot and creates the appointment in one transaction.
// The refusal string is non-empty when the slot cannot be booked for a
// reason the caller should hear ("Time slot not found", "This time slot is
// no longer available", "This time slot is blocked"); err reports storage
// failures only.
func (s *Store) Book(ctx context.Context, req BookRequest) (appt *Appointment, refusal string, err error) {
	confirmation, err := NewConfirmationNumber()
	if err != nil {
		return nil, "", err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		techID    int
		available bool
		blocked   bool
		slotDate  time.Time
		slotStart pgtype.Time
		slotEnd   pgtype.Time
	)
	const lockSlot = `
		SELECT technician_id, is_available, is_blocked, date, start_time, end_time
		FROM   time_slots
		WHERE  id = $1
		FOR UPDATE`
	err = tx.QueryRow(ctx, lockSlot, req.TimeSlotID).
		Scan(&techID, &available, &blocked, &slotDate, &slotStart, &slotEnd)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "Time slot not found", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: lock slot: %w", err)
	}
	if !available {
		return nil, "This time slot is no longer available", nil
	}
	if blocked {
		return nil, "This time slot is blocked", nil
	}

	var techName string
	const techNameQ = `SELECT first_name || ' ' || last_name FROM technicians WHERE id = $1`
	if err := tx.QueryRow(ctx, techNameQ, techID).Scan(&techName); err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: technician: %w", err)
	}

	const takeSlot = `UPDATE time_slots SET is_available = false, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, takeSlot, req.TimeSlotID); err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: take slot: %w", err)
	}

	a := Appointment{
		TechnicianID:       techID,
		CustomerID:         req.CustomerID,
		TimeSlotID:         req.TimeSlotID,
		ConfirmationNumber: confirmation,
		Status:             StatusScheduled,
		ApplianceType:      req.ApplianceType,
		IssueDescription:   req.IssueDescription,
		Symptoms:           req.Symptoms,
		CustomerNotes:      req.CustomerNotes,
		CallSID:            req.CallSID,
		TechnicianName:     techName,
		Date:               slotDate,
		Start:              clockOn(slotDate, slotStart),
		End:                clockOn(slotDate, slotEnd),
	}
	const insert = `
		INSERT INTO appointments
		    (technician_id, customer_id, time_slot_id, confirmation_number, status,
		     appliance_type, issue_description, symptoms, customer_notes, call_sid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`
	err = tx.QueryRow(ctx, insert,
		a.TechnicianID,
		a.CustomerID,
		a.TimeSlotID,
		a.ConfirmationNumber,
		a.Status,
		a.ApplianceType,
		a.IssueDescription,
		a.Symptoms,
		a.CustomerNotes,
		a.CallSID,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("scheduling store: book: commit: %w", err)
	}
	return &a, "", nil
}

// Cancel marks the appointment cancelled and reopens its slot. Completed and
// already-cancelled appointments refuse with a non-empty refusal string;
// cancelling is otherwise idempotent on the slot side.
func (s *Store) Cancel(ctx context.Context, appointmentID int) (refusal string, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("scheduling store: cancel: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		status string
		slotID int
	)
	const lock = `SELECT status, time_slot_id FROM appointments WHERE id = $1 FOR UPDATE`
	err = tx.QueryRow(ctx, lock, appointmentID).Scan(&status, &slotID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "Appointment not found", nil
	}
	if err != nil {
		return "", fmt.Errorf("scheduling store: cancel: lock: %w", err)
	}
	if status == StatusCompleted || status == StatusCancelled {
		return fmt.Sprintf("Cannot cancel appointment with status: %s", status), nil
	}

	const cancel = `UPDATE appointments SET status = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, cancel, appointmentID, StatusCancelled); err != nil {
		return "", fmt.Errorf("scheduling store: cancel: update: %w", err)
	}
	const freeSlot = `UPDATE time_slots SET is_available = true, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(ctx, freeSlot, slotID); err != nil {
		return "", fmt.Errorf("scheduling store: cancel: free slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("scheduling store: cancel: commit: %w", err)
	}
	return "", nil
}

// AppointmentByID returns the appointment with technician and slot joined,
// or (nil, nil) when no such appointment exists.
func (s *Store) AppointmentByID(ctx context.Context, id int) (*Appointment, error) {
	return s.appointment(ctx, "a.id = $1", id)
}

// AppointmentByConfirmation returns the appointment matching a confirmation
// number, or (nil, nil) when no such appointment exists.
func (s *Store) AppointmentByConfirmation(ctx context.Context, confirmation string) (*Appointment, error) {
	return s.appointment(ctx, "a.confirmation_number = $1", confirmation)
}

func (s *Store) appointment(ctx context.Context, condition string, arg any) (*Appointment, error) {
	query := `
		SELECT a.id, a.technician_id, a.customer_id, a.time_slot_id,
		       a.confirmation_number, a.status, a.appliance_type,
		       a.issue_description, a.symptoms, a.customer_notes,
		       a.technician_notes, a.call_sid, a.created_at,
		       t.first_name || ' ' || t.last_name,
		       ts.date, ts.start_time, ts.end_time
		FROM   appointments a
		JOIN   technicians t  ON t.id = a.technician_id
		JOIN   time_slots ts ON ts.id = a.time_slot_id
		WHERE  ` + condition

	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("scheduling store: appointment: %w", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Appointment, error) {
		var (
			a          Appointment
			start, end pgtype.Time
		)
		if err := row.Scan(
			&a.ID,
			&a.TechnicianID,
			&a.CustomerID,
			&a.TimeSlotID,
			&a.ConfirmationNumber,
			&a.Status,
			&a.ApplianceType,
			&a.IssueDescription,
			&a.Symptoms,
			&a.CustomerNotes,
			&a.TechnicianNotes,
			&a.CallSID,
			&a.CreatedAt,
			&a.TechnicianName,
			&a.Date,
			&start,
			&end,
		); err != nil {
			return Appointment{}, err
		}
		a.Start = clockOn(a.Date, start)
		a.End = clockOn(a.Date, end)
		return a, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling store: appointment: scan: %w", err)
	}
	if len(appts) == 0 {
		return nil, nil
	}
	return &appts[0], nil
}

// clockOn combines a slot's calendar day with a TIME column value.
func clockOn(day time.Time, t pgtype.Time) time.Time {
	return day.Add(time.Duration(t.Microseconds) * time.Microsecond)
}
