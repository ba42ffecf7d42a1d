// Package scheduling manages technician availability and service
// appointments in PostgreSQL.
//
// Slot discovery joins technicians with their specialties and service areas,
// booking flips the slot and writes the appointment in one transaction, and
// [FormatAppointment] renders the result the way the voice agent reads it
// back to the caller.
package scheduling

import (
	"crypto/rand"
	"fmt"
	"time"
)

// Appointment status values as stored in the appointments table.
const (
	StatusScheduled  = "scheduled"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// Slot is an open appointment window joined with its technician.
type Slot struct {
	ID             int
	TechnicianID   int
	TechnicianName string

	// Date is the calendar day at midnight UTC. Start and End carry the
	// same day combined with the window's clock time.
	Date  time.Time
	Start time.Time
	End   time.Time
}

// Appointment is a booked service visit, joined with the technician name and
// the slot's date and time window for presentation.
type Appointment struct {
	ID                 int
	TechnicianID       int
	CustomerID         int
	TimeSlotID         int
	ConfirmationNumber string
	Status             string
	ApplianceType      string
	IssueDescription   string
	Symptoms           string
	CustomerNotes      string
	TechnicianNotes    string
	CallSID            string
	CreatedAt          time.Time

	TechnicianName string
	Date           time.Time
	Start          time.Time
	End            time.Time
}

// Details is the presentation form of an appointment, keyed the way the
// voice agent speaks it back and the webhook surface serializes it.
type Details struct {
	ConfirmationNumber string `json:"confirmation_number"`
	Date               string `json:"date"`
	TimeWindow         string `json:"time_window"`
	TechnicianName     string `json:"technician_name"`
	ApplianceType      string `json:"appliance_type"`
	IssueDescription   string `json:"issue_description"`
}

// BookRequest carries everything needed to book a slot for a customer.
type BookRequest struct {
	CustomerID       int
	TimeSlotID       int
	ApplianceType    string
	IssueDescription string
	Symptoms         string
	CustomerNotes    string
	CallSID          string
}

// SlotQuery filters the availability search. Zero StartDate defaults to
// tomorrow, zero EndDate to StartDate plus fourteen days. TimePreference is
// "morning" (start before noon), "afternoon" (start at noon or later), or
// empty for no filter.
type SlotQuery struct {
	ZipCode        string
	ApplianceType  string
	StartDate      time.Time
	EndDate        time.Time
	TimePreference string
}

const confirmationAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// NewConfirmationNumber produces a customer-facing booking code such as
// "SHS-7K2QX9BM": the fixed prefix plus eight random uppercase alphanumerics.
func NewConfirmationNumber() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("scheduling: confirmation number: %w", err)
	}
	code := make([]byte, len(buf))
	for i, b := range buf {
		code[i] = confirmationAlphabet[int(b)%len(confirmationAlphabet)]
	}
	return "SHS-" + string(code), nil
}

// FormatAppointment renders an appointment for voice readback: weekday and
// month spelled out, clock times in 12-hour form with the leading zero
// stripped.
func FormatAppointment(a Appointment) Details {
	return Details{
		ConfirmationNumber: a.ConfirmationNumber,
		Date:               a.Date.Format("Monday, January 02"),
		TimeWindow:         a.Start.Format("3:04 PM") + " to " + a.End.Format("3:04 PM"),
		TechnicianName:     a.TechnicianName,
		ApplianceType:      a.ApplianceType,
		IssueDescription:   a.IssueDescription,
	}
}

// FormatSlot renders one availability line for the agent, e.g.
// "Slot 17: Tuesday, March 04 from 8:00 AM to 10:00 AM with Dana Reyes".
func FormatSlot(s Slot) string {
	return fmt.Sprintf("Slot %d: %s from %s to %s with %s",
		s.ID,
		s.Date.Format("Monday, January 02"),
		s.Start.Format("3:04 PM"),
		s.End.Format("3:04 PM"),
		s.TechnicianName,
	)
}
