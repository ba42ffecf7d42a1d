package scheduling_test

import (
	"strings"
	"testing"
	"time"

	"github.com/hearthware/applicall/internal/scheduling"
)

func TestNewConfirmationNumber(t *testing.T) {
	t.Parallel()

	code, err := scheduling.NewConfirmationNumber()
	if err != nil {
		t.Fatalf("NewConfirmationNumber: %v", err)
	}
	if len(code) != 12 {
		t.Errorf("len(%q) = %d, want 12", code, len(code))
	}
	if !strings.HasPrefix(code, "SHS-") {
		t.Errorf("code %q missing SHS- prefix", code)
	}
	for _, r := range code[4:] {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789", r) {
			t.Errorf("code %q contains %q outside the alphabet", code, r)
		}
	}

	other, err := scheduling.NewConfirmationNumber()
	if err != nil {
		t.Fatalf("NewConfirmationNumber: %v", err)
	}
	if other == code {
		t.Errorf("two codes collided: %q", code)
	}
}

func TestFormatAppointment(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC) // a Monday
	a := scheduling.Appointment{
		ConfirmationNumber: "SHS-AB12CD34",
		ApplianceType:      "washer",
		IssueDescription:   "won't start",
		TechnicianName:     "Dana Reyes",
		Date:               day,
		Start:              day.Add(9 * time.Hour),
		End:                day.Add(11 * time.Hour),
	}

	d := scheduling.FormatAppointment(a)
	if d.Date != "Monday, March 09" {
		t.Errorf("date = %q", d.Date)
	}
	if d.TimeWindow != "9:00 AM to 11:00 AM" {
		t.Errorf("time window = %q", d.TimeWindow)
	}
	if d.TechnicianName != "Dana Reyes" || d.ConfirmationNumber != "SHS-AB12CD34" {
		t.Errorf("details = %+v", d)
	}
	if d.ApplianceType != "washer" || d.IssueDescription != "won't start" {
		t.Errorf("details = %+v", d)
	}
}

func TestFormatAppointment_AfternoonClock(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.July, 3, 0, 0, 0, 0, time.UTC) // a Friday
	a := scheduling.Appointment{
		Date:  day,
		Start: day.Add(13 * time.Hour),
		End:   day.Add(15 * time.Hour),
	}

	d := scheduling.FormatAppointment(a)
	if d.Date != "Friday, July 03" {
		t.Errorf("date = %q", d.Date)
	}
	if d.TimeWindow != "1:00 PM to 3:00 PM" {
		t.Errorf("time window = %q", d.TimeWindow)
	}
}

func TestFormatSlot(t *testing.T) {
	t.Parallel()

	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC) // a Tuesday
	s := scheduling.Slot{
		ID:             17,
		TechnicianName: "Dana Reyes",
		Date:           day,
		Start:          day.Add(8 * time.Hour),
		End:            day.Add(10 * time.Hour),
	}

	want := "Slot 17: Tuesday, March 10 from 8:00 AM to 10:00 AM with Dana Reyes"
	if got := scheduling.FormatSlot(s); got != want {
		t.Errorf("FormatSlot = %q, want %q", got, want)
	}
}
