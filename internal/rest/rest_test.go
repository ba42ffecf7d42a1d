package rest_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/rest"
	"github.com/hearthware/applicall/internal/scheduling"
)

type fakeScheduling struct {
	slots    []scheduling.Slot
	gotQuery scheduling.SlotQuery

	appt        *scheduling.Appointment
	bookRefusal string
	gotBook     scheduling.BookRequest

	cancelRefusal string
	gotCancelID   int

	gotLookupID     int
	gotConfirmation string
}

func (f *fakeScheduling) AvailableSlots(_ context.Context, q scheduling.SlotQuery) ([]scheduling.Slot, error) {
	f.gotQuery = q
	return f.slots, nil
}

func (f *fakeScheduling) Book(_ context.Context, req scheduling.BookRequest) (*scheduling.Appointment, string, error) {
	f.gotBook = req
	if f.bookRefusal != "" {
		return nil, f.bookRefusal, nil
	}
	return f.appt, "", nil
}

func (f *fakeScheduling) Cancel(_ context.Context, appointmentID int) (string, error) {
	f.gotCancelID = appointmentID
	return f.cancelRefusal, nil
}

func (f *fakeScheduling) AppointmentByID(_ context.Context, id int) (*scheduling.Appointment, error) {
	f.gotLookupID = id
	return f.appt, nil
}

func (f *fakeScheduling) AppointmentByConfirmation(_ context.Context, confirmation string) (*scheduling.Appointment, error) {
	f.gotConfirmation = confirmation
	return f.appt, nil
}

type fakeCustomers struct {
	cust     *customer.Customer
	gotID    int
	gotPhone string
}

func (f *fakeCustomers) ByID(_ context.Context, id int) (*customer.Customer, error) {
	f.gotID = id
	return f.cust, nil
}

func (f *fakeCustomers) ByPhone(_ context.Context, phone string) (*customer.Customer, error) {
	f.gotPhone = phone
	return f.cust, nil
}

func newTestServer(t *testing.T, s rest.Scheduling, c rest.Customers) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	rest.NewHandler(s, c).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// do sends one request and returns status code and body. A non-empty body is
// sent as JSON.
func do(t *testing.T, method, rawURL, body string) (int, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, rawURL, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(raw)
}

// march4 is a Wednesday; window fixtures hang off it.
var march4 = time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

func testAppointment() *scheduling.Appointment {
	return &scheduling.Appointment{
		ID:                 42,
		TechnicianID:       3,
		CustomerID:         7,
		TimeSlotID:         17,
		ConfirmationNumber: "SHS-7K2QX9BM",
		Status:             scheduling.StatusScheduled,
		ApplianceType:      "washer",
		IssueDescription:   "not draining",
		CreatedAt:          march4.Add(-24 * time.Hour),
		TechnicianName:     "Dana Reyes",
		Date:               march4,
		Start:              march4.Add(8 * time.Hour),
		End:                march4.Add(10 * time.Hour),
	}
}

// ─── Availability ────────────────────────────────────────────────────────────

func TestAvailability_ReturnsSlots(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{slots: []scheduling.Slot{{
		ID:             17,
		TechnicianID:   3,
		TechnicianName: "Dana Reyes",
		Date:           march4,
		Start:          march4.Add(8 * time.Hour),
		End:            march4.Add(10 * time.Hour),
	}}}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodGet,
		srv.URL+"/api/availability?zip_code=78701&appliance_type=washer&time_preference=morning&start_date=2026-03-02", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}

	var slots []struct {
		SlotID         int    `json:"slot_id"`
		TechnicianName string `json:"technician_name"`
		Date           string `json:"date"`
		StartTime      string `json:"start_time"`
		EndTime        string `json:"end_time"`
	}
	if err := json.Unmarshal([]byte(body), &slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 1 || slots[0].SlotID != 17 || slots[0].TechnicianName != "Dana Reyes" {
		t.Errorf("slots = %+v", slots)
	}
	if slots[0].Date != "2026-03-04" || slots[0].StartTime != "08:00:00" || slots[0].EndTime != "10:00:00" {
		t.Errorf("window = %+v; want ISO date and clock times", slots[0])
	}

	if sched.gotQuery.ZipCode != "78701" || sched.gotQuery.ApplianceType != "washer" {
		t.Errorf("query = %+v", sched.gotQuery)
	}
	if sched.gotQuery.TimePreference != "morning" {
		t.Errorf("time preference = %q", sched.gotQuery.TimePreference)
	}
	if want := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC); !sched.gotQuery.StartDate.Equal(want) {
		t.Errorf("start date = %v; want %v", sched.gotQuery.StartDate, want)
	}
}

func TestAvailability_NoSlotsIsAnEmptyList(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/availability?zip_code=78701&appliance_type=washer", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if strings.TrimSpace(body) != "[]" {
		t.Errorf("body = %q; want an empty list, not null", body)
	}
}

func TestAvailability_RequiresZipAndAppliance(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/availability?zip_code=78701", "")
	if status != http.StatusBadRequest {
		t.Errorf("status = %d; want 400", status)
	}
	if !strings.Contains(body, "appliance_type") {
		t.Errorf("body = %s; want the missing parameter named", body)
	}
}

func TestAvailability_RejectsBadInput(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	base := srv.URL + "/api/availability?zip_code=78701&appliance_type=washer"
	if status, _ := do(t, http.MethodGet, base+"&time_preference=evening", ""); status != http.StatusBadRequest {
		t.Errorf("bad time preference status = %d; want 400", status)
	}
	if status, _ := do(t, http.MethodGet, base+"&start_date=tomorrow", ""); status != http.StatusBadRequest {
		t.Errorf("bad start date status = %d; want 400", status)
	}
}

// ─── Appointments ────────────────────────────────────────────────────────────

func TestBookAppointment_Books(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{appt: testAppointment()}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodPost, srv.URL+"/api/appointments", `{
		"customer_id": 7, "time_slot_id": 17,
		"appliance_type": "washer", "issue_description": "not draining",
		"call_sid": "CA100"
	}`)
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}

	var appt struct {
		ConfirmationNumber string `json:"confirmation_number"`
		Status             string `json:"status"`
		TechnicianName     string `json:"technician_name"`
		AppointmentDate    string `json:"appointment_date"`
		AppointmentTime    string `json:"appointment_time"`
	}
	if err := json.Unmarshal([]byte(body), &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.ConfirmationNumber != "SHS-7K2QX9BM" || appt.Status != "scheduled" {
		t.Errorf("appointment = %+v", appt)
	}
	if appt.AppointmentDate != "2026-03-04" || appt.AppointmentTime != "08:00:00" {
		t.Errorf("window = %+v", appt)
	}

	if sched.gotBook.CustomerID != 7 || sched.gotBook.TimeSlotID != 17 || sched.gotBook.CallSID != "CA100" {
		t.Errorf("book request = %+v", sched.gotBook)
	}
}

func TestBookAppointment_RefusalAnswers400(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{bookRefusal: "This time slot is no longer available"}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodPost, srv.URL+"/api/appointments", `{
		"customer_id": 7, "time_slot_id": 17,
		"appliance_type": "washer", "issue_description": "not draining"
	}`)
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "This time slot is no longer available") {
		t.Errorf("body = %s; want the refusal as detail", body)
	}
}

func TestBookAppointment_RequiresFields(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	if status, _ := do(t, http.MethodPost, srv.URL+"/api/appointments", `{"customer_id": 7}`); status != http.StatusBadRequest {
		t.Errorf("incomplete body status = %d; want 400", status)
	}
	if status, _ := do(t, http.MethodPost, srv.URL+"/api/appointments", `{not json`); status != http.StatusBadRequest {
		t.Errorf("malformed body status = %d; want 400", status)
	}
}

func TestAppointmentByID_ReturnsAppointment(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{appt: testAppointment()}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/appointments/42", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if sched.gotLookupID != 42 {
		t.Errorf("looked up id %d; want 42", sched.gotLookupID)
	}
	if !strings.Contains(body, `"confirmation_number":"SHS-7K2QX9BM"`) {
		t.Errorf("body = %s", body)
	}
}

func TestAppointmentByID_NotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/appointments/42", "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", status)
	}
	if !strings.Contains(body, "Appointment not found") {
		t.Errorf("body = %s", body)
	}

	if status, _ := do(t, http.MethodGet, srv.URL+"/api/appointments/forty-two", ""); status != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d; want 400", status)
	}
}

func TestAppointmentByConfirmation_SpeaksTheBookingDetails(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{appt: testAppointment()}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/appointments/confirmation/SHS-7K2QX9BM", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if sched.gotConfirmation != "SHS-7K2QX9BM" {
		t.Errorf("looked up %q", sched.gotConfirmation)
	}

	var details scheduling.Details
	if err := json.Unmarshal([]byte(body), &details); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if details.Date != "Wednesday, March 04" {
		t.Errorf("date = %q", details.Date)
	}
	if details.TimeWindow != "8:00 AM to 10:00 AM" {
		t.Errorf("time window = %q", details.TimeWindow)
	}
	if details.TechnicianName != "Dana Reyes" {
		t.Errorf("technician = %q", details.TechnicianName)
	}
}

func TestCancelAppointment_Cancels(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodDelete, srv.URL+"/api/appointments/42", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if sched.gotCancelID != 42 {
		t.Errorf("cancelled id %d; want 42", sched.gotCancelID)
	}
	if !strings.Contains(body, "Appointment cancelled successfully") {
		t.Errorf("body = %s", body)
	}
}

func TestCancelAppointment_RefusalAnswers400(t *testing.T) {
	t.Parallel()
	sched := &fakeScheduling{cancelRefusal: "Cannot cancel appointment with status: completed"}
	srv := newTestServer(t, sched, &fakeCustomers{})

	status, body := do(t, http.MethodDelete, srv.URL+"/api/appointments/42", "")
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d; want 400", status)
	}
	if !strings.Contains(body, "Cannot cancel appointment with status: completed") {
		t.Errorf("body = %s; want the refusal as detail", body)
	}
}

// ─── Customers ───────────────────────────────────────────────────────────────

func TestCustomerByID_ReturnsRecord(t *testing.T) {
	t.Parallel()
	customers := &fakeCustomers{cust: &customer.Customer{
		ID: 7, Phone: "+15550012345", FirstName: "Maria", LastName: "Lopez", ZipCode: "78701",
	}}
	srv := newTestServer(t, &fakeScheduling{}, customers)

	status, body := do(t, http.MethodGet, srv.URL+"/api/customers/7", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if customers.gotID != 7 {
		t.Errorf("looked up id %d", customers.gotID)
	}
	if !strings.Contains(body, `"first_name":"Maria"`) || !strings.Contains(body, `"zip_code":"78701"`) {
		t.Errorf("body = %s", body)
	}
}

func TestCustomerByPhone_ReturnsRecord(t *testing.T) {
	t.Parallel()
	customers := &fakeCustomers{cust: &customer.Customer{ID: 7, Phone: "+15550012345"}}
	srv := newTestServer(t, &fakeScheduling{}, customers)

	status, body := do(t, http.MethodGet, srv.URL+"/api/customers/phone/"+url.PathEscape("+15550012345"), "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if customers.gotPhone != "+15550012345" {
		t.Errorf("looked up phone %q", customers.gotPhone)
	}
}

func TestCustomer_NotFound(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/customers/7", "")
	if status != http.StatusNotFound {
		t.Fatalf("status = %d; want 404", status)
	}
	if !strings.Contains(body, "Customer not found") {
		t.Errorf("body = %s", body)
	}
}

// ─── Diagnostics ─────────────────────────────────────────────────────────────

func TestDiagnostics_ListsAppliances(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/diagnostics/appliances", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var resp struct {
		Appliances []string `json:"appliances"`
	}
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Appliances) != 10 {
		t.Errorf("appliances = %v; want all ten tags", resp.Appliances)
	}
	if !strings.Contains(body, "garbage_disposal") {
		t.Errorf("body = %s", body)
	}
}

func TestDiagnostics_SymptomsAndQuestions(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/diagnostics/washer/symptoms", "")
	if status != http.StatusOK {
		t.Fatalf("symptoms status = %d", status)
	}
	if !strings.Contains(body, `"appliance_type":"washer"`) || !strings.Contains(body, "not draining") {
		t.Errorf("symptoms body = %s", body)
	}

	status, body = do(t, http.MethodGet, srv.URL+"/api/diagnostics/dryer/questions", "")
	if status != http.StatusOK {
		t.Fatalf("questions status = %d", status)
	}
	if !strings.Contains(body, "Is it a gas or electric dryer?") {
		t.Errorf("questions body = %s", body)
	}
}

func TestDiagnostics_UnknownApplianceIsAnEmptyList(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	status, body := do(t, http.MethodGet, srv.URL+"/api/diagnostics/toaster/symptoms", "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, `"symptoms":[]`) {
		t.Errorf("body = %s; want an empty list, not null", body)
	}
}

func TestDiagnostics_TroubleshootMatchesSymptom(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	target := srv.URL + "/api/diagnostics/washer/troubleshoot?symptom=" + url.QueryEscape("it won't start")
	status, body := do(t, http.MethodPost, target, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d, body %s", status, body)
	}
	if !strings.Contains(body, "door or lid is completely closed") {
		t.Errorf("body = %s; want the won't-start remedy", body)
	}
}

func TestDiagnostics_TroubleshootFallsBackToChecklist(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t, &fakeScheduling{}, &fakeCustomers{})

	target := srv.URL + "/api/diagnostics/washer/troubleshoot?symptom=" + url.QueryEscape("smells like the sea")
	status, body := do(t, http.MethodPost, target, "")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "circuit breaker") {
		t.Errorf("body = %s; want the generic checklist", body)
	}

	if status, _ := do(t, http.MethodPost, srv.URL+"/api/diagnostics/washer/troubleshoot", ""); status != http.StatusBadRequest {
		t.Errorf("missing symptom status = %d; want 400", status)
	}
}
