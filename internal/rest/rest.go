// Package rest serves the JSON booking and inspection API under /api.
//
// The voice agent is the primary writer; this surface lets back-office
// tooling search availability, book and cancel appointments, look up
// customers and appointments, and browse the appliance knowledge base
// without going through a phone call. Refusal strings from the scheduling
// store pass through to clients verbatim as the error detail.
package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/diagnostic"
	"github.com/hearthware/applicall/internal/scheduling"
)

// Scheduling is the slice of the scheduling store the API serves: slot
// search, booking, cancellation, and appointment lookups.
type Scheduling interface {
	AvailableSlots(ctx context.Context, q scheduling.SlotQuery) ([]scheduling.Slot, error)
	Book(ctx context.Context, req scheduling.BookRequest) (appt *scheduling.Appointment, refusal string, err error)
	Cancel(ctx context.Context, appointmentID int) (refusal string, err error)
	AppointmentByID(ctx context.Context, id int) (*scheduling.Appointment, error)
	AppointmentByConfirmation(ctx context.Context, confirmation string) (*scheduling.Appointment, error)
}

// Customers is the slice of the customer store the API serves: record
// lookups by id and by phone number.
type Customers interface {
	ByID(ctx context.Context, id int) (*customer.Customer, error)
	ByPhone(ctx context.Context, phone string) (*customer.Customer, error)
}

// Handler serves the /api routes.
type Handler struct {
	scheduling Scheduling
	customers  Customers
}

// NewHandler builds the API handler on the given backends.
func NewHandler(s Scheduling, c Customers) *Handler {
	return &Handler{scheduling: s, customers: c}
}

// Register installs all API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/availability", h.handleAvailability)
	mux.HandleFunc("POST /api/appointments", h.handleBook)
	mux.HandleFunc("GET /api/appointments/{id}", h.handleAppointment)
	mux.HandleFunc("GET /api/appointments/confirmation/{confirmation_number}", h.handleAppointmentByConfirmation)
	mux.HandleFunc("DELETE /api/appointments/{id}", h.handleCancel)
	mux.HandleFunc("GET /api/customers/{id}", h.handleCustomer)
	mux.HandleFunc("GET /api/customers/phone/{phone}", h.handleCustomerByPhone)
	mux.HandleFunc("GET /api/diagnostics/appliances", h.handleAppliances)
	mux.HandleFunc("GET /api/diagnostics/{appliance_type}/symptoms", h.handleSymptoms)
	mux.HandleFunc("GET /api/diagnostics/{appliance_type}/questions", h.handleQuestions)
	mux.HandleFunc("POST /api/diagnostics/{appliance_type}/troubleshoot", h.handleTroubleshoot)
}

// Calendar dates and clock times serialize the ISO way, matching what the
// slot and appointment tables store.
const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// ─── Scheduling routes ───────────────────────────────────────────────────────

// slotBody is one open slot in an availability response.
type slotBody struct {
	SlotID         int    `json:"slot_id"`
	TechnicianID   int    `json:"technician_id"`
	TechnicianName string `json:"technician_name"`
	Date           string `json:"date"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := scheduling.SlotQuery{
		ZipCode:       params.Get("zip_code"),
		ApplianceType: params.Get("appliance_type"),
	}
	if query.ZipCode == "" || query.ApplianceType == "" {
		writeError(w, http.StatusBadRequest, "zip_code and appliance_type are required")
		return
	}
	switch tp := params.Get("time_preference"); tp {
	case "", "morning", "afternoon", "any":
		query.TimePreference = tp
	default:
		writeError(w, http.StatusBadRequest, "time_preference must be morning, afternoon, or any")
		return
	}
	var err error
	if query.StartDate, err = parseDate(params.Get("start_date")); err != nil {
		writeError(w, http.StatusBadRequest, "start_date must be formatted YYYY-MM-DD")
		return
	}
	if query.EndDate, err = parseDate(params.Get("end_date")); err != nil {
		writeError(w, http.StatusBadRequest, "end_date must be formatted YYYY-MM-DD")
		return
	}

	slots, err := h.scheduling.AvailableSlots(r.Context(), query)
	if err != nil {
		slog.Error("availability query failed", "zip_code", query.ZipCode, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	body := make([]slotBody, 0, len(slots))
	for _, s := range slots {
		body = append(body, slotBody{
			SlotID:         s.ID,
			TechnicianID:   s.TechnicianID,
			TechnicianName: s.TechnicianName,
			Date:           s.Date.Format(dateLayout),
			StartTime:      s.Start.Format(timeLayout),
			EndTime:        s.End.Format(timeLayout),
		})
	}
	writeJSON(w, http.StatusOK, body)
}

// bookBody is the request body for booking an appointment.
type bookBody struct {
	CustomerID       int    `json:"customer_id"`
	TimeSlotID       int    `json:"time_slot_id"`
	ApplianceType    string `json:"appliance_type"`
	IssueDescription string `json:"issue_description"`
	Symptoms         string `json:"symptoms"`
	CustomerNotes    string `json:"customer_notes"`
	CallSID          string `json:"call_sid"`
}

// appointmentBody is a booked appointment with the technician name and slot
// window joined in.
type appointmentBody struct {
	ID                 int       `json:"id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	Status             string    `json:"status"`
	TechnicianID       int       `json:"technician_id"`
	CustomerID         int       `json:"customer_id"`
	TimeSlotID         int       `json:"time_slot_id"`
	ApplianceType      string    `json:"appliance_type"`
	IssueDescription   string    `json:"issue_description"`
	Symptoms           string    `json:"symptoms"`
	CustomerNotes      string    `json:"customer_notes"`
	CallSID            string    `json:"call_sid"`
	CreatedAt          time.Time `json:"created_at"`
	TechnicianName     string    `json:"technician_name"`
	AppointmentDate    string    `json:"appointment_date"`
	AppointmentTime    string    `json:"appointment_time"`
}

func newAppointmentBody(a *scheduling.Appointment) appointmentBody {
	return appointmentBody{
		ID:                 a.ID,
		ConfirmationNumber: a.ConfirmationNumber,
		Status:             a.Status,
		TechnicianID:       a.TechnicianID,
		CustomerID:         a.CustomerID,
		TimeSlotID:         a.TimeSlotID,
		ApplianceType:      a.ApplianceType,
		IssueDescription:   a.IssueDescription,
		Symptoms:           a.Symptoms,
		CustomerNotes:      a.CustomerNotes,
		CallSID:            a.CallSID,
		CreatedAt:          a.CreatedAt,
		TechnicianName:     a.TechnicianName,
		AppointmentDate:    a.Date.Format(dateLayout),
		AppointmentTime:    a.Start.Format(timeLayout),
	}
}

func (h *Handler) handleBook(w http.ResponseWriter, r *http.Request) {
	var body bookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if body.CustomerID == 0 || body.TimeSlotID == 0 || body.ApplianceType == "" || body.IssueDescription == "" {
		writeError(w, http.StatusBadRequest, "customer_id, time_slot_id, appliance_type, and issue_description are required")
		return
	}

	appt, refusal, err := h.scheduling.Book(r.Context(), scheduling.BookRequest{
		CustomerID:       body.CustomerID,
		TimeSlotID:       body.TimeSlotID,
		ApplianceType:    body.ApplianceType,
		IssueDescription: body.IssueDescription,
		Symptoms:         body.Symptoms,
		CustomerNotes:    body.CustomerNotes,
		CallSID:          body.CallSID,
	})
	if err != nil {
		slog.Error("booking failed", "time_slot_id", body.TimeSlotID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if refusal != "" {
		writeError(w, http.StatusBadRequest, refusal)
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentBody(appt))
}

func (h *Handler) handleAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "appointment id must be an integer")
		return
	}

	appt, err := h.scheduling.AppointmentByID(r.Context(), id)
	if err != nil {
		slog.Error("appointment lookup failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if appt == nil {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentBody(appt))
}

func (h *Handler) handleAppointmentByConfirmation(w http.ResponseWriter, r *http.Request) {
	confirmation := r.PathValue("confirmation_number")

	appt, err := h.scheduling.AppointmentByConfirmation(r.Context(), confirmation)
	if err != nil {
		slog.Error("appointment lookup failed", "confirmation_number", confirmation, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if appt == nil {
		writeError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	writeJSON(w, http.StatusOK, scheduling.FormatAppointment(*appt))
}

// handleCancel cancels an appointment. Refusals, including cancelling an
// appointment that does not exist, answer 400 with the refusal as detail.
func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "appointment id must be an integer")
		return
	}

	refusal, err := h.scheduling.Cancel(r.Context(), id)
	if err != nil {
		slog.Error("cancellation failed", "appointment_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if refusal != "" {
		writeError(w, http.StatusBadRequest, refusal)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Appointment cancelled successfully"})
}

// ─── Customer routes ─────────────────────────────────────────────────────────

// customerBody is a customer record as the API serves it.
type customerBody struct {
	ID           int       `json:"id"`
	Phone        string    `json:"phone"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	AddressLine1 string    `json:"address_line1"`
	AddressLine2 string    `json:"address_line2"`
	City         string    `json:"city"`
	State        string    `json:"state"`
	ZipCode      string    `json:"zip_code"`
	CreatedAt    time.Time `json:"created_at"`
}

func newCustomerBody(c *customer.Customer) customerBody {
	return customerBody{
		ID:           c.ID,
		Phone:        c.Phone,
		Email:        c.Email,
		FirstName:    c.FirstName,
		LastName:     c.LastName,
		AddressLine1: c.AddressLine1,
		AddressLine2: c.AddressLine2,
		City:         c.City,
		State:        c.State,
		ZipCode:      c.ZipCode,
		CreatedAt:    c.CreatedAt,
	}
}

func (h *Handler) handleCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "customer id must be an integer")
		return
	}

	cust, err := h.customers.ByID(r.Context(), id)
	if err != nil {
		slog.Error("customer lookup failed", "customer_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cust == nil {
		writeError(w, http.StatusNotFound, "Customer not found")
		return
	}
	writeJSON(w, http.StatusOK, newCustomerBody(cust))
}

func (h *Handler) handleCustomerByPhone(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")

	cust, err := h.customers.ByPhone(r.Context(), phone)
	if err != nil {
		slog.Error("customer lookup failed", "phone", phone, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cust == nil {
		writeError(w, http.StatusNotFound, "Customer not found")
		return
	}
	writeJSON(w, http.StatusOK, newCustomerBody(cust))
}

// ─── Diagnostic routes ───────────────────────────────────────────────────────

// The knowledge base routes take the appliance tag raw: unknown appliances
// answer with empty lists rather than an error, and troubleshooting falls
// back to the generic checklist.

func (h *Handler) handleAppliances(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Appliances []string `json:"appliances"`
	}{Appliances: diagnostic.Appliances})
}

func (h *Handler) handleSymptoms(w http.ResponseWriter, r *http.Request) {
	appliance := r.PathValue("appliance_type")
	writeJSON(w, http.StatusOK, struct {
		ApplianceType string   `json:"appliance_type"`
		Symptoms      []string `json:"symptoms"`
	}{ApplianceType: appliance, Symptoms: orEmpty(diagnostic.CommonSymptoms(appliance))})
}

func (h *Handler) handleQuestions(w http.ResponseWriter, r *http.Request) {
	appliance := r.PathValue("appliance_type")
	writeJSON(w, http.StatusOK, struct {
		ApplianceType string   `json:"appliance_type"`
		Questions     []string `json:"questions"`
	}{ApplianceType: appliance, Questions: orEmpty(diagnostic.Questions(appliance))})
}

func (h *Handler) handleTroubleshoot(w http.ResponseWriter, r *http.Request) {
	appliance := r.PathValue("appliance_type")
	symptom := r.URL.Query().Get("symptom")
	if symptom == "" {
		writeError(w, http.StatusBadRequest, "symptom is required")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		ApplianceType string   `json:"appliance_type"`
		Symptom       string   `json:"symptom"`
		Steps         []string `json:"troubleshooting_steps"`
	}{ApplianceType: appliance, Symptom: symptom, Steps: diagnostic.Steps(appliance, symptom)})
}

// orEmpty keeps list fields serializing as [] rather than null.
func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// ─── Response plumbing ───────────────────────────────────────────────────────

type messageBody struct {
	Message string `json:"message"`
}

type errorBody struct {
	Detail string `json:"detail"`
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorBody{Detail: detail})
}
