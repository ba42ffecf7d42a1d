package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/observe"
	"github.com/hearthware/applicall/internal/session"
)

// CustomerResolver matches callers to customer records by phone number,
// creating a record on first contact.
type CustomerResolver interface {
	GetOrCreate(ctx context.Context, phone string) (*customer.Customer, error)
}

// MediaHandler runs one accepted media-stream connection until the call is
// over. It owns the connection from the moment it is called, including
// closing it.
type MediaHandler interface {
	Handle(ctx context.Context, conn *websocket.Conn, callID string)
}

// terminalStatuses are the carrier call states after which no more media
// will flow for the call.
var terminalStatuses = map[string]bool{
	"completed": true,
	"busy":      true,
	"failed":    true,
	"no-answer": true,
	"canceled":  true,
}

// TestInfo is the configuration summary served on /voice/test.
type TestInfo struct {
	CarrierConfigured bool   `json:"carrier_configured"`
	ModelConfigured   bool   `json:"model_configured"`
	RealtimeModel     string `json:"realtime_model"`
	Voice             string `json:"voice"`
}

// Handler serves the carrier webhooks and the media-stream upgrade.
type Handler struct {
	publicHost string
	customers  CustomerResolver
	sessions   session.Store
	media      MediaHandler
	info       TestInfo
	metrics    *observe.Metrics
}

// Option configures a [Handler].
type Option func(*Handler)

// WithMetrics sets the metrics instruments. Defaults to
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler wires the carrier surface. publicHost is the externally
// reachable host the signaling document points the media stream at.
func NewHandler(publicHost string, customers CustomerResolver, sessions session.Store, media MediaHandler, info TestInfo, opts ...Option) *Handler {
	h := &Handler{
		publicHost: publicHost,
		customers:  customers,
		sessions:   sessions,
		media:      media,
		info:       info,
		metrics:    observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds all carrier-facing routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /voice/incoming-call", h.handleIncomingCall)
	mux.HandleFunc("POST /voice/call-status", h.handleCallStatus)
	mux.HandleFunc("GET /voice/session/{call_sid}", h.handleSessionInfo)
	mux.HandleFunc("GET /voice/test", h.handleTest)
	mux.HandleFunc("GET /media/{call_id}", h.handleMedia)
}

// handleIncomingCall answers the carrier's new-call webhook: resolve the
// caller to a customer record, open a session, and reply with the signaling
// document that routes the call's audio to our media endpoint. Redelivered
// webhooks get the same document again.
func (h *Handler) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	caller := r.FormValue("From")
	called := r.FormValue("To")
	if callID == "" {
		http.Error(w, "CallSid is required", http.StatusBadRequest)
		return
	}
	slog.Info("incoming call", "call_id", callID, "from", caller, "to", called)

	cust, err := h.customers.GetOrCreate(r.Context(), caller)
	if err != nil {
		slog.Error("customer resolve failed", "call_id", callID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if _, err := h.sessions.Create(r.Context(), callID, caller, cust.ID); err != nil {
		if !errors.Is(err, session.ErrDuplicateSession) {
			slog.Error("session create failed", "call_id", callID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		// A redelivered webhook answers with the same document and is not a
		// new call.
		slog.Warn("incoming-call webhook redelivered", "call_id", callID)
	} else {
		h.metrics.CallsStarted.Add(r.Context(), 1)
	}

	body, err := SignalingXML(h.publicHost, callID, caller)
	if err != nil {
		slog.Error("signaling document failed", "call_id", callID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(body)
}

// handleCallStatus tracks the carrier's status callbacks. A terminal status
// ends the session; ending an already-gone session is a no-op, so
// redeliveries and races with the bridge's own cleanup are harmless.
func (h *Handler) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	callID := r.FormValue("CallSid")
	status := r.FormValue("CallStatus")
	slog.Info("call status", "call_id", callID, "status", status)

	if terminalStatuses[status] {
		if _, err := h.sessions.End(r.Context(), callID); err != nil {
			slog.Error("session end failed", "call_id", callID, "error", err)
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// sessionInfo is the inspection view of one live session.
type sessionInfo struct {
	CallSID       string                 `json:"call_sid"`
	CustomerPhone string                 `json:"customer_phone"`
	Phase         session.Phase          `json:"phase"`
	TurnCount     int                    `json:"turn_count"`
	Diagnostic    session.DiagnosticInfo `json:"diagnostic"`
	Scheduling    session.SchedulingInfo `json:"scheduling"`
}

func (h *Handler) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_sid")

	state, err := h.sessions.Get(r.Context(), callID)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "session not found"})
		return
	}
	if err != nil {
		slog.Error("session lookup failed", "call_id", callID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, sessionInfo{
		CallSID:       state.CallID,
		CustomerPhone: state.CallerPhone,
		Phase:         state.Phase,
		TurnCount:     state.TurnCount,
		Diagnostic:    state.Diagnostic,
		Scheduling:    state.Scheduling,
	})
}

func (h *Handler) handleTest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.info)
}

// handleMedia upgrades the carrier's media-stream connection and hands it to
// the bridge for the rest of the call.
func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	callID := r.PathValue("call_id")

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Error("media stream accept failed", "call_id", callID, "error", err)
		return
	}
	slog.Info("media stream connected", "call_id", callID)

	h.media.Handle(r.Context(), conn, callID)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
