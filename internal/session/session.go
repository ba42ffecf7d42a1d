// Package session holds the live per-call conversation state and the stores
// that own it.
//
// A [ConversationState] exists from the moment the carrier signaling webhook
// announces a call until the call ends. The bridge and the tool dispatcher
// mutate it on the call's own goroutines; the [Store] only guards the map
// from call id to state, never the state's interior. The in-memory [MemStore]
// is the default backend; redisstore provides the same interface on Redis for
// deployments that need sessions to survive a process swap.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateSession is returned by [Store.Create] when a live session
// already exists for the call id.
var ErrDuplicateSession = errors.New("session already exists for call")

// ErrSessionNotFound is returned by Get and Transition when no live session
// exists for the call id.
var ErrSessionNotFound = errors.New("session not found")

// Phase is a coarse-grained label on the conversation's progress. It shapes
// the model's instructions; it is not a hard state machine and transitions
// are logged, never validated.
type Phase string

const (
	PhaseGreeting          Phase = "greeting"
	PhaseIdentifyAppliance Phase = "identify_appliance"
	PhaseGatherSymptoms    Phase = "gather_symptoms"
	PhaseDiagnostic        Phase = "diagnostic"
	PhaseTroubleshooting   Phase = "troubleshooting"
	PhaseScheduling        Phase = "scheduling"
	PhaseConfirmation      Phase = "confirmation"
	PhaseImageCapture      Phase = "image_capture"
	PhaseClosing           Phase = "closing"
)

// DiagnosticInfo accumulates what the caller has told us about the appliance
// and its problem.
type DiagnosticInfo struct {
	ApplianceType      string            `json:"appliance_type,omitempty"`
	ApplianceBrand     string            `json:"appliance_brand,omitempty"`
	ApplianceModel     string            `json:"appliance_model,omitempty"`
	ApplianceAgeYears  int               `json:"appliance_age_years,omitempty"`
	PrimarySymptom     string            `json:"primary_symptom,omitempty"`
	AdditionalSymptoms []string          `json:"additional_symptoms,omitempty"`
	ErrorCodes         []string          `json:"error_codes,omitempty"`
	UnusualSounds      string            `json:"unusual_sounds,omitempty"`
	WhenStarted        string            `json:"when_started,omitempty"`
	StepsTried         []string          `json:"steps_tried,omitempty"`
	StepResults        map[string]string `json:"step_results,omitempty"`
	IssueResolved      bool              `json:"issue_resolved,omitempty"`
	ResolutionNotes    string            `json:"resolution_notes,omitempty"`
}

// SchedulingInfo accumulates booking details gathered during the call.
type SchedulingInfo struct {
	ZipCode         string   `json:"zip_code,omitempty"`
	PreferredDates  []string `json:"preferred_dates,omitempty"`
	PreferredTime   string   `json:"preferred_time,omitempty"`
	TechnicianID    int      `json:"technician_id,omitempty"`
	SelectedSlotID  int      `json:"selected_slot_id,omitempty"`
	CustomerName    string   `json:"customer_name,omitempty"`
	CustomerEmail   string   `json:"customer_email,omitempty"`
	CustomerAddress string   `json:"customer_address,omitempty"`
}

// ImageRequest records an issued photo-upload link and its analysis result.
type ImageRequest struct {
	Requested   bool   `json:"requested,omitempty"`
	UploadToken string `json:"upload_token,omitempty"`
	Analysis    string `json:"analysis,omitempty"`
}

// Outcome records what the call produced.
type Outcome struct {
	AppointmentID    int    `json:"appointment_id,omitempty"`
	ConfirmationCode string `json:"confirmation_code,omitempty"`
}

// ConversationState is the full per-call state. One instance exists per live
// call id; it is owned by the [Store] until the call ends.
//
// Mutation is confined to the call's own goroutines. The store bumps
// LastInteractionAt and TurnCount on Update; everything else is written by
// the bridge and the tool dispatcher.
type ConversationState struct {
	CallID            string    `json:"call_id"`
	CallerPhone       string    `json:"caller_phone"`
	CustomerID        int       `json:"customer_id,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	LastInteractionAt time.Time `json:"last_interaction_at"`
	TurnCount         int       `json:"turn_count"`
	Phase             Phase     `json:"phase"`

	Diagnostic DiagnosticInfo `json:"diagnostic"`
	Scheduling SchedulingInfo `json:"scheduling"`
	Image      ImageRequest   `json:"image_request"`
	Outcome    Outcome        `json:"outcome"`

	// KeyFacts is an ordered, deduplicated list of short factual strings
	// accumulated from user transcripts.
	KeyFacts []string `json:"key_facts,omitempty"`
}

// New returns a fresh ConversationState in the greeting phase with both
// timestamps set to now.
func New(callID, callerPhone string, customerID int, now time.Time) *ConversationState {
	return &ConversationState{
		CallID:            callID,
		CallerPhone:       callerPhone,
		CustomerID:        customerID,
		StartedAt:         now,
		LastInteractionAt: now,
		Phase:             PhaseGreeting,
	}
}

// AddKeyFact appends fact to KeyFacts unless it is already present.
// Insertion order is preserved; the empty string is ignored.
func (s *ConversationState) AddKeyFact(fact string) {
	if fact == "" {
		return
	}
	for _, f := range s.KeyFacts {
		if f == fact {
			return
		}
	}
	s.KeyFacts = append(s.KeyFacts, fact)
}

// Clone returns a deep copy of the state. Snapshot readers (inspection
// endpoints) use clones so they never alias slices the owning call is still
// appending to.
func (s *ConversationState) Clone() *ConversationState {
	c := *s
	c.Diagnostic.AdditionalSymptoms = append([]string(nil), s.Diagnostic.AdditionalSymptoms...)
	c.Diagnostic.ErrorCodes = append([]string(nil), s.Diagnostic.ErrorCodes...)
	c.Diagnostic.StepsTried = append([]string(nil), s.Diagnostic.StepsTried...)
	if s.Diagnostic.StepResults != nil {
		c.Diagnostic.StepResults = make(map[string]string, len(s.Diagnostic.StepResults))
		for k, v := range s.Diagnostic.StepResults {
			c.Diagnostic.StepResults[k] = v
		}
	}
	c.Scheduling.PreferredDates = append([]string(nil), s.Scheduling.PreferredDates...)
	c.KeyFacts = append([]string(nil), s.KeyFacts...)
	return &c
}

// Store is the process-wide table of live sessions.
//
// Every operation is serializable against others on the same call id.
// Implementations must not perform I/O while holding internal locks that
// other calls contend on; the Redis backend trades the lock for per-key
// commands instead.
type Store interface {
	// Create registers a new session for callID. Returns
	// [ErrDuplicateSession] if a live session already exists.
	Create(ctx context.Context, callID, callerPhone string, customerID int) (*ConversationState, error)

	// Get returns the live session for callID, or [ErrSessionNotFound].
	Get(ctx context.Context, callID string) (*ConversationState, error)

	// Update bumps state.LastInteractionAt and state.TurnCount, then stores
	// the state. Updating a session that has already ended is a no-op on the
	// store (the state itself is still bumped); it never resurrects the entry.
	Update(ctx context.Context, state *ConversationState) error

	// End atomically removes and returns the session for callID. Ending an
	// absent session is a no-op and returns (nil, nil).
	End(ctx context.Context, callID string) (*ConversationState, error)

	// Transition sets the session's phase, logging old → new. No ordering is
	// validated. Returns [ErrSessionNotFound] when the session is absent.
	Transition(ctx context.Context, callID string, phase Phase) (*ConversationState, error)

	// Active returns a point-in-time snapshot of all live sessions, keyed by
	// call id. The returned states are clones.
	Active(ctx context.Context) (map[string]*ConversationState, error)
}
