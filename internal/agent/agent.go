// Package agent holds the voice agent's brain: the system prompt and
// greeting, the tool schema offered to the model, and the dispatcher that
// executes tool calls against the scheduling, customer, and upload services.
//
// Execute never returns an error to the bridge. Every outcome, including
// unknown tools and collaborator failures, is rendered as text the model
// can speak back to the caller.
package agent

import (
	"context"

	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/scheduling"
	"github.com/hearthware/applicall/internal/session"
	"github.com/hearthware/applicall/internal/upload"
	"github.com/hearthware/applicall/pkg/realtime"
)

// Scheduler is the slice of the scheduling store the dispatcher needs.
type Scheduler interface {
	AvailableSlots(ctx context.Context, q scheduling.SlotQuery) ([]scheduling.Slot, error)
	Book(ctx context.Context, req scheduling.BookRequest) (*scheduling.Appointment, string, error)
}

// CustomerStore is the slice of the customer store the dispatcher needs.
type CustomerStore interface {
	ApplyUpdate(ctx context.Context, id int, u customer.Update) (*customer.Customer, error)
}

// Uploader issues photo-upload links.
type Uploader interface {
	CreateRequest(ctx context.Context, customerID int, email, applianceType, issue, callSID string) (*upload.Request, error)
}

// Dispatcher executes the model's tool calls against the backing services
// and mutates the call's conversation state as a side effect. One instance
// serves all calls; per-call state travels in via Execute.
type Dispatcher struct {
	sched     Scheduler
	customers CustomerStore
	uploads   Uploader
}

// NewDispatcher wires the dispatcher to its collaborators.
func NewDispatcher(sched Scheduler, customers CustomerStore, uploads Uploader) *Dispatcher {
	return &Dispatcher{
		sched:     sched,
		customers: customers,
		uploads:   uploads,
	}
}

// Instructions composes the system prompt for the call's current state.
func (d *Dispatcher) Instructions(state *session.ConversationState) string {
	return Instructions(state)
}

// Greeting returns the fixed line the agent opens every call with.
func (d *Dispatcher) Greeting() string {
	return Greeting()
}

// Tools returns the tool definitions offered to the model.
func (d *Dispatcher) Tools() []realtime.ToolDefinition {
	return Tools()
}
