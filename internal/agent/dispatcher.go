package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hearthware/applicall/internal/customer"
	"github.com/hearthware/applicall/internal/diagnostic"
	"github.com/hearthware/applicall/internal/scheduling"
	"github.com/hearthware/applicall/internal/session"
)

// failureReply is the catch-all spoken reply when a collaborator fails. The
// failure itself is logged; the model only ever hears this.
const failureReply = "I encountered an issue while processing that. Let me try another approach."

// maxOffered caps how many troubleshooting steps or appointment slots one
// reply reads out.
const maxOffered = 5

// Execute runs one tool call and returns the text the model speaks back to
// the caller. Unknown names and collaborator failures produce speakable text,
// never an error. All state mutation happens on the calling goroutine.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any, state *session.ConversationState) string {
	slog.Info("executing tool", "tool", name, "call_id", state.CallID, "args", args)

	switch name {
	case "get_troubleshooting_steps":
		return d.troubleshoot(args)
	case "check_technician_availability":
		return d.availability(ctx, args, state)
	case "book_appointment":
		return d.book(ctx, args, state)
	case "request_image_upload":
		return d.requestImage(ctx, args, state)
	case "update_customer_info":
		return d.updateCustomer(ctx, args, state)
	default:
		return "Unknown tool: " + name
	}
}

// troubleshoot looks up the knowledge base. The appliance argument is used
// raw, both for the lookup and in the reply; unmatched appliances and
// symptoms get the generic checklist under the same header.
func (d *Dispatcher) troubleshoot(args map[string]any) string {
	appliance := stringArg(args, "appliance_type")
	symptom := stringArg(args, "symptom")

	steps := diagnostic.Steps(appliance, symptom)
	if len(steps) > maxOffered {
		steps = steps[:maxOffered]
	}
	lines := make([]string, len(steps))
	for i, step := range steps {
		lines[i] = "- " + step
	}
	return fmt.Sprintf("Troubleshooting steps for %s with '%s':\n%s",
		appliance, symptom, strings.Join(lines, "\n"))
}

func (d *Dispatcher) availability(ctx context.Context, args map[string]any, state *session.ConversationState) string {
	zip := stringArg(args, "zip_code")
	appliance := stringArg(args, "appliance_type")
	pref := stringArg(args, "preferred_time")
	if pref == "any" {
		pref = ""
	}

	slots, err := d.sched.AvailableSlots(ctx, scheduling.SlotQuery{
		ZipCode:        zip,
		ApplianceType:  normalizeAppliance(appliance),
		TimePreference: pref,
	})
	if err != nil {
		slog.Error("availability lookup failed", "error", err, "zip", zip)
		return failureReply
	}
	if len(slots) == 0 {
		return fmt.Sprintf("I'm sorry, I couldn't find any available technicians for %s service in the %s area. Would you like to try a different date range or check nearby zip codes?",
			appliance, zip)
	}

	state.Scheduling.ZipCode = zip

	if len(slots) > maxOffered {
		slots = slots[:maxOffered]
	}
	lines := make([]string, len(slots))
	for i, sl := range slots {
		lines[i] = scheduling.FormatSlot(sl)
	}
	return fmt.Sprintf("Available appointments in %s:\n%s", zip, strings.Join(lines, "\n"))
}

func (d *Dispatcher) book(ctx context.Context, args map[string]any, state *session.ConversationState) string {
	slotID := intArg(args, "slot_id")
	name := stringArg(args, "customer_name")
	zip := stringArg(args, "customer_zip_code")
	if zip == "" {
		zip = state.Scheduling.ZipCode
	}
	appliance := stringArg(args, "appliance_type")
	issue := stringArg(args, "issue_description")

	if state.CustomerID != 0 {
		first, last := customer.SplitName(name)
		_, err := d.customers.ApplyUpdate(ctx, state.CustomerID, customer.Update{
			FirstName: &first,
			LastName:  &last,
			ZipCode:   &zip,
		})
		if err != nil {
			slog.Error("customer update before booking failed", "error", err, "customer_id", state.CustomerID)
			return failureReply
		}
	}

	appt, refusal, err := d.sched.Book(ctx, scheduling.BookRequest{
		CustomerID:       state.CustomerID,
		TimeSlotID:       slotID,
		ApplianceType:    normalizeAppliance(appliance),
		IssueDescription: issue,
		Symptoms:         state.Diagnostic.PrimarySymptom,
		CallSID:          state.CallID,
	})
	if err != nil {
		slog.Error("booking failed", "error", err, "slot_id", slotID)
		return failureReply
	}
	if refusal != "" {
		return fmt.Sprintf("I wasn't able to book that appointment: %s. Let me check other available times.", refusal)
	}

	state.Outcome.AppointmentID = appt.ID
	state.Outcome.ConfirmationCode = appt.ConfirmationNumber

	details := scheduling.FormatAppointment(*appt)
	return fmt.Sprintf("Appointment booked successfully!\n"+
		"Confirmation Number: %s\n"+
		"Date: %s\n"+
		"Time: %s\n"+
		"Technician: %s\n"+
		"Service: %s - %s",
		details.ConfirmationNumber, details.Date, details.TimeWindow,
		details.TechnicianName, details.ApplianceType, details.IssueDescription)
}

func (d *Dispatcher) requestImage(ctx context.Context, args map[string]any, state *session.ConversationState) string {
	email := stringArg(args, "email")
	appliance := stringArg(args, "appliance_type")
	if appliance == "" {
		appliance = state.Diagnostic.ApplianceType
	}
	area := stringArg(args, "specific_area")

	req, err := d.uploads.CreateRequest(ctx, state.CustomerID, email, appliance, state.Diagnostic.PrimarySymptom, state.CallID)
	if err != nil {
		slog.Error("upload request failed", "error", err, "email", email)
		return failureReply
	}

	state.Image.Requested = true
	state.Image.UploadToken = req.Token
	state.Scheduling.CustomerEmail = email

	reply := fmt.Sprintf("I've sent an email to %s with a link to upload a photo", email)
	switch {
	case area != "":
		reply += fmt.Sprintf(" of the %s", area)
	case appliance != "":
		reply += fmt.Sprintf(" of your %s", appliance)
	}
	return reply + ". The link will be valid for 24 hours."
}

// updateCustomer writes through to the customer record and mirrors the new
// values into the scheduling state. Callers that were never matched to a
// customer record get the confirmation text with no effect.
func (d *Dispatcher) updateCustomer(ctx context.Context, args map[string]any, state *session.ConversationState) string {
	const reply = "Customer information updated."

	if state.CustomerID == 0 {
		return reply
	}

	var u customer.Update
	if name, ok := args["name"].(string); ok {
		first, last := customer.SplitName(name)
		u.FirstName = &first
		if last != "" {
			u.LastName = &last
		}
		state.Scheduling.CustomerName = name
	}
	if email, ok := args["email"].(string); ok {
		u.Email = &email
		state.Scheduling.CustomerEmail = email
	}
	if zip, ok := args["zip_code"].(string); ok {
		u.ZipCode = &zip
		state.Scheduling.ZipCode = zip
	}
	if addr, ok := args["address"].(string); ok {
		u.AddressLine1 = &addr
		state.Scheduling.CustomerAddress = addr
	}

	if _, err := d.customers.ApplyUpdate(ctx, state.CustomerID, u); err != nil {
		slog.Error("customer update failed", "error", err, "customer_id", state.CustomerID)
		return failureReply
	}
	return reply
}

// normalizeAppliance maps a spoken appliance name onto the closed tag set;
// unknown terms pass through lowercased.
func normalizeAppliance(raw string) string {
	if tag, ok := diagnostic.Normalize(raw); ok {
		return tag
	}
	return strings.ToLower(raw)
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// intArg reads a numeric argument. JSON-decoded tool arguments arrive as
// float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
