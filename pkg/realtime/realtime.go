// Package realtime defines the provider-agnostic surface for
// speech-to-speech model sessions.
//
// A session is a bidirectional, multiplexed channel that carries telephone
// audio to a realtime voice model and brings synthesised speech, finalized
// transcripts, and tool invocations back. Sessions live for the length of a
// phone call and are configured once at connect time.
//
// Audio crosses the Session boundary as base64-encoded G.711 µ-law payload
// strings in both directions, the same encoding the telephone carrier's
// media stream uses, so frames pass through without transcoding.
//
// All implementations must be safe for concurrent use.
package realtime

import "context"

// ToolDefinition describes one tool offered to the model at session setup.
type ToolDefinition struct {
	// Name is the tool's unique identifier.
	Name string

	// Description explains what the tool does (included in model prompts).
	Description string

	// Parameters is the JSON Schema describing the tool's input parameters.
	Parameters map[string]any
}

// Transcript is one finalized utterance recognised or produced by the model.
type Transcript struct {
	// Role is "user" for caller speech the model transcribed and
	// "assistant" for the model's own spoken response.
	Role string

	// Text is the finalized transcript text.
	Text string
}

// ToolCallHandler is invoked by the session whenever the model requests a
// tool call. It receives the tool name and a JSON-encoded arguments string
// and returns the result text to inject back into the session as tool
// output, or an error the model should hear about.
//
// The handler runs on the session's receive goroutine: the next model event
// is not processed until it returns, which keeps tool round trips serialized
// in model emission order. Handlers must not call blocking session methods.
type ToolCallHandler func(name, args string) (string, error)

// SessionConfig is the initial configuration for a new session.
type SessionConfig struct {
	// Voice selects the model's synthesised voice.
	Voice string

	// Instructions is the system-level prompt in effect for the whole call.
	Instructions string

	// Tools is the set of tool definitions offered to the model. Tool calls
	// are surfaced via the handler set with OnToolCall.
	Tools []ToolDefinition
}

// Session represents an open model session. It is an interface so that test
// code can supply mock implementations without a live provider connection.
//
// The session sits on the hot path of every call, so each method must
// return quickly; audio I/O is channel-based. Callers must call Close when
// the session is no longer needed.
type Session interface {
	// Greet injects text as a completed assistant utterance and asks the
	// model to speak it. Used once, right after connecting, so the agent
	// talks first.
	Greet(text string) error

	// SendAudio forwards one base64-encoded µ-law payload from the caller
	// to the model. Returns an error if the session is closed or the
	// payload cannot be written.
	SendAudio(payload string) error

	// Audio returns a read-only channel emitting base64-encoded µ-law
	// payloads as the model synthesises its spoken response. The channel is
	// closed when the session ends; call [Session.Err] afterwards to check
	// whether it ended cleanly. Consumers must drain promptly so the
	// session's receive loop never stalls.
	Audio() <-chan string

	// Transcripts returns a read-only channel emitting finalized
	// transcripts of both caller speech and model responses. Closed when
	// the session ends.
	Transcripts() <-chan Transcript

	// OnToolCall registers the handler invoked synchronously for each tool
	// call. Calling it again replaces the previous handler; nil clears it.
	OnToolCall(handler ToolCallHandler)

	// OnError registers a callback for non-fatal error events reported by
	// the provider mid-session.
	OnError(handler func(error))

	// Err returns the error that closed the Audio channel prematurely, or
	// nil if the session ended cleanly.
	Err() error

	// Close terminates the session, releases all resources, and closes the
	// Audio and Transcripts channels. Safe to call more than once.
	Close() error
}

// Provider is the abstraction over a realtime voice backend. The bridge
// opens one session per call; the caller owns the returned Session and is
// responsible for closing it.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// returned Session is ready to accept audio immediately.
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}
