// Package bridge joins one carrier media stream to one realtime model
// session for the duration of a phone call.
//
// Each call runs two pumps under a shared errgroup. The uplink pump reads
// carrier frames and forwards caller audio to the model; the downlink pump
// plays model audio back into the stream, records finalized transcripts,
// and executes tool calls. The first pump to finish, for whatever reason,
// cancels the other, after which the bridge closes the model session and
// persists the call's final state.
//
// Conversation state is mutated only on the downlink pump. Tool calls
// arrive on the model session's receive goroutine and are handed to the
// pump over an internal channel, so transcripts, key facts, and tool side
// effects never race.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hearthware/applicall/internal/observe"
	"github.com/hearthware/applicall/internal/session"
	"github.com/hearthware/applicall/internal/telephony"
	"github.com/hearthware/applicall/pkg/audio"
	"github.com/hearthware/applicall/pkg/realtime"
)

// DefaultVoice is used when no voice is configured.
const DefaultVoice = "alloy"

// Agent is the conversational brain behind every call: the prompt and
// greeting the model starts from, the tools it may call, and the dispatch
// of those calls. *agent.Dispatcher satisfies it.
type Agent interface {
	// Instructions composes the system prompt for the call's current state.
	Instructions(state *session.ConversationState) string

	// Greeting is the fixed line the agent opens every call with.
	Greeting() string

	// Tools lists the tool definitions offered to the model.
	Tools() []realtime.ToolDefinition

	// Execute runs one tool call and returns speakable result text. It
	// never fails; errors are rendered as text the model can relay.
	Execute(ctx context.Context, name string, args map[string]any, state *session.ConversationState) string
}

// Bridge connects carrier media streams to realtime model sessions. One
// instance serves all calls; Handle runs a single call to completion.
type Bridge struct {
	sessions session.Store
	provider realtime.Provider
	agent    Agent
	metrics  *observe.Metrics

	mu    sync.Mutex
	voice string
}

var _ telephony.MediaHandler = (*Bridge)(nil)

// Option customises a Bridge.
type Option func(*Bridge)

// WithVoice selects the model voice used for every call.
func WithVoice(voice string) Option {
	return func(b *Bridge) {
		if voice != "" {
			b.voice = voice
		}
	}
}

// WithMetrics overrides the default metrics sink.
func WithMetrics(m *observe.Metrics) Option {
	return func(b *Bridge) {
		b.metrics = m
	}
}

// New wires a bridge to its session store, model provider, and agent.
func New(sessions session.Store, provider realtime.Provider, agent Agent, opts ...Option) *Bridge {
	b := &Bridge{
		sessions: sessions,
		provider: provider,
		agent:    agent,
		voice:    DefaultVoice,
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// SetVoice changes the voice used for subsequent calls. In-flight calls
// keep the voice they connected with. Empty values are ignored.
func (b *Bridge) SetVoice(voice string) {
	if voice == "" {
		return
	}
	b.mu.Lock()
	b.voice = voice
	b.mu.Unlock()
}

func (b *Bridge) currentVoice() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.voice
}

// Pump results. Both pumps always return a non-nil error so the errgroup
// cancels the sibling as soon as either side finishes.
var (
	errCarrierStop   = errors.New("carrier requested stop")
	errCarrierClosed = errors.New("carrier stream closed")
	errModelClosed   = errors.New("model session closed")
)

// Handle bridges one accepted media-stream connection to a fresh model
// session and runs the call to completion. It owns conn, including closing
// it, and returns when the call is over and the session store updated.
func (b *Bridge) Handle(ctx context.Context, conn *websocket.Conn, callID string) {
	// The media request's server span stays open for the whole call, so every
	// line carries the same trace id.
	log := observe.Logger(ctx).With("call_id", callID)

	state, err := b.sessions.Get(ctx, callID)
	if err != nil {
		log.Error("media stream for unknown call", "error", err)
		conn.Close(websocket.StatusPolicyViolation, "unknown call")
		return
	}

	sess, err := b.provider.Connect(ctx, realtime.SessionConfig{
		Voice:        b.currentVoice(),
		Instructions: b.agent.Instructions(state),
		Tools:        b.agent.Tools(),
	})
	if err != nil {
		log.Error("model session connect failed", "error", err)
		conn.Close(websocket.StatusInternalError, "model unavailable")
		if _, endErr := b.sessions.End(context.WithoutCancel(ctx), callID); endErr != nil {
			log.Error("session end failed", "error", endErr)
		}
		b.metrics.RecordCallEnded(ctx, "connect_failed")
		return
	}

	log.Info("bridge open", "caller", state.CallerPhone, "customer_id", state.CustomerID)
	b.metrics.ActiveCalls.Add(ctx, 1)

	c := &call{
		state:    state,
		carrier:  conn,
		model:    sess,
		toolReqs: make(chan toolRequest),
	}

	g, gctx := errgroup.WithContext(ctx)

	sess.OnError(func(err error) {
		b.metrics.RecordModelEvent(ctx, "error")
		log.Warn("model session error", "error", err)
	})
	sess.OnToolCall(func(name, args string) (string, error) {
		return c.submitTool(gctx, name, args)
	})

	if err := sess.Greet(b.agent.Greeting()); err != nil {
		log.Warn("greeting failed", "error", err)
	}

	g.Go(func() error { return b.uplink(gctx, c, log) })
	g.Go(func() error { return b.downlink(gctx, c, log) })

	reason := teardownReason(g.Wait())

	if err := sess.Close(); err != nil {
		log.Warn("model session close failed", "error", err)
	}
	conn.Close(websocket.StatusNormalClosure, "call ended")

	// Teardown writes must survive cancellation of the call's context.
	cleanup := context.WithoutCancel(ctx)
	if err := b.sessions.Update(cleanup, state); err != nil {
		log.Warn("final state update failed", "error", err)
	}
	if _, err := b.sessions.End(cleanup, callID); err != nil {
		log.Warn("session end failed", "error", err)
	}

	b.metrics.ActiveCalls.Add(cleanup, -1)
	b.metrics.RecordCallEnded(cleanup, reason)
	log.Info("bridge closed", "reason", reason, "turns", state.TurnCount, "key_facts", len(state.KeyFacts))
}

// uplink reads carrier frames and forwards caller audio to the model. The
// payload stays base64-encoded end to end; a decoded copy is metered for
// observability only.
func (b *Bridge) uplink(ctx context.Context, c *call, log *slog.Logger) error {
	for {
		_, data, err := c.carrier.Read(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", errCarrierClosed, err)
		}

		frame, err := telephony.ParseFrame(data)
		if err != nil {
			log.Warn("unreadable media frame skipped", "error", err)
			continue
		}

		switch frame.Event {
		case telephony.EventStart:
			if frame.Start == nil || frame.Start.StreamSid == "" {
				log.Warn("start frame without stream sid")
				continue
			}
			c.setSid(frame.Start.StreamSid)
			log.Info("media stream started", "stream_sid", frame.Start.StreamSid)

		case telephony.EventMedia:
			if frame.Media == nil {
				continue
			}
			b.metrics.RecordMediaFrame(ctx, true)
			if level, err := audio.PayloadLevel(frame.Media.Payload); err == nil {
				b.metrics.AudioLevel.Record(ctx, level)
			}
			if err := c.model.SendAudio(frame.Media.Payload); err != nil {
				return fmt.Errorf("%w: forward caller audio: %w", errModelClosed, err)
			}

		case telephony.EventStop:
			return errCarrierStop

		case telephony.EventConnected, telephony.EventMark:
			// Connection preamble and playback marks need no action.

		default:
			log.Debug("unknown media event ignored", "event", frame.Event)
		}
	}
}

// downlink plays model audio into the carrier stream, records finalized
// transcripts, and executes tool calls handed over from the session's
// receive goroutine. It is the only goroutine that mutates the call's
// conversation state while the call is live.
func (b *Bridge) downlink(ctx context.Context, c *call, log *slog.Logger) error {
	audioCh := c.model.Audio()
	transcripts := c.model.Transcripts()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case payload, ok := <-audioCh:
			if !ok {
				if err := c.model.Err(); err != nil {
					return fmt.Errorf("%w: %w", errModelClosed, err)
				}
				return errModelClosed
			}
			sid := c.sid()
			if sid == "" {
				// Model audio before the carrier's start frame has no
				// stream to play into.
				continue
			}
			data, err := telephony.EncodeMedia(sid, payload)
			if err != nil {
				log.Warn("unencodable media frame dropped", "error", err)
				continue
			}
			if err := c.carrier.Write(ctx, websocket.MessageText, data); err != nil {
				return fmt.Errorf("%w: %w", errCarrierClosed, err)
			}
			b.metrics.RecordMediaFrame(ctx, false)

		case tr, ok := <-transcripts:
			if !ok {
				transcripts = nil
				continue
			}
			b.recordTranscript(ctx, c, tr, log)

		case req := <-c.toolReqs:
			b.metrics.RecordModelEvent(ctx, "tool_call")
			req.reply <- b.executeTool(ctx, c, req, log)
		}
	}
}

// recordTranscript logs a finalized utterance and, for caller speech,
// remembers it as a key fact so prompt rebuilds keep context.
func (b *Bridge) recordTranscript(ctx context.Context, c *call, tr realtime.Transcript, log *slog.Logger) {
	switch tr.Role {
	case "user":
		b.metrics.RecordModelEvent(ctx, "transcript.user")
		log.Info("caller said", "transcript", truncate(tr.Text, 100))
		c.state.AddKeyFact("User said: " + truncate(tr.Text, 200))
		if err := b.sessions.Update(ctx, c.state); err != nil {
			log.Warn("session update failed", "error", err)
		}
	case "assistant":
		b.metrics.RecordModelEvent(ctx, "transcript.assistant")
		log.Info("assistant said", "transcript", truncate(tr.Text, 100))
	}
}

// executeTool decodes the model's arguments and runs one tool call through
// the agent, timing it for metrics. Undecodable arguments degrade to a nil
// argument map; the agent's per-tool validation produces the refusal text.
func (b *Bridge) executeTool(ctx context.Context, c *call, req toolRequest, log *slog.Logger) string {
	start := time.Now()
	status := "ok"

	var args map[string]any
	if req.args != "" {
		if err := json.Unmarshal([]byte(req.args), &args); err != nil {
			log.Error("tool arguments unreadable", "tool", req.name, "error", err)
			args = nil
			status = "bad_arguments"
		}
	}

	result := b.agent.Execute(ctx, req.name, args, c.state)
	b.metrics.RecordToolCall(ctx, req.name, status, time.Since(start))
	return result
}

func teardownReason(err error) string {
	switch {
	case errors.Is(err, errCarrierStop):
		return "carrier_stop"
	case errors.Is(err, errCarrierClosed):
		return "carrier_closed"
	case errors.Is(err, errModelClosed):
		return "model_closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

// toolRequest carries one tool invocation from the session's receive
// goroutine to the downlink pump.
type toolRequest struct {
	name  string
	args  string
	reply chan string
}

// call is the shared state of one bridged phone call.
type call struct {
	state    *session.ConversationState
	carrier  *websocket.Conn
	model    realtime.Session
	toolReqs chan toolRequest

	mu        sync.Mutex
	streamSid string
}

// setSid records the stream identifier announced by the carrier's start
// frame. Written by the uplink pump, read by the downlink pump.
func (c *call) setSid(sid string) {
	c.mu.Lock()
	c.streamSid = sid
	c.mu.Unlock()
}

func (c *call) sid() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streamSid
}

// submitTool hands one tool invocation to the downlink pump and waits for
// the result. Runs on the model session's receive goroutine, which keeps
// round trips serialized in model emission order.
func (c *call) submitTool(ctx context.Context, name, args string) (string, error) {
	req := toolRequest{name: name, args: args, reply: make(chan string, 1)}

	select {
	case c.toolReqs <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case result := <-req.reply:
		return result, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
