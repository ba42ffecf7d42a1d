// Package mock provides test doubles for the realtime package interfaces.
//
// Use Provider to verify Connect calls and feed controlled sessions. Use
// Session to drive the audio and transcript streams a consumer reads and to
// inspect what it sent back.
//
// Example:
//
//	sess := &mock.Session{
//	    AudioCh:       make(chan string, 8),
//	    TranscriptsCh: make(chan realtime.Transcript, 4),
//	}
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/hearthware/applicall/pkg/realtime"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the SessionConfig passed to Connect.
	Cfg realtime.SessionConfig
}

// Provider is a mock implementation of realtime.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is the Session returned by Connect. If nil, Connect returns a
	// new default Session with buffered channels.
	Session realtime.Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{
		AudioCh:       make(chan string, 64),
		TranscriptsCh: make(chan realtime.Transcript, 16),
	}, nil
}

// Connects returns a copy of the recorded Connect calls so far. Thread-safe.
func (p *Provider) Connects() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]ConnectCall, len(p.ConnectCalls))
	copy(cp, p.ConnectCalls)
	return cp
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = nil
}

// Ensure Provider implements realtime.Provider at compile time.
var _ realtime.Provider = (*Provider)(nil)

// Session is a mock implementation of realtime.Session.
// Callers own AudioCh and TranscriptsCh; close them to signal end-of-session
// the way a real provider does.
type Session struct {
	mu sync.Mutex

	// AudioCh is the channel returned by Audio(). Callers own this channel.
	AudioCh chan string

	// TranscriptsCh is the channel returned by Transcripts(). Callers own
	// this channel.
	TranscriptsCh chan realtime.Transcript

	// toolCallHandler is the currently registered ToolCallHandler.
	toolCallHandler realtime.ToolCallHandler

	// errorHandler is the currently registered error callback.
	errorHandler func(error)

	// --- Configurable errors ---

	// GreetErr, if non-nil, is returned by every Greet call.
	GreetErr error

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SessionErr is returned by Err. Set it before closing AudioCh to
	// simulate an abnormal session end.
	SessionErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// --- Call records ---

	// GreetCalls records the text of every Greet call in order.
	GreetCalls []string

	// SendAudioCalls records the payload of every SendAudio call in order.
	SendAudioCalls []string

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int

	// OnToolCallSetCount is the number of times OnToolCall was called.
	OnToolCallSetCount int

	// OnErrorSetCount is the number of times OnError was called.
	OnErrorSetCount int
}

// Greet records the call and returns GreetErr.
func (s *Session) Greet(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GreetCalls = append(s.GreetCalls, text)
	return s.GreetErr
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, payload)
	return s.SendAudioErr
}

// Audio returns AudioCh.
func (s *Session) Audio() <-chan string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.AudioCh
}

// Transcripts returns TranscriptsCh.
func (s *Session) Transcripts() <-chan realtime.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TranscriptsCh
}

// OnToolCall stores the handler and increments OnToolCallSetCount.
func (s *Session) OnToolCall(handler realtime.ToolCallHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCallHandler = handler
	s.OnToolCallSetCount++
}

// Handler returns the currently registered ToolCallHandler. Thread-safe.
// Useful in tests to invoke a tool call the way the session would.
func (s *Session) Handler() realtime.ToolCallHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toolCallHandler
}

// OnError stores the handler and increments OnErrorSetCount.
func (s *Session) OnError(handler func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorHandler = handler
	s.OnErrorSetCount++
}

// ErrorHandler returns the currently registered error callback. Thread-safe.
func (s *Session) ErrorHandler() func(error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorHandler
}

// Err returns SessionErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SessionErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SentAudio returns a copy of the payloads passed to SendAudio so far.
// Thread-safe.
func (s *Session) SentAudio() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]string, len(s.SendAudioCalls))
	copy(cp, s.SendAudioCalls)
	return cp
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GreetCalls = nil
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
	s.OnToolCallSetCount = 0
	s.OnErrorSetCount = 0
}

// Ensure Session implements realtime.Session at compile time.
var _ realtime.Session = (*Session)(nil)
