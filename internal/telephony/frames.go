// Package telephony is the carrier-facing surface: the signaling webhooks
// that answer and track calls, the media-stream WebSocket accept, and the
// JSON frame codec spoken over that stream.
package telephony

import (
	"encoding/json"
	"fmt"
)

// Media stream event names.
const (
	EventConnected = "connected"
	EventStart     = "start"
	EventMedia     = "media"
	EventStop      = "stop"
	EventMark      = "mark"
)

// Frame is one JSON message on the media stream, in either direction. Only
// the fields matching Event are populated.
type Frame struct {
	Event     string     `json:"event"`
	StreamSid string     `json:"streamSid,omitempty"`
	Start     *StartInfo `json:"start,omitempty"`
	Media     *MediaInfo `json:"media,omitempty"`
}

// StartInfo accompanies the start event and names the stream all outbound
// media frames must reference.
type StartInfo struct {
	StreamSid string `json:"streamSid"`
}

// MediaInfo carries one base64-encoded G.711 µ-law audio frame.
type MediaInfo struct {
	Payload string `json:"payload"`
}

// ParseFrame decodes one inbound media-stream message.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("telephony: parse frame: %w", err)
	}
	return f, nil
}

// EncodeMedia builds the outbound frame that plays one audio payload into
// the stream.
func EncodeMedia(streamSid, payload string) ([]byte, error) {
	data, err := json.Marshal(Frame{
		Event:     EventMedia,
		StreamSid: streamSid,
		Media:     &MediaInfo{Payload: payload},
	})
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media frame: %w", err)
	}
	return data, nil
}
