// Package v1 defines the wire protocol exchanged between a client connection
// and the Hub: a single frame envelope plus the stable method namespaces
// addressed through it.
package v1

import (
	"encoding/json"
	"time"
)

// FrameType distinguishes the four kinds of frame the Hub exchanges with a
// ClientConnection.
type FrameType string

const (
	FrameRequest  FrameType = "REQUEST"
	FrameResponse FrameType = "RESPONSE"
	FrameEvent    FrameType = "EVENT"
	FrameError    FrameType = "ERROR"
)

// GlobalSession is the reserved sessionId for connection-wide events.
const GlobalSession = "global"

// Frame is the single envelope carried over every transport the Hub serves.
// Neither SessionID nor Method may contain ':' (reserved for compound scopes
// such as "room:<roomId>").
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// ErrorPayload is the typed body of a FrameError frame.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the shape returned by operations that never throw: runtime
// configuration operations return one of these instead of an error.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Ok builds a successful Result.
func Ok() Result { return Result{Success: true} }

// Fail builds a failed Result carrying a caller-facing message.
func Fail(msg string) Result { return Result{Success: false, Error: msg} }

// NewRequest builds a REQUEST frame with a marshaled payload.
func NewRequest(id, sessionID, method string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: FrameRequest, ID: id, SessionID: sessionID, Method: method, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewResponse builds a RESPONSE frame correlated to a prior request id.
func NewResponse(id, sessionID, method string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: FrameResponse, ID: id, SessionID: sessionID, Method: method, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewEvent builds an EVENT frame for fan-out through the subscription index.
func NewEvent(sessionID, method string, payload any) (*Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Frame{Type: FrameEvent, SessionID: sessionID, Method: method, Payload: data, Timestamp: time.Now().UTC()}, nil
}

// NewErrorFrame builds an ERROR frame correlated to a prior request id.
func NewErrorFrame(id, sessionID, method, code, message string) *Frame {
	data, _ := json.Marshal(ErrorPayload{Code: code, Message: message})
	return &Frame{Type: FrameError, ID: id, SessionID: sessionID, Method: method, Payload: data, Timestamp: time.Now().UTC()}
}

// ParsePayload unmarshals the frame's payload into v.
func (f *Frame) ParsePayload(v any) error {
	if f.Payload == nil {
		return nil
	}
	return json.Unmarshal(f.Payload, v)
}
