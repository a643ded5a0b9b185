package message

import (
	"encoding/json"
	"time"
)

// FrameType represents the type of WebSocket frame
type FrameType string

const (
	// Inbound frame types
	TypeMessage FrameType = "message"
	TypeTyping  FrameType = "typing"
	TypeRead    FrameType = "read"
	TypePing    FrameType = "ping"

	// Outbound frame types
	TypeMessageSent FrameType = "message_sent"
	TypeReadReceipt FrameType = "read_receipt"
	TypePong        FrameType = "pong"
	TypeUserStatus  FrameType = "user_status"
	TypeError       FrameType = "error"
)

// ErrorInfo contains error details
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	RetryAfter  int    `json:"retry_after,omitempty"` // milliseconds
}

// Frame represents a WebSocket frame in either direction. It is the single
// decoded form of the wire protocol; untyped maps never cross this boundary.
type Frame struct {
	Type      FrameType  `json:"type"`
	ID        string     `json:"id,omitempty"`
	Sender    string     `json:"sender,omitempty"`
	Receiver  string     `json:"receiver,omitempty"`
	Content   string     `json:"content,omitempty"`
	IsTyping  bool       `json:"is_typing,omitempty"`
	IsRead    bool       `json:"is_read,omitempty"`
	Reader    string     `json:"reader,omitempty"`
	Email     string     `json:"email,omitempty"`
	Online    *bool      `json:"online,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
}

// Known reports whether the frame carries a recognized inbound type.
// Unknown types are ignored by the protocol loop rather than rejected.
func (f *Frame) Known() bool {
	switch f.Type {
	case TypeMessage, TypeTyping, TypeRead, TypePing:
		return true
	default:
		return false
	}
}

// Parse decodes an inbound frame. A JSON-level failure is the caller's cue
// to send a typed error frame back; an unrecognized type is not an error.
func Parse(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// MarshalJSON implements custom JSON marshaling for Frame.
// Timestamps go out in RFC3339 and zero timestamps are omitted entirely.
func (f *Frame) MarshalJSON() ([]byte, error) {
	type Alias Frame
	out := &struct {
		*Alias
		Timestamp string `json:"timestamp,omitempty"`
	}{
		Alias: (*Alias)(f),
	}
	if !f.Timestamp.IsZero() {
		out.Timestamp = f.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements custom JSON unmarshaling for Frame
func (f *Frame) UnmarshalJSON(data []byte) error {
	type Alias Frame
	aux := &struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias: (*Alias)(f),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.Timestamp != "" {
		t, err := time.Parse(time.RFC3339, aux.Timestamp)
		if err != nil {
			return err
		}
		f.Timestamp = t
	}

	return nil
}

// NewUserStatus builds a presence broadcast frame. Online is a pointer on the
// Frame so only user_status frames carry the field; an explicit false still
// serializes.
func NewUserStatus(email string, online bool) *Frame {
	return &Frame{Type: TypeUserStatus, Email: email, Online: &online}
}

// NewPong builds a pong reply frame
func NewPong() *Frame {
	return &Frame{Type: TypePong, Timestamp: time.Now().UTC()}
}

// NewReadReceipt builds a read receipt frame for the original sender
func NewReadReceipt(reader string) *Frame {
	return &Frame{Type: TypeReadReceipt, Reader: reader}
}

// NewError builds a typed error frame
func NewError(info *ErrorInfo) *Frame {
	return &Frame{Type: TypeError, Error: info}
}
