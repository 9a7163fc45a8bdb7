package chatsync

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Push-Channel Frames
// ============================================================================

// Push frames are loosely typed on the wire; this file is the boundary that
// decodes them into a closed set of kinds. Unknown or malformed frames
// produce an error the connection manager logs and discards — they never
// tear down the channel.

// FrameKind tags a push-channel frame.
type FrameKind string

const (
	// FrameRegister is sent client→server immediately after the channel opens
	// (and re-sent after every reconnect).
	FrameRegister FrameKind = "register"

	// FrameChatMessage is sent server→client when a message lands in one of
	// the participant's conversations. Only the kind is consumed by the
	// synchronization path; the payload is informational.
	FrameChatMessage FrameKind = "chat_message"
)

// Frame is the wire format for all push-channel traffic.
type Frame struct {
	Type     FrameKind       `json:"type"`
	UserID   string          `json:"userId,omitempty"`
	UserType ParticipantKind `json:"userType,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// RegisterFrame builds the registration frame for an identity.
func RegisterFrame(id Identity) Frame {
	return Frame{
		Type:     FrameRegister,
		UserID:   id.UserID,
		UserType: id.Kind,
	}
}

// DecodeFrame parses a raw inbound frame and validates its kind against the
// closed union. Payloads are not schema-checked beyond the type tag.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("invalid JSON in push frame: %w", err)
	}
	switch f.Type {
	case FrameRegister, FrameChatMessage:
		return f, nil
	case "":
		return Frame{}, fmt.Errorf("missing type field in push frame")
	default:
		return Frame{}, fmt.Errorf("unknown push frame kind: %s", f.Type)
	}
}

// Encode serializes the frame for the wire.
func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode push frame: %w", err)
	}
	return data, nil
}
