package models

import (
	"encoding/json"

	"github.com/kw-96/AutoKit-sub000/internal/constants"
)

// Envelope is the frame exchanged with the relay. Only a subset of fields is set
// depending on Type.
type Envelope struct {
	Type    constants.MessageType `json:"type"`              // Frame kind, drives dispatch on every party
	ID      string                `json:"id,omitempty"`      // Request id being correlated, if any
	Channel string                `json:"channel,omitempty"` // Target or source channel
	Message json.RawMessage       `json:"message,omitempty"` // Opaque payload relayed verbatim by the hub

	Sender    string `json:"sender,omitempty"`    // Relay-assigned id of the originating connection
	ClientID  string `json:"clientId,omitempty"`  // Relay-assigned id of the receiving connection
	Version   string `json:"version,omitempty"`   // Relay protocol version, welcome notice only
	Timestamp int64  `json:"timestamp,omitempty"` // Unix milliseconds
}

// ChannelMessage is the payload carried inside message and broadcast frames.
// A command sets Command and Params; a terminal reply sets Result or Error.
type ChannelMessage struct {
	ID      string          `json:"id"`
	Command string          `json:"command,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// IsCommand reports whether the payload asks a peer to run a command.
func (m ChannelMessage) IsCommand() bool {
	return m.ID != "" && m.Command != "" && len(m.Result) == 0 && len(m.Error) == 0
}

// IsTerminal reports whether the payload is the final outcome of a command.
func (m ChannelMessage) IsTerminal() bool {
	return m.ID != "" && (len(m.Result) > 0 || len(m.Error) > 0)
}

// ErrorText renders the error field, which peers send either as a string or an object.
func (m ChannelMessage) ErrorText() string {
	if len(m.Error) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Error, &s); err == nil {
		return s
	}
	return string(m.Error)
}

// NewResultMessage builds a successful terminal payload.
func NewResultMessage(id string, result any) (ChannelMessage, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return ChannelMessage{}, err
	}
	return ChannelMessage{ID: id, Result: raw}, nil
}

// NewErrorMessage builds a failed terminal payload.
func NewErrorMessage(id string, reason string) ChannelMessage {
	raw, _ := json.Marshal(reason)
	return ChannelMessage{ID: id, Error: raw}
}

// DecodeChannelMessage parses a relayed payload. Plain-string notices are not
// channel messages and return ok=false.
func DecodeChannelMessage(raw json.RawMessage) (ChannelMessage, bool) {
	if len(raw) == 0 || raw[0] != '{' {
		return ChannelMessage{}, false
	}
	var msg ChannelMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return ChannelMessage{}, false
	}
	return msg, true
}
