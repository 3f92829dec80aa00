package constants

import "time"

// MessageType tags every frame exchanged with the relay.
type MessageType string

const (
	MessageTypeJoin      MessageType = "join"
	MessageTypeMessage   MessageType = "message"
	MessageTypeProgress  MessageType = "progress_update"
	MessageTypeBroadcast MessageType = "broadcast"
	MessageTypeSystem    MessageType = "system"
	MessageTypeError     MessageType = "error"
	MessageTypePing      MessageType = "ping"
	MessageTypePong      MessageType = "pong"
)

const (
	// ProtocolVersion is advertised by the relay in its welcome notice.
	ProtocolVersion = "1.2.0"
	// SupportedProtocol is the range of relay versions a client accepts without warning.
	SupportedProtocol = "^1.0.0"
)

// SenderSelf tags a broadcast echoed back to its own sender.
const SenderSelf = "You"

// Relay defaults
const (
	DefaultRelayPort        = 3055
	DefaultProbeInterval    = 30 * time.Second
	DefaultLivenessTimeout  = 60 * time.Second
	DefaultSendBufferSize   = 256
	DefaultMaxMessageSize   = 16 * 1024 * 1024
	DefaultWriteWaitTimeout = 10 * time.Second
)

// Reconnect defaults
const (
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 5 * time.Second
	DefaultReconnectMaxAttempts = 10
)

// Notice texts sent by the relay.
const (
	NoticeWelcome        = "Please join a channel to start communicating"
	NoticeJoined         = "Successfully joined channel: "
	NoticePeerJoined     = "A new user has joined the channel"
	NoticePeerLeft       = "A user has left the channel"
	NoticeChannelMissing = "Channel name is required"
	NoticeNotMember      = "You must join the channel first"
	NoticeInvalidFormat  = "Invalid message format"
	NoticeUnknownType    = "Unknown message type: "
)
