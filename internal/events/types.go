package events

// Event type constants, format: domain.action

// Message events
const (
	EventTypeMessageCreated  = "message.created"
	EventTypeMessageReceived = "message.received"
	EventTypeMessageSeen     = "message.seen"
)

// Presence events
const (
	EventTypePresenceOnline = "presence.online"
	EventTypeUserTyping     = "user.typing"
)

// Channel name prefixes for pub/sub routing
const (
	ChannelPrefixRoom       = "channel:room:"
	ChannelPrefixConnection = "channel:connection:"
	ChannelPrefixDevice     = "channel:device:"
	ChannelBroadcast        = "channel:broadcast"
)
