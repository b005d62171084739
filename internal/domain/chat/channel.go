package chat

import "github.com/google/uuid"

// ChannelKind discriminates the two addressing units messages are scoped to.
type ChannelKind string

const (
	ChannelRoom       ChannelKind = "room"
	ChannelConnection ChannelKind = "connection"
)

// ChannelRef is a resolved message target. A raw target id is resolved to a
// ChannelRef exactly once, at the authorization step, and carried from there.
type ChannelRef struct {
	Kind ChannelKind
	ID   uuid.UUID
}

func RoomRef(id uuid.UUID) ChannelRef {
	return ChannelRef{Kind: ChannelRoom, ID: id}
}

func ConnectionRef(id uuid.UUID) ChannelRef {
	return ChannelRef{Kind: ChannelConnection, ID: id}
}

// Channel returns the pub/sub channel name for the target.
func (r ChannelRef) Channel() string {
	return "channel:" + string(r.Kind) + ":" + r.ID.String()
}
