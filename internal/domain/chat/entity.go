package chat

import (
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/user"
)

// Room represents the rooms table
type Room struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	IsGroup   bool      `gorm:"default:false"`
	CreatedAt time.Time
}

// RoomMember represents the room_members table. The key envelope columns
// carry the member's wrapped room key as uploaded by the room creator.
type RoomMember struct {
	ID               uuid.UUID `gorm:"type:uuid;primaryKey"`
	RoomID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_members_room_user"`
	UserID           uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_room_members_room_user"`
	DeviceID         uuid.NullUUID
	EncryptedRoomKey []byte
	KeyEnvelopeIV    []byte
	KeyEnvelopeTag   []byte
	KeyEnvelopeAlg   string
	JoinedAt         time.Time
}

// Connection represents the connections table: a pairwise channel between
// two distinct users.
type Connection struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID `gorm:"type:uuid;not null;index"`
	ConnectedUserID uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt       time.Time
}

// Message represents the messages table. Rows are immutable; exactly one of
// RoomID / ConnectionID is set.
type Message struct {
	ID                    uuid.UUID     `gorm:"type:uuid;primaryKey"`
	RoomID                uuid.NullUUID `gorm:"type:uuid;index"`
	ConnectionID          uuid.NullUUID `gorm:"type:uuid;index"`
	SenderID              uuid.UUID     `gorm:"type:uuid;not null"`
	SenderDeviceID        uuid.UUID     `gorm:"type:uuid;not null"`
	Ciphertext            []byte        `gorm:"not null"`
	IV                    []byte
	AuthTag               []byte
	ContentType           string
	Version               string `gorm:"default:v1"`
	SenderEphemeralPublic []byte
	CreatedAt             time.Time `gorm:"index"`

	Sender      user.User    `gorm:"foreignKey:SenderID"`
	WrappedKeys []WrappedKey `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	SeenBy      []MessageSeen
}

// WrappedKey represents the wrapped_keys table: the message's content key
// encrypted for one recipient device. Created atomically with its message,
// never mutated.
type WrappedKey struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID    uuid.UUID `gorm:"type:uuid;not null;index"`
	DeviceID     uuid.UUID `gorm:"type:uuid;not null;index"`
	EncryptedKey []byte    `gorm:"not null"`
}

// MessageSeen represents the message_seen table: an idempotent marker.
type MessageSeen struct {
	MessageID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	SeenAt    time.Time
}

func (Room) TableName() string {
	return "rooms"
}

func (RoomMember) TableName() string {
	return "room_members"
}

func (Connection) TableName() string {
	return "connections"
}

func (Message) TableName() string {
	return "messages"
}

func (WrappedKey) TableName() string {
	return "wrapped_keys"
}

func (MessageSeen) TableName() string {
	return "message_seen"
}
