package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/domain/keys"
	"veilchat/internal/domain/user"
)

type UserRepository interface {
	Create(ctx context.Context, u *user.User) error
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByUsername(ctx context.Context, username string) (user.User, error)

	CreateSession(ctx context.Context, s *user.Session) error
	GetSession(ctx context.Context, id uuid.UUID) (user.Session, error)
	TouchSession(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

type KeysRepository interface {
	CreateDevice(ctx context.Context, d *keys.Device) error
	GetDevice(ctx context.Context, id uuid.UUID) (keys.Device, error)
	GetDeviceByName(ctx context.Context, userID uuid.UUID, name string) (keys.Device, error)
	ListEnabledDevices(ctx context.Context, userID uuid.UUID) ([]keys.Device, error)
	SetDeviceEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	DeleteDevice(ctx context.Context, id uuid.UUID) error

	AddPreKeys(ctx context.Context, batch []keys.OneTimePreKey) (int64, error)
	ClaimPreKey(ctx context.Context, deviceID uuid.UUID) (*keys.OneTimePreKey, error)
	CountAvailablePreKeys(ctx context.Context, deviceID uuid.UUID) (int64, error)
}

type ChatRepository interface {
	CreateRoom(ctx context.Context, r *chat.Room, members []chat.RoomMember) error
	GetRoom(ctx context.Context, id uuid.UUID) (chat.Room, error)
	AddRoomMembers(ctx context.Context, members []chat.RoomMember) error
	ListRoomMembers(ctx context.Context, roomID uuid.UUID) ([]chat.RoomMember, error)
	IsRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)

	CreateConnection(ctx context.Context, c *chat.Connection) error
	GetConnection(ctx context.Context, id uuid.UUID) (chat.Connection, error)
	FindConnectionBetween(ctx context.Context, a, b uuid.UUID) (chat.Connection, error)
	ListConnections(ctx context.Context, userID uuid.UUID) ([]chat.Connection, error)
	DeleteConnection(ctx context.Context, id uuid.UUID) error
}

type MessageRepository interface {
	// CreateWithKeys persists the message and all of its wrapped keys in a
	// single transaction; a message without its keys is never observable.
	CreateWithKeys(ctx context.Context, m *chat.Message, wrapped []chat.WrappedKey) error
	GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error)
	History(ctx context.Context, target chat.ChannelRef, userID, deviceID uuid.UUID, cursor *uuid.UUID, limit int) ([]chat.Message, error)

	GetSeen(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageSeen, error)
	CreateSeen(ctx context.Context, s *chat.MessageSeen) error
}
