package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/repository"
	veilchat_errors "veilchat/pkg/errors"
)

// ChatService manages the channel surface the relay depends on: rooms,
// pairwise connections, and the membership predicate.
type ChatService struct {
	repo      repository.ChatRepository
	dbTimeout time.Duration
}

func NewChatService(repo repository.ChatRepository, dbTimeout time.Duration) *ChatService {
	return &ChatService{repo: repo, dbTimeout: dbTimeout}
}

// KeyEnvelope is a member's wrapped room key as supplied by the creator.
type KeyEnvelope struct {
	EncryptedRoomKey []byte
	IV               []byte
	Tag              []byte
	Alg              string
}

type RoomMemberInput struct {
	UserID   uuid.UUID
	DeviceID uuid.NullUUID
	Envelope *KeyEnvelope
}

func (s *ChatService) CreateRoom(ctx context.Context, creatorID uuid.UUID, name string, isGroup bool, members []RoomMemberInput) (chat.Room, error) {
	if name == "" {
		return chat.Room{}, veilchat_errors.ErrInvalidInput
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	// Creator is always a member.
	hasCreator := false
	for _, m := range members {
		if m.UserID == creatorID {
			hasCreator = true
			break
		}
	}
	if !hasCreator {
		members = append([]RoomMemberInput{{UserID: creatorID}}, members...)
	}

	room := &chat.Room{
		ID:        uuid.New(),
		Name:      name,
		IsGroup:   isGroup,
		CreatedAt: time.Now(),
	}
	rows := make([]chat.RoomMember, 0, len(members))
	for _, m := range members {
		rows = append(rows, newRoomMember(room.ID, m))
	}
	if err := s.repo.CreateRoom(ctx, room, rows); err != nil {
		return chat.Room{}, storageErr(err)
	}
	return *room, nil
}

func (s *ChatService) AddMembers(ctx context.Context, requestorID, roomID uuid.UUID, members []RoomMemberInput) error {
	if len(members) == 0 {
		return veilchat_errors.ErrInvalidInput
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	isMember, err := s.repo.IsRoomMember(ctx, roomID, requestorID)
	if err != nil {
		return storageErr(err)
	}
	if !isMember {
		return veilchat_errors.ErrForbidden
	}

	rows := make([]chat.RoomMember, 0, len(members))
	for _, m := range members {
		rows = append(rows, newRoomMember(roomID, m))
	}
	if err := s.repo.AddRoomMembers(ctx, rows); err != nil {
		if errors.Is(err, veilchat_errors.ErrAlreadyExists) {
			return veilchat_errors.ErrConflict
		}
		return storageErr(err)
	}
	return nil
}

func (s *ChatService) ListMembers(ctx context.Context, userID, roomID uuid.UUID) ([]chat.RoomMember, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	isMember, err := s.repo.IsRoomMember(ctx, roomID, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !isMember {
		return nil, veilchat_errors.ErrForbidden
	}
	members, err := s.repo.ListRoomMembers(ctx, roomID)
	if err != nil {
		return nil, storageErr(err)
	}
	return members, nil
}

// Connect creates a pairwise channel between two distinct users. An existing
// pair in either direction is a Conflict.
func (s *ChatService) Connect(ctx context.Context, userID, targetUserID uuid.UUID) (chat.Connection, error) {
	if userID == targetUserID {
		return chat.Connection{}, veilchat_errors.ErrForbidden
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	_, err := s.repo.FindConnectionBetween(ctx, userID, targetUserID)
	if err == nil {
		return chat.Connection{}, veilchat_errors.ErrConflict
	}
	if !errors.Is(err, veilchat_errors.ErrNotFound) {
		return chat.Connection{}, storageErr(err)
	}

	conn := &chat.Connection{
		ID:              uuid.New(),
		UserID:          userID,
		ConnectedUserID: targetUserID,
		CreatedAt:       time.Now(),
	}
	if err := s.repo.CreateConnection(ctx, conn); err != nil {
		return chat.Connection{}, storageErr(err)
	}
	return *conn, nil
}

func (s *ChatService) ListConnections(ctx context.Context, userID uuid.UUID) ([]chat.Connection, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	conns, err := s.repo.ListConnections(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	return conns, nil
}

func (s *ChatService) RemoveConnection(ctx context.Context, userID, connectionID uuid.UUID) error {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	conn, err := s.repo.GetConnection(ctx, connectionID)
	if err != nil {
		return storageErr(err)
	}
	if conn.UserID != userID && conn.ConnectedUserID != userID {
		return veilchat_errors.ErrForbidden
	}
	return storageErr(s.repo.DeleteConnection(ctx, connectionID))
}

// RespondConnection lets the requested user answer a pending connection.
// Only the user on the receiving end may respond; rejecting deletes the
// pair, accepting keeps it.
func (s *ChatService) RespondConnection(ctx context.Context, userID, connectionID uuid.UUID, accept bool) (chat.Connection, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	conn, err := s.repo.GetConnection(ctx, connectionID)
	if err != nil {
		return chat.Connection{}, storageErr(err)
	}
	if conn.ConnectedUserID != userID {
		return chat.Connection{}, veilchat_errors.ErrForbidden
	}
	if !accept {
		if err := s.repo.DeleteConnection(ctx, connectionID); err != nil {
			return chat.Connection{}, storageErr(err)
		}
		return conn, nil
	}
	return conn, nil
}

// ResolveChannel interprets a raw target id exactly once: it is a room the
// user belongs to, a connection the user is a party to, or nothing. An
// unknown id is NotFound; a known channel the user has no access to is
// Forbidden.
func (s *ChatService) ResolveChannel(ctx context.Context, userID, targetID uuid.UUID) (chat.ChannelRef, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	_, err := s.repo.GetRoom(ctx, targetID)
	if err == nil {
		isMember, err := s.repo.IsRoomMember(ctx, targetID, userID)
		if err != nil {
			return chat.ChannelRef{}, storageErr(err)
		}
		if !isMember {
			return chat.ChannelRef{}, veilchat_errors.ErrForbidden
		}
		return chat.RoomRef(targetID), nil
	}
	if !errors.Is(err, veilchat_errors.ErrNotFound) {
		return chat.ChannelRef{}, storageErr(err)
	}

	conn, err := s.repo.GetConnection(ctx, targetID)
	if err != nil {
		return chat.ChannelRef{}, storageErr(err)
	}
	if conn.UserID != userID && conn.ConnectedUserID != userID {
		return chat.ChannelRef{}, veilchat_errors.ErrForbidden
	}
	return chat.ConnectionRef(targetID), nil
}

func newRoomMember(roomID uuid.UUID, in RoomMemberInput) chat.RoomMember {
	m := chat.RoomMember{
		ID:       uuid.New(),
		RoomID:   roomID,
		UserID:   in.UserID,
		DeviceID: in.DeviceID,
		JoinedAt: time.Now(),
	}
	if in.Envelope != nil {
		m.EncryptedRoomKey = in.Envelope.EncryptedRoomKey
		m.KeyEnvelopeIV = in.Envelope.IV
		m.KeyEnvelopeTag = in.Envelope.Tag
		m.KeyEnvelopeAlg = in.Envelope.Alg
	}
	return m
}
