package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/events"
	"veilchat/internal/repository"
	veilchat_errors "veilchat/pkg/errors"
)

// Broadcaster is the delivery surface the relay fans out through. The
// websocket hub implements it in production; tests substitute a recorder.
// Sends are fire-and-forget: a device with no live connection receives
// nothing now and catches up via history.
type Broadcaster interface {
	BroadcastToChannel(ctx context.Context, target chat.ChannelRef, env events.Envelope)
	SendToDevice(ctx context.Context, deviceID uuid.UUID, env events.Envelope)
}

// MessageService is the encrypted message relay. It persists one ciphertext
// per message plus N per-device wrapped keys and pushes each device only its
// own wrapped copy.
type MessageService struct {
	messageRepo repository.MessageRepository
	chat        *ChatService
	broadcaster Broadcaster
	pageSize    int
	dbTimeout   time.Duration
}

func NewMessageService(messageRepo repository.MessageRepository, chatService *ChatService, broadcaster Broadcaster, pageSize int, dbTimeout time.Duration) *MessageService {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &MessageService{
		messageRepo: messageRepo,
		chat:        chatService,
		broadcaster: broadcaster,
		pageSize:    pageSize,
		dbTimeout:   dbTimeout,
	}
}

type WrappedKeyInput struct {
	DeviceID     uuid.UUID
	EncryptedKey []byte
}

type SendMessageInput struct {
	TargetID              uuid.UUID
	SenderDeviceID        uuid.UUID
	Ciphertext            []byte
	IV                    []byte
	AuthTag               []byte
	ContentType           string
	Version               string
	SenderEphemeralPublic []byte
	WrappedKeys           []WrappedKeyInput
}

// MessageCreatedEvent is the minimal channel-wide notification; recipients
// re-fetch or wait for their per-device payload.
type MessageCreatedEvent struct {
	MessageID uuid.UUID `json:"message_id"`
	ChannelID uuid.UUID `json:"channel_id"`
}

// DevicePayload carries everything one device needs to decrypt: ciphertext,
// metadata, and only that device's wrapped key.
type DevicePayload struct {
	MessageID             uuid.UUID `json:"message_id"`
	ChannelID             uuid.UUID `json:"channel_id"`
	SenderID              uuid.UUID `json:"sender_id"`
	SenderDeviceID        uuid.UUID `json:"sender_device_id"`
	Ciphertext            []byte    `json:"ciphertext"`
	IV                    []byte    `json:"iv,omitempty"`
	AuthTag               []byte    `json:"auth_tag,omitempty"`
	ContentType           string    `json:"content_type,omitempty"`
	Version               string    `json:"version"`
	SenderEphemeralPublic []byte    `json:"sender_ephemeral_public,omitempty"`
	EncryptedKey          []byte    `json:"encrypted_key"`
	CreatedAt             time.Time `json:"created_at"`
}

type MessageSeenEvent struct {
	MessageID uuid.UUID   `json:"message_id"`
	UserID    uuid.UUID   `json:"user_id"`
	SeenBy    []uuid.UUID `json:"seen_by"`
}

// Send authorizes, persists and fans out one encrypted message.
// Authorization and validation run before any write; the message row and all
// wrapped key rows commit in one transaction.
func (s *MessageService) Send(ctx context.Context, senderID uuid.UUID, in SendMessageInput) (chat.Message, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	target, err := s.chat.ResolveChannel(ctx, senderID, in.TargetID)
	if err != nil {
		return chat.Message{}, err
	}

	if len(in.WrappedKeys) == 0 || len(in.Ciphertext) == 0 || in.SenderDeviceID == uuid.Nil {
		return chat.Message{}, veilchat_errors.ErrInvalidInput
	}
	for _, wk := range in.WrappedKeys {
		if wk.DeviceID == uuid.Nil || len(wk.EncryptedKey) == 0 {
			return chat.Message{}, veilchat_errors.ErrInvalidInput
		}
	}

	version := in.Version
	if version == "" {
		version = "v1"
	}

	msg := &chat.Message{
		ID:                    uuid.New(),
		SenderID:              senderID,
		SenderDeviceID:        in.SenderDeviceID,
		Ciphertext:            in.Ciphertext,
		IV:                    in.IV,
		AuthTag:               in.AuthTag,
		ContentType:           in.ContentType,
		Version:               version,
		SenderEphemeralPublic: in.SenderEphemeralPublic,
		CreatedAt:             time.Now(),
	}
	switch target.Kind {
	case chat.ChannelRoom:
		msg.RoomID = uuid.NullUUID{UUID: target.ID, Valid: true}
	case chat.ChannelConnection:
		msg.ConnectionID = uuid.NullUUID{UUID: target.ID, Valid: true}
	}

	wrapped := make([]chat.WrappedKey, 0, len(in.WrappedKeys))
	for _, wk := range in.WrappedKeys {
		wrapped = append(wrapped, chat.WrappedKey{
			ID:           uuid.New(),
			MessageID:    msg.ID,
			DeviceID:     wk.DeviceID,
			EncryptedKey: wk.EncryptedKey,
		})
	}

	if err := s.messageRepo.CreateWithKeys(ctx, msg, wrapped); err != nil {
		return chat.Message{}, storageErr(err)
	}

	s.deliver(ctx, target, *msg, wrapped)
	return *msg, nil
}

// deliver pushes the channel-wide created event, then one per-device payload
// per wrapped key. A device never sees another device's wrapped key.
func (s *MessageService) deliver(ctx context.Context, target chat.ChannelRef, msg chat.Message, wrapped []chat.WrappedKey) {
	created, err := events.NewEnvelope(events.EventTypeMessageCreated, target.Channel(), MessageCreatedEvent{
		MessageID: msg.ID,
		ChannelID: target.ID,
	})
	if err == nil {
		s.broadcaster.BroadcastToChannel(ctx, target, created)
	}

	for _, wk := range wrapped {
		payload := DevicePayload{
			MessageID:             msg.ID,
			ChannelID:             target.ID,
			SenderID:              msg.SenderID,
			SenderDeviceID:        msg.SenderDeviceID,
			Ciphertext:            msg.Ciphertext,
			IV:                    msg.IV,
			AuthTag:               msg.AuthTag,
			ContentType:           msg.ContentType,
			Version:               msg.Version,
			SenderEphemeralPublic: msg.SenderEphemeralPublic,
			EncryptedKey:          wk.EncryptedKey,
			CreatedAt:             msg.CreatedAt,
		}
		env, err := events.NewEnvelope(events.EventTypeMessageReceived, events.ChannelPrefixDevice+wk.DeviceID.String(), payload)
		if err != nil {
			continue
		}
		s.broadcaster.SendToDevice(ctx, wk.DeviceID, env)
	}
}

// History returns the page of messages on the target visible to the caller's
// device, newest first. Visibility is wrapped-key based: a device registered
// after a message was sent has no wrapped key for it and never sees it.
func (s *MessageService) History(ctx context.Context, userID, targetID, deviceID uuid.UUID, cursor *uuid.UUID, limit int) ([]chat.Message, error) {
	if deviceID == uuid.Nil {
		return nil, veilchat_errors.ErrInvalidInput
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	target, err := s.chat.ResolveChannel(ctx, userID, targetID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = s.pageSize
	}
	messages, err := s.messageRepo.History(ctx, target, userID, deviceID, cursor, limit)
	if err != nil {
		return nil, storageErr(err)
	}
	return messages, nil
}

// MarkSeen records the (message, user) seen marker. Idempotent: the first
// call creates the marker and broadcasts the updated seen-state to the
// message's channel; repeat calls return the existing marker and stay
// silent.
func (s *MessageService) MarkSeen(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageSeen, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	existing, err := s.messageRepo.GetSeen(ctx, messageID, userID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, veilchat_errors.ErrNotFound) {
		return chat.MessageSeen{}, storageErr(err)
	}

	msg, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return chat.MessageSeen{}, storageErr(err)
	}

	seen := &chat.MessageSeen{
		MessageID: messageID,
		UserID:    userID,
		SeenAt:    time.Now(),
	}
	if err := s.messageRepo.CreateSeen(ctx, seen); err != nil {
		// Lost a race with a concurrent marker for the same pair; the
		// winner already broadcast.
		if errors.Is(err, veilchat_errors.ErrAlreadyExists) {
			return s.messageRepo.GetSeen(ctx, messageID, userID)
		}
		return chat.MessageSeen{}, storageErr(err)
	}

	s.broadcastSeen(ctx, msg, *seen)
	return *seen, nil
}

func (s *MessageService) broadcastSeen(ctx context.Context, msg chat.Message, seen chat.MessageSeen) {
	var target chat.ChannelRef
	switch {
	case msg.RoomID.Valid:
		target = chat.RoomRef(msg.RoomID.UUID)
	case msg.ConnectionID.Valid:
		target = chat.ConnectionRef(msg.ConnectionID.UUID)
	default:
		return
	}

	seenBy := make([]uuid.UUID, 0, len(msg.SeenBy)+1)
	for _, s := range msg.SeenBy {
		seenBy = append(seenBy, s.UserID)
	}
	seenBy = append(seenBy, seen.UserID)

	env, err := events.NewEnvelope(events.EventTypeMessageSeen, target.Channel(), MessageSeenEvent{
		MessageID: msg.ID,
		UserID:    seen.UserID,
		SeenBy:    seenBy,
	})
	if err != nil {
		return
	}
	s.broadcaster.BroadcastToChannel(ctx, target, env)
}
