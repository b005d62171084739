package httpdto

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/services"
)

// SendMessageRequest is used for POST /messages and the send_message socket
// frame. One ciphertext, one wrapped key per recipient device.
type SendMessageRequest struct {
	TargetID              string          `json:"target_id" binding:"required"`
	SenderDeviceID        string          `json:"sender_device_id,omitempty"`
	Ciphertext            string          `json:"ciphertext" binding:"required"`
	IV                    string          `json:"iv,omitempty"`
	AuthTag               string          `json:"auth_tag,omitempty"`
	ContentType           string          `json:"content_type,omitempty"`
	Version               string          `json:"version,omitempty"`
	SenderEphemeralPublic string          `json:"sender_ephemeral_public,omitempty"`
	WrappedKeys           []WrappedKeyDTO `json:"wrapped_keys" binding:"required"`
}

// WrappedKeyDTO is one device's encrypted copy of the message content key
type WrappedKeyDTO struct {
	DeviceID     string `json:"device_id" binding:"required"`
	EncryptedKey string `json:"encrypted_key" binding:"required"`
}

func (r SendMessageRequest) ToInput() (services.SendMessageInput, error) {
	targetID, err := uuid.Parse(r.TargetID)
	if err != nil {
		return services.SendMessageInput{}, err
	}
	in := services.SendMessageInput{
		TargetID:    targetID,
		ContentType: r.ContentType,
		Version:     r.Version,
	}
	if r.SenderDeviceID != "" {
		deviceID, err := uuid.Parse(r.SenderDeviceID)
		if err != nil {
			return services.SendMessageInput{}, err
		}
		in.SenderDeviceID = deviceID
	}
	if in.Ciphertext, err = base64.StdEncoding.DecodeString(r.Ciphertext); err != nil {
		return services.SendMessageInput{}, err
	}
	if in.IV, err = base64.StdEncoding.DecodeString(r.IV); err != nil {
		return services.SendMessageInput{}, err
	}
	if in.AuthTag, err = base64.StdEncoding.DecodeString(r.AuthTag); err != nil {
		return services.SendMessageInput{}, err
	}
	if in.SenderEphemeralPublic, err = base64.StdEncoding.DecodeString(r.SenderEphemeralPublic); err != nil {
		return services.SendMessageInput{}, err
	}
	for _, wk := range r.WrappedKeys {
		deviceID, err := uuid.Parse(wk.DeviceID)
		if err != nil {
			return services.SendMessageInput{}, err
		}
		key, err := base64.StdEncoding.DecodeString(wk.EncryptedKey)
		if err != nil {
			return services.SendMessageInput{}, err
		}
		in.WrappedKeys = append(in.WrappedKeys, services.WrappedKeyInput{
			DeviceID:     deviceID,
			EncryptedKey: key,
		})
	}
	return in, nil
}

// MessageDTO represents a message in API responses. WrappedKeys holds at most
// the requesting device's own key.
type MessageDTO struct {
	ID                    string          `json:"id"`
	RoomID                string          `json:"room_id,omitempty"`
	ConnectionID          string          `json:"connection_id,omitempty"`
	SenderID              string          `json:"sender_id"`
	SenderDeviceID        string          `json:"sender_device_id"`
	Ciphertext            string          `json:"ciphertext"`
	IV                    string          `json:"iv,omitempty"`
	AuthTag               string          `json:"auth_tag,omitempty"`
	ContentType           string          `json:"content_type,omitempty"`
	Version               string          `json:"version"`
	SenderEphemeralPublic string          `json:"sender_ephemeral_public,omitempty"`
	WrappedKeys           []WrappedKeyDTO `json:"wrapped_keys,omitempty"`
	CreatedAt             string          `json:"created_at"`
}

func FromMessage(m chat.Message) MessageDTO {
	dto := MessageDTO{
		ID:             m.ID.String(),
		SenderID:       m.SenderID.String(),
		SenderDeviceID: m.SenderDeviceID.String(),
		Ciphertext:     base64.StdEncoding.EncodeToString(m.Ciphertext),
		ContentType:    m.ContentType,
		Version:        m.Version,
		CreatedAt:      m.CreatedAt.Format(time.RFC3339),
	}
	if m.RoomID.Valid {
		dto.RoomID = m.RoomID.UUID.String()
	}
	if m.ConnectionID.Valid {
		dto.ConnectionID = m.ConnectionID.UUID.String()
	}
	if len(m.IV) > 0 {
		dto.IV = base64.StdEncoding.EncodeToString(m.IV)
	}
	if len(m.AuthTag) > 0 {
		dto.AuthTag = base64.StdEncoding.EncodeToString(m.AuthTag)
	}
	if len(m.SenderEphemeralPublic) > 0 {
		dto.SenderEphemeralPublic = base64.StdEncoding.EncodeToString(m.SenderEphemeralPublic)
	}
	for _, wk := range m.WrappedKeys {
		dto.WrappedKeys = append(dto.WrappedKeys, WrappedKeyDTO{
			DeviceID:     wk.DeviceID.String(),
			EncryptedKey: base64.StdEncoding.EncodeToString(wk.EncryptedKey),
		})
	}
	return dto
}

// HistoryResponse is a page of messages, newest first. NextCursor is opaque;
// empty means no older page.
type HistoryResponse struct {
	Messages   []MessageDTO `json:"messages"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// SeenDTO represents one seen marker in API responses
type SeenDTO struct {
	UserID string `json:"user_id"`
	SeenAt string `json:"seen_at"`
}

func FromSeen(s chat.MessageSeen) SeenDTO {
	return SeenDTO{
		UserID: s.UserID.String(),
		SeenAt: s.SeenAt.Format(time.RFC3339),
	}
}
