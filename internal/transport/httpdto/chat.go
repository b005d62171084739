package httpdto

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/chat"
	"veilchat/internal/services"
)

// CreateRoomRequest is used for POST /rooms
type CreateRoomRequest struct {
	Name    string           `json:"name" binding:"required"`
	IsGroup bool             `json:"is_group"`
	Members []RoomMemberInit `json:"members,omitempty"`
}

// RoomMemberInit carries one member plus their wrapped room key
type RoomMemberInit struct {
	UserID   string          `json:"user_id" binding:"required"`
	DeviceID string          `json:"device_id,omitempty"`
	Envelope *KeyEnvelopeDTO `json:"envelope,omitempty"`
}

// KeyEnvelopeDTO is a wrapped room key for one member
type KeyEnvelopeDTO struct {
	EncryptedRoomKey string `json:"encrypted_room_key" binding:"required"`
	IV               string `json:"iv,omitempty"`
	Tag              string `json:"tag,omitempty"`
	Alg              string `json:"alg,omitempty"`
}

func (m RoomMemberInit) ToInput() (services.RoomMemberInput, error) {
	userID, err := uuid.Parse(m.UserID)
	if err != nil {
		return services.RoomMemberInput{}, err
	}
	in := services.RoomMemberInput{UserID: userID}
	if m.DeviceID != "" {
		deviceID, err := uuid.Parse(m.DeviceID)
		if err != nil {
			return services.RoomMemberInput{}, err
		}
		in.DeviceID = uuid.NullUUID{UUID: deviceID, Valid: true}
	}
	if m.Envelope != nil {
		env, err := m.Envelope.ToInput()
		if err != nil {
			return services.RoomMemberInput{}, err
		}
		in.Envelope = env
	}
	return in, nil
}

func (e KeyEnvelopeDTO) ToInput() (*services.KeyEnvelope, error) {
	key, err := base64.StdEncoding.DecodeString(e.EncryptedRoomKey)
	if err != nil {
		return nil, err
	}
	iv, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil {
		return nil, err
	}
	tag, err := base64.StdEncoding.DecodeString(e.Tag)
	if err != nil {
		return nil, err
	}
	return &services.KeyEnvelope{
		EncryptedRoomKey: key,
		IV:               iv,
		Tag:              tag,
		Alg:              e.Alg,
	}, nil
}

// AddMembersRequest is used for POST /rooms/:id/members
type AddMembersRequest struct {
	Members []RoomMemberInit `json:"members" binding:"required"`
}

// RoomDTO represents a room in API responses
type RoomDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsGroup   bool   `json:"is_group"`
	CreatedAt string `json:"created_at"`
}

func FromRoom(r chat.Room) RoomDTO {
	return RoomDTO{
		ID:        r.ID.String(),
		Name:      r.Name,
		IsGroup:   r.IsGroup,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

// RoomMemberDTO represents a room member in API responses. The envelope is
// only meaningful to the member it belongs to.
type RoomMemberDTO struct {
	UserID           string `json:"user_id"`
	DeviceID         string `json:"device_id,omitempty"`
	EncryptedRoomKey string `json:"encrypted_room_key,omitempty"`
	KeyEnvelopeIV    string `json:"key_envelope_iv,omitempty"`
	KeyEnvelopeTag   string `json:"key_envelope_tag,omitempty"`
	KeyEnvelopeAlg   string `json:"key_envelope_alg,omitempty"`
	JoinedAt         string `json:"joined_at"`
}

func FromRoomMember(m chat.RoomMember) RoomMemberDTO {
	dto := RoomMemberDTO{
		UserID:           m.UserID.String(),
		EncryptedRoomKey: base64.StdEncoding.EncodeToString(m.EncryptedRoomKey),
		KeyEnvelopeAlg:   m.KeyEnvelopeAlg,
		JoinedAt:         m.JoinedAt.Format(time.RFC3339),
	}
	if m.DeviceID.Valid {
		dto.DeviceID = m.DeviceID.UUID.String()
	}
	if len(m.KeyEnvelopeIV) > 0 {
		dto.KeyEnvelopeIV = base64.StdEncoding.EncodeToString(m.KeyEnvelopeIV)
	}
	if len(m.KeyEnvelopeTag) > 0 {
		dto.KeyEnvelopeTag = base64.StdEncoding.EncodeToString(m.KeyEnvelopeTag)
	}
	return dto
}

// ConnectRequest is used for POST /connections
type ConnectRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// RespondConnectionRequest is used for PATCH /connections/:id
type RespondConnectionRequest struct {
	Status string `json:"status" binding:"required"`
}

// ConnectionDTO represents a pairwise connection in API responses
type ConnectionDTO struct {
	ID              string `json:"id"`
	UserID          string `json:"user_id"`
	ConnectedUserID string `json:"connected_user_id"`
	CreatedAt       string `json:"created_at"`
}

func FromConnection(c chat.Connection) ConnectionDTO {
	return ConnectionDTO{
		ID:              c.ID.String(),
		UserID:          c.UserID.String(),
		ConnectedUserID: c.ConnectedUserID.String(),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}
