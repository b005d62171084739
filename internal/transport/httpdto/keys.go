package httpdto

import (
	"encoding/base64"
	"time"

	"veilchat/internal/domain/keys"
	"veilchat/internal/services"
)

// RegisterDeviceRequest is used for POST /keys/devices. Key material travels
// base64-encoded.
type RegisterDeviceRequest struct {
	Name         string `json:"name,omitempty"`
	IdentityKey  string `json:"identity_key" binding:"required"`
	SignedPreKey string `json:"signed_prekey" binding:"required"`
	SPKSignature string `json:"spk_signature" binding:"required"`
}

func (r RegisterDeviceRequest) ToInput() (services.RegisterDeviceInput, error) {
	identity, err := base64.StdEncoding.DecodeString(r.IdentityKey)
	if err != nil {
		return services.RegisterDeviceInput{}, err
	}
	spk, err := base64.StdEncoding.DecodeString(r.SignedPreKey)
	if err != nil {
		return services.RegisterDeviceInput{}, err
	}
	sig, err := base64.StdEncoding.DecodeString(r.SPKSignature)
	if err != nil {
		return services.RegisterDeviceInput{}, err
	}
	return services.RegisterDeviceInput{
		Name:         r.Name,
		IdentityKey:  identity,
		SignedPreKey: spk,
		SPKSignature: sig,
	}, nil
}

// DeviceDTO represents an owned device in API responses
type DeviceDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IdentityKey  string `json:"identity_key"`
	SignedPreKey string `json:"signed_prekey"`
	SPKSignature string `json:"spk_signature"`
	Enabled      bool   `json:"enabled"`
	RegisteredAt string `json:"registered_at"`
}

func FromDevice(d keys.Device) DeviceDTO {
	return DeviceDTO{
		ID:           d.ID.String(),
		Name:         d.Name,
		IdentityKey:  base64.StdEncoding.EncodeToString(d.IdentityKey),
		SignedPreKey: base64.StdEncoding.EncodeToString(d.SignedPreKey),
		SPKSignature: base64.StdEncoding.EncodeToString(d.SPKSignature),
		Enabled:      d.Enabled,
		RegisteredAt: d.RegisteredAt.Format(time.RFC3339),
	}
}

// PublicDeviceDTO represents another user's device: public fields only
type PublicDeviceDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IdentityKey  string `json:"identity_key"`
	SignedPreKey string `json:"signed_prekey"`
	SPKSignature string `json:"spk_signature"`
}

func FromPublicDevice(d services.PublicDevice) PublicDeviceDTO {
	return PublicDeviceDTO{
		ID:           d.ID.String(),
		Name:         d.Name,
		IdentityKey:  base64.StdEncoding.EncodeToString(d.IdentityKey),
		SignedPreKey: base64.StdEncoding.EncodeToString(d.SignedPreKey),
		SPKSignature: base64.StdEncoding.EncodeToString(d.SPKSignature),
	}
}

// UploadPreKeysRequest is used for POST /keys/devices/:id/prekeys
type UploadPreKeysRequest struct {
	Keys []PreKeyUploadDTO `json:"keys" binding:"required"`
}

// PreKeyUploadDTO is one prekey in an upload batch
type PreKeyUploadDTO struct {
	KeyID     int    `json:"key_id"`
	PublicKey string `json:"public_key" binding:"required"`
}

func (r UploadPreKeysRequest) ToInput() ([]services.PreKeyUpload, error) {
	uploads := make([]services.PreKeyUpload, 0, len(r.Keys))
	for _, k := range r.Keys {
		pub, err := base64.StdEncoding.DecodeString(k.PublicKey)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, services.PreKeyUpload{KeyID: k.KeyID, PublicKey: pub})
	}
	return uploads, nil
}

// UploadedKeysCountResponse is returned after uploading prekeys
type UploadedKeysCountResponse struct {
	Uploaded int64 `json:"uploaded"`
}

// PreKeyCountResponse is returned when getting the remaining prekey count
type PreKeyCountResponse struct {
	Count int64 `json:"count"`
}

// ClaimedPreKeyDTO is the consumed one-time prekey half of a bundle
type ClaimedPreKeyDTO struct {
	KeyID     int    `json:"key_id"`
	PublicKey string `json:"public_key"`
}

// KeyBundleDTO represents a claimed key bundle. OneTimePreKey is null once
// the device's pool is exhausted.
type KeyBundleDTO struct {
	DeviceID      string            `json:"device_id"`
	IdentityKey   string            `json:"identity_key"`
	SignedPreKey  string            `json:"signed_prekey"`
	SPKSignature  string            `json:"spk_signature"`
	OneTimePreKey *ClaimedPreKeyDTO `json:"one_time_prekey"`
}

func FromPreKeyBundle(b keys.PreKeyBundle) KeyBundleDTO {
	dto := KeyBundleDTO{
		DeviceID:     b.DeviceID.String(),
		IdentityKey:  base64.StdEncoding.EncodeToString(b.IdentityKey),
		SignedPreKey: base64.StdEncoding.EncodeToString(b.SignedPreKey),
		SPKSignature: base64.StdEncoding.EncodeToString(b.SPKSignature),
	}
	if b.OneTimePreKey != nil {
		dto.OneTimePreKey = &ClaimedPreKeyDTO{
			KeyID:     b.OneTimePreKey.KeyID,
			PublicKey: base64.StdEncoding.EncodeToString(b.OneTimePreKey.PublicKey),
		}
	}
	return dto
}

// SetDeviceEnabledRequest is used for PATCH /keys/devices/:id
type SetDeviceEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
