package keys

import (
	"time"

	"github.com/google/uuid"
)

// Device represents the devices table. Immutable after registration except
// the Enabled flag; (user_id, name) is unique so re-registration is an
// upsert-by-name returning the existing row.
type Device struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_devices_user_name"`
	Name         string    `gorm:"not null;uniqueIndex:idx_devices_user_name"`
	IdentityKey  []byte    `gorm:"not null"`
	SignedPreKey []byte    `gorm:"not null"`
	SPKSignature []byte    `gorm:"not null"`
	Enabled      bool      `gorm:"default:true"`
	RegisteredAt time.Time
}

// OneTimePreKey represents the onetime_prekeys table. Consumed is monotonic
// false -> true; consumed rows are never reused or deleted.
type OneTimePreKey struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	DeviceID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_otk_device_key"`
	KeyID     int       `gorm:"not null;uniqueIndex:idx_otk_device_key"`
	PublicKey []byte    `gorm:"not null"`
	Consumed  bool      `gorm:"default:false;index"`
	CreatedAt time.Time
}

// PreKeyBundle is the public projection handed out on a claim. The one-time
// prekey is nil once the pool is exhausted; the caller falls back to
// signed-prekey-only agreement.
type PreKeyBundle struct {
	DeviceID      uuid.UUID      `json:"device_id"`
	IdentityKey   []byte         `json:"identity_key"`
	SignedPreKey  []byte         `json:"signed_prekey"`
	SPKSignature  []byte         `json:"spk_signature"`
	OneTimePreKey *ClaimedPreKey `json:"one_time_prekey"`
}

// ClaimedPreKey is the consumed one-time prekey half of a bundle.
type ClaimedPreKey struct {
	KeyID     int    `json:"key_id"`
	PublicKey []byte `json:"public_key"`
}

func (Device) TableName() string {
	return "devices"
}

func (OneTimePreKey) TableName() string {
	return "onetime_prekeys"
}
