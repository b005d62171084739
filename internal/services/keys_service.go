package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"veilchat/internal/domain/keys"
	"veilchat/internal/repository"
	veilchat_errors "veilchat/pkg/errors"
)

// KeysService is the device key directory: it stores public key material and
// brokers one-time prekey claims for session bootstrap. No private material
// ever reaches the server.
type KeysService struct {
	repo      repository.KeysRepository
	dbTimeout time.Duration
}

func NewKeysService(repo repository.KeysRepository, dbTimeout time.Duration) *KeysService {
	return &KeysService{repo: repo, dbTimeout: dbTimeout}
}

type RegisterDeviceInput struct {
	Name         string
	IdentityKey  []byte
	SignedPreKey []byte
	SPKSignature []byte
}

type PreKeyUpload struct {
	KeyID     int
	PublicKey []byte
}

// PublicDevice is the projection handed to other users: public fields only.
type PublicDevice struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	IdentityKey  []byte    `json:"identity_key"`
	SignedPreKey []byte    `json:"signed_prekey"`
	SPKSignature []byte    `json:"spk_signature"`
}

// RegisterDevice is idempotent: a device with the same (user, name) is
// returned unchanged rather than duplicated. Re-registration is an
// upsert-by-name, not a conflict.
func (s *KeysService) RegisterDevice(ctx context.Context, userID uuid.UUID, in RegisterDeviceInput) (keys.Device, error) {
	if len(in.IdentityKey) == 0 || len(in.SignedPreKey) == 0 || len(in.SPKSignature) == 0 {
		return keys.Device{}, veilchat_errors.ErrInvalidInput
	}

	name := in.Name
	if name == "" {
		name = "device-" + userID.String()[:8]
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	existing, err := s.repo.GetDeviceByName(ctx, userID, name)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, veilchat_errors.ErrNotFound) {
		return keys.Device{}, storageErr(err)
	}

	device := &keys.Device{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         name,
		IdentityKey:  in.IdentityKey,
		SignedPreKey: in.SignedPreKey,
		SPKSignature: in.SPKSignature,
		Enabled:      true,
		RegisteredAt: time.Now(),
	}
	if err := s.repo.CreateDevice(ctx, device); err != nil {
		// Lost a race with a concurrent registration of the same name.
		if errors.Is(err, veilchat_errors.ErrAlreadyExists) {
			return s.repo.GetDeviceByName(ctx, userID, name)
		}
		return keys.Device{}, storageErr(err)
	}
	return *device, nil
}

// UploadPrekeys bulk-inserts one-time prekeys for a device the caller owns.
// Key ids colliding with already uploaded ones are skipped.
func (s *KeysService) UploadPrekeys(ctx context.Context, userID, deviceID uuid.UUID, upload []PreKeyUpload) (int64, error) {
	if len(upload) == 0 {
		return 0, veilchat_errors.ErrInvalidInput
	}

	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return 0, storageErr(err)
	}
	if device.UserID != userID {
		return 0, veilchat_errors.ErrForbidden
	}

	batch := make([]keys.OneTimePreKey, 0, len(upload))
	for _, k := range upload {
		if len(k.PublicKey) == 0 {
			return 0, veilchat_errors.ErrInvalidInput
		}
		batch = append(batch, keys.OneTimePreKey{
			ID:        uuid.New(),
			DeviceID:  deviceID,
			KeyID:     k.KeyID,
			PublicKey: k.PublicKey,
			CreatedAt: time.Now(),
		})
	}

	uploaded, err := s.repo.AddPreKeys(ctx, batch)
	if err != nil {
		return 0, storageErr(err)
	}
	return uploaded, nil
}

// ClaimPrekeyBundle returns the device's public bundle, consuming its oldest
// unconsumed one-time prekey. With the pool exhausted the bundle still
// succeeds with a nil one-time prekey; the caller falls back to
// signed-prekey-only agreement.
func (s *KeysService) ClaimPrekeyBundle(ctx context.Context, deviceID uuid.UUID) (keys.PreKeyBundle, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return keys.PreKeyBundle{}, storageErr(err)
	}
	if !device.Enabled {
		return keys.PreKeyBundle{}, veilchat_errors.ErrNotFound
	}

	bundle := keys.PreKeyBundle{
		DeviceID:     device.ID,
		IdentityKey:  device.IdentityKey,
		SignedPreKey: device.SignedPreKey,
		SPKSignature: device.SPKSignature,
	}

	claimed, err := s.repo.ClaimPreKey(ctx, deviceID)
	if err != nil {
		return keys.PreKeyBundle{}, storageErr(err)
	}
	if claimed != nil {
		bundle.OneTimePreKey = &keys.ClaimedPreKey{
			KeyID:     claimed.KeyID,
			PublicKey: claimed.PublicKey,
		}
	}
	return bundle, nil
}

// ListPublicDevices returns the user's enabled devices, public fields only.
func (s *KeysService) ListPublicDevices(ctx context.Context, userID uuid.UUID) ([]PublicDevice, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	devices, err := s.repo.ListEnabledDevices(ctx, userID)
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]PublicDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, PublicDevice{
			ID:           d.ID,
			Name:         d.Name,
			IdentityKey:  d.IdentityKey,
			SignedPreKey: d.SignedPreKey,
			SPKSignature: d.SPKSignature,
		})
	}
	return out, nil
}

func (s *KeysService) SetDeviceEnabled(ctx context.Context, userID, deviceID uuid.UUID, enabled bool) error {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return storageErr(err)
	}
	if device.UserID != userID {
		return veilchat_errors.ErrForbidden
	}
	return storageErr(s.repo.SetDeviceEnabled(ctx, deviceID, enabled))
}

func (s *KeysService) RemoveDevice(ctx context.Context, userID, deviceID uuid.UUID) error {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		return storageErr(err)
	}
	if device.UserID != userID {
		return veilchat_errors.ErrForbidden
	}
	return storageErr(s.repo.DeleteDevice(ctx, deviceID))
}

// OwnsDevice reports whether the device exists and belongs to the user.
// Used at socket-connect time to bind a connection to a device.
func (s *KeysService) OwnsDevice(ctx context.Context, userID, deviceID uuid.UUID) (bool, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	device, err := s.repo.GetDevice(ctx, deviceID)
	if err != nil {
		if errors.Is(err, veilchat_errors.ErrNotFound) {
			return false, nil
		}
		return false, storageErr(err)
	}
	return device.UserID == userID && device.Enabled, nil
}

// PrekeyCount reports how many unconsumed one-time prekeys remain, so
// clients know when to replenish the pool.
func (s *KeysService) PrekeyCount(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	ctx, cancel := withDBTimeout(ctx, s.dbTimeout)
	defer cancel()

	if _, err := s.repo.GetDevice(ctx, deviceID); err != nil {
		return 0, storageErr(err)
	}
	count, err := s.repo.CountAvailablePreKeys(ctx, deviceID)
	if err != nil {
		return 0, storageErr(err)
	}
	return count, nil
}
