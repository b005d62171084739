package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"veilchat/internal/domain/keys"
	veilchat_errors "veilchat/pkg/errors"
)

type PostgresKeysRepository struct {
	db *gorm.DB
}

func NewKeysRepository(db *gorm.DB) KeysRepository {
	return &PostgresKeysRepository{db: db}
}

func (r *PostgresKeysRepository) CreateDevice(ctx context.Context, d *keys.Device) error {
	res := r.db.WithContext(ctx).Create(d)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return veilchat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresKeysRepository) GetDevice(ctx context.Context, id uuid.UUID) (keys.Device, error) {
	var d keys.Device
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return keys.Device{}, veilchat_errors.ErrNotFound
		}
		return keys.Device{}, err
	}
	return d, nil
}

func (r *PostgresKeysRepository) GetDeviceByName(ctx context.Context, userID uuid.UUID, name string) (keys.Device, error) {
	var d keys.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND name = ?", userID, name).
		First(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return keys.Device{}, veilchat_errors.ErrNotFound
		}
		return keys.Device{}, err
	}
	return d, nil
}

func (r *PostgresKeysRepository) ListEnabledDevices(ctx context.Context, userID uuid.UUID) ([]keys.Device, error) {
	var devices []keys.Device
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND enabled = ?", userID, true).
		Order("registered_at ASC").
		Find(&devices).Error
	if err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *PostgresKeysRepository) SetDeviceEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	res := r.db.WithContext(ctx).
		Model(&keys.Device{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return veilchat_errors.ErrNotFound
	}
	return nil
}

func (r *PostgresKeysRepository) DeleteDevice(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&keys.Device{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return veilchat_errors.ErrNotFound
	}
	return nil
}

// AddPreKeys bulk-inserts a prekey batch. Rows colliding on
// (device_id, key_id) are skipped, never overwritten, so an already consumed
// key cannot be resurrected by a re-upload.
func (r *PostgresKeysRepository) AddPreKeys(ctx context.Context, batch []keys.OneTimePreKey) (int64, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&batch)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ClaimPreKey selects the unconsumed prekey with the lowest key_id and marks
// it consumed, both inside one row-locked transaction. Rows locked by a
// concurrent claim are skipped, so each claimant takes the lowest key still
// up for grabs rather than re-reading a row that just got consumed. Returns
// nil when the pool is exhausted.
func (r *PostgresKeysRepository) ClaimPreKey(ctx context.Context, deviceID uuid.UUID) (*keys.OneTimePreKey, error) {
	var key keys.OneTimePreKey
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("device_id = ? AND consumed = ?", deviceID, false).
			Order("key_id ASC").
			First(&key).Error
		if err != nil {
			return err
		}
		return tx.Model(&keys.OneTimePreKey{}).
			Where("id = ?", key.ID).
			Update("consumed", true).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	key.Consumed = true
	return &key, nil
}

func (r *PostgresKeysRepository) CountAvailablePreKeys(ctx context.Context, deviceID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&keys.OneTimePreKey{}).
		Where("device_id = ? AND consumed = ?", deviceID, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
