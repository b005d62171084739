package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"veilchat/internal/domain/chat"
	veilchat_errors "veilchat/pkg/errors"
)

type PostgresMessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &PostgresMessageRepository{db: db}
}

func (r *PostgresMessageRepository) CreateWithKeys(ctx context.Context, m *chat.Message, wrapped []chat.WrappedKey) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Sender", "WrappedKeys", "SeenBy").Create(m).Error; err != nil {
			return err
		}
		for i := range wrapped {
			wrapped[i].MessageID = m.ID
		}
		return tx.Create(&wrapped).Error
	})
}

func (r *PostgresMessageRepository) GetByID(ctx context.Context, id uuid.UUID) (chat.Message, error) {
	var m chat.Message
	err := r.db.WithContext(ctx).
		Preload("SeenBy").
		Where("id = ?", id).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Message{}, veilchat_errors.ErrNotFound
		}
		return chat.Message{}, err
	}
	return m, nil
}

// History returns messages on the target channel visible to the caller's
// device: messages the caller sent, plus messages carrying a wrapped key for
// deviceID. Newest first; cursor is a message id with strictly-before
// semantics on (created_at, id). Each returned message is preloaded with only
// that device's wrapped key.
func (r *PostgresMessageRepository) History(ctx context.Context, target chat.ChannelRef, userID, deviceID uuid.UUID, cursor *uuid.UUID, limit int) ([]chat.Message, error) {
	q := r.db.WithContext(ctx).Model(&chat.Message{})

	switch target.Kind {
	case chat.ChannelRoom:
		q = q.Where("room_id = ?", target.ID)
	case chat.ChannelConnection:
		q = q.Where("connection_id = ?", target.ID)
	default:
		return nil, veilchat_errors.ErrInvalidInput
	}

	q = q.Where(
		"sender_id = ? OR id IN (?)",
		userID,
		r.db.Model(&chat.WrappedKey{}).Select("message_id").Where("device_id = ?", deviceID),
	)

	if cursor != nil {
		var anchor chat.Message
		err := r.db.WithContext(ctx).
			Select("id", "created_at").
			Where("id = ?", *cursor).
			First(&anchor).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, veilchat_errors.ErrNotFound
			}
			return nil, err
		}
		q = q.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			anchor.CreatedAt, anchor.CreatedAt, anchor.ID,
		)
	}

	var messages []chat.Message
	err := q.
		Preload("WrappedKeys", "device_id = ?", deviceID).
		Preload("SeenBy").
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *PostgresMessageRepository) GetSeen(ctx context.Context, messageID, userID uuid.UUID) (chat.MessageSeen, error) {
	var s chat.MessageSeen
	err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.MessageSeen{}, veilchat_errors.ErrNotFound
		}
		return chat.MessageSeen{}, err
	}
	return s, nil
}

func (r *PostgresMessageRepository) CreateSeen(ctx context.Context, s *chat.MessageSeen) error {
	res := r.db.WithContext(ctx).Create(s)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return veilchat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}
