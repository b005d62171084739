package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"veilchat/internal/domain/chat"
	veilchat_errors "veilchat/pkg/errors"
)

type PostgresChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) ChatRepository {
	return &PostgresChatRepository{db: db}
}

func (r *PostgresChatRepository) CreateRoom(ctx context.Context, room *chat.Room, members []chat.RoomMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return err
		}
		if len(members) == 0 {
			return nil
		}
		for i := range members {
			members[i].RoomID = room.ID
		}
		return tx.Create(&members).Error
	})
}

func (r *PostgresChatRepository) GetRoom(ctx context.Context, id uuid.UUID) (chat.Room, error) {
	var room chat.Room
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&room).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Room{}, veilchat_errors.ErrNotFound
		}
		return chat.Room{}, err
	}
	return room, nil
}

func (r *PostgresChatRepository) AddRoomMembers(ctx context.Context, members []chat.RoomMember) error {
	if len(members) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Create(&members)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return veilchat_errors.ErrAlreadyExists
		}
		return res.Error
	}
	return nil
}

func (r *PostgresChatRepository) ListRoomMembers(ctx context.Context, roomID uuid.UUID) ([]chat.RoomMember, error) {
	var members []chat.RoomMember
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *PostgresChatRepository) IsRoomMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&chat.RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *PostgresChatRepository) CreateConnection(ctx context.Context, c *chat.Connection) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *PostgresChatRepository) GetConnection(ctx context.Context, id uuid.UUID) (chat.Connection, error) {
	var c chat.Connection
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Connection{}, veilchat_errors.ErrNotFound
		}
		return chat.Connection{}, err
	}
	return c, nil
}

func (r *PostgresChatRepository) FindConnectionBetween(ctx context.Context, a, b uuid.UUID) (chat.Connection, error) {
	var c chat.Connection
	err := r.db.WithContext(ctx).
		Where("(user_id = ? AND connected_user_id = ?) OR (user_id = ? AND connected_user_id = ?)", a, b, b, a).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chat.Connection{}, veilchat_errors.ErrNotFound
		}
		return chat.Connection{}, err
	}
	return c, nil
}

func (r *PostgresChatRepository) ListConnections(ctx context.Context, userID uuid.UUID) ([]chat.Connection, error) {
	var conns []chat.Connection
	err := r.db.WithContext(ctx).
		Where("user_id = ? OR connected_user_id = ?", userID, userID).
		Find(&conns).Error
	if err != nil {
		return nil, err
	}
	return conns, nil
}

func (r *PostgresChatRepository) DeleteConnection(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&chat.Connection{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return veilchat_errors.ErrNotFound
	}
	return nil
}
