package postgres

import (
	"context"

	"gorm.io/gorm"
)

type MessageRepo struct {
	db *gorm.DB
}

func NewMessageRepo(db *gorm.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

func (r *MessageRepo) CreateMessage(ctx context.Context, roomID, senderID uint, text string, replyingTo *uint) (*Message, error) {
	msg := Message{
		RoomID:     roomID,
		SenderID:   senderID,
		Message:    text,
		ReplyingTo: replyingTo,
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// RecentMessages pages backwards through a room's history. beforeID == 0
// means "from the latest".
func (r *MessageRepo) RecentMessages(ctx context.Context, roomID uint, limit int, beforeID uint) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("room_id = ? AND deleted_at IS NULL", roomID).
		Order("id desc").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *MessageRepo) SenderName(ctx context.Context, userID uint) (string, error) {
	var user User
	if err := r.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return "", err
	}
	return user.Username, nil
}
