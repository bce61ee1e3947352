package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrThreadExists = errors.New("thread already exists between users")

type ThreadRepo struct {
	db *gorm.DB
}

func NewThreadRepo(db *gorm.DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// CreateThreadWithUsers creates a DM thread, both participant rows and both
// read-state rows in one transaction.
func (r *ThreadRepo) CreateThreadWithUsers(ctx context.Context, userA, userB uint) (uint, error) {
	var threadID uint
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		thread := DMThread{}
		if err := tx.Create(&thread).Error; err != nil {
			return err
		}
		threadID = thread.ID
		participants := []DMThreadParticipant{
			{ThreadID: threadID, UserID: userA},
			{ThreadID: threadID, UserID: userB},
		}
		if err := tx.Create(&participants).Error; err != nil {
			return err
		}
		reads := []DMRead{
			{ThreadID: threadID, UserID: userA},
			{ThreadID: threadID, UserID: userB},
		}
		return tx.Create(&reads).Error
	})
	if err != nil {
		return 0, err
	}
	return threadID, nil
}

// SharedThread returns the thread both users participate in, or 0.
func (r *ThreadRepo) SharedThread(ctx context.Context, userA, userB uint) (uint, error) {
	var threadID uint
	err := r.db.WithContext(ctx).
		Model(&DMThreadParticipant{}).
		Select("thread_id").
		Where("user_id IN ?", []uint{userA, userB}).
		Group("thread_id").
		Having("COUNT(*) = 2").
		Limit(1).
		Scan(&threadID).Error
	if err != nil {
		return 0, err
	}
	return threadID, nil
}

// ThreadsForUser is the connect-time lookup behind thread auto-join.
func (r *ThreadRepo) ThreadsForUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).
		Model(&DMThreadParticipant{}).
		Where("user_id = ?", userID).
		Pluck("thread_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateDirectMessage persists a DM. The thread is always resolved from the
// two participants, never taken from the caller, so a message can only land
// in a thread both users belong to. Returns the stored message and whether
// the thread is new (the caller subscribes to new threads).
func (r *ThreadRepo) CreateDirectMessage(ctx context.Context, senderID, receiverID uint, text string) (*DirectMessage, bool, error) {
	threadID, err := r.SharedThread(ctx, senderID, receiverID)
	if err != nil {
		return nil, false, err
	}
	created := false
	if threadID == 0 {
		threadID, err = r.CreateThreadWithUsers(ctx, senderID, receiverID)
		if err != nil {
			return nil, false, err
		}
		created = true
	}
	msg := DirectMessage{
		ThreadID:   threadID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Message:    text,
	}
	if err := r.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return nil, false, err
	}
	return &msg, created, nil
}

// MarkRead advances the reader's last-read pointer in a thread.
func (r *ThreadRepo) MarkRead(ctx context.Context, threadID, userID, messageID uint) error {
	res := r.db.WithContext(ctx).
		Model(&DMRead{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Update("last_read_message_id", messageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ThreadRepo) IsParticipant(ctx context.Context, threadID, userID uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&DMThreadParticipant{}).
		Where("thread_id = ? AND user_id = ?", threadID, userID).
		Count(&n).Error
	return n > 0, err
}
