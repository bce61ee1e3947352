package postgres

import "time"

type User struct {
	ID           uint   `gorm:"primaryKey"`
	Username     string `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Room struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"uniqueIndex;size:128;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Message struct {
	ID         uint   `gorm:"primaryKey"`
	RoomID     uint   `gorm:"index:idx_msg_room_id;not null"`
	SenderID   uint   `gorm:"index;not null"`
	Message    string `gorm:"type:text;not null"`
	ReplyingTo *uint  `gorm:"index"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

type Like struct {
	ID        uint `gorm:"primaryKey"`
	MessageID uint `gorm:"uniqueIndex:idx_like_msg_user;not null"`
	LikerID   uint `gorm:"uniqueIndex:idx_like_msg_user;not null"`
	CreatedAt time.Time
}

type Reaction struct {
	ID        uint   `gorm:"primaryKey"`
	MessageID uint   `gorm:"uniqueIndex:idx_react_msg_user_emoji;not null"`
	ReacterID uint   `gorm:"uniqueIndex:idx_react_msg_user_emoji;not null"`
	Emoji     string `gorm:"uniqueIndex:idx_react_msg_user_emoji;size:16;not null"`
	CreatedAt time.Time
}

type DMThread struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
}

type DMThreadParticipant struct {
	ID       uint `gorm:"primaryKey"`
	ThreadID uint `gorm:"uniqueIndex:idx_thread_user;not null"`
	UserID   uint `gorm:"uniqueIndex:idx_thread_user;index;not null"`
}

// DMRead tracks the last message a participant has seen in a thread.
type DMRead struct {
	ID                uint `gorm:"primaryKey"`
	ThreadID          uint `gorm:"uniqueIndex:idx_read_thread_user;not null"`
	UserID            uint `gorm:"uniqueIndex:idx_read_thread_user;not null"`
	LastReadMessageID uint
	UpdatedAt         time.Time
}

type DirectMessage struct {
	ID         uint   `gorm:"primaryKey"`
	ThreadID   uint   `gorm:"index;not null"`
	SenderID   uint   `gorm:"index;not null"`
	ReceiverID uint   `gorm:"not null"`
	Message    string `gorm:"type:text;not null"`
	CreatedAt  time.Time
}
