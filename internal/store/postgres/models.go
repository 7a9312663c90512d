package postgres

import "time"

// Message is one persisted chat message.
type Message struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	RoomID    string    `gorm:"index;not null"`
	UserID    string    `gorm:"index;not null"`
	Content   string    `gorm:"type:text"`
	ImageURL  string    `gorm:"type:text"`
	Type      string    `gorm:"size:16;not null;default:text"`
	CreatedAt time.Time `gorm:"index"`
}

// RoomMember tracks per-user read position in a room.
type RoomMember struct {
	RoomID     string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey"`
	LastReadAt time.Time
}
