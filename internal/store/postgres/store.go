// Package postgres implements store.MessageStore on gorm + PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Shadowcake59/ChatVerse/internal/store"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Store struct {
	db *gorm.DB
}

var _ store.MessageStore = (*Store)(nil)

// Open connects to the database, configures the pool, and migrates the
// message tables.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.AutoMigrate(&Message{}, &RoomMember{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) PersistMessage(ctx context.Context, msg store.NewMessage) (*store.StoredMessage, error) {
	record := Message{
		ID:        uuid.NewString(),
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		ImageURL:  msg.ImageURL,
		Type:      msg.Type,
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}
	return &store.StoredMessage{
		ID:        record.ID,
		RoomID:    record.RoomID,
		UserID:    record.UserID,
		Content:   record.Content,
		ImageURL:  record.ImageURL,
		Type:      record.Type,
		CreatedAt: record.CreatedAt,
	}, nil
}

func (s *Store) UpdateLastRead(ctx context.Context, roomID, userID string) error {
	member := RoomMember{
		RoomID:     roomID,
		UserID:     userID,
		LastReadAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_read_at"}),
	}).Create(&member).Error
	if err != nil {
		return fmt.Errorf("failed to update last read: %w", err)
	}
	return nil
}
