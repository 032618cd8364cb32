package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

type messageModel struct {
	ID           string `gorm:"primaryKey"`
	RoomID       string `gorm:"index;not null"`
	SenderID     string `gorm:"index:idx_sender;not null"`
	SenderKind   string `gorm:"index:idx_sender;not null"`
	SenderName   string `gorm:"not null"`
	ReceiverID   string `gorm:"index:idx_receiver_unread,priority:1;not null"`
	ReceiverKind string `gorm:"index:idx_receiver_unread,priority:2;not null"`
	Read         bool   `gorm:"index:idx_receiver_unread,priority:3;not null;default:false"`
	Body         string `gorm:"type:text;not null"`
	CreatedAt    time.Time
	CreatedNano  int64 `gorm:"index;not null"`
}

func (messageModel) TableName() string {
	return "messages"
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used by AppendMessage.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore opens a SQLite database at the provided path.
func NewStore(cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer; funnel everything through one connection.
	sqlDB.SetMaxOpenConns(1)

	store := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&messageModel{})
}

// AppendMessage stores a new chat message.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return chat.Persistence("append message", errors.New("nil message"))
	}
	storage.Prepare(msg, s.now(), uuid.NewString)
	model := toModel(*msg)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return chat.Persistence("append message", err)
	}
	return nil
}

// HistoryForRoom lists the room's messages oldest first.
func (s *Store) HistoryForRoom(ctx context.Context, roomID string) ([]storage.Message, error) {
	var models []messageModel
	err := s.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_nano ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, chat.Persistence("load room history", err)
	}
	messages := make([]storage.Message, 0, len(models))
	for _, model := range models {
		messages = append(messages, fromModel(model))
	}
	return messages, nil
}

// MarkRead flags the receiver's unread messages in the room as read.
func (s *Store) MarkRead(ctx context.Context, roomID string, receiver chat.Identity) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&messageModel{}).
		Where("room_id = ? AND receiver_id = ? AND receiver_kind = ? AND read = ?", roomID, receiver.ID, string(receiver.Kind), false).
		Update("read", true)
	if res.Error != nil {
		return 0, chat.Persistence("mark messages read", res.Error)
	}
	return res.RowsAffected, nil
}

// CountUnread counts unread messages addressed to receiver across all rooms.
func (s *Store) CountUnread(ctx context.Context, receiver chat.Identity) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&messageModel{}).
		Where("receiver_id = ? AND receiver_kind = ? AND read = ?", receiver.ID, string(receiver.Kind), false).
		Count(&count).Error
	if err != nil {
		return 0, chat.Persistence("count unread", err)
	}
	return count, nil
}

// DistinctRoomsFor lists rooms in which participant sent or received a message.
func (s *Store) DistinctRoomsFor(ctx context.Context, participant chat.Identity) ([]string, error) {
	rooms := make([]string, 0)
	kind := string(participant.Kind)
	err := s.db.WithContext(ctx).
		Model(&messageModel{}).
		Where("(sender_id = ? AND sender_kind = ?) OR (receiver_id = ? AND receiver_kind = ?)", participant.ID, kind, participant.ID, kind).
		Distinct("room_id").
		Order("room_id ASC").
		Pluck("room_id", &rooms).Error
	if err != nil {
		return nil, chat.Persistence("list conversations", err)
	}
	return rooms, nil
}

func toModel(msg storage.Message) messageModel {
	return messageModel{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.Sender.ID,
		SenderKind:   string(msg.Sender.Kind),
		SenderName:   msg.SenderName,
		ReceiverID:   msg.Receiver.ID,
		ReceiverKind: string(msg.Receiver.Kind),
		Read:         msg.Read,
		Body:         msg.Body,
		CreatedAt:    msg.CreatedAt,
		CreatedNano:  msg.CreatedAt.UnixNano(),
	}
}

func fromModel(model messageModel) storage.Message {
	return storage.Message{
		ID:         model.ID,
		RoomID:     model.RoomID,
		Sender:     chat.Identity{ID: model.SenderID, Kind: chat.Kind(model.SenderKind)},
		SenderName: model.SenderName,
		Receiver:   chat.Identity{ID: model.ReceiverID, Kind: chat.Kind(model.ReceiverKind)},
		Body:       model.Body,
		CreatedAt:  time.Unix(0, model.CreatedNano).UTC(),
		Read:       model.Read,
	}
}
