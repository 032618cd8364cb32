package badger

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/storage"
)

// Key layout. Room ids and identity keys are hex encoded so that free-form
// participant ids can never break prefix scans; hex keeps byte ordering.
//
//	msg:{room}:{unix_nano 19 digits}:{id}            -> JSON message
//	unread:{receiver}:{room}:{unix_nano}:{id}        -> empty
//	conv:{participant}:{room}                        -> raw room id
const (
	msgPrefix    = "msg:"
	unreadPrefix = "unread:"
	convPrefix   = "conv:"

	maxConflictRetries = 5
)

// Store is a BadgerDB implementation of storage.Store.
type Store struct {
	db  *badger.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

type diskMessage struct {
	ID           string    `json:"id"`
	RoomID       string    `json:"room_id"`
	SenderID     string    `json:"sender_id"`
	SenderKind   string    `json:"sender_kind"`
	SenderName   string    `json:"sender_name"`
	ReceiverID   string    `json:"receiver_id"`
	ReceiverKind string    `json:"receiver_kind"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
	Read         bool      `json:"read"`
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source used by AppendMessage.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore opens (or creates) a Badger database.
func NewStore(cfg config.BadgerConfig, opts ...Option) (*Store, error) {
	options := badger.DefaultOptions(cfg.Dir).WithLoggingLevel(badger.WARNING)
	if cfg.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true).WithLoggingLevel(badger.WARNING)
	}
	db, err := badger.Open(options)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate is a no-op: the key layout needs no schema.
func (s *Store) Migrate(context.Context) error {
	return nil
}

// AppendMessage writes the message and its unread/conversation index entries
// in one transaction.
func (s *Store) AppendMessage(ctx context.Context, msg *storage.Message) error {
	if msg == nil {
		return chat.Persistence("append message", errors.New("nil message"))
	}
	if err := ctx.Err(); err != nil {
		return chat.Persistence("append message", err)
	}
	storage.Prepare(msg, s.now(), uuid.NewString)

	value, err := json.Marshal(toDisk(*msg))
	if err != nil {
		return chat.Persistence("append message", err)
	}
	suffix := entrySuffix(msg.CreatedAt, msg.ID)
	err = s.update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(msg.RoomID, suffix), value); err != nil {
			return err
		}
		if err := txn.Set(unreadKey(msg.Receiver, msg.RoomID, suffix), nil); err != nil {
			return err
		}
		if err := txn.Set(convKey(msg.Sender, msg.RoomID), []byte(msg.RoomID)); err != nil {
			return err
		}
		return txn.Set(convKey(msg.Receiver, msg.RoomID), []byte(msg.RoomID))
	})
	return chat.Persistence("append message", err)
}

// HistoryForRoom scans the room prefix; keys sort chronologically.
func (s *Store) HistoryForRoom(ctx context.Context, roomID string) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, chat.Persistence("load room history", err)
	}
	messages := make([]storage.Message, 0)
	prefix := []byte(msgPrefix + hexOf(roomID) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskMessage
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			}); err != nil {
				return err
			}
			messages = append(messages, fromDisk(disk))
		}
		return nil
	})
	if err != nil {
		return nil, chat.Persistence("load room history", err)
	}
	return messages, nil
}

// MarkRead consumes the receiver's unread index entries for the room and
// rewrites the matching messages with Read set.
func (s *Store) MarkRead(ctx context.Context, roomID string, receiver chat.Identity) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, chat.Persistence("mark messages read", err)
	}
	var changed int64
	prefix := []byte(unreadPrefix + hexOf(receiver.Key()) + ":" + hexOf(roomID) + ":")
	err := s.update(func(txn *badger.Txn) error {
		changed = 0
		keys := collectKeys(txn, prefix)
		for _, key := range keys {
			suffix := strings.TrimPrefix(string(key), string(prefix))
			msgKey := messageKey(roomID, suffix)
			item, err := txn.Get(msgKey)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err == nil {
				var disk diskMessage
				if err := item.Value(func(val []byte) error {
					return json.Unmarshal(val, &disk)
				}); err != nil {
					return err
				}
				disk.Read = true
				value, err := json.Marshal(disk)
				if err != nil {
					return err
				}
				if err := txn.Set(msgKey, value); err != nil {
					return err
				}
				changed++
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, chat.Persistence("mark messages read", err)
	}
	return changed, nil
}

// CountUnread counts the receiver's unread index entries.
func (s *Store) CountUnread(ctx context.Context, receiver chat.Identity) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, chat.Persistence("count unread", err)
	}
	var count int64
	prefix := []byte(unreadPrefix + hexOf(receiver.Key()) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		count = int64(len(collectKeys(txn, prefix)))
		return nil
	})
	if err != nil {
		return 0, chat.Persistence("count unread", err)
	}
	return count, nil
}

// DistinctRoomsFor reads the participant's conversation index.
func (s *Store) DistinctRoomsFor(ctx context.Context, participant chat.Identity) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, chat.Persistence("list conversations", err)
	}
	rooms := make([]string, 0)
	prefix := []byte(convPrefix + hexOf(participant.Key()) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			room, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rooms = append(rooms, string(room))
		}
		return nil
	})
	if err != nil {
		return nil, chat.Persistence("list conversations", err)
	}
	return rooms, nil
}

// update retries fn when a concurrent transaction touched the same keys.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxConflictRetries, err)
}

func collectKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func entrySuffix(at time.Time, id string) string {
	return fmt.Sprintf("%019d:%s", at.UnixNano(), id)
}

func messageKey(roomID, suffix string) []byte {
	return []byte(msgPrefix + hexOf(roomID) + ":" + suffix)
}

func unreadKey(receiver chat.Identity, roomID, suffix string) []byte {
	return []byte(unreadPrefix + hexOf(receiver.Key()) + ":" + hexOf(roomID) + ":" + suffix)
}

func convKey(participant chat.Identity, roomID string) []byte {
	return []byte(convPrefix + hexOf(participant.Key()) + ":" + hexOf(roomID))
}

func hexOf(s string) string {
	return hex.EncodeToString([]byte(s))
}

func toDisk(msg storage.Message) diskMessage {
	return diskMessage{
		ID:           msg.ID,
		RoomID:       msg.RoomID,
		SenderID:     msg.Sender.ID,
		SenderKind:   string(msg.Sender.Kind),
		SenderName:   msg.SenderName,
		ReceiverID:   msg.Receiver.ID,
		ReceiverKind: string(msg.Receiver.Kind),
		Body:         msg.Body,
		CreatedAt:    msg.CreatedAt,
		Read:         msg.Read,
	}
}

func fromDisk(disk diskMessage) storage.Message {
	return storage.Message{
		ID:         disk.ID,
		RoomID:     disk.RoomID,
		Sender:     chat.Identity{ID: disk.SenderID, Kind: chat.Kind(disk.SenderKind)},
		SenderName: disk.SenderName,
		Receiver:   chat.Identity{ID: disk.ReceiverID, Kind: chat.Kind(disk.ReceiverKind)},
		Body:       disk.Body,
		CreatedAt:  disk.CreatedAt.UTC(),
		Read:       disk.Read,
	}
}
