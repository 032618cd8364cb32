package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/storage"
	"github.com/fenggwsx/hirechat/internal/storage/storagetest"
)

func openStore(t *testing.T, now func() time.Time) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	store, err := NewStore(config.DatabaseConfig{Path: path}, WithClock(now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestStore_Conformance(t *testing.T) {
	storagetest.Run(t, openStore)
}

func TestStore_ClosedDatabaseReportsPersistenceError(t *testing.T) {
	store := openStore(t, time.Now)
	require.NoError(t, store.Close())

	msg := storage.Message{
		RoomID:   "h1_hr_u1_candidate",
		Sender:   chat.Identity{ID: "u1", Kind: chat.KindCandidate},
		Receiver: chat.Identity{ID: "h1", Kind: chat.KindHR},
		Body:     "lost",
	}
	err := store.AppendMessage(context.Background(), &msg)
	require.ErrorIs(t, err, chat.ErrPersistence)

	_, err = store.CountUnread(context.Background(), msg.Receiver)
	require.ErrorIs(t, err, chat.ErrPersistence)
}
