// Package storagetest holds behavioural tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/storage"
)

// Opener builds a fresh, migrated store whose AppendMessage uses now.
type Opener func(t *testing.T, now func() time.Time) storage.Store

var (
	u1 = chat.Identity{ID: "u1", Kind: chat.KindCandidate}
	u2 = chat.Identity{ID: "u2", Kind: chat.KindCandidate}
	h1 = chat.Identity{ID: "h1", Kind: chat.KindHR}
	// Same id as u1 but a different kind.
	hU1 = chat.Identity{ID: "u1", Kind: chat.KindHR}
)

// StepClock returns increasing timestamps one millisecond apart.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{next: start}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Millisecond)
	return now
}

func send(t *testing.T, store storage.Store, from, to chat.Identity, body string) storage.Message {
	t.Helper()
	msg := storage.Message{
		RoomID:     chat.RoomID(from, to),
		Sender:     from,
		SenderName: from.ID + " name",
		Receiver:   to,
		Body:       body,
	}
	require.NoError(t, store.AppendMessage(context.Background(), &msg))
	return msg
}

// Run exercises the storage.Store contract against open.
func Run(t *testing.T, open Opener) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("append assigns server fields", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		msg := storage.Message{
			RoomID:   chat.RoomID(u1, h1),
			Sender:   u1,
			Receiver: h1,
			Body:     "hello",
			Read:     true,
		}
		require.NoError(t, store.AppendMessage(context.Background(), &msg))

		require.NotEmpty(t, msg.ID)
		require.Equal(t, start, msg.CreatedAt)
		require.False(t, msg.Read)

		history, err := store.HistoryForRoom(context.Background(), msg.RoomID)
		require.NoError(t, err)
		require.Len(t, history, 1)
		require.Equal(t, msg.ID, history[0].ID)
		require.Equal(t, u1, history[0].Sender)
		require.Equal(t, h1, history[0].Receiver)
		require.Equal(t, "hello", history[0].Body)
		require.True(t, start.Equal(history[0].CreatedAt))
		require.False(t, history[0].Read)
	})

	t.Run("history is partitioned by room and ordered", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		first := send(t, store, u1, h1, "one")
		send(t, store, u2, h1, "other room")
		second := send(t, store, h1, u1, "two")
		send(t, store, hU1, h1, "same id other kind")
		third := send(t, store, u1, h1, "three")

		history, err := store.HistoryForRoom(context.Background(), chat.RoomID(h1, u1))
		require.NoError(t, err)
		require.Len(t, history, 3)
		require.Equal(t, []string{first.ID, second.ID, third.ID},
			[]string{history[0].ID, history[1].ID, history[2].ID})
		for _, msg := range history {
			require.Equal(t, chat.RoomID(u1, h1), msg.RoomID)
		}

		empty, err := store.HistoryForRoom(context.Background(), chat.RoomID(u2, u1))
		require.NoError(t, err)
		require.Empty(t, empty)
	})

	t.Run("concurrent appends read back in timestamp order", func(t *testing.T) {
		store := open(t, time.Now)
		const writers = 16
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				from, to := u1, h1
				if i%2 == 1 {
					from, to = h1, u1
				}
				msg := storage.Message{
					RoomID:   chat.RoomID(from, to),
					Sender:   from,
					Receiver: to,
					Body:     fmt.Sprintf("msg-%d", i),
				}
				errs <- store.AppendMessage(context.Background(), &msg)
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		history, err := store.HistoryForRoom(context.Background(), chat.RoomID(u1, h1))
		require.NoError(t, err)
		require.Len(t, history, writers)
		for i := 1; i < len(history); i++ {
			require.False(t, history[i].CreatedAt.Before(history[i-1].CreatedAt),
				"message %d is older than its predecessor", i)
		}
	})

	t.Run("mark read is idempotent and receiver scoped", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		ctx := context.Background()
		room := chat.RoomID(u1, h1)
		send(t, store, u1, h1, "a")
		send(t, store, u1, h1, "b")
		send(t, store, h1, u1, "reply")

		changed, err := store.MarkRead(ctx, room, h1)
		require.NoError(t, err)
		require.EqualValues(t, 2, changed)

		changed, err = store.MarkRead(ctx, room, h1)
		require.NoError(t, err)
		require.Zero(t, changed)

		history, err := store.HistoryForRoom(ctx, room)
		require.NoError(t, err)
		for _, msg := range history {
			require.Equal(t, msg.Receiver == h1, msg.Read, "message %q", msg.Body)
		}

		unread, err := store.CountUnread(ctx, u1)
		require.NoError(t, err)
		require.EqualValues(t, 1, unread)
	})

	t.Run("mark read leaves other rooms alone", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		ctx := context.Background()
		send(t, store, u1, h1, "a")
		send(t, store, u2, h1, "b")

		_, err := store.MarkRead(ctx, chat.RoomID(u1, h1), h1)
		require.NoError(t, err)

		unread, err := store.CountUnread(ctx, h1)
		require.NoError(t, err)
		require.EqualValues(t, 1, unread)
	})

	t.Run("count unread spans rooms and respects kind", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		ctx := context.Background()
		send(t, store, u1, h1, "a")
		send(t, store, u2, h1, "b")
		send(t, store, u2, h1, "c")
		send(t, store, h1, u1, "to candidate")

		unread, err := store.CountUnread(ctx, h1)
		require.NoError(t, err)
		require.EqualValues(t, 3, unread)

		unread, err = store.CountUnread(ctx, hU1)
		require.NoError(t, err)
		require.Zero(t, unread)

		unread, err = store.CountUnread(ctx, u1)
		require.NoError(t, err)
		require.EqualValues(t, 1, unread)
	})

	t.Run("distinct rooms include sent and received", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		ctx := context.Background()
		send(t, store, u1, h1, "a")
		send(t, store, h1, u1, "b")
		send(t, store, h1, u2, "c")
		send(t, store, hU1, u2, "d")

		rooms, err := store.DistinctRoomsFor(ctx, h1)
		require.NoError(t, err)
		require.Equal(t, []string{chat.RoomID(h1, u1), chat.RoomID(h1, u2)}, rooms)

		rooms, err = store.DistinctRoomsFor(ctx, u1)
		require.NoError(t, err)
		require.Equal(t, []string{chat.RoomID(u1, h1)}, rooms)

		rooms, err = store.DistinctRoomsFor(ctx, chat.Identity{ID: "nobody", Kind: chat.KindHR})
		require.NoError(t, err)
		require.Empty(t, rooms)
	})

	t.Run("explicit timestamp is kept", func(t *testing.T) {
		store := open(t, NewStepClock(start).Now)
		at := time.Date(2025, 12, 24, 18, 30, 0, 0, time.FixedZone("CET", 3600))
		msg := storage.Message{
			RoomID:    chat.RoomID(u1, h1),
			Sender:    u1,
			Receiver:  h1,
			Body:      "backdated",
			CreatedAt: at,
		}
		require.NoError(t, store.AppendMessage(context.Background(), &msg))
		require.True(t, at.Equal(msg.CreatedAt))
		require.Equal(t, time.UTC, msg.CreatedAt.Location())
	})
}
