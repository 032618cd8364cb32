package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/history"
	"github.com/fenggwsx/hirechat/internal/presence"
	"github.com/fenggwsx/hirechat/internal/session"
	"github.com/fenggwsx/hirechat/internal/storage"
	"github.com/fenggwsx/hirechat/internal/storage/badger"
)

var (
	u1 = chat.Identity{ID: "u1", Kind: chat.KindCandidate}
	u2 = chat.Identity{ID: "u2", Kind: chat.KindCandidate}
	h1 = chat.Identity{ID: "h1", Kind: chat.KindHR}
)

type fixture struct {
	app   *App
	store storage.Store
	cfg   config.ServerConfig
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.ServerConfig {
	return config.ServerConfig{
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			Issuer:     "hirechat-test",
			Expiration: time.Hour,
		},
		IdleTimeout:   time.Minute,
		WriteTimeout:  5 * time.Second,
		SendBuffer:    16,
		MaxFrameBytes: 1 << 20,
	}
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := badger.NewStore(config.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	cfg := testConfig()
	log := discardLogger()
	manager := session.NewManager(log, store, presence.NewDirectory(), session.WithSendBuffer(cfg.SendBuffer))
	app := NewApp(cfg, log, manager, history.NewService(store, log), opts...)
	return &fixture{app: app, store: store, cfg: cfg}
}

func (f *fixture) token(t *testing.T, identity chat.Identity, name string) string {
	t.Helper()
	token, err := auth.NewToken(f.cfg.JWT, identity, name)
	require.NoError(t, err)
	return token
}

func (f *fixture) seed(t *testing.T, from, to chat.Identity, body string) {
	t.Helper()
	msg := storage.Message{
		RoomID:   chat.RoomID(from, to),
		Sender:   from,
		Receiver: to,
		Body:     body,
	}
	require.NoError(t, f.store.AppendMessage(context.Background(), &msg))
}

func (f *fixture) get(t *testing.T, path, token string) (int, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := f.app.HTTP().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]json.RawMessage
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, &body), string(data))
	}
	return resp.StatusCode, body
}

func field[T any](t *testing.T, body map[string]json.RawMessage, key string) T {
	t.Helper()
	var out T
	raw, ok := body[key]
	require.True(t, ok, "missing %q in response", key)
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type staticDirectory struct {
	participants map[chat.Kind][]Participant
	err          error
}

func (d staticDirectory) ListParticipants(_ context.Context, kind chat.Kind) ([]Participant, error) {
	if d.err != nil {
		return nil, d.err
	}
	return append([]Participant(nil), d.participants[kind]...), nil
}

var errDirectoryDown = errors.New("directory down")
