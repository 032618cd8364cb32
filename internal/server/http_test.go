package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

func TestHealth(t *testing.T) {
	f := newFixture(t)

	code, body := f.get(t, "/health", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", field[string](t, body, "status"))
	require.Equal(t, 0, field[int](t, body, "online"))
}

func TestAPI_RequiresValidToken(t *testing.T) {
	f := newFixture(t)

	foreign := config.JWTConfig{Secret: "other-secret", Issuer: f.cfg.JWT.Issuer, Expiration: f.cfg.JWT.Expiration}
	forged, err := auth.NewToken(foreign, h1, "")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := f.get(t, "/api/chat/unread", tt.token)
			require.Equal(t, http.StatusUnauthorized, code)
			require.NotEmpty(t, field[string](t, body, "error"))
		})
	}
}

func TestAPI_UnreadCount(t *testing.T) {
	f := newFixture(t)
	f.seed(t, u1, h1, "hello")
	f.seed(t, u2, h1, "hi")
	f.seed(t, h1, u1, "welcome")
	token := f.token(t, h1, "Harriet")

	code, body := f.get(t, "/api/chat/unread", token)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, field[int64](t, body, "count"))

	code, body = f.get(t, "/api/chat/unread/h1/hr", token)
	require.Equal(t, http.StatusOK, code)
	require.EqualValues(t, 2, field[int64](t, body, "count"))

	code, _ = f.get(t, "/api/chat/unread/u1/candidate", token)
	require.Equal(t, http.StatusForbidden, code)

	for _, kind := range []string{"admin", "HR"} {
		code, body = f.get(t, "/api/chat/unread/h1/"+kind, token)
		require.Equal(t, http.StatusBadRequest, code, kind)
		require.Equal(t, "invalid kind: must be candidate or hr", field[string](t, body, "error"))
	}
}

func TestAPI_Conversations(t *testing.T) {
	f := newFixture(t)
	f.seed(t, u1, h1, "hello")
	f.seed(t, h1, u2, "ping")

	code, body := f.get(t, "/api/chat/conversations", f.token(t, h1, ""))
	require.Equal(t, http.StatusOK, code)
	require.ElementsMatch(t, []string{"h1_hr_u1_candidate", "h1_hr_u2_candidate"}, field[[]string](t, body, "conversations"))

	code, body = f.get(t, "/api/chat/conversations/u2/candidate", f.token(t, u2, ""))
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, []string{"h1_hr_u2_candidate"}, field[[]string](t, body, "conversations"))

	code, body = f.get(t, "/api/chat/conversations", f.token(t, chat.Identity{ID: "h9", Kind: chat.KindHR}, ""))
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, field[[]string](t, body, "conversations"))
}

func TestAPI_HistoryMarksCallerMessagesRead(t *testing.T) {
	f := newFixture(t)
	f.seed(t, u1, h1, "first")
	f.seed(t, h1, u1, "second")
	f.seed(t, u1, h1, "third")
	hrToken := f.token(t, h1, "")

	code, body := f.get(t, "/api/chat/history/u1/candidate", hrToken)
	require.Equal(t, http.StatusOK, code)
	messages := field[[]protocol.ChatMessage](t, body, "messages")
	require.Len(t, messages, 3)
	require.Equal(t, "first", messages[0].Body)
	require.Equal(t, "second", messages[1].Body)
	require.Equal(t, "third", messages[2].Body)

	_, body = f.get(t, "/api/chat/unread", hrToken)
	require.Zero(t, field[int64](t, body, "count"))

	_, body = f.get(t, "/api/chat/unread", f.token(t, u1, ""))
	require.EqualValues(t, 1, field[int64](t, body, "count"), "the other side keeps its unread message")
}

func TestAPI_ParticipantListing(t *testing.T) {
	t.Run("not wired", func(t *testing.T) {
		f := newFixture(t)
		code, _ := f.get(t, "/api/chat/hr-list", f.token(t, u1, ""))
		require.Equal(t, http.StatusNotImplemented, code)
	})

	t.Run("delegates by kind", func(t *testing.T) {
		f := newFixture(t, WithDirectory(staticDirectory{participants: map[chat.Kind][]Participant{
			chat.KindHR:        {{ParticipantID: "h1", ParticipantKind: chat.KindHR, DisplayName: "Harriet"}},
			chat.KindCandidate: {{ParticipantID: "u1", ParticipantKind: chat.KindCandidate}, {ParticipantID: "u2", ParticipantKind: chat.KindCandidate}},
		}}))

		code, body := f.get(t, "/api/chat/hr-list", f.token(t, u1, ""))
		require.Equal(t, http.StatusOK, code)
		hr := field[[]Participant](t, body, "participants")
		require.Len(t, hr, 1)
		require.Equal(t, "Harriet", hr[0].DisplayName)
		require.False(t, hr[0].Online)

		code, body = f.get(t, "/api/chat/candidate-list", f.token(t, h1, ""))
		require.Equal(t, http.StatusOK, code)
		require.Len(t, field[[]Participant](t, body, "participants"), 2)
	})

	t.Run("collaborator failure", func(t *testing.T) {
		f := newFixture(t, WithDirectory(staticDirectory{err: errDirectoryDown}))
		code, body := f.get(t, "/api/chat/candidate-list", f.token(t, h1, ""))
		require.Equal(t, http.StatusInternalServerError, code)
		require.Equal(t, "internal server error", field[string](t, body, "error"))
	})
}

func TestWebSocket_UpgradeChecks(t *testing.T) {
	f := newFixture(t)

	code, _ := f.get(t, "/ws", "")
	require.Equal(t, http.StatusUpgradeRequired, code)

	req := httptest.NewRequest(http.MethodGet, "/ws?token=bogus", nil)
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Version", "13")
	req.Header.Set("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ==")
	resp, err := f.app.HTTP().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
