package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Issuer: "hirechat", Expiration: time.Hour}

func TestNewTokenRoundTrip(t *testing.T) {
	h1 := chat.Identity{ID: "h1", Kind: chat.KindHR}
	token, err := NewToken(testJWT, h1, "Helen")
	require.NoError(t, err)

	claims, err := ParseToken(testJWT, token)
	require.NoError(t, err)
	require.Equal(t, "Helen", claims.Name)
	require.Equal(t, "h1_hr", claims.Subject)

	identity, err := claims.Identity()
	require.NoError(t, err)
	require.Equal(t, h1, identity)
}

func TestParseToken_Rejects(t *testing.T) {
	u1 := chat.Identity{ID: "u1", Kind: chat.KindCandidate}

	t.Run("empty", func(t *testing.T) {
		_, err := ParseToken(testJWT, "  ")
		require.ErrorIs(t, err, ErrMissingToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := testJWT
		other.Secret = "other"
		token, err := NewToken(other, u1, "Uma")
		require.NoError(t, err)
		_, err = ParseToken(testJWT, token)
		require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
	})

	t.Run("expired", func(t *testing.T) {
		expired := testJWT
		expired.Expiration = -time.Minute
		token, err := NewToken(expired, u1, "Uma")
		require.NoError(t, err)
		_, err = ParseToken(testJWT, token)
		require.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		foreign := testJWT
		foreign.Issuer = "elsewhere"
		token, err := NewToken(foreign, u1, "Uma")
		require.NoError(t, err)
		_, err = ParseToken(testJWT, token)
		require.ErrorIs(t, err, jwt.ErrTokenInvalidIssuer)
	})

	t.Run("unknown participant kind", func(t *testing.T) {
		token, err := NewToken(testJWT, chat.Identity{ID: "x", Kind: "admin"}, "X")
		require.NoError(t, err)
		_, err = ParseToken(testJWT, token)
		require.ErrorIs(t, err, chat.ErrValidation)
	})
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	require.True(t, ok)
	require.Equal(t, "abc.def", token)

	_, ok = BearerToken("Basic abc")
	require.False(t, ok)

	_, ok = BearerToken("Bearer ")
	require.False(t, ok)
}

func TestPeekClaims(t *testing.T) {
	token, err := NewToken(testJWT, chat.Identity{ID: "h1", Kind: chat.KindHR}, "Harriet")
	require.NoError(t, err)

	claims, err := PeekClaims(token)
	require.NoError(t, err)
	require.Equal(t, "h1", claims.ParticipantID)
	require.Equal(t, "Harriet", claims.Name)

	_, err = PeekClaims("")
	require.ErrorIs(t, err, ErrMissingToken)

	_, err = PeekClaims("garbage")
	require.Error(t, err)
}
