package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
)

// ErrMissingToken is returned when no identity token accompanies a request.
var ErrMissingToken = errors.New("missing token")

// Claims represents the identity token issued by the portal's auth layer.
type Claims struct {
	ParticipantID   string `json:"pid"`
	ParticipantKind string `json:"pkind"`
	Name            string `json:"name"`
	jwt.RegisteredClaims
}

// Identity converts the claims into a validated participant identity.
func (c *Claims) Identity() (chat.Identity, error) {
	return chat.NewIdentity(c.ParticipantID, c.ParticipantKind)
}

// NewToken generates a signed JWT for the provided participant.
func NewToken(cfg config.JWTConfig, participant chat.Identity, name string) (string, error) {
	now := time.Now()
	claims := Claims{
		ParticipantID:   participant.ID,
		ParticipantKind: string(participant.Kind),
		Name:            name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    cfg.Issuer,
			Subject:   participant.Key(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.Secret))
}

// ParseToken validates the provided token string and extracts claims.
func ParseToken(cfg config.JWTConfig, tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(cfg.Secret), nil
	}, options...)
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		if _, err := claims.Identity(); err != nil {
			return nil, fmt.Errorf("token identity: %w", err)
		}
		return claims, nil
	}
	return nil, jwt.ErrTokenInvalidClaims
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// PeekClaims decodes claims without verifying the signature. Clients use it
// to label their own token; servers must call ParseToken.
func PeekClaims(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	return claims, nil
}
