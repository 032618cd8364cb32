package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

// authenticate binds a connection to the identity carried by token. Identity
// fields in requested are optional and must agree with the token.
func (a *App) authenticate(token string, requested protocol.Handshake) (protocol.Handshake, error) {
	claims, err := auth.ParseToken(a.cfg.JWT, token)
	if err != nil {
		return protocol.Handshake{}, fmt.Errorf("%w: %v", errUnauthorized, err)
	}
	identity, err := claims.Identity()
	if err != nil {
		return protocol.Handshake{}, fmt.Errorf("%w: %v", errUnauthorized, err)
	}

	if id := strings.TrimSpace(requested.ParticipantID); id != "" && id != identity.ID {
		return protocol.Handshake{}, fmt.Errorf("%w: participant does not match token", errForbidden)
	}
	if kind := requested.ParticipantKind; kind != "" && chat.Kind(kind) != identity.Kind {
		return protocol.Handshake{}, fmt.Errorf("%w: participant kind does not match token", errForbidden)
	}

	name := strings.TrimSpace(requested.DisplayName)
	if name == "" {
		name = claims.Name
	}
	return protocol.Handshake{
		ParticipantID:   identity.ID,
		ParticipantKind: string(identity.Kind),
		DisplayName:     name,
	}, nil
}
