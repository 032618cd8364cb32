package server

import (
	"errors"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

const localsIdentity = "identity"

func (a *App) newHTTP() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "hirechat",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          a.errorHandler,
	})
	app.Use(recover.New())

	app.Get("/health", a.health)

	app.Use("/ws", a.upgradeWebSocket)
	app.Get("/ws", websocket.New(a.serveWebSocket))

	api := app.Group("/api/chat", a.requireIdentity)
	api.Get("/unread", a.unread)
	api.Get("/unread/:participantId/:participantKind", a.requireSelf, a.unread)
	api.Get("/conversations", a.conversations)
	api.Get("/conversations/:participantId/:participantKind", a.requireSelf, a.conversations)
	api.Get("/history/:participantId/:participantKind", a.roomHistory)
	api.Get("/hr-list", a.listParticipants(chat.KindHR))
	api.Get("/candidate-list", a.listParticipants(chat.KindCandidate))
	return app
}

func (a *App) health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"online": a.manager.Online(),
	})
}

// requireIdentity authenticates the bearer token and stores the caller.
func (a *App) requireIdentity(c *fiber.Ctx) error {
	token, ok := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}
	hs, err := a.authenticate(token, protocol.Handshake{})
	if err != nil {
		return authError(err)
	}
	c.Locals(localsIdentity, chat.Identity{ID: hs.ParticipantID, Kind: chat.Kind(hs.ParticipantKind)})
	return c.Next()
}

// requireSelf rejects path participants other than the caller.
func (a *App) requireSelf(c *fiber.Ctx) error {
	target, err := pathIdentity(c)
	if err != nil {
		return err
	}
	if target != caller(c) {
		return fiber.NewError(fiber.StatusForbidden, "participant does not match token")
	}
	return c.Next()
}

func (a *App) unread(c *fiber.Ctx) error {
	count, err := a.history.UnreadCount(c.UserContext(), caller(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": count})
}

func (a *App) conversations(c *fiber.Ctx) error {
	rooms, err := a.history.Conversations(c.UserContext(), caller(c))
	if err != nil {
		return err
	}
	if rooms == nil {
		rooms = []string{}
	}
	return c.JSON(fiber.Map{"conversations": rooms})
}

func (a *App) roomHistory(c *fiber.Ctx) error {
	other, err := pathIdentity(c)
	if err != nil {
		return err
	}
	messages, err := a.history.History(c.UserContext(), caller(c), other)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": protocol.NewChatMessages(messages)})
}

func (a *App) listParticipants(kind chat.Kind) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if a.directory == nil {
			return fiber.ErrNotImplemented
		}
		participants, err := a.directory.ListParticipants(c.UserContext(), kind)
		if err != nil {
			return err
		}
		for i := range participants {
			p := &participants[i]
			p.Online = a.manager.IsOnline(chat.Identity{ID: p.ParticipantID, Kind: p.ParticipantKind})
		}
		if participants == nil {
			participants = []Participant{}
		}
		return c.JSON(fiber.Map{"participants": participants})
	}
}

func (a *App) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "internal server error"

	var (
		fiberErr *fiber.Error
		verr     *chat.ValidationError
		perr     *chat.PersistenceError
	)
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
		message = fiberErr.Message
	case errors.As(err, &verr):
		code = fiber.StatusBadRequest
		message = verr.Error()
	case errors.As(err, &perr):
		message = "failed to " + perr.Op
	}

	if code >= fiber.StatusInternalServerError {
		a.log.Error("request failed", "method", c.Method(), "path", c.Path(), "code", code, "err", err)
	} else {
		a.log.Debug("request rejected", "method", c.Method(), "path", c.Path(), "code", code, "err", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": message})
}

func caller(c *fiber.Ctx) chat.Identity {
	identity, _ := c.Locals(localsIdentity).(chat.Identity)
	return identity
}

func pathIdentity(c *fiber.Ctx) (chat.Identity, error) {
	return chat.NewIdentity(c.Params("participantId"), c.Params("participantKind"))
}

func authError(err error) error {
	if errors.Is(err, errForbidden) {
		return fiber.NewError(fiber.StatusForbidden, "participant does not match token")
	}
	return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
}
