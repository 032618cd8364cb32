package client

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

type commandSpec struct {
	trigger     string
	usage       string
	description string
}

func commandCatalog(prefix rune) []commandSpec {
	p := string(prefix)
	return []commandSpec{
		{trigger: p + "connect", usage: p + "connect [addr]", description: "Connect to the chat server"},
		{trigger: p + "join", usage: p + "join <id> <candidate|hr>", description: "Open the conversation with a participant"},
		{trigger: p + "history", usage: p + "history", description: "Reload the open conversation"},
		{trigger: p + "online", usage: p + "online", description: "Show who is online"},
		{trigger: p + "chat", usage: p + "chat", description: "Show the open conversation"},
		{trigger: p + "help", usage: p + "help", description: "List commands"},
		{trigger: p + "quit", usage: p + "quit", description: "Exit the client"},
	}
}

func (c commandSpec) binding() key.Binding {
	return key.NewBinding(key.WithKeys(c.trigger), key.WithHelp(c.usage, c.description))
}

// command looks a catalog entry up by its bare name.
func (a *App) command(name string) (commandSpec, bool) {
	trigger := string(a.cfg.CommandPrefix) + name
	for _, c := range a.commands {
		if c.trigger == trigger {
			return c, true
		}
	}
	return commandSpec{}, false
}

func (a *App) handleSubmit(value string) tea.Cmd {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	if strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		return a.executeCommand(value)
	}
	return a.sendChatMessage(value)
}

func (a *App) executeCommand(raw string) tea.Cmd {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	name := strings.TrimPrefix(strings.ToLower(fields[0]), string(a.cfg.CommandPrefix))
	args := fields[1:]

	switch name {
	case "connect":
		if a.isConnected() {
			a.logf("Already connected to %s", a.session.ServerAddr())
			return nil
		}
		address := a.cfg.ServerAddr
		if len(args) > 0 {
			address = args[0]
		}
		a.cfg.ServerAddr = address
		a.logf("Connecting to %s ...", address)
		return connectCommand(a.cfg, address)
	case "join":
		if len(args) < 2 {
			a.logErrorf("Usage: %sjoin <id> <candidate|hr>", string(a.cfg.CommandPrefix))
			return nil
		}
		peer, err := chat.NewIdentity(args[0], strings.ToLower(args[1]))
		if err != nil {
			a.logErrorf("%v", err)
			return nil
		}
		if !a.self.IsZero() && peer == a.self {
			a.logErrorf("Cannot open a conversation with yourself")
			return nil
		}
		a.peer = peer
		a.history = nil
		delete(a.unseen, a.currentRoom())
		a.view = viewChat
		a.refresh()
		if !a.isConnected() {
			a.logf("Conversation with %s opens once connected", peer)
			return nil
		}
		a.logf("Opening conversation with %s", peer)
		return tea.Batch(a.joinPeer(peer)...)
	case "history":
		if !a.requireConversation() {
			return nil
		}
		return sendCommand(a.session, protocol.MessageTypeGetMessages, protocol.GetMessages{
			OtherID:   a.peer.ID,
			OtherKind: string(a.peer.Kind),
		})
	case "online":
		a.view = viewOnline
		a.refresh()
	case "chat":
		a.view = viewChat
		a.refresh()
	case "help":
		a.view = viewHelp
		a.refresh()
	case "quit", "exit":
		return a.quit()
	default:
		a.logErrorf("Unknown command: %s", fields[0])
	}
	return nil
}

func (a *App) joinPeer(peer chat.Identity) []tea.Cmd {
	return []tea.Cmd{
		sendCommand(a.session, protocol.MessageTypeJoinRoom, protocol.JoinRoom{
			ReceiverID:   peer.ID,
			ReceiverKind: string(peer.Kind),
		}),
		sendCommand(a.session, protocol.MessageTypeGetMessages, protocol.GetMessages{
			OtherID:   peer.ID,
			OtherKind: string(peer.Kind),
		}),
	}
}

func (a *App) sendChatMessage(body string) tea.Cmd {
	if !a.requireConversation() {
		return nil
	}
	return sendCommand(a.session, protocol.MessageTypeSendMessage, protocol.SendMessage{
		ReceiverID:   a.peer.ID,
		ReceiverKind: string(a.peer.Kind),
		Body:         body,
	})
}

func (a *App) requireConversation() bool {
	if !a.isConnected() {
		a.logErrorf("Not connected. Use %sconnect first.", string(a.cfg.CommandPrefix))
		return false
	}
	if a.peer.IsZero() {
		a.logErrorf("No open conversation. Use %sjoin <id> <kind>.", string(a.cfg.CommandPrefix))
		return false
	}
	return true
}

func (a *App) currentRoom() string {
	if a.self.IsZero() || a.peer.IsZero() {
		return ""
	}
	return chat.RoomID(a.self, a.peer)
}
