package client

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fenggwsx/hirechat/internal/auth"
	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/config"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

const (
	connectTimeout = 5 * time.Second
	sendTimeout    = 5 * time.Second
)

type viewKind int

const (
	viewChat viewKind = iota
	viewOnline
	viewHelp
)

func (v viewKind) String() string {
	switch v {
	case viewChat:
		return "chat"
	case viewOnline:
		return "online"
	case viewHelp:
		return "help"
	default:
		return "unknown"
	}
}

type logLevel int

const (
	logLevelInfo logLevel = iota
	logLevelError
)

type logEntry struct {
	level logLevel
	label string
	body  string
}

// App implements the bubbletea tea.Model interface for the terminal client.
type App struct {
	cfg      config.ClientConfig
	commands []commandSpec
	session  *Session

	self     chat.Identity
	username string
	peer     chat.Identity
	online   []protocol.OnlineUser
	history  []protocol.ChatMessage
	unseen   map[string]int

	input    textinput.Model
	viewport viewport.Model
	helper   help.Model
	theme    theme
	view     viewKind
	width    int
	height   int
	hints    string
	logLine  logEntry
}

// NewApp returns a Bubble Tea model pre-populated with defaults.
func NewApp(cfg config.ClientConfig) *App {
	input := textinput.New()
	input.Prompt = "> "
	input.Placeholder = fmt.Sprintf("type a message or %shelp", string(cfg.CommandPrefix))
	input.CharLimit = 4096
	input.Focus()

	a := &App{
		cfg:      cfg,
		commands: commandCatalog(cfg.CommandPrefix),
		unseen:   make(map[string]int),
		input:    input,
		viewport: viewport.New(0, 0),
		helper:   help.New(),
		theme:    newTheme(),
		view:     viewChat,
		username: "-",
	}
	if claims, err := auth.PeekClaims(cfg.Token); err == nil {
		if identity, err := claims.Identity(); err == nil {
			a.self = identity
			a.username = claims.Name
			if a.username == "" {
				a.username = identity.ID
			}
		}
	}
	a.logf("Use %sconnect to reach %s", string(cfg.CommandPrefix), cfg.ServerAddr)
	a.refresh()
	return a
}

// Init is part of the tea.Model interface.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles user input and internal events.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m := msg.(type) {
	case tea.WindowSizeMsg:
		a.width, a.height = m.Width, m.Height
		a.resize()
		a.refresh()
		return a, nil
	case tea.KeyMsg:
		return a.handleKey(m)
	case connectResultMsg:
		return a, a.handleConnectResult(m)
	case envelopeMsg:
		if m.session != a.session {
			return a, nil
		}
		a.handleEnvelope(m.envelope)
		return a, listenForMessages(a.session)
	case sessionClosedMsg:
		if m.session == a.session {
			a.session = nil
			a.online = nil
			a.logErrorf("Connection closed")
			a.refresh()
		}
		return a, nil
	case sendResultMsg:
		if m.err != nil {
			a.logErrorf("Send %s failed: %v", m.kind, m.err)
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return a, a.quit()
	case tea.KeyEnter:
		value := a.input.Value()
		a.input.SetValue("")
		a.refreshHints()
		return a, a.handleSubmit(value)
	case tea.KeyTab:
		a.handleTabCompletion()
		a.refreshHints()
		return a, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		a.viewport, cmd = a.viewport.Update(msg)
		return a, cmd
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	a.refreshHints()
	return a, cmd
}

func (a *App) handleConnectResult(msg connectResultMsg) tea.Cmd {
	if msg.err != nil {
		a.logErrorf("Connection to %s failed: %v", msg.address, msg.err)
		return nil
	}
	if a.session != nil {
		_ = a.session.Close()
	}
	a.session = msg.session
	a.logf("Connected to %s as %s", msg.address, a.username)
	a.refresh()

	cmds := []tea.Cmd{listenForMessages(a.session)}
	if !a.peer.IsZero() {
		cmds = append(cmds, a.joinPeer(a.peer)...)
	}
	return tea.Batch(cmds...)
}

func (a *App) isConnected() bool {
	return a.session != nil
}

func (a *App) quit() tea.Cmd {
	if a.session != nil {
		_ = a.session.Close()
		a.session = nil
	}
	return tea.Quit
}

func (a *App) logf(format string, args ...interface{}) {
	a.logLine = logEntry{level: logLevelInfo, label: "INFO", body: fmt.Sprintf(format, args...)}
}

func (a *App) logErrorf(format string, args ...interface{}) {
	a.logLine = logEntry{level: logLevelError, label: "ERROR", body: fmt.Sprintf(format, args...)}
}

type connectResultMsg struct {
	address string
	session *Session
	err     error
}

type envelopeMsg struct {
	session  *Session
	envelope protocol.Envelope
}

type sessionClosedMsg struct {
	session *Session
}

type sendResultMsg struct {
	kind protocol.MessageType
	err  error
}

func connectCommand(cfg config.ClientConfig, address string) tea.Cmd {
	return func() tea.Msg {
		sessionCfg := cfg
		sessionCfg.ServerAddr = address
		session := NewSession(sessionCfg)

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		if err := session.Connect(ctx); err != nil {
			_ = session.Close()
			return connectResultMsg{address: address, err: err}
		}
		return connectResultMsg{address: address, session: session}
	}
}

func listenForMessages(session *Session) tea.Cmd {
	if session == nil {
		return nil
	}
	ch := session.Messages()
	return func() tea.Msg {
		env, ok := <-ch
		if !ok {
			return sessionClosedMsg{session: session}
		}
		return envelopeMsg{session: session, envelope: env}
	}
}

func sendCommand(session *Session, kind protocol.MessageType, payload interface{}) tea.Cmd {
	if session == nil {
		return nil
	}
	env := protocol.Envelope{Type: kind, Payload: payload}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return sendResultMsg{kind: kind, err: session.Send(ctx, env)}
	}
}
