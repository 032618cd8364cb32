package client

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"
	figure "github.com/common-nighthawk/go-figure"
	"github.com/mattn/go-runewidth"

	"github.com/fenggwsx/hirechat/internal/chat"
	"github.com/fenggwsx/hirechat/internal/protocol"
)

const minWrapWidth = 10

// theme holds the client's lipgloss styles. Participant kinds get their own
// badge colors so recruiters and candidates are told apart at a glance.
type theme struct {
	brand   lipgloss.Style
	tab     lipgloss.Style
	online  lipgloss.Style
	offline lipgloss.Style
	muted   lipgloss.Style
	strong  lipgloss.Style
	mine    lipgloss.Style
	hints   lipgloss.Style
	notice  [2]lipgloss.Style // label, body
	alert   [2]lipgloss.Style
	kinds   map[chat.Kind]lipgloss.Style
}

func newTheme() theme {
	s := lipgloss.NewStyle
	return theme{
		brand:   s().Foreground(lipgloss.Color("6")).Bold(true),
		tab:     s().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("6")).Padding(0, 1),
		online:  s().Foreground(lipgloss.Color("2")).Bold(true),
		offline: s().Foreground(lipgloss.Color("1")).Bold(true),
		muted:   s().Foreground(lipgloss.Color("244")),
		strong:  s().Foreground(lipgloss.Color("255")),
		mine:    s().Foreground(lipgloss.Color("2")).Bold(true),
		hints:   s().Foreground(lipgloss.Color("109")),
		notice:  [2]lipgloss.Style{s().Foreground(lipgloss.Color("3")).Bold(true), s().Foreground(lipgloss.Color("250"))},
		alert:   [2]lipgloss.Style{s().Foreground(lipgloss.Color("1")).Bold(true), s().Foreground(lipgloss.Color("1"))},
		kinds: map[chat.Kind]lipgloss.Style{
			chat.KindHR:        s().Foreground(lipgloss.Color("5")).Bold(true),
			chat.KindCandidate: s().Foreground(lipgloss.Color("4")).Bold(true),
		},
	}
}

// badge renders a short tag for a participant kind.
func (t theme) badge(kind string) string {
	label := "?"
	switch chat.Kind(kind) {
	case chat.KindHR:
		label = "HR"
	case chat.KindCandidate:
		label = "CAND"
	}
	style, ok := t.kinds[chat.Kind(kind)]
	if !ok {
		style = t.muted
	}
	return style.Render("[" + label + "]")
}

func (a *App) View() string {
	sections := []string{a.viewport.View()}
	if a.hints != "" {
		sections = append(sections, a.theme.hints.Render(a.hints))
	}
	sections = append(sections, a.input.View(), a.logLineView(), a.statusLine())
	return strings.Join(sections, "\n")
}

// refresh re-renders the active pane into the viewport.
func (a *App) refresh() {
	switch a.view {
	case viewOnline:
		a.viewport.SetContent(a.renderOnline())
	case viewHelp:
		a.viewport.SetContent(a.renderCommands())
	default:
		a.renderConversation()
	}
}

func (a *App) renderConversation() {
	if a.peer.IsZero() {
		a.viewport.SetContent(a.renderHome())
		return
	}
	if len(a.history) == 0 {
		a.viewport.SetContent(fmt.Sprintf("No messages with %s yet. Type and press Enter to send.", a.peer.ID))
		return
	}
	rows := make([]string, 0, len(a.history))
	for _, msg := range a.history {
		rows = append(rows, a.renderMessage(msg))
	}
	a.viewport.SetContent(strings.Join(wrapLines(rows, a.paneWidth()), "\n"))
	a.viewport.GotoBottom()
}

func (a *App) renderMessage(msg protocol.ChatMessage) string {
	name := a.theme.strong.Render(displayName(msg))
	if msg.SenderID == a.self.ID && chat.Kind(msg.SenderKind) == a.self.Kind {
		name = a.theme.mine.Render("you")
	}
	stamp := a.theme.muted.Render(msg.Timestamp.Local().Format("Jan 2 15:04"))
	return fmt.Sprintf("%s %s %s  %s", stamp, a.theme.badge(msg.SenderKind), name, msg.Body)
}

// renderHome greets the signed-in participant and lists conversations with
// messages that arrived while another one was open.
func (a *App) renderHome() string {
	var b strings.Builder
	b.WriteString(a.theme.brand.Render(banner))
	b.WriteString("\n\n")
	if a.self.IsZero() {
		b.WriteString(a.theme.alert[1].Render("No identity in the configured token."))
	} else {
		fmt.Fprintf(&b, "Signed in as %s %s", a.theme.strong.Render(a.username), a.theme.badge(string(a.self.Kind)))
	}
	b.WriteString("\n\n")

	for _, name := range []string{"connect", "join", "online", "help"} {
		if c, ok := a.command(name); ok {
			fmt.Fprintf(&b, "  %-28s %s\n", c.usage, a.theme.muted.Render(c.description))
		}
	}

	if len(a.unseen) > 0 {
		rooms := make([]string, 0, len(a.unseen))
		for room := range a.unseen {
			rooms = append(rooms, room)
		}
		sort.Strings(rooms)
		b.WriteString("\nWaiting for you:\n")
		for _, room := range rooms {
			fmt.Fprintf(&b, "  %s  %d new\n", room, a.unseen[room])
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderOnline groups connected participants by kind, recruiters first.
func (a *App) renderOnline() string {
	if !a.isConnected() {
		return "Not connected."
	}
	if len(a.online) == 0 {
		return "Nobody is online."
	}

	groups := map[chat.Kind][]protocol.OnlineUser{}
	for _, user := range a.online {
		groups[chat.Kind(user.ParticipantKind)] = append(groups[chat.Kind(user.ParticipantKind)], user)
	}

	var b strings.Builder
	for _, group := range []struct {
		kind  chat.Kind
		title string
	}{{chat.KindHR, "Recruiters"}, {chat.KindCandidate, "Candidates"}} {
		users := groups[group.kind]
		if len(users) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d)\n", a.theme.kinds[group.kind].Render(group.title), len(users))
		for _, user := range users {
			b.WriteString("  " + a.onlineRow(user) + "\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *App) onlineRow(user protocol.OnlineUser) string {
	name := user.DisplayName
	if name == "" {
		name = user.ParticipantID
	}
	row := fmt.Sprintf("%-20s %s", name, a.theme.muted.Render(user.ParticipantID))

	other := chat.Identity{ID: user.ParticipantID, Kind: chat.Kind(user.ParticipantKind)}
	switch {
	case other == a.self:
		row += a.theme.mine.Render("  (you)")
	case other == a.peer:
		row += a.theme.online.Render("  (open)")
	case !a.self.IsZero():
		if n := a.unseen[chat.RoomID(a.self, other)]; n > 0 {
			row += a.theme.notice[0].Render(fmt.Sprintf("  %d new", n))
		}
	}
	return row
}

func (a *App) renderCommands() string {
	var b strings.Builder
	b.WriteString(a.theme.brand.Render("Commands"))
	b.WriteString("\n\n")
	for _, c := range a.commands {
		fmt.Fprintf(&b, "%-28s %s\n", c.usage, c.description)
	}
	b.WriteString("\nAnything else you type goes to the open conversation.")
	return b.String()
}

// resize fits the input and viewport to the terminal around the footer.
func (a *App) resize() {
	width := a.width
	if width <= 0 {
		width = 60
	}
	a.input.Width = max(width-lipgloss.Width(a.input.Prompt)-1, minWrapWidth)
	a.helper.Width = a.width

	if a.height == 0 {
		return
	}
	footer := 3 // input, log line, status
	if a.hints != "" {
		footer += lipgloss.Height(a.hints)
	}
	a.viewport.Width = a.width
	a.viewport.Height = max(a.height-footer, 3)
}

func (a *App) paneWidth() int {
	if a.viewport.Width > 0 {
		return a.viewport.Width
	}
	return a.width
}

// refreshHints shows the commands matching what is being typed.
func (a *App) refreshHints() {
	hints := ""
	if word, ok := a.commandWord(); ok {
		if matches := a.hintsFor(word); len(matches) > 0 {
			hints = strings.TrimRight(a.helper.View(matches), "\n")
		}
	}
	if hints != a.hints {
		a.hints = hints
		a.resize()
	}
}

// commandWord returns the first word of the input when it is a command.
func (a *App) commandWord() (string, bool) {
	value := a.input.Value()
	if !strings.HasPrefix(value, string(a.cfg.CommandPrefix)) {
		return "", false
	}
	word, _, _ := strings.Cut(value, " ")
	return strings.ToLower(strings.TrimSpace(word)), true
}

func (a *App) hintsFor(word string) commandHints {
	var hints commandHints
	for _, c := range a.commands {
		if strings.HasPrefix(c.trigger, word) {
			hints = append(hints, c.binding())
		}
	}
	return hints
}

// commandHints adapts catalog entries to the bubbles help model.
type commandHints []key.Binding

func (h commandHints) ShortHelp() []key.Binding { return h }

func (h commandHints) FullHelp() [][]key.Binding {
	if len(h) == 0 {
		return nil
	}
	return [][]key.Binding{h}
}

func (a *App) statusLine() string {
	state, server := a.theme.offline.Render("OFFLINE"), a.cfg.ServerAddr
	if a.isConnected() {
		state, server = a.theme.online.Render("ONLINE"), a.session.ServerAddr()
	}
	with := "nobody"
	if !a.peer.IsZero() {
		with = a.peer.ID + " " + a.theme.badge(string(a.peer.Kind))
	}

	segments := []string{
		a.theme.brand.Render("hirechat"),
		a.theme.tab.Render(strings.ToUpper(a.view.String())),
		state,
		a.field("Server", server),
		a.field("Me", a.username),
		a.field("With", with),
	}
	if n := a.unseenTotal(); n > 0 {
		segments = append(segments, a.field("Unseen", fmt.Sprint(n)))
	}
	return strings.Join(segments, a.theme.muted.Render(" · "))
}

func (a *App) field(label, value string) string {
	return a.theme.muted.Render(label+" ") + a.theme.strong.Render(value)
}

func (a *App) unseenTotal() int {
	total := 0
	for _, n := range a.unseen {
		total += n
	}
	return total
}

func (a *App) logLineView() string {
	styles := a.theme.notice
	if a.logLine.level == logLevelError {
		styles = a.theme.alert
	}
	return styles[0].Render(a.logLine.label) + " " + styles[1].Render(a.logLine.body)
}

var banner = strings.TrimRight(figure.NewFigure("hirechat", "smslant", true).String(), "\n")

// wrapLines breaks lines at spaces so no row is wider than width cells.
// Words longer than a row are cut by cell width. A non-positive width leaves
// lines untouched.
func wrapLines(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	width = max(width, minWrapWidth)

	var rows []string
	for _, line := range lines {
		rows = append(rows, wrapLine(line, width)...)
	}
	return rows
}

func wrapLine(line string, width int) []string {
	var (
		rows     []string
		row      strings.Builder
		rowWidth int
	)
	flush := func() {
		rows = append(rows, row.String())
		row.Reset()
		rowWidth = 0
	}

	for _, word := range strings.Fields(line) {
		w := lipgloss.Width(word)
		if rowWidth > 0 && rowWidth+1+w > width {
			flush()
		}
		for w > width {
			head := runewidth.Truncate(word, width, "")
			rows = append(rows, head)
			word = word[len(head):]
			w = lipgloss.Width(word)
		}
		if rowWidth > 0 {
			row.WriteByte(' ')
			rowWidth++
		}
		row.WriteString(word)
		rowWidth += w
	}
	if rowWidth > 0 || len(rows) == 0 {
		flush()
	}
	return rows
}
